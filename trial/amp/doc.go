// Package amp is the reference mixed-precision library behind
// trial.Context.ConfigureMixedPrecision.
//
// Optimization levels follow the usual conventions:
//   - O0: pure float32, static loss scale 1
//   - O1: float32 weights, dynamic loss scaling
//   - O2: float16 model weights, dynamic loss scaling
//   - O3: pure float16, static loss scale 1
//
// Storage is float64 throughout; casting to float16 rounds parameter values
// to half precision in place. Each loss id owns an independent loss scaler.
// An overflowed backward pass discards its gradients, and the optimizers
// returned by Initialize skip their next step.
package amp
