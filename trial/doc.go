// Package trial provides the per-worker training context that sits between
// user model code and the distributed execution engine.
//
// # Reading Guide
//
// Start with these files to understand the context:
//   - context.go: Context construction, device resolution and accessors
//   - wrap.go: model / optimizer / LR scheduler registration
//   - sync.go: Backward, gradient averaging and the optimizer step cycle
//
// # Architecture
//
// The trial package defines interfaces and the Context; implementations live
// in sub-packages:
//   - trial/tensor/: reference CPU backend (parameters, linear model, MSE loss, SGD, StepLR)
//   - trial/hvd/: in-process data-parallel communicator and distributed optimizer
//   - trial/amp/: mixed-precision library with dynamic loss scaling
//   - trial/device/: GPU discovery and host CPU description
//   - trial/trace/: step-cycle trace recording
//
// trial/amp registers itself via init() by setting NewMixedPrecisionFunc.
//
// # Step Cycle
//
// Once per batch the training loop calls SetCurrentBatch, Backward and
// StepOptimizer for every optimizer. StepOptimizer is a no-op until the
// aggregation window closes ((batch+1) % AggregationFrequency == 0); then it
// runs synchronize, average, clip, step and zero-grad in that order.
//
// # Errors
//
// Every failure raised by the context is a *Error whose kind is matched with
// errors.Is against ErrConfiguration, ErrInternal or ErrInvalidUsage.
package trial
