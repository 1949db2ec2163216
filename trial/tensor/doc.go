// Package tensor is a small CPU reference backend for the trial context:
// float64 parameters with accumulated gradients, a fully connected Linear
// model, a mean squared error loss with an analytic backward pass, SGD with
// momentum and a StepLR scheduler.
//
// It exists so the context can be exercised end to end without an external
// tensor library; the types satisfy the interfaces in package trial.
package tensor
