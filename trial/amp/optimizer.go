package amp

import (
	"github.com/sirupsen/logrus"

	"github.com/trialkit/trialkit/trial"
)

// stepSkipper is implemented by the optimizers Initialize returns.
type stepSkipper interface {
	skipNextStep()
}

// optimizer skips its next Step after a backward pass overflowed, leaving the
// parameters and any optimizer state untouched for that step.
type optimizer struct {
	trial.Optimizer
	skipNext bool
	skipped  int
}

func (o *optimizer) skipNextStep() { o.skipNext = true }

// Step steps the wrapped optimizer unless the gradients of the current
// step overflowed.
func (o *optimizer) Step() error {
	if o.skipNext {
		o.skipNext = false
		o.skipped++
		logrus.Debugf("Skipping optimizer step after gradient overflow (%d skipped)", o.skipped)
		return nil
	}
	return o.Optimizer.Step()
}

// Skipped returns the number of skipped steps.
func (o *optimizer) Skipped() int { return o.skipped }

// Unwrap returns the wrapped optimizer.
func (o *optimizer) Unwrap() trial.Optimizer { return o.Optimizer }

// distributedOptimizer keeps the exchange methods of a wrapped
// trial.DistributedOptimizer.
type distributedOptimizer struct {
	*optimizer
	inner trial.DistributedOptimizer
}

func (o *distributedOptimizer) Synchronize() error { return o.inner.Synchronize() }

func (o *distributedOptimizer) SkipSynchronize(fn func() error) error {
	return o.inner.SkipSynchronize(fn)
}

func wrapOptimizer(opt trial.Optimizer) trial.Optimizer {
	o := &optimizer{Optimizer: opt}
	if dopt, ok := opt.(trial.DistributedOptimizer); ok {
		return &distributedOptimizer{optimizer: o, inner: dopt}
	}
	return o
}
