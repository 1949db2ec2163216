package trial

import (
	"math"

	"github.com/pkg/errors"

	"github.com/trialkit/trialkit/trial/internal/check"
)

// AMPOptions are passed through to the mixed-precision library.
type AMPOptions struct {
	Enabled           bool     // false renders all mixed-precision calls no-ops
	OptLevel          string   // "O0", "O1", "O2" or "O3"
	CastModelType     string   // optional override: "float16" or "float32"
	PatchFunctions    *bool    // optional override
	KeepBatchnormFP32 *bool    // optional override
	MasterWeights     *bool    // optional override
	LossScale         string   // optional override: a number, or "dynamic"
	CastModelOutputs  string   // optional: dtype model outputs are cast to
	NumLosses         int      // losses / backward passes per batch, each with its own scale
	Verbosity         int      // 0 suppresses library output
	MinLossScale      *float64 // floor for dynamic loss scaling
	MaxLossScale      float64  // ceiling for dynamic loss scaling
}

// DefaultAMPOptions returns the library defaults: enabled, O1, one loss,
// verbosity 1 and a 2^24 loss-scale ceiling.
func DefaultAMPOptions() AMPOptions {
	return AMPOptions{
		Enabled:      true,
		OptLevel:     "O1",
		NumLosses:    1,
		Verbosity:    1,
		MaxLossScale: math.Exp2(24),
	}
}

// ConfigureMixedPrecision casts the given models and optimizers for mixed
// precision training. It must be called once, after all models and
// optimizers were wrapped. The context's model and optimizer lists are
// replaced by the returned objects, which keep the arity of the arguments:
// One in, One out; Many in, Many out.
//
// Under distributed training only NumLosses == 1 and a single backward call
// per batch are supported. A call rejected by these checks leaves the context
// unconfigured, so wrapping and configuring may continue afterwards.
func (c *Context) ConfigureMixedPrecision(
	models Items[Model], optimizers Items[Optimizer], opts AMPOptions,
) (Items[Model], Items[Optimizer], error) {
	if err := check.False(c.ampConfigured, "mixed precision can only be configured once"); err != nil {
		return Items[Model]{}, Items[Optimizer]{}, configurationError(err)
	}

	if c.config.Distributed.Use {
		if err := check.Equal(opts.NumLosses, 1,
			"distributed training only supports mixed precision with one loss"); err != nil {
			return Items[Model]{}, Items[Optimizer]{}, configurationError(err)
		}
		if err := check.Equal(c.config.Distributed.AggregationFrequency, 1,
			"mixed precision is not supported with aggregation frequency greater than 1"); err != nil {
			return Items[Model]{}, Items[Optimizer]{}, configurationError(err)
		}
	}
	if err := check.True(c.device.IsGPU(), "mixed precision is GPU-only"); err != nil {
		return Items[Model]{}, Items[Optimizer]{}, configurationError(err)
	}

	mp := c.mp
	if mp == nil && NewMixedPrecisionFunc != nil {
		mp = NewMixedPrecisionFunc()
	}
	if mp == nil {
		return Items[Model]{}, Items[Optimizer]{}, configurationErrorf("no mixed precision library available")
	}
	// Settled once the arguments were accepted; a failed Initialize is not retried.
	c.ampConfigured = true

	if c.rank() != 0 && !c.config.Env.DebugEnabled {
		opts.Verbosity = 0
	}

	c.log.Infof("Enabling mixed precision training with opt_level: %s.", opts.OptLevel)
	castModels, castOptimizers, err := mp.Initialize(models.All(), optimizers.All(), opts)
	if err != nil {
		return Items[Model]{}, Items[Optimizer]{}, configurationError(errors.Wrap(err, "initializing mixed precision"))
	}
	if len(castModels) != models.Len() || len(castOptimizers) != optimizers.Len() {
		return Items[Model]{}, Items[Optimizer]{}, internalErrorf(
			"mixed precision library returned %d model(s) and %d optimizer(s) for %d and %d",
			len(castModels), len(castOptimizers), models.Len(), optimizers.Len())
	}

	for i, m := range models.All() {
		if id := c.modelIndex(m); id >= 0 {
			c.mainModel.register(modelName(id), castModels[i])
		}
	}
	c.mp = mp
	c.models = castModels
	c.optimizers = castOptimizers
	c.useAMP = true
	return models.withShape(castModels), optimizers.withShape(castOptimizers), nil
}
