package trial

import (
	"github.com/pkg/errors"

	"github.com/trialkit/trialkit/trial/internal/check"
	"github.com/trialkit/trialkit/trial/trace"
)

// DefaultLossKey identifies the loss of a Backward call without WithLossKey.
const DefaultLossKey = "loss"

type backwardSettings struct {
	lossKey string
	opts    BackwardOptions
}

// BackwardOption customizes a Backward call.
type BackwardOption func(*backwardSettings)

// WithLossKey names the loss. Under mixed precision each distinct key gets
// its own loss id, and therefore its own loss scale.
func WithLossKey(key string) BackwardOption {
	return func(s *backwardSettings) { s.lossKey = key }
}

// WithGradient sets the gradient w.r.t. a non-scalar loss.
func WithGradient(gradient []float64) BackwardOption {
	return func(s *backwardSettings) { s.opts.Gradient = gradient }
}

// RetainGraph keeps the graph after the backward pass.
func RetainGraph() BackwardOption {
	return func(s *backwardSettings) { s.opts.RetainGraph = true }
}

// CreateGraph builds the graph of the derivative, for higher-order gradients.
func CreateGraph() BackwardOption {
	return func(s *backwardSettings) { s.opts.CreateGraph = true }
}

// ShouldCommunicateNow reports whether the current batch closes an
// aggregation window: gradients are exchanged and optimizers stepped.
func (c *Context) ShouldCommunicateNow() (bool, error) {
	if c.currentBatch == nil {
		return false, internalErrorf("training hasn't started")
	}
	return (*c.currentBatch+1)%c.config.Distributed.AggregationFrequency == 0, nil
}

// Backward computes the gradient of loss w.r.t. the graph leaves.
//
// Under distributed training gradients can only be computed once per batch
// for each parameter; accumulate across batches with the aggregation
// frequency instead. With mixed precision and distributed training only one
// Backward call per batch is supported.
func (c *Context) Backward(loss Loss, opts ...BackwardOption) error {
	settings := backwardSettings{lossKey: DefaultLossKey}
	for _, opt := range opts {
		opt(&settings)
	}

	if !c.useAMP {
		c.record(trace.Event{Batch: c.batchOrZero(), Kind: trace.EventBackward, Optimizer: -1, LossID: -1})
		return loss.Backward(settings.opts)
	}

	if c.config.Distributed.Use && c.lastBackwardBatch != nil && c.currentBatch != nil &&
		*c.lastBackwardBatch >= *c.currentBatch {
		return invalidUsageErrorf(
			"multiple backward calls per batch are not supported with mixed precision and distributed training")
	}
	if c.currentBatch != nil {
		last := *c.currentBatch
		c.lastBackwardBatch = &last
	}

	lossID, ok := c.lossIDs[settings.lossKey]
	if !ok {
		lossID = len(c.lossIDs)
		c.lossIDs[settings.lossKey] = lossID
	}

	communicate := false
	if c.config.Distributed.Use {
		var err error
		if communicate, err = c.ShouldCommunicateNow(); err != nil {
			return err
		}
	}

	return c.mp.ScaleLoss(loss, c.optimizers, lossID, func(scaled Loss) error {
		c.record(trace.Event{Batch: c.batchOrZero(), Kind: trace.EventBackward, Optimizer: -1, LossID: lossID, Scaled: true})
		if err := scaled.Backward(settings.opts); err != nil {
			return err
		}
		if !communicate {
			return nil
		}
		// Gradients must be exchanged before the scope unscales them.
		for i, opt := range c.optimizers {
			dopt, ok := opt.(DistributedOptimizer)
			if !ok {
				return internalErrorf("optimizer %d is not a distributed optimizer", i)
			}
			c.record(trace.Event{Batch: c.batchOrZero(), Kind: trace.EventSynchronize, Optimizer: i, LossID: lossID, Scaled: true})
			if err := dopt.Synchronize(); err != nil {
				return errors.Wrapf(err, "synchronizing optimizer %d", i)
			}
		}
		return nil
	})
}

// AverageGradients divides the accumulated gradient of every parameter by
// divisor in place. Parameters without a gradient are skipped.
func AverageGradients(params []Parameter, divisor int) error {
	if err := check.GreaterThanOrEqualTo(divisor, 1, "gradient divisor must be at least 1"); err != nil {
		return configurationError(err)
	}
	if divisor == 1 {
		return nil
	}
	d := float64(divisor)
	for _, p := range params {
		grad := p.Grad()
		if grad == nil {
			continue
		}
		for i := range grad {
			grad[i] /= d
		}
	}
	return nil
}

// StepOptimizer performs one optimization step with optimizer, which must be
// one returned by WrapOptimizer or ConfigureMixedPrecision. Call it once per
// optimizer per batch; it is a no-op until the aggregation window closes.
// clip, if non-nil, is applied to the gradients after they were exchanged
// across workers and before the step.
func (c *Context) StepOptimizer(optimizer Optimizer, clip ClipFunc) error {
	communicate, err := c.ShouldCommunicateNow()
	if err != nil || !communicate {
		return err
	}

	idx := c.optimizerIndex(optimizer)
	if idx < 0 {
		return configurationErrorf("optimizer was not returned by WrapOptimizer")
	}
	batch := *c.currentBatch
	event := func(kind trace.EventKind) {
		c.record(trace.Event{Batch: batch, Kind: kind, Optimizer: idx, LossID: -1})
	}

	var dopt DistributedOptimizer
	if c.config.Distributed.Use {
		var ok bool
		if dopt, ok = optimizer.(DistributedOptimizer); !ok {
			return internalErrorf("optimizer %d is not a distributed optimizer", idx)
		}
		// Under mixed precision the exchange already happened inside Backward.
		if !c.useAMP {
			event(trace.EventSynchronize)
			if err := dopt.Synchronize(); err != nil {
				return errors.Wrapf(err, "synchronizing optimizer %d", idx)
			}
		}
	}

	var params []Parameter
	if c.useAMP {
		params = c.mp.MasterParams(optimizer)
	} else {
		params = groupParams(optimizer)
	}

	if c.config.Distributed.AverageAggregatedGradients {
		event(trace.EventAverage)
		if err := AverageGradients(params, c.config.Distributed.AggregationFrequency); err != nil {
			return err
		}
	}

	if clip != nil {
		event(trace.EventClip)
		if err := clip(params); err != nil {
			return errors.Wrap(err, "clipping gradients")
		}
	}

	event(trace.EventStep)
	if dopt != nil {
		err = dopt.SkipSynchronize(dopt.Step)
	} else {
		err = optimizer.Step()
	}
	if err != nil {
		return errors.Wrapf(err, "stepping optimizer %d", idx)
	}

	event(trace.EventZeroGrad)
	optimizer.ZeroGrad()
	return nil
}

func (c *Context) batchOrZero() int {
	if c.currentBatch == nil {
		return 0
	}
	return *c.currentBatch
}
