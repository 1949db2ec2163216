package trial

import (
	"github.com/pkg/errors"

	"github.com/trialkit/trialkit/trial/internal/check"
)

// WrapModel places model on the context's device and registers it. When a
// single process drives several GPUs the returned model is a *DataParallel.
// Must be called before ConfigureMixedPrecision.
func (c *Context) WrapModel(model Model) (Model, error) {
	if err := check.False(c.ampConfigured, "must call WrapModel before ConfigureMixedPrecision"); err != nil {
		return nil, configurationError(err)
	}
	if model == nil {
		return nil, configurationErrorf("cannot wrap a nil model")
	}

	if err := model.To(c.device); err != nil {
		return nil, configurationError(errors.Wrapf(err, "moving model to %s", c.device))
	}
	if !c.config.Distributed.Use && c.nGPUs > 1 {
		if err := check.Equal(c.config.Distributed.AggregationFrequency, 1,
			"enable distributed training to use aggregation frequency greater than 1 "+
				"for single machine multi-GPU training"); err != nil {
			return nil, configurationError(err)
		}
		model = NewDataParallel(model, c.nGPUs)
		c.log.Debug("Initialized model for native parallel training.")
	}

	c.mainModel.register(modelName(len(c.models)), model)
	c.models = append(c.models, model)
	return model, nil
}

// WrapOptimizer registers optimizer, which must only reference parameters of
// models returned by WrapModel. Under distributed training the returned
// optimizer is a DistributedOptimizer exchanging gradients every
// AggregationFrequency backward passes. Must be called before
// ConfigureMixedPrecision.
func (c *Context) WrapOptimizer(optimizer Optimizer) (Optimizer, error) {
	if err := check.False(c.ampConfigured, "must call WrapOptimizer before ConfigureMixedPrecision"); err != nil {
		return nil, configurationError(err)
	}
	if optimizer == nil {
		return nil, configurationErrorf("cannot wrap a nil optimizer")
	}

	named := c.filterNamedParameters(optimizer)
	if n := countParams(optimizer); len(named) != n {
		return nil, configurationErrorf(
			"optimizer references %d parameter(s) not belonging to a model returned by WrapModel",
			n-len(named))
	}

	if c.config.Distributed.Use {
		compression := CompressionNone
		if c.config.Distributed.FP16Compression {
			compression = CompressionFP16
		}
		wrapped, err := c.dist.DistributedOptimizer(optimizer, named, DistributedOptimizerOptions{
			BackwardPassesPerStep: c.config.Distributed.AggregationFrequency,
			Compression:           compression,
		})
		if err != nil {
			return nil, configurationError(errors.Wrap(err, "creating distributed optimizer"))
		}
		optimizer = wrapped
		c.log.Debug("Initialized optimizer for distributed and optimized parallel training.")
	}

	c.optimizers = append(c.optimizers, optimizer)
	return optimizer, nil
}

// WrapLRScheduler registers scheduler, whose optimizer must be one returned by
// WrapOptimizer (or by ConfigureMixedPrecision). The step mode tells the
// training loop when to step it.
func (c *Context) WrapLRScheduler(scheduler LRSchedulerImpl, mode StepMode) (*LRScheduler, error) {
	if scheduler == nil {
		return nil, configurationErrorf("cannot wrap a nil LR scheduler")
	}
	if !mode.IsValid() {
		return nil, configurationErrorf("unknown LR scheduler step mode %q", mode)
	}
	if c.optimizerIndex(scheduler.Optimizer()) < 0 {
		return nil, configurationErrorf("LR scheduler must use an optimizer returned by WrapOptimizer")
	}
	if capacity := c.config.schedulerCapacity(); capacity >= 0 {
		if err := check.LessThanOrEqualTo(len(c.lrSchedulers)+1, capacity,
			"at most %d LR scheduler(s) supported", capacity); err != nil {
			return nil, configurationError(err)
		}
	}

	wrapped := NewLRScheduler(scheduler, mode)
	c.lrSchedulers = append(c.lrSchedulers, wrapped)
	return wrapped, nil
}

// BroadcastState overwrites every wrapped model's parameters with those of the
// root worker. No-op without distributed training.
func (c *Context) BroadcastState(root int) error {
	if !c.config.Distributed.Use {
		return nil
	}
	return c.dist.BroadcastParameters(c.mainModel.NamedParameters(), root)
}

// filterNamedParameters returns the umbrella container's (name, parameter)
// pairs referenced by optimizer. Optimizers do not retain parameter names,
// but gradient exchange identifies tensors by name.
func (c *Context) filterNamedParameters(optimizer Optimizer) []NamedParameter {
	optParams := make(map[Parameter]struct{})
	for _, group := range optimizer.ParamGroups() {
		for _, p := range group.Params {
			optParams[p] = struct{}{}
		}
	}
	var out []NamedParameter
	seen := make(map[Parameter]struct{})
	for _, np := range c.mainModel.NamedParameters() {
		if _, ok := optParams[np.Param]; !ok {
			continue
		}
		if _, dup := seen[np.Param]; dup {
			continue
		}
		seen[np.Param] = struct{}{}
		out = append(out, np)
	}
	return out
}

func (c *Context) optimizerIndex(optimizer Optimizer) int {
	for i, o := range c.optimizers {
		if o == optimizer {
			return i
		}
	}
	return -1
}

func (c *Context) modelIndex(model Model) int {
	for i, m := range c.models {
		if m == model {
			return i
		}
	}
	return -1
}

func countParams(optimizer Optimizer) int {
	unique := make(map[Parameter]struct{})
	for _, group := range optimizer.ParamGroups() {
		for _, p := range group.Params {
			unique[p] = struct{}{}
		}
	}
	return len(unique)
}

func groupParams(optimizer Optimizer) []Parameter {
	var params []Parameter
	for _, group := range optimizer.ParamGroups() {
		params = append(params, group.Params...)
	}
	return params
}
