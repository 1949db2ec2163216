package trial

import (
	"github.com/sirupsen/logrus"

	"github.com/trialkit/trialkit/trial/internal/check"
	"github.com/trialkit/trialkit/trial/trace"
)

// Context mediates between user model code and the distributed execution
// engine of one worker. It is created once per worker at trial startup and is
// not safe for concurrent use: the worker's training loop owns it.
//
// Construction phase: WrapModel, WrapOptimizer, WrapLRScheduler, then optionally
// ConfigureMixedPrecision. Per batch: SetCurrentBatch, Backward, StepOptimizer.
type Context struct {
	config Config
	dist   Distributed
	mp     MixedPrecision
	trace  *trace.StepTrace
	log    *logrus.Entry

	device Device
	nGPUs  int

	models       []Model
	optimizers   []Optimizer
	lrSchedulers []*LRScheduler
	// mainModel holds every wrapped model under a unique name so that a single
	// combined parameter state can be broadcast across workers.
	mainModel *moduleSet

	ampConfigured     bool // write-once: ConfigureMixedPrecision was called
	useAMP            bool
	lossIDs           map[string]int
	lastBackwardBatch *int

	currentBatch *int
	epochLen     *int
}

// Option customizes a Context at construction.
type Option func(*Context)

// WithDistributed sets the cross-worker communication backend. Required when
// Config.Distributed.Use is set.
func WithDistributed(dist Distributed) Option {
	return func(c *Context) { c.dist = dist }
}

// WithMixedPrecision sets the mixed-precision library used by
// ConfigureMixedPrecision, overriding NewMixedPrecisionFunc.
func WithMixedPrecision(mp MixedPrecision) Option {
	return func(c *Context) { c.mp = mp }
}

// WithTrace records step-cycle events into st.
func WithTrace(st *trace.StepTrace) Option {
	return func(c *Context) { c.trace = st }
}

// NewContext creates the Context of one worker and resolves its device.
func NewContext(config Config, opts ...Option) (*Context, error) {
	config.Distributed = config.Distributed.withDefaults()
	if err := config.Distributed.Validate(); err != nil {
		return nil, configurationError(err)
	}
	c := &Context{
		config:    config,
		nGPUs:     len(config.Env.ContainerGPUs),
		mainModel: newModuleSet(),
		lossIDs:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logrus.WithField("rank", c.rank())

	device, err := resolveDevice(config.Env, config.Distributed, c.dist)
	if err != nil {
		return nil, err
	}
	c.device = device
	c.log.Debugf("Resolved device %s (%d GPU(s) visible)", c.device, c.nGPUs)
	return c, nil
}

// Device returns the resolved execution device.
func (c *Context) Device() Device { return c.device }

// NumGPUs returns the number of GPUs visible to this worker.
func (c *Context) NumGPUs() int { return c.nGPUs }

// DistributedConfig returns the injected distributed-training configuration.
func (c *Context) DistributedConfig() DistributedConfig { return c.config.Distributed }

// MixedPrecisionActive reports whether ConfigureMixedPrecision has run.
func (c *Context) MixedPrecisionActive() bool { return c.useAMP }

// Models returns the wrapped models in wrapping order.
func (c *Context) Models() []Model { return append([]Model(nil), c.models...) }

// Optimizers returns the wrapped optimizers in wrapping order.
func (c *Context) Optimizers() []Optimizer { return append([]Optimizer(nil), c.optimizers...) }

// LRSchedulers returns the wrapped learning-rate schedulers in wrapping order.
func (c *Context) LRSchedulers() []*LRScheduler {
	return append([]*LRScheduler(nil), c.lrSchedulers...)
}

// Model returns the only wrapped model. Fails unless exactly one was wrapped.
func (c *Context) Model() (Model, error) {
	if err := check.Equal(len(c.models), 1, "expected exactly one wrapped model"); err != nil {
		return nil, configurationError(err)
	}
	return c.models[0], nil
}

// Optimizer returns the only wrapped optimizer. Fails unless exactly one was wrapped.
func (c *Context) Optimizer() (Optimizer, error) {
	if err := check.Equal(len(c.optimizers), 1, "expected exactly one wrapped optimizer"); err != nil {
		return nil, configurationError(err)
	}
	return c.optimizers[0], nil
}

// LRScheduler returns the wrapped scheduler, or nil if none was wrapped.
// Fails if more than one was wrapped.
func (c *Context) LRScheduler() (*LRScheduler, error) {
	if err := check.LessThanOrEqualTo(len(c.lrSchedulers), 1, "expected at most one wrapped LR scheduler"); err != nil {
		return nil, configurationError(err)
	}
	if len(c.lrSchedulers) == 1 {
		return c.lrSchedulers[0], nil
	}
	return nil, nil
}

func (c *Context) rank() int {
	if c.dist == nil {
		return 0
	}
	return c.dist.Rank()
}

func (c *Context) record(event trace.Event) {
	c.trace.Record(event)
}
