package trial

// Parameter is a trainable tensor with an accumulated gradient.
// Implementations must be comparable (typically pointer types): the context
// matches optimizer parameters against model parameters by identity.
type Parameter interface {
	// Data returns the parameter values, shared with the parameter.
	Data() []float64
	// Grad returns the accumulated gradient, or nil if none was computed.
	// Writes to the returned slice update the gradient in place.
	Grad() []float64
	// ZeroGrad clears the accumulated gradient.
	ZeroGrad()
}

// NamedParameter pairs a parameter with its dotted name within a model.
type NamedParameter struct {
	Name  string
	Param Parameter
}

// Model is a user model: an ordered collection of named parameters that can be
// placed on a device.
type Model interface {
	NamedParameters() []NamedParameter
	// To moves the model's parameters to the device in place.
	To(device Device) error
}

// ParamGroup is a set of parameters an optimizer updates with shared
// hyperparameters. Schedulers adjust LR in place.
type ParamGroup struct {
	Params []Parameter
	LR     float64
}

// Optimizer updates parameters from their accumulated gradients.
// Implementations must be comparable (typically pointer types).
type Optimizer interface {
	ParamGroups() []*ParamGroup
	Step() error
	ZeroGrad()
}

// DistributedOptimizer is an Optimizer whose gradients are exchanged across
// workers. Step synchronizes implicitly unless run inside SkipSynchronize.
type DistributedOptimizer interface {
	Optimizer
	// Synchronize blocks until gradients are combined across all workers.
	Synchronize() error
	// SkipSynchronize runs fn with the implicit synchronization in Step disabled.
	SkipSynchronize(fn func() error) error
}

// Compression selects how gradients are encoded for cross-worker exchange.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionFP16
)

// DistributedOptimizerOptions configures a distributed optimizer.
type DistributedOptimizerOptions struct {
	// BackwardPassesPerStep is the number of backward passes accumulated
	// locally before gradients are exchanged.
	BackwardPassesPerStep int
	Compression           Compression
}

// Distributed is the cross-worker communication layer.
type Distributed interface {
	Rank() int
	LocalRank() int
	Size() int
	// DistributedOptimizer wraps opt so that gradients of the named parameters
	// are combined across workers. Names identify tensors across workers.
	DistributedOptimizer(opt Optimizer, named []NamedParameter, opts DistributedOptimizerOptions) (DistributedOptimizer, error)
	// BroadcastParameters overwrites the parameters on every worker with root's values.
	BroadcastParameters(named []NamedParameter, root int) error
}

// DeviceBinder is implemented by Distributed backends that must bind the
// process to its device after resolution.
type DeviceBinder interface {
	SetDevice(device Device) error
}

// BackwardOptions are forwarded to the gradient computation.
type BackwardOptions struct {
	// Gradient w.r.t. the loss; nil for scalar losses.
	Gradient    []float64
	RetainGraph bool
	CreateGraph bool
}

// Loss is a value whose gradient w.r.t. the graph leaves can be computed.
type Loss interface {
	Value() float64
	Backward(opts BackwardOptions) error
	// Scaled returns a loss whose gradients are multiplied by factor.
	Scaled(factor float64) Loss
}

// LRSchedulerImpl is a user learning-rate scheduler bound to an optimizer.
type LRSchedulerImpl interface {
	Optimizer() Optimizer
	Step()
}

// MixedPrecision is the mixed-precision library the context delegates to.
type MixedPrecision interface {
	// Initialize casts models and optimizers according to opts and returns the
	// (possibly replaced) objects in the same order.
	Initialize(models []Model, optimizers []Optimizer, opts AMPOptions) ([]Model, []Optimizer, error)
	// ScaleLoss runs backward with loss multiplied by the current scale for
	// lossID; gradients of the optimizers' master parameters are unscaled after
	// backward returns.
	ScaleLoss(loss Loss, optimizers []Optimizer, lossID int, backward func(scaled Loss) error) error
	// MasterParams returns the high-precision parameters updated by opt.
	MasterParams(opt Optimizer) []Parameter
}
