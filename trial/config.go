package trial

import (
	"github.com/trialkit/trialkit/trial/internal/check"
)

// DistributedConfig groups data-parallel training settings. Read-only once
// handed to a Context.
type DistributedConfig struct {
	Use                        bool // multi-worker training through a Distributed backend
	AggregationFrequency       int  // batches accumulated per communication + step cycle; 0 means 1
	FP16Compression            bool // compress exchanged gradients to half precision
	AverageAggregatedGradients bool // divide accumulated gradients by AggregationFrequency before stepping
}

// Env describes the worker's runtime environment.
type Env struct {
	ContainerGPUs []string // GPU ids visible to this worker
	DebugEnabled  bool
}

// Config is the construction-time configuration of a Context.
type Config struct {
	Env         Env
	Distributed DistributedConfig
	// MaxLRSchedulers caps WrapLRScheduler registrations.
	// 0 means the default of one; negative means unbounded.
	MaxLRSchedulers int
}

// NewDistributedConfig creates a DistributedConfig with aggregation frequency 1.
func NewDistributedConfig(use bool) DistributedConfig {
	return DistributedConfig{Use: use, AggregationFrequency: 1}
}

func (c DistributedConfig) withDefaults() DistributedConfig {
	if c.AggregationFrequency == 0 {
		c.AggregationFrequency = 1
	}
	return c
}

// Validate checks setting ranges.
func (c DistributedConfig) Validate() error {
	return check.GreaterThanOrEqualTo(c.AggregationFrequency, 1, "aggregation frequency must be at least 1")
}

func (c Config) schedulerCapacity() int {
	if c.MaxLRSchedulers == 0 {
		return 1
	}
	return c.MaxLRSchedulers
}

// NewMixedPrecisionFunc builds the default mixed-precision library when none is
// injected with WithMixedPrecision. Set by trial/amp's init().
var NewMixedPrecisionFunc func() MixedPrecision
