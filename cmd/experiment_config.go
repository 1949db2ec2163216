package cmd

import (
	"bytes"
	"math"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/trialkit/trialkit/trial"
	"github.com/trialkit/trialkit/trial/trace"
)

// ExperimentConfig represents an experiment YAML file.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type ExperimentConfig struct {
	Hyperparameters Hyperparameters      `yaml:"hyperparameters"`
	Optimizations   Optimizations        `yaml:"optimizations"`
	Resources       Resources            `yaml:"resources"`
	MixedPrecision  MixedPrecisionConfig `yaml:"mixed_precision"`
	LRScheduler     LRSchedulerConfig    `yaml:"lr_scheduler"`
	Records         RecordsConfig        `yaml:"records"`
	Seed            int64                `yaml:"seed"`
	Debug           bool                 `yaml:"debug"`
	Trace           string               `yaml:"trace"` // "none" or "steps"
}

// Hyperparameters of the reference linear regression trial.
type Hyperparameters struct {
	LearningRate    float64 `yaml:"learning_rate"`
	Momentum        float64 `yaml:"momentum"`
	GlobalBatchSize int     `yaml:"global_batch_size"`
	InputDim        int     `yaml:"input_dim"`
	ClipGradNorm    float64 `yaml:"clip_grad_norm"` // 0 disables clipping
	Noise           float64 `yaml:"noise"`          // stddev of label noise
}

// Optimizations configures gradient aggregation and exchange.
type Optimizations struct {
	AggregationFrequency       int  `yaml:"aggregation_frequency"`
	AverageAggregatedGradients bool `yaml:"average_aggregated_gradients"`
	GradientCompression        bool `yaml:"gradient_compression"`
}

// Resources describes the workers of a trial.
type Resources struct {
	SlotsPerTrial int      `yaml:"slots_per_trial"`
	SlotsPerHost  int      `yaml:"slots_per_host"` // 0 places every slot on one host
	ContainerGPUs []string `yaml:"container_gpus"` // overrides GPU discovery
	MaxSchedulers int      `yaml:"max_lr_schedulers"`
}

// MixedPrecisionConfig enables automatic mixed precision.
type MixedPrecisionConfig struct {
	Enabled      bool     `yaml:"enabled"`
	OptLevel     string   `yaml:"opt_level"`
	LossScale    string   `yaml:"loss_scale"`
	MinLossScale *float64 `yaml:"min_loss_scale"`
	MaxLossScale float64  `yaml:"max_loss_scale"`
}

// LRSchedulerConfig configures the StepLR scheduler.
type LRSchedulerConfig struct {
	StepMode string  `yaml:"step_mode"`
	StepSize int     `yaml:"step_size"`
	Gamma    float64 `yaml:"gamma"`
}

// RecordsConfig sizes the synthetic dataset.
type RecordsConfig struct {
	PerEpoch int `yaml:"records_per_epoch"`
}

// DefaultExperimentConfig returns the configuration used for omitted fields.
func DefaultExperimentConfig() ExperimentConfig {
	return ExperimentConfig{
		Hyperparameters: Hyperparameters{
			LearningRate:    0.05,
			GlobalBatchSize: 8,
			InputDim:        4,
			Noise:           0.01,
		},
		Optimizations: Optimizations{
			AggregationFrequency:       1,
			AverageAggregatedGradients: true,
		},
		Resources: Resources{SlotsPerTrial: 1},
		MixedPrecision: MixedPrecisionConfig{
			OptLevel:     "O1",
			MaxLossScale: math.Exp2(24),
		},
		LRScheduler: LRSchedulerConfig{StepMode: string(trial.StepEpoch), StepSize: 1, Gamma: 0.9},
		Records:     RecordsConfig{PerEpoch: 64},
		Seed:        42,
		Trace:       string(trace.TraceLevelNone),
	}
}

// LoadExperimentConfig parses the experiment YAML at path on top of the
// defaults. Uses strict field checking: typos must cause errors.
func LoadExperimentConfig(path string) (ExperimentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ExperimentConfig{}, errors.Wrapf(err, "reading experiment config %s", path)
	}
	return parseExperimentConfig(data)
}

func parseExperimentConfig(data []byte) (ExperimentConfig, error) {
	cfg := DefaultExperimentConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return ExperimentConfig{}, errors.Wrap(err, "parsing experiment config")
	}
	return cfg, nil
}

// Validate checks setting ranges that the trial context does not.
func (c ExperimentConfig) Validate() error {
	hp := c.Hyperparameters
	switch {
	case hp.LearningRate <= 0:
		return errors.Errorf("learning_rate must be positive, got %v", hp.LearningRate)
	case hp.InputDim < 1:
		return errors.Errorf("input_dim must be at least 1, got %d", hp.InputDim)
	case hp.ClipGradNorm < 0:
		return errors.Errorf("clip_grad_norm must be non-negative, got %v", hp.ClipGradNorm)
	case c.Resources.SlotsPerTrial < 1:
		return errors.Errorf("slots_per_trial must be at least 1, got %d", c.Resources.SlotsPerTrial)
	case c.Resources.SlotsPerHost < 0 || c.Resources.SlotsPerHost > c.Resources.SlotsPerTrial:
		return errors.Errorf("slots_per_host must be in [0, %d], got %d", c.Resources.SlotsPerTrial, c.Resources.SlotsPerHost)
	case hp.GlobalBatchSize < c.Resources.SlotsPerTrial || hp.GlobalBatchSize%c.Resources.SlotsPerTrial != 0:
		return errors.Errorf("global_batch_size %d must be a positive multiple of slots_per_trial %d",
			hp.GlobalBatchSize, c.Resources.SlotsPerTrial)
	case c.Records.PerEpoch < hp.GlobalBatchSize:
		return errors.Errorf("records_per_epoch %d is smaller than global_batch_size %d", c.Records.PerEpoch, hp.GlobalBatchSize)
	case !trial.StepMode(c.LRScheduler.StepMode).IsValid():
		return errors.Errorf("unknown lr_scheduler step_mode %q", c.LRScheduler.StepMode)
	case !trace.IsValidTraceLevel(c.Trace):
		return errors.Errorf("unknown trace level %q", c.Trace)
	}
	return nil
}

// Distributed reports whether the trial needs more than one worker.
func (c ExperimentConfig) Distributed() bool { return c.Resources.SlotsPerTrial > 1 }

// LocalSize returns the number of workers per host.
func (c ExperimentConfig) LocalSize() int {
	if c.Resources.SlotsPerHost == 0 {
		return c.Resources.SlotsPerTrial
	}
	return c.Resources.SlotsPerHost
}

// EpochLength returns the number of batches per epoch.
func (c ExperimentConfig) EpochLength() int {
	return c.Records.PerEpoch / c.Hyperparameters.GlobalBatchSize
}

// PerWorkerBatchSize returns each worker's share of the global batch.
func (c ExperimentConfig) PerWorkerBatchSize() int {
	return c.Hyperparameters.GlobalBatchSize / c.Resources.SlotsPerTrial
}

// ContextConfig builds the trial context configuration for a worker that
// sees gpus.
func (c ExperimentConfig) ContextConfig(gpus []string) trial.Config {
	dist := trial.NewDistributedConfig(c.Distributed())
	dist.AggregationFrequency = c.Optimizations.AggregationFrequency
	dist.AverageAggregatedGradients = c.Optimizations.AverageAggregatedGradients
	dist.FP16Compression = c.Optimizations.GradientCompression
	return trial.Config{
		Env:             trial.Env{ContainerGPUs: gpus, DebugEnabled: c.Debug},
		Distributed:     dist,
		MaxLRSchedulers: c.Resources.MaxSchedulers,
	}
}

// AMPOptions returns the mixed precision options of the experiment.
func (c ExperimentConfig) AMPOptions() trial.AMPOptions {
	opts := trial.DefaultAMPOptions()
	opts.Enabled = c.MixedPrecision.Enabled
	opts.OptLevel = c.MixedPrecision.OptLevel
	opts.LossScale = c.MixedPrecision.LossScale
	opts.MinLossScale = c.MixedPrecision.MinLossScale
	if c.MixedPrecision.MaxLossScale > 0 {
		opts.MaxLossScale = c.MixedPrecision.MaxLossScale
	}
	return opts
}
