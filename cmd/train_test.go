package cmd

import (
	"math"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialkit/trialkit/trial"
	"github.com/trialkit/trialkit/trial/trace"
)

func TestMain(m *testing.M) {
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.WarnLevel)
	}
	os.Exit(m.Run())
}

func weightError(res WorkerResult, trueWeight []float64, trueBias float64) float64 {
	sq := (res.Bias[0] - trueBias) * (res.Bias[0] - trueBias)
	for i, w := range res.Weights {
		sq += (w - trueWeight[i]) * (w - trueWeight[i])
	}
	return math.Sqrt(sq)
}

func TestRunTrial_SingleWorker_Converges(t *testing.T) {
	// GIVEN a single CPU worker with a constant learning rate
	cfg := DefaultExperimentConfig()
	cfg.LRScheduler.Gamma = 1

	// WHEN trained for one batch and for many
	short, err := runTrial(cfg, 1, nil)
	require.NoError(t, err)
	long, err := runTrial(cfg, 200, nil)
	require.NoError(t, err)

	// THEN the model approaches the generating weights
	require.Len(t, long.Workers, 1)
	res := long.Workers[0]
	assert.Equal(t, "cpu", res.Device)
	assert.Equal(t, 200, res.Batches)
	assert.Equal(t, 25, res.Epochs)
	assert.Less(t, weightError(res, long.TrueWeight, long.TrueBias),
		weightError(short.Workers[0], short.TrueWeight, short.TrueBias)/10)
}

func TestRunTrial_EpochSchedulerDecaysLearningRate(t *testing.T) {
	cfg := DefaultExperimentConfig() // 8 batches per epoch, gamma 0.9

	result, err := runTrial(cfg, 16, nil)
	require.NoError(t, err)

	res := result.Workers[0]
	assert.Equal(t, 2, res.Epochs)
	assert.InDelta(t, 0.05*0.9*0.9, res.LearningRate, 1e-12)
}

func TestRunTrial_BatchSchedulerStepsPerOptimizerStep(t *testing.T) {
	cfg := DefaultExperimentConfig()
	cfg.LRScheduler.StepMode = string(trial.StepBatch)
	cfg.LRScheduler.Gamma = 0.5
	cfg.Optimizations.AggregationFrequency = 2

	result, err := runTrial(cfg, 6, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.05/8, result.Workers[0].LearningRate, 1e-12)
}

func TestRunTrial_Distributed_WorkersAgree(t *testing.T) {
	tests := []struct {
		name    string
		aggFreq int
		amp     bool
	}{
		{"every batch", 1, false},
		{"aggregation", 2, false},
		{"mixed precision", 1, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// GIVEN two workers on one host with a GPU each
			cfg := DefaultExperimentConfig()
			cfg.Resources.SlotsPerTrial = 2
			cfg.Resources.ContainerGPUs = []string{"0", "1"}
			cfg.Optimizations.AggregationFrequency = tc.aggFreq
			cfg.MixedPrecision.Enabled = tc.amp
			cfg.Hyperparameters.ClipGradNorm = 5
			cfg.Trace = string(trace.TraceLevelSteps)

			// WHEN trained
			result, err := runTrial(cfg, 8, cfg.Resources.ContainerGPUs)
			require.NoError(t, err)

			// THEN both workers hold the same weights and ran ordered step cycles
			require.Len(t, result.Workers, 2)
			w0, w1 := result.Workers[0], result.Workers[1]
			assert.Equal(t, "cuda:0", w0.Device)
			assert.Equal(t, "cuda:1", w1.Device)
			assert.Equal(t, w0.Weights, w1.Weights)
			assert.Equal(t, w0.Bias, w1.Bias)
			assert.Equal(t, tc.amp, w0.MixedPrecision)
			for _, w := range result.Workers {
				require.NotNil(t, w.TraceSummary)
				assert.Equal(t, 8/tc.aggFreq, w.TraceSummary.StepCycles)
				assert.Equal(t, 0, w.TraceSummary.OrderViolations)
			}
		})
	}
}

func TestRunTrial_DistributedWithoutGPUs_Fails(t *testing.T) {
	cfg := DefaultExperimentConfig()
	cfg.Resources.SlotsPerTrial = 2

	_, err := runTrial(cfg, 4, nil)
	assert.ErrorIs(t, err, trial.ErrConfiguration)
}

func TestRunTrial_InvalidInput(t *testing.T) {
	_, err := runTrial(DefaultExperimentConfig(), 0, nil)
	assert.Error(t, err)

	cfg := DefaultExperimentConfig()
	cfg.Hyperparameters.LearningRate = -1
	_, err = runTrial(cfg, 1, nil)
	assert.Error(t, err)
}

func TestResolveGPUs_PrefersConfiguredGPUs(t *testing.T) {
	cfg := DefaultExperimentConfig()
	cfg.Resources.ContainerGPUs = []string{"3"}
	gpus, err := resolveGPUs(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, gpus)
}
