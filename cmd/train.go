package cmd

import (
	"math/rand"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/trialkit/trialkit/trial"
	_ "github.com/trialkit/trialkit/trial/amp" // registers the mixed precision library
	"github.com/trialkit/trialkit/trial/device"
	"github.com/trialkit/trialkit/trial/hvd"
	"github.com/trialkit/trialkit/trial/tensor"
	"github.com/trialkit/trialkit/trial/trace"
)

// WorkerResult is the outcome of one worker's training loop.
type WorkerResult struct {
	Rank           int                 `json:"rank"`
	Device         string              `json:"device"`
	Batches        int                 `json:"batches"`
	Epochs         int                 `json:"epochs"`
	FinalLoss      float64             `json:"final_loss"`
	LearningRate   float64             `json:"learning_rate"`
	Weights        []float64           `json:"weights"`
	Bias           []float64           `json:"bias"`
	MixedPrecision bool                `json:"mixed_precision"`
	TraceSummary   *trace.TraceSummary `json:"trace_summary,omitempty"`
}

// TrialResult collects the results of every worker, ordered by rank.
type TrialResult struct {
	Workers    []WorkerResult `json:"workers"`
	TrueWeight []float64      `json:"true_weight"`
	TrueBias   float64        `json:"true_bias"`
}

// dataset generates y = w*.x + b* + noise. The target is shared by every
// worker; each worker draws its own samples.
type dataset struct {
	weight []float64
	bias   float64
	noise  float64
}

func newDataset(dim int, noise float64, rng *rand.Rand) *dataset {
	d := &dataset{weight: make([]float64, dim), bias: rng.Float64()*2 - 1, noise: noise}
	for i := range d.weight {
		d.weight[i] = rng.Float64()*4 - 2
	}
	return d
}

func (d *dataset) batch(n int, rng *rand.Rand) (xs, ys [][]float64) {
	for i := 0; i < n; i++ {
		x := make([]float64, len(d.weight))
		y := d.bias + rng.NormFloat64()*d.noise
		for j := range x {
			x[j] = rng.Float64()*2 - 1
			y += d.weight[j] * x[j]
		}
		xs = append(xs, x)
		ys = append(ys, []float64{y})
	}
	return xs, ys
}

// runTrial trains the reference model for batches batches on every worker of
// the experiment. gpus are the GPU ids visible to each worker.
func runTrial(cfg ExperimentConfig, batches int, gpus []string) (*TrialResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if batches < 1 {
		return nil, errors.Errorf("batches must be at least 1, got %d", batches)
	}

	data := newDataset(cfg.Hyperparameters.InputDim, cfg.Hyperparameters.Noise,
		newWorkerSeeds(cfg.Seed, 0).data())
	result := &TrialResult{
		Workers:    make([]WorkerResult, cfg.Resources.SlotsPerTrial),
		TrueWeight: data.weight,
		TrueBias:   data.bias,
	}

	if !cfg.Distributed() {
		res, err := runWorker(cfg, nil, data, batches, gpus)
		if err != nil {
			return nil, err
		}
		result.Workers[0] = *res
		return result, nil
	}

	group, err := hvd.NewGroup(cfg.Resources.SlotsPerTrial, cfg.LocalSize())
	if err != nil {
		return nil, err
	}
	var mu sync.Mutex
	err = group.Run(func(w *hvd.Worker) error {
		res, err := runWorker(cfg, w, data, batches, gpus)
		if err != nil {
			return errors.Wrapf(err, "worker %d", w.Rank())
		}
		mu.Lock()
		result.Workers[w.Rank()] = *res
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// runWorker runs the training loop of one worker. w is nil without
// distributed training.
func runWorker(cfg ExperimentConfig, w *hvd.Worker, data *dataset, batches int, gpus []string) (*WorkerResult, error) {
	rank := 0
	var opts []trial.Option
	if w != nil {
		rank = w.Rank()
		opts = append(opts, trial.WithDistributed(w))
	}
	var st *trace.StepTrace
	if trace.TraceLevel(cfg.Trace) == trace.TraceLevelSteps {
		st = trace.NewStepTrace(trace.TraceConfig{Level: trace.TraceLevelSteps})
		opts = append(opts, trial.WithTrace(st))
	}
	log := logrus.WithField("rank", rank)

	ctx, err := trial.NewContext(cfg.ContextConfig(gpus), opts...)
	if err != nil {
		return nil, err
	}
	hp := cfg.Hyperparameters
	seeds := newWorkerSeeds(cfg.Seed, rank)

	linear := tensor.NewLinear(hp.InputDim, 1, seeds.modelInit())
	model, err := ctx.WrapModel(linear)
	if err != nil {
		return nil, err
	}
	optimizer, err := ctx.WrapOptimizer(tensor.NewSGD(tensor.Parameters(linear), hp.LearningRate, hp.Momentum))
	if err != nil {
		return nil, err
	}
	if cfg.MixedPrecision.Enabled {
		_, optimizers, err := ctx.ConfigureMixedPrecision(trial.One(model), trial.One(optimizer), cfg.AMPOptions())
		if err != nil {
			return nil, err
		}
		optimizer, _ = optimizers.Single()
	}
	scheduler, err := ctx.WrapLRScheduler(
		tensor.NewStepLR(optimizer, cfg.LRScheduler.StepSize, cfg.LRScheduler.Gamma),
		trial.StepMode(cfg.LRScheduler.StepMode))
	if err != nil {
		return nil, err
	}
	if err := ctx.SetEpochLength(cfg.EpochLength()); err != nil {
		return nil, err
	}
	if err := ctx.BroadcastState(0); err != nil {
		return nil, err
	}

	var clip trial.ClipFunc
	if hp.ClipGradNorm > 0 {
		clip = trial.ClipGradNorm(hp.ClipGradNorm)
	}
	samples := seeds.sampling()
	res := &WorkerResult{Rank: rank, Device: ctx.Device().String(), MixedPrecision: ctx.MixedPrecisionActive()}
	var epochLoss float64

	for b := 0; b < batches; b++ {
		if err := ctx.SetCurrentBatch(b); err != nil {
			return nil, err
		}
		xs, ys := data.batch(cfg.PerWorkerBatchSize(), samples)
		loss, err := tensor.MSELoss(linear, xs, ys)
		if err != nil {
			return nil, err
		}
		if err := ctx.Backward(loss); err != nil {
			return nil, err
		}
		if err := ctx.StepOptimizer(optimizer, clip); err != nil {
			return nil, err
		}
		res.FinalLoss = loss.Value()
		epochLoss += loss.Value()

		communicated, err := ctx.ShouldCommunicateNow()
		if err != nil {
			return nil, err
		}
		if communicated && scheduler.StepMode() == trial.StepBatch {
			scheduler.Step()
		}
		end, err := ctx.IsEpochEnd()
		if err != nil {
			return nil, err
		}
		if end {
			res.Epochs++
			if scheduler.StepMode() == trial.StepEpoch {
				scheduler.Step()
			}
			log.Infof("Epoch %d: mean loss %.6f", res.Epochs, epochLoss/float64(cfg.EpochLength()))
			epochLoss = 0
		}
		res.Batches++
	}

	res.Weights = append([]float64(nil), linear.Weight.Data()...)
	res.Bias = append([]float64(nil), linear.Bias.Data()...)
	res.LearningRate = optimizer.ParamGroups()[0].LR
	if st != nil {
		res.TraceSummary = trace.Summarize(st)
	}
	log.Debugf("Finished %d batches on %s", res.Batches, res.Device)
	return res, nil
}

// resolveGPUs returns the configured container GPUs, or the visible ones.
func resolveGPUs(cfg ExperimentConfig) ([]string, error) {
	if len(cfg.Resources.ContainerGPUs) > 0 {
		return cfg.Resources.ContainerGPUs, nil
	}
	gpus, err := device.VisibleGPUs()
	if err != nil {
		return nil, err
	}
	return device.IDs(gpus), nil
}
