package hvd

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/trialkit/trialkit/trial"
)

// Worker is one rank of a Group. It implements trial.Distributed.
type Worker struct {
	group  *Group
	rank   int
	device *trial.Device
}

func (w *Worker) Rank() int      { return w.rank }
func (w *Worker) LocalRank() int { return w.rank % w.group.localSize }
func (w *Worker) Size() int      { return w.group.size }

// SetDevice binds the worker to its device. Each worker owns one GPU on its host.
func (w *Worker) SetDevice(device trial.Device) error {
	if device.IsGPU() && device.Index != w.LocalRank() {
		return errors.Errorf("rank %d (local rank %d) cannot bind to %s", w.rank, w.LocalRank(), device)
	}
	w.device = &device
	return nil
}

// Device returns the bound device, and false before SetDevice.
func (w *Worker) Device() (trial.Device, bool) {
	if w.device == nil {
		return trial.Device{}, false
	}
	return *w.device, true
}

// Allreduce replaces data with its element-wise average over all workers.
func (w *Worker) Allreduce(data []float64) error {
	return w.group.collective(w.rank, data, opAverage, 0)
}

// Broadcast replaces data on every worker with root's data.
func (w *Worker) Broadcast(data []float64, root int) error {
	if root < 0 || root >= w.group.size {
		return errors.Errorf("broadcast root %d out of range [0, %d)", root, w.group.size)
	}
	return w.group.collective(w.rank, data, opBroadcast, root)
}

// BroadcastParameters overwrites the named parameters with root's values.
// Parameters are packed into one buffer in name order.
func (w *Worker) BroadcastParameters(named []trial.NamedParameter, root int) error {
	sorted := sortedByName(named)
	buf := pack(sorted, func(p trial.Parameter) []float64 { return p.Data() })
	if err := w.Broadcast(buf, root); err != nil {
		return errors.Wrap(err, "broadcasting parameters")
	}
	unpack(sorted, buf, func(p trial.Parameter) []float64 { return p.Data() })
	return nil
}

// DistributedOptimizer wraps opt so that gradients of the named parameters are
// averaged across workers.
func (w *Worker) DistributedOptimizer(
	opt trial.Optimizer, named []trial.NamedParameter, opts trial.DistributedOptimizerOptions,
) (trial.DistributedOptimizer, error) {
	if opts.BackwardPassesPerStep < 1 {
		return nil, errors.Errorf("backward passes per step must be at least 1, got %d", opts.BackwardPassesPerStep)
	}
	sorted := sortedByName(named)
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Name == sorted[i-1].Name {
			return nil, errors.Errorf("parameter name %q is not unique", sorted[i].Name)
		}
	}
	return &distributedOptimizer{
		Optimizer:             opt,
		worker:                w,
		named:                 sorted,
		backwardPassesPerStep: opts.BackwardPassesPerStep,
		compression:           opts.Compression,
	}, nil
}

func sortedByName(named []trial.NamedParameter) []trial.NamedParameter {
	sorted := append([]trial.NamedParameter(nil), named...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return sorted
}

// pack concatenates the selected tensors; tensors that are nil contribute
// zeros sized like the parameter.
func pack(named []trial.NamedParameter, sel func(trial.Parameter) []float64) []float64 {
	var n int
	for _, np := range named {
		n += len(np.Param.Data())
	}
	buf := make([]float64, 0, n)
	for _, np := range named {
		if t := sel(np.Param); t != nil {
			buf = append(buf, t...)
		} else {
			buf = append(buf, make([]float64, len(np.Param.Data()))...)
		}
	}
	return buf
}

func unpack(named []trial.NamedParameter, buf []float64, sel func(trial.Parameter) []float64) {
	off := 0
	for _, np := range named {
		n := len(np.Param.Data())
		if t := sel(np.Param); t != nil {
			copy(t, buf[off:off+n])
		}
		off += n
	}
}
