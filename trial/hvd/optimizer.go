package hvd

import (
	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/trialkit/trialkit/trial"
)

// distributedOptimizer averages gradients across workers before stepping the
// wrapped optimizer.
type distributedOptimizer struct {
	trial.Optimizer
	worker                *Worker
	named                 []trial.NamedParameter
	backwardPassesPerStep int
	compression           trial.Compression
	skipSync              bool
}

// Synchronize averages the gradients of all named parameters across workers.
func (o *distributedOptimizer) Synchronize() error {
	grad := func(p trial.Parameter) []float64 { return p.Grad() }
	buf := pack(o.named, grad)
	if o.compression == trial.CompressionFP16 {
		compressFP16(buf)
	}
	if err := o.worker.Allreduce(buf); err != nil {
		return errors.Wrap(err, "allreducing gradients")
	}
	if o.compression == trial.CompressionFP16 {
		compressFP16(buf)
	}
	return unpackGrads(o.named, buf)
}

// gradAccumulator is implemented by parameters that can allocate a gradient.
type gradAccumulator interface {
	AccumulateGrad(g []float64)
}

// unpackGrads writes the averaged gradients back. A parameter without a local
// gradient receives the average too, so that every replica steps identically.
func unpackGrads(named []trial.NamedParameter, buf []float64) error {
	off := 0
	for _, np := range named {
		n := len(np.Param.Data())
		avg := buf[off : off+n]
		off += n
		if g := np.Param.Grad(); g != nil {
			copy(g, avg)
			continue
		}
		if allZero(avg) {
			continue
		}
		acc, ok := np.Param.(gradAccumulator)
		if !ok {
			return errors.Errorf("parameter %q has no gradient on this worker and cannot allocate one", np.Name)
		}
		acc.AccumulateGrad(avg)
	}
	return nil
}

func allZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// SkipSynchronize runs fn without the implicit synchronization in Step.
func (o *distributedOptimizer) SkipSynchronize(fn func() error) error {
	prev := o.skipSync
	o.skipSync = true
	defer func() { o.skipSync = prev }()
	return fn()
}

// Step synchronizes gradients unless inside SkipSynchronize, then steps.
func (o *distributedOptimizer) Step() error {
	if !o.skipSync {
		if err := o.Synchronize(); err != nil {
			return err
		}
	}
	return o.Optimizer.Step()
}

// BackwardPassesPerStep returns the configured accumulation window.
func (o *distributedOptimizer) BackwardPassesPerStep() int { return o.backwardPassesPerStep }

// Unwrap returns the wrapped optimizer.
func (o *distributedOptimizer) Unwrap() trial.Optimizer { return o.Optimizer }

// compressFP16 rounds every value to half precision in place.
func compressFP16(buf []float64) {
	for i, v := range buf {
		buf[i] = float64(float16.Fromfloat32(float32(v)).Float32())
	}
}
