package tensor

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/trialkit/trialkit/trial"
)

// Linear computes y = Wx + b. Weight is stored row-major, Out x In.
type Linear struct {
	In, Out int
	Weight  *Parameter
	Bias    *Parameter
	device  trial.Device
}

// NewLinear creates a Linear layer with weights drawn uniformly from
// [-1/sqrt(in), 1/sqrt(in)] and zero bias.
func NewLinear(in, out int, rng *rand.Rand) *Linear {
	bound := 1 / math.Sqrt(float64(in))
	w := make([]float64, in*out)
	for i := range w {
		w[i] = (rng.Float64()*2 - 1) * bound
	}
	return &Linear{
		In:     in,
		Out:    out,
		Weight: NewParameter(w),
		Bias:   NewParameter(make([]float64, out)),
		device: trial.CPU(),
	}
}

func (l *Linear) NamedParameters() []trial.NamedParameter {
	return []trial.NamedParameter{
		{Name: "weight", Param: l.Weight},
		{Name: "bias", Param: l.Bias},
	}
}

// To records the placement; storage stays in host memory.
func (l *Linear) To(device trial.Device) error {
	l.device = device
	l.Weight.device = device
	l.Bias.device = device
	return nil
}

// Device returns the layer's placement.
func (l *Linear) Device() trial.Device { return l.device }

// Forward computes Wx + b.
func (l *Linear) Forward(x []float64) []float64 {
	y := make([]float64, l.Out)
	w := l.Weight.Data()
	b := l.Bias.Data()
	for o := 0; o < l.Out; o++ {
		y[o] = b[o] + floats.Dot(w[o*l.In:(o+1)*l.In], x)
	}
	return y
}
