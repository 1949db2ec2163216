package tensor

import (
	"gonum.org/v1/gonum/floats"

	"github.com/trialkit/trialkit/trial"
)

// Parameter is a trainable float64 tensor.
type Parameter struct {
	data   []float64
	grad   []float64
	device trial.Device
}

// NewParameter creates a parameter on the CPU holding data.
func NewParameter(data []float64) *Parameter {
	return &Parameter{data: data, device: trial.CPU()}
}

func (p *Parameter) Data() []float64      { return p.data }
func (p *Parameter) Grad() []float64      { return p.grad }
func (p *Parameter) Device() trial.Device { return p.device }

// ZeroGrad zeroes an existing gradient in place.
func (p *Parameter) ZeroGrad() {
	for i := range p.grad {
		p.grad[i] = 0
	}
}

// AccumulateGrad adds g to the parameter's gradient.
func (p *Parameter) AccumulateGrad(g []float64) {
	if p.grad == nil {
		p.grad = make([]float64, len(p.data))
	}
	floats.Add(p.grad, g)
}

// Parameters returns the parameters of m in order.
func Parameters(m trial.Model) []trial.Parameter {
	named := m.NamedParameters()
	params := make([]trial.Parameter, len(named))
	for i, np := range named {
		params[i] = np.Param
	}
	return params
}
