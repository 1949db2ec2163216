package tensor

import (
	"gonum.org/v1/gonum/floats"

	"github.com/trialkit/trialkit/trial"
)

// SGD is stochastic gradient descent with optional momentum.
type SGD struct {
	groups   []*trial.ParamGroup
	momentum float64
	velocity map[trial.Parameter][]float64
}

// NewSGD creates an optimizer with a single parameter group.
func NewSGD(params []trial.Parameter, lr, momentum float64) *SGD {
	return &SGD{
		groups:   []*trial.ParamGroup{{Params: params, LR: lr}},
		momentum: momentum,
		velocity: make(map[trial.Parameter][]float64),
	}
}

// AddParamGroup adds a group with its own learning rate.
func (o *SGD) AddParamGroup(params []trial.Parameter, lr float64) {
	o.groups = append(o.groups, &trial.ParamGroup{Params: params, LR: lr})
}

func (o *SGD) ParamGroups() []*trial.ParamGroup { return o.groups }

func (o *SGD) Step() error {
	for _, g := range o.groups {
		for _, p := range g.Params {
			grad := p.Grad()
			if grad == nil {
				continue
			}
			update := grad
			if o.momentum != 0 {
				v, ok := o.velocity[p]
				if !ok {
					v = make([]float64, len(grad))
					o.velocity[p] = v
				}
				floats.Scale(o.momentum, v)
				floats.Add(v, grad)
				update = v
			}
			floats.AddScaled(p.Data(), -g.LR, update)
		}
	}
	return nil
}

func (o *SGD) ZeroGrad() {
	for _, g := range o.groups {
		for _, p := range g.Params {
			p.ZeroGrad()
		}
	}
}
