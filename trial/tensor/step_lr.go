package tensor

import (
	"math"

	"github.com/trialkit/trialkit/trial"
)

// StepLR decays the learning rate of every parameter group by gamma every
// stepSize steps.
type StepLR struct {
	optimizer trial.Optimizer
	stepSize  int
	gamma     float64
	steps     int
	baseLRs   []float64
}

// NewStepLR binds a scheduler to optimizer. Pass the optimizer returned by
// Context.WrapOptimizer.
func NewStepLR(optimizer trial.Optimizer, stepSize int, gamma float64) *StepLR {
	groups := optimizer.ParamGroups()
	base := make([]float64, len(groups))
	for i, g := range groups {
		base[i] = g.LR
	}
	if stepSize < 1 {
		stepSize = 1
	}
	return &StepLR{optimizer: optimizer, stepSize: stepSize, gamma: gamma, baseLRs: base}
}

func (s *StepLR) Optimizer() trial.Optimizer { return s.optimizer }

func (s *StepLR) Step() {
	s.steps++
	factor := math.Pow(s.gamma, float64(s.steps/s.stepSize))
	for i, g := range s.optimizer.ParamGroups() {
		if i < len(s.baseLRs) {
			g.LR = s.baseLRs[i] * factor
		}
	}
}

// LastLR returns the current learning rate of each parameter group.
func (s *StepLR) LastLR() []float64 {
	groups := s.optimizer.ParamGroups()
	lrs := make([]float64, len(groups))
	for i, g := range groups {
		lrs[i] = g.LR
	}
	return lrs
}
