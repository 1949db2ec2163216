package amp

import (
	"math"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/x448/float16"

	"github.com/trialkit/trialkit/trial"
)

// lossScaler tracks the scale of one loss id.
type lossScaler struct {
	scale     float64
	dynamic   bool
	unskipped int
}

// Scaler implements trial.MixedPrecision.
type Scaler struct {
	enabled     bool
	initialized bool
	props       properties
	window      int
	scalers     []*lossScaler
	overflows   int
}

// New creates an uninitialized Scaler.
func New() *Scaler {
	return &Scaler{window: defaultScaleWindow}
}

// Initialize resolves opts and casts model parameters in place. Models are
// returned unchanged in identity. When enabled, each optimizer is wrapped so
// that its Step is skipped after a backward pass overflowed; wrappers of a
// trial.DistributedOptimizer are distributed optimizers too.
func (s *Scaler) Initialize(models []trial.Model, optimizers []trial.Optimizer, opts trial.AMPOptions) ([]trial.Model, []trial.Optimizer, error) {
	if s.initialized {
		return nil, nil, errors.New("mixed precision already initialized")
	}
	s.initialized = true
	s.enabled = opts.Enabled
	if !opts.Enabled {
		return models, optimizers, nil
	}

	props, err := resolve(opts)
	if err != nil {
		return nil, nil, err
	}
	s.props = props
	s.scalers = make([]*lossScaler, props.numLosses)
	for i := range s.scalers {
		ls := &lossScaler{scale: props.staticScale}
		if props.dynamic {
			ls.scale, ls.dynamic = props.initScale, true
		}
		s.scalers[i] = ls
	}

	if props.cast == castFloat16 {
		for _, m := range models {
			for _, np := range m.NamedParameters() {
				roundToHalf(np.Param.Data())
			}
		}
	}
	if props.verbosity > 0 {
		logrus.Infof("Mixed precision: opt_level %s, cast_model_type %q, master_weights %v, dynamic loss scale %v, %d loss(es)",
			props.optLevel, props.cast, props.masterWeight, props.dynamic, props.numLosses)
	}
	wrapped := make([]trial.Optimizer, len(optimizers))
	for i, opt := range optimizers {
		wrapped[i] = wrapOptimizer(opt)
	}
	return models, wrapped, nil
}

// ScaleLoss runs backward on loss multiplied by the scale of lossID, then
// unscales the gradients added to the optimizers' master parameters.
// Gradients accumulated before the call are preserved. If the new gradients
// overflow they are discarded, the next Step of every optimizer in
// optimizers is skipped and a dynamic scale is halved.
func (s *Scaler) ScaleLoss(loss trial.Loss, optimizers []trial.Optimizer, lossID int, backward func(scaled trial.Loss) error) error {
	if !s.initialized {
		return errors.New("mixed precision used before Initialize")
	}
	if !s.enabled {
		return backward(loss)
	}
	if lossID < 0 || lossID >= len(s.scalers) {
		return errors.Errorf("loss id %d out of range; configured for %d loss(es)", lossID, len(s.scalers))
	}
	ls := s.scalers[lossID]

	var params []trial.Parameter
	for _, opt := range optimizers {
		params = append(params, s.MasterParams(opt)...)
	}
	stashed := stashGrads(params)

	if err := backward(loss.Scaled(ls.scale)); err != nil {
		return err
	}

	overflow := false
	inv := 1 / ls.scale
	for _, p := range params {
		g := p.Grad()
		for i := range g {
			g[i] *= inv
			if math.IsInf(g[i], 0) || math.IsNaN(g[i]) {
				overflow = true
			}
		}
	}

	if overflow {
		for i, p := range params {
			restoreGrad(p, stashed[i])
		}
		s.overflows++
		for _, opt := range optimizers {
			if sk, ok := opt.(stepSkipper); ok {
				sk.skipNextStep()
			}
		}
		s.reduce(lossID, ls)
		return nil
	}
	for i, p := range params {
		addGrad(p, stashed[i])
	}
	s.grow(ls)
	return nil
}

// MasterParams returns the parameters opt updates.
func (s *Scaler) MasterParams(opt trial.Optimizer) []trial.Parameter {
	var params []trial.Parameter
	for _, group := range opt.ParamGroups() {
		params = append(params, group.Params...)
	}
	return params
}

// LossScale returns the current scale of lossID.
func (s *Scaler) LossScale(lossID int) float64 {
	if lossID < 0 || lossID >= len(s.scalers) {
		return 1
	}
	return s.scalers[lossID].scale
}

// Overflows returns the number of discarded backward passes.
func (s *Scaler) Overflows() int { return s.overflows }

func (s *Scaler) reduce(lossID int, ls *lossScaler) {
	if !ls.dynamic {
		if s.props.verbosity > 0 {
			logrus.Infof("Gradient overflow. Skipping step, loss scaler %d keeps static loss scale %v", lossID, ls.scale)
		}
		return
	}
	ls.scale = math.Max(ls.scale/2, s.props.minScale)
	ls.unskipped = 0
	if s.props.verbosity > 0 {
		logrus.Infof("Gradient overflow. Skipping step, loss scaler %d reducing loss scale to %v", lossID, ls.scale)
	}
}

func (s *Scaler) grow(ls *lossScaler) {
	if !ls.dynamic {
		return
	}
	ls.unskipped++
	if ls.unskipped == s.window {
		ls.scale = math.Min(ls.scale*2, s.props.maxScale)
		ls.unskipped = 0
	}
}

// stashGrads copies and zeroes every existing gradient.
func stashGrads(params []trial.Parameter) [][]float64 {
	stashed := make([][]float64, len(params))
	for i, p := range params {
		if g := p.Grad(); g != nil {
			stashed[i] = append([]float64(nil), g...)
			p.ZeroGrad()
		}
	}
	return stashed
}

func restoreGrad(p trial.Parameter, stashed []float64) {
	g := p.Grad()
	if stashed == nil {
		p.ZeroGrad()
		return
	}
	copy(g, stashed)
}

func addGrad(p trial.Parameter, stashed []float64) {
	g := p.Grad()
	for i := range stashed {
		if i < len(g) {
			g[i] += stashed[i]
		}
	}
}

func roundToHalf(data []float64) {
	for i, v := range data {
		data[i] = float64(float16.Fromfloat32(float32(v)).Float32())
	}
}
