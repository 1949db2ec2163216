package amp

import (
	"math"
	"strconv"

	"github.com/pkg/errors"

	"github.com/trialkit/trialkit/trial"
)

// castType is the precision model parameters are stored in.
type castType string

const (
	castNone    castType = ""
	castFloat16 castType = "float16"
	castFloat32 castType = "float32"
)

// lossScaleDynamic selects dynamic loss scaling.
const lossScaleDynamic = "dynamic"

const (
	defaultInitScale   = 65536.0 // 2^16
	defaultScaleWindow = 2000
)

// properties are the resolved settings of one optimization level after
// user overrides.
type properties struct {
	optLevel     string
	cast         castType
	dynamic      bool
	staticScale  float64
	initScale    float64
	minScale     float64
	maxScale     float64
	numLosses    int
	verbosity    int
	masterWeight bool
}

// resolve applies opts on top of the defaults of opts.OptLevel.
func resolve(opts trial.AMPOptions) (properties, error) {
	p := properties{
		optLevel:  opts.OptLevel,
		numLosses: opts.NumLosses,
		verbosity: opts.Verbosity,
		maxScale:  opts.MaxLossScale,
	}
	switch opts.OptLevel {
	case "O0":
		p.cast, p.staticScale = castFloat32, 1
	case "O1":
		p.cast, p.dynamic = castNone, true
	case "O2":
		p.cast, p.dynamic, p.masterWeight = castFloat16, true, true
	case "O3":
		p.cast, p.staticScale = castFloat16, 1
	default:
		return properties{}, errors.Errorf("unexpected optimization level %q, options are O0, O1, O2, O3", opts.OptLevel)
	}

	switch castType(opts.CastModelType) {
	case castNone:
	case castFloat16, castFloat32:
		p.cast = castType(opts.CastModelType)
	default:
		return properties{}, errors.Errorf("unsupported cast model type %q", opts.CastModelType)
	}
	if opts.MasterWeights != nil {
		p.masterWeight = *opts.MasterWeights
	}

	switch opts.LossScale {
	case "":
	case lossScaleDynamic:
		p.dynamic = true
	default:
		scale, err := strconv.ParseFloat(opts.LossScale, 64)
		if err != nil || scale <= 0 || math.IsInf(scale, 0) {
			return properties{}, errors.Errorf("loss scale must be %q or a positive number, got %q", lossScaleDynamic, opts.LossScale)
		}
		p.dynamic, p.staticScale = false, scale
	}

	if p.numLosses < 1 {
		return properties{}, errors.Errorf("number of losses must be at least 1, got %d", p.numLosses)
	}
	if p.maxScale <= 0 {
		p.maxScale = math.Exp2(24)
	}
	if opts.MinLossScale != nil {
		if !p.dynamic {
			return properties{}, errors.New("min loss scale only applies to dynamic loss scaling")
		}
		p.minScale = *opts.MinLossScale
	}
	if p.minScale > p.maxScale {
		return properties{}, errors.Errorf("min loss scale %v exceeds max loss scale %v", p.minScale, p.maxScale)
	}
	p.initScale = math.Min(defaultInitScale, p.maxScale)
	return p, nil
}
