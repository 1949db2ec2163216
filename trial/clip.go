package trial

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// ClipFunc clips the gradients of params in place.
type ClipFunc func(params []Parameter) error

// ClipGradNorm rescales gradients so their global L2 norm is at most maxNorm.
func ClipGradNorm(maxNorm float64) ClipFunc {
	return func(params []Parameter) error {
		if maxNorm <= 0 {
			return errors.Errorf("max norm must be positive, got %v", maxNorm)
		}
		var sq float64
		for _, p := range params {
			if g := p.Grad(); g != nil {
				n := floats.Norm(g, 2)
				sq += n * n
			}
		}
		total := math.Sqrt(sq)
		coef := maxNorm / (total + 1e-6)
		if coef >= 1 {
			return nil
		}
		for _, p := range params {
			if g := p.Grad(); g != nil {
				floats.Scale(coef, g)
			}
		}
		return nil
	}
}

// ClipGradValue clamps every gradient element into [-limit, limit].
func ClipGradValue(limit float64) ClipFunc {
	return func(params []Parameter) error {
		if limit < 0 {
			return errors.Errorf("clip value must be non-negative, got %v", limit)
		}
		for _, p := range params {
			g := p.Grad()
			for i, v := range g {
				g[i] = math.Max(-limit, math.Min(limit, v))
			}
		}
		return nil
	}
}
