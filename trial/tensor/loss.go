package tensor

import (
	"github.com/pkg/errors"

	"github.com/trialkit/trialkit/trial"
)

// graph tracks whether the buffers of a forward pass were released.
type graph struct {
	freed bool
}

// mseLoss is the mean squared error of a Linear layer over a batch.
// Predictions are computed eagerly; Backward accumulates dL/dW and dL/db.
type mseLoss struct {
	model *Linear
	xs    [][]float64
	ys    [][]float64
	preds [][]float64
	value float64
	scale float64
	graph *graph
}

// MSELoss runs the forward pass of model over the batch and returns the mean
// squared error against targets.
func MSELoss(model *Linear, xs, ys [][]float64) (trial.Loss, error) {
	if len(xs) == 0 || len(xs) != len(ys) {
		return nil, errors.Errorf("batch has %d inputs and %d targets", len(xs), len(ys))
	}
	l := &mseLoss{model: model, xs: xs, ys: ys, scale: 1, graph: &graph{}}
	var sum float64
	for n, x := range xs {
		if len(x) != model.In || len(ys[n]) != model.Out {
			return nil, errors.Errorf("sample %d has shape (%d, %d), want (%d, %d)",
				n, len(x), len(ys[n]), model.In, model.Out)
		}
		pred := model.Forward(x)
		for o, p := range pred {
			d := p - ys[n][o]
			sum += d * d
		}
		l.preds = append(l.preds, pred)
	}
	l.value = sum / float64(len(xs)*model.Out)
	return l, nil
}

func (l *mseLoss) Value() float64 { return l.value * l.scale }

func (l *mseLoss) Scaled(factor float64) trial.Loss {
	scaled := *l
	scaled.scale *= factor
	return &scaled
}

func (l *mseLoss) Backward(opts trial.BackwardOptions) error {
	if l.graph.freed {
		return errors.New("trying to backward through the graph a second time; set RetainGraph on the first call")
	}
	upstream := l.scale
	if opts.Gradient != nil {
		if len(opts.Gradient) != 1 {
			return errors.Errorf("gradient for a scalar loss must have one element, got %d", len(opts.Gradient))
		}
		upstream *= opts.Gradient[0]
	}

	m := l.model
	norm := 2 * upstream / float64(len(l.xs)*m.Out)
	dw := make([]float64, m.In*m.Out)
	db := make([]float64, m.Out)
	for n, x := range l.xs {
		for o := 0; o < m.Out; o++ {
			d := norm * (l.preds[n][o] - l.ys[n][o])
			db[o] += d
			row := dw[o*m.In : (o+1)*m.In]
			for i, xi := range x {
				row[i] += d * xi
			}
		}
	}
	m.Weight.AccumulateGrad(dw)
	m.Bias.AccumulateGrad(db)

	if !opts.RetainGraph && !opts.CreateGraph {
		l.graph.freed = true
	}
	return nil
}
