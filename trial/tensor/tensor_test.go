package tensor

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialkit/trialkit/trial"
	"github.com/trialkit/trialkit/trial/internal/testutil"
)

func fixedLinear() *Linear {
	l := NewLinear(2, 1, rand.New(rand.NewSource(1)))
	copy(l.Weight.Data(), []float64{0.5, -1})
	copy(l.Bias.Data(), []float64{0.25})
	return l
}

func TestLinear_Forward(t *testing.T) {
	l := fixedLinear()
	got := l.Forward([]float64{2, 1})
	// 0.5*2 - 1*1 + 0.25
	testutil.AssertFloat64Equal(t, "y", 0.25, got[0], 1e-12)
}

func TestLinear_To_TracksDevice(t *testing.T) {
	l := fixedLinear()
	require.NoError(t, l.To(trial.GPU(1)))
	assert.Equal(t, trial.GPU(1), l.Device())
	assert.Equal(t, trial.GPU(1), l.Weight.Device())
}

func TestMSELoss_GradientMatchesFiniteDifference(t *testing.T) {
	// GIVEN a fixed layer and batch
	l := fixedLinear()
	xs := [][]float64{{1, 2}, {-1, 0.5}}
	ys := [][]float64{{0.3}, {-0.7}}

	// WHEN backward runs
	loss, err := MSELoss(l, xs, ys)
	require.NoError(t, err)
	require.NoError(t, loss.Backward(trial.BackwardOptions{}))

	// THEN the analytic gradient matches a central difference
	const eps = 1e-6
	for i := range l.Weight.Data() {
		orig := l.Weight.Data()[i]
		l.Weight.Data()[i] = orig + eps
		up, _ := MSELoss(l, xs, ys)
		l.Weight.Data()[i] = orig - eps
		down, _ := MSELoss(l, xs, ys)
		l.Weight.Data()[i] = orig
		numeric := (up.Value() - down.Value()) / (2 * eps)
		testutil.AssertFloat64Equal(t, "dW", numeric, l.Weight.Grad()[i], 1e-5)
	}
}

func TestMSELoss_SecondBackwardWithoutRetain_Fails(t *testing.T) {
	l := fixedLinear()
	loss, err := MSELoss(l, [][]float64{{1, 1}}, [][]float64{{0}})
	require.NoError(t, err)

	require.NoError(t, loss.Backward(trial.BackwardOptions{RetainGraph: true}))
	require.NoError(t, loss.Backward(trial.BackwardOptions{}))
	assert.Error(t, loss.Backward(trial.BackwardOptions{}))
}

func TestMSELoss_Scaled_MultipliesGradient(t *testing.T) {
	plain := fixedLinear()
	loss, _ := MSELoss(plain, [][]float64{{1, 2}}, [][]float64{{1}})
	require.NoError(t, loss.Backward(trial.BackwardOptions{}))

	scaled := fixedLinear()
	loss2, _ := MSELoss(scaled, [][]float64{{1, 2}}, [][]float64{{1}})
	require.NoError(t, loss2.Scaled(128).Backward(trial.BackwardOptions{}))

	for i := range plain.Weight.Grad() {
		testutil.AssertFloat64Equal(t, "scaled dW", 128*plain.Weight.Grad()[i], scaled.Weight.Grad()[i], 1e-12)
	}
	testutil.AssertFloat64Equal(t, "scaled value", 128*loss2.Value(), loss2.Scaled(128).Value(), 1e-12)
}

func TestMSELoss_ShapeMismatch_Fails(t *testing.T) {
	_, err := MSELoss(fixedLinear(), [][]float64{{1}}, [][]float64{{1}})
	assert.Error(t, err)
	_, err = MSELoss(fixedLinear(), nil, nil)
	assert.Error(t, err)
}

func TestSGD_Step_AppliesLearningRate(t *testing.T) {
	p := NewParameter([]float64{1, 2})
	p.AccumulateGrad([]float64{0.5, -1})
	opt := NewSGD([]trial.Parameter{p}, 0.1, 0)

	require.NoError(t, opt.Step())
	testutil.AssertFloat64Equal(t, "p0", 0.95, p.Data()[0], 1e-12)
	testutil.AssertFloat64Equal(t, "p1", 2.1, p.Data()[1], 1e-12)

	opt.ZeroGrad()
	assert.Equal(t, []float64{0, 0}, p.Grad())
}

func TestSGD_Momentum_AccumulatesVelocity(t *testing.T) {
	p := NewParameter([]float64{0})
	opt := NewSGD([]trial.Parameter{p}, 1, 0.9)

	p.AccumulateGrad([]float64{1})
	require.NoError(t, opt.Step())
	require.NoError(t, opt.Step())

	// v1 = 1, v2 = 0.9 + 1
	testutil.AssertFloat64Equal(t, "p", -2.9, p.Data()[0], 1e-12)
}

func TestSGD_SkipsParametersWithoutGradient(t *testing.T) {
	p := NewParameter([]float64{3})
	opt := NewSGD([]trial.Parameter{p}, 1, 0)
	require.NoError(t, opt.Step())
	assert.Equal(t, 3.0, p.Data()[0])
}

func TestStepLR_DecaysEveryStepSize(t *testing.T) {
	opt := NewSGD(nil, 1, 0)
	opt.AddParamGroup(nil, 0.5)
	sched := NewStepLR(opt, 2, 0.1)
	assert.Same(t, opt, sched.Optimizer())

	sched.Step()
	assert.Equal(t, []float64{1, 0.5}, sched.LastLR())

	sched.Step()
	lrs := sched.LastLR()
	testutil.AssertFloat64Equal(t, "lr0", 0.1, lrs[0], 1e-12)
	testutil.AssertFloat64Equal(t, "lr1", 0.05, lrs[1], 1e-12)
}

func TestNewLinear_InitWithinBound(t *testing.T) {
	l := NewLinear(4, 3, rand.New(rand.NewSource(9)))
	bound := 1 / math.Sqrt(4)
	for _, w := range l.Weight.Data() {
		if math.Abs(w) > bound {
			t.Errorf("weight %v outside [-%v, %v]", w, bound, bound)
		}
	}
	assert.Len(t, Parameters(l), 2)
}
