package trial

import "github.com/pkg/errors"

// callLog records the order of backend calls across test doubles.
type callLog struct {
	calls []string
}

func (l *callLog) add(call string) {
	if l != nil {
		l.calls = append(l.calls, call)
	}
}

type fakeParam struct {
	data []float64
	grad []float64
}

func newFakeParam(data ...float64) *fakeParam { return &fakeParam{data: data} }

func (p *fakeParam) Data() []float64 { return p.data }
func (p *fakeParam) Grad() []float64 { return p.grad }
func (p *fakeParam) ZeroGrad() {
	for i := range p.grad {
		p.grad[i] = 0
	}
}

type fakeModel struct {
	named  []NamedParameter
	device *Device
	toErr  error
}

func newFakeModel(params ...*fakeParam) *fakeModel {
	m := &fakeModel{}
	for i, p := range params {
		m.named = append(m.named, NamedParameter{Name: string(rune('a' + i)), Param: p})
	}
	return m
}

func (m *fakeModel) NamedParameters() []NamedParameter { return m.named }

func (m *fakeModel) To(device Device) error {
	if m.toErr != nil {
		return m.toErr
	}
	m.device = &device
	return nil
}

type fakeOptimizer struct {
	groups  []*ParamGroup
	steps   int
	zeroed  int
	onStep  func()
	log     *callLog
	stepErr error
}

func newFakeOptimizer(params ...Parameter) *fakeOptimizer {
	return &fakeOptimizer{groups: []*ParamGroup{{Params: params, LR: 0.1}}}
}

func (o *fakeOptimizer) ParamGroups() []*ParamGroup { return o.groups }

func (o *fakeOptimizer) Step() error {
	o.log.add("step")
	if o.onStep != nil {
		o.onStep()
	}
	o.steps++
	return o.stepErr
}

func (o *fakeOptimizer) ZeroGrad() {
	o.log.add("zero_grad")
	o.zeroed++
	for _, g := range o.groups {
		for _, p := range g.Params {
			p.ZeroGrad()
		}
	}
}

// fakeDistOptimizer synchronizes implicitly in Step unless skipped.
type fakeDistOptimizer struct {
	*fakeOptimizer
	opts     DistributedOptimizerOptions
	named    []NamedParameter
	syncs    int
	skipping bool
}

func (o *fakeDistOptimizer) Synchronize() error {
	o.log.add("synchronize")
	o.syncs++
	return nil
}

func (o *fakeDistOptimizer) SkipSynchronize(fn func() error) error {
	o.skipping = true
	defer func() { o.skipping = false }()
	return fn()
}

func (o *fakeDistOptimizer) Step() error {
	if !o.skipping {
		if err := o.Synchronize(); err != nil {
			return err
		}
	}
	return o.fakeOptimizer.Step()
}

type fakeDistributed struct {
	rank, localRank, size int
	bound                 *Device
	bindErr               error
	log                   *callLog
	optimizers            []*fakeDistOptimizer
	broadcasts            [][]NamedParameter
}

func (d *fakeDistributed) Rank() int      { return d.rank }
func (d *fakeDistributed) LocalRank() int { return d.localRank }
func (d *fakeDistributed) Size() int      { return d.size }

func (d *fakeDistributed) SetDevice(device Device) error {
	if d.bindErr != nil {
		return d.bindErr
	}
	d.bound = &device
	return nil
}

func (d *fakeDistributed) DistributedOptimizer(opt Optimizer, named []NamedParameter, opts DistributedOptimizerOptions) (DistributedOptimizer, error) {
	inner, ok := opt.(*fakeOptimizer)
	if !ok {
		return nil, errors.New("unexpected optimizer type")
	}
	inner.log = d.log
	dopt := &fakeDistOptimizer{fakeOptimizer: inner, opts: opts, named: named}
	d.optimizers = append(d.optimizers, dopt)
	return dopt, nil
}

func (d *fakeDistributed) BroadcastParameters(named []NamedParameter, root int) error {
	d.broadcasts = append(d.broadcasts, named)
	return nil
}

// fakeLoss adds value*scale to the gradient of every parameter it holds.
type fakeLoss struct {
	params    []*fakeParam
	value     float64
	scale     float64
	log       *callLog
	backwards *int
	lastOpts  *BackwardOptions
}

func newFakeLoss(log *callLog, value float64, params ...*fakeParam) *fakeLoss {
	return &fakeLoss{params: params, value: value, scale: 1, log: log, backwards: new(int), lastOpts: &BackwardOptions{}}
}

func (l *fakeLoss) Value() float64 { return l.value * l.scale }

func (l *fakeLoss) Backward(opts BackwardOptions) error {
	l.log.add("backward")
	*l.backwards++
	*l.lastOpts = opts
	for _, p := range l.params {
		if p.grad == nil {
			p.grad = make([]float64, len(p.data))
		}
		for i := range p.grad {
			p.grad[i] += l.value * l.scale
		}
	}
	return nil
}

func (l *fakeLoss) Scaled(factor float64) Loss {
	scaled := *l
	scaled.scale *= factor
	return &scaled
}

// fakeMixedPrecision scales losses by 2 and records its calls.
type fakeMixedPrecision struct {
	log         *callLog
	initialized int
	opts        AMPOptions
	lossIDs     []int
	replace     bool
	initErr     error
}

func (mp *fakeMixedPrecision) Initialize(models []Model, optimizers []Optimizer, opts AMPOptions) ([]Model, []Optimizer, error) {
	mp.initialized++
	mp.opts = opts
	if mp.initErr != nil {
		return nil, nil, mp.initErr
	}
	if !mp.replace {
		return models, optimizers, nil
	}
	outModels := make([]Model, len(models))
	for i, m := range models {
		outModels[i] = &fakeModel{named: m.NamedParameters()}
	}
	return outModels, optimizers, nil
}

func (mp *fakeMixedPrecision) ScaleLoss(loss Loss, optimizers []Optimizer, lossID int, backward func(Loss) error) error {
	mp.log.add("scale_loss")
	mp.lossIDs = append(mp.lossIDs, lossID)
	if err := backward(loss.Scaled(2)); err != nil {
		return err
	}
	for _, opt := range optimizers {
		for _, p := range mp.MasterParams(opt) {
			g := p.Grad()
			for i := range g {
				g[i] /= 2
			}
		}
	}
	mp.log.add("unscale")
	return nil
}

func (mp *fakeMixedPrecision) MasterParams(opt Optimizer) []Parameter {
	return groupParams(opt)
}

type fakeScheduler struct {
	opt   Optimizer
	steps int
}

func (s *fakeScheduler) Optimizer() Optimizer { return s.opt }
func (s *fakeScheduler) Step()                { s.steps++ }

func gpuEnv(n int) Env {
	env := Env{}
	for i := 0; i < n; i++ {
		env.ContainerGPUs = append(env.ContainerGPUs, string(rune('0'+i)))
	}
	return env
}

func distributedConfig(aggFreq int) DistributedConfig {
	cfg := NewDistributedConfig(true)
	cfg.AggregationFrequency = aggFreq
	return cfg
}
