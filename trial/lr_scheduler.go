package trial

// StepMode tells the training loop when to step a wrapped LR scheduler.
type StepMode string

const (
	// StepBatch steps the scheduler after every optimizer step.
	StepBatch StepMode = "batch"
	// StepEpoch steps the scheduler at the end of every epoch.
	StepEpoch StepMode = "epoch"
	// StepManual leaves stepping to user code.
	StepManual StepMode = "manual"
)

// ValidStepModes is the set of recognized step mode names.
var ValidStepModes = map[StepMode]bool{StepBatch: true, StepEpoch: true, StepManual: true}

// IsValid reports whether m is a recognized step mode.
func (m StepMode) IsValid() bool { return ValidStepModes[m] }

// LRScheduler is a user scheduler tagged with its step mode.
type LRScheduler struct {
	scheduler LRSchedulerImpl
	mode      StepMode
}

// NewLRScheduler tags scheduler with mode. Prefer Context.WrapLRScheduler,
// which also validates the scheduler's optimizer.
func NewLRScheduler(scheduler LRSchedulerImpl, mode StepMode) *LRScheduler {
	return &LRScheduler{scheduler: scheduler, mode: mode}
}

func (s *LRScheduler) StepMode() StepMode         { return s.mode }
func (s *LRScheduler) Scheduler() LRSchedulerImpl { return s.scheduler }
func (s *LRScheduler) Optimizer() Optimizer       { return s.scheduler.Optimizer() }

// Step advances the underlying scheduler.
func (s *LRScheduler) Step() { s.scheduler.Step() }
