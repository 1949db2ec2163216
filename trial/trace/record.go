package trace

// EventKind names a step-cycle event.
type EventKind string

const (
	EventBackward    EventKind = "backward"
	EventSynchronize EventKind = "synchronize"
	EventAverage     EventKind = "average"
	EventClip        EventKind = "clip"
	EventStep        EventKind = "step"
	EventZeroGrad    EventKind = "zero_grad"
)

// Event captures a single step-cycle event.
type Event struct {
	Batch     int
	Kind      EventKind
	Optimizer int // index of the optimizer in wrapping order; -1 if not optimizer-specific
	LossID    int // loss id under mixed precision; -1 otherwise
	Scaled    bool
}
