// Package trace records the per-batch step cycle of a trial context
// (backward, synchronize, average, clip, step, zero-grad) for ordering analysis.
// It stores pure data types and does not depend on package trial.
package trace

// TraceLevel controls the verbosity of step-cycle tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelSteps captures every step-cycle event.
	TraceLevelSteps TraceLevel = "steps"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:  true,
	TraceLevelSteps: true,
	"":              true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// StepTrace collects step-cycle events of one worker.
type StepTrace struct {
	Config TraceConfig
	Events []Event
}

// NewStepTrace creates a StepTrace ready for recording.
func NewStepTrace(config TraceConfig) *StepTrace {
	return &StepTrace{
		Config: config,
		Events: make([]Event, 0),
	}
}

// Enabled reports whether events are kept. Safe on nil traces.
func (st *StepTrace) Enabled() bool {
	return st != nil && st.Config.Level == TraceLevelSteps
}

// Record appends an event when tracing is enabled. Safe on nil traces.
func (st *StepTrace) Record(event Event) {
	if !st.Enabled() {
		return
	}
	st.Events = append(st.Events, event)
}
