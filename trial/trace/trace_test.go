package trace

import (
	"testing"
)

func TestStepTrace_Record_AppendsEvent(t *testing.T) {
	// GIVEN a trace configured for steps
	st := NewStepTrace(TraceConfig{Level: TraceLevelSteps})

	// WHEN a step event is recorded
	st.Record(Event{Batch: 3, Kind: EventStep, Optimizer: 0, LossID: -1})

	// THEN the trace contains one event with correct data
	if len(st.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(st.Events))
	}
	if st.Events[0].Batch != 3 || st.Events[0].Kind != EventStep {
		t.Errorf("unexpected event %+v", st.Events[0])
	}
}

func TestStepTrace_LevelNone_DropsEvents(t *testing.T) {
	st := NewStepTrace(TraceConfig{Level: TraceLevelNone})
	st.Record(Event{Kind: EventBackward})
	if len(st.Events) != 0 {
		t.Errorf("expected no events at level none, got %d", len(st.Events))
	}
}

func TestStepTrace_NilTrace_RecordIsNoop(t *testing.T) {
	var st *StepTrace
	st.Record(Event{Kind: EventBackward})
	if st.Enabled() {
		t.Error("nil trace must report disabled")
	}
}

func TestIsValidTraceLevel(t *testing.T) {
	tests := []struct {
		level string
		want  bool
	}{
		{"", true},
		{"none", true},
		{"steps", true},
		{"decisions", false},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			if got := IsValidTraceLevel(tt.level); got != tt.want {
				t.Errorf("IsValidTraceLevel(%q) = %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}
