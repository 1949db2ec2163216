package trace

// TraceSummary aggregates statistics from a StepTrace.
type TraceSummary struct {
	TotalEvents     int
	KindCounts      map[EventKind]int
	StepCycles      int // optimizer steps taken
	OrderViolations int // step cycles where sync, clip and step ran out of order
}

// cycleRank orders the events of one optimizer within a batch.
var cycleRank = map[EventKind]int{
	EventSynchronize: 0,
	EventAverage:     1,
	EventClip:        2,
	EventStep:        3,
	EventZeroGrad:    4,
}

// Summarize computes aggregate statistics from a StepTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *StepTrace) *TraceSummary {
	summary := &TraceSummary{
		KindCounts: make(map[EventKind]int),
	}
	if st == nil {
		return summary
	}

	type cycleKey struct{ batch, optimizer int }
	last := make(map[cycleKey]int)
	violated := make(map[cycleKey]bool)

	summary.TotalEvents = len(st.Events)
	for _, e := range st.Events {
		summary.KindCounts[e.Kind]++
		if e.Kind == EventStep {
			summary.StepCycles++
		}
		rank, ok := cycleRank[e.Kind]
		if !ok || e.Optimizer < 0 {
			continue
		}
		key := cycleKey{e.Batch, e.Optimizer}
		if prev, seen := last[key]; seen && rank < prev && !violated[key] {
			violated[key] = true
			summary.OrderViolations++
		}
		last[key] = rank
	}
	return summary
}
