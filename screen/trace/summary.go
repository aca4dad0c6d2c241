package trace

import "time"

// TraceSummary aggregates statistics from a SessionTrace.
type TraceSummary struct {
	Transitions       int
	CountedBlinks     int
	SuppressedBlinks  int
	IncompleteBlinks  int
	MeanBlinkDuration time.Duration // over counted blinks
	MaxBlinkDuration  time.Duration
	BlinksByPhase     map[string]int // phase → counted blinks
}

// Summarize computes aggregate statistics from a SessionTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SessionTrace) *TraceSummary {
	summary := &TraceSummary{
		BlinksByPhase: make(map[string]int),
	}
	if st == nil {
		return summary
	}

	summary.Transitions = len(st.Transitions)

	var total time.Duration
	for _, b := range st.Blinks {
		switch b.Outcome {
		case BlinkCounted:
			summary.CountedBlinks++
			summary.BlinksByPhase[b.Phase]++
			total += b.Duration
			if b.Duration > summary.MaxBlinkDuration {
				summary.MaxBlinkDuration = b.Duration
			}
		case BlinkSuppressed:
			summary.SuppressedBlinks++
		case BlinkIncomplete:
			summary.IncompleteBlinks++
		}
	}
	if summary.CountedBlinks > 0 {
		summary.MeanBlinkDuration = total / time.Duration(summary.CountedBlinks)
	}

	return summary
}
