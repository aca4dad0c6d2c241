// Package trace provides event-trace recording for screening sessions.
// This package has no dependencies on screen/; it stores pure data types.
package trace

import "time"

// Blink outcomes recorded in BlinkRecord.Outcome.
const (
	BlinkCounted    = "counted"
	BlinkSuppressed = "suppressed"
	BlinkIncomplete = "incomplete"
)

// TransitionRecord captures a single phase transition.
type TransitionRecord struct {
	From   string
	To     string
	At     time.Time
	Reason string // "start", "timer", "cancelled", "source exhausted"
}

// BlinkRecord captures a single blink detector decision.
type BlinkRecord struct {
	Phase    string
	Onset    time.Time
	Duration time.Duration
	Frames   int
	Outcome  string
}
