package screen

import "errors"

var (
	// ErrInvalidConfig is wrapped by every Config.Validate failure.
	ErrInvalidConfig = errors.New("invalid screening config")

	// ErrInvalidQuestionnaire is returned when questionnaire answers fail range
	// validation. Ratings are rejected, never clamped.
	ErrInvalidQuestionnaire = errors.New("invalid questionnaire")

	// ErrSessionNotStarted is returned by Step before Start has been called.
	ErrSessionNotStarted = errors.New("session not started")

	// ErrSessionTerminal is returned by Step once the session is complete or aborted.
	ErrSessionTerminal = errors.New("session already terminated")

	// ErrSessionNotComplete is returned when results are requested from a
	// session that did not reach the complete state.
	ErrSessionNotComplete = errors.New("session not complete")
)
