package trace

// TraceLevel controls the verbosity of session tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelEvents captures phase transitions and every blink decision.
	TraceLevelEvents TraceLevel = "events"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:   true,
	TraceLevelEvents: true,
	"":               true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// SessionTrace collects event records during one screening session.
type SessionTrace struct {
	Config      TraceConfig
	Transitions []TransitionRecord
	Blinks      []BlinkRecord
}

// NewSessionTrace creates a SessionTrace ready for recording.
func NewSessionTrace(config TraceConfig) *SessionTrace {
	return &SessionTrace{
		Config:      config,
		Transitions: make([]TransitionRecord, 0),
		Blinks:      make([]BlinkRecord, 0),
	}
}

// Enabled reports whether records should be collected. Safe on a nil trace.
func (st *SessionTrace) Enabled() bool {
	return st != nil && st.Config.Level == TraceLevelEvents
}

// RecordTransition appends a phase transition record.
func (st *SessionTrace) RecordTransition(record TransitionRecord) {
	st.Transitions = append(st.Transitions, record)
}

// RecordBlink appends a blink decision record.
func (st *SessionTrace) RecordBlink(record BlinkRecord) {
	st.Blinks = append(st.Blinks, record)
}
