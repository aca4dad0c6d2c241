// Package screen provides the screening metrics engine for the light-sensitivity
// and oculomotor screen.
//
// # Reading Guide
//
// Start with these files to understand the engine:
//   - session.go: the phase state machine (init → baseline → flicker → pursuit → complete/aborted)
//   - features.go: per-frame landmark → feature conversion (EAR, gaze offset)
//   - metrics.go: reduction of frozen phase records into SessionMetrics
//   - risk.go: the bounded, explainable risk score
//
// # Data Flow
//
// Data flows strictly downward within a session:
//
//	LandmarkFrame → FeatureSample → per-frame detector updates → PhaseRecord → SessionMetrics → RiskAssessment
//
// The engine is single-threaded and synchronous. Session.Step processes one
// observation to completion before the next is accepted; the only concurrent
// entry point is Session.Cancel, which sets a flag that Step polls once per frame.
//
// # Sub-packages
//   - screen/clock/: wall-clock abstraction (real, manual/replay)
//   - screen/trace/: optional per-session event trace
//   - screen/synth/: deterministic synthetic landmark streams
//   - screen/source/: JSON-lines replay of recorded streams
//   - screen/store/: SQLite store for derived session results
//
// The engine produces descriptive metrics and an advisory score. It is not a
// diagnostic classifier.
package screen
