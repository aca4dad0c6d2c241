package screen

import (
	"fmt"
	"time"
)

// PhaseKind names a state of the session state machine. Timed phases
// (baseline, flicker, pursuit) each own one PhaseRecord.
type PhaseKind string

const (
	PhaseInit     PhaseKind = "init"
	PhaseBaseline PhaseKind = "baseline"
	PhaseFlicker  PhaseKind = "flicker"
	PhasePursuit  PhaseKind = "pursuit"
	PhaseComplete PhaseKind = "complete"
	PhaseAborted  PhaseKind = "aborted"
)

// Terminal reports whether the state accepts no further frames.
func (p PhaseKind) Terminal() bool {
	return p == PhaseComplete || p == PhaseAborted
}

// Timed reports whether the state is one of the fixed-duration phases.
func (p PhaseKind) Timed() bool {
	return p == PhaseBaseline || p == PhaseFlicker || p == PhasePursuit
}

// next returns the successor in the fixed phase order. Cancellation is the
// only path to PhaseAborted and is handled separately.
func (p PhaseKind) next() PhaseKind {
	switch p {
	case PhaseInit:
		return PhaseBaseline
	case PhaseBaseline:
		return PhaseFlicker
	case PhaseFlicker:
		return PhasePursuit
	case PhasePursuit:
		return PhaseComplete
	}
	panic(fmt.Sprintf("phase %q has no successor", p))
}

// PhaseRecord accumulates everything observed during one timed phase. It is
// created on phase entry, frozen on exit, and owned by the Session until
// handed out as a copy.
type PhaseRecord struct {
	Kind      PhaseKind `json:"kind"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	FrameCount        int `json:"frame_count"`         // every frame processed, valid or not
	ValidFrameCount   int `json:"valid_frame_count"`   // frames with a usable face
	DroppedFrameCount int `json:"dropped_frame_count"` // no face, tagged dropped, or malformed

	BlinkEvents         []BlinkEvent `json:"blink_events"`
	IncompleteBlink     *BlinkEvent  `json:"incomplete_blink,omitempty"` // closure cut by the phase boundary
	SuppressedBlinks    int          `json:"suppressed_blinks"`          // closures shorter than MinBlinkFrames
	ClosedFrameCount    int          `json:"closed_frame_count"`
	OffCenterFrameCount int          `json:"off_center_frame_count"`

	EARSamples     []float64       `json:"-"` // per valid frame, for quality diagnostics only
	PursuitSamples []PursuitSample `json:"-"`
	Pursuit        *PursuitResult  `json:"pursuit,omitempty"` // pursuit phase only

	Truncated bool `json:"truncated,omitempty"` // closed early by cancellation
	frozen    bool
}

func newPhaseRecord(kind PhaseKind, start time.Time) *PhaseRecord {
	return &PhaseRecord{
		Kind:        kind,
		StartTime:   start,
		BlinkEvents: make([]BlinkEvent, 0),
	}
}

// Duration returns the wall-clock length of the phase.
func (r PhaseRecord) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// BlinkCount returns the number of completed blinks. The incomplete closure at
// the phase boundary is excluded.
func (r PhaseRecord) BlinkCount() int {
	return len(r.BlinkEvents)
}

// Frozen reports whether the phase has been closed.
func (r PhaseRecord) Frozen() bool {
	return r.frozen
}

func (r *PhaseRecord) freeze(end time.Time) {
	if r.frozen {
		panic(fmt.Sprintf("phase record %q frozen twice", r.Kind))
	}
	r.EndTime = end
	r.frozen = true
}

// clone returns a deep copy so callers never alias session-owned slices.
func (r PhaseRecord) clone() PhaseRecord {
	out := r
	out.BlinkEvents = append([]BlinkEvent(nil), r.BlinkEvents...)
	out.EARSamples = append([]float64(nil), r.EARSamples...)
	out.PursuitSamples = append([]PursuitSample(nil), r.PursuitSamples...)
	if r.IncompleteBlink != nil {
		ev := *r.IncompleteBlink
		out.IncompleteBlink = &ev
	}
	if r.Pursuit != nil {
		p := *r.Pursuit
		out.Pursuit = &p
	}
	return out
}
