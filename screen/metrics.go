// Reduces frozen phase records into session-level rates and fractions.

package screen

import (
	"encoding/json"
	"fmt"
	"time"
)

// Metric is a value that may be unavailable (zero denominator, insufficient
// data). Unavailable metrics contribute no points when scored.
type Metric struct {
	Value     float64
	Available bool
}

// Value wraps an available measurement.
func Value(v float64) Metric { return Metric{Value: v, Available: true} }

// Unavailable returns the unavailable metric.
func Unavailable() Metric { return Metric{} }

// Format renders the metric with the given verb, or "n/a" when unavailable.
func (m Metric) Format(verb string) string {
	if !m.Available {
		return "n/a"
	}
	return fmt.Sprintf(verb, m.Value)
}

// MarshalJSON encodes an unavailable metric as null.
func (m Metric) MarshalJSON() ([]byte, error) {
	if !m.Available {
		return []byte("null"), nil
	}
	return json.Marshal(m.Value)
}

// UnmarshalJSON decodes null as unavailable.
func (m *Metric) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = Unavailable()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = Value(v)
	return nil
}

// SessionMetrics is computed once per completed session and is, with the
// questionnaire, the sole input to the scorer.
type SessionMetrics struct {
	BaselineBlinkRate     Metric `json:"baseline_blink_rate"` // blinks per minute
	FlickerBlinkRate      Metric `json:"flicker_blink_rate"`
	BlinkRateDelta        Metric `json:"blink_rate_delta"` // flicker - baseline; may be negative
	EyeClosedFraction     Metric `json:"eye_closed_fraction"`
	GazeOffCenterFraction Metric `json:"gaze_off_center_fraction"`
	PursuitTrackingError  Metric `json:"pursuit_tracking_error"` // RMS, normalized units
	PursuitLag            Metric `json:"pursuit_lag"`            // seconds

	Pursuit       *PursuitResult `json:"pursuit,omitempty"`
	DroppedFrames int            `json:"dropped_frames"`
}

// BlinkRate returns blinks per minute over d, unavailable for a non-positive duration.
func BlinkRate(count int, d time.Duration) Metric {
	if d <= 0 {
		return Unavailable()
	}
	return Value(float64(count) / d.Seconds() * 60)
}

// Fraction returns num/den, unavailable when den is zero.
func Fraction(num, den int) Metric {
	if den <= 0 {
		return Unavailable()
	}
	return Value(float64(num) / float64(den))
}

// Aggregate reduces a completed phase list to SessionMetrics. It is a pure
// function of its input: the same records always yield the same metrics.
// Closed and off-centre fractions span baseline and flicker only.
func Aggregate(records []PhaseRecord) SessionMetrics {
	byKind := make(map[PhaseKind]PhaseRecord, len(records))
	var m SessionMetrics
	for _, r := range records {
		if _, dup := byKind[r.Kind]; dup {
			panic(fmt.Sprintf("Aggregate: duplicate %q phase record", r.Kind))
		}
		byKind[r.Kind] = r
		m.DroppedFrames += r.DroppedFrameCount
	}

	baseline, hasBaseline := byKind[PhaseBaseline]
	flicker, hasFlicker := byKind[PhaseFlicker]
	if hasBaseline {
		m.BaselineBlinkRate = BlinkRate(baseline.BlinkCount(), baseline.Duration())
	}
	if hasFlicker {
		m.FlickerBlinkRate = BlinkRate(flicker.BlinkCount(), flicker.Duration())
	}
	if m.BaselineBlinkRate.Available && m.FlickerBlinkRate.Available {
		m.BlinkRateDelta = Value(m.FlickerBlinkRate.Value - m.BaselineBlinkRate.Value)
	}

	var closed, offCenter, valid int
	for _, r := range []PhaseRecord{baseline, flicker} {
		closed += r.ClosedFrameCount
		offCenter += r.OffCenterFrameCount
		valid += r.ValidFrameCount
	}
	m.EyeClosedFraction = Fraction(closed, valid)
	m.GazeOffCenterFraction = Fraction(offCenter, valid)

	if pursuit, ok := byKind[PhasePursuit]; ok && pursuit.Pursuit != nil {
		res := *pursuit.Pursuit
		m.Pursuit = &res
		if res.Available {
			m.PursuitTrackingError = Value(res.RMSError)
			if res.LagAvailable {
				m.PursuitLag = Value(res.Lag.Seconds())
			}
		}
	}
	return m
}
