package screen

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Quality thresholds. Crossing one adds a caveat; none of them aborts a session.
const (
	MinDetectionRate  = 0.5  // valid / processed frames per phase
	MinPlausibleEAR   = 0.10 // mean EAR outside [Min,Max] suggests bad lighting or pose
	MaxPlausibleEAR   = 0.50
	MinBaselineBlinks = 5.0 // blinks/min; lower usually means missed detections
)

// PhaseQuality describes input quality for one phase.
type PhaseQuality struct {
	Phase         PhaseKind `json:"phase"`
	Frames        int       `json:"frames"`
	ValidFrames   int       `json:"valid_frames"`
	DroppedFrames int       `json:"dropped_frames"`
	DetectionRate float64   `json:"detection_rate"`
	EARMean       float64   `json:"ear_mean"`
	EARMin        float64   `json:"ear_min"`
	EARMax        float64   `json:"ear_max"`
}

// QualityReport carries per-phase diagnostics and user-facing caveats.
type QualityReport struct {
	Phases  []PhaseQuality `json:"phases"`
	Caveats []string       `json:"caveats,omitempty"`
}

// AssessQuality inspects records (and metrics, when the session completed)
// for conditions that make results less reliable.
func AssessQuality(records []PhaseRecord, m *SessionMetrics) QualityReport {
	var q QualityReport
	for _, r := range records {
		pq := PhaseQuality{
			Phase:         r.Kind,
			Frames:        r.FrameCount,
			ValidFrames:   r.ValidFrameCount,
			DroppedFrames: r.DroppedFrameCount,
		}
		if r.FrameCount > 0 {
			pq.DetectionRate = float64(r.ValidFrameCount) / float64(r.FrameCount)
		}
		if len(r.EARSamples) > 0 {
			pq.EARMean = stat.Mean(r.EARSamples, nil)
			pq.EARMin = floats.Min(r.EARSamples)
			pq.EARMax = floats.Max(r.EARSamples)
		}
		q.Phases = append(q.Phases, pq)

		switch {
		case r.FrameCount == 0 || r.ValidFrameCount == 0:
			q.Caveats = append(q.Caveats, fmt.Sprintf("%s: no face detected; eye tracking did not work", r.Kind))
			continue
		case pq.DetectionRate < MinDetectionRate:
			q.Caveats = append(q.Caveats, fmt.Sprintf("%s: low face detection rate (%.0f%%); results may be unreliable",
				r.Kind, pq.DetectionRate*100))
		}
		if pq.EARMean < MinPlausibleEAR || pq.EARMean > MaxPlausibleEAR {
			q.Caveats = append(q.Caveats, fmt.Sprintf("%s: unusual EAR range (%.3f-%.3f); check lighting and positioning",
				r.Kind, pq.EARMin, pq.EARMax))
		}
	}

	if m == nil {
		return q
	}
	if m.BaselineBlinkRate.Available && m.BaselineBlinkRate.Value < MinBaselineBlinks {
		q.Caveats = append(q.Caveats, fmt.Sprintf("very low baseline blink rate (%.1f/min); possible measurement artifact",
			m.BaselineBlinkRate.Value))
	}
	if !m.PursuitTrackingError.Available {
		reason := "no pursuit data"
		if m.Pursuit != nil && m.Pursuit.Reason != "" {
			reason = m.Pursuit.Reason
		}
		q.Caveats = append(q.Caveats, "smooth pursuit metrics unavailable: "+reason)
	} else if !m.PursuitLag.Available {
		q.Caveats = append(q.Caveats, "pursuit lag could not be estimated within the search window")
	}
	return q
}
