package screen

import (
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

// EyeState is the blink detector's hysteresis state.
type EyeState string

const (
	EyeOpen   EyeState = "open"
	EyeClosed EyeState = "closed"
)

// BlinkEvent is a closure that ended, either by reopening (complete) or by a
// phase boundary (incomplete). Never mutated after creation.
type BlinkEvent struct {
	Onset      time.Time     `json:"onset"`
	Duration   time.Duration `json:"duration"`
	Frames     int           `json:"frames"` // valid frames spent closed
	Incomplete bool          `json:"incomplete,omitempty"`
}

// BlinkUpdate reports what a single sample did to the detector.
type BlinkUpdate struct {
	State      EyeState
	Closed     bool        // the sample was spent in CLOSED; counts toward closed time
	// ClosedFrames is how many valid samples this update adds to closed time.
	// On entering CLOSED it includes the debounce samples before it.
	ClosedFrames int
	Event      *BlinkEvent // set on every CLOSED→OPEN transition
	Suppressed bool        // Event lasted fewer than MinBlinkFrames and is not a blink
}

// BlinkDetector is the OPEN/CLOSED state machine driven by combined EAR.
// One detector lives for the whole session; state persists across frames.
type BlinkDetector struct {
	cfg       BlinkConfig
	threshold float64
	locked    bool // threshold calibrated; no further changes allowed

	state        EyeState
	below        int // consecutive under-threshold valid samples
	firstBelow   time.Time
	closedSince  time.Time
	closedFrames int
}

// NewBlinkDetector creates a detector in the OPEN state using the reference threshold.
func NewBlinkDetector(cfg BlinkConfig) *BlinkDetector {
	return &BlinkDetector{cfg: cfg, threshold: cfg.EARThreshold, state: EyeOpen}
}

// State returns the current eye state.
func (d *BlinkDetector) State() EyeState { return d.state }

// Threshold returns the EAR threshold in effect.
func (d *BlinkDetector) Threshold() float64 { return d.threshold }

// Calibrate replaces the reference threshold with a session-scoped calibrated
// value. It may be called at most once per detector.
func (d *BlinkDetector) Calibrate(threshold float64) error {
	if d.locked {
		return fmt.Errorf("blink threshold already calibrated to %.3f", d.threshold)
	}
	if threshold <= 0 || math.IsNaN(threshold) {
		return fmt.Errorf("calibrated threshold must be positive, got %f", threshold)
	}
	d.threshold = threshold
	d.locked = true
	return nil
}

// Update advances the state machine by one sample. Invalid samples leave the
// state, counters, and closed time untouched.
func (d *BlinkDetector) Update(s FeatureSample) BlinkUpdate {
	if !s.Valid {
		return BlinkUpdate{State: d.state}
	}

	if s.EAR < d.threshold {
		if d.below == 0 {
			d.firstBelow = s.Timestamp
		}
		d.below++
		switch {
		case d.state == EyeClosed:
			d.closedFrames++
			return BlinkUpdate{State: d.state, Closed: true, ClosedFrames: 1}
		case d.below >= d.cfg.EnterClosedFrames:
			// the closure began at the first under-threshold sample
			d.state = EyeClosed
			d.closedSince = d.firstBelow
			d.closedFrames = d.below
			logrus.Tracef("eye closed at %s (EAR %.3f < %.3f)", d.firstBelow.Format(time.RFC3339Nano), s.EAR, d.threshold)
			return BlinkUpdate{State: d.state, Closed: true, ClosedFrames: d.below}
		}
		return BlinkUpdate{State: d.state}
	}

	d.below = 0
	if d.state == EyeOpen {
		return BlinkUpdate{State: d.state}
	}

	ev := BlinkEvent{
		Onset:    d.closedSince,
		Duration: s.Timestamp.Sub(d.closedSince),
		Frames:   d.closedFrames,
	}
	d.reset()
	if ev.Frames < d.cfg.MinBlinkFrames {
		logrus.Debugf("suppressed %d-frame closure (min %d)", ev.Frames, d.cfg.MinBlinkFrames)
		return BlinkUpdate{State: d.state, Event: &ev, Suppressed: true}
	}
	return BlinkUpdate{State: d.state, Event: &ev}
}

// Flush closes out a closure still active at a phase boundary. The returned
// event is marked incomplete; the detector returns to OPEN.
func (d *BlinkDetector) Flush(at time.Time) (BlinkEvent, bool) {
	if d.state != EyeClosed {
		d.below = 0
		return BlinkEvent{}, false
	}
	ev := BlinkEvent{
		Onset:      d.closedSince,
		Duration:   at.Sub(d.closedSince),
		Frames:     d.closedFrames,
		Incomplete: true,
	}
	d.reset()
	return ev, true
}

func (d *BlinkDetector) reset() {
	d.state = EyeOpen
	d.below = 0
	d.firstBelow = time.Time{}
	d.closedFrames = 0
	d.closedSince = time.Time{}
}

// calibration collects open-eye EAR during the first baseline frames and
// produces a threshold exactly once.
type calibration struct {
	cfg  AdaptiveConfig
	ears []float64
	done bool
}

func newCalibration(cfg AdaptiveConfig) *calibration {
	if !cfg.Enabled {
		return nil
	}
	return &calibration{cfg: cfg, ears: make([]float64, 0, cfg.Frames)}
}

// observe records one EAR value and returns the threshold once enough samples
// have been seen. Subsequent calls return ok=false.
func (c *calibration) observe(ear float64) (threshold float64, ok bool) {
	if c == nil || c.done {
		return 0, false
	}
	c.ears = append(c.ears, ear)
	if len(c.ears) < c.cfg.Frames {
		return 0, false
	}
	c.done = true
	var sum float64
	for _, v := range c.ears {
		sum += v
	}
	mean := sum / float64(len(c.ears))
	return math.Max(mean*c.cfg.Ratio, c.cfg.Floor), true
}
