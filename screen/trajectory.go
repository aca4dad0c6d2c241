package screen

import (
	"math"
	"time"
)

// Sinusoid is the one-dimensional pursuit target path in normalized
// coordinates. The stimulus renderer owns the real trajectory; this type
// reproduces it for synthetic sessions and offline replay.
type Sinusoid struct {
	Amplitude   float64
	FrequencyHz float64
	Center      float64
}

// NewSinusoid builds a trajectory from configuration.
func NewSinusoid(cfg TrajectoryConfig) Sinusoid {
	return Sinusoid{Amplitude: cfg.Amplitude, FrequencyHz: cfg.FrequencyHz, Center: cfg.Center}
}

// Position returns the target position elapsed after the pursuit phase began.
func (s Sinusoid) Position(elapsed time.Duration) float64 {
	return s.Center + s.Amplitude*math.Sin(2*math.Pi*s.FrequencyHz*elapsed.Seconds())
}
