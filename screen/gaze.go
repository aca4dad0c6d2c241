package screen

// GazeTracker classifies each valid frame as centred or off-centre. There is
// no hysteresis: gaze aversion is measured as prevalence, not as events.
type GazeTracker struct {
	threshold float64
}

// NewGazeTracker creates a tracker for the given configuration.
func NewGazeTracker(cfg GazeConfig) *GazeTracker {
	return &GazeTracker{threshold: cfg.OffCenterThreshold}
}

// OffCenter reports whether the sample's gaze offset magnitude exceeds the
// threshold. Invalid samples are never off-centre.
func (g *GazeTracker) OffCenter(s FeatureSample) bool {
	return s.Valid && s.Gaze.Magnitude() > g.threshold
}
