package screen

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PhaseConfig holds the wall-clock duration of each timed phase.
type PhaseConfig struct {
	Baseline time.Duration `yaml:"baseline"`
	Flicker  time.Duration `yaml:"flicker"`
	Pursuit  time.Duration `yaml:"pursuit"`
}

// Duration returns the configured duration of a timed phase, 0 otherwise.
func (c PhaseConfig) Duration(kind PhaseKind) time.Duration {
	switch kind {
	case PhaseBaseline:
		return c.Baseline
	case PhaseFlicker:
		return c.Flicker
	case PhasePursuit:
		return c.Pursuit
	}
	return 0
}

// Total returns the summed duration of all timed phases.
func (c PhaseConfig) Total() time.Duration {
	return c.Baseline + c.Flicker + c.Pursuit
}

// FeatureConfig groups landmark → feature parameters.
type FeatureConfig struct {
	FrameWidth  float64   `yaml:"frame_width"`  // pixels; EAR is computed in pixel space
	FrameHeight float64   `yaml:"frame_height"` // pixels
	UseIris     bool      `yaml:"use_iris"`     // prefer iris centres for gaze when supplied
	Eyes        EyeLayout `yaml:"eyes"`
}

// AdaptiveConfig controls the optional write-once EAR threshold calibration.
type AdaptiveConfig struct {
	Enabled bool    `yaml:"enabled"`
	Frames  int     `yaml:"frames"` // valid baseline frames sampled before locking
	Ratio   float64 `yaml:"ratio"`  // fraction of mean open-eye EAR treated as closed
	Floor   float64 `yaml:"floor"`  // lower bound on the calibrated threshold
}

// BlinkConfig groups eye-state detector parameters.
type BlinkConfig struct {
	EARThreshold      float64        `yaml:"ear_threshold"`
	EnterClosedFrames int            `yaml:"enter_closed_frames"` // consecutive under-threshold frames to enter CLOSED
	MinBlinkFrames    int            `yaml:"min_blink_frames"`    // frames a closure must last to count as a blink
	Adaptive          AdaptiveConfig `yaml:"adaptive"`
}

// GazeConfig groups gaze deviation parameters.
type GazeConfig struct {
	OffCenterThreshold float64 `yaml:"off_center_threshold"` // normalized offset magnitude
}

// TrajectoryConfig parameterizes the sinusoidal pursuit target.
type TrajectoryConfig struct {
	Amplitude   float64 `yaml:"amplitude"`
	FrequencyHz float64 `yaml:"frequency_hz"`
	Center      float64 `yaml:"center"`
}

// PursuitConfig groups smooth pursuit analysis parameters.
type PursuitConfig struct {
	Axis             string           `yaml:"axis"`               // "x" or "y": gaze component compared against the target
	MinValidFraction float64          `yaml:"min_valid_fraction"` // valid samples / pursuit frames below which metrics are unavailable
	MinSamples       int              `yaml:"min_samples"`
	MaxLag           time.Duration    `yaml:"max_lag"`         // cross-correlation search window (±)
	TrackingWindow   float64          `yaml:"tracking_window"` // |error| at or below which a sample counts as on-target
	Trajectory       TrajectoryConfig `yaml:"trajectory"`
}

// Band awards Points when a metric strictly exceeds Above.
type Band struct {
	Above  float64 `yaml:"above"`
	Points int     `yaml:"points"`
}

// RatingBand awards Points for subjective ratings within [Min, Max].
type RatingBand struct {
	Min    int `yaml:"min"`
	Max    int `yaml:"max"`
	Points int `yaml:"points"`
}

// ScoringConfig holds the threshold bands of the risk scorer.
type ScoringConfig struct {
	BlinkRateDelta    []Band       `yaml:"blink_rate_delta"`
	EyeClosedFraction []Band       `yaml:"eye_closed_fraction"`
	GazeOffCenter     []Band       `yaml:"gaze_off_center_fraction"`
	PursuitError      []Band       `yaml:"pursuit_tracking_error"`
	PursuitLagSeconds []Band       `yaml:"pursuit_lag_seconds"`
	SymptomPoints     int          `yaml:"symptom_points"`
	Subjective        []RatingBand `yaml:"subjective"`
	MaxScore          int          `yaml:"max_score"`
	ModerateAt        int          `yaml:"moderate_at"`
	ElevatedAt        int          `yaml:"elevated_at"`
	EscalateAt        int          `yaml:"escalate_at"`
}

// Config is the complete engine configuration. It is passed by value into each
// component at construction so concurrent sessions never share thresholds.
type Config struct {
	Phases   PhaseConfig   `yaml:"phases"`
	Features FeatureConfig `yaml:"features"`
	Blink    BlinkConfig   `yaml:"blink"`
	Gaze     GazeConfig    `yaml:"gaze"`
	Pursuit  PursuitConfig `yaml:"pursuit"`
	Scoring  ScoringConfig `yaml:"scoring"`
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return Config{
		Phases: PhaseConfig{
			Baseline: 8 * time.Second,
			Flicker:  15 * time.Second,
			Pursuit:  12 * time.Second,
		},
		Features: FeatureConfig{
			FrameWidth:  640,
			FrameHeight: 480,
			UseIris:     true,
			Eyes:        MediaPipeEyeLayout(),
		},
		Blink: BlinkConfig{
			EARThreshold:      0.25,
			EnterClosedFrames: 1,
			MinBlinkFrames:    2,
			Adaptive: AdaptiveConfig{
				Enabled: false,
				Frames:  30,
				Ratio:   0.70,
				Floor:   0.20,
			},
		},
		Gaze: GazeConfig{OffCenterThreshold: 0.30},
		Pursuit: PursuitConfig{
			Axis:             "y",
			MinValidFraction: 0.5,
			MinSamples:       30,
			MaxLag:           500 * time.Millisecond,
			TrackingWindow:   0.27,
			Trajectory: TrajectoryConfig{
				Amplitude:   2.0 / 3.0,
				FrequencyHz: 0.4,
				Center:      0,
			},
		},
		Scoring: DefaultScoringConfig(),
	}
}

// DefaultScoringConfig returns the reference scoring bands.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		BlinkRateDelta:    []Band{{Above: 10, Points: 1}, {Above: 20, Points: 2}},
		EyeClosedFraction: []Band{{Above: 0.10, Points: 1}, {Above: 0.15, Points: 2}},
		GazeOffCenter:     []Band{{Above: 0.30, Points: 1}, {Above: 0.50, Points: 2}},
		PursuitError:      []Band{{Above: 0.20, Points: 1}, {Above: 0.35, Points: 2}},
		PursuitLagSeconds: []Band{{Above: 0.20, Points: 1}},
		SymptomPoints:     1,
		Subjective: []RatingBand{
			{Min: 1, Max: 3, Points: 0},
			{Min: 4, Max: 6, Points: 1},
			{Min: 7, Max: 8, Points: 2},
			{Min: 9, Max: 10, Points: 3},
		},
		MaxScore:   10,
		ModerateAt: 4,
		ElevatedAt: 7,
		EscalateAt: 7,
	}
}

// LoadConfig reads a YAML file over DefaultConfig. Unknown keys are rejected
// so a typo never silently falls back to a default.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks that all fields in the config are usable.
func (c Config) Validate() error {
	if c.Phases.Baseline <= 0 || c.Phases.Flicker <= 0 || c.Phases.Pursuit <= 0 {
		return fmt.Errorf("%w: phases: durations must be positive, got %v/%v/%v",
			ErrInvalidConfig, c.Phases.Baseline, c.Phases.Flicker, c.Phases.Pursuit)
	}
	if err := c.Features.validate(); err != nil {
		return err
	}
	if err := c.Blink.validate(); err != nil {
		return err
	}
	if c.Gaze.OffCenterThreshold <= 0 || math.IsNaN(c.Gaze.OffCenterThreshold) {
		return fmt.Errorf("%w: gaze.off_center_threshold must be positive, got %f", ErrInvalidConfig, c.Gaze.OffCenterThreshold)
	}
	if err := c.Pursuit.validate(); err != nil {
		return err
	}
	return c.Scoring.validate()
}

func (c FeatureConfig) validate() error {
	if c.FrameWidth <= 0 || c.FrameHeight <= 0 {
		return fmt.Errorf("%w: features: frame size must be positive, got %gx%g", ErrInvalidConfig, c.FrameWidth, c.FrameHeight)
	}
	if len(c.Eyes.LeftEAR) != 6 || len(c.Eyes.RightEAR) != 6 {
		return fmt.Errorf("%w: features.eyes: EAR index sets must have 6 entries, got %d/%d",
			ErrInvalidConfig, len(c.Eyes.LeftEAR), len(c.Eyes.RightEAR))
	}
	if len(c.Eyes.LeftContour) == 0 || len(c.Eyes.RightContour) == 0 {
		return fmt.Errorf("%w: features.eyes: contour index sets must not be empty", ErrInvalidConfig)
	}
	for _, set := range [][]int{c.Eyes.LeftEAR, c.Eyes.RightEAR, c.Eyes.LeftContour, c.Eyes.RightContour} {
		for _, idx := range set {
			if idx < 0 || idx >= NumRefinedLandmarks {
				return fmt.Errorf("%w: features.eyes: landmark index %d outside [0,%d)", ErrInvalidConfig, idx, NumRefinedLandmarks)
			}
		}
	}
	// negative iris indices disable the iris path
	for _, idx := range []int{c.Eyes.LeftIris, c.Eyes.RightIris} {
		if idx >= NumRefinedLandmarks {
			return fmt.Errorf("%w: features.eyes: iris index %d outside the %d-point mesh", ErrInvalidConfig, idx, NumRefinedLandmarks)
		}
	}
	return nil
}

func (c BlinkConfig) validate() error {
	if c.EARThreshold <= 0 || c.EARThreshold >= 1 {
		return fmt.Errorf("%w: blink.ear_threshold must be in (0,1), got %f", ErrInvalidConfig, c.EARThreshold)
	}
	if c.EnterClosedFrames < 1 {
		return fmt.Errorf("%w: blink.enter_closed_frames must be >= 1, got %d", ErrInvalidConfig, c.EnterClosedFrames)
	}
	if c.MinBlinkFrames < 1 {
		return fmt.Errorf("%w: blink.min_blink_frames must be >= 1, got %d", ErrInvalidConfig, c.MinBlinkFrames)
	}
	if c.Adaptive.Enabled {
		if c.Adaptive.Frames < 1 {
			return fmt.Errorf("%w: blink.adaptive.frames must be >= 1, got %d", ErrInvalidConfig, c.Adaptive.Frames)
		}
		if c.Adaptive.Ratio <= 0 || c.Adaptive.Ratio >= 1 {
			return fmt.Errorf("%w: blink.adaptive.ratio must be in (0,1), got %f", ErrInvalidConfig, c.Adaptive.Ratio)
		}
		if c.Adaptive.Floor <= 0 || c.Adaptive.Floor >= 1 {
			return fmt.Errorf("%w: blink.adaptive.floor must be in (0,1), got %f", ErrInvalidConfig, c.Adaptive.Floor)
		}
	}
	return nil
}

func (c PursuitConfig) validate() error {
	if c.Axis != "x" && c.Axis != "y" {
		return fmt.Errorf("%w: pursuit.axis must be \"x\" or \"y\", got %q", ErrInvalidConfig, c.Axis)
	}
	if c.MinValidFraction < 0 || c.MinValidFraction > 1 {
		return fmt.Errorf("%w: pursuit.min_valid_fraction must be in [0,1], got %f", ErrInvalidConfig, c.MinValidFraction)
	}
	if c.MinSamples < 3 {
		return fmt.Errorf("%w: pursuit.min_samples must be >= 3, got %d", ErrInvalidConfig, c.MinSamples)
	}
	if c.MaxLag < 0 {
		return fmt.Errorf("%w: pursuit.max_lag must be non-negative, got %v", ErrInvalidConfig, c.MaxLag)
	}
	if c.TrackingWindow <= 0 {
		return fmt.Errorf("%w: pursuit.tracking_window must be positive, got %f", ErrInvalidConfig, c.TrackingWindow)
	}
	if c.Trajectory.FrequencyHz <= 0 {
		return fmt.Errorf("%w: pursuit.trajectory.frequency_hz must be positive, got %f", ErrInvalidConfig, c.Trajectory.FrequencyHz)
	}
	return nil
}

func (c ScoringConfig) validate() error {
	named := []struct {
		name  string
		bands []Band
	}{
		{"blink_rate_delta", c.BlinkRateDelta},
		{"eye_closed_fraction", c.EyeClosedFraction},
		{"gaze_off_center_fraction", c.GazeOffCenter},
		{"pursuit_tracking_error", c.PursuitError},
		{"pursuit_lag_seconds", c.PursuitLagSeconds},
	}
	for _, n := range named {
		if err := validateBands(n.name, n.bands); err != nil {
			return err
		}
	}
	if c.SymptomPoints < 0 {
		return fmt.Errorf("%w: scoring.symptom_points must be non-negative, got %d", ErrInvalidConfig, c.SymptomPoints)
	}
	covered := make(map[int]bool)
	for i, b := range c.Subjective {
		if b.Min < MinSubjectiveRating || b.Max > MaxSubjectiveRating || b.Min > b.Max {
			return fmt.Errorf("%w: scoring.subjective[%d]: range [%d,%d] outside [%d,%d]",
				ErrInvalidConfig, i, b.Min, b.Max, MinSubjectiveRating, MaxSubjectiveRating)
		}
		if b.Points < 0 {
			return fmt.Errorf("%w: scoring.subjective[%d]: points must be non-negative", ErrInvalidConfig, i)
		}
		for r := b.Min; r <= b.Max; r++ {
			if covered[r] {
				return fmt.Errorf("%w: scoring.subjective: rating %d covered twice", ErrInvalidConfig, r)
			}
			covered[r] = true
		}
	}
	if c.MaxScore <= 0 {
		return fmt.Errorf("%w: scoring.max_score must be positive, got %d", ErrInvalidConfig, c.MaxScore)
	}
	if c.ModerateAt <= 0 || c.ElevatedAt <= c.ModerateAt {
		return fmt.Errorf("%w: scoring: need 0 < moderate_at < elevated_at, got %d/%d", ErrInvalidConfig, c.ModerateAt, c.ElevatedAt)
	}
	if c.EscalateAt <= 0 {
		return fmt.Errorf("%w: scoring.escalate_at must be positive, got %d", ErrInvalidConfig, c.EscalateAt)
	}
	return nil
}

// validateBands requires strictly ascending thresholds with non-decreasing,
// non-negative points, which keeps every factor monotonic.
func validateBands(name string, bands []Band) error {
	for i, b := range bands {
		if b.Points < 0 {
			return fmt.Errorf("%w: scoring.%s[%d]: points must be non-negative", ErrInvalidConfig, name, i)
		}
		if i > 0 {
			prev := bands[i-1]
			if b.Above <= prev.Above || b.Points < prev.Points {
				return fmt.Errorf("%w: scoring.%s[%d]: bands must ascend (above %g/%g, points %d/%d)",
					ErrInvalidConfig, name, i, prev.Above, b.Above, prev.Points, b.Points)
			}
		}
	}
	return nil
}
