package synth

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lightscreen/lightscreen/screen"
)

// ErrInvalidProfile is wrapped by every Profile validation error.
var ErrInvalidProfile = errors.New("invalid synthetic profile")

// Profile describes the simulated subject and camera.
type Profile struct {
	FPS  float64 `yaml:"fps"`
	Seed int64   `yaml:"seed"`

	// Blinks per minute, placed evenly through each phase.
	BaselineBlinkRate float64 `yaml:"baseline_blink_rate"`
	FlickerBlinkRate  float64 `yaml:"flicker_blink_rate"`
	PursuitBlinkRate  float64 `yaml:"pursuit_blink_rate"`
	BlinkFrames       int     `yaml:"blink_frames"` // closed frames per blink
	OpenEAR           float64 `yaml:"open_ear"`
	ClosedEAR         float64 `yaml:"closed_ear"`

	GazeJitter     float64 `yaml:"gaze_jitter"`     // std dev of normalized gaze noise
	AversionRate   float64 `yaml:"aversion_rate"`   // per-frame probability of looking away under flicker
	AversionOffset float64 `yaml:"aversion_offset"` // horizontal offset while looking away

	PursuitLag   time.Duration `yaml:"pursuit_lag"`
	PursuitGain  float64       `yaml:"pursuit_gain"`
	PursuitNoise float64       `yaml:"pursuit_noise"`

	DropoutRate float64 `yaml:"dropout_rate"` // per-frame probability of no face
}

// DefaultProfile returns an unremarkable subject at 30 fps.
func DefaultProfile() Profile {
	return Profile{
		FPS:               30,
		Seed:              42,
		BaselineBlinkRate: 15,
		FlickerBlinkRate:  24,
		PursuitBlinkRate:  12,
		BlinkFrames:       3,
		OpenEAR:           0.30,
		ClosedEAR:         0.12,
		GazeJitter:        0.03,
		AversionRate:      0.10,
		AversionOffset:    0.6,
		PursuitLag:        100 * time.Millisecond,
		PursuitGain:       0.95,
		PursuitNoise:      0.05,
		DropoutRate:       0.01,
	}
}

// LoadProfile reads a YAML profile over DefaultProfile, rejecting unknown keys.
func LoadProfile(path string) (Profile, error) {
	p := DefaultProfile()
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("reading profile: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&p); err != nil {
		return p, fmt.Errorf("parsing profile: %w", err)
	}
	return p, p.Validate()
}

// BlinkRate returns the configured rate for a timed phase.
func (p Profile) BlinkRate(kind screen.PhaseKind) float64 {
	switch kind {
	case screen.PhaseBaseline:
		return p.BaselineBlinkRate
	case screen.PhaseFlicker:
		return p.FlickerBlinkRate
	case screen.PhasePursuit:
		return p.PursuitBlinkRate
	}
	return 0
}

// Validate checks that the profile can drive a generator.
func (p Profile) Validate() error {
	if p.FPS <= 0 {
		return fmt.Errorf("%w: fps must be positive, got %f", ErrInvalidProfile, p.FPS)
	}
	if p.BlinkFrames < 1 {
		return fmt.Errorf("%w: blink_frames must be >= 1, got %d", ErrInvalidProfile, p.BlinkFrames)
	}
	for _, kind := range []screen.PhaseKind{screen.PhaseBaseline, screen.PhaseFlicker, screen.PhasePursuit} {
		rate := p.BlinkRate(kind)
		if rate < 0 {
			return fmt.Errorf("%w: %s blink rate must be non-negative, got %f", ErrInvalidProfile, kind, rate)
		}
		if rate > 0 && p.FPS*60/rate <= float64(p.BlinkFrames+1) {
			return fmt.Errorf("%w: %s blink rate %.1f/min leaves no open frames between blinks at %.0f fps",
				ErrInvalidProfile, kind, rate, p.FPS)
		}
	}
	if p.ClosedEAR < 0 || p.OpenEAR <= p.ClosedEAR {
		return fmt.Errorf("%w: need 0 <= closed_ear < open_ear, got %f/%f", ErrInvalidProfile, p.ClosedEAR, p.OpenEAR)
	}
	if p.AversionRate < 0 || p.AversionRate > 1 {
		return fmt.Errorf("%w: aversion_rate must be in [0,1], got %f", ErrInvalidProfile, p.AversionRate)
	}
	if p.DropoutRate < 0 || p.DropoutRate > 1 {
		return fmt.Errorf("%w: dropout_rate must be in [0,1], got %f", ErrInvalidProfile, p.DropoutRate)
	}
	if p.GazeJitter < 0 || p.PursuitNoise < 0 {
		return fmt.Errorf("%w: noise levels must be non-negative", ErrInvalidProfile)
	}
	return nil
}
