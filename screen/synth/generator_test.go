package synth

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightscreen/lightscreen/screen"
	"github.com/lightscreen/lightscreen/screen/clock"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func collect(t *testing.T, g *Generator) []screen.Observation {
	t.Helper()
	var out []screen.Observation
	for {
		obs, err := g.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, obs)
	}
}

func TestGenerator_EmitsWholeSessionThenEOF(t *testing.T) {
	// GIVEN a 30 fps generator
	cfg := screen.DefaultConfig()
	clk := clock.NewManual(t0)
	g, err := NewGenerator(cfg, DefaultProfile(), clk)
	require.NoError(t, err)

	// WHEN drained
	frames := collect(t, g)

	// THEN every frame of the 35s session is emitted, in time order
	require.Len(t, frames, 1050)
	assert.Equal(t, t0, frames[0].Frame.Timestamp)
	for i := 1; i < len(frames); i++ {
		assert.True(t, frames[i].Frame.Timestamp.After(frames[i-1].Frame.Timestamp))
	}
	// AND only pursuit frames carry a target
	assert.False(t, frames[239].HasTarget)
	assert.True(t, frames[690].HasTarget)
	// AND the clock rests at the end of the final phase
	assert.Equal(t, t0.Add(35*time.Second), clk.Now())
}

func TestGenerator_Deterministic(t *testing.T) {
	cfg := screen.DefaultConfig()
	a, err := NewGenerator(cfg, DefaultProfile(), clock.NewManual(t0))
	require.NoError(t, err)
	b, err := NewGenerator(cfg, DefaultProfile(), clock.NewManual(t0))
	require.NoError(t, err)

	if diff := cmp.Diff(collect(t, a), collect(t, b)); diff != "" {
		t.Errorf("same profile produced different streams (-a +b):\n%s", diff)
	}
}

func TestGenerator_SeedChangesStream(t *testing.T) {
	cfg := screen.DefaultConfig()
	other := DefaultProfile()
	other.Seed = 43
	a, err := NewGenerator(cfg, DefaultProfile(), clock.NewManual(t0))
	require.NoError(t, err)
	b, err := NewGenerator(cfg, other, clock.NewManual(t0))
	require.NoError(t, err)

	assert.NotEmpty(t, cmp.Diff(collect(t, a), collect(t, b)))
}

func TestGenerator_PlannedBlinks(t *testing.T) {
	p := DefaultProfile()
	p.BaselineBlinkRate = 75
	p.FlickerBlinkRate = 80
	p.PursuitBlinkRate = 0
	p.BlinkFrames = 2
	g, err := NewGenerator(screen.DefaultConfig(), p, clock.NewManual(t0))
	require.NoError(t, err)

	assert.Equal(t, 10, g.PlannedBlinks(screen.PhaseBaseline))
	assert.Equal(t, 20, g.PlannedBlinks(screen.PhaseFlicker))
	assert.Equal(t, 0, g.PlannedBlinks(screen.PhasePursuit))
}

func TestGenerator_CancelledContext(t *testing.T) {
	g, err := NewGenerator(screen.DefaultConfig(), DefaultProfile(), clock.NewManual(t0))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = g.Next(ctx)

	assert.True(t, errors.Is(err, context.Canceled))
}

func TestFaceFrame_ExtractsRequestedFeatures(t *testing.T) {
	cfg := screen.DefaultConfig().Features
	ex := screen.NewExtractor(cfg)

	s := ex.Extract(FaceFrame(t0, 0.27, screen.GazeOffset{X: 0.1, Y: -0.2}, cfg))

	require.True(t, s.Valid)
	assert.InDelta(t, 0.27, s.EAR, 1e-9)
	assert.InDelta(t, 0.1, s.Gaze.X, 1e-9)
	assert.InDelta(t, -0.2, s.Gaze.Y, 1e-9)
}

func TestProfile_Validate(t *testing.T) {
	require.NoError(t, DefaultProfile().Validate())

	tests := []struct {
		name   string
		mutate func(*Profile)
	}{
		{"zero fps", func(p *Profile) { p.FPS = 0 }},
		{"no blink frames", func(p *Profile) { p.BlinkFrames = 0 }},
		{"negative rate", func(p *Profile) { p.FlickerBlinkRate = -1 }},
		{"rate too high", func(p *Profile) { p.BaselineBlinkRate = 600 }},
		{"closed above open", func(p *Profile) { p.ClosedEAR = 0.4 }},
		{"aversion rate", func(p *Profile) { p.AversionRate = 1.5 }},
		{"dropout rate", func(p *Profile) { p.DropoutRate = -0.1 }},
		{"negative jitter", func(p *Profile) { p.GazeJitter = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultProfile()
			tt.mutate(&p)
			assert.True(t, errors.Is(p.Validate(), ErrInvalidProfile))
		})
	}
}

func TestLoadProfile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte("flicker_blink_rate: 40\npursuit_lag: 250ms\n"), 0o644))
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("flicker_blinks: 40\n"), 0o644))

	p, err := LoadProfile(good)
	require.NoError(t, err)
	assert.Equal(t, 40.0, p.FlickerBlinkRate)
	assert.Equal(t, 250*time.Millisecond, p.PursuitLag)
	assert.Equal(t, DefaultProfile().BaselineBlinkRate, p.BaselineBlinkRate)

	_, err = LoadProfile(bad)
	assert.Error(t, err)
}
