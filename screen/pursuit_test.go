package screen

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sinePursuit builds n samples at 30 fps where the gaze follows the reference
// trajectory delayed by lag and scaled by gain.
func sinePursuit(n int, lag time.Duration, gain float64) []PursuitSample {
	traj := NewSinusoid(DefaultConfig().Pursuit.Trajectory)
	out := make([]PursuitSample, n)
	for i := range out {
		elapsed := time.Duration(i) * frame30
		out[i] = PursuitSample{
			Frame:     i,
			Timestamp: blinkT0.Add(elapsed),
			Target:    traj.Position(elapsed),
			Observed:  gain * traj.Position(elapsed-lag),
		}
	}
	return out
}

func TestAnalyzePursuit_PerfectTracking(t *testing.T) {
	cfg := DefaultConfig().Pursuit
	samples := sinePursuit(360, 0, 1)

	res := AnalyzePursuit(samples, 360, cfg)

	require.True(t, res.Available)
	assert.InDelta(t, 0, res.RMSError, 1e-12)
	assert.InDelta(t, 0, res.MeanAbsError, 1e-12)
	assert.Equal(t, 1.0, res.WithinWindow)
	assert.Equal(t, 1.0, res.ValidFraction)
	require.True(t, res.LagAvailable)
	assert.Equal(t, 0, res.LagFrames)
	assert.InDelta(t, 1, res.Correlation, 1e-9)
}

func TestAnalyzePursuit_DelayedGaze_RecoversLag(t *testing.T) {
	// GIVEN gaze trailing the target by 3 frames (100ms at 30 fps)
	cfg := DefaultConfig().Pursuit
	samples := sinePursuit(360, 3*frame30, 1)

	// WHEN analyzed
	res := AnalyzePursuit(samples, 360, cfg)

	// THEN the lag is positive and matches, and error reflects the phase shift
	require.True(t, res.Available)
	require.True(t, res.LagAvailable)
	assert.Equal(t, 3, res.LagFrames)
	assert.InDelta(t, 0.1, res.Lag.Seconds(), 1e-6)
	assert.Greater(t, res.RMSError, 0.0)
	assert.GreaterOrEqual(t, res.RMSError, res.MeanAbsError, "RMS never falls below mean absolute error")
}

func TestAnalyzePursuit_DroppedFrames_KeepLagInFrames(t *testing.T) {
	// GIVEN gaze trailing by 9 frames (300ms) with every third frame dropped
	cfg := DefaultConfig().Pursuit
	var samples []PursuitSample
	for _, s := range sinePursuit(360, 9*frame30, 1) {
		if s.Frame%3 == 2 {
			continue
		}
		samples = append(samples, s)
	}

	// WHEN analyzed against the full phase frame count
	res := AnalyzePursuit(samples, 360, cfg)

	// THEN the recovered lag is the true one, not compressed by the gaps
	require.True(t, res.Available)
	require.True(t, res.LagAvailable)
	assert.Equal(t, 9, res.LagFrames)
	assert.InDelta(t, 0.3, res.Lag.Seconds(), 1e-6)
}

func TestFramePeriod_SpansDroppedFrames(t *testing.T) {
	samples := []PursuitSample{
		{Frame: 0, Timestamp: blinkT0},
		{Frame: 2, Timestamp: blinkT0.Add(2 * frame30)},
		{Frame: 5, Timestamp: blinkT0.Add(5 * frame30)},
		{Frame: 6, Timestamp: blinkT0.Add(6 * frame30)},
	}

	assert.Equal(t, frame30, framePeriod(samples))
}

func TestAnalyzePursuit_LagBeyondWindow_IsUnavailable(t *testing.T) {
	// GIVEN a 0.6s lag against a ±0.5s search window
	cfg := DefaultConfig().Pursuit
	samples := sinePursuit(360, 18*frame30, 1)

	res := AnalyzePursuit(samples, 360, cfg)

	// THEN error metrics stand but lag is not reported
	assert.True(t, res.Available)
	assert.False(t, res.LagAvailable)
	assert.Zero(t, res.Lag)
}

func TestAnalyzePursuit_FlatGaze_LagUnavailable(t *testing.T) {
	cfg := DefaultConfig().Pursuit
	samples := sinePursuit(360, 0, 0)

	res := AnalyzePursuit(samples, 360, cfg)

	assert.True(t, res.Available)
	assert.False(t, res.LagAvailable)
}

func TestAnalyzePursuit_InsufficientData(t *testing.T) {
	cfg := DefaultConfig().Pursuit

	tests := []struct {
		name        string
		samples     int
		phaseFrames int
	}{
		{"no frames", 0, 0},
		{"face lost for most of the phase", 100, 360},
		{"too few samples", 20, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := AnalyzePursuit(sinePursuit(tt.samples, 0, 1), tt.phaseFrames, cfg)
			assert.False(t, res.Available)
			assert.False(t, res.LagAvailable)
			assert.NotEmpty(t, res.Reason)
			assert.Zero(t, res.RMSError)
		})
	}
}

func TestPursuitAnalyzer_IsDeterministic(t *testing.T) {
	cfg := DefaultConfig().Pursuit
	a := NewPursuitAnalyzer(cfg)
	for _, s := range sinePursuit(200, 2*frame30, 0.9) {
		a.Add(s)
	}

	first := a.Analyze(240)
	second := a.Analyze(240)

	assert.Equal(t, first, second)
	assert.Equal(t, AnalyzePursuit(a.Samples(), 240, cfg), first)
}

func TestPursuitAnalyzer_SamplesReturnsCopy(t *testing.T) {
	a := NewPursuitAnalyzer(DefaultConfig().Pursuit)
	a.Add(PursuitSample{Target: 1})

	s := a.Samples()
	s[0].Target = 99

	assert.Equal(t, 1.0, a.Samples()[0].Target)
}

func TestSinusoid_Position(t *testing.T) {
	s := NewSinusoid(DefaultConfig().Pursuit.Trajectory)

	assert.InDelta(t, 0, s.Position(0), 1e-12)
	assert.InDelta(t, 2.0/3.0, s.Position(625*time.Millisecond), 1e-12, "quarter period at 0.4 Hz")
	assert.InDelta(t, 0, s.Position(2500*time.Millisecond), 1e-12, "full period")
}
