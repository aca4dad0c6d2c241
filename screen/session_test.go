package screen_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightscreen/lightscreen/screen"
	"github.com/lightscreen/lightscreen/screen/clock"
	"github.com/lightscreen/lightscreen/screen/synth"
	"github.com/lightscreen/lightscreen/screen/trace"
)

// steadyProfile is a noiseless subject: no dropouts, no aversion, no jitter.
func steadyProfile() synth.Profile {
	p := synth.DefaultProfile()
	p.DropoutRate = 0
	p.AversionRate = 0
	p.GazeJitter = 0
	p.PursuitNoise = 0.02
	return p
}

func runSynthetic(t *testing.T, cfg screen.Config, profile synth.Profile, opts ...screen.Option) (*screen.Outcome, *synth.Generator) {
	t.Helper()
	clk := clock.NewManual(t0)
	gen, err := synth.NewGenerator(cfg, profile, clk)
	require.NoError(t, err)
	sess, err := screen.NewSession(cfg, clk, opts...)
	require.NoError(t, err)
	out, err := sess.Run(context.Background(), gen)
	require.NoError(t, err)
	return out, gen
}

func TestSession_SyntheticRun_Completes(t *testing.T) {
	// GIVEN a steady synthetic subject and the reference config
	cfg := screen.DefaultConfig()

	// WHEN the whole session runs
	out, gen := runSynthetic(t, cfg, steadyProfile())

	// THEN it completes with exactly one record per phase, in order
	require.Equal(t, screen.PhaseComplete, out.State)
	require.Len(t, out.Records, 3)
	kinds := []screen.PhaseKind{screen.PhaseBaseline, screen.PhaseFlicker, screen.PhasePursuit}
	for i, r := range out.Records {
		assert.Equal(t, kinds[i], r.Kind)
		assert.True(t, r.Frozen())
		assert.False(t, r.Truncated)
		assert.Equal(t, cfg.Phases.Duration(r.Kind), r.Duration(), "%s duration", r.Kind)
		assert.Equal(t, gen.PlannedBlinks(r.Kind), r.BlinkCount(), "%s blinks", r.Kind)
	}
	assert.Equal(t, out.Records[0].EndTime, out.Records[1].StartTime)
	assert.Equal(t, out.Records[1].EndTime, out.Records[2].StartTime)

	// AND metrics are available, with the pursuit lag close to the simulated 100ms
	require.NotNil(t, out.Metrics)
	assert.True(t, out.Metrics.BlinkRateDelta.Available)
	assert.InDelta(t, 0, out.Metrics.GazeOffCenterFraction.Value, 1e-12)
	require.True(t, out.Metrics.PursuitLag.Available)
	assert.InDelta(t, 0.1, out.Metrics.PursuitLag.Value, 0.034)
}

func TestSession_ReferenceSubject_ScoresLow(t *testing.T) {
	// GIVEN 10 blinks in baseline and 20 under flicker (75 vs 80 per minute)
	profile := steadyProfile()
	profile.BaselineBlinkRate = 75
	profile.FlickerBlinkRate = 80
	profile.PursuitBlinkRate = 0
	profile.BlinkFrames = 2
	cfg := screen.DefaultConfig()

	out, _ := runSynthetic(t, cfg, profile)
	require.Equal(t, screen.PhaseComplete, out.State)
	assert.Equal(t, 10, out.Records[0].BlinkCount())
	assert.Equal(t, 20, out.Records[1].BlinkCount())

	// WHEN assessed with a headache and a self-rating of 8
	ra, err := out.Assess(screen.NewScorer(cfg.Scoring),
		screen.Questionnaire{Symptoms: screen.Symptoms{Headache: true}, SubjectiveRating: 8})

	// THEN delta 5/min and a small closed fraction add nothing: 1 + 2 = 3, LOW
	require.NoError(t, err)
	assert.InDelta(t, 5, out.Metrics.BlinkRateDelta.Value, 1e-9)
	assert.Less(t, out.Metrics.EyeClosedFraction.Value, 0.10)
	assert.Equal(t, 3, ra.Score)
	assert.Equal(t, screen.CategoryLow, ra.Category)
	assert.False(t, ra.Escalate)
}

func TestSession_PhaseLength_IndependentOfFrameRate(t *testing.T) {
	cfg := screen.DefaultConfig()
	for _, fps := range []float64{15, 24, 60} {
		profile := steadyProfile()
		profile.FPS = fps
		profile.BaselineBlinkRate, profile.FlickerBlinkRate, profile.PursuitBlinkRate = 10, 10, 10

		out, _ := runSynthetic(t, cfg, profile)

		require.Equal(t, screen.PhaseComplete, out.State, "fps %.0f", fps)
		for _, r := range out.Records {
			assert.Equal(t, cfg.Phases.Duration(r.Kind), r.Duration(), "fps %.0f %s", fps, r.Kind)
		}
	}
}

func TestSession_LateFrame_FiresEveryExpiredTimer(t *testing.T) {
	// GIVEN a started session
	cfg := screen.DefaultConfig()
	clk := clock.NewManual(t0)
	sess, err := screen.NewSession(cfg, clk)
	require.NoError(t, err)
	require.NoError(t, sess.Start())
	frame := func() screen.Observation {
		return screen.Observation{Frame: synth.FaceFrame(clk.Now(), 0.3, screen.GazeOffset{}, cfg.Features)}
	}
	clk.Advance(time.Second)
	require.NoError(t, sess.Step(frame()))

	// WHEN the next frame arrives 29 seconds later
	clk.Set(t0.Add(30 * time.Second))
	require.NoError(t, sess.Step(frame()))

	// THEN baseline and flicker both closed at their scheduled instants
	assert.Equal(t, screen.PhasePursuit, sess.State())
	recs := sess.Records()
	require.Len(t, recs, 3)
	assert.Equal(t, t0.Add(8*time.Second), recs[0].EndTime)
	assert.Equal(t, t0.Add(23*time.Second), recs[1].EndTime)
	assert.Equal(t, 0, recs[1].FrameCount)
	assert.Equal(t, 1, recs[2].FrameCount, "the late frame belongs to the phase current at its arrival")

	// AND a frame after the final timer completes the session without being analyzed
	clk.Set(t0.Add(40 * time.Second))
	require.NoError(t, sess.Step(frame()))
	assert.Equal(t, screen.PhaseComplete, sess.State())
	out, err := sess.Outcome()
	require.NoError(t, err)
	assert.Equal(t, 1, out.Records[2].FrameCount)
	assert.Equal(t, t0.Add(35*time.Second), out.Records[2].EndTime)
}

func TestSession_CancelMidPhase_Aborts(t *testing.T) {
	// GIVEN a session that has processed frames into flicker
	cfg := screen.DefaultConfig()
	clk := clock.NewManual(t0)
	sess, err := screen.NewSession(cfg, clk)
	require.NoError(t, err)
	require.NoError(t, sess.Start())

	processed := 0
	for clk.Now().Before(t0.Add(10 * time.Second)) {
		require.NoError(t, sess.Step(screen.Observation{Frame: synth.FaceFrame(clk.Now(), 0.3, screen.GazeOffset{}, cfg.Features)}))
		processed++
		clk.Advance(time.Second / 30)
	}
	require.Equal(t, screen.PhaseFlicker, sess.State())

	// WHEN cancelled from another goroutine and the next frame arrives
	done := make(chan struct{})
	go func() {
		sess.Cancel()
		close(done)
	}()
	<-done
	require.NoError(t, sess.Step(screen.Observation{Frame: synth.FaceFrame(clk.Now(), 0.3, screen.GazeOffset{}, cfg.Features)}))

	// THEN the session is aborted, the flicker record is truncated, and no
	// assessment can be produced
	assert.Equal(t, screen.PhaseAborted, sess.State())
	out, err := sess.Outcome()
	require.NoError(t, err)
	assert.Equal(t, screen.AbortCancelled, out.AbortReason)
	assert.Nil(t, out.Metrics)
	require.Len(t, out.Records, 2)
	assert.True(t, out.Records[1].Truncated)
	assert.LessOrEqual(t, out.Records[0].FrameCount+out.Records[1].FrameCount, processed)

	_, err = out.Assess(screen.NewScorer(cfg.Scoring), screen.Questionnaire{SubjectiveRating: 5})
	assert.True(t, errors.Is(err, screen.ErrSessionNotComplete))

	assert.True(t, errors.Is(sess.Step(screen.Observation{}), screen.ErrSessionTerminal))
}

func TestSession_StepBeforeStart_Fails(t *testing.T) {
	sess, err := screen.NewSession(screen.DefaultConfig(), clock.NewManual(t0))
	require.NoError(t, err)

	assert.True(t, errors.Is(sess.Step(screen.Observation{}), screen.ErrSessionNotStarted))
	_, err = sess.Outcome()
	assert.True(t, errors.Is(err, screen.ErrSessionNotComplete))

	require.NoError(t, sess.Start())
	assert.Error(t, sess.Start(), "start is not repeatable")
}

func TestNewSession_InvalidConfig(t *testing.T) {
	cfg := screen.DefaultConfig()
	cfg.Blink.MinBlinkFrames = 0

	_, err := screen.NewSession(cfg, nil)

	assert.True(t, errors.Is(err, screen.ErrInvalidConfig))
}

// shortSource yields n frames then io.EOF without moving the clock past the end.
type shortSource struct {
	clk *clock.Manual
	cfg screen.Config
	n   int
}

func (s *shortSource) Next(ctx context.Context) (screen.Observation, error) {
	if s.n == 0 {
		return screen.Observation{}, io.EOF
	}
	s.n--
	s.clk.Advance(time.Second / 30)
	return screen.Observation{Frame: synth.FaceFrame(s.clk.Now(), 0.3, screen.GazeOffset{}, s.cfg.Features)}, nil
}

func TestSession_SourceExhausted_Aborts(t *testing.T) {
	cfg := screen.DefaultConfig()
	clk := clock.NewManual(t0)
	sess, err := screen.NewSession(cfg, clk)
	require.NoError(t, err)

	out, err := sess.Run(context.Background(), &shortSource{clk: clk, cfg: cfg, n: 90})

	require.NoError(t, err)
	assert.Equal(t, screen.PhaseAborted, out.State)
	assert.Equal(t, screen.AbortSourceExhausted, out.AbortReason)
	require.Len(t, out.Records, 1)
	assert.Equal(t, 90, out.Records[0].FrameCount)
}

func TestSession_ContextCancelled_Aborts(t *testing.T) {
	cfg := screen.DefaultConfig()
	clk := clock.NewManual(t0)
	sess, err := screen.NewSession(cfg, clk)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := sess.Run(ctx, &shortSource{clk: clk, cfg: cfg, n: 1000})

	require.NoError(t, err)
	assert.Equal(t, screen.PhaseAborted, out.State)
	assert.Equal(t, screen.AbortCancelled, out.AbortReason)
}

type failingSource struct{}

func (failingSource) Next(context.Context) (screen.Observation, error) {
	return screen.Observation{}, errors.New("camera unplugged")
}

func TestSession_SourceError_IsReturned(t *testing.T) {
	sess, err := screen.NewSession(screen.DefaultConfig(), clock.NewManual(t0))
	require.NoError(t, err)

	_, err = sess.Run(context.Background(), failingSource{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "camera unplugged")
}

func TestSession_DroppedFrames_ExcludedFromDenominators(t *testing.T) {
	profile := steadyProfile()
	profile.DropoutRate = 0.3

	out, _ := runSynthetic(t, screen.DefaultConfig(), profile)

	require.Equal(t, screen.PhaseComplete, out.State)
	dropped := 0
	for _, r := range out.Records {
		assert.Equal(t, r.FrameCount, r.ValidFrameCount+r.DroppedFrameCount)
		assert.LessOrEqual(t, r.ClosedFrameCount, r.ValidFrameCount)
		assert.Len(t, r.EARSamples, r.ValidFrameCount)
		dropped += r.DroppedFrameCount
	}
	assert.Greater(t, dropped, 0)
	assert.Equal(t, dropped, out.Metrics.DroppedFrames)
}

func TestSession_AdaptiveThreshold_CalibratesOnce(t *testing.T) {
	// GIVEN adaptive calibration over the first 30 valid baseline frames
	cfg := screen.DefaultConfig()
	cfg.Blink.Adaptive.Enabled = true
	profile := steadyProfile()
	profile.OpenEAR = 0.32

	// WHEN the session runs
	out, _ := runSynthetic(t, cfg, profile)

	// THEN the threshold is 70% of the open-eye EAR (first blink lands after frame 30)
	require.Equal(t, screen.PhaseComplete, out.State)
	assert.InDelta(t, 0.7*0.32, out.Threshold, 1e-9)
}

func TestSession_BlinkAcrossBoundary_IsIncomplete(t *testing.T) {
	// GIVEN eyes closing 0.1s before baseline ends and reopening in flicker
	cfg := screen.DefaultConfig()
	clk := clock.NewManual(t0)
	sess, err := screen.NewSession(cfg, clk)
	require.NoError(t, err)
	require.NoError(t, sess.Start())

	step := func(at time.Duration, ear float64) {
		clk.Set(t0.Add(at))
		require.NoError(t, sess.Step(screen.Observation{Frame: synth.FaceFrame(clk.Now(), ear, screen.GazeOffset{}, cfg.Features)}))
	}
	step(7800*time.Millisecond, 0.30)
	step(7900*time.Millisecond, 0.10)
	step(7950*time.Millisecond, 0.10)
	step(8050*time.Millisecond, 0.30)

	// THEN baseline records the closure as incomplete and does not count it
	recs := sess.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, 0, recs[0].BlinkCount())
	require.NotNil(t, recs[0].IncompleteBlink)
	assert.Equal(t, 2, recs[0].IncompleteBlink.Frames)
	assert.Equal(t, 100*time.Millisecond, recs[0].IncompleteBlink.Duration)
	assert.Equal(t, 0, recs[1].BlinkCount(), "the reopening frame does not start a flicker blink")
}

func TestSession_Trace_RecordsTransitionsAndBlinks(t *testing.T) {
	st := trace.NewSessionTrace(trace.TraceConfig{Level: trace.TraceLevelEvents})

	out, gen := runSynthetic(t, screen.DefaultConfig(), steadyProfile(), screen.WithTrace(st), screen.WithSessionID("trace-test"))

	assert.Equal(t, "trace-test", out.SessionID)
	require.Len(t, st.Transitions, 4, "start, two timer transitions, completion")
	assert.Equal(t, "start", st.Transitions[0].Reason)
	assert.Equal(t, string(screen.PhaseComplete), st.Transitions[3].To)

	summary := trace.Summarize(st)
	want := gen.PlannedBlinks(screen.PhaseBaseline) + gen.PlannedBlinks(screen.PhaseFlicker) + gen.PlannedBlinks(screen.PhasePursuit)
	assert.Equal(t, want, summary.CountedBlinks)
}

func TestSession_RecordsAreCopies(t *testing.T) {
	cfg := screen.DefaultConfig()
	clk := clock.NewManual(t0)
	gen, err := synth.NewGenerator(cfg, steadyProfile(), clk)
	require.NoError(t, err)
	sess, err := screen.NewSession(cfg, clk)
	require.NoError(t, err)
	_, err = sess.Run(context.Background(), gen)
	require.NoError(t, err)

	recs := sess.Records()
	require.NotEmpty(t, recs[0].BlinkEvents)
	recs[0].BlinkEvents[0].Frames = 999
	recs[0].EARSamples[0] = -1

	again := sess.Records()
	assert.NotEqual(t, 999, again[0].BlinkEvents[0].Frames)
	assert.NotEqual(t, -1.0, again[0].EARSamples[0])
}

func TestSession_PursuitLag_SurvivesDroppedFrames(t *testing.T) {
	// GIVEN a subject trailing the target by 300ms with light noise
	cfg := screen.DefaultConfig()
	period := time.Second / 30
	for _, dropout := range []float64{0, 0.2, 0.4} {
		profile := steadyProfile()
		profile.PursuitLag = 300 * time.Millisecond
		profile.PursuitNoise = 0.01
		profile.DropoutRate = dropout

		// WHEN the session runs with that share of frames losing the face
		out, _ := runSynthetic(t, cfg, profile)

		// THEN the lag is still reported and within one frame of the truth
		require.Equal(t, screen.PhaseComplete, out.State, "dropout %.1f", dropout)
		require.True(t, out.Metrics.PursuitLag.Available, "dropout %.1f", dropout)
		assert.InDelta(t, 0.3, out.Metrics.PursuitLag.Value, period.Seconds()+1e-9, "dropout %.1f", dropout)
	}
}

func TestSession_FullAversion_GazeFractionCountsFlickerFrames(t *testing.T) {
	// GIVEN a subject looking away on every flicker frame, past the threshold
	profile := steadyProfile()
	profile.AversionRate = 1
	profile.AversionOffset = 0.6
	cfg := screen.DefaultConfig()

	out, _ := runSynthetic(t, cfg, profile)

	// THEN every flicker frame and no baseline frame is off-centre
	require.Equal(t, screen.PhaseComplete, out.State)
	assert.Equal(t, 0, out.Records[0].OffCenterFrameCount)
	assert.Equal(t, out.Records[1].ValidFrameCount, out.Records[1].OffCenterFrameCount)
	assert.InDelta(t, 450.0/690.0, out.Metrics.GazeOffCenterFraction.Value, 1e-12)
}

func TestSession_SyntheticBlinks_DurationsMatchPlannedFrames(t *testing.T) {
	// GIVEN blinks of 4 closed frames in every phase
	profile := steadyProfile()
	profile.BlinkFrames = 4
	profile.BaselineBlinkRate, profile.FlickerBlinkRate, profile.PursuitBlinkRate = 40, 40, 40
	period := time.Second / time.Duration(profile.FPS)
	want := time.Duration(profile.BlinkFrames) * period

	out, gen := runSynthetic(t, screen.DefaultConfig(), profile)

	// THEN each phase counts every planned blink, and each lasts BlinkFrames/FPS
	// to within one frame period
	require.Equal(t, screen.PhaseComplete, out.State)
	for _, r := range out.Records {
		require.Equal(t, gen.PlannedBlinks(r.Kind), r.BlinkCount(), "%s", r.Kind)
		for _, ev := range r.BlinkEvents {
			assert.Equal(t, profile.BlinkFrames, ev.Frames)
			assert.InDelta(t, want.Seconds(), ev.Duration.Seconds(), period.Seconds(), "%s blink at %s", r.Kind, ev.Onset)
		}
	}
}
