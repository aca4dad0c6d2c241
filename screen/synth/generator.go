// Package synth generates deterministic synthetic landmark streams for demos,
// tests, and calibration of the scoring bands.
package synth

import (
	"context"
	"io"
	"math"
	"time"

	"github.com/lightscreen/lightscreen/screen"
	"github.com/lightscreen/lightscreen/screen/clock"
)

// Generator is a screen.FrameSource that emits one frame per 1/FPS of
// simulated time, advancing a manual clock in lockstep. Same profile and
// config always yield the same stream.
type Generator struct {
	cfg     screen.Config
	profile Profile
	clock   *clock.Manual
	rng     *PartitionedRNG
	traj    screen.Sinusoid

	start      time.Time
	total      int // frames in the whole session
	frame      int
	phase      screen.PhaseKind
	phaseFrame int // frames emitted in the current phase
}

// NewGenerator creates a generator starting at clk's current time.
func NewGenerator(cfg screen.Config, profile Profile, clk *clock.Manual) (*Generator, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return &Generator{
		cfg:     cfg,
		profile: profile,
		clock:   clk,
		rng:     NewPartitionedRNG(profile.Seed),
		traj:    screen.NewSinusoid(cfg.Pursuit.Trajectory),
		start:   clk.Now(),
		total:   framesBefore(cfg.Phases.Total(), profile.FPS),
	}, nil
}

// Next returns the next frame. After the last frame it moves the clock to the
// end of the final phase and returns io.EOF.
func (g *Generator) Next(ctx context.Context) (screen.Observation, error) {
	if err := ctx.Err(); err != nil {
		return screen.Observation{}, err
	}
	if g.frame >= g.total {
		g.clock.Set(g.start.Add(g.cfg.Phases.Total()))
		return screen.Observation{}, io.EOF
	}

	elapsed := g.elapsed(g.frame)
	ts := g.start.Add(elapsed)
	g.clock.Set(ts)

	kind, phaseStart := g.phaseAt(elapsed)
	if kind != g.phase {
		g.phase = kind
		g.phaseFrame = 0
	}
	obs := g.observe(ts, kind, elapsed-phaseStart)
	g.frame++
	g.phaseFrame++
	return obs, nil
}

// PlannedBlinks returns how many blinks the generator places in a phase that
// also reopen before the phase ends, i.e. the count a detector should report
// on a dropout-free stream.
func (g *Generator) PlannedBlinks(kind screen.PhaseKind) int {
	rate := g.profile.BlinkRate(kind)
	if rate <= 0 {
		return 0
	}
	n := g.phaseFrames(kind)
	interval := g.profile.FPS * 60 / rate
	count := 0
	for k := 0; ; k++ {
		onset := int(math.Round(interval/2 + float64(k)*interval))
		if onset+g.profile.BlinkFrames >= n {
			return count
		}
		count++
	}
}

// phaseFrames returns the number of frames whose timestamps fall in the phase.
func (g *Generator) phaseFrames(kind screen.PhaseKind) int {
	var start time.Duration
	for _, k := range []screen.PhaseKind{screen.PhaseBaseline, screen.PhaseFlicker, screen.PhasePursuit} {
		end := start + g.cfg.Phases.Duration(k)
		if k == kind {
			return framesBefore(end, g.profile.FPS) - framesBefore(start, g.profile.FPS)
		}
		start = end
	}
	return 0
}

func (g *Generator) elapsed(frame int) time.Duration {
	return time.Duration(math.Round(float64(frame) * float64(time.Second) / g.profile.FPS))
}

func (g *Generator) phaseAt(elapsed time.Duration) (screen.PhaseKind, time.Duration) {
	p := g.cfg.Phases
	switch {
	case elapsed < p.Baseline:
		return screen.PhaseBaseline, 0
	case elapsed < p.Baseline+p.Flicker:
		return screen.PhaseFlicker, p.Baseline
	default:
		return screen.PhasePursuit, p.Baseline + p.Flicker
	}
}

func (g *Generator) observe(ts time.Time, kind screen.PhaseKind, local time.Duration) screen.Observation {
	var obs screen.Observation
	if kind == screen.PhasePursuit {
		obs.Target = g.traj.Position(local)
		obs.HasTarget = true
	}

	if g.rng.ForSubsystem(SubsystemDropout).Float64() < g.profile.DropoutRate {
		obs.Frame = screen.LandmarkFrame{Timestamp: ts}
		return obs
	}

	ear := g.profile.OpenEAR
	if g.blinking(kind) {
		ear = g.profile.ClosedEAR
	}

	gr := g.rng.ForSubsystem(SubsystemGaze)
	gaze := screen.GazeOffset{
		X: gr.NormFloat64() * g.profile.GazeJitter,
		Y: gr.NormFloat64() * g.profile.GazeJitter,
	}
	switch kind {
	case screen.PhaseFlicker:
		if gr.Float64() < g.profile.AversionRate {
			gaze.X += g.profile.AversionOffset
		}
	case screen.PhasePursuit:
		pr := g.rng.ForSubsystem(SubsystemPursuit)
		pos := g.profile.PursuitGain*g.traj.Position(local-g.profile.PursuitLag) + pr.NormFloat64()*g.profile.PursuitNoise
		if g.cfg.Pursuit.Axis == "x" {
			gaze.X = pos
		} else {
			gaze.Y = pos
		}
	}

	obs.Frame = FaceFrame(ts, ear, gaze, g.cfg.Features)
	return obs
}

// blinking reports whether the current phase frame falls inside a planned blink.
func (g *Generator) blinking(kind screen.PhaseKind) bool {
	rate := g.profile.BlinkRate(kind)
	if rate <= 0 {
		return false
	}
	interval := g.profile.FPS * 60 / rate
	i := float64(g.phaseFrame)
	k0 := math.Floor((i - interval/2) / interval)
	for k := k0 - 1; k <= k0+1; k++ {
		if k < 0 {
			continue
		}
		onset := math.Round(interval/2 + k*interval)
		if i >= onset && i < onset+float64(g.profile.BlinkFrames) {
			return true
		}
	}
	return false
}

// framesBefore returns the number of frame indices whose timestamp is before d.
func framesBefore(d time.Duration, fps float64) int {
	return int(math.Ceil(d.Seconds()*fps - 1e-9))
}
