package screen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lightscreen/lightscreen/screen/clock"
	"github.com/lightscreen/lightscreen/screen/trace"
)

// Abort reasons reported on Outcome.AbortReason.
const (
	AbortCancelled       = "cancelled"
	AbortSourceExhausted = "source exhausted"
)

// FrameSource delivers observations in capture order. Next blocks until the
// next frame is available; io.EOF ends the stream.
type FrameSource interface {
	Next(ctx context.Context) (Observation, error)
}

// Option customizes a Session at construction.
type Option func(*Session)

// WithSessionID overrides the generated session ID.
func WithSessionID(id string) Option {
	return func(s *Session) { s.id = id }
}

// WithTrace attaches a trace that receives transition and blink records.
func WithTrace(st *trace.SessionTrace) Option {
	return func(s *Session) { s.trace = st }
}

// Session is the phase state machine. It owns the per-frame analyzers and the
// phase records for one screening session and is not safe for concurrent use,
// except for Cancel.
type Session struct {
	id    string
	cfg   Config
	clock clock.Clock
	trace *trace.SessionTrace

	extractor *Extractor
	blink     *BlinkDetector
	gaze      *GazeTracker
	pursuit   *PursuitAnalyzer
	calib     *calibration

	state       PhaseKind
	phaseEnd    time.Time
	current     *PhaseRecord
	records     []PhaseRecord
	abortReason string

	cancelled atomic.Bool
}

// NewSession validates cfg and creates a session in the init state.
func NewSession(cfg Config, clk clock.Clock, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.Real{}
	}
	s := &Session{
		id:        uuid.NewString(),
		cfg:       cfg,
		clock:     clk,
		extractor: NewExtractor(cfg.Features),
		blink:     NewBlinkDetector(cfg.Blink),
		gaze:      NewGazeTracker(cfg.Gaze),
		pursuit:   NewPursuitAnalyzer(cfg.Pursuit),
		calib:     newCalibration(cfg.Blink.Adaptive),
		state:     PhaseInit,
		records:   make([]PhaseRecord, 0, 3),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current state.
func (s *Session) State() PhaseKind { return s.state }

// Threshold returns the EAR threshold currently in effect.
func (s *Session) Threshold() float64 { return s.blink.Threshold() }

// Records returns copies of the frozen phase records followed by the
// in-progress record, if any.
func (s *Session) Records() []PhaseRecord {
	out := make([]PhaseRecord, 0, len(s.records)+1)
	for _, r := range s.records {
		out = append(out, r.clone())
	}
	if s.current != nil {
		out = append(out, s.current.clone())
	}
	return out
}

// Cancel requests early termination. It only sets a flag, so it is safe to
// call from any goroutine; the state machine observes it on the next frame.
func (s *Session) Cancel() {
	s.cancelled.Store(true)
}

// Start enters the baseline phase and starts its timer.
func (s *Session) Start() error {
	if s.state != PhaseInit {
		return fmt.Errorf("start: session is %s, want %s", s.state, PhaseInit)
	}
	s.enter(PhaseBaseline, s.clock.Now(), "start")
	return nil
}

// Step processes one observation to completion: cancellation check, phase
// timer check, feature extraction, and detector updates. A frame that arrives
// after the final timer expired completes the session and is not analyzed.
func (s *Session) Step(obs Observation) error {
	switch {
	case s.state == PhaseInit:
		return ErrSessionNotStarted
	case s.state.Terminal():
		return ErrSessionTerminal
	}

	now := s.clock.Now()
	if s.cancelled.Load() {
		s.abort(now, AbortCancelled)
		return nil
	}
	s.advance(now)
	if s.state.Terminal() {
		return nil
	}

	if obs.Frame.Timestamp.IsZero() {
		obs.Frame.Timestamp = now
	}
	s.process(obs)
	return nil
}

// Advance evaluates cancellation and phase timers without a frame. Frame
// loops call it when the source is idle or exhausted.
func (s *Session) Advance() {
	if s.state == PhaseInit || s.state.Terminal() {
		return
	}
	now := s.clock.Now()
	if s.cancelled.Load() {
		s.abort(now, AbortCancelled)
		return
	}
	s.advance(now)
}

// Run drives the session from src until it completes, is cancelled through
// ctx or Cancel, or the source ends. Cancellation is polled once per frame.
func (s *Session) Run(ctx context.Context, src FrameSource) (*Outcome, error) {
	if s.state == PhaseInit {
		if err := s.Start(); err != nil {
			return nil, err
		}
	}
	for !s.state.Terminal() {
		if ctx.Err() != nil {
			s.Cancel()
			s.Advance()
			break
		}
		obs, err := src.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				s.Advance()
				if !s.state.Terminal() {
					s.abort(s.clock.Now(), AbortSourceExhausted)
				}
			case ctx.Err() != nil:
				s.Cancel()
				s.Advance()
			default:
				return nil, fmt.Errorf("reading frame: %w", err)
			}
			break
		}
		if err := s.Step(obs); err != nil {
			return nil, err
		}
	}
	return s.Outcome()
}

// advance fires every phase timer that has expired by now. Phases end at their
// scheduled instant, so a late frame never lengthens a phase.
func (s *Session) advance(now time.Time) {
	for s.state.Timed() && !now.Before(s.phaseEnd) {
		end := s.phaseEnd
		s.closeCurrent(end)
		next := s.state.next()
		if next == PhaseComplete {
			s.transition(PhaseComplete, end, "timer")
			return
		}
		s.enter(next, end, "timer")
	}
}

func (s *Session) enter(kind PhaseKind, at time.Time, reason string) {
	if s.state.next() != kind {
		panic(fmt.Sprintf("phase %q entered out of order from %q", kind, s.state))
	}
	if s.current != nil {
		panic(fmt.Sprintf("phase %q entered while %q still open", kind, s.current.Kind))
	}
	s.transition(kind, at, reason)
	s.current = newPhaseRecord(kind, at)
	s.phaseEnd = at.Add(s.cfg.Phases.Duration(kind))
}

func (s *Session) transition(to PhaseKind, at time.Time, reason string) {
	logrus.Infof("[session %s] %s -> %s (%s)", s.id, s.state, to, reason)
	if s.trace.Enabled() {
		s.trace.RecordTransition(trace.TransitionRecord{From: string(s.state), To: string(to), At: at, Reason: reason})
	}
	s.state = to
}

// closeCurrent flushes any open closure into the record and freezes it.
func (s *Session) closeCurrent(end time.Time) {
	rec := s.current
	if rec == nil {
		return
	}
	if ev, ok := s.blink.Flush(end); ok {
		rec.IncompleteBlink = &ev
		s.traceBlink(rec.Kind, ev, trace.BlinkIncomplete)
	}
	if rec.Kind == PhasePursuit {
		rec.PursuitSamples = s.pursuit.Samples()
		res := s.pursuit.Analyze(rec.FrameCount)
		rec.Pursuit = &res
		if !res.Available {
			logrus.Warnf("[session %s] pursuit metrics unavailable: %s", s.id, res.Reason)
		}
	}
	rec.freeze(end)
	s.records = append(s.records, *rec)
	s.current = nil
}

// abort closes the in-progress phase with whatever it has accumulated.
func (s *Session) abort(now time.Time, reason string) {
	if s.current != nil {
		end := now
		if end.After(s.phaseEnd) {
			end = s.phaseEnd
		}
		s.current.Truncated = true
		s.closeCurrent(end)
	}
	s.abortReason = reason
	s.transition(PhaseAborted, now, reason)
}

func (s *Session) process(obs Observation) {
	rec := s.current
	rec.FrameCount++

	sample := s.extractor.Extract(obs.Frame)
	if !sample.Valid {
		rec.DroppedFrameCount++
		return
	}
	rec.ValidFrameCount++
	rec.EARSamples = append(rec.EARSamples, sample.EAR)

	if rec.Kind == PhaseBaseline {
		if th, ok := s.calib.observe(sample.EAR); ok {
			if err := s.blink.Calibrate(th); err != nil {
				panic(fmt.Sprintf("calibration: %v", err))
			}
			logrus.Infof("[session %s] EAR threshold calibrated to %.3f", s.id, th)
		}
	}

	upd := s.blink.Update(sample)
	rec.ClosedFrameCount += upd.ClosedFrames
	if upd.Event != nil {
		if upd.Suppressed {
			rec.SuppressedBlinks++
			s.traceBlink(rec.Kind, *upd.Event, trace.BlinkSuppressed)
		} else {
			rec.BlinkEvents = append(rec.BlinkEvents, *upd.Event)
			s.traceBlink(rec.Kind, *upd.Event, trace.BlinkCounted)
		}
	}

	if s.gaze.OffCenter(sample) {
		rec.OffCenterFrameCount++
	}

	if rec.Kind == PhasePursuit && obs.HasTarget {
		s.pursuit.Add(PursuitSample{
			Frame:     rec.FrameCount - 1,
			Timestamp: sample.Timestamp,
			Target:    obs.Target,
			Observed:  sample.Gaze.Axis(s.cfg.Pursuit.Axis),
		})
	}
}

func (s *Session) traceBlink(phase PhaseKind, ev BlinkEvent, outcome string) {
	if !s.trace.Enabled() {
		return
	}
	s.trace.RecordBlink(trace.BlinkRecord{
		Phase:    string(phase),
		Onset:    ev.Onset,
		Duration: ev.Duration,
		Frames:   ev.Frames,
		Outcome:  outcome,
	})
}

// Outcome is the terminal artifact of a session. Metrics is nil when the
// session was aborted; records are still exposed for diagnostics.
type Outcome struct {
	SessionID   string          `json:"session_id"`
	State       PhaseKind       `json:"state"`
	AbortReason string          `json:"abort_reason,omitempty"`
	Threshold   float64         `json:"ear_threshold"`
	Records     []PhaseRecord   `json:"phases"`
	Metrics     *SessionMetrics `json:"metrics,omitempty"`
	Quality     QualityReport   `json:"quality"`
}

// Outcome returns the session result. It fails until the session is terminal.
func (s *Session) Outcome() (*Outcome, error) {
	if !s.state.Terminal() {
		return nil, fmt.Errorf("%w: state is %s", ErrSessionNotComplete, s.state)
	}
	out := &Outcome{
		SessionID:   s.id,
		State:       s.state,
		AbortReason: s.abortReason,
		Threshold:   s.blink.Threshold(),
		Records:     s.Records(),
	}
	if s.state == PhaseComplete {
		m := Aggregate(out.Records)
		out.Metrics = &m
	}
	out.Quality = AssessQuality(out.Records, out.Metrics)
	return out, nil
}

// Assess scores a completed session. Aborted sessions never produce an assessment.
func (o *Outcome) Assess(scorer *Scorer, q Questionnaire) (RiskAssessment, error) {
	if o.State != PhaseComplete || o.Metrics == nil {
		return RiskAssessment{}, fmt.Errorf("%w: state is %s", ErrSessionNotComplete, o.State)
	}
	return scorer.Score(*o.Metrics, q)
}
