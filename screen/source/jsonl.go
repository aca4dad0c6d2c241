// Package source reads and writes recorded landmark streams as JSON Lines,
// one observation per line.
package source

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lightscreen/lightscreen/screen"
	"github.com/lightscreen/lightscreen/screen/clock"
)

// maxLineBytes bounds one recorded frame (478 points at ~60 bytes each, with headroom).
const maxLineBytes = 1 << 20

// FrameRecord is the on-disk form of one observation.
type FrameRecord struct {
	Timestamp time.Time    `json:"t"`
	Valid     bool         `json:"valid"`
	Dropped   bool         `json:"dropped,omitempty"`
	Points    [][3]float64 `json:"points,omitempty"`
	Target    *float64     `json:"target,omitempty"`
}

func toRecord(obs screen.Observation) FrameRecord {
	rec := FrameRecord{
		Timestamp: obs.Frame.Timestamp,
		Valid:     obs.Frame.Valid,
		Dropped:   obs.Frame.Dropped,
	}
	if len(obs.Frame.Points) > 0 {
		rec.Points = make([][3]float64, len(obs.Frame.Points))
		for i, p := range obs.Frame.Points {
			rec.Points[i] = [3]float64{p.X, p.Y, p.Z}
		}
	}
	if obs.HasTarget {
		t := obs.Target
		rec.Target = &t
	}
	return rec
}

func (r FrameRecord) observation() screen.Observation {
	obs := screen.Observation{
		Frame: screen.LandmarkFrame{
			Timestamp: r.Timestamp,
			Valid:     r.Valid,
			Dropped:   r.Dropped,
		},
	}
	if len(r.Points) > 0 {
		obs.Frame.Points = make([]screen.Point3D, len(r.Points))
		for i, p := range r.Points {
			obs.Frame.Points[i] = screen.Point3D{X: p[0], Y: p[1], Z: p[2]}
		}
	}
	if r.Target != nil {
		obs.Target = *r.Target
		obs.HasTarget = true
	}
	return obs
}

// Replay is a screen.FrameSource over a recorded stream. It drives a manual
// clock from the recorded timestamps so phase timing matches the recording.
type Replay struct {
	scanner *bufio.Scanner
	clock   *clock.Manual
	line    int

	pending *screen.Observation
	last    time.Time
	period  time.Duration
}

// NewReplay reads the first record and sets clk to its timestamp, so a
// session started afterwards begins at the recording's start.
func NewReplay(r io.Reader, clk *clock.Manual) (*Replay, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	rp := &Replay{scanner: scanner, clock: clk}

	obs, err := rp.read()
	if errors.Is(err, io.EOF) {
		return rp, nil
	}
	if err != nil {
		return nil, err
	}
	rp.pending = &obs
	clk.Set(obs.Frame.Timestamp)
	return rp, nil
}

// Next returns the next recorded observation. At the end of the stream the
// clock is moved one frame period past the last frame, closing out the phase
// that frame belonged to, and io.EOF is returned.
func (rp *Replay) Next(ctx context.Context) (screen.Observation, error) {
	if err := ctx.Err(); err != nil {
		return screen.Observation{}, err
	}

	var obs screen.Observation
	if rp.pending != nil {
		obs = *rp.pending
		rp.pending = nil
	} else {
		var err error
		obs, err = rp.read()
		if errors.Is(err, io.EOF) {
			if !rp.last.IsZero() {
				rp.clock.Set(rp.last.Add(rp.period))
			}
			return screen.Observation{}, io.EOF
		}
		if err != nil {
			return screen.Observation{}, err
		}
	}

	ts := obs.Frame.Timestamp
	if !rp.last.IsZero() && ts.After(rp.last) {
		rp.period = ts.Sub(rp.last)
	}
	if ts.After(rp.last) {
		rp.last = ts
	}
	rp.clock.Set(ts)
	return obs, nil
}

func (rp *Replay) read() (screen.Observation, error) {
	for rp.scanner.Scan() {
		rp.line++
		data := rp.scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		var rec FrameRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return screen.Observation{}, fmt.Errorf("line %d: %w", rp.line, err)
		}
		if rec.Timestamp.IsZero() {
			return screen.Observation{}, fmt.Errorf("line %d: missing timestamp", rp.line)
		}
		if !rec.Timestamp.After(rp.last) && !rp.last.IsZero() {
			logrus.Warnf("line %d: timestamp %s not after previous frame", rp.line, rec.Timestamp.Format(time.RFC3339Nano))
		}
		return rec.observation(), nil
	}
	if err := rp.scanner.Err(); err != nil {
		return screen.Observation{}, fmt.Errorf("line %d: %w", rp.line+1, err)
	}
	return screen.Observation{}, io.EOF
}

// Writer records observations as JSON Lines.
type Writer struct {
	enc *json.Encoder
	n   int
}

// NewWriter creates a Writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: json.NewEncoder(w)}
}

// Write appends one observation.
func (w *Writer) Write(obs screen.Observation) error {
	if err := w.enc.Encode(toRecord(obs)); err != nil {
		return fmt.Errorf("writing frame %d: %w", w.n, err)
	}
	w.n++
	return nil
}

// Count returns the number of observations written.
func (w *Writer) Count() int { return w.n }

// Tee wraps a source so every observation it yields is also recorded.
func Tee(src screen.FrameSource, w *Writer) screen.FrameSource {
	return &tee{src: src, w: w}
}

type tee struct {
	src screen.FrameSource
	w   *Writer
}

func (t *tee) Next(ctx context.Context) (screen.Observation, error) {
	obs, err := t.src.Next(ctx)
	if err != nil {
		return obs, err
	}
	if err := t.w.Write(obs); err != nil {
		return screen.Observation{}, err
	}
	return obs, nil
}
