// Package clock provides a testable abstraction over wall-clock time for the
// session state machine.
package clock

import (
	"sync"
	"time"
)

// Clock provides the current time. Phase timers are evaluated against it once
// per loop iteration.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// Real implements Clock using the standard time package. time.Now carries a
// monotonic reading, so phase durations are immune to wall-clock steps.
type Real struct{}

// Now returns the current time.
func (Real) Now() time.Time {
	return time.Now()
}

// Manual is a manually controlled clock. Tests and the synthetic generator
// advance it per frame; replay sources set it to recorded frame timestamps.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual creates a Manual clock set to t.
func NewManual(t time.Time) *Manual {
	return &Manual{now: t}
}

// Now returns the current manual time.
func (c *Manual) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t. Moving backwards is ignored so the clock stays monotonic.
func (c *Manual) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.now) {
		c.now = t
	}
}

// Advance moves the clock forward by d.
func (c *Manual) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.now = c.now.Add(d)
	}
}
