package data

import "time"

// Clock supplies the timestamp the audit store assigns to events that
// arrive without one.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real time.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FrozenClock returns a pinned instant so tests get deterministic rows.
type FrozenClock struct {
	at time.Time
}

// NewFrozenClock pins the clock to at.
func NewFrozenClock(at time.Time) *FrozenClock {
	return &FrozenClock{at: at}
}

func (c *FrozenClock) Now() time.Time { return c.at }

// Advance moves the clock forward by d.
func (c *FrozenClock) Advance(d time.Duration) {
	c.at = c.at.Add(d)
}
