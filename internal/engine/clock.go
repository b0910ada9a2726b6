package engine

import "sync/atomic"

// Clock hands out the sequence numbers stamped on processed events.
//
// Sequence numbers give the processing order inside one terminal; they are
// never compared across terminals and never replace wall-clock timestamps on
// records.
//
// Safe for concurrent use, although only the Run loop calls Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at start.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next increments the clock and returns the new value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last value handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
