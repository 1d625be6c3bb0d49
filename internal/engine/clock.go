package engine

import (
	"sync/atomic"
	"time"
)

// Clock is the engine's logical clock. Every sequenced call gets the next
// value; seq, not wall time, orders the log.
//
// Reads are safe from any goroutine. Only the Run loop (or Recover)
// advances the clock.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0. The first call gets seq 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock positioned at start, used to resume after
// the stored log has been replayed.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next advances the clock and returns the new value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Peek returns the value Next would return, without advancing.
func (c *Clock) Peek() int64 {
	return c.seq.Load() + 1
}

// Current returns the last value handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// TimeSource supplies ledger time in unix seconds.
type TimeSource interface {
	Now() int64
}

// WallTime reads the system clock.
type WallTime struct{}

// Now returns the current unix time.
func (WallTime) Now() int64 {
	return time.Now().Unix()
}
