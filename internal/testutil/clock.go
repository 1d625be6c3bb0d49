package testutil

import "sync"

// ManualClock is a ledger time source that only moves when a test says so.
// It implements engine.TimeSource.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ManualClock struct {
	mu  sync.Mutex
	now int64
}

// NewManualClock creates a clock frozen at start (unix seconds).
func NewManualClock(start int64) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current time.
func (c *ManualClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by seconds and returns the new time.
func (c *ManualClock) Advance(seconds int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += seconds
	return c.now
}

// Set jumps to t. Tests use it to move backwards and check that the
// engine clamps ledger time.
func (c *ManualClock) Set(t int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
