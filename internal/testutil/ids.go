package testutil

import (
	"fmt"
	"sync"
)

// FixedIDs issues deterministic transaction ids "<prefix>-0001",
// "<prefix>-0002", ... so golden traces are byte-identical across runs.
//
// Implements engine.IDGenerator.
type FixedIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewFixedIDs creates a generator. An empty prefix defaults to "tx".
func NewFixedIDs(prefix string) *FixedIDs {
	if prefix == "" {
		prefix = "tx"
	}
	return &FixedIDs{prefix: prefix}
}

// Generate returns the next id.
func (g *FixedIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}

// Reset restarts numbering at 1.
func (g *FixedIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
