package engine

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator issues transaction ids. Implemented by UUIDv7Generator
// (production) and FixedGenerator (tests).
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 transaction ids, so the
// id order of a log matches its seq order.
//
// Stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a hyphenated UUIDv7.
//
// Panics if UUID generation fails (the random source is broken).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined ids in order, for golden traces.
// When the list is exhausted it falls back to "<prefix>-<n>".
type FixedGenerator struct {
	mu     sync.Mutex
	ids    []string
	prefix string
	idx    int
}

// NewFixedGenerator creates a generator that returns ids in order.
//
//	gen := NewFixedGenerator("tx-a", "tx-b")
//	gen.Generate() // "tx-a"
//	gen.Generate() // "tx-b"
//	gen.Generate() // "tx-3"
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids, prefix: "tx"}
}

// NewCountingGenerator returns "<prefix>-1", "<prefix>-2", ...
func NewCountingGenerator(prefix string) *FixedGenerator {
	return &FixedGenerator{prefix: prefix}
}

// Generate returns the next id.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.idx++
	if g.idx <= len(g.ids) {
		return g.ids[g.idx-1]
	}
	return fmt.Sprintf("%s-%d", g.prefix, g.idx)
}
