package testutil

import (
	"fmt"
	"sync"
)

// SequentialGenerator produces "<prefix>-1", "<prefix>-2", ... for tests
// that need many deterministic IDs.
//
// Unlike bus.FixedGenerator it never runs out, and it can be reset for
// test reuse so the same scenario yields identical IDs on every run.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SequentialGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int64
}

// NewSequentialGenerator creates a generator. An empty prefix defaults
// to "id".
func NewSequentialGenerator(prefix string) *SequentialGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &SequentialGenerator{prefix: prefix}
}

// Generate returns the next ID. Implements bus.IDGenerator.
func (g *SequentialGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// Count returns how many IDs have been generated.
func (g *SequentialGenerator) Count() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}

// Reset restarts numbering. The next Generate returns "<prefix>-1".
func (g *SequentialGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
