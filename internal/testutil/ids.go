// Package testutil holds deterministic fixtures shared by package tests.
package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDs generates request IDs "<prefix>-1", "<prefix>-2", ...
//
// It implements invocation.IDGenerator, so log output and golden files
// stay stable between runs. Reset rewinds the sequence for test reuse.
//
// Thread-safety: all methods are safe for concurrent use.
type SequenceIDs struct {
	mu     sync.Mutex
	prefix string
	seq    int64
}

// NewSequenceIDs creates a generator. An empty prefix becomes "req".
func NewSequenceIDs(prefix string) *SequenceIDs {
	if prefix == "" {
		prefix = "req"
	}
	return &SequenceIDs{prefix: prefix}
}

// Generate returns the next ID.
func (g *SequenceIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s-%d", g.prefix, g.seq)
}

// Issued returns how many IDs have been generated.
func (g *SequenceIDs) Issued() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq
}

// Reset rewinds the sequence so the next ID ends in 1.
func (g *SequenceIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}

// FixedID returns the same ID every time.
type FixedID string

// Generate implements invocation.IDGenerator.
func (f FixedID) Generate() string {
	if f == "" {
		return "req-fixed"
	}
	return string(f)
}
