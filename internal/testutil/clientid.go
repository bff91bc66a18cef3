package testutil

import "sync/atomic"

// SequentialClientIDs hands out client IDs 1, 2, 3, ... so that documents
// created in a test encode identically from run to run.
//
// Implements engine.ClientIDGenerator. Safe for concurrent use.
type SequentialClientIDs struct {
	next atomic.Uint64
}

// NewSequentialClientIDs returns a generator whose first ID is start.
// A start of 0 is treated as 1.
func NewSequentialClientIDs(start uint64) *SequentialClientIDs {
	if start == 0 {
		start = 1
	}
	g := &SequentialClientIDs{}
	g.next.Store(start)
	return g
}

// Generate returns the next ID.
func (g *SequentialClientIDs) Generate() uint64 {
	return g.next.Add(1) - 1
}
