package engine

import "sync/atomic"

// Clock is a monotonic logical clock numbering a document's transactions.
//
// Item clocks are derived from the block store (one clock per item per
// client); this clock only orders transactions for logging and metrics, so
// two commits of the same document are always distinguishable.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
// However, the document's single-writer design means only one goroutine
// typically calls Next().
type Clock struct {
	seq atomic.Uint64
}

// NewClockAt creates a new clock starting at a specific sequence number.
func NewClockAt(start uint64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
// Calls are linearizable - each call returns a unique, increasing value.
func (c *Clock) Next() uint64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() uint64 {
	return c.seq.Load()
}
