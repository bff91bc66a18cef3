package ydoc

import "sync"

// releaseQueue is a thread-safe FIFO of transaction references released by
// the garbage collector.
//
// Finalizers run on the runtime's finalizer goroutine, which must never touch
// a document. They only enqueue here; the document drains the queue on its
// own call path the next time it hands out a transaction.
type releaseQueue struct {
	mu     sync.Mutex
	states []*txnState
}

func newReleaseQueue() *releaseQueue {
	return &releaseQueue{states: make([]*txnState, 0, 4)}
}

// Enqueue adds a released reference to the back of the queue.
// Safe from any goroutine.
func (q *releaseQueue) Enqueue(s *txnState) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.states = append(q.states, s)
}

// TryDequeue removes the front reference without blocking.
// Returns (nil, false) if the queue is empty.
func (q *releaseQueue) TryDequeue() (*txnState, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.states) == 0 {
		return nil, false
	}
	s := q.states[0]

	// CRITICAL: nil out the slot so the backing array does not keep the
	// transaction state (and through it the document) reachable.
	q.states[0] = nil
	if len(q.states) == 1 {
		q.states = q.states[:0]
	} else {
		q.states = q.states[1:]
	}
	return s, true
}
