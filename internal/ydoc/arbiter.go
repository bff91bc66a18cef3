package ydoc

import (
	"fmt"
	"runtime"

	"github.com/roach88/ydoc/internal/engine"
)

// Commit triggers, reported to the Recorder.
const (
	TriggerExplicit  = "explicit"
	TriggerRelease   = "release"
	TriggerFinalizer = "finalizer"
)

// arbiter owns a document's single mutable transaction.
//
// State machine: Idle (current == nil) → Open → Committed → Idle.
//
// INVARIANTS:
//   - current is nil or the only txnState whose engine transaction is open
//     or committing
//   - a txnState commits at most once
//   - the engine's Begin is only called while Idle, so its single-transaction
//     assertion never fires through this type
type arbiter struct {
	doc      *Document
	current  *txnState
	releases *releaseQueue
}

// txnState is the shared state behind every reference to one transaction.
type txnState struct {
	arb       *arbiter
	txn       *engine.Txn
	refs      int
	committed bool

	beforeState map[uint64]uint64
}

func newArbiter(d *Document) *arbiter {
	return &arbiter{doc: d, releases: newReleaseQueue()}
}

// beginOrReuse returns a new reference to the open transaction, opening one
// when Idle. While a commit is running, it returns a reference to the
// committing transaction: reads work, mutations fail with AlreadyCommitted.
func (a *arbiter) beginOrReuse() *Transaction {
	a.drain()
	if a.current == nil {
		a.current = &txnState{arb: a, txn: a.doc.eng.Begin()}
	}
	a.current.refs++
	t := &Transaction{state: a.current}
	runtime.SetFinalizer(t, finalizeTransaction)
	return t
}

// finalizeTransaction runs on the finalizer goroutine for references dropped
// without Release or Commit. It only hands the reference to the queue.
func finalizeTransaction(t *Transaction) {
	if !t.released {
		t.state.arb.releases.Enqueue(t.state)
	}
}

// drain releases references collected by the garbage collector.
func (a *arbiter) drain() {
	for {
		s, ok := a.releases.TryDequeue()
		if !ok {
			return
		}
		a.release(s, TriggerFinalizer)
	}
}

// Drain processes transaction references the garbage collector has
// released, committing their transaction if they were the last ones.
// Documents drain automatically whenever a transaction is handed out.
func (d *Document) Drain() { d.arb.drain() }

// release drops one reference. Dropping the last reference of an open
// transaction commits it; errors go to the document's error channel.
func (a *arbiter) release(s *txnState, trigger string) {
	s.refs--
	if s.refs > 0 || s.committed {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			a.doc.report(fmt.Errorf("commit on %s panicked: %v", trigger, r))
		}
	}()
	if err := a.commit(s, trigger); err != nil {
		a.doc.report(fmt.Errorf("commit on %s: %w", trigger, err))
	}
}

// commit commits s exactly once.
func (a *arbiter) commit(s *txnState, trigger string) error {
	if s.committed {
		return errAlreadyCommitted()
	}
	s.committed = true
	defer func() {
		if a.current == s {
			a.current = nil
		}
	}()

	res, err := s.txn.Commit()
	if err != nil {
		return translate(err)
	}
	a.doc.recorder.TransactionCommitted(trigger)
	a.doc.logger.Debug("transaction committed",
		"seq", res.Seq,
		"trigger", trigger,
		"changed", res.Changed(),
	)
	return nil
}
