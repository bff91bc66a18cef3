package ydoc

import (
	"maps"
	"runtime"

	"github.com/roach88/ydoc/internal/engine"
)

// Transaction is one reference to a document's mutable transaction.
//
// Several references may share the same transaction; they are handed out by
// Document.BeginTransaction and Document.Transact. The transaction commits
// when Commit is called on any reference, or when the last reference is
// released. A reference that is neither committed nor released is released
// by the garbage collector, so a document is never left with a dangling
// open transaction.
//
// Once committed, every reference fails with ErrCodeAlreadyCommitted.
type Transaction struct {
	state    *txnState
	released bool
}

// Document returns the document the transaction belongs to.
func (t *Transaction) Document() *Document { return t.state.arb.doc }

// Committed reports whether the transaction has committed.
func (t *Transaction) Committed() bool { return t.state.committed }

// Commit commits the transaction and releases this reference.
// Other references become stale. Calling Commit twice fails with
// ErrCodeAlreadyCommitted.
func (t *Transaction) Commit() error {
	if t.state.committed {
		return errAlreadyCommitted()
	}
	if !t.released {
		t.released = true
		runtime.SetFinalizer(t, nil)
		t.state.refs--
	}
	return t.state.arb.commit(t.state, TriggerExplicit)
}

// Release gives up this reference. Releasing the last reference commits.
// Release is idempotent.
func (t *Transaction) Release() {
	if t.released {
		return
	}
	t.released = true
	runtime.SetFinalizer(t, nil)
	t.state.arb.release(t.state, TriggerRelease)
}

// engineTxn returns the engine transaction for a mutation.
func (t *Transaction) engineTxn() (*engine.Txn, error) {
	if t.state.committed {
		return nil, errAlreadyCommitted()
	}
	return t.state.txn, nil
}

// BeforeState returns the state vector captured when the transaction opened.
// The result is computed once and cached.
func (t *Transaction) BeforeState() map[uint64]uint64 {
	if t.state.beforeState == nil {
		t.state.beforeState = t.state.txn.BeforeState()
	}
	return maps.Clone(t.state.beforeState)
}

// StateVector encodes the document's current state vector.
func (t *Transaction) StateVector() []byte {
	return t.Document().eng.EncodeStateVector()
}

// Diff encodes everything the holder of the encoded state vector sv lacks.
func (t *Transaction) Diff(sv []byte) ([]byte, error) {
	update, err := t.Document().eng.EncodeStateAsUpdate(sv)
	return update, translate(err)
}

// Apply integrates a binary update.
func (t *Transaction) Apply(update []byte) error {
	et, err := t.engineTxn()
	if err != nil {
		return err
	}
	if err := et.ApplyUpdate(update); err != nil {
		return translate(err)
	}
	t.Document().recorder.UpdateApplied(len(update))
	return nil
}
