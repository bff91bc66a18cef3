package ydoc

import (
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRecorder captures operational counts.
type fakeRecorder struct {
	mu       sync.Mutex
	triggers []string
	failures []string
	applied  []int
}

func (r *fakeRecorder) TransactionCommitted(trigger string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggers = append(r.triggers, trigger)
}

func (r *fakeRecorder) IntegrationFailed(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, code)
}

func (r *fakeRecorder) UpdateApplied(size int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied = append(r.applied, size)
}

func (r *fakeRecorder) committed(trigger string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.triggers {
		if t == trigger {
			return true
		}
	}
	return false
}

func newTestDoc(t *testing.T, client uint64, opts ...Option) *Document {
	t.Helper()
	opts = append([]Option{
		WithClientID(client),
		WithLogger(slog.New(slog.DiscardHandler)),
	}, opts...)
	d, err := New(opts...)
	require.NoError(t, err)
	return d
}

func TestNew_InvalidOffsetKind(t *testing.T) {
	_, err := New(WithOffsetKindName("utf-7"))
	require.Error(t, err)
	assert.Equal(t, ErrCodeInvalidOption, CodeOf(err))
}

func TestNew_Options(t *testing.T) {
	d := newTestDoc(t, 42, WithOffsetKindName("UTF-16"), WithSkipGC(true), WithGUID("doc-1"))
	assert.Equal(t, uint64(42), d.ClientID())
	assert.Equal(t, OffsetUTF16, d.OffsetKind())
	assert.True(t, d.SkipGC())
	assert.Equal(t, "doc-1", d.GUID())
	assert.Equal(t, "Document(doc-1, client=42)", d.String())
}

func TestDocument_RootKindMismatch(t *testing.T) {
	d := newTestDoc(t, 1)
	_, err := d.GetArray("x")
	require.NoError(t, err)

	_, err = d.GetMap("x")
	require.Error(t, err)
	assert.Equal(t, ErrCodeKindMismatch, CodeOf(err))

	again, err := d.Root("x", KindArray)
	require.NoError(t, err)
	assert.IsType(t, &Array{}, again)
}

func TestDocument_TransactSharesTransaction(t *testing.T) {
	d := newTestDoc(t, 1)
	arr, err := d.GetArray("list")
	require.NoError(t, err)

	var outer *Transaction
	err = d.Transact(func(txn *Transaction) error {
		outer = txn
		inner := d.BeginTransaction()
		assert.Same(t, txn.state, inner.state, "nested begin must reuse the open transaction")
		require.NoError(t, arr.Append(inner, 1))
		inner.Release()
		assert.False(t, txn.Committed(), "releasing an inner reference must not commit")
		return arr.Append(txn, 2)
	})
	require.NoError(t, err)
	assert.True(t, outer.Committed())
	assert.Equal(t, []any{float64(1), float64(2)}, arr.Values())
}

func TestDocument_TransactReturnsCallbackError(t *testing.T) {
	d := newTestDoc(t, 1)
	boom := errors.New("boom")
	err := d.Transact(func(*Transaction) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestTransaction_CommitTwice(t *testing.T) {
	d := newTestDoc(t, 1)
	txn := d.BeginTransaction()
	require.NoError(t, txn.Commit())

	err := txn.Commit()
	require.Error(t, err)
	assert.True(t, IsAlreadyCommitted(err))
	assert.True(t, IsStaleTransaction(err))
}

func TestTransaction_StaleReference(t *testing.T) {
	d := newTestDoc(t, 1)
	arr, err := d.GetArray("list")
	require.NoError(t, err)

	first := d.BeginTransaction()
	second := d.BeginTransaction()
	require.NoError(t, first.Commit())

	err = arr.Append(second, 1)
	require.Error(t, err)
	assert.True(t, IsAlreadyCommitted(err))
	second.Release()

	// A fresh transaction works.
	require.NoError(t, arr.Append(nil, 1))
	assert.Equal(t, 1, arr.Len())
}

func TestTransaction_ReleaseCommits(t *testing.T) {
	rec := &fakeRecorder{}
	d := newTestDoc(t, 1, WithMetrics(rec))
	arr, err := d.GetArray("list")
	require.NoError(t, err)

	var updates int
	d.ObserveAfterTransaction(func(*AfterTransactionEvent) { updates++ })

	txn := d.BeginTransaction()
	require.NoError(t, arr.Append(txn, "a"))
	assert.Equal(t, 0, updates)

	txn.Release()
	assert.Equal(t, 1, updates)
	assert.True(t, txn.Committed())
	assert.True(t, rec.committed(TriggerRelease))

	txn.Release() // idempotent
	assert.Equal(t, 1, updates)
}

func leakTransaction(t *testing.T, d *Document, arr *Array) {
	txn := d.BeginTransaction()
	require.NoError(t, arr.Append(txn, "leaked"))
}

func TestTransaction_FinalizerCommits(t *testing.T) {
	rec := &fakeRecorder{}
	d := newTestDoc(t, 1, WithMetrics(rec))
	arr, err := d.GetArray("list")
	require.NoError(t, err)

	leakTransaction(t, d, arr)

	require.Eventually(t, func() bool {
		runtime.GC()
		d.Drain()
		return rec.committed(TriggerFinalizer)
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, []any{"leaked"}, arr.Values())
	// The document accepts new transactions afterwards.
	require.NoError(t, arr.Append(nil, "next"))
	assert.Equal(t, 2, arr.Len())
}

func TestTransaction_ReleaseReportsObserverPanic(t *testing.T) {
	var reported []error
	d := newTestDoc(t, 1, WithErrorHandler(func(err error) { reported = append(reported, err) }))
	arr, err := d.GetArray("list")
	require.NoError(t, err)

	sub, err := arr.Observe(func(*ArrayEvent) { panic("observer failed") })
	require.NoError(t, err)

	require.NoError(t, arr.Append(nil, 1))
	require.Len(t, reported, 1)
	assert.Contains(t, reported[0].Error(), "observer failed")

	assert.True(t, arr.Unobserve(sub))
	require.NoError(t, arr.Append(nil, 2))
	assert.Equal(t, 2, arr.Len())
}

func TestDocument_ObserverPanicStillRunsAfterTransaction(t *testing.T) {
	var reported []error
	d := newTestDoc(t, 1, WithErrorHandler(func(err error) { reported = append(reported, err) }))
	arr, err := d.GetArray("list")
	require.NoError(t, err)
	_, err = arr.Observe(func(*ArrayEvent) { panic("observer failed") })
	require.NoError(t, err)

	var after []*AfterTransactionEvent
	d.ObserveAfterTransaction(func(e *AfterTransactionEvent) { after = append(after, e) })

	txn := d.BeginTransaction()
	require.NoError(t, arr.Append(txn, 1))
	require.NoError(t, txn.Commit())

	assert.Len(t, after, 1)
	require.Len(t, reported, 1)
	assert.Contains(t, reported[0].Error(), "observer failed")
	assert.Equal(t, []any{float64(1)}, arr.Values())
}

func TestTransaction_CrossDocument(t *testing.T) {
	d1 := newTestDoc(t, 1)
	d2 := newTestDoc(t, 2)
	arr, err := d1.GetArray("list")
	require.NoError(t, err)

	txn := d2.BeginTransaction()
	defer txn.Release()

	err = arr.Append(txn, 1)
	require.Error(t, err)
	assert.True(t, IsCrossDocument(err))
	assert.Equal(t, 0, arr.Len())
}

func TestTransaction_BeforeState(t *testing.T) {
	d := newTestDoc(t, 7)
	arr, err := d.GetArray("list")
	require.NoError(t, err)
	require.NoError(t, arr.Append(nil, 1, 2))

	err = d.Transact(func(txn *Transaction) error {
		before := txn.BeforeState()
		assert.Equal(t, map[uint64]uint64{7: 2}, before)
		require.NoError(t, arr.Append(txn, 3))
		assert.Equal(t, before, txn.BeforeState(), "before state must not move during the transaction")
		return nil
	})
	require.NoError(t, err)
}

func TestTransaction_DiffAndApply(t *testing.T) {
	rec := &fakeRecorder{}
	src := newTestDoc(t, 1)
	dst := newTestDoc(t, 2, WithMetrics(rec))

	text, err := src.GetText("t")
	require.NoError(t, err)
	require.NoError(t, text.Extend(nil, "hello"))

	var update []byte
	err = dst.Transact(func(txn *Transaction) error {
		sv := txn.StateVector()
		return src.Transact(func(stxn *Transaction) error {
			update, err = stxn.Diff(sv)
			return err
		})
	})
	require.NoError(t, err)

	require.NoError(t, dst.Transact(func(txn *Transaction) error { return txn.Apply(update) }))
	got, err := dst.GetText("t")
	require.NoError(t, err)
	assert.Equal(t, "hello", got.String())
	assert.Equal(t, []int{len(update)}, rec.applied)
}

func TestDocument_Snapshot(t *testing.T) {
	d := newTestDoc(t, 1)
	m, err := d.GetMap("config")
	require.NoError(t, err)
	require.NoError(t, m.Set(nil, "name", "demo"))
	text, err := d.GetText("body")
	require.NoError(t, err)
	require.NoError(t, text.Extend(nil, "hi"))

	snap := d.Snapshot()
	assert.Equal(t, `{"body":"hi","config":{"name":"demo"}}`, string(mustCanonical(t, snap)))
}
