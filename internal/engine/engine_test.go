package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ydoc/internal/ir"
)

func newTestDoc(t *testing.T, client uint64, opts ...Option) *Doc {
	t.Helper()
	return New(append([]Option{WithClientID(client)}, opts...)...)
}

func mustRoot(t *testing.T, d *Doc, name string, kind Kind) *Branch {
	t.Helper()
	b, err := d.Root(name, kind)
	require.NoError(t, err)
	return b
}

func transact(t *testing.T, d *Doc, fn func(*Txn) error) *CommitResult {
	t.Helper()
	res, err := d.Transact(fn)
	require.NoError(t, err)
	return res
}

// syncDocs exchanges missing state in both directions.
func syncDocs(t *testing.T, a, b *Doc) {
	t.Helper()
	ua, err := a.EncodeStateAsUpdate(b.EncodeStateVector())
	require.NoError(t, err)
	ub, err := b.EncodeStateAsUpdate(a.EncodeStateVector())
	require.NoError(t, err)
	transact(t, b, func(txn *Txn) error { return txn.ApplyUpdate(ua) })
	transact(t, a, func(txn *Txn) error { return txn.ApplyUpdate(ub) })
}

func nums(ns ...float64) ir.IRArray {
	arr := make(ir.IRArray, len(ns))
	for i, n := range ns {
		arr[i] = ir.IRNumber(n)
	}
	return arr
}

func TestDoc_Begin_PanicsWhenTransactionOpen(t *testing.T) {
	d := newTestDoc(t, 1)
	txn := d.Begin()
	assert.Same(t, txn, d.Active())
	assert.Panics(t, func() { d.Begin() })

	_, err := txn.Commit()
	require.NoError(t, err)
	assert.Nil(t, d.Active())
	assert.NotPanics(t, func() { _, _ = d.Begin().Commit() })
}

func TestDoc_TxnSeqStart(t *testing.T) {
	d := newTestDoc(t, 1, WithTxnSeqStart(41))
	txn := d.Begin()
	assert.Equal(t, uint64(42), txn.Seq())
	_, err := txn.Commit()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), d.TxnSeq())
}

func TestDoc_Root_KindMismatch(t *testing.T) {
	d := newTestDoc(t, 1)
	mustRoot(t, d, "items", KindArray)

	_, err := d.Root("items", KindMap)
	require.Error(t, err)
	assert.True(t, IsKindMismatch(err))

	same, err := d.Root("items", KindUndefined)
	require.NoError(t, err)
	assert.Equal(t, KindArray, same.Kind())
	assert.Equal(t, []string{"items"}, d.RootNames())
}

func TestTxn_Commit_Twice(t *testing.T) {
	d := newTestDoc(t, 1)
	txn := d.Begin()
	_, err := txn.Commit()
	require.NoError(t, err)

	_, err = txn.Commit()
	assert.True(t, IsTransactionFinished(err))

	arr := mustRoot(t, d, "a", KindArray)
	err = txn.InsertValues(arr, 0, nums(1))
	assert.True(t, IsTransactionFinished(err))
}

func TestTxn_InsertValues(t *testing.T) {
	d := newTestDoc(t, 1)
	arr := mustRoot(t, d, "arr", KindArray)

	transact(t, d, func(txn *Txn) error { return txn.InsertValues(arr, 0, nums(1, 2, 3)) })
	transact(t, d, func(txn *Txn) error { return txn.InsertValues(arr, 1, nums(9)) })

	assert.Equal(t, 4, arr.Len())
	assert.True(t, ir.Equal(nums(1, 9, 2, 3), arr.ToIR()))

	v, err := arr.Get(1)
	require.NoError(t, err)
	assert.Equal(t, ir.IRNumber(9), v)

	_, err = arr.Get(4)
	assert.True(t, IsIndexOutOfRange(err))
}

func TestTxn_InsertValues_OutOfRange(t *testing.T) {
	d := newTestDoc(t, 1)
	arr := mustRoot(t, d, "arr", KindArray)

	_, err := d.Transact(func(txn *Txn) error { return txn.InsertValues(arr, 1, nums(1)) })
	assert.True(t, IsIndexOutOfRange(err))
	assert.Equal(t, 0, arr.Len())
}

func TestTxn_Remove(t *testing.T) {
	d := newTestDoc(t, 1)
	arr := mustRoot(t, d, "arr", KindArray)
	transact(t, d, func(txn *Txn) error { return txn.InsertValues(arr, 0, nums(1, 2, 3, 4)) })
	transact(t, d, func(txn *Txn) error { return txn.Remove(arr, 1, 2) })

	assert.True(t, ir.Equal(nums(1, 4), arr.ToIR()))

	_, err := d.Transact(func(txn *Txn) error { return txn.Remove(arr, 1, 5) })
	assert.True(t, IsIndexOutOfRange(err))
}

func TestTxn_Map(t *testing.T) {
	d := newTestDoc(t, 1)
	m := mustRoot(t, d, "m", KindMap)

	transact(t, d, func(txn *Txn) error {
		if err := txn.SetValue(m, "a", ir.IRNumber(1)); err != nil {
			return err
		}
		return txn.SetValue(m, "b", ir.IRString("x"))
	})
	transact(t, d, func(txn *Txn) error { return txn.SetValue(m, "a", ir.IRNumber(2)) })

	v, ok := m.Entry("a")
	require.True(t, ok)
	assert.Equal(t, ir.IRNumber(2), v)
	assert.Equal(t, []string{"a", "b"}, m.Keys())

	transact(t, d, func(txn *Txn) error {
		removed, err := txn.RemoveKey(m, "b")
		assert.True(t, removed)
		return err
	})
	_, ok = m.Entry("b")
	assert.False(t, ok)
	assert.Equal(t, 1, m.EntryCount())
}

func TestTxn_NestedContainers(t *testing.T) {
	d := newTestDoc(t, 1)
	root := mustRoot(t, d, "root", KindMap)

	var list *Branch
	transact(t, d, func(txn *Txn) error {
		var err error
		list, err = txn.SetContainer(root, "list", KindArray, "")
		if err != nil {
			return err
		}
		inner, err := txn.InsertContainer(list, 0, KindMap, "")
		if err != nil {
			return err
		}
		return txn.SetValue(inner, "k", ir.IRBool(true))
	})

	want := ir.IRObject{"list": ir.IRArray{ir.IRObject{"k": ir.IRBool(true)}}}
	assert.True(t, ir.Equal(want, root.ToIR()))

	inner, err := list.Get(0)
	require.NoError(t, err)
	assert.Equal(t, []any{"list", 0}, inner.(*Branch).Path())
	assert.Same(t, root, inner.(*Branch).Root())
	assert.Same(t, list, inner.(*Branch).Parent())
	assert.Empty(t, root.Path())
}

func TestTxn_RemoveContainer_DeletesChildren(t *testing.T) {
	d := newTestDoc(t, 1)
	root := mustRoot(t, d, "root", KindArray)

	var child *Branch
	transact(t, d, func(txn *Txn) error {
		var err error
		child, err = txn.InsertContainer(root, 0, KindArray, "")
		if err != nil {
			return err
		}
		return txn.InsertValues(child, 0, nums(1, 2))
	})
	transact(t, d, func(txn *Txn) error { return txn.Remove(root, 0, 1) })

	assert.True(t, child.Deleted())
	assert.Equal(t, 0, child.Len())
}

func TestText_OffsetKinds(t *testing.T) {
	tests := []struct {
		name   string
		kind   OffsetKind
		text   string
		length int
	}{
		{"bytes", OffsetBytes, "héllo", 6},
		{"utf16 surrogate pair", OffsetUTF16, "a\U0001F600b", 4},
		{"utf32", OffsetUTF32, "a\U0001F600b", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDoc(t, 1, WithOffsetKind(tt.kind))
			text := mustRoot(t, d, "t", KindText)
			transact(t, d, func(txn *Txn) error { return txn.InsertString(text, 0, tt.text) })

			assert.Equal(t, tt.length, text.Len())
			assert.Equal(t, tt.text, text.String())
		})
	}
}

func TestText_InsertInsideCharacter(t *testing.T) {
	d := newTestDoc(t, 1, WithOffsetKind(OffsetUTF16))
	text := mustRoot(t, d, "t", KindText)
	transact(t, d, func(txn *Txn) error { return txn.InsertString(text, 0, "a\U0001F600b") })

	_, err := d.Transact(func(txn *Txn) error { return txn.InsertString(text, 2, "x") })
	assert.True(t, IsIndexOutOfRange(err))

	transact(t, d, func(txn *Txn) error { return txn.Remove(text, 1, 2) })
	assert.Equal(t, "ab", text.String())
	assert.Equal(t, 2, text.Len())
}

func TestText_Embed(t *testing.T) {
	d := newTestDoc(t, 1)
	text := mustRoot(t, d, "t", KindText)
	transact(t, d, func(txn *Txn) error {
		if err := txn.InsertString(text, 0, "ab"); err != nil {
			return err
		}
		return txn.InsertEmbed(text, 1, ir.IRObject{"img": ir.IRString("x.png")})
	})

	assert.Equal(t, "ab", text.String())
	assert.Equal(t, 3, text.Len())
	v, err := text.Get(1)
	require.NoError(t, err)
	assert.Equal(t, ir.IRObject{"img": ir.IRString("x.png")}, v)
}

func TestConvergence_ConcurrentInsertsAtSamePosition(t *testing.T) {
	d1 := newTestDoc(t, 1)
	d2 := newTestDoc(t, 2)
	t1 := mustRoot(t, d1, "t", KindText)
	t2 := mustRoot(t, d2, "t", KindText)

	transact(t, d1, func(txn *Txn) error { return txn.InsertString(t1, 0, "a") })
	transact(t, d2, func(txn *Txn) error { return txn.InsertString(t2, 0, "b") })
	syncDocs(t, d1, d2)

	assert.Equal(t, "ab", t1.String())
	assert.Equal(t, "ab", t2.String())
}

func TestConvergence_InterleavedEdits(t *testing.T) {
	d1 := newTestDoc(t, 10)
	d2 := newTestDoc(t, 20)
	a1 := mustRoot(t, d1, "a", KindArray)
	a2 := mustRoot(t, d2, "a", KindArray)

	transact(t, d1, func(txn *Txn) error { return txn.InsertValues(a1, 0, nums(1, 2, 3)) })
	syncDocs(t, d1, d2)

	transact(t, d1, func(txn *Txn) error { return txn.InsertValues(a1, 1, nums(10, 11)) })
	transact(t, d2, func(txn *Txn) error { return txn.InsertValues(a2, 1, nums(20)) })
	transact(t, d2, func(txn *Txn) error { return txn.Remove(a2, 2, 1) })
	syncDocs(t, d1, d2)

	assert.True(t, ir.Equal(a1.ToIR(), a2.ToIR()), "replicas diverged: %v vs %v", a1.ToIR(), a2.ToIR())
	assert.Equal(t, 5, a1.Len())
	assert.True(t, d1.StateVector().Equal(d2.StateVector()))
}

func TestConvergence_ConcurrentMapWrites(t *testing.T) {
	d1 := newTestDoc(t, 1)
	d2 := newTestDoc(t, 2)
	m1 := mustRoot(t, d1, "m", KindMap)
	m2 := mustRoot(t, d2, "m", KindMap)

	transact(t, d1, func(txn *Txn) error { return txn.SetValue(m1, "k", ir.IRString("one")) })
	transact(t, d2, func(txn *Txn) error { return txn.SetValue(m2, "k", ir.IRString("two")) })
	syncDocs(t, d1, d2)

	v1, _ := m1.Entry("k")
	v2, _ := m2.Entry("k")
	assert.Equal(t, v1, v2)
}

func TestUpdate_RoundTrip(t *testing.T) {
	src := newTestDoc(t, 7)
	root := mustRoot(t, src, "root", KindMap)
	transact(t, src, func(txn *Txn) error {
		if err := txn.SetValue(root, "n", ir.IRBigInt(1<<60)); err != nil {
			return err
		}
		if err := txn.SetValue(root, "buf", ir.IRBuffer{1, 2, 3}); err != nil {
			return err
		}
		text, err := txn.SetContainer(root, "text", KindText, "")
		if err != nil {
			return err
		}
		if err := txn.InsertString(text, 0, "hello"); err != nil {
			return err
		}
		xml, err := txn.SetContainer(root, "xml", KindXMLElement, "p")
		if err != nil {
			return err
		}
		return txn.SetValue(xml, "class", ir.IRString("lead"))
	})

	update, err := src.EncodeStateAsUpdate(nil)
	require.NoError(t, err)

	dst := newTestDoc(t, 8)
	transact(t, dst, func(txn *Txn) error { return txn.ApplyUpdate(update) })
	got := mustRoot(t, dst, "root", KindMap)

	assert.True(t, ir.Equal(root.ToIR(), got.ToIR()))
	assert.True(t, src.StateVector().Equal(dst.StateVector()))
	assert.False(t, dst.HasPending())
}

func TestUpdate_MergesRuns(t *testing.T) {
	d := newTestDoc(t, 1)
	text := mustRoot(t, d, "t", KindText)
	transact(t, d, func(txn *Txn) error { return txn.InsertString(text, 0, "hello") })

	structs := groupStructs(d.store.clients[1])
	assert.Len(t, structs, 1)

	update, err := d.EncodeStateAsUpdate(nil)
	require.NoError(t, err)
	u, err := decodeUpdate(New(), update)
	require.NoError(t, err)
	require.Len(t, u.items[1], 5)
	assert.Equal(t, ID{Client: 1, Clock: 3}, *u.items[1][4].Origin)
}

func TestUpdate_OutOfOrderIsPending(t *testing.T) {
	src := newTestDoc(t, 1)
	text := mustRoot(t, src, "t", KindText)
	first := transact(t, src, func(txn *Txn) error { return txn.InsertString(text, 0, "ab") })
	second := transact(t, src, func(txn *Txn) error { return txn.InsertString(text, 2, "cd") })
	third := transact(t, src, func(txn *Txn) error { return txn.Remove(text, 0, 1) })

	dst := newTestDoc(t, 2)
	transact(t, dst, func(txn *Txn) error { return txn.ApplyUpdate(third.Update) })
	transact(t, dst, func(txn *Txn) error { return txn.ApplyUpdate(second.Update) })
	assert.True(t, dst.HasPending())
	assert.Equal(t, 2, dst.PendingCount())

	transact(t, dst, func(txn *Txn) error { return txn.ApplyUpdate(first.Update) })
	assert.False(t, dst.HasPending())
	got := mustRoot(t, dst, "t", KindText)
	assert.Equal(t, "bcd", got.String())
}

func TestUpdate_Idempotent(t *testing.T) {
	src := newTestDoc(t, 1)
	arr := mustRoot(t, src, "a", KindArray)
	res := transact(t, src, func(txn *Txn) error { return txn.InsertValues(arr, 0, nums(1, 2)) })

	dst := newTestDoc(t, 2)
	for i := 0; i < 3; i++ {
		transact(t, dst, func(txn *Txn) error { return txn.ApplyUpdate(res.Update) })
	}
	got := mustRoot(t, dst, "a", KindArray)
	assert.True(t, ir.Equal(nums(1, 2), got.ToIR()))
}

func TestUpdate_MalformedLeavesDocUntouched(t *testing.T) {
	d := newTestDoc(t, 1)
	before := d.StateVector()

	tests := []struct {
		name string
		data []byte
	}{
		{"truncated", []byte{1, 1}},
		{"bad content tag", []byte{1, 1, 5, 0, 31, 0, 1, 'a'}},
		{"trailing bytes", []byte{0, 0, 9}},
		{"oversized collected run", oversizedCollectedRun(1 << 27)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Transact(func(txn *Txn) error { return txn.ApplyUpdate(tt.data) })
			require.Error(t, err)
			assert.True(t, IsEncodingError(err))
			assert.True(t, before.Equal(d.StateVector()))
		})
	}
}

// oversizedCollectedRun encodes one collected struct claiming n items.
func oversizedCollectedRun(n uint64) []byte {
	e := &encoder{}
	e.writeVarUint(1)
	e.writeVarUint(1)
	e.writeVarUint(7)
	e.writeVarUint(0)
	e.writeByte(byte(tagDeleted))
	e.writeVarUint(0)
	e.writeVarString("")
	e.writeVarUint(n)
	e.writeVarUint(0)
	return e.bytes()
}

func TestUpdate_CollectedRunsAreSplit(t *testing.T) {
	src := newTestDoc(t, 1)
	text := mustRoot(t, src, "t", KindText)
	body := strings.Repeat("x", 3*maxDeletedRun+5)
	transact(t, src, func(txn *Txn) error { return txn.InsertString(text, 0, body) })
	transact(t, src, func(txn *Txn) error { return txn.Remove(text, 0, len(body)) })

	structs := groupStructs(src.store.clients[1])
	require.Len(t, structs, 4)
	for _, s := range structs {
		assert.LessOrEqual(t, len(s), maxDeletedRun)
	}

	update, err := src.EncodeStateAsUpdate(nil)
	require.NoError(t, err)
	dst := newTestDoc(t, 2)
	transact(t, dst, func(txn *Txn) error { return txn.ApplyUpdate(update) })
	assert.True(t, src.StateVector().Equal(dst.StateVector()))
	assert.Equal(t, "", mustRoot(t, dst, "t", KindText).String())
}

func TestCommit_UpdateOnlyWhenChanged(t *testing.T) {
	d := newTestDoc(t, 1)
	calls := 0
	d.ObserveAfterTransaction(func(*CommitResult) { calls++ })

	res := transact(t, d, func(*Txn) error { return nil })
	assert.False(t, res.Changed())
	assert.Equal(t, 0, calls)

	arr := mustRoot(t, d, "a", KindArray)
	res = transact(t, d, func(txn *Txn) error { return txn.InsertValues(arr, 0, nums(1)) })
	assert.True(t, res.Changed())
	assert.Equal(t, 1, calls)
	assert.Equal(t, uint64(1), res.AfterState.Get(1))
}

func TestCommit_GarbageCollectsDeletedContent(t *testing.T) {
	tests := []struct {
		name   string
		skipGC bool
	}{
		{"gc", false},
		{"skip gc", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDoc(t, 1, WithSkipGC(tt.skipGC))
			arr := mustRoot(t, d, "a", KindArray)
			transact(t, d, func(txn *Txn) error { return txn.InsertValues(arr, 0, nums(1, 2)) })
			transact(t, d, func(txn *Txn) error { return txn.Remove(arr, 0, 1) })

			it := d.store.find(ID{Client: 1, Clock: 0})
			require.NotNil(t, it)
			_, collected := it.content.(deletedContent)
			assert.Equal(t, !tt.skipGC, collected)
			assert.True(t, ir.Equal(nums(2), arr.ToIR()))
		})
	}
}

func TestCommit_ObserverPanicDoesNotStopCommit(t *testing.T) {
	var recovered []error
	d := newTestDoc(t, 1, WithObserverPanicHandler(func(err error) { recovered = append(recovered, err) }))
	arr := mustRoot(t, d, "a", KindArray)
	arr.Observe(func(*Event) { panic("boom") })
	deepCalls, afterCalls := 0, 0
	arr.ObserveDeep(func([]*Event) { deepCalls++ })
	d.ObserveAfterTransaction(func(*CommitResult) { afterCalls++ })

	res, err := d.Transact(func(txn *Txn) error { return txn.InsertValues(arr, 0, nums(1)) })
	require.NoError(t, err)
	assert.True(t, res.Changed())
	assert.Equal(t, 1, deepCalls)
	assert.Equal(t, 1, afterCalls)
	require.Len(t, recovered, 1)
	assert.Contains(t, recovered[0].Error(), "container observer panicked: boom")
	assert.Nil(t, d.Active())

	transact(t, d, func(txn *Txn) error { return txn.InsertValues(arr, 1, nums(2)) })
	assert.Equal(t, 2, afterCalls)
}

func TestEvent_Delta(t *testing.T) {
	d := newTestDoc(t, 1)
	text := mustRoot(t, d, "t", KindText)
	transact(t, d, func(txn *Txn) error { return txn.InsertString(text, 0, "hello") })

	var got []DeltaOp
	var saved *Event
	text.Observe(func(e *Event) {
		var err error
		got, err = e.Delta()
		require.NoError(t, err)
		saved = e
	})

	transact(t, d, func(txn *Txn) error { return txn.InsertString(text, 5, " world") })
	assert.Equal(t, []DeltaOp{{Retain: 5}, {Insert: " world"}}, got)

	transact(t, d, func(txn *Txn) error { return txn.Remove(text, 0, 6) })
	assert.Equal(t, []DeltaOp{{Delete: 6}}, got)

	_, err := saved.Delta()
	assert.True(t, IsTransactionFinished(err))
}

func TestEvent_DeltaArray(t *testing.T) {
	d := newTestDoc(t, 1)
	arr := mustRoot(t, d, "a", KindArray)
	transact(t, d, func(txn *Txn) error { return txn.InsertValues(arr, 0, nums(1, 2, 3)) })

	var got []DeltaOp
	arr.Observe(func(e *Event) { got, _ = e.Delta() })
	transact(t, d, func(txn *Txn) error {
		if err := txn.Remove(arr, 1, 1); err != nil {
			return err
		}
		return txn.InsertValues(arr, 2, nums(4))
	})

	assert.Equal(t, []DeltaOp{
		{Retain: 1},
		{Delete: 1},
		{Retain: 1},
		{Insert: []any{ir.IRNumber(4)}},
	}, got)
}

func TestEvent_Keys(t *testing.T) {
	d := newTestDoc(t, 1)
	m := mustRoot(t, d, "m", KindMap)

	var got map[string]KeyChange
	m.Observe(func(e *Event) {
		var err error
		got, err = e.Keys()
		require.NoError(t, err)
	})

	transact(t, d, func(txn *Txn) error { return txn.SetValue(m, "a", ir.IRNumber(1)) })
	assert.Equal(t, map[string]KeyChange{"a": {Action: KeyAdd, NewValue: ir.IRNumber(1)}}, got)

	transact(t, d, func(txn *Txn) error { return txn.SetValue(m, "a", ir.IRNumber(2)) })
	assert.Equal(t, map[string]KeyChange{
		"a": {Action: KeyUpdate, OldValue: ir.IRNumber(1), NewValue: ir.IRNumber(2)},
	}, got)

	transact(t, d, func(txn *Txn) error {
		_, err := txn.RemoveKey(m, "a")
		return err
	})
	assert.Equal(t, map[string]KeyChange{"a": {Action: KeyDelete, OldValue: ir.IRNumber(2)}}, got)
}

func TestEvent_DeepObserverOrder(t *testing.T) {
	d := newTestDoc(t, 1)
	root := mustRoot(t, d, "root", KindMap)
	var inner *Branch
	transact(t, d, func(txn *Txn) error {
		var err error
		inner, err = txn.SetContainer(root, "inner", KindArray, "")
		return err
	})

	var paths [][]any
	id := root.ObserveDeep(func(events []*Event) {
		for _, e := range events {
			paths = append(paths, e.Path())
		}
	})
	transact(t, d, func(txn *Txn) error {
		if err := txn.InsertValues(inner, 0, nums(1)); err != nil {
			return err
		}
		return txn.SetValue(root, "x", ir.IRNull{})
	})
	assert.Equal(t, [][]any{{}, {"inner"}}, normalizePaths(paths))

	assert.True(t, root.UnobserveDeep(id))
	assert.False(t, root.UnobserveDeep(id))
}

// normalizePaths turns nil paths into empty slices for comparison.
func normalizePaths(paths [][]any) [][]any {
	for i, p := range paths {
		if p == nil {
			paths[i] = []any{}
		}
	}
	return paths
}

func TestEvent_NewContainerReportsInParentOnly(t *testing.T) {
	d := newTestDoc(t, 1)
	root := mustRoot(t, d, "root", KindArray)

	var targets []*Branch
	root.ObserveDeep(func(events []*Event) {
		for _, e := range events {
			targets = append(targets, e.Target)
		}
	})
	transact(t, d, func(txn *Txn) error {
		child, err := txn.InsertContainer(root, 0, KindArray, "")
		if err != nil {
			return err
		}
		return txn.InsertValues(child, 0, nums(1))
	})
	assert.Equal(t, []*Branch{root}, targets)
}

func TestBranch_XMLString(t *testing.T) {
	d := newTestDoc(t, 1)
	frag := mustRoot(t, d, "div", KindXMLElement)
	transact(t, d, func(txn *Txn) error {
		p, err := txn.InsertContainer(frag, 0, KindXMLElement, "p")
		if err != nil {
			return err
		}
		if err := txn.SetValue(p, "class", ir.IRString("a")); err != nil {
			return err
		}
		text, err := txn.InsertContainer(p, 0, KindXMLText, "")
		if err != nil {
			return err
		}
		return txn.InsertString(text, 0, "hi")
	})
	assert.Equal(t, `<div><p class="a">hi</p></div>`, frag.XMLString())
}
