package ydoc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArrayEvent_Delta(t *testing.T) {
	d := newTestDoc(t, 1)
	arr, err := d.GetArray("list")
	require.NoError(t, err)
	require.NoError(t, arr.Append(nil, "a", "b", "c"))

	var got []Delta
	_, err = arr.Observe(func(e *ArrayEvent) {
		got, err = e.Delta()
		require.NoError(t, err)
		assert.Equal(t, 3, e.Target().Len(), "the target is readable during the callback")
	})
	require.NoError(t, err)

	err = d.Transact(func(txn *Transaction) error {
		if err := arr.Delete(txn, 1); err != nil {
			return err
		}
		return arr.Append(txn, 1)
	})
	require.NoError(t, err)
	assert.Equal(t, []Delta{
		{Retain: 1},
		{Delete: 1},
		{Retain: 1},
		{Insert: []any{float64(1)}},
	}, got)
}

func TestEvent_MemoizedAfterCallback(t *testing.T) {
	d := newTestDoc(t, 1)
	m, err := d.GetMap("m")
	require.NoError(t, err)

	var captured *MapEvent
	_, err = m.Observe(func(e *MapEvent) {
		captured = e
		_, err := e.Keys()
		require.NoError(t, err)
	})
	require.NoError(t, err)
	require.NoError(t, m.Set(nil, "k", "v"))
	require.NotNil(t, captured)

	keys, err := captured.Keys()
	require.NoError(t, err, "keys computed during the callback stay readable")
	assert.Equal(t, map[string]KeyChange{"k": {Action: ActionAdd, NewValue: "v"}}, keys)

	_, err = captured.Delta()
	require.Error(t, err, "delta was never computed during the callback")
	assert.True(t, IsStaleEvent(err))
}

func TestMapEvent_Keys(t *testing.T) {
	d := newTestDoc(t, 1)
	m, err := d.GetMap("m")
	require.NoError(t, err)
	require.NoError(t, m.Update(nil, map[string]any{"keep": 1, "change": 1, "drop": 1}))

	var got map[string]KeyChange
	_, err = m.Observe(func(e *MapEvent) {
		got, err = e.Keys()
		require.NoError(t, err)
	})
	require.NoError(t, err)

	err = d.Transact(func(txn *Transaction) error {
		if err := m.Set(txn, "change", 2); err != nil {
			return err
		}
		if err := m.Delete(txn, "drop"); err != nil {
			return err
		}
		return m.Set(txn, "new", "x")
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]KeyChange{
		"change": {Action: ActionUpdate, OldValue: float64(1), NewValue: float64(2)},
		"drop":   {Action: ActionDelete, OldValue: float64(1)},
		"new":    {Action: ActionAdd, NewValue: "x"},
	}, got)
}

func TestTextEvent_Delta(t *testing.T) {
	d := newTestDoc(t, 1)
	text, err := d.GetText("t")
	require.NoError(t, err)
	require.NoError(t, text.Extend(nil, "hello"))

	var got []Delta
	sub, err := text.Observe(func(e *TextEvent) {
		got, err = e.Delta()
		require.NoError(t, err)
	})
	require.NoError(t, err)

	require.NoError(t, text.Insert(nil, 5, " world"))
	assert.Equal(t, []Delta{{Retain: 5}, {Insert: " world"}}, got)

	assert.True(t, text.Unobserve(sub))
	got = nil
	require.NoError(t, text.Insert(nil, 0, "!"))
	assert.Nil(t, got, "unobserved callbacks must not run")
}

func TestEvent_ObserveDeep(t *testing.T) {
	d := newTestDoc(t, 1)
	root, err := d.GetMap("root")
	require.NoError(t, err)
	list := NewArray()
	require.NoError(t, root.Set(nil, "list", list))

	var paths [][]any
	var targets []Shared
	_, err = root.ObserveDeep(func(evs []*Event) {
		for _, e := range evs {
			paths = append(paths, e.Path())
			targets = append(targets, e.Target())
		}
	})
	require.NoError(t, err)

	err = d.Transact(func(txn *Transaction) error {
		if err := list.Append(txn, 1); err != nil {
			return err
		}
		return root.Set(txn, "flag", true)
	})
	require.NoError(t, err)

	require.Len(t, paths, 2)
	assert.Equal(t, []any{}, normalizePath(paths[0]), "the shallowest change comes first")
	assert.Equal(t, []any{"list"}, paths[1])
	assert.IsType(t, &Map{}, targets[0])
	assert.IsType(t, &Array{}, targets[1])
}

func normalizePath(p []any) []any {
	if p == nil {
		return []any{}
	}
	return p
}

func TestEvent_AfterTransaction(t *testing.T) {
	d := newTestDoc(t, 1)
	arr, err := d.GetArray("list")
	require.NoError(t, err)

	var events []*AfterTransactionEvent
	sub := d.ObserveAfterTransaction(func(e *AfterTransactionEvent) { events = append(events, e) })

	require.NoError(t, arr.Append(nil, "x"))
	require.NoError(t, d.Transact(func(*Transaction) error { return nil }))
	require.Len(t, events, 1, "transactions without changes do not notify")

	e := events[0]
	assert.NotEmpty(t, e.Update())
	assert.NotEqual(t, e.BeforeState(), e.AfterState())

	replica := newTestDoc(t, 2)
	require.NoError(t, ApplyUpdate(replica, e.Update()))
	got, err := replica.GetArray("list")
	require.NoError(t, err)
	assert.Equal(t, []any{"x"}, got.Values())

	assert.True(t, d.UnobserveAfterTransaction(sub))
	require.NoError(t, arr.Append(nil, "y"))
	assert.Len(t, events, 1)
}

func TestEvent_RemoteChangesNotifyObservers(t *testing.T) {
	src := newTestDoc(t, 1)
	dst := newTestDoc(t, 2)
	dstText, err := dst.GetText("t")
	require.NoError(t, err)

	var got []Delta
	_, err = dstText.Observe(func(e *TextEvent) {
		got, err = e.Delta()
		require.NoError(t, err)
	})
	require.NoError(t, err)

	srcText, err := src.GetText("t")
	require.NoError(t, err)
	require.NoError(t, srcText.Extend(nil, "remote"))

	update, err := EncodeStateAsUpdate(src, nil)
	require.NoError(t, err)
	require.NoError(t, ApplyUpdate(dst, update))
	assert.Equal(t, []Delta{{Insert: "remote"}}, got)
}
