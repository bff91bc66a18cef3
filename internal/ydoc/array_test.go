package ydoc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ydoc/internal/ir"
)

func mustCanonical(t *testing.T, v ir.IRValue) []byte {
	t.Helper()
	out, err := ir.MarshalCanonical(v)
	require.NoError(t, err)
	return out
}

func TestArray_InsertMixedValues(t *testing.T) {
	d := newTestDoc(t, 1)
	arr, err := d.GetArray("list")
	require.NoError(t, err)

	require.NoError(t, arr.Insert(nil, 0, 1, "a", NewMap(map[string]any{"x": 2}), 3))
	assert.Equal(t, 4, arr.Len())

	v, err := arr.Get(2)
	require.NoError(t, err)
	m, ok := v.(*Map)
	require.True(t, ok, "element 2 should be a map handle, got %T", v)
	assert.False(t, m.IsPreliminary())
	x, ok := m.Get("x")
	require.True(t, ok)
	assert.Equal(t, float64(2), x)

	first, err := arr.Get(0)
	require.NoError(t, err)
	assert.Equal(t, float64(1), first)

	last, err := arr.Get(-1)
	require.NoError(t, err)
	assert.Equal(t, float64(3), last)

	s, err := arr.ToJSON()
	require.NoError(t, err)
	assert.Equal(t, `[1,"a",{"x":2},3]`, s)
}

func TestArray_PreliminaryHandleBecomesIntegrated(t *testing.T) {
	d := newTestDoc(t, 1)
	arr, err := d.GetArray("list")
	require.NoError(t, err)

	inner := NewArray("x")
	require.NoError(t, inner.Append(nil, "y"))
	assert.True(t, inner.IsPreliminary())
	assert.Nil(t, inner.Document())

	require.NoError(t, arr.Append(nil, inner))
	assert.False(t, inner.IsPreliminary())
	assert.Same(t, d, inner.Document())
	assert.Equal(t, []any{0}, inner.Path())

	// The original handle keeps working against the document.
	require.NoError(t, inner.Append(nil, "z"))
	assert.Equal(t, []any{"x", "y", "z"}, inner.Values())
}

func TestArray_AlreadyIntegrated(t *testing.T) {
	d := newTestDoc(t, 1)
	arr, err := d.GetArray("list")
	require.NoError(t, err)

	m := NewMap(nil)
	require.NoError(t, arr.Append(nil, m))
	require.Equal(t, 1, arr.Len())

	err = arr.Append(nil, "before", m)
	require.Error(t, err)
	assert.True(t, IsAlreadyIntegrated(err))
	assert.Equal(t, 1, arr.Len(), "a rejected insert must not change the array")
}

func TestArray_SameHandleTwiceInOneInsert(t *testing.T) {
	d := newTestDoc(t, 1)
	arr, err := d.GetArray("list")
	require.NoError(t, err)

	m := NewMap(nil)
	err = arr.Append(nil, "a", m, m)
	require.Error(t, err)
	assert.True(t, IsAlreadyIntegrated(err))
	assert.Equal(t, 0, arr.Len())
	assert.True(t, m.IsPreliminary())
}

func TestArray_InvalidNestedPayloadChangesNothing(t *testing.T) {
	foreign := newTestDoc(t, 2)
	foreignText, err := foreign.GetText("t")
	require.NoError(t, err)

	selfNested := NewArray("x")
	require.NoError(t, selfNested.Append(nil, selfNested))

	shared := NewMap(nil)

	tests := []struct {
		name  string
		inner func() *Array
		check func(error) bool
	}{
		{"unsupported value", func() *Array { return NewArray(1, make(chan int)) }, IsUnsupportedType},
		{"deeply nested unsupported value", func() *Array {
			return NewArray(NewMap(map[string]any{"f": func() {}}))
		}, IsUnsupportedType},
		{"foreign handle", func() *Array { return NewArray(foreignText) }, IsCrossDocument},
		{"nested in itself", func() *Array { return selfNested }, IsAlreadyIntegrated},
		{"same handle at two depths", func() *Array { return NewArray(shared, NewArray(shared)) }, IsAlreadyIntegrated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDoc(t, 1)
			arr, err := d.GetArray("list")
			require.NoError(t, err)
			require.NoError(t, arr.Append(nil, "keep"))

			inner := tt.inner()
			before := inner.Len()
			err = arr.Insert(nil, 0, "a", inner)
			require.Error(t, err)
			assert.True(t, tt.check(err), "got %v", err)

			assert.Equal(t, []any{"keep"}, arr.Values())
			assert.True(t, inner.IsPreliminary())
			assert.Equal(t, before, inner.Len())
			assert.True(t, shared.IsPreliminary())
		})
	}
}

func TestArray_RejectsUnsupportedValues(t *testing.T) {
	d := newTestDoc(t, 1)
	arr, err := d.GetArray("list")
	require.NoError(t, err)

	tests := []struct {
		name  string
		value any
	}{
		{"channel", make(chan int)},
		{"function", func() {}},
		{"struct", struct{ A int }{1}},
		{"shared inside plain list", []any{NewMap(nil)}},
		{"shared inside plain map", map[string]any{"m": NewArray()}},
		{"non-string map key", map[int]string{1: "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := arr.Append(nil, 1, tt.value)
			require.Error(t, err)
			assert.True(t, IsUnsupportedType(err), "got %v", err)
			assert.Equal(t, 0, arr.Len(), "classification failure must not write anything")
		})
	}
}

func TestArray_CrossDocumentHandle(t *testing.T) {
	d1 := newTestDoc(t, 1)
	d2 := newTestDoc(t, 2)
	a1, err := d1.GetArray("list")
	require.NoError(t, err)
	a2, err := d2.GetArray("list")
	require.NoError(t, err)

	m := NewMap(nil)
	require.NoError(t, a2.Append(nil, m))

	err = a1.Append(nil, m)
	require.Error(t, err)
	assert.True(t, IsCrossDocument(err))
	assert.Equal(t, 0, a1.Len())
}

func TestArray_IndexErrors(t *testing.T) {
	d := newTestDoc(t, 1)
	arr, err := d.GetArray("list")
	require.NoError(t, err)
	require.NoError(t, arr.Append(nil, 1, 2))

	_, err = arr.Get(2)
	assert.True(t, IsIndexOutOfRange(err))
	_, err = arr.Get(-3)
	assert.True(t, IsIndexOutOfRange(err))
	assert.True(t, IsIndexOutOfRange(arr.Insert(nil, 3, "x")))
	assert.True(t, IsIndexOutOfRange(arr.DeleteRange(nil, 1, 2)))
	assert.Equal(t, 2, arr.Len())
}

func TestArray_DeleteAndSlice(t *testing.T) {
	d := newTestDoc(t, 1)
	arr, err := d.GetArray("list")
	require.NoError(t, err)
	require.NoError(t, arr.Append(nil, "a", "b", "c", "d", "e"))

	require.NoError(t, arr.Delete(nil, 1))
	require.NoError(t, arr.DeleteRange(nil, 2, 2))
	assert.Equal(t, []any{"a", "c"}, arr.Values())

	require.NoError(t, arr.Append(nil, "f", "g"))
	tests := []struct {
		start, end int
		want       []any
	}{
		{0, 2, []any{"a", "c"}},
		{-2, 10, []any{"f", "g"}},
		{3, 1, []any{}},
		{-100, 1, []any{"a"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, arr.Slice(tt.start, tt.end), "Slice(%d, %d)", tt.start, tt.end)
	}
}

func TestArray_Preliminary(t *testing.T) {
	a := NewArray(1, 2)
	require.NoError(t, a.Insert(nil, 1, "x"))
	assert.Equal(t, 3, a.Len())
	assert.Equal(t, []any{1, "x", 2}, a.Values())

	require.NoError(t, a.Delete(nil, 0))
	assert.Equal(t, []any{"x", 2}, a.Values())
	assert.True(t, IsIndexOutOfRange(a.Insert(nil, 5, "y")))

	s, err := a.ToJSON()
	require.NoError(t, err)
	assert.Equal(t, `["x",2]`, s)

	_, err = a.Observe(func(*ArrayEvent) {})
	require.Error(t, err)
	assert.True(t, IsPreliminary(err))
}

func TestArray_InsertInSharedTransaction(t *testing.T) {
	d := newTestDoc(t, 1)
	arr, err := d.GetArray("list")
	require.NoError(t, err)

	var updates int
	d.ObserveAfterTransaction(func(*AfterTransactionEvent) { updates++ })

	err = d.Transact(func(txn *Transaction) error {
		for i := range 3 {
			if err := arr.Append(txn, i); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, updates, "one transaction should produce one update")
	assert.Equal(t, []any{float64(0), float64(1), float64(2)}, arr.Values())
}

func TestArray_Move(t *testing.T) {
	tests := []struct {
		name               string
		start, end, target int
		want               []any
	}{
		{"single forward", 0, 0, 3, []any{"b", "c", "a", "d"}},
		{"single backward", 3, 3, 1, []any{"a", "d", "b", "c"}},
		{"range to end", 0, 1, 4, []any{"c", "d", "a", "b"}},
		{"range to front", 2, 3, 0, []any{"c", "d", "a", "b"}},
		{"into itself", 1, 2, 2, []any{"a", "b", "c", "d"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDoc(t, 1)
			arr, err := d.GetArray("list")
			require.NoError(t, err)
			require.NoError(t, arr.Append(nil, "a", "b", "c", "d"))
			prelim := NewArray("a", "b", "c", "d")

			require.NoError(t, arr.MoveRange(nil, tt.start, tt.end, tt.target))
			require.NoError(t, prelim.MoveRange(nil, tt.start, tt.end, tt.target))
			assert.Equal(t, tt.want, arr.Values())
			assert.Equal(t, tt.want, prelim.Values())
		})
	}
}

func TestArray_MoveIndexErrors(t *testing.T) {
	d := newTestDoc(t, 1)
	arr, err := d.GetArray("list")
	require.NoError(t, err)
	require.NoError(t, arr.Append(nil, 1, 2, 3))
	prelim := NewArray(1, 2, 3)

	for _, a := range []*Array{arr, prelim} {
		assert.True(t, IsIndexOutOfRange(a.Move(nil, 3, 0)))
		assert.True(t, IsIndexOutOfRange(a.Move(nil, 0, 4)))
		assert.True(t, IsIndexOutOfRange(a.MoveRange(nil, 2, 1, 0)))
		assert.Equal(t, 3, a.Len())
	}
	assert.Equal(t, []any{float64(1), float64(2), float64(3)}, arr.Values())
	assert.Equal(t, []any{1, 2, 3}, prelim.Values())
}

func TestArray_MoveContainer(t *testing.T) {
	d := newTestDoc(t, 1)
	arr, err := d.GetArray("list")
	require.NoError(t, err)
	inner := NewMap(map[string]any{"k": "v"})
	require.NoError(t, arr.Append(nil, "x", inner))

	var got []Delta
	_, err = arr.Observe(func(e *ArrayEvent) {
		got, err = e.Delta()
		require.NoError(t, err)
	})
	require.NoError(t, err)

	require.NoError(t, arr.Move(nil, 1, 0))
	assert.True(t, inner.Deleted())
	moved, err := arr.Get(0)
	require.NoError(t, err)
	m, ok := moved.(*Map)
	require.True(t, ok, "got %T", moved)
	v, ok := m.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
	require.Len(t, got, 3)
	assert.Equal(t, Delta{Retain: 1}, got[1])
	assert.Equal(t, Delta{Delete: 1}, got[2])
}
