package ydoc

import (
	"slices"

	"github.com/roach88/ydoc/internal/engine"
	"github.com/roach88/ydoc/internal/ir"
)

// Array is a shared sequence of values.
//
// A preliminary Array buffers its values in memory; inserting it into an
// integrated container moves them into the document.
type Array struct {
	handle
	prelim []any
}

// NewArray returns a preliminary array holding values.
func NewArray(values ...any) *Array {
	return &Array{handle: handle{kind: engine.KindArray}, prelim: slices.Clone(values)}
}

// Len returns the number of elements.
func (a *Array) Len() int {
	if a.IsPreliminary() {
		return len(a.prelim)
	}
	var n int
	a.doc.read(func() { n = a.branch.Len() })
	return n
}

// Get returns the element at index. Negative indices count from the end.
func (a *Array) Get(index int) (any, error) {
	if a.IsPreliminary() {
		i, err := normalizeIndex(index, len(a.prelim))
		if err != nil {
			return nil, err
		}
		return a.prelim[i], nil
	}
	var (
		v   any
		err error
	)
	a.doc.read(func() {
		var i int
		if i, err = normalizeIndex(index, a.branch.Len()); err != nil {
			return
		}
		var raw any
		raw, err = a.branch.Get(i)
		v = a.doc.toHost(raw)
	})
	return v, translate(err)
}

// Values returns every element in order.
func (a *Array) Values() []any {
	if a.IsPreliminary() {
		return slices.Clone(a.prelim)
	}
	var out []any
	a.doc.read(func() {
		raw := a.branch.Values()
		out = make([]any, len(raw))
		for i, v := range raw {
			out[i] = a.doc.toHost(v)
		}
	})
	return out
}

// Slice returns elements [start, end), with negative bounds counting from
// the end and out-of-range bounds clamped.
func (a *Array) Slice(start, end int) []any {
	values := a.Values()
	n := len(values)
	clamp := func(i int) int {
		if i < 0 {
			i += n
		}
		return max(0, min(i, n))
	}
	start, end = clamp(start), clamp(end)
	if start >= end {
		return []any{}
	}
	return values[start:end]
}

// Insert splices values into the array at index, in order.
// Values may be plain values or preliminary containers.
func (a *Array) Insert(txn *Transaction, index int, values ...any) error {
	if a.IsPreliminary() {
		if index < 0 || index > len(a.prelim) {
			return errIndex(index, len(a.prelim))
		}
		a.prelim = slices.Insert(a.prelim, index, values...)
		return nil
	}
	return a.write(txn, func(t *engine.Txn) error {
		return a.doc.insertValues(t, a.branch, index, values)
	})
}

// Append adds values at the end of the array.
func (a *Array) Append(txn *Transaction, values ...any) error {
	if a.IsPreliminary() {
		a.prelim = append(a.prelim, values...)
		return nil
	}
	return a.write(txn, func(t *engine.Txn) error {
		return a.doc.insertValues(t, a.branch, a.branch.Len(), values)
	})
}

// Delete removes the element at index.
func (a *Array) Delete(txn *Transaction, index int) error {
	return a.DeleteRange(txn, index, 1)
}

// DeleteRange removes length elements starting at index.
func (a *Array) DeleteRange(txn *Transaction, index, length int) error {
	if a.IsPreliminary() {
		if index < 0 || length < 0 || index+length > len(a.prelim) {
			return errIndex(index+length, len(a.prelim))
		}
		a.prelim = slices.Delete(a.prelim, index, index+length)
		return nil
	}
	return a.write(txn, func(t *engine.Txn) error {
		return t.Remove(a.branch, index, length)
	})
}

// Move moves the element at from so it sits before the element currently
// at to. to may be the length, which moves the element to the end.
func (a *Array) Move(txn *Transaction, from, to int) error {
	return a.MoveRange(txn, from, from, to)
}

// MoveRange moves elements start..end (both inclusive) so they sit before the
// element currently at to. Moving a range into itself changes nothing.
//
// Moved containers are recreated in their new place: handles to them that
// were taken before the move report Deleted afterwards.
func (a *Array) MoveRange(txn *Transaction, start, end, to int) error {
	if a.IsPreliminary() {
		moved, err := moveValues(a.prelim, start, end, to)
		if err != nil {
			return err
		}
		a.prelim = moved
		return nil
	}
	return a.write(txn, func(t *engine.Txn) error {
		return t.Move(a.branch, start, end, to)
	})
}

func moveValues(values []any, start, end, to int) ([]any, error) {
	n := len(values)
	switch {
	case start < 0 || start >= n:
		return nil, errIndex(start, n)
	case end < start || end >= n:
		return nil, errIndex(end, n)
	case to < 0 || to > n:
		return nil, errIndex(to, n)
	case to >= start && to <= end+1:
		return values, nil
	}
	run := slices.Clone(values[start : end+1])
	rest := slices.Delete(slices.Clone(values), start, end+1)
	if to > end {
		to -= len(run)
	}
	return slices.Insert(rest, to, run...), nil
}

// ToJSON renders the array as canonical JSON.
func (a *Array) ToJSON() (string, error) { return toJSON(a) }

// String renders the array as JSON, or "" when it cannot be rendered.
func (a *Array) String() string {
	s, _ := a.ToJSON()
	return s
}

// Observe registers fn for changes to the array's own elements.
func (a *Array) Observe(fn func(*ArrayEvent)) (Subscription, error) {
	return a.observe(func(e *Event) { fn(&ArrayEvent{Event: e}) })
}

func (a *Array) toIR() ir.IRValue {
	if !a.IsPreliminary() {
		var v ir.IRValue
		a.doc.read(func() { v = a.branch.ToIR() })
		return v
	}
	arr := make(ir.IRArray, len(a.prelim))
	for i, v := range a.prelim {
		arr[i] = prelimIR(v)
	}
	return arr
}

func (a *Array) validate(d *Document, seen map[integrable]bool) error {
	_, err := d.classifyValues(a.prelim, seen)
	return err
}

func (a *Array) integrate(d *Document, t *engine.Txn, s slot) error {
	if !a.IsPreliminary() {
		return errAlreadyIntegrated(a.kind)
	}
	b, err := s.reserve(t, engine.KindArray, "")
	if err != nil {
		return translate(err)
	}
	payload := a.prelim
	a.bind(d, b)
	a.prelim = nil
	return d.insertValues(t, b, 0, payload)
}
