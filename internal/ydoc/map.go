package ydoc

import (
	"maps"
	"slices"

	"github.com/roach88/ydoc/internal/engine"
	"github.com/roach88/ydoc/internal/ir"
)

// Map is a shared map from string keys to values.
type Map struct {
	handle
	prelim map[string]any
}

// MapEntry is one key and its value.
type MapEntry struct {
	Key   string
	Value any
}

// NewMap returns a preliminary map holding entries.
func NewMap(entries map[string]any) *Map {
	prelim := maps.Clone(entries)
	if prelim == nil {
		prelim = make(map[string]any)
	}
	return &Map{handle: handle{kind: engine.KindMap}, prelim: prelim}
}

// Len returns the number of keys.
func (m *Map) Len() int {
	if m.IsPreliminary() {
		return len(m.prelim)
	}
	var n int
	m.doc.read(func() { n = m.branch.EntryCount() })
	return n
}

// Get returns the value under key.
func (m *Map) Get(key string) (any, bool) {
	if m.IsPreliminary() {
		v, ok := m.prelim[key]
		return v, ok
	}
	var (
		v  any
		ok bool
	)
	m.doc.read(func() {
		var raw any
		if raw, ok = m.branch.Entry(key); ok {
			v = m.doc.toHost(raw)
		}
	})
	return v, ok
}

// Keys returns the keys in sorted order.
func (m *Map) Keys() []string {
	if m.IsPreliminary() {
		return slices.Sorted(maps.Keys(m.prelim))
	}
	var keys []string
	m.doc.read(func() { keys = m.branch.Keys() })
	return keys
}

// Values returns the values in key order.
func (m *Map) Values() []any {
	items := m.Items()
	values := make([]any, len(items))
	for i, it := range items {
		values[i] = it.Value
	}
	return values
}

// Items returns the entries in key order.
func (m *Map) Items() []MapEntry {
	keys := m.Keys()
	items := make([]MapEntry, 0, len(keys))
	for _, k := range keys {
		v, _ := m.Get(k)
		items = append(items, MapEntry{Key: k, Value: v})
	}
	return items
}

// Set stores value under key. Value may be a plain value or a preliminary
// container.
func (m *Map) Set(txn *Transaction, key string, value any) error {
	if m.IsPreliminary() {
		m.prelim[key] = value
		return nil
	}
	return m.write(txn, func(t *engine.Txn) error {
		return m.doc.setValue(t, m.branch, key, value)
	})
}

// Update stores every entry. Keys are applied in sorted order.
func (m *Map) Update(txn *Transaction, entries map[string]any) error {
	if m.IsPreliminary() {
		maps.Copy(m.prelim, entries)
		return nil
	}
	return m.write(txn, func(t *engine.Txn) error {
		return m.doc.setEntries(t, m.branch, entries)
	})
}

// Delete removes key. Deleting a missing key does nothing.
func (m *Map) Delete(txn *Transaction, key string) error {
	if m.IsPreliminary() {
		delete(m.prelim, key)
		return nil
	}
	return m.write(txn, func(t *engine.Txn) error {
		_, err := t.RemoveKey(m.branch, key)
		return err
	})
}

// Pop removes key and returns its value. A missing key returns the first
// fallback when one is given and fails with ErrCodeKeyNotFound otherwise.
func (m *Map) Pop(txn *Transaction, key string, fallback ...any) (any, error) {
	v, ok := m.Get(key)
	if !ok {
		if len(fallback) > 0 {
			return fallback[0], nil
		}
		return nil, m.failed(newError(ErrCodeKeyNotFound, nil, "key %q not found", key))
	}
	if err := m.Delete(txn, key); err != nil {
		return nil, err
	}
	return v, nil
}

// ToJSON renders the map as canonical JSON.
func (m *Map) ToJSON() (string, error) { return toJSON(m) }

// String renders the map as JSON, or "" when it cannot be rendered.
func (m *Map) String() string {
	s, _ := m.ToJSON()
	return s
}

// Observe registers fn for changes to the map's own keys.
func (m *Map) Observe(fn func(*MapEvent)) (Subscription, error) {
	return m.observe(func(e *Event) { fn(&MapEvent{Event: e}) })
}

func (m *Map) toIR() ir.IRValue {
	if !m.IsPreliminary() {
		var v ir.IRValue
		m.doc.read(func() { v = m.branch.ToIR() })
		return v
	}
	obj := make(ir.IRObject, len(m.prelim))
	for k, v := range m.prelim {
		obj[k] = prelimIR(v)
	}
	return obj
}

func (m *Map) validate(d *Document, seen map[integrable]bool) error {
	_, err := d.classifyEntries(slices.Sorted(maps.Keys(m.prelim)), m.prelim, seen)
	return err
}

func (m *Map) integrate(d *Document, t *engine.Txn, s slot) error {
	if !m.IsPreliminary() {
		return errAlreadyIntegrated(m.kind)
	}
	b, err := s.reserve(t, engine.KindMap, "")
	if err != nil {
		return translate(err)
	}
	payload := m.prelim
	m.bind(d, b)
	m.prelim = nil
	return d.setEntries(t, b, payload)
}
