package ydoc

import (
	"fmt"
	"slices"

	"github.com/roach88/ydoc/internal/classify"
	"github.com/roach88/ydoc/internal/engine"
	"github.com/roach88/ydoc/internal/ir"
)

// slot is a position in an integrated container: an index into a sequence
// or a key of a map.
type slot struct {
	branch *engine.Branch
	index  int
	key    string
	keyed  bool
}

// reserve creates an empty container of kind at the slot.
func (s slot) reserve(t *engine.Txn, kind engine.Kind, nodeName string) (*engine.Branch, error) {
	if s.keyed {
		return t.SetContainer(s.branch, s.key, kind, nodeName)
	}
	return t.InsertContainer(s.branch, s.index, kind, nodeName)
}

// insertValues splices values into a sequence container at index.
//
// Every value, including the buffered payloads of preliminary containers,
// is checked before anything is written, so an unsupported value, a foreign
// handle or a handle listed twice anywhere in the tree fails the whole call
// with no change. Contiguous plain values go to the engine as one run; each
// shared container takes its own slot and is integrated in place.
func (d *Document) insertValues(t *engine.Txn, b *engine.Branch, index int, values []any) error {
	items, err := d.classifyValues(values, make(map[integrable]bool))
	if err != nil {
		return err
	}
	if index < 0 || index > b.Len() {
		return errIndex(index, b.Len())
	}
	return d.insertClassified(t, b, index, items)
}

// classifyValues classifies and prechecks a list of values.
func (d *Document) classifyValues(values []any, seen map[integrable]bool) ([]classify.Classified, error) {
	items := make([]classify.Classified, len(values))
	for i, v := range values {
		c, err := classify.Classify(v)
		if err != nil {
			return nil, unsupported(v, fmt.Sprintf("[%d]", i), err)
		}
		if err := d.precheck(c, seen); err != nil {
			return nil, err
		}
		items[i] = c
	}
	return items, nil
}

func (d *Document) insertClassified(t *engine.Txn, b *engine.Branch, index int, items []classify.Classified) error {
	var run ir.IRArray
	flush := func() error {
		if len(run) == 0 {
			return nil
		}
		if err := t.InsertValues(b, index, run); err != nil {
			return translate(err)
		}
		index += len(run)
		run = nil
		return nil
	}
	for _, c := range items {
		sc, ok := c.(classify.SharedContainer)
		if !ok {
			v, err := classify.Lower(c)
			if err != nil {
				return translate(err)
			}
			run = append(run, v)
			continue
		}
		if err := flush(); err != nil {
			return err
		}
		if err := d.integrateShared(t, slot{branch: b, index: index}, sc.Handle); err != nil {
			return err
		}
		index++
	}
	return flush()
}

// setValue stores value under key of a keyed container.
func (d *Document) setValue(t *engine.Txn, b *engine.Branch, key string, value any) error {
	c, err := d.classifyEntry(key, value, make(map[integrable]bool))
	if err != nil {
		return err
	}
	return d.setClassified(t, b, key, c)
}

// setEntries stores every entry. All values are classified before the first
// write; keys are written in sorted order so that replicas applying the same
// batch produce the same item order.
func (d *Document) setEntries(t *engine.Txn, b *engine.Branch, entries map[string]any) error {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	classified, err := d.classifyEntries(keys, entries, make(map[integrable]bool))
	if err != nil {
		return err
	}
	for i, k := range keys {
		if err := d.setClassified(t, b, k, classified[i]); err != nil {
			return err
		}
	}
	return nil
}

func (d *Document) classifyEntries(keys []string, entries map[string]any, seen map[integrable]bool) ([]classify.Classified, error) {
	classified := make([]classify.Classified, len(keys))
	for i, k := range keys {
		c, err := d.classifyEntry(k, entries[k], seen)
		if err != nil {
			return nil, err
		}
		classified[i] = c
	}
	return classified, nil
}

func (d *Document) classifyEntry(key string, value any, seen map[integrable]bool) (classify.Classified, error) {
	c, err := classify.Classify(value)
	if err != nil {
		return nil, unsupported(value, key, err)
	}
	if err := d.precheck(c, seen); err != nil {
		return nil, err
	}
	return c, nil
}

func (d *Document) setClassified(t *engine.Txn, b *engine.Branch, key string, c classify.Classified) error {
	if sc, ok := c.(classify.SharedContainer); ok {
		return d.integrateShared(t, slot{branch: b, key: key, keyed: true}, sc.Handle)
	}
	v, err := classify.Lower(c)
	if err != nil {
		return translate(err)
	}
	return translate(t.SetValue(b, key, v))
}

// precheck rejects values that can never be integrated into d: plain lists
// or maps hiding shared containers, foreign handles, integrated handles, and
// preliminary handles met twice (listed twice or nested in themselves).
// Preliminary payloads are checked recursively; seen collects the handles
// visited so far.
func (d *Document) precheck(c classify.Classified, seen map[integrable]bool) error {
	switch val := c.(type) {
	case classify.Sequence, classify.Mapping:
		if !classify.IsPlain(val) {
			return newError(ErrCodeUnsupportedType, nil,
				"shared containers cannot be nested inside plain lists or maps")
		}
	case classify.SharedContainer:
		n, ok := val.Handle.(integrable)
		if !ok {
			return newError(ErrCodeUnsupportedType, val.Handle, "not a container of this package")
		}
		if !n.IsPreliminary() {
			if n.Document() != d {
				return newError(ErrCodeCrossDocument, nil,
					"container belongs to document %s", n.Document().guid)
			}
			return newError(ErrCodeAlreadyIntegrated, nil,
				"%s is already part of a document", n.SharedKind())
		}
		if seen[n] {
			return newError(ErrCodeAlreadyIntegrated, nil,
				"%s appears more than once in the inserted values", n.SharedKind())
		}
		seen[n] = true
		return n.validate(d, seen)
	}
	return nil
}

// integrateShared reserves a container for a preliminary handle at s and
// replays its payload into it.
func (d *Document) integrateShared(t *engine.Txn, s slot, h Shared) error {
	n, ok := h.(integrable)
	if !ok {
		return newError(ErrCodeUnsupportedType, h, "not a container of this package")
	}
	return n.integrate(d, t, s)
}

func unsupported(v any, where string, err error) error {
	ye := translate(err).(*Error)
	if ye.Value == "" {
		ye.Value = describe(v)
	}
	ye.Message = fmt.Sprintf("%s: %s", where, ye.Message)
	return ye
}

func errAlreadyIntegrated(kind engine.Kind) *Error {
	return newError(ErrCodeAlreadyIntegrated, nil, "%s is already part of a document", kind)
}
