package ydoc

import (
	"maps"
	"slices"
	"unicode/utf8"

	"github.com/roach88/ydoc/internal/classify"
	"github.com/roach88/ydoc/internal/engine"
	"github.com/roach88/ydoc/internal/ir"
)

// Text is shared text.
//
// Integrated text counts positions in the document's offset kind.
// Preliminary text counts UTF-8 bytes.
type Text struct {
	handle
	prelim string
}

// NewText returns preliminary text holding s.
func NewText(s string) *Text {
	return &Text{handle: handle{kind: engine.KindText}, prelim: s}
}

// Len returns the length in offset units.
func (x *Text) Len() int { return textLen(&x.handle, x.prelim) }

// String returns the text without embeds.
func (x *Text) String() string { return textString(&x.handle, x.prelim) }

// Insert inserts s at index.
func (x *Text) Insert(txn *Transaction, index int, s string) error {
	return textInsert(&x.handle, &x.prelim, txn, index, s)
}

// Extend appends s.
func (x *Text) Extend(txn *Transaction, s string) error {
	if x.IsPreliminary() {
		x.prelim += s
		return nil
	}
	return x.write(txn, func(t *engine.Txn) error {
		return t.InsertString(x.branch, x.branch.Len(), s)
	})
}

// InsertEmbed inserts an opaque plain value occupying one offset unit.
// Preliminary text cannot hold embeds.
func (x *Text) InsertEmbed(txn *Transaction, index int, value any) error {
	return textInsertEmbed(&x.handle, txn, index, value)
}

// InsertWithAttributes inserts s at index formatted with exactly attrs:
// formatting in effect at index that attrs does not name is not applied.
// Preliminary text cannot be formatted.
func (x *Text) InsertWithAttributes(txn *Transaction, index int, s string, attrs map[string]any) error {
	a, err := formatAttributes(&x.handle, attrs)
	if err != nil {
		return err
	}
	return x.write(txn, func(t *engine.Txn) error {
		return t.InsertStringWithAttributes(x.branch, index, s, a)
	})
}

// InsertEmbedWithAttributes is InsertEmbed with formatting, as in
// InsertWithAttributes.
func (x *Text) InsertEmbedWithAttributes(txn *Transaction, index int, value any, attrs map[string]any) error {
	a, err := formatAttributes(&x.handle, attrs)
	if err != nil {
		return err
	}
	v, err := lowerPlain(value, "embed")
	if err != nil {
		return x.failed(err)
	}
	return x.write(txn, func(t *engine.Txn) error {
		return t.InsertEmbedWithAttributes(x.branch, index, v, a)
	})
}

// Format sets attrs on length offset units starting at index. A nil value
// removes that attribute.
func (x *Text) Format(txn *Transaction, index, length int, attrs map[string]any) error {
	a, err := formatAttributes(&x.handle, attrs)
	if err != nil {
		return err
	}
	return x.write(txn, func(t *engine.Txn) error {
		return t.Format(x.branch, index, length, a)
	})
}

// Diff returns the text as insert steps, one per run of equal formatting.
// Embeds are steps of their own.
func (x *Text) Diff() []Delta {
	if x.IsPreliminary() {
		if x.prelim == "" {
			return nil
		}
		return []Delta{{Insert: x.prelim}}
	}
	var out []Delta
	x.doc.read(func() { out = x.doc.toDelta(x.branch.Diff()) })
	return out
}

// Delete removes the character at index.
func (x *Text) Delete(txn *Transaction, index int) error {
	return textDeleteRange(&x.handle, &x.prelim, txn, index, charWidth(&x.handle, x.prelim, index))
}

// DeleteRange removes length offset units starting at index.
func (x *Text) DeleteRange(txn *Transaction, index, length int) error {
	return textDeleteRange(&x.handle, &x.prelim, txn, index, length)
}

// ToJSON renders the text as a JSON string.
func (x *Text) ToJSON() (string, error) { return toJSON(x) }

// Observe registers fn for changes to the text.
func (x *Text) Observe(fn func(*TextEvent)) (Subscription, error) {
	return x.observe(func(e *Event) { fn(&TextEvent{Event: e}) })
}

func (x *Text) toIR() ir.IRValue { return ir.IRString(x.String()) }

func (x *Text) validate(*Document, map[integrable]bool) error { return nil }

func (x *Text) integrate(d *Document, t *engine.Txn, s slot) error {
	if !x.IsPreliminary() {
		return errAlreadyIntegrated(x.kind)
	}
	b, err := s.reserve(t, engine.KindText, "")
	if err != nil {
		return translate(err)
	}
	payload := x.prelim
	x.bind(d, b)
	x.prelim = ""
	return translate(t.InsertString(b, 0, payload))
}

// The text operations below are shared by Text and XMLText.

func textLen(h *handle, prelim string) int {
	if h.IsPreliminary() {
		return len(prelim)
	}
	var n int
	h.doc.read(func() { n = h.branch.Len() })
	return n
}

func textString(h *handle, prelim string) string {
	if h.IsPreliminary() {
		return prelim
	}
	var s string
	h.doc.read(func() { s = h.branch.String() })
	return s
}

func textInsert(h *handle, prelim *string, txn *Transaction, index int, s string) error {
	if h.IsPreliminary() {
		if err := checkByteOffset(*prelim, index); err != nil {
			return err
		}
		*prelim = (*prelim)[:index] + s + (*prelim)[index:]
		return nil
	}
	return h.write(txn, func(t *engine.Txn) error {
		return t.InsertString(h.branch, index, s)
	})
}

func textInsertEmbed(h *handle, txn *Transaction, index int, value any) error {
	if h.IsPreliminary() {
		return newError(ErrCodePreliminaryOperation, nil, "embeds need an integrated %s", h.kind)
	}
	v, err := lowerPlain(value, "embed")
	if err != nil {
		return h.failed(err)
	}
	return h.write(txn, func(t *engine.Txn) error {
		return t.InsertEmbed(h.branch, index, v)
	})
}

// lowerPlain converts a plain value, rejecting containers.
func lowerPlain(value any, where string) (ir.IRValue, error) {
	c, err := classify.Classify(value)
	if err != nil {
		return nil, unsupported(value, where, err)
	}
	v, err := classify.Lower(c)
	if err != nil {
		return nil, translate(err)
	}
	return v, nil
}

func formatAttributes(h *handle, attrs map[string]any) (engine.Attrs, error) {
	if h.IsPreliminary() {
		return nil, newError(ErrCodePreliminaryOperation, nil, "formatting needs an integrated %s", h.kind)
	}
	out := make(engine.Attrs, len(attrs))
	for _, k := range slices.Sorted(maps.Keys(attrs)) {
		v, err := lowerPlain(attrs[k], "attribute "+k)
		if err != nil {
			return nil, h.failed(err)
		}
		out[k] = v
	}
	return out, nil
}

func textDeleteRange(h *handle, prelim *string, txn *Transaction, index, length int) error {
	if h.IsPreliminary() {
		end := index + length
		if length < 0 || checkByteOffset(*prelim, index) != nil || checkByteOffset(*prelim, end) != nil {
			return errIndex(end, len(*prelim))
		}
		*prelim = (*prelim)[:index] + (*prelim)[end:]
		return nil
	}
	return h.write(txn, func(t *engine.Txn) error {
		return t.Remove(h.branch, index, length)
	})
}

// charWidth is how many offset units a single-character delete at index
// spans. Integrated text deletes whole characters on its own.
func charWidth(h *handle, prelim string, index int) int {
	if !h.IsPreliminary() || index < 0 || index >= len(prelim) {
		return 1
	}
	_, size := utf8.DecodeRuneInString(prelim[index:])
	return size
}

// checkByteOffset accepts offsets on character boundaries of s.
func checkByteOffset(s string, index int) error {
	if index < 0 || index > len(s) {
		return errIndex(index, len(s))
	}
	if index < len(s) && !utf8.RuneStart(s[index]) {
		return newError(ErrCodeIndexOutOfRange, index, "offset %d falls inside a character", index)
	}
	return nil
}
