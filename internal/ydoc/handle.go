package ydoc

import (
	"github.com/roach88/ydoc/internal/classify"
	"github.com/roach88/ydoc/internal/engine"
	"github.com/roach88/ydoc/internal/ir"
)

// handle is the state shared by every container handle.
//
// A handle is Preliminary while branch is nil and Integrated afterwards.
// The transition happens once, in bind, and fixes the owning document.
type handle struct {
	kind   engine.Kind
	doc    *Document
	branch *engine.Branch
}

func integratedHandle(d *Document, b *engine.Branch) handle {
	return handle{kind: b.Kind(), doc: d, branch: b}
}

// SharedKind returns the container kind.
func (h *handle) SharedKind() engine.Kind { return h.kind }

// IsPreliminary reports whether the container is not part of a document yet.
func (h *handle) IsPreliminary() bool { return h.branch == nil }

// Document returns the owning document, nil while preliminary.
func (h *handle) Document() *Document { return h.doc }

func (h *handle) bind(d *Document, b *engine.Branch) {
	h.doc = d
	h.branch = b
}

// Path returns the keys and indices leading from the enclosing root to
// this container. It is empty for roots and preliminary containers.
func (h *handle) Path() []any {
	if h.branch == nil {
		return nil
	}
	var path []any
	h.doc.read(func() { path = h.branch.Path() })
	return path
}

// Deleted reports whether an integrated container has been removed from
// its parent.
func (h *handle) Deleted() bool {
	return h.branch != nil && h.branch.Deleted()
}

// write runs a mutation in txn, or in an implicitly opened transaction when
// txn is nil. It rejects transactions of another document.
func (h *handle) write(txn *Transaction, fn func(*engine.Txn) error) error {
	d := h.doc
	if txn == nil {
		txn = d.arb.beginOrReuse()
		defer txn.Release()
	}
	if txn.Document() != d {
		return h.failed(newError(ErrCodeCrossDocument, nil,
			"transaction belongs to document %s, container to %s", txn.Document().guid, d.guid))
	}
	et, err := txn.engineTxn()
	if err != nil {
		return h.failed(err)
	}
	return h.failed(translate(fn(et)))
}

func (h *handle) failed(err error) error {
	if code := CodeOf(err); code != "" && h.doc != nil {
		h.doc.recorder.IntegrationFailed(string(code))
	}
	return err
}

// integrable is implemented by the handles of this package. Foreign types
// that merely satisfy classify.Shared cannot be integrated.
type integrable interface {
	classify.Shared
	Document() *Document
	// validate checks the buffered payload without writing anything.
	validate(d *Document, seen map[integrable]bool) error
	integrate(d *Document, t *engine.Txn, s slot) error
	toIR() ir.IRValue
}

// wrapBranch builds a handle for a container read out of the document.
// Several handles may refer to the same container.
func wrapBranch(d *Document, b *engine.Branch) Shared {
	h := handle{kind: b.InferKind(), doc: d, branch: b}
	switch h.kind {
	case engine.KindMap:
		return &Map{handle: h}
	case engine.KindText:
		return &Text{handle: h}
	case engine.KindXMLElement:
		return &XMLElement{handle: h}
	case engine.KindXMLText:
		return &XMLText{handle: h}
	default:
		return &Array{handle: h}
	}
}

// toHost converts an engine value into what handles return to callers:
// nil, bool, float64, int64, string, []byte, []any, map[string]any, or a
// container handle.
func (d *Document) toHost(v any) any {
	switch val := v.(type) {
	case *engine.Branch:
		return wrapBranch(d, val)
	case ir.IRValue:
		return ir.ToNative(val)
	default:
		return nil
	}
}

// prelimIR renders buffered preliminary values as plain values.
func prelimIR(v any) ir.IRValue {
	c, err := classify.Classify(v)
	if err != nil {
		return ir.IRNull{}
	}
	return classifiedIR(c)
}

func classifiedIR(c classify.Classified) ir.IRValue {
	switch val := c.(type) {
	case classify.Scalar:
		return val.Value
	case classify.Sequence:
		arr := make(ir.IRArray, len(val))
		for i, elem := range val {
			arr[i] = classifiedIR(elem)
		}
		return arr
	case classify.Mapping:
		obj := make(ir.IRObject, len(val))
		for k, elem := range val {
			obj[k] = classifiedIR(elem)
		}
		return obj
	case classify.SharedContainer:
		if n, ok := val.Handle.(integrable); ok {
			return n.toIR()
		}
	}
	return ir.IRNull{}
}

// toJSON renders a container as canonical JSON.
func toJSON(n integrable) (string, error) {
	out, err := ir.MarshalCanonical(n.toIR())
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// normalizeIndex resolves a negative index against length.
func normalizeIndex(index, length int) (int, error) {
	if index < 0 {
		index += length
	}
	if index < 0 || index >= length {
		return 0, errIndex(index, length)
	}
	return index, nil
}
