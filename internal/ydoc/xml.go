package ydoc

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/ydoc/internal/engine"
	"github.com/roach88/ydoc/internal/ir"
)

// XMLNode is an XML element or an XML text node.
type XMLNode interface {
	Shared
	String() string
	xmlNode()
}

// XMLElement is a shared XML element: a tag, attributes and child nodes.
type XMLElement struct {
	handle
	name     string
	attrs    map[string]string
	children []XMLNode
}

// XMLText is a shared XML text node with attributes.
type XMLText struct {
	handle
	prelim string
	attrs  map[string]string
}

func (*XMLElement) xmlNode() {}
func (*XMLText) xmlNode()    {}

// NewXMLElement returns a preliminary element.
func NewXMLElement(name string, children ...XMLNode) *XMLElement {
	return &XMLElement{
		handle:   handle{kind: engine.KindXMLElement},
		name:     name,
		attrs:    make(map[string]string),
		children: slices.Clone(children),
	}
}

// NewXMLText returns a preliminary text node.
func NewXMLText(s string) *XMLText {
	return &XMLText{handle: handle{kind: engine.KindXMLText}, prelim: s, attrs: make(map[string]string)}
}

// Name returns the tag.
func (e *XMLElement) Name() string {
	if e.IsPreliminary() {
		return e.name
	}
	return e.branch.NodeName()
}

// Len returns the number of child nodes.
func (e *XMLElement) Len() int {
	if e.IsPreliminary() {
		return len(e.children)
	}
	var n int
	e.doc.read(func() { n = e.branch.Len() })
	return n
}

// Get returns the child at index.
func (e *XMLElement) Get(index int) (XMLNode, error) {
	if e.IsPreliminary() {
		i, err := normalizeIndex(index, len(e.children))
		if err != nil {
			return nil, err
		}
		return e.children[i], nil
	}
	var (
		node XMLNode
		err  error
	)
	e.doc.read(func() {
		var i int
		if i, err = normalizeIndex(index, e.branch.Len()); err != nil {
			return
		}
		var raw any
		if raw, err = e.branch.Get(i); err == nil {
			node = e.doc.xmlNode(raw)
		}
	})
	return node, translate(err)
}

// Children returns the child nodes in order.
func (e *XMLElement) Children() []XMLNode {
	if e.IsPreliminary() {
		return slices.Clone(e.children)
	}
	var nodes []XMLNode
	e.doc.read(func() {
		for _, raw := range e.branch.Values() {
			if n := e.doc.xmlNode(raw); n != nil {
				nodes = append(nodes, n)
			}
		}
	})
	return nodes
}

// Insert splices nodes in at index. Nodes must be preliminary.
func (e *XMLElement) Insert(txn *Transaction, index int, nodes ...XMLNode) error {
	if e.IsPreliminary() {
		if index < 0 || index > len(e.children) {
			return errIndex(index, len(e.children))
		}
		e.children = slices.Insert(e.children, index, nodes...)
		return nil
	}
	values := make([]any, len(nodes))
	for i, n := range nodes {
		values[i] = n
	}
	return e.write(txn, func(t *engine.Txn) error {
		return e.doc.insertValues(t, e.branch, index, values)
	})
}

// InsertXMLElement inserts a new empty element at index and returns it.
func (e *XMLElement) InsertXMLElement(txn *Transaction, index int, name string) (*XMLElement, error) {
	child := NewXMLElement(name)
	if err := e.Insert(txn, index, child); err != nil {
		return nil, err
	}
	return child, nil
}

// InsertXMLText inserts a new empty text node at index and returns it.
func (e *XMLElement) InsertXMLText(txn *Transaction, index int) (*XMLText, error) {
	child := NewXMLText("")
	if err := e.Insert(txn, index, child); err != nil {
		return nil, err
	}
	return child, nil
}

// PushXMLElement appends a new empty element and returns it.
func (e *XMLElement) PushXMLElement(txn *Transaction, name string) (*XMLElement, error) {
	child := NewXMLElement(name)
	if err := e.push(txn, child); err != nil {
		return nil, err
	}
	return child, nil
}

// PushXMLText appends a new empty text node and returns it.
func (e *XMLElement) PushXMLText(txn *Transaction) (*XMLText, error) {
	child := NewXMLText("")
	if err := e.push(txn, child); err != nil {
		return nil, err
	}
	return child, nil
}

func (e *XMLElement) push(txn *Transaction, node XMLNode) error {
	if e.IsPreliminary() {
		e.children = append(e.children, node)
		return nil
	}
	return e.write(txn, func(t *engine.Txn) error {
		return e.doc.insertValues(t, e.branch, e.branch.Len(), []any{node})
	})
}

// Delete removes length children starting at index.
func (e *XMLElement) Delete(txn *Transaction, index, length int) error {
	if e.IsPreliminary() {
		if index < 0 || length < 0 || index+length > len(e.children) {
			return errIndex(index+length, len(e.children))
		}
		e.children = slices.Delete(e.children, index, index+length)
		return nil
	}
	return e.write(txn, func(t *engine.Txn) error {
		return t.Remove(e.branch, index, length)
	})
}

// FirstChild returns the first child, nil when there is none.
func (e *XMLElement) FirstChild() XMLNode {
	node, err := e.Get(0)
	if err != nil {
		return nil
	}
	return node
}

// NextSibling returns the next node under the same parent.
func (e *XMLElement) NextSibling() XMLNode { return siblingOf(&e.handle, true) }

// PrevSibling returns the previous node under the same parent.
func (e *XMLElement) PrevSibling() XMLNode { return siblingOf(&e.handle, false) }

// Parent returns the enclosing element, nil for roots and preliminary nodes.
func (e *XMLElement) Parent() *XMLElement { return parentOf(&e.handle) }

// SetAttribute sets an attribute.
func (e *XMLElement) SetAttribute(txn *Transaction, name, value string) error {
	return setAttribute(&e.handle, e.attrs, txn, name, value)
}

// GetAttribute returns an attribute.
func (e *XMLElement) GetAttribute(name string) (string, bool) {
	return getAttribute(&e.handle, e.attrs, name)
}

// RemoveAttribute removes an attribute.
func (e *XMLElement) RemoveAttribute(txn *Transaction, name string) error {
	return removeAttribute(&e.handle, e.attrs, txn, name)
}

// Attributes returns all attributes.
func (e *XMLElement) Attributes() map[string]string {
	return attributes(&e.handle, e.attrs)
}

// TreeWalker returns every node below e, depth-first in document order.
func (e *XMLElement) TreeWalker() []XMLNode {
	var nodes []XMLNode
	if e.IsPreliminary() {
		for _, c := range e.children {
			nodes = append(nodes, c)
			if el, ok := c.(*XMLElement); ok {
				nodes = append(nodes, el.TreeWalker()...)
			}
		}
		return nodes
	}
	e.doc.read(func() {
		e.branch.Walk(func(b *engine.Branch) bool {
			if n := e.doc.xmlNode(b); n != nil {
				nodes = append(nodes, n)
			}
			return true
		})
	})
	return nodes
}

// String renders the element as markup.
func (e *XMLElement) String() string {
	if !e.IsPreliminary() {
		var s string
		e.doc.read(func() { s = e.branch.XMLString() })
		return s
	}
	var sb strings.Builder
	sb.WriteByte('<')
	sb.WriteString(e.name)
	for _, k := range slices.Sorted(maps.Keys(e.attrs)) {
		fmt.Fprintf(&sb, " %s=%q", k, e.attrs[k])
	}
	sb.WriteByte('>')
	for _, c := range e.children {
		sb.WriteString(c.String())
	}
	fmt.Fprintf(&sb, "</%s>", e.name)
	return sb.String()
}

// ToJSON renders the markup as a JSON string.
func (e *XMLElement) ToJSON() (string, error) { return toJSON(e) }

// Observe registers fn for changes to the element's children and attributes.
func (e *XMLElement) Observe(fn func(*XMLEvent)) (Subscription, error) {
	return e.observe(func(ev *Event) { fn(&XMLEvent{Event: ev}) })
}

func (e *XMLElement) toIR() ir.IRValue { return ir.IRString(e.String()) }

func (e *XMLElement) validate(d *Document, seen map[integrable]bool) error {
	values := make([]any, len(e.children))
	for i, c := range e.children {
		values[i] = c
	}
	_, err := d.classifyValues(values, seen)
	return err
}

func (e *XMLElement) integrate(d *Document, t *engine.Txn, s slot) error {
	if !e.IsPreliminary() {
		return errAlreadyIntegrated(e.kind)
	}
	b, err := s.reserve(t, engine.KindXMLElement, e.name)
	if err != nil {
		return translate(err)
	}
	attrs, children := e.attrs, e.children
	e.bind(d, b)
	e.attrs, e.children = nil, nil
	if err := d.setEntries(t, b, stringEntries(attrs)); err != nil {
		return err
	}
	values := make([]any, len(children))
	for i, c := range children {
		values[i] = c
	}
	return d.insertValues(t, b, 0, values)
}

// Len returns the length in offset units.
func (x *XMLText) Len() int { return textLen(&x.handle, x.prelim) }

// String returns the text.
func (x *XMLText) String() string { return textString(&x.handle, x.prelim) }

// Insert inserts s at index.
func (x *XMLText) Insert(txn *Transaction, index int, s string) error {
	return textInsert(&x.handle, &x.prelim, txn, index, s)
}

// Push appends s.
func (x *XMLText) Push(txn *Transaction, s string) error {
	return textInsert(&x.handle, &x.prelim, txn, x.Len(), s)
}

// InsertEmbed inserts an opaque plain value occupying one offset unit.
func (x *XMLText) InsertEmbed(txn *Transaction, index int, value any) error {
	return textInsertEmbed(&x.handle, txn, index, value)
}

// Delete removes the character at index.
func (x *XMLText) Delete(txn *Transaction, index int) error {
	return textDeleteRange(&x.handle, &x.prelim, txn, index, charWidth(&x.handle, x.prelim, index))
}

// DeleteRange removes length offset units starting at index.
func (x *XMLText) DeleteRange(txn *Transaction, index, length int) error {
	return textDeleteRange(&x.handle, &x.prelim, txn, index, length)
}

// NextSibling returns the next node under the same parent.
func (x *XMLText) NextSibling() XMLNode { return siblingOf(&x.handle, true) }

// PrevSibling returns the previous node under the same parent.
func (x *XMLText) PrevSibling() XMLNode { return siblingOf(&x.handle, false) }

// Parent returns the enclosing element, nil for roots and preliminary nodes.
func (x *XMLText) Parent() *XMLElement { return parentOf(&x.handle) }

// SetAttribute sets an attribute.
func (x *XMLText) SetAttribute(txn *Transaction, name, value string) error {
	return setAttribute(&x.handle, x.attrs, txn, name, value)
}

// GetAttribute returns an attribute.
func (x *XMLText) GetAttribute(name string) (string, bool) {
	return getAttribute(&x.handle, x.attrs, name)
}

// RemoveAttribute removes an attribute.
func (x *XMLText) RemoveAttribute(txn *Transaction, name string) error {
	return removeAttribute(&x.handle, x.attrs, txn, name)
}

// Attributes returns all attributes.
func (x *XMLText) Attributes() map[string]string {
	return attributes(&x.handle, x.attrs)
}

// ToJSON renders the text as a JSON string.
func (x *XMLText) ToJSON() (string, error) { return toJSON(x) }

// Observe registers fn for changes to the text and its attributes.
func (x *XMLText) Observe(fn func(*XMLTextEvent)) (Subscription, error) {
	return x.observe(func(ev *Event) { fn(&XMLTextEvent{Event: ev}) })
}

func (x *XMLText) toIR() ir.IRValue { return ir.IRString(x.String()) }

func (x *XMLText) validate(*Document, map[integrable]bool) error { return nil }

func (x *XMLText) integrate(d *Document, t *engine.Txn, s slot) error {
	if !x.IsPreliminary() {
		return errAlreadyIntegrated(x.kind)
	}
	b, err := s.reserve(t, engine.KindXMLText, "")
	if err != nil {
		return translate(err)
	}
	text, attrs := x.prelim, x.attrs
	x.bind(d, b)
	x.prelim, x.attrs = "", nil
	if err := translate(t.InsertString(b, 0, text)); err != nil {
		return err
	}
	return d.setEntries(t, b, stringEntries(attrs))
}

// xmlNode wraps an engine value as an XML node, nil for anything else.
func (d *Document) xmlNode(raw any) XMLNode {
	b, ok := raw.(*engine.Branch)
	if !ok {
		return nil
	}
	switch b.Kind() {
	case engine.KindXMLElement:
		return &XMLElement{handle: integratedHandle(d, b)}
	case engine.KindXMLText:
		return &XMLText{handle: integratedHandle(d, b)}
	}
	return nil
}

func siblingOf(h *handle, next bool) XMLNode {
	if h.IsPreliminary() {
		return nil
	}
	var node XMLNode
	h.doc.read(func() {
		var b *engine.Branch
		if next {
			b = h.branch.NextSibling()
		} else {
			b = h.branch.PrevSibling()
		}
		if b != nil {
			node = h.doc.xmlNode(b)
		}
	})
	return node
}

func parentOf(h *handle) *XMLElement {
	if h.IsPreliminary() {
		return nil
	}
	p := h.branch.Parent()
	if p == nil || p.Kind() != engine.KindXMLElement {
		return nil
	}
	return &XMLElement{handle: integratedHandle(h.doc, p)}
}

func setAttribute(h *handle, prelim map[string]string, txn *Transaction, name, value string) error {
	if h.IsPreliminary() {
		prelim[name] = value
		return nil
	}
	return h.write(txn, func(t *engine.Txn) error {
		return t.SetValue(h.branch, name, ir.IRString(value))
	})
}

func getAttribute(h *handle, prelim map[string]string, name string) (string, bool) {
	if h.IsPreliminary() {
		v, ok := prelim[name]
		return v, ok
	}
	var (
		s  string
		ok bool
	)
	h.doc.read(func() {
		var v any
		if v, ok = h.branch.Entry(name); ok {
			s = attributeValue(v)
		}
	})
	return s, ok
}

func removeAttribute(h *handle, prelim map[string]string, txn *Transaction, name string) error {
	if h.IsPreliminary() {
		delete(prelim, name)
		return nil
	}
	return h.write(txn, func(t *engine.Txn) error {
		_, err := t.RemoveKey(h.branch, name)
		return err
	})
}

func attributes(h *handle, prelim map[string]string) map[string]string {
	if h.IsPreliminary() {
		return maps.Clone(prelim)
	}
	out := make(map[string]string)
	h.doc.read(func() {
		for _, k := range h.branch.Keys() {
			v, _ := h.branch.Entry(k)
			out[k] = attributeValue(v)
		}
	})
	return out
}

// attributeValue renders a stored attribute. Attributes written by remote
// replicas may hold non-string values; those render as JSON.
func attributeValue(v any) string {
	switch val := v.(type) {
	case ir.IRString:
		return string(val)
	case ir.IRValue:
		out, err := ir.MarshalCanonical(val)
		if err != nil {
			return ""
		}
		return string(out)
	}
	return ""
}

func stringEntries(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
