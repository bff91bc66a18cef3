package engine

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/ydoc/internal/ir"
)

// Branch is a shared container: a root by name or a container nested in
// another container's item.
//
// Sequence content (array elements, characters, XML children) is a doubly
// linked list of items starting at start. Keyed content (map entries, XML
// attributes) keeps the most recent item per key in entries; older items for
// the same key hang off its left pointer.
type Branch struct {
	doc      *Doc
	kind     Kind
	name     string
	nodeName string
	item     *Item
	start    *Item
	entries  map[string]*Item
	length   int

	observers     []subscription[*Event]
	deepObservers []subscription[[]*Event]
}

func newBranch(doc *Doc, kind Kind, nodeName string) *Branch {
	return &Branch{
		doc:      doc,
		kind:     kind,
		nodeName: nodeName,
		entries:  make(map[string]*Item),
	}
}

// Kind returns the container kind.
func (b *Branch) Kind() Kind { return b.kind }

// Doc returns the owning document.
func (b *Branch) Doc() *Doc { return b.doc }

// Name returns the root name, or "" for nested containers.
func (b *Branch) Name() string { return b.name }

// NodeName returns the tag of an XML element.
func (b *Branch) NodeName() string { return b.nodeName }

// IsRoot reports whether the branch is a named root.
func (b *Branch) IsRoot() bool { return b.item == nil }

// Deleted reports whether the container itself has been removed from its parent.
func (b *Branch) Deleted() bool { return b.item != nil && b.item.Deleted }

// ID returns the ID of the item holding a nested container.
func (b *Branch) ID() (ID, bool) {
	if b.item == nil {
		return ID{}, false
	}
	return b.item.ID, true
}

// Len returns the visible sequence length in the document's offset units.
func (b *Branch) Len() int { return b.length }

// Parent returns the container holding b, nil for roots.
func (b *Branch) Parent() *Branch {
	if b.item == nil {
		return nil
	}
	return b.item.branch
}

func (b *Branch) ref() parentRef {
	if b.item == nil {
		return parentRef{root: b.name, isRoot: true}
	}
	return parentRef{id: b.item.ID}
}

// Get returns the visible sequence element at index: an ir.IRValue or a *Branch.
// Index counts elements, which for text means offset units of characters.
func (b *Branch) Get(index int) (any, error) {
	if index < 0 || index >= b.length {
		return nil, newIndexError(index, b.length)
	}
	k := b.doc.offsetKind
	for it := b.start; it != nil; it = it.right {
		if it.Deleted {
			continue
		}
		n := it.lengthIn(k)
		if index < n {
			return it.content.value(), nil
		}
		index -= n
	}
	return nil, newIndexError(index, b.length)
}

// Values returns every visible sequence element in order.
func (b *Branch) Values() []any {
	values := make([]any, 0, b.length)
	for it := b.start; it != nil; it = it.right {
		if !it.Deleted && !isFormat(it) {
			values = append(values, it.content.value())
		}
	}
	return values
}

// Entry returns the current value under key.
func (b *Branch) Entry(key string) (any, bool) {
	it := b.entries[key]
	if it == nil || it.Deleted {
		return nil, false
	}
	return it.content.value(), true
}

// Keys returns the keys with a live value, sorted.
func (b *Branch) Keys() []string {
	keys := make([]string, 0, len(b.entries))
	for k, it := range b.entries {
		if !it.Deleted {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

// EntryCount returns the number of keys with a live value.
func (b *Branch) EntryCount() int {
	n := 0
	for _, it := range b.entries {
		if !it.Deleted {
			n++
		}
	}
	return n
}

// String returns the characters of a text container, skipping embeds.
func (b *Branch) String() string {
	var sb strings.Builder
	for it := b.start; it != nil; it = it.right {
		if it.Deleted {
			continue
		}
		if sc, ok := it.content.(stringContent); ok {
			sb.WriteRune(sc.r)
		}
	}
	return sb.String()
}

// index returns the position of the item among the visible items of its branch.
func (it *Item) index() int {
	n := 0
	for o := it.branch.start; o != nil && o != it; o = o.right {
		if !o.Deleted {
			n += o.lengthIn(it.branch.doc.offsetKind)
		}
	}
	return n
}

// Path returns the steps from the enclosing root to b: a string for each map
// key and an int for each sequence index. Roots have an empty path.
func (b *Branch) Path() []any {
	var path []any
	for cur := b; cur.item != nil && cur.item.branch != nil; cur = cur.item.branch {
		if cur.item.keyed {
			path = append(path, cur.item.key)
		} else {
			path = append(path, cur.item.index())
		}
	}
	slices.Reverse(path)
	return path
}

// Root returns the root container enclosing b.
func (b *Branch) Root() *Branch {
	cur := b
	for cur.item != nil && cur.item.branch != nil {
		cur = cur.item.branch
	}
	return cur
}

// NextSibling returns the next visible container in the parent's sequence.
func (b *Branch) NextSibling() *Branch {
	if b.item == nil {
		return nil
	}
	for it := b.item.right; it != nil; it = it.right {
		if tc, ok := it.content.(typeContent); ok && !it.Deleted {
			return tc.branch
		}
	}
	return nil
}

// PrevSibling returns the previous visible container in the parent's sequence.
func (b *Branch) PrevSibling() *Branch {
	if b.item == nil {
		return nil
	}
	for it := b.item.left; it != nil; it = it.left {
		if tc, ok := it.content.(typeContent); ok && !it.Deleted {
			return tc.branch
		}
	}
	return nil
}

// Walk visits every container nested in b's sequence depth-first, in
// document order. Returning false from fn stops the walk.
func (b *Branch) Walk(fn func(*Branch) bool) {
	b.walk(fn)
}

func (b *Branch) walk(fn func(*Branch) bool) bool {
	for it := b.start; it != nil; it = it.right {
		tc, ok := it.content.(typeContent)
		if !ok || it.Deleted {
			continue
		}
		if !fn(tc.branch) || !tc.branch.walk(fn) {
			return false
		}
	}
	return true
}

// InferKind returns the kind of b, guessing from content for roots that were
// only ever created by remote updates.
func (b *Branch) InferKind() Kind {
	if b.kind != KindUndefined {
		return b.kind
	}
	if b.start == nil && len(b.entries) > 0 {
		return KindMap
	}
	for it := b.start; it != nil; it = it.right {
		switch it.content.(type) {
		case stringContent, embedContent, formatContent:
			return KindText
		case anyContent, typeContent:
			return KindArray
		}
	}
	return KindArray
}

// ToIR renders the container's visible content as a plain value.
// Arrays become IRArray, maps IRObject, text its string, XML its markup.
func (b *Branch) ToIR() ir.IRValue {
	switch b.InferKind() {
	case KindMap:
		obj := make(ir.IRObject, len(b.entries))
		for _, k := range b.Keys() {
			v, _ := b.Entry(k)
			obj[k] = valueToIR(v)
		}
		return obj
	case KindText, KindXMLText:
		return ir.IRString(b.String())
	case KindXMLElement:
		return ir.IRString(b.XMLString())
	default:
		values := b.Values()
		arr := make(ir.IRArray, len(values))
		for i, v := range values {
			arr[i] = valueToIR(v)
		}
		return arr
	}
}

func valueToIR(v any) ir.IRValue {
	switch val := v.(type) {
	case *Branch:
		return val.ToIR()
	case ir.IRValue:
		return val
	default:
		return ir.IRNull{}
	}
}

// XMLString renders an XML element with its attributes and children, or the
// text of an XML text node.
func (b *Branch) XMLString() string {
	if b.kind != KindXMLElement {
		return b.String()
	}
	var sb strings.Builder
	sb.WriteByte('<')
	sb.WriteString(b.nodeName)
	for _, k := range b.Keys() {
		v, _ := b.Entry(k)
		fmt.Fprintf(&sb, " %s=%q", k, attributeString(v))
	}
	sb.WriteByte('>')
	for _, v := range b.Values() {
		if child, ok := v.(*Branch); ok {
			sb.WriteString(child.XMLString())
		}
	}
	sb.WriteString("</")
	sb.WriteString(b.nodeName)
	sb.WriteByte('>')
	return sb.String()
}

func attributeString(v any) string {
	if s, ok := v.(ir.IRString); ok {
		return string(s)
	}
	if irv, ok := v.(ir.IRValue); ok {
		return string(ir.MustMarshalCanonical(irv))
	}
	return ""
}

// findPosition returns the items between which a sequence insert at index goes.
func (b *Branch) findPosition(index int) (left, right *Item, err error) {
	if index < 0 || index > b.length {
		return nil, nil, newIndexError(index, b.length)
	}
	k := b.doc.offsetKind
	right = b.start
	for index > 0 && right != nil {
		if !right.Deleted {
			n := right.lengthIn(k)
			if index < n {
				return nil, nil, &Error{
					Code:    ErrCodeIndexOutOfRange,
					Message: fmt.Sprintf("offset falls inside a %d-unit character", n),
				}
			}
			index -= n
		}
		left, right = right, right.right
	}
	return left, right, nil
}
