package engine

import (
	"maps"
	"slices"

	"github.com/roach88/ydoc/internal/ir"
)

// Attrs are text formatting attributes. A null value removes the attribute.
type Attrs map[string]ir.IRValue

func (a Attrs) get(key string) ir.IRValue {
	if v, ok := a[key]; ok {
		return v
	}
	return ir.IRNull{}
}

func (a Attrs) apply(c formatContent) {
	if isNull(c.v) {
		delete(a, c.key)
		return
	}
	a[c.key] = c.v
}

// clone returns a copy, nil when empty.
func (a Attrs) clone() Attrs {
	if len(a) == 0 {
		return nil
	}
	return maps.Clone(a)
}

func sameAttrs(a, b Attrs) bool {
	return maps.EqualFunc(a, b, ir.Equal)
}

func isNull(v ir.IRValue) bool {
	_, ok := v.(ir.IRNull)
	return v == nil || ok
}

// formatContent opens (non-null value) or closes (null value) a formatting
// attribute for the text to its right. It occupies no offset units.
type formatContent struct {
	key string
	v   ir.IRValue
}

func (formatContent) tag() contentTag       { return tagFormat }
func (formatContent) length(OffsetKind) int { return 0 }
func (c formatContent) value() any          { return c.v }

func isFormat(it *Item) bool {
	_, ok := it.content.(formatContent)
	return ok
}

// textPosition is a cursor between two items of a text container that knows
// which attributes apply at that point.
type textPosition struct {
	left, right *Item
	attrs       Attrs
}

func (b *Branch) textPosition(index int) (*textPosition, error) {
	left, right, err := b.findPosition(index)
	if err != nil {
		return nil, err
	}
	p := &textPosition{right: b.start, attrs: Attrs{}}
	for p.right != right {
		p.forward()
	}
	p.left = left
	return p, nil
}

func (p *textPosition) forward() {
	if fc, ok := p.right.content.(formatContent); ok && !p.right.Deleted {
		p.attrs.apply(fc)
	}
	p.left, p.right = p.right, p.right.right
}

// insertAt inserts one item at the cursor and moves the cursor past it.
func (t *Txn) insertAt(b *Branch, p *textPosition, c content) {
	it := t.newItem(b, p.left, p.right, c)
	it.integrate(t)
	p.right = it
	p.forward()
}

// skipMatchingFormats moves the cursor past deleted items and markers that
// already set what attrs asks for.
func (p *textPosition) skipMatchingFormats(attrs Attrs) {
	for p.right != nil {
		if !p.right.Deleted {
			fc, ok := p.right.content.(formatContent)
			if !ok || !ir.Equal(attrs.get(fc.key), fc.v) {
				return
			}
		}
		p.forward()
	}
}

// openAttributes inserts a marker for every attribute that differs from the
// cursor's, returning the values to restore afterwards.
func (t *Txn) openAttributes(b *Branch, p *textPosition, attrs Attrs) Attrs {
	restore := Attrs{}
	for _, key := range slices.Sorted(maps.Keys(attrs)) {
		want, cur := attrs[key], p.attrs.get(key)
		if ir.Equal(want, cur) {
			continue
		}
		restore[key] = cur
		t.insertAt(b, p, formatContent{key: key, v: want})
	}
	return restore
}

// closeAttributes inserts the markers that restore the formatting that was
// in effect before openAttributes, reusing markers already in place.
func (t *Txn) closeAttributes(b *Branch, p *textPosition, restore Attrs) {
	for p.right != nil {
		if !p.right.Deleted {
			fc, ok := p.right.content.(formatContent)
			if !ok || !ir.Equal(restore.get(fc.key), fc.v) {
				break
			}
			delete(restore, fc.key)
		}
		p.forward()
	}
	for _, key := range slices.Sorted(maps.Keys(restore)) {
		t.insertAt(b, p, formatContent{key: key, v: restore[key]})
	}
}

func (t *Txn) insertFormatted(b *Branch, index int, contents []content, attrs Attrs) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	p, err := b.textPosition(index)
	if err != nil {
		return err
	}
	want := maps.Clone(attrs)
	if want == nil {
		want = Attrs{}
	}
	for key := range p.attrs {
		if _, ok := want[key]; !ok {
			want[key] = ir.IRNull{}
		}
	}
	attrs = want
	p.skipMatchingFormats(attrs)
	restore := t.openAttributes(b, p, attrs)
	for _, c := range contents {
		t.insertAt(b, p, c)
	}
	t.closeAttributes(b, p, restore)
	return nil
}

// InsertStringWithAttributes inserts characters carrying exactly attrs:
// attributes in effect at index but missing from attrs do not apply to them.
func (t *Txn) InsertStringWithAttributes(b *Branch, index int, s string, attrs Attrs) error {
	contents := make([]content, 0, len(s))
	for _, r := range s {
		contents = append(contents, stringContent{r: r})
	}
	return t.insertFormatted(b, index, contents, attrs)
}

// InsertEmbedWithAttributes inserts an embed carrying exactly attrs.
func (t *Txn) InsertEmbedWithAttributes(b *Branch, index int, v ir.IRValue, attrs Attrs) error {
	return t.insertFormatted(b, index, []content{embedContent{v: v}}, attrs)
}

// Format applies attrs to length offset units starting at index. A null
// value removes that attribute. Markers inside the range that attrs
// supersedes are deleted.
func (t *Txn) Format(b *Branch, index, length int, attrs Attrs) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	if length < 0 || index < 0 || index+length > b.length {
		return newIndexError(index+length, b.length)
	}
	if len(attrs) == 0 || length == 0 {
		return nil
	}
	p, err := b.textPosition(index)
	if err != nil {
		return err
	}
	restore := t.openAttributes(b, p, attrs)
	k := t.doc.offsetKind
loop:
	for p.right != nil && (length > 0 || (len(restore) > 0 && (p.right.Deleted || isFormat(p.right)))) {
		if it := p.right; !it.Deleted {
			if fc, ok := it.content.(formatContent); ok {
				if want, set := attrs[fc.key]; set {
					if ir.Equal(want, fc.v) {
						delete(restore, fc.key)
					} else {
						if length == 0 {
							break loop
						}
						restore[fc.key] = fc.v
					}
					t.deleteItem(it)
				}
			} else {
				length -= it.lengthIn(k)
			}
		}
		p.forward()
	}
	t.closeAttributes(b, p, restore)
	return nil
}

// Diff returns the visible content of a text container as insert steps,
// each carrying the attributes in effect for it.
func (b *Branch) Diff() []DeltaOp {
	var db deltaBuilder
	cur := Attrs{}
	for it := b.start; it != nil; it = it.right {
		if it.Deleted {
			continue
		}
		if fc, ok := it.content.(formatContent); ok {
			cur.apply(fc)
			continue
		}
		db.insert(it.content, cur.clone())
	}
	return db.ops
}
