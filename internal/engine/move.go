package engine

import (
	"maps"
	"slices"
)

// movedItem is a copy of a visible item taken before a move deletes it.
// Nested containers are captured with their visible content.
type movedItem struct {
	content  content
	children []movedItem
	entries  map[string]movedItem
}

func (t *Txn) capture(it *Item) movedItem {
	tc, ok := it.content.(typeContent)
	if !ok {
		return movedItem{content: it.content}
	}
	src := tc.branch
	m := movedItem{
		content: typeContent{branch: newBranch(t.doc, src.kind, src.nodeName)},
		entries: make(map[string]movedItem),
	}
	for c := src.start; c != nil; c = c.right {
		if !c.Deleted {
			m.children = append(m.children, t.capture(c))
		}
	}
	for key, e := range src.entries {
		if !e.Deleted {
			m.entries[key] = t.capture(e)
		}
	}
	return m
}

// restore inserts captured items at index, then refills every recreated
// container.
func (t *Txn) restore(b *Branch, index int, items []movedItem) error {
	contents := make([]content, len(items))
	for i, m := range items {
		contents[i] = m.content
	}
	if err := t.insertContents(b, index, contents); err != nil {
		return err
	}
	for _, m := range items {
		if err := t.refill(m); err != nil {
			return err
		}
	}
	return nil
}

func (t *Txn) refill(m movedItem) error {
	tc, ok := m.content.(typeContent)
	if !ok {
		return nil
	}
	if err := t.restore(tc.branch, 0, m.children); err != nil {
		return err
	}
	for _, key := range slices.Sorted(maps.Keys(m.entries)) {
		e := m.entries[key]
		if err := t.setEntry(tc.branch, key, e.content); err != nil {
			return err
		}
		if err := t.refill(e); err != nil {
			return err
		}
	}
	return nil
}

// Move moves the elements at start..end (inclusive) so they sit before the
// element that was at target, or at the end when target is the length.
// Indices count elements as they were before the move.
//
// A move deletes the elements and inserts copies, so nested containers are
// recreated: branches obtained before the move report Deleted afterwards.
// Moving a range onto itself is a no-op.
func (t *Txn) Move(b *Branch, start, end, target int) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	n := b.length
	switch {
	case start < 0 || start >= n:
		return newIndexError(start, n)
	case end < start || end >= n:
		return newIndexError(end, n)
	case target < 0 || target > n:
		return newIndexError(target, n)
	case target >= start && target <= end+1:
		return nil
	}

	_, it, err := b.findPosition(start)
	if err != nil {
		return err
	}
	var moved []*Item
	for ; it != nil && len(moved) < end-start+1; it = it.right {
		if !it.Deleted {
			moved = append(moved, it)
		}
	}
	captured := make([]movedItem, len(moved))
	for i, m := range moved {
		captured[i] = t.capture(m)
	}
	for _, m := range moved {
		t.deleteItem(m)
	}
	if target > end {
		target -= len(moved)
	}
	return t.restore(b, target, captured)
}
