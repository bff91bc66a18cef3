package engine

// parentRef names an item's parent the way it travels on the wire:
// a root container by name or a nested container by the ID of the item
// holding it.
type parentRef struct {
	root   string
	id     ID
	isRoot bool
}

// Item is one unit of content in a container: a value, a character, an
// embed or a nested container.
//
// INVARIANTS:
//   - Items are never removed from the block store; deletion sets Deleted
//   - Origin and RightOrigin are fixed at creation and drive conflict resolution
//   - branch is nil only for items whose parent was garbage collected
type Item struct {
	ID          ID
	Origin      *ID
	RightOrigin *ID
	Deleted     bool

	left, right *Item
	parent      parentRef
	branch      *Branch
	key         string
	keyed       bool
	content     content
}

// lengthIn is the number of offset units the item occupies when visible.
func (it *Item) lengthIn(k OffsetKind) int {
	return it.content.length(k)
}

// integrate links the item into its branch, resolving concurrent inserts at
// the same position.
//
// Concurrent items sharing an origin are ordered by client ID; items whose
// origin lies between the conflicting candidates go to the right of them.
// This is what makes every replica converge to the same order.
func (it *Item) integrate(t *Txn) {
	b := it.branch
	doc := t.doc

	if (it.left == nil && (it.right == nil || it.right.left != nil)) || (it.left != nil && it.left.right != it.right) {
		left := it.left
		var o *Item
		switch {
		case left != nil:
			o = left.right
		case it.keyed:
			o = b.entries[it.key]
			for o != nil && o.left != nil {
				o = o.left
			}
		default:
			o = b.start
		}

		conflicting := make(map[*Item]struct{})
		beforeOrigin := make(map[*Item]struct{})
		for o != nil && o != it.right {
			beforeOrigin[o] = struct{}{}
			conflicting[o] = struct{}{}
			if sameID(it.Origin, o.Origin) {
				if o.ID.Client < it.ID.Client {
					left = o
					clear(conflicting)
				} else if sameID(it.RightOrigin, o.RightOrigin) {
					break
				}
			} else if o.Origin != nil {
				originItem := doc.store.find(*o.Origin)
				if _, ok := beforeOrigin[originItem]; !ok {
					break
				}
				if _, ok := conflicting[originItem]; !ok {
					left = o
					clear(conflicting)
				}
			} else {
				break
			}
			o = o.right
		}
		it.left = left
	}

	if it.left != nil {
		it.right = it.left.right
		it.left.right = it
	} else {
		var r *Item
		if it.keyed {
			r = b.entries[it.key]
			for r != nil && r.left != nil {
				r = r.left
			}
		} else {
			r = b.start
			b.start = it
		}
		it.right = r
	}

	if it.right != nil {
		it.right.left = it
	} else if it.keyed {
		b.entries[it.key] = it
		if it.left != nil {
			t.deleteItem(it.left)
		}
	}

	if !it.keyed && !it.Deleted {
		b.length += it.lengthIn(doc.offsetKind)
	}
	doc.store.add(it)
	if tc, ok := it.content.(typeContent); ok {
		tc.branch.item = it
		tc.branch.doc = doc
	}
	t.markChanged(b, it.key, it.keyed)

	// A map entry that lost to a later write, or anything inserted into a
	// deleted container, is dead on arrival.
	if (b.item != nil && b.item.Deleted) || (it.keyed && it.right != nil) {
		t.deleteItem(it)
	}
}
