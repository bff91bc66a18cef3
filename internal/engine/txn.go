package engine

import (
	"slices"

	"github.com/roach88/ydoc/internal/ir"
)

// Txn is the engine's mutable transaction over a document.
//
// A document has at most one Txn alive at a time (Doc.Begin enforces it).
// All mutations go through the Txn; reads may go straight to branches.
// After Commit the Txn rejects mutations with ErrCodeTransactionFinished.
type Txn struct {
	doc         *Doc
	seq         uint64
	beforeState StateVector
	deleteSet   DeleteSet

	changed      map[*Branch]*changeSet
	changedOrder []*Branch

	committed bool
	finished  bool
}

type changeSet struct {
	keys map[string]struct{}
	seq  bool
}

// CommitResult is what a commit reports to after-transaction observers.
// All fields are owned values.
type CommitResult struct {
	Seq         uint64
	BeforeState StateVector
	AfterState  StateVector
	DeleteSet   DeleteSet
	// Update encodes every item created and deleted by the transaction.
	// It is nil when the transaction changed nothing.
	Update []byte
}

// Changed reports whether the transaction modified the document.
func (r *CommitResult) Changed() bool { return r.Update != nil }

// Doc returns the document the transaction mutates.
func (t *Txn) Doc() *Doc { return t.doc }

// Seq returns the transaction's sequence number within its document.
func (t *Txn) Seq() uint64 { return t.seq }

// BeforeState returns the state vector captured when the transaction began.
func (t *Txn) BeforeState() StateVector { return t.beforeState.Clone() }

// Committed reports whether Commit has started.
func (t *Txn) Committed() bool { return t.committed }

// Finished reports whether Commit completed; events of the transaction are
// no longer readable.
func (t *Txn) Finished() bool { return t.finished }

func (t *Txn) checkOpen() error {
	if t.committed {
		return errTransactionFinished
	}
	return nil
}

func (t *Txn) newItem(b *Branch, left, right *Item, c content) *Item {
	doc := t.doc
	it := &Item{
		ID:      ID{Client: doc.clientID, Clock: doc.store.state(doc.clientID)},
		left:    left,
		right:   right,
		parent:  b.ref(),
		branch:  b,
		content: c,
	}
	if left != nil {
		origin := left.ID
		it.Origin = &origin
	}
	if right != nil {
		rightOrigin := right.ID
		it.RightOrigin = &rightOrigin
	}
	return it
}

// insertContents inserts unit contents at a sequence index in order.
func (t *Txn) insertContents(b *Branch, index int, contents []content) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	left, right, err := b.findPosition(index)
	if err != nil {
		return err
	}
	for _, c := range contents {
		it := t.newItem(b, left, right, c)
		it.integrate(t)
		left = it
	}
	return nil
}

// InsertValues inserts a run of plain values at index with one call.
func (t *Txn) InsertValues(b *Branch, index int, values []ir.IRValue) error {
	contents := make([]content, len(values))
	for i, v := range values {
		contents[i] = anyContent{v: v}
	}
	return t.insertContents(b, index, contents)
}

// InsertContainer inserts an empty nested container at index and returns it.
func (t *Txn) InsertContainer(b *Branch, index int, kind Kind, nodeName string) (*Branch, error) {
	child := newBranch(t.doc, kind, nodeName)
	if err := t.insertContents(b, index, []content{typeContent{branch: child}}); err != nil {
		return nil, err
	}
	return child, nil
}

// InsertString inserts characters at an offset of a text container.
func (t *Txn) InsertString(b *Branch, index int, s string) error {
	contents := make([]content, 0, len(s))
	for _, r := range s {
		contents = append(contents, stringContent{r: r})
	}
	return t.insertContents(b, index, contents)
}

// InsertEmbed inserts an opaque value occupying one offset unit of a text container.
func (t *Txn) InsertEmbed(b *Branch, index int, v ir.IRValue) error {
	return t.insertContents(b, index, []content{embedContent{v: v}})
}

// Remove deletes length offset units starting at index. A character that
// straddles the end of the range is deleted whole.
func (t *Txn) Remove(b *Branch, index, length int) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	if length < 0 || index < 0 || index+length > b.length {
		return newIndexError(index+length, b.length)
	}
	_, it, err := b.findPosition(index)
	if err != nil {
		return err
	}
	k := t.doc.offsetKind
	for ; it != nil && length > 0; it = it.right {
		// Formatting markers stay so the text around the gap keeps its attributes.
		if it.Deleted || isFormat(it) {
			continue
		}
		length -= it.lengthIn(k)
		t.deleteItem(it)
	}
	return nil
}

func (t *Txn) setEntry(b *Branch, key string, c content) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	left := b.entries[key]
	it := t.newItem(b, left, nil, c)
	it.key = key
	it.keyed = true
	it.integrate(t)
	return nil
}

// SetValue stores a plain value under key, replacing any previous value.
func (t *Txn) SetValue(b *Branch, key string, v ir.IRValue) error {
	return t.setEntry(b, key, anyContent{v: v})
}

// SetContainer stores an empty nested container under key and returns it.
func (t *Txn) SetContainer(b *Branch, key string, kind Kind, nodeName string) (*Branch, error) {
	child := newBranch(t.doc, kind, nodeName)
	if err := t.setEntry(b, key, typeContent{branch: child}); err != nil {
		return nil, err
	}
	return child, nil
}

// RemoveKey deletes the value under key. It reports whether a live value existed.
func (t *Txn) RemoveKey(b *Branch, key string) (bool, error) {
	if err := t.checkOpen(); err != nil {
		return false, err
	}
	it := b.entries[key]
	if it == nil || it.Deleted {
		return false, nil
	}
	t.deleteItem(it)
	return true, nil
}

// deleteItem marks an item deleted, recursively deleting nested content.
func (t *Txn) deleteItem(it *Item) {
	if it.Deleted {
		return
	}
	it.Deleted = true
	t.deleteSet.add(it.ID)
	if b := it.branch; b != nil {
		if !it.keyed {
			b.length -= it.lengthIn(t.doc.offsetKind)
		}
		t.markChanged(b, it.key, it.keyed)
	}
	if tc, ok := it.content.(typeContent); ok {
		child := tc.branch
		for c := child.start; c != nil; c = c.right {
			t.deleteItem(c)
		}
		for _, e := range child.entries {
			t.deleteItem(e)
		}
	}
}

// markChanged records that a container changed. Containers created in this
// transaction report nothing themselves; their insertion shows up in the
// parent's event.
func (t *Txn) markChanged(b *Branch, key string, keyed bool) {
	if b == nil {
		return
	}
	if b.item != nil && (b.item.ID.Clock >= t.beforeState.Get(b.item.ID.Client) || b.item.Deleted) {
		return
	}
	cs := t.changed[b]
	if cs == nil {
		cs = &changeSet{keys: make(map[string]struct{})}
		t.changed[b] = cs
		t.changedOrder = append(t.changedOrder, b)
	}
	if keyed {
		cs.keys[key] = struct{}{}
	} else {
		cs.seq = true
	}
}

// adds reports whether the item was created by this transaction.
func (t *Txn) adds(it *Item) bool {
	return it.ID.Clock >= t.beforeState.Get(it.ID.Client)
}

// deletes reports whether the item was deleted by this transaction.
func (t *Txn) deletes(it *Item) bool {
	return t.deleteSet.Contains(it.ID)
}

// Commit finishes the transaction.
//
// Order of effects:
//  1. Mutations are closed
//  2. The update covering the transaction is encoded (runs of items merged)
//  3. Container observers, then deep observers, then after-transaction observers run;
//     a panicking observer is recovered and the rest still run
//  4. Deleted content is garbage collected unless the document skips GC
//  5. Events become unreadable and the document accepts a new transaction
//
// Commit fails with ErrCodeTransactionFinished when called twice.
func (t *Txn) Commit() (*CommitResult, error) {
	if t.committed {
		return nil, errTransactionFinished
	}
	t.committed = true
	doc := t.doc
	defer func() {
		t.finished = true
		if doc.active == t {
			doc.active = nil
		}
	}()

	t.deleteSet.normalize()
	afterState := doc.store.stateVector()
	result := &CommitResult{
		Seq:         t.seq,
		BeforeState: t.beforeState.Clone(),
		AfterState:  afterState,
		DeleteSet:   t.deleteSet,
	}
	changed := !afterState.Equal(t.beforeState) || !t.deleteSet.IsEmpty()
	if changed {
		result.Update = doc.encodeUpdate(t.beforeState, t.deleteSet)
	}

	if len(t.changedOrder) > 0 {
		t.fireEvents()
	}
	if changed {
		for _, sub := range slices.Clone(doc.afterTxn) {
			doc.notify("after-transaction", func() { sub.fn(result) })
		}
	}
	if !doc.skipGC {
		t.collectGarbage()
	}

	doc.logger.Debug("transaction committed",
		"client", doc.clientID,
		"seq", t.seq,
		"changed", changed,
		"update_bytes", len(result.Update),
	)
	return result, nil
}

// collectGarbage drops the content of items deleted by this transaction.
func (t *Txn) collectGarbage() {
	for client, ranges := range t.deleteSet {
		for _, r := range ranges {
			for clock := r.Clock; clock < r.Clock+r.Len; clock++ {
				if it := t.doc.store.find(ID{Client: client, Clock: clock}); it != nil && it.Deleted {
					it.content = deletedContent{}
				}
			}
		}
	}
}
