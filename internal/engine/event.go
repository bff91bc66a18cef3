package engine

import (
	"slices"

	"github.com/roach88/ydoc/internal/ir"
)

// subscription pairs an observer with the ID returned to its registrant.
type subscription[T any] struct {
	id uint32
	fn func(T)
}

func unsubscribe[T any](subs []subscription[T], id uint32) ([]subscription[T], bool) {
	i := slices.IndexFunc(subs, func(s subscription[T]) bool { return s.id == id })
	if i < 0 {
		return subs, false
	}
	return slices.Delete(subs, i, i+1), true
}

// Observe registers fn to run for every committed transaction that changes
// b's own content. It returns an ID for Unobserve.
func (b *Branch) Observe(fn func(*Event)) uint32 {
	id := b.doc.nextSubscriptionID()
	b.observers = append(b.observers, subscription[*Event]{id: id, fn: fn})
	return id
}

// Unobserve removes a shallow observer. It reports whether id was registered.
func (b *Branch) Unobserve(id uint32) bool {
	var ok bool
	b.observers, ok = unsubscribe(b.observers, id)
	return ok
}

// ObserveDeep registers fn to run for every committed transaction that
// changes b or any container nested in it. fn receives one event per changed
// container, shallowest first.
func (b *Branch) ObserveDeep(fn func([]*Event)) uint32 {
	id := b.doc.nextSubscriptionID()
	b.deepObservers = append(b.deepObservers, subscription[[]*Event]{id: id, fn: fn})
	return id
}

// UnobserveDeep removes a deep observer. It reports whether id was registered.
func (b *Branch) UnobserveDeep(id uint32) bool {
	var ok bool
	b.deepObservers, ok = unsubscribe(b.deepObservers, id)
	return ok
}

// Event describes the changes one transaction made to one container.
//
// Delta and Keys are computed from the transaction's bookkeeping, which only
// exists until the commit finishes. Afterwards both fail with
// ErrCodeTransactionFinished.
type Event struct {
	Target *Branch
	txn    *Txn
	keys   map[string]struct{}
	seq    bool
}

// Txn returns the transaction that produced the event.
func (e *Event) Txn() *Txn { return e.txn }

// Path returns the location of the target relative to its root container.
func (e *Event) Path() []any { return e.Target.Path() }

// DeltaOp is one step of a sequence delta. Exactly one of Insert, Delete or
// Retain is set.
type DeltaOp struct {
	// Insert holds the inserted elements: a string for runs of text,
	// otherwise []any of ir.IRValue and *Branch.
	Insert any
	Delete int
	Retain int
	// Attributes are the formatting of inserted text, or the formatting
	// changes of retained text (a null value removes an attribute).
	Attributes Attrs
}

// IsInsert reports whether the op inserts content.
func (op DeltaOp) IsInsert() bool { return op.Insert != nil }

// deltaBuilder appends delta steps, merging a step into the previous one
// when both are of the same kind and carry the same attributes.
type deltaBuilder struct {
	ops []DeltaOp
	// sealed is set after an embed, which never absorbs later inserts.
	sealed bool
}

func (d *deltaBuilder) last() *DeltaOp {
	if len(d.ops) == 0 {
		return nil
	}
	return &d.ops[len(d.ops)-1]
}

func (d *deltaBuilder) push(op DeltaOp, sealed bool) {
	d.ops = append(d.ops, op)
	d.sealed = sealed
}

func (d *deltaBuilder) retain(n int, attrs Attrs) {
	if last := d.last(); last != nil && last.Retain > 0 && sameAttrs(last.Attributes, attrs) {
		last.Retain += n
		return
	}
	d.push(DeltaOp{Retain: n, Attributes: attrs}, false)
}

func (d *deltaBuilder) delete(n int) {
	if last := d.last(); last != nil && last.Delete > 0 {
		last.Delete += n
		return
	}
	d.push(DeltaOp{Delete: n}, false)
}

func (d *deltaBuilder) insert(c content, attrs Attrs) {
	last := d.last()
	mergeable := last != nil && !d.sealed && sameAttrs(last.Attributes, attrs)
	switch c := c.(type) {
	case stringContent:
		if s, ok := lastInsert[string](last); ok && mergeable {
			last.Insert = s + string(c.r)
			return
		}
		d.push(DeltaOp{Insert: string(c.r), Attributes: attrs}, false)
	case embedContent:
		d.push(DeltaOp{Insert: []any{c.v}, Attributes: attrs}, true)
	default:
		if vs, ok := lastInsert[[]any](last); ok && mergeable {
			last.Insert = append(vs, c.value())
			return
		}
		d.push(DeltaOp{Insert: []any{c.value()}, Attributes: attrs}, false)
	}
}

func lastInsert[T any](op *DeltaOp) (T, bool) {
	var zero T
	if op == nil || op.Insert == nil {
		return zero, false
	}
	v, ok := op.Insert.(T)
	return v, ok
}

// Delta returns the sequence changes as retain, insert and delete steps.
// Adjacent steps of the same kind and formatting are merged and a trailing
// unformatted retain is dropped.
func (e *Event) Delta() ([]DeltaOp, error) {
	if e.txn.finished {
		return nil, errTransactionFinished
	}
	if !e.seq {
		return nil, nil
	}

	var db deltaBuilder
	// current is the formatting after the transaction, old the formatting
	// before it.
	current, old := Attrs{}, Attrs{}
	k := e.txn.doc.offsetKind
	for it := e.Target.start; it != nil; it = it.right {
		added := e.txn.adds(it)
		existed := !added && (!it.Deleted || e.txn.deletes(it))
		if fc, ok := it.content.(formatContent); ok {
			if !it.Deleted {
				current.apply(fc)
			}
			if existed {
				old.apply(fc)
			}
			continue
		}
		switch {
		case it.Deleted:
			if existed {
				db.delete(it.lengthIn(k))
			}
		case added:
			db.insert(it.content, current.clone())
		default:
			db.retain(it.lengthIn(k), formatChanges(old, current))
		}
	}
	if last := db.last(); last != nil && last.Retain > 0 && last.Attributes == nil {
		db.ops = db.ops[:len(db.ops)-1]
	}
	return db.ops, nil
}

// formatChanges lists the attributes that differ between from and to, with
// null for the ones dropped. It is nil when nothing differs.
func formatChanges(from, to Attrs) Attrs {
	var diff Attrs
	for key, v := range to {
		if !ir.Equal(from.get(key), v) {
			if diff == nil {
				diff = Attrs{}
			}
			diff[key] = v
		}
	}
	for key := range from {
		if _, ok := to[key]; !ok {
			if diff == nil {
				diff = Attrs{}
			}
			diff[key] = ir.IRNull{}
		}
	}
	return diff
}

// KeyAction classifies a key change.
type KeyAction string

const (
	KeyAdd    KeyAction = "add"
	KeyUpdate KeyAction = "update"
	KeyDelete KeyAction = "delete"
)

// KeyChange describes what happened to one key.
// OldValue and NewValue hold ir.IRValue or *Branch; nil when absent.
type KeyChange struct {
	Action   KeyAction
	OldValue any
	NewValue any
}

// Keys returns the changes made to the target's keyed entries.
func (e *Event) Keys() (map[string]KeyChange, error) {
	if e.txn.finished {
		return nil, errTransactionFinished
	}
	changes := make(map[string]KeyChange, len(e.keys))
	for key := range e.keys {
		it := e.Target.entries[key]
		if it == nil {
			continue
		}
		if e.txn.adds(it) {
			prev := it.left
			for prev != nil && e.txn.adds(prev) {
				prev = prev.left
			}
			switch {
			case it.Deleted && (prev == nil || !e.txn.deletes(prev)):
				// Added and removed within the transaction.
			case it.Deleted:
				changes[key] = KeyChange{Action: KeyDelete, OldValue: prev.content.value()}
			case prev != nil && e.txn.deletes(prev):
				changes[key] = KeyChange{Action: KeyUpdate, OldValue: prev.content.value(), NewValue: it.content.value()}
			default:
				changes[key] = KeyChange{Action: KeyAdd, NewValue: it.content.value()}
			}
		} else if e.txn.deletes(it) {
			changes[key] = KeyChange{Action: KeyDelete, OldValue: it.content.value()}
		}
	}
	return changes, nil
}

// depth is the number of containers between the target and its root.
func (e *Event) depth() int {
	n := 0
	for b := e.Target; b.item != nil && b.item.branch != nil; b = b.item.branch {
		n++
	}
	return n
}

// fireEvents runs shallow observers for each changed container in the order
// the containers were first changed, then deep observers from the changed
// containers up through their ancestors.
func (t *Txn) fireEvents() {
	events := make([]*Event, 0, len(t.changedOrder))
	deep := make(map[*Branch][]*Event)
	var deepOrder []*Branch
	for _, b := range t.changedOrder {
		cs := t.changed[b]
		ev := &Event{Target: b, txn: t, keys: cs.keys, seq: cs.seq}
		events = append(events, ev)
		for cur := b; cur != nil; cur = cur.Parent() {
			if _, seen := deep[cur]; !seen {
				deepOrder = append(deepOrder, cur)
			}
			deep[cur] = append(deep[cur], ev)
		}
	}

	for _, ev := range events {
		for _, sub := range slices.Clone(ev.Target.observers) {
			t.doc.notify("container", func() { sub.fn(ev) })
		}
	}
	for _, b := range deepOrder {
		if len(b.deepObservers) == 0 {
			continue
		}
		evs := deep[b]
		slices.SortStableFunc(evs, func(a, b *Event) int { return a.depth() - b.depth() })
		for _, sub := range slices.Clone(b.deepObservers) {
			t.doc.notify("deep", func() { sub.fn(evs) })
		}
	}
}
