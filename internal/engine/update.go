package engine

import "slices"

// Struct info byte layout: the low five bits hold the content tag.
const (
	infoOrigin      byte = 0x80
	infoRightOrigin byte = 0x40
	infoKeyed       byte = 0x20
	infoTagMask     byte = 0x1f
)

// maxDeletedRun caps the items one collected struct may stand for. Every
// other content kind spends at least a byte per item, so the cap keeps the
// items an update decodes into proportional to its size.
const maxDeletedRun = 64

// encodeUpdate serializes every item unknown to sv plus the delete set.
//
// Wire layout:
//
//	update  = varuint(#clients) client* deleteSet
//	client  = varuint(#structs) varuint(client) varuint(firstClock) struct*
//	struct  = info [origin] [rightOrigin] parent [key] content
//
// Consecutive items typed by the same client form a single struct when the
// run would decode back into the same items.
func (d *Doc) encodeUpdate(sv StateVector, ds DeleteSet) []byte {
	e := &encoder{}
	type clientRun struct {
		client uint64
		items  []*Item
	}
	var runs []clientRun
	for _, client := range d.store.sortedClients() {
		items := d.store.clients[client]
		from := sv.Get(client)
		if from >= uint64(len(items)) {
			continue
		}
		runs = append(runs, clientRun{client: client, items: items[from:]})
	}

	e.writeVarUint(uint64(len(runs)))
	for _, run := range runs {
		structs := groupStructs(run.items)
		e.writeVarUint(uint64(len(structs)))
		e.writeVarUint(run.client)
		e.writeVarUint(run.items[0].ID.Clock)
		for _, s := range structs {
			writeStruct(e, s)
		}
	}
	ds.encodeTo(e)
	return e.bytes()
}

// groupStructs splits a client's contiguous items into mergeable runs.
func groupStructs(items []*Item) [][]*Item {
	var structs [][]*Item
	for _, it := range items {
		if n := len(structs); n > 0 {
			last := structs[n-1]
			if canMerge(last[len(last)-1], it) && !runFull(last) {
				structs[n-1] = append(last, it)
				continue
			}
		}
		structs = append(structs, []*Item{it})
	}
	return structs
}

func runFull(run []*Item) bool {
	_, collected := run[0].content.(deletedContent)
	return collected && len(run) >= maxDeletedRun
}

func canMerge(prev, next *Item) bool {
	if prev.keyed || next.keyed || prev.content.tag() != next.content.tag() {
		return false
	}
	switch prev.content.tag() {
	case tagAny, tagString, tagDeleted:
	default:
		return false
	}
	return next.Origin != nil && *next.Origin == prev.ID &&
		sameID(prev.RightOrigin, next.RightOrigin) &&
		prev.parent == next.parent
}

func writeStruct(e *encoder, run []*Item) {
	first := run[0]
	info := byte(first.content.tag())
	if first.Origin != nil {
		info |= infoOrigin
	}
	if first.RightOrigin != nil {
		info |= infoRightOrigin
	}
	if first.keyed {
		info |= infoKeyed
	}
	e.writeByte(info)
	if first.Origin != nil {
		e.writeID(*first.Origin)
	}
	if first.RightOrigin != nil {
		e.writeID(*first.RightOrigin)
	}
	if first.parent.isRoot {
		e.writeVarUint(0)
		e.writeVarString(first.parent.root)
	} else {
		e.writeVarUint(1)
		e.writeID(first.parent.id)
	}
	if first.keyed {
		e.writeVarString(first.key)
	}

	switch c := first.content.(type) {
	case deletedContent:
		e.writeVarUint(uint64(len(run)))
	case stringContent:
		runes := make([]rune, len(run))
		for i, it := range run {
			runes[i] = it.content.(stringContent).r
		}
		e.writeVarString(string(runes))
	case anyContent:
		e.writeVarUint(uint64(len(run)))
		for _, it := range run {
			e.writeAny(it.content.(anyContent).v)
		}
	case embedContent:
		e.writeAny(c.v)
	case formatContent:
		e.writeVarString(c.key)
		e.writeAny(c.v)
	case typeContent:
		e.writeVarUint(uint64(c.branch.kind))
		e.writeVarString(c.branch.nodeName)
	}
}

// decodedUpdate is a parsed update: unit items per client plus deletions.
type decodedUpdate struct {
	items     map[uint64][]*Item
	deleteSet DeleteSet
}

// decodeUpdate parses an update without touching any document state.
// Branches for nested containers are created against doc but stay
// unattached until their items integrate.
func decodeUpdate(doc *Doc, data []byte) (*decodedUpdate, error) {
	d := newDecoder(data)
	u := &decodedUpdate{items: make(map[uint64][]*Item)}
	nclients, err := d.readLen()
	if err != nil {
		return nil, err
	}
	for i := 0; i < nclients; i++ {
		nstructs, err := d.readLen()
		if err != nil {
			return nil, err
		}
		client, err := d.readVarUint()
		if err != nil {
			return nil, err
		}
		clock, err := d.readVarUint()
		if err != nil {
			return nil, err
		}
		for j := 0; j < nstructs; j++ {
			items, err := readStruct(d, doc, ID{Client: client, Clock: clock})
			if err != nil {
				return nil, err
			}
			clock += uint64(len(items))
			u.items[client] = append(u.items[client], items...)
		}
	}
	ds, err := decodeDeleteSet(d)
	if err != nil {
		return nil, err
	}
	if !d.done() {
		return nil, newEncodingError("%d trailing bytes after update", d.remaining())
	}
	u.deleteSet = ds
	return u, nil
}

func readStruct(d *decoder, doc *Doc, id ID) ([]*Item, error) {
	info, err := d.readByte()
	if err != nil {
		return nil, err
	}
	proto := Item{ID: id}
	if info&infoOrigin != 0 {
		origin, err := d.readID()
		if err != nil {
			return nil, err
		}
		proto.Origin = &origin
	}
	if info&infoRightOrigin != 0 {
		rightOrigin, err := d.readID()
		if err != nil {
			return nil, err
		}
		proto.RightOrigin = &rightOrigin
	}
	parentKind, err := d.readVarUint()
	if err != nil {
		return nil, err
	}
	switch parentKind {
	case 0:
		name, err := d.readVarString()
		if err != nil {
			return nil, err
		}
		proto.parent = parentRef{root: name, isRoot: true}
	case 1:
		pid, err := d.readID()
		if err != nil {
			return nil, err
		}
		proto.parent = parentRef{id: pid}
	default:
		return nil, newEncodingError("unknown parent kind %d", parentKind)
	}
	if info&infoKeyed != 0 {
		key, err := d.readVarString()
		if err != nil {
			return nil, err
		}
		proto.key = key
		proto.keyed = true
	}

	var contents []content
	switch contentTag(info & infoTagMask) {
	case tagDeleted:
		n, err := d.readLen()
		if err != nil {
			return nil, err
		}
		if n > maxDeletedRun {
			return nil, newEncodingError("collected run of %d items at %s exceeds %d", n, id, maxDeletedRun)
		}
		for k := 0; k < n; k++ {
			contents = append(contents, deletedContent{})
		}
	case tagString:
		s, err := d.readVarString()
		if err != nil {
			return nil, err
		}
		for _, r := range s {
			contents = append(contents, stringContent{r: r})
		}
	case tagAny:
		n, err := d.readLen()
		if err != nil {
			return nil, err
		}
		for k := 0; k < n; k++ {
			v, err := d.readAny()
			if err != nil {
				return nil, err
			}
			contents = append(contents, anyContent{v: v})
		}
	case tagEmbed:
		v, err := d.readAny()
		if err != nil {
			return nil, err
		}
		contents = append(contents, embedContent{v: v})
	case tagFormat:
		key, err := d.readVarString()
		if err != nil {
			return nil, err
		}
		v, err := d.readAny()
		if err != nil {
			return nil, err
		}
		contents = append(contents, formatContent{key: key, v: v})
	case tagType:
		kind, err := d.readVarUint()
		if err != nil {
			return nil, err
		}
		if kind == uint64(KindUndefined) || kind > uint64(KindXMLText) {
			return nil, newEncodingError("unknown container kind %d", kind)
		}
		nodeName, err := d.readVarString()
		if err != nil {
			return nil, err
		}
		contents = append(contents, typeContent{branch: newBranch(doc, Kind(kind), nodeName)})
	default:
		return nil, newEncodingError("unknown content tag %d", info&infoTagMask)
	}
	if len(contents) == 0 {
		return nil, newEncodingError("empty struct at %s", id)
	}
	if proto.keyed && len(contents) != 1 {
		return nil, newEncodingError("keyed struct at %s holds %d items", id, len(contents))
	}

	items := make([]*Item, len(contents))
	for k, c := range contents {
		it := proto
		it.ID = ID{Client: id.Client, Clock: id.Clock + uint64(k)}
		if k > 0 {
			origin := ID{Client: id.Client, Clock: it.ID.Clock - 1}
			it.Origin = &origin
		}
		it.content = c
		if _, ok := c.(deletedContent); ok {
			it.Deleted = true
		}
		items[k] = &it
	}
	return items, nil
}

// ApplyUpdate integrates a remote update into the document.
//
// Items whose causal dependencies are missing wait in the document's pending
// set and integrate once a later update supplies them; deletions of unknown
// items wait the same way. A malformed update fails with ErrCodeEncoding and
// leaves the document untouched.
func (t *Txn) ApplyUpdate(data []byte) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	doc := t.doc
	u, err := decodeUpdate(doc, data)
	if err != nil {
		return err
	}

	for client, items := range u.items {
		doc.pending.items[client] = mergePending(doc.pending.items[client], items)
	}
	t.integratePending()

	doc.pending.deletes.merge(u.deleteSet)
	t.applyPendingDeletes()

	doc.logger.Debug("update applied",
		"client", doc.clientID,
		"bytes", len(data),
		"pending_items", doc.pending.itemCount(),
	)
	return nil
}

// mergePending combines queued items for one client, ordered by clock,
// dropping duplicates.
func mergePending(queued, incoming []*Item) []*Item {
	all := append(queued, incoming...)
	slices.SortStableFunc(all, func(a, b *Item) int {
		switch {
		case a.ID.Clock < b.ID.Clock:
			return -1
		case a.ID.Clock > b.ID.Clock:
			return 1
		}
		return 0
	})
	return slices.CompactFunc(all, func(a, b *Item) bool { return a.ID == b.ID })
}

// integratePending integrates queued items until no more become ready.
func (t *Txn) integratePending() {
	doc := t.doc
	for progress := true; progress; {
		progress = false
		for _, client := range sortedKeys(doc.pending.items) {
			items := doc.pending.items[client]
			state := doc.store.state(client)
			for len(items) > 0 && items[0].ID.Clock < state {
				items = items[1:]
			}
			for len(items) > 0 && items[0].ID.Clock == doc.store.state(client) && t.ready(items[0]) {
				t.integrateRemote(items[0])
				items = items[1:]
				progress = true
			}
			if len(items) == 0 {
				delete(doc.pending.items, client)
			} else {
				doc.pending.items[client] = items
			}
		}
	}
}

// ready reports whether every item the remote item refers to is present.
func (t *Txn) ready(it *Item) bool {
	s := t.doc.store
	if it.Origin != nil && !s.contains(*it.Origin) {
		return false
	}
	if it.RightOrigin != nil && !s.contains(*it.RightOrigin) {
		return false
	}
	if !it.parent.isRoot && !s.contains(it.parent.id) {
		return false
	}
	return true
}

func (t *Txn) integrateRemote(it *Item) {
	doc := t.doc
	if it.parent.isRoot {
		it.branch = doc.root(it.parent.root, KindUndefined)
	} else if parent := doc.store.find(it.parent.id); parent != nil {
		if tc, ok := parent.content.(typeContent); ok {
			it.branch = tc.branch
		}
	}
	if it.branch == nil {
		// The parent's content was collected; the item can never be seen.
		it.Deleted = true
		it.content = deletedContent{}
		doc.store.add(it)
		return
	}
	if it.Origin != nil {
		it.left = doc.store.find(*it.Origin)
	}
	if it.RightOrigin != nil {
		it.right = doc.store.find(*it.RightOrigin)
	}
	it.integrate(t)
}

// applyPendingDeletes deletes every known item in the pending delete set,
// keeping ranges that cover items not received yet.
func (t *Txn) applyPendingDeletes() {
	doc := t.doc
	doc.pending.deletes.normalize()
	remaining := DeleteSet{}
	for client, ranges := range doc.pending.deletes {
		state := doc.store.state(client)
		for _, r := range ranges {
			end := r.Clock + r.Len
			for clock := r.Clock; clock < end && clock < state; clock++ {
				if it := doc.store.find(ID{Client: client, Clock: clock}); it != nil && !it.Deleted {
					t.deleteItem(it)
				}
			}
			if end > state {
				start := max(r.Clock, state)
				remaining.addRange(client, Range{Clock: start, Len: end - start})
			}
		}
	}
	doc.pending.deletes = remaining
}

// pendingState holds remote content waiting for missing dependencies.
type pendingState struct {
	items   map[uint64][]*Item
	deletes DeleteSet
}

func newPendingState() *pendingState {
	return &pendingState{items: make(map[uint64][]*Item), deletes: DeleteSet{}}
}

func (p *pendingState) itemCount() int {
	n := 0
	for _, items := range p.items {
		n += len(items)
	}
	return n
}

func (p *pendingState) empty() bool {
	return len(p.items) == 0 && p.deletes.IsEmpty()
}

func sortedKeys[V any](m map[uint64]V) []uint64 {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
