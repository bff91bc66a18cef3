package ydoc

import (
	"github.com/roach88/ydoc/internal/engine"
)

// Subscription identifies a registered observer. Pass it to Unobserve.
type Subscription struct {
	id   uint32
	deep bool
}

// ID returns the numeric subscription identifier.
func (s Subscription) ID() uint32 { return s.id }

// Event describes what one transaction changed in one container.
//
// LIFECYCLE: an Event is live only while its callback runs. Delta and Keys
// computed during the callback stay readable afterwards; anything not
// computed by then fails with ErrCodeStaleEvent.
type Event struct {
	doc  *Document
	raw  *engine.Event
	live bool

	delta    []Delta
	deltaSet bool
	keys     map[string]KeyChange
	keysSet  bool
}

// Delta is one step of a sequence change. Exactly one of Insert, Retain and
// Delete is set. Insert holds a string for text runs and []any otherwise.
//
// Attributes is the formatting of inserted text, or for a retain the
// formatting that changed, where nil marks a removed attribute.
type Delta struct {
	Insert     any            `json:"insert,omitempty"`
	Retain     int            `json:"retain,omitempty"`
	Delete     int            `json:"delete,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// KeyChange describes one changed map key or attribute.
type KeyChange struct {
	Action   string `json:"action"`
	OldValue any    `json:"oldValue,omitempty"`
	NewValue any    `json:"newValue,omitempty"`
}

// Key change actions.
const (
	ActionAdd    = string(engine.KeyAdd)
	ActionUpdate = string(engine.KeyUpdate)
	ActionDelete = string(engine.KeyDelete)
)

func newEvent(d *Document, raw *engine.Event) *Event {
	return &Event{doc: d, raw: raw, live: true}
}

// Target returns a handle to the changed container.
func (e *Event) Target() Shared { return wrapBranch(e.doc, e.raw.Target) }

// Path returns the keys and indices from the target's root to the target.
func (e *Event) Path() []any { return e.raw.Path() }

// Delta returns the sequence changes. It is nil for map-like targets.
func (e *Event) Delta() ([]Delta, error) {
	if e.deltaSet {
		return e.delta, nil
	}
	if !e.live {
		return nil, errStaleEvent("delta")
	}
	ops, err := e.raw.Delta()
	if err != nil {
		return nil, translate(err)
	}
	e.delta = e.doc.toDelta(ops)
	e.deltaSet = true
	return e.delta, nil
}

func (d *Document) toDelta(ops []engine.DeltaOp) []Delta {
	var out []Delta
	for _, op := range ops {
		delta := Delta{Attributes: d.hostAttributes(op.Attributes)}
		switch {
		case op.Retain > 0:
			delta.Retain = op.Retain
		case op.Delete > 0:
			delta.Delete = op.Delete
		default:
			delta.Insert = d.insertValue(op.Insert)
		}
		out = append(out, delta)
	}
	return out
}

func (d *Document) insertValue(v any) any {
	elems, ok := v.([]any)
	if !ok {
		return v
	}
	out := make([]any, len(elems))
	for i, elem := range elems {
		out[i] = d.toHost(elem)
	}
	return out
}

func (d *Document) hostAttributes(attrs engine.Attrs) map[string]any {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = d.toHost(v)
	}
	return out
}

// Keys returns the changed keys of map-like targets.
func (e *Event) Keys() (map[string]KeyChange, error) {
	if e.keysSet {
		return e.keys, nil
	}
	if !e.live {
		return nil, errStaleEvent("keys")
	}
	changes, err := e.raw.Keys()
	if err != nil {
		return nil, translate(err)
	}
	e.keys = make(map[string]KeyChange, len(changes))
	for k, c := range changes {
		e.keys[k] = KeyChange{
			Action:   string(c.Action),
			OldValue: e.doc.toHost(c.OldValue),
			NewValue: e.doc.toHost(c.NewValue),
		}
	}
	e.keysSet = true
	return e.keys, nil
}

func (e *Event) expire() { e.live = false }

func errStaleEvent(field string) *Error {
	return newError(ErrCodeStaleEvent, nil, "event %s read after its callback returned", field)
}

// ArrayEvent is an Event targeting an Array.
type ArrayEvent struct{ *Event }

// Target returns the changed array.
func (e *ArrayEvent) Target() *Array { return &Array{handle: integratedHandle(e.doc, e.raw.Target)} }

// MapEvent is an Event targeting a Map.
type MapEvent struct{ *Event }

// Target returns the changed map.
func (e *MapEvent) Target() *Map { return &Map{handle: integratedHandle(e.doc, e.raw.Target)} }

// TextEvent is an Event targeting a Text.
type TextEvent struct{ *Event }

// Target returns the changed text.
func (e *TextEvent) Target() *Text { return &Text{handle: integratedHandle(e.doc, e.raw.Target)} }

// XMLEvent is an Event targeting an XMLElement.
type XMLEvent struct{ *Event }

// Target returns the changed element.
func (e *XMLEvent) Target() *XMLElement {
	return &XMLElement{handle: integratedHandle(e.doc, e.raw.Target)}
}

// XMLTextEvent is an Event targeting an XMLText.
type XMLTextEvent struct{ *Event }

// Target returns the changed text node.
func (e *XMLTextEvent) Target() *XMLText {
	return &XMLText{handle: integratedHandle(e.doc, e.raw.Target)}
}

// observe registers a shallow observer on an integrated container.
func (h *handle) observe(fn func(*Event)) (Subscription, error) {
	if h.IsPreliminary() {
		return Subscription{}, newError(ErrCodePreliminaryObservation, nil,
			"cannot observe a preliminary %s", h.kind)
	}
	d := h.doc
	id := h.branch.Observe(func(raw *engine.Event) {
		ev := newEvent(d, raw)
		defer ev.expire()
		fn(ev)
	})
	return Subscription{id: id}, nil
}

// ObserveDeep registers fn for changes to the container and every container
// nested in it. fn receives one event per changed container, shallowest first.
func (h *handle) ObserveDeep(fn func([]*Event)) (Subscription, error) {
	if h.IsPreliminary() {
		return Subscription{}, newError(ErrCodePreliminaryObservation, nil,
			"cannot observe a preliminary %s", h.kind)
	}
	d := h.doc
	id := h.branch.ObserveDeep(func(raws []*engine.Event) {
		evs := make([]*Event, len(raws))
		for i, raw := range raws {
			evs[i] = newEvent(d, raw)
		}
		defer func() {
			for _, ev := range evs {
				ev.expire()
			}
		}()
		fn(evs)
	})
	return Subscription{id: id, deep: true}, nil
}

// Unobserve removes an observer. It reports whether sub was registered.
func (h *handle) Unobserve(sub Subscription) bool {
	if h.IsPreliminary() {
		return false
	}
	if sub.deep {
		return h.branch.UnobserveDeep(sub.id)
	}
	return h.branch.Unobserve(sub.id)
}

// AfterTransactionEvent summarizes a committed transaction that changed the
// document. Its fields are owned copies and stay valid indefinitely.
type AfterTransactionEvent struct {
	res *engine.CommitResult
}

// BeforeState encodes the state vector from before the transaction.
func (e *AfterTransactionEvent) BeforeState() []byte { return e.res.BeforeState.Encode() }

// AfterState encodes the state vector after the transaction.
func (e *AfterTransactionEvent) AfterState() []byte { return e.res.AfterState.Encode() }

// DeleteSet encodes the ranges the transaction deleted.
func (e *AfterTransactionEvent) DeleteSet() []byte { return e.res.DeleteSet.Encode() }

// Update returns the binary update carrying the transaction's changes.
func (e *AfterTransactionEvent) Update() []byte { return e.res.Update }

// ObserveAfterTransaction registers fn to run after every committed
// transaction that changed the document.
func (d *Document) ObserveAfterTransaction(fn func(*AfterTransactionEvent)) Subscription {
	id := d.eng.ObserveAfterTransaction(func(res *engine.CommitResult) {
		fn(&AfterTransactionEvent{res: res})
	})
	return Subscription{id: id}
}

// UnobserveAfterTransaction removes an after-transaction observer.
func (d *Document) UnobserveAfterTransaction(sub Subscription) bool {
	return d.eng.UnobserveAfterTransaction(sub.id)
}
