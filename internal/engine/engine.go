package engine

import (
	"fmt"
	"log/slog"
	"slices"
)

// Doc is a replica of a collaborative document.
//
// A Doc is not safe for concurrent use. Callers serialize access, which the
// transaction model already requires: at most one Txn is open per document
// and every mutation runs inside it.
//
// INVARIANTS:
//   - active is nil or the single open transaction
//   - roots never change kind once defined
//   - the block store only grows
type Doc struct {
	clientID   uint64
	offsetKind OffsetKind
	skipGC     bool
	logger     *slog.Logger
	onPanic    func(error)

	store     *blockStore
	roots     map[string]*Branch
	rootOrder []string
	pending   *pendingState

	active   *Txn
	txnClock *Clock
	subID    uint32
	afterTxn []subscription[*CommitResult]
}

// Option configures a Doc.
type Option func(*docConfig)

type docConfig struct {
	clientID    *uint64
	generator   ClientIDGenerator
	offsetKind  OffsetKind
	skipGC      bool
	logger      *slog.Logger
	onPanic     func(error)
	clockOffset uint64
}

// WithClientID fixes the replica's client ID.
func WithClientID(id uint64) Option {
	return func(c *docConfig) { c.clientID = &id }
}

// WithClientIDGenerator sets where a client ID comes from when none is fixed.
//
// Default: UUIDClientIDs
func WithClientIDGenerator(g ClientIDGenerator) Option {
	return func(c *docConfig) { c.generator = g }
}

// WithOffsetKind sets the unit text lengths and positions are measured in.
//
// Default: OffsetBytes
func WithOffsetKind(k OffsetKind) Option {
	return func(c *docConfig) { c.offsetKind = k }
}

// WithSkipGC keeps the content of deleted items instead of discarding it on commit.
func WithSkipGC(skip bool) Option {
	return func(c *docConfig) { c.skipGC = skip }
}

// WithLogger sets the logger for commit and update diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *docConfig) { c.logger = l }
}

// WithObserverPanicHandler receives observer panics recovered during commit.
// Without one they are logged.
func WithObserverPanicHandler(fn func(error)) Option {
	return func(c *docConfig) { c.onPanic = fn }
}

// WithTxnSeqStart resumes transaction numbering, used when a document is
// restored from persisted state.
func WithTxnSeqStart(seq uint64) Option {
	return func(c *docConfig) { c.clockOffset = seq }
}

// New creates an empty document.
func New(opts ...Option) *Doc {
	cfg := docConfig{generator: UUIDClientIDs{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}
	clientID := cfg.generator.Generate()
	if cfg.clientID != nil {
		clientID = *cfg.clientID
	}
	return &Doc{
		clientID:   clientID,
		offsetKind: cfg.offsetKind,
		skipGC:     cfg.skipGC,
		logger:     cfg.logger.With("component", "engine"),
		onPanic:    cfg.onPanic,
		store:      newBlockStore(),
		roots:      make(map[string]*Branch),
		pending:    newPendingState(),
		txnClock:   NewClockAt(cfg.clockOffset),
	}
}

// ClientID returns the replica's client ID.
func (d *Doc) ClientID() uint64 { return d.clientID }

// OffsetKind returns the unit text positions are measured in.
func (d *Doc) OffsetKind() OffsetKind { return d.offsetKind }

// SkipGC reports whether deleted content is kept.
func (d *Doc) SkipGC() bool { return d.skipGC }

// Begin opens a transaction.
//
// CRITICAL: a document has at most one open transaction. Begin panics when
// another is still open; that is a caller bug, not a runtime condition.
func (d *Doc) Begin() *Txn {
	if d.active != nil {
		panic("engine: transaction already open on document")
	}
	t := &Txn{
		doc:         d,
		seq:         d.txnClock.Next(),
		beforeState: d.store.stateVector(),
		deleteSet:   DeleteSet{},
		changed:     make(map[*Branch]*changeSet),
	}
	d.active = t
	return t
}

// Active returns the open transaction, or nil.
func (d *Doc) Active() *Txn { return d.active }

// Transact runs fn inside a new transaction and commits it. The transaction
// commits even when fn fails; fn's error is returned.
func (d *Doc) Transact(fn func(*Txn) error) (*CommitResult, error) {
	t := d.Begin()
	fnErr := fn(t)
	result, err := t.Commit()
	if fnErr != nil {
		return result, fnErr
	}
	return result, err
}

// Root returns the root container called name, creating it on first use.
// KindUndefined looks a root up without fixing its kind. A root first seen
// in a remote update takes the kind of the first typed request.
func (d *Doc) Root(name string, kind Kind) (*Branch, error) {
	b := d.root(name, kind)
	if kind != KindUndefined && b.kind != kind {
		return nil, &Error{
			Code:    ErrCodeKindMismatch,
			Message: fmt.Sprintf("root %q is a %s, not a %s", name, b.kind, kind),
			Details: map[string]string{"name": name, "kind": b.kind.String()},
		}
	}
	return b, nil
}

func (d *Doc) root(name string, kind Kind) *Branch {
	b, ok := d.roots[name]
	if !ok {
		b = newBranch(d, kind, "")
		b.name = name
		if kind == KindXMLElement {
			b.nodeName = name
		}
		d.roots[name] = b
		d.rootOrder = append(d.rootOrder, name)
		return b
	}
	if b.kind == KindUndefined && kind != KindUndefined {
		b.kind = kind
		if kind == KindXMLElement {
			b.nodeName = name
		}
	}
	return b
}

// RootNames returns root names in creation order.
func (d *Doc) RootNames() []string { return slices.Clone(d.rootOrder) }

// StateVector returns the next expected clock of every known client.
func (d *Doc) StateVector() StateVector { return d.store.stateVector() }

// EncodeStateVector serializes the document's state vector.
func (d *Doc) EncodeStateVector() []byte { return d.store.stateVector().Encode() }

// EncodeStateAsUpdate encodes everything the holder of the encoded state
// vector sv lacks. An empty sv encodes the whole document.
func (d *Doc) EncodeStateAsUpdate(sv []byte) ([]byte, error) {
	remote, err := DecodeStateVector(sv)
	if err != nil {
		return nil, err
	}
	ds := d.store.deleteSet()
	ds.normalize()
	return d.encodeUpdate(remote, ds), nil
}

// ObserveAfterTransaction registers fn to run after every commit that
// changed the document, once container observers have run.
func (d *Doc) ObserveAfterTransaction(fn func(*CommitResult)) uint32 {
	id := d.nextSubscriptionID()
	d.afterTxn = append(d.afterTxn, subscription[*CommitResult]{id: id, fn: fn})
	return id
}

// UnobserveAfterTransaction removes an after-transaction observer.
func (d *Doc) UnobserveAfterTransaction(id uint32) bool {
	var ok bool
	d.afterTxn, ok = unsubscribe(d.afterTxn, id)
	return ok
}

// HasPending reports whether remote content is waiting for missing dependencies.
func (d *Doc) HasPending() bool { return !d.pending.empty() }

// PendingCount returns the number of remote items waiting for dependencies.
func (d *Doc) PendingCount() int { return d.pending.itemCount() }

// TxnSeq returns the sequence number of the most recent transaction.
func (d *Doc) TxnSeq() uint64 { return d.txnClock.Current() }

// notify runs one observer callback. A panic is recovered and reported so the
// remaining observers still run.
func (d *Doc) notify(kind string, fn func()) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		err := fmt.Errorf("%s observer panicked: %v", kind, r)
		if d.onPanic != nil {
			d.onPanic(err)
			return
		}
		d.logger.Error("observer panicked", "client", d.clientID, "error", err)
	}()
	fn()
}

func (d *Doc) nextSubscriptionID() uint32 {
	d.subID++
	return d.subID
}
