package ydoc

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/roach88/ydoc/internal/classify"
	"github.com/roach88/ydoc/internal/engine"
	"github.com/roach88/ydoc/internal/ir"
)

// Kind identifies the shape of a shared container.
type Kind = engine.Kind

const (
	KindArray      = engine.KindArray
	KindMap        = engine.KindMap
	KindText       = engine.KindText
	KindXMLElement = engine.KindXMLElement
	KindXMLText    = engine.KindXMLText
)

// OffsetKind selects the unit text lengths and positions are measured in.
type OffsetKind = engine.OffsetKind

const (
	OffsetUTF8  = engine.OffsetBytes
	OffsetUTF16 = engine.OffsetUTF16
	OffsetUTF32 = engine.OffsetUTF32
)

// Shared is implemented by every container handle: *Array, *Map, *Text,
// *XMLElement and *XMLText.
type Shared = classify.Shared

// ParseOffsetKind parses utf8, utf16 or utf32, case-insensitively and
// ignoring dashes. Anything else is ErrCodeInvalidOption.
func ParseOffsetKind(s string) (OffsetKind, error) {
	k, err := engine.ParseOffsetKind(s)
	if err != nil {
		return k, &Error{Code: ErrCodeInvalidOption, Message: err.Error(), Value: s, Err: err}
	}
	return k, nil
}

// Recorder receives operational counts. Implemented by metrics.Collectors.
type Recorder interface {
	TransactionCommitted(trigger string)
	IntegrationFailed(code string)
	UpdateApplied(size int)
}

type nopRecorder struct{}

func (nopRecorder) TransactionCommitted(string) {}
func (nopRecorder) IntegrationFailed(string)    {}
func (nopRecorder) UpdateApplied(int)           {}

// Document is a replicated document: named root containers plus the
// arbiter that owns its single mutable transaction.
//
// A Document is not safe for concurrent use. Callers serialize access the
// same way they would for any single-writer structure.
type Document struct {
	guid     string
	eng      *engine.Doc
	arb      *arbiter
	logger   *slog.Logger
	onError  func(error)
	recorder Recorder
}

// Option configures a Document.
type Option func(*options)

type options struct {
	engineOpts []engine.Option
	guid       string
	logger     *slog.Logger
	onError    func(error)
	recorder   Recorder
	err        error
}

// WithClientID fixes the replica identifier.
func WithClientID(id uint64) Option {
	return func(o *options) { o.engineOpts = append(o.engineOpts, engine.WithClientID(id)) }
}

// WithClientIDGenerator sets how a replica identifier is chosen when none is fixed.
func WithClientIDGenerator(g engine.ClientIDGenerator) Option {
	return func(o *options) { o.engineOpts = append(o.engineOpts, engine.WithClientIDGenerator(g)) }
}

// WithOffsetKind sets the unit text positions are counted in.
//
// Default: OffsetUTF8
func WithOffsetKind(k OffsetKind) Option {
	return func(o *options) { o.engineOpts = append(o.engineOpts, engine.WithOffsetKind(k)) }
}

// WithOffsetKindName is WithOffsetKind for a configured name such as "utf-16".
// An unknown name makes New fail with ErrCodeInvalidOption.
func WithOffsetKindName(name string) Option {
	return func(o *options) {
		k, err := ParseOffsetKind(name)
		if err != nil {
			o.err = err
			return
		}
		o.engineOpts = append(o.engineOpts, engine.WithOffsetKind(k))
	}
}

// WithSkipGC keeps deleted content instead of discarding it on commit.
func WithSkipGC(skip bool) Option {
	return func(o *options) { o.engineOpts = append(o.engineOpts, engine.WithSkipGC(skip)) }
}

// WithLogger sets the document's logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithErrorHandler receives errors that have no caller to return to, such as
// a failed commit triggered by releasing the last transaction reference.
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) { o.onError = fn }
}

// WithMetrics sets where operational counts go.
func WithMetrics(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithGUID sets the document's globally unique name. Default: a random UUID.
func WithGUID(guid string) Option {
	return func(o *options) { o.guid = guid }
}

// New creates an empty document.
func New(opts ...Option) (*Document, error) {
	o := options{recorder: nopRecorder{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.err != nil {
		return nil, o.err
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.guid == "" {
		o.guid = uuid.NewString()
	}
	logger := o.logger.With("doc", o.guid)
	d := &Document{
		guid:     o.guid,
		logger:   logger,
		onError:  o.onError,
		recorder: o.recorder,
	}
	d.eng = engine.New(append(o.engineOpts,
		engine.WithLogger(logger),
		engine.WithObserverPanicHandler(d.report),
	)...)
	d.arb = newArbiter(d)
	return d, nil
}

// MustNew is like New but panics on error.
// Use only in tests or when options are known to be valid.
func MustNew(opts ...Option) *Document {
	d, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return d
}

// GUID returns the document's globally unique name.
func (d *Document) GUID() string { return d.guid }

// ClientID returns the replica identifier.
func (d *Document) ClientID() uint64 { return d.eng.ClientID() }

// OffsetKind returns the unit text positions are counted in.
func (d *Document) OffsetKind() OffsetKind { return d.eng.OffsetKind() }

// SkipGC reports whether deleted content is kept.
func (d *Document) SkipGC() bool { return d.eng.SkipGC() }

// BeginTransaction returns a reference to the document's open transaction,
// opening one when none is open. The caller must Commit or Release it;
// releasing the last reference commits.
func (d *Document) BeginTransaction() *Transaction {
	return d.arb.beginOrReuse()
}

// Transact runs fn with a transaction reference and releases it afterwards.
// When fn runs inside another open transaction the two share it, and the
// commit happens when the outermost reference is released.
func (d *Document) Transact(fn func(*Transaction) error) error {
	txn := d.arb.beginOrReuse()
	defer txn.Release()
	return fn(txn)
}

// GetArray returns the root array called name.
func (d *Document) GetArray(name string) (*Array, error) {
	b, err := d.root(name, KindArray)
	if err != nil {
		return nil, err
	}
	return &Array{handle: integratedHandle(d, b)}, nil
}

// GetMap returns the root map called name.
func (d *Document) GetMap(name string) (*Map, error) {
	b, err := d.root(name, KindMap)
	if err != nil {
		return nil, err
	}
	return &Map{handle: integratedHandle(d, b)}, nil
}

// GetText returns the root text called name.
func (d *Document) GetText(name string) (*Text, error) {
	b, err := d.root(name, KindText)
	if err != nil {
		return nil, err
	}
	return &Text{handle: integratedHandle(d, b)}, nil
}

// GetXMLElement returns the root XML element called name. Its tag is name.
func (d *Document) GetXMLElement(name string) (*XMLElement, error) {
	b, err := d.root(name, KindXMLElement)
	if err != nil {
		return nil, err
	}
	return &XMLElement{handle: integratedHandle(d, b)}, nil
}

// GetXMLText returns the root XML text called name.
func (d *Document) GetXMLText(name string) (*XMLText, error) {
	b, err := d.root(name, KindXMLText)
	if err != nil {
		return nil, err
	}
	return &XMLText{handle: integratedHandle(d, b)}, nil
}

// Root returns the root called name as a handle of the given kind.
func (d *Document) Root(name string, kind Kind) (Shared, error) {
	b, err := d.root(name, kind)
	if err != nil {
		return nil, err
	}
	return wrapBranch(d, b), nil
}

func (d *Document) root(name string, kind Kind) (*engine.Branch, error) {
	b, err := d.eng.Root(name, kind)
	return b, translate(err)
}

// RootNames returns the names of all roots in creation order, including
// roots only known from applied updates.
func (d *Document) RootNames() []string { return d.eng.RootNames() }

// Snapshot renders every root as a plain value keyed by root name.
func (d *Document) Snapshot() ir.IRObject {
	snap := make(ir.IRObject)
	d.read(func() {
		for _, name := range d.eng.RootNames() {
			b, err := d.eng.Root(name, engine.KindUndefined)
			if err != nil {
				continue
			}
			snap[name] = b.ToIR()
		}
	})
	return snap
}

// HasPending reports whether applied updates are waiting for missing ones.
func (d *Document) HasPending() bool { return d.eng.HasPending() }

// read runs fn with a transaction open, reusing the current one if any.
func (d *Document) read(fn func()) {
	txn := d.arb.beginOrReuse()
	defer txn.Release()
	fn()
}

// report surfaces an error that has no caller to return to.
func (d *Document) report(err error) {
	d.logger.Error("unreported document error", "error", err)
	if d.onError != nil {
		d.onError(err)
	}
}

func (d *Document) String() string {
	return fmt.Sprintf("Document(%s, client=%d)", d.guid, d.ClientID())
}
