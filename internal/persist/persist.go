// Package persist binds documents to the store's update log.
//
// A bound document is rebuilt from its log on open and appends every
// committed update to the log as it happens.
package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/ydoc/internal/engine"
	"github.com/roach88/ydoc/internal/store"
	"github.com/roach88/ydoc/internal/ydoc"
)

// Binding keeps one document's log in sync with the document.
type Binding struct {
	store *store.Store
	name  string
	doc   *ydoc.Document
	sub   ydoc.Subscription

	mu      sync.Mutex
	lastErr error
	closed  bool
}

// Open loads the document called name from s, creating it when the store
// does not know it. A stored document keeps its GUID and client ID; opts
// apply on top of them.
func Open(ctx context.Context, s *store.Store, name string, opts ...ydoc.Option) (*ydoc.Document, *Binding, error) {
	stored, err := s.GetDocument(ctx, name)
	switch {
	case err == nil:
		opts = append([]ydoc.Option{ydoc.WithGUID(stored.GUID), ydoc.WithClientID(stored.ClientID)}, opts...)
	case errors.Is(err, sql.ErrNoRows):
	default:
		return nil, nil, fmt.Errorf("open %s: %w", name, err)
	}

	doc, err := ydoc.New(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", name, err)
	}
	b, err := Attach(ctx, s, name, doc)
	if err != nil {
		return nil, nil, err
	}
	return doc, b, nil
}

// Attach registers doc under name, replays the stored log into it in one
// transaction, and then records every committed update.
func Attach(ctx context.Context, s *store.Store, name string, doc *ydoc.Document) (*Binding, error) {
	if _, err := s.EnsureDocument(ctx, store.Document{
		Name:     name,
		GUID:     doc.GUID(),
		ClientID: doc.ClientID(),
	}); err != nil {
		return nil, fmt.Errorf("attach %s: %w", name, err)
	}

	updates, err := s.LoadUpdates(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("attach %s: %w", name, err)
	}
	err = doc.Transact(func(txn *ydoc.Transaction) error {
		for _, u := range updates {
			if err := txn.Apply(u.Payload); err != nil {
				return fmt.Errorf("replay update seq=%d: %w", u.Seq, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("attach %s: %w", name, err)
	}
	slog.Debug("document replayed", "doc", name, "updates", len(updates))

	b := &Binding{store: s, name: name, doc: doc}
	b.sub = doc.ObserveAfterTransaction(b.record)
	return b, nil
}

// record appends a committed update. Observers cannot fail the commit, so
// errors are logged and kept for Err.
func (b *Binding) record(e *ydoc.AfterTransactionEvent) {
	// Commits carry no context; the append must finish for the log to stay
	// complete.
	if _, err := b.store.AppendUpdate(context.Background(), b.name, e.Update()); err != nil {
		slog.Error("failed to record update", "doc", b.name, "error", err)
		b.mu.Lock()
		b.lastErr = err
		b.mu.Unlock()
	}
}

// Err returns the most recent failure to record an update, if any.
func (b *Binding) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

// Document returns the bound document.
func (b *Binding) Document() *ydoc.Document { return b.doc }

// Compact merges the stored log into a single update.
func (b *Binding) Compact(ctx context.Context) (removed int64, err error) {
	return Compact(ctx, b.store, b.name)
}

// Compact merges the stored log of the document called name into a single
// update. Updates appended while compacting are kept.
func Compact(ctx context.Context, s *store.Store, name string) (removed int64, err error) {
	updates, err := s.LoadUpdates(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("compact %s: %w", name, err)
	}
	if len(updates) < 2 {
		return 0, nil
	}
	payloads := make([][]byte, len(updates))
	for i, u := range updates {
		payloads[i] = u.Payload
	}
	merged, err := engine.MergeUpdates(payloads...)
	if err != nil {
		return 0, fmt.Errorf("compact %s: %w", name, err)
	}
	removed, err = s.Compact(ctx, name, updates[len(updates)-1].Seq, merged)
	if err != nil {
		return 0, err
	}
	slog.Info("document compacted", "doc", name, "removed", removed, "merged_bytes", len(merged))
	return removed, nil
}

// Close stops recording updates. It does not close the store.
func (b *Binding) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.doc.UnobserveAfterTransaction(b.sub)
	return nil
}
