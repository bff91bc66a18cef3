package testutil

import (
	"fmt"

	"github.com/roach88/ydoc/internal/ir"
	"github.com/roach88/ydoc/internal/ydoc"
)

// ExchangeUpdates syncs every pair of docs in both directions using state
// vector diffs. After it returns without error all docs hold the same state,
// unless some of them still have pending items.
func ExchangeUpdates(docs ...*ydoc.Document) error {
	for i, src := range docs {
		for j, dst := range docs {
			if i == j {
				continue
			}
			update, err := ydoc.EncodeStateAsUpdate(src, ydoc.EncodeStateVector(dst))
			if err != nil {
				return fmt.Errorf("diff %d -> %d: %w", i, j, err)
			}
			if err := ydoc.ApplyUpdate(dst, update); err != nil {
				return fmt.Errorf("apply %d -> %d: %w", i, j, err)
			}
		}
	}
	return nil
}

// Converged reports whether all docs hold equal snapshots.
func Converged(docs ...*ydoc.Document) bool {
	if len(docs) < 2 {
		return true
	}
	want := docs[0].Snapshot()
	for _, d := range docs[1:] {
		if !ir.Equal(want, d.Snapshot()) {
			return false
		}
	}
	return true
}
