package engine

import "fmt"

// MergeUpdates combines updates into one update with the same effect as
// applying all of them. Deleted content is garbage collected in the result.
//
// Every dependency must be inside the set: items referring to content that
// none of the updates carry make the merge fail instead of being dropped.
func MergeUpdates(updates ...[]byte) ([]byte, error) {
	d := New(WithClientID(0))
	_, err := d.Transact(func(t *Txn) error {
		for i, u := range updates {
			if err := t.ApplyUpdate(u); err != nil {
				return fmt.Errorf("merge update %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if d.HasPending() {
		return nil, newEncodingError("merge: %d items depend on updates outside the set", d.PendingCount())
	}
	return d.EncodeStateAsUpdate(nil)
}
