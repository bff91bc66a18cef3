package store

import (
	"context"
	"fmt"
)

// GetDocument returns the stored document called name.
// Returns an error wrapping sql.ErrNoRows if not found.
func (s *Store) GetDocument(ctx context.Context, name string) (Document, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx, `
		SELECT name, guid, client_id, created_at_seq FROM documents WHERE name = ?
	`, name))
	if err != nil {
		return Document{}, fmt.Errorf("get document %q: %w", name, err)
	}
	return doc, nil
}

// ListDocuments returns every stored document ordered by name.
// Returns an empty slice (not nil) when there are none.
func (s *Store) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, guid, client_id, created_at_seq
		FROM documents
		ORDER BY name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		var (
			doc      Document
			clientID int64
		)
		if err := rows.Scan(&doc.Name, &doc.GUID, &clientID, &doc.CreatedAtSeq); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		doc.ClientID = uint64(clientID)
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

// LoadUpdates returns the document's updates in log order.
// Results are ordered deterministically: ORDER BY seq ASC, id ASC.
//
// Returns an empty slice (not nil) if the document has no updates.
func (s *Store) LoadUpdates(ctx context.Context, docName string) ([]Update, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, doc_name, seq, payload, hash
		FROM updates
		WHERE doc_name = ?
		ORDER BY seq ASC, id ASC
	`, docName)
	if err != nil {
		return nil, fmt.Errorf("query updates: %w", err)
	}
	defer rows.Close()

	updates := []Update{}
	for rows.Next() {
		var u Update
		if err := rows.Scan(&u.ID, &u.DocName, &u.Seq, &u.Payload, &u.Hash); err != nil {
			return nil, fmt.Errorf("scan update: %w", err)
		}
		updates = append(updates, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate updates: %w", err)
	}
	return updates, nil
}

// UpdateCount returns how many updates the document's log holds.
func (s *Store) UpdateCount(ctx context.Context, docName string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM updates WHERE doc_name = ?
	`, docName).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count updates: %w", err)
	}
	return n, nil
}

// LastSeq returns the highest seq recorded for the document, 0 when none.
func (s *Store) LastSeq(ctx context.Context, docName string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM updates WHERE doc_name = ?
	`, docName).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("get last seq: %w", err)
	}
	return seq, nil
}
