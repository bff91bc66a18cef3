package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/ydoc/internal/ir"
)

// Document is a stored document's identity.
type Document struct {
	Name     string
	GUID     string
	ClientID uint64
	// CreatedAtSeq is the log position the document was registered at.
	CreatedAtSeq int64
}

// Update is one recorded binary update.
type Update struct {
	ID      int64
	DocName string
	Seq     int64
	Payload []byte
	Hash    string
}

// EnsureDocument registers doc unless a document with the same name exists,
// and returns the stored row. An existing row wins: its GUID and client ID
// are returned unchanged so reopened documents keep writing as the same
// replica.
func (s *Store) EnsureDocument(ctx context.Context, doc Document) (Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Document{}, fmt.Errorf("ensure document: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (name, guid, client_id, created_at_seq)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`, doc.Name, doc.GUID, int64(doc.ClientID), doc.CreatedAtSeq)
	if err != nil {
		return Document{}, fmt.Errorf("ensure document: insert: %w", err)
	}

	stored, err := scanDocument(tx.QueryRowContext(ctx, `
		SELECT name, guid, client_id, created_at_seq FROM documents WHERE name = ?
	`, doc.Name))
	if err != nil {
		return Document{}, fmt.Errorf("ensure document: select: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Document{}, fmt.Errorf("ensure document: commit: %w", err)
	}
	return stored, nil
}

// AppendUpdate records payload at the end of the document's log.
// It returns false when the same payload was already recorded.
//
// Uses ON CONFLICT(doc_name, hash) DO NOTHING for idempotency.
// The document must have been registered with EnsureDocument.
func (s *Store) AppendUpdate(ctx context.Context, docName string, payload []byte) (inserted bool, err error) {
	if len(payload) == 0 {
		return false, errors.New("append update: empty payload")
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO updates (doc_name, seq, payload, hash)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM updates WHERE doc_name = ?), ?, ?)
		ON CONFLICT(doc_name, hash) DO NOTHING
	`, docName, docName, payload, ir.UpdateHash(payload))
	if err != nil {
		return false, fmt.Errorf("append update: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("append update: rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Compact replaces every update of the document with seq <= throughSeq by
// merged, recorded at seq throughSeq. Updates appended after throughSeq are
// kept. merged must contain everything the replaced updates contained.
func (s *Store) Compact(ctx context.Context, docName string, throughSeq int64, merged []byte) (removed int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("compact: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		DELETE FROM updates WHERE doc_name = ? AND seq <= ?
	`, docName, throughSeq)
	if err != nil {
		return 0, fmt.Errorf("compact: delete: %w", err)
	}
	removed, err = result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("compact: rows affected: %w", err)
	}

	if len(merged) > 0 {
		// A later update with the same content makes the merged row redundant.
		_, err = tx.ExecContext(ctx, `
			INSERT INTO updates (doc_name, seq, payload, hash)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(doc_name, hash) DO NOTHING
		`, docName, throughSeq, merged, ir.UpdateHash(merged))
		if err != nil {
			return 0, fmt.Errorf("compact: insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("compact: commit: %w", err)
	}
	return removed, nil
}

func scanDocument(row *sql.Row) (Document, error) {
	var (
		doc      Document
		clientID int64
	)
	if err := row.Scan(&doc.Name, &doc.GUID, &clientID, &doc.CreatedAtSeq); err != nil {
		return Document{}, err
	}
	doc.ClientID = uint64(clientID)
	return doc, nil
}
