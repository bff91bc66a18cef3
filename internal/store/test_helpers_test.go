package store

import (
	"context"
	"path/filepath"
	"testing"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestDocument registers a document with fixed identity.
func createTestDocument(t *testing.T, s *Store, name string) Document {
	t.Helper()
	doc, err := s.EnsureDocument(context.Background(), Document{Name: name, GUID: "guid-" + name, ClientID: 7})
	if err != nil {
		t.Fatalf("EnsureDocument() failed: %v", err)
	}
	return doc
}
