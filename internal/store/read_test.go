package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
)

func TestGetDocument_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.GetDocument(context.Background(), "missing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("GetDocument() error = %v, want sql.ErrNoRows", err)
	}
}

func TestListDocuments_Ordered(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	docs, err := s.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("ListDocuments() failed: %v", err)
	}
	if docs == nil || len(docs) != 0 {
		t.Errorf("ListDocuments() on empty store = %v, want empty non-nil slice", docs)
	}

	for _, name := range []string{"zeta", "alpha", "mid"} {
		createTestDocument(t, s, name)
	}
	docs, err = s.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("ListDocuments() failed: %v", err)
	}
	var names []string
	for _, d := range docs {
		names = append(names, d.Name)
	}
	want := []string{"alpha", "mid", "zeta"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestLoadUpdates_Empty(t *testing.T) {
	s := createTestStore(t)
	createTestDocument(t, s, "a")

	updates, err := s.LoadUpdates(context.Background(), "a")
	if err != nil {
		t.Fatalf("LoadUpdates() failed: %v", err)
	}
	if updates == nil || len(updates) != 0 {
		t.Errorf("LoadUpdates() = %v, want empty non-nil slice", updates)
	}
}
