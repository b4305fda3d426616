package recordstore

import (
	"context"
	"errors"
	"testing"
)

func seedUser(t *testing.T, s *MemStore, userID string) {
	t.Helper()
	err := s.PutUser(context.Background(), &UserRecord{
		UserID:    userID,
		PatientID: "patient-" + userID,
		Username:  userID,
		CreatedAt: "2026-01-01T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func TestMemStoreUserLifecycle(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	seedUser(t, s, "alice")

	u, err := s.GetUser(ctx, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.PatientID != "patient-alice" {
		t.Errorf("expected patient-alice, got %s", u.PatientID)
	}

	if _, err := s.GetUser(ctx, "nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}

	byName, err := s.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if byName.UserID != "alice" {
		t.Errorf("expected alice, got %s", byName.UserID)
	}
}

func TestMemStoreIncrementDocumentCount(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	seedUser(t, s, "alice")

	for i := 0; i < 3; i++ {
		if err := s.IncrementDocumentCount(ctx, "alice"); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	u, _ := s.GetUser(ctx, "alice")
	if u.DocumentCount != 3 {
		t.Errorf("expected document_count 3, got %d", u.DocumentCount)
	}

	if err := s.IncrementDocumentCount(ctx, "nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestMemStoreListDocumentsMostRecentFirst(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	stamps := []string{
		"2026-01-02T10:00:00Z",
		"2026-01-03T10:00:00Z",
		"2026-01-01T10:00:00Z",
	}
	for i, ts := range stamps {
		err := s.PutDocument(ctx, &DocumentRecord{
			UserID:          "alice",
			DocumentID:      "doc-" + string(rune('a'+i)),
			UploadTimestamp: ts,
		})
		if err != nil {
			t.Fatalf("put document: %v", err)
		}
	}

	docs, err := s.ListDocuments(ctx, "alice", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("expected 3 documents, got %d", len(docs))
	}
	if docs[0].UploadTimestamp != "2026-01-03T10:00:00Z" {
		t.Errorf("expected most recent first, got %s", docs[0].UploadTimestamp)
	}
	if docs[2].UploadTimestamp != "2026-01-01T10:00:00Z" {
		t.Errorf("expected oldest last, got %s", docs[2].UploadTimestamp)
	}

	limited, err := s.ListDocuments(ctx, "alice", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("expected 2 documents with limit, got %d", len(limited))
	}
}

func TestMemStoreFindByFingerprint(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	_ = s.PutDocument(ctx, &DocumentRecord{UserID: "alice", DocumentID: "doc-1", Fingerprint: "hash-a"})
	_ = s.PutDocument(ctx, &DocumentRecord{UserID: "alice", DocumentID: "doc-2", Fingerprint: "hash-b"})
	_ = s.PutDocument(ctx, &DocumentRecord{UserID: "bob", DocumentID: "doc-3", Fingerprint: "hash-a"})

	got, err := s.FindByFingerprint(ctx, "alice", "hash-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].DocumentID != "doc-1" {
		t.Errorf("expected doc-1 only, got %+v", got)
	}

	none, err := s.FindByFingerprint(ctx, "alice", "hash-z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no matches, got %d", len(none))
	}
}

func TestMemStoreFingerprintLookupUnavailable(t *testing.T) {
	s := NewMemStore()
	s.FailFingerprintLookup = true

	_, err := s.FindByFingerprint(context.Background(), "alice", "hash-a")
	if !errors.Is(err, ErrIndexUnavailable) {
		t.Errorf("expected ErrIndexUnavailable, got %v", err)
	}
}
