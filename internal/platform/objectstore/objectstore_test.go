package objectstore

import (
	"context"
	"errors"
	"testing"
)

func TestMemStorePutGet(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	err := store.Put(ctx, "patients/p1/originals/file.png", []byte("image-bytes"), "image/png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := store.Get(ctx, "patients/p1/originals/file.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "image-bytes" {
		t.Errorf("expected image-bytes, got %s", got)
	}
}

func TestMemStorePutEmptyKey(t *testing.T) {
	store := NewMemStore()
	if err := store.Put(context.Background(), "", []byte("x"), ""); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("expected ErrEmptyKey, got %v", err)
	}
}

func TestMemStoreGetNotFound(t *testing.T) {
	store := NewMemStore()
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestMemStoreListPrefixOrderAndLimit(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	keys := []string{
		"patients/p1/diagnostic-reports/report-b.json",
		"patients/p1/diagnostic-reports/report-a.json",
		"patients/p1/observations/obs-1.json",
		"patients/p2/diagnostic-reports/report-c.json",
	}
	for _, k := range keys {
		if err := store.Put(ctx, k, []byte("{}"), ContentTypeFHIRJSON); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}

	got, err := store.List(ctx, "patients/p1/diagnostic-reports/", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(got))
	}
	if got[0] != "patients/p1/diagnostic-reports/report-a.json" {
		t.Errorf("expected lexicographic order, got %v", got)
	}

	limited, err := store.List(ctx, "patients/p1/", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("expected 1 key with max=1, got %d", len(limited))
	}
}

func TestMemStoreGetReturnsCopy(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	if err := store.Put(ctx, "k", []byte("abc"), ""); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, _ := store.Get(ctx, "k")
	got[0] = 'z'

	again, _ := store.Get(ctx, "k")
	if string(again) != "abc" {
		t.Error("stored object was mutated through a returned slice")
	}
}
