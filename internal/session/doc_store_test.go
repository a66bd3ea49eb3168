package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"facilityfix/api/internal/docstore"
)

func TestDocStoreSaveAndLookup(t *testing.T) {
	store := NewDocStore(docstore.NewMemoryStore())
	ctx := context.Background()

	data := Data{UserID: "usr_1", DisplayName: "Maria Santos", Role: "tenant", UnitID: "unit_204"}
	if err := store.Save(ctx, "hash-1", data, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Lookup(ctx, "hash-1")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.UserID != data.UserID || got.Role != data.Role || got.UnitID != data.UnitID {
		t.Errorf("got %+v, want %+v", got, data)
	}
}

func TestDocStoreExpiry(t *testing.T) {
	store := NewDocStore(docstore.NewMemoryStore())
	ctx := context.Background()

	if err := store.Save(ctx, "hash-1", Data{UserID: "usr_1"}, time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := store.Lookup(ctx, "hash-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for expired session, got %v", err)
	}
}

func TestDocStoreRevoke(t *testing.T) {
	store := NewDocStore(docstore.NewMemoryStore())
	ctx := context.Background()

	if err := store.Save(ctx, "hash-1", Data{UserID: "usr_1"}, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Revoke(ctx, "hash-1"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := store.Lookup(ctx, "hash-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after revoke, got %v", err)
	}

	// Revoking again is not an error.
	if err := store.Revoke(ctx, "hash-1"); err != nil {
		t.Fatalf("second Revoke: %v", err)
	}
}
