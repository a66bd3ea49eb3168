package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return store, s
}

func TestNewRedisStore(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer store.Close()

	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestSaveAndLookup(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	expiresAt := time.Now().Add(24 * time.Hour)

	err := store.Save(ctx, "test-token-hash", Data{
		UserID:      "usr_123",
		DisplayName: "Maria Santos",
		Role:        "tenant",
		BuildingID:  "bld_1",
		UnitID:      "unit_204",
	}, expiresAt)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := store.Lookup(ctx, "test-token-hash")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if data.UserID != "usr_123" {
		t.Errorf("expected user usr_123, got %s", data.UserID)
	}
	if data.Role != "tenant" || data.UnitID != "unit_204" {
		t.Errorf("subject fields not round-tripped: %+v", data)
	}
	if data.CreatedAt.IsZero() {
		t.Error("CreatedAt should be stamped on save")
	}
}

func TestLookupExpiredSession(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	err := store.Save(ctx, "expired-token", Data{UserID: "usr_456"}, time.Now().Add(1*time.Millisecond))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	s.FastForward(2 * time.Millisecond)

	if _, err := store.Lookup(ctx, "expired-token"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for expired token, got %v", err)
	}
}

func TestLookupNonExistentSession(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	if _, err := store.Lookup(context.Background(), "non-existent-token"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRevoke(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	expiresAt := time.Now().Add(24 * time.Hour)

	if err := store.Save(ctx, "token-to-revoke", Data{UserID: "usr_789"}, expiresAt); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := store.Lookup(ctx, "token-to-revoke"); err != nil {
		t.Fatalf("Lookup before revoke failed: %v", err)
	}

	if err := store.Revoke(ctx, "token-to-revoke"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if _, err := store.Lookup(ctx, "token-to-revoke"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after revoke, got %v", err)
	}

	// Revoking a missing session is not an error.
	if err := store.Revoke(ctx, "non-existent-token"); err != nil {
		t.Errorf("Revoke for non-existent token failed: %v", err)
	}
}

func TestSessionIsolation(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	expiresAt := time.Now().Add(24 * time.Hour)

	if err := store.Save(ctx, "token-1", Data{UserID: "usr_1"}, expiresAt); err != nil {
		t.Fatalf("Save token-1 failed: %v", err)
	}
	if err := store.Save(ctx, "token-2", Data{UserID: "usr_2"}, expiresAt); err != nil {
		t.Fatalf("Save token-2 failed: %v", err)
	}

	if err := store.Revoke(ctx, "token-1"); err != nil {
		t.Fatalf("Revoke token-1 failed: %v", err)
	}

	if _, err := store.Lookup(ctx, "token-1"); !errors.Is(err, ErrNotFound) {
		t.Error("token-1 should be gone")
	}
	data, err := store.Lookup(ctx, "token-2")
	if err != nil {
		t.Fatalf("Lookup token-2 after revoke failed: %v", err)
	}
	if data.UserID != "usr_2" {
		t.Errorf("expected usr_2 after revoke, got %s", data.UserID)
	}
}
