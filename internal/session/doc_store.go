package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"facilityfix/api/internal/docstore"
)

const collection = "refresh_sessions"

// DocStore implements refresh session storage on the document store,
// used when Redis is not configured. Expiry is enforced on lookup.
type DocStore struct {
	store docstore.Store
}

func NewDocStore(store docstore.Store) *DocStore {
	return &DocStore{store: store}
}

// Save stores a refresh session under the token hash until expiresAt.
// Saving over an existing hash replaces it.
func (s *DocStore) Save(ctx context.Context, tokenHash string, data Data, expiresAt time.Time) error {
	if data.CreatedAt.IsZero() {
		data.CreatedAt = time.Now()
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal session data: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("unmarshal session data: %w", err)
	}
	doc["expires_at"] = expiresAt.UTC().Format(time.RFC3339)

	_ = s.store.Delete(ctx, collection, tokenHash)
	if _, err := s.store.Create(ctx, collection, tokenHash, doc); err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

// Lookup retrieves the session stored under the token hash. Expired
// sessions are removed and reported as missing.
func (s *DocStore) Lookup(ctx context.Context, tokenHash string) (Data, error) {
	doc, err := s.store.Get(ctx, collection, tokenHash)
	if errors.Is(err, docstore.ErrNotFound) {
		return Data{}, ErrNotFound
	}
	if err != nil {
		return Data{}, fmt.Errorf("lookup refresh session: %w", err)
	}

	if rawExpiry, ok := doc["expires_at"].(string); ok {
		expiresAt, err := time.Parse(time.RFC3339, rawExpiry)
		if err == nil && time.Now().After(expiresAt) {
			_ = s.store.Delete(ctx, collection, tokenHash)
			return Data{}, ErrNotFound
		}
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return Data{}, fmt.Errorf("marshal session doc: %w", err)
	}
	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return Data{}, fmt.Errorf("unmarshal session data: %w", err)
	}
	return data, nil
}

// Revoke deletes a refresh session. Revoking a missing session is not
// an error.
func (s *DocStore) Revoke(ctx context.Context, tokenHash string) error {
	err := s.store.Delete(ctx, collection, tokenHash)
	if err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}
