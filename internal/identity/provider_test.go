package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"facilityfix/api/internal/auth"
	"facilityfix/api/internal/docstore"
	"facilityfix/api/internal/rbac"
	"facilityfix/api/internal/repo"
	"facilityfix/api/internal/session"
)

type fakeSessions struct {
	mu   sync.Mutex
	data map[string]session.Data
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{data: make(map[string]session.Data)}
}

func (f *fakeSessions) Save(_ context.Context, tokenHash string, data session.Data, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[tokenHash] = data
	return nil
}

func (f *fakeSessions) Lookup(_ context.Context, tokenHash string) (session.Data, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.data[tokenHash]
	if !ok {
		return session.Data{}, session.ErrNotFound
	}
	return data, nil
}

func (f *fakeSessions) Revoke(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, tokenHash)
	return nil
}

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	users := repo.New(docstore.NewMemoryStore())
	return NewProvider(users, newFakeSessions(), "test-secret", 15*time.Minute, 24*time.Hour)
}

func registerTenant(t *testing.T, p *Provider, email string) repo.User {
	t.Helper()
	user, err := p.Register(context.Background(), RegisterRequest{
		Email:     email,
		Password:  "correct-horse",
		FirstName: "Maria",
		LastName:  "Santos",
		Role:      "tenant",
		UnitID:    "unit_204",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return user
}

func TestRegisterAndAuthenticate(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()
	user := registerTenant(t, p, "maria@example.com")

	if user.PasswordHash != "" {
		t.Error("password hash must not be returned")
	}

	subject, pair, err := p.Authenticate(ctx, "maria@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if subject.ID != user.ID || subject.Role != rbac.RoleTenant || subject.UnitID != "unit_204" {
		t.Errorf("unexpected subject: %+v", subject)
	}
	if subject.DisplayName != "Maria Santos" {
		t.Errorf("unexpected display name %q", subject.DisplayName)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}

	verified, err := p.Verify(pair.AccessToken)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if verified.ID != user.ID || verified.Role != rbac.RoleTenant {
		t.Errorf("verify returned wrong subject: %+v", verified)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	p := newTestProvider(t)
	registerTenant(t, p, "maria@example.com")

	_, err := p.Register(context.Background(), RegisterRequest{
		Email: "Maria@Example.com", Password: "another-pass", Role: "tenant",
	})
	if !errors.Is(err, ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken, got %v", err)
	}
}

func TestRegisterRejectsUnknownRole(t *testing.T) {
	p := newTestProvider(t)
	_, err := p.Register(context.Background(), RegisterRequest{
		Email: "x@example.com", Password: "long-enough", Role: "superuser",
	})
	if err == nil {
		t.Error("unknown role must be rejected at registration")
	}
}

func TestAuthenticateWrongPassword(t *testing.T) {
	p := newTestProvider(t)
	registerTenant(t, p, "maria@example.com")

	if _, _, err := p.Authenticate(context.Background(), "maria@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := p.Authenticate(context.Background(), "nobody@example.com", "whatever"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestRefreshRotatesSession(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()
	registerTenant(t, p, "maria@example.com")

	_, pair, err := p.Authenticate(ctx, "maria@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	subject, fresh, err := p.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if subject.Role != rbac.RoleTenant {
		t.Errorf("refreshed subject lost role: %+v", subject)
	}
	if fresh.RefreshToken == pair.RefreshToken {
		t.Error("refresh token must rotate")
	}

	// Old refresh token is single-use.
	if _, _, err := p.Refresh(ctx, pair.RefreshToken); !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken on reuse, got %v", err)
	}
}

func TestLogoutRevokesRefresh(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()
	registerTenant(t, p, "maria@example.com")

	_, pair, err := p.Authenticate(ctx, "maria@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if err := p.Logout(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, _, err := p.Refresh(ctx, pair.RefreshToken); !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken after logout, got %v", err)
	}
}

func TestUpdateClaims(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()
	user := registerTenant(t, p, "maria@example.com")

	if err := p.UpdateClaims(ctx, user.ID, rbac.RoleStaff, "bld_1", ""); err != nil {
		t.Fatalf("UpdateClaims: %v", err)
	}
	subject, err := p.GetSubject(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetSubject: %v", err)
	}
	if subject.Role != rbac.RoleStaff || subject.BuildingID != "bld_1" || subject.UnitID != "" {
		t.Errorf("claims not updated: %+v", subject)
	}

	if err := p.UpdateClaims(ctx, user.ID, rbac.Role("superuser"), "", ""); err == nil {
		t.Error("unknown role must be rejected")
	}
	if err := p.UpdateClaims(ctx, "missing", rbac.RoleStaff, "", ""); !errors.Is(err, ErrUnknownSubject) {
		t.Errorf("expected ErrUnknownSubject, got %v", err)
	}
}

func TestListByRoleSkipsInactive(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()
	active := registerTenant(t, p, "maria@example.com")
	disabled := registerTenant(t, p, "old@example.com")

	if err := p.users.UpdateUser(ctx, disabled.ID, map[string]any{"status": "disabled"}); err != nil {
		t.Fatalf("disable user: %v", err)
	}

	users, err := p.ListByRole(ctx, rbac.RoleTenant)
	if err != nil {
		t.Fatalf("ListByRole: %v", err)
	}
	if len(users) != 1 || users[0].ID != active.ID {
		t.Errorf("expected only the active account, got %+v", users)
	}
	if users[0].PasswordHash != "" {
		t.Error("password hash must not be listed")
	}
}
