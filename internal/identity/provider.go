// Package identity is the external identity boundary: account
// registration, email/password authentication, token verification and
// subject attribute lookup. The workflow engine only ever sees the
// Subject it produces, never credentials.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"facilityfix/api/internal/auth"
	"facilityfix/api/internal/docstore"
	"facilityfix/api/internal/rbac"
	"facilityfix/api/internal/repo"
	"facilityfix/api/internal/session"
	"facilityfix/api/internal/util"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUnknownSubject     = errors.New("unknown subject")
)

// Subject is a verified identity with its current role and unit
// attributes. Every request handler works from a Subject.
type Subject struct {
	ID          string
	DisplayName string
	Role        rbac.Role
	BuildingID  string
	UnitID      string
}

// SessionStore persists refresh sessions keyed by token hash.
type SessionStore interface {
	Save(ctx context.Context, tokenHash string, data session.Data, expiresAt time.Time) error
	Lookup(ctx context.Context, tokenHash string) (session.Data, error)
	Revoke(ctx context.Context, tokenHash string) error
}

// Provider implements the identity boundary over the users collection.
type Provider struct {
	users       *repo.Repository
	sessions    SessionStore
	tokenSecret []byte
	accessTTL   time.Duration
	refreshTTL  time.Duration
}

func NewProvider(users *repo.Repository, sessions SessionStore, tokenSecret string, accessTTL, refreshTTL time.Duration) *Provider {
	return &Provider{
		users:       users,
		sessions:    sessions,
		tokenSecret: []byte(tokenSecret),
		accessTTL:   accessTTL,
		refreshTTL:  refreshTTL,
	}
}

// RegisterRequest contains account creation parameters.
type RegisterRequest struct {
	Email      string
	Password   string
	FirstName  string
	LastName   string
	Phone      string
	Department string
	Role       string
	BuildingID string
	UnitID     string
}

// Register creates a new account. The stored role must be one of the
// three known roles; anything else is rejected up front so a bad role
// can never reach the authorization gate.
func (p *Provider) Register(ctx context.Context, req RegisterRequest) (repo.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return repo.User{}, errors.New("email and password are required")
	}
	if len(req.Password) < 8 {
		return repo.User{}, errors.New("password must be at least 8 characters")
	}
	role := rbac.Normalize(req.Role)
	if role == "" {
		return repo.User{}, fmt.Errorf("unknown role %q", req.Role)
	}

	if _, err := p.users.GetUserByEmail(ctx, email); err == nil {
		return repo.User{}, ErrEmailTaken
	} else if !errors.Is(err, docstore.ErrNotFound) {
		return repo.User{}, fmt.Errorf("check email: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return repo.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := repo.Now()
	user := repo.User{
		ID:           util.NewID("usr"),
		Email:        email,
		PasswordHash: string(hash),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PhoneNumber:  req.Phone,
		Department:   req.Department,
		Role:         string(role),
		Status:       "active",
		BuildingID:   req.BuildingID,
		UnitID:       req.UnitID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := p.users.CreateUser(ctx, &user); err != nil {
		return repo.User{}, fmt.Errorf("create user: %w", err)
	}
	user.PasswordHash = ""
	return user, nil
}

// TokenPair is the result of a successful authentication or refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Authenticate verifies email/password and mints a token pair. The
// refresh token is opaque; only its hash is stored.
func (p *Provider) Authenticate(ctx context.Context, email, password string) (Subject, TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return Subject{}, TokenPair{}, ErrInvalidCredentials
	}

	user, err := p.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return Subject{}, TokenPair{}, ErrInvalidCredentials
		}
		return Subject{}, TokenPair{}, fmt.Errorf("lookup user: %w", err)
	}
	if user.Status != "active" {
		return Subject{}, TokenPair{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Subject{}, TokenPair{}, ErrInvalidCredentials
	}

	subject := subjectOf(user)
	pair, err := p.issuePair(ctx, subject)
	if err != nil {
		return Subject{}, TokenPair{}, err
	}
	return subject, pair, nil
}

// Verify resolves an access token into a Subject. Tokens with unknown
// roles are rejected here, before any authorization check runs.
func (p *Provider) Verify(token string) (Subject, error) {
	claims, err := auth.ParseToken(p.tokenSecret, token)
	if err != nil {
		return Subject{}, err
	}
	role := rbac.Normalize(claims.Role)
	if role == "" {
		return Subject{}, auth.ErrInvalidToken
	}
	return Subject{
		ID:          claims.Sub,
		DisplayName: claims.Name,
		Role:        role,
		BuildingID:  claims.BuildingID,
		UnitID:      claims.UnitID,
	}, nil
}

// Refresh exchanges a valid refresh token for a fresh pair and rotates
// the session.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (Subject, TokenPair, error) {
	hash := auth.HashToken(refreshToken)
	data, err := p.sessions.Lookup(ctx, hash)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return Subject{}, TokenPair{}, auth.ErrInvalidToken
		}
		return Subject{}, TokenPair{}, fmt.Errorf("lookup session: %w", err)
	}

	role := rbac.Normalize(data.Role)
	if role == "" {
		return Subject{}, TokenPair{}, auth.ErrInvalidToken
	}
	subject := Subject{
		ID:          data.UserID,
		DisplayName: data.DisplayName,
		Role:        role,
		BuildingID:  data.BuildingID,
		UnitID:      data.UnitID,
	}

	// Rotate: the old refresh token is single-use.
	if err := p.sessions.Revoke(ctx, hash); err != nil {
		return Subject{}, TokenPair{}, fmt.Errorf("rotate session: %w", err)
	}
	pair, err := p.issuePair(ctx, subject)
	if err != nil {
		return Subject{}, TokenPair{}, err
	}
	return subject, pair, nil
}

// Logout revokes the refresh session.
func (p *Provider) Logout(ctx context.Context, refreshToken string) error {
	return p.sessions.Revoke(ctx, auth.HashToken(refreshToken))
}

// GetSubject loads current subject attributes from the account record.
func (p *Provider) GetSubject(ctx context.Context, id string) (Subject, error) {
	user, err := p.users.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return Subject{}, ErrUnknownSubject
		}
		return Subject{}, fmt.Errorf("lookup user: %w", err)
	}
	return subjectOf(user), nil
}

// ListByRole returns all active accounts holding a role. Used by the
// notification dispatcher to fan out to admins.
func (p *Provider) ListByRole(ctx context.Context, role rbac.Role) ([]repo.User, error) {
	users, err := p.users.QueryUsersByRole(ctx, string(role))
	if err != nil {
		return nil, fmt.Errorf("list users by role: %w", err)
	}
	active := users[:0]
	for _, u := range users {
		if u.Status == "active" {
			u.PasswordHash = ""
			active = append(active, u)
		}
	}
	return active, nil
}

// UpdateClaims patches mutable subject attributes on the account
// record. Already-issued access tokens keep their old claims until
// they expire; refreshed tokens pick up the change.
func (p *Provider) UpdateClaims(ctx context.Context, id string, role rbac.Role, buildingID, unitID string) error {
	if rbac.Normalize(string(role)) == "" {
		return fmt.Errorf("unknown role %q", role)
	}
	patch := map[string]any{
		"role":        string(role),
		"building_id": buildingID,
		"unit_id":     unitID,
		"updated_at":  repo.Now(),
	}
	if err := p.users.UpdateUser(ctx, id, patch); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return ErrUnknownSubject
		}
		return fmt.Errorf("update claims: %w", err)
	}
	return nil
}

func (p *Provider) issuePair(ctx context.Context, subject Subject) (TokenPair, error) {
	expiresAt := time.Now().Add(p.accessTTL)
	access, err := auth.IssueToken(p.tokenSecret, auth.Claims{
		Sub:        subject.ID,
		Name:       subject.DisplayName,
		Role:       string(subject.Role),
		BuildingID: subject.BuildingID,
		UnitID:     subject.UnitID,
		JTI:        util.NewID(""),
		Exp:        expiresAt.Unix(),
	})
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}

	refresh := util.NewID("") + util.NewID("")
	err = p.sessions.Save(ctx, auth.HashToken(refresh), session.Data{
		UserID:      subject.ID,
		DisplayName: subject.DisplayName,
		Role:        string(subject.Role),
		BuildingID:  subject.BuildingID,
		UnitID:      subject.UnitID,
	}, time.Now().Add(p.refreshTTL))
	if err != nil {
		return TokenPair{}, fmt.Errorf("save refresh session: %w", err)
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresAt: expiresAt}, nil
}

func subjectOf(u repo.User) Subject {
	return Subject{
		ID:          u.ID,
		DisplayName: u.DisplayName(),
		Role:        rbac.Normalize(u.Role),
		BuildingID:  u.BuildingID,
		UnitID:      u.UnitID,
	}
}
