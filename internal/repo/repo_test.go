package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"facilityfix/api/internal/docstore"
)

func newTestRepo() *Repository {
	return New(docstore.NewMemoryStore())
}

func TestConcernRoundTrip(t *testing.T) {
	r := newTestRepo()
	ctx := context.Background()

	now := Now()
	concern := Concern{
		ID:          "cs_1",
		ReportedBy:  "usr_1",
		UnitID:      "unit_204",
		Title:       "Leaking faucet",
		Description: "Drips constantly.",
		Category:    "plumbing",
		Priority:    "high",
		Status:      ConcernPending,
		Attachments: []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.CreateConcern(ctx, &concern); err != nil {
		t.Fatalf("CreateConcern: %v", err)
	}

	got, err := r.GetConcern(ctx, "cs_1")
	if err != nil {
		t.Fatalf("GetConcern: %v", err)
	}
	if got.Title != concern.Title || got.Status != ConcernPending || !got.CreatedAt.Equal(now) {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.Attachments == nil {
		t.Error("attachments slice lost in round trip")
	}
}

func TestUpdateConcernWhereGuard(t *testing.T) {
	r := newTestRepo()
	ctx := context.Background()

	concern := Concern{ID: "cs_1", ReportedBy: "usr_1", Title: "t", Description: "d", Status: ConcernPending, CreatedAt: Now(), UpdatedAt: Now()}
	if err := r.CreateConcern(ctx, &concern); err != nil {
		t.Fatalf("CreateConcern: %v", err)
	}

	guards := []docstore.Predicate{{Field: "status", Op: docstore.OpEq, Value: ConcernPending}}
	if err := r.UpdateConcernWhere(ctx, "cs_1", guards, map[string]any{"status": ConcernApproved}); err != nil {
		t.Fatalf("first UpdateConcernWhere: %v", err)
	}

	err := r.UpdateConcernWhere(ctx, "cs_1", guards, map[string]any{"status": ConcernRejected})
	if !errors.Is(err, docstore.ErrConflict) {
		t.Fatalf("expected ErrConflict on stale guard, got %v", err)
	}
}

func TestQueryStatusHistoryOrderAndScope(t *testing.T) {
	r := newTestRepo()
	ctx := context.Background()

	base := Now()
	entries := []StatusHistory{
		{ID: "sh_2", EntityType: Concerns, EntityID: "cs_1", NewStatus: ConcernApproved, UpdatedBy: "usr_a", CreatedAt: base.Add(time.Second)},
		{ID: "sh_1", EntityType: Concerns, EntityID: "cs_1", NewStatus: ConcernPending, UpdatedBy: "usr_t", CreatedAt: base},
		{ID: "sh_3", EntityType: JobServices, EntityID: "js_1", NewStatus: JobAssigned, UpdatedBy: "usr_a", CreatedAt: base},
	}
	for i := range entries {
		if err := r.CreateStatusHistory(ctx, &entries[i]); err != nil {
			t.Fatalf("CreateStatusHistory: %v", err)
		}
	}

	history, err := r.QueryStatusHistory(ctx, Concerns, "cs_1")
	if err != nil {
		t.Fatalf("QueryStatusHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("entries = %d, want 2", len(history))
	}
	if history[0].NewStatus != ConcernPending || history[1].NewStatus != ConcernApproved {
		t.Errorf("history out of order: %+v", history)
	}
}

func TestGetUserByEmail(t *testing.T) {
	r := newTestRepo()
	ctx := context.Background()

	user := User{ID: "usr_1", Email: "maria@example.com", Role: "tenant", Status: "active", CreatedAt: Now(), UpdatedAt: Now()}
	if err := r.CreateUser(ctx, &user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	got, err := r.GetUserByEmail(ctx, "maria@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if got.ID != "usr_1" {
		t.Errorf("id = %s, want usr_1", got.ID)
	}

	if _, err := r.GetUserByEmail(ctx, "nobody@example.com"); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkNotificationRead(t *testing.T) {
	r := newTestRepo()
	ctx := context.Background()

	n := Notification{ID: "nt_1", RecipientID: "usr_1", Title: "New Concern Slip", Message: "m", NotificationType: "concern_submitted", CreatedAt: Now()}
	if err := r.CreateNotification(ctx, &n); err != nil {
		t.Fatalf("CreateNotification: %v", err)
	}
	if err := r.MarkNotificationRead(ctx, "nt_1"); err != nil {
		t.Fatalf("MarkNotificationRead: %v", err)
	}
	got, err := r.GetNotification(ctx, "nt_1")
	if err != nil {
		t.Fatalf("GetNotification: %v", err)
	}
	if !got.IsRead {
		t.Error("notification still unread")
	}
}

func TestDisplayName(t *testing.T) {
	cases := []struct {
		user User
		want string
	}{
		{User{FirstName: "Maria", LastName: "Santos"}, "Maria Santos"},
		{User{FirstName: "Maria"}, "Maria"},
		{User{Email: "maria@example.com"}, "maria@example.com"},
	}
	for _, tc := range cases {
		if got := tc.user.DisplayName(); got != tc.want {
			t.Errorf("DisplayName(%+v) = %q, want %q", tc.user, got, tc.want)
		}
	}
}
