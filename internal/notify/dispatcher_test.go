package notify

import (
	"context"
	"testing"

	"facilityfix/api/internal/docstore"
	"facilityfix/api/internal/repo"
)

func TestDispatchCreatesOnePerRecipient(t *testing.T) {
	r := repo.New(docstore.NewMemoryStore())
	d := NewDispatcher(r, nil)
	ctx := context.Background()

	d.Dispatch(ctx, Event{
		Type:       TypeConcernSubmitted,
		SenderID:   "usr_tenant",
		Recipients: []string{"adm_1", "adm_2", "adm_3"},
		Message:    "A new concern slip was submitted for unit 204.",
		RelatedID:  "cs_1",
	})

	all, err := r.QueryNotifications(ctx, nil, docstore.Options{})
	if err != nil {
		t.Fatalf("QueryNotifications: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(all))
	}

	recipients := make(map[string]bool)
	for _, n := range all {
		recipients[n.RecipientID] = true
		if n.Title != "New Concern Slip" {
			t.Errorf("unexpected title %q", n.Title)
		}
		if n.NotificationType != TypeConcernSubmitted {
			t.Errorf("unexpected type %q", n.NotificationType)
		}
		if n.RelatedID != "cs_1" {
			t.Errorf("unexpected related id %q", n.RelatedID)
		}
		if n.IsRead {
			t.Error("notifications must start unread")
		}
	}
	for _, id := range []string{"adm_1", "adm_2", "adm_3"} {
		if !recipients[id] {
			t.Errorf("missing notification for %s", id)
		}
	}
}

func TestDispatchDeduplicatesRecipients(t *testing.T) {
	r := repo.New(docstore.NewMemoryStore())
	d := NewDispatcher(r, nil)
	ctx := context.Background()

	d.Dispatch(ctx, Event{
		Type:       TypeJobUpdate,
		Recipients: []string{"usr_1", "usr_1", "", "usr_1"},
		Message:    "Status changed to completed.",
	})

	all, err := r.QueryNotifications(ctx, nil, docstore.Options{})
	if err != nil {
		t.Fatalf("QueryNotifications: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected 1 notification, got %d", len(all))
	}
}

func TestTitleFor(t *testing.T) {
	cases := map[string]string{
		TypeConcernSubmitted: "New Concern Slip",
		TypeConcernUpdate:    "Concern Slip Update",
		TypeJobAssigned:      "New Job Assignment",
		TypeJobUpdate:        "Job Service Update",
		TypePermitRequest:    "Work Order Permit Request",
		TypePermitUpdate:     "Work Order Permit Update",
		"something_else":     "something_else",
	}
	for notificationType, want := range cases {
		if got := TitleFor(notificationType); got != want {
			t.Errorf("TitleFor(%s) = %q, want %q", notificationType, got, want)
		}
	}
}
