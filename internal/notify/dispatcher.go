// Package notify creates in-app notifications for workflow events and
// optionally mirrors them to email. Dispatch is best effort: a failed
// write is logged and never fails the workflow operation that
// triggered it.
package notify

import (
	"context"
	"log"
	"sync"

	"facilityfix/api/internal/email"
	"facilityfix/api/internal/repo"
	"facilityfix/api/internal/util"
)

// Notification types. Each type carries a fixed title.
const (
	TypeConcernSubmitted = "concern_submitted"
	TypeConcernUpdate    = "concern_update"
	TypeJobAssigned      = "job_assigned"
	TypeJobUpdate        = "job_update"
	TypePermitRequest    = "permit_request"
	TypePermitUpdate     = "permit_update"
)

var titles = map[string]string{
	TypeConcernSubmitted: "New Concern Slip",
	TypeConcernUpdate:    "Concern Slip Update",
	TypeJobAssigned:      "New Job Assignment",
	TypeJobUpdate:        "Job Service Update",
	TypePermitRequest:    "Work Order Permit Request",
	TypePermitUpdate:     "Work Order Permit Update",
}

// TitleFor returns the fixed title for a notification type, or the
// type itself for anything unrecognized.
func TitleFor(notificationType string) string {
	if title, ok := titles[notificationType]; ok {
		return title
	}
	return notificationType
}

// Event is one workflow occurrence fanned out to a set of recipients.
type Event struct {
	Type       string
	SenderID   string
	Recipients []string
	Message    string
	RelatedID  string
}

// Dispatcher fans events out to per-recipient notification records.
type Dispatcher struct {
	repo  *repo.Repository
	email *email.Service
}

// NewDispatcher creates a dispatcher. The email service may be nil or
// unconfigured, in which case only in-app notifications are written.
func NewDispatcher(r *repo.Repository, mail *email.Service) *Dispatcher {
	return &Dispatcher{repo: r, email: mail}
}

// Dispatch writes one notification per recipient, concurrently.
// Duplicate recipient ids collapse to a single notification. It blocks
// until fan-out completes but never reports failure to the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) {
	seen := make(map[string]bool, len(event.Recipients))
	var wg sync.WaitGroup
	for _, recipientID := range event.Recipients {
		if recipientID == "" || seen[recipientID] {
			continue
		}
		seen[recipientID] = true

		wg.Add(1)
		go func(recipientID string) {
			defer wg.Done()
			d.deliver(ctx, event, recipientID)
		}(recipientID)
	}
	wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, event Event, recipientID string) {
	notification := repo.Notification{
		ID:               util.NewID("nt"),
		RecipientID:      recipientID,
		SenderID:         event.SenderID,
		Title:            TitleFor(event.Type),
		Message:          event.Message,
		NotificationType: event.Type,
		RelatedID:        event.RelatedID,
		IsRead:           false,
		CreatedAt:        repo.Now(),
	}
	if err := d.repo.CreateNotification(ctx, &notification); err != nil {
		log.Printf("notify: write notification type=%s recipient=%s: %v", event.Type, recipientID, err)
		return
	}

	if d.email == nil || !d.email.IsConfigured() {
		return
	}
	user, err := d.repo.GetUser(ctx, recipientID)
	if err != nil || user.Email == "" {
		return
	}
	if err := d.email.SendWorkflowUpdate(user.Email, user.DisplayName(), notification.Title, event.Message, event.RelatedID); err != nil {
		log.Printf("notify: email to=%s type=%s: %v", recipientID, event.Type, err)
	}
}
