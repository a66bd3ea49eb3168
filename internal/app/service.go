// Package app is the maintenance workflow engine: concern slips flow
// through evaluation into either an internal job service or an
// external work order permit, with every transition guarded, recorded
// and fanned out as notifications.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"facilityfix/api/internal/attach"
	"facilityfix/api/internal/audit"
	"facilityfix/api/internal/docstore"
	"facilityfix/api/internal/export"
	"facilityfix/api/internal/identity"
	"facilityfix/api/internal/notify"
	"facilityfix/api/internal/rbac"
	"facilityfix/api/internal/repo"
	"facilityfix/api/internal/search"
	"facilityfix/api/internal/util"
)

// Priorities accepted on concern submission.
var allowedPriorities = map[string]struct{}{
	"low":    {},
	"medium": {},
	"high":   {},
	"critical": {},
}

// Categories accepted on concern submission.
var allowedCategories = map[string]struct{}{
	"plumbing":   {},
	"electrical": {},
	"carpentry":  {},
	"appliance":  {},
	"structural": {},
	"pest":       {},
	"other":      {},
}

// Service is the workflow engine. All operations take the acting
// Subject and enforce the role policy before touching state.
type Service struct {
	repo        *repo.Repository
	identity    *identity.Provider
	notifier    *notify.Dispatcher
	journal     *audit.Journal
	search      *search.Service
	exporter    *export.Service
	attachments *attach.Store
}

func NewService(r *repo.Repository, idp *identity.Provider, notifier *notify.Dispatcher, journal *audit.Journal, searcher *search.Service, exporter *export.Service) *Service {
	return &Service{
		repo:     r,
		identity: idp,
		notifier: notifier,
		journal:  journal,
		search:   searcher,
		exporter: exporter,
	}
}

// Identity exposes the identity provider for the HTTP layer.
func (s *Service) Identity() *identity.Provider { return s.identity }

// Search exposes the search facade for the HTTP layer. May be nil.
func (s *Service) Search() *search.Service { return s.search }

// Ping checks backing store connectivity.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Store().Ping(ctx)
}

// Can checks the role policy table.
func (s *Service) Can(role rbac.Role, action rbac.Action) bool {
	return rbac.Can(role, action)
}

// requireRole rejects subjects whose stored role is unknown.
func requireRole(subject identity.Subject) error {
	if rbac.Normalize(string(subject.Role)) == "" {
		return errInvalidRole(fmt.Sprintf("unknown role %q", subject.Role))
	}
	return nil
}

// recordTransition appends a status history record and commits a
// journal snapshot. Both are best effort: the workflow state has
// already changed and must not be rolled back over bookkeeping.
func (s *Service) recordTransition(ctx context.Context, entityType, entityID, previous, next string, actor identity.Subject, remarks string, snapshot any) {
	history := repo.StatusHistory{
		ID:             util.NewID("sh"),
		EntityType:     entityType,
		EntityID:       entityID,
		PreviousStatus: previous,
		NewStatus:      next,
		UpdatedBy:      actor.ID,
		Remarks:        remarks,
		CreatedAt:      repo.Now(),
	}
	if err := s.repo.CreateStatusHistory(ctx, &history); err != nil {
		log.Printf("app: record status history %s/%s: %v", entityType, entityID, err)
	}

	if s.journal == nil {
		return
	}
	message := fmt.Sprintf("%s %s: %s -> %s", entityType, entityID, orUnset(previous), next)
	if _, err := s.journal.RecordTransition(entityType, entityID, snapshot, actor.DisplayName, message); err != nil {
		log.Printf("app: journal transition %s/%s: %v", entityType, entityID, err)
	}
}

// notifyAdmins fans one event out to every active admin account.
func (s *Service) notifyAdmins(ctx context.Context, event notify.Event) {
	admins, err := s.identity.ListByRole(ctx, rbac.RoleAdmin)
	if err != nil {
		log.Printf("app: list admins for notification: %v", err)
		return
	}
	for _, admin := range admins {
		event.Recipients = append(event.Recipients, admin.ID)
	}
	s.notifier.Dispatch(ctx, event)
}

// guardConflict maps a guarded-update failure: conflicts mean the
// guarded condition no longer holds.
func guardConflict(err error, conflictMessage, notFoundMessage string) *DomainError {
	if errors.Is(err, docstore.ErrConflict) {
		return errInvalidState(conflictMessage)
	}
	return storeError(err, notFoundMessage)
}

// parseDate accepts RFC3339 timestamps or bare dates.
func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC().Truncate(time.Second), nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func orUnset(value string) string {
	if value == "" {
		return "(none)"
	}
	return value
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
