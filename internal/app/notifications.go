package app

import (
	"context"

	"facilityfix/api/internal/docstore"
	"facilityfix/api/internal/identity"
	"facilityfix/api/internal/rbac"
	"facilityfix/api/internal/repo"
)

// ListNotifications returns the subject's own notifications, newest
// first, optionally restricted to unread ones.
func (s *Service) ListNotifications(ctx context.Context, subject identity.Subject, unreadOnly bool) ([]repo.Notification, error) {
	if err := requireRole(subject); err != nil {
		return nil, err
	}
	if !rbac.Can(subject.Role, rbac.ActionReadNotifications) {
		return nil, errForbidden()
	}

	predicates := []docstore.Predicate{
		{Field: "recipient_id", Op: docstore.OpEq, Value: subject.ID},
	}
	if unreadOnly {
		predicates = append(predicates, docstore.Predicate{Field: "is_read", Op: docstore.OpEq, Value: false})
	}

	notifications, err := s.repo.QueryNotifications(ctx, predicates, docstore.Options{OrderBy: "created_at", Descending: true})
	if err != nil {
		return nil, errDependency(err)
	}
	return notifications, nil
}

// MarkNotificationRead marks one of the subject's own notifications as
// read. Marking an already-read notification is a no-op.
func (s *Service) MarkNotificationRead(ctx context.Context, subject identity.Subject, id string) (repo.Notification, error) {
	if err := requireRole(subject); err != nil {
		return repo.Notification{}, err
	}
	if !rbac.Can(subject.Role, rbac.ActionReadNotifications) {
		return repo.Notification{}, errForbidden()
	}

	notification, err := s.repo.GetNotification(ctx, id)
	if err != nil {
		return repo.Notification{}, storeError(err, "notification not found")
	}
	if notification.RecipientID != subject.ID {
		return repo.Notification{}, errForbidden()
	}
	if notification.IsRead {
		return notification, nil
	}

	if err := s.repo.MarkNotificationRead(ctx, id); err != nil {
		return repo.Notification{}, storeError(err, "notification not found")
	}
	notification.IsRead = true
	return notification, nil
}
