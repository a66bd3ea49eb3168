package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"facilityfix/api/internal/attach"
	"facilityfix/api/internal/identity"
	"facilityfix/api/internal/repo"
)

// AttachmentLink pairs an object key with a short-lived download URL.
type AttachmentLink struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// SetAttachmentStore wires object storage for concern photos. Without
// it, attachment endpoints report the dependency as unavailable.
func (s *Service) SetAttachmentStore(store *attach.Store) {
	s.attachments = store
}

// UploadConcernAttachment stores one photo against a concern and
// records its object key on the concern record. Only the reporter and
// admins may add attachments.
func (s *Service) UploadConcernAttachment(ctx context.Context, subject identity.Subject, concernID, filename, contentType string, r io.Reader, size int64) (repo.Concern, error) {
	concern, err := s.GetConcern(ctx, subject, concernID)
	if err != nil {
		return repo.Concern{}, err
	}
	if s.attachments == nil {
		return repo.Concern{}, errDependency(fmt.Errorf("attachment storage not configured"))
	}

	key, err := s.attachments.Put(ctx, concern.ID, filename, contentType, r, size)
	if err != nil {
		return repo.Concern{}, errDependency(err)
	}

	keys := append(concern.Attachments, key)
	if err := s.repo.UpdateConcernWhere(ctx, concern.ID, nil, map[string]any{
		"attachments": keys,
		"updated_at":  repo.Now(),
	}); err != nil {
		return repo.Concern{}, storeError(err, "concern not found")
	}
	concern.Attachments = keys
	concern.UpdatedAt = repo.Now()
	return concern, nil
}

// ListConcernAttachments returns presigned download links for a
// concern's attachments, subject to the read visibility rule.
func (s *Service) ListConcernAttachments(ctx context.Context, subject identity.Subject, concernID string) ([]AttachmentLink, error) {
	concern, err := s.GetConcern(ctx, subject, concernID)
	if err != nil {
		return nil, err
	}
	if s.attachments == nil {
		return nil, errDependency(fmt.Errorf("attachment storage not configured"))
	}

	links := make([]AttachmentLink, 0, len(concern.Attachments))
	for _, key := range concern.Attachments {
		url, err := s.attachments.PresignedURL(ctx, key, 15*time.Minute)
		if err != nil {
			return nil, errDependency(err)
		}
		links = append(links, AttachmentLink{Key: key, URL: url})
	}
	return links, nil
}
