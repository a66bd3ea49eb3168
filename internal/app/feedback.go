package app

import (
	"context"
	"strings"

	"facilityfix/api/internal/docstore"
	"facilityfix/api/internal/identity"
	"facilityfix/api/internal/rbac"
	"facilityfix/api/internal/repo"
	"facilityfix/api/internal/util"
)

type SubmitFeedbackInput struct {
	ConcernSlipID  string `json:"concern_slip_id"`
	Rating         int    `json:"rating"`
	Comments       string `json:"comments,omitempty"`
	ServiceQuality int    `json:"service_quality,omitempty"`
	Timeliness     int    `json:"timeliness,omitempty"`
	Communication  int    `json:"communication,omitempty"`
	WouldRecommend *bool  `json:"would_recommend,omitempty"`
}

// SubmitFeedback records the reporting tenant's rating of a resolved
// concern. The resolution must be finished (job closed or permit
// completed) and at most one feedback per concern is accepted.
func (s *Service) SubmitFeedback(ctx context.Context, subject identity.Subject, input SubmitFeedbackInput) (repo.Feedback, error) {
	if err := requireRole(subject); err != nil {
		return repo.Feedback{}, err
	}
	if !rbac.Can(subject.Role, rbac.ActionSubmitFeedback) {
		return repo.Feedback{}, errForbidden()
	}
	if input.ConcernSlipID == "" {
		return repo.Feedback{}, errValidation("concern_slip_id is required")
	}
	if input.Rating < 1 || input.Rating > 5 {
		return repo.Feedback{}, errValidation("rating must be between 1 and 5")
	}
	for _, sub := range []int{input.ServiceQuality, input.Timeliness, input.Communication} {
		if sub != 0 && (sub < 1 || sub > 5) {
			return repo.Feedback{}, errValidation("sub-ratings must be between 1 and 5")
		}
	}

	concern, err := s.repo.GetConcern(ctx, input.ConcernSlipID)
	if err != nil {
		return repo.Feedback{}, storeError(err, "concern not found")
	}
	if concern.ReportedBy != subject.ID {
		return repo.Feedback{}, errForbidden()
	}
	if concern.Status != repo.ConcernApproved || concern.ResolutionID == "" {
		return repo.Feedback{}, errInvalidState("concern has no resolution yet")
	}

	switch concern.ResolutionType {
	case repo.ResolutionJobService:
		job, err := s.repo.GetJobService(ctx, concern.ResolutionID)
		if err != nil {
			return repo.Feedback{}, storeError(err, "job service not found")
		}
		if job.Status != repo.JobClosed {
			return repo.Feedback{}, errInvalidState("job service is not closed")
		}
	case repo.ResolutionWorkPermit:
		permit, err := s.repo.GetWorkPermit(ctx, concern.ResolutionID)
		if err != nil {
			return repo.Feedback{}, storeError(err, "work permit not found")
		}
		if permit.Status != repo.PermitCompleted {
			return repo.Feedback{}, errInvalidState("work permit is not completed")
		}
	default:
		return repo.Feedback{}, errInvalidState("concern has no resolution type")
	}

	existing, err := s.repo.QueryFeedback(ctx, []docstore.Predicate{
		{Field: "concern_slip_id", Op: docstore.OpEq, Value: concern.ID},
	}, docstore.Options{Limit: 1})
	if err != nil {
		return repo.Feedback{}, errDependency(err)
	}
	if len(existing) > 0 {
		return repo.Feedback{}, errInvalidState("feedback has already been submitted for this concern")
	}

	feedback := repo.Feedback{
		ID:             util.NewID("fb"),
		ConcernSlipID:  concern.ID,
		ServiceID:      concern.ResolutionID,
		ServiceType:    concern.ResolutionType,
		SubmittedBy:    subject.ID,
		Rating:         input.Rating,
		Comments:       strings.TrimSpace(input.Comments),
		ServiceQuality: input.ServiceQuality,
		Timeliness:     input.Timeliness,
		Communication:  input.Communication,
		WouldRecommend: input.WouldRecommend,
		CreatedAt:      repo.Now(),
	}
	if err := s.repo.CreateFeedback(ctx, &feedback); err != nil {
		return repo.Feedback{}, errDependency(err)
	}
	return feedback, nil
}

// ListFeedback returns feedback visible to the subject: admins see all,
// tenants only what they submitted.
func (s *Service) ListFeedback(ctx context.Context, subject identity.Subject, concernID string) ([]repo.Feedback, error) {
	if err := requireRole(subject); err != nil {
		return nil, err
	}
	if !rbac.Can(subject.Role, rbac.ActionReadFeedback) {
		return nil, errForbidden()
	}

	var predicates []docstore.Predicate
	if subject.Role != rbac.RoleAdmin {
		predicates = append(predicates, docstore.Predicate{Field: "submitted_by", Op: docstore.OpEq, Value: subject.ID})
	}
	if concernID != "" {
		predicates = append(predicates, docstore.Predicate{Field: "concern_slip_id", Op: docstore.OpEq, Value: concernID})
	}

	feedback, err := s.repo.QueryFeedback(ctx, predicates, docstore.Options{OrderBy: "created_at", Descending: true})
	if err != nil {
		return nil, errDependency(err)
	}
	return feedback, nil
}
