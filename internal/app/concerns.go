package app

import (
	"context"
	"fmt"
	"strings"

	"facilityfix/api/internal/docstore"
	"facilityfix/api/internal/identity"
	"facilityfix/api/internal/notify"
	"facilityfix/api/internal/rbac"
	"facilityfix/api/internal/repo"
	"facilityfix/api/internal/search"
	"facilityfix/api/internal/util"
)

type SubmitConcernInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Location    string   `json:"location"`
	Category    string   `json:"category"`
	Priority    string   `json:"priority"`
	UnitID      string   `json:"unit_id"`
	Attachments []string `json:"attachments"`
}

type EvaluateConcernInput struct {
	Decision          string `json:"decision"` // approved or rejected
	ResolutionType    string `json:"resolution_type,omitempty"`
	UrgencyAssessment string `json:"urgency_assessment,omitempty"`
	AdminNotes        string `json:"admin_notes,omitempty"`
}

// SubmitConcern files a new concern slip on behalf of the reporting
// tenant and notifies all admins.
func (s *Service) SubmitConcern(ctx context.Context, subject identity.Subject, input SubmitConcernInput) (repo.Concern, error) {
	if err := requireRole(subject); err != nil {
		return repo.Concern{}, err
	}
	if !rbac.Can(subject.Role, rbac.ActionSubmitConcern) {
		return repo.Concern{}, errForbidden()
	}

	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	input.Location = strings.TrimSpace(input.Location)
	if input.Title == "" {
		return repo.Concern{}, errValidation("title is required")
	}
	if input.Description == "" {
		return repo.Concern{}, errValidation("description is required")
	}
	if input.Location == "" {
		return repo.Concern{}, errValidation("location is required")
	}
	if input.Category == "" {
		return repo.Concern{}, errValidation("category is required")
	}
	if _, ok := allowedCategories[input.Category]; !ok {
		return repo.Concern{}, errValidation(fmt.Sprintf("unknown category %q", input.Category))
	}
	if input.Priority == "" {
		input.Priority = "medium"
	}
	if _, ok := allowedPriorities[input.Priority]; !ok {
		return repo.Concern{}, errValidation(fmt.Sprintf("unknown priority %q", input.Priority))
	}

	unitID := input.UnitID
	if unitID == "" {
		unitID = subject.UnitID
	}

	now := repo.Now()
	concern := repo.Concern{
		ID:           util.NewID("cs"),
		ReportedBy:   subject.ID,
		UnitID:       unitID,
		Title:        input.Title,
		Description:  input.Description,
		Location:     input.Location,
		Category:     input.Category,
		Priority:     input.Priority,
		Status:       repo.ConcernPending,
		ResolutionID: "",
		Attachments:  input.Attachments,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if concern.Attachments == nil {
		concern.Attachments = []string{}
	}

	if err := s.repo.CreateConcern(ctx, &concern); err != nil {
		return repo.Concern{}, errDependency(err)
	}

	s.recordTransition(ctx, repo.Concerns, concern.ID, "", repo.ConcernPending, subject, "submitted", concern)
	s.notifyAdmins(ctx, notify.Event{
		Type:      notify.TypeConcernSubmitted,
		SenderID:  subject.ID,
		Message:   fmt.Sprintf("%s reported %q for unit %s.", subject.DisplayName, concern.Title, orUnset(concern.UnitID)),
		RelatedID: concern.ID,
	})
	if s.search != nil {
		s.search.IndexConcern(concernRecord(concern))
	}
	return concern, nil
}

// GetConcern loads one concern. Tenants only see their own reports.
func (s *Service) GetConcern(ctx context.Context, subject identity.Subject, id string) (repo.Concern, error) {
	if err := requireRole(subject); err != nil {
		return repo.Concern{}, err
	}
	if !rbac.Can(subject.Role, rbac.ActionReadConcern) {
		return repo.Concern{}, errForbidden()
	}

	concern, err := s.repo.GetConcern(ctx, id)
	if err != nil {
		return repo.Concern{}, storeError(err, "concern not found")
	}
	if !rbac.OwnRecord(subject.Role, subject.ID, concern.ReportedBy) {
		return repo.Concern{}, errForbidden()
	}
	return concern, nil
}

// ListConcerns returns concerns visible to the subject: admins see all
// (optionally filtered by status), tenants see their own reports.
func (s *Service) ListConcerns(ctx context.Context, subject identity.Subject, status string) ([]repo.Concern, error) {
	if err := requireRole(subject); err != nil {
		return nil, err
	}

	var predicates []docstore.Predicate
	switch {
	case rbac.Can(subject.Role, rbac.ActionListConcerns):
		// unrestricted
	case rbac.Can(subject.Role, rbac.ActionReadConcern):
		predicates = append(predicates, docstore.Predicate{Field: "reported_by", Op: docstore.OpEq, Value: subject.ID})
	default:
		return nil, errForbidden()
	}
	if status != "" {
		predicates = append(predicates, docstore.Predicate{Field: "status", Op: docstore.OpEq, Value: status})
	}

	concerns, err := s.repo.QueryConcerns(ctx, predicates, docstore.Options{OrderBy: "created_at", Descending: true})
	if err != nil {
		return nil, errDependency(err)
	}
	return concerns, nil
}

// EvaluateConcern decides a pending concern. Exactly one evaluation
// wins: the pending guard is checked atomically, so a concurrent
// second evaluation fails with InvalidState no matter its decision.
func (s *Service) EvaluateConcern(ctx context.Context, subject identity.Subject, id string, input EvaluateConcernInput) (repo.Concern, error) {
	if err := requireRole(subject); err != nil {
		return repo.Concern{}, err
	}
	if !rbac.Can(subject.Role, rbac.ActionEvaluateConcern) {
		return repo.Concern{}, errForbidden()
	}

	switch input.Decision {
	case repo.ConcernApproved:
		if input.ResolutionType != repo.ResolutionJobService && input.ResolutionType != repo.ResolutionWorkPermit {
			return repo.Concern{}, errValidation("approval requires resolution_type of job_service or work_permit")
		}
	case repo.ConcernRejected:
		if input.ResolutionType != "" {
			return repo.Concern{}, errValidation("rejection must not carry a resolution_type")
		}
	default:
		return repo.Concern{}, errValidation("decision must be approved or rejected")
	}

	now := repo.Now()
	patch := map[string]any{
		"status":       input.Decision,
		"evaluated_by": subject.ID,
		"evaluated_at": now,
		"updated_at":   now,
	}
	if input.ResolutionType != "" {
		patch["resolution_type"] = input.ResolutionType
	}
	if input.UrgencyAssessment != "" {
		patch["urgency_assessment"] = input.UrgencyAssessment
	}
	if input.AdminNotes != "" {
		patch["admin_notes"] = input.AdminNotes
	}

	err := s.repo.UpdateConcernWhere(ctx, id,
		[]docstore.Predicate{{Field: "status", Op: docstore.OpEq, Value: repo.ConcernPending}},
		patch)
	if err != nil {
		return repo.Concern{}, guardConflict(err, "concern has already been evaluated", "concern not found")
	}

	concern, err := s.repo.GetConcern(ctx, id)
	if err != nil {
		return repo.Concern{}, storeError(err, "concern not found")
	}

	s.recordTransition(ctx, repo.Concerns, concern.ID, repo.ConcernPending, concern.Status, subject, input.AdminNotes, concern)
	s.notifier.Dispatch(ctx, notify.Event{
		Type:       notify.TypeConcernUpdate,
		SenderID:   subject.ID,
		Recipients: []string{concern.ReportedBy},
		Message:    concernDecisionMessage(concern),
		RelatedID:  concern.ID,
	})
	if s.search != nil {
		s.search.IndexConcern(concernRecord(concern))
	}
	return concern, nil
}

// ConcernHistory returns the recorded transitions for a concern,
// subject to the same visibility rule as reads.
func (s *Service) ConcernHistory(ctx context.Context, subject identity.Subject, id string) ([]repo.StatusHistory, error) {
	if _, err := s.GetConcern(ctx, subject, id); err != nil {
		return nil, err
	}
	history, err := s.repo.QueryStatusHistory(ctx, repo.Concerns, id)
	if err != nil {
		return nil, errDependency(err)
	}
	return history, nil
}

func concernDecisionMessage(concern repo.Concern) string {
	if concern.Status == repo.ConcernRejected {
		msg := fmt.Sprintf("Your concern %q was rejected.", concern.Title)
		if concern.AdminNotes != "" {
			msg += " " + concern.AdminNotes
		}
		return msg
	}
	path := "an internal job service"
	if concern.ResolutionType == repo.ResolutionWorkPermit {
		path = "an external work order permit"
	}
	return fmt.Sprintf("Your concern %q was approved and will be resolved through %s.", concern.Title, path)
}

func concernRecord(concern repo.Concern) search.ConcernRecord {
	return search.ConcernRecord{
		ID:          concern.ID,
		Title:       concern.Title,
		Description: concern.Description,
		Location:    concern.Location,
		Category:    concern.Category,
		Status:      concern.Status,
	}
}
