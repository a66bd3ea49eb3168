package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"facilityfix/api/internal/docstore"
	"facilityfix/api/internal/export"
	"facilityfix/api/internal/identity"
	"facilityfix/api/internal/notify"
	"facilityfix/api/internal/rbac"
	"facilityfix/api/internal/repo"
	"facilityfix/api/internal/search"
	"facilityfix/api/internal/util"
)

type CreateWorkPermitInput struct {
	ConcernSlipID        string `json:"concern_slip_id"`
	ContractorName       string `json:"contractor_name"`
	ContractorContact    string `json:"contractor_contact"`
	ContractorCompany    string `json:"contractor_company,omitempty"`
	WorkDescription      string `json:"work_description"`
	ProposedStartDate    string `json:"proposed_start_date"`
	EstimatedDuration    string `json:"estimated_duration"`
	SpecificInstructions string `json:"specific_instructions,omitempty"`
	EntryRequirements    string `json:"entry_requirements,omitempty"`
}

type DecideWorkPermitInput struct {
	Decision         string `json:"decision"` // approved or denied
	PermitConditions string `json:"permit_conditions,omitempty"`
	DenialReason     string `json:"denial_reason,omitempty"`
	AdminNotes       string `json:"admin_notes,omitempty"`
}

// CreateWorkPermit requests contractor access for an approved concern
// routed to the permit path. Only the reporting tenant may request it,
// and the concern's resolution slot is claimed atomically.
func (s *Service) CreateWorkPermit(ctx context.Context, subject identity.Subject, input CreateWorkPermitInput) (repo.WorkPermit, error) {
	if err := requireRole(subject); err != nil {
		return repo.WorkPermit{}, err
	}
	if !rbac.Can(subject.Role, rbac.ActionCreateWorkPermit) {
		return repo.WorkPermit{}, errForbidden()
	}
	if input.ConcernSlipID == "" {
		return repo.WorkPermit{}, errValidation("concern_slip_id is required")
	}
	if strings.TrimSpace(input.ContractorName) == "" {
		return repo.WorkPermit{}, errValidation("contractor_name is required")
	}
	if strings.TrimSpace(input.ContractorContact) == "" {
		return repo.WorkPermit{}, errValidation("contractor_contact is required")
	}
	if strings.TrimSpace(input.WorkDescription) == "" {
		return repo.WorkPermit{}, errValidation("work_description is required")
	}
	if input.ProposedStartDate == "" {
		return repo.WorkPermit{}, errValidation("proposed_start_date is required")
	}
	if strings.TrimSpace(input.EstimatedDuration) == "" {
		return repo.WorkPermit{}, errValidation("estimated_duration is required")
	}
	start, err := parseDate(input.ProposedStartDate)
	if err != nil {
		return repo.WorkPermit{}, errValidation("proposed_start_date must be an RFC3339 date")
	}

	concern, err := s.repo.GetConcern(ctx, input.ConcernSlipID)
	if err != nil {
		return repo.WorkPermit{}, storeError(err, "concern not found")
	}
	if concern.ReportedBy != subject.ID {
		return repo.WorkPermit{}, errForbidden()
	}
	if concern.Status != repo.ConcernApproved {
		return repo.WorkPermit{}, errInvalidState("concern is not approved")
	}
	if concern.ResolutionType != repo.ResolutionWorkPermit {
		return repo.WorkPermit{}, errInvalidState("concern was not routed to a work permit")
	}

	permitID := util.NewID("wp")
	err = s.repo.UpdateConcernWhere(ctx, concern.ID, []docstore.Predicate{
		{Field: "status", Op: docstore.OpEq, Value: repo.ConcernApproved},
		{Field: "resolution_type", Op: docstore.OpEq, Value: repo.ResolutionWorkPermit},
		{Field: "resolution_id", Op: docstore.OpEq, Value: ""},
	}, map[string]any{"resolution_id": permitID, "updated_at": repo.Now()})
	if err != nil {
		return repo.WorkPermit{}, guardConflict(err, "concern already has a resolution", "concern not found")
	}

	now := repo.Now()
	permit := repo.WorkPermit{
		ID:                   permitID,
		ConcernSlipID:        concern.ID,
		RequestedBy:          subject.ID,
		UnitID:               concern.UnitID,
		ContractorName:       strings.TrimSpace(input.ContractorName),
		ContractorContact:    strings.TrimSpace(input.ContractorContact),
		ContractorCompany:    strings.TrimSpace(input.ContractorCompany),
		WorkDescription:      strings.TrimSpace(input.WorkDescription),
		ProposedStartDate:    &start,
		EstimatedDuration:    strings.TrimSpace(input.EstimatedDuration),
		SpecificInstructions: strings.TrimSpace(input.SpecificInstructions),
		EntryRequirements:    strings.TrimSpace(input.EntryRequirements),
		Status:               repo.PermitPending,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := s.repo.CreateWorkPermit(ctx, &permit); err != nil {
		s.releaseResolutionClaim(ctx, concern.ID, permitID)
		return repo.WorkPermit{}, errDependency(err)
	}

	s.recordTransition(ctx, repo.WorkPermits, permit.ID, "", repo.PermitPending, subject, "requested for concern "+concern.ID, permit)
	s.notifyAdmins(ctx, notify.Event{
		Type:      notify.TypePermitRequest,
		SenderID:  subject.ID,
		Message:   fmt.Sprintf("%s requested a work permit for %s at unit %s.", subject.DisplayName, permit.ContractorName, orUnset(permit.UnitID)),
		RelatedID: permit.ID,
	})
	if s.search != nil {
		s.search.IndexPermit(permitRecord(permit))
	}
	return permit, nil
}

// DecideWorkPermit approves or denies a pending permit request.
// Exactly one decision wins.
func (s *Service) DecideWorkPermit(ctx context.Context, subject identity.Subject, id string, input DecideWorkPermitInput) (repo.WorkPermit, error) {
	if err := requireRole(subject); err != nil {
		return repo.WorkPermit{}, err
	}
	if !rbac.Can(subject.Role, rbac.ActionDecideWorkPermit) {
		return repo.WorkPermit{}, errForbidden()
	}

	switch input.Decision {
	case repo.PermitApproved:
		if input.DenialReason != "" {
			return repo.WorkPermit{}, errValidation("approval must not carry a denial_reason")
		}
	case repo.PermitDenied:
		if strings.TrimSpace(input.DenialReason) == "" {
			return repo.WorkPermit{}, errValidation("denial requires a denial_reason")
		}
	default:
		return repo.WorkPermit{}, errValidation("decision must be approved or denied")
	}

	now := repo.Now()
	patch := map[string]any{
		"status":      input.Decision,
		"approved_by": subject.ID,
		"updated_at":  now,
	}
	if input.Decision == repo.PermitApproved {
		patch["approval_date"] = now
		if input.PermitConditions != "" {
			patch["permit_conditions"] = input.PermitConditions
		}
	} else {
		patch["denial_reason"] = strings.TrimSpace(input.DenialReason)
	}
	if input.AdminNotes != "" {
		patch["admin_notes"] = input.AdminNotes
	}

	err := s.repo.UpdateWorkPermitWhere(ctx, id,
		[]docstore.Predicate{{Field: "status", Op: docstore.OpEq, Value: repo.PermitPending}},
		patch)
	if err != nil {
		return repo.WorkPermit{}, guardConflict(err, "permit has already been decided", "work permit not found")
	}

	permit, err := s.repo.GetWorkPermit(ctx, id)
	if err != nil {
		return repo.WorkPermit{}, storeError(err, "work permit not found")
	}

	s.recordTransition(ctx, repo.WorkPermits, permit.ID, repo.PermitPending, permit.Status, subject, input.DenialReason, permit)
	s.notifier.Dispatch(ctx, notify.Event{
		Type:       notify.TypePermitUpdate,
		SenderID:   subject.ID,
		Recipients: []string{permit.RequestedBy},
		Message:    permitDecisionMessage(permit),
		RelatedID:  permit.ID,
	})
	if s.search != nil {
		s.search.IndexPermit(permitRecord(permit))
	}
	return permit, nil
}

// StartPermitWork stamps the actual start of contractor work on an
// approved permit. It can happen once; the permit stays approved.
func (s *Service) StartPermitWork(ctx context.Context, subject identity.Subject, id string) (repo.WorkPermit, error) {
	if err := requireRole(subject); err != nil {
		return repo.WorkPermit{}, err
	}
	if !rbac.Can(subject.Role, rbac.ActionStartPermitWork) {
		return repo.WorkPermit{}, errForbidden()
	}

	permit, err := s.repo.GetWorkPermit(ctx, id)
	if err != nil {
		return repo.WorkPermit{}, storeError(err, "work permit not found")
	}
	if !rbac.OwnRecord(subject.Role, subject.ID, permit.RequestedBy) {
		return repo.WorkPermit{}, errForbidden()
	}

	now := repo.Now()
	err = s.repo.UpdateWorkPermitWhere(ctx, id, []docstore.Predicate{
		{Field: "status", Op: docstore.OpEq, Value: repo.PermitApproved},
		{Field: "actual_start_date", Op: docstore.OpEq, Value: nil},
	}, map[string]any{"actual_start_date": now, "updated_at": now})
	if err != nil {
		return repo.WorkPermit{}, guardConflict(err, "permit is not approved or work has already started", "work permit not found")
	}

	permit, err = s.repo.GetWorkPermit(ctx, id)
	if err != nil {
		return repo.WorkPermit{}, storeError(err, "work permit not found")
	}

	s.recordTransition(ctx, repo.WorkPermits, permit.ID, repo.PermitApproved, repo.PermitApproved, subject, "work started", permit)
	s.notifyAdmins(ctx, notify.Event{
		Type:      notify.TypePermitUpdate,
		SenderID:  subject.ID,
		Message:   fmt.Sprintf("Contractor work under permit %s has started at unit %s.", permit.ID, orUnset(permit.UnitID)),
		RelatedID: permit.ID,
	})
	return permit, nil
}

// CompletePermitWork closes out an approved permit after the work is
// done. Requires that work was actually started.
func (s *Service) CompletePermitWork(ctx context.Context, subject identity.Subject, id string) (repo.WorkPermit, error) {
	if err := requireRole(subject); err != nil {
		return repo.WorkPermit{}, err
	}
	if !rbac.Can(subject.Role, rbac.ActionUpdatePermit) {
		return repo.WorkPermit{}, errForbidden()
	}

	permit, err := s.repo.GetWorkPermit(ctx, id)
	if err != nil {
		return repo.WorkPermit{}, storeError(err, "work permit not found")
	}
	if permit.Status != repo.PermitApproved {
		return repo.WorkPermit{}, errInvalidTransition(permit.Status, repo.PermitCompleted)
	}
	if permit.ActualStartDate == nil {
		return repo.WorkPermit{}, errInvalidState("work has not started")
	}

	now := repo.Now()
	err = s.repo.UpdateWorkPermitWhere(ctx, id, []docstore.Predicate{
		{Field: "status", Op: docstore.OpEq, Value: repo.PermitApproved},
	}, map[string]any{"status": repo.PermitCompleted, "actual_completion_date": now, "updated_at": now})
	if err != nil {
		return repo.WorkPermit{}, guardConflict(err, "permit status changed concurrently", "work permit not found")
	}

	permit, err = s.repo.GetWorkPermit(ctx, id)
	if err != nil {
		return repo.WorkPermit{}, storeError(err, "work permit not found")
	}

	s.recordTransition(ctx, repo.WorkPermits, permit.ID, repo.PermitApproved, repo.PermitCompleted, subject, "", permit)
	s.notifier.Dispatch(ctx, notify.Event{
		Type:       notify.TypePermitUpdate,
		SenderID:   subject.ID,
		Recipients: []string{permit.RequestedBy},
		Message:    fmt.Sprintf("Work under permit %s has been marked completed.", permit.ID),
		RelatedID:  permit.ID,
	})
	if s.search != nil {
		s.search.IndexPermit(permitRecord(permit))
	}
	return permit, nil
}

// GetWorkPermit loads one permit. Tenants only see their own requests.
func (s *Service) GetWorkPermit(ctx context.Context, subject identity.Subject, id string) (repo.WorkPermit, error) {
	if err := requireRole(subject); err != nil {
		return repo.WorkPermit{}, err
	}
	if !rbac.Can(subject.Role, rbac.ActionReadWorkPermit) {
		return repo.WorkPermit{}, errForbidden()
	}

	permit, err := s.repo.GetWorkPermit(ctx, id)
	if err != nil {
		return repo.WorkPermit{}, storeError(err, "work permit not found")
	}
	if !rbac.OwnRecord(subject.Role, subject.ID, permit.RequestedBy) {
		return repo.WorkPermit{}, errForbidden()
	}
	return permit, nil
}

// ListWorkPermits returns permits visible to the subject.
func (s *Service) ListWorkPermits(ctx context.Context, subject identity.Subject, status string) ([]repo.WorkPermit, error) {
	if err := requireRole(subject); err != nil {
		return nil, err
	}

	var predicates []docstore.Predicate
	switch {
	case rbac.Can(subject.Role, rbac.ActionListWorkPermits):
		// unrestricted
	case rbac.Can(subject.Role, rbac.ActionReadWorkPermit):
		predicates = append(predicates, docstore.Predicate{Field: "requested_by", Op: docstore.OpEq, Value: subject.ID})
	default:
		return nil, errForbidden()
	}
	if status != "" {
		predicates = append(predicates, docstore.Predicate{Field: "status", Op: docstore.OpEq, Value: status})
	}

	permits, err := s.repo.QueryWorkPermits(ctx, predicates, docstore.Options{OrderBy: "created_at", Descending: true})
	if err != nil {
		return nil, errDependency(err)
	}
	return permits, nil
}

// PermitHistory returns the recorded transitions for a permit.
func (s *Service) PermitHistory(ctx context.Context, subject identity.Subject, id string) ([]repo.StatusHistory, error) {
	if _, err := s.GetWorkPermit(ctx, subject, id); err != nil {
		return nil, err
	}
	history, err := s.repo.QueryStatusHistory(ctx, repo.WorkPermits, id)
	if err != nil {
		return nil, errDependency(err)
	}
	return history, nil
}

// ExportPermitPDF renders the printable permit. Visibility follows the
// read rule.
func (s *Service) ExportPermitPDF(ctx context.Context, subject identity.Subject, id string) (*export.Result, error) {
	permit, err := s.GetWorkPermit(ctx, subject, id)
	if err != nil {
		return nil, err
	}
	if s.exporter == nil {
		return nil, errDependency(fmt.Errorf("pdf export not configured"))
	}
	result, err := s.exporter.ExportPermit(permit)
	if err != nil {
		if errors.Is(err, export.ErrPermitNotPrintable) {
			return nil, errInvalidState("permit is not printable in its current state")
		}
		return nil, errDependency(err)
	}
	return result, nil
}

func permitDecisionMessage(permit repo.WorkPermit) string {
	if permit.Status == repo.PermitDenied {
		return fmt.Sprintf("Your work permit request was denied: %s", permit.DenialReason)
	}
	msg := "Your work permit request was approved."
	if permit.PermitConditions != "" {
		msg += " Conditions: " + permit.PermitConditions
	}
	return msg
}

func permitRecord(permit repo.WorkPermit) search.PermitRecord {
	return search.PermitRecord{
		ID:              permit.ID,
		ContractorName:  permit.ContractorName,
		WorkDescription: permit.WorkDescription,
		UnitID:          permit.UnitID,
		Status:          permit.Status,
	}
}
