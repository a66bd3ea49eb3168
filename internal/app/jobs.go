package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"facilityfix/api/internal/docstore"
	"facilityfix/api/internal/identity"
	"facilityfix/api/internal/notify"
	"facilityfix/api/internal/rbac"
	"facilityfix/api/internal/repo"
	"facilityfix/api/internal/search"
	"facilityfix/api/internal/util"
)

type CreateJobServiceInput struct {
	ConcernSlipID  string   `json:"concern_slip_id"`
	AssignedTo     string   `json:"assigned_to,omitempty"`
	Title          string   `json:"title,omitempty"`
	Description    string   `json:"description,omitempty"`
	Location       string   `json:"location,omitempty"`
	Category       string   `json:"category,omitempty"`
	Priority       string   `json:"priority,omitempty"`
	ScheduledDate  string   `json:"scheduled_date,omitempty"`
	EstimatedHours float64  `json:"estimated_hours,omitempty"`
	MaterialsUsed  []string `json:"materials_used,omitempty"`
}

type UpdateJobStatusInput struct {
	Status        string   `json:"status"`
	Notes         string   `json:"notes,omitempty"`
	ActualHours   float64  `json:"actual_hours,omitempty"`
	MaterialsUsed []string `json:"materials_used,omitempty"`
}

// jobTransitions is the forward-only status order.
var jobTransitions = map[string]string{
	repo.JobAssigned:   repo.JobInProgress,
	repo.JobInProgress: repo.JobCompleted,
	repo.JobCompleted:  repo.JobClosed,
}

// CreateJobService derives an internal work item from an approved
// concern. Descriptive fields default from the concern when not
// overridden. The concern's resolution slot is claimed atomically
// first, so at most one downstream entity can ever exist per concern.
func (s *Service) CreateJobService(ctx context.Context, subject identity.Subject, input CreateJobServiceInput) (repo.JobService, error) {
	if err := requireRole(subject); err != nil {
		return repo.JobService{}, err
	}
	if !rbac.Can(subject.Role, rbac.ActionCreateJobService) {
		return repo.JobService{}, errForbidden()
	}
	if input.ConcernSlipID == "" {
		return repo.JobService{}, errValidation("concern_slip_id is required")
	}
	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	input.Location = strings.TrimSpace(input.Location)
	if input.Category != "" {
		if _, ok := allowedCategories[input.Category]; !ok {
			return repo.JobService{}, errValidation(fmt.Sprintf("unknown category %q", input.Category))
		}
	}
	if input.Priority != "" {
		if _, ok := allowedPriorities[input.Priority]; !ok {
			return repo.JobService{}, errValidation(fmt.Sprintf("unknown priority %q", input.Priority))
		}
	}
	if input.AssignedTo != "" {
		assignee, err := s.identity.GetSubject(ctx, input.AssignedTo)
		if err != nil {
			return repo.JobService{}, errValidation("assigned_to must be an existing account")
		}
		if assignee.Role != rbac.RoleStaff {
			return repo.JobService{}, errInvalidRole("jobs can only be assigned to staff accounts")
		}
	}

	concern, err := s.repo.GetConcern(ctx, input.ConcernSlipID)
	if err != nil {
		return repo.JobService{}, storeError(err, "concern not found")
	}
	if concern.Status != repo.ConcernApproved {
		return repo.JobService{}, errInvalidState("concern is not approved")
	}
	if concern.ResolutionType != repo.ResolutionJobService {
		return repo.JobService{}, errInvalidState("concern was not routed to a job service")
	}

	jobID := util.NewID("js")

	// Claim the resolution slot. A concurrent creator loses here.
	err = s.repo.UpdateConcernWhere(ctx, concern.ID, []docstore.Predicate{
		{Field: "status", Op: docstore.OpEq, Value: repo.ConcernApproved},
		{Field: "resolution_type", Op: docstore.OpEq, Value: repo.ResolutionJobService},
		{Field: "resolution_id", Op: docstore.OpEq, Value: ""},
	}, map[string]any{"resolution_id": jobID, "updated_at": repo.Now()})
	if err != nil {
		return repo.JobService{}, guardConflict(err, "concern already has a resolution", "concern not found")
	}

	now := repo.Now()
	job := repo.JobService{
		ID:            jobID,
		ConcernSlipID: concern.ID,
		CreatedBy:     subject.ID,
		AssignedTo:    input.AssignedTo,
		Title:         orDefault(input.Title, concern.Title),
		Description:   orDefault(input.Description, concern.Description),
		Location:      orDefault(input.Location, concern.Location),
		Category:      orDefault(input.Category, concern.Category),
		Priority:      orDefault(input.Priority, concern.Priority),
		Status:        repo.JobAssigned,
		MaterialsUsed: input.MaterialsUsed,
		StaffNotes:    []repo.NoteEntry{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if job.MaterialsUsed == nil {
		job.MaterialsUsed = []string{}
	}
	if input.EstimatedHours > 0 {
		job.EstimatedHours = input.EstimatedHours
	}
	if input.ScheduledDate != "" {
		scheduled, err := parseDate(input.ScheduledDate)
		if err != nil {
			s.releaseResolutionClaim(ctx, concern.ID, jobID)
			return repo.JobService{}, errValidation("scheduled_date must be an RFC3339 date")
		}
		job.ScheduledDate = &scheduled
	}

	if err := s.repo.CreateJobService(ctx, &job); err != nil {
		// Release the claim so the concern is not stranded.
		s.releaseResolutionClaim(ctx, concern.ID, jobID)
		return repo.JobService{}, errDependency(err)
	}

	s.recordTransition(ctx, repo.JobServices, job.ID, "", repo.JobAssigned, subject, "created from concern "+concern.ID, job)

	recipients := []string{concern.ReportedBy}
	if job.AssignedTo != "" {
		s.notifier.Dispatch(ctx, notify.Event{
			Type:       notify.TypeJobAssigned,
			SenderID:   subject.ID,
			Recipients: []string{job.AssignedTo},
			Message:    fmt.Sprintf("You have been assigned job %q at %s.", job.Title, orUnset(job.Location)),
			RelatedID:  job.ID,
		})
	}
	s.notifier.Dispatch(ctx, notify.Event{
		Type:       notify.TypeConcernUpdate,
		SenderID:   subject.ID,
		Recipients: recipients,
		Message:    fmt.Sprintf("A job service was opened for your concern %q.", concern.Title),
		RelatedID:  job.ID,
	})
	if s.search != nil {
		s.search.IndexJob(jobRecord(job))
	}
	return job, nil
}

// AssignJobService sets or reassigns the responsible staff member.
func (s *Service) AssignJobService(ctx context.Context, subject identity.Subject, id, staffID string) (repo.JobService, error) {
	if err := requireRole(subject); err != nil {
		return repo.JobService{}, err
	}
	if !rbac.Can(subject.Role, rbac.ActionAssignJobService) {
		return repo.JobService{}, errForbidden()
	}
	if staffID == "" {
		return repo.JobService{}, errValidation("assigned_to is required")
	}
	assignee, err := s.identity.GetSubject(ctx, staffID)
	if err != nil {
		return repo.JobService{}, errValidation("assigned_to must be an existing account")
	}
	if assignee.Role != rbac.RoleStaff {
		return repo.JobService{}, errInvalidRole("jobs can only be assigned to staff accounts")
	}

	job, err := s.repo.GetJobService(ctx, id)
	if err != nil {
		return repo.JobService{}, storeError(err, "job service not found")
	}
	previous := job.Status

	// Reassignment only makes sense while work is still open. It pulls
	// the job back to assigned: the new assignee starts fresh. The
	// assignee guard makes racing assignments one-winner: the loser sees
	// the winner's write and conflicts.
	var currentAssignee any
	if job.AssignedTo != "" {
		currentAssignee = job.AssignedTo
	}
	err = s.repo.UpdateJobServiceWhere(ctx, id, []docstore.Predicate{
		{Field: "status", Op: docstore.OpIn, Value: []any{repo.JobAssigned, repo.JobInProgress}},
		{Field: "assigned_to", Op: docstore.OpEq, Value: currentAssignee},
	}, map[string]any{"assigned_to": staffID, "status": repo.JobAssigned, "updated_at": repo.Now()})
	if err != nil {
		return repo.JobService{}, guardConflict(err, "job assignment changed concurrently", "job service not found")
	}

	job, err = s.repo.GetJobService(ctx, id)
	if err != nil {
		return repo.JobService{}, storeError(err, "job service not found")
	}
	if previous != repo.JobAssigned {
		s.recordTransition(ctx, repo.JobServices, job.ID, previous, repo.JobAssigned, subject, "reassigned to "+staffID, job)
	}

	s.notifier.Dispatch(ctx, notify.Event{
		Type:       notify.TypeJobAssigned,
		SenderID:   subject.ID,
		Recipients: []string{staffID},
		Message:    fmt.Sprintf("You have been assigned job %q at %s.", job.Title, orUnset(job.Location)),
		RelatedID:  job.ID,
	})
	if s.search != nil {
		s.search.IndexJob(jobRecord(job))
	}
	return job, nil
}

// UpdateJobStatus advances a job one step along
// assigned -> in_progress -> completed -> closed. Staff may only move
// their own jobs.
func (s *Service) UpdateJobStatus(ctx context.Context, subject identity.Subject, id string, input UpdateJobStatusInput) (repo.JobService, error) {
	if err := requireRole(subject); err != nil {
		return repo.JobService{}, err
	}
	if !rbac.Can(subject.Role, rbac.ActionUpdateJobStatus) {
		return repo.JobService{}, errForbidden()
	}

	job, err := s.repo.GetJobService(ctx, id)
	if err != nil {
		return repo.JobService{}, storeError(err, "job service not found")
	}
	if subject.Role == rbac.RoleStaff && job.AssignedTo != subject.ID {
		return repo.JobService{}, errForbidden()
	}

	if jobTransitions[job.Status] != input.Status {
		return repo.JobService{}, errInvalidTransition(job.Status, input.Status)
	}

	now := repo.Now()
	input.Notes = strings.TrimSpace(input.Notes)
	patch := map[string]any{"status": input.Status, "updated_at": now}
	switch input.Status {
	case repo.JobInProgress:
		patch["started_at"] = now
	case repo.JobCompleted:
		patch["completed_at"] = now
		if input.Notes != "" {
			patch["completion_notes"] = input.Notes
		}
		if input.ActualHours > 0 {
			patch["actual_hours"] = input.ActualHours
		}
		if input.MaterialsUsed != nil {
			patch["materials_used"] = input.MaterialsUsed
		}
	}
	// Notes on any other transition land in the append-only staff log;
	// completion notes are their own field.
	if input.Notes != "" && input.Status != repo.JobCompleted {
		patch["staff_notes"] = append(job.StaffNotes, repo.NoteEntry{
			At:     now,
			Author: subject.DisplayName,
			Text:   input.Notes,
		})
	}

	previous := job.Status
	guards := []docstore.Predicate{{Field: "status", Op: docstore.OpEq, Value: previous}}
	if _, appending := patch["staff_notes"]; appending {
		// The log is append-only: a concurrent append conflicts instead
		// of being overwritten.
		guards = append(guards, docstore.Predicate{Field: "staff_notes", Op: docstore.OpEq, Value: job.StaffNotes})
	}
	err = s.repo.UpdateJobServiceWhere(ctx, id, guards, patch)
	if err != nil {
		return repo.JobService{}, guardConflict(err, "job status changed concurrently", "job service not found")
	}

	job, err = s.repo.GetJobService(ctx, id)
	if err != nil {
		return repo.JobService{}, storeError(err, "job service not found")
	}

	s.recordTransition(ctx, repo.JobServices, job.ID, previous, job.Status, subject, input.Notes, job)
	s.notifyJobUpdate(ctx, subject, job)
	if s.search != nil {
		s.search.IndexJob(jobRecord(job))
	}
	return job, nil
}

// AddStaffNote appends one note to the job's running log. Notes are
// append-only records; formatting happens at the HTTP boundary.
func (s *Service) AddStaffNote(ctx context.Context, subject identity.Subject, id, text string) (repo.JobService, error) {
	if err := requireRole(subject); err != nil {
		return repo.JobService{}, err
	}
	if !rbac.Can(subject.Role, rbac.ActionUpdateJobStatus) {
		return repo.JobService{}, errForbidden()
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return repo.JobService{}, errValidation("note text is required")
	}

	job, err := s.repo.GetJobService(ctx, id)
	if err != nil {
		return repo.JobService{}, storeError(err, "job service not found")
	}
	if subject.Role == rbac.RoleStaff && job.AssignedTo != subject.ID {
		return repo.JobService{}, errForbidden()
	}
	if job.Status == repo.JobClosed {
		return repo.JobService{}, errInvalidState("job is closed")
	}

	notes := append(job.StaffNotes, repo.NoteEntry{
		At:     repo.Now(),
		Author: subject.DisplayName,
		Text:   text,
	})
	// The notes guard keeps the log append-only: two concurrent appends
	// resolve to one winner and the loser retries, never a lost entry.
	err = s.repo.UpdateJobServiceWhere(ctx, id,
		[]docstore.Predicate{
			{Field: "status", Op: docstore.OpEq, Value: job.Status},
			{Field: "staff_notes", Op: docstore.OpEq, Value: job.StaffNotes},
		},
		map[string]any{"staff_notes": notes, "updated_at": repo.Now()})
	if err != nil {
		return repo.JobService{}, guardConflict(err, "job changed concurrently, retry the note", "job service not found")
	}

	job.StaffNotes = notes
	return job, nil
}

// GetJobService loads one job. Staff see their assignments, tenants
// the jobs spawned by their own concerns.
func (s *Service) GetJobService(ctx context.Context, subject identity.Subject, id string) (repo.JobService, error) {
	if err := requireRole(subject); err != nil {
		return repo.JobService{}, err
	}
	if !rbac.Can(subject.Role, rbac.ActionReadJobService) {
		return repo.JobService{}, errForbidden()
	}

	job, err := s.repo.GetJobService(ctx, id)
	if err != nil {
		return repo.JobService{}, storeError(err, "job service not found")
	}
	if err := s.checkJobVisibility(ctx, subject, job); err != nil {
		return repo.JobService{}, err
	}
	return job, nil
}

// ListJobServices returns the jobs visible to the subject.
func (s *Service) ListJobServices(ctx context.Context, subject identity.Subject, status string) ([]repo.JobService, error) {
	if err := requireRole(subject); err != nil {
		return nil, err
	}

	var predicates []docstore.Predicate
	switch subject.Role {
	case rbac.RoleAdmin:
		// unrestricted
	case rbac.RoleStaff:
		predicates = append(predicates, docstore.Predicate{Field: "assigned_to", Op: docstore.OpEq, Value: subject.ID})
	default:
		return nil, errForbidden()
	}
	if status != "" {
		predicates = append(predicates, docstore.Predicate{Field: "status", Op: docstore.OpEq, Value: status})
	}

	jobs, err := s.repo.QueryJobServices(ctx, predicates, docstore.Options{OrderBy: "created_at", Descending: true})
	if err != nil {
		return nil, errDependency(err)
	}
	return jobs, nil
}

// JobHistory returns the recorded transitions for a job.
func (s *Service) JobHistory(ctx context.Context, subject identity.Subject, id string) ([]repo.StatusHistory, error) {
	if _, err := s.GetJobService(ctx, subject, id); err != nil {
		return nil, err
	}
	history, err := s.repo.QueryStatusHistory(ctx, repo.JobServices, id)
	if err != nil {
		return nil, errDependency(err)
	}
	return history, nil
}

func (s *Service) checkJobVisibility(ctx context.Context, subject identity.Subject, job repo.JobService) error {
	switch subject.Role {
	case rbac.RoleAdmin:
		return nil
	case rbac.RoleStaff:
		if job.AssignedTo == subject.ID {
			return nil
		}
	case rbac.RoleTenant:
		concern, err := s.repo.GetConcern(ctx, job.ConcernSlipID)
		if err == nil && concern.ReportedBy == subject.ID {
			return nil
		}
	}
	return errForbidden()
}

func (s *Service) notifyJobUpdate(ctx context.Context, actor identity.Subject, job repo.JobService) {
	recipients := []string{job.AssignedTo}
	if concern, err := s.repo.GetConcern(ctx, job.ConcernSlipID); err == nil {
		recipients = append(recipients, concern.ReportedBy)
	}
	filtered := recipients[:0]
	for _, id := range recipients {
		if id != "" && id != actor.ID {
			filtered = append(filtered, id)
		}
	}
	s.notifier.Dispatch(ctx, notify.Event{
		Type:       notify.TypeJobUpdate,
		SenderID:   actor.ID,
		Recipients: filtered,
		Message:    fmt.Sprintf("Job %q is now %s.", job.Title, job.Status),
		RelatedID:  job.ID,
	})
}

func (s *Service) releaseResolutionClaim(ctx context.Context, concernID, resolutionID string) {
	err := s.repo.UpdateConcernWhere(ctx, concernID,
		[]docstore.Predicate{{Field: "resolution_id", Op: docstore.OpEq, Value: resolutionID}},
		map[string]any{"resolution_id": "", "updated_at": repo.Now()})
	if err != nil {
		log.Printf("app: release resolution claim on %s: %v", concernID, err)
	}
}

func jobRecord(job repo.JobService) search.JobRecord {
	return search.JobRecord{
		ID:          job.ID,
		Title:       job.Title,
		Description: job.Description,
		Location:    job.Location,
		AssignedTo:  job.AssignedTo,
		Status:      job.Status,
	}
}
