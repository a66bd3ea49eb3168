// Package repo provides typed load/save for the workflow entities on
// top of the document store. Wire field names follow the collection
// schema: snake_case, timestamps as UTC RFC3339.
package repo

import "time"

// Concern statuses.
const (
	ConcernPending  = "pending"
	ConcernApproved = "approved"
	ConcernRejected = "rejected"
)

// Resolution types chosen at evaluation.
const (
	ResolutionJobService = "job_service"
	ResolutionWorkPermit = "work_permit"
)

// JobService statuses, in transition order.
const (
	JobAssigned   = "assigned"
	JobInProgress = "in_progress"
	JobCompleted  = "completed"
	JobClosed     = "closed"
)

// WorkPermit statuses.
const (
	PermitPending   = "pending"
	PermitApproved  = "approved"
	PermitDenied    = "denied"
	PermitCompleted = "completed"
)

// NoteEntry is one append-only staff note. Rendering to the
// "[timestamp] author: text" display form happens at the HTTP
// boundary, never in storage.
type NoteEntry struct {
	At     time.Time `json:"at"`
	Author string    `json:"author"`
	Text   string    `json:"text"`
}

// Concern is a tenant-reported issue, the root of the workflow.
// ResolutionID is the downstream claim: empty until exactly one
// JobService or WorkPermit has been created for this concern.
type Concern struct {
	ID                string     `json:"id"`
	ReportedBy        string     `json:"reported_by"`
	UnitID            string     `json:"unit_id,omitempty"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	Location          string     `json:"location"`
	Category          string     `json:"category"`
	Priority          string     `json:"priority"`
	Status            string     `json:"status"`
	UrgencyAssessment string     `json:"urgency_assessment,omitempty"`
	ResolutionType    string     `json:"resolution_type,omitempty"`
	ResolutionID      string     `json:"resolution_id"`
	Attachments       []string   `json:"attachments"`
	AdminNotes        string     `json:"admin_notes,omitempty"`
	EvaluatedBy       string     `json:"evaluated_by,omitempty"`
	EvaluatedAt       *time.Time `json:"evaluated_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// JobService is an internal-staff work item derived from an approved
// concern.
type JobService struct {
	ID              string      `json:"id"`
	ConcernSlipID   string      `json:"concern_slip_id"`
	CreatedBy       string      `json:"created_by"`
	AssignedTo      string      `json:"assigned_to,omitempty"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	Location        string      `json:"location"`
	Category        string      `json:"category"`
	Priority        string      `json:"priority"`
	Status          string      `json:"status"`
	ScheduledDate   *time.Time  `json:"scheduled_date,omitempty"`
	StartedAt       *time.Time  `json:"started_at,omitempty"`
	CompletedAt     *time.Time  `json:"completed_at,omitempty"`
	EstimatedHours  float64     `json:"estimated_hours,omitempty"`
	ActualHours     float64     `json:"actual_hours,omitempty"`
	MaterialsUsed   []string    `json:"materials_used"`
	StaffNotes      []NoteEntry `json:"staff_notes"`
	CompletionNotes string      `json:"completion_notes,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// WorkPermit authorizes an external contractor for an approved
// concern.
type WorkPermit struct {
	ID                   string     `json:"id"`
	ConcernSlipID        string     `json:"concern_slip_id"`
	RequestedBy          string     `json:"requested_by"`
	UnitID               string     `json:"unit_id"`
	ContractorName       string     `json:"contractor_name"`
	ContractorContact    string     `json:"contractor_contact"`
	ContractorCompany    string     `json:"contractor_company,omitempty"`
	WorkDescription      string     `json:"work_description"`
	ProposedStartDate    *time.Time `json:"proposed_start_date"`
	EstimatedDuration    string     `json:"estimated_duration"`
	SpecificInstructions string     `json:"specific_instructions"`
	EntryRequirements    string     `json:"entry_requirements,omitempty"`
	Status               string     `json:"status"`
	ApprovedBy           string     `json:"approved_by,omitempty"`
	ApprovalDate         *time.Time `json:"approval_date,omitempty"`
	DenialReason         string     `json:"denial_reason,omitempty"`
	PermitConditions     string     `json:"permit_conditions,omitempty"`
	ActualStartDate      *time.Time `json:"actual_start_date,omitempty"`
	ActualCompletionDate *time.Time `json:"actual_completion_date,omitempty"`
	AdminNotes           string     `json:"admin_notes,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// Notification is a one-way, fire-and-forget message to a subject.
type Notification struct {
	ID               string    `json:"id"`
	RecipientID      string    `json:"recipient_id"`
	SenderID         string    `json:"sender_id,omitempty"`
	Title            string    `json:"title"`
	Message          string    `json:"message"`
	NotificationType string    `json:"notification_type"`
	RelatedID        string    `json:"related_id,omitempty"`
	IsRead           bool      `json:"is_read"`
	CreatedAt        time.Time `json:"created_at"`
}

// StatusHistory records one workflow transition for audit.
type StatusHistory struct {
	ID             string    `json:"id"`
	EntityType     string    `json:"entity_type"`
	EntityID       string    `json:"entity_id"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	NewStatus      string    `json:"new_status"`
	UpdatedBy      string    `json:"updated_by"`
	Remarks        string    `json:"remarks,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Feedback is the tenant's rating of a completed resolution. At most
// one per concern, submitted by the original reporter.
type Feedback struct {
	ID             string    `json:"id"`
	ConcernSlipID  string    `json:"concern_slip_id"`
	ServiceID      string    `json:"service_id,omitempty"`
	ServiceType    string    `json:"service_type"`
	SubmittedBy    string    `json:"submitted_by"`
	Rating         int       `json:"rating"`
	Comments       string    `json:"comments,omitempty"`
	ServiceQuality int       `json:"service_quality,omitempty"`
	Timeliness     int       `json:"timeliness,omitempty"`
	Communication  int       `json:"communication,omitempty"`
	WouldRecommend *bool     `json:"would_recommend,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// User is an identity-provider account record.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash,omitempty"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	PhoneNumber  string    `json:"phone_number,omitempty"`
	Department   string    `json:"department,omitempty"`
	Role         string    `json:"role"`
	Status       string    `json:"status"`
	BuildingID   string    `json:"building_id,omitempty"`
	UnitID       string    `json:"unit_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DisplayName renders the user's full name for notifications and
// note attribution.
func (u User) DisplayName() string {
	switch {
	case u.FirstName == "" && u.LastName == "":
		return u.Email
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// Now returns the current UTC time truncated to whole seconds, so the
// stored RFC3339 form orders lexicographically.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
