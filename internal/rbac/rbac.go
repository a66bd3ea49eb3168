// Package rbac is the role authorization gate: a fixed role × action
// policy table with deny-by-default semantics. Ownership and
// assignment checks that need entity state live next to the policy so
// every access decision is made in one place.
package rbac

type Role string
type Action string

const (
	RoleTenant Role = "tenant"
	RoleStaff  Role = "staff"
	RoleAdmin  Role = "admin"
)

const (
	ActionSubmitConcern   Action = "concern.submit"
	ActionEvaluateConcern Action = "concern.evaluate"
	ActionReadConcern     Action = "concern.read"
	ActionListConcerns    Action = "concern.list_all"

	ActionCreateJobService Action = "job.create"
	ActionAssignJobService Action = "job.assign"
	ActionUpdateJobStatus  Action = "job.update_status"
	ActionReadJobService   Action = "job.read"
	ActionListJobServices  Action = "job.list_all"

	ActionCreateWorkPermit Action = "permit.create"
	ActionDecideWorkPermit Action = "permit.decide"
	ActionStartPermitWork  Action = "permit.start_work"
	ActionUpdatePermit     Action = "permit.update_status"
	ActionReadWorkPermit   Action = "permit.read"
	ActionListWorkPermits  Action = "permit.list_all"

	ActionSubmitFeedback    Action = "feedback.submit"
	ActionReadFeedback      Action = "feedback.read"
	ActionReadNotifications Action = "notification.read"
	ActionManageUsers       Action = "user.manage"
	ActionSearch            Action = "search"
)

// Can reports whether a role may perform an action at all. Ownership
// and assignment restrictions are layered on top via OwnRecord and are
// checked by the workflow engine. Unknown roles and unlisted actions
// are denied.
func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		// Admins may do everything except act as a tenant: submitting
		// a concern or requesting a permit is always the tenant's own.
		return action != ActionSubmitConcern && action != ActionCreateWorkPermit && action != ActionSubmitFeedback
	case RoleStaff:
		switch action {
		case ActionReadJobService, ActionUpdateJobStatus, ActionReadNotifications:
			return true
		}
		return false
	case RoleTenant:
		switch action {
		case ActionSubmitConcern, ActionReadConcern,
			ActionCreateWorkPermit, ActionReadWorkPermit, ActionStartPermitWork,
			ActionReadJobService,
			ActionSubmitFeedback, ActionReadFeedback,
			ActionReadNotifications:
			return true
		}
		return false
	default:
		return false
	}
}

// OwnRecord reports whether an actor may touch a record owned by
// ownerID. Admins see everything; everyone else only their own.
func OwnRecord(role Role, actorID, ownerID string) bool {
	if role == RoleAdmin {
		return true
	}
	return actorID != "" && actorID == ownerID
}

// Normalize validates a stored role string. Unknown roles map to an
// empty Role, which Can denies.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleTenant, RoleStaff, RoleAdmin:
		return Role(role)
	default:
		return ""
	}
}
