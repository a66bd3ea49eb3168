package rbac

import "testing"

func TestCanDeniesByDefault(t *testing.T) {
	if Can(Role("contractor"), ActionReadConcern) {
		t.Error("unknown role must be denied")
	}
	if Can("", ActionReadConcern) {
		t.Error("empty role must be denied")
	}
	if Can(RoleTenant, Action("made.up")) {
		t.Error("unlisted action must be denied")
	}
}

func TestTenantPolicy(t *testing.T) {
	allowed := []Action{
		ActionSubmitConcern, ActionReadConcern, ActionCreateWorkPermit,
		ActionReadWorkPermit, ActionStartPermitWork, ActionSubmitFeedback,
		ActionReadNotifications,
	}
	for _, action := range allowed {
		if !Can(RoleTenant, action) {
			t.Errorf("tenant should be allowed %s", action)
		}
	}

	denied := []Action{
		ActionEvaluateConcern, ActionListConcerns, ActionCreateJobService,
		ActionAssignJobService, ActionUpdateJobStatus, ActionDecideWorkPermit,
		ActionManageUsers, ActionSearch,
	}
	for _, action := range denied {
		if Can(RoleTenant, action) {
			t.Errorf("tenant must be denied %s", action)
		}
	}
}

func TestStaffPolicy(t *testing.T) {
	for _, action := range []Action{ActionReadJobService, ActionUpdateJobStatus, ActionReadNotifications} {
		if !Can(RoleStaff, action) {
			t.Errorf("staff should be allowed %s", action)
		}
	}
	for _, action := range []Action{
		ActionSubmitConcern, ActionEvaluateConcern, ActionCreateJobService,
		ActionAssignJobService, ActionCreateWorkPermit, ActionDecideWorkPermit,
		ActionManageUsers,
	} {
		if Can(RoleStaff, action) {
			t.Errorf("staff must be denied %s", action)
		}
	}
}

func TestAdminPolicy(t *testing.T) {
	for _, action := range []Action{
		ActionEvaluateConcern, ActionListConcerns, ActionCreateJobService,
		ActionAssignJobService, ActionUpdateJobStatus, ActionDecideWorkPermit,
		ActionUpdatePermit, ActionManageUsers, ActionSearch, ActionReadFeedback,
	} {
		if !Can(RoleAdmin, action) {
			t.Errorf("admin should be allowed %s", action)
		}
	}

	// Admins never act as the reporting tenant.
	if Can(RoleAdmin, ActionSubmitConcern) {
		t.Error("admin must not submit concerns")
	}
	if Can(RoleAdmin, ActionCreateWorkPermit) {
		t.Error("admin must not request work permits")
	}
}

func TestOwnRecord(t *testing.T) {
	if !OwnRecord(RoleAdmin, "adm_1", "usr_2") {
		t.Error("admin may access any record")
	}
	if !OwnRecord(RoleTenant, "usr_1", "usr_1") {
		t.Error("owner may access own record")
	}
	if OwnRecord(RoleTenant, "usr_1", "usr_2") {
		t.Error("tenant must not access another tenant's record")
	}
	if OwnRecord(RoleTenant, "", "") {
		t.Error("empty actor id must be denied")
	}
}

func TestNormalize(t *testing.T) {
	if Normalize("admin") != RoleAdmin {
		t.Error("admin should normalize")
	}
	if Normalize("superuser") != "" {
		t.Error("unknown role should normalize to empty")
	}
}
