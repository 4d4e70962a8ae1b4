package auth

import "testing"

func TestLoadPolicy(t *testing.T) {
	p, err := LoadPolicy()
	if err != nil {
		t.Fatalf("embedded policy failed to load: %v", err)
	}

	if !p.Allows(RoleAdmin, ActionDistrictDelete) {
		t.Error("admin wildcard should grant every action")
	}
	if !p.Allows(RoleAdmin, Action("made.up")) {
		t.Error("admin wildcard should grant unknown actions too")
	}
}

func TestPolicyGrants(t *testing.T) {
	p := MustLoadPolicy()

	cases := []struct {
		role   Role
		action Action
		want   bool
	}{
		{RoleHealthOfficial, ActionReportReview, true},
		{RoleHealthOfficial, ActionDistrictCreate, false},
		{RoleHealthOfficial, ActionStaffAssign, true},
		{RoleBlockOfficer, ActionReportEscalate, true},
		{RoleBlockOfficer, ActionBlockCreate, false},
		{RoleBlockOfficer, ActionStaffRemove, false},
		{RoleASHAWorker, ActionReportCreate, true},
		{RoleASHAWorker, ActionReportReview, false},
		{RoleVolunteer, ActionReportUpdate, false},
		{RoleVolunteer, ActionReportSubmit, true},
		{RoleUser, ActionReportCreate, true},
		{RoleUser, ActionReportReview, false},
		{RoleUser, ActionAuditRead, false},
		{Role("unknown"), ActionReportRead, false},
	}

	for _, tt := range cases {
		t.Run(string(tt.role)+"/"+string(tt.action), func(t *testing.T) {
			if got := p.Allows(tt.role, tt.action); got != tt.want {
				t.Errorf("Allows(%s, %s) = %v, want %v", tt.role, tt.action, got, tt.want)
			}
		})
	}
}
