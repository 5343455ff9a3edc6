package capability

import "testing"

func TestNewRole(t *testing.T) {
	t.Run("privileged_allows_everything", func(t *testing.T) {
		r, err := NewRole(RolePrivileged, "local")
		if err != nil {
			t.Fatalf("NewRole: %v", err)
		}
		for _, s := range All {
			if !r.Allows(s) {
				t.Errorf("privileged role should allow %s", s)
			}
		}
		if r.DraftOnly() {
			t.Error("privileged role must not be draft-only")
		}
	})

	t.Run("restricted_never_allows_send_actions", func(t *testing.T) {
		r, err := NewRole(RoleRestricted, "cloud")
		if err != nil {
			t.Fatalf("NewRole: %v", err)
		}
		for s := range SendActions {
			if r.Allows(s) {
				t.Errorf("restricted role must not allow send action %s", s)
			}
		}
		if !r.Allows(SkillRequestApproval) {
			t.Error("restricted role must allow request_approval")
		}
		if !r.Allows(SkillWritePlan) {
			t.Error("restricted role must allow write_plan")
		}
		if !r.DraftOnly() {
			t.Error("restricted role must be draft-only")
		}
	})

	t.Run("unknown_skill_rejected_at_construction", func(t *testing.T) {
		if _, err := NewRole(RoleRestricted, "cloud", Skill("launch_rocket")); err == nil {
			t.Fatal("expected error for unknown skill grant")
		}
	})

	t.Run("unknown_kind_rejected", func(t *testing.T) {
		if _, err := NewRole(RoleKind("admin"), "x"); err == nil {
			t.Fatal("expected error for unknown role kind")
		}
	})

	t.Run("empty_id_rejected", func(t *testing.T) {
		if _, err := NewRole(RolePrivileged, ""); err == nil {
			t.Fatal("expected error for empty role id")
		}
	})
}

func TestIsSendAction(t *testing.T) {
	if !IsSendAction(SkillPostPayment) {
		t.Error("post_payment is a send action")
	}
	if IsSendAction(SkillListContacts) {
		t.Error("list_contacts is not a send action")
	}
}
