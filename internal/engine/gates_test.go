package engine

import (
	"encoding/json"
	"testing"

	"github.com/basket/deskhand/internal/capability"
)

func TestGateCheck(t *testing.T) {
	privileged, _ := capability.NewRole(capability.RolePrivileged, "local")
	restricted, _ := capability.NewRole(capability.RoleRestricted, "cloud")

	t.Run("payment_over_threshold_substitutes", func(t *testing.T) {
		g := NewGate(privileged, 500)
		dec := g.Check("T1.md", call(capability.SkillPostPayment, `{"invoice_id":9,"amount":750.50}`))
		if dec.Action != GateSubstitute {
			t.Fatalf("action = %v", dec.Action)
		}
		var sub struct {
			Name    string `json:"name"`
			Details string `json:"details"`
		}
		if err := json.Unmarshal(dec.Substitute, &sub); err != nil {
			t.Fatal(err)
		}
		if sub.Name != "PAYMENT_APPROVAL_T1" {
			t.Errorf("substitute name = %q", sub.Name)
		}
	})

	t.Run("payment_under_threshold_proceeds", func(t *testing.T) {
		g := NewGate(privileged, 500)
		dec := g.Check("T1.md", call(capability.SkillPostPayment, `{"invoice_id":9,"amount":120}`))
		if dec.Action != GateProceed {
			t.Fatalf("action = %v", dec.Action)
		}
	})

	t.Run("unparseable_amount_fails_closed", func(t *testing.T) {
		g := NewGate(privileged, 500)
		dec := g.Check("T1.md", call(capability.SkillPostPayment, `{"invoice_id":9,"amount":"lots"}`))
		if dec.Action != GateReject {
			t.Fatalf("action = %v", dec.Action)
		}
	})

	t.Run("restricted_send_action_substitutes_with_embedded_tool", func(t *testing.T) {
		g := NewGate(restricted, 500)
		dec := g.Check("T2.md", call(capability.SkillPostLinkedIn, `{"text":"hi"}`))
		if dec.Action != GateSubstitute {
			t.Fatalf("action = %v", dec.Action)
		}
		var sub struct {
			Tool  string `json:"tool"`
			Input string `json:"input"`
		}
		if err := json.Unmarshal(dec.Substitute, &sub); err != nil {
			t.Fatal(err)
		}
		if sub.Tool != "post_linkedin" || sub.Input != `{"text":"hi"}` {
			t.Errorf("substitute = %+v", sub)
		}
	})

	t.Run("restricted_plain_skill_proceeds", func(t *testing.T) {
		g := NewGate(restricted, 500)
		dec := g.Check("T2.md", call(capability.SkillListContacts, `{"query":"x"}`))
		if dec.Action != GateProceed {
			t.Fatalf("action = %v", dec.Action)
		}
	})
}
