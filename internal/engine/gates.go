package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/basket/deskhand/internal/capability"
)

// GateAction tells the turn loop what to do with a pending invocation.
type GateAction int

const (
	// GateProceed executes the invocation as requested.
	GateProceed GateAction = iota
	// GateSubstitute files an approval request instead of executing.
	GateSubstitute
	// GateReject refuses the invocation outright; the refusal is fed
	// back to the model as an error tool result.
	GateReject
)

// GateDecision is the outcome of checking one invocation. When Action
// is GateSubstitute, Substitute holds the ready-to-dispatch
// request_approval input.
type GateDecision struct {
	Action     GateAction
	Reason     string
	Substitute json.RawMessage
}

// Gate holds the pre-execution safety checks: the payment ceiling and
// the restricted role's send-action interception.
type Gate struct {
	role      capability.Role
	threshold float64
}

func NewGate(role capability.Role, paymentThreshold float64) *Gate {
	return &Gate{role: role, threshold: paymentThreshold}
}

// Check inspects an invocation before execution. taskName scopes the
// approval artifacts a substitution produces.
func (g *Gate) Check(taskName string, call ToolCall) GateDecision {
	if call.Name == capability.SkillPostPayment {
		if dec, gated := g.checkPayment(taskName, call); gated {
			return dec
		}
	}
	if g.role.DraftOnly() && capability.IsSendAction(call.Name) {
		return g.substituteDraft(taskName, call)
	}
	return GateDecision{Action: GateProceed}
}

func (g *Gate) checkPayment(taskName string, call ToolCall) (GateDecision, bool) {
	var in struct {
		InvoiceID json.Number `json:"invoice_id"`
		Amount    json.Number `json:"amount"`
	}
	dec := json.NewDecoder(strings.NewReader(string(call.Input)))
	dec.UseNumber()
	if err := dec.Decode(&in); err != nil {
		return GateDecision{
			Action: GateReject,
			Reason: fmt.Sprintf("payment input is not parseable: %v", err),
		}, true
	}
	amount, err := in.Amount.Float64()
	if err != nil {
		// Fail closed: a payment whose amount cannot be read is never
		// executed.
		return GateDecision{
			Action: GateReject,
			Reason: fmt.Sprintf("payment amount %q is not a number", in.Amount),
		}, true
	}
	if amount <= g.threshold {
		return GateDecision{}, false
	}

	stem := strings.TrimSuffix(taskName, ".md")
	details := fmt.Sprintf(
		"Payment of $%.2f requested for invoice %s.\nOriginal task: %s\n\n"+
			"This exceeds the $%.2f autonomous limit. Please review and approve or reject.",
		amount, in.InvoiceID.String(), taskName, g.threshold)
	sub, _ := json.Marshal(map[string]string{
		"name":    "PAYMENT_APPROVAL_" + stem,
		"details": details,
		"task":    taskName,
	})
	return GateDecision{
		Action:     GateSubstitute,
		Reason:     fmt.Sprintf("payment of $%.2f exceeds the $%.2f limit", amount, g.threshold),
		Substitute: sub,
	}, true
}

func (g *Gate) substituteDraft(taskName string, call ToolCall) GateDecision {
	stem := strings.TrimSuffix(taskName, ".md")
	sub, _ := json.Marshal(map[string]string{
		"name":    stem + "_" + string(call.Name),
		"details": "Restricted role drafted this action for privileged execution.",
		"tool":    string(call.Name),
		"input":   string(call.Input),
		"task":    taskName,
	})
	return GateDecision{
		Action:     GateSubstitute,
		Reason:     fmt.Sprintf("%s is a send action; restricted role is draft-only", call.Name),
		Substitute: sub,
	}
}
