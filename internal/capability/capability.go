// Package capability defines the typed skill enumeration and the
// role→capability mapping. Roles and their allowed skills are resolved
// once at startup; a role referencing an unknown skill is a construction
// error, not a runtime surprise.
package capability

import (
	"fmt"
	"sort"
)

// Skill identifies one external or vault-local capability.
type Skill string

const (
	SkillSendEmail           Skill = "send_email"
	SkillReplyEmail          Skill = "reply_email"
	SkillLabelEmail          Skill = "label_email"
	SkillPostLinkedIn        Skill = "post_linkedin"
	SkillPostFacebook        Skill = "post_facebook"
	SkillPostInstagram       Skill = "post_instagram"
	SkillPostTwitter         Skill = "post_twitter"
	SkillCreateInvoice       Skill = "create_invoice"
	SkillListContacts        Skill = "list_contacts"
	SkillAccountingReport    Skill = "get_accounting_report"
	SkillPostPayment         Skill = "post_payment"
	SkillWritePlan           Skill = "write_plan"
	SkillRequestApproval     Skill = "request_approval"
)

// All is the closed set of known skills.
var All = []Skill{
	SkillSendEmail, SkillReplyEmail, SkillLabelEmail,
	SkillPostLinkedIn, SkillPostFacebook, SkillPostInstagram, SkillPostTwitter,
	SkillCreateInvoice, SkillListContacts, SkillAccountingReport, SkillPostPayment,
	SkillWritePlan, SkillRequestApproval,
}

var known = func() map[Skill]struct{} {
	m := make(map[Skill]struct{}, len(All))
	for _, s := range All {
		m[s] = struct{}{}
	}
	return m
}()

// Known reports whether s names a skill this build understands.
func Known(s Skill) bool {
	_, ok := known[s]
	return ok
}

// SendActions are skills that act on the outside world. A restricted role
// must never invoke these directly; they are routed through an approval
// handoff instead.
var SendActions = map[Skill]struct{}{
	SkillSendEmail:     {},
	SkillReplyEmail:    {},
	SkillPostLinkedIn:  {},
	SkillPostFacebook:  {},
	SkillPostInstagram: {},
	SkillPostTwitter:   {},
	SkillPostPayment:   {},
	SkillCreateInvoice: {},
}

// IsSendAction reports whether s directly acts on the outside world.
func IsSendAction(s Skill) bool {
	_, ok := SendActions[s]
	return ok
}

// RoleKind is the fixed authority level of a running process.
type RoleKind string

const (
	// RolePrivileged may invoke every skill directly.
	RolePrivileged RoleKind = "privileged"
	// RoleRestricted may only read, plan and request approvals.
	RoleRestricted RoleKind = "restricted"
)

// restrictedSkills is the capability set of the restricted role:
// read + draft + plan, never send.
var restrictedSkills = []Skill{
	SkillWritePlan,
	SkillRequestApproval,
	SkillLabelEmail,
	SkillAccountingReport,
	SkillListContacts,
}

// Role is the immutable identity of a running agent process.
type Role struct {
	Kind    RoleKind
	ID      string
	allowed map[Skill]struct{}
}

// NewRole resolves the capability set for the given kind. Extra skills may
// be granted on top of the kind's base set; referencing an unknown skill
// is an error.
func NewRole(kind RoleKind, id string, extra ...Skill) (Role, error) {
	if id == "" {
		return Role{}, fmt.Errorf("role id must be non-empty")
	}
	allowed := make(map[Skill]struct{})
	switch kind {
	case RolePrivileged:
		for _, s := range All {
			allowed[s] = struct{}{}
		}
	case RoleRestricted:
		for _, s := range restrictedSkills {
			allowed[s] = struct{}{}
		}
	default:
		return Role{}, fmt.Errorf("unknown role kind %q", kind)
	}
	for _, s := range extra {
		if !Known(s) {
			return Role{}, fmt.Errorf("role %s references unknown skill %q", id, s)
		}
		allowed[s] = struct{}{}
	}
	return Role{Kind: kind, ID: id, allowed: allowed}, nil
}

// Allows reports whether the role may invoke s directly.
func (r Role) Allows(s Skill) bool {
	_, ok := r.allowed[s]
	return ok
}

// DraftOnly reports whether send actions must be intercepted for this role.
func (r Role) DraftOnly() bool {
	return r.Kind == RoleRestricted
}

// Allowed returns the role's capability set in stable order.
func (r Role) Allowed() []Skill {
	out := make([]Skill, 0, len(r.allowed))
	for s := range r.allowed {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
