// Package skills provides the uniform invocation surface over external
// capabilities. The dispatcher enforces the role-capability filter as a
// second, independent safety net: even a caller that bypasses the
// reasoning loop's gates cannot execute a skill outside the role's set.
package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/basket/deskhand/internal/approval"
	"github.com/basket/deskhand/internal/audit"
	"github.com/basket/deskhand/internal/bus"
	"github.com/basket/deskhand/internal/capability"
	"github.com/basket/deskhand/internal/vault"
)

// Result is the uniform outcome of a skill invocation.
type Result struct {
	OK     bool   `json:"ok"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Success wraps a result string.
func Success(msg string) Result {
	return Result{OK: true, Result: msg}
}

// Failure wraps an error message.
func Failure(format string, args ...any) Result {
	return Result{OK: false, Error: fmt.Sprintf(format, args...)}
}

// Dispatcher routes skill invocations to connectors and vault builtins.
type Dispatcher struct {
	role    capability.Role
	catalog *Catalog
	store   *vault.Store
	log     *audit.Log
	logger  *slog.Logger
	bus     *bus.Bus

	mail   Mailer
	social SocialPoster
	ledger Ledger
}

// Config wires a Dispatcher. Connectors may be nil; their skills then
// fail with a configuration error instead of panicking.
type Config struct {
	Role    capability.Role
	Catalog *Catalog
	Store   *vault.Store
	Audit   *audit.Log
	Logger  *slog.Logger
	Bus     *bus.Bus

	Mail   Mailer
	Social SocialPoster
	Ledger Ledger
}

// New creates a Dispatcher.
func New(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		role:    cfg.Role,
		catalog: cfg.Catalog,
		store:   cfg.Store,
		log:     cfg.Audit,
		logger:  logger,
		bus:     cfg.Bus,
		mail:    cfg.Mail,
		social:  cfg.Social,
		ledger:  cfg.Ledger,
	}
}

// Catalog returns the schema catalog backing this dispatcher.
func (d *Dispatcher) Catalog() *Catalog {
	return d.catalog
}

// Role returns the dispatcher's role.
func (d *Dispatcher) Role() capability.Role {
	return d.role
}

// Invoke executes one skill invocation and audits it regardless of
// outcome. task and turn only label the audit record.
func (d *Dispatcher) Invoke(ctx context.Context, task string, skill capability.Skill, input json.RawMessage, turn int) Result {
	res := d.invoke(ctx, task, skill, input)
	d.audit(task, string(skill), input, res, turn)
	return res
}

func (d *Dispatcher) invoke(ctx context.Context, task string, skill capability.Skill, input json.RawMessage) Result {
	if !capability.Known(skill) {
		return Failure("unknown skill: %s", skill)
	}
	if !d.role.Allows(skill) {
		d.logger.Warn("capability violation rejected",
			"skill", skill, "role", d.role.ID, "task", task)
		return Failure("skill %q is not permitted for role %s; route it through request_approval", skill, d.role.ID)
	}
	if err := d.catalog.Validate(skill, input); err != nil {
		return Failure("%v", err)
	}

	switch skill {
	case capability.SkillWritePlan:
		return d.writePlan(input)
	case capability.SkillRequestApproval:
		return d.requestApproval(input)
	case capability.SkillSendEmail:
		var in struct {
			To      string `json:"to"`
			Subject string `json:"subject"`
			Body    string `json:"body"`
		}
		if err := json.Unmarshal(input, &in); err != nil {
			return Failure("decode input: %v", err)
		}
		return d.connector(d.mail == nil, "email", func() (string, error) {
			return d.mail.Send(ctx, in.To, in.Subject, in.Body)
		})
	case capability.SkillReplyEmail:
		var in struct {
			MessageID string `json:"message_id"`
			Body      string `json:"body"`
		}
		if err := json.Unmarshal(input, &in); err != nil {
			return Failure("decode input: %v", err)
		}
		return d.connector(d.mail == nil, "email", func() (string, error) {
			return d.mail.Reply(ctx, in.MessageID, in.Body)
		})
	case capability.SkillLabelEmail:
		var in struct {
			MessageID string `json:"message_id"`
			Label     string `json:"label"`
		}
		if err := json.Unmarshal(input, &in); err != nil {
			return Failure("decode input: %v", err)
		}
		return d.connector(d.mail == nil, "email", func() (string, error) {
			return d.mail.Label(ctx, in.MessageID, in.Label)
		})
	case capability.SkillPostLinkedIn, capability.SkillPostFacebook, capability.SkillPostInstagram, capability.SkillPostTwitter:
		return d.postSocial(ctx, skill, input)
	case capability.SkillCreateInvoice:
		var in struct {
			Partner     string  `json:"partner_name"`
			Amount      float64 `json:"amount"`
			Description string  `json:"description"`
		}
		if err := json.Unmarshal(input, &in); err != nil {
			return Failure("decode input: %v", err)
		}
		return d.connector(d.ledger == nil, "ledger", func() (string, error) {
			return d.ledger.CreateInvoice(ctx, in.Partner, in.Amount, in.Description)
		})
	case capability.SkillListContacts:
		var in struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal(input, &in); err != nil {
			return Failure("decode input: %v", err)
		}
		return d.connector(d.ledger == nil, "ledger", func() (string, error) {
			return d.ledger.ListContacts(ctx, in.Query)
		})
	case capability.SkillAccountingReport:
		var in struct {
			Period string `json:"period"`
		}
		if err := json.Unmarshal(input, &in); err != nil {
			return Failure("decode input: %v", err)
		}
		return d.connector(d.ledger == nil, "ledger", func() (string, error) {
			return d.ledger.Report(ctx, in.Period)
		})
	case capability.SkillPostPayment:
		var in struct {
			InvoiceID int     `json:"invoice_id"`
			Amount    float64 `json:"amount"`
		}
		if err := json.Unmarshal(input, &in); err != nil {
			return Failure("decode input: %v", err)
		}
		return d.connector(d.ledger == nil, "ledger", func() (string, error) {
			return d.ledger.PostPayment(ctx, in.InvoiceID, in.Amount)
		})
	}
	return Failure("skill %s has no handler", skill)
}

// connector folds a connector call into a Result, handling the
// not-configured case uniformly.
func (d *Dispatcher) connector(missing bool, name string, call func() (string, error)) Result {
	if missing {
		return Failure("%s connector not configured", name)
	}
	out, err := call()
	if err != nil {
		return Failure("%v", err)
	}
	return Success(out)
}

func (d *Dispatcher) postSocial(ctx context.Context, skill capability.Skill, input json.RawMessage) Result {
	var in struct {
		Text     string `json:"text"`
		ImageURL string `json:"image_url"`
		Caption  string `json:"caption"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return Failure("decode input: %v", err)
	}
	network := strings.TrimPrefix(string(skill), "post_")
	text := in.Text
	if skill == capability.SkillPostInstagram {
		text = in.Caption
	}
	return d.connector(d.social == nil, "social", func() (string, error) {
		return d.social.Post(ctx, network, text, in.ImageURL)
	})
}

// writePlan persists a plan document under Plans/.
func (d *Dispatcher) writePlan(input json.RawMessage) Result {
	var in struct {
		Name    string `json:"name"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return Failure("decode input: %v", err)
	}
	name := in.Name
	if !strings.HasSuffix(name, ".md") {
		name += ".md"
	}
	if err := d.store.Write(vault.DirPlans, name, in.Content); err != nil {
		return Failure("write plan: %v", err)
	}
	return Success(fmt.Sprintf("Plan written to %s/%s", vault.DirPlans, name))
}

// requestApproval files an approval item. With an embedded tool+input it
// becomes a cross-role handoff envelope in ApprovalHandoff; without, a
// plain item in PendingReview for a human.
func (d *Dispatcher) requestApproval(input json.RawMessage) Result {
	var in struct {
		Name    string `json:"name"`
		Details string `json:"details"`
		Tool    string `json:"tool"`
		Input   string `json:"input"`
		Task    string `json:"task"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return Failure("decode input: %v", err)
	}
	name := in.Name
	if !strings.HasSuffix(name, ".md") {
		name += ".md"
	}

	if in.Tool != "" {
		tool := capability.Skill(in.Tool)
		if !capability.Known(tool) {
			return Failure("cannot defer unknown tool %q", in.Tool)
		}
		if !vault.IsApproval(name) {
			name = vault.ApprovalPrefix + name
		}
		origin := in.Task
		if origin == "" {
			origin = in.Name
		}
		content, err := approval.Compose(origin, tool, json.RawMessage(in.Input), in.Details)
		if err != nil {
			return Failure("%v", err)
		}
		if err := d.store.Write(vault.QueueApprovalHandoff, name, content); err != nil {
			return Failure("file handoff: %v", err)
		}
		d.notifyFiled(name, vault.QueueApprovalHandoff)
		return Success(fmt.Sprintf("Approval requested: %s/%s", vault.QueueApprovalHandoff, name))
	}

	content := fmt.Sprintf("---\ntype: approval_request\nstatus: pending\n---\n\n%s\n", in.Details)
	if err := d.store.Write(vault.QueuePendingReview, name, content); err != nil {
		return Failure("file approval: %v", err)
	}
	d.notifyFiled(name, vault.QueuePendingReview)
	return Success(fmt.Sprintf("Approval requested: %s/%s", vault.QueuePendingReview, name))
}

// notifyFiled announces a newly filed approval artifact on the bus.
func (d *Dispatcher) notifyFiled(name, queue string) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(bus.TopicApprovalFiled, bus.TaskEvent{
		Task: name, RoleID: d.role.ID, Queue: queue,
	})
}

// audit appends one record for the invocation, decoding the raw input
// for readability.
func (d *Dispatcher) audit(task, action string, input json.RawMessage, res Result, turn int) {
	if d.log == nil {
		return
	}
	var in any
	if err := json.Unmarshal(input, &in); err != nil {
		in = string(input)
	}
	var out any = map[string]any{"ok": res.OK, "result": res.Result}
	if !res.OK {
		out = map[string]any{"ok": false, "error": res.Error}
	}
	d.log.Action(task, action, in, out, turn)
}
