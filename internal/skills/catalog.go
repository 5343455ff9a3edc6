package skills

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/basket/deskhand/internal/capability"
)

// ToolSchema describes one skill to the model: a name, a natural-language
// description and a JSON Schema for its input.
type ToolSchema struct {
	Name        capability.Skill
	Description string
	InputSchema json.RawMessage

	compiled *jsonschema.Schema
}

// Catalog holds the compiled schemas for every known skill. Construction
// fails if any schema does not compile, so a bad schema is caught at
// startup rather than mid-task.
type Catalog struct {
	schemas map[capability.Skill]*ToolSchema
	order   []capability.Skill
}

var rawSchemas = []struct {
	name        capability.Skill
	description string
	schema      string
}{
	{
		capability.SkillSendEmail,
		"Send a new email.",
		`{"type":"object","properties":{"to":{"type":"string","description":"Recipient email address"},"subject":{"type":"string","description":"Email subject"},"body":{"type":"string","description":"Plain-text email body"}},"required":["to","subject","body"]}`,
	},
	{
		capability.SkillReplyEmail,
		"Reply to an existing email thread.",
		`{"type":"object","properties":{"message_id":{"type":"string","description":"Message ID to reply to"},"body":{"type":"string","description":"Reply body text"}},"required":["message_id","body"]}`,
	},
	{
		capability.SkillLabelEmail,
		"Apply a label to a message.",
		`{"type":"object","properties":{"message_id":{"type":"string"},"label":{"type":"string","description":"Label name (e.g. 'DONE', 'STARRED')"}},"required":["message_id","label"]}`,
	},
	{
		capability.SkillPostLinkedIn,
		"Publish a text post to LinkedIn.",
		`{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`,
	},
	{
		capability.SkillPostFacebook,
		"Publish a post to the Facebook page.",
		`{"type":"object","properties":{"text":{"type":"string"},"image_url":{"type":"string","description":"Optional image URL"}},"required":["text"]}`,
	},
	{
		capability.SkillPostInstagram,
		"Publish a photo to Instagram.",
		`{"type":"object","properties":{"image_url":{"type":"string"},"caption":{"type":"string"}},"required":["image_url","caption"]}`,
	},
	{
		capability.SkillPostTwitter,
		"Publish a tweet.",
		`{"type":"object","properties":{"text":{"type":"string","description":"Tweet text (max 280 chars)"}},"required":["text"]}`,
	},
	{
		capability.SkillCreateInvoice,
		"Create a customer invoice.",
		`{"type":"object","properties":{"partner_name":{"type":"string"},"amount":{"type":"number"},"description":{"type":"string"}},"required":["partner_name","amount","description"]}`,
	},
	{
		capability.SkillListContacts,
		"Search contacts by name.",
		`{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}`,
	},
	{
		capability.SkillAccountingReport,
		"Get a P&L summary. period: last_week | last_month | this_year",
		`{"type":"object","properties":{"period":{"type":"string","enum":["last_week","last_month","this_year"]}},"required":["period"]}`,
	},
	{
		capability.SkillPostPayment,
		"Register a payment against an invoice. Blocked by the system when amount exceeds the autonomous limit.",
		`{"type":"object","properties":{"invoice_id":{"type":"integer"},"amount":{"type":"number"}},"required":["invoice_id","amount"]}`,
	},
	{
		capability.SkillWritePlan,
		"Write a plan document summarising what was done.",
		`{"type":"object","properties":{"name":{"type":"string","description":"File name without extension"},"content":{"type":"string","description":"Markdown content"}},"required":["name","content"]}`,
	},
	{
		capability.SkillRequestApproval,
		"File an approval item and stop. Use when an action exceeds your authority.",
		`{"type":"object","properties":{"name":{"type":"string","description":"Approval item file name"},"details":{"type":"string","description":"Full markdown details for the reviewer"},"tool":{"type":"string","description":"Deferred tool name, for cross-role handoff"},"input":{"type":"string","description":"Serialized JSON input for the deferred tool"},"task":{"type":"string","description":"Originating task artifact name"}},"required":["name","details"]}`,
	},
}

// NewCatalog compiles the input schema of every known skill.
func NewCatalog() (*Catalog, error) {
	c := &Catalog{schemas: make(map[capability.Skill]*ToolSchema, len(rawSchemas))}
	for _, rs := range rawSchemas {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(rs.schema))
		if err != nil {
			return nil, fmt.Errorf("skill %s: unmarshal schema: %w", rs.name, err)
		}
		compiler := jsonschema.NewCompiler()
		resource := string(rs.name) + ".json"
		if err := compiler.AddResource(resource, doc); err != nil {
			return nil, fmt.Errorf("skill %s: add schema resource: %w", rs.name, err)
		}
		compiled, err := compiler.Compile(resource)
		if err != nil {
			return nil, fmt.Errorf("skill %s: compile schema: %w", rs.name, err)
		}
		c.schemas[rs.name] = &ToolSchema{
			Name:        rs.name,
			Description: rs.description,
			InputSchema: json.RawMessage(rs.schema),
			compiled:    compiled,
		}
		c.order = append(c.order, rs.name)
	}
	return c, nil
}

// Validate checks an invocation input against the skill's schema.
func (c *Catalog) Validate(skill capability.Skill, input json.RawMessage) error {
	ts, ok := c.schemas[skill]
	if !ok {
		return fmt.Errorf("unknown skill %q", skill)
	}
	val, err := jsonschema.UnmarshalJSON(strings.NewReader(string(input)))
	if err != nil {
		return fmt.Errorf("input is not valid JSON: %w", err)
	}
	if err := ts.compiled.Validate(val); err != nil {
		return fmt.Errorf("input does not match schema for %s: %w", skill, err)
	}
	return nil
}

// ForRole returns the tool schemas in the given role's capability set,
// in catalog order. This is the only tool surface the model ever sees.
func (c *Catalog) ForRole(role capability.Role) []ToolSchema {
	var out []ToolSchema
	for _, name := range c.order {
		if role.Allows(name) {
			out = append(out, *c.schemas[name])
		}
	}
	return out
}
