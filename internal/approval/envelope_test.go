package approval

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/basket/deskhand/internal/capability"
)

func TestComposeParse(t *testing.T) {
	t.Run("roundtrip_preserves_input_bytes", func(t *testing.T) {
		input := json.RawMessage(`{"to":"sam@example.com","subject":"Q3 invoice","body":"Hi,\nattached."}`)
		content, err := Compose("T7.md", capability.SkillSendEmail, input, "Draft email awaiting execution.")
		if err != nil {
			t.Fatalf("Compose: %v", err)
		}
		env, err := Parse(content)
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if env.Tool != "send_email" {
			t.Errorf("tool = %q", env.Tool)
		}
		if env.Task != "T7.md" {
			t.Errorf("task = %q", env.Task)
		}
		if env.Input != string(input) {
			t.Errorf("input not byte-identical:\n got %q\nwant %q", env.Input, string(input))
		}
	})

	t.Run("body_details_present", func(t *testing.T) {
		content, err := Compose("T1.md", capability.SkillPostTwitter, json.RawMessage(`{"text":"hello"}`), "Tweet draft.")
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(content, "Tweet draft.") {
			t.Error("details missing from body")
		}
	})

	t.Run("invalid_input_json_rejected_at_compose", func(t *testing.T) {
		if _, err := Compose("T1.md", capability.SkillSendEmail, json.RawMessage(`{oops`), ""); err == nil {
			t.Fatal("expected compose error")
		}
	})
}

func TestParseFailures(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"no_frontmatter", "just a markdown file\n"},
		{"unclosed_frontmatter", "---\ntype: approval_request\n"},
		{"wrong_type", "---\ntype: plan\ntool: send_email\ninput: '{}'\n---\n"},
		{"missing_tool", "---\ntype: approval_request\ninput: '{\"a\":1}'\n---\n"},
		{"unknown_tool", "---\ntype: approval_request\ntool: fire_missiles\ninput: '{}'\n---\n"},
		{"input_not_json", "---\ntype: approval_request\ntool: send_email\ninput: 'nope'\n---\n"},
		{"input_not_object", "---\ntype: approval_request\ntool: send_email\ninput: '[1,2]'\n---\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.content)
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected ParseError, got %v", err)
			}
		})
	}
}

func TestArtifactName(t *testing.T) {
	got := ArtifactName("T7.md", capability.SkillSendEmail)
	if got != "SEND_APPROVAL_T7_send_email.md" {
		t.Errorf("got %q", got)
	}
}
