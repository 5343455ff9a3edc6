// Package approval implements the cross-role handoff envelope: a task
// artifact whose frontmatter embeds a deferred skill invocation. The
// restricted role files one instead of executing a send action; the
// privileged role parses it back and executes the embedded call
// directly.
package approval

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/basket/deskhand/internal/capability"
	"github.com/basket/deskhand/internal/vault"
)

// Envelope is the structured frontmatter of an approval artifact.
// Input holds the serialized JSON object exactly as the drafting role
// produced it, so the executing role invokes with byte-identical input.
type Envelope struct {
	Type    string `yaml:"type"`
	Status  string `yaml:"status"`
	Task    string `yaml:"task"`
	Tool    string `yaml:"tool"`
	Input   string `yaml:"input"`
	Created string `yaml:"created"`
}

// ParseError describes a malformed envelope. Artifacts failing to parse
// are routed to Pending-Review rather than guessed at.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "approval envelope: " + e.Reason
}

// ArtifactName derives the handoff artifact name from the originating
// task and the deferred tool.
func ArtifactName(taskName string, tool capability.Skill) string {
	stem := strings.TrimSuffix(taskName, ".md")
	return fmt.Sprintf("%s%s_%s.md", vault.ApprovalPrefix, stem, tool)
}

// Compose renders an approval artifact: YAML frontmatter envelope plus a
// human-readable body for manual review.
func Compose(taskName string, tool capability.Skill, input json.RawMessage, details string) (string, error) {
	if !json.Valid(input) {
		return "", fmt.Errorf("compose approval: input is not valid JSON")
	}
	env := Envelope{
		Type:    "approval_request",
		Status:  "pending",
		Task:    taskName,
		Tool:    string(tool),
		Input:   string(input),
		Created: time.Now().UTC().Format(time.RFC3339),
	}
	front, err := yaml.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("compose approval: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("---\n")
	sb.Write(front)
	sb.WriteString("---\n\n")
	if details != "" {
		sb.WriteString(details)
		if !strings.HasSuffix(details, "\n") {
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

// Parse extracts the envelope from an approval artifact's content.
// Missing frontmatter, a missing tool, an unknown tool, or input that is
// not a JSON object are all parse failures.
func Parse(content string) (*Envelope, error) {
	front, ok := frontmatter(content)
	if !ok {
		return nil, &ParseError{Reason: "missing frontmatter block"}
	}
	var env Envelope
	if err := yaml.Unmarshal([]byte(front), &env); err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("invalid YAML: %v", err)}
	}
	if env.Type != "approval_request" {
		return nil, &ParseError{Reason: fmt.Sprintf("unexpected type %q", env.Type)}
	}
	if env.Tool == "" {
		return nil, &ParseError{Reason: "missing tool"}
	}
	if !capability.Known(capability.Skill(env.Tool)) {
		return nil, &ParseError{Reason: fmt.Sprintf("unknown tool %q", env.Tool)}
	}
	trimmed := strings.TrimSpace(env.Input)
	if trimmed == "" || !json.Valid([]byte(trimmed)) || !strings.HasPrefix(trimmed, "{") {
		return nil, &ParseError{Reason: "input is not a JSON object"}
	}
	return &env, nil
}

// frontmatter returns the YAML between the leading "---" fence and the
// closing one.
func frontmatter(content string) (string, bool) {
	rest, ok := strings.CutPrefix(content, "---\n")
	if !ok {
		return "", false
	}
	front, _, ok := strings.Cut(rest, "\n---")
	if !ok {
		return "", false
	}
	return front + "\n", true
}
