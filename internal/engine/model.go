// Package engine drives the bounded-turn reasoning loop for one task:
// model turns interleaved with gated skill execution until the model
// finishes, an approval is filed, or the turn budget runs out.
package engine

import (
	"context"
	"encoding/json"

	"github.com/basket/deskhand/internal/capability"
	"github.com/basket/deskhand/internal/skills"
)

// StopReason reports why the model ended a turn.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
)

// ToolCall is one skill invocation requested by the model.
type ToolCall struct {
	ID    string
	Name  capability.Skill
	Input json.RawMessage
}

// ToolResult feeds an invocation outcome back to the model.
type ToolResult struct {
	CallID  string
	Content string
	IsError bool
}

// Turn is one model response: free text, zero or more tool calls, and
// the reason the model stopped.
type Turn struct {
	Text       string
	ToolCalls  []ToolCall
	StopReason StopReason
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry in the transcript. A user message carries either
// Text (the initial task) or Results (tool results); an assistant
// message carries Text and Calls.
type Message struct {
	Role    string
	Text    string
	Calls   []ToolCall
	Results []ToolResult
}

// Conversation accumulates the transcript for one task. The loop owns
// it; models read the whole thing on every turn and hold no state of
// their own, which keeps them trivially swappable in tests.
type Conversation struct {
	System   string
	Tools    []skills.ToolSchema
	Messages []Message
}

// LastAssistantText returns the text of the most recent assistant
// message, or "" if there is none.
func (c *Conversation) LastAssistantText() string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleAssistant && c.Messages[i].Text != "" {
			return c.Messages[i].Text
		}
	}
	return ""
}

// Model produces the next turn given the transcript so far.
type Model interface {
	Next(ctx context.Context, conv *Conversation) (*Turn, error)
}
