package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/basket/deskhand/internal/capability"
	"github.com/basket/deskhand/internal/skills"
)

// AnthropicModel drives the reasoning loop against the Anthropic
// Messages API. It holds no conversation state; the transcript is
// rebuilt from the Conversation on every turn.
type AnthropicModel struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

func NewAnthropicModel(apiKey, model string, maxTokens int64) *AnthropicModel {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicModel{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     anthropic.Model(model),
		maxTokens: maxTokens,
	}
}

func (m *AnthropicModel) Next(ctx context.Context, conv *Conversation) (*Turn, error) {
	tools, err := buildTools(conv.Tools)
	if err != nil {
		return nil, err
	}
	msg, err := m.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     m.model,
		MaxTokens: m.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: conv.System}},
		Tools:     tools,
		Messages:  buildMessages(conv.Messages),
	})
	if err != nil {
		return nil, fmt.Errorf("messages api: %w", err)
	}

	turn := &Turn{StopReason: StopReason(msg.StopReason)}
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			if turn.Text != "" {
				turn.Text += "\n"
			}
			turn.Text += b.Text
		case anthropic.ToolUseBlock:
			turn.ToolCalls = append(turn.ToolCalls, ToolCall{
				ID:    b.ID,
				Name:  capability.Skill(b.Name),
				Input: json.RawMessage(b.JSON.Input.Raw()),
			})
		}
	}
	return turn, nil
}

func buildMessages(msgs []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		var blocks []anthropic.ContentBlockParamUnion
		if m.Text != "" {
			blocks = append(blocks, anthropic.NewTextBlock(m.Text))
		}
		for _, c := range m.Calls {
			blocks = append(blocks, anthropic.ContentBlockParamUnion{
				OfToolUse: &anthropic.ToolUseBlockParam{
					ID:    c.ID,
					Name:  string(c.Name),
					Input: c.Input,
				},
			})
		}
		for _, r := range m.Results {
			blocks = append(blocks, anthropic.NewToolResultBlock(r.CallID, r.Content, r.IsError))
		}
		if m.Role == RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out
}

func buildTools(schemas []skills.ToolSchema) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(schemas))
	for _, ts := range schemas {
		var schema struct {
			Properties map[string]any `json:"properties"`
			Required   []string       `json:"required"`
		}
		if err := json.Unmarshal(ts.InputSchema, &schema); err != nil {
			return nil, fmt.Errorf("tool %s: decode schema: %w", ts.Name, err)
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        string(ts.Name),
				Description: anthropic.String(ts.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: schema.Properties,
					Required:   schema.Required,
				},
			},
		})
	}
	return out, nil
}
