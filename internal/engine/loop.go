package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/basket/deskhand/internal/audit"
	"github.com/basket/deskhand/internal/capability"
	"github.com/basket/deskhand/internal/skills"
	"github.com/basket/deskhand/internal/vault"
)

// Outcome reports how a task resolved. Queue is the terminal queue the
// orchestrator should move the artifact to.
type Outcome struct {
	Queue       string
	Turns       int
	PlanWritten bool
}

// Config wires a Loop.
type Config struct {
	Model            Model
	Dispatcher       *skills.Dispatcher
	Store            *vault.Store
	Audit            *audit.Log
	Logger           *slog.Logger
	MaxTurns         int
	PaymentThreshold float64
}

// Loop runs the bounded-turn reasoning state machine for one task at a
// time. It is stateless across tasks and safe for concurrent use.
type Loop struct {
	model      Model
	dispatcher *skills.Dispatcher
	store      *vault.Store
	log        *audit.Log
	logger     *slog.Logger
	gate       *Gate
	maxTurns   int

	now func() time.Time
}

func New(cfg Config) *Loop {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		model:      cfg.Model,
		dispatcher: cfg.Dispatcher,
		store:      cfg.Store,
		log:        cfg.Audit,
		logger:     logger,
		gate:       NewGate(cfg.Dispatcher.Role(), cfg.PaymentThreshold),
		maxTurns:   cfg.MaxTurns,
		now:        time.Now,
	}
}

// Run processes one claimed task to resolution. It never moves the
// artifact itself; the caller owns queue transitions. A returned error
// means an unhandled failure (model transport, plan write) that the
// caller's retry policy should absorb.
func (l *Loop) Run(ctx context.Context, taskName, content string) (Outcome, error) {
	role := l.dispatcher.Role()
	conv := &Conversation{
		System: SystemPrompt(role),
		Tools:  l.dispatcher.Catalog().ForRole(role),
		Messages: []Message{
			{Role: RoleUser, Text: fmt.Sprintf("Task file: %s\n\n%s", taskName, content)},
		},
	}

	l.logger.Info("task started", "task", taskName, "role", role.ID)

	completed := false
	turns := 0
	for turn := 0; turn < l.maxTurns; turn++ {
		turns = turn + 1
		resp, err := l.model.Next(ctx, conv)
		if err != nil {
			return Outcome{}, fmt.Errorf("model turn %d: %w", turn, err)
		}
		conv.Messages = append(conv.Messages, Message{
			Role: RoleAssistant, Text: resp.Text, Calls: resp.ToolCalls,
		})

		if resp.StopReason == StopEndTurn {
			completed = true
			break
		}
		if resp.StopReason != StopToolUse {
			l.logger.Warn("model stopped unexpectedly",
				"task", taskName, "stop_reason", resp.StopReason, "turn", turn)
			break
		}

		var results []ToolResult
		for _, call := range resp.ToolCalls {
			dec := l.gate.Check(taskName, call)
			switch dec.Action {
			case GateSubstitute:
				l.logger.Info("invocation gated", "task", taskName,
					"skill", call.Name, "reason", dec.Reason, "turn", turn)
				res := l.dispatcher.Invoke(ctx, taskName,
					capability.SkillRequestApproval, dec.Substitute, turn)
				results = append(results, toolResult(call.ID, res))
				completed = true
			case GateReject:
				l.logger.Warn("invocation rejected", "task", taskName,
					"skill", call.Name, "reason", dec.Reason, "turn", turn)
				results = append(results, ToolResult{
					CallID:  call.ID,
					Content: fmt.Sprintf(`{"ok":false,"error":%q}`, dec.Reason),
					IsError: true,
				})
			default:
				res := l.dispatcher.Invoke(ctx, taskName, call.Name, call.Input, turn)
				results = append(results, toolResult(call.ID, res))
				if call.Name == capability.SkillRequestApproval && res.OK {
					completed = true
				}
			}
			// A gated or approval-filing invocation ends the turn
			// immediately; remaining calls in this turn are dropped.
			if completed {
				break
			}
		}
		if len(results) > 0 {
			conv.Messages = append(conv.Messages, Message{Role: RoleUser, Results: results})
		}
		if completed {
			break
		}
	}

	planWritten, err := l.ensurePlan(taskName, conv, turns, role.ID)
	if err != nil {
		return Outcome{}, err
	}

	queue := vault.QueueCompleted
	if !completed && turns >= l.maxTurns {
		sub, _ := json.Marshal(map[string]string{
			"name": "MAX_TURNS_" + strings.TrimSuffix(taskName, ".md"),
			"details": fmt.Sprintf(
				"Task %s exceeded %d turns without completing.\n"+
					"Partial work may have been done. Please review and re-assign or close.",
				taskName, l.maxTurns),
		})
		l.dispatcher.Invoke(ctx, taskName, capability.SkillRequestApproval, sub, turns-1)
		queue = vault.QueuePendingReview
	}

	l.log.Completion(taskName, turns, planWritten)
	l.logger.Info("task finished", "task", taskName, "queue", queue, "turns", turns)
	return Outcome{Queue: queue, Turns: turns, PlanWritten: planWritten}, nil
}

// ensurePlan writes Plans/<base>_Plan.md when the model did not. Retry
// attempts share one plan slot since the base name strips the retry
// suffix.
func (l *Loop) ensurePlan(taskName string, conv *Conversation, turns int, roleID string) (bool, error) {
	planName := strings.TrimSuffix(vault.BaseName(taskName), ".md") + "_Plan.md"
	if l.store.Exists(vault.DirPlans, planName) {
		return false, nil
	}
	summary := conv.LastAssistantText()
	if summary == "" {
		summary = "Task processed without a final summary."
	}
	content := fmt.Sprintf(`---
type: plan
task: %s
role: %s
created: %s
turns: %d
---

# Plan: %s

%s
`, taskName, roleID, l.now().UTC().Format(time.RFC3339), turns, taskName, summary)
	if err := l.store.Write(vault.DirPlans, planName, content); err != nil {
		return false, fmt.Errorf("write plan: %w", err)
	}
	return true, nil
}

func toolResult(callID string, res skills.Result) ToolResult {
	b, err := json.Marshal(res)
	if err != nil {
		b = []byte(`{"ok":false,"error":"unserializable result"}`)
	}
	return ToolResult{CallID: callID, Content: string(b), IsError: !res.OK}
}
