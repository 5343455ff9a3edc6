// Package orchestrator scans the vault on a tick, claims eligible
// tasks into the role's in-progress queue, and drives each one through
// the reasoning loop under a bounded worker pool. Failures feed the
// retry state machine; exhausted tasks dead-letter to Rejected.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/basket/deskhand/internal/approval"
	"github.com/basket/deskhand/internal/audit"
	"github.com/basket/deskhand/internal/bus"
	"github.com/basket/deskhand/internal/capability"
	"github.com/basket/deskhand/internal/engine"
	"github.com/basket/deskhand/internal/otel"
	"github.com/basket/deskhand/internal/shared"
	"github.com/basket/deskhand/internal/skills"
	"github.com/basket/deskhand/internal/vault"
)

// Runner processes one claimed task to resolution. Satisfied by
// *engine.Loop; stubbed in tests.
type Runner interface {
	Run(ctx context.Context, taskName, content string) (engine.Outcome, error)
}

// Config wires an Orchestrator.
type Config struct {
	Store      *vault.Store
	Runner     Runner
	Dispatcher *skills.Dispatcher
	Audit      *audit.Log
	Bus        *bus.Bus
	Logger     *slog.Logger
	Metrics    *otel.Metrics

	Role       capability.Role
	Domains    []string
	MaxWorkers int
	MaxRetries int
}

// Orchestrator owns the scan/claim/dispatch cycle for one role process.
type Orchestrator struct {
	store      *vault.Store
	runner     Runner
	dispatcher *skills.Dispatcher
	log        *audit.Log
	bus        *bus.Bus
	logger     *slog.Logger
	metrics    *otel.Metrics

	role       capability.Role
	domains    []string
	maxWorkers int
	maxRetries int

	wg     sync.WaitGroup
	active atomic.Int32

	now func() time.Time
}

func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 3
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Orchestrator{
		store:      cfg.Store,
		runner:     cfg.Runner,
		dispatcher: cfg.Dispatcher,
		log:        cfg.Audit,
		bus:        cfg.Bus,
		logger:     logger,
		metrics:    cfg.Metrics,
		role:       cfg.Role,
		domains:    cfg.Domains,
		maxWorkers: cfg.MaxWorkers,
		maxRetries: cfg.MaxRetries,
		now:        time.Now,
	}
}

// Active reports the number of tasks currently being processed.
func (o *Orchestrator) Active() int {
	return int(o.active.Load())
}

// Wait blocks until all in-flight workers finish.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Run scans on every tick until ctx is cancelled, then waits for
// in-flight workers to finish. The tick channel is injected so tests
// drive the cycle with a virtual clock.
func (o *Orchestrator) Run(ctx context.Context, ticks <-chan time.Time) {
	o.logger.Info("orchestrator started",
		"role", o.role.ID, "domains", o.domains, "max_workers", o.maxWorkers)
	for {
		select {
		case <-ctx.Done():
			o.wg.Wait()
			o.logger.Info("orchestrator stopped", "role", o.role.ID)
			return
		case <-ticks:
			o.ScanOnce(ctx)
		}
	}
}

// ScanOnce performs one scan/claim/dispatch cycle. When the pool is
// saturated the scan is skipped entirely rather than queued, so the
// backlog stays on disk, not in memory.
func (o *Orchestrator) ScanOnce(ctx context.Context) {
	if int(o.active.Load()) >= o.maxWorkers {
		o.logger.Debug("scan skipped, pool saturated", "active", o.active.Load())
		return
	}

	for _, c := range o.candidates() {
		if int(o.active.Load()) >= o.maxWorkers {
			return
		}
		if o.store.Exists(vault.InProgressQueue(o.role.ID), c.name) {
			continue
		}
		if err := o.store.Claim(c.name, c.queue, vault.InProgressQueue(o.role.ID)); err != nil {
			if errors.Is(err, vault.ErrClaimRaceLost) {
				continue
			}
			o.logger.Error("claim failed", "task", c.name, "err", err)
			continue
		}
		o.metrics.Claimed(ctx, otel.AttrRole(o.role.ID))
		o.publish(bus.TopicTaskClaimed, c.name, "", 0, nil)
		o.logger.Info("task claimed", "task", c.name, "from", c.queue)

		o.active.Add(1)
		o.metrics.WorkerDelta(ctx, 1)
		o.wg.Add(1)
		go func(c candidate) {
			defer func() {
				o.active.Add(-1)
				o.metrics.WorkerDelta(ctx, -1)
				o.wg.Done()
			}()
			o.process(ctx, c)
		}(c)
	}
}

type candidate struct {
	name  string
	queue string // originating queue, for retry requeue
}

// taskLogger derives a logger carrying the per-task trace id and task
// name attached to ctx in process, so every worker log line correlates
// with the audit trail.
func (o *Orchestrator) taskLogger(ctx context.Context) *slog.Logger {
	return o.logger.With("trace_id", shared.TraceID(ctx), "task", shared.TaskName(ctx))
}

// candidates lists claimable artifacts across the role's owned input
// domains; the privileged role additionally drains the handoff queue.
func (o *Orchestrator) candidates() []candidate {
	var out []candidate
	if o.role.Kind == capability.RolePrivileged {
		names, err := o.store.ListEligible(vault.QueueApprovalHandoff)
		if err != nil {
			o.logger.Error("scan handoff queue", "err", err)
		}
		for _, n := range names {
			if vault.IsApproval(n) {
				out = append(out, candidate{name: n, queue: vault.QueueApprovalHandoff})
			}
		}
	}
	for _, d := range o.domains {
		q := vault.InputQueue(d)
		names, err := o.store.ListEligible(q)
		if err != nil {
			o.logger.Error("scan input queue", "queue", q, "err", err)
			continue
		}
		for _, n := range names {
			out = append(out, candidate{name: n, queue: q})
		}
	}
	return out
}

// process runs one claimed task to resolution and applies the final
// queue transition. Handoff artifacts take the direct-execution path.
func (o *Orchestrator) process(ctx context.Context, c candidate) {
	ctx = shared.WithTraceID(ctx, shared.NewTraceID())
	ctx = shared.WithTaskName(ctx, c.name)
	start := o.now()
	inProgress := vault.InProgressQueue(o.role.ID)
	tlog := o.taskLogger(ctx)

	content, err := o.store.Read(inProgress, c.name)
	if err != nil {
		o.retryOrReject(ctx, c, err)
		return
	}

	if c.queue == vault.QueueApprovalHandoff {
		o.executeHandoff(ctx, c.name, content)
		o.metrics.RecordDuration(ctx, o.now().Sub(start).Seconds())
		return
	}

	out, err := o.runner.Run(ctx, c.name, content)
	if err != nil {
		tlog.Error("task failed", "err", err)
		o.retryOrReject(ctx, c, err)
		return
	}

	if err := o.store.Release(c.name, inProgress, out.Queue, ""); err != nil {
		// Persistence failure: artifact stays in place for manual
		// recovery, never dropped.
		tlog.Error("release failed", "queue", out.Queue, "err", err)
		o.log.Error(c.name, err.Error(), out.Turns)
		return
	}
	o.metrics.Resolved(ctx, out.Queue, otel.AttrRole(o.role.ID))
	o.metrics.AddTurns(ctx, out.Turns, otel.AttrRole(o.role.ID))
	o.metrics.RecordDuration(ctx, o.now().Sub(start).Seconds())
	switch out.Queue {
	case vault.QueuePendingReview:
		o.publish(bus.TopicTaskPendingReview, c.name, out.Queue, out.Turns, nil)
	default:
		o.publish(bus.TopicTaskCompleted, c.name, out.Queue, out.Turns, nil)
	}
}

// retryOrReject applies the bounded retry policy after an unhandled
// failure. The in-progress location is checked first; if the claim
// never completed the artifact is moved from where it was found.
func (o *Orchestrator) retryOrReject(ctx context.Context, c candidate, cause error) {
	o.log.Error(c.name, cause.Error(), 0)
	tlog := o.taskLogger(ctx)

	from := vault.InProgressQueue(o.role.ID)
	if !o.store.Exists(from, c.name) {
		from = c.queue
	}

	retries := vault.RetryCount(c.name)
	if retries >= o.maxRetries {
		if err := o.store.Release(c.name, from, vault.QueueRejected, ""); err != nil {
			tlog.Error("reject move failed", "err", err)
			return
		}
		o.metrics.Resolved(ctx, vault.QueueRejected, otel.AttrRole(o.role.ID))
		o.publish(bus.TopicTaskRejected, c.name, vault.QueueRejected, 0, cause)
		tlog.Warn("task rejected after retries", "retries", retries)
		return
	}

	newName := vault.WithRetry(c.name, retries+1)
	if err := o.store.Release(c.name, from, c.queue, newName); err != nil {
		tlog.Error("retry move failed", "err", err)
		return
	}
	o.metrics.Retried(ctx, otel.AttrRole(o.role.ID))
	o.publish(bus.TopicTaskRetrying, newName, c.queue, 0, cause)
	tlog.Info("task requeued", "requeued_as", newName, "attempt", retries+1, "of", o.maxRetries)
}

// executeHandoff runs a pre-approved deferred invocation directly,
// bypassing the reasoning loop. Success resolves the artifact to
// Completed, execution failure to Rejected, and a malformed envelope to
// PendingReview: the orchestrator never guesses intent.
func (o *Orchestrator) executeHandoff(ctx context.Context, name, content string) {
	inProgress := vault.InProgressQueue(o.role.ID)
	tlog := o.taskLogger(ctx)

	env, err := approval.Parse(content)
	if err != nil {
		tlog.Warn("handoff envelope unparseable", "err", err)
		o.log.Error(name, "handoff parse: "+err.Error(), 0)
		if mvErr := o.store.Release(name, inProgress, vault.QueuePendingReview, ""); mvErr != nil {
			tlog.Error("pending-review move failed", "err", mvErr)
			return
		}
		o.metrics.Resolved(ctx, vault.QueuePendingReview, otel.AttrRole(o.role.ID))
		o.publish(bus.TopicTaskPendingReview, name, vault.QueuePendingReview, 0, err)
		return
	}

	res := o.dispatcher.Invoke(ctx, name, capability.Skill(env.Tool), []byte(env.Input), 0)
	dest := vault.QueueCompleted
	if !res.OK {
		tlog.Warn("handoff execution failed", "tool", env.Tool, "err", res.Error)
		dest = vault.QueueRejected
	}
	if err := o.store.Release(name, inProgress, dest, ""); err != nil {
		tlog.Error("handoff resolve failed", "err", err)
		o.log.Error(name, err.Error(), 0)
		return
	}
	o.log.Completion(name, 1, false)
	o.metrics.ApprovalDone(ctx, otel.AttrRole(o.role.ID))
	o.metrics.Resolved(ctx, dest, otel.AttrRole(o.role.ID))
	o.publish(bus.TopicApprovalExecuted, name, dest, 1, nil)
}

func (o *Orchestrator) publish(topic, task, queue string, turns int, cause error) {
	if o.bus == nil {
		return
	}
	ev := bus.TaskEvent{Task: task, RoleID: o.role.ID, Queue: queue, Turns: turns}
	if cause != nil {
		ev.Error = cause.Error()
	}
	o.bus.Publish(topic, ev)
}
