package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all Deskhand metric instruments. A nil *Metrics is
// safe to call; every recorder is a no-op then, so callers never need
// to guard.
type Metrics struct {
	TasksClaimed      metric.Int64Counter
	TasksCompleted    metric.Int64Counter
	TasksRetried      metric.Int64Counter
	TasksRejected     metric.Int64Counter
	TasksPending      metric.Int64Counter
	ApprovalsExecuted metric.Int64Counter
	TurnsTotal        metric.Int64Counter
	TaskDuration      metric.Float64Histogram
	ActiveWorkers     metric.Int64UpDownCounter
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.TasksClaimed, err = meter.Int64Counter("deskhand.tasks.claimed",
		metric.WithDescription("Tasks claimed into the in-progress queue"),
	)
	if err != nil {
		return nil, err
	}

	m.TasksCompleted, err = meter.Int64Counter("deskhand.tasks.completed",
		metric.WithDescription("Tasks resolved to the completed queue"),
	)
	if err != nil {
		return nil, err
	}

	m.TasksRetried, err = meter.Int64Counter("deskhand.tasks.retried",
		metric.WithDescription("Tasks requeued with an incremented retry count"),
	)
	if err != nil {
		return nil, err
	}

	m.TasksRejected, err = meter.Int64Counter("deskhand.tasks.rejected",
		metric.WithDescription("Tasks dead-lettered after exhausting retries"),
	)
	if err != nil {
		return nil, err
	}

	m.TasksPending, err = meter.Int64Counter("deskhand.tasks.pending_review",
		metric.WithDescription("Tasks parked for manual review"),
	)
	if err != nil {
		return nil, err
	}

	m.ApprovalsExecuted, err = meter.Int64Counter("deskhand.approvals.executed",
		metric.WithDescription("Handoff approvals executed by the privileged role"),
	)
	if err != nil {
		return nil, err
	}

	m.TurnsTotal, err = meter.Int64Counter("deskhand.loop.turns",
		metric.WithDescription("Total reasoning turns executed"),
	)
	if err != nil {
		return nil, err
	}

	m.TaskDuration, err = meter.Float64Histogram("deskhand.task.duration",
		metric.WithDescription("Task processing duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.ActiveWorkers, err = meter.Int64UpDownCounter("deskhand.workers.active",
		metric.WithDescription("Workers currently processing a task"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// AttrRole labels a metric with the emitting role id.
func AttrRole(roleID string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("deskhand.role.id", roleID))
}

// Claimed counts one claim.
func (m *Metrics) Claimed(ctx context.Context, opts ...metric.AddOption) {
	if m == nil || m.TasksClaimed == nil {
		return
	}
	m.TasksClaimed.Add(ctx, 1, opts...)
}

// Resolved counts one terminal transition by destination queue.
func (m *Metrics) Resolved(ctx context.Context, queue string, opts ...metric.AddOption) {
	if m == nil {
		return
	}
	var c metric.Int64Counter
	switch queue {
	case "Completed":
		c = m.TasksCompleted
	case "Rejected":
		c = m.TasksRejected
	case "PendingReview":
		c = m.TasksPending
	}
	if c != nil {
		c.Add(ctx, 1, opts...)
	}
}

// Retried counts one requeue.
func (m *Metrics) Retried(ctx context.Context, opts ...metric.AddOption) {
	if m == nil || m.TasksRetried == nil {
		return
	}
	m.TasksRetried.Add(ctx, 1, opts...)
}

// ApprovalDone counts one executed handoff.
func (m *Metrics) ApprovalDone(ctx context.Context, opts ...metric.AddOption) {
	if m == nil || m.ApprovalsExecuted == nil {
		return
	}
	m.ApprovalsExecuted.Add(ctx, 1, opts...)
}

// AddTurns records the turn count for a finished task.
func (m *Metrics) AddTurns(ctx context.Context, turns int, opts ...metric.AddOption) {
	if m == nil || m.TurnsTotal == nil {
		return
	}
	m.TurnsTotal.Add(ctx, int64(turns), opts...)
}

// WorkerDelta tracks the active worker gauge; delta is +1 or -1.
func (m *Metrics) WorkerDelta(ctx context.Context, delta int64) {
	if m == nil || m.ActiveWorkers == nil {
		return
	}
	m.ActiveWorkers.Add(ctx, delta)
}

// RecordDuration records a task's wall time in seconds.
func (m *Metrics) RecordDuration(ctx context.Context, seconds float64, opts ...metric.RecordOption) {
	if m == nil || m.TaskDuration == nil {
		return
	}
	m.TaskDuration.Record(ctx, seconds, opts...)
}
