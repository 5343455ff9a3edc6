package otel

import (
	"context"
	"testing"
)

func TestInit_Disabled(t *testing.T) {
	p, err := Init(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("Init disabled: %v", err)
	}
	defer p.Shutdown(context.Background())

	if p.Tracer == nil {
		t.Fatal("expected non-nil tracer (noop)")
	}
	if p.Meter == nil {
		t.Fatal("expected non-nil meter (noop)")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestInit_NoneExporter(t *testing.T) {
	p, err := Init(context.Background(), Config{Enabled: true, Exporter: "none"})
	if err != nil {
		t.Fatalf("Init with none exporter: %v", err)
	}
	defer p.Shutdown(context.Background())

	if p.TracerProvider == nil {
		t.Fatal("expected non-nil TracerProvider")
	}
}

func TestInit_UnknownExporter(t *testing.T) {
	if _, err := Init(context.Background(), Config{Enabled: true, Exporter: "carrier-pigeon"}); err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}

func TestMetrics(t *testing.T) {
	p, err := Init(context.Background(), Config{Enabled: true, Exporter: "none"})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer p.Shutdown(context.Background())

	m, err := NewMetrics(p.Meter)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	if m.TasksClaimed == nil || m.TasksCompleted == nil || m.TurnsTotal == nil ||
		m.TaskDuration == nil || m.ActiveWorkers == nil {
		t.Fatal("instrument not created")
	}

	ctx := context.Background()
	m.Claimed(ctx, AttrRole("local"))
	m.Resolved(ctx, "Completed")
	m.Retried(ctx)
	m.ApprovalDone(ctx)
	m.AddTurns(ctx, 3)
	m.WorkerDelta(ctx, 1)
	m.WorkerDelta(ctx, -1)
	m.RecordDuration(ctx, 0.5)
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.Claimed(ctx)
	m.Resolved(ctx, "Rejected")
	m.Retried(ctx)
	m.ApprovalDone(ctx)
	m.AddTurns(ctx, 1)
	m.WorkerDelta(ctx, 1)
	m.RecordDuration(ctx, 0)
}
