package cron

import (
	"strings"
	"testing"
	"time"

	"github.com/basket/deskhand/internal/audit"
	"github.com/basket/deskhand/internal/engine"
	"github.com/basket/deskhand/internal/vault"
)

func newTestScheduler(t *testing.T) (*Scheduler, *vault.Store) {
	t.Helper()
	store := vault.New(t.TempDir(), nil)
	if err := store.EnsureLayout("test"); err != nil {
		t.Fatal(err)
	}
	log, err := audit.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { log.Close() })

	s, err := NewScheduler(Config{
		Store:    store,
		Audit:    log,
		CronExpr: "0 8 * * 1",
		Domain:   "Email",
	})
	if err != nil {
		t.Fatal(err)
	}
	return s, store
}

func TestNextRunTime(t *testing.T) {
	after := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC) // a Wednesday
	next, err := NextRunTime("0 8 * * 1", after)
	if err != nil {
		t.Fatal(err)
	}
	if next.Weekday() != time.Monday || next.Hour() != 8 {
		t.Errorf("next run = %v, want Monday 08:00", next)
	}

	if _, err := NextRunTime("not a cron line", after); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestBadCronFailsConstruction(t *testing.T) {
	if _, err := NewScheduler(Config{CronExpr: "99 99 * *"}); err == nil {
		t.Fatal("expected error for malformed cron expression")
	}
}

func TestTickFiresWhenDue(t *testing.T) {
	s, store := newTestScheduler(t)

	// Not due yet: nothing filed.
	s.now = func() time.Time { return s.nextRun.Add(-time.Hour) }
	s.tick()
	names, err := store.ListEligible(vault.InputQueue("Email"))
	if err != nil || len(names) != 0 {
		t.Fatalf("premature fire: %v %v", names, err)
	}

	// Cross the boundary.
	fireAt := s.nextRun.Add(time.Second)
	s.now = func() time.Time { return fireAt }
	s.tick()

	name := "BRIEFING_" + fireAt.UTC().Format("2006-01-02") + ".md"
	content, err := store.Read(vault.InputQueue("Email"), name)
	if err != nil {
		t.Fatalf("briefing task not filed: %v", err)
	}
	if !strings.Contains(content, "type: briefing_request") {
		t.Errorf("briefing content:\n%s", content)
	}
	if !s.nextRun.After(fireAt) {
		t.Errorf("next run not advanced: %v", s.nextRun)
	}

	// Same tick window never files twice.
	s.nextRun = fireAt
	s.tick()
	names, _ = store.ListEligible(vault.InputQueue("Email"))
	if len(names) != 1 {
		t.Errorf("briefing filed twice: %v", names)
	}
}

func TestFireReportsQueueCounts(t *testing.T) {
	s, store := newTestScheduler(t)
	for _, n := range []string{"A.md", "B.md"} {
		if err := store.Write(vault.QueueCompleted, n, "done"); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.Write(vault.QueueRejected, "C.md", "failed"); err != nil {
		t.Fatal(err)
	}

	fireAt := time.Date(2026, 8, 31, 8, 0, 1, 0, time.UTC)
	if err := s.fire(fireAt); err != nil {
		t.Fatal(err)
	}
	content, err := store.Read(vault.InputQueue("Email"), "BRIEFING_2026-08-31.md")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(content, "Completed: 2") || !strings.Contains(content, "Rejected: 1") {
		t.Errorf("counts missing:\n%s", content)
	}
	if !strings.Contains(content, engine.BriefingPrompt) {
		t.Errorf("briefing instructions missing:\n%s", content)
	}
}
