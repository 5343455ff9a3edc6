// Package cron files a recurring briefing task into the vault so the
// reasoning loop turns recent activity into a readable report.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/basket/deskhand/internal/audit"
	"github.com/basket/deskhand/internal/engine"
	"github.com/basket/deskhand/internal/vault"
)

// cronParser parses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// Config holds the dependencies for the briefing scheduler.
type Config struct {
	Store    *vault.Store
	Audit    *audit.Log
	Logger   *slog.Logger
	CronExpr string
	Domain   string        // input queue the briefing task is filed into
	Interval time.Duration // tick interval; defaults to 1 minute if zero
}

// Scheduler fires the briefing schedule by creating a task artifact in
// the owned input queue; the orchestrator picks it up like any other
// task.
type Scheduler struct {
	store    *vault.Store
	log      *audit.Log
	logger   *slog.Logger
	expr     string
	domain   string
	interval time.Duration

	mu      sync.Mutex
	nextRun time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

// NewScheduler creates a Scheduler. The cron expression is validated up
// front so a bad schedule fails at startup, not at fire time.
func NewScheduler(cfg Config) (*Scheduler, error) {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 1 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		store:    cfg.Store,
		log:      cfg.Audit,
		logger:   logger,
		expr:     cfg.CronExpr,
		domain:   cfg.Domain,
		interval: interval,
		now:      time.Now,
	}
	next, err := NextRunTime(cfg.CronExpr, s.now())
	if err != nil {
		return nil, fmt.Errorf("briefing cron %q: %w", cfg.CronExpr, err)
	}
	s.nextRun = next
	return s, nil
}

// Start begins the scheduler loop in a background goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Info("briefing scheduler started", "cron", s.expr, "next_run", s.nextRun)
}

// Stop cancels the scheduler loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("briefing scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick fires the schedule when due and advances the next-run marker.
func (s *Scheduler) tick() {
	now := s.now()
	s.mu.Lock()
	due := !now.Before(s.nextRun)
	s.mu.Unlock()
	if !due {
		return
	}
	if err := s.fire(now); err != nil {
		s.logger.Error("briefing fire failed", "err", err)
		return
	}
	next, err := NextRunTime(s.expr, now)
	if err != nil {
		s.logger.Error("briefing next-run compute failed", "cron", s.expr, "err", err)
		return
	}
	s.mu.Lock()
	s.nextRun = next
	s.mu.Unlock()
	s.logger.Info("briefing task filed", "next_run", next)
}

// fire writes the briefing task artifact, seeded with queue counts and
// the size of the past week's audit window so the model reports real
// numbers.
func (s *Scheduler) fire(now time.Time) error {
	name := fmt.Sprintf("BRIEFING_%s.md", now.UTC().Format("2006-01-02"))
	queue := vault.InputQueue(s.domain)
	if s.store.Exists(queue, name) {
		return nil
	}

	completed := s.countQueue(vault.QueueCompleted)
	rejected := s.countQueue(vault.QueueRejected)
	pending := s.countQueue(vault.QueuePendingReview)
	handoffs := s.countQueue(vault.QueueApprovalHandoff)

	events := 0
	if s.log != nil {
		recs, err := s.log.QueryWindow(7 * 24 * time.Hour)
		if err != nil {
			s.logger.Warn("briefing audit window read failed", "err", err)
		}
		events = len(recs)
	}

	content := fmt.Sprintf(`---
type: briefing_request
created: %s
---

# Weekly Briefing

%s

Period ending %s. Vault state:
- Completed: %d
- Rejected: %d
- PendingReview: %d
- ApprovalHandoff: %d
- Audit events in the past 7 days: %d

Use get_accounting_report for the financial summary, then write the
briefing with write_plan.
`, now.UTC().Format(time.RFC3339), engine.BriefingPrompt,
		now.UTC().Format("2006-01-02"),
		completed, rejected, pending, handoffs, events)

	return s.store.Write(queue, name, content)
}

func (s *Scheduler) countQueue(queue string) int {
	names, err := s.store.ListEligible(queue)
	if err != nil {
		s.logger.Warn("briefing queue count failed", "queue", queue, "err", err)
		return 0
	}
	return len(names)
}

// NextRunTime parses the cron expression and returns the next run time
// after the given time.
func NextRunTime(cronExpr string, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}
