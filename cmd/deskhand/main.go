package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/basket/deskhand/internal/audit"
	"github.com/basket/deskhand/internal/bus"
	"github.com/basket/deskhand/internal/capability"
	"github.com/basket/deskhand/internal/config"
	"github.com/basket/deskhand/internal/cron"
	"github.com/basket/deskhand/internal/engine"
	"github.com/basket/deskhand/internal/orchestrator"
	otelPkg "github.com/basket/deskhand/internal/otel"
	"github.com/basket/deskhand/internal/skills"
	"github.com/basket/deskhand/internal/telemetry"
	"github.com/basket/deskhand/internal/vault"
	"github.com/basket/deskhand/internal/watch"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.1-dev"

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage of %s:

  %s                          Start the task daemon for the configured role
  %s version                  Print the build version

FLAGS:
`, os.Args[0], os.Args[0], os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
ENVIRONMENT VARIABLES:
  DESKHAND_HOME           Data directory (default: ~/.deskhand)
  DESKHAND_ROLE_KIND      "privileged" or "restricted"
  DESKHAND_ROLE_ID        In-progress queue namespace (default: local/cloud)
  DESKHAND_DOMAINS        Comma-separated input domains for this role
  ANTHROPIC_API_KEY       Required unless llm.api_key_env points elsewhere
`)
}

func main() {
	loadDotEnv(".env")

	quiet := flag.Bool("quiet", false, "log to file only, keep stdout clean")
	flag.Usage = printUsage
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		switch strings.ToLower(strings.TrimSpace(args[0])) {
		case "help", "-h", "--help":
			printUsage()
			os.Exit(0)
		case "version":
			fmt.Println(Version)
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
			printUsage()
			os.Exit(2)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fatalStartup(nil, "E_CONFIG_LOAD", err)
	}

	logger, closer, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, *quiet)
	if err != nil {
		fatalStartup(nil, "E_LOGGER_INIT", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)
	logger.Info("startup phase", "phase", "config_loaded",
		"role_kind", cfg.RoleKind, "role_id", cfg.RoleID,
		"vault", cfg.VaultPath, "fingerprint", cfg.Fingerprint())

	role, err := capability.NewRole(capability.RoleKind(cfg.RoleKind), cfg.RoleID)
	if err != nil {
		fatalStartup(logger, "E_ROLE_INIT", err)
	}

	apiKey := strings.TrimSpace(os.Getenv(cfg.LLM.APIKeyEnv))
	if apiKey == "" {
		fatalStartup(logger, "E_API_KEY", fmt.Errorf("environment variable %s is empty", cfg.LLM.APIKeyEnv))
	}

	// OpenTelemetry is a no-op provider when disabled.
	otelProvider, err := otelPkg.Init(ctx, otelPkg.Config{
		Enabled:     cfg.Otel.Enabled,
		Exporter:    cfg.Otel.Exporter,
		Endpoint:    cfg.Otel.Endpoint,
		ServiceName: cfg.Otel.ServiceName,
	})
	if err != nil {
		fatalStartup(logger, "E_OTEL_INIT", err)
	}
	defer otelProvider.Shutdown(context.Background())
	metrics, err := otelPkg.NewMetrics(otelProvider.Meter)
	if err != nil {
		fatalStartup(logger, "E_OTEL_METRICS", err)
	}

	store := vault.New(cfg.VaultPath, logger)
	if err := store.EnsureLayout(cfg.RoleID); err != nil {
		fatalStartup(logger, "E_VAULT_LAYOUT", err)
	}
	logger.Info("startup phase", "phase", "vault_ready")

	auditLog, err := audit.Open(filepath.Join(cfg.VaultPath, vault.DirLogs))
	if err != nil {
		fatalStartup(logger, "E_AUDIT_OPEN", err)
	}
	defer auditLog.Close()
	if cfg.AuditDBPath != "" {
		if err := auditLog.AttachDB(cfg.AuditDBPath); err != nil {
			fatalStartup(logger, "E_AUDIT_DB", err)
		}
	}

	eventBus := bus.New()
	go logTaskEvents(ctx, eventBus, logger)

	catalog, err := skills.NewCatalog()
	if err != nil {
		fatalStartup(logger, "E_CATALOG_INIT", err)
	}
	connectors := &dryRunConnectors{logger: logger.With("component", "connectors")}
	dispatcher := skills.New(skills.Config{
		Role:    role,
		Catalog: catalog,
		Store:   store,
		Audit:   auditLog,
		Logger:  logger,
		Bus:     eventBus,
		Mail:    connectors,
		Social:  connectors,
		Ledger:  connectors,
	})

	model := engine.NewAnthropicModel(apiKey, cfg.LLM.Model, int64(cfg.LLM.MaxTokens))
	loop := engine.New(engine.Config{
		Model:            model,
		Dispatcher:       dispatcher,
		Store:            store,
		Audit:            auditLog,
		Logger:           logger,
		MaxTurns:         cfg.MaxTurns,
		PaymentThreshold: cfg.PaymentThreshold,
	})

	orch := orchestrator.New(orchestrator.Config{
		Store:      store,
		Runner:     loop,
		Dispatcher: dispatcher,
		Audit:      auditLog,
		Bus:        eventBus,
		Logger:     logger,
		Metrics:    metrics,
		Role:       role,
		Domains:    cfg.Domains,
		MaxWorkers: cfg.MaxWorkers,
		MaxRetries: cfg.MaxRetries,
	})

	if cfg.BriefingCron != "" {
		scheduler, err := cron.NewScheduler(cron.Config{
			Store:    store,
			Audit:    auditLog,
			Logger:   logger,
			CronExpr: cfg.BriefingCron,
			Domain:   cfg.Domains[0],
		})
		if err != nil {
			fatalStartup(logger, "E_CRON_INIT", err)
		}
		scheduler.Start(ctx)
		defer scheduler.Stop()
		logger.Info("startup phase", "phase", "scheduler_started", "cron", cfg.BriefingCron)
	}

	if cfg.Watch.Enabled {
		watcher := watch.NewWatcher(watch.Config{
			Store:   store,
			Logger:  logger,
			DropDir: cfg.Watch.DropDir,
			Domain:  cfg.Watch.Domain,
		})
		if err := watcher.Start(ctx); err != nil {
			fatalStartup(logger, "E_WATCH_INIT", err)
		}
		logger.Info("startup phase", "phase", "watcher_started", "drop_dir", cfg.Watch.DropDir)
	}

	ticker := time.NewTicker(cfg.ScanInterval())
	defer ticker.Stop()
	logger.Info("daemon running", "run_id", uuid.NewString(),
		"scan_interval", cfg.ScanInterval().String(), "workers", cfg.MaxWorkers)

	orch.Run(ctx, ticker.C)
	logger.Info("daemon stopped")
}

// logTaskEvents mirrors lifecycle events onto the structured log so an
// operator tailing daemon.jsonl sees queue movement without reading the
// audit sink.
func logTaskEvents(ctx context.Context, eventBus *bus.Bus, logger *slog.Logger) {
	sub := eventBus.Subscribe("")
	defer eventBus.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Ch():
			if !ok {
				return
			}
			te, _ := ev.Payload.(bus.TaskEvent)
			logger.Info("task event", "topic", ev.Topic,
				"task", te.Task, "role_id", te.RoleID, "queue", te.Queue,
				"turns", te.Turns, "error", te.Error)
		}
	}
}

// dryRunConnectors stands in for the external email, social and
// accounting services. Every call is logged and answered with a canned
// confirmation; swap in real implementations per deployment.
type dryRunConnectors struct {
	logger *slog.Logger
}

func (c *dryRunConnectors) Send(_ context.Context, to, subject, _ string) (string, error) {
	c.logger.Info("dry-run send_email", "to", to, "subject", subject)
	return fmt.Sprintf("email to %s queued (dry run)", to), nil
}

func (c *dryRunConnectors) Reply(_ context.Context, messageID, _ string) (string, error) {
	c.logger.Info("dry-run reply_email", "message_id", messageID)
	return fmt.Sprintf("reply to %s queued (dry run)", messageID), nil
}

func (c *dryRunConnectors) Label(_ context.Context, messageID, label string) (string, error) {
	c.logger.Info("dry-run label_email", "message_id", messageID, "label", label)
	return fmt.Sprintf("label %q applied to %s (dry run)", label, messageID), nil
}

func (c *dryRunConnectors) Post(_ context.Context, network, text, _ string) (string, error) {
	c.logger.Info("dry-run social post", "network", network, "chars", len(text))
	return fmt.Sprintf("post to %s queued (dry run)", network), nil
}

func (c *dryRunConnectors) CreateInvoice(_ context.Context, partner string, amount float64, _ string) (string, error) {
	c.logger.Info("dry-run create_invoice", "partner", partner, "amount", amount)
	return fmt.Sprintf("invoice for %s over %.2f created (dry run)", partner, amount), nil
}

func (c *dryRunConnectors) ListContacts(_ context.Context, query string) (string, error) {
	c.logger.Info("dry-run list_contacts", "query", query)
	return "no contacts matched (dry run)", nil
}

func (c *dryRunConnectors) Report(_ context.Context, period string) (string, error) {
	c.logger.Info("dry-run accounting report", "period", period)
	return fmt.Sprintf("accounting report for %s: no movements (dry run)", period), nil
}

func (c *dryRunConnectors) PostPayment(_ context.Context, invoiceID int, amount float64) (string, error) {
	c.logger.Info("dry-run post_payment", "invoice_id", invoiceID, "amount", amount)
	return fmt.Sprintf("payment of %.2f posted against invoice %d (dry run)", amount, invoiceID), nil
}

func fatalStartup(logger *slog.Logger, reasonCode string, err error) {
	message := ""
	if err != nil {
		message = err.Error()
	}
	if logger != nil {
		logger.Error("startup failure", "reason_code", reasonCode, "error", message)
	} else {
		fmt.Fprintf(
			os.Stderr,
			`{"timestamp":"%s","level":"ERROR","component":"daemon","trace_id":"-","msg":"startup failure","reason_code":%q,"error":%q}`+"\n",
			time.Now().UTC().Format(time.RFC3339Nano),
			reasonCode,
			message,
		)
	}
	os.Exit(1)
}

// loadDotEnv applies KEY=VALUE lines from a local .env file without
// overriding variables already set in the environment.
func loadDotEnv(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.Index(line, "=")
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		if key == "" || os.Getenv(key) != "" {
			continue
		}
		_ = os.Setenv(key, val)
	}
}
