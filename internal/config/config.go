// Package config loads the immutable runtime configuration from
// config.yaml plus environment overrides. The resulting Config value is
// constructed once in main and passed explicitly to every component.
package config

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/basket/deskhand/internal/capability"
)

// LLMConfig holds settings for the Anthropic-backed model capability.
type LLMConfig struct {
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
	MaxTokens int    `yaml:"max_tokens"`
}

// OtelConfig holds OpenTelemetry exporter settings.
type OtelConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Exporter    string `yaml:"exporter"` // "otlp-http" or "stdout"
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

// WatchConfig holds inbox drop-folder watcher settings.
type WatchConfig struct {
	Enabled bool   `yaml:"enabled"`
	DropDir string `yaml:"drop_dir"`
	Domain  string `yaml:"domain"` // input subqueue new drops are filed into
}

type Config struct {
	HomeDir string `yaml:"-"`

	// RoleKind is "privileged" or "restricted"; RoleID namespaces the
	// in-progress queue and appears in audit records.
	RoleKind string `yaml:"role_kind"`
	RoleID   string `yaml:"role_id"`

	// VaultPath is the root of the shared store.
	VaultPath string `yaml:"vault_path"`

	// Domains this role scans under Input/. The privileged role also owns
	// the Input/ root and the ApprovalHandoff queue by convention.
	Domains []string `yaml:"domains"`

	ScanIntervalSeconds int     `yaml:"scan_interval_seconds"`
	MaxWorkers          int     `yaml:"max_workers"`
	MaxRetries          int     `yaml:"max_retries"`
	MaxTurns            int     `yaml:"max_turns"`
	PaymentThreshold    float64 `yaml:"payment_threshold"`
	SyncIntervalSeconds int     `yaml:"sync_interval_seconds"`

	// BriefingCron fires the weekly briefing task ("0 8 * * 1" by default).
	// Empty disables the scheduler.
	BriefingCron string `yaml:"briefing_cron"`

	// AuditDBPath mirrors the audit log into a SQLite table when non-empty.
	AuditDBPath string `yaml:"audit_db_path"`

	LogLevel string `yaml:"log_level"`

	LLM   LLMConfig   `yaml:"llm"`
	Otel  OtelConfig  `yaml:"otel"`
	Watch WatchConfig `yaml:"watch"`
}

func defaultConfig() Config {
	return Config{
		RoleKind: string(capability.RolePrivileged),
		// RoleID is resolved in normalize once the kind is known.
		ScanIntervalSeconds: 60,
		MaxWorkers:          3,
		MaxRetries:          3,
		MaxTurns:            10,
		PaymentThreshold:    500,
		SyncIntervalSeconds: 60,
		BriefingCron:        "0 8 * * 1",
		LogLevel:            "info",
		LLM: LLMConfig{
			Model:     "claude-sonnet-4-5",
			APIKeyEnv: "ANTHROPIC_API_KEY",
			MaxTokens: 4096,
		},
	}
}

// HomeDir returns the deskhand data directory (~/.deskhand or
// $DESKHAND_HOME).
func HomeDir() string {
	if override := os.Getenv("DESKHAND_HOME"); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".deskhand")
}

// Load reads config.yaml from the home directory, applies env overrides,
// normalizes defaults and validates the result.
func Load() (Config, error) {
	return LoadFrom(HomeDir())
}

// LoadFrom is Load with an explicit home directory, for tests.
func LoadFrom(homeDir string) (Config, error) {
	cfg := defaultConfig()
	cfg.HomeDir = homeDir

	if err := os.MkdirAll(cfg.HomeDir, 0o755); err != nil {
		return cfg, fmt.Errorf("create deskhand home: %w", err)
	}

	configPath := filepath.Join(cfg.HomeDir, "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read config.yaml: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config.yaml: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func normalize(cfg *Config) {
	if cfg.RoleKind == "" {
		cfg.RoleKind = string(capability.RolePrivileged)
	}
	if cfg.RoleID == "" {
		// Matches the original deployment convention: role id equals kind
		// alias, "local" for privileged and "cloud" for restricted.
		if cfg.RoleKind == string(capability.RoleRestricted) {
			cfg.RoleID = "cloud"
		} else {
			cfg.RoleID = "local"
		}
	}
	if cfg.VaultPath == "" {
		cfg.VaultPath = filepath.Join(cfg.HomeDir, "vault")
	}
	if cfg.ScanIntervalSeconds <= 0 {
		cfg.ScanIntervalSeconds = 60
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 3
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 10
	}
	if cfg.PaymentThreshold <= 0 {
		cfg.PaymentThreshold = 500
	}
	if cfg.SyncIntervalSeconds <= 0 {
		cfg.SyncIntervalSeconds = 60
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	// Only one role may own the Input/ root; by convention that is the
	// privileged one. The restricted role must be told its domains.
	if len(cfg.Domains) == 0 && cfg.RoleKind == string(capability.RolePrivileged) {
		cfg.Domains = []string{""}
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "claude-sonnet-4-5"
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = "ANTHROPIC_API_KEY"
	}
	if cfg.LLM.MaxTokens <= 0 {
		cfg.LLM.MaxTokens = 4096
	}
}

func validate(cfg Config) error {
	switch capability.RoleKind(cfg.RoleKind) {
	case capability.RolePrivileged, capability.RoleRestricted:
	default:
		return fmt.Errorf("role_kind must be %q or %q, got %q",
			capability.RolePrivileged, capability.RoleRestricted, cfg.RoleKind)
	}
	if capability.RoleKind(cfg.RoleKind) == capability.RoleRestricted && len(cfg.Domains) == 0 {
		return fmt.Errorf("restricted role requires at least one input domain (set domains or DESKHAND_DOMAINS)")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if raw := os.Getenv("DESKHAND_ROLE_KIND"); raw != "" {
		cfg.RoleKind = raw
	}
	if raw := os.Getenv("DESKHAND_ROLE_ID"); raw != "" {
		cfg.RoleID = raw
	}
	if raw := os.Getenv("DESKHAND_VAULT_PATH"); raw != "" {
		cfg.VaultPath = raw
	}
	if raw := os.Getenv("DESKHAND_DOMAINS"); raw != "" {
		var domains []string
		for _, d := range strings.Split(raw, ",") {
			domains = append(domains, strings.TrimSpace(d))
		}
		cfg.Domains = domains
	}
	if raw := os.Getenv("DESKHAND_SCAN_INTERVAL_SECONDS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.ScanIntervalSeconds = v
		}
	}
	if raw := os.Getenv("DESKHAND_MAX_WORKERS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.MaxWorkers = v
		}
	}
	if raw := os.Getenv("DESKHAND_MAX_RETRIES"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.MaxRetries = v
		}
	}
	if raw := os.Getenv("DESKHAND_MAX_TURNS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.MaxTurns = v
		}
	}
	if raw := os.Getenv("DESKHAND_PAYMENT_THRESHOLD"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			cfg.PaymentThreshold = v
		}
	}
	if raw := os.Getenv("DESKHAND_SYNC_INTERVAL_SECONDS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.SyncIntervalSeconds = v
		}
	}
	if raw := os.Getenv("DESKHAND_LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := os.Getenv("DESKHAND_MODEL"); raw != "" {
		cfg.LLM.Model = raw
	}
}

// ScanInterval returns the scan interval as a duration.
func (c Config) ScanInterval() time.Duration {
	return time.Duration(c.ScanIntervalSeconds) * time.Second
}

// SyncInterval returns the cross-machine sync interval as a duration.
// Approval artifacts may be invisible to the other role for up to this
// long; that latency is a documented bound, not a bug.
func (c Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalSeconds) * time.Second
}

// Fingerprint returns a stable hash of the active config for startup logs.
func (c Config) Fingerprint() string {
	h := fnv.New64a()
	fmt.Fprintf(h, "role=%s/%s|vault=%s|workers=%d|retries=%d|turns=%d|threshold=%.2f",
		c.RoleKind, c.RoleID, c.VaultPath, c.MaxWorkers, c.MaxRetries, c.MaxTurns, c.PaymentThreshold)
	return fmt.Sprintf("cfg-%x", h.Sum64())
}
