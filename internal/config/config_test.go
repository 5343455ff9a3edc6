package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFrom(t *testing.T) {
	t.Run("defaults_when_no_config_file", func(t *testing.T) {
		cfg, err := LoadFrom(t.TempDir())
		if err != nil {
			t.Fatalf("LoadFrom: %v", err)
		}
		if cfg.RoleKind != "privileged" || cfg.RoleID != "local" {
			t.Errorf("unexpected role defaults: %s/%s", cfg.RoleKind, cfg.RoleID)
		}
		if cfg.MaxWorkers != 3 || cfg.MaxRetries != 3 || cfg.MaxTurns != 10 {
			t.Errorf("unexpected limits: workers=%d retries=%d turns=%d",
				cfg.MaxWorkers, cfg.MaxRetries, cfg.MaxTurns)
		}
		if cfg.PaymentThreshold != 500 {
			t.Errorf("payment threshold = %v, want 500", cfg.PaymentThreshold)
		}
	})

	t.Run("yaml_values_override_defaults", func(t *testing.T) {
		home := t.TempDir()
		yaml := []byte(`
role_kind: restricted
max_workers: 5
max_turns: 4
payment_threshold: 250
domains:
  - Email
  - Social
`)
		if err := os.WriteFile(filepath.Join(home, "config.yaml"), yaml, 0o644); err != nil {
			t.Fatal(err)
		}
		cfg, err := LoadFrom(home)
		if err != nil {
			t.Fatalf("LoadFrom: %v", err)
		}
		if cfg.RoleKind != "restricted" {
			t.Errorf("role_kind = %q", cfg.RoleKind)
		}
		if cfg.RoleID != "cloud" {
			t.Errorf("restricted role should default to id cloud, got %q", cfg.RoleID)
		}
		if cfg.MaxWorkers != 5 || cfg.MaxTurns != 4 {
			t.Errorf("limits not applied: %d/%d", cfg.MaxWorkers, cfg.MaxTurns)
		}
		if len(cfg.Domains) != 2 || cfg.Domains[0] != "Email" {
			t.Errorf("domains = %v", cfg.Domains)
		}
	})

	t.Run("restricted_kind_alone_gets_cloud_id", func(t *testing.T) {
		t.Setenv("DESKHAND_ROLE_ID", "")
		home := t.TempDir()
		yaml := []byte("role_kind: restricted\ndomains:\n  - Email\n")
		if err := os.WriteFile(filepath.Join(home, "config.yaml"), yaml, 0o644); err != nil {
			t.Fatal(err)
		}
		cfg, err := LoadFrom(home)
		if err != nil {
			t.Fatalf("LoadFrom: %v", err)
		}
		if cfg.RoleID != "cloud" {
			t.Errorf("role_id = %q, want cloud: restricted must not share the privileged in-progress namespace", cfg.RoleID)
		}
	})

	t.Run("restricted_without_domains_rejected", func(t *testing.T) {
		t.Setenv("DESKHAND_DOMAINS", "")
		home := t.TempDir()
		yaml := []byte("role_kind: restricted\n")
		if err := os.WriteFile(filepath.Join(home, "config.yaml"), yaml, 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadFrom(home); err == nil {
			t.Fatal("expected error for restricted role with no domains")
		}
	})

	t.Run("env_overrides_win", func(t *testing.T) {
		t.Setenv("DESKHAND_MAX_TURNS", "7")
		t.Setenv("DESKHAND_ROLE_ID", "cloud-a")
		cfg, err := LoadFrom(t.TempDir())
		if err != nil {
			t.Fatalf("LoadFrom: %v", err)
		}
		if cfg.MaxTurns != 7 {
			t.Errorf("MaxTurns = %d, want 7", cfg.MaxTurns)
		}
		if cfg.RoleID != "cloud-a" {
			t.Errorf("RoleID = %q, want cloud-a", cfg.RoleID)
		}
	})

	t.Run("invalid_role_kind_rejected", func(t *testing.T) {
		home := t.TempDir()
		if err := os.WriteFile(filepath.Join(home, "config.yaml"), []byte("role_kind: root\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadFrom(home); err == nil {
			t.Fatal("expected error for invalid role_kind")
		}
	})

	t.Run("fingerprint_is_stable", func(t *testing.T) {
		home := t.TempDir()
		a, err := LoadFrom(home)
		if err != nil {
			t.Fatal(err)
		}
		b, err := LoadFrom(home)
		if err != nil {
			t.Fatal(err)
		}
		if a.Fingerprint() != b.Fingerprint() {
			t.Errorf("fingerprint changed between identical loads")
		}
	})
}
