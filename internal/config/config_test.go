package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.SnapshotPrefix != "aptsnap" {
		t.Errorf("SnapshotPrefix = %q, want aptsnap", cfg.SnapshotPrefix)
	}
	if cfg.Backend != "auto" {
		t.Errorf("Backend = %q, want auto", cfg.Backend)
	}
	if cfg.ZFSCommand != "zfs" {
		t.Errorf("ZFSCommand = %q, want zfs", cfg.ZFSCommand)
	}
	if !cfg.RespectAutoSnapshot {
		t.Error("RespectAutoSnapshot should default to true")
	}
	if cfg.Retention.KeepLast != 10 || cfg.Retention.MaxAgeDays != 90 {
		t.Errorf("Retention = %+v, want keep 10 for 90 days", cfg.Retention)
	}
	if cfg.PruneSchedule != "@daily" {
		t.Errorf("PruneSchedule = %q, want @daily", cfg.PruneSchedule)
	}
	if cfg.DBPath != "/var/lib/aptsnap/aptsnap.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestLoadMissingDefaultLocation(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := load(missing, false)
	if err != nil {
		t.Fatalf("load() returned error for missing default config: %v", err)
	}
	if cfg.SnapshotPrefix != "aptsnap" {
		t.Errorf("missing config should yield defaults, got %+v", cfg)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "config.yaml")

	if _, err := load(missing, true); err == nil {
		t.Error("load() should fail when a named config file is missing")
	}
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
snapshot_prefix: pre-apt
backend: cli
zfs_command: sudo zfs
respect_auto_snapshot: false
ignore_datasets:
  - rpool/swap
  - "tank/scratch*"
retention:
  keep_last: 5
  max_age_days: 30
prune_schedule: "0 3 * * *"
db_path: /tmp/aptsnap-test.db
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.SnapshotPrefix != "pre-apt" {
		t.Errorf("SnapshotPrefix = %q, want pre-apt", cfg.SnapshotPrefix)
	}
	if cfg.Backend != "cli" {
		t.Errorf("Backend = %q, want cli", cfg.Backend)
	}
	if cfg.ZFSCommand != "sudo zfs" {
		t.Errorf("ZFSCommand = %q, want sudo zfs", cfg.ZFSCommand)
	}
	if cfg.RespectAutoSnapshot {
		t.Error("RespectAutoSnapshot should be false")
	}
	if len(cfg.IgnoreDatasets) != 2 || cfg.IgnoreDatasets[1] != "tank/scratch*" {
		t.Errorf("IgnoreDatasets = %v", cfg.IgnoreDatasets)
	}
	if cfg.Retention.KeepLast != 5 || cfg.Retention.MaxAgeDays != 30 {
		t.Errorf("Retention = %+v, want keep 5 for 30 days", cfg.Retention)
	}
	if cfg.PruneSchedule != "0 3 * * *" {
		t.Errorf("PruneSchedule = %q", cfg.PruneSchedule)
	}
	if cfg.DBPath != "/tmp/aptsnap-test.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
}

func TestLoadPartialConfigKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "snapshot_prefix: nightly\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.SnapshotPrefix != "nightly" {
		t.Errorf("SnapshotPrefix = %q, want nightly", cfg.SnapshotPrefix)
	}
	// Everything not in the file keeps its default, including booleans
	// that default to true.
	if !cfg.RespectAutoSnapshot {
		t.Error("RespectAutoSnapshot should keep its true default")
	}
	if cfg.Backend != "auto" {
		t.Errorf("Backend = %q, want auto", cfg.Backend)
	}
	if cfg.Retention.KeepLast != 10 {
		t.Errorf("Retention.KeepLast = %d, want 10", cfg.Retention.KeepLast)
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfig(t, "snapshot_prefix: [unclosed\n")

	if _, err := Load(path); err == nil {
		t.Error("Load() should fail on malformed YAML")
	}
}

func TestLoadHonorsEnvironment(t *testing.T) {
	path := writeConfig(t, "snapshot_prefix: from-env\n")
	t.Setenv("APTSNAP_CONFIG", path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.SnapshotPrefix != "from-env" {
		t.Errorf("SnapshotPrefix = %q, want from-env", cfg.SnapshotPrefix)
	}
}

func TestPath(t *testing.T) {
	t.Setenv("APTSNAP_CONFIG", "")
	if got := Path(); got != DefaultPath {
		t.Errorf("Path() = %q, want %q", got, DefaultPath)
	}

	t.Setenv("APTSNAP_CONFIG", "/tmp/custom.yaml")
	if got := Path(); got != "/tmp/custom.yaml" {
		t.Errorf("Path() = %q, want /tmp/custom.yaml", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "prefix with at sign",
			mutate:  func(c *Config) { c.SnapshotPrefix = "apt@snap" },
			wantErr: "snapshot_prefix",
		},
		{
			name:    "prefix with slash",
			mutate:  func(c *Config) { c.SnapshotPrefix = "apt/snap" },
			wantErr: "snapshot_prefix",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Backend = "libzfs4ever" },
			wantErr: "backend",
		},
		{
			name:    "malformed ignore pattern",
			mutate:  func(c *Config) { c.IgnoreDatasets = []string{"rpool/["} },
			wantErr: "ignore_datasets",
		},
		{
			name:    "negative keep_last",
			mutate:  func(c *Config) { c.Retention.KeepLast = -1 },
			wantErr: "keep_last",
		},
		{
			name:    "negative max_age_days",
			mutate:  func(c *Config) { c.Retention.MaxAgeDays = -7 },
			wantErr: "max_age_days",
		},
		{
			name:    "unparseable schedule",
			mutate:  func(c *Config) { c.PruneSchedule = "every other tuesday" },
			wantErr: "prune_schedule",
		},
		{
			name:   "cron schedule",
			mutate: func(c *Config) { c.PruneSchedule = "30 4 * * 1" },
		},
		{
			name:   "empty schedule disables pruning",
			mutate: func(c *Config) { c.PruneSchedule = "" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error mentioning %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestRetentionMaxAge(t *testing.T) {
	r := Retention{MaxAgeDays: 90}
	if got := r.MaxAge(); got != 90*24*time.Hour {
		t.Errorf("MaxAge() = %v, want %v", got, 90*24*time.Hour)
	}
	if got := (Retention{}).MaxAge(); got != 0 {
		t.Errorf("MaxAge() = %v, want 0", got)
	}
}
