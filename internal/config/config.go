// Package config provides configuration file parsing for aptsnap.
package config

import (
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where aptsnap looks for its configuration.
const DefaultPath = "/etc/aptsnap/config.yaml"

// Retention bounds how many snapshots a prune leaves behind. A snapshot
// survives when it is among the keep_last newest on its dataset or younger
// than max_age_days; zero disables the respective limit.
type Retention struct {
	KeepLast   int `yaml:"keep_last"`
	MaxAgeDays int `yaml:"max_age_days"`
}

// MaxAge returns the age limit as a duration.
func (r Retention) MaxAge() time.Duration {
	return time.Duration(r.MaxAgeDays) * 24 * time.Hour
}

// Config is the aptsnap configuration file.
type Config struct {
	// SnapshotPrefix names the snapshots: <prefix>-<timestamp>.
	SnapshotPrefix string `yaml:"snapshot_prefix"`
	// Backend picks the ZFS implementation: auto, lib, cli, or null.
	Backend string `yaml:"backend"`
	// ZFSCommand is the zfs invocation for the cli backend, split on
	// whitespace so wrappers like "sudo zfs" work.
	ZFSCommand string `yaml:"zfs_command"`
	// RespectAutoSnapshot skips datasets with com.sun:auto-snapshot off.
	RespectAutoSnapshot bool `yaml:"respect_auto_snapshot"`
	// IgnoreDatasets holds glob patterns for datasets never to snapshot.
	IgnoreDatasets []string `yaml:"ignore_datasets"`
	// Retention bounds what prune keeps.
	Retention Retention `yaml:"retention"`
	// PruneSchedule is a cron expression for the watch daemon's automatic
	// prune, empty to disable.
	PruneSchedule string `yaml:"prune_schedule"`
	// DBPath locates the run journal.
	DBPath string `yaml:"db_path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		SnapshotPrefix:      "aptsnap",
		Backend:             "auto",
		ZFSCommand:          "zfs",
		RespectAutoSnapshot: true,
		Retention: Retention{
			KeepLast:   10,
			MaxAgeDays: 90,
		},
		PruneSchedule: "@daily",
		DBPath:        "/var/lib/aptsnap/aptsnap.db",
	}
}

// Path returns the configuration file to load: the APTSNAP_CONFIG
// environment variable when set, DefaultPath otherwise.
func Path() string {
	if p := os.Getenv("APTSNAP_CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads the configuration at the given path, falling back to Path()
// when it is empty. A missing file at the default location yields the
// built-in defaults; a file the caller or environment asked for by name
// must exist.
func Load(configPath string) (*Config, error) {
	explicit := configPath != ""
	if !explicit {
		configPath = Path()
		explicit = configPath != DefaultPath
	}
	return load(configPath, explicit)
}

func load(configPath string, explicit bool) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Unmarshal on top of the defaults, so absent keys keep them.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	return cfg, nil
}

// Validate rejects values the rest of the tool would choke on later.
func (c *Config) Validate() error {
	if strings.ContainsAny(c.SnapshotPrefix, "@/ ") {
		return fmt.Errorf("snapshot_prefix %q must not contain '@', '/', or spaces", c.SnapshotPrefix)
	}
	switch c.Backend {
	case "", "auto", "lib", "cli", "null":
	default:
		return fmt.Errorf("backend must be auto, lib, cli, or null, not %q", c.Backend)
	}
	for _, pattern := range c.IgnoreDatasets {
		if _, err := path.Match(pattern, ""); err != nil {
			return fmt.Errorf("bad ignore_datasets pattern %q: %w", pattern, err)
		}
	}
	if c.Retention.KeepLast < 0 {
		return fmt.Errorf("retention.keep_last must not be negative, got %d", c.Retention.KeepLast)
	}
	if c.Retention.MaxAgeDays < 0 {
		return fmt.Errorf("retention.max_age_days must not be negative, got %d", c.Retention.MaxAgeDays)
	}
	if c.PruneSchedule != "" {
		if _, err := cron.ParseStandard(c.PruneSchedule); err != nil {
			return fmt.Errorf("bad prune_schedule %q: %w", c.PruneSchedule, err)
		}
	}
	return nil
}
