package app

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/blackwell-systems/aptsnap/internal/config"
	"github.com/blackwell-systems/aptsnap/internal/snapper"
	"github.com/blackwell-systems/aptsnap/internal/store"
	"github.com/blackwell-systems/aptsnap/internal/volumes"
	"github.com/blackwell-systems/aptsnap/internal/zfsbackend"
)

// Default daemon files. The watcher needs root to see /var/lib/dpkg
// anyway, so the system locations are fine.
const (
	defaultPIDFile = "/run/aptsnap.pid"
	defaultLogFile = "/var/log/aptsnap.log"
)

// loadConfig reads the configuration, applying the --config and --db
// persistent flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	return cfg, nil
}

// openStore opens the run journal, creating its directory and schema on
// first use.
func openStore(cfg *config.Config) (*store.Store, error) {
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	st, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", cfg.DBPath, err)
	}
	if err := st.CreateSchema(); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create journal schema: %w", err)
	}
	return st, nil
}

// detectBackend picks the snapshot backend, honoring a per-command
// --backend override over the configured preference.
func detectBackend(cfg *config.Config, override string) (zfsbackend.Backend, error) {
	preference := cfg.Backend
	if override != "" {
		preference = override
	}
	return zfsbackend.Detect(preference, cfg.ZFSCommand)
}

// runSnapshot drives the snapshot pipeline for one transaction. A dry run
// swaps in the recording null backend and skips the journal, so the
// pipeline still resolves, dedupes, and filters exactly as a real run
// would without creating anything.
func runSnapshot(cfg *config.Config, tx *snapper.Transaction, backendOverride, prefixOverride string, ignoreAuto, dryRun bool) (*snapper.Result, error) {
	resolver, err := volumes.NewResolver()
	if err != nil {
		return nil, fmt.Errorf("failed to read mount table: %w", err)
	}

	var backend zfsbackend.Backend
	var journal snapper.Journal
	if dryRun {
		backend = zfsbackend.NewNull()
	} else {
		backend, err = detectBackend(cfg, backendOverride)
		if err != nil {
			return nil, err
		}
		st, err := openStore(cfg)
		if err != nil {
			return nil, err
		}
		defer st.Close()
		journal = st
	}

	prefix := cfg.SnapshotPrefix
	if prefixOverride != "" {
		prefix = prefixOverride
	}
	snap := snapper.New(resolver, backend, journal, snapper.Options{
		Prefix:              prefix,
		RespectAutoSnapshot: cfg.RespectAutoSnapshot && !ignoreAuto,
		IgnoreDatasets:      cfg.IgnoreDatasets,
	})
	return snap.SnapshotAffected(tx)
}

// printResult reports a finished run on stdout.
func printResult(result *snapper.Result, verbose, dryRun bool) {
	if result.Name == "" {
		// Empty transaction: nothing resolved, nothing to report.
		return
	}
	if verbose {
		for _, o := range result.Outcomes {
			if o.Status == store.OutcomeSkipped {
				fmt.Printf("  %s: skipped (%s)\n", o.Dataset, o.Detail)
				continue
			}
			fmt.Printf("  %s@%s: %s\n", o.Dataset, o.Name, o.Status)
		}
	}
	created, reused, skipped := result.Tally()
	if dryRun {
		fmt.Printf("Dry run: %s would cover %d datasets (%d skipped), nothing created\n",
			result.Name, created+reused, skipped)
		return
	}
	fmt.Printf("✓ %s: %d created, %d reused, %d skipped\n", result.Name, created, reused, skipped)
	if result.JournalErr != nil {
		fmt.Fprintf(os.Stderr, "⚠ snapshots taken but run not journaled: %v\n", result.JournalErr)
	}
}

// confirm asks a yes/no question on stdin, defaulting to no.
func confirm(prompt string) bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("%s [y/N]: ", prompt)

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

// parseAge parses a retention age like "30d" or "72h". Days are accepted
// as a suffix because time.ParseDuration stops at hours.
func parseAge(s string) (time.Duration, error) {
	if days, err := strconv.Atoi(strings.TrimSuffix(s, "d")); err == nil && strings.HasSuffix(s, "d") {
		if days < 0 {
			return 0, fmt.Errorf("age %q must not be negative", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("bad age %q (want something like 30d or 72h)", s)
	}
	if d < 0 {
		return 0, fmt.Errorf("age %q must not be negative", s)
	}
	return d, nil
}
