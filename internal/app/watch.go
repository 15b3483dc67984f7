package app

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/aptsnap/internal/config"
	"github.com/blackwell-systems/aptsnap/internal/output"
	"github.com/blackwell-systems/aptsnap/internal/snapper"
	"github.com/blackwell-systems/aptsnap/internal/store"
	"github.com/blackwell-systems/aptsnap/internal/volumes"
	"github.com/blackwell-systems/aptsnap/internal/watcher"
	"github.com/blackwell-systems/aptsnap/internal/zfsbackend"
)

var (
	watchDaemon       bool
	watchDaemonChild  bool
	watchPIDFile      string
	watchLogFile      string
	watchStop         bool
	watchAutoSnapshot bool

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Watch for dpkg activity that bypassed the hook",
		Long: `Watches the dpkg administrative directory for status-file rewrites.
Activity with no matching journal run — a direct 'dpkg -i', or the
hook not being registered — is recorded as a missed event.

With --auto-snapshot, a catch-up snapshot of the usual system datasets
is taken when that happens; the paths the operation really touched are
unknown after the fact. When the configuration sets prune_schedule,
the retention policy also runs inside the daemon on that schedule.

Watch modes:
  • Foreground (default): run in this terminal, Ctrl+C to stop
  • Daemon: run in the background, managed through a PID file
  • Stop: stop a running daemon`,
		Example: `  # Run in foreground (Ctrl+C to stop)
  aptsnap watch

  # Run as background daemon
  aptsnap watch --daemon

  # Snapshot when bypassed activity is caught
  aptsnap watch --daemon --auto-snapshot

  # Stop the daemon
  aptsnap watch --stop`,
		RunE: runWatch,
	}
)

func init() {
	watchCmd.Flags().BoolVar(&watchDaemon, "daemon", false, "run as background daemon")
	watchCmd.Flags().BoolVar(&watchDaemonChild, "daemon-child", false, "internal flag for the daemon child process")
	watchCmd.Flags().StringVar(&watchPIDFile, "pid-file", defaultPIDFile, "PID file path")
	watchCmd.Flags().StringVar(&watchLogFile, "log-file", defaultLogFile, "log file path")
	watchCmd.Flags().BoolVar(&watchStop, "stop", false, "stop a running daemon")
	watchCmd.Flags().BoolVar(&watchAutoSnapshot, "auto-snapshot", false, "take a catch-up snapshot when bypassed activity is caught")

	watchCmd.Flags().MarkHidden("daemon-child")

	RootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if watchStop {
		return stopWatchDaemon()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	w, err := buildWatcher(cfg, st)
	if err != nil {
		return err
	}

	if watchDaemon {
		return startWatchDaemon(w)
	}
	if watchDaemonChild {
		return w.RunDaemon(watchPIDFile)
	}
	return runWatchForeground(w)
}

// buildWatcher assembles the watcher from configuration. Catch-up
// snapshots and the prune schedule both need a backend; when none can
// be detected the watcher still runs, recording missed events only.
func buildWatcher(cfg *config.Config, st *store.Store) (*watcher.Watcher, error) {
	opts := watcher.Options{Prefix: cfg.SnapshotPrefix}

	var backend zfsbackend.Backend
	if watchAutoSnapshot || cfg.PruneSchedule != "" {
		b, err := detectBackend(cfg, "")
		if err != nil {
			fmt.Fprintf(os.Stderr, "⚠ no snapshot backend (%v); watching without catch-up or scheduled prune\n", err)
		} else {
			backend = b
		}
	}

	var snap *snapper.Snapper
	var resolver snapper.PathResolver
	if watchAutoSnapshot && backend != nil {
		r, err := volumes.NewResolver()
		if err != nil {
			return nil, fmt.Errorf("failed to read mount table: %w", err)
		}
		resolver = r
		snap = snapper.New(r, backend, st, snapper.Options{
			Prefix:              cfg.SnapshotPrefix,
			RespectAutoSnapshot: cfg.RespectAutoSnapshot,
			IgnoreDatasets:      cfg.IgnoreDatasets,
		})
		opts.CatchUp = true
	}

	if cfg.PruneSchedule != "" && backend != nil {
		schedule, err := cron.ParseStandard(cfg.PruneSchedule)
		if err != nil {
			return nil, fmt.Errorf("bad prune_schedule %q: %w", cfg.PruneSchedule, err)
		}
		opts.Schedule = schedule
		opts.Policy = snapper.RetentionPolicy{
			KeepLast: cfg.Retention.KeepLast,
			MaxAge:   cfg.Retention.MaxAge(),
		}
	}

	return watcher.New(st, snap, resolver, backend, opts)
}

func stopWatchDaemon() error {
	running, err := watcher.IsDaemonRunning(watchPIDFile)
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}
	if !running {
		fmt.Println("Daemon is not running")
		return nil
	}

	spinner := output.NewSpinner("Stopping daemon...")
	spinner.Start()
	if err := watcher.StopDaemon(watchPIDFile); err != nil {
		spinner.Stop()
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	spinner.StopWithMessage("✓ Daemon stopped")
	return nil
}

func startWatchDaemon(w *watcher.Watcher) error {
	// The child re-runs 'watch --daemon-child' through cobra, so every
	// flag that shaped this watcher must travel along.
	args := []string{"--pid-file", watchPIDFile, "--log-file", watchLogFile}
	if watchAutoSnapshot {
		args = append(args, "--auto-snapshot")
	}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	if dbPath != "" {
		args = append(args, "--db", dbPath)
	}

	spinner := output.NewSpinner("Starting daemon...")
	spinner.Start()
	if err := w.StartDaemon(watchPIDFile, watchLogFile, args...); err != nil {
		spinner.Stop()
		return err
	}
	spinner.StopWithMessage("✓ Daemon started")

	fmt.Println()
	fmt.Printf("  PID file: %s\n", watchPIDFile)
	fmt.Printf("  Log file: %s\n", watchLogFile)
	fmt.Println()
	fmt.Println("To stop: aptsnap watch --stop")
	return nil
}

func runWatchForeground(w *watcher.Watcher) error {
	fmt.Println("Watching for dpkg activity (press Ctrl+C to stop)...")

	if err := w.Start(); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigCh
	fmt.Printf("\nReceived signal %v, shutting down...\n", sig)

	if err := w.Stop(); err != nil {
		return fmt.Errorf("failed to stop watcher: %w", err)
	}
	return nil
}
