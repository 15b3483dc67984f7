// Package watcher catches dpkg activity that bypassed the APT hook.
//
// The hook only runs for transactions APT announces. Direct dpkg
// invocations (dpkg -i, dpkg --purge) and systems where the hook conf was
// removed leave gaps in the snapshot record. The Watcher watches the dpkg
// administrative directory with fsnotify; when the status file changes and
// the journal holds no recent run, the gap is recorded as a missed event
// and optionally closed with a catch-up snapshot.
//
// Key features:
//   - fsnotify watch on /var/lib/dpkg with a debounce window (dpkg rewrites
//     its status file several times per transaction)
//   - Startup scan for activity that happened while the daemon was down
//   - Optional catch-up snapshots through the regular Snapper
//   - Scheduled retention pruning from a cron expression
//   - Daemon mode support with PID file management
//   - Graceful shutdown with SIGTERM/SIGINT handling
//
// Example usage:
//
//	st, err := store.New("/var/lib/aptsnap/aptsnap.db")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer st.Close()
//
//	w, err := watcher.New(st, nil, nil, nil, watcher.Options{})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Start watching in foreground
//	if err := w.Start(); err != nil {
//		log.Fatal(err)
//	}
//	defer w.Stop()
//
//	// Or start as daemon
//	if err := w.StartDaemon("/run/aptsnap.pid", "/var/log/aptsnap.log"); err != nil {
//		log.Fatal(err)
//	}
package watcher
