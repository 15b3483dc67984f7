package watcher

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/blackwell-systems/aptsnap/internal/snapper"
	"github.com/blackwell-systems/aptsnap/internal/store"
	"github.com/blackwell-systems/aptsnap/internal/zfsbackend"
)

// DefaultDpkgDir is the dpkg administrative directory watched for package
// activity.
const DefaultDpkgDir = "/var/lib/dpkg"

const (
	defaultDebounce = 5 * time.Second
	defaultGrace    = 2 * time.Minute

	// startupSlack is how far the status file's mtime may trail the newest
	// run before the startup scan flags it. Status writes trail the hook by
	// the length of the transaction, so this is much wider than the live
	// debounce grace.
	startupSlack = time.Hour
)

// catchUpPaths stand in for the unknown paths of a missed dpkg operation:
// the directories package files land in on a split-dataset install.
var catchUpPaths = []string{"/", "/boot", "/etc", "/opt", "/usr", "/var"}

// Options configures the watch daemon.
type Options struct {
	// DpkgDir is the dpkg administrative directory to watch.
	DpkgDir string

	// Debounce is how long the status area must stay quiet after a write
	// before the activity is examined.
	Debounce time.Duration

	// Grace is how far back a journaled run still counts as covering
	// observed activity.
	Grace time.Duration

	// CatchUp takes a snapshot through the Snapper when activity had no
	// covering run.
	CatchUp bool

	// Schedule, when non-nil, applies the retention policy inside the
	// daemon every time it fires.
	Schedule PruneSchedule

	// Policy and Prefix scope the scheduled prune.
	Policy snapper.RetentionPolicy
	Prefix string
}

// PruneSchedule yields the next time the scheduled prune should run.
// cron.Schedule satisfies it.
type PruneSchedule interface {
	Next(time.Time) time.Time
}

// Watcher watches the dpkg administrative directory for package activity
// that bypassed the hook and records it as missed events.
type Watcher struct {
	store    *store.Store
	snapper  *snapper.Snapper
	resolver snapper.PathResolver
	backend  zfsbackend.Backend
	opts     Options

	fsw    *fsnotify.Watcher
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Watcher. snap and resolver are only needed with
// Options.CatchUp, backend only with Options.Schedule.
func New(st *store.Store, snap *snapper.Snapper, resolver snapper.PathResolver, backend zfsbackend.Backend, opts Options) (*Watcher, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if opts.CatchUp && (snap == nil || resolver == nil) {
		return nil, fmt.Errorf("catch-up snapshots need a snapper and a resolver")
	}
	if opts.Schedule != nil && backend == nil {
		return nil, fmt.Errorf("scheduled pruning needs a backend")
	}

	if opts.DpkgDir == "" {
		opts.DpkgDir = DefaultDpkgDir
	}
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	if opts.Grace <= 0 {
		opts.Grace = defaultGrace
	}
	if opts.Prefix == "" {
		opts.Prefix = snapper.DefaultPrefix
	}

	return &Watcher{
		store:    st,
		snapper:  snap,
		resolver: resolver,
		backend:  backend,
		opts:     opts,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins watching the dpkg directory. Activity that happened while
// no daemon was running is checked once up front.
func (w *Watcher) Start() error {
	if err := w.startupScan(); err != nil {
		log.Printf("watcher: startup scan: %v", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(w.opts.DpkgDir); err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", w.opts.DpkgDir, err)
	}
	w.fsw = fsw

	w.wg.Add(1)
	go w.watchDpkg()

	if w.opts.Schedule != nil {
		w.wg.Add(1)
		go w.runPruneSchedule()
	}

	return nil
}

// Stop halts the watcher and waits for its goroutines to drain.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	if w.fsw != nil {
		w.fsw.Close()
	}
	w.wg.Wait()
	return nil
}

// watchDpkg debounces status-file events and examines each settled burst.
func (w *Watcher) watchDpkg() {
	defer w.wg.Done()

	debounce := time.NewTimer(w.opts.Debounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	var activityStart time.Time
	armed := false

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !statusEvent(event) {
				continue
			}
			if !armed {
				activityStart = time.Now()
				armed = true
			}
			if !debounce.Stop() {
				select {
				case <-debounce.C:
				default:
				}
			}
			debounce.Reset(w.opts.Debounce)

		case <-debounce.C:
			if !armed {
				continue
			}
			armed = false
			w.handleActivity(activityStart)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("watcher: fsnotify: %v", err)

		case <-w.stopCh:
			return
		}
	}
}

// statusEvent reports whether a filesystem event plausibly belongs to a
// dpkg transaction. dpkg rewrites status via status-new and keeps the
// previous generation as status-old.
func statusEvent(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	return strings.HasPrefix(filepath.Base(event.Name), "status")
}

// handleActivity checks a settled burst of status writes against the
// journal and records a missed event when nothing covers it.
func (w *Watcher) handleActivity(since time.Time) {
	n, err := w.store.RunsSince(since.Add(-w.opts.Grace))
	if err != nil {
		log.Printf("watcher: journal check: %v", err)
		return
	}
	if n > 0 {
		return
	}

	detail := fmt.Sprintf("dpkg status changed around %s with no covering run",
		since.UTC().Format(time.RFC3339))
	if err := w.store.InsertMissedEvent(time.Now().UTC(), detail); err != nil {
		log.Printf("watcher: record missed event: %v", err)
	}
	log.Printf("watcher: %s", detail)

	if w.opts.CatchUp {
		w.catchUp()
	}
}

// startupScan flags dpkg activity from before this daemon started: a status
// file modified well after the newest journaled run. An empty journal gives
// nothing to compare against, so a fresh install is never flagged.
func (w *Watcher) startupScan() error {
	info, err := os.Stat(filepath.Join(w.opts.DpkgDir, "status"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	mtime := info.ModTime()

	latest, err := w.store.LatestRun()
	if err != nil {
		return err
	}
	if latest == nil || mtime.Before(latest.StartedAt.Add(startupSlack)) {
		return nil
	}

	// Already on record from an earlier daemon life. Journal timestamps
	// carry second resolution, so compare on that boundary.
	events, err := w.store.ListMissedEvents(1)
	if err != nil {
		return err
	}
	if len(events) > 0 && !events[0].DetectedAt.Before(mtime.Truncate(time.Second)) {
		return nil
	}

	detail := fmt.Sprintf("dpkg status modified %s, after the newest run",
		mtime.UTC().Format(time.RFC3339))
	log.Printf("watcher: %s", detail)
	return w.store.InsertMissedEvent(time.Now().UTC(), detail)
}

// catchUp snapshots whatever ZFS volumes the usual package targets resolve
// to. The paths a missed operation actually touched are unknown after the
// fact.
func (w *Watcher) catchUp() {
	var paths []string
	for _, p := range catchUpPaths {
		if _, err := w.resolver.Resolve(p); err == nil {
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 {
		log.Printf("watcher: catch-up: no ZFS-backed paths to snapshot")
		return
	}

	result, err := w.snapper.SnapshotAffected(&snapper.Transaction{
		Reason: "watch",
		Paths:  paths,
	})
	if err != nil {
		log.Printf("watcher: catch-up snapshot: %v", err)
		return
	}

	created, reused, skipped := result.Tally()
	log.Printf("watcher: catch-up snapshot %s: %d created, %d reused, %d skipped",
		result.Name, created, reused, skipped)
	if result.JournalErr != nil {
		log.Printf("watcher: catch-up journal: %v", result.JournalErr)
	}
}
