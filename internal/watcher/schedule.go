package watcher

import (
	"log"
	"time"

	"github.com/blackwell-systems/aptsnap/internal/snapper"
)

// runPruneSchedule applies the retention policy each time the schedule
// fires, until the watcher stops.
func (w *Watcher) runPruneSchedule() {
	defer w.wg.Done()

	for {
		next := w.opts.Schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-timer.C:
			destroyed, err := snapper.Prune(w.backend, w.opts.Prefix, w.opts.Policy, time.Now())
			if err != nil {
				log.Printf("watcher: scheduled prune: %v", err)
			}
			if len(destroyed) > 0 {
				log.Printf("watcher: scheduled prune destroyed %d snapshots", len(destroyed))
			}

		case <-w.stopCh:
			timer.Stop()
			return
		}
	}
}
