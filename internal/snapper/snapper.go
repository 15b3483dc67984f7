// Package snapper creates the pre-transaction ZFS snapshots. It reduces
// the paths a package transaction touches to the set of datasets backing
// them, snapshots each dataset once under a single run name, and journals
// what happened.
package snapper

import (
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/blackwell-systems/aptsnap/internal/store"
	"github.com/blackwell-systems/aptsnap/internal/volumes"
	"github.com/blackwell-systems/aptsnap/internal/zfsbackend"
	"github.com/google/uuid"
)

// PathResolver maps an affected path to the volume backing it.
// *volumes.Resolver is the real implementation.
type PathResolver interface {
	Resolve(path string) (volumes.Volume, error)
}

// Journal persists finished runs. *store.Store implements it.
type Journal interface {
	RecordRun(run *store.Run, snapshots []*store.SnapshotRecord) error
}

// Options tune a Snapper.
type Options struct {
	// Prefix names the snapshots: <prefix>-<timestamp>. Defaults to
	// DefaultPrefix.
	Prefix string
	// RespectAutoSnapshot skips datasets with com.sun:auto-snapshot off.
	RespectAutoSnapshot bool
	// IgnoreDatasets holds glob patterns for datasets never to snapshot.
	IgnoreDatasets []string
	// Now supplies the clock. Defaults to time.Now.
	Now func() time.Time
}

// Transaction describes one package transaction about to run.
type Transaction struct {
	Reason          string // "apt-hook", "manual", "watch"
	ProtocolVersion int    // hook protocol version, 0 outside the hook
	PackageCount    int
	Paths           []string
}

// Outcome is what happened to one volume during a run.
type Outcome struct {
	Dataset string
	Name    string // empty when the volume was skipped
	Status  string // store.OutcomeCreated, store.OutcomeReused, store.OutcomeSkipped
	Detail  string // why the volume was skipped, empty otherwise
}

// Result reports a finished run.
type Result struct {
	RunID    string
	Name     string
	Outcomes []Outcome
	// JournalErr is set when the run succeeded but recording it did not.
	// The snapshots exist either way, so this is a warning, not a failure.
	JournalErr error
}

// Tally counts the outcomes by status.
func (r *Result) Tally() (created, reused, skipped int) {
	for _, o := range r.Outcomes {
		switch o.Status {
		case store.OutcomeCreated:
			created++
		case store.OutcomeReused:
			reused++
		case store.OutcomeSkipped:
			skipped++
		}
	}
	return created, reused, skipped
}

// Set collects the volumes a transaction touches, one entry per dataset in
// first-seen order. Many paths resolve to the same dataset; the set is
// what keeps a run to one snapshot per volume.
type Set struct {
	order []volumes.Volume
	seen  map[string]struct{}
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{seen: make(map[string]struct{})}
}

// Add records v unless its dataset is already present.
func (s *Set) Add(v volumes.Volume) {
	if _, ok := s.seen[v.Dataset]; ok {
		return
	}
	s.seen[v.Dataset] = struct{}{}
	s.order = append(s.order, v)
}

// Len returns the number of distinct datasets.
func (s *Set) Len() int {
	return len(s.order)
}

// Volumes returns the collected volumes in first-seen order.
func (s *Set) Volumes() []volumes.Volume {
	return s.order
}

// Snapper coordinates one snapshot pass over a transaction.
type Snapper struct {
	resolver PathResolver
	backend  zfsbackend.Backend
	journal  Journal
	opts     Options
}

// New builds a Snapper. journal may be nil to skip run recording.
func New(resolver PathResolver, backend zfsbackend.Backend, journal Journal, opts Options) *Snapper {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Snapper{
		resolver: resolver,
		backend:  backend,
		journal:  journal,
		opts:     opts,
	}
}

// SnapshotAffected snapshots every volume the transaction touches, one
// snapshot per dataset, all under the same run name. A transaction with no
// paths succeeds without touching the backend or the journal. Resolution
// runs to completion before the first snapshot is taken, so a path outside
// ZFS aborts the run with nothing created. A snapshot that already exists
// under the run's name counts as done, which makes an interrupted hook
// safe to rerun.
func (s *Snapper) SnapshotAffected(tx *Transaction) (*Result, error) {
	if len(tx.Paths) == 0 {
		return &Result{}, nil
	}

	now := s.opts.Now().UTC()
	run := &store.Run{
		ID:              uuid.New().String(),
		StartedAt:       now,
		Reason:          tx.Reason,
		ProtocolVersion: tx.ProtocolVersion,
		PackageCount:    tx.PackageCount,
		PathCount:       len(tx.Paths),
	}

	set := NewSet()
	for _, leaf := range volumes.Leaves(tx.Paths) {
		vol, err := s.resolver.Resolve(leaf)
		if err != nil {
			return nil, s.fail(run, nil, err)
		}
		set.Add(vol)
	}
	run.VolumeCount = set.Len()
	run.SnapshotName = NameForTime(s.opts.Prefix, now)

	// Decide the fate of every volume before creating anything, so a
	// filter failure aborts the run with no snapshots taken.
	vols := set.Volumes()
	outcomes := make([]Outcome, len(vols))
	var targets []int
	for i, vol := range vols {
		outcomes[i].Dataset = vol.Dataset
		if pattern, ok := s.ignored(vol.Dataset); ok {
			outcomes[i].Status = store.OutcomeSkipped
			outcomes[i].Detail = fmt.Sprintf("matches ignore pattern %q", pattern)
			continue
		}
		if s.opts.RespectAutoSnapshot {
			enabled, err := s.backend.AutoSnapshotEnabled(vol.Dataset)
			if err != nil {
				return nil, s.fail(run, outcomes, fmt.Errorf("failed to read auto-snapshot property of %s: %w", vol.Dataset, err))
			}
			if !enabled {
				outcomes[i].Status = store.OutcomeSkipped
				outcomes[i].Detail = "com.sun:auto-snapshot is off"
				continue
			}
		}
		targets = append(targets, i)
	}

	for _, i := range targets {
		err := s.backend.CreateSnapshot(vols[i].Dataset, run.SnapshotName)
		switch {
		case err == nil:
			outcomes[i].Name = run.SnapshotName
			outcomes[i].Status = store.OutcomeCreated
		case errors.Is(err, zfsbackend.ErrSnapshotExists):
			outcomes[i].Name = run.SnapshotName
			outcomes[i].Status = store.OutcomeReused
		default:
			return nil, s.fail(run, outcomes, err)
		}
	}

	run.Status = store.RunOK
	result := &Result{
		RunID:    run.ID,
		Name:     run.SnapshotName,
		Outcomes: outcomes,
	}
	result.JournalErr = s.record(run, outcomes)
	return result, nil
}

// ignored reports whether dataset matches one of the configured ignore
// patterns. Patterns are validated when the configuration loads, so match
// errors cannot happen here.
func (s *Snapper) ignored(dataset string) (string, bool) {
	for _, pattern := range s.opts.IgnoreDatasets {
		if ok, _ := path.Match(pattern, dataset); ok {
			return pattern, true
		}
	}
	return "", false
}

// fail journals the aborted run and hands the cause back. Journal trouble
// on an already failing run is not worth surfacing over the real error.
func (s *Snapper) fail(run *store.Run, outcomes []Outcome, cause error) error {
	run.Status = store.RunFailed
	run.Error = cause.Error()
	_ = s.record(run, outcomes)
	return cause
}

func (s *Snapper) record(run *store.Run, outcomes []Outcome) error {
	if s.journal == nil {
		return nil
	}
	rows := make([]*store.SnapshotRecord, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Status == "" {
			// Never reached before the run aborted.
			continue
		}
		rows = append(rows, &store.SnapshotRecord{
			RunID:     run.ID,
			Dataset:   o.Dataset,
			Name:      o.Name,
			Outcome:   o.Status,
			Detail:    o.Detail,
			CreatedAt: run.StartedAt,
		})
	}
	return s.journal.RecordRun(run, rows)
}
