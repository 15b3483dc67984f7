package snapper

import (
	"fmt"
	"sort"
	"time"

	"github.com/blackwell-systems/aptsnap/internal/zfsbackend"
)

// RetentionPolicy says which snapshots survive a prune. A snapshot is kept
// when it is among the KeepLast newest on its dataset or no older than
// MaxAge; a limit of zero is ignored, and a policy with both limits zero
// prunes nothing.
type RetentionPolicy struct {
	KeepLast int
	MaxAge   time.Duration
}

// Empty reports a policy that never prunes.
func (p RetentionPolicy) Empty() bool {
	return p.KeepLast <= 0 && p.MaxAge <= 0
}

// ManagedSnapshots lists the snapshots created under the given prefix,
// sorted by dataset and newest first within each. The lib backend cannot
// report creation times, so missing ones are recovered from the name.
func ManagedSnapshots(b zfsbackend.Backend, prefix string) ([]zfsbackend.Snapshot, error) {
	snaps, err := b.ListSnapshots("")
	if err != nil {
		return nil, err
	}
	var ours []zfsbackend.Snapshot
	for _, snap := range snaps {
		t, ok := TimeFromName(prefix, snap.Name)
		if !ok {
			continue
		}
		if snap.Created.IsZero() {
			snap.Created = t
		}
		ours = append(ours, snap)
	}
	sort.Slice(ours, func(i, j int) bool {
		if ours[i].Dataset != ours[j].Dataset {
			return ours[i].Dataset < ours[j].Dataset
		}
		if !ours[i].Created.Equal(ours[j].Created) {
			return ours[i].Created.After(ours[j].Created)
		}
		return ours[i].Name < ours[j].Name
	})
	return ours, nil
}

// PlanPrune returns the snapshots the policy would destroy, in the order
// ManagedSnapshots lists them. Snapshots without the prefix are never
// candidates.
func PlanPrune(b zfsbackend.Backend, prefix string, policy RetentionPolicy, now time.Time) ([]zfsbackend.Snapshot, error) {
	if policy.Empty() {
		return nil, nil
	}
	snaps, err := ManagedSnapshots(b, prefix)
	if err != nil {
		return nil, err
	}
	var doomed []zfsbackend.Snapshot
	rank := 0
	dataset := ""
	for _, snap := range snaps {
		if snap.Dataset != dataset {
			dataset = snap.Dataset
			rank = 0
		}
		keep := policy.KeepLast > 0 && rank < policy.KeepLast
		if !keep && policy.MaxAge > 0 && now.Sub(snap.Created) <= policy.MaxAge {
			keep = true
		}
		rank++
		if !keep {
			doomed = append(doomed, snap)
		}
	}
	return doomed, nil
}

// Prune destroys what PlanPrune selects, stopping at the first failure,
// and returns the snapshots actually destroyed.
func Prune(b zfsbackend.Backend, prefix string, policy RetentionPolicy, now time.Time) ([]zfsbackend.Snapshot, error) {
	doomed, err := PlanPrune(b, prefix, policy, now)
	if err != nil {
		return nil, err
	}
	var destroyed []zfsbackend.Snapshot
	for _, snap := range doomed {
		if err := b.DestroySnapshot(snap.Dataset, snap.Name); err != nil {
			return destroyed, fmt.Errorf("failed to destroy %s@%s: %w", snap.Dataset, snap.Name, err)
		}
		destroyed = append(destroyed, snap)
	}
	return destroyed, nil
}
