package zfsbackend

import (
	"sync"
	"time"
)

// Null implements Backend without touching ZFS. Dry runs use it so the
// rest of the pipeline runs unconditionally; it remembers what it was
// asked to create so the outcome can be shown.
type Null struct {
	mu      sync.Mutex
	created []Snapshot
}

// NewNull returns a recording no-op backend.
func NewNull() *Null {
	return &Null{}
}

func (n *Null) Name() string {
	return "null"
}

func (n *Null) CreateSnapshot(dataset, name string) error {
	if err := validateSnapshotName(dataset, name); err != nil {
		return &CreationError{Dataset: dataset, Name: name, Err: err}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, Snapshot{Dataset: dataset, Name: name, Created: time.Now().UTC()})
	return nil
}

func (n *Null) ListSnapshots(dataset string) ([]Snapshot, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	var snapshots []Snapshot
	for _, s := range n.created {
		if dataset == "" || s.Dataset == dataset {
			snapshots = append(snapshots, s)
		}
	}
	return snapshots, nil
}

func (n *Null) DestroySnapshot(dataset, name string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	kept := n.created[:0]
	for _, s := range n.created {
		if s.Dataset != dataset || s.Name != name {
			kept = append(kept, s)
		}
	}
	n.created = kept
	return nil
}

func (n *Null) AutoSnapshotEnabled(dataset string) (bool, error) {
	return true, nil
}

func (n *Null) ListFilesystems() ([]Filesystem, error) {
	return nil, nil
}
