package watcher

import (
	"sync"
	"testing"

	"github.com/blackwell-systems/aptsnap/internal/store"
	"github.com/blackwell-systems/aptsnap/internal/volumes"
	"github.com/blackwell-systems/aptsnap/internal/zfsbackend"
)

// setupTestStore creates an in-memory SQLite store for tests and registers
// cleanup with t.Cleanup so callers don't need explicit defer.
func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("setupTestStore: open: %v", err)
	}
	if err := st.CreateSchema(); err != nil {
		st.Close()
		t.Fatalf("setupTestStore: schema: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// stubResolver resolves only the paths it was given.
type stubResolver struct {
	vols map[string]volumes.Volume
}

func (r *stubResolver) Resolve(path string) (volumes.Volume, error) {
	vol, ok := r.vols[path]
	if !ok {
		return volumes.Volume{}, &volumes.ResolutionError{Path: path}
	}
	return vol, nil
}

// stubBackend records backend calls. The daemon drives it from its own
// goroutines, so access is locked.
type stubBackend struct {
	mu        sync.Mutex
	snaps     []zfsbackend.Snapshot
	created   []string
	destroyed []string
}

func (b *stubBackend) Name() string { return "stub" }

func (b *stubBackend) CreateSnapshot(dataset, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.created = append(b.created, dataset+"@"+name)
	return nil
}

func (b *stubBackend) ListSnapshots(dataset string) ([]zfsbackend.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snaps, nil
}

func (b *stubBackend) DestroySnapshot(dataset, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroyed = append(b.destroyed, dataset+"@"+name)
	return nil
}

func (b *stubBackend) AutoSnapshotEnabled(dataset string) (bool, error) { return true, nil }

func (b *stubBackend) ListFilesystems() ([]zfsbackend.Filesystem, error) { return nil, nil }

func (b *stubBackend) createdSnapshots() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.created...)
}

func (b *stubBackend) destroyedSnapshots() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.destroyed...)
}
