// Package zfsbackend talks to ZFS. Two real implementations exist: one on
// the go-zfs library and one shelling out to a configurable zfs command,
// plus a no-op recorder for dry runs. Callers pick one through Detect at
// startup and pass it down; nothing in here is process-global.
package zfsbackend

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrSnapshotExists marks a snapshot name collision. Creation reports it
// through a CreationError; callers that generate one name per run treat it
// as an already-done answer.
var ErrSnapshotExists = errors.New("snapshot already exists")

// CreationError reports a failed snapshot creation, carrying the dataset
// and snapshot name so the failure can be attributed.
type CreationError struct {
	Dataset string
	Name    string
	Err     error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("failed to snapshot %s@%s: %v", e.Dataset, e.Name, e.Err)
}

func (e *CreationError) Unwrap() error {
	return e.Err
}

// Snapshot is one ZFS snapshot.
type Snapshot struct {
	Dataset string    // dataset the snapshot belongs to
	Name    string    // part after the "@"
	Created time.Time // zero when the backend cannot tell
	Used    uint64    // bytes held by the snapshot, zero when unknown
}

// Filesystem is a ZFS filesystem as the backend reports it.
type Filesystem struct {
	Name       string
	Mountpoint string
	Used       uint64
	Avail      uint64
}

// Backend is the ZFS surface the rest of the tool works against.
type Backend interface {
	// Name identifies the implementation ("lib", "cli", "null").
	Name() string
	// CreateSnapshot snapshots dataset under the given name. Failures are
	// reported as *CreationError; a name collision unwraps to
	// ErrSnapshotExists.
	CreateSnapshot(dataset, name string) error
	// ListSnapshots returns the snapshots of dataset, or of every dataset
	// when dataset is empty.
	ListSnapshots(dataset string) ([]Snapshot, error)
	// DestroySnapshot removes one snapshot. It never touches filesystems.
	DestroySnapshot(dataset, name string) error
	// AutoSnapshotEnabled reads the com.sun:auto-snapshot property.
	// Datasets without the property count as enabled.
	AutoSnapshotEnabled(dataset string) (bool, error)
	// ListFilesystems returns all ZFS filesystems.
	ListFilesystems() ([]Filesystem, error)
}

// Detect picks a Backend. With no preference, a configured zfs command
// selects the cli implementation and an unconfigured system gets the
// library implementation, provided the zfs tool is present; both paths
// need it, since the library drives the tool too.
func Detect(preference, command string) (Backend, error) {
	switch preference {
	case "", "auto":
		if command != "" && command != "zfs" {
			return detectCLI(command)
		}
		if _, err := exec.LookPath("zfs"); err != nil {
			return nil, fmt.Errorf("no usable snapshot backend: %w", err)
		}
		return NewLib(), nil
	case "lib":
		if _, err := exec.LookPath("zfs"); err != nil {
			return nil, fmt.Errorf("lib backend needs the zfs tool: %w", err)
		}
		return NewLib(), nil
	case "cli":
		return detectCLI(command)
	case "null":
		return NewNull(), nil
	default:
		return nil, fmt.Errorf("unknown snapshot backend %q", preference)
	}
}

func detectCLI(command string) (Backend, error) {
	cli := NewCLI(command)
	if _, err := exec.LookPath(cli.argv[0]); err != nil {
		return nil, fmt.Errorf("cli backend: %w", err)
	}
	return cli, nil
}

// isExistsOutput recognizes the "dataset already exists" answer in zfs
// error output, which is the only way both implementations surface name
// collisions.
func isExistsOutput(s string) bool {
	return strings.Contains(s, "already exists")
}

// splitSnapshotName splits "tank/data@name" into its dataset and snapshot
// halves.
func splitSnapshotName(full string) (dataset, name string, ok bool) {
	i := strings.IndexByte(full, '@')
	if i < 0 {
		return "", "", false
	}
	return full[:i], full[i+1:], true
}
