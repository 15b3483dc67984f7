package zfsbackend

import (
	"fmt"

	zfs "github.com/mistifyio/go-zfs/v3"
)

// Lib drives ZFS through the go-zfs library.
type Lib struct{}

// NewLib returns the library-backed implementation.
func NewLib() *Lib {
	return &Lib{}
}

func (l *Lib) Name() string {
	return "lib"
}

func (l *Lib) CreateSnapshot(dataset, name string) error {
	if err := validateSnapshotName(dataset, name); err != nil {
		return &CreationError{Dataset: dataset, Name: name, Err: err}
	}
	ds, err := zfs.GetDataset(dataset)
	if err != nil {
		return &CreationError{Dataset: dataset, Name: name, Err: fmt.Errorf("failed to open dataset: %w", err)}
	}
	if _, err := ds.Snapshot(name, false); err != nil {
		if isExistsOutput(err.Error()) {
			return &CreationError{Dataset: dataset, Name: name, Err: ErrSnapshotExists}
		}
		return &CreationError{Dataset: dataset, Name: name, Err: err}
	}
	return nil
}

func (l *Lib) ListSnapshots(dataset string) ([]Snapshot, error) {
	listed, err := zfs.Snapshots(dataset)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	var snapshots []Snapshot
	for _, ds := range listed {
		parent, name, ok := splitSnapshotName(ds.Name)
		if !ok {
			continue
		}
		// The library lists recursively; keep only the dataset itself.
		if dataset != "" && parent != dataset {
			continue
		}
		snapshots = append(snapshots, Snapshot{
			Dataset: parent,
			Name:    name,
			Used:    ds.Used,
		})
	}
	return snapshots, nil
}

func (l *Lib) DestroySnapshot(dataset, name string) error {
	if err := validateSnapshotName(dataset, name); err != nil {
		return err
	}
	ds, err := zfs.GetDataset(dataset + "@" + name)
	if err != nil {
		return fmt.Errorf("failed to open snapshot %s@%s: %w", dataset, name, err)
	}
	if err := ds.Destroy(zfs.DestroyDefault); err != nil {
		return fmt.Errorf("failed to destroy %s@%s: %w", dataset, name, err)
	}
	return nil
}

func (l *Lib) AutoSnapshotEnabled(dataset string) (bool, error) {
	ds, err := zfs.GetDataset(dataset)
	if err != nil {
		return false, fmt.Errorf("failed to open dataset %s: %w", dataset, err)
	}
	value, err := ds.GetProperty(autoSnapshotProperty)
	if err != nil {
		return false, fmt.Errorf("failed to read %s on %s: %w", autoSnapshotProperty, dataset, err)
	}
	return autoSnapshotValue(value), nil
}

func (l *Lib) ListFilesystems() ([]Filesystem, error) {
	listed, err := zfs.Filesystems("")
	if err != nil {
		return nil, fmt.Errorf("failed to list filesystems: %w", err)
	}
	var filesystems []Filesystem
	for _, ds := range listed {
		filesystems = append(filesystems, Filesystem{
			Name:       ds.Name,
			Mountpoint: ds.Mountpoint,
			Used:       ds.Used,
			Avail:      ds.Avail,
		})
	}
	return filesystems, nil
}
