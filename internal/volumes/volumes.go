// Package volumes maps filesystem paths to the ZFS datasets they live on,
// using the process mount table.
package volumes

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/prometheus/procfs"
)

// Volume is a mounted ZFS filesystem.
type Volume struct {
	Dataset    string
	Mountpoint string
}

// ResolutionError reports a path that no mounted ZFS filesystem contains.
// Snapshotting cannot cover such a path, so the caller must treat this as
// fatal rather than skip the path.
type ResolutionError struct {
	Path string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("no ZFS filesystem contains %s", e.Path)
}

// Resolver answers which ZFS dataset owns a path. It holds a point-in-time
// copy of the mount table; mounts changing mid-transaction are not observed.
type Resolver struct {
	mounts []Volume // ZFS rows in mount table order
}

// NewResolver builds a Resolver from the current mount table.
func NewResolver() (*Resolver, error) {
	mounts, err := procfs.GetMounts()
	if err != nil {
		return nil, fmt.Errorf("failed to read mount table: %w", err)
	}
	return newResolver(mounts), nil
}

func newResolver(mounts []*procfs.MountInfo) *Resolver {
	r := &Resolver{}
	for _, m := range mounts {
		if m.FSType != "zfs" {
			continue
		}
		r.mounts = append(r.mounts, Volume{Dataset: m.Source, Mountpoint: m.MountPoint})
	}
	return r
}

// Resolve returns the volume owning the given absolute path. Paths the
// transaction is about to create are resolved through their closest
// existing ancestor, symlinks included, since that is where the new files
// will land.
func (r *Resolver) Resolve(path string) (Volume, error) {
	if !filepath.IsAbs(path) {
		return Volume{}, fmt.Errorf("cannot resolve relative path %q", path)
	}
	existing, err := nearestExisting(filepath.Clean(path))
	if err != nil {
		return Volume{}, err
	}
	return r.resolveMounted(existing)
}

// resolveMounted finds the ZFS mount with the longest mount point that is
// the path itself or one of its ancestors. When overmounts leave several
// rows with the same mount point, the latest row wins, matching which
// filesystem the kernel actually serves there.
func (r *Resolver) resolveMounted(path string) (Volume, error) {
	path = filepath.Clean(path)
	var best *Volume
	for i := range r.mounts {
		m := &r.mounts[i]
		if !covers(m.Mountpoint, path) {
			continue
		}
		if best != nil && len(m.Mountpoint) < len(best.Mountpoint) {
			continue
		}
		best = m
	}
	if best == nil {
		return Volume{}, &ResolutionError{Path: path}
	}
	return *best, nil
}

// Volumes returns every mounted ZFS filesystem, one entry per dataset.
func (r *Resolver) Volumes() []Volume {
	seen := make(map[string]struct{}, len(r.mounts))
	var vols []Volume
	for _, m := range r.mounts {
		if _, ok := seen[m.Dataset]; ok {
			continue
		}
		seen[m.Dataset] = struct{}{}
		vols = append(vols, m)
	}
	return vols
}

// covers reports whether mountpoint is path itself or an ancestor of it,
// on path component boundaries: "/data" covers "/data/db" but not "/database".
func covers(mountpoint, path string) bool {
	if mountpoint == "/" {
		return true
	}
	return path == mountpoint || strings.HasPrefix(path, mountpoint+"/")
}

// nearestExisting walks up from path to the closest ancestor that exists
// and resolves symlinks in it.
func nearestExisting(path string) (string, error) {
	for {
		_, err := os.Stat(path)
		if err == nil {
			break
		}
		if !os.IsNotExist(err) && !isNotDir(err) {
			return "", fmt.Errorf("failed to stat %s: %w", path, err)
		}
		parent := filepath.Dir(path)
		if parent == path {
			return "", fmt.Errorf("no existing ancestor for %s", path)
		}
		path = parent
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve symlinks in %s: %w", path, err)
	}
	return resolved, nil
}

// isNotDir catches stats through a file, e.g. /usr/bin/tool/new-file while
// tool is currently a regular file.
func isNotDir(err error) bool {
	return errors.Is(err, syscall.ENOTDIR)
}

// Leaves drops every path that is a strict ancestor of another path in
// the set, returning the remaining leaves sorted. Package file lists name
// each parent directory as its own entry; resolving only the leaves gives
// the same volume set with far fewer lookups, since a parent can never
// live on a different dataset than all of its children.
func Leaves(paths []string) []string {
	keep := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		keep[filepath.Clean(p)] = struct{}{}
	}
	for _, p := range paths {
		for dir := filepath.Dir(filepath.Clean(p)); ; dir = filepath.Dir(dir) {
			delete(keep, dir)
			if dir == "/" || dir == "." {
				break
			}
		}
	}
	leaves := make([]string, 0, len(keep))
	for p := range keep {
		leaves = append(leaves, p)
	}
	sort.Strings(leaves)
	return leaves
}
