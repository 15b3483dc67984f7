package hookproto

import (
	"fmt"
	"sort"
)

// FileLister enumerates the files a package change touches. Implemented by
// the dpkg package; tests substitute fakes.
type FileLister interface {
	// InstalledFiles lists the files owned by an installed package.
	InstalledFiles(pkg string) ([]string, error)
	// ArchiveFiles lists the files a .deb archive would unpack.
	ArchiveFiles(debPath string) ([]string, error)
	// Installed reports whether the package is currently installed.
	Installed(pkg string) (bool, error)
}

// AffectedPaths expands a report into the set of filesystem paths the
// transaction will create, modify or delete, deduplicated and sorted.
//
// Unpacks contribute the archive's file list; upgrades additionally
// contribute the installed old version's files, since those may be removed
// when it is replaced. Removals and reconfigurations contribute the
// installed file list, and are skipped for packages that are not installed
// yet (their files arrive through an unpack in the same transaction).
// Packages APT marks **ERROR** are skipped entirely.
func AffectedPaths(report *Report, lister FileLister) ([]string, error) {
	seen := make(map[string]struct{})
	add := func(paths []string) {
		for _, p := range paths {
			seen[p] = struct{}{}
		}
	}

	for _, change := range report.Changes {
		switch {
		case change.Unpacking():
			paths, err := lister.ArchiveFiles(change.DebPath())
			if err != nil {
				return nil, fmt.Errorf("failed to list files in %s: %w", change.DebPath(), err)
			}
			add(paths)
			if change.Replacing() {
				paths, err := installedFiles(lister, change.Package)
				if err != nil {
					return nil, err
				}
				add(paths)
			}
		case change.Action == ActionRemove, change.Action == ActionConfigure:
			paths, err := installedFiles(lister, change.Package)
			if err != nil {
				return nil, err
			}
			add(paths)
		case change.Action == ActionError:
			// APT already failed this package; it will not touch any files.
		default:
			return nil, fmt.Errorf("unrecognized action %q for package %s", change.Action, change.Package)
		}
	}

	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

func installedFiles(lister FileLister, pkg string) ([]string, error) {
	installed, err := lister.Installed(pkg)
	if err != nil {
		return nil, fmt.Errorf("failed to check install state of %s: %w", pkg, err)
	}
	if !installed {
		return nil, nil
	}
	paths, err := lister.InstalledFiles(pkg)
	if err != nil {
		return nil, fmt.Errorf("failed to list installed files of %s: %w", pkg, err)
	}
	return paths, nil
}
