// Package dpkg shells out to the system dpkg tools to enumerate the files a
// package owns or would unpack.
package dpkg

import (
	"fmt"
	"os/exec"
	"path"
	"strings"
)

// Tool queries the dpkg database and package archives. It implements
// hookproto.FileLister.
type Tool struct{}

// New returns a Tool using the dpkg executables on PATH.
func New() *Tool {
	return &Tool{}
}

// InstalledFiles returns the absolute paths owned by an installed package.
func (t *Tool) InstalledFiles(pkg string) ([]string, error) {
	cmd := exec.Command("dpkg-query", "--listfiles", "--", pkg)
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("dpkg-query --listfiles failed for %s: %w (stderr: %s)", pkg, err, string(exitErr.Stderr))
		}
		return nil, fmt.Errorf("dpkg-query --listfiles failed for %s: %w", pkg, err)
	}

	return parseFileList(string(output)), nil
}

// Installed reports whether pkg is currently installed. Packages that were
// removed but still have config files around count as not installed.
func (t *Tool) Installed(pkg string) (bool, error) {
	cmd := exec.Command("dpkg-query", "--status", "--", pkg)
	output, err := cmd.Output()
	if err != nil {
		// dpkg-query exits non-zero for unknown packages; that is an
		// answer, not a failure.
		if _, ok := err.(*exec.ExitError); ok {
			return false, nil
		}
		return false, fmt.Errorf("dpkg-query --status failed for %s: %w", pkg, err)
	}

	return parseInstalledStatus(string(output)), nil
}

// parseFileList extracts absolute paths from dpkg-query --listfiles output.
// The root entry "/." and diversion notes ("diverted by ... to: ...") are
// dropped.
func parseFileList(output string) []string {
	var paths []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "/") {
			continue
		}
		if p, ok := normalizeEntry(line); ok {
			paths = append(paths, p)
		}
	}
	return paths
}

// parseInstalledStatus reads the Status field of dpkg-query --status output.
// The field holds three words (want, error state, current state); a package
// is installed when the current state is "installed".
func parseInstalledStatus(output string) bool {
	for _, line := range strings.Split(output, "\n") {
		rest, found := strings.CutPrefix(line, "Status:")
		if !found {
			continue
		}
		fields := strings.Fields(rest)
		return len(fields) == 3 && fields[2] == "installed"
	}
	return false
}

// normalizeEntry cleans one file entry into an absolute path. Root entries
// ("/", "/.", "./", ".") and empty entries are dropped; "./"-relative
// entries from archive listings are anchored at "/".
func normalizeEntry(entry string) (string, bool) {
	switch entry {
	case "", ".", "./", "/.", "/":
		return "", false
	}
	if !strings.HasPrefix(entry, "/") {
		entry = "/" + strings.TrimPrefix(entry, "./")
	}
	cleaned := path.Clean(entry)
	if cleaned == "/" {
		return "", false
	}
	return cleaned, true
}
