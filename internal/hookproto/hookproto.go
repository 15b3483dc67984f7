// Package hookproto parses the report APT writes to a Dpkg::Pre-Install-Pkgs
// hook. Versions 1, 2 and 3 of the protocol are supported; the version is
// negotiated through the hook's Version setting in apt.conf and announced by
// APT in the first line of the report.
package hookproto

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Actions APT reports instead of a .deb path for packages that are not being
// unpacked in this transaction.
const (
	ActionRemove    = "**REMOVE**"
	ActionConfigure = "**CONFIGURE**"
	ActionError     = "**ERROR**"
)

// noOldVersion is the placeholder APT uses in the old-version field for
// packages with no installed version.
const noOldVersion = "-"

// Change is one package line from the hook report.
type Change struct {
	Package    string // package name (empty for protocol version 1)
	OldVersion string // installed version, or "-" if not installed
	NewVersion string // candidate version, or "-" (versions 2 and 3 only)
	Direction  string // version comparison marker: "<", ">", "=" (versions 2 and 3 only)
	Action     string // .deb path, or one of the Action constants
}

// Unpacking reports whether this change installs files from a package
// archive.
func (c Change) Unpacking() bool {
	return c.Action != "" && !strings.HasPrefix(c.Action, "**")
}

// DebPath returns the archive path for changes that unpack one.
func (c Change) DebPath() string {
	if !c.Unpacking() {
		return ""
	}
	return c.Action
}

// Replacing reports whether an installed version is being replaced, meaning
// the old package's files may be removed as part of this change.
func (c Change) Replacing() bool {
	return c.OldVersion != "" && c.OldVersion != noOldVersion
}

// Report is a parsed hook report.
type Report struct {
	Version int
	Changes []Change
}

// Empty reports whether the transaction changes no packages.
func (r *Report) Empty() bool {
	return len(r.Changes) == 0
}

// InfoStream returns the stream carrying the hook report. APT communicates
// the file descriptor through APT_HOOK_INFO_FD; older APT versions leave it
// unset and write the report to the hook's stdin.
func InfoStream() (*os.File, error) {
	fdVar := os.Getenv("APT_HOOK_INFO_FD")
	if fdVar == "" {
		return os.Stdin, nil
	}
	fd, err := strconv.Atoi(fdVar)
	if err != nil {
		return nil, fmt.Errorf("invalid APT_HOOK_INFO_FD %q: %w", fdVar, err)
	}
	f := os.NewFile(uintptr(fd), "apt-hook-info")
	if f == nil {
		return nil, fmt.Errorf("invalid APT_HOOK_INFO_FD %d", fd)
	}
	return f, nil
}

// Parse reads a complete hook report from r.
//
// Version 1 reports are bare .deb paths, one per line. Versions 2 and 3 start
// with a VERSION line and the APT configuration space, then list one package
// per line: name, old version, direction, new version and action for version
// 2, with architecture and multi-arch fields after each version for version
// 3. The action is either a .deb path or one of the **...** markers.
func Parse(r io.Reader) (*Report, error) {
	scanner := bufio.NewScanner(r)
	// Package lines include full archive paths; the default scanner limit is
	// plenty, but config-space lines can get long with APT::Update hooks.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line, ok := scanLine(scanner)
	if !ok {
		// No input at all: an empty transaction, reported as version 1.
		return &Report{Version: 1}, scanner.Err()
	}

	report := &Report{Version: 1}
	if rest, found := strings.CutPrefix(line, "VERSION "); found {
		v, err := strconv.Atoi(strings.TrimSpace(rest))
		if err != nil {
			return nil, fmt.Errorf("malformed VERSION line %q: %w", line, err)
		}
		report.Version = v
	}
	if report.Version < 1 || report.Version > 3 {
		return nil, fmt.Errorf("unsupported hook protocol version %d", report.Version)
	}

	if report.Version == 1 {
		// The line already read is the first package path.
		for line != "" {
			report.Changes = append(report.Changes, Change{
				OldVersion: noOldVersion,
				Action:     line,
			})
			line, ok = scanLine(scanner)
			if !ok {
				break
			}
		}
		return report, scanner.Err()
	}

	// Skip the configuration space. It is terminated by a blank line.
	for {
		line, ok = scanLine(scanner)
		if !ok {
			return report, scanner.Err()
		}
		if line == "" {
			break
		}
	}

	fieldCount := 5
	if report.Version == 3 {
		fieldCount = 9
	}
	for {
		line, ok = scanLine(scanner)
		if !ok || line == "" {
			break
		}
		change, err := parseChange(line, fieldCount)
		if err != nil {
			return nil, err
		}
		report.Changes = append(report.Changes, change)
	}
	return report, scanner.Err()
}

// parseChange splits one package line into its fields. The split runs from
// the right so that spaces in the package name cannot shift the remaining
// fields.
func parseChange(line string, fieldCount int) (Change, error) {
	fields := splitRight(line, fieldCount)
	if len(fields) != fieldCount {
		return Change{}, fmt.Errorf("malformed package line %q: want %d fields, got %d", line, fieldCount, len(fields))
	}
	change := Change{
		Package:    fields[0],
		OldVersion: fields[1],
		Action:     fields[fieldCount-1],
	}
	switch fieldCount {
	case 5:
		change.Direction = fields[2]
		change.NewVersion = fields[3]
	case 9:
		change.Direction = fields[4]
		change.NewVersion = fields[5]
	}
	return change, nil
}

// splitRight splits line on single spaces into at most n fields, splitting
// from the right. Surplus leading content stays in the first field.
func splitRight(line string, n int) []string {
	fields := make([]string, 0, n)
	for len(fields) < n-1 {
		i := strings.LastIndexByte(line, ' ')
		if i < 0 {
			break
		}
		fields = append(fields, line[i+1:])
		line = line[:i]
	}
	fields = append(fields, line)
	// Reverse into report order.
	for i, j := 0, len(fields)-1; i < j; i, j = i+1, j-1 {
		fields[i], fields[j] = fields[j], fields[i]
	}
	return fields
}

func scanLine(scanner *bufio.Scanner) (string, bool) {
	if !scanner.Scan() {
		return "", false
	}
	return strings.TrimSpace(scanner.Text()), true
}
