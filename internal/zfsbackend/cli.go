package zfsbackend

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// CLI drives ZFS through the command line tool. The command is
// configurable so sites can point at a wrapper (for example "sudo zfs"
// or a chrooted binary).
type CLI struct {
	argv []string
}

// NewCLI returns a CLI backend running the given command, "zfs" when
// empty. The command is split on whitespace, so wrappers with arguments
// work.
func NewCLI(command string) *CLI {
	if strings.TrimSpace(command) == "" {
		command = "zfs"
	}
	return &CLI{argv: strings.Fields(command)}
}

func (c *CLI) Name() string {
	return "cli"
}

func (c *CLI) run(args ...string) ([]byte, error) {
	argv := append(append([]string{}, c.argv...), args...)
	cmd := exec.Command(argv[0], argv[1:]...)
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("%s failed: %w (stderr: %s)", strings.Join(argv, " "), err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("%s failed: %w", strings.Join(argv, " "), err)
	}
	return output, nil
}

func (c *CLI) CreateSnapshot(dataset, name string) error {
	if err := validateSnapshotName(dataset, name); err != nil {
		return &CreationError{Dataset: dataset, Name: name, Err: err}
	}
	if _, err := c.run("snapshot", dataset+"@"+name); err != nil {
		if isExistsOutput(err.Error()) {
			return &CreationError{Dataset: dataset, Name: name, Err: ErrSnapshotExists}
		}
		return &CreationError{Dataset: dataset, Name: name, Err: err}
	}
	return nil
}

func (c *CLI) ListSnapshots(dataset string) ([]Snapshot, error) {
	args := []string{"list", "-H", "-p", "-t", "snapshot", "-o", "name,creation,used"}
	if dataset != "" {
		args = append(args, "-d", "1", dataset)
	}
	output, err := c.run(args...)
	if err != nil {
		return nil, err
	}
	return parseSnapshotList(string(output))
}

func (c *CLI) DestroySnapshot(dataset, name string) error {
	if err := validateSnapshotName(dataset, name); err != nil {
		return err
	}
	// The "@" form is what keeps this from ever destroying a filesystem.
	_, err := c.run("destroy", dataset+"@"+name)
	return err
}

func (c *CLI) AutoSnapshotEnabled(dataset string) (bool, error) {
	output, err := c.run("get", "-H", "-o", "value", autoSnapshotProperty, dataset)
	if err != nil {
		return false, err
	}
	return autoSnapshotValue(strings.TrimSpace(string(output))), nil
}

func (c *CLI) ListFilesystems() ([]Filesystem, error) {
	output, err := c.run("list", "-H", "-p", "-t", "filesystem", "-o", "name,mountpoint,used,avail")
	if err != nil {
		return nil, err
	}
	return parseFilesystemList(string(output))
}

// autoSnapshotProperty is the user property the zfs-auto-snapshot
// ecosystem uses to opt datasets out of automatic snapshots.
const autoSnapshotProperty = "com.sun:auto-snapshot"

// autoSnapshotValue interprets the property value. Unset ("-") counts as
// enabled.
func autoSnapshotValue(value string) bool {
	switch strings.ToLower(value) {
	case "off", "false":
		return false
	default:
		return true
	}
}

func validateSnapshotName(dataset, name string) error {
	if dataset == "" || name == "" {
		return fmt.Errorf("empty dataset or snapshot name")
	}
	if strings.ContainsAny(name, "@/") {
		return fmt.Errorf("invalid snapshot name %q", name)
	}
	return nil
}

func parseSnapshotList(output string) ([]Snapshot, error) {
	var snapshots []Snapshot
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 3 {
			return nil, fmt.Errorf("unexpected zfs list line %q", line)
		}
		dataset, name, ok := splitSnapshotName(fields[0])
		if !ok {
			return nil, fmt.Errorf("unexpected snapshot name %q", fields[0])
		}
		snap := Snapshot{Dataset: dataset, Name: name}
		if epoch, err := strconv.ParseInt(fields[1], 10, 64); err == nil {
			snap.Created = time.Unix(epoch, 0).UTC()
		}
		if used, err := strconv.ParseUint(fields[2], 10, 64); err == nil {
			snap.Used = used
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

func parseFilesystemList(output string) ([]Filesystem, error) {
	var filesystems []Filesystem
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 4 {
			return nil, fmt.Errorf("unexpected zfs list line %q", line)
		}
		fs := Filesystem{Name: fields[0], Mountpoint: fields[1]}
		if used, err := strconv.ParseUint(fields[2], 10, 64); err == nil {
			fs.Used = used
		}
		if avail, err := strconv.ParseUint(fields[3], 10, 64); err == nil {
			fs.Avail = avail
		}
		filesystems = append(filesystems, fs)
	}
	return filesystems, nil
}
