package zfsbackend

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// Test data: zfs list -H -p -t snapshot -o name,creation,used output.
const mockSnapshotList = "rpool/var@aptsnap-2026-01-15-103005\t1768473005\t8192\n" +
	"rpool/var@manual-backup\t1768000000\t0\n" +
	"rpool/home@aptsnap-2026-01-15-103005\t1768473005\t4096\n"

// Test data: zfs list -H -p -t filesystem -o name,mountpoint,used,avail output.
const mockFilesystemList = "rpool\t/rpool\t1073741824\t53687091200\n" +
	"rpool/ROOT/debian\t/\t10737418240\t53687091200\n" +
	"rpool/var\t/var\t536870912\t53687091200\n"

func TestParseSnapshotList(t *testing.T) {
	snapshots, err := parseSnapshotList(mockSnapshotList)
	if err != nil {
		t.Fatalf("parseSnapshotList() error = %v", err)
	}
	if len(snapshots) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(snapshots))
	}

	first := snapshots[0]
	if first.Dataset != "rpool/var" || first.Name != "aptsnap-2026-01-15-103005" {
		t.Errorf("unexpected first snapshot %+v", first)
	}
	if first.Used != 8192 {
		t.Errorf("expected used 8192, got %d", first.Used)
	}
	want := time.Unix(1768473005, 0).UTC()
	if !first.Created.Equal(want) {
		t.Errorf("expected created %v, got %v", want, first.Created)
	}
}

func TestParseSnapshotListMalformed(t *testing.T) {
	if _, err := parseSnapshotList("rpool/var@x\t123\n"); err == nil {
		t.Fatal("expected error for wrong field count")
	}
	if _, err := parseSnapshotList("no-at-sign\t123\t0\n"); err == nil {
		t.Fatal("expected error for name without @")
	}
}

func TestParseSnapshotListEmpty(t *testing.T) {
	snapshots, err := parseSnapshotList("")
	if err != nil {
		t.Fatalf("parseSnapshotList() error = %v", err)
	}
	if len(snapshots) != 0 {
		t.Errorf("expected no snapshots, got %v", snapshots)
	}
}

func TestParseFilesystemList(t *testing.T) {
	filesystems, err := parseFilesystemList(mockFilesystemList)
	if err != nil {
		t.Fatalf("parseFilesystemList() error = %v", err)
	}
	if len(filesystems) != 3 {
		t.Fatalf("expected 3 filesystems, got %d", len(filesystems))
	}
	root := filesystems[1]
	if root.Name != "rpool/ROOT/debian" || root.Mountpoint != "/" {
		t.Errorf("unexpected filesystem %+v", root)
	}
	if root.Used != 10737418240 || root.Avail != 53687091200 {
		t.Errorf("unexpected sizes %+v", root)
	}
}

func TestAutoSnapshotValue(t *testing.T) {
	tests := []struct {
		value    string
		expected bool
	}{
		{value: "on", expected: true},
		{value: "true", expected: true},
		{value: "-", expected: true},
		{value: "", expected: true},
		{value: "off", expected: false},
		{value: "false", expected: false},
		{value: "FALSE", expected: false},
	}
	for _, tt := range tests {
		if got := autoSnapshotValue(tt.value); got != tt.expected {
			t.Errorf("autoSnapshotValue(%q) = %v, want %v", tt.value, got, tt.expected)
		}
	}
}

func TestValidateSnapshotName(t *testing.T) {
	if err := validateSnapshotName("rpool/var", "aptsnap-2026-01-15-103005"); err != nil {
		t.Errorf("valid name rejected: %v", err)
	}
	for _, name := range []string{"", "with@at", "with/slash"} {
		if err := validateSnapshotName("rpool/var", name); err == nil {
			t.Errorf("expected rejection of snapshot name %q", name)
		}
	}
	if err := validateSnapshotName("", "name"); err == nil {
		t.Error("expected rejection of empty dataset")
	}
}

func TestSplitSnapshotName(t *testing.T) {
	dataset, name, ok := splitSnapshotName("tank/data@snap")
	if !ok || dataset != "tank/data" || name != "snap" {
		t.Errorf("splitSnapshotName = %q, %q, %v", dataset, name, ok)
	}
	if _, _, ok := splitSnapshotName("tank/data"); ok {
		t.Error("expected failure without @")
	}
}

func TestIsExistsOutput(t *testing.T) {
	msg := "cannot create snapshot 'rpool/var@x': dataset already exists"
	if !isExistsOutput(msg) {
		t.Error("expected exists detection")
	}
	if isExistsOutput("cannot create snapshot: out of space") {
		t.Error("false positive exists detection")
	}
}

func TestNullBackend(t *testing.T) {
	n := NewNull()

	if err := n.CreateSnapshot("rpool/var", "snap-1"); err != nil {
		t.Fatalf("CreateSnapshot() error = %v", err)
	}
	if err := n.CreateSnapshot("rpool/home", "snap-1"); err != nil {
		t.Fatalf("CreateSnapshot() error = %v", err)
	}

	all, err := n.ListSnapshots("")
	if err != nil {
		t.Fatalf("ListSnapshots() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 recorded snapshots, got %d", len(all))
	}

	one, err := n.ListSnapshots("rpool/var")
	if err != nil {
		t.Fatalf("ListSnapshots() error = %v", err)
	}
	if len(one) != 1 || one[0].Dataset != "rpool/var" {
		t.Errorf("dataset filter broken: %v", one)
	}

	if err := n.DestroySnapshot("rpool/var", "snap-1"); err != nil {
		t.Fatalf("DestroySnapshot() error = %v", err)
	}
	all, _ = n.ListSnapshots("")
	if len(all) != 1 {
		t.Errorf("expected 1 snapshot after destroy, got %d", len(all))
	}

	enabled, err := n.AutoSnapshotEnabled("anything")
	if err != nil || !enabled {
		t.Errorf("null backend should always report auto-snapshot enabled")
	}
}

func TestNullBackendRejectsBadNames(t *testing.T) {
	n := NewNull()
	err := n.CreateSnapshot("rpool/var", "bad@name")
	if err == nil {
		t.Fatal("expected error for invalid name")
	}
	var creationErr *CreationError
	if !errors.As(err, &creationErr) {
		t.Fatalf("expected *CreationError, got %T", err)
	}
}

func TestDetect(t *testing.T) {
	// A fake zfs on PATH stands in for the real tool; Detect only checks
	// presence.
	bin := t.TempDir()
	fake := filepath.Join(bin, "zfs")
	if err := os.WriteFile(fake, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("Failed to write fake zfs: %v", err)
	}

	t.Run("auto picks lib when zfs present", func(t *testing.T) {
		t.Setenv("PATH", bin)
		backend, err := Detect("auto", "")
		if err != nil {
			t.Fatalf("Detect() error = %v", err)
		}
		if backend.Name() != "lib" {
			t.Errorf("expected lib backend, got %s", backend.Name())
		}
	})

	t.Run("auto picks cli for custom command", func(t *testing.T) {
		t.Setenv("PATH", bin)
		backend, err := Detect("auto", fake)
		if err != nil {
			t.Fatalf("Detect() error = %v", err)
		}
		if backend.Name() != "cli" {
			t.Errorf("expected cli backend, got %s", backend.Name())
		}
	})

	t.Run("fails without zfs", func(t *testing.T) {
		t.Setenv("PATH", t.TempDir())
		if _, err := Detect("auto", ""); err == nil {
			t.Fatal("expected detection failure with no zfs on PATH")
		}
	})

	t.Run("explicit cli with missing command", func(t *testing.T) {
		t.Setenv("PATH", t.TempDir())
		if _, err := Detect("cli", "no-such-zfs-wrapper"); err == nil {
			t.Fatal("expected detection failure for missing command")
		}
	})

	t.Run("null never probes", func(t *testing.T) {
		t.Setenv("PATH", t.TempDir())
		backend, err := Detect("null", "")
		if err != nil {
			t.Fatalf("Detect() error = %v", err)
		}
		if backend.Name() != "null" {
			t.Errorf("expected null backend, got %s", backend.Name())
		}
	})

	t.Run("unknown preference", func(t *testing.T) {
		if _, err := Detect("btrfs", ""); err == nil {
			t.Fatal("expected error for unknown backend")
		}
	})
}
