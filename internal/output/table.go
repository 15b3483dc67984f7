// Package output provides terminal output utilities for aptsnap.
//
// This package includes:
//   - Table rendering functions for runs, journaled outcomes, live snapshots, and filesystems
//   - Progress bars for long-running operations
//   - Spinners for indeterminate operations
//   - Human-readable formatting for sizes, dates, and other data
//
// All table rendering functions use ASCII characters and ANSI color codes for terminal output.
// Progress indicators are thread-safe and can be used from multiple goroutines.
package output

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/blackwell-systems/aptsnap/internal/store"
	"github.com/blackwell-systems/aptsnap/internal/zfsbackend"
)

// ANSI color codes for status and outcome display
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

// IsColorEnabled returns true if ANSI color codes should be emitted.
// It checks that os.Stdout is a TTY and that the NO_COLOR env var is not set.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

// colorize wraps text in the given ANSI color code if color is enabled,
// otherwise returns the plain text.
func colorize(color, text string) string {
	if IsColorEnabled() {
		return color + text + colorReset
	}
	return text
}

// RenderRunTable renders the run journal, newest first.
func RenderRunTable(runs []*store.Run) string {
	if len(runs) == 0 {
		return "No runs recorded.\n"
	}

	// Sort runs newest-first for consistent output
	sorted := make([]*store.Run, len(runs))
	copy(sorted, runs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].StartedAt.After(sorted[j].StartedAt)
	})

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-14s %-9s %5s %6s %5s  %-28s %s\n",
		"Started", "Reason", "Pkgs", "Paths", "Vols", "Snapshot", "Status"))
	sb.WriteString(strings.Repeat("─", 82))
	sb.WriteString("\n")

	for _, run := range sorted {
		status := run.Status
		if run.Status == store.RunFailed && run.Error != "" {
			status = run.Status + ": " + truncate(run.Error, 40)
		}

		sb.WriteString(fmt.Sprintf("%-14s %-9s %5d %6d %5d  %-28s %s\n",
			formatRelativeTime(run.StartedAt),
			truncate(run.Reason, 9),
			run.PackageCount,
			run.PathCount,
			run.VolumeCount,
			truncate(run.SnapshotName, 28),
			colorize(statusColor(run.Status), status)))
	}

	return sb.String()
}

// RenderRecordTable renders journaled per-dataset outcomes.
// Note: Does not sort - expects records in store order (newest run first,
// datasets ascending within a run).
func RenderRecordTable(records []*store.SnapshotRecord) string {
	if len(records) == 0 {
		return "No snapshots recorded.\n"
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-14s %-24s %-28s %-8s %s\n",
		"Created", "Dataset", "Snapshot", "Outcome", "Detail"))
	sb.WriteString(strings.Repeat("─", 88))
	sb.WriteString("\n")

	for _, rec := range records {
		name := rec.Name
		if name == "" {
			// Skipped rows never got a snapshot.
			name = "—"
		}

		sb.WriteString(fmt.Sprintf("%-14s %-24s %-28s %s %s\n",
			formatRelativeTime(rec.CreatedAt),
			truncate(rec.Dataset, 24),
			truncate(name, 28),
			colorize(outcomeColor(rec.Outcome), fmt.Sprintf("%-8s", rec.Outcome)),
			rec.Detail))
	}

	return sb.String()
}

// RenderLiveSnapshotTable renders snapshots as the backend reports them.
func RenderLiveSnapshotTable(snapshots []zfsbackend.Snapshot) string {
	if len(snapshots) == 0 {
		return "No snapshots found.\n"
	}

	// Sort by dataset then name for consistent output
	sorted := make([]zfsbackend.Snapshot, len(snapshots))
	copy(sorted, snapshots)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Dataset != sorted[j].Dataset {
			return sorted[i].Dataset < sorted[j].Dataset
		}
		return sorted[i].Name < sorted[j].Name
	})

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-24s %-28s %-14s %s\n",
		"Dataset", "Snapshot", "Created", "Used"))
	sb.WriteString(strings.Repeat("─", 76))
	sb.WriteString("\n")

	for _, snap := range sorted {
		sb.WriteString(fmt.Sprintf("%-24s %-28s %-14s %s\n",
			truncate(snap.Dataset, 24),
			truncate(snap.Name, 28),
			formatRelativeTime(snap.Created),
			formatSize(snap.Used)))
	}

	return sb.String()
}

// RenderFilesystemTable renders ZFS filesystems with their usage.
func RenderFilesystemTable(filesystems []zfsbackend.Filesystem) string {
	if len(filesystems) == 0 {
		return "No ZFS filesystems found.\n"
	}

	// Sort by dataset name for consistent output
	sorted := make([]zfsbackend.Filesystem, len(filesystems))
	copy(sorted, filesystems)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-28s %-26s %9s %9s\n",
		"Dataset", "Mountpoint", "Used", "Avail"))
	sb.WriteString(strings.Repeat("─", 74))
	sb.WriteString("\n")

	for _, fs := range sorted {
		sb.WriteString(fmt.Sprintf("%-28s %-26s %9s %9s\n",
			truncate(fs.Name, 28),
			truncate(fs.Mountpoint, 26),
			formatSize(fs.Used),
			formatSize(fs.Avail)))
	}

	return sb.String()
}

// RenderMissedEventTable renders dpkg activity that ran without a snapshot.
func RenderMissedEventTable(events []*store.MissedEvent) string {
	if len(events) == 0 {
		return "No missed events recorded.\n"
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-14s %s\n", "Detected", "Detail"))
	sb.WriteString(strings.Repeat("─", 60))
	sb.WriteString("\n")

	for _, event := range events {
		sb.WriteString(fmt.Sprintf("%-14s %s\n",
			formatRelativeTime(event.DetectedAt),
			event.Detail))
	}

	return sb.String()
}

// RenderStats renders the journal summary for the status command.
func RenderStats(stats *store.Stats) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Runs:      %d", stats.RunCount))
	if stats.FailedRuns > 0 {
		sb.WriteString(" (")
		sb.WriteString(colorize(colorRed, fmt.Sprintf("%d failed", stats.FailedRuns)))
		sb.WriteString(")")
	}
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("Snapshots: %d (%d created, %d reused, %d skipped)\n",
		stats.SnapshotCount, stats.CreatedCount, stats.ReusedCount, stats.SkippedCount))

	if stats.MissedCount > 0 {
		sb.WriteString(colorize(colorYellow,
			fmt.Sprintf("Missed:    %d package operations ran without a snapshot", stats.MissedCount)))
		sb.WriteString("\n")
	}

	return sb.String()
}

// statusColor returns the ANSI color for a run status.
func statusColor(status string) string {
	switch status {
	case store.RunOK:
		return colorGreen
	case store.RunFailed:
		return colorRed
	default:
		return colorGray
	}
}

// outcomeColor returns the ANSI color for a snapshot outcome.
func outcomeColor(outcome string) string {
	switch outcome {
	case store.OutcomeCreated:
		return colorGreen
	case store.OutcomeReused:
		return colorYellow
	case store.OutcomeSkipped:
		return colorGray
	default:
		return colorGray
	}
}

// formatSize converts bytes to a human-readable size (e.g., "1.5 GiB").
func formatSize(bytes uint64) string {
	return humanize.IBytes(bytes)
}

// formatRelativeTime converts a timestamp to a relative time (e.g., "2 days ago").
// Zero times render as "never".
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}

// truncate shortens a string to maxLen characters, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
