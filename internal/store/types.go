package store

import "time"

// Run statuses.
const (
	RunOK     = "ok"
	RunFailed = "failed"
)

// Snapshot outcomes within a run.
const (
	OutcomeCreated = "created"
	OutcomeReused  = "reused"
	OutcomeSkipped = "skipped"
)

// Run records one snapshot pass: a hook invocation, a manual run, or a
// catch-up taken by the watch daemon.
type Run struct {
	ID              string
	StartedAt       time.Time
	Reason          string // "apt-hook", "manual", "watch"
	ProtocolVersion int    // 0 outside the hook
	PackageCount    int
	PathCount       int
	VolumeCount     int
	SnapshotName    string
	Status          string
	Error           string
}

// SnapshotRecord is one per-dataset outcome of a run.
type SnapshotRecord struct {
	ID        int64
	RunID     string
	Dataset   string
	Name      string
	Outcome   string
	Detail    string // skip reason, empty otherwise
	CreatedAt time.Time
}

// MissedEvent records dpkg activity observed without a covering run.
type MissedEvent struct {
	ID         int64
	DetectedAt time.Time
	Detail     string
}

// Stats summarizes the journal for the status command.
type Stats struct {
	RunCount      int
	FailedRuns    int
	SnapshotCount int
	CreatedCount  int
	ReusedCount   int
	SkippedCount  int
	MissedCount   int
}
