package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Run operations

// RecordRun inserts a run and its per-dataset outcomes in one transaction.
// It implements the journal the snapshotter writes to.
func (s *Store) RecordRun(run *Run, snapshots []*SnapshotRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO runs
		(id, started_at, reason, protocol_version, package_count, path_count, volume_count, snapshot_name, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.StartedAt.UTC().Format(time.RFC3339),
		run.Reason,
		run.ProtocolVersion,
		run.PackageCount,
		run.PathCount,
		run.VolumeCount,
		run.SnapshotName,
		run.Status,
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}

	for _, snap := range snapshots {
		_, err = tx.Exec(`
			INSERT INTO snapshots (run_id, dataset, name, outcome, detail, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`,
			run.ID,
			snap.Dataset,
			snap.Name,
			snap.Outcome,
			snap.Detail,
			snap.CreatedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("failed to insert snapshot record for %s: %w", snap.Dataset, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", run.ID, err)
	}
	return nil
}

const runColumns = `id, started_at, reason, protocol_version, package_count, path_count, volume_count, snapshot_name, status, error`

func scanRun(scan func(dest ...any) error) (*Run, error) {
	var run Run
	var startedAt string
	err := scan(
		&run.ID,
		&startedAt,
		&run.Reason,
		&run.ProtocolVersion,
		&run.PackageCount,
		&run.PathCount,
		&run.VolumeCount,
		&run.SnapshotName,
		&run.Status,
		&run.Error,
	)
	if err != nil {
		return nil, err
	}
	run.StartedAt, err = time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at for run %s: %w", run.ID, err)
	}
	return &run, nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(id string) (*Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return run, nil
}

// LatestRun returns the most recent run, or nil if the journal is empty.
func (s *Store) LatestRun() (*Run, error) {
	row := s.db.QueryRow(`SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id DESC LIMIT 1`)
	run, err := scanRun(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest first, at most limit of them (0 for all).
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// RunsSince counts runs started at or after the given time. Timestamps
// are stored and compared as UTC RFC3339 text, so the string comparison
// is a time comparison.
func (s *Store) RunsSince(since time.Time) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM runs WHERE started_at >= ?`, since.UTC().Format(time.RFC3339)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return count, nil
}

// Snapshot record operations

// ListRunSnapshots returns the per-dataset outcomes of a run.
func (s *Store) ListRunSnapshots(runID string) ([]*SnapshotRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, dataset, name, outcome, detail, created_at
		FROM snapshots
		WHERE run_id = ?
		ORDER BY dataset
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots for run %s: %w", runID, err)
	}
	defer rows.Close()

	return scanSnapshotRows(rows)
}

// ListSnapshots returns journaled snapshot records newest first, at most
// limit of them (0 for all).
func (s *Store) ListSnapshots(limit int) ([]*SnapshotRecord, error) {
	query := `
		SELECT id, run_id, dataset, name, outcome, detail, created_at
		FROM snapshots
		ORDER BY created_at DESC, id DESC
	`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	return scanSnapshotRows(rows)
}

func scanSnapshotRows(rows *sql.Rows) ([]*SnapshotRecord, error) {
	var records []*SnapshotRecord
	for rows.Next() {
		var rec SnapshotRecord
		var createdAt string
		err := rows.Scan(
			&rec.ID,
			&rec.RunID,
			&rec.Dataset,
			&rec.Name,
			&rec.Outcome,
			&rec.Detail,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		rec.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at for snapshot %d: %w", rec.ID, err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}
	return records, nil
}

// Missed event operations

// InsertMissedEvent records package activity that bypassed the hook.
func (s *Store) InsertMissedEvent(detectedAt time.Time, detail string) error {
	_, err := s.db.Exec(`
		INSERT INTO missed_events (detected_at, detail)
		VALUES (?, ?)
	`, detectedAt.UTC().Format(time.RFC3339), detail)
	if err != nil {
		return fmt.Errorf("failed to insert missed event: %w", err)
	}
	return nil
}

// ListMissedEvents returns missed events newest first, at most limit of
// them (0 for all).
func (s *Store) ListMissedEvents(limit int) ([]*MissedEvent, error) {
	query := `
		SELECT id, detected_at, detail
		FROM missed_events
		ORDER BY detected_at DESC, id DESC
	`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list missed events: %w", err)
	}
	defer rows.Close()

	var events []*MissedEvent
	for rows.Next() {
		var event MissedEvent
		var detectedAt string
		if err := rows.Scan(&event.ID, &detectedAt, &event.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan missed event row: %w", err)
		}
		event.DetectedAt, err = time.Parse(time.RFC3339, detectedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse detected_at for event %d: %w", event.ID, err)
		}
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating missed events: %w", err)
	}
	return events, nil
}

// Stats summarizes the journal.
func (s *Store) Stats() (*Stats, error) {
	var stats Stats

	err := s.db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&stats.RunCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}
	err = s.db.QueryRow(`SELECT COUNT(*) FROM runs WHERE status = ?`, RunFailed).Scan(&stats.FailedRuns)
	if err != nil {
		return nil, fmt.Errorf("failed to count failed runs: %w", err)
	}
	err = s.db.QueryRow(`SELECT COUNT(*) FROM snapshots`).Scan(&stats.SnapshotCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count snapshots: %w", err)
	}

	rows, err := s.db.Query(`SELECT outcome, COUNT(*) FROM snapshots GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("failed to count outcomes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("failed to scan outcome row: %w", err)
		}
		switch outcome {
		case OutcomeCreated:
			stats.CreatedCount = count
		case OutcomeReused:
			stats.ReusedCount = count
		case OutcomeSkipped:
			stats.SkippedCount = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outcomes: %w", err)
	}

	err = s.db.QueryRow(`SELECT COUNT(*) FROM missed_events`).Scan(&stats.MissedCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count missed events: %w", err)
	}

	return &stats, nil
}
