package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"

	"github.com/chmdznr/music-dir-sync/pkg/models"
)

// DB represents a run report database connection
type DB struct {
	*sql.DB
}

// New opens (or creates) the report database at path
func New(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	db := &DB{sqlDB}
	if err := db.initialize(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("initialize %s: %w", path, err)
	}

	return db, nil
}

// initialize creates the necessary tables if they don't exist
func (db *DB) initialize() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			source TEXT,
			destination TEXT,
			execute INTEGER,
			check_enabled INTEGER,
			started_at DATETIME,
			finished_at DATETIME,
			checked_files INTEGER DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS events (
			run_id TEXT,
			seq INTEGER,
			kind TEXT,
			mode TEXT,
			source_path TEXT,
			target_path TEXT,
			files INTEGER,
			size INTEGER,
			message TEXT,
			PRIMARY KEY (run_id, seq)
		);
		CREATE INDEX IF NOT EXISTS idx_events_kind ON events(run_id, kind);
		PRAGMA journal_mode=WAL;
		PRAGMA synchronous=NORMAL;
	`)
	return err
}

// CreateRun stores a new run and assigns its ID when empty
func (db *DB) CreateRun(run *models.Run) error {
	if run.ID == "" {
		run.ID = xid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	_, err := db.Exec(`
		INSERT INTO runs (id, source, destination, execute, check_enabled, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.SourcePath,
		run.Destination,
		run.Execute,
		run.Check,
		run.StartedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// FinishRun records the end time and number of verified files of a run
func (db *DB) FinishRun(runID string, finishedAt time.Time, checkedFiles int64) error {
	res, err := db.Exec(`
		UPDATE runs
		SET finished_at = ?, checked_files = ?
		WHERE id = ?
	`, finishedAt.UTC(), checkedFiles, runID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// GetRun retrieves a run by ID
func (db *DB) GetRun(id string) (*models.Run, error) {
	row := db.QueryRow(`
		SELECT id, source, destination, execute, check_enabled, started_at, finished_at, checked_files
		FROM runs WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if err != nil {
		return nil, fmt.Errorf("run not found: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first
func (db *DB) ListRuns(limit int) ([]models.Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.Query(`
		SELECT id, source, destination, execute, check_enabled, started_at, finished_at, checked_files
		FROM runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*models.Run, error) {
	var run models.Run
	var finished sql.NullTime
	err := s.Scan(
		&run.ID,
		&run.SourcePath,
		&run.Destination,
		&run.Execute,
		&run.Check,
		&run.StartedAt,
		&finished,
		&run.CheckedFiles,
	)
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	return &run, nil
}

// SaveEventsBatch saves the events of a run in a single transaction
func (db *DB) SaveEventsBatch(runID string, events []models.Event) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var next int
	if err := tx.QueryRow(`SELECT COALESCE(MAX(seq), -1) + 1 FROM events WHERE run_id = ?`, runID).Scan(&next); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO events (run_id, seq, kind, mode, source_path, target_path, files, size, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, e := range events {
		_, err = stmt.Exec(
			runID,
			next+i,
			string(e.Kind),
			string(e.Mode),
			e.SourcePath,
			e.TargetPath,
			e.Files,
			e.Size,
			e.Message,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetFailures returns the failed checks of a run in the order they happened
func (db *DB) GetFailures(runID string) ([]models.Event, error) {
	rows, err := db.Query(`
		SELECT kind, mode, source_path, target_path, files, size, message
		FROM events
		WHERE run_id = ? AND kind = ?
		ORDER BY seq
	`, runID, string(models.EventCheckFailed))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var e models.Event
		var kind, mode string
		if err := rows.Scan(&kind, &mode, &e.SourcePath, &e.TargetPath, &e.Files, &e.Size, &e.Message); err != nil {
			return nil, err
		}
		e.Kind = models.EventKind(kind)
		e.Mode = models.Mode(mode)
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetStats returns statistics about a run
func (db *DB) GetStats(runID string) (*models.Stats, error) {
	var stats models.Stats
	err := db.QueryRow(`
		SELECT
			COUNT(CASE WHEN e.kind = 'sync' AND e.mode != 'skipped' THEN 1 END) AS copy_units,
			COUNT(CASE WHEN e.kind = 'sync' AND e.mode = 'skipped' THEN 1 END) AS skipped_units,
			COUNT(CASE WHEN e.kind = 'declined' THEN 1 END) AS declined_units,
			COALESCE(SUM(CASE WHEN e.kind = 'copy' THEN e.files ELSE 0 END), 0) AS copied_files,
			COALESCE(SUM(CASE WHEN e.kind = 'copy' THEN e.size ELSE 0 END), 0) AS copied_size,
			COUNT(CASE WHEN e.kind = 'check_failed' THEN 1 END) AS failed_checks,
			COUNT(CASE WHEN e.kind = 'check_failed' AND e.message != '' THEN 1 END) AS missing_files,
			r.checked_files
		FROM runs r
		LEFT JOIN events e ON e.run_id = r.id
		WHERE r.id = ?
		GROUP BY r.id
	`, runID).Scan(
		&stats.CopyUnits,
		&stats.SkippedUnits,
		&stats.DeclinedUnits,
		&stats.CopiedFiles,
		&stats.CopiedSize,
		&stats.FailedChecks,
		&stats.MissingFiles,
		&stats.CheckedFiles,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return &stats, nil
}

// SaveReport stores all events of report under run and marks it finished
func (db *DB) SaveReport(run *models.Run, report *models.Report) error {
	if err := db.SaveEventsBatch(run.ID, report.Events); err != nil {
		return fmt.Errorf("failed to save events: %w", err)
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now()
	}
	run.CheckedFiles = report.Stats.CheckedFiles
	return db.FinishRun(run.ID, run.FinishedAt, run.CheckedFiles)
}
