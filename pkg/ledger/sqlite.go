package ledger

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/hardenctl/hardenctl/pkg/engine"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteLedger implements engine.Ledger using SQLite.
type SQLiteLedger struct {
	db   *sql.DB
	path string
}

// Config holds SQLite ledger configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// New creates a new SQLite ledger instance.
func New(cfg Config) (*SQLiteLedger, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("ledger path is required")
	}
	return &SQLiteLedger{path: cfg.Path}, nil
}

// Init opens the database and enables WAL mode.
func (l *SQLiteLedger) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", l.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open ledger database: %w", err)
	}

	// A single sequential writer; a small pool is plenty.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping ledger database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	l.db = db
	return nil
}

// Close closes the database connection.
func (l *SQLiteLedger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

// Migrate runs schema migrations from the embedded filesystem.
func (l *SQLiteLedger) Migrate(_ context.Context) error {
	if l.db == nil {
		return fmt.Errorf("ledger not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(l.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// BeginRun persists the run header before any unit is processed.
func (l *SQLiteLedger) BeginRun(ctx context.Context, run *engine.Run) error {
	query := `
		INSERT INTO runs (id, status, mode, interactivity, tool_version, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	var completedAt *time.Time
	if run.CompletedAt != nil {
		completedAt = run.CompletedAt
	}

	_, err := l.db.ExecContext(ctx, query,
		run.ID,
		string(run.Status),
		string(run.Flags.Mode),
		string(run.Flags.Interactivity),
		run.ToolVersion,
		run.StartedAt,
		completedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// CompleteRun marks the run terminal with its final status.
func (l *SQLiteLedger) CompleteRun(ctx context.Context, runID string, status engine.RunStatus) error {
	query := `
		UPDATE runs
		SET status = ?, completed_at = ?
		WHERE id = ?
	`

	var completedAt *time.Time
	if status.IsTerminal() {
		now := time.Now().UTC()
		completedAt = &now
	}

	result, err := l.db.ExecContext(ctx, query, string(status), completedAt, runID)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}

	return nil
}

// Record persists one outcome.
func (l *SQLiteLedger) Record(ctx context.Context, outcome *engine.Outcome) error {
	observedJSON, err := json.Marshal(outcome.Observed)
	if err != nil {
		return fmt.Errorf("failed to encode observed state: %w", err)
	}

	var errJSON *string
	if outcome.Error != nil {
		b, err := json.Marshal(outcome.Error)
		if err != nil {
			return fmt.Errorf("failed to encode outcome error: %w", err)
		}
		s := string(b)
		errJSON = &s
	}

	query := `
		INSERT INTO outcomes (
			id, run_id, unit_id, observed, action, applied, applied_hash,
			error, reason, tool_version, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = l.db.ExecContext(ctx, query,
		outcome.ID,
		outcome.RunID,
		outcome.UnitID,
		string(observedJSON),
		string(outcome.Action),
		outcome.Applied,
		outcome.AppliedHash,
		errJSON,
		outcome.Reason,
		outcome.ToolVersion,
		outcome.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}

	return nil
}

const outcomeColumns = `id, run_id, unit_id, observed, action, applied, applied_hash,
	       error, reason, tool_version, timestamp`

func scanOutcome(row interface{ Scan(...any) error }) (*engine.Outcome, error) {
	var (
		o            engine.Outcome
		action       string
		observedJSON string
		errJSON      sql.NullString
	)

	err := row.Scan(
		&o.ID,
		&o.RunID,
		&o.UnitID,
		&observedJSON,
		&action,
		&o.Applied,
		&o.AppliedHash,
		&errJSON,
		&o.Reason,
		&o.ToolVersion,
		&o.Timestamp,
	)
	if err != nil {
		return nil, err
	}

	o.Action = engine.Action(action)
	if err := json.Unmarshal([]byte(observedJSON), &o.Observed); err != nil {
		return nil, fmt.Errorf("failed to decode observed state: %w", err)
	}
	if errJSON.Valid {
		o.Error = &engine.OutcomeError{}
		if err := json.Unmarshal([]byte(errJSON.String), o.Error); err != nil {
			return nil, fmt.Errorf("failed to decode outcome error: %w", err)
		}
	}

	return &o, nil
}

// PriorOutcome returns the most recent outcome for a unit, or nil when the
// unit has never been processed.
func (l *SQLiteLedger) PriorOutcome(ctx context.Context, unitID string) (*engine.Outcome, error) {
	query := `
		SELECT ` + outcomeColumns + `
		FROM outcomes
		WHERE unit_id = ?
		ORDER BY timestamp DESC
		LIMIT 1
	`

	o, err := scanOutcome(l.db.QueryRowContext(ctx, query, unitID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prior outcome: %w", err)
	}

	return o, nil
}

// PriorOutcomes returns the unit's recorded history, newest first.
func (l *SQLiteLedger) PriorOutcomes(ctx context.Context, unitID string) ([]engine.Outcome, error) {
	query := `
		SELECT ` + outcomeColumns + `
		FROM outcomes
		WHERE unit_id = ?
		ORDER BY timestamp DESC
	`

	rows, err := l.db.QueryContext(ctx, query, unitID)
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := []engine.Outcome{}
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		outcomes = append(outcomes, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outcomes: %w", err)
	}

	return outcomes, nil
}

// LastApplied returns the most recent outcome for a unit where the mutator
// actually ran and succeeded, or nil when the engine has never written this
// unit's subject.
func (l *SQLiteLedger) LastApplied(ctx context.Context, unitID string) (*engine.Outcome, error) {
	query := `
		SELECT ` + outcomeColumns + `
		FROM outcomes
		WHERE unit_id = ? AND applied = 1
		ORDER BY timestamp DESC
		LIMIT 1
	`

	o, err := scanOutcome(l.db.QueryRowContext(ctx, query, unitID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last applied outcome: %w", err)
	}

	return o, nil
}

// LastRunVersion returns the tool version of the most recent run, or empty
// when no run is recorded.
func (l *SQLiteLedger) LastRunVersion(ctx context.Context) (string, error) {
	query := `
		SELECT tool_version
		FROM runs
		ORDER BY started_at DESC
		LIMIT 1
	`

	var version string
	err := l.db.QueryRowContext(ctx, query).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get last run version: %w", err)
	}

	return version, nil
}

// RecordBackup persists a backup record.
func (l *SQLiteLedger) RecordBackup(ctx context.Context, rec *engine.BackupRecord) error {
	query := `
		INSERT INTO backups (id, run_id, unit_id, original_path, backup_path, content_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := l.db.ExecContext(ctx, query,
		rec.ID,
		rec.RunID,
		rec.UnitID,
		rec.OriginalPath,
		rec.BackupPath,
		rec.ContentHash,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record backup: %w", err)
	}

	return nil
}

// SaveBaseline persists a run's baseline measurement.
func (l *SQLiteLedger) SaveBaseline(ctx context.Context, baseline *engine.Baseline) error {
	query := `
		INSERT INTO baselines (run_id, captured_at, free_disk_kb, package_count, active_service_count)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := l.db.ExecContext(ctx, query,
		baseline.RunID,
		baseline.CapturedAt,
		baseline.FreeDiskKB,
		baseline.PackageCount,
		baseline.ActiveServiceCount,
	)
	if err != nil {
		return fmt.Errorf("failed to save baseline: %w", err)
	}

	return nil
}

// GetRun retrieves a run with its outcomes and baseline.
func (l *SQLiteLedger) GetRun(ctx context.Context, id string) (*engine.Run, error) {
	query := `
		SELECT id, status, mode, interactivity, tool_version, started_at, completed_at
		FROM runs
		WHERE id = ?
	`

	run, err := scanRun(l.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	outcomes, err := l.OutcomesForRun(ctx, id)
	if err != nil {
		return nil, err
	}
	run.Outcomes = outcomes

	baseline, err := l.BaselineForRun(ctx, id)
	if err != nil {
		return nil, err
	}
	run.Baseline = baseline

	return run, nil
}

// LatestRun returns the most recently started run, or nil when the ledger
// is empty.
func (l *SQLiteLedger) LatestRun(ctx context.Context) (*engine.Run, error) {
	query := `
		SELECT id
		FROM runs
		ORDER BY started_at DESC
		LIMIT 1
	`

	var id string
	err := l.db.QueryRowContext(ctx, query).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}

	return l.GetRun(ctx, id)
}

// ListRuns lists run headers, newest first.
func (l *SQLiteLedger) ListRuns(ctx context.Context, limit, offset int) ([]engine.Run, error) {
	query := `
		SELECT id, status, mode, interactivity, tool_version, started_at, completed_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := l.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []engine.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

func scanRun(row interface{ Scan(...any) error }) (*engine.Run, error) {
	var (
		run           engine.Run
		status        string
		mode          string
		interactivity string
		completedAt   sql.NullTime
	)

	err := row.Scan(
		&run.ID,
		&status,
		&mode,
		&interactivity,
		&run.ToolVersion,
		&run.StartedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	run.Status = engine.RunStatus(status)
	run.Flags.Mode = engine.RunMode(mode)
	run.Flags.Interactivity = engine.Interactivity(interactivity)
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}

	return &run, nil
}

// OutcomesForRun returns a run's outcomes in processing order.
func (l *SQLiteLedger) OutcomesForRun(ctx context.Context, runID string) ([]engine.Outcome, error) {
	query := `
		SELECT ` + outcomeColumns + `
		FROM outcomes
		WHERE run_id = ?
		ORDER BY timestamp ASC
	`

	rows, err := l.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list run outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := []engine.Outcome{}
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		outcomes = append(outcomes, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outcomes: %w", err)
	}

	return outcomes, nil
}

// BaselineForRun returns the run's baseline, or nil when none was captured.
func (l *SQLiteLedger) BaselineForRun(ctx context.Context, runID string) (*engine.Baseline, error) {
	query := `
		SELECT run_id, captured_at, free_disk_kb, package_count, active_service_count
		FROM baselines
		WHERE run_id = ?
	`

	b := &engine.Baseline{}
	err := l.db.QueryRowContext(ctx, query, runID).Scan(
		&b.RunID,
		&b.CapturedAt,
		&b.FreeDiskKB,
		&b.PackageCount,
		&b.ActiveServiceCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get baseline: %w", err)
	}

	return b, nil
}

// BackupsForRun returns all backup records taken during a run.
func (l *SQLiteLedger) BackupsForRun(ctx context.Context, runID string) ([]engine.BackupRecord, error) {
	query := `
		SELECT id, run_id, unit_id, original_path, backup_path, content_hash, created_at
		FROM backups
		WHERE run_id = ?
		ORDER BY created_at ASC
	`

	rows, err := l.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}
	defer rows.Close()

	recs := []engine.BackupRecord{}
	for rows.Next() {
		var rec engine.BackupRecord
		err := rows.Scan(
			&rec.ID,
			&rec.RunID,
			&rec.UnitID,
			&rec.OriginalPath,
			&rec.BackupPath,
			&rec.ContentHash,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backup record: %w", err)
		}
		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backup records: %w", err)
	}

	return recs, nil
}

// LatestBackup returns the newest backup record for a path, or nil when the
// path has never been snapshotted.
func (l *SQLiteLedger) LatestBackup(ctx context.Context, originalPath string) (*engine.BackupRecord, error) {
	query := `
		SELECT id, run_id, unit_id, original_path, backup_path, content_hash, created_at
		FROM backups
		WHERE original_path = ?
		ORDER BY created_at DESC
		LIMIT 1
	`

	var rec engine.BackupRecord
	err := l.db.QueryRowContext(ctx, query, originalPath).Scan(
		&rec.ID,
		&rec.RunID,
		&rec.UnitID,
		&rec.OriginalPath,
		&rec.BackupPath,
		&rec.ContentHash,
		&rec.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest backup: %w", err)
	}

	return &rec, nil
}

// HealthCheck verifies the database connection is healthy.
func (l *SQLiteLedger) HealthCheck(ctx context.Context) error {
	if l.db == nil {
		return fmt.Errorf("ledger not initialized")
	}
	return l.db.PingContext(ctx)
}
