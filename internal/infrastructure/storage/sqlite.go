package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eshaffer321/reconciler/internal/domain/records"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Storage provides SQLite database access for reconciliation data.
// It implements the Repository interface.
type Storage struct {
	db     *sql.DB
	logger *slog.Logger
}

// Compile-time check that Storage implements Repository
var _ Repository = (*Storage)(nil)

// NewStorage opens (or creates) the SQLite database at dbPath and applies
// pending migrations. A nil logger uses slog.Default().
func NewStorage(dbPath string, logger *slog.Logger) (*Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// One writer at a time keeps SQLite from returning SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	s := &Storage{db: db, logger: logger}

	if err := s.runMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// withTx runs fn in a transaction, rolling back on error.
func (s *Storage) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// ---------------------------------------------------------------------------
// Manual records
// ---------------------------------------------------------------------------

const manualColumns = `id, user_id, entity_type, payload, data_source, external_id,
	reconciled, reconciled_at, metadata, created_at, updated_at`

// ListManual returns a user's manual records in insertion order
func (s *Storage) ListManual(ctx context.Context, userID string, entityType records.EntityType) ([]records.ManualRecord, error) {
	query := `SELECT ` + manualColumns + ` FROM manual_records WHERE user_id = ?`
	args := []any{userID}
	if entityType != "" {
		query += ` AND entity_type = ?`
		args = append(args, string(entityType))
	}
	query += ` ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list manual records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []records.ManualRecord
	for rows.Next() {
		rec, err := scanManual(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// GetManual retrieves a manual record by ID
func (s *Storage) GetManual(ctx context.Context, id string) (*records.ManualRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+manualColumns+` FROM manual_records WHERE id = ?`, id)
	rec, err := scanManual(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("manual record %s: %w", id, ErrNotFound)
	}
	return rec, err
}

// InsertManual stores a new manual record
func (s *Storage) InsertManual(ctx context.Context, rec *records.ManualRecord) error {
	return insertManual(ctx, s.db, rec)
}

func insertManual(ctx context.Context, db execer, rec *records.ManualRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.DataSource == "" {
		rec.DataSource = records.SourceManual
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	payload, metadata, err := encodeManual(rec)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO manual_records (`+manualColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.UserID,
		string(rec.Type),
		payload,
		string(rec.DataSource),
		nullString(rec.ExternalID),
		rec.Reconciled,
		formatTimePtr(rec.ReconciledAt),
		metadata,
		formatTime(rec.CreatedAt),
		formatTime(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert manual record %s: %w", rec.ID, err)
	}
	return nil
}

func updateManual(ctx context.Context, db execer, rec *records.ManualRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	rec.UpdatedAt = time.Now().UTC()

	payload, metadata, err := encodeManual(rec)
	if err != nil {
		return err
	}

	result, err := db.ExecContext(ctx, `
		UPDATE manual_records
		SET payload = ?,
		    data_source = ?,
		    external_id = ?,
		    reconciled = ?,
		    reconciled_at = ?,
		    metadata = ?,
		    updated_at = ?
		WHERE id = ?`,
		payload,
		string(rec.DataSource),
		nullString(rec.ExternalID),
		rec.Reconciled,
		formatTimePtr(rec.ReconciledAt),
		metadata,
		formatTime(rec.UpdatedAt),
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update manual record %s: %w", rec.ID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("manual record %s: %w", rec.ID, ErrNotFound)
	}
	return nil
}

func encodeManual(rec *records.ManualRecord) (string, string, error) {
	payload, err := json.Marshal(records.SnapshotOf(rec))
	if err != nil {
		return "", "", fmt.Errorf("failed to encode record %s: %w", rec.ID, err)
	}
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode metadata for %s: %w", rec.ID, err)
	}
	return string(payload), string(metadata), nil
}

func scanManual(row scanner) (*records.ManualRecord, error) {
	var (
		rec          records.ManualRecord
		entityType   string
		payload      string
		dataSource   string
		externalID   sql.NullString
		reconciledAt sql.NullString
		metadata     string
		createdAt    string
		updatedAt    string
	)
	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&entityType,
		&payload,
		&dataSource,
		&externalID,
		&rec.Reconciled,
		&reconciledAt,
		&metadata,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Type = records.EntityType(entityType)
	rec.DataSource = records.DataSource(dataSource)
	rec.ExternalID = externalID.String

	var snap records.Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, fmt.Errorf("failed to decode record %s: %w", rec.ID, err)
	}
	snap.Restore(&rec)
	rec.Type = records.EntityType(entityType)

	if err := json.Unmarshal([]byte(metadata), &rec.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata for %s: %w", rec.ID, err)
	}

	rec.ReconciledAt = parseTimePtr(reconciledAt)
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	return &rec, nil
}

// ---------------------------------------------------------------------------
// External records
// ---------------------------------------------------------------------------

// ListExternal returns a user's aggregator records in arrival order
func (s *Storage) ListExternal(ctx context.Context, userID string, entityType records.EntityType) ([]records.ExternalRecord, error) {
	query := `SELECT payload FROM external_records WHERE user_id = ?`
	args := []any{userID}
	if entityType != "" {
		query += ` AND entity_type = ?`
		args = append(args, string(entityType))
	}
	query += ` ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list external records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []records.ExternalRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var rec records.ExternalRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode external record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// UpsertExternal stores an aggregator record, keeping its original arrival position.
// Records are keyed by (user, aggregator id).
func (s *Storage) UpsertExternal(ctx context.Context, rec *records.ExternalRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode external record %s: %w", rec.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO external_records (id, user_id, entity_type, account_id, payload, imported_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, id) DO UPDATE SET
			entity_type = excluded.entity_type,
			account_id = excluded.account_id,
			payload = excluded.payload,
			imported_at = excluded.imported_at`,
		rec.ID,
		rec.UserID,
		string(rec.Type),
		rec.AccountID,
		string(payload),
		formatTime(time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert external record %s: %w", rec.ID, err)
	}
	return nil
}

// IsExternalLinked checks whether a manual-shaped record already carries externalID
func (s *Storage) IsExternalLinked(ctx context.Context, userID string, entityType records.EntityType, externalID string) (bool, error) {
	var linked bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM manual_records
			WHERE user_id = ? AND entity_type = ? AND external_id = ?
		)`,
		userID, string(entityType), externalID,
	).Scan(&linked)
	if err != nil {
		return false, fmt.Errorf("failed to check link for %s: %w", externalID, err)
	}
	return linked, nil
}

// ---------------------------------------------------------------------------
// Decisions and audit log
// ---------------------------------------------------------------------------

// ApplyChange writes the record update, the new record and the log entry atomically
func (s *Storage) ApplyChange(ctx context.Context, change Change) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if change.Update != nil {
			if err := updateManual(ctx, tx, change.Update); err != nil {
				return err
			}
		}
		if change.Create != nil {
			if err := insertManual(ctx, tx, change.Create); err != nil {
				return err
			}
		}
		if change.Log != nil {
			if err := insertLog(ctx, tx, change.Log); err != nil {
				return err
			}
		}
		return nil
	})
}

// AppendLog stores a single log entry
func (s *Storage) AppendLog(ctx context.Context, entry *LogEntry) error {
	return insertLog(ctx, s.db, entry)
}

func insertLog(ctx context.Context, db execer, entry *LogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO reconciliation_log
		(id, user_id, run_id, entity_type, action, manual_id, external_id,
		 confidence, score, reason, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.UserID,
		nullString(entry.RunID),
		string(entry.EntityType),
		entry.Action,
		nullString(entry.ManualID),
		nullString(entry.ExternalID),
		nullString(entry.Confidence),
		entry.Score,
		nullString(entry.Reason),
		nullString(string(entry.Metadata)),
		formatTime(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append log entry: %w", err)
	}
	return nil
}

// ListLog returns a user's log entries, newest first
func (s *Storage) ListLog(ctx context.Context, userID string, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, run_id, entity_type, action, manual_id, external_id,
		       confidence, score, reason, metadata, created_at
		FROM reconciliation_log
		WHERE user_id = ?
		ORDER BY seq DESC
		LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []LogEntry
	for rows.Next() {
		var (
			e          LogEntry
			entityType string
			runID      sql.NullString
			manualID   sql.NullString
			externalID sql.NullString
			confidence sql.NullString
			reason     sql.NullString
			metadata   sql.NullString
			createdAt  string
		)
		err := rows.Scan(
			&e.ID,
			&e.UserID,
			&runID,
			&entityType,
			&e.Action,
			&manualID,
			&externalID,
			&confidence,
			&e.Score,
			&reason,
			&metadata,
			&createdAt,
		)
		if err != nil {
			return nil, err
		}
		e.EntityType = records.EntityType(entityType)
		e.RunID = runID.String
		e.ManualID = manualID.String
		e.ExternalID = externalID.String
		e.Confidence = confidence.String
		e.Reason = reason.String
		if metadata.Valid && metadata.String != "" {
			e.Metadata = json.RawMessage(metadata.String)
		}
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ---------------------------------------------------------------------------
// Checkpoints
// ---------------------------------------------------------------------------

// SetCheckpoint records when a user was last reconciled
func (s *Storage) SetCheckpoint(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reconciliation_checkpoints (user_id, last_reconciled_at)
		VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET last_reconciled_at = excluded.last_reconciled_at`,
		userID, formatTime(at),
	)
	if err != nil {
		return fmt.Errorf("failed to set checkpoint for %s: %w", userID, err)
	}
	return nil
}

// GetCheckpoint returns the user's last reconciliation time, or nil
func (s *Storage) GetCheckpoint(ctx context.Context, userID string) (*time.Time, error) {
	var at string
	err := s.db.QueryRowContext(ctx,
		`SELECT last_reconciled_at FROM reconciliation_checkpoints WHERE user_id = ?`, userID,
	).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint for %s: %w", userID, err)
	}
	t := parseTime(at)
	return &t, nil
}

// ---------------------------------------------------------------------------
// Runs
// ---------------------------------------------------------------------------

// StartRun records the start of a reconciliation run
func (s *Storage) StartRun(ctx context.Context, userID string) (*Run, error) {
	run := &Run{
		ID:        uuid.NewString(),
		UserID:    userID,
		StartedAt: time.Now().UTC(),
		Status:    RunStatusRunning,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reconciliation_runs (id, user_id, started_at, status)
		VALUES (?, ?, ?, ?)`,
		run.ID, run.UserID, formatTime(run.StartedAt), run.Status,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}
	return run, nil
}

// CompleteRun records the completion of a run
func (s *Storage) CompleteRun(ctx context.Context, runID string, stats RunStats) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE reconciliation_runs
		SET completed_at = ?,
		    matched = ?,
		    created = ?,
		    conflicts_resolved = ?,
		    skipped = ?,
		    errors = ?,
		    status = ?
		WHERE id = ?`,
		formatTime(time.Now().UTC()),
		stats.Matched,
		stats.Created,
		stats.ConflictsResolved,
		stats.Skipped,
		stats.Errors,
		stats.Status(),
		runID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run %s: %w", runID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return nil
}

const runColumns = `id, user_id, started_at, completed_at, matched, created,
	conflicts_resolved, skipped, errors, status`

// ListRuns returns recent runs
func (s *Storage) ListRuns(ctx context.Context, filters RunFilters) ([]Run, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `SELECT ` + runColumns + ` FROM reconciliation_runs`
	var args []any
	if filters.UserID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, filters.UserID)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetRun retrieves a run by ID
func (s *Storage) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM reconciliation_runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return run, err
}

func scanRun(row scanner) (*Run, error) {
	var (
		run         Run
		startedAt   string
		completedAt sql.NullString
	)
	err := row.Scan(
		&run.ID,
		&run.UserID,
		&startedAt,
		&completedAt,
		&run.Matched,
		&run.Created,
		&run.ConflictsResolved,
		&run.Skipped,
		&run.Errors,
		&run.Status,
	)
	if err != nil {
		return nil, err
	}
	run.StartedAt = parseTime(startedAt)
	run.CompletedAt = parseTimePtr(completedAt)
	return &run, nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}
