package storage

import (
	"context"
	"time"

	"github.com/eshaffer321/reconciler/internal/domain/records"
)

// Repository defines the complete storage interface.
// This interface allows swapping implementations (SQLite, in-memory, etc.)
// and makes testing with mocks straightforward.
type Repository interface {
	ManualRecordRepository
	ExternalRecordRepository
	DecisionRepository
	AuditLogRepository
	CheckpointRepository
	RunRepository
	Close() error
}

// ManualRecordRepository handles user-owned records
type ManualRecordRepository interface {
	// ListManual returns a user's records of one type in insertion order.
	// An empty entity type lists every type.
	ListManual(ctx context.Context, userID string, entityType records.EntityType) ([]records.ManualRecord, error)

	// GetManual retrieves a record by ID, or ErrNotFound
	GetManual(ctx context.Context, id string) (*records.ManualRecord, error)

	// InsertManual validates and stores a new record. A missing ID is assigned.
	InsertManual(ctx context.Context, rec *records.ManualRecord) error
}

// ExternalRecordRepository handles aggregator input
type ExternalRecordRepository interface {
	// ListExternal returns a user's aggregator records of one type in arrival order
	ListExternal(ctx context.Context, userID string, entityType records.EntityType) ([]records.ExternalRecord, error)

	// UpsertExternal validates and stores an aggregator record, replacing any
	// previous version with the same ID
	UpsertExternal(ctx context.Context, rec *records.ExternalRecord) error

	// IsExternalLinked reports whether any manual-shaped record of the user
	// already carries externalID
	IsExternalLinked(ctx context.Context, userID string, entityType records.EntityType, externalID string) (bool, error)
}

// DecisionRepository applies reconciliation outcomes
type DecisionRepository interface {
	// ApplyChange writes every part of change in one transaction
	ApplyChange(ctx context.Context, change Change) error
}

// AuditLogRepository handles the append-only reconciliation log.
// There is deliberately no update or delete.
type AuditLogRepository interface {
	// AppendLog stores a single log entry outside of a decision
	AppendLog(ctx context.Context, entry *LogEntry) error

	// ListLog returns a user's most recent entries first. limit <= 0 means the default.
	ListLog(ctx context.Context, userID string, limit int) ([]LogEntry, error)
}

// CheckpointRepository tracks when a user was last reconciled
type CheckpointRepository interface {
	SetCheckpoint(ctx context.Context, userID string, at time.Time) error

	// GetCheckpoint returns nil when the user has never been reconciled
	GetCheckpoint(ctx context.Context, userID string) (*time.Time, error)
}

// RunRepository handles reconciliation run tracking
type RunRepository interface {
	// StartRun records the start of a run and returns it with its ID
	StartRun(ctx context.Context, userID string) (*Run, error)

	// CompleteRun records the final counts of a run
	CompleteRun(ctx context.Context, runID string, stats RunStats) error

	// ListRuns returns recent runs, newest first
	ListRuns(ctx context.Context, filters RunFilters) ([]Run, error)

	// GetRun retrieves a run by ID, or ErrNotFound
	GetRun(ctx context.Context, runID string) (*Run, error)
}

// RunFilters defines filters for listing runs
type RunFilters struct {
	UserID string // empty = all users
	Limit  int    // 0 = default 50
}
