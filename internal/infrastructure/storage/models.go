package storage

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/eshaffer321/reconciler/internal/domain/records"
)

// ErrNotFound is returned when a record, run or log entry does not exist.
var ErrNotFound = errors.New("not found")

// Log actions that are not strategy names.
const (
	ActionCreateFromExternal = "CREATE_FROM_EXTERNAL"
	ActionRevert             = "REVERT"
)

// Run statuses
const (
	RunStatusRunning             = "running"
	RunStatusCompleted           = "completed"
	RunStatusCompletedWithErrors = "completed_with_errors"
)

const defaultListLimit = 50

// Change is one applied decision. Update overwrites an existing manual record,
// Create inserts a new one, Log is appended. Any of them may be nil, but the
// non-nil parts succeed or fail together.
type Change struct {
	Update *records.ManualRecord
	Create *records.ManualRecord
	Log    *LogEntry
}

// LogEntry is one row of the append-only reconciliation log.
type LogEntry struct {
	ID         string             `json:"id"`
	UserID     string             `json:"user_id"`
	RunID      string             `json:"run_id,omitempty"`
	EntityType records.EntityType `json:"entity_type"`
	Action     string             `json:"action"`
	ManualID   string             `json:"manual_id,omitempty"`
	ExternalID string             `json:"external_id,omitempty"`
	Confidence string             `json:"confidence,omitempty"`
	Score      float64            `json:"score"`
	Reason     string             `json:"reason,omitempty"`
	Metadata   json.RawMessage    `json:"metadata,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}

// Run represents a reconciliation run record
type Run struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	StartedAt         time.Time  `json:"started_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	Matched           int        `json:"matched"`
	Created           int        `json:"created"`
	ConflictsResolved int        `json:"conflicts_resolved"`
	Skipped           int        `json:"skipped"`
	Errors            int        `json:"errors"`
	Status            string     `json:"status"`
}

// RunStats are the final counts recorded by CompleteRun.
type RunStats struct {
	Matched           int
	Created           int
	ConflictsResolved int
	Skipped           int
	Errors            int
}

// Status returns the run status implied by the counts.
func (s RunStats) Status() string {
	if s.Errors > 0 {
		return RunStatusCompletedWithErrors
	}
	return RunStatusCompleted
}
