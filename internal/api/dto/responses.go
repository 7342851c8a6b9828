package dto

import (
	"encoding/json"
	"time"

	"github.com/eshaffer321/reconciler/internal/domain/records"
	"github.com/eshaffer321/reconciler/internal/infrastructure/storage"
)

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// NewHealthResponse creates a health response with current timestamp.
func NewHealthResponse() HealthResponse {
	return HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// LogEntryResponse represents one reconciliation log entry.
type LogEntryResponse struct {
	ID         string          `json:"id"`
	RunID      string          `json:"run_id,omitempty"`
	EntityType string          `json:"entity_type"`
	Action     string          `json:"action"`
	ManualID   string          `json:"manual_id,omitempty"`
	ExternalID string          `json:"external_id,omitempty"`
	Confidence string          `json:"confidence,omitempty"`
	Score      float64         `json:"score"`
	Reason     string          `json:"reason,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	CreatedAt  string          `json:"created_at"`
}

// LogListResponse is returned when listing a user's log.
type LogListResponse struct {
	UserID  string             `json:"user_id"`
	Entries []LogEntryResponse `json:"entries"`
	Count   int                `json:"count"`
}

// NewLogEntryResponse converts a stored log entry.
func NewLogEntryResponse(e storage.LogEntry) LogEntryResponse {
	return LogEntryResponse{
		ID:         e.ID,
		RunID:      e.RunID,
		EntityType: string(e.EntityType),
		Action:     e.Action,
		ManualID:   e.ManualID,
		ExternalID: e.ExternalID,
		Confidence: e.Confidence,
		Score:      e.Score,
		Reason:     e.Reason,
		Metadata:   e.Metadata,
		CreatedAt:  e.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// RunResponse represents a reconciliation run in API responses.
type RunResponse struct {
	ID                string `json:"id"`
	UserID            string `json:"user_id"`
	StartedAt         string `json:"started_at"`
	CompletedAt       string `json:"completed_at,omitempty"`
	Matched           int    `json:"matched"`
	Created           int    `json:"created"`
	ConflictsResolved int    `json:"conflicts_resolved"`
	Skipped           int    `json:"skipped"`
	Errors            int    `json:"errors"`
	Status            string `json:"status"`
}

// RunListResponse is returned when listing runs.
type RunListResponse struct {
	Runs  []RunResponse `json:"runs"`
	Count int           `json:"count"`
}

// NewRunResponse converts a stored run.
func NewRunResponse(run storage.Run) RunResponse {
	resp := RunResponse{
		ID:                run.ID,
		UserID:            run.UserID,
		StartedAt:         run.StartedAt.UTC().Format(time.RFC3339),
		Matched:           run.Matched,
		Created:           run.Created,
		ConflictsResolved: run.ConflictsResolved,
		Skipped:           run.Skipped,
		Errors:            run.Errors,
		Status:            run.Status,
	}
	if run.CompletedAt != nil {
		resp.CompletedAt = run.CompletedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// ImportResponse is returned by the import endpoints.
type ImportResponse struct {
	UserID   string `json:"user_id"`
	Imported int    `json:"imported"`
}

// RecordResponse wraps a single manual record.
type RecordResponse struct {
	Record *records.ManualRecord `json:"record"`
}
