package dto

import (
	"time"

	"github.com/eshaffer321/reconciler/internal/application/reconcile"
	"github.com/eshaffer321/reconciler/internal/application/service"
)

// Reconcile outcome labels.
const (
	StatusCompleted           = "completed"
	StatusCompletedWithIssues = "completed_with_issues"
)

// CountsResponse holds the counters shared by totals and per-type results.
type CountsResponse struct {
	Matched           int            `json:"matched"`
	Created           int            `json:"created"`
	ConflictsResolved int            `json:"conflicts_resolved"`
	Skipped           int            `json:"skipped"`
	Unmatched         int            `json:"unmatched"`
	TotalProcessed    int            `json:"total_processed"`
	Strategies        map[string]int `json:"strategies"`
}

// RecordErrorResponse describes one record that failed.
type RecordErrorResponse struct {
	EntityType string `json:"entity_type"`
	RecordID   string `json:"record_id,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
	Message    string `json:"message"`
}

// ReconcileResponse is returned by POST /api/users/{userID}/reconcile.
type ReconcileResponse struct {
	RunID  string                    `json:"run_id,omitempty"`
	UserID string                    `json:"user_id"`
	Status string                    `json:"status"`
	Totals CountsResponse            `json:"totals"`
	ByType map[string]CountsResponse `json:"by_type"`
	Errors []RecordErrorResponse     `json:"errors"`
}

// NewReconcileResponse converts an orchestrator result.
func NewReconcileResponse(r *reconcile.Result) ReconcileResponse {
	resp := ReconcileResponse{
		RunID:  r.RunID,
		UserID: r.UserID,
		Status: StatusCompleted,
		Totals: CountsResponse{
			Matched:           r.Matched,
			Created:           r.Created,
			ConflictsResolved: r.ConflictsResolved,
			Skipped:           r.Skipped,
			Unmatched:         r.Unmatched,
			TotalProcessed:    r.TotalProcessed,
			Strategies:        strategyCounts(r.Strategies),
		},
		ByType: make(map[string]CountsResponse, len(r.ByType)),
		Errors: make([]RecordErrorResponse, 0, len(r.Errors)),
	}
	if r.HasErrors() {
		resp.Status = StatusCompletedWithIssues
	}
	for t, tr := range r.ByType {
		resp.ByType[string(t)] = CountsResponse{
			Matched:           tr.Matched,
			Created:           tr.Created,
			ConflictsResolved: tr.ConflictsResolved,
			Skipped:           tr.Skipped,
			Unmatched:         tr.Unmatched,
			TotalProcessed:    tr.TotalProcessed,
			Strategies:        strategyCounts(tr.Strategies),
		}
	}
	for _, e := range r.Errors {
		resp.Errors = append(resp.Errors, RecordErrorResponse{
			EntityType: string(e.EntityType),
			RecordID:   e.RecordID,
			ExternalID: e.ExternalID,
			Message:    e.Message,
		})
	}
	return resp
}

func strategyCounts[K ~string](in map[K]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[string(k)] = v
	}
	return out
}

// StatusResponse is returned by GET /api/users/{userID}/status.
type StatusResponse struct {
	UserID           string         `json:"user_id"`
	IsReconciled     bool           `json:"is_reconciled"`
	LastReconciledAt *string        `json:"last_reconciled_at,omitempty"`
	PendingItems     int            `json:"pending_items"`
	TotalItems       int            `json:"total_items"`
	PendingByType    map[string]int `json:"pending_by_type"`
}

// NewStatusResponse converts a service status.
func NewStatusResponse(s *service.Status) StatusResponse {
	resp := StatusResponse{
		UserID:        s.UserID,
		IsReconciled:  s.IsReconciled,
		PendingItems:  s.PendingItems,
		TotalItems:    s.TotalItems,
		PendingByType: strategyCounts(s.PendingByType),
	}
	if s.LastReconciledAt != nil {
		ts := s.LastReconciledAt.UTC().Format(time.RFC3339)
		resp.LastReconciledAt = &ts
	}
	return resp
}
