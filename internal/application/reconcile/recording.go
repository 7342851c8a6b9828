package reconcile

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/eshaffer321/reconciler/internal/domain/records"
	"github.com/eshaffer321/reconciler/internal/domain/resolver"
	"github.com/eshaffer321/reconciler/internal/infrastructure/storage"
	"github.com/google/uuid"
)

// Recording and audit trail functions for the orchestrator.
// These build log entries and persist run tracking.

func (o *Orchestrator) decisionLog(
	r run,
	rec *records.ManualRecord,
	ext *records.ExternalRecord,
	decision resolver.Decision,
) *storage.LogEntry {
	return &storage.LogEntry{
		ID:         uuid.NewString(),
		UserID:     r.userID,
		RunID:      r.id,
		EntityType: rec.Type,
		Action:     string(decision.Strategy),
		ManualID:   rec.ID,
		ExternalID: ext.ID,
		Confidence: string(decision.Confidence),
		Score:      decision.Score,
		Reason:     decision.Reason,
		Metadata:   o.marshalMetadata(r.logger, decision.Metadata),
		CreatedAt:  o.now().UTC(),
	}
}

func (o *Orchestrator) creationLog(r run, created *records.ManualRecord, ext *records.ExternalRecord) *storage.LogEntry {
	return &storage.LogEntry{
		ID:         uuid.NewString(),
		UserID:     r.userID,
		RunID:      r.id,
		EntityType: created.Type,
		Action:     storage.ActionCreateFromExternal,
		ManualID:   created.ID,
		ExternalID: ext.ID,
		Reason:     "no manual record matched",
		Metadata:   o.marshalMetadata(r.logger, resolver.DecisionSnapshot{External: *ext}),
		CreatedAt:  o.now().UTC(),
	}
}

// marshalMetadata encodes a log payload. A payload that cannot be encoded is
// logged and dropped rather than failing the decision.
func (o *Orchestrator) marshalMetadata(logger *slog.Logger, v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Warn("Failed to marshal log metadata", "error", err)
		return nil
	}
	return data
}

func (o *Orchestrator) recordError(logger *slog.Logger, tr *TypeResult, recErr RecordError) {
	logger.Error("Failed to reconcile record",
		"record_id", recErr.RecordID,
		"external_id", recErr.ExternalID,
		"error", recErr.Message,
	)
	tr.Errors = append(tr.Errors, recErr)
}

// completeRun records the final counts. Tracking failures are only logged.
func (o *Orchestrator) completeRun(ctx context.Context, r run, result *Result) {
	if r.id == "" {
		return
	}
	// The run's own context may already be cancelled; the counts still belong in the record.
	if err := o.repo.CompleteRun(context.WithoutCancel(ctx), r.id, result.Stats()); err != nil {
		r.logger.Warn("Failed to complete run tracking", "error", err)
	}
}
