package reconcile

import (
	"context"
	"fmt"

	"github.com/eshaffer321/reconciler/internal/domain/records"
	"github.com/eshaffer321/reconciler/internal/infrastructure/storage"
	"github.com/google/uuid"
)

// revertPayload is stored as the metadata of a REVERT log entry.
type revertPayload struct {
	Strategy string            `json:"strategy"`
	Before   records.Snapshot  `json:"before"`
	Restored *records.Snapshot `json:"restored,omitempty"`
}

// Revert undoes the reconciliation of one record: the pre-reconciliation
// values are restored when a snapshot exists, and the record is unlinked and
// marked unreconciled so the next run considers it again.
func (o *Orchestrator) Revert(ctx context.Context, userID, manualID string) (*records.ManualRecord, error) {
	if o.repo == nil {
		return nil, ErrNoRepository
	}

	rec, err := o.repo.GetManual(ctx, manualID)
	if err != nil {
		return nil, err
	}
	if rec.UserID != userID {
		return nil, fmt.Errorf("manual record %s: %w", manualID, storage.ErrNotFound)
	}
	if !rec.Reconciled {
		return nil, fmt.Errorf("manual record %s: %w", manualID, ErrNotReconciled)
	}
	original := rec.Metadata.OriginalManualData
	if original == nil && rec.DataSource == records.SourceExternal {
		return nil, fmt.Errorf("manual record %s: %w", manualID, ErrNotRevertible)
	}

	payload := revertPayload{
		Strategy: rec.Metadata.LastStrategy,
		Before:   records.SnapshotOf(rec),
		Restored: original,
	}

	reverted := rec.Clone()
	if original != nil {
		original.Restore(&reverted)
	}
	reverted.DataSource = records.SourceManual
	reverted.ExternalID = ""
	reverted.Reconciled = false
	reverted.ReconciledAt = nil
	reverted.Metadata = records.Metadata{}

	logger := o.logger.With("user_id", userID, "record_id", manualID)

	err = o.repo.ApplyChange(ctx, storage.Change{
		Update: &reverted,
		Log: &storage.LogEntry{
			ID:         uuid.NewString(),
			UserID:     userID,
			EntityType: rec.Type,
			Action:     storage.ActionRevert,
			ManualID:   rec.ID,
			ExternalID: rec.ExternalID,
			Reason:     fmt.Sprintf("reverted %s", orString(rec.Metadata.LastStrategy, "reconciliation")),
			Metadata:   o.marshalMetadata(logger, payload),
			CreatedAt:  o.now().UTC(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to revert %s: %w", manualID, err)
	}

	logger.Info("Reverted reconciliation", "strategy", rec.Metadata.LastStrategy)
	return &reverted, nil
}
