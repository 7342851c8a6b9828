package reconcile

import (
	"context"
	"fmt"
	"math"

	"github.com/eshaffer321/reconciler/internal/domain/records"
	"github.com/eshaffer321/reconciler/internal/domain/resolver"
	"github.com/eshaffer321/reconciler/internal/infrastructure/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// applyDecision writes one resolved decision and its log entry atomically.
func (o *Orchestrator) applyDecision(
	ctx context.Context,
	r run,
	rec *records.ManualRecord,
	ext *records.ExternalRecord,
	decision resolver.Decision,
) error {
	now := o.now().UTC()

	updated := rec.Clone()
	updated.Reconciled = true
	updated.ReconciledAt = &now
	updated.Metadata.LastStrategy = string(decision.Strategy)
	updated.Metadata.LastRunID = r.id

	change := storage.Change{Update: &updated}

	switch decision.Strategy {
	case resolver.KeepManual:
		updated.ExternalID = ext.ID

	case resolver.MergeQuantities:
		if rec.Holding == nil || ext.Holding == nil {
			return fmt.Errorf("cannot merge quantities of %s records", rec.Type)
		}
		snap := records.SnapshotOf(rec)
		updated.Metadata.OriginalManualData = &snap
		updated.Holding = mergeHolding(rec.Holding, ext.Holding, ext.AccountID)
		updated.DataSource = records.SourceMerged
		updated.ExternalID = ext.ID

	case resolver.KeepBoth:
		created := o.newFromExternal(r, ext)
		created.Metadata.CounterpartRecordID = rec.ID
		updated.Metadata.HasExternalCounterpart = true
		updated.Metadata.CounterpartExternalID = ext.ID
		updated.Metadata.CounterpartRecordID = created.ID
		change.Create = created

	default:
		snap := records.SnapshotOf(rec)
		updated.Metadata.OriginalManualData = &snap
		replaceValues(&updated, rec, ext)
		updated.DataSource = records.SourceExternal
		updated.ExternalID = ext.ID
	}

	change.Log = o.decisionLog(r, rec, ext, decision)

	if err := o.repo.ApplyChange(ctx, change); err != nil {
		return fmt.Errorf("failed to apply %s: %w", decision.Strategy, err)
	}
	return nil
}

// applyUnmatched marks a manual record that no external record matched as
// reconciled without linking it.
func (o *Orchestrator) applyUnmatched(ctx context.Context, r run, rec *records.ManualRecord) error {
	now := o.now().UTC()

	updated := rec.Clone()
	updated.Reconciled = true
	updated.ReconciledAt = &now
	updated.Metadata.LastStrategy = string(resolver.KeepManual)
	updated.Metadata.LastRunID = r.id

	err := o.repo.ApplyChange(ctx, storage.Change{
		Update: &updated,
		Log: &storage.LogEntry{
			ID:         uuid.NewString(),
			UserID:     r.userID,
			RunID:      r.id,
			EntityType: rec.Type,
			Action:     string(resolver.KeepManual),
			ManualID:   rec.ID,
			Reason:     "no matching external record",
			CreatedAt:  now,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to mark unmatched record: %w", err)
	}
	return nil
}

// createFromExternal inserts a record for an external entry that nothing claimed.
func (o *Orchestrator) createFromExternal(ctx context.Context, r run, ext *records.ExternalRecord) error {
	created := o.newFromExternal(r, ext)
	err := o.repo.ApplyChange(ctx, storage.Change{
		Create: created,
		Log:    o.creationLog(r, created, ext),
	})
	if err != nil {
		return fmt.Errorf("failed to create record from external: %w", err)
	}
	return nil
}

func (o *Orchestrator) newFromExternal(r run, ext *records.ExternalRecord) *records.ManualRecord {
	now := o.now().UTC()
	rec := ext.ToManual()
	rec.ID = uuid.NewString()
	rec.ReconciledAt = &now
	rec.CreatedAt = now
	rec.Metadata.LastStrategy = storage.ActionCreateFromExternal
	rec.Metadata.LastRunID = r.id
	return &rec
}

// replaceValues overwrites the value fields of dst with the external values.
// Fields the aggregator left blank keep the manual value, and transaction
// amounts keep the manual sign convention.
func replaceValues(dst, manual *records.ManualRecord, ext *records.ExternalRecord) {
	values := ext.Values()
	values.Apply(dst)

	switch {
	case dst.Holding != nil && manual.Holding != nil:
		h, m := dst.Holding, manual.Holding
		h.Name = orString(h.Name, m.Name)
		h.CUSIP = orString(h.CUSIP, m.CUSIP)
		h.ISIN = orString(h.ISIN, m.ISIN)
		h.SecurityType = orString(h.SecurityType, m.SecurityType)
		h.AccountID = orString(h.AccountID, m.AccountID)
		if h.CostBasis == 0 {
			h.CostBasis = m.CostBasis
		}
		if h.CurrentPrice == 0 {
			h.CurrentPrice = m.CurrentPrice
		}
	case dst.Income != nil && manual.Income != nil:
		in, m := dst.Income, manual.Income
		in.Source = orString(in.Source, m.Source)
		in.Category = orString(in.Category, m.Category)
		in.AccountID = orString(in.AccountID, m.AccountID)
		in.Amount = withSign(in.Amount, m.Amount)
		if in.Date.IsZero() {
			in.Date = m.Date
		}
	case dst.Expense != nil && manual.Expense != nil:
		ex, m := dst.Expense, manual.Expense
		ex.Merchant = orString(ex.Merchant, m.Merchant)
		ex.Description = orString(ex.Description, m.Description)
		ex.Category = orString(ex.Category, m.Category)
		ex.AccountID = orString(ex.AccountID, m.AccountID)
		ex.Amount = withSign(ex.Amount, m.Amount)
		if ex.Date.IsZero() {
			ex.Date = m.Date
		}
	}
}

// mergeHolding sums both quantities. Cost basis becomes the share-weighted
// average when both sides report one, otherwise whichever is present.
func mergeHolding(m *records.Holding, e *records.ExternalHolding, accountID string) *records.Holding {
	merged := *m

	manualShares := decimal.NewFromFloat(m.Shares)
	externalShares := decimal.NewFromFloat(e.Quantity)
	combined := manualShares.Add(externalShares)
	merged.Shares = combined.InexactFloat64()

	switch {
	case m.CostBasis > 0 && e.CostBasis > 0 && !combined.IsZero():
		manualCost := decimal.NewFromFloat(m.CostBasis).Mul(manualShares)
		externalCost := decimal.NewFromFloat(e.CostBasis).Mul(externalShares)
		merged.CostBasis = manualCost.Add(externalCost).DivRound(combined, 6).InexactFloat64()
	case m.CostBasis > 0:
		merged.CostBasis = m.CostBasis
	default:
		merged.CostBasis = e.CostBasis
	}

	if e.Price > 0 {
		merged.CurrentPrice = e.Price
	}
	merged.Name = orString(m.Name, e.Name)
	merged.CUSIP = orString(m.CUSIP, e.CUSIP)
	merged.ISIN = orString(m.ISIN, e.ISIN)
	merged.SecurityType = orString(m.SecurityType, e.SecurityType)
	merged.AccountID = orString(m.AccountID, accountID)
	return &merged
}

func orString(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

// withSign returns |v| carrying the sign of like. A zero like keeps v as is.
func withSign(v, like float64) float64 {
	if like == 0 {
		return v
	}
	return math.Copysign(math.Abs(v), like)
}
