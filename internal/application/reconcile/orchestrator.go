// Package reconcile runs the per-user reconciliation state machine: match
// manual records against aggregator records, resolve each pair, apply the
// decision, and create records for whatever the aggregator reported that no
// manual record claimed.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/eshaffer321/reconciler/internal/domain/matcher"
	"github.com/eshaffer321/reconciler/internal/domain/records"
	"github.com/eshaffer321/reconciler/internal/domain/resolver"
	"github.com/eshaffer321/reconciler/internal/infrastructure/storage"
)

// Orchestrator runs reconciliation for one user at a time. It holds no
// per-run state, so one instance may serve several users concurrently.
type Orchestrator struct {
	repo     storage.Repository
	matcher  *matcher.Matcher
	resolver *resolver.Resolver
	logger   *slog.Logger
	now      func() time.Time
}

// NewOrchestrator creates a new reconciliation orchestrator
func NewOrchestrator(repo storage.Repository, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		repo:     repo,
		matcher:  matcher.NewMatcher(matcher.DefaultConfig()),
		resolver: resolver.NewResolver(),
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run carries the identifiers shared by every write in one run.
type run struct {
	id     string
	userID string
	logger *slog.Logger
}

// ReconcileUser loads every entity type for userID from the store and
// reconciles them.
func (o *Orchestrator) ReconcileUser(ctx context.Context, userID string) (*Result, error) {
	if o.repo == nil {
		return nil, ErrNoRepository
	}

	manual := make(map[records.EntityType][]records.ManualRecord, len(records.AllEntityTypes))
	external := make(map[records.EntityType][]records.ExternalRecord, len(records.AllEntityTypes))
	for _, t := range records.AllEntityTypes {
		m, err := o.repo.ListManual(ctx, userID, t)
		if err != nil {
			return nil, fmt.Errorf("failed to load manual %s records: %w", t, err)
		}
		e, err := o.repo.ListExternal(ctx, userID, t)
		if err != nil {
			return nil, fmt.Errorf("failed to load external %s records: %w", t, err)
		}
		manual[t] = m
		external[t] = e
	}

	return o.Reconcile(ctx, userID, manual, external)
}

// Reconcile reconciles the given records for userID. Per-record failures are
// collected in Result.Errors and never abort the run; the returned error is
// reserved for run-level failures.
func (o *Orchestrator) Reconcile(
	ctx context.Context,
	userID string,
	manual map[records.EntityType][]records.ManualRecord,
	external map[records.EntityType][]records.ExternalRecord,
) (*Result, error) {
	if o.repo == nil {
		return nil, ErrNoRepository
	}

	result := newResult(userID)
	r := run{userID: userID, logger: o.logger.With("user_id", userID)}

	r.logger.Debug("Starting reconciliation",
		"manual_holdings", len(manual[records.EntityHolding]),
		"manual_income", len(manual[records.EntityIncome]),
		"manual_expenses", len(manual[records.EntityExpense]),
	)

	// Start run tracking
	if tracked, err := o.repo.StartRun(ctx, userID); err != nil {
		r.logger.Warn("Failed to start run tracking", "error", err)
		// Continue anyway - tracking failure shouldn't block reconciliation
	} else {
		r.id = tracked.ID
		result.RunID = tracked.ID
		r.logger = r.logger.With("run_id", tracked.ID)
	}

	var runErr error
	for _, t := range records.AllEntityTypes {
		tr, err := o.reconcileType(ctx, r, t, manual[t], external[t])
		result.add(t, tr)
		if err != nil {
			runErr = err
			break
		}
	}

	if runErr == nil {
		if err := o.repo.SetCheckpoint(ctx, userID, o.now().UTC()); err != nil {
			runErr = fmt.Errorf("failed to set checkpoint: %w", err)
		}
	}

	o.completeRun(ctx, r, result)

	if runErr != nil {
		return result, runErr
	}

	r.logger.Info("Reconciliation complete",
		"matched", result.Matched,
		"created", result.Created,
		"conflicts_resolved", result.ConflictsResolved,
		"skipped", result.Skipped,
		"errors", len(result.Errors),
	)
	return result, nil
}

// reconcileType runs the assignment loop and the unmatched pass for one
// entity type. Only context cancellation is returned as an error.
func (o *Orchestrator) reconcileType(
	ctx context.Context,
	r run,
	entityType records.EntityType,
	manuals []records.ManualRecord,
	externals []records.ExternalRecord,
) (*TypeResult, error) {
	tr := newTypeResult()
	tr.TotalProcessed = len(manuals) + len(externals)
	logger := r.logger.With("entity_type", entityType)

	// External records already linked by an earlier run are never reused.
	consumed := make(map[string]bool)
	for i := range manuals {
		if id := manuals[i].ExternalID; id != "" {
			consumed[id] = true
		}
		if id := manuals[i].Metadata.CounterpartExternalID; id != "" {
			consumed[id] = true
		}
	}

	candidates := make([]records.ExternalRecord, 0, len(externals))
	for i := range externals {
		ext := externals[i]
		if err := ext.Validate(); err != nil {
			o.recordError(logger, tr, RecordError{EntityType: entityType, ExternalID: ext.ID, Message: err.Error()})
			consumed[ext.ID] = true
			continue
		}
		candidates = append(candidates, ext)
	}

	// Assignment loop
	for i := range manuals {
		if err := ctx.Err(); err != nil {
			return tr, fmt.Errorf("reconciliation cancelled: %w", err)
		}

		rec := &manuals[i]
		if rec.Reconciled {
			tr.Skipped++
			continue
		}
		if err := rec.Validate(); err != nil {
			o.recordError(logger, tr, RecordError{EntityType: entityType, RecordID: rec.ID, Message: err.Error()})
			continue
		}

		best := o.matcher.FindBest(rec, candidates, consumed)
		if best == nil {
			if err := o.applyUnmatched(ctx, r, rec); err != nil {
				o.recordError(logger, tr, RecordError{EntityType: entityType, RecordID: rec.ID, Message: err.Error()})
				continue
			}
			tr.Unmatched++
			continue
		}

		decision := o.resolver.Resolve(rec, *best)
		// Consumed even if the write fails, so a failed pair is retried on the
		// next run instead of turning into a duplicate now.
		consumed[best.External.ID] = true

		logger.Debug("Resolved match",
			"record_id", rec.ID,
			"label", rec.Label(),
			"external_id", best.External.ID,
			"score", best.Score,
			"confidence", best.Confidence,
			"strategy", decision.Strategy,
			"conflicts", len(decision.Conflicts),
		)

		if err := o.applyDecision(ctx, r, rec, &best.External, decision); err != nil {
			o.recordError(logger, tr, RecordError{
				EntityType: entityType,
				RecordID:   rec.ID,
				ExternalID: best.External.ID,
				Message:    err.Error(),
			})
			continue
		}

		tr.Matched++
		tr.Strategies[decision.Strategy]++
		if decision.HasConflicts() {
			tr.ConflictsResolved++
		}
	}

	// Unmatched external pass
	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return tr, fmt.Errorf("reconciliation cancelled: %w", err)
		}

		ext := &candidates[i]
		if consumed[ext.ID] {
			continue
		}
		consumed[ext.ID] = true

		linked, err := o.repo.IsExternalLinked(ctx, r.userID, entityType, ext.ID)
		if err != nil {
			o.recordError(logger, tr, RecordError{EntityType: entityType, ExternalID: ext.ID, Message: err.Error()})
			continue
		}
		if linked {
			logger.Debug("External record already linked", "external_id", ext.ID)
			continue
		}

		if err := o.createFromExternal(ctx, r, ext); err != nil {
			o.recordError(logger, tr, RecordError{EntityType: entityType, ExternalID: ext.ID, Message: err.Error()})
			continue
		}
		tr.Created++
	}

	return tr, nil
}
