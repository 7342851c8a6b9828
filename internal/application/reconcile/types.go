package reconcile

import (
	"errors"
	"fmt"
	"time"

	"github.com/eshaffer321/reconciler/internal/domain/matcher"
	"github.com/eshaffer321/reconciler/internal/domain/records"
	"github.com/eshaffer321/reconciler/internal/domain/resolver"
	"github.com/eshaffer321/reconciler/internal/infrastructure/storage"
)

var (
	// ErrNoRepository is returned when the orchestrator has no record store.
	ErrNoRepository = errors.New("reconcile: no repository configured")

	// ErrNotReconciled is returned when reverting a record that was never reconciled.
	ErrNotReconciled = errors.New("record is not reconciled")

	// ErrNotRevertible is returned for records created from aggregator data,
	// which have no manual values to restore.
	ErrNotRevertible = errors.New("record was created from external data and has nothing to restore")
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMatcherConfig replaces the default matcher weights and tolerances.
func WithMatcherConfig(cfg matcher.Config) Option {
	return func(o *Orchestrator) {
		o.matcher = matcher.NewMatcher(cfg)
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// RecordError describes a single record that could not be reconciled.
type RecordError struct {
	EntityType records.EntityType `json:"entity_type"`
	RecordID   string             `json:"record_id,omitempty"`
	ExternalID string             `json:"external_id,omitempty"`
	Message    string             `json:"message"`
}

func (e RecordError) Error() string {
	switch {
	case e.RecordID != "" && e.ExternalID != "":
		return fmt.Sprintf("%s %s (external %s): %s", e.EntityType, e.RecordID, e.ExternalID, e.Message)
	case e.RecordID != "":
		return fmt.Sprintf("%s %s: %s", e.EntityType, e.RecordID, e.Message)
	default:
		return fmt.Sprintf("%s external %s: %s", e.EntityType, e.ExternalID, e.Message)
	}
}

// TypeResult holds the counts for one entity type.
type TypeResult struct {
	Matched           int                       `json:"matched"`
	Created           int                       `json:"created"`
	ConflictsResolved int                       `json:"conflicts_resolved"`
	Skipped           int                       `json:"skipped"`
	Unmatched         int                       `json:"unmatched"`
	TotalProcessed    int                       `json:"total_processed"`
	Strategies        map[resolver.Strategy]int `json:"strategies"`
	Errors            []RecordError             `json:"errors"`
}

func newTypeResult() *TypeResult {
	return &TypeResult{
		Strategies: make(map[resolver.Strategy]int),
		Errors:     make([]RecordError, 0),
	}
}

// Result holds reconciliation results for one user run
type Result struct {
	RunID  string                             `json:"run_id,omitempty"`
	UserID string                             `json:"user_id"`
	ByType map[records.EntityType]*TypeResult `json:"by_type"`

	// Totals across every entity type
	Matched           int                       `json:"matched"`
	Created           int                       `json:"created"`
	ConflictsResolved int                       `json:"conflicts_resolved"`
	Skipped           int                       `json:"skipped"`
	Unmatched         int                       `json:"unmatched"`
	TotalProcessed    int                       `json:"total_processed"`
	Strategies        map[resolver.Strategy]int `json:"strategies"`
	Errors            []RecordError             `json:"errors"`
}

func newResult(userID string) *Result {
	return &Result{
		UserID:     userID,
		ByType:     make(map[records.EntityType]*TypeResult),
		Strategies: make(map[resolver.Strategy]int),
		Errors:     make([]RecordError, 0),
	}
}

// HasErrors reports whether the run completed with issues. Counts are still
// meaningful when it does.
func (r *Result) HasErrors() bool {
	return len(r.Errors) > 0
}

// Stats converts the totals into run-tracking counts.
func (r *Result) Stats() storage.RunStats {
	return storage.RunStats{
		Matched:           r.Matched,
		Created:           r.Created,
		ConflictsResolved: r.ConflictsResolved,
		Skipped:           r.Skipped,
		Errors:            len(r.Errors),
	}
}

func (r *Result) add(entityType records.EntityType, tr *TypeResult) {
	r.ByType[entityType] = tr
	r.Matched += tr.Matched
	r.Created += tr.Created
	r.ConflictsResolved += tr.ConflictsResolved
	r.Skipped += tr.Skipped
	r.Unmatched += tr.Unmatched
	r.TotalProcessed += tr.TotalProcessed
	for s, n := range tr.Strategies {
		r.Strategies[s] += n
	}
	r.Errors = append(r.Errors, tr.Errors...)
}
