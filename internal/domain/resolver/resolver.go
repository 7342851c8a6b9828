// Package resolver turns a scored match into exactly one reconciliation
// decision.
//
// Field disagreements are classified by severity first, then a per-entity
// decision table picks the strategy. The resolver never fails: every input
// pair produces a decision.
package resolver

import (
	"fmt"
	"strings"

	"github.com/eshaffer321/reconciler/internal/domain/matcher"
	"github.com/eshaffer321/reconciler/internal/domain/records"
)

// Resolver picks reconciliation strategies. It is stateless.
type Resolver struct{}

// NewResolver creates a resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve decides how to reconcile manual with the candidate's external record.
func (r *Resolver) Resolve(manual *records.ManualRecord, candidate matcher.MatchCandidate) Decision {
	ext := candidate.External

	var conflicts []Conflict
	switch manual.Type {
	case records.EntityHolding:
		conflicts = holdingConflicts(manual.Holding, ext.Holding)
	case records.EntityIncome:
		conflicts = incomeConflicts(manual.Income, &ext)
	case records.EntityExpense:
		conflicts = expenseConflicts(manual.Expense, &ext)
	}

	var strategy Strategy
	var rule string
	if manual.Type == records.EntityHolding {
		strategy, rule = decideHolding(candidate.Confidence, conflicts)
	} else {
		strategy, rule = decideTransaction(candidate.Confidence, conflicts)
	}

	return Decision{
		Strategy:   strategy,
		Confidence: candidate.Confidence,
		Score:      candidate.Score,
		Reason:     buildReason(rule, conflicts),
		Conflicts:  conflicts,
		Metadata: DecisionSnapshot{
			Manual:   records.SnapshotOf(manual),
			External: ext,
		},
	}
}

func decideHolding(confidence matcher.Confidence, conflicts []Conflict) (Strategy, string) {
	if len(conflicts) == 0 {
		return ReplaceWithExternal, "no conflicts, external data is current"
	}
	if confidence == matcher.ConfidenceHigh {
		if c, ok := find(conflicts, FieldShares); ok && c.Severity.AtLeast(SeverityMedium) {
			return MergeQuantities, "high confidence match with diverging share counts"
		}
	}
	if countSeverity(conflicts, SeverityHigh) > 1 {
		return KeepBoth, "multiple high severity conflicts"
	}
	if confidence == matcher.ConfidenceMedium {
		return KeepManual, "medium confidence match with conflicts"
	}
	if confidence == matcher.ConfidenceLow {
		return KeepBoth, "low confidence match"
	}
	return ReplaceWithExternal, "conflicts are minor"
}

func decideTransaction(confidence matcher.Confidence, conflicts []Conflict) (Strategy, string) {
	if c, ok := find(conflicts, FieldAmount); ok && c.Severity == SeverityHigh {
		return KeepBoth, "amounts differ significantly"
	}
	if confidence == matcher.ConfidenceLow {
		return KeepBoth, "low confidence match"
	}
	for _, c := range conflicts {
		if c.Severity.AtLeast(SeverityMedium) {
			return KeepManual, "conflict of medium severity or higher"
		}
	}
	if confidence == matcher.ConfidenceMedium && len(conflicts) > 0 {
		return KeepManual, "medium confidence match with conflicts"
	}
	if len(conflicts) == 0 {
		return ReplaceWithExternal, "no conflicts, external data is current"
	}
	return ReplaceWithExternal, "conflicts are minor"
}

func buildReason(rule string, conflicts []Conflict) string {
	if len(conflicts) == 0 {
		return rule
	}
	parts := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		parts = append(parts, fmt.Sprintf("%s %s (%s → %s)", c.Field, c.Severity, c.Manual, c.External))
	}
	return rule + ": " + strings.Join(parts, "; ")
}

func find(conflicts []Conflict, field string) (Conflict, bool) {
	for _, c := range conflicts {
		if c.Field == field {
			return c, true
		}
	}
	return Conflict{}, false
}

func countSeverity(conflicts []Conflict, s Severity) int {
	n := 0
	for _, c := range conflicts {
		if c.Severity == s {
			n++
		}
	}
	return n
}
