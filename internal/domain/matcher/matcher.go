// Package matcher scores manual records against aggregator records and
// returns ranked match candidates.
//
// Scoring is a weighted sum of per-field criteria that depends on the entity
// type (see holdings.go and transactions.go). A criterion whose inputs are
// missing contributes 0; the matcher never returns an error.
//
// Example usage:
//
//	m := matcher.NewMatcher(matcher.DefaultConfig())
//	best := m.FindBest(manual, externals, consumedIDs)
//	if best != nil {
//		// best.External is the highest scoring unconsumed record
//	}
package matcher

import (
	"fmt"
	"math"
	"sort"

	"github.com/eshaffer321/reconciler/internal/domain/records"
)

// Matcher scores manual records against external records.
// It holds only configuration and is safe for concurrent use.
type Matcher struct {
	config Config
}

// NewMatcher creates a new matcher with the given config
func NewMatcher(config Config) *Matcher {
	return &Matcher{
		config: config,
	}
}

// Config returns the matcher's configuration.
func (m *Matcher) Config() Config {
	return m.config
}

// breakdown accumulates a score together with the fields that contributed.
type breakdown struct {
	score   float64
	fields  []string
	reasons []string
}

func (b *breakdown) add(field string, points float64, reason string, args ...any) {
	b.score += points
	b.fields = append(b.fields, field)
	b.reasons = append(b.reasons, fmt.Sprintf(reason, args...))
}

// Score computes the match score between a manual and an external record.
// Records of different entity types score 0.
func (m *Matcher) Score(manual *records.ManualRecord, external *records.ExternalRecord) (float64, []string, []string) {
	if manual.Type != external.Type {
		return 0, nil, nil
	}

	var b breakdown
	switch manual.Type {
	case records.EntityHolding:
		if manual.Holding != nil && external.Holding != nil {
			m.scoreHolding(&b, manual.Holding, external.Holding)
		}
	case records.EntityIncome:
		if manual.Income != nil && external.Income != nil {
			m.scoreIncome(&b, manual.Income, external)
		}
	case records.EntityExpense:
		if manual.Expense != nil && external.Expense != nil {
			m.scoreExpense(&b, manual.Expense, external)
		}
	}

	return roundScore(math.Min(b.score, 1.0)), b.fields, b.reasons
}

// FindCandidates returns every unconsumed external record scoring at least
// MinCandidateScore, highest first. Ties keep arrival order.
func (m *Matcher) FindCandidates(
	manual *records.ManualRecord,
	externals []records.ExternalRecord,
	consumedIDs map[string]bool,
) []MatchCandidate {
	var candidates []MatchCandidate

	for i := range externals {
		ext := &externals[i]

		// Skip if already consumed in this run
		if consumedIDs[ext.ID] {
			continue
		}
		if ext.Type != manual.Type {
			continue
		}

		score, fields, reasons := m.Score(manual, ext)
		confidence, ok := ConfidenceFor(score)
		if !ok {
			continue
		}

		candidates = append(candidates, MatchCandidate{
			External:      *ext,
			Score:         score,
			Confidence:    confidence,
			MatchedFields: fields,
			Reasons:       reasons,
			Index:         i,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	return candidates
}

// FindBest returns the highest scoring candidate, or nil if none qualifies.
func (m *Matcher) FindBest(
	manual *records.ManualRecord,
	externals []records.ExternalRecord,
	consumedIDs map[string]bool,
) *MatchCandidate {
	candidates := m.FindCandidates(manual, externals, consumedIDs)
	if len(candidates) == 0 {
		return nil
	}
	return &candidates[0]
}

// roundScore trims float noise so tier boundaries are stable.
func roundScore(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
