package resolver

import (
	"strings"

	"github.com/eshaffer321/reconciler/internal/domain/matcher"
	"github.com/eshaffer321/reconciler/internal/domain/records"
)

// Strategy is the action applied to a matched pair.
type Strategy string

const (
	KeepManual          Strategy = "KEEP_MANUAL"
	ReplaceWithExternal Strategy = "REPLACE_WITH_EXTERNAL"
	MergeQuantities     Strategy = "MERGE_QUANTITIES"
	KeepBoth            Strategy = "KEEP_BOTH"
)

// AllStrategies lists every strategy in display order.
var AllStrategies = []Strategy{KeepManual, ReplaceWithExternal, MergeQuantities, KeepBoth}

// ParseStrategy maps a stored name back onto a Strategy. Unknown names fall
// back to ReplaceWithExternal.
func ParseStrategy(s string) Strategy {
	switch Strategy(strings.ToUpper(strings.TrimSpace(s))) {
	case KeepManual:
		return KeepManual
	case MergeQuantities:
		return MergeQuantities
	case KeepBoth:
		return KeepBoth
	default:
		return ReplaceWithExternal
	}
}

// Severity classifies a field-level disagreement.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

func (s Severity) rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// AtLeast reports whether s is as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.rank() >= other.rank()
}

// Conflict is one field whose manual and external values disagree.
type Conflict struct {
	Field    string   `json:"field"`
	Severity Severity `json:"severity"`
	Manual   string   `json:"manual"`
	External string   `json:"external"`
}

// DecisionSnapshot captures both sides as they were before the decision was
// applied.
type DecisionSnapshot struct {
	Manual   records.Snapshot       `json:"manual"`
	External records.ExternalRecord `json:"external"`
}

// Decision is the resolver's verdict for one matched pair.
type Decision struct {
	Strategy   Strategy           `json:"strategy"`
	Confidence matcher.Confidence `json:"confidence"`
	Score      float64            `json:"score"`
	Reason     string             `json:"reason"`
	Conflicts  []Conflict         `json:"conflicts,omitempty"`
	Metadata   DecisionSnapshot   `json:"metadata"`
}

// HasConflicts reports whether any field disagreed.
func (d Decision) HasConflicts() bool {
	return len(d.Conflicts) > 0
}
