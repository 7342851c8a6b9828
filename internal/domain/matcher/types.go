package matcher

import (
	"github.com/eshaffer321/reconciler/internal/domain/records"
	"github.com/eshaffer321/reconciler/internal/domain/similarity"
)

// Confidence is the tier derived from a match score.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// Tier thresholds. Scores below MinCandidateScore are not candidates.
const (
	HighThreshold     = 0.90
	MediumThreshold   = 0.70
	MinCandidateScore = 0.50
)

// ConfidenceFor buckets a score. The boolean is false when the score is too
// low to be a candidate at all.
func ConfidenceFor(score float64) (Confidence, bool) {
	switch {
	case score >= HighThreshold:
		return ConfidenceHigh, true
	case score >= MediumThreshold:
		return ConfidenceMedium, true
	case score >= MinCandidateScore:
		return ConfidenceLow, true
	}
	return "", false
}

// MatchCandidate ties one manual record to one external record.
type MatchCandidate struct {
	External      records.ExternalRecord
	Score         float64    // 0-1, capped
	Confidence    Confidence // HIGH, MEDIUM or LOW
	MatchedFields []string
	Reasons       []string
	Index         int // arrival order of External in the candidate set
}

// HoldingWeights are the per-criterion weights for holdings.
type HoldingWeights struct {
	Ticker       float64
	CUSIP        float64
	ISIN         float64
	Name         float64
	SecurityType float64
	Quantity     float64
	Price        float64

	NameGate     float64 // name similarity must exceed this
	QuantityGate float64 // quantity tier score must exceed this
	PriceGate    float64 // price tier score must exceed this
}

// TransactionWeights are the per-criterion weights for income and expenses.
// Income uses Source; expenses split text between Merchant and Description.
type TransactionWeights struct {
	Amount      float64
	Date        float64
	Source      float64
	Merchant    float64
	Description float64
	Category    float64

	AmountGate float64
	DateGate   float64
	TextGate   float64
}

// Config holds matcher configuration
type Config struct {
	Holding HoldingWeights
	Income  TransactionWeights
	Expense TransactionWeights

	AmountTolerance float64 // relative, default 0.05
	DateTolerance   int     // days, default 7

	QuantityTiers []similarity.Tier
	QuantityFloor float64
	PriceTiers    []similarity.Tier
	PriceFloor    float64

	Categories map[records.EntityType]similarity.CategoryTable
}

// DefaultConfig returns the production weights and breakpoints.
func DefaultConfig() Config {
	return Config{
		Holding: HoldingWeights{
			Ticker:       0.40,
			CUSIP:        0.35,
			ISIN:         0.35,
			Name:         0.25,
			SecurityType: 0.10,
			Quantity:     0.10,
			Price:        0.05,
			NameGate:     0.7,
			QuantityGate: 0.5,
			PriceGate:    0.8,
		},
		Income: TransactionWeights{
			Amount:     0.50,
			Date:       0.30,
			Source:     0.20,
			Category:   0.10,
			AmountGate: 0.9,
			DateGate:   0.7,
			TextGate:   0.6,
		},
		Expense: TransactionWeights{
			Amount:      0.50,
			Date:        0.30,
			Merchant:    0.15,
			Description: 0.15,
			Category:    0.10,
			AmountGate:  0.9,
			DateGate:    0.7,
			TextGate:    0.6,
		},
		AmountTolerance: 0.05,
		DateTolerance:   7,
		QuantityTiers: []similarity.Tier{
			{MaxDiff: 0.05, Score: 0.95},
			{MaxDiff: 0.10, Score: 0.85},
			{MaxDiff: 0.25, Score: 0.70},
			{MaxDiff: 0.50, Score: 0.50},
		},
		QuantityFloor: 0.20,
		PriceTiers: []similarity.Tier{
			{MaxDiff: 0.02, Score: 1.0},
			{MaxDiff: 0.05, Score: 0.9},
			{MaxDiff: 0.10, Score: 0.8},
			{MaxDiff: 0.20, Score: 0.6},
		},
		PriceFloor: 0.3,
		Categories: DefaultCategoryTables(),
	}
}
