package matcher

import (
	"math"
	"time"

	"github.com/eshaffer321/reconciler/internal/domain/records"
	"github.com/eshaffer321/reconciler/internal/domain/similarity"
)

// Aggregators sign outflows negatively while users type positive amounts,
// so transaction amounts are compared by magnitude.

func (m *Matcher) scoreIncome(b *breakdown, in *records.Income, ext *records.ExternalRecord) {
	w := m.config.Income
	e := ext.Income

	m.scoreAmountAndDate(b, w, in.Amount, e.Amount, in.Date, ext)

	if in.Source != "" && e.Description != "" {
		if s := similarity.String(in.Source, e.Description); s > w.TextGate {
			b.add("source", s*w.Source, "source similarity %.2f", s)
		}
	}

	if similarity.Categorical(in.Category, e.Category, m.config.Categories[records.EntityIncome]) {
		b.add("category", w.Category, "category %s ~ %s", in.Category, e.Category)
	}
}

func (m *Matcher) scoreExpense(b *breakdown, ex *records.Expense, ext *records.ExternalRecord) {
	w := m.config.Expense
	e := ext.Expense

	m.scoreAmountAndDate(b, w, ex.Amount, e.Amount, ex.Date, ext)

	externalMerchant := e.Merchant
	if externalMerchant == "" {
		externalMerchant = e.Description
	}
	if ex.Merchant != "" && externalMerchant != "" {
		if s := similarity.String(ex.Merchant, externalMerchant); s > w.TextGate {
			b.add("merchant", s*w.Merchant, "merchant similarity %.2f", s)
		}
	}

	manualDescription := ex.Description
	if manualDescription == "" {
		manualDescription = ex.Merchant
	}
	// A merchant-only manual record against a description-only external one
	// already scored this pair as merchant.
	samePair := manualDescription == ex.Merchant && e.Description == externalMerchant
	if !samePair && manualDescription != "" && e.Description != "" {
		if s := similarity.String(manualDescription, e.Description); s > w.TextGate {
			b.add("description", s*w.Description, "description similarity %.2f", s)
		}
	}

	if similarity.Categorical(ex.Category, e.Category, m.config.Categories[records.EntityExpense]) {
		b.add("category", w.Category, "category %s ~ %s", ex.Category, e.Category)
	}
}

func (m *Matcher) scoreAmountAndDate(
	b *breakdown,
	w TransactionWeights,
	manualAmount, externalAmount float64,
	manualDate time.Time,
	ext *records.ExternalRecord,
) {
	ma, ea := math.Abs(manualAmount), math.Abs(externalAmount)
	if ma > 0 && ea > 0 {
		if a := similarity.Numeric(ma, ea, m.config.AmountTolerance); a > w.AmountGate {
			b.add("amount", a*w.Amount, "amount %.2f vs %.2f (proximity %.2f)", ma, ea, a)
		}
	}

	externalDate := ext.EffectiveDate()
	if manualDate.IsZero() || externalDate.IsZero() {
		return
	}
	if d := similarity.Date(manualDate, externalDate, m.config.DateTolerance); d > w.DateGate {
		b.add("date", d*w.Date, "%d day(s) apart (proximity %.2f)",
			similarity.DaysBetween(manualDate, externalDate), d)
	}
}
