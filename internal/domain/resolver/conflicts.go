package resolver

import (
	"math"
	"strconv"
	"time"

	"github.com/eshaffer321/reconciler/internal/domain/records"
	"github.com/eshaffer321/reconciler/internal/domain/similarity"
)

// Conflict field names.
const (
	FieldShares    = "shares"
	FieldCostBasis = "cost_basis"
	FieldPrice     = "price"
	FieldName      = "name"
	FieldAmount    = "amount"
	FieldDate      = "date"
	FieldSource    = "source"
	FieldMerchant  = "merchant"
)

const (
	quantityEpsilon = 0.01
	priceEpsilon    = 0.005
	amountEpsilon   = 0.01
	textThreshold   = 0.7
)

func holdingConflicts(h *records.Holding, e *records.ExternalHolding) []Conflict {
	if h == nil || e == nil {
		return nil
	}
	var out []Conflict

	if math.Abs(h.Shares-e.Quantity) > quantityEpsilon {
		out = append(out, Conflict{
			Field:    FieldShares,
			Severity: bySeverity(relToManual(h.Shares, e.Quantity), 0.50, 0.10),
			Manual:   formatNumber(h.Shares),
			External: formatNumber(e.Quantity),
		})
	}

	if h.CostBasis > 0 && e.CostBasis > 0 && math.Abs(h.CostBasis-e.CostBasis) > priceEpsilon {
		out = append(out, Conflict{
			Field:    FieldCostBasis,
			Severity: bySeverity(relToManual(h.CostBasis, e.CostBasis), 0.30, 0.10),
			Manual:   formatMoney(h.CostBasis),
			External: formatMoney(e.CostBasis),
		})
	}

	// Aggregator prices are fresher, so price never escalates past MEDIUM.
	if h.CurrentPrice > 0 && e.Price > 0 && math.Abs(h.CurrentPrice-e.Price) > priceEpsilon {
		sev := SeverityLow
		if relToManual(h.CurrentPrice, e.Price) > 0.20 {
			sev = SeverityMedium
		}
		out = append(out, Conflict{
			Field:    FieldPrice,
			Severity: sev,
			Manual:   formatMoney(h.CurrentPrice),
			External: formatMoney(e.Price),
		})
	}

	if c, ok := textConflict(FieldName, h.Name, e.Name); ok {
		out = append(out, c)
	}
	return out
}

func incomeConflicts(in *records.Income, ext *records.ExternalRecord) []Conflict {
	if in == nil || ext.Income == nil {
		return nil
	}
	out := transactionConflicts(in.Amount, ext.Income.Amount, in.Date, ext.EffectiveDate())
	if c, ok := textConflict(FieldSource, in.Source, ext.Income.Description); ok {
		out = append(out, c)
	}
	return out
}

func expenseConflicts(ex *records.Expense, ext *records.ExternalRecord) []Conflict {
	if ex == nil || ext.Expense == nil {
		return nil
	}
	out := transactionConflicts(ex.Amount, ext.Expense.Amount, ex.Date, ext.EffectiveDate())
	merchant := ext.Expense.Merchant
	if merchant == "" {
		merchant = ext.Expense.Description
	}
	if c, ok := textConflict(FieldMerchant, ex.Merchant, merchant); ok {
		out = append(out, c)
	}
	return out
}

func transactionConflicts(manualAmount, externalAmount float64, manualDate, externalDate time.Time) []Conflict {
	var out []Conflict

	ma, ea := math.Abs(manualAmount), math.Abs(externalAmount)
	if math.Abs(ma-ea) > amountEpsilon {
		out = append(out, Conflict{
			Field:    FieldAmount,
			Severity: bySeverity(relToManual(ma, ea), 0.25, 0.05),
			Manual:   formatMoney(ma),
			External: formatMoney(ea),
		})
	}

	if !manualDate.IsZero() && !externalDate.IsZero() {
		days := similarity.DaysBetween(manualDate, externalDate)
		if days > 1 {
			sev := SeverityLow
			switch {
			case days > 7:
				sev = SeverityHigh
			case days > 3:
				sev = SeverityMedium
			}
			out = append(out, Conflict{
				Field:    FieldDate,
				Severity: sev,
				Manual:   manualDate.Format(time.DateOnly),
				External: externalDate.Format(time.DateOnly),
			})
		}
	}
	return out
}

func textConflict(field, manual, external string) (Conflict, bool) {
	if manual == "" || external == "" {
		return Conflict{}, false
	}
	if similarity.String(manual, external) >= textThreshold {
		return Conflict{}, false
	}
	return Conflict{Field: field, Severity: SeverityLow, Manual: manual, External: external}, true
}

// relToManual is the difference relative to the manual value. A zero manual
// value against a non-zero external one counts as a 100% difference.
func relToManual(manual, external float64) float64 {
	if manual == 0 {
		if external == 0 {
			return 0
		}
		return 1
	}
	return math.Abs(manual-external) / math.Abs(manual)
}

func bySeverity(rel, high, medium float64) Severity {
	switch {
	case rel > high:
		return SeverityHigh
	case rel > medium:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatMoney(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
