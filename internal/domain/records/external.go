package records

import (
	"fmt"
	"time"
)

// ExternalHolding is an aggregator-reported position.
type ExternalHolding struct {
	Symbol       string    `json:"symbol"`
	Name         string    `json:"name,omitempty"`
	CUSIP        string    `json:"cusip,omitempty"`
	ISIN         string    `json:"isin,omitempty"`
	SecurityType string    `json:"security_type,omitempty"`
	Quantity     float64   `json:"quantity"`
	CostBasis    float64   `json:"cost_basis,omitempty"`
	Price        float64   `json:"price,omitempty"`
	AsOf         time.Time `json:"as_of,omitempty"`
}

// ExternalIncome is an aggregator-reported inflow.
type ExternalIncome struct {
	Description     string    `json:"description"`
	Amount          float64   `json:"amount"`
	TransactionDate time.Time `json:"transaction_date,omitempty"`
	SettleDate      time.Time `json:"settle_date,omitempty"`
	Category        string    `json:"category,omitempty"`
}

// ExternalExpense is an aggregator-reported outflow.
type ExternalExpense struct {
	Merchant        string    `json:"merchant,omitempty"`
	Description     string    `json:"description"`
	Amount          float64   `json:"amount"`
	TransactionDate time.Time `json:"transaction_date,omitempty"`
	SettleDate      time.Time `json:"settle_date,omitempty"`
	Category        string    `json:"category,omitempty"`
}

// ExternalRecord is read-only input from the bank or brokerage aggregator.
// ID is the aggregator-assigned identifier.
type ExternalRecord struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Type      EntityType       `json:"type"`
	AccountID string           `json:"account_id,omitempty"`
	Holding   *ExternalHolding `json:"holding,omitempty"`
	Income    *ExternalIncome  `json:"income,omitempty"`
	Expense   *ExternalExpense `json:"expense,omitempty"`
}

// Validate checks the tag and the aggregator id.
func (r *ExternalRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("external record: aggregator id is required")
	}
	if !r.Type.Valid() {
		return fmt.Errorf("external record %s: unknown entity type %q", r.ID, r.Type)
	}
	if r.UserID == "" {
		return fmt.Errorf("external record %s: user id is required", r.ID)
	}
	if !exactlyOne(r.Type, r.Holding != nil, r.Income != nil, r.Expense != nil) {
		return fmt.Errorf("external record %s (%s): %w", r.ID, r.Type, ErrVariantMismatch)
	}
	return nil
}

// EffectiveDate is the transaction date, falling back to the settlement date.
// Holdings report their as-of date.
func (r *ExternalRecord) EffectiveDate() time.Time {
	switch {
	case r.Income != nil:
		return firstNonZero(r.Income.TransactionDate, r.Income.SettleDate)
	case r.Expense != nil:
		return firstNonZero(r.Expense.TransactionDate, r.Expense.SettleDate)
	case r.Holding != nil:
		return r.Holding.AsOf
	}
	return time.Time{}
}

// Label is a short human-readable identifier used in logs and reasons.
func (r *ExternalRecord) Label() string {
	switch {
	case r.Holding != nil:
		return r.Holding.Symbol
	case r.Income != nil:
		return r.Income.Description
	case r.Expense != nil:
		if r.Expense.Merchant != "" {
			return r.Expense.Merchant
		}
		return r.Expense.Description
	}
	return r.ID
}

// ToManual builds the manual-shaped entry created for an external record that
// no manual record claimed. The caller assigns ID and timestamps.
func (r *ExternalRecord) ToManual() ManualRecord {
	rec := ManualRecord{
		UserID:     r.UserID,
		Type:       r.Type,
		DataSource: SourceExternal,
		ExternalID: r.ID,
		Reconciled: true,
	}
	snap := r.Values()
	rec.Holding = snap.Holding
	rec.Income = snap.Income
	rec.Expense = snap.Expense
	if rec.Holding != nil && rec.Holding.AccountID == "" {
		rec.Holding.AccountID = r.AccountID
	}
	if rec.Income != nil && rec.Income.AccountID == "" {
		rec.Income.AccountID = r.AccountID
	}
	if rec.Expense != nil && rec.Expense.AccountID == "" {
		rec.Expense.AccountID = r.AccountID
	}
	return rec
}

// Values converts the external variant into manual-shaped values.
func (r *ExternalRecord) Values() Snapshot {
	s := Snapshot{Type: r.Type}
	switch {
	case r.Holding != nil:
		s.Holding = &Holding{
			Ticker:       r.Holding.Symbol,
			Name:         r.Holding.Name,
			CUSIP:        r.Holding.CUSIP,
			ISIN:         r.Holding.ISIN,
			SecurityType: r.Holding.SecurityType,
			Shares:       r.Holding.Quantity,
			CostBasis:    r.Holding.CostBasis,
			CurrentPrice: r.Holding.Price,
			AccountID:    r.AccountID,
		}
	case r.Income != nil:
		s.Income = &Income{
			Source:    r.Income.Description,
			Amount:    r.Income.Amount,
			Date:      r.EffectiveDate(),
			Category:  r.Income.Category,
			AccountID: r.AccountID,
		}
	case r.Expense != nil:
		s.Expense = &Expense{
			Merchant:    r.Expense.Merchant,
			Description: r.Expense.Description,
			Amount:      r.Expense.Amount,
			Date:        r.EffectiveDate(),
			Category:    r.Expense.Category,
			AccountID:   r.AccountID,
		}
	}
	return s
}

func firstNonZero(times ...time.Time) time.Time {
	for _, t := range times {
		if !t.IsZero() {
			return t
		}
	}
	return time.Time{}
}
