// Package records defines the manual and external record shapes that the
// reconciliation engine reads and writes.
//
// Both sides are tagged unions: a record carries an EntityType and exactly one
// populated variant (Holding, Income or Expense). Validate enforces the tag so
// that the rest of the engine can rely on the variant being present.
package records

import (
	"errors"
	"fmt"
	"time"
)

// EntityType identifies which kind of financial entry a record describes.
type EntityType string

const (
	EntityHolding EntityType = "holding"
	EntityIncome  EntityType = "income"
	EntityExpense EntityType = "expense"
)

// AllEntityTypes is the fixed processing order for a reconciliation run.
var AllEntityTypes = []EntityType{EntityHolding, EntityIncome, EntityExpense}

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	switch t {
	case EntityHolding, EntityIncome, EntityExpense:
		return true
	}
	return false
}

// ParseEntityType parses a user-supplied entity type name.
func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown entity type %q", s)
	}
	return t, nil
}

// DataSource tags where a manual-shaped record's values came from.
type DataSource string

const (
	SourceManual   DataSource = "manual"
	SourceExternal DataSource = "external"
	SourceMerged   DataSource = "merged"
)

// ErrVariantMismatch is returned by Validate when the populated variant does
// not match the record's EntityType.
var ErrVariantMismatch = errors.New("record variant does not match entity type")

// Holding is a user-entered investment position.
type Holding struct {
	Ticker       string  `json:"ticker"`
	Name         string  `json:"name,omitempty"`
	CUSIP        string  `json:"cusip,omitempty"`
	ISIN         string  `json:"isin,omitempty"`
	SecurityType string  `json:"security_type,omitempty"`
	Shares       float64 `json:"shares"`
	CostBasis    float64 `json:"cost_basis,omitempty"` // per share
	CurrentPrice float64 `json:"current_price,omitempty"`
	AccountID    string  `json:"account_id,omitempty"`
}

// Income is a user-entered income transaction.
type Income struct {
	Source    string    `json:"source"`
	Amount    float64   `json:"amount"`
	Date      time.Time `json:"date"`
	Category  string    `json:"category,omitempty"`
	AccountID string    `json:"account_id,omitempty"`
}

// Expense is a user-entered expense transaction.
type Expense struct {
	Merchant    string    `json:"merchant"`
	Description string    `json:"description,omitempty"`
	Amount      float64   `json:"amount"`
	Date        time.Time `json:"date"`
	Category    string    `json:"category,omitempty"`
	AccountID   string    `json:"account_id,omitempty"`
}

// Metadata is the structured blob kept on a manual record. It holds the
// pre-reconciliation snapshot used to reverse REPLACE and MERGE decisions.
type Metadata struct {
	OriginalManualData     *Snapshot `json:"originalManualData,omitempty"`
	HasExternalCounterpart bool      `json:"hasExternalCounterpart,omitempty"`
	CounterpartExternalID  string    `json:"counterpartExternalId,omitempty"`
	CounterpartRecordID    string    `json:"counterpartRecordId,omitempty"`
	LastStrategy           string    `json:"lastStrategy,omitempty"`
	LastRunID              string    `json:"lastRunId,omitempty"`
}

// ManualRecord is a user-owned row. The engine mutates it during
// reconciliation but never deletes it.
type ManualRecord struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Type         EntityType `json:"type"`
	Holding      *Holding   `json:"holding,omitempty"`
	Income       *Income    `json:"income,omitempty"`
	Expense      *Expense   `json:"expense,omitempty"`
	DataSource   DataSource `json:"data_source"`
	ExternalID   string     `json:"external_id,omitempty"`
	Reconciled   bool       `json:"reconciled"`
	ReconciledAt *time.Time `json:"reconciled_at,omitempty"`
	Metadata     Metadata   `json:"metadata"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Validate checks that exactly the variant named by Type is populated.
func (r *ManualRecord) Validate() error {
	if !r.Type.Valid() {
		return fmt.Errorf("manual record %s: unknown entity type %q", r.ID, r.Type)
	}
	if r.UserID == "" {
		return fmt.Errorf("manual record %s: user id is required", r.ID)
	}
	if !exactlyOne(r.Type, r.Holding != nil, r.Income != nil, r.Expense != nil) {
		return fmt.Errorf("manual record %s (%s): %w", r.ID, r.Type, ErrVariantMismatch)
	}
	return nil
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (r ManualRecord) Clone() ManualRecord {
	out := r
	if r.Holding != nil {
		h := *r.Holding
		out.Holding = &h
	}
	if r.Income != nil {
		i := *r.Income
		out.Income = &i
	}
	if r.Expense != nil {
		e := *r.Expense
		out.Expense = &e
	}
	if r.ReconciledAt != nil {
		t := *r.ReconciledAt
		out.ReconciledAt = &t
	}
	if r.Metadata.OriginalManualData != nil {
		s := r.Metadata.OriginalManualData.Clone()
		out.Metadata.OriginalManualData = &s
	}
	return out
}

// ResetReconciliation clears the state only reconciliation may set, so a
// newly entered record starts pending with no snapshot to restore.
func (r *ManualRecord) ResetReconciliation() {
	r.DataSource = SourceManual
	r.ExternalID = ""
	r.Reconciled = false
	r.ReconciledAt = nil
	r.Metadata = Metadata{}
}

// Label is a short human-readable identifier used in logs and reasons.
func (r *ManualRecord) Label() string {
	switch {
	case r.Holding != nil:
		return r.Holding.Ticker
	case r.Income != nil:
		return r.Income.Source
	case r.Expense != nil:
		return r.Expense.Merchant
	}
	return r.ID
}

func exactlyOne(t EntityType, holding, income, expense bool) bool {
	n := 0
	for _, b := range []bool{holding, income, expense} {
		if b {
			n++
		}
	}
	if n != 1 {
		return false
	}
	switch t {
	case EntityHolding:
		return holding
	case EntityIncome:
		return income
	case EntityExpense:
		return expense
	}
	return false
}
