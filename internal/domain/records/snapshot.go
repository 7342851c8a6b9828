package records

// Snapshot is a typed copy of one record's value fields. Exactly the variant
// named by Type is populated.
type Snapshot struct {
	Type    EntityType `json:"type"`
	Holding *Holding   `json:"holding,omitempty"`
	Income  *Income    `json:"income,omitempty"`
	Expense *Expense   `json:"expense,omitempty"`
}

// SnapshotOf captures the current value fields of a manual record.
func SnapshotOf(r *ManualRecord) Snapshot {
	s := Snapshot{Type: r.Type}
	if r.Holding != nil {
		h := *r.Holding
		s.Holding = &h
	}
	if r.Income != nil {
		i := *r.Income
		s.Income = &i
	}
	if r.Expense != nil {
		e := *r.Expense
		s.Expense = &e
	}
	return s
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{Type: s.Type}
	if s.Holding != nil {
		h := *s.Holding
		out.Holding = &h
	}
	if s.Income != nil {
		i := *s.Income
		out.Income = &i
	}
	if s.Expense != nil {
		e := *s.Expense
		out.Expense = &e
	}
	return out
}

// Restore writes the snapshot values back onto r. Bookkeeping fields
// (reconciled flag, links, metadata) are left to the caller.
func (s Snapshot) Restore(r *ManualRecord) {
	c := s.Clone()
	r.Type = c.Type
	r.Holding = c.Holding
	r.Income = c.Income
	r.Expense = c.Expense
}

// Apply overwrites only the value variant of r with the snapshot's values,
// keeping r's own Type.
func (s Snapshot) Apply(r *ManualRecord) {
	c := s.Clone()
	switch r.Type {
	case EntityHolding:
		if c.Holding != nil {
			r.Holding = c.Holding
		}
	case EntityIncome:
		if c.Income != nil {
			r.Income = c.Income
		}
	case EntityExpense:
		if c.Expense != nil {
			r.Expense = c.Expense
		}
	}
}
