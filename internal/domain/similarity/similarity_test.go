package similarity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "trader joes 123", Normalize("  TRADER Joe's   #123 "))
	assert.Equal(t, "", Normalize("!!!"))
}

func TestString(t *testing.T) {
	t.Run("identical after normalization", func(t *testing.T) {
		assert.Equal(t, 1.0, String("Apple Inc.", "apple   inc"))
	})

	t.Run("containment scores 0.9", func(t *testing.T) {
		assert.Equal(t, 0.9, String("Netflix", "NETFLIX.COM SUBSCRIPTION"))
	})

	t.Run("edit distance ratio", func(t *testing.T) {
		// kitten -> sitting is 3 edits over 7 runes
		assert.InDelta(t, 1-3.0/7.0, String("kitten", "sitting"), 1e-9)
	})

	t.Run("one side empty", func(t *testing.T) {
		assert.Equal(t, 0.0, String("", "payroll"))
		assert.Equal(t, 0.0, String("payroll", "---"))
	})

	t.Run("unrelated descriptions score low", func(t *testing.T) {
		assert.Less(t, String("Dividend Payment", "DIV AAPL"), 0.6)
	})
}

func TestString_Symmetry(t *testing.T) {
	pairs := [][2]string{
		{"Dividend Payment", "DIV AAPL"},
		{"Whole Foods", "WHOLEFDS MKT 10234"},
		{"", "x"},
		{"Netflix", "netflix.com"},
		{"Vanguard Total Stock", "VANGUARD TOTAL STK MKT ETF"},
	}
	for _, p := range pairs {
		assert.Equal(t, String(p[0], p[1]), String(p[1], p[0]), "pair %q/%q", p[0], p[1])
	}
}

func TestString_Identity(t *testing.T) {
	for _, s := range []string{"", "a", "Salary ACME Corp", "ÜBER Café"} {
		assert.Equal(t, 1.0, String(s, s))
	}
}

func TestRelativeDiff(t *testing.T) {
	assert.Equal(t, 0.0, RelativeDiff(5, 5))
	assert.InDelta(t, 0.4, RelativeDiff(50, 75), 1e-9)
	assert.InDelta(t, 2.0, RelativeDiff(0, 10), 1e-9)
}

func TestNumeric(t *testing.T) {
	assert.Equal(t, 1.0, Numeric(100, 100, 0.05))
	assert.Equal(t, 1.0, Numeric(0, 0, 0.05))

	// Inside tolerance stays in (0.9, 1.0]
	v := Numeric(100, 102, 0.05)
	assert.Greater(t, v, 0.9)
	assert.Less(t, v, 1.0)

	// Exactly at the boundary
	assert.InDelta(t, 0.9, Numeric(100, 105.1282051, 0.05), 1e-4)

	// Past tolerance decays, hitting 0 at 10x
	assert.Less(t, Numeric(100, 120, 0.05), 0.9)
	assert.Equal(t, 0.0, Numeric(100, 300, 0.05))

	// Non-positive tolerance never matches unequal values
	assert.Equal(t, 0.0, Numeric(1, 2, 0))
}

func TestNumeric_Identity(t *testing.T) {
	for _, x := range []float64{0, -3.5, 1e9, 0.0001} {
		assert.Equal(t, 1.0, Numeric(x, x, 0.05))
	}
}

func TestTiered(t *testing.T) {
	tiers := []Tier{
		{MaxDiff: 0.05, Score: 0.95},
		{MaxDiff: 0.10, Score: 0.85},
		{MaxDiff: 0.25, Score: 0.70},
		{MaxDiff: 0.50, Score: 0.50},
	}

	assert.Equal(t, 1.0, Tiered(100, 100, tiers, 0.2))
	assert.Equal(t, 0.95, Tiered(100, 103, tiers, 0.2))
	assert.Equal(t, 0.85, Tiered(100, 108, tiers, 0.2))
	assert.Equal(t, 0.50, Tiered(50, 75, tiers, 0.2))
	assert.Equal(t, 0.2, Tiered(10, 100, tiers, 0.2))
}

func TestDate(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 1.0, Date(base, base.Add(5*time.Hour), 7))
	assert.InDelta(t, 1-0.3/7, Date(base, base.AddDate(0, 0, 1), 7), 1e-9)
	assert.InDelta(t, 0.7, Date(base, base.AddDate(0, 0, -7), 7), 1e-9)
	assert.Equal(t, 0.0, Date(base, base.AddDate(0, 0, 8), 7))
	assert.Equal(t, 0.0, Date(time.Time{}, base, 7))
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2024, 3, 1, 23, 0, 0, 0, time.UTC)
	b := time.Date(2024, 3, 2, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, 1, DaysBetween(a, b))
	assert.Equal(t, 1, DaysBetween(b, a))
}

func TestCategorical(t *testing.T) {
	table := CategoryTable{
		"dividend": {"Dividends", "investment income"},
		"salary":   {"paychecks"},
	}

	assert.True(t, Categorical("Dividend", "dividends", table))
	assert.True(t, Categorical("dividend", "Investment  Income", table))
	assert.False(t, Categorical("salary", "dividends", table))
	assert.False(t, Categorical("gift", "gifts", table))
	assert.False(t, Categorical("", "dividends", table))
}
