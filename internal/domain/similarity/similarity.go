// Package similarity provides the field-level scoring primitives used by the
// duplicate detector and the conflict resolver.
//
// Every function here is pure and deterministic: missing or empty inputs score
// 0 instead of returning an error.
package similarity

import (
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// containmentScore is awarded when one normalized string contains the other.
// It stays below 1.0 so containment is never confused with identity.
const containmentScore = 0.9

// Normalize lowercases s, strips punctuation and collapses whitespace.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// String returns a normalized edit-distance similarity in [0,1].
//
// Equal normalized strings score 1.0, containment scores 0.9, anything else
// scores 1 - distance/maxLen. The result is symmetric in a and b.
func String(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == nb {
		return 1.0
	}
	if na == "" || nb == "" {
		return 0
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return containmentScore
	}

	maxLen := max(len([]rune(na)), len([]rune(nb)))
	dist := levenshtein.ComputeDistance(na, nb)
	return clamp01(1 - float64(dist)/float64(maxLen))
}

// RelativeDiff returns |a-b| / avg(|a|,|b|). Equal values return 0.
func RelativeDiff(a, b float64) float64 {
	if a == b {
		return 0
	}
	avg := (math.Abs(a) + math.Abs(b)) / 2
	if avg == 0 {
		return 0
	}
	return math.Abs(a-b) / avg
}

// Numeric scores how close a and b are relative to tolerance.
//
// Inside the tolerance the score falls linearly from 1.0 to 0.9; past it the
// score keeps falling linearly and reaches 0 at ten times the tolerance.
func Numeric(a, b, tolerance float64) float64 {
	if a == b {
		return 1.0
	}
	if tolerance <= 0 {
		return 0
	}

	rel := RelativeDiff(a, b)
	switch {
	case rel <= tolerance:
		return 1 - 0.1*(rel/tolerance)
	case rel >= 10*tolerance:
		return 0
	default:
		return clamp01(0.9 * (1 - (rel-tolerance)/(9*tolerance)))
	}
}

// Tier is one breakpoint of a step function: relative differences up to
// MaxDiff score Score.
type Tier struct {
	MaxDiff float64
	Score   float64
}

// Tiered maps the relative difference between a and b onto tiers, checked in
// order. Equal values score 1.0; differences past the last tier score floor.
func Tiered(a, b float64, tiers []Tier, floor float64) float64 {
	if a == b {
		return 1.0
	}
	rel := RelativeDiff(a, b)
	for _, t := range tiers {
		if rel <= t.MaxDiff {
			return t.Score
		}
	}
	return floor
}

// DaysBetween returns the absolute number of calendar days between d1 and d2.
func DaysBetween(d1, d2 time.Time) int {
	a := truncateDay(d1)
	b := truncateDay(d2)
	days := int(math.Round(a.Sub(b).Hours() / 24))
	if days < 0 {
		return -days
	}
	return days
}

// Date scores calendar-day proximity: 1.0 on the same day, decaying linearly
// to 0.7 at toleranceDays and 0 beyond. Zero dates score 0.
func Date(d1, d2 time.Time, toleranceDays int) float64 {
	if d1.IsZero() || d2.IsZero() {
		return 0
	}
	days := DaysBetween(d1, d2)
	if days == 0 {
		return 1.0
	}
	if toleranceDays <= 0 || days > toleranceDays {
		return 0
	}
	return 1 - 0.3*float64(days)/float64(toleranceDays)
}

// CategoryTable maps a manual category onto the external categories it is
// equivalent to.
type CategoryTable map[string][]string

// Categorical reports whether external is listed under manual in table.
// Unknown or empty categories never match.
func Categorical(manual, external string, table CategoryTable) bool {
	m := normalizeCategory(manual)
	e := normalizeCategory(external)
	if m == "" || e == "" {
		return false
	}
	for key, allowed := range table {
		if normalizeCategory(key) != m {
			continue
		}
		for _, candidate := range allowed {
			if normalizeCategory(candidate) == e {
				return true
			}
		}
	}
	return false
}

func normalizeCategory(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
