package domain

import "strings"

// Quartile is a journal quality tier assigned by a bibliometric ranking.
type Quartile string

// Accepted quartile values. Q1 is the highest tier.
const (
	Q1 Quartile = "Q1"
	Q2 Quartile = "Q2"
	Q3 Quartile = "Q3"
	Q4 Quartile = "Q4"
)

// QuartileMapping maps a normalized journal title to its quartile.
type QuartileMapping map[string]Quartile

// ParseQuartile trims and uppercases s and reports whether it is one of Q1..Q4.
func ParseQuartile(s string) (Quartile, bool) {
	q := Quartile(strings.ToUpper(strings.TrimSpace(s)))
	switch q {
	case Q1, Q2, Q3, Q4:
		return q, true
	default:
		return "", false
	}
}

// NormalizeTitle lowercases s, trims it and collapses every run of Unicode
// whitespace (NBSP included) into a single space.
func NormalizeTitle(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
