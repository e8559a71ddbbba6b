// Package queryanalyzer extracts temporal constraints from natural
// language recall queries, grounded on the original
// TransformerQueryAnalyzer's contract (query + reference time → optional
// [start, end] date range, both ends inclusive) but implemented with pattern matching instead
// of a transformer model: the ambient stack already carries one embedding
// model (fastembed) and one LLM (Anthropic) for the concerns that need
// them, and a second ML model dedicated solely to calendar-phrase spotting
// isn't justified by anything else in SPEC_FULL.md.
package queryanalyzer

import (
	"regexp"
	"strings"
	"time"
)

// Constraint is an inclusive-start, inclusive-end date range a query
// restricts results to.
type Constraint struct {
	Start time.Time
	End   time.Time
}

// Analyzer extracts a Constraint from a query, if one is present.
type Analyzer interface {
	Analyze(query string, referenceTime time.Time) (*Constraint, bool)
}

// Pattern is a regex + relative-phrase based Analyzer.
type Pattern struct{}

// New returns a Pattern analyzer.
func New() *Pattern {
	return &Pattern{}
}

var months = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

var monthYearRe = regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{4})\b`)
var bareYearRe = regexp.MustCompile(`\b(19|20)\d{2}\b`)

func monthRange(year int, month time.Month) Constraint {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return Constraint{Start: start, End: end}
}

func yearRange(year int) Constraint {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, 0).Add(-time.Nanosecond)
	return Constraint{Start: start, End: end}
}

func dayRange(t time.Time) Constraint {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return Constraint{Start: start, End: end}
}

// Analyze looks for, in priority order: an explicit "<month> <year>"
// phrase, a relative phrase ("yesterday", "last month", "last year"), then
// a bare four-digit year. Returns false if none match.
func (p *Pattern) Analyze(query string, referenceTime time.Time) (*Constraint, bool) {
	if m := monthYearRe.FindStringSubmatch(query); m != nil {
		month := months[strings.ToLower(m[1])]
		year := atoi(m[2])
		c := monthRange(year, month)
		return &c, true
	}

	lower := strings.ToLower(query)
	switch {
	case strings.Contains(lower, "yesterday"):
		c := dayRange(referenceTime.AddDate(0, 0, -1))
		return &c, true
	case strings.Contains(lower, "last month"):
		prev := time.Date(referenceTime.Year(), referenceTime.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
		c := monthRange(prev.Year(), prev.Month())
		return &c, true
	case strings.Contains(lower, "last year"):
		c := yearRange(referenceTime.Year() - 1)
		return &c, true
	}

	if m := bareYearRe.FindString(query); m != "" {
		c := yearRange(atoi(m))
		return &c, true
	}

	return nil, false
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}

var _ Analyzer = (*Pattern)(nil)
