package queryanalyzer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func refDate() time.Time {
	return time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
}

func TestAnalyze_MonthYear(t *testing.T) {
	cases := []struct {
		query string
		year  int
		month time.Month
	}{
		{"june 2024", 2024, time.June},
		{"dogs in June 2023", 2023, time.June},
		{"March 2023", 2023, time.March},
		{"melanie activities in june 2024", 2024, time.June},
	}

	p := New()
	for _, c := range cases {
		constraint, ok := p.Analyze(c.query, refDate())
		require.True(t, ok, c.query)
		assert.Equal(t, c.year, constraint.Start.Year(), c.query)
		assert.Equal(t, c.month, constraint.Start.Month(), c.query)
		assert.Equal(t, 1, constraint.Start.Day(), c.query)
		assert.Equal(t, c.year, constraint.End.Year(), c.query)
		assert.Equal(t, c.month, constraint.End.Month(), c.query)
	}
}

func TestAnalyze_LastYear(t *testing.T) {
	p := New()
	constraint, ok := p.Analyze("last year", refDate())
	require.True(t, ok)
	assert.Equal(t, 2024, constraint.Start.Year())
	assert.Equal(t, time.January, constraint.Start.Month())
	assert.Equal(t, 1, constraint.Start.Day())
	assert.Equal(t, 2024, constraint.End.Year())
	assert.Equal(t, time.December, constraint.End.Month())
	assert.Equal(t, 31, constraint.End.Day())
}

func TestAnalyze_NoTemporalConstraint(t *testing.T) {
	p := New()
	_, ok := p.Analyze("what is the weather", refDate())
	assert.False(t, ok)
}

func TestAnalyze_Yesterday(t *testing.T) {
	p := New()
	constraint, ok := p.Analyze("what did I do yesterday", refDate())
	require.True(t, ok)
	assert.Equal(t, 14, constraint.Start.Day())
	assert.Equal(t, time.January, constraint.Start.Month())
}

func TestAnalyze_LastMonth(t *testing.T) {
	p := New()
	constraint, ok := p.Analyze("summary from last month", refDate())
	require.True(t, ok)
	assert.Equal(t, time.December, constraint.Start.Month())
	assert.Equal(t, 2024, constraint.Start.Year())
}
