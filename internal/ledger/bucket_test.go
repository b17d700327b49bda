package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entries(dates ...string) []DeviationDay {
	out := make([]DeviationDay, 0, len(dates))
	for _, d := range dates {
		out = append(out, DeviationDay{Date: d})
	}
	return out
}

func TestByDayOfWeek(t *testing.T) {
	// 2025-01-05 is a Sunday
	got := ByDayOfWeek(entries("2025-01-05", "2025-01-06", "2025-01-12", "2025-01-11"))

	assert.Equal(t, WeekdayCounts{2, 1, 0, 0, 0, 0, 1}, got)
	assert.Equal(t, 4, got.Sum())
	assert.Equal(t, "Sunday", WeekdayName(0))
}

func TestByMonth(t *testing.T) {
	got := ByMonth(entries("2025-01-05", "2025-01-06", "2025-12-01"))

	assert.Equal(t, 2, got[0])
	assert.Equal(t, 1, got[11])
	assert.Equal(t, "December", MonthName(11))
}

func TestByReason(t *testing.T) {
	in := []DeviationDay{
		{Date: "2025-01-01", Reason: strptr("bored")},
		{Date: "2025-01-02"},
		{Date: "2025-01-03", Reason: strptr("stress")},
		{Date: "2025-01-04", Reason: strptr("stress")},
		{Date: "2025-01-05", Reason: strptr("bored")},
		{Date: "2025-01-06", Reason: strptr("")},
		{Date: "2025-01-07", Reason: strptr("party")},
		{Date: "2025-01-08", Reason: strptr("stress")},
	}

	got := ByReason(in, 0)
	require.Len(t, got, 4)
	assert.Equal(t, ReasonCount{Reason: "stress", Count: 3, Percentage: 37.5}, got[0])
	// bored and the no-reason group tie at 2; bored appeared first
	assert.Equal(t, "bored", got[1].Reason)
	assert.Equal(t, NoReasonLabel, got[2].Reason)
	assert.Equal(t, "party", got[3].Reason)

	top := ByReason(in, 2)
	assert.Len(t, top, 2)
	assert.Empty(t, ByReason(nil, 5))
}

func TestWeekOverWeek(t *testing.T) {
	in := entries(
		"2025-03-01",               // outside both windows
		"2025-03-03", "2025-03-05", // previous window 03-02..03-08
		"2025-03-09", "2025-03-12", "2025-03-15", // current window 03-09..03-15
		"2025-03-16", // after reference
	)

	tr, err := WeekOverWeek(in, "2025-03-15")
	require.NoError(t, err)
	assert.Equal(t, Trend{Current: 3, Previous: 2, PercentChange: 50}, tr)

	_, err = WeekOverWeek(in, "bad")
	assert.Error(t, err)
}

func TestWeekOverWeek_ZeroPrevious(t *testing.T) {
	for _, current := range [][]DeviationDay{nil, entries("2025-03-15"), entries("2025-03-10", "2025-03-11")} {
		tr, err := WeekOverWeek(current, "2025-03-15")
		require.NoError(t, err)
		assert.Zero(t, tr.Previous)
		assert.Zero(t, tr.PercentChange)
	}
}

func TestWeekRange(t *testing.T) {
	// 2025-03-12 is a Wednesday
	start, end, err := WeekRange("2025-03-12", 0)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-09", start)
	assert.Equal(t, "2025-03-15", end)

	start, end, err = WeekRange("2025-03-12", 2)
	require.NoError(t, err)
	assert.Equal(t, "2025-02-23", start)
	assert.Equal(t, "2025-03-01", end)

	assert.Equal(t, 2, CountBetween(entries("2025-03-09", "2025-03-15", "2025-03-16"), "2025-03-09", "2025-03-15"))
}
