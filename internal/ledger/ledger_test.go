package ledger

import (
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interruptd/internal/apperr"
)

func strptr(s string) *string { return &s }

func fixedIndex(now time.Time) *Index {
	return NewIndex(2025, 0, time.UTC, func() time.Time { return now })
}

func ledgerOf(t *testing.T, year int, ordinals ...int) *Ledger {
	t.Helper()
	l, err := New()
	require.NoError(t, err)
	for _, o := range ordinals {
		require.NoError(t, l.Upsert(DateOf(year, o), nil))
	}
	return l
}

func TestIndex_DayNumberOf(t *testing.T) {
	x := fixedIndex(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	tests := []struct {
		date string
		want int
	}{
		{"2025-01-01", 1},
		{"2025-02-01", 32},
		{"2025-12-30", 364},
		{"2025-12-31", 364},
		{"2024-07-01", 1},
		{"2026-01-01", 364},
	}
	for _, tt := range tests {
		got, err := x.DayNumberOf(tt.date)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.date)
	}

	_, err := x.DayNumberOf("2025-1-1")
	var verr *apperr.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestIndex_TodayOrdinalClamped(t *testing.T) {
	assert.Equal(t, 152, fixedIndex(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)).TodayOrdinal())
	assert.Equal(t, 364, fixedIndex(time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)).TodayOrdinal())
	assert.Equal(t, 364, fixedIndex(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)).TodayOrdinal())
}

func TestIndex_TodayUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC-8", -8*3600)
	now := time.Date(2025, 3, 10, 3, 0, 0, 0, time.UTC)
	x := NewIndex(2025, 0, loc, func() time.Time { return now })
	assert.Equal(t, "2025-03-09", x.Today())
}

func TestIndex_ZeroYearFollowsClock(t *testing.T) {
	x := NewIndex(0, 0, nil, func() time.Time { return time.Date(2027, 2, 3, 0, 0, 0, 0, time.UTC) })
	assert.Equal(t, 2027, x.Year())
	assert.Equal(t, 34, x.TodayOrdinal())
}

func TestIndex_Classify(t *testing.T) {
	x := fixedIndex(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, Past, x.Classify("2025-05-31"))
	assert.Equal(t, Today, x.Classify("2025-06-01"))
	assert.Equal(t, Future, x.Classify("2025-06-02"))
	assert.Equal(t, "today", Today.String())
}

func TestIndex_DateOfRoundTrip(t *testing.T) {
	x := fixedIndex(time.Now())
	for o := 1; o <= 364; o++ {
		n, err := x.DayNumberOf(x.DateOf(o))
		require.NoError(t, err)
		require.Equal(t, o, n)
	}
}

func TestIndex_CheckWritable(t *testing.T) {
	x := fixedIndex(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))

	assert.NoError(t, x.CheckWritable("2025-06-01"))

	for _, d := range []string{"2025-05-31", "2025-06-02"} {
		var immut *apperr.ImmutableDateError
		assert.True(t, errors.As(x.CheckWritable(d), &immut), d)
	}

	var verr *apperr.ValidationError
	assert.True(t, errors.As(x.CheckWritable("June 1"), &verr))

	// the last day of the year is past the ordinal cap
	end := fixedIndex(time.Date(2025, 12, 31, 9, 0, 0, 0, time.UTC))
	var immut *apperr.ImmutableDateError
	assert.True(t, errors.As(end.CheckWritable("2025-12-31"), &immut))
	assert.NoError(t, fixedIndex(time.Date(2025, 12, 30, 9, 0, 0, 0, time.UTC)).CheckWritable("2025-12-30"))

	// a different year than the tracked one
	other := fixedIndex(time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC))
	assert.True(t, errors.As(other.CheckWritable("2026-01-05"), &immut))
}

func TestLedger_UpsertValidation(t *testing.T) {
	l, _ := New()

	var verr *apperr.ValidationError
	assert.True(t, errors.As(l.Upsert("2025-02-30", nil), &verr))
	assert.True(t, errors.As(l.Upsert("2025/02/01", nil), &verr))
	assert.True(t, errors.As(l.Upsert("2025-02-01", strptr(strings.Repeat("x", 281))), &verr))
	assert.Zero(t, l.Len())

	require.NoError(t, l.Upsert("2025-02-01", strptr(strings.Repeat("é", 280))))
	require.NoError(t, l.Upsert("2025-02-02", strptr("   ")))
	r, ok := l.Get("2025-02-02")
	assert.True(t, ok)
	assert.Nil(t, r)
}

func TestLedger_UpsertIdempotent(t *testing.T) {
	once, _ := New()
	twice, _ := New()

	require.NoError(t, once.Upsert("2025-03-01", strptr("stress")))
	require.NoError(t, twice.Upsert("2025-03-01", strptr("stress")))
	require.NoError(t, twice.Upsert("2025-03-01", strptr("stress")))

	assert.Empty(t, cmp.Diff(once.Entries(), twice.Entries()))
}

func TestLedger_UpsertOverwritesReason(t *testing.T) {
	l, _ := New()
	require.NoError(t, l.Upsert("2025-03-01", strptr("tired")))
	require.NoError(t, l.Upsert("2025-03-01", strptr(" bored ")))

	r, ok := l.Get("2025-03-01")
	require.True(t, ok)
	assert.Equal(t, "bored", *r)
	assert.Equal(t, 1, l.Len())
}

func TestLedger_RemoveRoundTrip(t *testing.T) {
	l, _ := New(DeviationDay{Date: "2025-03-02"})
	before := l.Entries()

	require.NoError(t, l.Upsert("2025-03-01", strptr("x")))
	l.Remove("2025-03-01")
	assert.Empty(t, cmp.Diff(before, l.Entries()))

	l.Remove("2025-04-01")
	assert.Equal(t, 1, l.Len())
}

func TestLedger_EntriesSortedAndClone(t *testing.T) {
	l, err := New(DeviationDay{Date: "2025-03-05"}, DeviationDay{Date: "2025-01-01", Reason: strptr("a")})
	require.NoError(t, err)

	entries := l.Entries()
	assert.Equal(t, "2025-01-01", entries[0].Date)
	assert.Equal(t, "2025-03-05", entries[1].Date)

	c := l.Clone()
	c.Remove("2025-01-01")
	assert.True(t, l.Has("2025-01-01"))
	assert.False(t, c.Has("2025-01-01"))
}

func TestLedger_UpsertYesterdayIsImmutable(t *testing.T) {
	x := fixedIndex(time.Date(2025, 4, 10, 8, 0, 0, 0, time.UTC))
	l, _ := New()

	err := l.UpsertToday(x, "2025-04-09", nil)
	var immut *apperr.ImmutableDateError
	require.True(t, errors.As(err, &immut))
	assert.Equal(t, "2025-04-10", immut.Today)
	assert.Zero(t, l.Len())

	require.NoError(t, l.UpsertToday(x, "2025-04-10", strptr("late meeting")))
	assert.True(t, errors.As(l.RemoveToday(x, "2025-04-09"), &immut))
	require.NoError(t, l.RemoveToday(x, "2025-04-10"))
	assert.Zero(t, l.Len())
}

func TestCycle_Scenario(t *testing.T) {
	l := ledgerOf(t, 2025, 5, 6, 7, 10)

	assert.Equal(t, 1, CurrentCycle(l, 2025, 10))
	assert.Equal(t, 3, LongestCycle(l, 2025, 10))
	assert.Equal(t, 4, DeviationCount(l, 2025, 10))
}

func TestCycle_EmptyLedger(t *testing.T) {
	l := ledgerOf(t, 2025)
	for _, today := range []int{0, 1, 100, 364} {
		assert.Equal(t, Stats{NormCount: today, Total: today}, Compute(l, 2025, today), today)
		assert.Zero(t, CurrentCycle(l, 2025, today))
		assert.Zero(t, LongestCycle(l, 2025, today))
		assert.Zero(t, DeviationCount(l, 2025, today))
	}
}

func TestCycle_FutureAndOtherYearIgnored(t *testing.T) {
	l := ledgerOf(t, 2025, 3, 4, 20)
	require.NoError(t, l.Upsert("2024-12-31", nil))

	assert.Equal(t, 2, DeviationCount(l, 2025, 10))
	assert.Equal(t, 0, CurrentCycle(l, 2025, 10))
	assert.Equal(t, 2, CurrentCycle(l, 2025, 4))
}

func TestCompute(t *testing.T) {
	l := ledgerOf(t, 2025, 1, 2, 3, 8)
	got := Compute(l, 2025, 8)

	assert.Equal(t, Stats{
		DeviationCount: 4,
		NormCount:      4,
		CurrentCycle:   1,
		LongestCycle:   3,
		Total:          8,
		Percentage:     50,
	}, got)
	assert.Equal(t, got, Compute(l, 2025, 8))
	assert.Equal(t, Stats{}, Compute(l, 2025, -3))
}

func TestCycle_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		var ordinals []int
		for o := 1; o <= 364; o++ {
			if rng.Intn(3) == 0 {
				ordinals = append(ordinals, o)
			}
		}
		l := ledgerOf(t, 2025, ordinals...)
		today := 1 + rng.Intn(364)

		cur := CurrentCycle(l, 2025, today)
		count := DeviationCount(l, 2025, today)
		longest := LongestCycle(l, 2025, today)

		require.LessOrEqual(t, cur, count)
		require.LessOrEqual(t, count, today)
		require.GreaterOrEqual(t, longest, cur)
		require.Equal(t, Compute(l, 2025, today), Compute(l, 2025, today))

		week := ByDayOfWeek(UpTo(l, 2025, today))
		require.Equal(t, count, week.Sum())
	}
}
