package ledger

import (
	"math"
	"sort"
	"time"
)

// NoReasonLabel groups entries logged without a reason.
const NoReasonLabel = "No reason logged"

// WeekdayCounts is indexed by time.Weekday (0=Sunday .. 6=Saturday).
type WeekdayCounts [7]int

// MonthCounts is indexed by month-1 (0=January .. 11=December).
type MonthCounts [12]int

// ReasonCount is one row of the reason breakdown.
type ReasonCount struct {
	Reason     string  `json:"reason"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Trend compares two consecutive 7 day windows.
type Trend struct {
	Current       int     `json:"current"`
	Previous      int     `json:"previous"`
	PercentChange float64 `json:"percentChange"`
}

// Sum returns the total over all weekdays.
func (w WeekdayCounts) Sum() int {
	n := 0
	for _, c := range w {
		n += c
	}
	return n
}

// ByDayOfWeek buckets entries by weekday.
func ByDayOfWeek(entries []DeviationDay) WeekdayCounts {
	var out WeekdayCounts
	for _, e := range entries {
		t, err := ParseDate(e.Date)
		if err != nil {
			continue
		}
		out[t.Weekday()]++
	}
	return out
}

// ByMonth buckets entries by calendar month.
func ByMonth(entries []DeviationDay) MonthCounts {
	var out MonthCounts
	for _, e := range entries {
		t, err := ParseDate(e.Date)
		if err != nil {
			continue
		}
		out[t.Month()-1]++
	}
	return out
}

// ByReason counts entries per reason, most frequent first. Ties keep the
// order in which reasons first appear in entries. topN <= 0 keeps all rows.
func ByReason(entries []DeviationDay, topN int) []ReasonCount {
	counts := make(map[string]int)
	var order []string
	for _, e := range entries {
		key := NoReasonLabel
		if e.Reason != nil && *e.Reason != "" {
			key = *e.Reason
		}
		if _, seen := counts[key]; !seen {
			order = append(order, key)
		}
		counts[key]++
	}

	out := make([]ReasonCount, 0, len(order))
	for _, reason := range order {
		out = append(out, ReasonCount{
			Reason:     reason,
			Count:      counts[reason],
			Percentage: round1(float64(counts[reason]) / float64(len(entries)) * 100),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })

	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}

// WeekOverWeek counts entries in the 7 days ending at reference (inclusive)
// against the 7 days before that. PercentChange is 0 when Previous is 0.
func WeekOverWeek(entries []DeviationDay, reference string) (Trend, error) {
	ref, err := ParseDate(reference)
	if err != nil {
		return Trend{}, err
	}
	curStart := ref.AddDate(0, 0, -6).Format(DateLayout)
	prevStart := ref.AddDate(0, 0, -13).Format(DateLayout)
	prevEnd := ref.AddDate(0, 0, -7).Format(DateLayout)

	var tr Trend
	for _, e := range entries {
		switch {
		case e.Date >= curStart && e.Date <= reference:
			tr.Current++
		case e.Date >= prevStart && e.Date <= prevEnd:
			tr.Previous++
		}
	}
	if tr.Previous > 0 {
		tr.PercentChange = round1(float64(tr.Current-tr.Previous) / float64(tr.Previous) * 100)
	}
	return tr, nil
}

// WeekRange returns the Sunday..Saturday week containing reference,
// shifted weeksAgo weeks into the past.
func WeekRange(reference string, weeksAgo int) (start, end string, err error) {
	ref, err := ParseDate(reference)
	if err != nil {
		return "", "", err
	}
	if weeksAgo < 0 {
		weeksAgo = 0
	}
	sunday := ref.AddDate(0, 0, -int(ref.Weekday())-7*weeksAgo)
	return sunday.Format(DateLayout), sunday.AddDate(0, 0, 6).Format(DateLayout), nil
}

// CountBetween counts entries with start <= date <= end.
func CountBetween(entries []DeviationDay, start, end string) int {
	n := 0
	for _, e := range entries {
		if e.Date >= start && e.Date <= end {
			n++
		}
	}
	return n
}

// WeekdayName is the English name of a weekday index.
func WeekdayName(i int) string { return time.Weekday(i).String() }

// MonthName is the English name of a month index (0=January).
func MonthName(i int) string { return time.Month(i + 1).String() }

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
