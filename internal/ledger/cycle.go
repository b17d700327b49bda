package ledger

import "math"

// Stats is the summary shown on a pattern's stat cards.
type Stats struct {
	DeviationCount int `json:"deviationCount"`
	NormCount      int `json:"normCount"`
	CurrentCycle   int `json:"currentCycle"`
	LongestCycle   int `json:"longestCycle"`
	Total          int `json:"total"`
	Percentage     int `json:"percentage"`
}

// CurrentCycle counts consecutive deviation days walking back from today
// (inclusive). It is 0 when today is not a deviation day.
func CurrentCycle(l *Ledger, year, today int) int {
	n := 0
	for d := today; d >= 1; d-- {
		if !l.Has(DateOf(year, d)) {
			break
		}
		n++
	}
	return n
}

// LongestCycle is the longest run of consecutive deviation days in 1..today.
func LongestCycle(l *Ledger, year, today int) int {
	longest, run := 0, 0
	for d := 1; d <= today; d++ {
		if l.Has(DateOf(year, d)) {
			run++
			if run > longest {
				longest = run
			}
			continue
		}
		run = 0
	}
	return longest
}

// DeviationCount counts deviation days of year whose ordinal is <= today.
// Future entries are ignored.
func DeviationCount(l *Ledger, year, today int) int {
	return len(UpTo(l, year, today))
}

// UpTo returns the entries of year with ordinal in 1..today, sorted by date.
func UpTo(l *Ledger, year, today int) []DeviationDay {
	if today <= 0 {
		return nil
	}
	var out []DeviationDay
	for _, e := range l.Entries() {
		t, err := ParseDate(e.Date)
		if err != nil {
			continue
		}
		if t.Year() == year && t.YearDay() <= today {
			out = append(out, e)
		}
	}
	return out
}

// Compute derives all statistics for the ledger as of the today ordinal.
func Compute(l *Ledger, year, today int) Stats {
	if today <= 0 {
		return Stats{}
	}
	count := DeviationCount(l, year, today)
	s := Stats{
		DeviationCount: count,
		NormCount:      today - count,
		CurrentCycle:   CurrentCycle(l, year, today),
		LongestCycle:   LongestCycle(l, year, today),
		Total:          today,
	}
	s.Percentage = int(math.Round(float64(count) / float64(today) * 100))
	return s
}
