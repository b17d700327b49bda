package ledger

import (
	"time"

	"interruptd/internal/apperr"
)

const (
	// DateLayout is the only accepted date format.
	DateLayout = "2006-01-02"
	// DefaultMaxOrdinal caps the ordinal day number.
	DefaultMaxOrdinal = 364
)

// Tense classifies a date relative to today.
type Tense int

const (
	Past Tense = iota
	Today
	Future
)

func (t Tense) String() string {
	switch t {
	case Past:
		return "past"
	case Today:
		return "today"
	default:
		return "future"
	}
}

// Index maps calendar dates onto ordinal days 1..MaxOrdinal of a single
// tracked year and knows what "today" is.
type Index struct {
	year       int
	maxOrdinal int
	loc        *time.Location
	now        func() time.Time
}

// NewIndex builds an Index. year 0 follows the clock's current year,
// maxOrdinal <= 0 uses DefaultMaxOrdinal, nil loc is UTC and nil now is time.Now.
func NewIndex(year, maxOrdinal int, loc *time.Location, now func() time.Time) *Index {
	if maxOrdinal <= 0 {
		maxOrdinal = DefaultMaxOrdinal
	}
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Index{year: year, maxOrdinal: maxOrdinal, loc: loc, now: now}
}

// Year returns the tracked year.
func (x *Index) Year() int {
	if x.year != 0 {
		return x.year
	}
	return x.now().In(x.loc).Year()
}

// MaxOrdinal returns the ordinal cap.
func (x *Index) MaxOrdinal() int { return x.maxOrdinal }

// Today returns today's date in the index location.
func (x *Index) Today() string {
	return x.now().In(x.loc).Format(DateLayout)
}

// DayNumberOf returns the ordinal of date within the tracked year clamped
// to [1, MaxOrdinal]. Dates in earlier years clamp to 1, later years to MaxOrdinal.
func (x *Index) DayNumberOf(date string) (int, error) {
	t, err := ParseDate(date)
	if err != nil {
		return 0, err
	}
	return x.clamp(t), nil
}

// TodayOrdinal is DayNumberOf(Today()).
func (x *Index) TodayOrdinal() int {
	t, _ := ParseDate(x.Today())
	return x.clamp(t)
}

func (x *Index) clamp(t time.Time) int {
	year := x.Year()
	switch {
	case t.Year() < year:
		return 1
	case t.Year() > year:
		return x.maxOrdinal
	}
	n := t.YearDay()
	if n > x.maxOrdinal {
		return x.maxOrdinal
	}
	return n
}

// Classify compares date with today. Zero padded ISO dates order the same
// as strings and chronologically.
func (x *Index) Classify(date string) Tense {
	today := x.Today()
	switch {
	case date < today:
		return Past
	case date > today:
		return Future
	default:
		return Today
	}
}

// DateOf is the inverse of DayNumberOf for ordinals inside the year.
func (x *Index) DateOf(ordinal int) string {
	return DateOf(x.Year(), ordinal)
}

// CheckWritable reports whether date may be mutated. Only today is
// writable, and only while today's ordinal has not run past MaxOrdinal.
func (x *Index) CheckWritable(date string) error {
	t, err := ParseDate(date)
	if err != nil {
		return err
	}
	today := x.Today()
	if date != today {
		return &apperr.ImmutableDateError{Date: date, Today: today}
	}
	if t.Year() != x.Year() || t.YearDay() > x.maxOrdinal {
		return &apperr.ImmutableDateError{Date: date, Today: today}
	}
	return nil
}

// DateOf returns the YYYY-MM-DD date of the ordinal day within year.
func DateOf(year, ordinal int) string {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, ordinal-1).
		Format(DateLayout)
}

// ParseDate accepts strictly YYYY-MM-DD and rejects impossible dates.
func ParseDate(date string) (time.Time, error) {
	if len(date) != len(DateLayout) {
		return time.Time{}, apperr.Invalid("date", "must be YYYY-MM-DD")
	}
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return time.Time{}, apperr.Invalid("date", "must be a real YYYY-MM-DD date")
	}
	return t, nil
}
