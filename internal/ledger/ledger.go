package ledger

import (
	"sort"
	"strings"
	"unicode/utf8"

	"interruptd/internal/apperr"
)

// MaxReasonLength is measured in characters after trimming.
const MaxReasonLength = 280

// DeviationDay is one ledger entry.
type DeviationDay struct {
	Date   string  `json:"date"`
	Reason *string `json:"reason,omitempty"`
}

// Ledger is the sparse set of deviation days of one pattern, keyed by date.
// It is not safe for concurrent mutation; callers work on snapshots.
type Ledger struct {
	days map[string]*string
}

// New returns a ledger holding entries. Invalid entries are rejected.
func New(entries ...DeviationDay) (*Ledger, error) {
	l := &Ledger{days: make(map[string]*string, len(entries))}
	for _, e := range entries {
		if err := l.Upsert(e.Date, e.Reason); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// NormalizeReason trims reason and validates its length. Blank reasons become nil.
func NormalizeReason(reason *string) (*string, error) {
	if reason == nil {
		return nil, nil
	}
	r := strings.TrimSpace(*reason)
	if r == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(r) > MaxReasonLength {
		return nil, apperr.Invalid("reason", "must be at most %d characters", MaxReasonLength)
	}
	return &r, nil
}

// Upsert records date as a deviation day, replacing any previous reason.
func (l *Ledger) Upsert(date string, reason *string) error {
	if _, err := ParseDate(date); err != nil {
		return err
	}
	r, err := NormalizeReason(reason)
	if err != nil {
		return err
	}
	if l.days == nil {
		l.days = make(map[string]*string)
	}
	l.days[date] = r
	return nil
}

// Remove deletes date. Absent dates are ignored.
func (l *Ledger) Remove(date string) {
	delete(l.days, date)
}

// Get returns the reason recorded for date.
func (l *Ledger) Get(date string) (reason *string, ok bool) {
	reason, ok = l.days[date]
	return reason, ok
}

// Has reports whether date is a deviation day.
func (l *Ledger) Has(date string) bool {
	_, ok := l.days[date]
	return ok
}

// Len returns the number of entries.
func (l *Ledger) Len() int { return len(l.days) }

// Entries returns all entries sorted by date.
func (l *Ledger) Entries() []DeviationDay {
	out := make([]DeviationDay, 0, len(l.days))
	for d, r := range l.days {
		out = append(out, DeviationDay{Date: d, Reason: r})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// Clone returns an independent copy.
func (l *Ledger) Clone() *Ledger {
	c := &Ledger{days: make(map[string]*string, len(l.days))}
	for d, r := range l.days {
		if r != nil {
			v := *r
			c.days[d] = &v
		} else {
			c.days[d] = nil
		}
	}
	return c
}

// UpsertToday is Upsert guarded by idx: only today's date is accepted.
func (l *Ledger) UpsertToday(idx *Index, date string, reason *string) error {
	if err := idx.CheckWritable(date); err != nil {
		return err
	}
	return l.Upsert(date, reason)
}

// RemoveToday is Remove guarded by idx.
func (l *Ledger) RemoveToday(idx *Index, date string) error {
	if err := idx.CheckWritable(date); err != nil {
		return err
	}
	l.Remove(date)
	return nil
}
