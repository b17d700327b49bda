package model

import (
	"time"

	"interruptd/internal/ledger"
)

// Palette is the fixed set of color tokens a pattern may use.
var Palette = []string{"violet", "emerald", "amber", "rose", "sky", "orange"}

// ValidColor reports whether c is in Palette.
func ValidColor(c string) bool {
	for _, p := range Palette {
		if p == c {
			return true
		}
	}
	return false
}

// Pattern is a tracked behaviour and its deviation days.
type Pattern struct {
	ID            string
	UserID        int
	Name          string
	Description   string
	Color         string
	CreatedAt     time.Time
	Archived      bool
	DefaultedDays []ledger.DeviationDay
}

// Ledger builds the day ledger of the pattern.
func (p *Pattern) Ledger() *ledger.Ledger {
	l, err := ledger.New(p.DefaultedDays...)
	if err != nil {
		// stored rows are validated on write; skip anything unparsable
		l, _ = ledger.New()
		for _, d := range p.DefaultedDays {
			_ = l.Upsert(d.Date, d.Reason)
		}
	}
	return l
}
