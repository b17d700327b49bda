package pattern

import (
	"context"

	"interruptd/internal/ledger"
	"interruptd/internal/model"
)

// Summary is everything the stats page shows for one pattern.
type Summary struct {
	Today        string               `json:"today"`
	Stats        ledger.Stats         `json:"stats"`
	ByDayOfWeek  ledger.WeekdayCounts `json:"byDayOfWeek"`
	ByMonth      ledger.MonthCounts   `json:"byMonth"`
	TopReasons   []ledger.ReasonCount `json:"topReasons"`
	WeekOverWeek ledger.Trend         `json:"weekOverWeek"`
}

// TopReasonCount is how many reasons the summary lists.
const TopReasonCount = 5

// Stats computes the summary of a pattern as of today.
func (r *Registry) Stats(ctx context.Context, userID int, id string) (*Summary, error) {
	p, err := r.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	s := Summarize(p, r.index)
	return &s, nil
}

// Summarize is the pure part of Stats.
func Summarize(p *model.Pattern, idx *ledger.Index) Summary {
	l := p.Ledger()
	year := idx.Year()
	today := idx.TodayOrdinal()
	elapsed := ledger.UpTo(l, year, today)
	reference := idx.DateOf(today)

	trend, _ := ledger.WeekOverWeek(elapsed, reference)
	reasons := ledger.ByReason(elapsed, TopReasonCount)
	if reasons == nil {
		reasons = []ledger.ReasonCount{}
	}

	return Summary{
		Today:        reference,
		Stats:        ledger.Compute(l, year, today),
		ByDayOfWeek:  ledger.ByDayOfWeek(elapsed),
		ByMonth:      ledger.ByMonth(elapsed),
		TopReasons:   reasons,
		WeekOverWeek: trend,
	}
}
