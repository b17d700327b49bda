package model

import (
	"encoding/json"

	"interruptd/internal/ledger"
)

type patternJSON struct {
	ID            string                `json:"id"`
	Name          string                `json:"name"`
	Description   string                `json:"description"`
	Color         string                `json:"color"`
	CreatedAt     string                `json:"createdAt"`
	Archived      bool                  `json:"archived"`
	DefaultedDays []ledger.DeviationDay `json:"defaultedDays"`
}

// MarshalJSON renders createdAt as YYYY-MM-DD and never emits a null day list.
func (p Pattern) MarshalJSON() ([]byte, error) {
	days := p.DefaultedDays
	if days == nil {
		days = []ledger.DeviationDay{}
	}
	return json.Marshal(patternJSON{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		Color:         p.Color,
		CreatedAt:     p.CreatedAt.UTC().Format(ledger.DateLayout),
		Archived:      p.Archived,
		DefaultedDays: days,
	})
}
