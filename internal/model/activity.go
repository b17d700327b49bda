package model

import (
	"encoding/json"
	"time"
)

// Activity is one consumed domain event, kept for the audit trail.
type Activity struct {
	ID         int64           `json:"id"`
	EventID    string          `json:"eventId"`
	UserID     int             `json:"userId"`
	PatternID  *string         `json:"patternId,omitempty"`
	RoutingKey string          `json:"routingKey"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurredAt"`
}
