package mq

// Routing keys published on the events exchange.
const (
	RoutingPatternCreated      = "pattern.created"
	RoutingPatternUpdated      = "pattern.updated"
	RoutingDayLogged           = "day.logged"
	RoutingDayCleared          = "day.cleared"
	RoutingSubscriptionChanged = "subscription.changed"
	RoutingUserSignedUp        = "user.signed_up"

	AggregatePattern      = "pattern"
	AggregateSubscription = "subscription"
	AggregateUser         = "user"
)

type PatternCreatedPayload struct {
	UserID    int    `json:"user_id"`
	PatternID string `json:"pattern_id"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	Seeded    bool   `json:"seeded,omitempty"`
}

type PatternUpdatedPayload struct {
	UserID    int      `json:"user_id"`
	PatternID string   `json:"pattern_id"`
	Fields    []string `json:"fields"` // name / description / color / archived
	Archived  bool     `json:"archived"`
}

type DayLoggedPayload struct {
	UserID    int     `json:"user_id"`
	PatternID string  `json:"pattern_id"`
	Date      string  `json:"date"`
	Reason    *string `json:"reason,omitempty"`
}

type DayClearedPayload struct {
	UserID    int    `json:"user_id"`
	PatternID string `json:"pattern_id"`
	Date      string `json:"date"`
}

type SubscriptionChangedPayload struct {
	UserID      int    `json:"user_id"`
	Plan        string `json:"plan"`   // FREE / PRO
	Status      string `json:"status"` // ACTIVE / TRIALING / PAST_DUE / CANCELED / INCOMPLETE
	StripeEvent string `json:"stripe_event,omitempty"`
}

type UserSignedUpPayload struct {
	UserID int    `json:"user_id"`
	Email  string `json:"email"`
}

// EventUser is the subset every payload carries; consumers decode into it
// before routing on the key.
type EventUser struct {
	UserID    int    `json:"user_id"`
	PatternID string `json:"pattern_id,omitempty"`
}
