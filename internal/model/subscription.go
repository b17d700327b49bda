package model

import "time"

const (
	PlanFree = "FREE"
	PlanPro  = "PRO"

	StatusActive     = "ACTIVE"
	StatusTrialing   = "TRIALING"
	StatusPastDue    = "PAST_DUE"
	StatusCanceled   = "CANCELED"
	StatusIncomplete = "INCOMPLETE"

	// FreeActivePatternLimit is the active pattern quota of the free plan.
	FreeActivePatternLimit = 3
)

type Subscription struct {
	UserID               int        `json:"userId"`
	Plan                 string     `json:"plan"`
	Status               string     `json:"status"`
	StripeCustomerID     *string    `json:"-"`
	StripeSubscriptionID *string    `json:"-"`
	CurrentPeriodEnd     *time.Time `json:"currentPeriodEnd,omitempty"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// ActivePatternLimit returns the quota for plan; ok is false for unlimited plans.
func ActivePatternLimit(plan string) (limit int, ok bool) {
	if plan == PlanPro {
		return 0, false
	}
	return FreeActivePatternLimit, true
}
