package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"interruptd/internal/ledger"
	"interruptd/internal/model"
)

const patternSelect = `
        SELECT id::text, user_id, name, description, color, archived, created_at
        FROM patterns
`

const subscriptionSelect = `
        SELECT user_id, plan, status, stripe_customer_id, stripe_subscription_id, current_period_end, updated_at
        FROM subscriptions
`

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type dayRow struct {
	Date   string
	Reason *string
}

func (d dayRow) toDay() ledger.DeviationDay {
	return ledger.DeviationDay{Date: d.Date, Reason: d.Reason}
}

func scanPattern(row pgx.Row) (model.Pattern, error) {
	var p model.Pattern
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.Description, &p.Color, &p.Archived, &p.CreatedAt)
	return p, err
}

func scanSubscription(row pgx.Row) (*model.Subscription, error) {
	var s model.Subscription
	err := row.Scan(
		&s.UserID,
		&s.Plan,
		&s.Status,
		&s.StripeCustomerID,
		&s.StripeSubscriptionID,
		&s.CurrentPeriodEnd,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func loadDays(ctx context.Context, q querier, patternID string) ([]ledger.DeviationDay, error) {
	rows, err := q.Query(ctx, `
        SELECT to_char(date, 'YYYY-MM-DD'), reason
        FROM deviation_days
        WHERE pattern_id = $1
        ORDER BY date ASC
    `, patternID)
	if err != nil {
		return nil, fmt.Errorf("load days: %w", err)
	}
	days, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ledger.DeviationDay, error) {
		var d dayRow
		err := row.Scan(&d.Date, &d.Reason)
		return d.toDay(), err
	})
	if err != nil {
		return nil, fmt.Errorf("scan days: %w", err)
	}
	return days, nil
}
