package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"interruptd/internal/model"
	"interruptd/pkg/outbox"
)

type pgTx struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t *pgTx) CreateUser(ctx context.Context, u *model.User) error {
	query := `
        INSERT INTO users (email, name, password_hash, role)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at
    `
	if err := t.tx.QueryRow(ctx, query, u.Email, u.Name, u.PasswordHash, u.Role).Scan(&u.ID, &u.CreatedAt); err != nil {
		return duplicate(err)
	}
	return nil
}

func (t *pgTx) CreateSubscription(ctx context.Context, s *model.Subscription) error {
	query := `
        INSERT INTO subscriptions (user_id, plan, status)
        VALUES ($1, $2, $3)
        RETURNING updated_at
    `
	return t.tx.QueryRow(ctx, query, s.UserID, s.Plan, s.Status).Scan(&s.UpdatedAt)
}

func (t *pgTx) LockSubscription(ctx context.Context, userID int) (*model.Subscription, error) {
	return scanSubscription(t.tx.QueryRow(ctx, subscriptionSelect+` WHERE user_id = $1 FOR UPDATE`, userID))
}

func (t *pgTx) LockSubscriptionByCustomer(ctx context.Context, customerID string) (*model.Subscription, error) {
	return scanSubscription(t.tx.QueryRow(ctx, subscriptionSelect+` WHERE stripe_customer_id = $1 FOR UPDATE`, customerID))
}

func (t *pgTx) UpdateSubscription(ctx context.Context, s *model.Subscription) error {
	query := `
        UPDATE subscriptions
        SET plan = $2, status = $3, stripe_customer_id = $4, stripe_subscription_id = $5,
            current_period_end = $6, updated_at = NOW()
        WHERE user_id = $1
        RETURNING updated_at
    `
	err := t.tx.QueryRow(ctx, query,
		s.UserID,
		s.Plan,
		s.Status,
		s.StripeCustomerID,
		s.StripeSubscriptionID,
		s.CurrentPeriodEnd,
	).Scan(&s.UpdatedAt)
	if err != nil {
		return duplicate(notFound(err))
	}
	return nil
}

func (t *pgTx) CountActivePatterns(ctx context.Context, userID int) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `
        SELECT COUNT(*) FROM patterns WHERE user_id = $1 AND archived = FALSE
    `, userID).Scan(&n)
	return n, err
}

func (t *pgTx) InsertPattern(ctx context.Context, p *model.Pattern) error {
	query := `
        INSERT INTO patterns (id, user_id, name, description, color, archived)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING created_at
    `
	err := t.tx.QueryRow(ctx, query, p.ID, p.UserID, p.Name, p.Description, p.Color, p.Archived).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert pattern: %w", err)
	}
	return nil
}

func (t *pgTx) LockPattern(ctx context.Context, userID int, id string) (*model.Pattern, error) {
	p, err := scanPattern(t.tx.QueryRow(ctx, patternSelect+` WHERE id = $1 AND user_id = $2 FOR UPDATE`, id, userID))
	if err != nil {
		return nil, notFound(err)
	}
	days, err := loadDays(ctx, t.tx, id)
	if err != nil {
		return nil, err
	}
	p.DefaultedDays = days
	return &p, nil
}

func (t *pgTx) UpdatePattern(ctx context.Context, p *model.Pattern) error {
	tag, err := t.tx.Exec(ctx, `
        UPDATE patterns
        SET name = $3, description = $4, color = $5, archived = $6, updated_at = NOW()
        WHERE id = $1 AND user_id = $2
    `, p.ID, p.UserID, p.Name, p.Description, p.Color, p.Archived)
	if err != nil {
		return fmt.Errorf("update pattern: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) UpsertDay(ctx context.Context, patternID, date string, reason *string) error {
	_, err := t.tx.Exec(ctx, `
        INSERT INTO deviation_days (pattern_id, date, reason)
        VALUES ($1, $2::date, $3)
        ON CONFLICT (pattern_id, date) DO UPDATE SET reason = EXCLUDED.reason
    `, patternID, date, reason)
	if err != nil {
		return fmt.Errorf("upsert day: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteDay(ctx context.Context, patternID, date string) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
        DELETE FROM deviation_days WHERE pattern_id = $1 AND date = $2::date
    `, patternID, date)
	if err != nil {
		return false, fmt.Errorf("delete day: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (t *pgTx) Emit(ctx context.Context, aggregateType, aggregateID, routingKey string, payload any) error {
	return outbox.InsertEventInTx(ctx, t.tx, t.outbox, aggregateType, aggregateID, routingKey, payload)
}
