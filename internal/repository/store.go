package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"interruptd/internal/model"
	"interruptd/pkg/otel"
	"interruptd/pkg/outbox"
)

// ErrNotFound is returned when a row does not exist or is not owned by the caller.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique constraint rejects a write.
var ErrDuplicate = errors.New("duplicate")

// Tx is the set of writes that run inside one database transaction.
// Every write of a request goes through a single Tx so it commits or rolls
// back as a whole, together with its outbox events.
type Tx interface {
	CreateUser(ctx context.Context, u *model.User) error
	CreateSubscription(ctx context.Context, s *model.Subscription) error
	// LockSubscription reads the subscription row with FOR UPDATE.
	LockSubscription(ctx context.Context, userID int) (*model.Subscription, error)
	LockSubscriptionByCustomer(ctx context.Context, customerID string) (*model.Subscription, error)
	UpdateSubscription(ctx context.Context, s *model.Subscription) error

	CountActivePatterns(ctx context.Context, userID int) (int, error)
	InsertPattern(ctx context.Context, p *model.Pattern) error
	LockPattern(ctx context.Context, userID int, id string) (*model.Pattern, error)
	UpdatePattern(ctx context.Context, p *model.Pattern) error
	UpsertDay(ctx context.Context, patternID, date string, reason *string) error
	DeleteDay(ctx context.Context, patternID, date string) (bool, error)

	Emit(ctx context.Context, aggregateType, aggregateID, routingKey string, payload any) error
}

// Store is the PostgreSQL implementation of the read paths and of Tx.
type Store struct {
	db     *pgxpool.Pool
	outbox *outbox.Repository
	logger *zap.Logger
}

func NewStore(db *pgxpool.Pool, outboxRepo *outbox.Repository, logger *zap.Logger) *Store {
	return &Store{db: db, outbox: outboxRepo, logger: logger}
}

// InTx runs fn in a transaction; any error rolls everything back.
func (s *Store) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return otel.InSpan(ctx, "db.tx", func(ctx context.Context) error {
		return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
			return fn(&pgTx{tx: tx, outbox: s.outbox})
		})
	})
}

// FindUserByEmail returns ErrNotFound for unknown emails.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `
        SELECT id, email, name, password_hash, role, created_at
        FROM users
        WHERE email = $1
    `
	var u model.User
	err := s.db.QueryRow(ctx, query, email).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// GetSubscription returns the user's subscription without locking it.
func (s *Store) GetSubscription(ctx context.Context, userID int) (*model.Subscription, error) {
	return scanSubscription(s.db.QueryRow(ctx, subscriptionSelect+` WHERE user_id = $1`, userID))
}

// ListPatterns returns every pattern of the user with its days, oldest first.
func (s *Store) ListPatterns(ctx context.Context, userID int) ([]model.Pattern, error) {
	rows, err := s.db.Query(ctx, patternSelect+`
        WHERE user_id = $1
        ORDER BY created_at ASC, id ASC
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("list patterns: %w", err)
	}
	patterns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Pattern, error) {
		return scanPattern(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan patterns: %w", err)
	}

	dayRows, err := s.db.Query(ctx, `
        SELECT d.pattern_id::text, to_char(d.date, 'YYYY-MM-DD'), d.reason
        FROM deviation_days d
        JOIN patterns p ON p.id = d.pattern_id
        WHERE p.user_id = $1
        ORDER BY d.date ASC
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("list days: %w", err)
	}
	defer dayRows.Close()

	index := make(map[string]int, len(patterns))
	for i := range patterns {
		index[patterns[i].ID] = i
	}
	for dayRows.Next() {
		var patternID string
		var d dayRow
		if err := dayRows.Scan(&patternID, &d.Date, &d.Reason); err != nil {
			return nil, fmt.Errorf("scan day: %w", err)
		}
		if i, ok := index[patternID]; ok {
			patterns[i].DefaultedDays = append(patterns[i].DefaultedDays, d.toDay())
		}
	}
	if err := dayRows.Err(); err != nil {
		return nil, err
	}

	s.logger.Debug("Listed patterns", zap.Int("user_id", userID), zap.Int("count", len(patterns)))
	return patterns, nil
}

// GetPattern returns ErrNotFound when id is missing or owned by another user.
func (s *Store) GetPattern(ctx context.Context, userID int, id string) (*model.Pattern, error) {
	p, err := scanPattern(s.db.QueryRow(ctx, patternSelect+` WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		return nil, notFound(err)
	}

	days, err := loadDays(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	p.DefaultedDays = days
	return &p, nil
}

// InsertActivity stores a consumed event once; inserted is false for duplicates.
func (s *Store) InsertActivity(ctx context.Context, a *model.Activity) (inserted bool, err error) {
	query := `
        INSERT INTO activity_log (event_id, user_id, pattern_id, routing_key, payload, occurred_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (event_id) DO NOTHING
    `
	tag, err := s.db.Exec(ctx, query, a.EventID, a.UserID, a.PatternID, a.RoutingKey, a.Payload, a.OccurredAt)
	if err != nil {
		return false, fmt.Errorf("insert activity: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListActivity returns the latest activity of a user.
func (s *Store) ListActivity(ctx context.Context, userID, limit int) ([]model.Activity, error) {
	rows, err := s.db.Query(ctx, `
        SELECT id, event_id::text, user_id, pattern_id::text, routing_key, payload, occurred_at
        FROM activity_log
        WHERE user_id = $1
        ORDER BY occurred_at DESC
        LIMIT $2
    `, userID, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Activity, error) {
		var a model.Activity
		err := row.Scan(&a.ID, &a.EventID, &a.UserID, &a.PatternID, &a.RoutingKey, &a.Payload, &a.OccurredAt)
		return a, err
	})
}

// Ping checks the pool.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	// invalid_text_representation: a malformed uuid cannot match any row
	if errors.As(err, &pgErr) && pgErr.Code == "22P02" {
		return ErrNotFound
	}
	return err
}

func duplicate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}
