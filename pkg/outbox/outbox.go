package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrEventNotFound 事件不存在
var ErrEventNotFound = errors.New("outbox event not found")

const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

const (
	// claimLease 是一个批次被领取后对其他 dispatcher 不可见的时长
	claimLease = 30 * time.Second
	maxBackoff = 5 * time.Minute
)

// Event 表示一个待发布的事件；字段顺序与 eventColumns 一致
type Event struct {
	ID            int64
	EventID       string
	AggregateType string
	AggregateID   string
	RoutingKey    string
	Payload       json.RawMessage
	Status        string
	RetryCount    int
	NextRetryAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

const eventColumns = `id, event_id::text, aggregate_type, aggregate_id, routing_key, payload, status,
	       retry_count, next_retry_at, created_at, updated_at`

// Repository 基于 pgx 的 outbox_events 存储
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// InsertEvent 在业务事务中写入事件，与业务数据一起提交或回滚
func (r *Repository) InsertEvent(ctx context.Context, tx pgx.Tx, event *Event) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO outbox_events (event_id, aggregate_type, aggregate_id, routing_key, payload, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`, event.EventID, event.AggregateType, event.AggregateID, event.RoutingKey, event.Payload, event.Status,
	).Scan(&event.ID, &event.CreatedAt, &event.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return nil
}

// ClaimPending 领取一批到期的 pending 事件并把 next_retry_at 推后一个租期。
// SKIP LOCKED 让多个 api 实例的 dispatcher 不会领到同一事件。
func (r *Repository) ClaimPending(ctx context.Context, limit int) ([]*Event, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE outbox_events
		SET next_retry_at = NOW() + make_interval(secs => $2), updated_at = NOW()
		WHERE id IN (
			SELECT id FROM outbox_events
			WHERE status = 'pending'
			  AND (next_retry_at IS NULL OR next_retry_at <= NOW())
			ORDER BY id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+eventColumns, limit, claimLease.Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to claim events: %w", err)
	}
	events, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByPos[Event])
	if err != nil {
		return nil, fmt.Errorf("failed to scan events: %w", err)
	}
	// RETURNING 不保证顺序，按插入顺序发布
	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })
	return events, nil
}

// GetFailedEvents 获取失败的事件，最早的在前
func (r *Repository) GetFailedEvents(ctx context.Context, limit int) ([]*Event, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+eventColumns+`
		FROM outbox_events
		WHERE status = 'failed'
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToAddrOfStructByPos[Event])
}

// GetEventByID 根据 ID 获取事件（用于 Replay）
func (r *Repository) GetEventByID(ctx context.Context, eventID int64) (*Event, error) {
	rows, err := r.db.Query(ctx, `SELECT `+eventColumns+` FROM outbox_events WHERE id = $1`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	e, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByPos[Event])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrEventNotFound, eventID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return e, nil
}

// MarkAsSent 标记事件为已发送
func (r *Repository) MarkAsSent(ctx context.Context, eventID int64) error {
	if _, err := r.db.Exec(ctx, `
		UPDATE outbox_events
		SET status = 'sent', next_retry_at = NULL, updated_at = NOW()
		WHERE id = $1
	`, eventID); err != nil {
		return fmt.Errorf("failed to mark event as sent: %w", err)
	}
	return nil
}

// MarkAsFailed 记录一次发布失败；达到 maxRetries 后状态变为 failed，等待人工 replay
func (r *Repository) MarkAsFailed(ctx context.Context, eventID int64, maxRetries int) error {
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		var retryCount int
		if err := tx.QueryRow(ctx,
			`SELECT retry_count FROM outbox_events WHERE id = $1 FOR UPDATE`, eventID,
		).Scan(&retryCount); err != nil {
			return err
		}

		retryCount++
		status, nextRetryAt := NextAttempt(retryCount, maxRetries, time.Now())
		_, err := tx.Exec(ctx, `
			UPDATE outbox_events
			SET status = $1, retry_count = $2, next_retry_at = $3, updated_at = NOW()
			WHERE id = $4
		`, status, retryCount, nextRetryAt, eventID)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to mark event as failed: %w", err)
	}
	return nil
}

// PurgeSent 删除 olderThan 之前已发送的事件，返回删除条数
func (r *Repository) PurgeSent(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM outbox_events
		WHERE status = 'sent' AND updated_at < NOW() - make_interval(secs => $1)
	`, olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("failed to purge sent events: %w", err)
	}
	return tag.RowsAffected(), nil
}

// NextAttempt 计算第 retryCount 次失败后的状态和下次重试时间
func NextAttempt(retryCount, maxRetries int, now time.Time) (string, *time.Time) {
	if retryCount >= maxRetries {
		return StatusFailed, nil
	}
	next := now.Add(Backoff(retryCount))
	return StatusPending, &next
}

// Backoff 指数退避：2s, 4s, 8s ... 最多 5 分钟
func Backoff(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	if retryCount > 9 {
		return maxBackoff
	}
	d := time.Duration(1<<retryCount) * time.Second
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
