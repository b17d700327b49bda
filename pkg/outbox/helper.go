package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"interruptd/pkg/trace"
)

// Envelope is the message body published for every outbox event.
type Envelope struct {
	EventID    string          `json:"event_id"`
	RoutingKey string          `json:"routing_key"`
	TraceID    string          `json:"trace_id,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// Inserter 写入 outbox 的最小接口
type Inserter interface {
	InsertEvent(ctx context.Context, tx pgx.Tx, event *Event) error
}

// InsertEventInTx 在事务中插入事件到 outbox（辅助函数）
func InsertEventInTx(
	ctx context.Context,
	tx pgx.Tx,
	repo Inserter,
	aggregateType string,
	aggregateID string,
	routingKey string,
	payload interface{},
) error {
	event, err := NewEvent(ctx, aggregateType, aggregateID, routingKey, payload, time.Now())
	if err != nil {
		return err
	}
	return repo.InsertEvent(ctx, tx, event)
}

// NewEvent 构造带 Envelope 的待发送事件
func NewEvent(ctx context.Context, aggregateType, aggregateID, routingKey string, payload interface{}, now time.Time) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	env := Envelope{
		EventID:    uuid.NewString(),
		RoutingKey: routingKey,
		TraceID:    trace.FromContext(ctx),
		OccurredAt: now.UTC(),
		Data:       data,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}

	return &Event{
		EventID:       env.EventID,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		RoutingKey:    routingKey,
		Payload:       body,
		Status:        StatusPending,
	}, nil
}
