package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"interruptd/pkg/metrics"
	"interruptd/pkg/otel"
	"interruptd/pkg/trace"
	"interruptd/pkg/util"
)

type MessageHandler func(ctx context.Context, routingKey string, data json.RawMessage) error

// Disposition is what the consumer does with a delivery after the handler ran.
type Disposition int

const (
	Ack Disposition = iota
	Requeue
	DeadLetter
)

// AttemptCounter counts deliveries of the same message across redeliveries.
type AttemptCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type Consumer struct {
	channel     *amqp091.Channel
	queue       amqp091.Queue
	routingKeys []string
	handler     MessageHandler
	conn        *amqp091.Connection
	logger      *zap.Logger
	counter     AttemptCounter
	maxRetries  int64
	tag         string
}

// NewConsumer creates a durable queue bound to one or more routing keys on the events exchange.
func NewConsumer(url, queueName string, routingKeys []string, logger *zap.Logger) (*Consumer, error) {
	conn, err := NewConnection(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	closeAll := func() {
		ch.Close()
		conn.Close()
	}

	if err := DeclareTopology(ch); err != nil {
		closeAll()
		return nil, err
	}
	if _, err := DeclareDLQQueue(ch, queueName); err != nil {
		closeAll()
		return nil, err
	}

	q, err := ch.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	for _, key := range routingKeys {
		if err := ch.QueueBind(q.Name, key, ExchangeName, false, nil); err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to bind queue to %s: %w", key, err)
		}
	}

	if err := ch.Qos(10, 0, false); err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}

	logger.Info("Consumer initialized",
		zap.Strings("routing_keys", routingKeys),
		zap.String("queue", queueName),
		zap.String("exchange", ExchangeName),
	)

	return &Consumer{
		conn:        conn,
		channel:     ch,
		queue:       q,
		routingKeys: routingKeys,
		logger:      logger,
		maxRetries:  3,
		tag:         queueName + "-worker",
	}, nil
}

func (c *Consumer) SetHandler(h MessageHandler) {
	c.handler = h
}

// WithAttemptCounter enables bounded retries; without it retryable failures are always requeued.
func (c *Consumer) WithAttemptCounter(counter AttemptCounter, maxRetries int64) *Consumer {
	c.counter = counter
	c.maxRetries = maxRetries
	return c
}

// IsConnected reports whether the underlying connection is open.
func (c *Consumer) IsConnected() bool {
	return c.conn != nil && !c.conn.IsClosed()
}

// Stop cancels the subscription; StartConsuming returns once in-flight deliveries drain.
func (c *Consumer) Stop() {
	if c.channel != nil {
		_ = c.channel.Cancel(c.tag, false)
	}
}

func (c *Consumer) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// StartConsuming starts consuming messages. This method blocks until ctx is done or the channel closes.
func (c *Consumer) StartConsuming(ctx context.Context) error {
	if c.handler == nil {
		return fmt.Errorf("consumer handler not set")
	}

	deliveries, err := c.channel.Consume(
		c.queue.Name,
		c.tag,
		false, // 手动ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Consumer started consuming messages",
		zap.Strings("routing_keys", c.routingKeys),
		zap.String("queue", c.queue.Name),
	)

	for {
		select {
		case <-ctx.Done():
			c.Stop()
			return nil
		case msg, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.handleDelivery(ctx, msg)
		}
	}
}

// handleDelivery 保证每条消息都会被 ack、requeue 或进入 DLQ
func (c *Consumer) handleDelivery(parent context.Context, msg amqp091.Delivery) {
	ctx := otel.ExtractHeaders(parent, msg.Headers)
	ctx, span := otel.MQConsumeSpan(ctx, c.queue.Name, msg.RoutingKey)
	defer span.End()
	if traceID, ok := msg.Headers[trace.TraceIDKey].(string); ok && traceID != "" {
		ctx = trace.WithContext(ctx, traceID)
	}
	start := time.Now()
	defer func() {
		metrics.RecordMQConsumeLatency(msg.RoutingKey, c.queue.Name, time.Since(start))
	}()

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Handler panic recovered",
				zap.String("routing_key", msg.RoutingKey),
				zap.String("queue", c.queue.Name),
				zap.Any("panic", r),
			)
			c.settle(ctx, msg, DeadLetter, fmt.Sprintf("panic: %v", r))
		}
	}()

	err := c.handler(ctx, msg.RoutingKey, msg.Body)
	otel.RecordError(span, err)
	if err == nil {
		c.settle(ctx, msg, Ack, "")
		return
	}

	retryable, errType := util.IsRetryableError(err)
	attempts := c.attempts(ctx, msg)
	disposition := DispositionFor(err, retryable, attempts, c.maxRetries)

	c.logger.Error("Handler error",
		zap.String("routing_key", msg.RoutingKey),
		zap.String("queue", c.queue.Name),
		zap.String("error_type", errType),
		zap.Int64("attempt", attempts),
		zap.Error(err),
	)
	c.settle(ctx, msg, disposition, err.Error())
}

func (c *Consumer) attempts(ctx context.Context, msg amqp091.Delivery) int64 {
	if c.counter == nil || msg.MessageId == "" {
		return 1
	}
	n, err := c.counter.IncrementAndGet(ctx, util.FormatRetryKey(c.queue.Name, msg.MessageId))
	if err != nil {
		return 1
	}
	return n
}

// DispositionFor decides how to settle a delivery after a handler error.
func DispositionFor(err error, retryable bool, attempts, maxRetries int64) Disposition {
	if err == nil {
		return Ack
	}
	if !util.ShouldRetry(attempts, maxRetries, retryable) {
		return DeadLetter
	}
	return Requeue
}

func (c *Consumer) settle(ctx context.Context, msg amqp091.Delivery, d Disposition, reason string) {
	var err error
	switch d {
	case Ack:
		err = msg.Ack(false)
		if c.counter != nil && msg.MessageId != "" {
			_ = c.counter.Reset(ctx, util.FormatRetryKey(c.queue.Name, msg.MessageId))
		}
	case Requeue:
		err = msg.Nack(false, true)
	case DeadLetter:
		if dlqErr := publishToDLQ(ctx, c.channel, c.queue.Name, msg.RoutingKey, msg.Body, reason); dlqErr != nil {
			c.logger.Error("Failed to publish to DLQ, requeueing",
				zap.String("routing_key", msg.RoutingKey),
				zap.Error(dlqErr),
			)
			err = msg.Nack(false, true)
			break
		}
		err = msg.Ack(false)
	}
	if err != nil {
		c.logger.Error("Failed to settle message",
			zap.String("routing_key", msg.RoutingKey),
			zap.String("queue", c.queue.Name),
			zap.Error(err),
		)
	}
}
