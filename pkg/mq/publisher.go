package mq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"interruptd/pkg/otel"
	"interruptd/pkg/trace"
)

// ErrNotConfirmed is returned when the broker nacks a publishing.
var ErrNotConfirmed = errors.New("publish not confirmed by broker")

const confirmTimeout = 5 * time.Second

// Publisher publishes outbox envelopes on the events exchange with publisher
// confirms, so an event is only reported as sent once the broker has it.
type Publisher struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	// amqp channels are not safe for concurrent publishing
	mu sync.Mutex
}

func NewPublisher(url string) (*Publisher, error) {
	conn, err := NewConnection(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := DeclareTopology(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	return &Publisher{
		conn:    conn,
		channel: ch,
	}, nil
}

func (p *Publisher) Close() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// IsConnected reports whether both the connection and the channel are open.
func (p *Publisher) IsConnected() bool {
	if p.conn == nil || p.channel == nil {
		return false
	}
	return !p.conn.IsClosed() && !p.channel.IsClosed()
}

// PublishMessage publishes an encoded body and waits for the broker confirm.
// messageID is the outbox event id; consumers use it for retry accounting.
func (p *Publisher) PublishMessage(ctx context.Context, routingKey, messageID string, body []byte) error {
	ctx, span := otel.MQPublishSpan(ctx, ExchangeName, routingKey)
	defer span.End()

	headers := amqp091.Table{}
	if traceID := trace.FromContext(ctx); traceID != "" {
		headers[trace.TraceIDKey] = traceID
	}
	otel.InjectHeaders(ctx, headers)

	err := p.publish(ctx, routingKey, amqp091.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp091.Persistent,
		Headers:      headers,
		MessageId:    messageID,
		Timestamp:    time.Now(),
	})
	otel.RecordError(span, err)
	return err
}

func (p *Publisher) publish(ctx context.Context, routingKey string, msg amqp091.Publishing) error {
	p.mu.Lock()
	confirm, err := p.channel.PublishWithDeferredConfirmWithContext(ctx, ExchangeName, routingKey, false, false, msg)
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, confirmTimeout)
	defer cancel()
	acked, err := confirm.WaitContext(waitCtx)
	if err != nil {
		return fmt.Errorf("publish %s: waiting for confirm: %w", routingKey, err)
	}
	if !acked {
		return fmt.Errorf("publish %s: %w", routingKey, ErrNotConfirmed)
	}
	return nil
}
