package mq

import (
	"context"
	"fmt"

	"github.com/rabbitmq/amqp091-go"
)

const (
	DLQExchangeName = "events.dlq"
)

// DeclareDLQQueue declares a dead letter queue for a consumer queue.
func DeclareDLQQueue(ch *amqp091.Channel, queueName string) (amqp091.Queue, error) {
	dlqName := fmt.Sprintf("%s.dlq", queueName)

	q, err := ch.QueueDeclare(
		dlqName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to declare DLQ queue: %w", err)
	}

	err = ch.QueueBind(
		q.Name,
		queueName,
		DLQExchangeName,
		false,
		nil,
	)
	if err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to bind DLQ queue: %w", err)
	}

	return q, nil
}

// publishToDLQ publishes a failed message to the dead letter exchange, keyed by queue name.
func publishToDLQ(ctx context.Context, ch *amqp091.Channel, queueName, routingKey string, payload []byte, originalError string) error {
	headers := amqp091.Table{
		"x-original-error":       originalError,
		"x-original-routing-key": routingKey,
		"x-failed-at":            queueName,
	}

	return ch.PublishWithContext(
		ctx,
		DLQExchangeName,
		queueName,
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp091.Persistent,
			Headers:      headers,
		},
	)
}
