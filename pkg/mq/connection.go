package mq

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// ExchangeName is the topic exchange every domain event is published to.
const ExchangeName = "events"

// NewConnection dials RabbitMQ and names the connection after the running
// binary so it can be told apart in the management UI.
func NewConnection(url string) (*amqp091.Connection, error) {
	props := amqp091.NewConnectionProperties()
	props.SetClientConnectionName(filepath.Base(os.Args[0]))

	conn, err := amqp091.DialConfig(url, amqp091.Config{
		Heartbeat:  10 * time.Second,
		Locale:     "en_US",
		Properties: props,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// DeclareTopology declares the events exchange and its dead letter exchange.
// Publishers and consumers both call it, whichever starts first.
func DeclareTopology(ch *amqp091.Channel) error {
	for _, name := range []string{ExchangeName, DLQExchangeName} {
		if err := ch.ExchangeDeclare(name, "topic", true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", name, err)
		}
	}
	return nil
}
