package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"coffee-shop-bot/internal/logger"
)

// Publisher handles message publishing to RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger logger.Logger
}

// NewPublisher creates a new message publisher.
func NewPublisher(conn *Connection, log logger.Logger) *Publisher {
	return &Publisher{conn: conn, logger: log}
}

// PublishStaffNotification publishes a new-order notification to the
// staff fanout exchange as a persistent message.
func (p *Publisher) PublishStaffNotification(ctx context.Context, message interface{}) error {
	if p.conn.IsClosed() {
		if err := p.conn.Reconnect(); err != nil {
			return fmt.Errorf("failed to reconnect: %w", err)
		}
	}

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	publishing := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err = p.conn.Channel().PublishWithContext(
		ctx,
		StaffExchange, // exchange
		"",            // routing key (ignored for fanout)
		false,         // mandatory
		false,         // immediate
		publishing,
	)
	if err != nil {
		p.logger.Error("message_publish_failed", "",
			fmt.Sprintf("Failed to publish message to exchange %s", StaffExchange), err)
		return fmt.Errorf("failed to publish message: %w", err)
	}

	p.logger.Debug("message_published", "",
		fmt.Sprintf("Published message to exchange %s", StaffExchange),
		logger.Int("message_size", len(body)))

	return nil
}

// Close closes the publisher.
func (p *Publisher) Close() error {
	return p.conn.Close()
}
