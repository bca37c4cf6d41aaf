package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	"coffee-shop-bot/internal/logger"
	"coffee-shop-bot/internal/messaging"
	"coffee-shop-bot/internal/services/checkout"
)

// Subscriber is the staff-side reader: it consumes new-order
// notifications and displays them on the console.
type Subscriber struct {
	consumer *messaging.Consumer
	logger   logger.Logger
}

func NewSubscriber(consumer *messaging.Consumer, log logger.Logger) *Subscriber {
	return &Subscriber{consumer: consumer, logger: log}
}

// Start consumes staff notifications until ctx is cancelled.
func (s *Subscriber) Start(ctx context.Context) error {
	requestID := logger.GenerateRequestID()
	s.logger.Info("service_started", requestID, "Staff notifier started")

	err := s.consumer.StartConsuming(ctx, s.handleNotification)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Subscriber) handleNotification(ctx context.Context, body []byte) error {
	requestID := logger.GenerateRequestID()

	var notification checkout.StaffNotification
	if err := json.Unmarshal(body, &notification); err != nil {
		s.logger.Error("message_parsing_failed", requestID, "Failed to parse staff notification", err)
		return fmt.Errorf("failed to parse staff notification: %w", err)
	}

	// Human-readable line for whoever watches the staff console.
	fmt.Println(notification.Text)

	s.logger.Info("notification_displayed", requestID, "Staff notification displayed",
		logger.String("order_id", notification.OrderNumber),
		logger.String("customer_name", notification.CustomerName),
		logger.String("pickup_time", notification.PickupTime))

	return nil
}
