package notifier

import (
	"context"

	"coffee-shop-bot/internal/logger"
	"coffee-shop-bot/internal/messaging"
	"coffee-shop-bot/internal/services/checkout"
)

// AMQPNotifier publishes staff notifications to the staff fanout
// exchange.
type AMQPNotifier struct {
	publisher *messaging.Publisher
	staffChat string
	log       logger.Logger
}

func NewAMQPNotifier(publisher *messaging.Publisher, staffChat string, log logger.Logger) *AMQPNotifier {
	return &AMQPNotifier{publisher: publisher, staffChat: staffChat, log: log}
}

type staffMessage struct {
	checkout.StaffNotification
	StaffChatID string `json:"staff_chat_id,omitempty"`
}

func (n *AMQPNotifier) NotifyStaff(ctx context.Context, notification checkout.StaffNotification) error {
	return n.publisher.PublishStaffNotification(ctx, staffMessage{
		StaffNotification: notification,
		StaffChatID:       n.staffChat,
	})
}

// LogNotifier writes staff notifications to the log. Used when no message
// broker is configured.
type LogNotifier struct {
	log logger.Logger
}

func NewLogNotifier(log logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) NotifyStaff(ctx context.Context, notification checkout.StaffNotification) error {
	n.log.Info("staff_notification", "", notification.Text,
		logger.String("order_id", notification.OrderNumber),
		logger.Int64("user_id", notification.UserID))
	return nil
}
