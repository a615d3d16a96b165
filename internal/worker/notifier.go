package worker

import (
	"context"
	"fmt"

	"shop-order-service/internal/models"
	"shop-order-service/internal/util"

	"go.uber.org/zap"
)

// Notification is a rendered customer message.
type Notification struct {
	OrderID int64
	Subject string
	Body    string
}

// Sender delivers notifications. Implementations must be safe to fail:
// callers log errors and never propagate them.
type Sender interface {
	Send(ctx context.Context, email string, n Notification) error
}

// LogSender records notifications in the service log instead of delivering
// them, for environments without a mail relay.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a log-backed sender.
func NewLogSender() *LogSender {
	return &LogSender{logger: util.GetLogger()}
}

func (s *LogSender) Send(_ context.Context, email string, n Notification) error {
	s.logger.Info("Notification dispatched",
		zap.String("email", email),
		zap.Int64("order_id", n.OrderID),
		zap.String("subject", n.Subject))
	return nil
}

// OrderConfirmationNotification renders the post-checkout message.
func OrderConfirmationNotification(event *models.OrderCreatedEvent) Notification {
	return Notification{
		OrderID: event.OrderID,
		Subject: fmt.Sprintf("Order #%d received", event.OrderID),
		Body: fmt.Sprintf("Thanks for your order! We received %d item(s) totalling %s.",
			len(event.Items), event.TotalPrice.StringFixed(2)),
	}
}

// OrderCancelledNotification renders the cancellation message.
func OrderCancelledNotification(event *models.OrderCancelledEvent) Notification {
	return Notification{
		OrderID: event.OrderID,
		Subject: fmt.Sprintf("Order #%d cancelled", event.OrderID),
		Body:    fmt.Sprintf("Your order was cancelled: %s", event.Reason),
	}
}

// PaymentConfirmedNotification renders the payment confirmation message.
func PaymentConfirmedNotification(event *models.OrderConfirmedEvent) Notification {
	return Notification{
		OrderID: event.OrderID,
		Subject: fmt.Sprintf("Payment received for order #%d", event.OrderID),
		Body:    "Your payment was confirmed and your order is being prepared.",
	}
}
