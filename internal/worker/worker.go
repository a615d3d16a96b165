package worker

import (
	"context"
	"encoding/json"

	"shop-order-service/internal/broker"
	"shop-order-service/internal/models"
	"shop-order-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// NotificationWorker consumes order events and dispatches best-effort
// customer notifications. A send failure is logged and the message is still
// committed: notification is never allowed to block or fail the workflow
// that produced the event.
type NotificationWorker struct {
	consumer *broker.Consumer
	sender   Sender
	logger   *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer, sender Sender) *NotificationWorker {
	return &NotificationWorker{
		consumer: consumer,
		sender:   sender,
		logger:   util.GetLogger(),
	}
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.handleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}

func (w *NotificationWorker) handleMessage(ctx context.Context, msg kafka.Message) error {
	var base models.BaseEvent
	if err := json.Unmarshal(msg.Value, &base); err != nil {
		w.logger.Error("Failed to unmarshal event", zap.Error(err))
		// Poison message, commit and move on.
		return nil
	}

	switch base.EventType {
	case models.EventTypeOrderCreated:
		var event models.OrderCreatedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			w.logger.Error("Failed to unmarshal OrderCreated event", zap.Error(err))
			return nil
		}
		w.dispatch(ctx, "order_confirmation", event.UserEmail, OrderConfirmationNotification(&event))

	case models.EventTypeOrderCancelled:
		var event models.OrderCancelledEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			w.logger.Error("Failed to unmarshal OrderCancelled event", zap.Error(err))
			return nil
		}
		w.dispatch(ctx, "order_cancelled", "", OrderCancelledNotification(&event))

	case models.EventTypeOrderConfirmed:
		var event models.OrderConfirmedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			w.logger.Error("Failed to unmarshal OrderConfirmed event", zap.Error(err))
			return nil
		}
		w.dispatch(ctx, "payment_confirmed", "", PaymentConfirmedNotification(&event))

	default:
		// Not a notification-worthy event.
	}

	return nil
}

func (w *NotificationWorker) dispatch(ctx context.Context, kind, email string, n Notification) {
	if err := w.sender.Send(ctx, email, n); err != nil {
		util.NotificationsSentTotal.WithLabelValues(kind, "failed").Inc()
		w.logger.Error("Failed to send notification",
			zap.String("kind", kind),
			zap.Int64("order_id", n.OrderID),
			zap.Error(err))
		return
	}
	util.NotificationsSentTotal.WithLabelValues(kind, "sent").Inc()
}
