package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"shop-order-service/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	sent []Notification
	err  error
}

func (s *recordingSender) Send(_ context.Context, _ string, n Notification) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, n)
	return nil
}

func message(t *testing.T, event interface{}) kafka.Message {
	t.Helper()
	value, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Value: value}
}

func TestHandleOrderCreated(t *testing.T) {
	sender := &recordingSender{}
	w := NewNotificationWorker(nil, sender)

	msg := message(t, models.OrderCreatedEvent{
		BaseEvent:  models.BaseEvent{EventType: models.EventTypeOrderCreated},
		OrderID:    7,
		UserEmail:  "buyer@example.com",
		TotalPrice: decimal.RequireFromString("27.00"),
		Items:      []models.OrderItemData{{Name: "Widget", Quantity: 2}},
	})

	require.NoError(t, w.handleMessage(context.Background(), msg))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, int64(7), sender.sent[0].OrderID)
	assert.Contains(t, sender.sent[0].Subject, "Order #7")
	assert.Contains(t, sender.sent[0].Body, "27.00")
}

func TestHandleOrderCancelled(t *testing.T) {
	sender := &recordingSender{}
	w := NewNotificationWorker(nil, sender)

	msg := message(t, models.OrderCancelledEvent{
		BaseEvent: models.BaseEvent{EventType: models.EventTypeOrderCancelled},
		OrderID:   7,
		Reason:    "changed my mind",
	})

	require.NoError(t, w.handleMessage(context.Background(), msg))
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Subject, "cancelled")
	assert.Contains(t, sender.sent[0].Body, "changed my mind")
}

func TestHandleOrderConfirmed(t *testing.T) {
	sender := &recordingSender{}
	w := NewNotificationWorker(nil, sender)

	msg := message(t, models.OrderConfirmedEvent{
		BaseEvent: models.BaseEvent{EventType: models.EventTypeOrderConfirmed},
		OrderID:   7,
	})

	require.NoError(t, w.handleMessage(context.Background(), msg))
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Subject, "Payment received")
}

func TestSendFailureStillCommits(t *testing.T) {
	// A broken sender must not bounce the message back to the broker.
	sender := &recordingSender{err: errors.New("smtp down")}
	w := NewNotificationWorker(nil, sender)

	msg := message(t, models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{EventType: models.EventTypeOrderCreated},
		OrderID:   7,
	})

	assert.NoError(t, w.handleMessage(context.Background(), msg))
}

func TestPoisonMessageCommitted(t *testing.T) {
	sender := &recordingSender{}
	w := NewNotificationWorker(nil, sender)

	assert.NoError(t, w.handleMessage(context.Background(), kafka.Message{Value: []byte("not json")}))
	assert.Empty(t, sender.sent)
}

func TestUnknownEventIgnored(t *testing.T) {
	sender := &recordingSender{}
	w := NewNotificationWorker(nil, sender)

	msg := message(t, models.BaseEvent{EventType: "SOMETHING_ELSE"})
	assert.NoError(t, w.handleMessage(context.Background(), msg))
	assert.Empty(t, sender.sent)
}
