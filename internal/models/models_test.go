package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValidTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{OrderStatusProcessing, OrderStatusConfirmed, true},
		{OrderStatusProcessing, OrderStatusCancelled, true},
		{OrderStatusProcessing, OrderStatusPaymentFailed, true},
		{OrderStatusProcessing, OrderStatusShipped, false},
		{OrderStatusProcessing, OrderStatusDelivered, false},
		{OrderStatusConfirmed, OrderStatusShipped, true},
		{OrderStatusConfirmed, OrderStatusCancelled, true},
		{OrderStatusShipped, OrderStatusDelivered, true},
		{OrderStatusShipped, OrderStatusCancelled, false},
		{OrderStatusDelivered, OrderStatusShipped, false},
		{OrderStatusCancelled, OrderStatusProcessing, false},
		{OrderStatusPaymentFailed, OrderStatusConfirmed, true},
		{OrderStatusPaymentFailed, OrderStatusCancelled, true},
		{OrderStatusPaymentFailed, OrderStatusShipped, false},
		{"bogus", OrderStatusConfirmed, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidTransition(tt.from, tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestCancellable(t *testing.T) {
	assert.True(t, Cancellable(OrderStatusProcessing))
	assert.True(t, Cancellable(OrderStatusConfirmed))
	assert.True(t, Cancellable(OrderStatusPaymentFailed))
	assert.False(t, Cancellable(OrderStatusShipped))
	assert.False(t, Cancellable(OrderStatusDelivered))
	assert.False(t, Cancellable(OrderStatusCancelled))
}

func TestFinalPrice(t *testing.T) {
	p := Product{Price: decimal.RequireFromString("15.00")}
	assert.True(t, p.FinalPrice().Equal(decimal.RequireFromString("15.00")))

	p.DiscountPrice = decimal.NewNullDecimal(decimal.RequireFromString("8.00"))
	assert.True(t, p.FinalPrice().Equal(decimal.RequireFromString("8.00")))
}
