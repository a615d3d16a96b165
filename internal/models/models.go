package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog entry. Stock and Sold are only ever mutated through
// guarded signed increments at the storage layer.
type Product struct {
	ID            int64               `db:"id" json:"id"`
	Name          string              `db:"name" json:"name"`
	ImageURL      string              `db:"image_url" json:"image_url"`
	Price         decimal.Decimal     `db:"price" json:"price"`
	DiscountPrice decimal.NullDecimal `db:"discount_price" json:"discount_price,omitempty"`
	Stock         int                 `db:"stock" json:"stock"`
	Sold          int                 `db:"sold" json:"sold"`
	IsActive      bool                `db:"is_active" json:"is_active"`
	CreatedAt     time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time           `db:"updated_at" json:"updated_at"`
}

// FinalPrice returns the discounted price when one is set.
func (p *Product) FinalPrice() decimal.Decimal {
	if p.DiscountPrice.Valid {
		return p.DiscountPrice.Decimal
	}
	return p.Price
}

// Cart is the per-user transient collection of prospective line items.
// It is emptied, never deleted, when its contents become an order.
type Cart struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CartItem holds a price snapshot taken when the item was added. Checkout
// recomputes against live catalog prices, the snapshot is display-only.
type CartItem struct {
	ID        int64           `db:"id" json:"id"`
	CartID    int64           `db:"cart_id" json:"cart_id"`
	ProductID int64           `db:"product_id" json:"product_id"`
	Quantity  int             `db:"quantity" json:"quantity"`
	Price     decimal.Decimal `db:"price" json:"price"`
}

// Order is an immutable record of a completed checkout. Line items are frozen
// at creation so later catalog changes never affect historical orders.
type Order struct {
	ID               int64           `db:"id" json:"id"`
	UserID           int64           `db:"user_id" json:"user_id"`
	Status           string          `db:"status" json:"status"`
	ShippingAddress  string          `db:"shipping_address" json:"shipping_address"`
	ItemsPrice       decimal.Decimal `db:"items_price" json:"items_price"`
	ShippingPrice    decimal.Decimal `db:"shipping_price" json:"shipping_price"`
	TaxPrice         decimal.Decimal `db:"tax_price" json:"tax_price"`
	TotalPrice       decimal.Decimal `db:"total_price" json:"total_price"`
	IsPaid           bool            `db:"is_paid" json:"is_paid"`
	PaidAt           *time.Time      `db:"paid_at" json:"paid_at,omitempty"`
	IsDelivered      bool            `db:"is_delivered" json:"is_delivered"`
	DeliveredAt      *time.Time      `db:"delivered_at" json:"delivered_at,omitempty"`
	IsCOD            bool            `db:"is_cod" json:"is_cod"`
	GatewayOrderID   string          `db:"gateway_order_id" json:"gateway_order_id,omitempty"`
	GatewayPaymentID string          `db:"gateway_payment_id" json:"gateway_payment_id,omitempty"`
	GatewaySignature string          `db:"gateway_signature" json:"-"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// OrderItem is a frozen line-item snapshot.
type OrderItem struct {
	ID        int64           `db:"id" json:"id"`
	OrderID   int64           `db:"order_id" json:"order_id"`
	ProductID int64           `db:"product_id" json:"product_id"`
	Name      string          `db:"name" json:"name"`
	ImageURL  string          `db:"image_url" json:"image_url"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`
	Quantity  int             `db:"quantity" json:"quantity"`
}

// OrderStatusEntry is one row of the append-only status history.
type OrderStatusEntry struct {
	ID        int64     `db:"id" json:"id"`
	OrderID   int64     `db:"order_id" json:"order_id"`
	Status    string    `db:"status" json:"status"`
	Note      string    `db:"note" json:"note"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Order statuses
const (
	OrderStatusProcessing    = "processing"
	OrderStatusConfirmed     = "confirmed"
	OrderStatusShipped       = "shipped"
	OrderStatusDelivered     = "delivered"
	OrderStatusCancelled     = "cancelled"
	OrderStatusPaymentFailed = "payment_failed"
)

// statusTransitions is the fulfilment state machine. payment_failed is
// re-enterable: a later successful payment moves the order back to confirmed.
var statusTransitions = map[string][]string{
	OrderStatusProcessing:    {OrderStatusConfirmed, OrderStatusCancelled, OrderStatusPaymentFailed},
	OrderStatusConfirmed:     {OrderStatusShipped, OrderStatusCancelled, OrderStatusPaymentFailed},
	OrderStatusShipped:       {OrderStatusDelivered},
	OrderStatusDelivered:     {},
	OrderStatusCancelled:     {},
	OrderStatusPaymentFailed: {OrderStatusConfirmed, OrderStatusCancelled},
}

// ValidTransition reports whether an order may move from one status to another.
func ValidTransition(from, to string) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Cancellable reports whether an order in the given status may still be
// cancelled. Shipped, delivered and already-cancelled orders may not.
func Cancellable(status string) bool {
	switch status {
	case OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return false
	}
	return true
}
