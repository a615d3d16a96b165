package service

import (
	"context"

	"shop-order-service/internal/gateway"
	"shop-order-service/internal/models"

	"github.com/shopspring/decimal"
)

// Store is the persistence surface the services depend on, satisfied by
// *store.Store. Tests substitute an in-memory fake.
type Store interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	GetProducts(ctx context.Context) ([]models.Product, error)
	SetProductStock(ctx context.Context, productID int64, stock int) error

	GetOrCreateCart(ctx context.Context, userID int64) (*models.Cart, error)
	GetCartItems(ctx context.Context, cartID int64) ([]models.CartItem, error)
	UpsertCartItem(ctx context.Context, cartID, productID int64, quantity int, price decimal.Decimal) (*models.CartItem, error)
	SetCartItemQuantity(ctx context.Context, cartID, itemID int64, quantity int, price decimal.Decimal) error
	RemoveCartItem(ctx context.Context, cartID, itemID int64) error
	ClearCart(ctx context.Context, cartID int64) error

	CreateOrderTx(ctx context.Context, order *models.Order, items []models.OrderItem, cartID int64) error
	CancelOrderTx(ctx context.Context, orderID int64, note string) (*models.Order, error)
	SetOrderStatusTx(ctx context.Context, orderID int64, status, note string) (*models.Order, error)
	MarkOrderPaidTx(ctx context.Context, orderID int64, paymentID, signature string) (bool, error)
	MarkOrderPaidByGatewayOrderTx(ctx context.Context, gatewayOrderID, paymentID string) (bool, error)
	MarkOrderPaymentFailedByGatewayOrder(ctx context.Context, gatewayOrderID, note string) (bool, error)
	MarkOrderDeliveredTx(ctx context.Context, orderID int64, note string) (*models.Order, error)
	SetOrderGatewayOrderID(ctx context.Context, orderID int64, gatewayOrderID string) error

	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	GetOrderStatusHistory(ctx context.Context, orderID int64) ([]models.OrderStatusEntry, error)
	GetOrdersByUserID(ctx context.Context, userID int64, status string, limit, offset int) ([]models.Order, error)
	CountOrdersByUserID(ctx context.Context, userID int64, status string) (int, error)
}

// StockCache is the cached stock mirror, satisfied by *redisclient.Client.
// A nil cache disables the fast path; the database guard still holds.
type StockCache interface {
	ReserveStock(ctx context.Context, productID int64, quantity int) (bool, error)
	ReleaseStock(ctx context.Context, productID int64, quantity int) error
	SetStock(ctx context.Context, productID int64, stock int) error
}

// Publisher emits domain events, satisfied by *broker.EventPublisher.
// Publish failures are logged and swallowed, never surfaced to callers.
type Publisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderConfirmed(ctx context.Context, event *models.OrderConfirmedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
	PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error
}

// Gateway is the payment gateway surface, satisfied by *gateway.Client.
type Gateway interface {
	CreateOrder(ctx context.Context, amount decimal.Decimal) (*gateway.RemoteOrder, error)
	FetchPayment(ctx context.Context, paymentID string) (*gateway.RemotePayment, error)
	RefundPayment(ctx context.Context, paymentID string, amount decimal.Decimal, reason string) (*gateway.RemoteRefund, error)
	KeyID() string
	VerifyPaymentSignature(gatewayOrderID, paymentID, signature string) bool
	VerifyWebhookSignature(body []byte, signature string) bool
}

// Identity is the authenticated caller, extracted upstream of the services.
type Identity struct {
	UserID int64
	Email  string
	Role   string
}

// IsAdmin reports whether the caller carries the admin role.
func (id Identity) IsAdmin() bool {
	return id.Role == "admin"
}

// canAccessOrder is the single ownership/role check used by every
// order-scoped operation. adminAllowed widens it to status-only updates.
func canAccessOrder(id Identity, order *models.Order, adminAllowed bool) bool {
	if order.UserID == id.UserID {
		return true
	}
	return adminAllowed && id.IsAdmin()
}
