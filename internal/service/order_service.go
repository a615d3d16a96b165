package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shop-order-service/internal/models"
	"shop-order-service/internal/store"
	"shop-order-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderService orchestrates checkout, fulfilment transitions and the
// compensating stock restoration on cancellation.
type OrderService struct {
	store     Store
	cache     StockCache
	publisher Publisher
	tolerance decimal.Decimal
	logger    *zap.Logger
}

// NewOrderService creates a new order service. cache and publisher may be nil.
func NewOrderService(st Store, cache StockCache, publisher Publisher, tolerance decimal.Decimal) *OrderService {
	return &OrderService{
		store:     st,
		cache:     cache,
		publisher: publisher,
		tolerance: tolerance,
		logger:    util.GetLogger(),
	}
}

// CheckoutRequest carries the client's view of the order. The items price is
// recomputed from the live catalog and compared against the submitted value.
type CheckoutRequest struct {
	ShippingAddress string          `json:"shipping_address" binding:"required"`
	ItemsPrice      decimal.Decimal `json:"items_price" binding:"required"`
	ShippingPrice   decimal.Decimal `json:"shipping_price"`
	TaxPrice        decimal.Decimal `json:"tax_price"`
	TotalPrice      decimal.Decimal `json:"total_price"`
	CashOnDelivery  bool            `json:"cash_on_delivery"`
}

// OrderDetail is an order with its frozen items and status history.
type OrderDetail struct {
	Order   *models.Order             `json:"order"`
	Items   []models.OrderItem        `json:"items"`
	History []models.OrderStatusEntry `json:"history,omitempty"`
}

// Checkout turns the caller's cart into an order: validates every line item
// against the live catalog, recomputes the items price, freezes snapshots and
// commits order rows, stock decrements and the cart clear in one transaction.
// The cash-on-delivery path runs through here too, differing only in its
// synthetic gateway id.
func (s *OrderService) Checkout(ctx context.Context, id Identity, req *CheckoutRequest) (*OrderDetail, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Checkout")
	defer span.End()

	start := time.Now()
	defer func() {
		util.CheckoutLatency.Observe(time.Since(start).Seconds())
	}()

	cart, err := s.store.GetOrCreateCart(ctx, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	cartItems, err := s.store.GetCartItems(ctx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart items: %w", err)
	}
	if len(cartItems) == 0 {
		util.CheckoutFailedTotal.WithLabelValues("empty_cart").Inc()
		return nil, ErrEmptyCart
	}

	products, err := s.loadProducts(ctx, cartItems)
	if err != nil {
		return nil, err
	}

	orderItems := make([]models.OrderItem, 0, len(cartItems))
	calculated := decimal.Zero

	for _, ci := range cartItems {
		product, ok := products[ci.ProductID]
		if !ok || !product.IsActive {
			util.CheckoutFailedTotal.WithLabelValues("product_unavailable").Inc()
			name := ""
			if ok {
				name = product.Name
			}
			return nil, &ProductUnavailableError{ProductID: ci.ProductID, Name: name}
		}

		if ci.Quantity > product.Stock {
			util.CheckoutFailedTotal.WithLabelValues("insufficient_stock").Inc()
			return nil, &InsufficientStockError{
				ProductID: product.ID,
				Name:      product.Name,
				Requested: ci.Quantity,
				Available: product.Stock,
			}
		}

		unitPrice := product.FinalPrice()
		calculated = calculated.Add(unitPrice.Mul(decimal.NewFromInt(int64(ci.Quantity))))

		orderItems = append(orderItems, models.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			ImageURL:  product.ImageURL,
			UnitPrice: unitPrice,
			Quantity:  ci.Quantity,
		})
	}

	if calculated.Sub(req.ItemsPrice).Abs().GreaterThan(s.tolerance) {
		util.CheckoutFailedTotal.WithLabelValues("price_mismatch").Inc()
		return nil, &PriceMismatchError{Submitted: req.ItemsPrice, Calculated: calculated}
	}

	order := &models.Order{
		UserID:          id.UserID,
		Status:          models.OrderStatusProcessing,
		ShippingAddress: req.ShippingAddress,
		ItemsPrice:      calculated,
		ShippingPrice:   req.ShippingPrice,
		TaxPrice:        req.TaxPrice,
		TotalPrice:      calculated.Add(req.ShippingPrice).Add(req.TaxPrice),
		IsCOD:           req.CashOnDelivery,
	}
	if req.CashOnDelivery {
		order.GatewayOrderID = "COD-" + uuid.New().String()
	}

	reserved, err := s.reserveCached(ctx, orderItems)
	if err != nil {
		util.CheckoutFailedTotal.WithLabelValues("insufficient_stock").Inc()
		return nil, err
	}

	if err := s.store.CreateOrderTx(ctx, order, orderItems, cart.ID); err != nil {
		s.releaseCached(ctx, reserved)

		var conflict *store.StockConflictError
		if errors.As(err, &conflict) {
			util.CheckoutFailedTotal.WithLabelValues("insufficient_stock").Inc()
			name := ""
			if p, ok := products[conflict.ProductID]; ok {
				name = p.Name
			}
			return nil, &InsufficientStockError{
				ProductID: conflict.ProductID,
				Name:      name,
				Requested: conflict.Requested,
				Available: conflict.Available,
			}
		}
		util.CheckoutFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", id.UserID),
		zap.String("total", order.TotalPrice.StringFixed(2)),
		zap.Bool("cod", order.IsCOD))

	s.publishCreated(ctx, id, order, orderItems)

	return &OrderDetail{Order: order, Items: orderItems}, nil
}

// Cancel moves an owner's order to cancelled and restores stock/sold for
// every line item, the exact inverse of the creation-time mutation.
func (s *OrderService) Cancel(ctx context.Context, id Identity, orderID int64, reason string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Cancel")
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !canAccessOrder(id, order, false) {
		return nil, ErrForbidden
	}

	note := reason
	if note == "" {
		note = "cancelled by customer"
	}

	cancelled, err := s.store.CancelOrderTx(ctx, orderID, note)
	if err != nil {
		var invalid *store.InvalidTransitionError
		if errors.As(err, &invalid) {
			return nil, &InvalidTransitionError{
				OrderID: orderID,
				From:    invalid.Status,
				To:      models.OrderStatusCancelled,
			}
		}
		return nil, err
	}

	util.OrdersCancelledTotal.Inc()

	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err == nil {
		s.releaseCached(ctx, items)
	} else {
		s.logger.Error("Failed to load items for cache release", zap.Error(err))
	}

	if s.publisher != nil {
		event := &models.OrderCancelledEvent{
			BaseEvent: newBaseEvent(models.EventTypeOrderCancelled),
			OrderID:   orderID,
			UserID:    order.UserID,
			Reason:    note,
		}
		if err := s.publisher.PublishOrderCancelled(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
		}
	}

	s.logger.Info("Order cancelled", zap.Int64("order_id", orderID))
	return cancelled, nil
}

// Get returns an order with items and history, for the owner or an admin.
func (s *OrderService) Get(ctx context.Context, id Identity, orderID int64) (*OrderDetail, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !canAccessOrder(id, order, true) {
		return nil, ErrForbidden
	}

	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	history, err := s.store.GetOrderStatusHistory(ctx, orderID)
	if err != nil {
		return nil, err
	}

	return &OrderDetail{Order: order, Items: items, History: history}, nil
}

// OrderPage is a paginated order listing.
type OrderPage struct {
	Orders []models.Order `json:"orders"`
	Page   int            `json:"page"`
	Limit  int            `json:"limit"`
	Total  int            `json:"total"`
}

// List returns a page of the caller's own orders.
func (s *OrderService) List(ctx context.Context, id Identity, status string, page, limit int) (*OrderPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}

	orders, err := s.store.GetOrdersByUserID(ctx, id.UserID, status, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	total, err := s.store.CountOrdersByUserID(ctx, id.UserID, status)
	if err != nil {
		return nil, err
	}

	return &OrderPage{Orders: orders, Page: page, Limit: limit, Total: total}, nil
}

// SetStatus walks the fulfilment state machine. Admin only.
func (s *OrderService) SetStatus(ctx context.Context, id Identity, orderID int64, status, note string) (*models.Order, error) {
	if !id.IsAdmin() {
		return nil, ErrForbidden
	}

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !models.ValidTransition(order.Status, status) {
		return nil, &InvalidTransitionError{OrderID: orderID, From: order.Status, To: status}
	}

	if status == models.OrderStatusDelivered {
		return s.markDelivered(ctx, orderID, note)
	}
	return s.store.SetOrderStatusTx(ctx, orderID, status, note)
}

// MarkDelivered sets the delivered flags and appends a history entry.
// Admin only.
func (s *OrderService) MarkDelivered(ctx context.Context, id Identity, orderID int64, note string) (*models.Order, error) {
	if !id.IsAdmin() {
		return nil, ErrForbidden
	}

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !models.ValidTransition(order.Status, models.OrderStatusDelivered) {
		return nil, &InvalidTransitionError{OrderID: orderID, From: order.Status, To: models.OrderStatusDelivered}
	}

	return s.markDelivered(ctx, orderID, note)
}

func (s *OrderService) markDelivered(ctx context.Context, orderID int64, note string) (*models.Order, error) {
	if note == "" {
		note = "order delivered"
	}
	order, err := s.store.MarkOrderDeliveredTx(ctx, orderID, note)
	if err != nil {
		return nil, err
	}
	util.OrdersDeliveredTotal.Inc()
	return order, nil
}

func (s *OrderService) loadProducts(ctx context.Context, cartItems []models.CartItem) (map[int64]*models.Product, error) {
	ids := make([]int64, len(cartItems))
	for i, ci := range cartItems {
		ids[i] = ci.ProductID
	}

	products, err := s.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	m := make(map[int64]*models.Product, len(products))
	for i := range products {
		m[products[i].ID] = &products[i]
	}
	return m, nil
}

// reserveCached runs the fast-path stock pre-check against the cache,
// releasing partial reservations on failure. Returns the items actually
// reserved so a later transaction failure can roll them back.
func (s *OrderService) reserveCached(ctx context.Context, items []models.OrderItem) ([]models.OrderItem, error) {
	if s.cache == nil {
		return nil, nil
	}

	reserved := make([]models.OrderItem, 0, len(items))
	for _, item := range items {
		ok, err := s.cache.ReserveStock(ctx, item.ProductID, item.Quantity)
		if err != nil {
			// Cache trouble is not a checkout failure, the DB guard decides.
			s.logger.Warn("Stock cache reservation failed, relying on database guard",
				zap.Int64("product_id", item.ProductID),
				zap.Error(err))
			continue
		}
		if !ok {
			util.StockReservationsFailed.WithLabelValues("cache_short").Inc()
			s.releaseCached(ctx, reserved)
			return nil, &InsufficientStockError{
				ProductID: item.ProductID,
				Name:      item.Name,
				Requested: item.Quantity,
			}
		}
		reserved = append(reserved, item)
	}
	return reserved, nil
}

func (s *OrderService) releaseCached(ctx context.Context, items []models.OrderItem) {
	if s.cache == nil {
		return
	}
	for _, item := range items {
		if err := s.cache.ReleaseStock(ctx, item.ProductID, item.Quantity); err != nil {
			s.logger.Error("Failed to release cached stock",
				zap.Int64("product_id", item.ProductID),
				zap.Error(err))
		}
	}
}

func (s *OrderService) publishCreated(ctx context.Context, id Identity, order *models.Order, items []models.OrderItem) {
	if s.publisher == nil {
		return
	}

	eventItems := make([]models.OrderItemData, len(items))
	for i, item := range items {
		eventItems[i] = models.OrderItemData{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}

	event := &models.OrderCreatedEvent{
		BaseEvent:  newBaseEvent(models.EventTypeOrderCreated),
		OrderID:    order.ID,
		UserID:     order.UserID,
		UserEmail:  id.Email,
		TotalPrice: order.TotalPrice,
		Items:      eventItems,
	}

	if err := s.publisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
