package service

import (
	"context"
	"fmt"
	"time"

	"shop-order-service/internal/models"
	"shop-order-service/internal/store"

	"github.com/shopspring/decimal"
)

// fakeStore is an in-memory Store for service tests. It mirrors the
// transactional guarantees of the real store: order creation validates every
// stock decrement before applying anything.
type fakeStore struct {
	products   map[int64]*models.Product
	carts      map[int64]*models.Cart
	cartItems  map[int64][]models.CartItem
	orders     map[int64]*models.Order
	orderItems map[int64][]models.OrderItem
	history    map[int64][]models.OrderStatusEntry
	nextID     int64

	// beforeCreateOrder, when set, runs at the top of CreateOrderTx so
	// tests can interleave a concurrent stock change.
	beforeCreateOrder func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		products:   make(map[int64]*models.Product),
		carts:      make(map[int64]*models.Cart),
		cartItems:  make(map[int64][]models.CartItem),
		orders:     make(map[int64]*models.Order),
		orderItems: make(map[int64][]models.OrderItem),
		history:    make(map[int64][]models.OrderStatusEntry),
	}
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) addProduct(p models.Product) *models.Product {
	if p.ID == 0 {
		p.ID = f.id()
	}
	p.IsActive = true
	f.products[p.ID] = &p
	return &p
}

func (f *fakeStore) seedCart(userID int64, items ...models.CartItem) *models.Cart {
	cart := &models.Cart{ID: f.id(), UserID: userID}
	f.carts[userID] = cart
	for i := range items {
		items[i].ID = f.id()
		items[i].CartID = cart.ID
	}
	f.cartItems[cart.ID] = items
	return cart
}

func (f *fakeStore) GetProductByID(_ context.Context, id int64) (*models.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, store.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) GetProducts(_ context.Context) ([]models.Product, error) {
	var out []models.Product
	for _, p := range f.products {
		if p.IsActive {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeStore) SetProductStock(_ context.Context, productID int64, stock int) error {
	p, ok := f.products[productID]
	if !ok {
		return fmt.Errorf("product %d: %w", productID, store.ErrNotFound)
	}
	p.Stock = stock
	return nil
}

func (f *fakeStore) GetProductsByIDs(_ context.Context, ids []int64) ([]models.Product, error) {
	var out []models.Product
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeStore) GetOrCreateCart(_ context.Context, userID int64) (*models.Cart, error) {
	if cart, ok := f.carts[userID]; ok {
		return cart, nil
	}
	cart := &models.Cart{ID: f.id(), UserID: userID}
	f.carts[userID] = cart
	return cart, nil
}

func (f *fakeStore) GetCartItems(_ context.Context, cartID int64) ([]models.CartItem, error) {
	return append([]models.CartItem(nil), f.cartItems[cartID]...), nil
}

func (f *fakeStore) UpsertCartItem(_ context.Context, cartID, productID int64, quantity int, price decimal.Decimal) (*models.CartItem, error) {
	items := f.cartItems[cartID]
	for i := range items {
		if items[i].ProductID == productID {
			items[i].Quantity += quantity
			items[i].Price = price
			return &items[i], nil
		}
	}
	item := models.CartItem{ID: f.id(), CartID: cartID, ProductID: productID, Quantity: quantity, Price: price}
	f.cartItems[cartID] = append(items, item)
	return &item, nil
}

func (f *fakeStore) SetCartItemQuantity(_ context.Context, cartID, itemID int64, quantity int, price decimal.Decimal) error {
	items := f.cartItems[cartID]
	for i := range items {
		if items[i].ID == itemID {
			items[i].Quantity = quantity
			items[i].Price = price
			return nil
		}
	}
	return fmt.Errorf("cart item %d: %w", itemID, store.ErrNotFound)
}

func (f *fakeStore) RemoveCartItem(_ context.Context, cartID, itemID int64) error {
	items := f.cartItems[cartID]
	for i := range items {
		if items[i].ID == itemID {
			f.cartItems[cartID] = append(items[:i], items[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("cart item %d: %w", itemID, store.ErrNotFound)
}

func (f *fakeStore) ClearCart(_ context.Context, cartID int64) error {
	f.cartItems[cartID] = nil
	return nil
}

func (f *fakeStore) CreateOrderTx(_ context.Context, order *models.Order, items []models.OrderItem, cartID int64) error {
	if f.beforeCreateOrder != nil {
		f.beforeCreateOrder()
	}

	// Validate every decrement before applying any, like the real
	// transaction's all-or-nothing behavior.
	for _, item := range items {
		p, ok := f.products[item.ProductID]
		if !ok || p.Stock < item.Quantity {
			available := 0
			if ok {
				available = p.Stock
			}
			return &store.StockConflictError{
				ProductID: item.ProductID,
				Requested: item.Quantity,
				Available: available,
			}
		}
	}

	order.ID = f.id()
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	f.orders[order.ID] = order

	for i := range items {
		items[i].ID = f.id()
		items[i].OrderID = order.ID
		p := f.products[items[i].ProductID]
		p.Stock -= items[i].Quantity
		p.Sold += items[i].Quantity
	}
	f.orderItems[order.ID] = append([]models.OrderItem(nil), items...)

	f.appendHistory(order.ID, order.Status, "order placed")
	f.cartItems[cartID] = nil
	return nil
}

func (f *fakeStore) CancelOrderTx(_ context.Context, orderID int64, note string) (*models.Order, error) {
	order, ok := f.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", orderID, store.ErrNotFound)
	}
	if !models.Cancellable(order.Status) {
		return order, &store.InvalidTransitionError{OrderID: orderID, Status: order.Status}
	}

	for _, item := range f.orderItems[orderID] {
		p := f.products[item.ProductID]
		p.Stock += item.Quantity
		p.Sold -= item.Quantity
	}

	order.Status = models.OrderStatusCancelled
	f.appendHistory(orderID, order.Status, note)
	return order, nil
}

func (f *fakeStore) SetOrderStatusTx(_ context.Context, orderID int64, status, note string) (*models.Order, error) {
	order, ok := f.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", orderID, store.ErrNotFound)
	}
	order.Status = status
	f.appendHistory(orderID, status, note)
	return order, nil
}

func (f *fakeStore) MarkOrderPaidTx(_ context.Context, orderID int64, paymentID, signature string) (bool, error) {
	order, ok := f.orders[orderID]
	if !ok || order.IsPaid {
		return false, nil
	}
	f.markPaid(order, paymentID, signature)
	return true, nil
}

func (f *fakeStore) MarkOrderPaidByGatewayOrderTx(_ context.Context, gatewayOrderID, paymentID string) (bool, error) {
	for _, order := range f.orders {
		if order.GatewayOrderID == gatewayOrderID {
			if order.IsPaid {
				return false, nil
			}
			f.markPaid(order, paymentID, "")
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) markPaid(order *models.Order, paymentID, signature string) {
	now := time.Now()
	order.IsPaid = true
	order.PaidAt = &now
	order.Status = models.OrderStatusConfirmed
	if paymentID != "" {
		order.GatewayPaymentID = paymentID
	}
	if signature != "" {
		order.GatewaySignature = signature
	}
	f.appendHistory(order.ID, order.Status, "payment confirmed")
}

func (f *fakeStore) MarkOrderPaymentFailedByGatewayOrder(_ context.Context, gatewayOrderID, note string) (bool, error) {
	for _, order := range f.orders {
		if order.GatewayOrderID == gatewayOrderID && !order.IsPaid {
			order.Status = models.OrderStatusPaymentFailed
			f.appendHistory(order.ID, order.Status, note)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) MarkOrderDeliveredTx(_ context.Context, orderID int64, note string) (*models.Order, error) {
	order, ok := f.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", orderID, store.ErrNotFound)
	}
	now := time.Now()
	order.Status = models.OrderStatusDelivered
	order.IsDelivered = true
	order.DeliveredAt = &now
	f.appendHistory(orderID, order.Status, note)
	return order, nil
}

func (f *fakeStore) SetOrderGatewayOrderID(_ context.Context, orderID int64, gatewayOrderID string) error {
	order, ok := f.orders[orderID]
	if !ok {
		return fmt.Errorf("order %d: %w", orderID, store.ErrNotFound)
	}
	order.GatewayOrderID = gatewayOrderID
	return nil
}

func (f *fakeStore) GetOrderByID(_ context.Context, id int64) (*models.Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, store.ErrNotFound)
	}
	return order, nil
}

func (f *fakeStore) GetOrderByGatewayOrderID(_ context.Context, gatewayOrderID string) (*models.Order, error) {
	for _, order := range f.orders {
		if order.GatewayOrderID == gatewayOrderID {
			return order, nil
		}
	}
	return nil, fmt.Errorf("gateway order %s: %w", gatewayOrderID, store.ErrNotFound)
}

func (f *fakeStore) GetOrderItemsByOrderID(_ context.Context, orderID int64) ([]models.OrderItem, error) {
	return append([]models.OrderItem(nil), f.orderItems[orderID]...), nil
}

func (f *fakeStore) GetOrderStatusHistory(_ context.Context, orderID int64) ([]models.OrderStatusEntry, error) {
	return append([]models.OrderStatusEntry(nil), f.history[orderID]...), nil
}

func (f *fakeStore) GetOrdersByUserID(_ context.Context, userID int64, status string, limit, offset int) ([]models.Order, error) {
	var out []models.Order
	for _, order := range f.orders {
		if order.UserID == userID && (status == "" || order.Status == status) {
			out = append(out, *order)
		}
	}
	return out, nil
}

func (f *fakeStore) CountOrdersByUserID(_ context.Context, userID int64, status string) (int, error) {
	orders, _ := f.GetOrdersByUserID(context.Background(), userID, status, 0, 0)
	return len(orders), nil
}

func (f *fakeStore) appendHistory(orderID int64, status, note string) {
	f.history[orderID] = append(f.history[orderID], models.OrderStatusEntry{
		ID:        f.id(),
		OrderID:   orderID,
		Status:    status,
		Note:      note,
		CreatedAt: time.Now(),
	})
}
