package store

import (
	"context"
	"database/sql"
	"fmt"

	"shop-order-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateOrderTx persists a new order, its frozen line items and the initial
// status-history row, decrements stock/sold for every item and clears the
// cart, all inside a single transaction. A guarded decrement that matches no
// rows aborts the whole transaction with a StockConflictError, so order rows
// and catalog counters can never drift apart.
func (s *Store) CreateOrderTx(ctx context.Context, order *models.Order, items []models.OrderItem, cartID int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders (
			user_id, status, shipping_address,
			items_price, shipping_price, tax_price, total_price,
			is_cod, gateway_order_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	row := tx.QueryRowxContext(ctx, query,
		order.UserID, order.Status, order.ShippingAddress,
		order.ItemsPrice, order.ShippingPrice, order.TaxPrice, order.TotalPrice,
		order.IsCOD, order.GatewayOrderID)
	if err := row.Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	itemQuery := `
		INSERT INTO order_items (order_id, product_id, name, image_url, unit_price, quantity)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	for i := range items {
		items[i].OrderID = order.ID
		if err := tx.GetContext(ctx, &items[i].ID, itemQuery,
			order.ID, items[i].ProductID, items[i].Name, items[i].ImageURL,
			items[i].UnitPrice, items[i].Quantity); err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}

		if err := adjustStockTx(ctx, tx, items[i].ProductID, -items[i].Quantity); err != nil {
			return err
		}
	}

	if err := appendStatusTx(ctx, tx, order.ID, order.Status, "order placed"); err != nil {
		return err
	}

	if cartID != 0 {
		if _, err := tx.ExecContext(ctx, "DELETE FROM cart_items WHERE cart_id = $1", cartID); err != nil {
			return fmt.Errorf("failed to clear cart: %w", err)
		}
	}

	return tx.Commit()
}

// CancelOrderTx moves an order to cancelled and restores stock/sold for every
// line item, the exact inverse of the creation-time mutation. The status guard
// runs inside the transaction so a concurrent ship/deliver cannot race past it.
func (s *Store) CancelOrderTx(ctx context.Context, orderID int64, note string) (*models.Order, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var order models.Order
	err = tx.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1 FOR UPDATE", orderID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if !models.Cancellable(order.Status) {
		return &order, &InvalidTransitionError{OrderID: orderID, Status: order.Status}
	}

	var items []models.OrderItem
	if err := tx.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1", orderID); err != nil {
		return nil, err
	}

	for _, item := range items {
		if err := adjustStockTx(ctx, tx, item.ProductID, item.Quantity); err != nil {
			return nil, err
		}
	}

	if err := tx.GetContext(ctx, &order,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 RETURNING *",
		models.OrderStatusCancelled, orderID); err != nil {
		return nil, fmt.Errorf("failed to cancel order: %w", err)
	}

	if err := appendStatusTx(ctx, tx, orderID, models.OrderStatusCancelled, note); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &order, nil
}

// SetOrderStatusTx updates the status and appends a history row atomically.
func (s *Store) SetOrderStatusTx(ctx context.Context, orderID int64, status, note string) (*models.Order, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var order models.Order
	err = tx.GetContext(ctx, &order,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 RETURNING *",
		status, orderID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if err := appendStatusTx(ctx, tx, orderID, status, note); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &order, nil
}

// MarkOrderPaidTx marks an order paid and confirmed. The is_paid guard makes
// redelivered confirmations no-ops: the first delivery wins, later ones
// return updated=false without touching the row.
func (s *Store) MarkOrderPaidTx(ctx context.Context, orderID int64, paymentID, signature string) (bool, error) {
	query := `
		UPDATE orders
		SET is_paid = TRUE,
		    paid_at = NOW(),
		    status = $1,
		    gateway_payment_id = CASE WHEN $2 <> '' THEN $2 ELSE gateway_payment_id END,
		    gateway_signature = CASE WHEN $3 <> '' THEN $3 ELSE gateway_signature END,
		    updated_at = NOW()
		WHERE id = $4 AND is_paid = FALSE
		RETURNING id`

	return s.markPaid(ctx, query, models.OrderStatusConfirmed, paymentID, signature, orderID)
}

// MarkOrderPaidByGatewayOrderTx is the webhook-side variant keyed by the
// gateway's own order id.
func (s *Store) MarkOrderPaidByGatewayOrderTx(ctx context.Context, gatewayOrderID, paymentID string) (bool, error) {
	query := `
		UPDATE orders
		SET is_paid = TRUE,
		    paid_at = NOW(),
		    status = $1,
		    gateway_payment_id = CASE WHEN $2 <> '' THEN $2 ELSE gateway_payment_id END,
		    gateway_signature = CASE WHEN $3 <> '' THEN $3 ELSE gateway_signature END,
		    updated_at = NOW()
		WHERE gateway_order_id = $4 AND is_paid = FALSE
		RETURNING id`

	return s.markPaid(ctx, query, models.OrderStatusConfirmed, paymentID, "", gatewayOrderID)
}

func (s *Store) markPaid(ctx context.Context, query string, args ...interface{}) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var orderID int64
	err = tx.GetContext(ctx, &orderID, query, args...)
	if err == sql.ErrNoRows {
		// Already paid or no such order: a no-op either way.
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := appendStatusTx(ctx, tx, orderID, models.OrderStatusConfirmed, "payment confirmed"); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// MarkOrderPaymentFailedByGatewayOrder flags a failed payment without touching
// is_paid, so an already-captured payment is never demoted.
func (s *Store) MarkOrderPaymentFailedByGatewayOrder(ctx context.Context, gatewayOrderID, note string) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var orderID int64
	err = tx.GetContext(ctx, &orderID,
		`UPDATE orders SET status = $1, updated_at = NOW()
		 WHERE gateway_order_id = $2 AND is_paid = FALSE
		 RETURNING id`,
		models.OrderStatusPaymentFailed, gatewayOrderID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := appendStatusTx(ctx, tx, orderID, models.OrderStatusPaymentFailed, note); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// MarkOrderDeliveredTx sets the delivered flags and appends a history row.
func (s *Store) MarkOrderDeliveredTx(ctx context.Context, orderID int64, note string) (*models.Order, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var order models.Order
	err = tx.GetContext(ctx, &order,
		`UPDATE orders
		 SET status = $1, is_delivered = TRUE, delivered_at = NOW(), updated_at = NOW()
		 WHERE id = $2
		 RETURNING *`,
		models.OrderStatusDelivered, orderID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if err := appendStatusTx(ctx, tx, orderID, models.OrderStatusDelivered, note); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &order, nil
}

// SetOrderGatewayOrderID attaches the remote payment intent to an order.
func (s *Store) SetOrderGatewayOrderID(ctx context.Context, orderID int64, gatewayOrderID string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET gateway_order_id = $1, updated_at = NOW() WHERE id = $2",
		gatewayOrderID, orderID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
	return nil
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByGatewayOrderID retrieves an order by the gateway's order id.
func (s *Store) GetOrderByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE gateway_order_id = $1", gatewayOrderID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("gateway order %s: %w", gatewayOrderID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// GetOrderStatusHistory retrieves the append-only status log for an order.
func (s *Store) GetOrderStatusHistory(ctx context.Context, orderID int64) ([]models.OrderStatusEntry, error) {
	var entries []models.OrderStatusEntry
	err := s.db.SelectContext(ctx, &entries,
		"SELECT * FROM order_status_history WHERE order_id = $1 ORDER BY id", orderID)
	return entries, err
}

// GetOrdersByUserID retrieves a page of a user's orders, optionally filtered
// by status.
func (s *Store) GetOrdersByUserID(ctx context.Context, userID int64, status string, limit, offset int) ([]models.Order, error) {
	var orders []models.Order
	if status != "" {
		err := s.db.SelectContext(ctx, &orders,
			`SELECT * FROM orders WHERE user_id = $1 AND status = $2
			 ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
			userID, status, limit, offset)
		return orders, err
	}
	err := s.db.SelectContext(ctx, &orders,
		`SELECT * FROM orders WHERE user_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	return orders, err
}

// CountOrdersByUserID returns the total order count behind a paginated listing.
func (s *Store) CountOrdersByUserID(ctx context.Context, userID int64, status string) (int, error) {
	var total int
	if status != "" {
		err := s.db.GetContext(ctx, &total,
			"SELECT COUNT(*) FROM orders WHERE user_id = $1 AND status = $2", userID, status)
		return total, err
	}
	err := s.db.GetContext(ctx, &total,
		"SELECT COUNT(*) FROM orders WHERE user_id = $1", userID)
	return total, err
}

func appendStatusTx(ctx context.Context, tx *sqlx.Tx, orderID int64, status, note string) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO order_status_history (order_id, status, note) VALUES ($1, $2, $3)",
		orderID, status, note)
	if err != nil {
		return fmt.Errorf("failed to append status history: %w", err)
	}
	return nil
}
