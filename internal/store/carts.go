package store

import (
	"context"
	"database/sql"
	"fmt"

	"shop-order-service/internal/models"

	"github.com/shopspring/decimal"
)

// GetOrCreateCart returns the user's cart, creating an empty one if needed.
func (s *Store) GetOrCreateCart(ctx context.Context, userID int64) (*models.Cart, error) {
	var cart models.Cart
	err := s.db.GetContext(ctx, &cart, "SELECT * FROM carts WHERE user_id = $1", userID)
	if err == nil {
		return &cart, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	query := `
		INSERT INTO carts (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO UPDATE SET updated_at = NOW()
		RETURNING id, user_id, created_at, updated_at`

	if err := s.db.GetContext(ctx, &cart, query, userID); err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
	return &cart, nil
}

// GetCartItems retrieves all line items of a cart.
func (s *Store) GetCartItems(ctx context.Context, cartID int64) ([]models.CartItem, error) {
	var items []models.CartItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM cart_items WHERE cart_id = $1 ORDER BY id", cartID)
	return items, err
}

// UpsertCartItem adds quantity to an existing line item or inserts a new one.
// At most one line item per product is kept per cart.
func (s *Store) UpsertCartItem(ctx context.Context, cartID, productID int64, quantity int, price decimal.Decimal) (*models.CartItem, error) {
	query := `
		INSERT INTO cart_items (cart_id, product_id, quantity, price)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, price = EXCLUDED.price
		RETURNING id, cart_id, product_id, quantity, price`

	var item models.CartItem
	if err := s.db.GetContext(ctx, &item, query, cartID, productID, quantity, price); err != nil {
		return nil, fmt.Errorf("failed to upsert cart item: %w", err)
	}
	return &item, nil
}

// SetCartItemQuantity overwrites the quantity and refreshes the price snapshot.
func (s *Store) SetCartItemQuantity(ctx context.Context, cartID, itemID int64, quantity int, price decimal.Decimal) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE cart_items SET quantity = $1, price = $2 WHERE id = $3 AND cart_id = $4",
		quantity, price, itemID, cartID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("cart item %d: %w", itemID, ErrNotFound)
	}
	return nil
}

// RemoveCartItem deletes one line item from a cart.
func (s *Store) RemoveCartItem(ctx context.Context, cartID, itemID int64) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM cart_items WHERE id = $1 AND cart_id = $2", itemID, cartID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("cart item %d: %w", itemID, ErrNotFound)
	}
	return nil
}

// ClearCart empties a cart without deleting it.
func (s *Store) ClearCart(ctx context.Context, cartID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM cart_items WHERE cart_id = $1", cartID)
	return err
}
