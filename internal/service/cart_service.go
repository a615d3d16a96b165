package service

import (
	"context"
	"fmt"

	"shop-order-service/internal/models"
	"shop-order-service/internal/store"
	"shop-order-service/internal/util"

	"go.uber.org/zap"
)

// CartService handles the per-user cart.
type CartService struct {
	store  Store
	logger *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(store Store) *CartService {
	return &CartService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// CartView is a cart with its line items.
type CartView struct {
	Cart  *models.Cart      `json:"cart"`
	Items []models.CartItem `json:"items"`
}

// Get returns the user's cart, creating an empty one on first access.
func (cs *CartService) Get(ctx context.Context, userID int64) (*CartView, error) {
	cart, err := cs.store.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	items, err := cs.store.GetCartItems(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	return &CartView{Cart: cart, Items: items}, nil
}

// AddItem puts quantity units of a product into the cart. The cart keeps at
// most one line item per product; repeated adds accumulate.
func (cs *CartService) AddItem(ctx context.Context, userID, productID int64, quantity int) (*CartView, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("quantity must be at least 1")
	}

	product, err := cs.store.GetProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.IsActive {
		return nil, &ProductUnavailableError{ProductID: productID, Name: product.Name}
	}

	cart, err := cs.store.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	current := 0
	items, err := cs.store.GetCartItems(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if item.ProductID == productID {
			current = item.Quantity
			break
		}
	}

	if current+quantity > product.Stock {
		return nil, &InsufficientStockError{
			ProductID: productID,
			Name:      product.Name,
			Requested: current + quantity,
			Available: product.Stock,
		}
	}

	if _, err := cs.store.UpsertCartItem(ctx, cart.ID, productID, quantity, product.FinalPrice()); err != nil {
		return nil, err
	}

	cs.logger.Info("Item added to cart",
		zap.Int64("user_id", userID),
		zap.Int64("product_id", productID),
		zap.Int("quantity", quantity))

	return cs.Get(ctx, userID)
}

// UpdateItem overwrites a line item's quantity and refreshes its price
// snapshot from the live catalog.
func (cs *CartService) UpdateItem(ctx context.Context, userID, itemID int64, quantity int) (*CartView, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("quantity must be at least 1")
	}

	cart, err := cs.store.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	items, err := cs.store.GetCartItems(ctx, cart.ID)
	if err != nil {
		return nil, err
	}

	var target *models.CartItem
	for i := range items {
		if items[i].ID == itemID {
			target = &items[i]
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("cart item %d: %w", itemID, store.ErrNotFound)
	}

	product, err := cs.store.GetProductByID(ctx, target.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.IsActive {
		return nil, &ProductUnavailableError{ProductID: product.ID, Name: product.Name}
	}
	if quantity > product.Stock {
		return nil, &InsufficientStockError{
			ProductID: product.ID,
			Name:      product.Name,
			Requested: quantity,
			Available: product.Stock,
		}
	}

	if err := cs.store.SetCartItemQuantity(ctx, cart.ID, itemID, quantity, product.FinalPrice()); err != nil {
		return nil, err
	}

	return cs.Get(ctx, userID)
}

// RemoveItem deletes one line item.
func (cs *CartService) RemoveItem(ctx context.Context, userID, itemID int64) (*CartView, error) {
	cart, err := cs.store.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := cs.store.RemoveCartItem(ctx, cart.ID, itemID); err != nil {
		return nil, err
	}
	return cs.Get(ctx, userID)
}

// Clear empties the cart without deleting it.
func (cs *CartService) Clear(ctx context.Context, userID int64) error {
	cart, err := cs.store.GetOrCreateCart(ctx, userID)
	if err != nil {
		return err
	}
	return cs.store.ClearCart(ctx, cart.ID)
}
