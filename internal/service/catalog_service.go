package service

import (
	"context"

	"shop-order-service/internal/models"
	"shop-order-service/internal/util"

	"go.uber.org/zap"
)

// CatalogService exposes the product catalog and the admin stock override.
type CatalogService struct {
	store  Store
	cache  StockCache
	logger *zap.Logger
}

// NewCatalogService creates a new catalog service. cache may be nil.
func NewCatalogService(store Store, cache StockCache) *CatalogService {
	return &CatalogService{
		store:  store,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// List returns all active products.
func (cs *CatalogService) List(ctx context.Context) ([]models.Product, error) {
	return cs.store.GetProducts(ctx)
}

// Get returns one product.
func (cs *CatalogService) Get(ctx context.Context, productID int64) (*models.Product, error) {
	return cs.store.GetProductByID(ctx, productID)
}

// SetStock overwrites a product's stock count and refreshes the cached
// mirror. Admin only; restocks and manual corrections go through here.
func (cs *CatalogService) SetStock(ctx context.Context, id Identity, productID int64, stock int) (*models.Product, error) {
	if !id.IsAdmin() {
		return nil, ErrForbidden
	}

	if err := cs.store.SetProductStock(ctx, productID, stock); err != nil {
		return nil, err
	}

	if cs.cache != nil {
		if err := cs.cache.SetStock(ctx, productID, stock); err != nil {
			cs.logger.Error("Failed to refresh cached stock",
				zap.Int64("product_id", productID),
				zap.Error(err))
		}
	}

	cs.logger.Info("Product stock adjusted",
		zap.Int64("product_id", productID),
		zap.Int("stock", stock))

	return cs.store.GetProductByID(ctx, productID)
}
