package service

import (
	"context"
	"testing"

	"shop-order-service/internal/models"
	"shop-order-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogListActiveOnly(t *testing.T) {
	fs := newFakeStore()
	fs.addProduct(models.Product{Name: "Live", Price: dec("10.00"), Stock: 5})
	retired := fs.addProduct(models.Product{Name: "Retired", Price: dec("10.00"), Stock: 5})
	fs.products[retired.ID].IsActive = false

	svc := NewCatalogService(fs, nil)
	products, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Live", products[0].Name)
}

func TestCatalogSetStock(t *testing.T) {
	fs := newFakeStore()
	product := fs.addProduct(models.Product{Name: "Widget", Price: dec("10.00"), Stock: 5})
	cache := &fakeCache{stock: map[int64]int{product.ID: 5}}

	svc := NewCatalogService(fs, cache)
	updated, err := svc.SetStock(context.Background(), Identity{UserID: 1, Role: "admin"}, product.ID, 20)
	require.NoError(t, err)

	assert.Equal(t, 20, updated.Stock)
	// Cache mirror refreshed alongside the catalog row.
	assert.Equal(t, 20, cache.stock[product.ID])
}

func TestCatalogSetStockAdminOnly(t *testing.T) {
	fs := newFakeStore()
	product := fs.addProduct(models.Product{Name: "Widget", Price: dec("10.00"), Stock: 5})

	svc := NewCatalogService(fs, nil)
	_, err := svc.SetStock(context.Background(), Identity{UserID: 1}, product.ID, 20)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, 5, fs.products[product.ID].Stock)
}

func TestCatalogSetStockUnknownProduct(t *testing.T) {
	svc := NewCatalogService(newFakeStore(), nil)
	_, err := svc.SetStock(context.Background(), Identity{UserID: 1, Role: "admin"}, 9999, 20)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
