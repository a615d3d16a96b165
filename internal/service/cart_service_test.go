package service

import (
	"context"
	"testing"

	"shop-order-service/internal/models"
	"shop-order-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCartAddItemAccumulates(t *testing.T) {
	fs := newFakeStore()
	product := fs.addProduct(models.Product{Name: "Widget", Price: dec("10.00"), Stock: 5})
	svc := NewCartService(fs)

	view, err := svc.AddItem(context.Background(), 1, product.ID, 2)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 2, view.Items[0].Quantity)

	// Same product again: one line item, quantities summed.
	view, err = svc.AddItem(context.Background(), 1, product.ID, 1)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 3, view.Items[0].Quantity)
}

func TestCartAddItemStockCeiling(t *testing.T) {
	fs := newFakeStore()
	product := fs.addProduct(models.Product{Name: "Widget", Price: dec("10.00"), Stock: 3})
	svc := NewCartService(fs)

	_, err := svc.AddItem(context.Background(), 1, product.ID, 2)
	require.NoError(t, err)

	// 2 already in cart, 2 more would exceed stock of 3.
	_, err = svc.AddItem(context.Background(), 1, product.ID, 2)
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 4, stockErr.Requested)
	assert.Equal(t, 3, stockErr.Available)
}

func TestCartAddItemInactiveProduct(t *testing.T) {
	fs := newFakeStore()
	product := fs.addProduct(models.Product{Name: "Retired", Price: dec("10.00"), Stock: 5})
	fs.products[product.ID].IsActive = false
	svc := NewCartService(fs)

	_, err := svc.AddItem(context.Background(), 1, product.ID, 1)
	var unavailable *ProductUnavailableError
	assert.ErrorAs(t, err, &unavailable)
}

func TestCartAddItemSnapshotsDiscountPrice(t *testing.T) {
	fs := newFakeStore()
	product := fs.addProduct(models.Product{Name: "Widget", Price: dec("15.00"), Stock: 5})
	fs.products[product.ID].DiscountPrice = decimal.NewNullDecimal(dec("8.00"))
	svc := NewCartService(fs)

	view, err := svc.AddItem(context.Background(), 1, product.ID, 1)
	require.NoError(t, err)
	assert.True(t, view.Items[0].Price.Equal(dec("8.00")))
}

func TestCartUpdateItem(t *testing.T) {
	fs := newFakeStore()
	product := fs.addProduct(models.Product{Name: "Widget", Price: dec("10.00"), Stock: 5})
	svc := NewCartService(fs)

	view, err := svc.AddItem(context.Background(), 1, product.ID, 1)
	require.NoError(t, err)
	itemID := view.Items[0].ID

	view, err = svc.UpdateItem(context.Background(), 1, itemID, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, view.Items[0].Quantity)

	// Beyond stock fails.
	_, err = svc.UpdateItem(context.Background(), 1, itemID, 6)
	var stockErr *InsufficientStockError
	assert.ErrorAs(t, err, &stockErr)

	// Unknown item id maps to not-found.
	_, err = svc.UpdateItem(context.Background(), 1, 9999, 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCartRemoveAndClear(t *testing.T) {
	fs := newFakeStore()
	a := fs.addProduct(models.Product{Name: "A", Price: dec("10.00"), Stock: 5})
	b := fs.addProduct(models.Product{Name: "B", Price: dec("5.00"), Stock: 5})
	svc := NewCartService(fs)

	_, err := svc.AddItem(context.Background(), 1, a.ID, 1)
	require.NoError(t, err)
	view, err := svc.AddItem(context.Background(), 1, b.ID, 1)
	require.NoError(t, err)
	require.Len(t, view.Items, 2)

	view, err = svc.RemoveItem(context.Background(), 1, view.Items[0].ID)
	require.NoError(t, err)
	assert.Len(t, view.Items, 1)

	require.NoError(t, svc.Clear(context.Background(), 1))
	view, err = svc.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, view.Items)
}
