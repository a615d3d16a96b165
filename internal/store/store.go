package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"shop-order-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// StockConflictError is returned when a guarded stock decrement matches no
// rows, meaning available stock dropped below the requested quantity.
// Available carries the count observed after the conflict.
type StockConflictError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *StockConflictError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// InvalidTransitionError is returned when a status change is not permitted
// from the order's current status.
type InvalidTransitionError struct {
	OrderID int64
	Status  string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %d is %s and cannot be cancelled", e.OrderID, e.Status)
}

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductsByIDs retrieves multiple products by IDs
func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM products WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var products []models.Product
	err = s.db.SelectContext(ctx, &products, query, args...)
	return products, err
}

// GetProducts retrieves all active products
func (s *Store) GetProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products, "SELECT * FROM products WHERE is_active = TRUE ORDER BY id")
	return products, err
}

// SetProductStock overwrites a product's stock count, for admin restocks and
// manual corrections. Sold is untouched.
func (s *Store) SetProductStock(ctx context.Context, productID int64, stock int) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE products SET stock = $1, updated_at = NOW() WHERE id = $2",
		stock, productID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("product %d: %w", productID, ErrNotFound)
	}
	return nil
}

// adjustStockTx applies a guarded signed increment to stock/sold inside an
// existing transaction. delta < 0 reserves stock, delta > 0 restores it.
func adjustStockTx(ctx context.Context, tx *sqlx.Tx, productID int64, delta int) error {
	if delta < 0 {
		res, err := tx.ExecContext(ctx,
			`UPDATE products
			 SET stock = stock + $1, sold = sold - $1, updated_at = NOW()
			 WHERE id = $2 AND stock >= -$1`,
			delta, productID)
		if err != nil {
			return fmt.Errorf("failed to decrement stock: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			var available int
			if err := tx.GetContext(ctx, &available,
				"SELECT stock FROM products WHERE id = $1", productID); err != nil {
				available = 0
			}
			return &StockConflictError{ProductID: productID, Requested: -delta, Available: available}
		}
		return nil
	}

	_, err := tx.ExecContext(ctx,
		`UPDATE products
		 SET stock = stock + $1, sold = sold - $1, updated_at = NOW()
		 WHERE id = $2`,
		delta, productID)
	if err != nil {
		return fmt.Errorf("failed to restore stock: %w", err)
	}
	return nil
}
