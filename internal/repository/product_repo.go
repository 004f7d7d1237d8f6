package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/Josef-Cakes/IndustryE/internal/interfaces"
	"github.com/Josef-Cakes/IndustryE/internal/models"
)

const productColumns = `id, name, category, price_cents, size_inventory, version, created_at, updated_at`

// ProductRepository handles database operations for products and their size inventory
type ProductRepository struct {
	db *sqlx.DB
}

// NewProductRepository creates a new product repository
func NewProductRepository(db *sqlx.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// GetProduct retrieves a product by ID
func (r *ProductRepository) GetProduct(ctx context.Context, productID int64) (*models.Product, error) {
	var product models.Product
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	err := r.db.GetContext(ctx, &product, query, productID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		log.Error().Err(err).Int64("product_id", productID).Msg("Failed to get product")
		return nil, models.NewSystemError(models.ErrorCodeDatabaseError, "product_repository", "failed to get product", err)
	}

	return &product, nil
}

// ProductExists reports whether the product row exists
func (r *ProductRepository) ProductExists(ctx context.Context, productID int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)`, productID)
	if err != nil {
		return false, models.NewSystemError(models.ErrorCodeDatabaseError, "product_repository", "failed to check product", err)
	}
	return exists, nil
}

// ListProducts returns every product ordered by ID
func (r *ProductRepository) ListProducts(ctx context.Context) ([]models.Product, error) {
	products := []models.Product{}
	query := `SELECT ` + productColumns + ` FROM products ORDER BY id ASC`

	if err := r.db.SelectContext(ctx, &products, query); err != nil {
		log.Error().Err(err).Msg("Failed to list products")
		return nil, models.NewSystemError(models.ErrorCodeDatabaseError, "product_repository", "failed to list products", err)
	}
	return products, nil
}

// CreateProduct inserts the product and its creation event in one transaction
func (r *ProductRepository) CreateProduct(ctx context.Context, product *models.Product, event *models.InventoryEvent) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.NewSystemError(models.ErrorCodeDatabaseError, "product_repository", "failed to begin transaction", err)
	}
	defer rollback(tx)

	query := `INSERT INTO products (name, category, price_cents, size_inventory, version, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, 1, NOW(), NOW())
			  RETURNING id, version, created_at, updated_at`

	err = tx.QueryRowxContext(ctx, query, product.Name, product.Category, product.PriceCents, product.SizeInventory).
		Scan(&product.ID, &product.Version, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		log.Error().Err(err).Str("name", product.Name).Msg("Failed to create product")
		return models.NewSystemError(models.ErrorCodeDatabaseError, "product_repository", "failed to create product", err)
	}

	if event != nil {
		event.ProductID = product.ID
		event.Version = product.Version
		if err := insertOutboxEvent(ctx, tx, event); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return models.NewSystemError(models.ErrorCodeDatabaseError, "product_repository", "failed to commit transaction", err)
	}
	return nil
}

// DeleteProduct removes the product, and with it the inventory it owns
func (r *ProductRepository) DeleteProduct(ctx context.Context, productID int64, event *models.InventoryEvent) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, models.NewSystemError(models.ErrorCodeDatabaseError, "product_repository", "failed to begin transaction", err)
	}
	defer rollback(tx)

	result, err := tx.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	if err != nil {
		log.Error().Err(err).Int64("product_id", productID).Msg("Failed to delete product")
		return false, models.NewSystemError(models.ErrorCodeDatabaseError, "product_repository", "failed to delete product", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return false, nil
	}

	if event != nil {
		event.ProductID = productID
		if err := insertOutboxEvent(ctx, tx, event); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, models.NewSystemError(models.ErrorCodeDatabaseError, "product_repository", "failed to commit transaction", err)
	}
	return true, nil
}

// MutateProduct locks the product row with SELECT ... FOR UPDATE, applies fn and
// writes the new inventory blob guarded by the version it read. Every call is its
// own transaction.
func (r *ProductRepository) MutateProduct(ctx context.Context, productID int64, fn interfaces.ProductMutation) (*models.Product, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to begin transaction")
		return nil, models.NewSystemError(models.ErrorCodeDatabaseError, "product_repository", "failed to begin transaction", err)
	}
	defer rollback(tx)

	var product models.Product
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &product, query, productID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.NewNotFoundError(models.ResourceProduct, strconv.FormatInt(productID, 10))
		}
		log.Error().Err(err).Int64("product_id", productID).Msg("Failed to get product for update")
		return nil, models.NewSystemError(models.ErrorCodeDatabaseError, "product_repository", "failed to lock product", err)
	}

	event, err := fn(&product)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return &product, nil
	}

	update := `UPDATE products
			   SET size_inventory = $2, version = version + 1, updated_at = NOW()
			   WHERE id = $1 AND version = $3`

	result, err := tx.ExecContext(ctx, update, product.ID, product.SizeInventory, product.Version)
	if err != nil {
		log.Error().Err(err).Int64("product_id", productID).Msg("Failed to update size inventory")
		return nil, models.NewSystemError(models.ErrorCodeDatabaseError, "product_repository", "failed to update size inventory", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return nil, models.NewConflictError(models.ResourceProduct, "optimistic lock failed: product version mismatch")
	}

	product.Version++
	product.UpdatedAt = time.Now().UTC()
	event.ProductID = product.ID
	event.Version = product.Version

	if err := insertOutboxEvent(ctx, tx, event); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, models.NewSystemError(models.ErrorCodeDatabaseError, "product_repository", "failed to commit transaction", err)
	}

	return &product, nil
}

func rollback(tx *sqlx.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		log.Error().Err(err).Msg("Failed to rollback transaction")
	}
}
