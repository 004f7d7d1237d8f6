package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/Josef-Cakes/IndustryE/internal/interfaces"
	"github.com/Josef-Cakes/IndustryE/internal/models"
)

const orderColumns = `id, order_number, user_id, status, payment_status, payment_method, total_cents, version, created_at, updated_at`

const orderItemColumns = `id, order_id, product_id, size, quantity, unit_price_cents`

// OrderRepository handles database operations for orders and their line items
type OrderRepository struct {
	db *sqlx.DB
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *sqlx.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// CreateOrder inserts the order, its items and the creation event in one transaction
func (r *OrderRepository) CreateOrder(ctx context.Context, order *models.Order, event *models.InventoryEvent) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.NewSystemError(models.ErrorCodeDatabaseError, "order_repository", "failed to begin transaction", err)
	}
	defer rollback(tx)

	query := `INSERT INTO orders (order_number, user_id, status, payment_status, payment_method, total_cents, version, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, 1, NOW(), NOW())
			  RETURNING id, version, created_at, updated_at`

	err = tx.QueryRowxContext(ctx, query, order.OrderNumber, order.UserID, order.Status, order.PaymentStatus,
		order.PaymentMethod, order.TotalCents).Scan(&order.ID, &order.Version, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		log.Error().Err(err).Str("order_number", order.OrderNumber).Msg("Failed to create order")
		return models.NewSystemError(models.ErrorCodeDatabaseError, "order_repository", "failed to create order", err)
	}

	itemQuery := `INSERT INTO order_items (order_id, product_id, size, quantity, unit_price_cents)
				  VALUES ($1, $2, $3, $4, $5) RETURNING id`

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		if err := tx.QueryRowxContext(ctx, itemQuery, item.OrderID, item.ProductID, item.Size, item.Quantity, item.UnitPriceCents).
			Scan(&item.ID); err != nil {
			log.Error().Err(err).Int64("order_id", order.ID).Msg("Failed to create order item")
			return models.NewSystemError(models.ErrorCodeDatabaseError, "order_repository", "failed to create order item", err)
		}
	}

	if event != nil {
		event.OrderID = order.ID
		event.Version = order.Version
		if err := insertOutboxEvent(ctx, tx, event); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return models.NewSystemError(models.ErrorCodeDatabaseError, "order_repository", "failed to commit transaction", err)
	}
	return nil
}

// GetOrder retrieves an order with its items
func (r *OrderRepository) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	var order models.Order
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	if err := r.db.GetContext(ctx, &order, query, orderID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		log.Error().Err(err).Int64("order_id", orderID).Msg("Failed to get order")
		return nil, models.NewSystemError(models.ErrorCodeDatabaseError, "order_repository", "failed to get order", err)
	}

	items, err := r.loadItems(ctx, r.db, orderID)
	if err != nil {
		return nil, err
	}
	order.Items = items[orderID]
	return &order, nil
}

// MutateOrder locks the order row, applies fn and persists status changes guarded by version
func (r *OrderRepository) MutateOrder(ctx context.Context, orderID int64, fn interfaces.OrderMutation) (*models.Order, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, models.NewSystemError(models.ErrorCodeDatabaseError, "order_repository", "failed to begin transaction", err)
	}
	defer rollback(tx)

	var order models.Order
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &order, query, orderID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.NewNotFoundError(models.ResourceOrder, strconv.FormatInt(orderID, 10))
		}
		log.Error().Err(err).Int64("order_id", orderID).Msg("Failed to get order for update")
		return nil, models.NewSystemError(models.ErrorCodeDatabaseError, "order_repository", "failed to lock order", err)
	}

	items, err := r.loadItems(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	order.Items = items[orderID]

	event, err := fn(&order)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return &order, nil
	}

	update := `UPDATE orders
			   SET status = $2, payment_status = $3, version = version + 1, updated_at = NOW()
			   WHERE id = $1 AND version = $4`

	result, err := tx.ExecContext(ctx, update, order.ID, order.Status, order.PaymentStatus, order.Version)
	if err != nil {
		log.Error().Err(err).Int64("order_id", orderID).Msg("Failed to update order")
		return nil, models.NewSystemError(models.ErrorCodeDatabaseError, "order_repository", "failed to update order", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return nil, models.NewConflictError(models.ResourceOrder, "optimistic lock failed: order version mismatch")
	}

	order.Version++
	order.UpdatedAt = time.Now().UTC()
	event.OrderID = order.ID
	event.Version = order.Version

	if err := insertOutboxEvent(ctx, tx, event); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, models.NewSystemError(models.ErrorCodeDatabaseError, "order_repository", "failed to commit transaction", err)
	}
	return &order, nil
}

// ListOrdersByStatus returns the orders in a status, newest first, with their items
func (r *OrderRepository) ListOrdersByStatus(ctx context.Context, status models.OrderStatus) ([]models.Order, error) {
	orders := []models.Order{}
	query := `SELECT ` + orderColumns + ` FROM orders WHERE status = $1 ORDER BY created_at DESC, id DESC`

	if err := r.db.SelectContext(ctx, &orders, query, status); err != nil {
		log.Error().Err(err).Str("status", string(status)).Msg("Failed to list orders")
		return nil, models.NewSystemError(models.ErrorCodeDatabaseError, "order_repository", "failed to list orders", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]int64, len(orders))
	for i, order := range orders {
		ids[i] = order.ID
	}

	items, err := r.loadItems(ctx, r.db, ids...)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}

// CountOrdersByStatus groups the order table by status
func (r *OrderRepository) CountOrdersByStatus(ctx context.Context) (map[models.OrderStatus]int64, error) {
	var rows []struct {
		Status models.OrderStatus `db:"status"`
		Count  int64              `db:"count"`
	}

	if err := r.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS count FROM orders GROUP BY status`); err != nil {
		log.Error().Err(err).Msg("Failed to count orders")
		return nil, models.NewSystemError(models.ErrorCodeDatabaseError, "order_repository", "failed to count orders", err)
	}

	counts := make(map[models.OrderStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// InsertEvent records an event that is not tied to an order update
func (r *OrderRepository) InsertEvent(ctx context.Context, event *models.InventoryEvent) error {
	return insertOutboxEvent(ctx, r.db, event)
}

func (r *OrderRepository) loadItems(ctx context.Context, q sqlx.QueryerContext, orderIDs ...int64) (map[int64][]models.OrderItem, error) {
	var items []models.OrderItem
	query := `SELECT ` + orderItemColumns + ` FROM order_items WHERE order_id = ANY($1) ORDER BY id ASC`

	if err := sqlx.SelectContext(ctx, q, &items, query, pq.Array(orderIDs)); err != nil {
		log.Error().Err(err).Msg("Failed to load order items")
		return nil, models.NewSystemError(models.ErrorCodeDatabaseError, "order_repository", "failed to load order items", err)
	}

	byOrder := make(map[int64][]models.OrderItem, len(orderIDs))
	for _, item := range items {
		byOrder[item.OrderID] = append(byOrder[item.OrderID], item)
	}
	return byOrder, nil
}
