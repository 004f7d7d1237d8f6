package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Josef-Cakes/IndustryE/internal/models"
)

var (
	orderRowColumns = []string{"id", "order_number", "user_id", "status", "payment_status", "payment_method", "total_cents", "version", "created_at", "updated_at"}
	itemRowColumns  = []string{"id", "order_id", "product_id", "size", "quantity", "unit_price_cents"}
)

func TestOrderRepository_CreateOrder(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOrderRepository(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO orders`).
		WithArgs("ORD-1", "user-1", "PENDING", "PENDING", "card", int64(37800)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "version", "created_at", "updated_at"}).AddRow(21, 1, now, now))
	mock.ExpectQuery(`INSERT INTO order_items`).
		WithArgs(int64(21), int64(1), "9", 2, int64(18900)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(301))
	mock.ExpectExec(`INSERT INTO outbox`).
		WithArgs(models.EventTypeOrderCreated, "order-21", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	order := &models.Order{
		OrderNumber:   "ORD-1",
		UserID:        "user-1",
		Status:        models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusPending,
		PaymentMethod: "card",
		TotalCents:    37800,
		Items:         []models.OrderItem{{ProductID: 1, Size: "9", Quantity: 2, UnitPriceCents: 18900}},
	}

	require.NoError(t, repo.CreateOrder(context.Background(), order, &models.InventoryEvent{EventType: models.EventTypeOrderCreated}))
	assert.Equal(t, int64(21), order.ID)
	assert.Equal(t, int64(301), order.Items[0].ID)
	assert.Equal(t, int64(21), order.Items[0].OrderID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_MutateOrder(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOrderRepository(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM orders WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(21)).
		WillReturnRows(sqlmock.NewRows(orderRowColumns).
			AddRow(21, "ORD-1", "user-1", "PROCESSING", "COMPLETED", "card", 37800, 2, now, now))
	mock.ExpectQuery(`SELECT (.+) FROM order_items WHERE order_id = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(itemRowColumns).AddRow(301, 21, 1, "9", 2, 18900))
	mock.ExpectExec(`UPDATE orders`).
		WithArgs(int64(21), "DELIVERED", "COMPLETED", int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO outbox`).
		WithArgs(models.EventTypeOrderStatusChanged, "order-21", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	order, err := repo.MutateOrder(context.Background(), 21, func(o *models.Order) (*models.InventoryEvent, error) {
		changed, err := o.ApplyTransition(models.OrderStatusDelivered, now)
		if err != nil || !changed {
			return nil, err
		}
		return &models.InventoryEvent{EventType: models.EventTypeOrderStatusChanged, OrderStatus: o.Status}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, order.Status)
	assert.Equal(t, int64(3), order.Version)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "9", order.Items[0].Size)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_GetOrderMissing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOrderRepository(db)

	mock.ExpectQuery(`SELECT (.+) FROM orders WHERE id = \$1`).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows(orderRowColumns))

	order, err := repo.GetOrder(context.Background(), 99)
	require.NoError(t, err)
	assert.Nil(t, order)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_CountOrdersByStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOrderRepository(db)

	mock.ExpectQuery(`SELECT status, COUNT\(\*\) AS count FROM orders GROUP BY status`).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("PENDING", 4).
			AddRow("CANCELLED", 1))

	counts, err := repo.CountOrdersByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), counts[models.OrderStatusPending])
	assert.Equal(t, int64(1), counts[models.OrderStatusCancelled])
	assert.Zero(t, counts[models.OrderStatusCompleted])
	assert.NoError(t, mock.ExpectationsWereMet())
}
