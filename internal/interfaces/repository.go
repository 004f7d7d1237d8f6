package interfaces

import (
	"context"

	"github.com/Josef-Cakes/IndustryE/internal/models"
)

// ProductMutation is applied to a locked product row. A nil event with a nil error
// leaves the product untouched; a non-nil event is appended to the outbox in the same
// transaction as the product update.
type ProductMutation func(product *models.Product) (*models.InventoryEvent, error)

// OrderMutation is applied to a locked order, with the same contract as ProductMutation
type OrderMutation func(order *models.Order) (*models.InventoryEvent, error)

// ProductRepository defines the contract for product and embedded inventory storage
type ProductRepository interface {
	// GetProduct returns nil without error when the product does not exist
	GetProduct(ctx context.Context, productID int64) (*models.Product, error)
	ProductExists(ctx context.Context, productID int64) (bool, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	CreateProduct(ctx context.Context, product *models.Product, event *models.InventoryEvent) error
	DeleteProduct(ctx context.Context, productID int64, event *models.InventoryEvent) (bool, error)

	// MutateProduct serializes writers of one product: it locks the row, applies fn and
	// persists the result in a single transaction of its own.
	MutateProduct(ctx context.Context, productID int64, fn ProductMutation) (*models.Product, error)
}

// OrderRepository defines the contract for order storage
type OrderRepository interface {
	CreateOrder(ctx context.Context, order *models.Order, event *models.InventoryEvent) error
	// GetOrder returns nil without error when the order does not exist
	GetOrder(ctx context.Context, orderID int64) (*models.Order, error)
	MutateOrder(ctx context.Context, orderID int64, fn OrderMutation) (*models.Order, error)
	ListOrdersByStatus(ctx context.Context, status models.OrderStatus) ([]models.Order, error)
	CountOrdersByStatus(ctx context.Context) (map[models.OrderStatus]int64, error)
}

// OutboxWriter records an event outside of any entity mutation
type OutboxWriter interface {
	InsertEvent(ctx context.Context, event *models.InventoryEvent) error
}

// OutboxRepository is what the outbox publisher needs from storage
type OutboxRepository interface {
	TryAcquireOutboxLock(ctx context.Context, lockKey int64) (bool, error)
	ReleaseOutboxLock(ctx context.Context, lockKey int64) error
	FetchOutboxBatchOrdered(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	MarkOutboxPublished(ctx context.Context, ids []int64) error
	IncrementPublishAttempts(ctx context.Context, id int64, lastError string) error
}

// CacheRepository defines the contract for caching operations
type CacheRepository interface {
	// GetInventoryState returns nil without error on a cache miss
	GetInventoryState(ctx context.Context, productID int64) (*models.InventoryState, error)
	SetInventoryState(ctx context.Context, state *models.InventoryState) error
	DeleteInventoryState(ctx context.Context, productID int64) error
	UpdateInventoryFromState(ctx context.Context, state *models.InventoryState) error
	Close() error
}
