package interfaces

import (
	"context"

	"github.com/Josef-Cakes/IndustryE/internal/models"
)

// InventoryService defines the per-size inventory operations
type InventoryService interface {
	// Query operations
	GetInventory(ctx context.Context, productID int64) (*models.InventoryResponse, error)
	GetSizeInventory(ctx context.Context, productID int64, size string) (*models.SizeInventoryView, error)
	CheckAvailability(ctx context.Context, productID int64, size string, qty int) (bool, error)
	HasAnyAvailability(ctx context.Context, productID int64) (bool, error)

	// Reservation lifecycle
	Reserve(ctx context.Context, productID int64, size string, qty int) (*models.SizeInventoryView, error)
	Release(ctx context.Context, productID int64, size string, qty int) (*models.SizeInventoryView, error)
	ConfirmSale(ctx context.Context, productID int64, size string, qty int) (*models.SizeInventoryView, error)

	// Administrative operations
	SetQuantity(ctx context.Context, productID int64, size string, quantity int) (*models.SizeInventoryView, error)
	InitializeSizes(ctx context.Context, productID int64, sizes []string, quantityPerSize int) ([]models.SizeInventoryView, error)
}

// OrderService defines the order lifecycle operations
type OrderService interface {
	CreateOrder(ctx context.Context, req *models.CreateOrderRequest) (*models.Order, error)
	GetOrder(ctx context.Context, orderID int64) (*models.Order, error)
	UpdateStatus(ctx context.Context, orderID int64, status string) (*models.Order, error)
	MarkReceived(ctx context.Context, orderID int64, userID string) (*models.Order, error)
	UpdatePaymentStatus(ctx context.Context, orderID int64, paymentStatus string) (*models.Order, error)
	ListOrdersByStatus(ctx context.Context, status string) ([]models.Order, error)
	GetOrderStats(ctx context.Context) (*models.OrderStats, error)
}

// CatalogService defines the product operations that own the inventory lifetime
type CatalogService interface {
	CreateProduct(ctx context.Context, req *models.CreateProductRequest) (*models.Product, []models.SizeInventoryView, error)
	DeleteProduct(ctx context.Context, productID int64) error
	ListLowStockProducts(ctx context.Context, threshold int) ([]models.ProductInventory, error)
	StockReporter
}

// StockReporter provides the catalog stock summary shown with the order stats
type StockReporter interface {
	GetStockStats(ctx context.Context) (*models.StockStats, error)
}

// ReaderService defines the contract for the read path
type ReaderService interface {
	GetInventory(ctx context.Context, productID int64) (*models.InventoryResponse, error)
}
