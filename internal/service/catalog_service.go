package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Josef-Cakes/IndustryE/internal/interfaces"
	"github.com/Josef-Cakes/IndustryE/internal/models"
)

// CatalogService creates and deletes products, which owns the lifetime of their inventory
type CatalogService struct {
	repo  interfaces.ProductRepository
	cache interfaces.CacheRepository
	// used when a caller passes a negative threshold
	defaultThreshold int
}

// NewCatalogService creates a new catalog service
func NewCatalogService(repo interfaces.ProductRepository, cache interfaces.CacheRepository, config ServiceConfig) *CatalogService {
	return &CatalogService{
		repo:             repo,
		cache:            cache,
		defaultThreshold: config.LowStockThreshold,
	}
}

// CreateProduct stores a new product with every listed size tracked at the requested
// starting quantity.
func (s *CatalogService) CreateProduct(ctx context.Context, req *models.CreateProductRequest) (*models.Product, []models.SizeInventoryView, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, nil, models.NewValidationError("name", "name is required", req.Name)
	}
	if req.QuantityPerSize < 0 {
		return nil, nil, models.NewValidationError("quantity_per_size", "quantity must not be negative", req.QuantityPerSize)
	}
	if req.PriceCents < 0 {
		return nil, nil, models.NewValidationError("price_cents", "price must not be negative", req.PriceCents)
	}

	inventory := models.SizeInventory{}
	for _, size := range req.Sizes {
		if size = models.NormalizeSize(size); size != "" {
			inventory[size] = models.SizeRecord{Quantity: req.QuantityPerSize}
		}
	}

	product := &models.Product{
		Name:          name,
		Category:      strings.TrimSpace(req.Category),
		PriceCents:    req.PriceCents,
		SizeInventory: inventory.Encode(),
	}

	event := &models.InventoryEvent{
		EventID:   uuid.New().String(),
		EventType: models.EventTypeProductCreated,
		Qty:       req.QuantityPerSize,
		Timestamp: time.Now().UTC(),
	}
	if err := s.repo.CreateProduct(ctx, product, event); err != nil {
		return nil, nil, err
	}

	log.Info().Int64("product_id", product.ID).Int("sizes", len(inventory)).Msg("Product created")
	return product, inventory.Views(), nil
}

// DeleteProduct removes a product together with its size inventory
func (s *CatalogService) DeleteProduct(ctx context.Context, productID int64) error {
	event := &models.InventoryEvent{
		EventID:   uuid.New().String(),
		EventType: models.EventTypeProductDeleted,
		Timestamp: time.Now().UTC(),
	}

	deleted, err := s.repo.DeleteProduct(ctx, productID, event)
	if err != nil {
		return err
	}
	if !deleted {
		return models.NewNotFoundError(models.ResourceProduct, strconv.FormatInt(productID, 10))
	}

	if err := s.cache.DeleteInventoryState(ctx, productID); err != nil {
		log.Warn().Err(err).Int64("product_id", productID).Msg("Failed to evict deleted product from cache")
	}

	log.Info().Int64("product_id", productID).Msg("Product deleted")
	return nil
}

// ListLowStockProducts returns the products where at least one size has at most
// threshold units available. Products with unreadable inventory are skipped.
func (s *CatalogService) ListLowStockProducts(ctx context.Context, threshold int) ([]models.ProductInventory, error) {
	if threshold < 0 {
		threshold = s.defaultThreshold
	}

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	lowStock := []models.ProductInventory{}
	for _, product := range products {
		inventory, err := models.DecodeSizeInventory(product.SizeInventory)
		if err != nil {
			log.Warn().Err(err).Int64("product_id", product.ID).Msg("Skipping product with unreadable size inventory")
			continue
		}

		if isLowStock(inventory, threshold) {
			lowStock = append(lowStock, models.ProductInventory{Product: product, Sizes: inventory.Views()})
		}
	}

	return lowStock, nil
}

// GetStockStats counts the catalog products and those low on stock at the default threshold
func (s *CatalogService) GetStockStats(ctx context.Context) (*models.StockStats, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	stats := &models.StockStats{
		TotalProducts:     int64(len(products)),
		LowStockThreshold: s.defaultThreshold,
	}
	for _, product := range products {
		inventory, err := models.DecodeSizeInventory(product.SizeInventory)
		if err != nil {
			continue
		}
		if isLowStock(inventory, s.defaultThreshold) {
			stats.LowStockProducts++
		}
	}
	return stats, nil
}

func isLowStock(inventory models.SizeInventory, threshold int) bool {
	for _, record := range inventory {
		if record.Available() <= threshold {
			return true
		}
	}
	return false
}

var _ interfaces.CatalogService = (*CatalogService)(nil)
