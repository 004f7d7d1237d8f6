package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/Josef-Cakes/IndustryE/internal/interfaces"
	"github.com/Josef-Cakes/IndustryE/internal/models"
)

// InventoryService handles business logic for per-size inventory
type InventoryService struct {
	repo   interfaces.ProductRepository
	cache  interfaces.CacheRepository
	config ServiceConfig
	loads  singleflight.Group
}

// ServiceConfig holds service configuration
type ServiceConfig struct {
	CacheTimeout        time.Duration // Timeout for cache reads on the request path
	InvalidationTimeout time.Duration // Timeout for cache writes outside the request path
	LowStockThreshold   int
}

// Validate validates the service configuration
func (c ServiceConfig) Validate() error {
	if c.CacheTimeout < time.Millisecond {
		return fmt.Errorf("cache timeout must be at least 1ms, got %v", c.CacheTimeout)
	}
	if c.InvalidationTimeout < time.Millisecond {
		return fmt.Errorf("invalidation timeout must be at least 1ms, got %v", c.InvalidationTimeout)
	}
	if c.LowStockThreshold < 0 {
		return fmt.Errorf("low stock threshold must be non-negative, got %d", c.LowStockThreshold)
	}
	return nil
}

// NewInventoryService creates a new inventory service
func NewInventoryService(repo interfaces.ProductRepository, cache interfaces.CacheRepository, config ServiceConfig) (*InventoryService, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid service configuration: %w", err)
	}

	return &InventoryService{
		repo:   repo,
		cache:  cache,
		config: config,
	}, nil
}

// GetInventory returns the sorted size views of a product, checking the cache first.
// Concurrent misses for the same product share one database read.
func (s *InventoryService) GetInventory(ctx context.Context, productID int64) (*models.InventoryResponse, error) {
	cacheCtx, cancel := context.WithTimeout(ctx, s.config.CacheTimeout)
	state, err := s.cache.GetInventoryState(cacheCtx, productID)
	cancel()
	if err != nil {
		log.Warn().Err(err).Int64("product_id", productID).Msg("Cache error, falling back to database")
	}
	if state != nil {
		return &models.InventoryResponse{ProductID: productID, Sizes: state.Sizes, CacheHit: true}, nil
	}

	// The shared load is detached from the cancellation of any one waiter
	loaded := s.loads.DoChan(strconv.FormatInt(productID, 10), func() (interface{}, error) {
		return s.loadState(context.WithoutCancel(ctx), productID)
	})

	var result singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result = <-loaded:
	}
	if result.Err != nil {
		return nil, result.Err
	}
	state = result.Val.(*models.InventoryState)

	// Populate the cache asynchronously; the cache keeps the higher version
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.InvalidationTimeout)
		defer cancel()

		if err := s.cache.SetInventoryState(ctx, state); err != nil {
			log.Error().Err(err).Int64("product_id", productID).Msg("Failed to update cache")
		}
	}()

	return &models.InventoryResponse{ProductID: productID, Sizes: state.Sizes}, nil
}

// GetSizeInventory returns the view of one size, or nil when the size is not tracked
func (s *InventoryService) GetSizeInventory(ctx context.Context, productID int64, size string) (*models.SizeInventoryView, error) {
	size = models.NormalizeSize(size)
	inventory, err := s.readInventory(ctx, productID)
	if err != nil {
		return nil, err
	}

	record, ok := inventory[size]
	if !ok {
		return nil, nil
	}
	view := models.NewSizeInventoryView(size, record)
	return &view, nil
}

// CheckAvailability reports whether qty units of the size can be reserved right now
func (s *InventoryService) CheckAvailability(ctx context.Context, productID int64, size string, qty int) (bool, error) {
	size = models.NormalizeSize(size)
	if qty < 0 {
		return false, models.NewValidationError("qty", "quantity must not be negative", qty)
	}

	inventory, err := s.readInventory(ctx, productID)
	if err != nil {
		return false, err
	}

	record, ok := inventory[size]
	if !ok {
		return false, nil
	}
	return record.Available() >= qty, nil
}

// HasAnyAvailability reports whether any size of the product can still be sold
func (s *InventoryService) HasAnyAvailability(ctx context.Context, productID int64) (bool, error) {
	inventory, err := s.readInventory(ctx, productID)
	if err != nil {
		return false, err
	}
	return inventory.HasAvailability(), nil
}

// Reserve holds qty units of a size for a pending order
func (s *InventoryService) Reserve(ctx context.Context, productID int64, size string, qty int) (*models.SizeInventoryView, error) {
	size = models.NormalizeSize(size)
	if qty <= 0 {
		return nil, models.NewValidationError("qty", "quantity must be positive", qty)
	}

	inventory, err := s.mutate(ctx, productID, "reserve", func(inventory models.SizeInventory) (*models.InventoryEvent, error) {
		record, ok := inventory[size]
		if !ok {
			return nil, sizeNotFound(productID, size)
		}
		if record.Available() < qty {
			return nil, models.NewBusinessError(models.ErrorCodeInsufficientStock,
				fmt.Sprintf("insufficient stock for size %s: requested %d, available %d", size, qty, record.Available()),
				map[string]any{"product_id": productID, "size": size, "requested": qty, "available": record.Available()})
		}

		record.Reserved += qty
		inventory[size] = record
		return &models.InventoryEvent{EventType: models.EventTypeSizeReserved, Size: size, Qty: qty}, nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Int64("product_id", productID).Str("size", size).Int("qty", qty).Msg("Reserved stock")
	return viewOf(inventory, size), nil
}

// Release returns up to qty reserved units of a size. Releasing more than is reserved
// clears the reservation; an untracked size is left alone.
func (s *InventoryService) Release(ctx context.Context, productID int64, size string, qty int) (*models.SizeInventoryView, error) {
	size = models.NormalizeSize(size)
	if qty < 0 {
		return nil, models.NewValidationError("qty", "quantity must not be negative", qty)
	}

	inventory, err := s.mutate(ctx, productID, "release", func(inventory models.SizeInventory) (*models.InventoryEvent, error) {
		record, ok := inventory[size]
		if !ok {
			log.Warn().Int64("product_id", productID).Str("size", size).Msg("Release for untracked size ignored")
			return nil, nil
		}

		released := min(qty, record.Reserved)
		if released == 0 {
			return nil, nil
		}
		record.Reserved -= released
		inventory[size] = record
		return &models.InventoryEvent{EventType: models.EventTypeSizeReleased, Size: size, Qty: released}, nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Int64("product_id", productID).Str("size", size).Int("qty", qty).Msg("Released stock")
	return viewOf(inventory, size), nil
}

// ConfirmSale turns qty reserved units into a sale. It always runs as its own
// transaction so a failure never rolls back the caller's work.
func (s *InventoryService) ConfirmSale(ctx context.Context, productID int64, size string, qty int) (*models.SizeInventoryView, error) {
	size = models.NormalizeSize(size)
	if qty <= 0 {
		return nil, models.NewValidationError("qty", "quantity must be positive", qty)
	}

	inventory, err := s.mutate(ctx, productID, "confirm sale", func(inventory models.SizeInventory) (*models.InventoryEvent, error) {
		record, ok := inventory[size]
		if !ok {
			return nil, sizeNotFound(productID, size)
		}
		if record.Reserved < qty {
			return nil, models.NewBusinessError(models.ErrorCodeInsufficientReservation,
				fmt.Sprintf("insufficient reservation for size %s: requested %d, reserved %d", size, qty, record.Reserved),
				map[string]any{"product_id": productID, "size": size, "requested": qty, "reserved": record.Reserved})
		}

		record.Quantity -= qty
		record.Reserved -= qty
		inventory[size] = record
		return &models.InventoryEvent{EventType: models.EventTypeSaleConfirmed, Size: size, Qty: qty}, nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Int64("product_id", productID).Str("size", size).Int("qty", qty).Msg("Confirmed sale")
	return viewOf(inventory, size), nil
}

// SetQuantity overrides the on-hand quantity of a size, creating it when untracked.
// Reservations above the new quantity are trimmed.
func (s *InventoryService) SetQuantity(ctx context.Context, productID int64, size string, quantity int) (*models.SizeInventoryView, error) {
	size = models.NormalizeSize(size)
	if size == "" {
		return nil, models.NewValidationError("size", "size is required", size)
	}
	if quantity < 0 {
		return nil, models.NewValidationError("quantity", "quantity must not be negative", quantity)
	}

	inventory, err := s.mutate(ctx, productID, "set quantity", func(inventory models.SizeInventory) (*models.InventoryEvent, error) {
		record := inventory[size]
		record.Quantity = quantity
		record.Reserved = min(record.Reserved, quantity)
		inventory[size] = record
		return &models.InventoryEvent{EventType: models.EventTypeQuantitySet, Size: size, Qty: quantity}, nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Int64("product_id", productID).Str("size", size).Int("quantity", quantity).Msg("Set stock quantity")
	return viewOf(inventory, size), nil
}

// InitializeSizes starts tracking the given sizes at quantityPerSize. Sizes that are
// already tracked keep their stock.
func (s *InventoryService) InitializeSizes(ctx context.Context, productID int64, sizes []string, quantityPerSize int) ([]models.SizeInventoryView, error) {
	if quantityPerSize < 0 {
		return nil, models.NewValidationError("quantity_per_size", "quantity must not be negative", quantityPerSize)
	}

	inventory, err := s.mutate(ctx, productID, "initialize sizes", func(inventory models.SizeInventory) (*models.InventoryEvent, error) {
		added := 0
		for _, size := range sizes {
			size = models.NormalizeSize(size)
			if size == "" {
				continue
			}
			if _, ok := inventory[size]; ok {
				continue
			}
			inventory[size] = models.SizeRecord{Quantity: quantityPerSize}
			added++
		}
		if added == 0 {
			return nil, nil
		}
		return &models.InventoryEvent{EventType: models.EventTypeSizesInitialized, Qty: quantityPerSize}, nil
	})
	if err != nil {
		return nil, err
	}

	return inventory.Views(), nil
}

// readInventory loads the authoritative inventory. A corrupt blob is logged and read
// as empty.
func (s *InventoryService) readInventory(ctx context.Context, productID int64) (models.SizeInventory, error) {
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, models.NewNotFoundError(models.ResourceProduct, strconv.FormatInt(productID, 10))
	}

	inventory, err := models.DecodeSizeInventory(product.SizeInventory)
	if err != nil {
		log.Warn().Err(err).Int64("product_id", productID).Msg("Unreadable size inventory, treating as empty")
	}
	return inventory, nil
}

func (s *InventoryService) loadState(ctx context.Context, productID int64) (*models.InventoryState, error) {
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, models.NewNotFoundError(models.ResourceProduct, strconv.FormatInt(productID, 10))
	}
	return stateOf(product), nil
}

// mutate runs fn against the decoded inventory of a locked product and persists the
// result. A corrupt blob is never overwritten.
func (s *InventoryService) mutate(ctx context.Context, productID int64, operation string, fn func(models.SizeInventory) (*models.InventoryEvent, error)) (models.SizeInventory, error) {
	var (
		result  models.SizeInventory
		changed bool
	)

	product, err := s.repo.MutateProduct(ctx, productID, func(product *models.Product) (*models.InventoryEvent, error) {
		inventory, err := models.DecodeSizeInventory(product.SizeInventory)
		if err != nil {
			log.Error().Err(err).Int64("product_id", productID).Str("operation", operation).
				Msg("Refusing to modify unreadable size inventory")
			return nil, err
		}

		event, err := fn(inventory)
		if err != nil {
			return nil, err
		}
		result = inventory
		if event == nil {
			return nil, nil
		}

		changed = true
		product.SizeInventory = inventory.Encode()
		event.EventID = uuid.New().String()
		event.Timestamp = time.Now().UTC()
		return event, nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.refreshCache(ctx, product)
	}
	return result, nil
}

// refreshCache writes the committed state through to the cache before the mutation
// returns. When the write fails the entry is evicted so readers go to the database.
func (s *InventoryService) refreshCache(ctx context.Context, product *models.Product) {
	detached := context.WithoutCancel(ctx)

	setCtx, cancel := context.WithTimeout(detached, s.config.InvalidationTimeout)
	err := s.cache.SetInventoryState(setCtx, stateOf(product))
	cancel()
	if err == nil {
		return
	}
	log.Warn().Err(err).Int64("product_id", product.ID).Msg("Failed to write inventory through to cache, evicting")

	delCtx, cancel := context.WithTimeout(detached, s.config.InvalidationTimeout)
	defer cancel()
	if err := s.cache.DeleteInventoryState(delCtx, product.ID); err != nil {
		log.Error().Err(err).Int64("product_id", product.ID).Msg("Failed to invalidate cache")
	}
}

func stateOf(product *models.Product) *models.InventoryState {
	inventory, err := models.DecodeSizeInventory(product.SizeInventory)
	if err != nil {
		log.Warn().Err(err).Int64("product_id", product.ID).Msg("Unreadable size inventory, treating as empty")
	}
	return &models.InventoryState{
		ProductID: product.ID,
		Sizes:     inventory.Views(),
		Version:   product.Version,
		UpdatedAt: product.UpdatedAt,
	}
}

func viewOf(inventory models.SizeInventory, size string) *models.SizeInventoryView {
	record, ok := inventory[size]
	if !ok {
		return nil
	}
	view := models.NewSizeInventoryView(size, record)
	return &view
}

func sizeNotFound(productID int64, size string) error {
	return models.NewBusinessError(models.ErrorCodeSizeNotFound,
		fmt.Sprintf("size %s not found for product %d", size, productID),
		map[string]any{"product_id": productID, "size": size})
}

var _ interfaces.InventoryService = (*InventoryService)(nil)
