package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/Josef-Cakes/IndustryE/internal/interfaces"
	"github.com/Josef-Cakes/IndustryE/internal/models"
)

// ReaderService serves inventory reads and keeps the cache in step with the state topic
type ReaderService struct {
	inventory interfaces.InventoryService
	cache     interfaces.CacheRepository
}

// NewReaderService creates a new reader service
func NewReaderService(inventory interfaces.InventoryService, cache interfaces.CacheRepository) *ReaderService {
	return &ReaderService{
		inventory: inventory,
		cache:     cache,
	}
}

// GetInventory returns the inventory of a product from the cache, falling back to the database
func (s *ReaderService) GetInventory(ctx context.Context, productID int64) (*models.InventoryResponse, error) {
	return s.inventory.GetInventory(ctx, productID)
}

// HandleState implements the StateHandler interface
func (s *ReaderService) HandleState(ctx context.Context, state *models.InventoryState) error {
	if err := s.cache.UpdateInventoryFromState(ctx, state); err != nil {
		return err
	}

	log.Debug().
		Int64("product_id", state.ProductID).
		Int64("version", state.Version).
		Bool("deleted", state.Deleted).
		Msg("Cache refreshed from state")
	return nil
}

var (
	_ interfaces.ReaderService = (*ReaderService)(nil)
	_ interfaces.StateHandler  = (*ReaderService)(nil)
)
