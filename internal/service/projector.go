package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Josef-Cakes/IndustryE/internal/interfaces"
	"github.com/Josef-Cakes/IndustryE/internal/models"
)

// StateProjector turns inventory events into full per-product state snapshots.
// Snapshots are read from the database at handling time, so replaying an event
// republishes the current state and is harmless.
type StateProjector struct {
	repo      interfaces.ProductRepository
	publisher interfaces.MessagePublisher
}

// NewStateProjector creates a new state projector
func NewStateProjector(repo interfaces.ProductRepository, publisher interfaces.MessagePublisher) *StateProjector {
	return &StateProjector{
		repo:      repo,
		publisher: publisher,
	}
}

// HandleEvent implements the EventHandler interface
func (p *StateProjector) HandleEvent(ctx context.Context, event *models.InventoryEvent) error {
	if event.ProductID == 0 {
		// order-level events carry no inventory
		return nil
	}

	var state *models.InventoryState
	if event.EventType == models.EventTypeProductDeleted {
		state = deletedState(event.ProductID)
	} else {
		product, err := p.repo.GetProduct(ctx, event.ProductID)
		if err != nil {
			return err
		}
		if product == nil {
			state = deletedState(event.ProductID)
		} else {
			state = stateOf(product)
		}
	}

	if err := p.publisher.PublishState(ctx, state); err != nil {
		return err
	}

	log.Debug().
		Str("event_type", event.EventType).
		Int64("product_id", event.ProductID).
		Int64("event_version", event.Version).
		Int64("state_version", state.Version).
		Msg("Projected inventory state")
	return nil
}

func deletedState(productID int64) *models.InventoryState {
	return &models.InventoryState{
		ProductID: productID,
		Sizes:     []models.SizeInventoryView{},
		Deleted:   true,
		UpdatedAt: time.Now().UTC(),
	}
}

var _ interfaces.EventHandler = (*StateProjector)(nil)
