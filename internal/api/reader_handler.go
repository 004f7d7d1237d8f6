package api

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Josef-Cakes/IndustryE/internal/interfaces"
)

// ReaderHandler handles HTTP requests for read operations (Reader Service)
type ReaderHandler struct {
	readerService interfaces.ReaderService
}

// NewReaderHandler creates a new Reader API handler
func NewReaderHandler(readerService interfaces.ReaderService) *ReaderHandler {
	return &ReaderHandler{
		readerService: readerService,
	}
}

// SetupReaderRoutes sets up the HTTP routes for Reader Service
func (h *ReaderHandler) SetupReaderRoutes() *gin.Engine {
	r := newEngine("GET, OPTIONS")

	r.GET("/health", healthCheck("inventory-reader-service"))

	api := r.Group("/api/v1")
	{
		api.GET("/products/:id/inventory", h.getInventory)
	}

	return r
}

// getInventory serves the size inventory of a product from the cache-aside read path
func (h *ReaderHandler) getInventory(c *gin.Context) {
	productID, ok := pathID(c)
	if !ok {
		return
	}

	inventory, err := h.readerService.GetInventory(c.Request.Context(), productID)
	if err != nil {
		log.Warn().Err(err).Int64("product_id", productID).Msg("Failed to get inventory")
		_ = c.Error(err)
		return
	}

	Response.Success(c, inventory)
}
