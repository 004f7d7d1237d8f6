package api

import (
	"github.com/gin-gonic/gin"
)

// ProcessorHandler serves the health endpoint of the state projector
type ProcessorHandler struct{}

// NewProcessorHandler creates a new Processor API handler
func NewProcessorHandler() *ProcessorHandler {
	return &ProcessorHandler{}
}

// SetupProcessorRoutes sets up the HTTP routes for Processor Service
func (h *ProcessorHandler) SetupProcessorRoutes() *gin.Engine {
	r := newEngine("GET, OPTIONS")
	r.GET("/health", healthCheck("inventory-processor-service"))
	return r
}
