package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Josef-Cakes/IndustryE/internal/interfaces"
	"github.com/Josef-Cakes/IndustryE/internal/models"
)

// StorefrontHandler handles HTTP requests for inventory, catalog and order operations
type StorefrontHandler struct {
	inventory interfaces.InventoryService
	orders    interfaces.OrderService
	catalog   interfaces.CatalogService
}

// NewStorefrontHandler creates a new storefront API handler
func NewStorefrontHandler(inventory interfaces.InventoryService, orders interfaces.OrderService, catalog interfaces.CatalogService) *StorefrontHandler {
	return &StorefrontHandler{
		inventory: inventory,
		orders:    orders,
		catalog:   catalog,
	}
}

// SetupStorefrontRoutes sets up the HTTP routes for the storefront service
func (h *StorefrontHandler) SetupStorefrontRoutes() *gin.Engine {
	r := newEngine("POST, GET, OPTIONS, PUT, DELETE")

	r.GET("/health", healthCheck("storefront-service"))

	api := r.Group("/api/v1")
	{
		inventory := api.Group("/products/:id/inventory")
		inventory.GET("", h.getInventory)
		inventory.GET("/:size", h.getSizeInventory)
		inventory.GET("/:size/availability", h.checkAvailability)
		inventory.POST("/:size/reserve", h.reserve)
		inventory.POST("/:size/release", h.release)
		inventory.POST("/:size/confirm", h.confirmSale)

		api.POST("/orders", h.createOrder)
		api.GET("/orders/:id", h.getOrder)
		api.PUT("/orders/:id/mark-received", h.markReceived)

		admin := api.Group("/admin")
		{
			admin.POST("/products", h.createProduct)
			admin.DELETE("/products/:id", h.deleteProduct)
			admin.GET("/products/low-stock", h.listLowStock)
			admin.PUT("/products/:id/inventory/:size", h.setQuantity)
			admin.POST("/products/:id/inventory/init", h.initializeSizes)

			admin.GET("/orders", h.listOrders)
			admin.GET("/orders/stats", h.orderStats)
			admin.PUT("/orders/:id/status", h.updateOrderStatus)
			admin.PUT("/orders/:id/payment-status", h.updatePaymentStatus)
		}
	}

	return r
}

// Inventory

func (h *StorefrontHandler) getInventory(c *gin.Context) {
	productID, ok := pathID(c)
	if !ok {
		return
	}

	inventory, err := h.inventory.GetInventory(c.Request.Context(), productID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	Response.Success(c, inventory)
}

func (h *StorefrontHandler) getSizeInventory(c *gin.Context) {
	productID, ok := pathID(c)
	if !ok {
		return
	}
	size := c.Param("size")

	view, err := h.inventory.GetSizeInventory(c.Request.Context(), productID, size)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if view == nil {
		_ = c.Error(sizeNotTracked(productID, size))
		return
	}
	Response.Success(c, view)
}

func (h *StorefrontHandler) checkAvailability(c *gin.Context) {
	productID, ok := pathID(c)
	if !ok {
		return
	}
	size := c.Param("size")

	qty, err := strconv.Atoi(c.DefaultQuery("qty", "1"))
	if err != nil {
		Response.ValidationError(c, "qty", "Quantity must be an integer")
		return
	}

	available, err := h.inventory.CheckAvailability(c.Request.Context(), productID, size, qty)
	if err != nil {
		_ = c.Error(err)
		return
	}
	Response.Success(c, models.AvailabilityResponse{
		ProductID: productID,
		Size:      size,
		Requested: qty,
		Available: available,
	})
}

func (h *StorefrontHandler) reserve(c *gin.Context) {
	h.quantityOperation(c, "reserve", h.inventory.Reserve)
}

func (h *StorefrontHandler) release(c *gin.Context) {
	h.quantityOperation(c, "release", h.inventory.Release)
}

func (h *StorefrontHandler) confirmSale(c *gin.Context) {
	h.quantityOperation(c, "confirm", h.inventory.ConfirmSale)
}

func (h *StorefrontHandler) quantityOperation(c *gin.Context, operation string, fn func(context.Context, int64, string, int) (*models.SizeInventoryView, error)) {
	productID, ok := pathID(c)
	if !ok {
		return
	}
	size := c.Param("size")

	var req models.QuantityRequest
	if !bindJSON(c, &req) {
		return
	}

	view, err := fn(c.Request.Context(), productID, size, *req.Qty)
	if err != nil {
		log.Warn().Err(err).
			Str("operation", operation).
			Int64("product_id", productID).
			Str("size", size).
			Int("qty", *req.Qty).
			Msg("Inventory operation failed")
		_ = c.Error(err)
		return
	}
	if view == nil {
		// release of an untracked size
		Response.NoContent(c)
		return
	}
	Response.Success(c, view)
}

func (h *StorefrontHandler) setQuantity(c *gin.Context) {
	productID, ok := pathID(c)
	if !ok {
		return
	}

	var req models.SetQuantityRequest
	if !bindJSON(c, &req) {
		return
	}

	view, err := h.inventory.SetQuantity(c.Request.Context(), productID, c.Param("size"), *req.Quantity)
	if err != nil {
		_ = c.Error(err)
		return
	}
	Response.Success(c, view)
}

func (h *StorefrontHandler) initializeSizes(c *gin.Context) {
	productID, ok := pathID(c)
	if !ok {
		return
	}

	var req models.InitializeSizesRequest
	if !bindJSON(c, &req) {
		return
	}

	views, err := h.inventory.InitializeSizes(c.Request.Context(), productID, req.Sizes, req.QuantityPerSize)
	if err != nil {
		_ = c.Error(err)
		return
	}
	Response.Success(c, models.InventoryResponse{ProductID: productID, Sizes: views})
}

// Catalog

func (h *StorefrontHandler) createProduct(c *gin.Context) {
	var req models.CreateProductRequest
	if !bindJSON(c, &req) {
		return
	}

	product, views, err := h.catalog.CreateProduct(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	Response.Created(c, models.ProductInventory{Product: *product, Sizes: views})
}

func (h *StorefrontHandler) deleteProduct(c *gin.Context) {
	productID, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.catalog.DeleteProduct(c.Request.Context(), productID); err != nil {
		_ = c.Error(err)
		return
	}
	Response.NoContent(c)
}

func (h *StorefrontHandler) listLowStock(c *gin.Context) {
	threshold, err := strconv.Atoi(c.DefaultQuery("threshold", "-1"))
	if err != nil {
		Response.ValidationError(c, "threshold", "Threshold must be an integer")
		return
	}

	products, err := h.catalog.ListLowStockProducts(c.Request.Context(), threshold)
	if err != nil {
		_ = c.Error(err)
		return
	}
	Response.Success(c, products)
}

// Orders

func (h *StorefrontHandler) createOrder(c *gin.Context) {
	var req models.CreateOrderRequest
	if !bindJSON(c, &req) {
		return
	}

	order, err := h.orders.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	Response.Created(c, order)
}

func (h *StorefrontHandler) getOrder(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	Response.Success(c, order)
}

func (h *StorefrontHandler) markReceived(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	userID := strings.TrimSpace(c.GetHeader("X-User-ID"))
	if userID == "" {
		Response.ValidationError(c, "X-User-ID", "User ID header is required")
		return
	}

	order, err := h.orders.MarkReceived(c.Request.Context(), orderID, userID)
	h.respondOrderUpdate(c, order, err)
}

func (h *StorefrontHandler) updateOrderStatus(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	var req models.UpdateOrderStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	order, err := h.orders.UpdateStatus(c.Request.Context(), orderID, req.Status)
	h.respondOrderUpdate(c, order, err)
}

func (h *StorefrontHandler) updatePaymentStatus(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	var req models.UpdatePaymentStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	order, err := h.orders.UpdatePaymentStatus(c.Request.Context(), orderID, req.PaymentStatus)
	if err != nil {
		_ = c.Error(err)
		return
	}
	Response.Success(c, order)
}

func (h *StorefrontHandler) listOrders(c *gin.Context) {
	status := c.Query("status")
	if status == "" {
		Response.ValidationError(c, "status", "Status query parameter is required")
		return
	}

	orders, err := h.orders.ListOrdersByStatus(c.Request.Context(), status)
	if err != nil {
		_ = c.Error(err)
		return
	}
	Response.Success(c, orders)
}

func (h *StorefrontHandler) orderStats(c *gin.Context) {
	stats, err := h.orders.GetOrderStats(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	Response.Success(c, stats)
}

// respondOrderUpdate renders a status change. A committed change whose inventory side
// effects partly failed is still a success; the failures are listed in the body.
func (h *StorefrontHandler) respondOrderUpdate(c *gin.Context, order *models.Order, err error) {
	if err != nil && order == nil {
		_ = c.Error(err)
		return
	}

	resp := models.OrderUpdateResponse{Order: order}
	if err != nil {
		log.Error().Err(err).
			Str("request_id", getRequestID(c)).
			Int64("order_id", order.ID).
			Msg("Order updated with failed inventory side effects")
		resp.SideEffectErrors = []string{err.Error()}
	}
	c.JSON(http.StatusOK, resp)
}

// pathID parses the :id path parameter, answering 400 when it is not a positive integer
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		Response.ValidationError(c, "id", "ID must be a positive integer")
		return 0, false
	}
	return id, true
}

func sizeNotTracked(productID int64, size string) error {
	return models.NewBusinessError(models.ErrorCodeSizeNotFound,
		"size "+size+" not found for product "+strconv.FormatInt(productID, 10),
		map[string]any{"product_id": productID, "size": size})
}
