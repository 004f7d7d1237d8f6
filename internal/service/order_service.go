package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Josef-Cakes/IndustryE/internal/interfaces"
	"github.com/Josef-Cakes/IndustryE/internal/models"
)

// sideEffectTimeout bounds the inventory follow-ups of an order change
const sideEffectTimeout = 30 * time.Second

// OrderService drives orders through their lifecycle and keeps inventory in step
type OrderService struct {
	orders    interfaces.OrderRepository
	inventory interfaces.InventoryService
	alerts    interfaces.OutboxWriter
	stock     interfaces.StockReporter
}

// NewOrderService creates a new order service
func NewOrderService(orders interfaces.OrderRepository, inventory interfaces.InventoryService, alerts interfaces.OutboxWriter, stock interfaces.StockReporter) *OrderService {
	return &OrderService{
		orders:    orders,
		inventory: inventory,
		alerts:    alerts,
		stock:     stock,
	}
}

// CreateOrder reserves every line item and stores the order as PENDING. If any
// reservation fails, the reservations already made are released.
func (s *OrderService) CreateOrder(ctx context.Context, req *models.CreateOrderRequest) (*models.Order, error) {
	if err := validateCreateOrder(req); err != nil {
		return nil, err
	}

	order := &models.Order{
		OrderNumber:   newOrderNumber(),
		UserID:        req.UserID,
		Status:        models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusPending,
		PaymentMethod: req.PaymentMethod,
		Items:         make([]models.OrderItem, 0, len(req.Items)),
	}

	for _, line := range req.Items {
		item := models.OrderItem{
			ProductID:      line.ProductID,
			Size:           models.NormalizeSize(line.Size),
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
		}

		if _, err := s.inventory.Reserve(ctx, item.ProductID, item.Size, item.Quantity); err != nil {
			log.Warn().Err(err).
				Str("order_number", order.OrderNumber).
				Int64("product_id", item.ProductID).
				Str("size", item.Size).
				Msg("Reservation failed, rolling back order")
			s.rollbackReservations(ctx, order)
			return nil, err
		}

		order.Items = append(order.Items, item)
		order.TotalCents += item.UnitPriceCents * int64(item.Quantity)
	}

	event := &models.InventoryEvent{
		EventID:     uuid.New().String(),
		EventType:   models.EventTypeOrderCreated,
		OrderStatus: order.Status,
		Timestamp:   time.Now().UTC(),
	}
	if err := s.orders.CreateOrder(ctx, order, event); err != nil {
		log.Error().Err(err).Str("order_number", order.OrderNumber).Msg("Failed to store order, releasing reservations")
		s.rollbackReservations(ctx, order)
		return nil, err
	}

	log.Info().
		Int64("order_id", order.ID).
		Str("order_number", order.OrderNumber).
		Int("items", len(order.Items)).
		Msg("Order created")
	return order, nil
}

// GetOrder returns an order with its items
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, models.NewNotFoundError(models.ResourceOrder, strconv.FormatInt(orderID, 10))
	}
	return order, nil
}

// UpdateStatus is the administrative status change
func (s *OrderService) UpdateStatus(ctx context.Context, orderID int64, status string) (*models.Order, error) {
	target, err := models.ParseOrderStatus(status)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, orderID, target, "")
}

// MarkReceived lets the customer who placed a delivered order complete it
func (s *OrderService) MarkReceived(ctx context.Context, orderID int64, userID string) (*models.Order, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, models.NewValidationError("user_id", "user id is required", userID)
	}
	return s.transition(ctx, orderID, models.OrderStatusCompleted, userID)
}

// UpdatePaymentStatus records the payment state reported by the payment provider
func (s *OrderService) UpdatePaymentStatus(ctx context.Context, orderID int64, paymentStatus string) (*models.Order, error) {
	target, err := models.ParsePaymentStatus(paymentStatus)
	if err != nil {
		return nil, err
	}

	return s.orders.MutateOrder(ctx, orderID, func(order *models.Order) (*models.InventoryEvent, error) {
		if order.PaymentStatus == target {
			return nil, nil
		}

		previous := order.PaymentStatus
		order.PaymentStatus = target
		log.Info().Int64("order_id", order.ID).
			Str("from", string(previous)).
			Str("to", string(target)).
			Msg("Payment status changed")

		return &models.InventoryEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypePaymentStatusChanged,
			Reason:    string(previous) + " -> " + string(target),
			Timestamp: time.Now().UTC(),
		}, nil
	})
}

// ListOrdersByStatus returns the orders in one status
func (s *OrderService) ListOrdersByStatus(ctx context.Context, status string) ([]models.Order, error) {
	target, err := models.ParseOrderStatus(status)
	if err != nil {
		return nil, err
	}
	return s.orders.ListOrdersByStatus(ctx, target)
}

// GetOrderStats counts orders per status, every status present in the result, and
// adds the catalog stock summary
func (s *OrderService) GetOrderStats(ctx context.Context) (*models.OrderStats, error) {
	counts, err := s.orders.CountOrdersByStatus(ctx)
	if err != nil {
		return nil, err
	}
	stock, err := s.stock.GetStockStats(ctx)
	if err != nil {
		return nil, err
	}

	stats := &models.OrderStats{
		ByStatus:   make(map[models.OrderStatus]int64, len(models.OrderStatuses)),
		StockStats: *stock,
		Generated:  time.Now().UTC(),
	}
	for _, status := range models.OrderStatuses {
		stats.ByStatus[status] = counts[status]
		stats.Total += counts[status]
	}
	return stats, nil
}

// transition commits the status change under the order lock, then applies the
// inventory side effects of the new status. The side effects run only when the
// status actually changed, so they happen once per order.
func (s *OrderService) transition(ctx context.Context, orderID int64, target models.OrderStatus, ownerID string) (*models.Order, error) {
	var (
		changed bool
		from    models.OrderStatus
	)

	order, err := s.orders.MutateOrder(ctx, orderID, func(order *models.Order) (*models.InventoryEvent, error) {
		if ownerID != "" && order.UserID != ownerID {
			return nil, models.NewNotFoundError(models.ResourceOrder, strconv.FormatInt(orderID, 10))
		}

		from = order.Status
		var err error
		changed, err = order.ApplyTransition(target, time.Now().UTC())
		if err != nil || !changed {
			return nil, err
		}

		return &models.InventoryEvent{
			EventID:     uuid.New().String(),
			EventType:   models.EventTypeOrderStatusChanged,
			OrderStatus: target,
			Reason:      string(from) + " -> " + string(target),
			Timestamp:   time.Now().UTC(),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return order, nil
	}

	log.Info().Int64("order_id", order.ID).
		Str("from", string(from)).
		Str("to", string(target)).
		Msg("Order status changed")

	// The change is committed; inventory follow-ups run detached from the request.
	sideCtx, cancel := detach(ctx)
	defer cancel()

	switch target {
	case models.OrderStatusCancelled:
		if err := s.releaseItems(sideCtx, order); err != nil {
			return order, fmt.Errorf("order %s cancelled but stock was not fully released: %w", order.OrderNumber, err)
		}
	case models.OrderStatusCompleted:
		if err := s.confirmItems(sideCtx, order); err != nil {
			return order, fmt.Errorf("order %s completed but sales were not fully confirmed: %w", order.OrderNumber, err)
		}
	}

	return order, nil
}

// confirmItems confirms each line item in its own unit of work. Failures are not
// retried; each one is logged and recorded as an alert event.
func (s *OrderService) confirmItems(ctx context.Context, order *models.Order) error {
	var errs []error

	for _, item := range order.Items {
		if _, err := s.inventory.ConfirmSale(ctx, item.ProductID, item.Size, item.Quantity); err != nil {
			log.Error().Err(err).
				Int64("order_id", order.ID).
				Int64("product_id", item.ProductID).
				Str("size", item.Size).
				Int("qty", item.Quantity).
				Msg("Sale confirmation failed")

			s.recordAlert(ctx, models.EventTypeSaleConfirmationFailed, order, item, err)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// rollbackReservations releases what CreateOrder reserved before it failed
func (s *OrderService) rollbackReservations(ctx context.Context, order *models.Order) {
	releaseCtx, cancel := detach(ctx)
	defer cancel()

	if err := s.releaseItems(releaseCtx, order); err != nil {
		log.Error().Err(err).Str("order_number", order.OrderNumber).Msg("Order rollback left reservations behind")
	}
}

// releaseItems releases the reservation of every item, continuing past failures.
// Each failure is recorded as an alert event.
func (s *OrderService) releaseItems(ctx context.Context, order *models.Order) error {
	var errs []error

	for _, item := range order.Items {
		if _, err := s.inventory.Release(ctx, item.ProductID, item.Size, item.Quantity); err != nil {
			log.Error().Err(err).
				Str("order_number", order.OrderNumber).
				Int64("product_id", item.ProductID).
				Str("size", item.Size).
				Int("qty", item.Quantity).
				Msg("Failed to release reservation")
			s.recordAlert(ctx, models.EventTypeReservationReleaseFailed, order, item, err)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// recordAlert writes an inventory follow-up failure to the outbox for manual repair
func (s *OrderService) recordAlert(ctx context.Context, eventType string, order *models.Order, item models.OrderItem, cause error) {
	alert := &models.InventoryEvent{
		EventID:     uuid.New().String(),
		EventType:   eventType,
		ProductID:   item.ProductID,
		Size:        item.Size,
		Qty:         item.Quantity,
		OrderID:     order.ID,
		OrderStatus: order.Status,
		Reason:      order.OrderNumber + ": " + cause.Error(),
		Timestamp:   time.Now().UTC(),
	}
	if err := s.alerts.InsertEvent(ctx, alert); err != nil {
		log.Error().Err(err).
			Str("order_number", order.OrderNumber).
			Str("event_type", eventType).
			Msg("Failed to record inventory alert")
	}
}

// detach keeps the caller's values but not its cancellation, bounded by sideEffectTimeout
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
}

func validateCreateOrder(req *models.CreateOrderRequest) error {
	if req == nil {
		return models.NewValidationError("body", "request body is required", nil)
	}
	if strings.TrimSpace(req.UserID) == "" {
		return models.NewValidationError("user_id", "user id is required", req.UserID)
	}
	if len(req.Items) == 0 {
		return models.NewValidationError("items", "an order needs at least one item", nil)
	}
	for i, item := range req.Items {
		field := fmt.Sprintf("items[%d]", i)
		if item.ProductID <= 0 {
			return models.NewValidationError(field+".product_id", "product id must be positive", item.ProductID)
		}
		if models.NormalizeSize(item.Size) == "" {
			return models.NewValidationError(field+".size", "size is required", item.Size)
		}
		if item.Quantity <= 0 {
			return models.NewValidationError(field+".quantity", "quantity must be positive", item.Quantity)
		}
		if item.UnitPriceCents < 0 {
			return models.NewValidationError(field+".unit_price_cents", "price must not be negative", item.UnitPriceCents)
		}
	}
	return nil
}

// newOrderNumber returns a human readable order reference
func newOrderNumber() string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
	return "ORD-" + time.Now().UTC().Format("20060102") + "-" + id[:8]
}

var _ interfaces.OrderService = (*OrderService)(nil)
