package models

import (
	"strconv"
	"time"
)

// Event types for Kafka messages
const (
	EventTypeSizeReserved             = "size_reserved"
	EventTypeSizeReleased             = "size_released"
	EventTypeSaleConfirmed            = "sale_confirmed"
	EventTypeQuantitySet              = "quantity_set"
	EventTypeSizesInitialized         = "sizes_initialized"
	EventTypeProductCreated           = "product_created"
	EventTypeProductDeleted           = "product_deleted"
	EventTypeOrderCreated             = "order_created"
	EventTypeOrderStatusChanged       = "order_status_changed"
	EventTypePaymentStatusChanged     = "payment_status_changed"
	EventTypeSaleConfirmationFailed   = "sale_confirmation_failed"
	EventTypeReservationReleaseFailed = "reservation_release_failed"
	EventTypeInventoryState           = "inventory_state"
)

// InventoryEvent represents events published to Kafka through the outbox
type InventoryEvent struct {
	EventID     string      `json:"event_id"`
	EventType   string      `json:"event_type"`
	ProductID   int64       `json:"product_id,omitempty"`
	Size        string      `json:"size,omitempty"`
	Qty         int         `json:"qty,omitempty"`
	Version     int64       `json:"version"`
	OrderID     int64       `json:"order_id,omitempty"`
	OrderStatus OrderStatus `json:"order_status,omitempty"`
	Reason      string      `json:"reason,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

// Key returns the partition key; events of one product stay ordered
func (e *InventoryEvent) Key() string {
	if e.ProductID != 0 {
		return strconv.FormatInt(e.ProductID, 10)
	}
	return "order-" + strconv.FormatInt(e.OrderID, 10)
}

// InventoryState represents the current state of a product published to the state topic
type InventoryState struct {
	ProductID int64               `json:"product_id"`
	Sizes     []SizeInventoryView `json:"sizes"`
	Deleted   bool                `json:"deleted,omitempty"`
	Version   int64               `json:"version"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Key returns the partition key of the state message
func (s *InventoryState) Key() string {
	return strconv.FormatInt(s.ProductID, 10)
}

// OutboxEvent represents the outbox pattern table for reliable event publishing
type OutboxEvent struct {
	ID              int64      `db:"id" json:"id"`
	EventType       string     `db:"event_type" json:"event_type"`
	Key             string     `db:"key" json:"key"`
	Payload         string     `db:"payload" json:"payload"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	Published       bool       `db:"published" json:"published"`
	PublishedAt     *time.Time `db:"published_at" json:"published_at,omitempty"`
	PublishAttempts int        `db:"publish_attempts" json:"publish_attempts"`
	LastError       *string    `db:"last_error" json:"last_error,omitempty"`
}
