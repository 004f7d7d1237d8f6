package models

import (
	"slices"
	"strings"
	"time"
)

// OrderStatus is the lifecycle state of an order
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// PaymentStatus is the payment state reported by the payment collaborator
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// OrderStatuses lists every order status in lifecycle order
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusDelivered,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

var paymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusCompleted,
	PaymentStatusFailed,
}

// OrderTransitions holds the allowed target states for every order status.
// Terminal states have no entry.
var OrderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusDelivered:  {OrderStatusCompleted},
}

// TransitionGuard is a predicate that must hold before an order may enter a state
type TransitionGuard func(order *Order) error

// OrderTransitionGuards holds the gating predicates per target state
var OrderTransitionGuards = map[OrderStatus]TransitionGuard{
	OrderStatusDelivered: requirePaymentCompleted,
}

func requirePaymentCompleted(order *Order) error {
	if order.PaymentStatus != PaymentStatusCompleted {
		return NewBusinessError(ErrorCodePaymentNotCompleted,
			"cannot mark as DELIVERED: payment status is "+string(order.PaymentStatus),
			map[string]string{"order_id": order.OrderNumber})
	}
	return nil
}

// ParseOrderStatus validates a status string against the closed enum
func ParseOrderStatus(raw string) (OrderStatus, error) {
	status := OrderStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !slices.Contains(OrderStatuses, status) {
		return "", NewBusinessError(ErrorCodeInvalidStatus, "invalid order status: "+raw, nil)
	}
	return status, nil
}

// ParsePaymentStatus validates a payment status string against the closed enum
func ParsePaymentStatus(raw string) (PaymentStatus, error) {
	status := PaymentStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !slices.Contains(paymentStatuses, status) {
		return "", NewBusinessError(ErrorCodeInvalidStatus, "invalid payment status: "+raw, nil)
	}
	return status, nil
}

// CanTransition reports whether the table allows moving from current to target
func CanTransition(current, target OrderStatus) bool {
	return slices.Contains(OrderTransitions[current], target)
}

// IsTerminal reports whether no further transitions are possible
func (s OrderStatus) IsTerminal() bool {
	return len(OrderTransitions[s]) == 0
}

// Order is an order placed against the storefront
type Order struct {
	ID            int64         `db:"id" json:"id"`
	OrderNumber   string        `db:"order_number" json:"order_number"`
	UserID        string        `db:"user_id" json:"user_id"`
	Status        OrderStatus   `db:"status" json:"status"`
	PaymentStatus PaymentStatus `db:"payment_status" json:"payment_status"`
	PaymentMethod string        `db:"payment_method" json:"payment_method"`
	TotalCents    int64         `db:"total_cents" json:"total_cents"`
	Version       int64         `db:"version" json:"version"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
	Items         []OrderItem   `db:"-" json:"items"`
}

// OrderItem is one line of an order; ProductID, Size and Quantity are the keys of
// the inventory operations.
type OrderItem struct {
	ID             int64  `db:"id" json:"id"`
	OrderID        int64  `db:"order_id" json:"-"`
	ProductID      int64  `db:"product_id" json:"product_id"`
	Size           string `db:"size" json:"size"`
	Quantity       int    `db:"quantity" json:"quantity"`
	UnitPriceCents int64  `db:"unit_price_cents" json:"unit_price_cents"`
}

// ApplyTransition validates and applies a status change to the order.
// Moving to the current status is reported as unchanged.
func (o *Order) ApplyTransition(target OrderStatus, now time.Time) (changed bool, err error) {
	if o.Status == target {
		return false, nil
	}

	if guard, ok := OrderTransitionGuards[target]; ok {
		if err := guard(o); err != nil {
			return false, err
		}
	}

	if !CanTransition(o.Status, target) {
		return false, NewBusinessError(ErrorCodeInvalidTransition,
			"cannot move order from "+string(o.Status)+" to "+string(target),
			map[string]string{"from": string(o.Status), "to": string(target)})
	}

	o.Status = target
	o.UpdatedAt = now
	return true, nil
}

// OrderStats counts orders per status, next to the catalog stock summary
type OrderStats struct {
	Total     int64                 `json:"total"`
	ByStatus  map[OrderStatus]int64 `json:"by_status"`
	StockStats
	Generated time.Time `json:"generated_at"`
}

// StockStats summarizes catalog stock. A product is low on stock when any of its
// sizes has at most LowStockThreshold units available.
type StockStats struct {
	TotalProducts     int64 `json:"total_products"`
	LowStockProducts  int64 `json:"low_stock_products"`
	LowStockThreshold int   `json:"low_stock_threshold"`
}
