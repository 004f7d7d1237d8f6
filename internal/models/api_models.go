package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents standardized error codes
type ErrorCode string

const (
	// Error codes for API responses
	ErrorCodeInvalidField            ErrorCode = "INVALID_FIELD"
	ErrorCodeMissingField            ErrorCode = "MISSING_FIELD"
	ErrorCodeInsufficientStock       ErrorCode = "INSUFFICIENT_STOCK"
	ErrorCodeInsufficientReservation ErrorCode = "INSUFFICIENT_RESERVATION"
	ErrorCodeSizeNotFound            ErrorCode = "SIZE_NOT_FOUND"
	ErrorCodeProductNotFound         ErrorCode = "PRODUCT_NOT_FOUND"
	ErrorCodeOrderNotFound           ErrorCode = "ORDER_NOT_FOUND"
	ErrorCodeInvalidStatus           ErrorCode = "INVALID_STATUS"
	ErrorCodeInvalidTransition       ErrorCode = "INVALID_TRANSITION"
	ErrorCodePaymentNotCompleted     ErrorCode = "PAYMENT_NOT_COMPLETED"
	ErrorCodeInternalError           ErrorCode = "INTERNAL_ERROR"
	ErrorCodeValidationError         ErrorCode = "VALIDATION_ERROR"
	ErrorCodeConflict                ErrorCode = "CONFLICT"
	ErrorCodeDecodeFailure           ErrorCode = "DECODE_FAILURE"
	ErrorCodeDatabaseError           ErrorCode = "DATABASE_ERROR"
	ErrorCodeCacheError              ErrorCode = "CACHE_ERROR"
	ErrorCodeEventingError           ErrorCode = "EVENTING_ERROR"
)

const (
	ProblemTypeValidationError = "validation-error"
	ProblemTypeBusinessError   = "business-logic-error"
	ProblemTypeNotFound        = "not-found"
	ProblemTypeInternalError   = "internal-error"
)

// API Request Models

// QuantityRequest carries the quantity for reserve, release and confirm calls
type QuantityRequest struct {
	Qty *int `json:"qty" binding:"required,min=0"`
}

// SetQuantityRequest is the administrative stock override
type SetQuantityRequest struct {
	Quantity *int `json:"quantity" binding:"required,min=0"`
}

// InitializeSizesRequest adds sizes that are not tracked yet
type InitializeSizesRequest struct {
	Sizes           []string `json:"sizes" binding:"required,min=1,dive,required"`
	QuantityPerSize int      `json:"quantity_per_size" binding:"min=0"`
}

// CreateProductRequest creates a catalog product together with its size inventory
type CreateProductRequest struct {
	Name            string   `json:"name" binding:"required"`
	Category        string   `json:"category"`
	PriceCents      int64    `json:"price_cents" binding:"min=0"`
	Sizes           []string `json:"sizes" binding:"dive,required"`
	QuantityPerSize int      `json:"quantity_per_size" binding:"min=0"`
}

// CreateOrderItem is one line of an order creation request
type CreateOrderItem struct {
	ProductID      int64  `json:"product_id" binding:"required,min=1"`
	Size           string `json:"size" binding:"required"`
	Quantity       int    `json:"quantity" binding:"required,min=1"`
	UnitPriceCents int64  `json:"unit_price_cents" binding:"min=0"`
}

// CreateOrderRequest places an order and reserves its line items
type CreateOrderRequest struct {
	UserID        string            `json:"user_id" binding:"required"`
	PaymentMethod string            `json:"payment_method" binding:"required"`
	Items         []CreateOrderItem `json:"items" binding:"required,min=1,dive"`
}

// UpdateOrderStatusRequest is the admin status change
type UpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdatePaymentStatusRequest is the payment status change
type UpdatePaymentStatusRequest struct {
	PaymentStatus string `json:"payment_status" binding:"required"`
}

// API Response Models

// InventoryResponse lists the size inventory of a product
type InventoryResponse struct {
	ProductID int64               `json:"product_id"`
	Sizes     []SizeInventoryView `json:"sizes"`
	CacheHit  bool                `json:"cache_hit"`
}

// AvailabilityResponse answers an availability check for one size
type AvailabilityResponse struct {
	ProductID int64  `json:"product_id"`
	Size      string `json:"size"`
	Requested int    `json:"requested"`
	Available bool   `json:"available"`
}

// ProductInventory is a product together with its sorted size views
type ProductInventory struct {
	Product
	Sizes []SizeInventoryView `json:"sizes"`
}

// Enhanced Error Handling Models

// ValidationError represents validation errors with detailed field information
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Value   any    `json:"value,omitempty"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// BusinessError represents business logic errors
type BusinessError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
}

func (e *BusinessError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// SystemError represents system-level errors (database, cache, external services)
type SystemError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Cause     error     `json:"-"` // Don't expose internal error details in JSON
	Component string    `json:"component"`
}

func (e *SystemError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s in %s: %s (caused by: %v)", e.Code, e.Component, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s in %s: %s", e.Code, e.Component, e.Message)
}

func (e *SystemError) Unwrap() error {
	return e.Cause
}

// NotFoundError represents resource not found errors
type NotFoundError struct {
	Resource string `json:"resource"`
	ID       string `json:"id"`
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID '%s' not found", e.Resource, e.ID)
}

// ConflictError represents concurrent modification conflicts
type ConflictError struct {
	Resource string `json:"resource"`
	Reason   string `json:"reason"`
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict with %s: %s", e.Resource, e.Reason)
}

type ProblemDetails struct {
	Type      string      `json:"type"`
	Title     string      `json:"title"`
	Status    int         `json:"status"`
	Detail    string      `json:"detail,omitempty"`
	Instance  string      `json:"instance,omitempty"`
	Field     string      `json:"field,omitempty"`
	Code      string      `json:"code,omitempty"`
	Errors    interface{} `json:"errors,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func NewProblemDetails(status int, title, detail string) *ProblemDetails {
	return &ProblemDetails{
		Type:      getProblemType(status),
		Title:     title,
		Status:    status,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	}
}

// NewValidationProblem creates a validation error problem
func NewValidationProblem(field, message string, code ErrorCode) *ProblemDetails {
	problem := NewProblemDetails(400, "Validation Failed", message)
	problem.Type = ProblemTypeValidationError
	problem.Field = field
	problem.Code = string(code)
	return problem
}

// NewMultiValidationProblem creates a multi-field validation error problem
func NewMultiValidationProblem(violations []ValidationError) *ProblemDetails {
	problem := NewProblemDetails(400, "Validation Failed", "Multiple validation errors occurred")
	problem.Type = ProblemTypeValidationError
	problem.Code = string(ErrorCodeValidationError)
	problem.Errors = violations
	return problem
}

// NewBusinessLogicProblem creates a business logic error problem
func NewBusinessLogicProblem(status int, title, detail string, code ErrorCode) *ProblemDetails {
	problem := NewProblemDetails(status, title, detail)
	problem.Type = ProblemTypeBusinessError
	problem.Code = string(code)
	return problem
}

// NewNotFoundProblem creates a not found error problem
func NewNotFoundProblem(resource string, code ErrorCode) *ProblemDetails {
	problem := NewProblemDetails(404, "Resource Not Found", resource+" not found")
	problem.Code = string(code)
	return problem
}

// NewInternalErrorProblem creates an internal server error problem
func NewInternalErrorProblem() *ProblemDetails {
	problem := NewProblemDetails(500, "Internal Server Error", "An unexpected error occurred")
	problem.Code = string(ErrorCodeInternalError)
	return problem
}

// Helper function to get problem type URI based on status code
func getProblemType(status int) string {
	switch status {
	case 400:
		return ProblemTypeValidationError
	case 404:
		return ProblemTypeNotFound
	case 409, 422:
		return ProblemTypeBusinessError
	default:
		return ProblemTypeInternalError
	}
}

// Error factory functions for common scenarios

func NewValidationError(field, message string, value any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

func NewBusinessError(code ErrorCode, message string, details any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

func NewSystemError(code ErrorCode, component, message string, cause error) *SystemError {
	return &SystemError{
		Code:      code,
		Message:   message,
		Cause:     cause,
		Component: component,
	}
}

func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		ID:       id,
	}
}

func NewConflictError(resource, reason string) *ConflictError {
	return &ConflictError{
		Resource: resource,
		Reason:   reason,
	}
}

// Error type guards, these look through wrapped errors

func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsBusinessError(err error) bool {
	var target *BusinessError
	return errors.As(err, &target)
}

func IsSystemError(err error) bool {
	var target *SystemError
	return errors.As(err, &target)
}

func IsNotFoundError(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsConflictError(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

// HasErrorCode reports whether err carries the given code
func HasErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// GetErrorCode extracts error code from various error types
func GetErrorCode(err error) ErrorCode {
	var (
		validationErr *ValidationError
		businessErr   *BusinessError
		systemErr     *SystemError
		notFoundErr   *NotFoundError
		conflictErr   *ConflictError
	)

	switch {
	case err == nil:
		return ""
	case errors.As(err, &validationErr):
		return ErrorCodeValidationError
	case errors.As(err, &businessErr):
		return businessErr.Code
	case errors.As(err, &systemErr):
		return systemErr.Code
	case errors.As(err, &notFoundErr):
		if notFoundErr.Resource == ResourceOrder {
			return ErrorCodeOrderNotFound
		}
		return ErrorCodeProductNotFound
	case errors.As(err, &conflictErr):
		return ErrorCodeConflict
	default:
		return ErrorCodeInternalError
	}
}

// Resource names used in NotFoundError
const (
	ResourceProduct = "Product"
	ResourceOrder   = "Order"
)

// OrderUpdateResponse is returned by order status changes. The status change is
// committed even when some inventory side effects failed; those are listed in
// SideEffectErrors.
type OrderUpdateResponse struct {
	*Order
	SideEffectErrors []string `json:"side_effect_errors,omitempty"`
}
