package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Josef-Cakes/IndustryE/internal/models"
)

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}

// RequestLoggerMiddleware logs every request through zerolog
func RequestLoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := log.Info()
		switch {
		case status >= http.StatusInternalServerError:
			event = log.Error()
		case status >= http.StatusBadRequest:
			event = log.Warn()
		}

		event.
			Str("request_id", getRequestID(c)).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("HTTP request")
	}
}

// ErrorHandlerMiddleware renders errors attached with c.Error as problem details
func ErrorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last()
		if err.Type == gin.ErrorTypeBind {
			handleBindError(c, err.Err)
			return
		}
		Response.Error(c, err.Err)
	}
}

// CORSMiddleware handles CORS headers
func CORSMiddleware(methods string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", methods)
		c.Header("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Request-ID, X-User-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// newEngine builds a gin engine with the shared middleware chain
func newEngine(methods string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLoggerMiddleware())
	r.Use(ErrorHandlerMiddleware())
	r.Use(CORSMiddleware(methods))
	return r
}

// healthCheck returns a handler reporting the service name
func healthCheck(service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": service,
		})
	}
}

// ResponseHelpers provides methods for REST-native responses
type ResponseHelpers struct{}

// Success sends the resource directly (no wrapper)
func (h *ResponseHelpers) Success(c *gin.Context, resource interface{}) {
	c.JSON(http.StatusOK, resource)
}

// Created sends a 201 created response with the created resource
func (h *ResponseHelpers) Created(c *gin.Context, resource interface{}) {
	c.JSON(http.StatusCreated, resource)
}

// NoContent sends a 204 no content response
func (h *ResponseHelpers) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func (h *ResponseHelpers) ValidationError(c *gin.Context, field, message string) {
	h.problem(c, models.NewValidationProblem(field, message, models.ErrorCodeInvalidField))
}

// Error maps a service error onto its problem response
func (h *ResponseHelpers) Error(c *gin.Context, err error) {
	var (
		validationErr *models.ValidationError
		businessErr   *models.BusinessError
		notFoundErr   *models.NotFoundError
		conflictErr   *models.ConflictError
	)

	switch {
	case errors.As(err, &validationErr):
		h.problem(c, models.NewValidationProblem(validationErr.Field, validationErr.Message, models.ErrorCodeInvalidField))
	case errors.As(err, &notFoundErr):
		problem := models.NewNotFoundProblem(notFoundErr.Resource, models.GetErrorCode(err))
		problem.Detail = notFoundErr.Error()
		h.problem(c, problem)
	case errors.As(err, &businessErr):
		status, title := businessStatus(businessErr.Code)
		problem := models.NewBusinessLogicProblem(status, title, businessErr.Message, businessErr.Code)
		if status == http.StatusNotFound {
			problem.Type = models.ProblemTypeNotFound
		}
		h.problem(c, problem)
	case errors.As(err, &conflictErr):
		h.problem(c, models.NewBusinessLogicProblem(http.StatusConflict, "Concurrent Modification", conflictErr.Error(), models.ErrorCodeConflict))
	default:
		h.InternalError(c, err)
	}
}

// InternalError sends a 500 internal server error response
func (h *ResponseHelpers) InternalError(c *gin.Context, err error) {
	// Log the error for debugging but don't expose internals
	log.Error().
		Str("request_id", getRequestID(c)).
		Str("code", string(models.GetErrorCode(err))).
		Err(err).
		Msg("Internal server error")

	problem := models.NewInternalErrorProblem()
	if code := models.GetErrorCode(err); code != models.ErrorCodeInternalError {
		problem.Code = string(code)
	}
	h.problem(c, problem)
}

func (h *ResponseHelpers) problem(c *gin.Context, problem *models.ProblemDetails) {
	problem.Instance = c.Request.URL.Path
	h.setRequestIDHeader(c)
	c.Header("Content-Type", "application/problem+json")
	c.JSON(problem.Status, problem)
}

// Helper functions

func (h *ResponseHelpers) setRequestIDHeader(c *gin.Context) {
	if requestID := getRequestID(c); requestID != "" {
		c.Header("X-Request-ID", requestID)
	}
}

func getRequestID(c *gin.Context) string {
	if requestID, exists := c.Get("request_id"); exists {
		return requestID.(string)
	}
	return ""
}

func businessStatus(code models.ErrorCode) (int, string) {
	switch code {
	case models.ErrorCodeSizeNotFound:
		return http.StatusNotFound, "Size Not Found"
	case models.ErrorCodeInsufficientStock:
		return http.StatusConflict, "Insufficient Stock"
	case models.ErrorCodeInsufficientReservation:
		return http.StatusConflict, "Insufficient Reservation"
	case models.ErrorCodeInvalidStatus:
		return http.StatusBadRequest, "Invalid Status"
	case models.ErrorCodeInvalidTransition:
		return http.StatusUnprocessableEntity, "Invalid Transition"
	case models.ErrorCodePaymentNotCompleted:
		return http.StatusUnprocessableEntity, "Payment Not Completed"
	default:
		return http.StatusUnprocessableEntity, "Business Rule Violation"
	}
}

func handleBindError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		violations := make([]models.ValidationError, 0, len(validationErrors))
		for _, validationError := range validationErrors {
			violations = append(violations, models.ValidationError{
				Field:   jsonFieldName(validationError),
				Message: getValidationMessage(validationError),
				Code:    validationError.Tag(),
			})
		}

		Response.problem(c, models.NewMultiValidationProblem(violations))
		return
	}

	// Malformed JSON and type mismatches
	problem := models.NewProblemDetails(http.StatusBadRequest, "Bad Request", "Invalid request format")
	problem.Code = string(models.ErrorCodeInvalidField)
	Response.problem(c, problem)
}

// jsonFieldName turns a validator namespace like CreateOrderRequest.Items[0].Size into items[0].size
func jsonFieldName(err validator.FieldError) string {
	namespace := err.Namespace()
	if i := strings.Index(namespace, "."); i >= 0 {
		namespace = namespace[i+1:]
	}
	return toSnake(namespace)
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && (s[i-1] >= 'a' && s[i-1] <= 'z' || s[i-1] >= '0' && s[i-1] <= '9') {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func getValidationMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "This field is required"
	case "min":
		return "Value is too small"
	case "max":
		return "Value is too large"
	default:
		return "Invalid value"
	}
}

// bindJSON binds the request body, attaching a bind error on failure
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return false
	}
	return true
}

// Create a global instance for easy access
var Response = &ResponseHelpers{}
