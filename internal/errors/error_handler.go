// Package errors provides error handling and HTTP status code mapping
// for the API surface.
package errors

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/devrev/prboard/internal/gateway"
)

// ErrorCode represents application-specific error codes.
type ErrorCode string

const (
	ErrorCodeUnknown        ErrorCode = "UNKNOWN"
	ErrorCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrorCodeInternalError  ErrorCode = "INTERNAL_ERROR"
	ErrorCodeNotFound       ErrorCode = "NOT_FOUND"
	ErrorCodeRateLimited    ErrorCode = "RATE_LIMITED"
	ErrorCodeUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrorCodeConflict       ErrorCode = "CONFLICT"
	ErrorCodeUpstreamDown   ErrorCode = "UPSTREAM_UNAVAILABLE"
)

// ErrorResponse represents the standard error response format.
type ErrorResponse struct {
	Status    string    `json:"status"`
	ErrorCode ErrorCode `json:"error_code"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id,omitempty"`
}

// Handler provides error handling functionality.
type Handler struct {
	logger *zap.Logger
}

// NewHandler creates a new error handler.
func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{
		logger: logger,
	}
}

// HandleError processes an error and writes an appropriate HTTP response.
func (h *Handler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := r.Header.Get("X-Request-ID")
	h.WriteErrorResponse(w, statusFor(err), codeFor(err), err.Error(), requestID)
}

// statusFor maps an upstream failure kind to an HTTP status code.
func statusFor(err error) int {
	switch gateway.KindOf(err) {
	case gateway.KindNotFound:
		return http.StatusNotFound
	case gateway.KindAuthFailed:
		return http.StatusUnauthorized
	case gateway.KindRateLimited:
		return http.StatusTooManyRequests
	case gateway.KindUnprocessable:
		return http.StatusUnprocessableEntity
	case gateway.KindNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// codeFor maps an upstream failure kind to an application error code.
func codeFor(err error) ErrorCode {
	switch gateway.KindOf(err) {
	case gateway.KindNotFound:
		return ErrorCodeNotFound
	case gateway.KindAuthFailed:
		return ErrorCodeUnauthorized
	case gateway.KindRateLimited:
		return ErrorCodeRateLimited
	case gateway.KindUnprocessable:
		return ErrorCodeConflict
	case gateway.KindNetwork:
		return ErrorCodeUpstreamDown
	default:
		return ErrorCodeInternalError
	}
}

// WriteErrorResponse writes a formatted error response to the HTTP response writer.
func (h *Handler) WriteErrorResponse(w http.ResponseWriter, statusCode int, errorCode ErrorCode, message string, requestID string) {
	h.logger.Warn("HTTP error response",
		zap.Int("status_code", statusCode),
		zap.String("error_code", string(errorCode)),
		zap.String("message", message),
		zap.String("request_id", requestID),
	)

	resp := ErrorResponse{
		Status:    "error",
		ErrorCode: errorCode,
		Message:   message,
		RequestID: requestID,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

// WriteValidationError writes a validation error response.
func (h *Handler) WriteValidationError(w http.ResponseWriter, message string, requestID string) {
	h.WriteErrorResponse(w, http.StatusBadRequest, ErrorCodeInvalidRequest, message, requestID)
}

// WriteInternalError writes an internal error response.
func (h *Handler) WriteInternalError(w http.ResponseWriter, message string, requestID string) {
	h.WriteErrorResponse(w, http.StatusInternalServerError, ErrorCodeInternalError, message, requestID)
}
