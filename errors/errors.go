// Package errors provides unified error handling for taskflow.
// It implements structured error types with error codes, HTTP status mapping,
// and retryable detection following RFC 7807 and Google AIP-193.
package errors

import (
	"fmt"
	"net/http"
	"strings"
)

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// HTTPStatus is the recommended HTTP status code for this error.
	HTTPStatus int `json:"-"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetails merges the provided details into the error and returns the receiver.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Retryable:  IsRetryableCode(code),
	}
}

// --- Common Error Constructors ---

// ServiceUnavailable creates a new AppError for a provider that is temporarily unavailable.
func ServiceUnavailable(service string) *AppError {
	return &AppError{
		Code: ErrCodeServiceUnavailable, Message: fmt.Sprintf("The %s is temporarily unavailable. Please try again.", service),
		HTTPStatus: http.StatusServiceUnavailable, Retryable: true,
		Details: map[string]any{"service": service},
	}
}

// Timeout creates a new AppError for an operation that timed out.
func Timeout(operation string) *AppError {
	return &AppError{
		Code: ErrCodeTimeout, Message: fmt.Sprintf("%s took too long.", operation),
		HTTPStatus: http.StatusGatewayTimeout, Retryable: true,
		Details: map[string]any{"operation": operation},
	}
}

// RateLimited creates a new AppError for too many requests.
func RateLimited() *AppError {
	return &AppError{
		Code: ErrCodeRateLimited, Message: "Too many requests. Please wait a moment and try again.",
		HTTPStatus: http.StatusTooManyRequests, Retryable: true,
	}
}

// NotFound creates a new AppError for a resource that was not found.
func NotFound(resource, id string) *AppError {
	details := map[string]any{"resource": resource}
	if id != "" {
		details["id"] = id
	}
	return &AppError{
		Code: ErrCodeNotFound, Message: fmt.Sprintf("The requested %s was not found.", resource),
		HTTPStatus: http.StatusNotFound, Retryable: false, Details: details,
	}
}

// Conflict creates a new AppError for a conflict with the current state of the resource.
func Conflict(reason string) *AppError {
	return &AppError{
		Code: ErrCodeConflict, Message: reason,
		HTTPStatus: http.StatusConflict, Retryable: false,
	}
}

// InvalidInput creates a new AppError for invalid input.
func InvalidInput(field, reason string) *AppError {
	details := make(map[string]any)
	if field != "" {
		details["field"] = field
	}
	return &AppError{
		Code: ErrCodeInvalidInput, Message: fmt.Sprintf("Invalid input: %s", reason),
		HTTPStatus: http.StatusBadRequest, Retryable: false, Details: details,
	}
}

// Validation creates a new AppError for validation errors.
func Validation(message string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidInput, Message: message,
		HTTPStatus: http.StatusBadRequest, Retryable: false,
	}
}

// MissingField creates a new AppError for a missing required field.
func MissingField(field string) *AppError {
	return &AppError{
		Code: ErrCodeMissingField, Message: fmt.Sprintf("Missing required field: %s", field),
		HTTPStatus: http.StatusBadRequest, Retryable: false,
		Details: map[string]any{"field": field},
	}
}

// Internal creates a new AppError for an internal error.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "An unexpected error occurred.",
		HTTPStatus: http.StatusInternalServerError, Retryable: false, Cause: cause,
	}
}

// ExternalServiceError creates a new AppError for an error from an external service.
func ExternalServiceError(service string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeExternalService, Message: fmt.Sprintf("The %s service encountered an error.", service),
		HTTPStatus: http.StatusBadGateway, Retryable: true,
		Details: map[string]any{"service": service}, Cause: cause,
	}
}

// --- Graph and run constructors ---

// InvalidGraph creates a new AppError for a graph rejected before scheduling.
func InvalidGraph(reason string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidGraph, Message: fmt.Sprintf("Invalid task graph: %s", reason),
		HTTPStatus: http.StatusUnprocessableEntity, Retryable: false,
	}
}

// CycleDetected creates a new AppError for a cyclic graph. The path lists the
// node ids along the cycle, first and last being equal.
func CycleDetected(path []string) *AppError {
	return &AppError{
		Code: ErrCodeCycleDetected, Message: fmt.Sprintf("Task graph contains a cycle: %s", strings.Join(path, " -> ")),
		HTTPStatus: http.StatusUnprocessableEntity, Retryable: false,
		Details: map[string]any{"path": path},
	}
}

// DanglingEdge creates a new AppError for an edge whose endpoint does not exist.
func DanglingEdge(source, target string) *AppError {
	return &AppError{
		Code: ErrCodeDanglingEdge, Message: fmt.Sprintf("Edge %s -> %s references an unknown node.", source, target),
		HTTPStatus: http.StatusUnprocessableEntity, Retryable: false,
		Details: map[string]any{"source": source, "target": target},
	}
}

// DuplicateID creates a new AppError for a node id declared more than once.
func DuplicateID(id string) *AppError {
	return &AppError{
		Code: ErrCodeDuplicateID, Message: fmt.Sprintf("Node id %q is declared more than once.", id),
		HTTPStatus: http.StatusUnprocessableEntity, Retryable: false,
		Details: map[string]any{"id": id},
	}
}

// UnresolvedReference creates a new AppError for a template reference that
// could not be resolved against run state.
func UnresolvedReference(nodeID, ref string) *AppError {
	return &AppError{
		Code: ErrCodeUnresolvedReference, Message: fmt.Sprintf("Node %s references %s which has no recorded output.", nodeID, ref),
		HTTPStatus: http.StatusInternalServerError, Retryable: false,
		Details: map[string]any{"node_id": nodeID, "reference": ref},
	}
}

// ExecutorFailed creates a new AppError for a failed capability call on a node.
func ExecutorFailed(nodeID string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeExecutorFailed, Message: fmt.Sprintf("Node %s failed.", nodeID),
		HTTPStatus: http.StatusBadGateway, Retryable: false,
		Details: map[string]any{"node_id": nodeID}, Cause: cause,
	}
}

// RunNotFound creates a new AppError for an unknown run id.
func RunNotFound(id string) *AppError {
	return &AppError{
		Code: ErrCodeRunNotFound, Message: fmt.Sprintf("Run %s was not found.", id),
		HTTPStatus: http.StatusNotFound, Retryable: false,
		Details: map[string]any{"run_id": id},
	}
}

// RunNotReplayable creates a new AppError for a replay against a run that has
// not finished.
func RunNotReplayable(id, stage string) *AppError {
	return &AppError{
		Code: ErrCodeRunNotReplayable, Message: fmt.Sprintf("Run %s is %s and cannot be replayed yet.", id, stage),
		HTTPStatus: http.StatusConflict, Retryable: true,
		Details: map[string]any{"run_id": id, "stage": stage},
	}
}
