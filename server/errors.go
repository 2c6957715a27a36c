package server

import (
	"fmt"
	"maps"
	"net/http"
)

// BaseAPIError provides a basic implementation of IAPIError.
type BaseAPIError struct {
	code       string
	message    string
	httpStatus int
	details    map[string]any
}

// NewBaseAPIError creates a new base API error.
func NewBaseAPIError(code, message string, httpStatus int) *BaseAPIError {
	return &BaseAPIError{
		code:       code,
		message:    message,
		httpStatus: httpStatus,
		details:    make(map[string]any),
	}
}

// ErrorCode returns the error code.
func (e *BaseAPIError) ErrorCode() string {
	return e.code
}

// Message returns the error message.
func (e *BaseAPIError) Message() string {
	return e.message
}

// HTTPStatus returns the HTTP status code.
func (e *BaseAPIError) HTTPStatus() int {
	return e.httpStatus
}

// Details returns a copy of the additional error details.
func (e *BaseAPIError) Details() map[string]any {
	if e.details == nil {
		return nil
	}
	cp := make(map[string]any, len(e.details))
	maps.Copy(cp, e.details)
	return cp
}

// WithDetails adds details to the error.
func (e *BaseAPIError) WithDetails(key string, value any) *BaseAPIError {
	e.details[key] = value
	return e
}

// Error implements the error interface.
func (e *BaseAPIError) Error() string {
	if e == nil {
		return ""
	}
	if e.code == "" {
		return e.message
	}
	return e.code + ": " + e.message
}

// NewNotFoundError creates a not found error for resource.
func NewNotFoundError(resource string) *BaseAPIError {
	return NewBaseAPIError("NOT_FOUND", fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

// NewBadRequestError creates a bad request error.
func NewBadRequestError(message string) *BaseAPIError {
	return NewBaseAPIError("BAD_REQUEST", message, http.StatusBadRequest)
}

// NewConflictError creates a conflict error.
func NewConflictError(message string) *BaseAPIError {
	return NewBaseAPIError("CONFLICT", message, http.StatusConflict)
}

// NewMisdirectedRequestError reports a request for a base URL this service does
// not declare.
func NewMisdirectedRequestError(requestURL string) *BaseAPIError {
	return NewBaseAPIError("MISDIRECTED_REQUEST", "No declared site matches the request", http.StatusMisdirectedRequest).
		WithDetails("url", requestURL)
}

// NewInternalServerError creates an internal server error.
func NewInternalServerError(message string) *BaseAPIError {
	if message == "" {
		message = "An internal error occurred"
	}
	return NewBaseAPIError("INTERNAL_ERROR", message, http.StatusInternalServerError)
}

// NewTooManyRequestsError creates a rate limiting error.
func NewTooManyRequestsError(message string) *BaseAPIError {
	if message == "" {
		message = "Rate limit exceeded"
	}
	return NewBaseAPIError("TOO_MANY_REQUESTS", message, http.StatusTooManyRequests)
}

// Compile-time interface assertions
var _ IAPIError = (*BaseAPIError)(nil)
