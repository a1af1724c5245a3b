package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
)

// APIError represents a standardized error crossing an action or API boundary
type APIError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Field   string    `json:"field,omitempty"`
	Details string    `json:"details,omitempty"`
	Status  int       `json:"-"`

	cause error
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause, if any
func (e *APIError) Unwrap() error {
	return e.cause
}

// Is matches any APIError carrying the same code, so callers can write
// errors.Is(err, apperrors.ErrConflictSentinel).
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetails adds additional details to an error
func (e *APIError) WithDetails(details string) *APIError {
	e.Details = details
	return e
}

// WithCause records the error that produced this one
func (e *APIError) WithCause(err error) *APIError {
	e.cause = err
	return e
}

// Retryable reports whether the caller may reissue the action
func (e *APIError) Retryable() bool {
	return e.Code.Retryable()
}

// Sentinels for errors.Is comparisons
var (
	ErrValidationSentinel   = &APIError{Code: ErrValidation}
	ErrAuthRequiredSentinel = &APIError{Code: ErrAuthRequired}
	ErrConflictSentinel     = &APIError{Code: ErrConflict}
	ErrNotFoundSentinel     = &APIError{Code: ErrNotFound}
	ErrTransientSentinel    = &APIError{Code: ErrTransientNetwork}
	ErrStaleSentinel        = &APIError{Code: ErrStaleResponse}
)

func newError(code ErrorCode, message string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
		Status:  code.StatusCode(),
	}
}

// ValidationError creates a VALIDATION_ERROR for malformed or empty input
func ValidationError(field, message string) *APIError {
	e := newError(ErrValidation, message)
	e.Field = field
	return e
}

// AuthRequired creates an AUTH_REQUIRED error
func AuthRequired(message string) *APIError {
	if message == "" {
		message = "authentication required"
	}
	return newError(ErrAuthRequired, message)
}

// Forbidden creates a FORBIDDEN error
func Forbidden(message string) *APIError {
	return newError(ErrForbidden, message)
}

// Conflict creates a CONFLICT error for business-rule rejections
func Conflict(message string) *APIError {
	return newError(ErrConflict, message)
}

// NotFound creates a NOT_FOUND error
func NotFound(resource string) *APIError {
	return newError(ErrNotFound, fmt.Sprintf("%s not found", resource))
}

// BadRequest creates a BAD_REQUEST error
func BadRequest(message string) *APIError {
	return newError(ErrBadRequest, message)
}

// TransientNetwork creates a TRANSIENT_NETWORK error wrapping the cause
func TransientNetwork(operation string, cause error) *APIError {
	return newError(ErrTransientNetwork, fmt.Sprintf("%s failed: network unavailable", operation)).WithCause(cause)
}

// Timeout creates a TIMEOUT error
func Timeout(operation string) *APIError {
	return newError(ErrTimeout, fmt.Sprintf("%s timed out", operation))
}

// StaleResponse marks a confirmation superseded by a newer request.
// It is internal to the store and never returned to callers.
func StaleResponse(target string, seq, latest uint64) *APIError {
	return newError(ErrStaleResponse, fmt.Sprintf("response for %s superseded", target)).
		WithDetails(fmt.Sprintf("seq=%d latest=%d", seq, latest))
}

// RateLimited creates a RATE_LIMITED error
func RateLimited(message string) *APIError {
	if message == "" {
		message = "rate limit exceeded"
	}
	return newError(ErrRateLimited, message)
}

// ServiceUnavailable creates a SERVICE_UNAVAILABLE error
func ServiceUnavailable(service string) *APIError {
	return newError(ErrServiceUnavail, fmt.Sprintf("%s is temporarily unavailable", service))
}

// InternalError creates an INTERNAL_ERROR
func InternalError(message string) *APIError {
	return newError(ErrInternalError, message)
}

// FromStatus builds an error from an HTTP status and optional server-supplied code
func FromStatus(status int, code, message string) *APIError {
	c := ErrorCode(code)
	if _, known := StatusCodeMap[c]; !known {
		c = CodeForStatus(status)
	}
	if message == "" {
		message = fmt.Sprintf("request failed with status %d", status)
	}
	e := newError(c, message)
	e.Status = status
	return e
}

// Normalize converts any error returned by an external call into an APIError.
// APIErrors pass through; deadlines and network failures become transient.
func Normalize(operation string, err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return Timeout(operation).WithCause(err)
	}
	if stderrors.Is(err, context.Canceled) {
		return TransientNetwork(operation, err)
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) {
		if netErr.Timeout() {
			return Timeout(operation).WithCause(err)
		}
		return TransientNetwork(operation, err)
	}

	var opErr *net.OpError
	if stderrors.As(err, &opErr) {
		return TransientNetwork(operation, err)
	}

	return InternalError(fmt.Sprintf("%s failed", operation)).WithCause(err).WithDetails(err.Error())
}

// HasCode reports whether err is an APIError with the given code
func HasCode(err error, code ErrorCode) bool {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// IsTransient reports whether err is a retryable connectivity failure
func IsTransient(err error) bool {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return false
}
