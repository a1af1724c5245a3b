package errors

import "net/http"

// ErrorCode represents the type of error
type ErrorCode string

const (
	ErrValidation       ErrorCode = "VALIDATION_ERROR"
	ErrAuthRequired     ErrorCode = "AUTH_REQUIRED"
	ErrForbidden        ErrorCode = "FORBIDDEN"
	ErrConflict         ErrorCode = "CONFLICT"
	ErrNotFound         ErrorCode = "NOT_FOUND"
	ErrBadRequest       ErrorCode = "BAD_REQUEST"
	ErrTransientNetwork ErrorCode = "TRANSIENT_NETWORK"
	ErrTimeout          ErrorCode = "TIMEOUT"
	ErrStaleResponse    ErrorCode = "STALE_RESPONSE"
	ErrRateLimited      ErrorCode = "RATE_LIMITED"
	ErrServiceUnavail   ErrorCode = "SERVICE_UNAVAILABLE"
	ErrInternalError    ErrorCode = "INTERNAL_ERROR"
)

// StatusCodeMap maps ErrorCode to HTTP status code
var StatusCodeMap = map[ErrorCode]int{
	ErrValidation:       http.StatusUnprocessableEntity,
	ErrAuthRequired:     http.StatusUnauthorized,
	ErrForbidden:        http.StatusForbidden,
	ErrConflict:         http.StatusConflict,
	ErrNotFound:         http.StatusNotFound,
	ErrBadRequest:       http.StatusBadRequest,
	ErrTransientNetwork: http.StatusBadGateway,
	ErrTimeout:          http.StatusGatewayTimeout,
	ErrStaleResponse:    http.StatusConflict,
	ErrRateLimited:      http.StatusTooManyRequests,
	ErrServiceUnavail:   http.StatusServiceUnavailable,
	ErrInternalError:    http.StatusInternalServerError,
}

// StatusCode returns the HTTP status code for this error code
func (e ErrorCode) StatusCode() int {
	if code, ok := StatusCodeMap[e]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// Retryable reports whether reissuing the same action may succeed.
func (e ErrorCode) Retryable() bool {
	switch e {
	case ErrTransientNetwork, ErrTimeout, ErrServiceUnavail, ErrRateLimited:
		return true
	}
	return false
}

// CodeForStatus maps an HTTP status received from the API back onto a code.
// Used by clients when the response body carries no code.
func CodeForStatus(status int) ErrorCode {
	switch {
	case status == http.StatusUnprocessableEntity:
		return ErrValidation
	case status == http.StatusBadRequest:
		return ErrBadRequest
	case status == http.StatusUnauthorized:
		return ErrAuthRequired
	case status == http.StatusForbidden:
		return ErrForbidden
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusConflict:
		return ErrConflict
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout:
		return ErrTimeout
	case status == http.StatusBadGateway:
		return ErrTransientNetwork
	case status == http.StatusServiceUnavailable:
		return ErrServiceUnavail
	default:
		return ErrInternalError
	}
}
