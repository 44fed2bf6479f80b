package platform

import (
	"errors"
	"fmt"
)

// Sentinel errors for API operations.
var (
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrConflict indicates the resource already exists.
	ErrConflict = errors.New("resource already exists")

	// ErrPermissionDenied indicates the token lacks access or is invalid.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrThrottled indicates the request was rate limited by the platform.
	ErrThrottled = errors.New("request throttled")

	// ErrUnavailable indicates the platform reported a temporary outage.
	ErrUnavailable = errors.New("service unavailable")

	// ErrTransient indicates the request never produced an API response:
	// connection failures, resets, timeouts. The request may or may not
	// have reached the platform, so mutating calls must not be blindly
	// retried on this error.
	ErrTransient = errors.New("transient network failure")
)

// Platform error codes that map onto sentinels. The platform returns these
// in the error_code field of failure bodies.
const (
	codeNotFound      = "RESOURCE_DOES_NOT_EXIST"
	codeConflict      = "RESOURCE_ALREADY_EXISTS"
	codeDenied        = "PERMISSION_DENIED"
	codeUnauth        = "UNAUTHENTICATED"
	codeTooMany       = "TOO_MANY_REQUESTS"
	codeLimitExceeded = "REQUEST_LIMIT_EXCEEDED"
	codeUnavailable   = "TEMPORARILY_UNAVAILABLE"
)

// APIError describes a non-2xx response from the platform API. The body's
// error_code and message are carried verbatim; the request's bearer token
// never appears here.
type APIError struct {
	// Method and Path identify the request that failed.
	Method string
	Path   string

	// StatusCode is the HTTP status of the response.
	StatusCode int

	// Code is the platform error_code, e.g. RESOURCE_DOES_NOT_EXIST.
	// Empty when the body carried no structured error.
	Code string

	// Message is the platform's error message.
	Message string

	// RequestID is the correlation id for support escalation.
	RequestID string

	// Err is the sentinel classification, when one applies.
	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	detail := fmt.Sprintf("HTTP %d", e.StatusCode)
	if e.Code != "" {
		detail += " " + e.Code
	}
	if e.Message != "" {
		detail += ": " + e.Message
	}
	if e.RequestID != "" {
		detail += " (request id " + e.RequestID + ")"
	}
	return fmt.Sprintf("%s %s: %s", e.Method, e.Path, detail)
}

// Unwrap returns the sentinel classification for errors.Is support.
func (e *APIError) Unwrap() error {
	return e.Err
}

// TransportError wraps failures where no API response was received.
// It always matches ErrTransient under errors.Is.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is reports ErrTransient for any transport-level failure.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransient
}

// classify maps a platform error code, or failing that the HTTP status,
// onto a sentinel. Returns nil when no sentinel applies.
func classify(statusCode int, code string) error {
	switch code {
	case codeNotFound:
		return ErrNotFound
	case codeConflict:
		return ErrConflict
	case codeDenied, codeUnauth:
		return ErrPermissionDenied
	case codeTooMany, codeLimitExceeded:
		return ErrThrottled
	case codeUnavailable:
		return ErrUnavailable
	}

	// Fallback on status for responses without a structured code.
	switch statusCode {
	case 404:
		return ErrNotFound
	case 409:
		return ErrConflict
	case 401, 403:
		return ErrPermissionDenied
	case 429:
		return ErrThrottled
	case 502, 503, 504:
		return ErrUnavailable
	}

	return nil
}

// IsNotFound returns true if the error indicates the resource does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true if the error indicates the resource already exists.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsPermissionDenied returns true if the error indicates missing or invalid access.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// IsThrottled returns true if the error indicates platform rate limiting.
func IsThrottled(err error) bool {
	return errors.Is(err, ErrThrottled)
}

// IsUnavailable returns true if the error indicates a temporary platform outage.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsTransient returns true if the request never produced an API response.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
