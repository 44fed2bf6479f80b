package platform

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		code       string
		want       error
	}{
		{"code not found", 400, "RESOURCE_DOES_NOT_EXIST", ErrNotFound},
		{"code conflict", 400, "RESOURCE_ALREADY_EXISTS", ErrConflict},
		{"code permission denied", 400, "PERMISSION_DENIED", ErrPermissionDenied},
		{"code unauthenticated", 400, "UNAUTHENTICATED", ErrPermissionDenied},
		{"code too many requests", 400, "TOO_MANY_REQUESTS", ErrThrottled},
		{"code request limit", 400, "REQUEST_LIMIT_EXCEEDED", ErrThrottled},
		{"code unavailable", 400, "TEMPORARILY_UNAVAILABLE", ErrUnavailable},
		{"status 404 without code", 404, "", ErrNotFound},
		{"status 409 without code", 409, "", ErrConflict},
		{"status 401 without code", 401, "", ErrPermissionDenied},
		{"status 403 without code", 403, "", ErrPermissionDenied},
		{"status 429 without code", 429, "", ErrThrottled},
		{"status 503 without code", 503, "", ErrUnavailable},
		{"code wins over status", 404, "RESOURCE_ALREADY_EXISTS", ErrConflict},
		{"invalid parameter has no sentinel", 400, "INVALID_PARAMETER_VALUE", nil},
		{"plain 500 has no sentinel", 500, "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.statusCode, tt.code))
		})
	}
}

func TestAPIError_Error(t *testing.T) {
	e := &APIError{
		Method:     "POST",
		Path:       "/api/2.1/jobs/reset",
		StatusCode: 400,
		Code:       "RESOURCE_DOES_NOT_EXIST",
		Message:    "Job 123 does not exist.",
		RequestID:  "req-1",
	}
	msg := e.Error()
	assert.Contains(t, msg, "POST /api/2.1/jobs/reset")
	assert.Contains(t, msg, "HTTP 400")
	assert.Contains(t, msg, "RESOURCE_DOES_NOT_EXIST")
	assert.Contains(t, msg, "Job 123 does not exist.")
	assert.Contains(t, msg, "req-1")
}

func TestAPIError_SentinelMatching(t *testing.T) {
	e := &APIError{StatusCode: 404, Err: ErrNotFound}
	assert.True(t, IsNotFound(e))
	assert.False(t, IsConflict(e))

	var apiErr *APIError
	assert.True(t, errors.As(error(e), &apiErr))
}

func TestTransportError_IsTransient(t *testing.T) {
	inner := errors.New("connection reset by peer")
	e := &TransportError{Method: "GET", Path: "/api/2.1/jobs/list", Err: inner}

	assert.True(t, IsTransient(e))
	assert.True(t, errors.Is(e, inner))
	assert.False(t, IsNotFound(e))
	assert.Contains(t, e.Error(), "connection reset")
}
