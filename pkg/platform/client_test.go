package platform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gostratus/pkg/credentials"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cred, err := credentials.New(server.URL, "tok-1")
	require.NoError(t, err)

	client, err := NewClient(cred, Options{})
	require.NoError(t, err)
	return client, server
}

func TestNewClient_NilCredential(t *testing.T) {
	_, err := NewClient(nil, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, credentials.ErrNoCredential)
}

func TestClient_Do_RequestShape(t *testing.T) {
	var captured *http.Request
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Clone(r.Context())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))

	var out struct {
		OK bool `json:"ok"`
	}
	err := client.Do(context.Background(), http.MethodPost, "/api/2.1/jobs/create",
		nil, map[string]string{"name": "nightly"}, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)

	require.NotNil(t, captured)
	assert.Equal(t, "/api/2.1/jobs/create", captured.URL.Path)
	assert.Equal(t, "Bearer tok-1", captured.Header.Get("Authorization"))
	assert.Equal(t, "application/json", captured.Header.Get("Content-Type"))
	assert.NotEmpty(t, captured.Header.Get("X-Request-Id"))
	assert.Contains(t, captured.Header.Get("User-Agent"), "gostratus")
}

func TestClient_Get_QueryParameters(t *testing.T) {
	var gotQuery url.Values
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(`{}`))
	}))

	q := url.Values{}
	q.Set("limit", "20")
	q.Set("page_token", "abc")
	require.NoError(t, client.Get(context.Background(), "/api/2.1/jobs/list", q, nil))

	assert.Equal(t, "20", gotQuery.Get("limit"))
	assert.Equal(t, "abc", gotQuery.Get("page_token"))
}

func TestClient_Do_APIError(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error_code": "RESOURCE_DOES_NOT_EXIST", "message": "Job 999 does not exist."}`))
	}))

	err := client.Get(context.Background(), "/api/2.1/jobs/get", nil, nil)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "RESOURCE_DOES_NOT_EXIST", apiErr.Code)
	assert.Equal(t, "Job 999 does not exist.", apiErr.Message)
	assert.True(t, IsNotFound(err))
}

func TestClient_Do_UnstructuredErrorBody(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>upstream connect error</html>"))
	}))

	err := client.Get(context.Background(), "/api/2.1/jobs/list", nil, nil)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Empty(t, apiErr.Code)
	assert.Contains(t, apiErr.Message, "upstream connect error")
	assert.True(t, IsUnavailable(err))
}

func TestClient_Do_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	cred, err := credentials.New(server.URL, "tok-1")
	require.NoError(t, err)
	client, err := NewClient(cred, Options{})
	require.NoError(t, err)

	// Nothing listens on the old port after close.
	server.Close()

	err = client.Get(context.Background(), "/api/2.1/jobs/list", nil, nil)
	require.Error(t, err)
	assert.True(t, IsTransient(err), "connection refused should classify as transient, got %v", err)

	var te *TransportError
	assert.ErrorAs(t, err, &te)
}

func TestClient_Do_NoRetries(t *testing.T) {
	var calls atomic.Int64
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error_code": "TEMPORARILY_UNAVAILABLE", "message": "try later"}`))
	}))

	err := client.Post(context.Background(), "/api/2.1/jobs/run-now", map[string]int64{"job_id": 1}, nil)
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
	assert.Equal(t, int64(1), calls.Load(), "failed mutating calls must not be retried")
}

func TestClient_Do_ContextCancellation(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := client.Get(ctx, "/api/2.1/jobs/list", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, IsTransient(err), "caller cancellation is not a network fault")
}

func TestClient_Do_TokenNeverInErrors(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error_code": "PERMISSION_DENIED", "message": "token expired"}`))
	}))

	err := client.Get(context.Background(), "/api/2.0/workspace/get-status", nil, nil)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "tok-1")
}

func TestClient_RateLimitOption(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(server.Close)

	cred, err := credentials.New(server.URL, "tok-1")
	require.NoError(t, err)
	client, err := NewClient(cred, Options{RateLimit: 1000})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, client.Get(context.Background(), "/api/2.1/jobs/list", nil, nil))
	}
	assert.Equal(t, int64(3), calls.Load())
}
