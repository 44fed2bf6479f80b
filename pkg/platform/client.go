// Package platform implements the JSON-over-HTTPS transport shared by every
// API surface of the client: bearer auth from a resolved credential, request
// correlation ids, optional client-side rate limiting, and the mapping from
// platform failures onto sentinel errors.
//
// The client never retries. Most mutating endpoints are not idempotent, and
// a transient failure leaves it unknown whether the platform applied the
// request. Retry policy belongs to callers who know which operations they
// can safely repeat.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/3leaps/gostratus/pkg/credentials"
)

// DefaultTimeout bounds a single round trip when no HTTP client is supplied.
const DefaultTimeout = 30 * time.Second

// defaultUserAgent identifies the client when no override is configured.
const defaultUserAgent = "gostratus"

// maxResponseBytes caps response reads. File-store read chunks top out at
// 1 MiB before base64 encoding, so this leaves generous headroom.
const maxResponseBytes = 16 << 20

// Options configures a Client. The zero value is usable.
type Options struct {
	// HTTPClient overrides the underlying client, including its timeout.
	// Nil uses a dedicated client with Timeout applied.
	HTTPClient *http.Client

	// Timeout bounds each round trip when HTTPClient is nil.
	// Zero means DefaultTimeout.
	Timeout time.Duration

	// UserAgent overrides the User-Agent header.
	UserAgent string

	// RateLimit caps outgoing requests per second to stay under platform
	// request quotas. Zero disables client-side limiting.
	RateLimit float64

	// Logger receives request-level debug logs. Nil disables logging.
	Logger *zap.Logger
}

// Client issues authenticated JSON requests against one workspace.
//
// Construction is explicit and the client is threaded into each service
// that needs it. There is no ambient global connection: two clients built
// from two credentials operate independently in one process.
type Client struct {
	base      *url.URL
	token     string
	http      *http.Client
	userAgent string
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// NewClient builds a Client from a resolved credential.
func NewClient(cred *credentials.Credential, opts Options) (*Client, error) {
	if cred == nil {
		return nil, fmt.Errorf("nil credential: %w", credentials.ErrNoCredential)
	}

	base, err := url.Parse(cred.Host)
	if err != nil {
		return nil, fmt.Errorf("parse workspace host %q: %w", cred.Host, err)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		base:      base,
		token:     cred.Token(),
		http:      httpClient,
		userAgent: userAgent,
		limiter:   limiter,
		logger:    logger,
	}, nil
}

// Host returns the workspace URL this client talks to.
func (c *Client) Host() string {
	return c.base.String()
}

// Get issues a GET request with optional query parameters.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, path, query, nil, out)
}

// Post issues a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	return c.Do(ctx, http.MethodPost, path, nil, in, out)
}

// Do performs one round trip: in is marshaled as the JSON request body
// (nil for no body), out receives the decoded JSON response (nil to discard).
//
// Non-2xx responses return *APIError carrying the platform's error_code and
// message plus a sentinel classification. Failures before a response is
// received return *TransportError, which matches ErrTransient.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	u := c.base.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s %s: encode request: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("%s %s: build request: %w", method, path, err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", requestID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("api request",
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", requestID))

	resp, err := c.http.Do(req)
	if err != nil {
		// Context cancellation is the caller's signal, not a network fault.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TransportError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TransportError{Method: method, Path: path, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := c.apiError(method, path, requestID, resp, data)
		c.logger.Debug("api error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", apiErr.StatusCode),
			zap.String("code", apiErr.Code),
			zap.String("request_id", apiErr.RequestID))
		return apiErr
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%s %s: decode response: %w", method, path, err)
		}
	}

	return nil
}

// errorBody is the platform's failure envelope.
type errorBody struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

// apiError builds the *APIError for a non-2xx response. Unstructured bodies
// are surfaced truncated so proxy error pages stay readable in logs.
func (c *Client) apiError(method, path, sentRequestID string, resp *http.Response, data []byte) *APIError {
	requestID := resp.Header.Get("X-Request-Id")
	if requestID == "" {
		requestID = sentRequestID
	}

	apiErr := &APIError{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
		RequestID:  requestID,
	}

	var body errorBody
	if err := json.Unmarshal(data, &body); err == nil && (body.ErrorCode != "" || body.Message != "") {
		apiErr.Code = body.ErrorCode
		apiErr.Message = body.Message
	} else {
		apiErr.Message = truncate(strings.TrimSpace(string(data)), 512)
	}

	apiErr.Err = classify(resp.StatusCode, apiErr.Code)
	return apiErr
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
