// Package tocclient is the dispatching HTTP client for the TOC Online API:
// the only path by which tool-layer code reaches the upstream. It attaches
// the current bearer token to every request, enforces the read-only and
// write-quota policy before dispatch, retries transient failures with
// bounded exponential backoff, and classifies upstream rejections into
// typed errors.
package tocclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/hllvc/toconline-mcp/internal/auth"
)

const (
	// jsonAPIContentType is the request content type the TOC Online API expects.
	jsonAPIContentType = "application/vnd.api+json"

	requestTimeout = 30 * time.Second

	// maxAttempts bounds the transient retry loop (network failures and
	// 5xx). Chosen small and fixed; the growth is the backoff default.
	maxAttempts = 3
)

// safePathRE rejects paths that contain traversal sequences or non-API
// characters.
var safePathRE = regexp.MustCompile(`^/api[\w/.-]*$`)

// TokenProvider supplies bearer tokens for outbound calls. Implemented by
// auth.SessionCache.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context, stale string) (string, error)
}

// Request is one logical API call from the tool layer.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any

	// Write classifies the request as a mutating operation, subject to the
	// read-only flag and the write quota.
	Write bool
}

// Option configures a Client.
type Option func(*Client)

// WithReadOnly blocks all write-classified requests before dispatch.
func WithReadOnly(readOnly bool) Option {
	return func(c *Client) {
		c.readOnly = readOnly
	}
}

// WithWriteQuota bounds the number of write operations per session.
func WithWriteQuota(quota *WriteQuota) Option {
	return func(c *Client) {
		c.quota = quota
	}
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.http = httpClient
	}
}

// WithLogger sets the client's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRetryInterval overrides the initial backoff interval. Used by tests
// to keep retries fast.
func WithRetryInterval(interval time.Duration) Option {
	return func(c *Client) {
		c.retryInterval = interval
	}
}

// Client dispatches requests to the TOC Online API.
type Client struct {
	base   *url.URL
	tokens TokenProvider
	http   *http.Client
	logger *slog.Logger

	readOnly      bool
	quota         *WriteQuota
	retryInterval time.Duration
}

// New creates a Client for the given API base URL.
func New(baseURL string, tokens TokenProvider, opts ...Option) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if tokens == nil {
		return nil, fmt.Errorf("missing token provider")
	}

	c := &Client{
		base:          base,
		tokens:        tokens,
		http:          &http.Client{Timeout: requestTimeout},
		logger:        slog.Default(),
		retryInterval: 500 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Get sends a read request and returns the parsed JSON response.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
}

// Post sends a write request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body, Write: true})
}

// Patch sends a write request with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.Do(ctx, Request{Method: http.MethodPatch, Path: path, Body: body, Write: true})
}

// Delete sends a write request, optionally with a JSON body.
func (c *Client) Delete(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path, Body: body, Write: true})
}

// Do executes one logical request.
//
// Write policy runs before any network activity: a read-only violation or
// an exhausted quota fails immediately and consumes nothing. A 401 forces
// exactly one token refresh and one retry; a second 401 surfaces as
// ErrAuthenticationRejected. Transient network failures and 5xx responses
// are retried with exponential backoff up to maxAttempts; other 4xx are
// surfaced once as *APIError.
func (c *Client) Do(ctx context.Context, req Request) (json.RawMessage, error) {
	if !safePathRE.MatchString(req.Path) || strings.Contains(req.Path, "..") {
		return nil, fmt.Errorf("unsafe API path rejected: %q", req.Path)
	}

	if req.Write {
		if c.readOnly {
			return nil, ErrReadOnlyViolation
		}
		if c.quota != nil && c.quota.Exhausted() {
			return nil, fmt.Errorf("%w (limit %d)", ErrQuotaExceeded, c.quota.Limit())
		}
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	// sent flips once the request reaches the network, so the quota is
	// consumed exactly once per dispatch and never on pre-flight failures.
	var sent bool

	result, err := c.attempt(ctx, req, token, &sent)

	var unauthorized *unauthorizedError
	if errors.As(err, &unauthorized) {
		// Token may be stale: force one refresh and retry once.
		fresh, refreshErr := c.tokens.ForceRefresh(ctx, token)
		if refreshErr != nil {
			if errors.Is(refreshErr, auth.ErrStaticToken) {
				// Static tokens are used as-is; the rejection propagates verbatim.
				return nil, unauthorized.apiErr
			}
			return nil, refreshErr
		}

		c.logger.DebugContext(ctx, "retrying request after forced token refresh",
			"method", req.Method, "path", req.Path)

		result, err = c.attempt(ctx, req, fresh, &sent)
		if errors.As(err, &unauthorized) {
			return nil, fmt.Errorf("%w: %v", ErrAuthenticationRejected, unauthorized.apiErr)
		}
	}

	return result, err
}

// unauthorizedError marks a 401 response for the forced-refresh retry path.
type unauthorizedError struct {
	apiErr *APIError
}

func (e *unauthorizedError) Error() string {
	return e.apiErr.Error()
}

// attempt sends the request with the given token, retrying transient
// failures with exponential backoff.
func (c *Client) attempt(ctx context.Context, req Request, token string, sent *bool) (json.RawMessage, error) {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.retryInterval

	return backoff.Retry(ctx, func() (json.RawMessage, error) {
		httpReq, err := c.newHTTPRequest(ctx, req, token)
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		resp, err := c.http.Do(httpReq)
		if err != nil {
			c.logger.DebugContext(ctx, "transient network failure",
				"method", req.Method, "path", req.Path, "error", err)
			return nil, fmt.Errorf("sending request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if req.Write && !*sent {
			*sent = true
			if c.quota != nil {
				c.quota.Consume()
			}
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading response body: %w", err)
		}

		switch {
		case resp.StatusCode >= 500:
			// Retried alongside network failures.
			return nil, fmt.Errorf("transient upstream error: %w", parseAPIError(resp.StatusCode, body))
		case resp.StatusCode == http.StatusUnauthorized:
			return nil, backoff.Permanent(&unauthorizedError{apiErr: parseAPIError(resp.StatusCode, body)})
		case resp.StatusCode >= 400:
			return nil, backoff.Permanent(parseAPIError(resp.StatusCode, body))
		}

		if len(body) == 0 {
			return json.RawMessage(`null`), nil
		}
		return json.RawMessage(body), nil
	}, backoff.WithBackOff(expo), backoff.WithMaxTries(maxAttempts))
}

// newHTTPRequest builds the outbound request: resolved URL, JSON body,
// bearer token, JSON:API headers.
func (c *Client) newHTTPRequest(ctx context.Context, req Request, token string) (*http.Request, error) {
	target := c.base.JoinPath(req.Path)
	if len(req.Query) > 0 {
		target.RawQuery = req.Query.Encode()
	}

	var bodyReader io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), bodyReader)
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", jsonAPIContentType)
	}

	return httpReq, nil
}
