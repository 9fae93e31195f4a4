package tocclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hllvc/toconline-mcp/internal/auth"
)

// staticTokens is a TokenProvider that serves a fixed token sequence:
// Token returns the current one, ForceRefresh advances to the next.
type staticTokens struct {
	mu        sync.Mutex
	tokens    []string
	idx       int
	refreshes int
	static    bool
}

var _ TokenProvider = (*staticTokens)(nil)

func (s *staticTokens) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens[s.idx], nil
}

func (s *staticTokens) ForceRefresh(ctx context.Context, stale string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.static {
		return "", auth.ErrStaticToken
	}
	s.refreshes++
	if s.idx < len(s.tokens)-1 {
		s.idx++
	}
	return s.tokens[s.idx], nil
}

// backendCall records one request that reached the network layer.
type backendCall struct {
	method string
	path   string
	bearer string
}

// fakeBackend scripts the upstream: each response is popped from the queue,
// the last one repeats.
type fakeBackend struct {
	mu       sync.Mutex
	calls    []backendCall
	statuses []int
	body     string
}

func (b *fakeBackend) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.calls = append(b.calls, backendCall{
			method: r.Method,
			path:   r.URL.Path,
			bearer: r.Header.Get("Authorization"),
		})
		status := b.statuses[0]
		if len(b.statuses) > 1 {
			b.statuses = b.statuses[1:]
		}
		body := b.body
		b.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if body == "" {
			body = `{"data":[]}`
		}
		_, _ = w.Write([]byte(body))
	}
}

func (b *fakeBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

func newTestClient(t *testing.T, backend *fakeBackend, tokens TokenProvider, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	opts = append([]Option{WithRetryInterval(time.Millisecond)}, opts...)
	client, err := New(srv.URL, tokens, opts...)
	require.NoError(t, err)
	return client
}

func TestGetAttachesBearerToken(t *testing.T) {
	backend := &fakeBackend{statuses: []int{200}, body: `{"data":[{"id":"1"}]}`}
	client := newTestClient(t, backend, &staticTokens{tokens: []string{"tok-1"}})

	result, err := client.Get(context.Background(), "/api/customers", url.Values{"page[size]": {"10"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":[{"id":"1"}]}`, string(result))

	require.Len(t, backend.calls, 1)
	assert.Equal(t, "Bearer tok-1", backend.calls[0].bearer)
	assert.Equal(t, "/api/customers", backend.calls[0].path)
}

func TestUnsafePathRejected(t *testing.T) {
	backend := &fakeBackend{statuses: []int{200}}
	client := newTestClient(t, backend, &staticTokens{tokens: []string{"tok"}})

	for _, path := range []string{"/etc/passwd", "/api/../secrets", "/api/a b", "api/customers"} {
		_, err := client.Get(context.Background(), path, nil)
		assert.ErrorContains(t, err, "unsafe API path", "path %q", path)
	}
	assert.Zero(t, backend.callCount())
}

func TestReadOnlyBlocksWritesBeforeNetwork(t *testing.T) {
	backend := &fakeBackend{statuses: []int{200}}
	client := newTestClient(t, backend, &staticTokens{tokens: []string{"tok"}}, WithReadOnly(true))

	_, err := client.Post(context.Background(), "/api/customers", map[string]any{})
	assert.ErrorIs(t, err, ErrReadOnlyViolation)
	assert.Zero(t, backend.callCount(), "network layer must receive zero calls")

	// Reads are unaffected.
	_, err = client.Get(context.Background(), "/api/customers", nil)
	assert.NoError(t, err)
}

func TestWriteQuota(t *testing.T) {
	const limit = 3
	backend := &fakeBackend{statuses: []int{200}}
	quota := NewWriteQuota(limit)
	client := newTestClient(t, backend, &staticTokens{tokens: []string{"tok"}}, WithWriteQuota(quota))

	for i := 0; i < limit; i++ {
		_, err := client.Post(context.Background(), "/api/customers", map[string]any{"n": i})
		require.NoError(t, err)
	}

	_, err := client.Post(context.Background(), "/api/customers", map[string]any{})
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, limit, backend.callCount(), "exactly K dispatches reach the network")

	// Reads still pass, and a pre-flight failure consumed nothing.
	_, err = client.Get(context.Background(), "/api/customers", nil)
	assert.NoError(t, err)
	assert.Equal(t, limit, quota.Used())
}

func TestQuotaNotConsumedOnPreflightFailure(t *testing.T) {
	backend := &fakeBackend{statuses: []int{200}}
	quota := NewWriteQuota(5)
	client := newTestClient(t, backend, &staticTokens{tokens: []string{"tok"}}, WithWriteQuota(quota))

	_, err := client.Post(context.Background(), "/not-api", map[string]any{})
	require.Error(t, err)
	assert.Zero(t, quota.Used())
}

func Test401ForcesSingleRefreshAndRetry(t *testing.T) {
	backend := &fakeBackend{statuses: []int{401, 200}, body: `{"ok":true}`}
	tokens := &staticTokens{tokens: []string{"stale", "fresh"}}
	client := newTestClient(t, backend, tokens)

	result, err := client.Get(context.Background(), "/api/customers", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(result))

	assert.Equal(t, 1, tokens.refreshes, "exactly one forced refresh")
	require.Equal(t, 2, backend.callCount())
	assert.Equal(t, "Bearer stale", backend.calls[0].bearer)
	assert.Equal(t, "Bearer fresh", backend.calls[1].bearer)
}

func TestDouble401SurfacesAuthenticationRejected(t *testing.T) {
	backend := &fakeBackend{statuses: []int{401}}
	tokens := &staticTokens{tokens: []string{"stale", "fresh"}}
	client := newTestClient(t, backend, tokens)

	_, err := client.Get(context.Background(), "/api/customers", nil)
	assert.ErrorIs(t, err, ErrAuthenticationRejected)
	assert.Equal(t, 2, backend.callCount(), "no third attempt")
	assert.Equal(t, 1, tokens.refreshes)
}

func Test401WithStaticTokenPropagatesVerbatim(t *testing.T) {
	backend := &fakeBackend{statuses: []int{401}, body: `{"errors":[{"code":"401","detail":"expired"}]}`}
	tokens := &staticTokens{tokens: []string{"static"}, static: true}
	client := newTestClient(t, backend, tokens)

	_, err := client.Get(context.Background(), "/api/customers", nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.Status)
	assert.NotErrorIs(t, err, ErrAuthenticationRejected)
	assert.Equal(t, 1, backend.callCount(), "no retry for static tokens")
}

func Test5xxRetriedWithBackoff(t *testing.T) {
	backend := &fakeBackend{statuses: []int{500, 502, 200}, body: `{"ok":true}`}
	client := newTestClient(t, backend, &staticTokens{tokens: []string{"tok"}})

	result, err := client.Get(context.Background(), "/api/customers", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(result))
	assert.Equal(t, 3, backend.callCount())
}

func Test5xxSurfacedAfterMaxAttempts(t *testing.T) {
	backend := &fakeBackend{statuses: []int{503}}
	client := newTestClient(t, backend, &staticTokens{tokens: []string{"tok"}})

	_, err := client.Get(context.Background(), "/api/customers", nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 503, apiErr.Status)
	assert.Equal(t, maxAttempts, backend.callCount())
}

func Test4xxNeverRetried(t *testing.T) {
	backend := &fakeBackend{
		statuses: []int{422},
		body:     `{"errors":[{"code":"VAL","detail":"tax number is invalid"}]}`,
	}
	client := newTestClient(t, backend, &staticTokens{tokens: []string{"tok"}})

	_, err := client.Get(context.Background(), "/api/customers", nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 422, apiErr.Status)
	assert.Contains(t, apiErr.Error(), "Validation failed")
	assert.Contains(t, apiErr.Error(), "tax number is invalid")
	assert.Equal(t, 1, backend.callCount())
}

func TestWriteQuotaConsumedOncePerDispatchDespiteRetries(t *testing.T) {
	backend := &fakeBackend{statuses: []int{500, 200}}
	quota := NewWriteQuota(10)
	client := newTestClient(t, backend, &staticTokens{tokens: []string{"tok"}}, WithWriteQuota(quota))

	_, err := client.Post(context.Background(), "/api/customers", map[string]any{})
	require.NoError(t, err)

	assert.Equal(t, 2, backend.callCount())
	assert.Equal(t, 1, quota.Used(), "retries of one dispatch consume quota once")
}

func TestEmptyResponseBodyYieldsNull(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	client, err := New(srv.URL, &staticTokens{tokens: []string{"tok"}})
	require.NoError(t, err)

	result, err := client.Delete(context.Background(), "/api/customers/1", nil)
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(`null`), result)
}

func TestAPIErrorMessages(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   string
	}{
		{403, `{"errors":[{"code":"FORBIDDEN","detail":"not allowed"}]}`, "Permission denied (business rule violation): [FORBIDDEN] not allowed"},
		{404, ``, "Resource not found: Not found."},
		{400, "plain text failure", "HTTP 400: [400] plain text failure"},
		{418, ``, "HTTP 418: HTTP 418 error."},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d", tt.status), func(t *testing.T) {
			apiErr := parseAPIError(tt.status, []byte(tt.body))
			assert.Equal(t, tt.want, apiErr.Error())
		})
	}
}
