package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tokenEndpoint is a fake OAuth2 token endpoint. Each response is taken
// from the responses queue; the last one repeats. Requests are recorded.
type tokenEndpoint struct {
	t         *testing.T
	requests  []url.Values
	responses []tokenResponse
}

type tokenResponse struct {
	status int
	body   string
}

func (te *tokenEndpoint) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		require.NoError(te.t, r.ParseForm())
		te.requests = append(te.requests, r.PostForm)

		resp := te.responses[0]
		if len(te.responses) > 1 {
			te.responses = te.responses[1:]
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.status)
		_, _ = w.Write([]byte(resp.body))
	}
}

func newTestEngine(t *testing.T, te *tokenEndpoint, opts ...EngineOption) *Engine {
	t.Helper()
	srv := httptest.NewServer(te.handler())
	t.Cleanup(srv.Close)

	return NewEngine(EngineConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		AuthURL:      srv.URL + "/auth",
		TokenURL:     srv.URL + "/token",
		RedirectURL:  "https://oauth.pstmn.io/v1/callback",
		Scopes:       []string{"commercial"},
	}, opts...)
}

func TestRefreshRotatesToken(t *testing.T) {
	te := &tokenEndpoint{t: t, responses: []tokenResponse{{
		status: http.StatusOK,
		body:   `{"access_token":"at-1","refresh_token":"rt-2","expires_in":3600,"token_type":"Bearer"}`,
	}}}
	engine := newTestEngine(t, te)

	sess, err := engine.Refresh(context.Background(), "rt-1")
	require.NoError(t, err)

	assert.Equal(t, "at-1", sess.AccessToken)
	assert.Equal(t, "rt-2", sess.RefreshToken, "response token must replace the input one")
	assert.WithinDuration(t, time.Now().Add(time.Hour), sess.Expiry, time.Minute)

	require.Len(t, te.requests, 1)
	form := te.requests[0]
	assert.Equal(t, "refresh_token", form.Get("grant_type"))
	assert.Equal(t, "rt-1", form.Get("refresh_token"))
	assert.Equal(t, "client-id", form.Get("client_id"))
	assert.Equal(t, "client-secret", form.Get("client_secret"), "client authentication goes in the body")
}

func TestRefreshInvalidGrantIsFatal(t *testing.T) {
	te := &tokenEndpoint{t: t, responses: []tokenResponse{{
		status: http.StatusBadRequest,
		body:   `{"error":"invalid_grant","error_description":"refresh token revoked"}`,
	}}}
	engine := newTestEngine(t, te)

	_, err := engine.Refresh(context.Background(), "rt-spent")
	assert.ErrorIs(t, err, ErrRefreshTokenExpired)
}

func TestRefreshServerErrorIsExchangeFailed(t *testing.T) {
	te := &tokenEndpoint{t: t, responses: []tokenResponse{{
		status: http.StatusBadRequest,
		body:   `{"error":"invalid_client"}`,
	}}}
	engine := newTestEngine(t, te)

	_, err := engine.Refresh(context.Background(), "rt-1")
	assert.ErrorIs(t, err, ErrExchangeFailed)
	assert.NotErrorIs(t, err, ErrRefreshTokenExpired)
}

func TestRefreshWithoutTokenFails(t *testing.T) {
	engine := newTestEngine(t, &tokenEndpoint{t: t, responses: []tokenResponse{{status: 200, body: `{}`}}})

	_, err := engine.Refresh(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestBeginLoginAuthURL(t *testing.T) {
	engine := newTestEngine(t, &tokenEndpoint{t: t, responses: []tokenResponse{{status: 200, body: `{}`}}})

	login, err := engine.BeginLogin()
	require.NoError(t, err)

	parsed, err := url.Parse(login.AuthURL())
	require.NoError(t, err)
	query := parsed.Query()

	assert.Equal(t, "/auth", parsed.Path)
	assert.Equal(t, "code", query.Get("response_type"))
	assert.Equal(t, "client-id", query.Get("client_id"))
	assert.Equal(t, "S256", query.Get("code_challenge_method"))
	assert.Equal(t, "commercial", query.Get("scope"))
	assert.Equal(t, "https://oauth.pstmn.io/v1/callback", query.Get("redirect_uri"))
	assert.NotEmpty(t, query.Get("code_challenge"))
	assert.NotEmpty(t, query.Get("state"))
	assert.GreaterOrEqual(t, len(login.challenge.Verifier), 43)
}
