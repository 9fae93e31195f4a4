package auth

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hllvc/toconline-mcp/internal/credstore"
)

// memStore is an in-memory credstore.Store for tests.
type memStore struct {
	cred    *credstore.Credential
	saveErr error
	saves   int
}

var _ credstore.Store = (*memStore)(nil)

func (m *memStore) Save(ctx context.Context, cred credstore.Credential) error {
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.cred = &cred
	return nil
}

func (m *memStore) Load(ctx context.Context) (credstore.Credential, error) {
	if m.cred == nil {
		return credstore.Credential{}, credstore.ErrNotFound
	}
	return *m.cred, nil
}

func (m *memStore) Delete(ctx context.Context) error {
	m.cred = nil
	return nil
}

func TestLoginHappyPath(t *testing.T) {
	te := &tokenEndpoint{t: t, responses: []tokenResponse{{
		status: http.StatusOK,
		body:   `{"access_token":"at-1","refresh_token":"rt-1","expires_in":3600,"token_type":"Bearer"}`,
	}}}
	engine := newTestEngine(t, te)
	store := &memStore{}

	login, err := engine.BeginLogin()
	require.NoError(t, err)
	assert.Equal(t, LoginPending, login.Phase())

	callback := "https://oauth.pstmn.io/v1/callback?code=auth-code&state=" + login.challenge.State
	require.NoError(t, login.SubmitRedirect(callback))
	assert.Equal(t, LoginCodeReceived, login.Phase())

	sess, err := login.Exchange(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, LoginExchanged, login.Phase())
	assert.Equal(t, "at-1", sess.AccessToken)

	require.NotNil(t, store.cred)
	assert.Equal(t, "rt-1", store.cred.RefreshToken)

	form := te.requests[0]
	assert.Equal(t, "authorization_code", form.Get("grant_type"))
	assert.Equal(t, "auth-code", form.Get("code"))
	assert.NotEmpty(t, form.Get("code_verifier"))
	assert.Equal(t, "https://oauth.pstmn.io/v1/callback", form.Get("redirect_uri"))

	// PKCE state is single-use.
	_, err = login.Exchange(context.Background(), store)
	assert.ErrorIs(t, err, ErrLoginConsumed)
}

func TestLoginAcceptsBareCode(t *testing.T) {
	te := &tokenEndpoint{t: t, responses: []tokenResponse{{
		status: http.StatusOK,
		body:   `{"access_token":"at","refresh_token":"rt","expires_in":60,"token_type":"Bearer"}`,
	}}}
	engine := newTestEngine(t, te)

	login, err := engine.BeginLogin()
	require.NoError(t, err)

	require.NoError(t, login.SubmitRedirect("  bare-auth-code\n"))

	_, err = login.Exchange(context.Background(), &memStore{})
	require.NoError(t, err)
	assert.Equal(t, "bare-auth-code", te.requests[0].Get("code"))
}

func TestLoginStateMismatch(t *testing.T) {
	engine := newTestEngine(t, &tokenEndpoint{t: t, responses: []tokenResponse{{status: 200, body: `{}`}}})

	login, err := engine.BeginLogin()
	require.NoError(t, err)

	err = login.SubmitRedirect("https://oauth.pstmn.io/v1/callback?code=x&state=forged")
	assert.ErrorIs(t, err, ErrStateMismatch)
	assert.Equal(t, LoginFailed, login.Phase())
}

func TestLoginProviderDenied(t *testing.T) {
	engine := newTestEngine(t, &tokenEndpoint{t: t, responses: []tokenResponse{{status: 200, body: `{}`}}})

	login, err := engine.BeginLogin()
	require.NoError(t, err)

	err = login.SubmitRedirect("https://oauth.pstmn.io/v1/callback?error=access_denied&error_description=user+cancelled")
	assert.ErrorIs(t, err, ErrAuthorizationDenied)
	assert.Equal(t, LoginFailed, login.Phase())
}

func TestLoginExchangeFailureIsNotConsumed(t *testing.T) {
	te := &tokenEndpoint{t: t, responses: []tokenResponse{{
		status: http.StatusBadRequest,
		body:   `{"error":"invalid_request"}`,
	}}}
	engine := newTestEngine(t, te)

	login, err := engine.BeginLogin()
	require.NoError(t, err)
	require.NoError(t, login.SubmitRedirect("bare-code"))

	_, err = login.Exchange(context.Background(), &memStore{})
	assert.ErrorIs(t, err, ErrExchangeFailed)
	assert.Equal(t, LoginFailed, login.Phase())
}

func TestLoginTimesOut(t *testing.T) {
	engine := newTestEngine(t,
		&tokenEndpoint{t: t, responses: []tokenResponse{{status: 200, body: `{}`}}},
		WithLoginTTL(-time.Second))

	login, err := engine.BeginLogin()
	require.NoError(t, err)

	err = login.SubmitRedirect("bare-code")
	assert.ErrorIs(t, err, ErrLoginExpired)
	assert.Equal(t, LoginTimedOut, login.Phase())
}

func TestLoginPersistFailureStillReturnsSession(t *testing.T) {
	te := &tokenEndpoint{t: t, responses: []tokenResponse{{
		status: http.StatusOK,
		body:   `{"access_token":"at","refresh_token":"rt","expires_in":60,"token_type":"Bearer"}`,
	}}}
	engine := newTestEngine(t, te)
	store := &memStore{saveErr: credstore.ErrUnavailable}

	login, err := engine.BeginLogin()
	require.NoError(t, err)
	require.NoError(t, login.SubmitRedirect("bare-code"))

	sess, err := login.Exchange(context.Background(), store)
	assert.ErrorIs(t, err, credstore.ErrUnavailable)
	assert.Equal(t, "at", sess.AccessToken)
	assert.Equal(t, "rt", sess.RefreshToken)
}
