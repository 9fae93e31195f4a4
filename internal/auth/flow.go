package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// exchangeTimeout bounds every token-endpoint call, including refreshes
// detached from a cancelled caller.
const exchangeTimeout = 30 * time.Second

// Session is a live access token, its absolute expiry, and the rotated
// refresh token that obtained it. Callers receive it by value: a consistent
// snapshot, never torn.
type Session struct {
	AccessToken  string
	Expiry       time.Time
	RefreshToken string
}

// EngineConfig describes the OAuth2 provider endpoints and client identity.
type EngineConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURL  string
	Scopes       []string
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithHTTPClient sets the HTTP client used for token-endpoint calls.
func WithHTTPClient(client *http.Client) EngineOption {
	return func(e *Engine) {
		e.httpClient = client
	}
}

// WithLoginTTL sets how long an interactive login may stay pending before
// its PKCE state is discarded.
func WithLoginTTL(ttl time.Duration) EngineOption {
	return func(e *Engine) {
		e.loginTTL = ttl
	}
}

// Engine performs the two OAuth2 flows against the provider: the one-time
// interactive authorization_code+PKCE exchange and the recurring
// refresh_token exchange.
type Engine struct {
	cfg        oauth2.Config
	httpClient *http.Client
	loginTTL   time.Duration
}

// NewEngine creates an Engine. Client credentials are sent in the request
// body (AuthStyleInParams), matching the provider's client_authentication
// configuration.
func NewEngine(cfg EngineConfig, opts ...EngineOption) *Engine {
	e := &Engine{
		cfg: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: &http.Client{Timeout: exchangeTimeout},
		loginTTL:   15 * time.Minute,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Refresh exchanges a refresh token for a new session. The returned
// session carries the rotated refresh token from the response; the input
// token is single-use and must not be retried.
//
// An invalid_grant rejection is returned as ErrRefreshTokenExpired, other
// token-endpoint rejections as ErrExchangeFailed, and transport failures
// verbatim (eligible for the dispatcher's transient retry policy).
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if refreshToken == "" {
		return Session{}, ErrNotAuthenticated
	}

	ctx, cancel := context.WithTimeout(e.oauthContext(ctx), exchangeTimeout)
	defer cancel()

	seed := &oauth2.Token{RefreshToken: refreshToken}
	tok, err := e.cfg.TokenSource(ctx, seed).Token()
	if err != nil {
		return Session{}, classifyTokenError(err)
	}

	return sessionFromToken(tok), nil
}

// exchangeCode trades an authorization code and its PKCE verifier for a
// session at the token endpoint.
func (e *Engine) exchangeCode(ctx context.Context, code, verifier string) (Session, error) {
	ctx, cancel := context.WithTimeout(e.oauthContext(ctx), exchangeTimeout)
	defer cancel()

	tok, err := e.cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		var retrieve *oauth2.RetrieveError
		if errors.As(err, &retrieve) {
			return Session{}, fmt.Errorf("%w: %v", ErrExchangeFailed, retrieve)
		}
		return Session{}, fmt.Errorf("calling token endpoint: %w", err)
	}

	return sessionFromToken(tok), nil
}

// oauthContext injects the engine's HTTP client for the oauth2 package.
func (e *Engine) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
}

func sessionFromToken(tok *oauth2.Token) Session {
	return Session{
		AccessToken:  tok.AccessToken,
		Expiry:       tok.Expiry,
		RefreshToken: tok.RefreshToken,
	}
}

// classifyTokenError maps token-endpoint failures onto the error taxonomy.
// invalid_grant means the refresh token is spent or revoked; any other
// OAuth-level rejection is an exchange failure; everything else is a
// transport error passed through for transient handling.
func classifyTokenError(err error) error {
	var retrieve *oauth2.RetrieveError
	if errors.As(err, &retrieve) {
		if retrieve.ErrorCode == "invalid_grant" {
			return fmt.Errorf("%w: %v", ErrRefreshTokenExpired, retrieve)
		}
		return fmt.Errorf("%w: %v", ErrExchangeFailed, retrieve)
	}
	return fmt.Errorf("calling token endpoint: %w", err)
}
