package auth

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/hllvc/toconline-mcp/internal/credstore"
)

// LoginPhase is the lifecycle state of an interactive login.
type LoginPhase string

const (
	LoginPending      LoginPhase = "pending"
	LoginCodeReceived LoginPhase = "code_received"
	LoginExchanged    LoginPhase = "exchanged"
	LoginFailed       LoginPhase = "failed"
	LoginTimedOut     LoginPhase = "timed_out"
)

// Login is one interactive authorization_code+PKCE flow. It spans a browser
// redirect and out-of-band user input, so it is modeled as an explicit
// short-lived state machine rather than inline blocking code: the redirect
// may arrive minutes after the authorization URL was issued.
//
// The PKCE material is single-use. A successful exchange consumes it; a
// state mismatch, provider denial, or expiry discards it.
type Login struct {
	engine *Engine

	mu        sync.Mutex
	phase     LoginPhase
	challenge challenge
	authURL   string
	code      string
	expiresAt time.Time
}

// BeginLogin starts an interactive login: generates the PKCE verifier and
// challenge (S256), a random anti-CSRF state, and the authorization URL the
// user must open in a browser.
func (e *Engine) BeginLogin() (*Login, error) {
	ch, err := newChallenge()
	if err != nil {
		return nil, err
	}

	authURL := e.cfg.AuthCodeURL(ch.State, oauth2.S256ChallengeOption(ch.Verifier))

	return &Login{
		engine:    e,
		phase:     LoginPending,
		challenge: ch,
		authURL:   authURL,
		expiresAt: time.Now().Add(e.loginTTL),
	}, nil
}

// AuthURL returns the browser-directed authorization URL.
func (l *Login) AuthURL() string {
	return l.authURL
}

// Phase returns the current lifecycle state.
func (l *Login) Phase() LoginPhase {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.phase
}

// SubmitRedirect accepts the user's out-of-band callback input: either the
// full redirect URL or the bare authorization code. When a URL is supplied,
// the provider error parameter and the anti-CSRF state are validated before
// the code is accepted.
func (l *Login) SubmitRedirect(input string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkPendingLocked(LoginPending); err != nil {
		return err
	}

	code, err := l.extractCode(strings.TrimSpace(input))
	if err != nil {
		l.phase = LoginFailed
		return err
	}

	l.code = code
	l.phase = LoginCodeReceived
	return nil
}

// Exchange trades the received authorization code and PKCE verifier for a
// token pair and writes the refresh token through the credential store.
//
// On a store failure the session is still returned together with the
// wrapped store error, so the caller can tell the user to fall back to an
// environment-provided refresh token.
func (l *Login) Exchange(ctx context.Context, store credstore.Store) (Session, error) {
	l.mu.Lock()
	if err := l.checkPendingLocked(LoginCodeReceived); err != nil {
		l.mu.Unlock()
		return Session{}, err
	}
	code, verifier := l.code, l.challenge.Verifier
	l.mu.Unlock()

	sess, err := l.engine.exchangeCode(ctx, code, verifier)

	l.mu.Lock()
	if err != nil {
		l.phase = LoginFailed
	} else {
		l.phase = LoginExchanged
		l.code = ""
		l.challenge = challenge{}
	}
	l.mu.Unlock()

	if err != nil {
		return Session{}, err
	}
	if sess.RefreshToken == "" {
		return sess, fmt.Errorf("token response did not contain a refresh_token")
	}

	if err := store.Save(ctx, credstore.Credential{
		RefreshToken: sess.RefreshToken,
		IssuedAt:     time.Now().UTC(),
	}); err != nil {
		return sess, fmt.Errorf("persisting refresh token: %w", err)
	}

	return sess, nil
}

// checkPendingLocked validates the login is in the expected phase and has
// not outlived its TTL. Callers hold l.mu.
func (l *Login) checkPendingLocked(want LoginPhase) error {
	if l.phase == LoginExchanged {
		return ErrLoginConsumed
	}
	if l.phase == LoginTimedOut || time.Now().After(l.expiresAt) {
		l.phase = LoginTimedOut
		l.code = ""
		l.challenge = challenge{}
		return ErrLoginExpired
	}
	if l.phase != want {
		return fmt.Errorf("login is %s, expected %s", l.phase, want)
	}
	return nil
}

// extractCode pulls the authorization code out of the callback input.
// Callers hold l.mu.
func (l *Login) extractCode(input string) (string, error) {
	if input == "" {
		return "", fmt.Errorf("empty callback input")
	}

	if !strings.HasPrefix(input, "http://") && !strings.HasPrefix(input, "https://") {
		// Bare code: no state to validate, the user copied only the code.
		return input, nil
	}

	parsed, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("parsing callback URL: %w", err)
	}
	query := parsed.Query()

	if errCode := query.Get("error"); errCode != "" {
		if desc := query.Get("error_description"); desc != "" {
			return "", fmt.Errorf("%w: %s (%s)", ErrAuthorizationDenied, errCode, desc)
		}
		return "", fmt.Errorf("%w: %s", ErrAuthorizationDenied, errCode)
	}

	if !l.challenge.matchesState(query.Get("state")) {
		return "", ErrStateMismatch
	}

	code := query.Get("code")
	if code == "" {
		return "", fmt.Errorf("callback URL has no code parameter")
	}
	return code, nil
}
