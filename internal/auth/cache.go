package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hllvc/toconline-mcp/internal/credstore"
)

// expiryMargin treats a token as expired this long before its literal
// expiry, to avoid races with network latency.
const expiryMargin = 60 * time.Second

// Refresher performs the refresh_token exchange. Implemented by Engine.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Session, error)
}

// CacheOption configures a SessionCache.
type CacheOption func(*SessionCache)

// WithExpiryMargin overrides the safety margin applied to token expiry.
func WithExpiryMargin(margin time.Duration) CacheOption {
	return func(c *SessionCache) {
		c.margin = margin
	}
}

// WithCacheLogger sets the cache's logger.
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *SessionCache) {
		c.logger = logger
	}
}

// SessionCache holds the process's single live access token, shared by all
// concurrent API calls. It is the only mutable shared auth state: mutation
// happens solely through the single-flight refresh path, and reads return a
// consistent snapshot.
//
// The first caller to observe an expired token starts the refresh exchange;
// every other concurrent caller waits for that exchange's result. Refresh
// exchanges are therefore totally ordered, which keeps refresh-token
// rotation from racing against itself.
type SessionCache struct {
	refresher Refresher
	store     credstore.Store
	logger    *slog.Logger
	margin    time.Duration

	group singleflight.Group

	mu     sync.Mutex
	sess   Session
	static bool
	fatal  error
}

// NewSessionCache creates a cache seeded from the resolved source. For a
// static source the access token is served as-is and never refreshed.
// Rotated refresh tokens are written back through store after every
// successful refresh.
func NewSessionCache(src Source, refresher Refresher, store credstore.Store, opts ...CacheOption) *SessionCache {
	c := &SessionCache{
		refresher: refresher,
		store:     store,
		logger:    slog.Default(),
		margin:    expiryMargin,
	}

	if src.Kind == SourceStatic {
		c.static = true
		c.sess = Session{AccessToken: src.AccessToken}
	} else {
		c.sess = Session{RefreshToken: src.Credential.RefreshToken}
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Token returns a valid access token, refreshing through the single-flight
// path if the cached one is expired. Safe for concurrent use.
func (c *SessionCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.fatal != nil {
		err := c.fatal
		c.mu.Unlock()
		return "", err
	}
	if c.static || c.validLocked() {
		tok := c.sess.AccessToken
		c.mu.Unlock()
		return tok, nil
	}
	c.mu.Unlock()

	return c.refresh(ctx, "")
}

// ForceRefresh refreshes regardless of the cached expiry. stale is the
// token the caller just had rejected: if another caller already replaced
// it, the current token is returned without a second exchange.
//
// For a static source ForceRefresh fails with ErrStaticToken so the
// rejection can propagate verbatim.
func (c *SessionCache) ForceRefresh(ctx context.Context, stale string) (string, error) {
	c.mu.Lock()
	if c.fatal != nil {
		err := c.fatal
		c.mu.Unlock()
		return "", err
	}
	if c.static {
		c.mu.Unlock()
		return "", ErrStaticToken
	}
	if stale != "" && c.sess.AccessToken != "" && c.sess.AccessToken != stale {
		tok := c.sess.AccessToken
		c.mu.Unlock()
		return tok, nil
	}
	c.mu.Unlock()

	return c.refresh(ctx, stale)
}

// refresh runs the exchange under single-flight. The exchange itself is
// detached from the caller's context: a cancelled caller stops waiting, but
// the refresh runs to completion for everyone else in the flight.
func (c *SessionCache) refresh(ctx context.Context, stale string) (string, error) {
	ch := c.group.DoChan("refresh", func() (any, error) {
		c.mu.Lock()
		if c.fatal != nil {
			err := c.fatal
			c.mu.Unlock()
			return "", err
		}
		// A refresh that completed while this caller queued already
		// produced a fresh token; don't burn another rotation.
		if c.validLocked() && c.sess.AccessToken != stale {
			tok := c.sess.AccessToken
			c.mu.Unlock()
			return tok, nil
		}
		refreshToken := c.sess.RefreshToken
		c.mu.Unlock()

		if refreshToken == "" {
			return "", ErrNotAuthenticated
		}

		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), exchangeTimeout)
		defer cancel()

		sess, err := c.refresher.Refresh(rctx, refreshToken)
		if err != nil {
			if errors.Is(err, ErrRefreshTokenExpired) {
				c.mu.Lock()
				c.fatal = err
				c.sess = Session{}
				c.mu.Unlock()
				c.logger.ErrorContext(rctx, "refresh token rejected, re-authentication required", "error", err)
			}
			return "", err
		}

		c.mu.Lock()
		c.sess = sess
		c.mu.Unlock()

		c.persist(rctx, sess)
		return sess.AccessToken, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// persist writes the rotated refresh token back to storage. Failure is not
// fatal for the live session, but future refreshes after a restart would
// use a spent token, so it is logged loudly. Read-only backends are
// expected and logged at debug.
func (c *SessionCache) persist(ctx context.Context, sess Session) {
	if c.store == nil || sess.RefreshToken == "" {
		return
	}

	err := c.store.Save(ctx, credstore.Credential{
		RefreshToken: sess.RefreshToken,
		IssuedAt:     time.Now().UTC(),
	})
	switch {
	case err == nil:
	case errors.Is(err, credstore.ErrReadOnly):
		c.logger.DebugContext(ctx, "credential store is read-only, rotated refresh token not persisted")
	default:
		c.logger.ErrorContext(ctx, "failed to persist rotated refresh token", "error", err)
	}
}

// validLocked reports whether the cached token is usable. Callers hold c.mu.
func (c *SessionCache) validLocked() bool {
	return c.sess.AccessToken != "" && time.Now().Before(c.sess.Expiry.Add(-c.margin))
}
