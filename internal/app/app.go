// Package app assembles the credential store, OAuth engine, session cache,
// API client, and MCP server into a running application.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hllvc/toconline-mcp/internal/auth"
	"github.com/hllvc/toconline-mcp/internal/credstore"
	"github.com/hllvc/toconline-mcp/internal/server"
	"github.com/hllvc/toconline-mcp/internal/tocclient"
	"github.com/hllvc/toconline-mcp/internal/tools"
)

// App orchestrates the lifecycle of the MCP server and the auth subsystem.
type App struct {
	cfg     *Config
	version string
	store   credstore.Store
	engine  *auth.Engine
}

// New creates a new App instance. No credential I/O happens here; source
// resolution is deferred to Start so construction never blocks on the
// keyring.
func New(cfg *Config, version string) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if version == "" {
		version = "dev"
	}

	store, err := cfg.Auth.NewCredentialStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create credential store: %w", err)
	}

	return &App{
		cfg:     cfg,
		version: version,
		store:   store,
		engine:  auth.NewEngine(cfg.OAuthEngineConfig()),
	}, nil
}

// OAuthEngineConfig maps the OAuth configuration onto engine settings.
func (c *Config) OAuthEngineConfig() auth.EngineConfig {
	return auth.EngineConfig{
		ClientID:     c.OAuth.ClientID,
		ClientSecret: c.OAuth.ClientSecret,
		AuthURL:      c.OAuth.AuthURL(),
		TokenURL:     c.OAuth.TokenURL,
		RedirectURL:  c.OAuth.RedirectURI,
		Scopes:       []string{c.OAuth.Scope},
	}
}

// Start resolves the credential source, wires the API client and tool
// modules, and serves the configured transport until shutdown is triggered.
func (a *App) Start(ctx context.Context) error {
	// One id per server session ties every log line of a run together.
	logger := slog.Default().With("session_id", uuid.NewString())

	resolver := &auth.Resolver{
		AccessToken:  a.cfg.Auth.AccessToken,
		RefreshToken: a.cfg.Auth.RefreshToken,
		Store:        a.store,
		Logger:       logger,
	}
	src, err := resolver.Resolve(ctx)
	if err != nil {
		if errors.Is(err, auth.ErrNotAuthenticated) {
			return fmt.Errorf("%w: run `toconline-mcp auth` to authenticate", err)
		}
		return fmt.Errorf("resolving credentials: %w", err)
	}

	cache := auth.NewSessionCache(src, a.engine, a.store, auth.WithCacheLogger(logger))

	client, err := a.newClient(cache, logger)
	if err != nil {
		return fmt.Errorf("failed to create API client: %w", err)
	}

	srv := server.New(a.version, a.cfg.Safety.ReadOnly, server.WithLogger(logger))
	if err := tools.Register(srv.MCP(), client, logger, a.cfg.Modules); err != nil {
		return fmt.Errorf("registering tool modules: %w", err)
	}

	switch a.cfg.Server.Transport {
	case TransportHTTP:
		return a.serveHTTP(ctx, srv, logger)
	default:
		logger.InfoContext(ctx, "serving MCP over stdio",
			"read_only", a.cfg.Safety.ReadOnly, "source", string(src.Kind))
		return srv.ServeStdio(ctx)
	}
}

// newClient builds the dispatching API client with the configured write policy.
func (a *App) newClient(cache *auth.SessionCache, logger *slog.Logger) (*tocclient.Client, error) {
	opts := []tocclient.Option{
		tocclient.WithLogger(logger),
		tocclient.WithReadOnly(a.cfg.Safety.ReadOnly),
	}
	if limit := *a.cfg.Safety.MaxWriteCalls; limit > 0 {
		opts = append(opts, tocclient.WithWriteQuota(tocclient.NewWriteQuota(int(limit))))
	}
	return tocclient.New(a.cfg.API.BaseURL, cache, opts...)
}

// serveHTTP runs the streamable HTTP transport with runtime error
// monitoring and coordinated shutdown.
func (a *App) serveHTTP(ctx context.Context, srv *server.Server, logger *slog.Logger) error {
	g, gCtx := errgroup.WithContext(ctx)

	address := a.cfg.Server.Host + ":" + strconv.FormatUint(uint64(a.cfg.Server.Port), 10)
	var shutdownFuncs []func(context.Context) error

	logger.InfoContext(gCtx, "starting MCP HTTP server", "address", address)
	serverErrCh, err := srv.StartHTTP(gCtx, address)
	if err != nil {
		return fmt.Errorf("server startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, srv.Shutdown)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-serverErrCh:
			if err != nil {
				logger.ErrorContext(gCtx, "server runtime error", "error", err)
				return fmt.Errorf("server: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	logger.InfoContext(gCtx, "application ready", "address", address)

	runtimeErr := g.Wait()

	logger.InfoContext(gCtx, "shutting down services")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Shutdown.Timeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			logger.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	logger.Info("application stopped")
	return nil
}

// Engine exposes the OAuth engine for the interactive login command.
func (a *App) Engine() *auth.Engine {
	return a.engine
}

// Store exposes the credential store for the auth status and logout commands.
func (a *App) Store() credstore.Store {
	return a.store
}
