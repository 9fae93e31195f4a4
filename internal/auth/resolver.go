package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hllvc/toconline-mcp/internal/credstore"
)

// SourceKind identifies where the process's credential came from.
type SourceKind string

const (
	// SourceStatic is a statically configured access token. It bypasses all
	// refresh machinery and is used as-is until the process exits.
	SourceStatic SourceKind = "static"

	// SourceStore is a refresh credential loaded from the credential store.
	SourceStore SourceKind = "store"

	// SourceEnv is a statically configured refresh token, for environments
	// without secure storage.
	SourceEnv SourceKind = "env"
)

// Source is the resolved authoritative credential for this process.
type Source struct {
	Kind        SourceKind
	AccessToken string               // SourceStatic only
	Credential  credstore.Credential // SourceStore and SourceEnv
}

// Resolver decides which credential source is authoritative at startup.
//
// Priority order, first match wins: static access token, stored credential,
// static refresh token. A store that is merely unavailable (headless
// environment) falls through to the next source; it is not an auth failure.
type Resolver struct {
	AccessToken  string // statically configured access token
	RefreshToken string // statically configured refresh token
	Store        credstore.Store
	Logger       *slog.Logger
}

// Resolve evaluates the priority order. Returns ErrNotAuthenticated when no
// source is present; the server must refuse to start rather than attempt
// calls with no credential.
func (r *Resolver) Resolve(ctx context.Context) (Source, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if r.AccessToken != "" {
		logger.InfoContext(ctx, "using static access token from configuration")
		return Source{Kind: SourceStatic, AccessToken: r.AccessToken}, nil
	}

	if r.Store != nil {
		cred, err := r.Store.Load(ctx)
		switch {
		case err == nil:
			logger.InfoContext(ctx, "using refresh credential from credential store")
			return Source{Kind: SourceStore, Credential: cred}, nil
		case errors.Is(err, credstore.ErrNotFound):
			// Normal state: nothing stored yet.
		case errors.Is(err, credstore.ErrUnavailable):
			logger.WarnContext(ctx, "credential store unavailable, falling back to environment", "error", err)
		default:
			return Source{}, fmt.Errorf("loading stored credential: %w", err)
		}
	}

	if r.RefreshToken != "" {
		logger.InfoContext(ctx, "using static refresh token from configuration")
		return Source{
			Kind:       SourceEnv,
			Credential: credstore.Credential{RefreshToken: r.RefreshToken, Source: "env"},
		}, nil
	}

	return Source{}, ErrNotAuthenticated
}
