package auth

import "errors"

var (
	// ErrNotAuthenticated indicates no credential source is configured: no
	// static access token, no stored credential, no environment refresh
	// token. Only an interactive login can recover.
	ErrNotAuthenticated = errors.New("auth: not authenticated")

	// ErrAuthorizationDenied indicates the provider returned an error
	// parameter on the authorization callback.
	ErrAuthorizationDenied = errors.New("auth: authorization denied by provider")

	// ErrStateMismatch indicates the state returned on the authorization
	// callback does not match the one issued, a possible CSRF attempt.
	ErrStateMismatch = errors.New("auth: oauth state mismatch")

	// ErrExchangeFailed indicates a non-2xx response from the token endpoint
	// that is not an invalid_grant rejection.
	ErrExchangeFailed = errors.New("auth: token exchange failed")

	// ErrRefreshTokenExpired indicates the refresh token was rejected with
	// invalid_grant. Fatal for the process's auth state: only a fresh
	// interactive login can recover.
	ErrRefreshTokenExpired = errors.New("auth: refresh token expired or revoked")

	// ErrStaticToken indicates a refresh was requested while running on a
	// statically configured access token, which is used as-is until the
	// process exits.
	ErrStaticToken = errors.New("auth: static access token cannot be refreshed")

	// ErrLoginExpired indicates the interactive login was not completed
	// within its lifetime and its PKCE state has been discarded.
	ErrLoginExpired = errors.New("auth: interactive login expired")

	// ErrLoginConsumed indicates the login's authorization code was already
	// exchanged; PKCE state is single-use.
	ErrLoginConsumed = errors.New("auth: interactive login already completed")
)
