// Package auth implements the OAuth2 credential lifecycle for the TOC Online
// API: the one-time interactive authorization_code+PKCE login, the recurring
// refresh_token exchange, startup token-source resolution, and the in-memory
// session token cache shared by all concurrent API calls.
//
// TOC Online uses the authorization_code flow with PKCE (S256). Client
// credentials go in the request body, not Basic auth, and the scope is
// always "commercial". Refresh tokens rotate on every exchange: the token
// returned by the endpoint replaces the stored one, and the old one must
// never be presented again.
package auth
