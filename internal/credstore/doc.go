// Package credstore provides persistent storage for the OAuth2 refresh
// credential.
//
// Supports three storage backends with different security and deployment
// tradeoffs:
//   - Keyring: OS-native credential storage (macOS Keychain, Windows
//     Credential Manager, Linux Secret Service) — the default
//   - File: local filesystem storage with atomic writes and secure permissions
//   - Env: read-only environment variable access, for headless / CI / Docker
//     environments where no keyring backend is available
//
// Absence of a stored credential (ErrNotFound) is a normal, reportable state.
// ErrUnavailable means the backend itself cannot be reached and callers
// should fall back to an environment-provided refresh token instead of
// treating it as an authentication failure.
package credstore
