package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound indicates no credential is stored. This is a normal state,
	// not a failure: it means the user has not authenticated yet.
	ErrNotFound = errors.New("credstore: no credential stored")

	// ErrUnavailable indicates the storage backend cannot be reached (e.g. a
	// headless environment with no secret service). Callers should fall back
	// to an environment-provided refresh token.
	ErrUnavailable = errors.New("credstore: storage backend unavailable")

	// ErrReadOnly indicates the backend does not support writes.
	ErrReadOnly = errors.New("credstore: storage backend is read-only")
)

// Credential is a refresh token plus issuance metadata. Refresh tokens
// rotate on every exchange, so the stored value is only as current as the
// last Save.
type Credential struct {
	RefreshToken string    `json:"refresh_token"`
	IssuedAt     time.Time `json:"issued_at,omitzero"`

	// Source names the backend the credential was loaded from. Assigned by
	// Load, never persisted.
	Source string `json:"-"`
}

// Store persists a single refresh credential.
//
// Save must overwrite atomically: a crash mid-save must leave either the old
// or the new credential readable, never an empty store.
type Store interface {
	Save(ctx context.Context, cred Credential) error

	// Load returns the stored credential, ErrNotFound if absent, or
	// ErrUnavailable if the backend cannot be reached.
	Load(ctx context.Context) (Credential, error)

	Delete(ctx context.Context) error
}

// encodeCredential serializes a credential for storage as an opaque string.
func encodeCredential(cred Credential) (string, error) {
	data, err := json.Marshal(cred)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// decodeCredential parses a stored value. Values written by older versions
// (or pasted by hand) are bare refresh token strings rather than JSON; those
// are accepted as-is with no issuance metadata.
func decodeCredential(value, source string) (Credential, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Credential{}, ErrNotFound
	}

	var cred Credential
	if strings.HasPrefix(value, "{") {
		if err := json.Unmarshal([]byte(value), &cred); err == nil && cred.RefreshToken != "" {
			cred.Source = source
			return cred, nil
		}
	}

	return Credential{RefreshToken: value, Source: source}, nil
}
