package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2"
)

// challenge holds the one-time PKCE material for an interactive login:
// the code verifier, its S256-derived challenge, and the anti-CSRF state.
// Created at the start of a login, consumed exactly once on exchange,
// never persisted.
type challenge struct {
	Verifier string
	State    string
}

// newChallenge generates a code verifier (43 base64url characters from 32
// random bytes, per RFC 7636) and a random state parameter.
func newChallenge() (challenge, error) {
	state, err := randomToken(16)
	if err != nil {
		return challenge{}, fmt.Errorf("generating state: %w", err)
	}

	return challenge{
		Verifier: oauth2.GenerateVerifier(),
		State:    state,
	}, nil
}

// matchesState compares a returned state value in constant time.
func (c challenge) matchesState(state string) bool {
	return subtle.ConstantTimeCompare([]byte(c.State), []byte(state)) == 1
}

// randomToken returns n random bytes encoded as base64url without padding.
func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
