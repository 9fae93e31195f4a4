package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hllvc/toconline-mcp/internal/credstore"
)

// failingStore always reports the backend as unreachable and counts loads.
type failingStore struct {
	memStore
	loads int
}

func (f *failingStore) Load(ctx context.Context) (credstore.Credential, error) {
	f.loads++
	return credstore.Credential{}, credstore.ErrUnavailable
}

func TestResolvePrefersStaticAccessToken(t *testing.T) {
	// A static token wins even when a stored credential exists, and the
	// store is never consulted.
	store := &failingStore{}
	r := &Resolver{AccessToken: "static-at", RefreshToken: "static-rt", Store: store}

	src, err := r.Resolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, SourceStatic, src.Kind)
	assert.Equal(t, "static-at", src.AccessToken)
	assert.Zero(t, store.loads)
}

func TestResolveUsesStoredCredential(t *testing.T) {
	store := &memStore{cred: &credstore.Credential{RefreshToken: "rt-stored", Source: "keyring"}}
	r := &Resolver{RefreshToken: "static-rt", Store: store}

	src, err := r.Resolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, SourceStore, src.Kind)
	assert.Equal(t, "rt-stored", src.Credential.RefreshToken)
}

func TestResolveFallsBackToStaticRefreshToken(t *testing.T) {
	tests := []struct {
		name  string
		store credstore.Store
	}{
		{"store empty", &memStore{}},
		{"store unavailable", &failingStore{}},
		{"no store", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Resolver{RefreshToken: "static-rt", Store: tt.store}

			src, err := r.Resolve(context.Background())
			require.NoError(t, err)

			assert.Equal(t, SourceEnv, src.Kind)
			assert.Equal(t, "static-rt", src.Credential.RefreshToken)
		})
	}
}

func TestResolveNothingConfigured(t *testing.T) {
	r := &Resolver{Store: &memStore{}}

	_, err := r.Resolve(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}
