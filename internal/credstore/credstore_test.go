package credstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestKeyringStoreRoundTrip(t *testing.T) {
	keyring.MockInit()

	store, err := NewKeyringStore("toconline-mcp-test", "refresh_token")
	require.NoError(t, err)

	ctx := context.Background()

	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	issued := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.Save(ctx, Credential{RefreshToken: "rt-1", IssuedAt: issued}))

	cred, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "rt-1", cred.RefreshToken)
	assert.Equal(t, issued, cred.IssuedAt)
	assert.Equal(t, "keyring", cred.Source)

	// Save overwrites in place.
	require.NoError(t, store.Save(ctx, Credential{RefreshToken: "rt-2"}))
	cred, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "rt-2", cred.RefreshToken)

	require.NoError(t, store.Delete(ctx))
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting an absent credential is not an error.
	require.NoError(t, store.Delete(ctx))
}

func TestKeyringStoreUnavailable(t *testing.T) {
	keyring.MockInitWithError(errors.New("no secret service"))

	store, err := NewKeyringStore("toconline-mcp-test", "refresh_token")
	require.NoError(t, err)

	_, err = store.Load(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrNotFound)

	err = store.Save(context.Background(), Credential{RefreshToken: "rt"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestKeyringStoreContextCancelled(t *testing.T) {
	keyring.MockInit()

	store, err := NewKeyringStore("toconline-mcp-test", "refresh_token")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "auth")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	ctx := context.Background()

	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Save(ctx, Credential{RefreshToken: "rt-1"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	cred, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "rt-1", cred.RefreshToken)
	assert.Equal(t, "file", cred.Source)

	require.NoError(t, store.Delete(ctx))
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreOverwriteKeepsOldOrNew(t *testing.T) {
	// Save stages a temp file and renames it over the target, so at every
	// point in time the path holds either the old or the new credential.
	path := filepath.Join(t.TempDir(), "auth")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, Credential{RefreshToken: "old"}))

	for i := 0; i < 20; i++ {
		require.NoError(t, store.Save(ctx, Credential{RefreshToken: "new"}))

		cred, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Contains(t, []string{"old", "new"}, cred.RefreshToken)
		assert.NotEmpty(t, cred.RefreshToken)
	}

	// No stray temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileStoreRejectsInsecurePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Save(context.Background(), Credential{RefreshToken: "rt"}))
	require.NoError(t, os.Chmod(path, 0644))

	_, err = store.Load(context.Background())
	assert.ErrorContains(t, err, "insecure permissions")
}

func TestFileStoreLegacyBareToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth")
	require.NoError(t, os.WriteFile(path, []byte("bare-refresh-token\n"), 0600))

	store, err := NewFileStore(path)
	require.NoError(t, err)

	cred, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bare-refresh-token", cred.RefreshToken)
	assert.True(t, cred.IssuedAt.IsZero())
}

func TestEnvStore(t *testing.T) {
	const key = "TOCONLINE_TEST_REFRESH_TOKEN"
	t.Setenv(key, "rt-env")

	store, err := NewEnvStore(key)
	require.NoError(t, err)

	cred, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "rt-env", cred.RefreshToken)
	assert.Equal(t, "env", cred.Source)

	assert.ErrorIs(t, store.Save(context.Background(), Credential{RefreshToken: "x"}), ErrReadOnly)
	assert.ErrorIs(t, store.Delete(context.Background()), ErrReadOnly)

	t.Setenv(key, "")
	_, err = store.Load(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}
