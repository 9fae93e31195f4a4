package credstore

import (
	"context"
	"fmt"
	"os"
)

// EnvStore provides read-only access to a refresh token stored in an
// environment variable. Suitable for headless / CI / Docker environments;
// rotated refresh tokens cannot be written back, so the variable goes stale
// after the first refresh.
type EnvStore struct {
	envKey string
}

// Compile-time check that EnvStore implements Store.
var _ Store = (*EnvStore)(nil)

// NewEnvStore creates an EnvStore for the given environment variable.
func NewEnvStore(envKey string) (*EnvStore, error) {
	if envKey == "" {
		return nil, fmt.Errorf("environment key cannot be empty")
	}

	return &EnvStore{
		envKey: envKey,
	}, nil
}

// Load returns the refresh token from the environment variable.
func (e *EnvStore) Load(ctx context.Context) (Credential, error) {
	if err := ctx.Err(); err != nil {
		return Credential{}, err
	}

	value, ok := os.LookupEnv(e.envKey)
	if !ok || value == "" {
		return Credential{}, ErrNotFound
	}
	return decodeCredential(value, "env")
}

// Save is not supported: environment variables are read-only.
func (e *EnvStore) Save(ctx context.Context, cred Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrReadOnly
}

// Delete is not supported: environment variables are read-only.
func (e *EnvStore) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrReadOnly
}
