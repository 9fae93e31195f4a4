package credstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringStore persists the credential in the OS-native secure storage
// (macOS Keychain, Windows Credential Manager, Linux Secret Service),
// addressed by a fixed service/account pair.
//
// Keyring access is a blocking OS call. Every operation runs on its own
// goroutine and is awaited with the caller's context so a slow or hung
// secret service cannot stall unrelated in-flight requests.
type KeyringStore struct {
	service string
	account string
}

// Compile-time check that KeyringStore implements Store.
var _ Store = (*KeyringStore)(nil)

// NewKeyringStore creates a KeyringStore addressed by the given service and
// account identifiers.
func NewKeyringStore(service, account string) (*KeyringStore, error) {
	if service == "" {
		return nil, fmt.Errorf("service cannot be empty")
	}
	if account == "" {
		return nil, fmt.Errorf("account cannot be empty")
	}

	return &KeyringStore{
		service: service,
		account: account,
	}, nil
}

// Save persists the credential, overwriting any existing value. keyring.Set
// is an upsert on every supported backend, so the store is never observed
// empty between delete and write.
func (k *KeyringStore) Save(ctx context.Context, cred Credential) error {
	value, err := encodeCredential(cred)
	if err != nil {
		return fmt.Errorf("encoding credential: %w", err)
	}

	return k.run(ctx, func() error {
		if err := keyring.Set(k.service, k.account, value); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil
	})
}

// Load returns the stored credential. A missing entry is ErrNotFound; any
// backend failure is ErrUnavailable so the caller can fall back to an
// environment-provided refresh token.
func (k *KeyringStore) Load(ctx context.Context) (Credential, error) {
	var cred Credential
	err := k.run(ctx, func() error {
		value, err := keyring.Get(k.service, k.account)
		switch {
		case errors.Is(err, keyring.ErrNotFound):
			return ErrNotFound
		case err != nil:
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		cred, err = decodeCredential(value, "keyring")
		return err
	})
	return cred, err
}

// Delete removes the stored credential. A missing entry is not an error.
func (k *KeyringStore) Delete(ctx context.Context) error {
	return k.run(ctx, func() error {
		err := keyring.Delete(k.service, k.account)
		switch {
		case errors.Is(err, keyring.ErrNotFound):
			return nil
		case err != nil:
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil
	})
}

// run executes a blocking keyring operation off the caller's goroutine.
// If the context is cancelled the caller returns immediately; the keyring
// call finishes in the background and its result is discarded.
func (k *KeyringStore) run(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
