package credstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileStore persists the credential on the local filesystem with secure
// permissions. Writes stage a temp file in the same directory and rename it
// over the target, so a crash mid-save leaves either the old or the new
// credential in place, never an empty file.
type FileStore struct {
	filePath string
}

// Compile-time check that FileStore implements Store.
var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore for the given path, creating parent
// directories with 0700 permissions if they don't exist.
func NewFileStore(filePath string) (*FileStore, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return &FileStore{
		filePath: filePath,
	}, nil
}

// Save atomically writes the credential using temp file + rename.
// Sets file permissions to 0600 (owner read/write only).
func (f *FileStore) Save(ctx context.Context, cred Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := encodeCredential(cred)
	if err != nil {
		return fmt.Errorf("encoding credential: %w", err)
	}

	dir := filepath.Dir(f.filePath)
	tempFile, err := os.CreateTemp(dir, "*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	tempName := tempFile.Name()
	// Cleanup deferred for all exit paths
	defer func() { _ = os.Remove(tempName) }()
	defer func() { _ = tempFile.Close() }()

	if err := tempFile.Chmod(0600); err != nil {
		return err
	}
	if _, err := tempFile.Write([]byte(strings.TrimSpace(value) + "\n")); err != nil {
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	// Atomic rename to final location
	return os.Rename(tempName, f.filePath)
}

// Load returns the stored credential. Returns ErrNotFound if the file does
// not exist or is empty, and refuses files with insecure permissions.
func (f *FileStore) Load(ctx context.Context) (Credential, error) {
	if err := ctx.Err(); err != nil {
		return Credential{}, err
	}

	info, err := os.Stat(f.filePath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return Credential{}, ErrNotFound
	case err != nil:
		return Credential{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if info.Mode().Perm() != 0600 {
		return Credential{}, fmt.Errorf("insecure permissions on %s: %04o (expected 0600)", f.filePath, info.Mode().Perm())
	}

	data, err := os.ReadFile(f.filePath)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return decodeCredential(string(data), "file")
}

// Delete removes the credential file. A missing file is not an error.
func (f *FileStore) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(f.filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
