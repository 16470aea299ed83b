// Package blob defines the narrow port to the binary content store and a
// local filesystem implementation of it.
package blob

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mkarling/podkeeper/internal/errors"
)

// Store is the blob storage collaborator. Implementations are external;
// the engine only reads, writes and deletes opaque byte streams by key.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// LocalStore stores blobs as files under a base directory.
type LocalStore struct {
	base string
}

// NewLocalStore creates a filesystem-backed store rooted at base.
func NewLocalStore(base string) *LocalStore {
	return &LocalStore{base: base}
}

func (s *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean(key)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", errors.Newf("invalid blob key %q", key).
			Component("blob").
			Category(errors.CategoryValidation).
			Build()
	}
	return filepath.Join(s.base, clean), nil
}

// Put writes the stream to disk, creating parent directories as needed.
func (s *LocalStore) Put(ctx context.Context, key string, r io.Reader) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ioError(err, "put", key)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return ioError(err, "put", key)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return ioError(err, "put", key)
	}
	return nil
}

// Get opens the blob for reading.
func (s *LocalStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf("blob %s not found", key).
				Component("blob").
				Category(errors.CategoryNotFound).
				Build()
		}
		return nil, ioError(err, "get", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes the blob; deleting a missing key is not an error.
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return ioError(err, "delete", key)
	}
	return nil
}

// Exists reports whether the blob is present.
func (s *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	path, err := s.path(key)
	if err != nil {
		return false, err
	}
	_, statErr := os.Stat(path)
	if statErr == nil {
		return true, nil
	}
	if os.IsNotExist(statErr) {
		return false, nil
	}
	return false, ioError(statErr, "exists", key)
}

func ioError(err error, operation, key string) error {
	return errors.New(err).
		Component("blob").
		Category(errors.CategoryExternalIO).
		Context("operation", operation).
		Context("key", key).
		Build()
}
