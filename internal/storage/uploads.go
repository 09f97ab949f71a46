package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// UploadKey builds the storage key for one ingestion of a document. Keys are
// generation specific so a failed ingestion never touches a previous upload.
func UploadKey(collectionID, generation, filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	switch name {
	case "", ".", "..", "/":
		name = "document"
	}
	return collectionID + "/" + generation + "/" + name
}

// FSUploadStore writes uploads below a directory.
type FSUploadStore struct {
	dir string
}

// NewFSUploadStore creates the store, creating dir if needed.
func NewFSUploadStore(dir string) (*FSUploadStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &FSUploadStore{dir: dir}, nil
}

func (s *FSUploadStore) path(key string) (string, error) {
	for _, part := range strings.Split(key, "/") {
		if part == "." || part == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.dir, clean), nil
}

// Put writes data under key.
func (s *FSUploadStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("failed to create upload dir: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("failed to store upload: %w", err)
	}
	return nil
}

// Delete removes key and its now-empty generation directory. Missing keys are ignored.
func (s *FSUploadStore) Delete(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete upload: %w", err)
	}
	_ = os.Remove(filepath.Dir(p)) // only succeeds when empty
	return nil
}
