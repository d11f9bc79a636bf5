// Package files resolves the stored payload of uploaded evidence documents.
package files

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store fetches evidence file contents by their stored path.
//
// A missing file is reported as (nil, nil) so callers can treat absence as a
// permanent condition, distinct from transient I/O errors that should be
// retried later.
type Store interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// LocalStore serves files from a root directory on the local filesystem
type LocalStore struct {
	root string
}

var _ Store = (*LocalStore)(nil)

// NewLocalStore creates a file store rooted at dir
func NewLocalStore(dir string) (*LocalStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("root directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root directory: %w", err)
	}
	return &LocalStore{root: abs}, nil
}

// Fetch reads the file at path relative to the store root. Paths escaping
// the root are rejected.
func (s *LocalStore) Fetch(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full := filepath.Join(s.root, filepath.FromSlash(path))
	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("path %q escapes the file store root", path)
	}

	data, err := os.ReadFile(full)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
