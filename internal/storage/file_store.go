package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileStore writes media artifacts under a base directory and returns
// URLs rooted at a configured base URL.
type FileStore struct {
	baseDir string
	baseURL string
}

// NewFileStore creates a FileStore, ensuring the base directory exists.
func NewFileStore(baseDir, baseURL string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	return &FileStore{
		baseDir: baseDir,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// Save streams the artifact to disk under taskID/name.
func (s *FileStore) Save(ctx context.Context, taskID, name string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// Artifact names come from provider adapters; keep paths inside the
	// task's directory.
	name = filepath.Base(name)

	dir := filepath.Join(s.baseDir, taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create task media directory: %w", err)
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create media file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to write media file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close media file: %w", err)
	}

	return fmt.Sprintf("%s/%s/%s", s.baseURL, taskID, name), nil
}

var _ MediaStore = (*FileStore)(nil)
