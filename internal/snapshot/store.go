// Package snapshot persists the downloaded company directory between runs.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrNotFound is returned when no snapshot has been saved yet.
var ErrNotFound = errors.New("snapshot not found")

// Store holds a single snapshot document.
type Store interface {
	// ModTime returns when the snapshot was last written, or ErrNotFound.
	ModTime(ctx context.Context) (time.Time, error)
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	// Location describes where the snapshot lives, for logging.
	Location() string
}

// FileStore keeps the snapshot in a local file.
type FileStore struct {
	path string
}

// NewFileStore returns a store writing to path. Parent directories are
// created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// ModTime returns the file's modification time.
func (s *FileStore) ModTime(context.Context) (time.Time, error) {
	info, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to stat snapshot: %w", err)
	}
	return info.ModTime(), nil
}

// Load reads the whole snapshot.
func (s *FileStore) Load(context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return data, nil
}

// Save replaces the snapshot. Readers see either the old or the new file,
// never a partial write.
func (s *FileStore) Save(_ context.Context, data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// Location returns the file path.
func (s *FileStore) Location() string {
	return s.path
}
