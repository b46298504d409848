package thumbnail

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Store owns the thumbnail files under one thumbnails directory.
type Store struct {
	dir string
}

// NewStore returns a store rooted at thumbnailsDir, usually Directory(dataDir).
func NewStore(thumbnailsDir string) *Store {
	return &Store{dir: thumbnailsDir}
}

// Dir returns the thumbnails directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns where the thumbnail of casID under kind lives.
func (s *Store) Path(kind Kind, casID string) string {
	return kind.ComputePath(s.dir, casID)
}

// Exists reports whether a thumbnail is stored at path. Errors other than
// not-found are logged and reported as absent so generation still proceeds.
func (s *Store) Exists(path string) bool {
	_, err := os.Stat(path)
	if err == nil {
		return true
	}
	if !errors.Is(err, fs.ErrNotExist) {
		logrus.WithFields(logrus.Fields{
			"function": "Exists",
			"path":     path,
			"error":    err.Error(),
		}).Error("Failed to check if thumbnail exists, generating anyway")
	}
	return false
}

// Write stores data at path, creating the shard directory as needed. The
// file appears atomically, so readers never observe a partial thumbnail.
func (s *Store) Write(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDirectoryCreateFailed, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWriteFailed, path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %w", ErrWriteFailed, path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %w", ErrWriteFailed, path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %w", ErrWriteFailed, path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %w", ErrWriteFailed, path, err)
	}
	return nil
}

// Remove deletes the thumbnail of casID under kind. A missing file is not an error.
func (s *Store) Remove(kind Kind, casID string) error {
	err := os.Remove(s.Path(kind, casID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
