package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// UploadsPrefix is the collection-relative prefix every stored media
// path starts with.
const UploadsPrefix = "/uploads/"

var (
	ErrNotFound    = errors.New("file not found")
	ErrInvalidPath = errors.New("invalid media path")
)

// FileStore owns the uploads directory. Paths handed out and accepted
// are collection-relative ("/uploads/<name>"); each is owned exclusively
// by the ad record referencing it.
type FileStore interface {
	Save(r io.Reader, originalName string) (string, error)
	Delete(relPath string) error
}

type DiskFileStore struct {
	dir string
}

func NewDiskFileStore(dir string) (*DiskFileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create uploads dir: %w", err)
	}
	return &DiskFileStore{dir: dir}, nil
}

// Save writes the content under a fresh name, keeping the original
// extension, and returns the collection-relative path.
func (s *DiskFileStore) Save(r io.Reader, originalName string) (string, error) {
	ext := filepath.Ext(originalName)
	name := "ad-" + uuid.NewString() + ext

	f, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write upload file: %w", err)
	}

	return UploadsPrefix + name, nil
}

// Delete removes a previously stored file. A missing file is reported as
// ErrNotFound so callers can treat it as already gone.
func (s *DiskFileStore) Delete(relPath string) error {
	name, err := s.localName(relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete %s: %w", relPath, err)
	}
	return nil
}

// localName maps a collection-relative path to a bare file name,
// rejecting anything that escapes the uploads root.
func (s *DiskFileStore) localName(relPath string) (string, error) {
	if !strings.HasPrefix(relPath, UploadsPrefix) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, relPath)
	}
	name := filepath.Clean(strings.TrimPrefix(relPath, UploadsPrefix))
	if name == "." || name == ".." || strings.Contains(name, "/") || strings.Contains(name, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, relPath)
	}
	return name, nil
}
