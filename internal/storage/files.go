package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrFileNotFound is returned when a stored image cannot be located.
var ErrFileNotFound = errors.New("stored file not found")

// FileStore writes uploaded images under a single base directory. Stored
// names carry a timestamp prefix so repeated uploads of the same file
// never collide.
type FileStore struct {
	baseDir string
}

func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		return nil, errors.New("upload directory required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

// Save writes the upload and returns the stored name and full path.
func (f *FileStore) Save(originalName string, r io.Reader) (string, string, int64, error) {
	name := fmt.Sprintf("%s_%s", time.Now().UTC().Format("20060102150405"), SanitizeFilename(originalName))
	path := filepath.Join(f.baseDir, name)

	dst, err := os.Create(path)
	if err != nil {
		return "", "", 0, fmt.Errorf("create upload file: %w", err)
	}
	size, err := io.Copy(dst, r)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", "", 0, fmt.Errorf("write upload file: %w", err)
	}
	return name, path, size, nil
}

// Load reads a stored image back by its stored name.
func (f *FileStore) Load(name string) ([]byte, error) {
	path, err := f.Path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("read stored file: %w", err)
	}
	return data, nil
}

// Path resolves a stored name to its on-disk path, rejecting anything
// that would escape the base directory.
func (f *FileStore) Path(name string) (string, error) {
	clean := SanitizeFilename(name)
	if clean == "" || clean != name {
		return "", ErrFileNotFound
	}
	path := filepath.Join(f.baseDir, clean)
	if _, err := os.Stat(path); err != nil {
		return "", ErrFileNotFound
	}
	return path, nil
}

// SanitizeFilename strips path separators and control characters from a
// client-supplied file name.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	return out
}
