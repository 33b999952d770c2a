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

// ErrTooLarge is returned when an upload exceeds the configured limit.
var ErrTooLarge = errors.New("upload exceeds size limit")

// FileStore saves uploaded files flat under a base directory as <uuid>_<name>.
type FileStore struct {
	basePath string
}

// NewFileStore creates the base directory if missing.
func NewFileStore(basePath string) (*FileStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("storage base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileStore{basePath: basePath}, nil
}

// Save writes r under a freshly generated stored name. A positive maxBytes
// caps the file; the partial file is removed when the cap is hit.
func (f *FileStore) Save(originalName string, r io.Reader, maxBytes int64) (storedName, path string, size int64, err error) {
	storedName = uuid.NewString() + "_" + SafeFilename(originalName)
	path = filepath.Join(f.basePath, storedName)

	out, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", "", 0, fmt.Errorf("create file: %w", err)
	}
	src := r
	if maxBytes > 0 {
		src = io.LimitReader(r, maxBytes+1)
	}
	size, err = io.Copy(out, src)
	closeErr := out.Close()
	if err == nil && maxBytes > 0 && size > maxBytes {
		err = ErrTooLarge
	}
	if err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		if errors.Is(err, ErrTooLarge) {
			return "", "", 0, err
		}
		return "", "", 0, fmt.Errorf("write file: %w", err)
	}
	return storedName, path, size, nil
}

// Path returns where storedName lives on disk.
func (f *FileStore) Path(storedName string) string {
	return filepath.Join(f.basePath, SafeFilename(storedName))
}

// Exists reports whether storedName is present on disk.
func (f *FileStore) Exists(storedName string) bool {
	_, err := os.Stat(f.Path(storedName))
	return err == nil
}

// Delete removes a stored file; a missing file is not an error.
func (f *FileStore) Delete(storedName string) error {
	err := os.Remove(f.Path(storedName))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// SafeFilename strips directories and separators from a client-supplied name.
func SafeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, string(os.PathSeparator), "_")
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "upload"
	}
	return name
}
