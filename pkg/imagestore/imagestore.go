package imagestore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrUnsupportedType is returned for files outside the allowed image extensions
var ErrUnsupportedType = errors.New("unsupported image type")

var allowedExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// Store keeps uploaded product images in a local directory
type Store struct {
	dir string
	now func() time.Time
}

// New creates the upload directory if needed
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

// Allowed reports whether the file name carries an accepted image extension
func Allowed(filename string) bool {
	return allowedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// Save writes r under a unique name derived from the original file name and returns the stored name
func (s *Store) Save(originalName string, r io.Reader) (string, error) {
	if !Allowed(originalName) {
		return "", ErrUnsupportedType
	}

	name := fmt.Sprintf("%s_%s_%s",
		s.now().Format("20060102150405"),
		uuid.New().String()[:8],
		sanitize(originalName))

	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create image file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write image file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close image file: %w", err)
	}
	return name, nil
}

// Remove deletes a stored image. Missing files are not an error.
func (s *Store) Remove(name string) error {
	if name == "" {
		return nil
	}
	err := os.Remove(filepath.Join(s.dir, filepath.Base(name)))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func sanitize(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = unsafeChars.ReplaceAllString(base, "_")
	base = strings.TrimLeft(base, "._")
	if !Allowed(base) || strings.TrimSuffix(base, filepath.Ext(base)) == "" {
		base = "image" + strings.ToLower(filepath.Ext(name))
	}
	return base
}
