package imagestore

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAllowed(t *testing.T) {
	for _, name := range []string{"a.png", "b.JPG", "c.jpeg", "d.gif", "e.webp"} {
		if !Allowed(name) {
			t.Errorf("expected %q to be allowed", name)
		}
	}
	for _, name := range []string{"a.svg", "b.exe", "noext", "png"} {
		if Allowed(name) {
			t.Errorf("expected %q to be rejected", name)
		}
	}
}

func TestSaveAndRemove(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.now = func() time.Time { return time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC) }

	name, err := s.Save("../../etc/my photo.png", strings.NewReader("pixels"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasPrefix(name, "20240501103000_") || !strings.HasSuffix(name, "_my_photo.png") {
		t.Fatalf("unexpected stored name %q", name)
	}
	if strings.Contains(name, "/") {
		t.Fatalf("stored name escapes the upload dir: %q", name)
	}

	b, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil || string(b) != "pixels" {
		t.Fatalf("stored content = %q, %v", b, err)
	}

	if err := s.Remove(name); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, name)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected file to be gone, got %v", err)
	}
	// second removal is a no-op
	if err := s.Remove(name); err != nil {
		t.Fatalf("Remove twice: %v", err)
	}
}

func TestSaveRejectsUnsupportedType(t *testing.T) {
	s, _ := New(t.TempDir())
	if _, err := s.Save("script.sh", strings.NewReader("#!")); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}
