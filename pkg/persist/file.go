package persist

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// File is a Backend that keeps one JSON file per storage key under a
// directory. Writes go through a temp file and a rename so a crashed save
// never leaves a half-written payload behind.
type File struct {
	dir string
}

// NewFile constructs a file backend rooted at dir. The directory is created
// on the first save.
func NewFile(dir string) *File {
	return &File{dir: dir}
}

// Load reads the payload stored under key. A missing file is not an error.
func (f *File) Load(_ context.Context, key string) ([]byte, bool, error) {
	payload, err := os.ReadFile(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("persist: read %q: %w", key, err)
	}
	return payload, true, nil
}

// Save writes payload under key atomically.
func (f *File) Save(_ context.Context, key string, payload []byte) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("persist: mkdir %q: %w", f.dir, err)
	}
	tmp, err := os.CreateTemp(f.dir, ".save-*")
	if err != nil {
		return fmt.Errorf("persist: temp file for %q: %w", key, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("persist: write %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("persist: close %q: %w", key, err)
	}
	if err := os.Rename(tmpName, f.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("persist: rename %q: %w", key, err)
	}
	return nil
}

func (f *File) path(key string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(key)
	return filepath.Join(f.dir, safe+".json")
}
