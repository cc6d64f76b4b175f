// Package fileutil provides the small file helpers shared by extraction,
// thumbnail caching and hash reporting.
package fileutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// EnsureDir creates dir and any missing parents with owner-only permissions.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0700)
}

// NonEmpty reports whether path is a regular file with at least one byte.
func NonEmpty(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular() && st.Size() > 0
}

// WriteAtomic creates path by running write against a temporary file in the
// same directory and renaming it into place once write and close succeed.
// A failed write leaves nothing behind at path.
func WriteAtomic(path string, write func(w io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp.")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tmpName)
		}
	}()

	writeErr := write(tmp)
	closeErr := tmp.Close()
	if writeErr != nil {
		return writeErr
	}
	if closeErr != nil {
		return fmt.Errorf("close temp file: %w", closeErr)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	cleanup = false
	return nil
}

// SanitizeFilename replaces characters that are unsafe in file names on
// common platforms with underscores.
func SanitizeFilename(s string) string {
	var result []rune
	for _, r := range s {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', '\n', '\r', '\t', 0:
			result = append(result, '_')
		default:
			result = append(result, r)
		}
	}
	if len(result) == 0 {
		return "_"
	}
	return string(result)
}
