package testutil

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// ZipEntry is one file in a ZIP fixture. Entries are written in slice order,
// so walk order in tests is deterministic.
type ZipEntry struct {
	Name string
	Data []byte
}

// Entry is shorthand for a text ZipEntry.
func Entry(name, content string) ZipEntry {
	return ZipEntry{Name: name, Data: []byte(content)}
}

// Nested returns an entry whose content is itself a ZIP of the given entries.
func Nested(t *testing.T, name string, entries ...ZipEntry) ZipEntry {
	t.Helper()
	return ZipEntry{Name: name, Data: ZipBytes(t, entries...)}
}

// ZipBytes builds a ZIP archive in memory.
func ZipBytes(t *testing.T, entries ...ZipEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, e := range entries {
		fw, err := w.Create(e.Name)
		if err != nil {
			t.Fatalf("create zip entry %s: %v", e.Name, err)
		}
		if _, err := fw.Write(e.Data); err != nil {
			t.Fatalf("write zip entry %s: %v", e.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip writer: %v", err)
	}
	return buf.Bytes()
}

// WriteZip writes a ZIP of entries to a file named name inside a fresh temp
// directory and returns its path.
func WriteZip(t *testing.T, name string, entries ...ZipEntry) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, ZipBytes(t, entries...), 0600); err != nil {
		t.Fatalf("write zip %s: %v", path, err)
	}
	return path
}
