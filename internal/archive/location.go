// Package archive indexes a ZIP archive tree (the root ZIP plus every ZIP
// nested inside it) and replays extraction of any entry by its location.
package archive

import (
	"path"
	"strings"
)

// Location identifies a single entry in an archive tree. Path holds entry
// names from the root archive inward: every segment but the last names a
// nested ZIP, the last names the entry itself. Segments are kept separate so
// that entry names containing any delimiter stay unambiguous.
type Location struct {
	Archive string   // root archive path on disk
	Path    []string // nested entry names, outermost first
}

// Name returns the full entry name of the innermost segment.
func (l Location) Name() string {
	if len(l.Path) == 0 {
		return ""
	}
	return l.Path[len(l.Path)-1]
}

// Base returns the file name of the innermost entry.
func (l Location) Base() string {
	return entryBase(l.Name())
}

// Dir returns the folder of the innermost entry within its own archive,
// or "" when the entry sits at the archive root.
func (l Location) Dir() string {
	name := normalizeEntryName(l.Name())
	dir := path.Dir(name)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

// Depth is the number of nested archives that must be opened to reach the entry.
func (l Location) Depth() int {
	if len(l.Path) == 0 {
		return 0
	}
	return len(l.Path) - 1
}

// Key returns a string uniquely identifying the location, suitable as a map key.
// NUL cannot occur in ZIP entry names, so the join is unambiguous.
func (l Location) Key() string {
	return l.Archive + "\x00" + strings.Join(l.Path, "\x00")
}

// String renders the location for humans, marking archive boundaries with "!/".
func (l Location) String() string {
	return strings.Join(l.Path, "!/")
}

// child returns a new location one level deeper. The parent path is copied so
// that sibling locations never share a backing array.
func (l Location) child(name string) Location {
	p := make([]string, len(l.Path), len(l.Path)+1)
	copy(p, l.Path)
	return Location{Archive: l.Archive, Path: append(p, name)}
}

// normalizeEntryName converts producer-specific separators to forward slashes.
func normalizeEntryName(name string) string {
	return strings.ReplaceAll(name, "\\", "/")
}

func entryBase(name string) string {
	name = strings.TrimSuffix(normalizeEntryName(name), "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}
