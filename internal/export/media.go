// Package export writes resolved chat media into a zip bundle together with
// a hash manifest.
package export

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/wesm/snapvault/internal/fileutil"
	"github.com/wesm/snapvault/internal/session"
)

// ManifestName is the manifest entry written at the root of every bundle.
const ManifestName = "manifest.csv"

var manifestHeader = []string{"media_id", "message_index", "archive_path", "file_name", "size", "sha256", "md5"}

// Item is one resolved media file queued for export.
type Item struct {
	MediaID     string
	Message     int
	ArchivePath string // display form of the archive location
	Name        string // base name inside the archive
	Path        string // extracted file on disk
}

// Collect resolves the media of the given messages. Files shared by several
// messages are exported once, under the first message that references them.
// It returns the items and the number of media ids that resolved to nothing.
func Collect(st *session.State, indices []int) ([]Item, int, error) {
	var items []Item
	var missing int
	seen := make(map[string]bool)
	for _, i := range indices {
		m, err := st.Dataset.Message(i)
		if err != nil {
			return nil, 0, err
		}
		if !m.HasMedia() {
			continue
		}
		res, err := st.MessageMedia(i)
		if err != nil {
			return nil, 0, err
		}
		if len(res) == 0 {
			missing++
			continue
		}
		for _, r := range res {
			if seen[r.Path] {
				continue
			}
			seen[r.Path] = true
			items = append(items, Item{
				MediaID:     m.MediaID,
				Message:     i,
				ArchivePath: r.Location.String(),
				Name:        r.Location.Base(),
				Path:        r.Path,
			})
		}
	}
	return items, missing, nil
}

// ExportStats contains structured results of a media bundle export.
type ExportStats struct {
	Count      int
	Size       int64
	Missing    int // media ids that resolved to no file
	Errors     []string
	ZipPath    string
	WriteError bool // true if a write error occurred and the zip was removed
}

// MediaBundle writes items into a zip at zipFilename. Each file is stored
// under media/ with a sanitized, de-duplicated name and listed in the
// manifest with its SHA-256 and MD5. Unreadable files are recorded in Errors
// and skipped. A bundle with no files is not kept.
func MediaBundle(zipFilename string, items []Item) ExportStats {
	zipFile, err := os.Create(zipFilename)
	if err != nil {
		return ExportStats{Errors: []string{fmt.Sprintf("failed to create zip file: %v", err)}}
	}

	zipWriter := zip.NewWriter(zipFile)

	var stats ExportStats
	var writeError bool
	var manifest [][]string

	usedNames := make(map[string]int)
	for _, it := range items {
		base := it.Name
		if base == "" {
			base = filepath.Base(it.Path)
		}
		name := "media/" + resolveUniqueFilename(base, it.MediaID, usedNames)
		h, err := addFile(zipWriter, name, it.Path)
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", it.ArchivePath, err))
			if isWriteError(err) {
				writeError = true
				break
			}
			continue
		}
		manifest = append(manifest, []string{
			it.MediaID, strconv.Itoa(it.Message), it.ArchivePath, name,
			strconv.FormatInt(h.Size, 10), h.SHA256, h.MD5,
		})
		stats.Count++
		stats.Size += h.Size
	}

	if !writeError && stats.Count > 0 {
		if err := writeManifest(zipWriter, manifest); err != nil {
			stats.Errors = append(stats.Errors, err.Error())
			writeError = true
		}
	}
	if err := zipWriter.Close(); err != nil {
		stats.Errors = append(stats.Errors, fmt.Sprintf("zip finalization error: %v", err))
		writeError = true
	}
	if err := zipFile.Close(); err != nil {
		stats.Errors = append(stats.Errors, fmt.Sprintf("file close error: %v", err))
		writeError = true
	}

	if stats.Count == 0 || writeError {
		os.Remove(zipFilename)
		stats.WriteError = writeError
		return stats
	}

	if abs, err := filepath.Abs(zipFilename); err == nil {
		stats.ZipPath = abs
	} else {
		stats.ZipPath = zipFilename
	}
	return stats
}

// FormatExportResult formats ExportStats into a human-readable string for display.
func FormatExportResult(stats ExportStats) string {
	// Write error is fatal - zip was removed regardless of count
	if stats.WriteError {
		msg := "Export failed due to write errors. Zip file removed."
		if len(stats.Errors) > 0 {
			msg += "\n\nErrors:\n" + strings.Join(stats.Errors, "\n")
		}
		return msg
	}

	if stats.Count == 0 {
		msg := "No media exported."
		if stats.Missing > 0 {
			msg += fmt.Sprintf(" %d media id(s) matched no file.", stats.Missing)
		}
		if len(stats.Errors) > 0 {
			msg += "\n\nErrors:\n" + strings.Join(stats.Errors, "\n")
		}
		return msg
	}

	result := fmt.Sprintf("Exported %d media file(s) (%s)\n\nSaved to:\n%s",
		stats.Count, FormatBytesLong(stats.Size), stats.ZipPath)
	if stats.Missing > 0 {
		result += fmt.Sprintf("\n\n%d media id(s) matched no file.", stats.Missing)
	}
	if len(stats.Errors) > 0 {
		result += "\n\nErrors:\n" + strings.Join(stats.Errors, "\n")
	}
	return result
}

type zipWriteError struct {
	err error
}

func (e *zipWriteError) Error() string { return e.err.Error() }
func (e *zipWriteError) Unwrap() error { return e.err }

func isWriteError(err error) bool {
	_, ok := err.(*zipWriteError)
	return ok
}

func addFile(zw *zip.Writer, name, src string) (fileutil.Hashes, error) {
	f, err := openNoFollow(src)
	if err != nil {
		return fileutil.Hashes{}, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return fileutil.Hashes{}, err
	}
	if !st.Mode().IsRegular() {
		return fileutil.Hashes{}, fmt.Errorf("%s is not a regular file", src)
	}

	w, err := zw.Create(name)
	if err != nil {
		return fileutil.Hashes{}, &zipWriteError{fmt.Errorf("zip write error: %w", err)}
	}
	h, err := fileutil.HashReader(io.TeeReader(f, w))
	if err != nil {
		return fileutil.Hashes{}, &zipWriteError{fmt.Errorf("zip write error: %w", err)}
	}
	if h.Size != st.Size() {
		return fileutil.Hashes{}, &zipWriteError{fmt.Errorf("%s changed while exporting (%d of %d bytes)", src, h.Size, st.Size())}
	}
	return h, nil
}

func writeManifest(zw *zip.Writer, rows [][]string) error {
	w, err := zw.Create(ManifestName)
	if err != nil {
		return fmt.Errorf("zip write error: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(manifestHeader); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

func resolveUniqueFilename(original, mediaID string, usedNames map[string]int) string {
	filename := fileutil.SanitizeFilename(original)
	if filename == "_" || filename == "." {
		filename = fileutil.SanitizeFilename(mediaID)
	}

	baseKey := filename
	if count, exists := usedNames[baseKey]; exists {
		ext := filepath.Ext(filename)
		base := filename[:len(filename)-len(ext)]
		filename = fmt.Sprintf("%s_%d%s", base, count+1, ext)
		usedNames[baseKey] = count + 1
	} else {
		usedNames[baseKey] = 1
	}

	return filename
}

// FormatBytesLong formats bytes with full precision for export results.
func FormatBytesLong(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
