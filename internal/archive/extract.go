package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/wesm/snapvault/internal/fileutil"
)

var (
	// ErrNotFound is returned when a path segment is missing during replay.
	ErrNotFound = errors.New("archive entry not found")

	// ErrExtractLimitExceeded is returned when an entry exceeds the configured size cap.
	ErrExtractLimitExceeded = errors.New("zip extraction limit exceeded")
)

// DefaultMaxEntryBytes bounds a single extracted entry against zip bombs.
const DefaultMaxEntryBytes int64 = 4 << 30

// Extractor replays locations produced by Build. The root archive is reopened
// for every call; no handles are held between calls.
type Extractor struct {
	// MaxEntryBytes caps the bytes read from any single entry, including
	// intermediate nested archives. Zero means no cap.
	MaxEntryBytes int64
}

// ReadAll returns the bytes of the entry at loc.
func (x Extractor) ReadAll(loc Location) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := x.stream(loc, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteTo streams the entry at loc to w and returns the number of bytes written.
func (x Extractor) WriteTo(loc Location, w io.Writer) (int64, error) {
	return x.stream(loc, w)
}

// ExtractTo writes the entry at loc to dest. Extraction is idempotent: when
// dest already exists and is non-empty it is left untouched. The file is
// written to a temporary sibling and renamed into place.
func (x Extractor) ExtractTo(loc Location, dest string) error {
	if fileutil.NonEmpty(dest) {
		return nil
	}
	if err := fileutil.EnsureDir(filepath.Dir(dest)); err != nil {
		return fmt.Errorf("create extract dir: %w", err)
	}
	return fileutil.WriteAtomic(dest, func(w io.Writer) error {
		_, err := x.stream(loc, w)
		return err
	})
}

func (x Extractor) stream(loc Location, w io.Writer) (int64, error) {
	if len(loc.Path) == 0 {
		return 0, fmt.Errorf("%w: empty location", ErrNotFound)
	}
	root, err := zip.OpenReader(loc.Archive)
	if err != nil {
		return 0, eris.Wrapf(ErrBadArchive, "open %q: %v", loc.Archive, err)
	}
	defer root.Close()

	zr := &root.Reader
	for i, seg := range loc.Path[:len(loc.Path)-1] {
		zf := findEntry(zr, seg)
		if zf == nil {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, Location{Path: loc.Path[:i+1]})
		}
		data, err := readZipFile(zf, x.MaxEntryBytes)
		if err != nil {
			return 0, fmt.Errorf("read nested archive %q: %w", seg, err)
		}
		zr, err = zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return 0, fmt.Errorf("%w: nested %q: %v", ErrBadArchive, seg, err)
		}
	}

	zf := findEntry(zr, loc.Name())
	if zf == nil {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, loc)
	}
	rc, err := zf.Open()
	if err != nil {
		return 0, fmt.Errorf("open zip entry %q: %w", zf.Name, err)
	}
	defer rc.Close()
	n, err := CopyWithLimit(w, rc, x.MaxEntryBytes)
	if err != nil {
		return n, fmt.Errorf("extract %q: %w", zf.Name, err)
	}
	return n, nil
}

// findEntry matches on the raw entry name; zip.Reader.Open would apply
// io/fs path cleaning that can differ from what Build recorded.
func findEntry(zr *zip.Reader, name string) *zip.File {
	for _, zf := range zr.File {
		if zf.Name == name {
			return zf
		}
	}
	return nil
}

func readZipFile(zf *zip.File, max int64) ([]byte, error) {
	if max > 0 && zf.UncompressedSize64 > uint64(max) {
		return nil, fmt.Errorf("%w: zip entry %q too large (%d bytes > %d bytes)",
			ErrExtractLimitExceeded, zf.Name, zf.UncompressedSize64, max)
	}
	rc, err := zf.Open()
	if err != nil {
		return nil, fmt.Errorf("open zip entry %q: %w", zf.Name, err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	if zf.UncompressedSize64 > 0 && zf.UncompressedSize64 < 1<<31 {
		buf.Grow(int(zf.UncompressedSize64))
	}
	if _, err := CopyWithLimit(&buf, rc, max); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CopyWithLimit copies from src to dst, failing with ErrExtractLimitExceeded
// once more than max bytes are available. max <= 0 copies without a cap.
// On overflow one extra byte may be consumed from src.
func CopyWithLimit(dst io.Writer, src io.Reader, max int64) (int64, error) {
	if max <= 0 {
		return io.Copy(dst, src)
	}
	n, err := io.Copy(dst, io.LimitReader(src, max))
	if err != nil {
		return n, err
	}
	if n < max {
		return n, nil
	}
	var one [1]byte
	nr, er := src.Read(one[:])
	if nr > 0 {
		return n, fmt.Errorf("%w: limit %d bytes", ErrExtractLimitExceeded, max)
	}
	if er != nil && er != io.EOF {
		return n, er
	}
	return n, nil
}
