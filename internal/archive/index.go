package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// ConversationsFile is the per-export CSV holding chat records. Matching is
// case-insensitive on the entry's base name.
const ConversationsFile = "conversations.csv"

// ErrBadArchive is returned when the root archive cannot be read as a ZIP.
var ErrBadArchive = eris.New("bad archive")

// Options tunes archive tree traversal.
type Options struct {
	// MaxNestedBytes caps the uncompressed size of a nested ZIP that is read
	// into memory for recursion. Larger nested archives are skipped with a
	// warning. Zero means no cap.
	MaxNestedBytes int64
}

// Index lists every entry of an archive tree.
type Index struct {
	Root          string     // absolute path of the root archive
	Entries       []Location // every file entry, in walk order
	Conversations []Location // subset whose base name is conversations.csv
	Warnings      []string   // recoverable problems met while walking
}

// Build walks the archive tree rooted at root. A root that cannot be opened
// as a ZIP is fatal; corrupt nested archives are recorded in Warnings and
// skipped. The context is checked between nested archives.
func Build(ctx context.Context, root string, opts Options, log *slog.Logger) (*Index, error) {
	if log == nil {
		log = slog.Default()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, eris.Wrapf(err, "resolve archive path %q", root)
	}
	st, err := os.Stat(abs)
	if err != nil {
		return nil, eris.Wrapf(err, "archive %q", root)
	}
	if !st.Mode().IsRegular() {
		return nil, eris.Wrapf(ErrBadArchive, "%q is not a regular file", root)
	}

	zr, err := zip.OpenReader(abs)
	if err != nil {
		return nil, eris.Wrapf(ErrBadArchive, "open %q: %v", root, err)
	}
	defer zr.Close()

	w := &walker{
		ctx:  ctx,
		opts: opts,
		log:  log,
		idx:  &Index{Root: abs},
	}
	if err := w.walk(&zr.Reader, Location{Archive: abs}); err != nil {
		return nil, err
	}
	log.Debug("archive indexed",
		"root", abs,
		"entries", len(w.idx.Entries),
		"conversations", len(w.idx.Conversations),
		"warnings", len(w.idx.Warnings),
	)
	return w.idx, nil
}

type walker struct {
	ctx  context.Context
	opts Options
	log  *slog.Logger
	idx  *Index
}

func (w *walker) walk(zr *zip.Reader, parent Location) error {
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() || strings.HasSuffix(zf.Name, "/") {
			continue
		}
		loc := parent.child(zf.Name)
		w.idx.Entries = append(w.idx.Entries, loc)

		base := loc.Base()
		if strings.EqualFold(base, ConversationsFile) {
			w.idx.Conversations = append(w.idx.Conversations, loc)
		}
		if !strings.HasSuffix(strings.ToLower(base), ".zip") {
			continue
		}

		if err := w.ctx.Err(); err != nil {
			return err
		}
		nested, err := w.openNested(zf)
		if err != nil {
			w.warn(loc, err)
			continue
		}
		if err := w.walk(nested, loc); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) openNested(zf *zip.File) (*zip.Reader, error) {
	if w.opts.MaxNestedBytes > 0 && zf.UncompressedSize64 > uint64(w.opts.MaxNestedBytes) {
		return nil, fmt.Errorf("%w: nested archive is %d bytes (limit %d)",
			ErrExtractLimitExceeded, zf.UncompressedSize64, w.opts.MaxNestedBytes)
	}
	data, err := readZipFile(zf, w.opts.MaxNestedBytes)
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArchive, err)
	}
	return zr, nil
}

func (w *walker) warn(loc Location, err error) {
	msg := fmt.Sprintf("skipped nested archive %s: %v", loc, err)
	w.idx.Warnings = append(w.idx.Warnings, msg)
	w.log.Warn("skipped nested archive", "path", loc.String(), "error", err)
}
