package snapchat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wesm/snapvault/internal/archive"
	"github.com/wesm/snapvault/internal/dataset"
)

// EntryReader reads an archive entry into memory. archive.Extractor
// satisfies it.
type EntryReader interface {
	ReadAll(loc archive.Location) ([]byte, error)
}

// Importer turns the conversations.csv files of an archive tree into a dataset.
type Importer struct {
	reader   EntryReader
	progress ImportProgress
	log      *slog.Logger
}

// NewImporter creates a new importer.
func NewImporter(r EntryReader, progress ImportProgress, log *slog.Logger) *Importer {
	if progress == nil {
		progress = NullProgress{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Importer{reader: r, progress: progress, log: log}
}

// Import reads every source in order and merges the accepted rows into one
// dataset. A file that cannot be read or parsed is recorded in the summary's
// Errors and skipped. The context is checked between files; on cancellation
// the context error is returned and no dataset is produced.
func (imp *Importer) Import(ctx context.Context, sources []archive.Location, opts ImportOptions) (*dataset.Dataset, *ImportSummary, error) {
	start := time.Now()
	summary := &ImportSummary{}
	ds := dataset.New()
	seen := make(seenSet)
	var totalBytes int64

	imp.progress.OnStart(len(sources))

	for n, loc := range sources {
		if err := ctx.Err(); err != nil {
			return nil, summary, err
		}
		if opts.Limit > 0 && summary.MessagesAdded >= int64(opts.Limit) {
			break
		}
		source := sourceLabel(loc)
		imp.progress.OnFileStart(source, n, len(sources))

		data, err := imp.reader.ReadAll(loc)
		if err != nil {
			imp.fail(summary, loc, fmt.Errorf("read: %w", err))
			continue
		}
		totalBytes += int64(len(data))
		if opts.MaxTotalBytes > 0 && totalBytes > opts.MaxTotalBytes {
			imp.fail(summary, loc, fmt.Errorf("skipped: conversations data exceeds %d bytes", opts.MaxTotalBytes))
			continue
		}
		tbl, err := parseTable(data)
		if err != nil {
			imp.fail(summary, loc, err)
			continue
		}

		added := imp.ingest(ds, seen, tbl, source, summary, opts.Limit)
		summary.FilesProcessed++
		imp.log.Debug("conversations file ingested",
			"source", loc.String(), "rows", len(tbl.rows), "added", added)
		imp.progress.OnFileComplete(source, added)
	}

	summary.Duration = time.Since(start)
	imp.progress.OnComplete(summary)
	return ds, summary, nil
}

func (imp *Importer) ingest(ds *dataset.Dataset, seen seenSet, tbl *table, source string, summary *ImportSummary, limit int) int64 {
	var added int64
	for n := range tbl.rows {
		if limit > 0 && summary.MessagesAdded >= int64(limit) {
			break
		}
		summary.RowsRead++
		rec := tbl.record(n)
		ts, tsOK := parseTimestamp(rec[fTimestamp])
		kind := classify(&rec, tsOK)
		if kind == rowDropped {
			summary.RowsDropped++
			continue
		}
		m, reported := mapMessage(&rec, kind, ts, source, tbl.lineOf(n))
		if !seen.add(signatureOf(&m)) {
			summary.Duplicates++
			continue
		}
		if reported {
			summary.Reported++
		}
		ds.Append(m)
		summary.MessagesAdded++
		added++
	}
	return added
}

func (imp *Importer) fail(summary *ImportSummary, loc archive.Location, err error) {
	summary.FilesFailed++
	summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", loc.String(), err))
	imp.log.Warn("conversations file skipped", "source", loc.String(), "error", err)
	imp.progress.OnError(fmt.Errorf("%s: %w", loc.String(), err))
}
