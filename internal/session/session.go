// Package session owns the state of one imported archive: its archive
// index, dataset, media resolver, query engine and thumbnail cache, plus the
// scratch directories they write to. A new import replaces the state only
// when it succeeds.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/wesm/snapvault/internal/archive"
	"github.com/wesm/snapvault/internal/config"
	"github.com/wesm/snapvault/internal/dataset"
	"github.com/wesm/snapvault/internal/fileutil"
	"github.com/wesm/snapvault/internal/media"
	"github.com/wesm/snapvault/internal/query"
	"github.com/wesm/snapvault/internal/snapchat"
	"github.com/wesm/snapvault/internal/thumbnail"
)

var (
	// ErrNoConversations is returned when the archive tree holds no
	// conversations.csv at any depth.
	ErrNoConversations = eris.New("no conversations.csv found in archive")

	// ErrBusy is returned when an import is started while another runs.
	ErrBusy = errors.New("an import is already running")

	// ErrNoState is returned by Do before the first successful import.
	ErrNoState = errors.New("no archive imported")
)

// Options configures imports.
type Options struct {
	ScratchRoot   string // per-import extraction dirs are created below it
	ThumbnailRoot string // per-import thumbnail caches are created below it

	MaxEntryBytes  int64
	MaxTotalBytes  int64
	MaxNestedBytes int64

	TokenIndex    bool
	ThumbnailSize int
	VideoTimeout  time.Duration
	FFmpegPath    string

	KeywordLists []query.KeywordList
}

// OptionsFromConfig maps a loaded configuration onto session options.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	timeout, err := cfg.VideoTimeout()
	if err != nil {
		return Options{}, err
	}
	opts := Options{
		ScratchRoot:    cfg.ScratchDir(),
		ThumbnailRoot:  cfg.ThumbnailDir(),
		MaxEntryBytes:  cfg.Import.MaxEntryBytes,
		MaxTotalBytes:  cfg.Import.MaxTotalBytes,
		MaxNestedBytes: cfg.Import.MaxNestedBytes,
		TokenIndex:     cfg.Media.TokenIndex,
		ThumbnailSize:  cfg.Media.ThumbnailSize,
		VideoTimeout:   timeout,
		FFmpegPath:     cfg.Media.FFmpegPath,
	}
	for _, l := range cfg.KeywordLists {
		opts.KeywordLists = append(opts.KeywordLists, query.KeywordList{
			Name:      l.Name,
			Keywords:  l.Keywords,
			WholeWord: l.WholeWord,
		})
	}
	return opts, nil
}

// State is the result of one successful import.
type State struct {
	ID        string
	Root      string // absolute path of the root archive
	Archive   *archive.Index
	Dataset   *dataset.Dataset
	Summary   *snapchat.ImportSummary
	Media     *media.Resolver
	Query     *query.Engine
	Thumbs    *thumbnail.Generator
	Usernames map[string]string // user id -> username

	extractor  archive.Extractor
	scratchDir string
	thumbDir   string
}

// Errors returns the accumulated non-fatal problems of the import: skipped
// nested archives first, then conversations files that failed.
func (st *State) Errors() []string {
	out := make([]string, 0, len(st.Archive.Warnings)+len(st.Summary.Errors))
	out = append(out, st.Archive.Warnings...)
	return append(out, st.Summary.Errors...)
}

// MessageMedia resolves the media of message i. Reported rows use the raw
// substring search, everything else the token lookup.
func (st *State) MessageMedia(i int) ([]media.Resolved, error) {
	m, err := st.Dataset.Message(i)
	if err != nil {
		return nil, err
	}
	if !m.HasMedia() {
		return nil, nil
	}
	return st.Media.Media(m.MediaID, m.IsFlaggedMedia), nil
}

// Reactions renders message i's reactions with usernames where known.
func (st *State) Reactions(i int) (string, error) {
	m, err := st.Dataset.Message(i)
	if err != nil {
		return "", err
	}
	return snapchat.FormatReactions(m.Reactions, st.Usernames), nil
}

// RootHashes hashes the root archive.
func (st *State) RootHashes() (fileutil.Hashes, error) {
	return fileutil.HashFile(st.Root)
}

// ScratchDir returns the directory media is extracted to.
func (st *State) ScratchDir() string { return st.scratchDir }

// Extractor returns the extractor bound to this import's limits.
func (st *State) Extractor() archive.Extractor { return st.extractor }

// Close removes the state's scratch and thumbnail directories.
func (st *State) Close() error {
	return errors.Join(os.RemoveAll(st.scratchDir), os.RemoveAll(st.thumbDir))
}

// Session holds the current state. Single-threaded callers may use State
// directly; concurrent callers go through Do, which serializes every use of
// the state against each other and against swaps.
type Session struct {
	opts Options
	log  *slog.Logger

	use sync.Mutex // held by Do and while swapping state

	mu        sync.Mutex
	state     *State
	importing bool
}

// New creates an empty session.
func New(opts Options, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{opts: opts, log: log}
}

// State returns the current state, or nil before the first import.
func (s *Session) State() *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Import indexes and parses the archive at root. On success the new state
// replaces the current one, whose scratch files are removed. On failure the
// current state is left untouched. progress may be nil.
func (s *Session) Import(ctx context.Context, root string, progress func(Progress)) (*State, error) {
	if progress == nil {
		progress = func(Progress) {}
	}
	s.mu.Lock()
	if s.importing {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	s.importing = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.importing = false
		s.mu.Unlock()
	}()

	st, err := s.build(ctx, root, progress)
	if err != nil {
		return nil, err
	}

	old := s.swap(st)
	if old != nil {
		if err := old.Close(); err != nil {
			s.log.Warn("remove previous scratch files", "error", err)
		}
	}
	return st, nil
}

// Do runs fn with the current state. Calls to Do are serialized, and a
// state is never replaced or closed while fn runs.
func (s *Session) Do(fn func(*State) error) error {
	s.use.Lock()
	defer s.use.Unlock()
	st := s.State()
	if st == nil {
		return ErrNoState
	}
	return fn(st)
}

// Close discards the current state and its scratch files.
func (s *Session) Close() error {
	st := s.swap(nil)
	if st == nil {
		return nil
	}
	return st.Close()
}

// swap installs st and returns the previous state once no Do is running.
func (s *Session) swap(st *State) *State {
	s.use.Lock()
	defer s.use.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.state
	s.state = st
	return old
}

func (s *Session) build(ctx context.Context, root string, progress func(Progress)) (*State, error) {
	start := time.Now()
	progress(Progress{Percent: 0, Phase: PhaseScan, Message: "Indexing " + filepath.Base(root)})

	idx, err := archive.Build(ctx, root, archive.Options{MaxNestedBytes: s.opts.MaxNestedBytes}, s.log)
	if err != nil {
		return nil, eris.Wrap(err, "index archive")
	}
	if len(idx.Conversations) == 0 {
		return nil, eris.Wrapf(ErrNoConversations, "%s", root)
	}
	progress(Progress{
		Percent: 10,
		Phase:   PhaseScan,
		Message: fmt.Sprintf("Found %d conversation files in %d entries", len(idx.Conversations), len(idx.Entries)),
	})

	x := archive.Extractor{MaxEntryBytes: s.opts.MaxEntryBytes}
	imp := snapchat.NewImporter(x, importProgress{report: progress}, s.log)
	ds, summary, err := imp.Import(ctx, idx.Conversations, snapchat.ImportOptions{MaxTotalBytes: s.opts.MaxTotalBytes})
	if err != nil {
		return nil, err
	}

	progress(Progress{Percent: 90, Phase: PhaseFinalize, Message: "Building indexes"})
	id := uuid.NewString()
	st := &State{
		ID:         id,
		Root:       idx.Root,
		Archive:    idx,
		Dataset:    ds,
		Summary:    summary,
		Usernames:  snapchat.UsernameMap(ds),
		extractor:  x,
		scratchDir: filepath.Join(s.opts.ScratchRoot, id),
		thumbDir:   filepath.Join(s.opts.ThumbnailRoot, id),
	}
	st.Media = media.NewResolver(media.NewIndex(idx.Entries), x, media.Options{
		ScratchDir:        st.scratchDir,
		DisableTokenIndex: !s.opts.TokenIndex,
	}, s.log)
	st.Query = query.NewEngine(ds, s.opts.KeywordLists, s.log)
	st.Thumbs = thumbnail.New(thumbnail.Options{
		CacheDir:     st.thumbDir,
		Size:         s.opts.ThumbnailSize,
		VideoTimeout: s.opts.VideoTimeout,
		FFmpegPath:   s.opts.FFmpegPath,
	}, s.log)

	s.log.Info("import complete",
		"root", idx.Root,
		"session", id,
		"messages", ds.Len(),
		"conversations", len(ds.Conversations()),
		"duplicates", summary.Duplicates,
		"errors", len(st.Errors()),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	progress(Progress{
		Percent: 100,
		Phase:   PhaseDone,
		Message: fmt.Sprintf("Imported %d messages", ds.Len()),
	})
	return st, nil
}
