package media

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/wesm/snapvault/internal/archive"
	"github.com/wesm/snapvault/internal/fileutil"
)

// Extractor writes the entry at loc to dest. archive.Extractor satisfies it.
type Extractor interface {
	ExtractTo(loc archive.Location, dest string) error
}

// Options configures a Resolver.
type Options struct {
	// ScratchDir receives extracted files. It is owned by the session.
	ScratchDir string

	// DisableTokenIndex makes lookups use the linear substring scan instead
	// of building the token map.
	DisableTokenIndex bool
}

// Resolved is one media file found for a media id.
type Resolved struct {
	Location archive.Location
	Path     string // extracted local file
}

// Resolver turns media ids into extracted local files. Results, including
// misses, are memoized per raw media id for the life of the resolver; the
// archive is read-only so entries are never invalidated.
//
// A Resolver is not safe for concurrent use.
type Resolver struct {
	index   *Index
	x       Extractor
	opts    Options
	log     *slog.Logger
	memo    map[string][]Resolved
	flagged map[string][]Resolved
}

// NewResolver creates a resolver over ix.
func NewResolver(ix *Index, x Extractor, opts Options, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		index:   ix,
		x:       x,
		opts:    opts,
		log:     log,
		memo:    make(map[string][]Resolved),
		flagged: make(map[string][]Resolved),
	}
}

// Resolve returns the extracted paths for a media id taken from a normal
// chat row. Zero paths is a miss, not an error.
func (r *Resolver) Resolve(mediaID string) []string {
	return paths(r.Media(mediaID, false))
}

// ResolveFlagged returns the extracted paths for a media id taken from a
// reported/flagged row. Token extraction is bypassed: every entry whose base
// name or internal path contains the raw id is returned.
func (r *Resolver) ResolveFlagged(mediaID string) []string {
	return paths(r.Media(mediaID, true))
}

// Media resolves a media id and returns the matched locations alongside
// their extracted paths.
func (r *Resolver) Media(mediaID string, flagged bool) []Resolved {
	id := strings.TrimSpace(mediaID)
	if id == "" {
		return nil
	}
	memo := r.memo
	if flagged {
		memo = r.flagged
	}
	if res, ok := memo[id]; ok {
		return slices.Clone(res)
	}

	var res []Resolved
	if flagged {
		res = r.extractAll(r.index.Contains(id))
	} else {
		res = r.resolve(id)
	}
	memo[id] = res
	r.log.Debug("media resolved", "media_id", id, "flagged", flagged, "files", len(res))
	return slices.Clone(res)
}

// MemoSize returns the number of memoized ids, hits and misses included.
func (r *Resolver) MemoSize() int {
	return len(r.memo) + len(r.flagged)
}

func (r *Resolver) resolve(id string) []Resolved {
	if subs := SplitCompound(id); subs != nil {
		return r.resolveCompound(subs)
	}
	tokens := ExtractTokens(id)
	if len(tokens) == 0 {
		return nil
	}
	return r.extractAll(r.locate(tokens))
}

// resolveCompound resolves each sub-token on its own. Sub-tokens can be
// shorter than the indexing rules accept, so a token-map miss falls back to
// a substring scan for that sub-token.
func (r *Resolver) resolveCompound(subs []string) []Resolved {
	var out []Resolved
	seen := make(map[string]struct{})
	for _, sub := range subs {
		locs := r.locate([]string{sub})
		if len(locs) == 0 {
			locs = r.index.Contains(sub)
		}
		for _, res := range r.extractAll(locs) {
			if _, ok := seen[res.Path]; ok {
				continue
			}
			seen[res.Path] = struct{}{}
			out = append(out, res)
		}
	}
	return out
}

func (r *Resolver) locate(tokens []string) []archive.Location {
	if r.opts.DisableTokenIndex {
		return r.index.Scan(tokens)
	}
	return r.index.Lookup(tokens)
}

func (r *Resolver) extractAll(locs []archive.Location) []Resolved {
	var out []Resolved
	for _, loc := range locs {
		dest := r.scratchPath(loc)
		if err := r.x.ExtractTo(loc, dest); err != nil {
			r.log.Warn("media extraction failed", "path", loc.String(), "error", err)
			continue
		}
		out = append(out, Resolved{Location: loc, Path: dest})
	}
	return out
}

// scratchPath derives a collision-free file name from the full location so
// that equal base names in different folders or nested archives coexist.
func (r *Resolver) scratchPath(loc archive.Location) string {
	sum := sha256.Sum256([]byte(loc.Key()))
	name := hex.EncodeToString(sum[:6]) + "_" + fileutil.SanitizeFilename(loc.Base())
	return filepath.Join(r.opts.ScratchDir, name)
}

func paths(res []Resolved) []string {
	if len(res) == 0 {
		return nil
	}
	out := make([]string, len(res))
	for i, r := range res {
		out[i] = r.Path
	}
	return out
}
