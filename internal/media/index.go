package media

import (
	"strings"

	"github.com/wesm/snapvault/internal/archive"
)

type indexState int

const (
	tokensUnbuilt indexState = iota
	tokensBuilt
)

// Index maps archive entries by lowercased base name (built eagerly) and by
// token (built on first use, then kept for the life of the import).
type Index struct {
	entries   []archive.Location
	lowered   []string // lowercased "base\x00internal path", parallel to entries
	basenames map[string][]archive.Location
	tokens    map[string][]archive.Location
	state     indexState
}

// NewIndex builds the base-name map over entries. The token map is left
// unbuilt until BuildTokens or the first token lookup.
func NewIndex(entries []archive.Location) *Index {
	ix := &Index{
		entries:   entries,
		lowered:   make([]string, len(entries)),
		basenames: make(map[string][]archive.Location, len(entries)),
	}
	for i, loc := range entries {
		base := strings.ToLower(loc.Base())
		ix.basenames[base] = append(ix.basenames[base], loc)
		ix.lowered[i] = base + "\x00" + strings.ToLower(loc.String())
	}
	return ix
}

// Len returns the number of indexed entries.
func (ix *Index) Len() int { return len(ix.entries) }

// ByBasename returns entries whose base name equals name, case-insensitively.
func (ix *Index) ByBasename(name string) []archive.Location {
	return ix.basenames[strings.ToLower(name)]
}

// TokensBuilt reports whether the token map exists.
func (ix *Index) TokensBuilt() bool { return ix.state == tokensBuilt }

// BuildTokens extracts tokens from every base name and maps each token to
// its deduplicated entry list. Calling it again is a no-op.
func (ix *Index) BuildTokens() {
	if ix.state == tokensBuilt {
		return
	}
	ix.tokens = make(map[string][]archive.Location)
	seen := make(map[string]struct{})
	for _, loc := range ix.entries {
		key := loc.Key()
		for _, tok := range ExtractTokens(loc.Base()) {
			dedup := tok + "\x00" + key
			if _, ok := seen[dedup]; ok {
				continue
			}
			seen[dedup] = struct{}{}
			ix.tokens[tok] = append(ix.tokens[tok], loc)
		}
	}
	ix.state = tokensBuilt
}

// TokenCount returns the number of distinct tokens, building the map if needed.
func (ix *Index) TokenCount() int {
	ix.BuildTokens()
	return len(ix.tokens)
}

// Lookup tries tokens in order against the token map and returns the matches
// of the first token that has any. Matches from different tokens are never
// merged.
func (ix *Index) Lookup(tokens []string) []archive.Location {
	ix.BuildTokens()
	for _, tok := range tokens {
		if locs := ix.tokens[strings.ToLower(tok)]; len(locs) > 0 {
			return locs
		}
	}
	return nil
}

// Scan is the linear fallback for Lookup: for each token in order it does a
// substring scan over base names and internal paths, stopping at the first
// token with any match.
func (ix *Index) Scan(tokens []string) []archive.Location {
	for _, tok := range tokens {
		if locs := ix.Contains(tok); len(locs) > 0 {
			return locs
		}
	}
	return nil
}

// Contains returns every entry whose base name or internal path contains
// needle, case-insensitively, in walk order.
func (ix *Index) Contains(needle string) []archive.Location {
	needle = strings.ToLower(strings.TrimSpace(needle))
	if needle == "" {
		return nil
	}
	var out []archive.Location
	for i, s := range ix.lowered {
		if strings.Contains(s, needle) {
			out = append(out, ix.entries[i])
		}
	}
	return out
}
