// Package media correlates opaque media identifiers from chat records with
// the files stored somewhere in an archive tree.
//
// Filenames never equal a media id literally. Both sides are reduced to
// tokens by the same rules and joined on the token:
//
//  1. "b~" followed by 20+ alphanumeric, underscore or hyphen characters
//     (the part after "b~" is the token).
//  2. Runs of 20+ letters, digits, underscores or hyphens starting with an
//     uppercase letter, unless the run looks like a folder name. A run
//     starts with a letter, so a date prefix such as "2024-01-01_" in a
//     file name is never part of it.
//  3. Hexadecimal runs of exactly 32 characters.
//
// Tokens are lowercased.
package media

import (
	"regexp"
	"strings"
)

var (
	bTildeRe   = regexp.MustCompile(`b~([A-Za-z0-9_-]{20,})`)
	upperRunRe = regexp.MustCompile(`[A-Z][A-Za-z0-9_-]{19,}`)
	hexRunRe   = regexp.MustCompile(`[0-9A-Fa-f]+`)
)

// ExtractTokens returns the normalized tokens found in s, rule 1 matches
// first, then rule 2, then rule 3, without duplicates.
func ExtractTokens(s string) []string {
	var tokens []string
	seen := make(map[string]struct{})
	add := func(tok string) {
		tok = strings.ToLower(tok)
		if _, ok := seen[tok]; ok {
			return
		}
		seen[tok] = struct{}{}
		tokens = append(tokens, tok)
	}

	for _, m := range bTildeRe.FindAllStringSubmatch(s, -1) {
		add(m[1])
	}
	for _, run := range upperRunRe.FindAllString(s, -1) {
		if looksLikeFolder(run) {
			continue
		}
		add(run)
	}
	for _, run := range hexRunRe.FindAllString(s, -1) {
		if len(run) == 32 {
			add(run)
		}
	}
	return tokens
}

// looksLikeFolder rejects runs shaped like export folder names
// ("Chat_Media__2024", "My-Data-Export-Part").
func looksLikeFolder(run string) bool {
	switch {
	case strings.Contains(run, "--"), strings.Contains(run, "__"):
		return true
	case strings.Count(run, "-") >= 3, strings.Count(run, "_") >= 3:
		return true
	}
	return false
}

// SplitCompound splits a "~"-delimited media id into its sub-tokens. A "b"
// part claims the part that follows it ("b~token"); 32-character hex parts
// and other long identifier parts stand alone. The result is lowercased and
// deduplicated in input order. An id is compound when it has at least two
// recognised parts, counted before deduplication; other ids yield nil.
func SplitCompound(mediaID string) []string {
	if !strings.Contains(mediaID, "~") {
		return nil
	}
	parts := strings.Split(mediaID, "~")
	var subs []string
	recognised := 0
	seen := make(map[string]struct{})
	add := func(tok string) {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "" {
			return
		}
		recognised++
		if _, ok := seen[tok]; ok {
			return
		}
		seen[tok] = struct{}{}
		subs = append(subs, tok)
	}

	for i := 0; i < len(parts); i++ {
		part := strings.TrimSpace(parts[i])
		switch {
		case strings.EqualFold(part, "b") && i+1 < len(parts):
			add(parts[i+1])
			i++
		case len(part) == 32 && isHex(part):
			add(part)
		case len(part) >= 20 && isIdent(part):
			add(part)
		}
	}
	if recognised < 2 {
		return nil
	}
	return subs
}

func isHex(s string) bool {
	for _, c := range s {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}

func isIdent(s string) bool {
	for _, c := range s {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_' || c == '-') {
			return false
		}
	}
	return true
}
