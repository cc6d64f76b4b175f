package query

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// matchText reports whether needle occurs in haystack. Both must already be
// lowercased. In whole-word mode the occurrence must not touch a letter,
// digit or underscore on either side.
func matchText(haystack, needle string, wholeWord bool) bool {
	if needle == "" {
		return true
	}
	if !wholeWord {
		return strings.Contains(haystack, needle)
	}
	for start := 0; start <= len(haystack)-len(needle); {
		i := strings.Index(haystack[start:], needle)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(needle)
		if boundaryBefore(haystack, i) && boundaryAfter(haystack, end) {
			return true
		}
		_, size := utf8.DecodeRuneInString(haystack[i:])
		start = i + size
	}
	return false
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isWordRune(r)
}
