package textutil

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

var flatten = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", "", "\t", " ")

// TruncateWidth flattens s to one line and cuts it to at most width terminal
// cells, ending with "..." when cut. Wide runes (CJK, emoji) count as two
// cells.
func TruncateWidth(s string, width int) string {
	if width <= 0 {
		return ""
	}
	s = flatten.Replace(s)
	if runewidth.StringWidth(s) <= width {
		return s
	}
	if width <= 3 {
		return runewidth.Truncate(s, width, "")
	}
	return runewidth.Truncate(s, width, "...")
}

// PadWidth right-pads s with spaces to width terminal cells.
func PadWidth(s string, width int) string {
	return runewidth.FillRight(s, width)
}

// FirstLine returns the first line of s, skipping leading line breaks.
func FirstLine(s string) string {
	s = strings.TrimLeft(s, "\r\n")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimRight(s[:i], "\r")
	}
	return s
}
