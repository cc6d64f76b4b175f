package cmd

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/wesm/snapvault/internal/search"
	"github.com/wesm/snapvault/internal/textutil"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#999999"})

	flaggedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#aa0000", Dark: "#ff5f5f"}).
			Bold(true)

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#000000", Dark: "#000000"}).
			Background(lipgloss.AdaptiveColor{Light: "#e8d44d", Dark: "#e8d44d"}).
			Bold(true)
)

const timeLayout = "2006-01-02 15:04:05"

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(timeLayout)
}

// padRight pads s with spaces to fill width terminal cells, truncating when
// it is wider. ANSI styling does not count toward the width.
func padRight(s string, width int) string {
	sw := lipgloss.Width(s)
	if sw >= width {
		return ansi.Truncate(s, width, "")
	}
	return s + strings.Repeat(" ", width-sw)
}

// cell truncates plain text to width and pads it.
func cell(s string, width int) string {
	return textutil.PadWidth(textutil.TruncateWidth(s, width), width)
}

// highlightTerms styles every case-insensitive occurrence of the free-text
// terms of searchQuery in text.
func highlightTerms(text, searchQuery string) string {
	if searchQuery == "" || text == "" {
		return text
	}
	terms := search.Parse(searchQuery).TextTerms
	if len(terms) == 0 {
		return text
	}
	return applyHighlight(text, terms)
}

// applyHighlight works on runes so that lowercasing cannot shift offsets.
func applyHighlight(text string, terms []string) string {
	textRunes := []rune(text)
	lowerRunes := []rune(strings.ToLower(text))
	if len(lowerRunes) != len(textRunes) {
		return text
	}

	type interval struct{ start, end int }
	var intervals []interval
	for _, term := range terms {
		termRunes := []rune(strings.ToLower(term))
		n := len(termRunes)
		if n == 0 {
			continue
		}
		for i := 0; i <= len(lowerRunes)-n; i++ {
			if string(lowerRunes[i:i+n]) == string(termRunes) {
				intervals = append(intervals, interval{i, i + n})
				i += n - 1
			}
		}
	}
	if len(intervals) == 0 {
		return text
	}

	// Few intervals expected; insertion sort then merge overlaps.
	for i := 1; i < len(intervals); i++ {
		for j := i; j > 0 && intervals[j].start < intervals[j-1].start; j-- {
			intervals[j], intervals[j-1] = intervals[j-1], intervals[j]
		}
	}
	merged := []interval{intervals[0]}
	for _, iv := range intervals[1:] {
		last := &merged[len(merged)-1]
		if iv.start <= last.end {
			last.end = max(last.end, iv.end)
		} else {
			merged = append(merged, iv)
		}
	}

	var sb strings.Builder
	prev := 0
	for _, iv := range merged {
		sb.WriteString(string(textRunes[prev:iv.start]))
		sb.WriteString(highlightStyle.Render(string(textRunes[iv.start:iv.end])))
		prev = iv.end
	}
	sb.WriteString(string(textRunes[prev:]))
	return sb.String()
}
