// Package query filters and searches an imported dataset. Predicates are
// evaluated column-at-a-time into bitsets over the whole dataset and the
// survivors are read back in chronological order. Results are cached by a
// hash of the filter state until the display state changes.
package query

import "time"

// SavedFilter selects messages by saved status.
type SavedFilter int

const (
	SavedAny SavedFilter = iota
	SavedOnly
	UnsavedOnly
)

// String returns the lowercase name of the filter.
func (s SavedFilter) String() string {
	switch s {
	case SavedOnly:
		return "saved"
	case UnsavedOnly:
		return "unsaved"
	default:
		return "any"
	}
}

// ParseSavedFilter maps "saved", "unsaved" and "any" (or "") to a SavedFilter.
func ParseSavedFilter(s string) (SavedFilter, bool) {
	switch s {
	case "", "any":
		return SavedAny, true
	case "saved":
		return SavedOnly, true
	case "unsaved":
		return UnsavedOnly, true
	}
	return SavedAny, false
}

// FilterState is the active set of predicates. The zero value matches
// everything.
type FilterState struct {
	// Date range: From is inclusive, To exclusive. Zero means unbounded.
	// Use DayRange to turn a pair of calendar days into bounds.
	From time.Time
	To   time.Time

	// Exact matches; empty means no filter.
	Sender      string
	MessageType string
	ContentType string

	Saved SavedFilter

	// Query is free text in the search package's query language.
	Query string

	// WholeWord switches text matching from substring to whole word.
	WholeWord bool

	// KeywordList names a configured keyword list. A name that is not
	// configured matches nothing.
	KeywordList string
}

// Scope selects the conversations a filter runs over.
type Scope struct {
	All            bool
	ConversationID string
}

// AllConversations scopes a filter to the whole dataset.
func AllConversations() Scope { return Scope{All: true} }

// InConversation scopes a filter to one conversation.
func InConversation(id string) Scope { return Scope{ConversationID: id} }

// DisplayState is view state that invalidates cached results when it
// changes.
type DisplayState struct {
	BlurMedia bool
}

// KeywordList is a named set of keywords; a message matches when any keyword
// does.
type KeywordList struct {
	Name      string
	Keywords  []string
	WholeWord bool
}

// DayRange converts an inclusive pair of calendar days into FilterState
// bounds: from is the start of first's day and to the start of the day after
// last, so the final day is fully included. Zero inputs stay zero.
func DayRange(first, last time.Time) (from, to time.Time) {
	if !first.IsZero() {
		from = startOfDay(first)
	}
	if !last.IsZero() {
		to = startOfDay(last).AddDate(0, 0, 1)
	}
	return from, to
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Stats summarises a dataset.
type Stats struct {
	Messages      int `json:"messages"`
	Conversations int `json:"conversations"`
	Flagged       int `json:"flagged"`
	WithMedia     int `json:"with_media"`
	Saved         int `json:"saved"`
	Senders       int `json:"senders"`
	Tagged        int `json:"tagged"`
}
