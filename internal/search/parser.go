// Package search parses the free-text query language used to narrow
// message lists: bare words and quoted phrases plus operators such as
// from:, type:, before: and is:saved.
package search

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Query represents a parsed search query. All criteria AND-combine.
type Query struct {
	TextTerms     []string   // words and phrases matched against message text
	FromUsers     []string   // from: sender, lowercased
	ToUsers       []string   // to: receiver, lowercased
	MessageTypes  []string   // type: message_type, uppercased
	ContentTypes  []string   // content: content_type, uppercased
	Conversations []string   // conv: conversation id or title
	Tags          []string   // tag: annotation
	Saved         *bool      // is:saved / is:unsaved
	Flagged       *bool      // is:flagged
	HasMedia      *bool      // has:media
	BeforeDate    *time.Time // before: exclusive bound
	AfterDate     *time.Time // after: inclusive bound
}

// IsEmpty returns true if the query has no search criteria.
func (q *Query) IsEmpty() bool {
	return len(q.TextTerms) == 0 &&
		len(q.FromUsers) == 0 &&
		len(q.ToUsers) == 0 &&
		len(q.MessageTypes) == 0 &&
		len(q.ContentTypes) == 0 &&
		len(q.Conversations) == 0 &&
		len(q.Tags) == 0 &&
		q.Saved == nil &&
		q.Flagged == nil &&
		q.HasMedia == nil &&
		q.BeforeDate == nil &&
		q.AfterDate == nil
}

type operatorFn func(q *Query, value string, now time.Time)

func flag(v bool) *bool { return &v }

var operators = map[string]operatorFn{
	"from": func(q *Query, v string, _ time.Time) {
		q.FromUsers = append(q.FromUsers, strings.ToLower(v))
	},
	"to": func(q *Query, v string, _ time.Time) {
		q.ToUsers = append(q.ToUsers, strings.ToLower(v))
	},
	"type": func(q *Query, v string, _ time.Time) {
		q.MessageTypes = append(q.MessageTypes, strings.ToUpper(v))
	},
	"content": func(q *Query, v string, _ time.Time) {
		q.ContentTypes = append(q.ContentTypes, strings.ToUpper(v))
	},
	"conv": func(q *Query, v string, _ time.Time) {
		q.Conversations = append(q.Conversations, v)
	},
	"tag": func(q *Query, v string, _ time.Time) {
		q.Tags = append(q.Tags, v)
	},
	"is": func(q *Query, v string, _ time.Time) {
		switch strings.ToLower(v) {
		case "saved":
			q.Saved = flag(true)
		case "unsaved":
			q.Saved = flag(false)
		case "flagged", "reported":
			q.Flagged = flag(true)
		}
	},
	"has": func(q *Query, v string, _ time.Time) {
		if low := strings.ToLower(v); low == "media" || low == "attachment" {
			q.HasMedia = flag(true)
		}
	},
	"before": func(q *Query, v string, _ time.Time) {
		if t := parseDate(v); t != nil {
			q.BeforeDate = t
		}
	},
	"after": func(q *Query, v string, _ time.Time) {
		if t := parseDate(v); t != nil {
			q.AfterDate = t
		}
	},
	"older_than": func(q *Query, v string, now time.Time) {
		if t := parseRelativeDate(v, now); t != nil {
			q.BeforeDate = t
		}
	},
	"newer_than": func(q *Query, v string, now time.Time) {
		if t := parseRelativeDate(v, now); t != nil {
			q.AfterDate = t
		}
	},
}

// Parser holds configuration for query parsing.
type Parser struct {
	Now func() time.Time // Time source (mockable for testing)
}

// NewParser creates a Parser with default settings.
func NewParser() *Parser {
	return &Parser{Now: func() time.Time { return time.Now().UTC() }}
}

// Parse parses a query string.
//
// Supported operators:
//   - from:, to: - sender and receiver usernames
//   - type:, content: - message_type and content_type
//   - conv: - conversation id or title
//   - tag: - annotation tag
//   - is:saved, is:unsaved, is:flagged, has:media
//   - before:, after: - dates (YYYY-MM-DD); before: excludes its day
//   - older_than:, newer_than: - relative dates (e.g., 7d, 2w, 1m, 1y)
//   - Bare words and "quoted phrases" - text search
//
// Unknown operators are searched as text.
func (p *Parser) Parse(queryStr string) *Query {
	q := &Query{}
	now := time.Now().UTC()
	if p.Now != nil {
		now = p.Now()
	}

	for _, token := range tokenize(queryStr) {
		if isQuotedPhrase(token) {
			q.TextTerms = append(q.TextTerms, unquote(token))
			continue
		}
		if op, value, ok := strings.Cut(token, ":"); ok {
			if handler, known := operators[strings.ToLower(op)]; known && value != "" {
				handler(q, unquote(value), now)
				continue
			}
		}
		q.TextTerms = append(q.TextTerms, token)
	}
	return q
}

// Parse is a convenience function that parses using default settings.
func Parse(queryStr string) *Query {
	return NewParser().Parse(queryStr)
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

func isQuotedPhrase(token string) bool {
	return len(token) > 2 && token[0] == '"' && token[len(token)-1] == '"'
}

// tokenize splits on whitespace outside quotes. A quote opened directly
// after an operator colon stays part of that token (conv:"Best Friends");
// any other quoted section becomes its own phrase token.
func tokenize(queryStr string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}

	var quote rune
	opQuoted := false
	prev := rune(0)
	for _, r := range queryStr {
		switch {
		case quote == 0 && (r == '"' || r == '\''):
			quote = r
			opQuoted = prev == ':'
			if opQuoted {
				cur.WriteRune('"')
			} else {
				flush()
			}
		case quote != 0 && r == quote:
			quote = 0
			if opQuoted {
				cur.WriteRune('"')
				flush()
			} else if cur.Len() > 0 {
				tokens = append(tokens, `"`+cur.String()+`"`)
				cur.Reset()
			}
		case quote == 0 && (r == ' ' || r == '\t'):
			flush()
		default:
			cur.WriteRune(r)
		}
		prev = r
	}
	flush()
	return tokens
}

var dateFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
}

// parseDate parses YYYY-MM-DD (or YYYY/MM/DD, MM/DD/YYYY) as UTC midnight.
func parseDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	for _, format := range dateFormats {
		if t, err := time.Parse(format, value); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

var relativeDateRe = regexp.MustCompile(`^(\d+)([dwmy])$`)

// parseRelativeDate parses relative dates like 7d, 2w, 1m, 1y relative to now.
func parseRelativeDate(value string, now time.Time) *time.Time {
	match := relativeDateRe.FindStringSubmatch(strings.TrimSpace(strings.ToLower(value)))
	if match == nil {
		return nil
	}
	amount, _ := strconv.Atoi(match[1])

	var result time.Time
	switch match[2] {
	case "d":
		result = now.AddDate(0, 0, -amount)
	case "w":
		result = now.AddDate(0, 0, -amount*7)
	case "m":
		result = now.AddDate(0, -amount, 0)
	case "y":
		result = now.AddDate(-amount, 0, 0)
	}
	return &result
}
