package search

import (
	"testing"
	"time"
)

func utcDate(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func boolPtr(v bool) *bool           { return &v }
func timePtr(v time.Time) *time.Time { return &v }

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  Query
	}{
		{
			name:  "from operator",
			query: "from:Alice",
			want:  Query{FromUsers: []string{"alice"}},
		},
		{
			name:  "multiple from and to",
			query: "from:alice from:bob to:carol",
			want:  Query{FromUsers: []string{"alice", "bob"}, ToUsers: []string{"carol"}},
		},
		{
			name:  "bare text",
			query: "hello world",
			want:  Query{TextTerms: []string{"hello", "world"}},
		},
		{
			name:  "quoted phrase",
			query: `"see you at 10:30"`,
			want:  Query{TextTerms: []string{"see you at 10:30"}},
		},
		{
			name:  "types are uppercased",
			query: "type:received content:snap",
			want:  Query{MessageTypes: []string{"RECEIVED"}, ContentTypes: []string{"SNAP"}},
		},
		{
			name:  "conversation with quoted value",
			query: `conv:"Best Friends" party`,
			want:  Query{Conversations: []string{"Best Friends"}, TextTerms: []string{"party"}},
		},
		{
			name:  "single quoted operator value",
			query: `tag:'needs review'`,
			want:  Query{Tags: []string{"needs review"}},
		},
		{
			name:  "saved flags",
			query: "is:saved has:media",
			want:  Query{Saved: boolPtr(true), HasMedia: boolPtr(true)},
		},
		{
			name:  "unsaved",
			query: "is:unsaved",
			want:  Query{Saved: boolPtr(false)},
		},
		{
			name:  "flagged",
			query: "is:flagged",
			want:  Query{Flagged: boolPtr(true)},
		},
		{
			name:  "dates",
			query: "after:2024-01-15 before:2024/06/30",
			want: Query{
				AfterDate:  timePtr(utcDate(2024, 1, 15)),
				BeforeDate: timePtr(utcDate(2024, 6, 30)),
			},
		},
		{
			name:  "bad date ignored",
			query: "after:soon",
			want:  Query{},
		},
		{
			name:  "unknown operator is text",
			query: "http://example.com",
			want:  Query{TextTerms: []string{"http://example.com"}},
		},
		{
			name:  "empty operator value is text",
			query: "from:",
			want:  Query{TextTerms: []string{"from:"}},
		},
		{
			name:  "quoted colon phrase mixed with operator",
			query: `from:alice "from:not an operator"`,
			want: Query{
				FromUsers: []string{"alice"},
				TextTerms: []string{"from:not an operator"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.query)
			assertQueryEqual(t, *got, tt.want)
		})
	}
}

func TestParse_RelativeDates(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	p := &Parser{Now: func() time.Time { return now }}

	tests := []struct {
		query string
		want  Query
	}{
		{"newer_than:7d", Query{AfterDate: timePtr(now.AddDate(0, 0, -7))}},
		{"newer_than:2w", Query{AfterDate: timePtr(now.AddDate(0, 0, -14))}},
		{"older_than:1m", Query{BeforeDate: timePtr(now.AddDate(0, -1, 0))}},
		{"older_than:1y", Query{BeforeDate: timePtr(now.AddDate(-1, 0, 0))}},
		{"older_than:7x", Query{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assertQueryEqual(t, *p.Parse(tt.query), tt.want)
		})
	}
}

func TestQuery_IsEmpty(t *testing.T) {
	tests := []struct {
		query   string
		isEmpty bool
	}{
		{"", true},
		{"   ", true},
		{"from:alice", false},
		{"hello", false},
		{"is:unsaved", false},
		{"is:bogus", true},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			q := Parse(tt.query)
			if q.IsEmpty() != tt.isEmpty {
				t.Errorf("IsEmpty(%q): got %v, want %v", tt.query, q.IsEmpty(), tt.isEmpty)
			}
		})
	}
}
