package snapchat

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/wesm/snapvault/internal/archive"
	"github.com/wesm/snapvault/internal/dataset"
)

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2024-01-02 15:04:05 UTC", want, true},
		{"2024-01-02 15:04:05", want, true},
		{"2024-01-02T15:04:05Z", want, true},
		{"2024-01-02T17:04:05+02:00", want, true},
		{"1704207845", want, true},
		{"1704207845000", want, true},
		{"2024-01-02", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), true},
		{"", time.Time{}, false},
		{"yesterday", time.Time{}, false},
	}
	for _, tt := range tests {
		got, ok := parseTimestamp(tt.in)
		if ok != tt.ok || !got.Equal(tt.want) {
			t.Errorf("parseTimestamp(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSplitIDList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"alice, bob", []string{"alice", "bob"}},
		{"alice;bob ; carol", []string{"alice", "bob", "carol"}},
		{"alice bob", []string{"alice", "bob"}},
		{"alice,bob;carol", []string{"alice", "bob;carol"}},
		{" , ", nil},
		{"", nil},
	}
	for _, tt := range tests {
		got := SplitIDList(tt.in)
		if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("SplitIDList(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestFormatReactions(t *testing.T) {
	const uid = "00000000-0000-0000-0000-000000000000"
	names := map[string]string{uid: "alice"}
	tests := []struct {
		name      string
		in        string
		usernames map[string]string
		want      string
	}{
		{"fire without usernames", uid + "-3", nil, "🔥 (Fire)"},
		{"fire with username", uid + "-3", names, "alice: 🔥 (Fire)"},
		{"unset is text", uid + "-0", nil, "Unset/Unspecified"},
		{"several", uid + "-1;11111111-1111-1111-1111-111111111111-14", names, "alice: ❤️ (Heart), 👀 (Eyes)"},
		{"legacy", uid + " - 2, 11111111-1111-1111-1111-111111111111 - 0", nil, "😂 (Laughing), Unset/Unspecified"},
		{"unknown code", uid + "-42", nil, "Unknown (42)"},
		{"junk skipped", "garbage;" + uid + "-4", nil, "👍 (Thumbs Up)"},
		{"empty", "", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatReactions(tt.in, tt.usernames); got != tt.want {
				t.Errorf("FormatReactions(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseReactions_KeepsUserIDs(t *testing.T) {
	got := ParseReactions("aaaa-bbbb-5;cccc-dddd-6")
	want := []Reaction{{UserID: "aaaa-bbbb", Code: 5}, {UserID: "cccc-dddd", Code: 6}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseReactions mismatch (-want +got):\n%s", diff)
	}
}

func TestClassifyAndReclassify(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name        string
		rec         record
		tsOK        bool
		wantKind    rowKind
		wantConv    string
		wantFlagged bool
	}{
		{
			name:     "normal",
			rec:      record{fContentType: "TEXT", fConversationID: "c1", fSender: "alice"},
			tsOK:     true,
			wantKind: rowNormal, wantConv: "c1",
		},
		{
			name:     "flagged without context",
			rec:      record{fSender: "alice", fMediaID: "b~EiASFzRraXd1bWVzc2FnZXM"},
			tsOK:     true,
			wantKind: rowFlagged, wantConv: ReportedConversationID, wantFlagged: true,
		},
		{
			name:     "flagged with conversation keeps it",
			rec:      record{fConversationID: "c2", fSender: "alice", fMediaID: "m"},
			tsOK:     true,
			wantKind: rowFlagged, wantConv: "c2",
		},
		{
			name:     "missing media id",
			rec:      record{fSender: "alice"},
			tsOK:     true,
			wantKind: rowDropped,
		},
		{
			name:     "missing timestamp",
			rec:      record{fSender: "alice", fMediaID: "m"},
			wantKind: rowDropped,
		},
		{
			name:     "missing sender",
			rec:      record{fMediaID: "m"},
			tsOK:     true,
			wantKind: rowDropped,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind := classify(&tt.rec, tt.tsOK)
			if kind != tt.wantKind {
				t.Fatalf("classify = %d, want %d", kind, tt.wantKind)
			}
			if kind == rowDropped {
				return
			}
			m, reported := mapMessage(&tt.rec, kind, ts, "json/conversations.csv", 2)
			if m.ConversationID != tt.wantConv {
				t.Errorf("conversation = %q, want %q", m.ConversationID, tt.wantConv)
			}
			if m.IsFlaggedMedia != tt.wantFlagged || reported != tt.wantFlagged {
				t.Errorf("flagged = %v (reported %v), want %v", m.IsFlaggedMedia, reported, tt.wantFlagged)
			}
			if len(m.Tags) != 0 {
				t.Errorf("tags set on import: %v", m.Tags)
			}
		})
	}
}

func TestSourceLabel(t *testing.T) {
	tests := []struct {
		path []string
		want string
	}{
		{[]string{"json/conversations.csv"}, "json/conversations.csv"},
		{[]string{"mydata~2.zip", "json/conversations.csv"}, "json/conversations.csv"},
		{[]string{"a/b/json/Conversations.csv"}, "json/Conversations.csv"},
		{[]string{"conversations.csv"}, "conversations.csv"},
	}
	for _, tt := range tests {
		loc := archive.Location{Archive: "/x/mydata.zip", Path: tt.path}
		if got := sourceLabel(loc); got != tt.want {
			t.Errorf("sourceLabel(%v) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestUsernameMap(t *testing.T) {
	ds := dataset.New()
	ds.Append(dataset.Message{
		ConversationID:       "g",
		GroupMemberUserIDs:   []string{"u1", "u2"},
		GroupMemberUsernames: []string{"alice", "bob"},
	})
	ds.Append(dataset.Message{
		ConversationID:       "g",
		GroupMemberUserIDs:   []string{"u3"},
		GroupMemberUsernames: []string{"carol", "extra"},
	})
	want := map[string]string{"u1": "alice", "u2": "bob"}
	if diff := cmp.Diff(want, UsernameMap(ds)); diff != "" {
		t.Errorf("UsernameMap mismatch (-want +got):\n%s", diff)
	}
}
