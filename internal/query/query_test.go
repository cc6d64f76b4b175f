package query

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/wesm/snapvault/internal/dataset"
	"github.com/wesm/snapvault/internal/testutil"
)

func day(d, hour int) time.Time {
	return time.Date(2024, 1, d, hour, 0, 0, 0, time.UTC)
}

// fixture indices:
//
//	0 c1 alice  Jan 3 10:00 saved
//	1 c1 bob    Jan 1 09:00
//	2 c2 alice  Jan 2 12:00 media
//	3 Reported  Jan 2 12:00 flagged media
//	4 c2 carol  no timestamp
func fixture(t *testing.T) (*dataset.Dataset, *Engine) {
	t.Helper()
	ds := dataset.New()
	ds.Append(dataset.Message{
		ConversationID: "c1", ConversationTitle: "Weekend", Sender: "alice", Receiver: "bob",
		ContentType: "TEXT", MessageType: "RECEIVED", Text: "Meet at the park",
		Timestamp: day(3, 10), SavedBy: []string{"bob"},
	})
	ds.Append(dataset.Message{
		ConversationID: "c1", Sender: "bob", Receiver: "alice",
		ContentType: "TEXT", MessageType: "SENT", Text: "parking is full",
		Timestamp: day(1, 9),
	})
	ds.Append(dataset.Message{
		ConversationID: "c2", Sender: "alice", ContentType: "MEDIA", MessageType: "SENT",
		MediaID: "b~EiASFzRraXd1bWVzc2FnZXM", Timestamp: day(2, 12),
	})
	ds.Append(dataset.Message{
		ConversationID: "Reported Files", ConversationTitle: "Reported Files", Sender: "mallory",
		MediaID: "evidence-1", IsFlaggedMedia: true, Timestamp: day(2, 12),
	})
	ds.Append(dataset.Message{
		ConversationID: "c2", Sender: "carol", ContentType: "TEXT", Text: "when?",
	})
	lists := []KeywordList{
		{Name: "places", Keywords: []string{"park", "beach"}, WholeWord: true},
		{Name: "loose", Keywords: []string{" PARK "}},
	}
	return ds, NewEngine(ds, lists, nil)
}

func TestFilter(t *testing.T) {
	_, e := fixture(t)
	jan2from, jan2to := DayRange(day(2, 0), day(2, 0))

	tests := []struct {
		name  string
		scope Scope
		fs    FilterState
		want  []int
	}{
		{"everything oldest first", AllConversations(), FilterState{}, []int{4, 1, 2, 3, 0}},
		{"one conversation", InConversation("c1"), FilterState{}, []int{1, 0}},
		{"unknown conversation", InConversation("nope"), FilterState{}, []int{}},
		{"sender", AllConversations(), FilterState{Sender: "alice"}, []int{2, 0}},
		{"message type", AllConversations(), FilterState{MessageType: "SENT"}, []int{1, 2}},
		{"content type", AllConversations(), FilterState{ContentType: "TEXT"}, []int{4, 1, 0}},
		{"single day is inclusive", AllConversations(), FilterState{From: jan2from, To: jan2to}, []int{2, 3}},
		{"open ended from", AllConversations(), FilterState{From: day(2, 12)}, []int{2, 3, 0}},
		{"open ended to", AllConversations(), FilterState{To: day(2, 12)}, []int{1}},
		{"saved", AllConversations(), FilterState{Saved: SavedOnly}, []int{0}},
		{"unsaved", AllConversations(), FilterState{Saved: UnsavedOnly}, []int{4, 1, 2, 3}},
		{"substring text", AllConversations(), FilterState{Query: "park"}, []int{1, 0}},
		{"whole word text", AllConversations(), FilterState{Query: "park", WholeWord: true}, []int{0}},
		{"phrase", AllConversations(), FilterState{Query: `"at the park"`}, []int{0}},
		{"text matches sender", AllConversations(), FilterState{Query: "mallory"}, []int{3}},
		{"operators", AllConversations(), FilterState{Query: "from:Alice is:saved"}, []int{0}},
		{"flagged", AllConversations(), FilterState{Query: "is:flagged"}, []int{3}},
		{"has media", AllConversations(), FilterState{Query: "has:media"}, []int{2, 3}},
		{"content operator", AllConversations(), FilterState{Query: "content:media"}, []int{2}},
		{"type operator", AllConversations(), FilterState{Query: "type:received"}, []int{0}},
		{"conv operator by id", AllConversations(), FilterState{Query: "conv:c2"}, []int{4, 2}},
		{"conv operator by title", AllConversations(), FilterState{Query: "conv:weekend"}, []int{1, 0}},
		{"to operator", AllConversations(), FilterState{Query: "to:alice"}, []int{1}},
		{"before excludes its day", AllConversations(), FilterState{Query: "before:2024-01-02"}, []int{1}},
		{"after includes its day", AllConversations(), FilterState{Query: "after:2024-01-03"}, []int{0}},
		{"keyword list whole word", AllConversations(), FilterState{KeywordList: "places"}, []int{0}},
		{"keyword list substring", AllConversations(), FilterState{KeywordList: "loose"}, []int{1, 0}},
		{"unknown keyword list", AllConversations(), FilterState{KeywordList: "missing"}, []int{}},
		{"combined", InConversation("c1"), FilterState{Sender: "bob", Query: "full"}, []int{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Filter(tt.scope, tt.fs)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Filter mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFilter_OrderIndependent(t *testing.T) {
	_, e := fixture(t)
	from, to := DayRange(day(2, 0), day(3, 0))

	bySender := e.Filter(AllConversations(), FilterState{Sender: "alice"})
	byDate := e.Filter(AllConversations(), FilterState{From: from, To: to})
	both := e.Filter(AllConversations(), FilterState{Sender: "alice", From: from, To: to})

	inDate := make(map[int]bool)
	for _, i := range byDate {
		inDate[i] = true
	}
	var sequential []int
	for _, i := range bySender {
		if inDate[i] {
			sequential = append(sequential, i)
		}
	}
	testutil.AssertEqualSlices(t, both, sequential...)
	testutil.AssertEqualSlices(t, both, 2, 0)
}

func TestFilter_Cache(t *testing.T) {
	_, e := fixture(t)
	fs := FilterState{Sender: "alice"}

	first := e.Filter(AllConversations(), fs)
	e.Filter(AllConversations(), fs)
	if e.CacheLen() != 1 {
		t.Fatalf("CacheLen = %d, want 1", e.CacheLen())
	}

	first[0] = 99
	testutil.AssertEqualSlices(t, e.Filter(AllConversations(), fs), 2, 0)

	e.SetDisplay(e.Display())
	if e.CacheLen() != 1 {
		t.Errorf("unchanged display cleared the cache")
	}
	e.SetDisplay(DisplayState{BlurMedia: true})
	if e.CacheLen() != 0 {
		t.Errorf("display change kept %d cached results", e.CacheLen())
	}
}

func TestFilter_TagsAfterInvalidate(t *testing.T) {
	ds, e := fixture(t)
	testutil.MustNoErr(t, ds.AddTag(1, "evidence"), "AddTag")
	testutil.AssertEqualSlices(t, e.Filter(AllConversations(), FilterState{Query: "tag:evidence"}), 1)

	testutil.MustNoErr(t, ds.AddTag(0, "evidence"), "AddTag")
	e.Invalidate()
	testutil.AssertEqualSlices(t, e.Filter(AllConversations(), FilterState{Query: "tag:evidence"}), 1, 0)
}

func TestFilter_EmptyDataset(t *testing.T) {
	e := NewEngine(dataset.New(), nil, nil)
	if got := e.Filter(AllConversations(), FilterState{}); len(got) != 0 {
		t.Errorf("Filter on empty dataset = %v", got)
	}
	if got := e.Count(AllConversations(), FilterState{Query: "x"}); got != 0 {
		t.Errorf("Count on empty dataset = %d", got)
	}
}

func TestCount(t *testing.T) {
	_, e := fixture(t)
	if got := e.Count(AllConversations(), FilterState{Query: "has:media"}); got != 2 {
		t.Errorf("Count = %d, want 2", got)
	}
}

func TestStats(t *testing.T) {
	ds, e := fixture(t)
	testutil.MustNoErr(t, ds.AddTag(2, "x"), "AddTag")
	want := Stats{Messages: 5, Conversations: 3, Flagged: 1, WithMedia: 2, Saved: 1, Senders: 4, Tagged: 1}
	if diff := cmp.Diff(want, e.Stats()); diff != "" {
		t.Errorf("Stats mismatch (-want +got):\n%s", diff)
	}
}

func TestDayRange(t *testing.T) {
	from, to := DayRange(time.Date(2024, 2, 28, 15, 30, 0, 0, time.UTC), time.Date(2024, 2, 29, 1, 0, 0, 0, time.UTC))
	if !from.Equal(time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("from = %v", from)
	}
	if !to.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("to = %v", to)
	}
	if f, tt := DayRange(time.Time{}, time.Time{}); !f.IsZero() || !tt.IsZero() {
		t.Errorf("zero inputs gave %v, %v", f, tt)
	}
}

func TestMatchText(t *testing.T) {
	tests := []struct {
		haystack, needle string
		whole            bool
		want             bool
	}{
		{"meet at the park", "park", false, true},
		{"meet at the park", "park", true, true},
		{"parking is full", "park", true, false},
		{"parking is full", "park", false, true},
		{"a park-side café", "park", true, true},
		{"skatepark park", "park", true, true},
		{"café", "caf", true, false},
		{"naïve user", "naïve", true, true},
		{"anything", "", true, true},
		{"snake_case", "snake", true, false},
	}
	for _, tt := range tests {
		if got := matchText(tt.haystack, tt.needle, tt.whole); got != tt.want {
			t.Errorf("matchText(%q, %q, %v) = %v, want %v", tt.haystack, tt.needle, tt.whole, got, tt.want)
		}
	}
}

func TestParseSavedFilter(t *testing.T) {
	for _, s := range []SavedFilter{SavedAny, SavedOnly, UnsavedOnly} {
		got, ok := ParseSavedFilter(s.String())
		if !ok || got != s {
			t.Errorf("ParseSavedFilter(%q) = %v, %v", s.String(), got, ok)
		}
	}
	if _, ok := ParseSavedFilter("maybe"); ok {
		t.Error("ParseSavedFilter accepted an unknown value")
	}
}
