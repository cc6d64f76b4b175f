package snapchat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/wesm/snapvault/internal/archive"
	"github.com/wesm/snapvault/internal/dataset"
	"github.com/wesm/snapvault/internal/testutil"
)

var (
	csvA = testutil.CSVRow{
		"content_type": "TEXT", "message_type": "RECEIVED", "conversation_id": "c1",
		"conversation_title": "Alice", "sender_username": "alice", "text": "first",
		"timestamp": "2024-01-01 10:00:00 UTC", "saved_by": "bob,alice",
	}
	csvB = testutil.CSVRow{
		"content_type": "TEXT", "message_type": "SENT", "conversation_id": "c1",
		"sender_username": "bob", "text": "second", "timestamp": "2024-01-01 12:00:00 UTC",
	}
	csvFlagged = testutil.CSVRow{
		"sender_username": "mallory", "media_id": "b~EiASFzRraXd1bWVzc2FnZXM",
		"timestamp": "2024-01-01 11:00:00 UTC",
	}
	csvDropped = testutil.CSVRow{"sender_username": "nobody", "text": "no context"}
)

// importArchive indexes the archive at root and imports its conversations.
func importArchive(t *testing.T, root string, opts ImportOptions) (*dataset.Dataset, *ImportSummary) {
	t.Helper()
	idx, err := archive.Build(context.Background(), root, archive.Options{}, nil)
	testutil.MustNoErr(t, err, "archive.Build")
	imp := NewImporter(archive.Extractor{}, nil, nil)
	ds, summary, err := imp.Import(context.Background(), idx.Conversations, opts)
	testutil.MustNoErr(t, err, "Import")
	return ds, summary
}

func TestImport_NestedDuplicateFlaggedAndNormal(t *testing.T) {
	root := testutil.WriteZip(t, "mydata.zip",
		testutil.Entry("json/conversations.csv", testutil.ConversationsCSV(nil, csvA)),
		testutil.Nested(t, "mydata~2.zip",
			testutil.Entry("json/conversations.csv", testutil.ConversationsCSV(nil, csvA, csvFlagged, csvB)),
		),
	)
	ds, summary := importArchive(t, root, ImportOptions{})

	if ds.Len() != 3 {
		t.Fatalf("messages = %d, want 3", ds.Len())
	}
	var texts []string
	for _, m := range ds.Messages {
		texts = append(texts, m.Text)
	}
	testutil.AssertStrings(t, texts, "first", "", "second")

	flagged := ds.Messages[1]
	if flagged.ConversationID != ReportedConversationID || !flagged.IsFlaggedMedia {
		t.Errorf("flagged row not reassigned: conv=%q flagged=%v", flagged.ConversationID, flagged.IsFlaggedMedia)
	}
	if flagged.Source != "json/conversations.csv" || flagged.SourceLine != 3 {
		t.Errorf("provenance = %s:%d, want json/conversations.csv:3", flagged.Source, flagged.SourceLine)
	}
	if summary.Duplicates != 1 || summary.Reported != 1 || summary.FilesProcessed != 2 {
		t.Errorf("summary = %+v", summary)
	}
	if c, ok := ds.Conversation(ReportedConversationID); !ok || c.Title != ReportedConversationTitle {
		t.Errorf("Reported Files conversation missing or untitled: %+v", c)
	}
	testutil.AssertStrings(t, ds.Messages[0].SavedBy, "bob", "alice")
}

func TestImport_RowsDifferingInTextAreKept(t *testing.T) {
	rowA2 := testutil.CSVRow{}
	for k, v := range csvA {
		rowA2[k] = v
	}
	rowA2["text"] = "first, edited"

	root := testutil.WriteZip(t, "mydata.zip",
		testutil.Entry("json/conversations.csv", testutil.ConversationsCSV(nil, csvA)),
		testutil.Nested(t, "mydata~2.zip",
			testutil.Entry("json/conversations.csv", testutil.ConversationsCSV(nil, rowA2)),
		),
	)
	ds, summary := importArchive(t, root, ImportOptions{})
	if ds.Len() != 2 || summary.Duplicates != 0 {
		t.Errorf("messages = %d, duplicates = %d; want 2, 0", ds.Len(), summary.Duplicates)
	}
}

func TestImport_SameRowDifferentProvenanceIsKept(t *testing.T) {
	root := testutil.WriteZip(t, "mydata.zip",
		testutil.Entry("json/conversations.csv", testutil.ConversationsCSV(nil, csvA)),
		testutil.Entry("backup/conversations.csv", testutil.ConversationsCSV(nil, csvA)),
		testutil.Entry("json2/conversations.csv", testutil.ConversationsCSV([]string{"preamble"}, csvA)),
	)
	ds, _ := importArchive(t, root, ImportOptions{})
	if ds.Len() != 3 {
		t.Errorf("messages = %d, want 3", ds.Len())
	}
}

func TestImport_DropsRowsWithoutContext(t *testing.T) {
	root := testutil.WriteZip(t, "mydata.zip",
		testutil.Entry("json/conversations.csv", testutil.ConversationsCSV(nil, csvDropped, csvB)),
	)
	ds, summary := importArchive(t, root, ImportOptions{})
	if ds.Len() != 1 || summary.RowsDropped != 1 || summary.RowsRead != 2 {
		t.Errorf("messages = %d, summary = %+v", ds.Len(), summary)
	}
	if got := ds.Messages[0].SourceLine; got != 3 {
		t.Errorf("source line = %d, want 3", got)
	}
}

func TestImport_BadFileIsRecoverable(t *testing.T) {
	root := testutil.WriteZip(t, "mydata.zip",
		testutil.Entry("broken/conversations.csv", "not,a,conversations,file\n"),
		testutil.Entry("json/conversations.csv", testutil.ConversationsCSV(nil, csvA)),
	)
	ds, summary := importArchive(t, root, ImportOptions{})
	if ds.Len() != 1 {
		t.Errorf("messages = %d, want 1", ds.Len())
	}
	if summary.FilesFailed != 1 || len(summary.Errors) != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	testutil.AssertContainsAll(t, summary.ErrorText(), "broken/conversations.csv", HeaderSignature)
}

func TestImport_TotalBytesCap(t *testing.T) {
	csv := testutil.ConversationsCSV(nil, csvA)
	root := testutil.WriteZip(t, "mydata.zip",
		testutil.Entry("json/conversations.csv", csv),
		testutil.Entry("more/conversations.csv", csv),
	)
	ds, summary := importArchive(t, root, ImportOptions{MaxTotalBytes: int64(len(csv)) + 1})
	if ds.Len() != 1 || summary.FilesFailed != 1 {
		t.Errorf("messages = %d, failed = %d; want 1, 1", ds.Len(), summary.FilesFailed)
	}
}

func TestImport_Limit(t *testing.T) {
	root := testutil.WriteZip(t, "mydata.zip",
		testutil.Entry("json/conversations.csv", testutil.ConversationsCSV(nil, csvA, csvB, csvFlagged)),
	)
	ds, _ := importArchive(t, root, ImportOptions{Limit: 2})
	if ds.Len() != 2 {
		t.Errorf("messages = %d, want 2", ds.Len())
	}
}

func TestImport_RepairsNonUTF8Text(t *testing.T) {
	data := "content_type,message_type,conversation_id,text\n" +
		"TEXT,,c1,caf\xe9 cr\xe8me br\xfbl\xe9e\n"
	root := testutil.WriteZip(t, "mydata.zip", testutil.Entry("json/conversations.csv", data))
	ds, _ := importArchive(t, root, ImportOptions{})
	if ds.Len() != 1 {
		t.Fatalf("messages = %d, want 1", ds.Len())
	}
	if got := ds.Messages[0].Text; !strings.HasPrefix(got, "caf") || !utf8.ValidString(got) {
		t.Errorf("text not repaired: %q", got)
	}
}

type recordingProgress struct {
	NullProgress
	started  int
	files    []string
	errors   int
	complete *ImportSummary
}

func (p *recordingProgress) OnStart(files int)                     { p.started = files }
func (p *recordingProgress) OnFileComplete(source string, _ int64) { p.files = append(p.files, source) }
func (p *recordingProgress) OnError(error)                         { p.errors++ }
func (p *recordingProgress) OnComplete(summary *ImportSummary)     { p.complete = summary }

func TestImport_ReportsProgress(t *testing.T) {
	root := testutil.WriteZip(t, "mydata.zip",
		testutil.Entry("json/conversations.csv", testutil.ConversationsCSV(nil, csvA)),
		testutil.Entry("bad/conversations.csv", "nothing here"),
	)
	idx, err := archive.Build(context.Background(), root, archive.Options{}, nil)
	testutil.MustNoErr(t, err, "archive.Build")

	p := &recordingProgress{}
	_, summary, err := NewImporter(archive.Extractor{}, p, nil).Import(context.Background(), idx.Conversations, ImportOptions{})
	testutil.MustNoErr(t, err, "Import")
	if p.started != 2 || p.errors != 1 || p.complete != summary {
		t.Errorf("progress = %+v", p)
	}
	testutil.AssertStrings(t, p.files, "json/conversations.csv")
}

func TestImport_Cancelled(t *testing.T) {
	root := testutil.WriteZip(t, "mydata.zip",
		testutil.Entry("json/conversations.csv", testutil.ConversationsCSV(nil, csvA)),
	)
	idx, err := archive.Build(context.Background(), root, archive.Options{}, nil)
	testutil.MustNoErr(t, err, "archive.Build")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ds, _, err := NewImporter(archive.Extractor{}, nil, nil).Import(ctx, idx.Conversations, ImportOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if ds != nil {
		t.Error("dataset returned after cancellation")
	}
}
