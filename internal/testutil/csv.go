package testutil

import (
	"encoding/csv"
	"strings"
)

// ConversationsHeader is the column order produced by a current data download.
var ConversationsHeader = []string{
	"content_type", "message_type", "conversation_id", "message_id",
	"reply_to_message_id", "conversation_title", "sender_username",
	"recipient_username", "text", "media_id", "is_one_on_one", "timestamp",
	"saved_by", "reactions", "screenshotted_by", "replayed_by",
	"screen_recorded_by", "read_by", "group_member_usernames",
	"group_member_user_ids", "upload_ip", "source_port_number",
}

// CSVRow maps column name to value; missing columns are written empty.
type CSVRow map[string]string

// ConversationsCSV renders a conversations.csv with optional preamble lines
// before the header.
func ConversationsCSV(preamble []string, rows ...CSVRow) string {
	var sb strings.Builder
	for _, line := range preamble {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	w := csv.NewWriter(&sb)
	_ = w.Write(ConversationsHeader)
	for _, row := range rows {
		rec := make([]string, len(ConversationsHeader))
		for i, col := range ConversationsHeader {
			rec[i] = row[col]
		}
		_ = w.Write(rec)
	}
	w.Flush()
	return sb.String()
}
