package snapchat

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

type field int

const (
	fConversationID field = iota
	fConversationTitle
	fMessageID
	fReplyToMessageID
	fContentType
	fMessageType
	fTimestamp
	fSender
	fReceiver
	fText
	fMediaID
	fSavedBy
	fIsOneOnOne
	fUploadIP
	fSourcePort
	fReactions
	fScreenshottedBy
	fReplayedBy
	fScreenRecordedBy
	fReadBy
	fGroupMemberUsernames
	fGroupMemberUserIDs
	numFields
)

// columns is the allow-list of consumed columns. Where two names feed one
// field, the earlier name is preferred and the later one fills in when the
// preferred cell is empty. Every other column is ignored.
var columns = []struct {
	name string
	f    field
}{
	{"conversation_id", fConversationID},
	{"conversation_title", fConversationTitle},
	{"message_id", fMessageID},
	{"reply_to_message_id", fReplyToMessageID},
	{"content_type", fContentType},
	{"message_type", fMessageType},
	{"timestamp", fTimestamp},
	{"sender_username", fSender},
	{"sender", fSender},
	{"recipient_username", fReceiver},
	{"receiver", fReceiver},
	{"text", fText},
	{"message", fText},
	{"media_id", fMediaID},
	{"content_id", fMediaID},
	{"saved_by", fSavedBy},
	{"is_one_on_one", fIsOneOnOne},
	{"upload_ip", fUploadIP},
	{"source_port_number", fSourcePort},
	{"reactions", fReactions},
	{"screenshotted_by", fScreenshottedBy},
	{"replayed_by", fReplayedBy},
	{"screen_recorded_by", fScreenRecordedBy},
	{"read_by", fReadBy},
	{"group_member_usernames", fGroupMemberUsernames},
	{"group_member_user_ids", fGroupMemberUserIDs},
}

// record holds one row's cells by field. Every value is kept as text.
type record [numFields]string

// table is a parsed conversations.csv.
type table struct {
	headerLine int // 0-based line index of the header
	cols       [numFields][]int
	rows       [][]string
}

var errNoHeader = errors.New("no header line containing " + HeaderSignature)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// parseTable finds the header line, then reads every following line as CSV.
// A malformed file fails as a whole.
func parseTable(data []byte) (*table, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	headerLine, offset := -1, 0
	for line, rest := 0, data; len(rest) > 0; line++ {
		end := bytes.IndexByte(rest, '\n')
		cur := rest
		if end >= 0 {
			cur = rest[:end]
		}
		if isHeaderLine(string(cur)) {
			headerLine = line
			break
		}
		if end < 0 {
			break
		}
		offset += end + 1
		rest = rest[end+1:]
	}
	if headerLine < 0 {
		return nil, errNoHeader
	}

	r := csv.NewReader(bytes.NewReader(data[offset:]))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	t := &table{headerLine: headerLine}
	t.mapColumns(header)

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

func isHeaderLine(line string) bool {
	line = strings.ToLower(strings.ReplaceAll(line, `"`, ""))
	line = strings.ReplaceAll(line, " ", "")
	return strings.Contains(line, HeaderSignature)
}

func (t *table) mapColumns(header []string) {
	pos := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := pos[name]; !dup {
			pos[name] = i
		}
	}
	for _, c := range columns {
		if i, ok := pos[c.name]; ok {
			t.cols[c.f] = append(t.cols[c.f], i)
		}
	}
}

// record maps row n onto fields, trimming surrounding whitespace.
func (t *table) record(n int) record {
	var rec record
	row := t.rows[n]
	for f := field(0); f < numFields; f++ {
		for _, i := range t.cols[f] {
			if i >= len(row) {
				continue
			}
			if v := strings.TrimSpace(row[i]); v != "" {
				rec[f] = v
				break
			}
		}
	}
	return rec
}

// lineOf returns the 1-based line number of row n in the original file.
func (t *table) lineOf(n int) int {
	return t.headerLine + 2 + n
}
