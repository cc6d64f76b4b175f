package snapchat

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/wesm/snapvault/internal/archive"
	"github.com/wesm/snapvault/internal/dataset"
	"github.com/wesm/snapvault/internal/textutil"
)

var timestampLayouts = []string{
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseTimestamp parses the timestamp formats seen in data downloads, plus
// Unix epoch seconds or milliseconds. Results are in UTC.
func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), true
		}
		return time.Unix(n, 0).UTC(), true
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// SplitIDList splits a user-id list cell. Commas separate entries when
// present, else semicolons, else whitespace.
func SplitIDList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var parts []string
	switch {
	case strings.Contains(s, ","):
		parts = strings.Split(s, ",")
	case strings.Contains(s, ";"):
		parts = strings.Split(s, ";")
	default:
		parts = strings.Fields(s)
	}
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// sourceLabel names a CSV by its parent folder and file name. The archive
// path and any nested archive names are left out.
func sourceLabel(loc archive.Location) string {
	if dir := loc.Dir(); dir != "" {
		return path.Base(dir) + "/" + loc.Base()
	}
	return loc.Base()
}

type rowKind int

const (
	rowDropped rowKind = iota
	rowNormal
	rowFlagged
)

// classify applies the acceptance rules. A row is normal when it names both
// its content type and conversation, and flagged media when it has a
// sender, a parseable timestamp and a media id.
func classify(rec *record, tsOK bool) rowKind {
	switch {
	case rec[fContentType] != "" && rec[fConversationID] != "":
		return rowNormal
	case rec[fSender] != "" && tsOK && rec[fMediaID] != "":
		return rowFlagged
	}
	return rowDropped
}

// mapMessage converts an accepted record. Flagged rows missing both the
// conversation id and content type are moved into the Reported Files
// conversation.
func mapMessage(rec *record, kind rowKind, ts time.Time, source string, line int) (dataset.Message, bool) {
	for i := range rec {
		rec[i] = textutil.EnsureUTF8(rec[i])
	}
	m := dataset.Message{
		ConversationID:       rec[fConversationID],
		ConversationTitle:    rec[fConversationTitle],
		MessageID:            rec[fMessageID],
		ReplyToMessageID:     rec[fReplyToMessageID],
		ContentType:          rec[fContentType],
		MessageType:          rec[fMessageType],
		Timestamp:            ts,
		Sender:               rec[fSender],
		Receiver:             rec[fReceiver],
		Text:                 rec[fText],
		MediaID:              rec[fMediaID],
		Reactions:            rec[fReactions],
		SavedBy:              SplitIDList(rec[fSavedBy]),
		ScreenshottedBy:      SplitIDList(rec[fScreenshottedBy]),
		ReplayedBy:           SplitIDList(rec[fReplayedBy]),
		ScreenRecordedBy:     SplitIDList(rec[fScreenRecordedBy]),
		ReadBy:               SplitIDList(rec[fReadBy]),
		GroupMemberUsernames: SplitIDList(rec[fGroupMemberUsernames]),
		GroupMemberUserIDs:   SplitIDList(rec[fGroupMemberUserIDs]),
		IsOneOnOne:           rec[fIsOneOnOne],
		UploadIP:             rec[fUploadIP],
		SourcePort:           rec[fSourcePort],
		Source:               source,
		SourceLine:           line,
	}
	reported := false
	if kind == rowFlagged && m.ConversationID == "" && m.ContentType == "" {
		m.ConversationID = ReportedConversationID
		m.ConversationTitle = ReportedConversationTitle
		m.IsFlaggedMedia = true
		reported = true
	}
	return m, reported
}

// Reaction is one decoded reaction entry.
type Reaction struct {
	UserID string
	Code   int
}

var reactionNames = [...]string{
	0:  "Unset/Unspecified",
	1:  "❤️ (Heart)",
	2:  "😂 (Laughing)",
	3:  "🔥 (Fire)",
	4:  "👍 (Thumbs Up)",
	5:  "😮 (Surprised)",
	6:  "😢 (Sad)",
	7:  "😡 (Angry)",
	8:  "👎 (Thumbs Down)",
	9:  "😍 (Heart Eyes)",
	10: "🙏 (Praying Hands)",
	11: "💯 (Hundred)",
	12: "🎉 (Party)",
	13: "😭 (Crying)",
	14: "👀 (Eyes)",
}

// ReactionLabel renders a reaction code. Code 0 is always the literal
// "Unset/Unspecified".
func ReactionLabel(code int) string {
	if code >= 0 && code < len(reactionNames) {
		return reactionNames[code]
	}
	return fmt.Sprintf("Unknown (%d)", code)
}

// ParseReactions decodes a reactions cell. The current format is
// semicolon-separated "{user_id}-{code}"; the legacy format is
// comma-separated "{user_id} - {code}". User ids contain hyphens, so the
// code is whatever follows the last separator. Entries without a numeric
// code are skipped.
func ParseReactions(s string) []Reaction {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	sep, pair := ";", "-"
	if strings.Contains(s, " - ") {
		sep, pair = ",", " - "
	}
	var out []Reaction
	for _, tok := range strings.Split(s, sep) {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		user, code := "", tok
		if i := strings.LastIndex(tok, pair); i >= 0 {
			user, code = strings.TrimSpace(tok[:i]), tok[i+len(pair):]
		}
		n, err := strconv.Atoi(strings.TrimSpace(code))
		if err != nil {
			continue
		}
		out = append(out, Reaction{UserID: user, Code: n})
	}
	return out
}

// FormatReactions renders a reactions cell for display. When usernames maps
// a reaction's user id, the label is prefixed with "username: ".
func FormatReactions(s string, usernames map[string]string) string {
	reactions := ParseReactions(s)
	parts := make([]string, 0, len(reactions))
	for _, r := range reactions {
		label := ReactionLabel(r.Code)
		if name, ok := usernames[r.UserID]; ok && name != "" {
			label = name + ": " + label
		}
		parts = append(parts, label)
	}
	return strings.Join(parts, ", ")
}

// UsernameMap pairs group_member_user_ids with group_member_usernames by
// position across the dataset. Rows whose lists differ in length are skipped.
func UsernameMap(ds *dataset.Dataset) map[string]string {
	out := make(map[string]string)
	for i := range ds.Messages {
		m := &ds.Messages[i]
		if len(m.GroupMemberUserIDs) == 0 || len(m.GroupMemberUserIDs) != len(m.GroupMemberUsernames) {
			continue
		}
		for j, id := range m.GroupMemberUserIDs {
			if _, ok := out[id]; !ok {
				out[id] = m.GroupMemberUsernames[j]
			}
		}
	}
	return out
}
