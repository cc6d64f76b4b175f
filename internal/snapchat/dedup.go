package snapchat

import (
	"crypto/sha256"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/wesm/snapvault/internal/dataset"
)

type signature [sha256.Size]byte

// signatureOf hashes a canonical encoding of every identity field of m.
// Id lists are sorted, timestamps rendered as RFC 3339, and each value is
// length-prefixed so adjacent fields cannot run together. Tags and notes
// are annotations and are not part of the signature. Source and source line
// are: two rows collapse only when their provenance matches too.
func signatureOf(m *dataset.Message) signature {
	var b strings.Builder
	put := func(s string) {
		b.WriteString(strconv.Itoa(len(s)))
		b.WriteByte(':')
		b.WriteString(s)
	}
	putList := func(list []string) {
		sorted := slices.Clone(list)
		slices.Sort(sorted)
		b.WriteString(strconv.Itoa(len(sorted)))
		b.WriteByte('[')
		for _, s := range sorted {
			put(s)
		}
		b.WriteByte(']')
	}

	put(m.ConversationID)
	put(m.ConversationTitle)
	put(m.MessageID)
	put(m.ReplyToMessageID)
	put(m.ContentType)
	put(m.MessageType)
	if m.Timestamp.IsZero() {
		put("")
	} else {
		put(m.Timestamp.UTC().Format(time.RFC3339Nano))
	}
	put(m.Sender)
	put(m.Receiver)
	put(m.Text)
	put(m.MediaID)
	put(m.Reactions)
	putList(m.SavedBy)
	putList(m.ScreenshottedBy)
	putList(m.ReplayedBy)
	putList(m.ScreenRecordedBy)
	putList(m.ReadBy)
	putList(m.GroupMemberUsernames)
	putList(m.GroupMemberUserIDs)
	put(m.IsOneOnOne)
	put(m.UploadIP)
	put(m.SourcePort)
	put(strconv.FormatBool(m.IsFlaggedMedia))
	put(m.Source)
	put(strconv.Itoa(m.SourceLine))

	return sha256.Sum256([]byte(b.String()))
}

// seenSet tracks signatures across every file of one import.
type seenSet map[signature]struct{}

// add records sig and reports whether it was new.
func (s seenSet) add(sig signature) bool {
	if _, ok := s[sig]; ok {
		return false
	}
	s[sig] = struct{}{}
	return true
}
