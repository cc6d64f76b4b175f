// Package dataset holds the messages and conversations produced by one import.
// Messages are immutable once appended except for their annotations (tags and
// note), which never take part in message identity.
package dataset

import (
	"errors"
	"slices"
	"sort"
	"strings"
	"time"
)

// ErrOutOfRange is returned when a message index does not exist.
var ErrOutOfRange = errors.New("message index out of range")

// Message is one accepted conversations.csv row.
type Message struct {
	ConversationID    string    `json:"conversation_id"`
	ConversationTitle string    `json:"conversation_title,omitempty"`
	MessageID         string    `json:"message_id,omitempty"`
	ReplyToMessageID  string    `json:"reply_to_message_id,omitempty"`
	ContentType       string    `json:"content_type"`
	MessageType       string    `json:"message_type"`
	Timestamp         time.Time `json:"timestamp"` // zero when absent or unparseable
	Sender            string    `json:"sender"`
	Receiver          string    `json:"receiver,omitempty"`
	Text              string    `json:"text"`
	MediaID           string    `json:"media_id,omitempty"`
	Reactions         string    `json:"reactions,omitempty"` // raw encoded reactions, see snapchat.ParseReactions

	SavedBy          []string `json:"saved_by,omitempty"`
	ScreenshottedBy  []string `json:"screenshotted_by,omitempty"`
	ReplayedBy       []string `json:"replayed_by,omitempty"`
	ScreenRecordedBy []string `json:"screen_recorded_by,omitempty"`
	ReadBy           []string `json:"read_by,omitempty"`

	GroupMemberUsernames []string `json:"group_member_usernames,omitempty"`
	GroupMemberUserIDs   []string `json:"group_member_user_ids,omitempty"`

	// Raw values of columns that are displayed but never interpreted.
	IsOneOnOne string `json:"is_one_on_one,omitempty"`
	UploadIP   string `json:"upload_ip,omitempty"`
	SourcePort string `json:"source_port,omitempty"`

	IsFlaggedMedia bool   `json:"is_flagged_media"`
	Source         string `json:"source"`      // folder + CSV file name
	SourceLine     int    `json:"source_line"` // 1-based line in the source file

	// Annotations.
	Tags []string `json:"tags,omitempty"` // sorted, unique
	Note string   `json:"note,omitempty"`
}

// HasMedia reports whether the message references a media file.
func (m *Message) HasMedia() bool { return m.MediaID != "" }

// IsSaved reports whether anyone saved the message.
func (m *Message) IsSaved() bool { return len(m.SavedBy) > 0 }

// HasTag reports whether tag is set on the message.
func (m *Message) HasTag(tag string) bool {
	_, ok := slices.BinarySearch(m.Tags, tag)
	return ok
}

// Conversation lists the messages of one conversation in encounter order.
type Conversation struct {
	ID      string
	Title   string
	Indices []int
}

// Dataset is the in-memory message store for one import. It is not safe for
// concurrent use; the owning session serializes access.
type Dataset struct {
	Messages []Message

	convs map[string]*Conversation
	order []string // conversation ids in encounter order
}

// New returns an empty dataset.
func New() *Dataset {
	return &Dataset{convs: make(map[string]*Conversation)}
}

// Append adds m, assigns it the next dataset-wide index and records it in its
// conversation. The first non-empty title seen names the conversation.
func (d *Dataset) Append(m Message) int {
	idx := len(d.Messages)
	d.Messages = append(d.Messages, m)

	c, ok := d.convs[m.ConversationID]
	if !ok {
		c = &Conversation{ID: m.ConversationID}
		d.convs[m.ConversationID] = c
		d.order = append(d.order, m.ConversationID)
	}
	if c.Title == "" {
		c.Title = m.ConversationTitle
	}
	c.Indices = append(c.Indices, idx)
	return idx
}

// Len returns the number of messages.
func (d *Dataset) Len() int { return len(d.Messages) }

// Message returns the message at index i.
func (d *Dataset) Message(i int) (*Message, error) {
	if i < 0 || i >= len(d.Messages) {
		return nil, ErrOutOfRange
	}
	return &d.Messages[i], nil
}

// Conversation returns the conversation with the given id.
func (d *Dataset) Conversation(id string) (*Conversation, bool) {
	c, ok := d.convs[id]
	return c, ok
}

// Conversations returns every conversation in encounter order.
func (d *Dataset) Conversations() []*Conversation {
	out := make([]*Conversation, len(d.order))
	for i, id := range d.order {
		out[i] = d.convs[id]
	}
	return out
}

// DisplayOrder returns the conversation's message indices sorted oldest
// first, ties kept in encounter order. Unknown ids yield nil.
func (d *Dataset) DisplayOrder(convID string) []int {
	c, ok := d.convs[convID]
	if !ok {
		return nil
	}
	out := slices.Clone(c.Indices)
	sort.SliceStable(out, func(a, b int) bool {
		return d.Messages[out[a]].Timestamp.Before(d.Messages[out[b]].Timestamp)
	})
	return out
}

// AddTag sets tag on message i. Tags are trimmed; empty tags are ignored.
func (d *Dataset) AddTag(i int, tag string) error {
	m, err := d.Message(i)
	if err != nil {
		return err
	}
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil
	}
	pos, ok := slices.BinarySearch(m.Tags, tag)
	if !ok {
		m.Tags = slices.Insert(m.Tags, pos, tag)
	}
	return nil
}

// RemoveTag clears tag on message i.
func (d *Dataset) RemoveTag(i int, tag string) error {
	m, err := d.Message(i)
	if err != nil {
		return err
	}
	if pos, ok := slices.BinarySearch(m.Tags, strings.TrimSpace(tag)); ok {
		m.Tags = slices.Delete(m.Tags, pos, pos+1)
	}
	return nil
}

// SetNote replaces the note on message i.
func (d *Dataset) SetNote(i int, note string) error {
	m, err := d.Message(i)
	if err != nil {
		return err
	}
	m.Note = note
	return nil
}

// TagCounts returns how many messages carry each tag.
func (d *Dataset) TagCounts() map[string]int {
	counts := make(map[string]int)
	for i := range d.Messages {
		for _, tag := range d.Messages[i].Tags {
			counts[tag]++
		}
	}
	return counts
}
