package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wesm/snapvault/internal/dataset"
	"github.com/wesm/snapvault/internal/fileutil"
	"github.com/wesm/snapvault/internal/media"
	"github.com/wesm/snapvault/internal/query"
	"github.com/wesm/snapvault/internal/session"
	"github.com/wesm/snapvault/internal/snapchat"
	"github.com/wesm/snapvault/internal/thumbnail"
)

const dateLayout = "2006-01-02"

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// StatsResponse represents the statistics of the imported archive.
type StatsResponse struct {
	SessionID string `json:"session_id"`
	Archive   string `json:"archive"`
	query.Stats
	Duplicates  int64          `json:"duplicates"`
	Reported    int64          `json:"reported"`
	RowsDropped int64          `json:"rows_dropped"`
	Errors      int            `json:"errors"`
	Tags        map[string]int `json:"tags"`
}

// ConversationInfo represents a conversation in list responses.
type ConversationInfo struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Messages int    `json:"messages"`
}

// MessageSummary represents a message in list responses.
type MessageSummary struct {
	Index             int      `json:"index"`
	ConversationID    string   `json:"conversation_id"`
	ConversationTitle string   `json:"conversation_title,omitempty"`
	Timestamp         string   `json:"timestamp,omitempty"`
	Sender            string   `json:"sender"`
	Receiver          string   `json:"receiver,omitempty"`
	MessageType       string   `json:"message_type"`
	ContentType       string   `json:"content_type"`
	Text              string   `json:"text"`
	MediaID           string   `json:"media_id,omitempty"`
	Flagged           bool     `json:"flagged"`
	Saved             bool     `json:"saved"`
	Tags              []string `json:"tags"`
}

// MessageDetail represents a full message response.
type MessageDetail struct {
	MessageSummary
	MessageID            string   `json:"message_id,omitempty"`
	ReplyToMessageID     string   `json:"reply_to_message_id,omitempty"`
	SavedBy              []string `json:"saved_by"`
	ScreenshottedBy      []string `json:"screenshotted_by"`
	ReplayedBy           []string `json:"replayed_by"`
	ScreenRecordedBy     []string `json:"screen_recorded_by"`
	ReadBy               []string `json:"read_by"`
	GroupMemberUsernames []string `json:"group_member_usernames"`
	Reactions            string   `json:"reactions,omitempty"`
	IsOneOnOne           string   `json:"is_one_on_one,omitempty"`
	UploadIP             string   `json:"upload_ip,omitempty"`
	SourcePort           string   `json:"source_port,omitempty"`
	Source               string   `json:"source"`
	SourceLine           int      `json:"source_line"`
	Note                 string   `json:"note,omitempty"`
}

// MediaFile describes one resolved media file.
type MediaFile struct {
	ArchivePath string `json:"archive_path"`
	Name        string `json:"name"`
	Size        int64  `json:"size_bytes"`
	SHA256      string `json:"sha256,omitempty"`
	MD5         string `json:"md5,omitempty"`
	Error       string `json:"error,omitempty"`
}

// MediaResponse lists the files a media id resolved to.
type MediaResponse struct {
	MediaID string      `json:"media_id"`
	Flagged bool        `json:"flagged"`
	Files   []MediaFile `json:"files"`
}

// MessageList represents a page of filtered messages.
type MessageList struct {
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
	Messages []MessageSummary `json:"messages"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: message})
}

// badRequest marks errors caused by the request rather than the server.
type badRequest struct {
	code string
	msg  string
}

func (e *badRequest) Error() string { return e.msg }

// do runs fn against the session state and translates its error into a
// response. fn writes the success response itself.
func (s *Server) do(w http.ResponseWriter, fn func(*session.State) error) {
	err := s.sess.Do(fn)
	if err == nil {
		return
	}
	var br *badRequest
	switch {
	case errors.Is(err, session.ErrNoState):
		writeError(w, http.StatusServiceUnavailable, "no_archive", "No archive has been imported")
	case errors.Is(err, dataset.ErrOutOfRange):
		writeError(w, http.StatusNotFound, "not_found", "Message not found")
	case errors.As(err, &br):
		writeError(w, http.StatusBadRequest, br.code, br.msg)
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Request failed")
	}
}

func messageIndex(r *http.Request) (int, error) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		return 0, &badRequest{"invalid_index", "Message index must be a number"}
	}
	return i, nil
}

// handleStats returns archive statistics.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.do(w, func(st *session.State) error {
		writeJSON(w, http.StatusOK, StatsResponse{
			SessionID:   st.ID,
			Archive:     st.Root,
			Stats:       st.Query.Stats(),
			Duplicates:  st.Summary.Duplicates,
			Reported:    st.Summary.Reported,
			RowsDropped: st.Summary.RowsDropped,
			Errors:      len(st.Errors()),
			Tags:        st.Dataset.TagCounts(),
		})
		return nil
	})
}

// handleErrors returns the accumulated non-fatal import errors.
func (s *Server) handleErrors(w http.ResponseWriter, r *http.Request) {
	s.do(w, func(st *session.State) error {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"errors": st.Errors(),
		})
		return nil
	})
}

// handleListConversations returns conversations in encounter order.
func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	s.do(w, func(st *session.State) error {
		convs := st.Dataset.Conversations()
		out := make([]ConversationInfo, len(convs))
		for i, c := range convs {
			out[i] = ConversationInfo{ID: c.ID, Title: c.Title, Messages: len(c.Indices)}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"conversations": out,
		})
		return nil
	})
}

// parseFilter maps query parameters onto a scope and filter state.
func (s *Server) parseFilter(q url.Values) (query.Scope, query.FilterState, error) {
	scope := query.AllConversations()
	if c := q.Get("conversation"); c != "" {
		scope = query.InConversation(c)
	}

	var fs query.FilterState
	var first, last time.Time
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"from", &first}, {"to", &last}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return scope, fs, &badRequest{"invalid_date", fmt.Sprintf("%s must be YYYY-MM-DD", p.name)}
		}
		*p.dst = t
	}
	fs.From, fs.To = query.DayRange(first, last)

	fs.Sender = q.Get("sender")
	fs.MessageType = q.Get("type")
	fs.ContentType = q.Get("content")
	saved, ok := query.ParseSavedFilter(q.Get("saved"))
	if !ok {
		return scope, fs, &badRequest{"invalid_saved", "saved must be any, saved or unsaved"}
	}
	fs.Saved = saved
	fs.Query = q.Get("q")
	fs.KeywordList = q.Get("keywords")
	fs.WholeWord = s.cfg.Query.WholeWord
	if v := q.Get("whole_word"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return scope, fs, &badRequest{"invalid_whole_word", "whole_word must be true or false"}
		}
		fs.WholeWord = b
	}
	return scope, fs, nil
}

func pagination(q url.Values) (page, pageSize int) {
	page, _ = strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(q.Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

// handleListMessages returns a page of filtered messages, oldest first.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	scope, fs, err := s.parseFilter(r.URL.Query())
	if err != nil {
		var br *badRequest
		errors.As(err, &br)
		writeError(w, http.StatusBadRequest, br.code, br.msg)
		return
	}
	page, pageSize := pagination(r.URL.Query())

	s.do(w, func(st *session.State) error {
		indices := st.Query.Filter(scope, fs)
		start := min((page-1)*pageSize, len(indices))
		end := min(start+pageSize, len(indices))

		summaries := make([]MessageSummary, 0, end-start)
		for _, i := range indices[start:end] {
			m, err := st.Dataset.Message(i)
			if err != nil {
				return err
			}
			summaries = append(summaries, summarize(st.Dataset, i, m))
		}
		writeJSON(w, http.StatusOK, MessageList{
			Total:    len(indices),
			Page:     page,
			PageSize: pageSize,
			Messages: summaries,
		})
		return nil
	})
}

func summarize(ds *dataset.Dataset, i int, m *dataset.Message) MessageSummary {
	title := m.ConversationTitle
	if c, ok := ds.Conversation(m.ConversationID); ok && c.Title != "" {
		title = c.Title
	}
	out := MessageSummary{
		Index:             i,
		ConversationID:    m.ConversationID,
		ConversationTitle: title,
		Sender:            m.Sender,
		Receiver:          m.Receiver,
		MessageType:       m.MessageType,
		ContentType:       m.ContentType,
		Text:              m.Text,
		MediaID:           m.MediaID,
		Flagged:           m.IsFlaggedMedia,
		Saved:             m.IsSaved(),
		Tags:              m.Tags,
	}
	if !m.Timestamp.IsZero() {
		out.Timestamp = m.Timestamp.Format(time.RFC3339)
	}
	if out.Tags == nil {
		out.Tags = []string{}
	}
	return out
}

// handleGetMessage returns a single message by dataset index.
func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	i, err := messageIndex(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_index", err.Error())
		return
	}
	s.do(w, func(st *session.State) error {
		m, err := st.Dataset.Message(i)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, MessageDetail{
			MessageSummary:       summarize(st.Dataset, i, m),
			MessageID:            m.MessageID,
			ReplyToMessageID:     m.ReplyToMessageID,
			SavedBy:              nonNil(m.SavedBy),
			ScreenshottedBy:      nonNil(m.ScreenshottedBy),
			ReplayedBy:           nonNil(m.ReplayedBy),
			ScreenRecordedBy:     nonNil(m.ScreenRecordedBy),
			ReadBy:               nonNil(m.ReadBy),
			GroupMemberUsernames: nonNil(m.GroupMemberUsernames),
			Reactions:            snapchat.FormatReactions(m.Reactions, st.Usernames),
			IsOneOnOne:           m.IsOneOnOne,
			UploadIP:             m.UploadIP,
			SourcePort:           m.SourcePort,
			Source:               m.Source,
			SourceLine:           m.SourceLine,
			Note:                 m.Note,
		})
		return nil
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// handleAddTag tags a message. Cached filter results are dropped.
func (s *Server) handleAddTag(w http.ResponseWriter, r *http.Request) {
	s.annotate(w, r, (*dataset.Dataset).AddTag)
}

// handleRemoveTag removes a tag from a message.
func (s *Server) handleRemoveTag(w http.ResponseWriter, r *http.Request) {
	s.annotate(w, r, (*dataset.Dataset).RemoveTag)
}

func (s *Server) annotate(w http.ResponseWriter, r *http.Request, op func(*dataset.Dataset, int, string) error) {
	i, err := messageIndex(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_index", err.Error())
		return
	}
	tag := strings.TrimSpace(chi.URLParam(r, "tag"))
	if tag == "" {
		writeError(w, http.StatusBadRequest, "invalid_tag", "Tag must not be empty")
		return
	}
	s.do(w, func(st *session.State) error {
		if err := op(st.Dataset, i, tag); err != nil {
			return err
		}
		st.Query.Invalidate()
		m, _ := st.Dataset.Message(i)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"index": i,
			"tags":  nonNil(m.Tags),
		})
		return nil
	})
}

// handleSetNote replaces a message's note.
func (s *Server) handleSetNote(w http.ResponseWriter, r *http.Request) {
	i, err := messageIndex(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_index", err.Error())
		return
	}
	var body struct {
		Note string `json:"note"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "Body must be {\"note\": \"...\"}")
		return
	}
	s.do(w, func(st *session.State) error {
		if err := st.Dataset.SetNote(i, body.Note); err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"index": i,
			"note":  body.Note,
		})
		return nil
	})
}

// handleMedia resolves a media id. flagged=true uses the raw substring
// search applied to reported rows.
func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "mediaID")
	flagged, _ := strconv.ParseBool(r.URL.Query().Get("flagged"))
	s.do(w, func(st *session.State) error {
		writeJSON(w, http.StatusOK, MediaResponse{
			MediaID: id,
			Flagged: flagged,
			Files:   s.mediaFiles(st.Media.Media(id, flagged)),
		})
		return nil
	})
}

// handleMessageMedia resolves the media of one message.
func (s *Server) handleMessageMedia(w http.ResponseWriter, r *http.Request) {
	i, err := messageIndex(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_index", err.Error())
		return
	}
	s.do(w, func(st *session.State) error {
		m, err := st.Dataset.Message(i)
		if err != nil {
			return err
		}
		res, err := st.MessageMedia(i)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, MediaResponse{
			MediaID: m.MediaID,
			Flagged: m.IsFlaggedMedia,
			Files:   s.mediaFiles(res),
		})
		return nil
	})
}

func (s *Server) mediaFiles(res []media.Resolved) []MediaFile {
	files := make([]MediaFile, 0, len(res))
	for _, r := range res {
		f := MediaFile{ArchivePath: r.Location.String(), Name: r.Location.Base()}
		h, err := fileutil.HashFile(r.Path)
		if err != nil {
			s.logger.Warn("hash media", "path", r.Path, "error", err)
			f.Error = err.Error()
		} else {
			f.Size, f.SHA256, f.MD5 = h.Size, h.SHA256, h.MD5
		}
		files = append(files, f)
	}
	return files
}

// handleThumbnail serves a JPEG thumbnail of the message's first media file.
func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	i, err := messageIndex(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_index", err.Error())
		return
	}
	s.do(w, func(st *session.State) error {
		res, err := st.MessageMedia(i)
		if err != nil {
			return err
		}
		if len(res) == 0 {
			writeError(w, http.StatusNotFound, "no_media", "Message has no resolvable media")
			return nil
		}
		path, err := st.Thumbs.Thumbnail(r.Context(), res[0].Path)
		if errors.Is(err, thumbnail.ErrUnsupported) || errors.Is(err, thumbnail.ErrTimeout) {
			writeError(w, http.StatusNotFound, "no_thumbnail", err.Error())
			return nil
		}
		if err != nil {
			return err
		}
		w.Header().Set("Content-Type", "image/jpeg")
		http.ServeFile(w, r, path)
		return nil
	})
}
