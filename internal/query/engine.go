package query

import (
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/bits-and-blooms/bitset"

	"github.com/wesm/snapvault/internal/dataset"
	"github.com/wesm/snapvault/internal/search"
)

// Engine answers filter requests over one dataset. Columns and the
// chronological permutation are computed once at construction; the dataset's
// identity fields never change after import.
//
// Tags are read live. Callers that change annotations must call Invalidate
// so cached results that used tag: terms are dropped.
//
// An Engine is not safe for concurrent use.
type Engine struct {
	ds     *dataset.Dataset
	lists  map[string]KeywordList
	parser *search.Parser
	log    *slog.Logger

	n       uint
	all     *bitset.BitSet
	text    []string // lowercased searchable fields, one per message
	chrono  []int    // message indices oldest first, ties in ingest order
	hasTime *bitset.BitSet

	senders      map[string]*bitset.BitSet
	messageTypes map[string]*bitset.BitSet
	contentTypes map[string]*bitset.BitSet
	convs        map[string]*bitset.BitSet
	saved        *bitset.BitSet
	flagged      *bitset.BitSet
	media        *bitset.BitSet

	cache   *resultCache
	display DisplayState
}

// NewEngine builds the column vectors for ds.
func NewEngine(ds *dataset.Dataset, lists []KeywordList, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	n := uint(ds.Len())
	e := &Engine{
		ds:           ds,
		lists:        make(map[string]KeywordList, len(lists)),
		parser:       search.NewParser(),
		log:          log,
		n:            n,
		all:          bitset.New(n).FlipRange(0, n),
		text:         make([]string, n),
		chrono:       make([]int, n),
		hasTime:      bitset.New(n),
		senders:      make(map[string]*bitset.BitSet),
		messageTypes: make(map[string]*bitset.BitSet),
		contentTypes: make(map[string]*bitset.BitSet),
		convs:        make(map[string]*bitset.BitSet),
		saved:        bitset.New(n),
		flagged:      bitset.New(n),
		media:        bitset.New(n),
		cache:        newResultCache(),
	}
	for _, l := range lists {
		e.lists[l.Name] = l
	}

	for i := range ds.Messages {
		m := &ds.Messages[i]
		u := uint(i)
		e.text[i] = searchable(m)
		e.chrono[i] = i
		if !m.Timestamp.IsZero() {
			e.hasTime.Set(u)
		}
		e.mark(e.senders, m.Sender, u)
		e.mark(e.messageTypes, m.MessageType, u)
		e.mark(e.contentTypes, m.ContentType, u)
		e.mark(e.convs, m.ConversationID, u)
		if m.IsSaved() {
			e.saved.Set(u)
		}
		if m.IsFlaggedMedia {
			e.flagged.Set(u)
		}
		if m.HasMedia() {
			e.media.Set(u)
		}
	}
	sort.SliceStable(e.chrono, func(a, b int) bool {
		return ds.Messages[e.chrono[a]].Timestamp.Before(ds.Messages[e.chrono[b]].Timestamp)
	})
	return e
}

func (e *Engine) mark(col map[string]*bitset.BitSet, key string, i uint) {
	b, ok := col[key]
	if !ok {
		b = bitset.New(e.n)
		col[key] = b
	}
	b.Set(i)
}

// searchable is the lowercased concatenation of the fields free text is
// matched against.
func searchable(m *dataset.Message) string {
	return strings.ToLower(strings.Join([]string{
		m.Text,
		m.Sender,
		m.Receiver,
		m.ConversationTitle,
		m.ConversationID,
		m.ContentType,
		m.MessageType,
		m.MediaID,
	}, "\n"))
}

// Filter returns the indices of messages in scope that satisfy every
// predicate of fs, oldest first with ties in ingest order. An empty result
// is not an error.
func (e *Engine) Filter(scope Scope, fs FilterState) []int {
	if e.n == 0 {
		return nil
	}
	key, err := cacheKeyOf(scope, fs, e.display)
	if err != nil {
		e.log.Warn("filter cache key failed", "error", err)
		return e.collect(e.evaluate(scope, fs))
	}
	if res, ok := e.cache.get(key); ok {
		return slices.Clone(res)
	}
	res := e.collect(e.evaluate(scope, fs))
	e.cache.put(key, res)
	return slices.Clone(res)
}

// Count returns len(Filter(scope, fs)) without ordering the result.
func (e *Engine) Count(scope Scope, fs FilterState) int {
	if e.n == 0 {
		return 0
	}
	return int(e.evaluate(scope, fs).Count())
}

// SetDisplay records the display state. A change drops every cached result.
func (e *Engine) SetDisplay(d DisplayState) {
	if d != e.display {
		e.display = d
		e.cache.clear()
	}
}

// Display returns the current display state.
func (e *Engine) Display() DisplayState { return e.display }

// Invalidate drops every cached result.
func (e *Engine) Invalidate() { e.cache.clear() }

// CacheLen returns the number of cached results.
func (e *Engine) CacheLen() int { return e.cache.len() }

// KeywordLists returns the configured keyword lists sorted by name.
func (e *Engine) KeywordLists() []KeywordList {
	out := make([]KeywordList, 0, len(e.lists))
	for _, l := range e.lists {
		out = append(out, l)
	}
	slices.SortFunc(out, func(a, b KeywordList) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Stats summarises the dataset.
func (e *Engine) Stats() Stats {
	s := Stats{
		Messages:      int(e.n),
		Conversations: len(e.convs),
		Flagged:       int(e.flagged.Count()),
		WithMedia:     int(e.media.Count()),
		Saved:         int(e.saved.Count()),
		Senders:       len(e.senders),
	}
	if _, ok := e.senders[""]; ok {
		s.Senders--
	}
	for i := range e.ds.Messages {
		if len(e.ds.Messages[i].Tags) > 0 {
			s.Tagged++
		}
	}
	return s
}

func (e *Engine) evaluate(scope Scope, fs FilterState) *bitset.BitSet {
	res := e.all.Clone()
	and := func(b *bitset.BitSet) { res.InPlaceIntersection(b) }

	if !scope.All {
		and(e.column(e.convs, scope.ConversationID))
	}
	if !fs.From.IsZero() || !fs.To.IsZero() {
		and(e.timeRange(fs.From, fs.To))
	}
	if fs.Sender != "" {
		and(e.column(e.senders, fs.Sender))
	}
	if fs.MessageType != "" {
		and(e.column(e.messageTypes, fs.MessageType))
	}
	if fs.ContentType != "" {
		and(e.column(e.contentTypes, fs.ContentType))
	}
	switch fs.Saved {
	case SavedOnly:
		and(e.saved)
	case UnsavedOnly:
		and(e.saved.Complement())
	}
	if q := strings.TrimSpace(fs.Query); q != "" {
		and(e.matchQuery(e.parser.Parse(q), fs.WholeWord))
	}
	if fs.KeywordList != "" {
		and(e.matchKeywords(fs.KeywordList))
	}
	return res
}

func (e *Engine) column(col map[string]*bitset.BitSet, key string) *bitset.BitSet {
	if b, ok := col[key]; ok {
		return b
	}
	return bitset.New(e.n)
}

// timeRange selects messages with a timestamp in [from, to) by binary search
// over the chronological permutation. Messages without a timestamp never
// match a date bound.
func (e *Engine) timeRange(from, to time.Time) *bitset.BitSet {
	ts := func(i int) time.Time { return e.ds.Messages[e.chrono[i]].Timestamp }
	n := len(e.chrono)
	lo, hi := 0, n
	if !from.IsZero() {
		lo = sort.Search(n, func(i int) bool { return !ts(i).Before(from) })
	}
	if !to.IsZero() {
		hi = sort.Search(n, func(i int) bool { return !ts(i).Before(to) })
	}
	b := bitset.New(e.n)
	for i := lo; i < hi; i++ {
		b.Set(uint(e.chrono[i]))
	}
	b.InPlaceIntersection(e.hasTime)
	return b
}

func (e *Engine) matchQuery(q *search.Query, wholeWord bool) *bitset.BitSet {
	b := e.all.Clone()
	and := func(v *bitset.BitSet) { b.InPlaceIntersection(v) }

	if q.AfterDate != nil || q.BeforeDate != nil {
		var from, to time.Time
		if q.AfterDate != nil {
			from = *q.AfterDate
		}
		if q.BeforeDate != nil {
			to = *q.BeforeDate
		}
		and(e.timeRange(from, to))
	}
	if q.Saved != nil {
		if *q.Saved {
			and(e.saved)
		} else {
			and(e.saved.Complement())
		}
	}
	if q.Flagged != nil && *q.Flagged {
		and(e.flagged)
	}
	if q.HasMedia != nil && *q.HasMedia {
		and(e.media)
	}
	if len(q.MessageTypes) > 0 {
		and(e.anyOf(e.messageTypes, q.MessageTypes, strings.ToUpper))
	}
	if len(q.ContentTypes) > 0 {
		and(e.anyOf(e.contentTypes, q.ContentTypes, strings.ToUpper))
	}

	terms := make([]string, len(q.TextTerms))
	for i, t := range q.TextTerms {
		terms[i] = strings.ToLower(t)
	}
	rows := bitset.New(e.n)
	for i, ok := b.NextSet(0); ok; i, ok = b.NextSet(i + 1) {
		m := &e.ds.Messages[i]
		if rowMatches(m, e.convTitle(m.ConversationID), e.text[i], q, terms, wholeWord) {
			rows.Set(i)
		}
	}
	return rows
}

// anyOf ORs the column bitsets whose normalized key is in values.
func (e *Engine) anyOf(col map[string]*bitset.BitSet, values []string, norm func(string) string) *bitset.BitSet {
	out := bitset.New(e.n)
	for key, b := range col {
		if slices.Contains(values, norm(key)) {
			out.InPlaceUnion(b)
		}
	}
	return out
}

func (e *Engine) convTitle(id string) string {
	if c, ok := e.ds.Conversation(id); ok {
		return c.Title
	}
	return ""
}

func rowMatches(m *dataset.Message, title, text string, q *search.Query, terms []string, wholeWord bool) bool {
	for _, t := range terms {
		if !matchText(text, t, wholeWord) {
			return false
		}
	}
	if len(q.FromUsers) > 0 && !slices.Contains(q.FromUsers, strings.ToLower(m.Sender)) {
		return false
	}
	if len(q.ToUsers) > 0 && !slices.Contains(q.ToUsers, strings.ToLower(m.Receiver)) {
		return false
	}
	if len(q.Conversations) > 0 && !slices.ContainsFunc(q.Conversations, func(c string) bool {
		return strings.EqualFold(c, m.ConversationID) || strings.EqualFold(c, title)
	}) {
		return false
	}
	for _, tag := range q.Tags {
		if !m.HasTag(tag) {
			return false
		}
	}
	return true
}

func (e *Engine) matchKeywords(name string) *bitset.BitSet {
	out := bitset.New(e.n)
	list, ok := e.lists[name]
	if !ok {
		e.log.Warn("unknown keyword list", "name", name)
		return out
	}
	keywords := make([]string, 0, len(list.Keywords))
	for _, k := range list.Keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keywords = append(keywords, k)
		}
	}
	for i, text := range e.text {
		for _, k := range keywords {
			if matchText(text, k, list.WholeWord) {
				out.Set(uint(i))
				break
			}
		}
	}
	return out
}

// collect reads the set bits back in chronological order.
func (e *Engine) collect(b *bitset.BitSet) []int {
	out := make([]int, 0, b.Count())
	for _, i := range e.chrono {
		if b.Test(uint(i)) {
			out = append(out, i)
		}
	}
	return out
}
