package query

import (
	"github.com/mitchellh/hashstructure/v2"
)

// maxCachedResults bounds the cache; when full it is emptied.
const maxCachedResults = 64

// cacheKey is the hashed form of a filter request. Times are stored as
// integers because hashstructure skips unexported struct fields.
type cacheKey struct {
	All            bool
	ConversationID string
	FromUnix       int64
	FromSet        bool
	ToUnix         int64
	ToSet          bool
	Sender         string
	MessageType    string
	ContentType    string
	Saved          int
	Query          string
	WholeWord      bool
	KeywordList    string
	BlurMedia      bool
}

func cacheKeyOf(scope Scope, fs FilterState, d DisplayState) (uint64, error) {
	k := cacheKey{
		All:            scope.All,
		ConversationID: scope.ConversationID,
		FromSet:        !fs.From.IsZero(),
		ToSet:          !fs.To.IsZero(),
		Sender:         fs.Sender,
		MessageType:    fs.MessageType,
		ContentType:    fs.ContentType,
		Saved:          int(fs.Saved),
		Query:          fs.Query,
		WholeWord:      fs.WholeWord,
		KeywordList:    fs.KeywordList,
		BlurMedia:      d.BlurMedia,
	}
	if k.FromSet {
		k.FromUnix = fs.From.UnixNano()
	}
	if k.ToSet {
		k.ToUnix = fs.To.UnixNano()
	}
	return hashstructure.Hash(k, hashstructure.FormatV2, nil)
}

type resultCache struct {
	results map[uint64][]int
}

func newResultCache() *resultCache {
	return &resultCache{results: make(map[uint64][]int)}
}

func (c *resultCache) get(key uint64) ([]int, bool) {
	res, ok := c.results[key]
	return res, ok
}

func (c *resultCache) put(key uint64, res []int) {
	if len(c.results) >= maxCachedResults {
		c.clear()
	}
	c.results[key] = res
}

func (c *resultCache) clear() { clear(c.results) }

func (c *resultCache) len() int { return len(c.results) }
