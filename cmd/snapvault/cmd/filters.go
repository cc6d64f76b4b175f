package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesm/snapvault/internal/query"
)

// filterFlags are the message filter flags shared by messages and
// export-media.
type filterFlags struct {
	conversation string
	from, to     string
	sender       string
	msgType      string
	contentType  string
	saved        string
	query        string
	wholeWord    bool
	keywords     string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.conversation, "conversation", "", "only this conversation id")
	fl.StringVar(&f.from, "from", "", "first day to include (YYYY-MM-DD)")
	fl.StringVar(&f.to, "to", "", "last day to include (YYYY-MM-DD)")
	fl.StringVar(&f.sender, "sender", "", "exact sender username")
	fl.StringVar(&f.msgType, "type", "", "exact message type (e.g. SENT, RECEIVED)")
	fl.StringVar(&f.contentType, "content", "", "exact content type (e.g. TEXT, MEDIA)")
	fl.StringVar(&f.saved, "saved", "any", "saved filter: any, saved or unsaved")
	fl.StringVarP(&f.query, "query", "q", "", "search query (words, \"phrases\", from:, to:, tag:, is:flagged, before:, ...)")
	fl.BoolVar(&f.wholeWord, "whole-word", false, "match search words on word boundaries")
	fl.StringVar(&f.keywords, "keywords", "", "configured keyword list name")
}

func parseDay(name, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s must be YYYY-MM-DD: %w", name, err)
	}
	return t, nil
}

// build turns the flags into a scope and filter state. --whole-word falls
// back to [query] whole_word when not given.
func (f *filterFlags) build(cmd *cobra.Command) (query.Scope, query.FilterState, error) {
	scope := query.AllConversations()
	if f.conversation != "" {
		scope = query.InConversation(f.conversation)
	}

	first, err := parseDay("from", f.from)
	if err != nil {
		return scope, query.FilterState{}, err
	}
	last, err := parseDay("to", f.to)
	if err != nil {
		return scope, query.FilterState{}, err
	}
	saved, ok := query.ParseSavedFilter(f.saved)
	if !ok {
		return scope, query.FilterState{}, fmt.Errorf("--saved must be any, saved or unsaved")
	}

	fs := query.FilterState{
		Sender:      f.sender,
		MessageType: f.msgType,
		ContentType: f.contentType,
		Saved:       saved,
		Query:       f.query,
		WholeWord:   cfg.Query.WholeWord,
		KeywordList: f.keywords,
	}
	if cmd.Flags().Changed("whole-word") {
		fs.WholeWord = f.wholeWord
	}
	fs.From, fs.To = query.DayRange(first, last)
	return scope, fs, nil
}
