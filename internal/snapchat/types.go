// Package snapchat reads conversations.csv files from Snapchat data downloads
// and turns them into dataset messages. It locates the header line, maps the
// known columns, keeps normal and flagged-media rows, moves flagged rows that
// lack conversation context into the "Reported Files" conversation and drops
// exact duplicate rows across files.
package snapchat

import (
	"strings"
	"time"
)

// HeaderSignature identifies the header line of a conversations.csv. Lines
// before it are preamble.
const HeaderSignature = "content_type,message_type"

// Flagged-media rows without a conversation are collected here.
const (
	ReportedConversationID    = "Reported Files"
	ReportedConversationTitle = "Reported Files"
)

// ImportOptions configures an import.
type ImportOptions struct {
	// MaxTotalBytes caps the combined size of all conversations.csv files
	// read. Files that would exceed it are skipped with an error. Zero means
	// no cap.
	MaxTotalBytes int64

	// Limit stops the import after this many messages (0 = no limit, for testing).
	Limit int
}

// ImportSummary holds statistics from a completed import.
type ImportSummary struct {
	Duration       time.Duration
	FilesProcessed int
	FilesFailed    int
	RowsRead       int64
	MessagesAdded  int64
	RowsDropped    int64 // rows matching neither acceptance rule
	Duplicates     int64
	Reported       int64 // rows moved into the Reported Files conversation

	// Errors is the accumulated non-fatal error text, one entry per failure.
	Errors []string
}

// ErrorText joins the accumulated errors, one per line.
func (s *ImportSummary) ErrorText() string {
	return strings.Join(s.Errors, "\n")
}

// ImportProgress provides callbacks for import progress reporting.
type ImportProgress interface {
	OnStart(files int)
	OnFileStart(source string, n, total int)
	OnFileComplete(source string, added int64)
	OnComplete(summary *ImportSummary)
	OnError(err error)
}

// NullProgress is a no-op implementation of ImportProgress.
type NullProgress struct{}

func (NullProgress) OnStart(int)                  {}
func (NullProgress) OnFileStart(string, int, int) {}
func (NullProgress) OnFileComplete(string, int64) {}
func (NullProgress) OnComplete(*ImportSummary)    {}
func (NullProgress) OnError(error)                {}
