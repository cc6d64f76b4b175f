package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/wesm/snapvault/internal/dataset"
	"github.com/wesm/snapvault/internal/session"
	"github.com/wesm/snapvault/internal/snapchat"
	"github.com/wesm/snapvault/internal/textutil"
)

var (
	messagesFilter filterFlags
	messagesLimit  int
	messagesJSON   bool
)

var messagesCmd = &cobra.Command{
	Use:   "messages <mydata.zip>",
	Short: "List messages matching filters, oldest first",
	Long: `List messages matching the given filters, oldest first.

Filters combine with AND. --query accepts free text and operators:
  snapvault messages mydata.zip -q 'from:alice "see you" after:2024-01-01'
  snapvault messages mydata.zip -q 'is:flagged'
  snapvault messages mydata.zip --conversation <id> --saved saved`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, fs, err := messagesFilter.build(cmd)
		if err != nil {
			return err
		}
		sess, st, err := openSession(cmd, args[0])
		if err != nil {
			return err
		}
		defer sess.Close()

		indices := st.Query.Filter(scope, fs)
		if messagesLimit > 0 && len(indices) > messagesLimit {
			indices = indices[:messagesLimit]
		}
		if messagesJSON {
			return writeMessagesJSON(cmd.OutOrStdout(), st, indices)
		}
		printMessages(cmd.OutOrStdout(), st.Dataset, indices, fs.Query)
		fmt.Fprintf(cmd.ErrOrStderr(), "%d message(s)\n", len(indices))
		return nil
	},
}

// messageJSON is one line of messages --json output.
type messageJSON struct {
	Index int `json:"index"`
	*dataset.Message
	ReactionsText string `json:"reactions_text,omitempty"`
}

func writeMessagesJSON(w io.Writer, st *session.State, indices []int) error {
	enc := json.NewEncoder(w)
	for _, i := range indices {
		m, err := st.Dataset.Message(i)
		if err != nil {
			return err
		}
		if err := enc.Encode(messageJSON{
			Index:         i,
			Message:       m,
			ReactionsText: snapchat.FormatReactions(m.Reactions, st.Usernames),
		}); err != nil {
			return err
		}
	}
	return nil
}

func printMessages(w io.Writer, ds *dataset.Dataset, indices []int, searchQuery string) {
	fmt.Fprintf(w, "%s  %s  %s  %s  %s\n",
		headingStyle.Render(cell("#", 6)),
		headingStyle.Render(cell("Time", 19)),
		headingStyle.Render(cell("Conversation", 20)),
		headingStyle.Render(cell("Sender", 16)),
		headingStyle.Render("Text"))
	for _, i := range indices {
		m := &ds.Messages[i]
		title := m.ConversationID
		if c, ok := ds.Conversation(m.ConversationID); ok && c.Title != "" {
			title = c.Title
		}
		text := textutil.TruncateWidth(m.Text, 60)
		switch {
		case m.IsFlaggedMedia:
			text = flaggedStyle.Render("[reported media "+m.MediaID+"]") + " " + text
		case m.HasMedia() && text == "":
			text = labelStyle.Render("[" + m.ContentType + "]")
		}
		fmt.Fprintf(w, "%s  %s  %s  %s  %s\n",
			cell(fmt.Sprint(i), 6),
			cell(formatTimestamp(m.Timestamp), 19),
			cell(title, 20),
			cell(m.Sender, 16),
			highlightTerms(text, searchQuery))
	}
}

func init() {
	messagesFilter.register(messagesCmd)
	messagesCmd.Flags().IntVar(&messagesLimit, "limit", 0, "print at most this many messages")
	messagesCmd.Flags().BoolVar(&messagesJSON, "json", false, "output JSON lines with every field")
	rootCmd.AddCommand(messagesCmd)
}
