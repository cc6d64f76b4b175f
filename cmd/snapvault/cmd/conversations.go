package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var conversationsJSON bool

var conversationsCmd = &cobra.Command{
	Use:          "conversations <mydata.zip>",
	Short:        "List conversations in the order they were first seen",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, st, err := openSession(cmd, args[0])
		if err != nil {
			return err
		}
		defer sess.Close()

		type row struct {
			ID       string `json:"id"`
			Title    string `json:"title"`
			Messages int    `json:"messages"`
		}
		convs := st.Dataset.Conversations()
		rows := make([]row, len(convs))
		for i, c := range convs {
			rows[i] = row{ID: c.ID, Title: c.Title, Messages: len(c.Indices)}
		}

		out := cmd.OutOrStdout()
		if conversationsJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		}
		fmt.Fprintf(out, "%s  %s  %s\n",
			headingStyle.Render(cell("ID", 36)), headingStyle.Render(cell("Title", 32)), headingStyle.Render("Messages"))
		for _, r := range rows {
			fmt.Fprintf(out, "%s  %s  %8d\n", cell(r.ID, 36), cell(r.Title, 32), r.Messages)
		}
		return nil
	},
}

func init() {
	conversationsCmd.Flags().BoolVar(&conversationsJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(conversationsCmd)
}
