package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/wesm/snapvault/internal/fileutil"
	"github.com/wesm/snapvault/internal/query"
)

var scanJSON bool

// scanReport is the machine-readable form of scan's output.
type scanReport struct {
	Archive        string          `json:"archive"`
	Hashes         fileutil.Hashes `json:"hashes"`
	Entries        int             `json:"entries"`
	Conversations  int             `json:"conversations_files"`
	FilesProcessed int             `json:"files_processed"`
	FilesFailed    int             `json:"files_failed"`
	RowsRead       int64           `json:"rows_read"`
	RowsDropped    int64           `json:"rows_dropped"`
	Duplicates     int64           `json:"duplicates"`
	Reported       int64           `json:"reported"`
	Stats          query.Stats     `json:"stats"`
	Problems       []string        `json:"problems"`
	Duration       string          `json:"duration"`
}

var scanCmd = &cobra.Command{
	Use:   "scan <mydata.zip>",
	Short: "Import an archive and summarise it",
	Long: `Import a Snapchat data download and print what was found: archive hashes,
conversation files, message counts, duplicates removed across nested
exports, reported media rows, and any problems met while reading.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, st, err := openSession(cmd, args[0])
		if err != nil {
			return err
		}
		defer sess.Close()

		hashes, err := st.RootHashes()
		if err != nil {
			return fmt.Errorf("hash archive: %w", err)
		}
		r := scanReport{
			Archive:        st.Root,
			Hashes:         hashes,
			Entries:        len(st.Archive.Entries),
			Conversations:  len(st.Archive.Conversations),
			FilesProcessed: st.Summary.FilesProcessed,
			FilesFailed:    st.Summary.FilesFailed,
			RowsRead:       st.Summary.RowsRead,
			RowsDropped:    st.Summary.RowsDropped,
			Duplicates:     st.Summary.Duplicates,
			Reported:       st.Summary.Reported,
			Stats:          st.Query.Stats(),
			Problems:       st.Errors(),
			Duration:       st.Summary.Duration.Round(1e6).String(),
		}
		if r.Problems == nil {
			r.Problems = []string{}
		}
		if scanJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(r)
		}
		printScanReport(cmd.OutOrStdout(), r)
		return nil
	},
}

func printScanReport(w io.Writer, r scanReport) {
	fmt.Fprintln(w, headingStyle.Render("Archive"))
	fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("Path:   "), r.Archive)
	fmt.Fprintf(w, "  %s %d bytes\n", labelStyle.Render("Size:   "), r.Hashes.Size)
	fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("SHA-256:"), r.Hashes.SHA256)
	fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("MD5:    "), r.Hashes.MD5)
	fmt.Fprintf(w, "  %s %d (%d conversations.csv)\n", labelStyle.Render("Entries:"), r.Entries, r.Conversations)
	fmt.Fprintln(w)

	fmt.Fprintln(w, headingStyle.Render("Import"))
	fmt.Fprintf(w, "  Files:         %d read, %d failed\n", r.FilesProcessed, r.FilesFailed)
	fmt.Fprintf(w, "  Rows:          %d read, %d dropped\n", r.RowsRead, r.RowsDropped)
	fmt.Fprintf(w, "  Duplicates:    %d\n", r.Duplicates)
	fmt.Fprintf(w, "  Reported:      %d\n", r.Reported)
	fmt.Fprintf(w, "  Duration:      %s\n", r.Duration)
	fmt.Fprintln(w)

	fmt.Fprintln(w, headingStyle.Render("Messages"))
	fmt.Fprintf(w, "  Messages:      %d\n", r.Stats.Messages)
	fmt.Fprintf(w, "  Conversations: %d\n", r.Stats.Conversations)
	fmt.Fprintf(w, "  Senders:       %d\n", r.Stats.Senders)
	fmt.Fprintf(w, "  With media:    %d\n", r.Stats.WithMedia)
	fmt.Fprintf(w, "  Saved:         %d\n", r.Stats.Saved)
	fmt.Fprintf(w, "  Flagged:       %d\n", r.Stats.Flagged)

	if len(r.Problems) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, headingStyle.Render(fmt.Sprintf("Problems (%d)", len(r.Problems))))
		for _, p := range r.Problems {
			fmt.Fprintf(w, "  %s\n", p)
		}
	}
}

func init() {
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(scanCmd)
}
