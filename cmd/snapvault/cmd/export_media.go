package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesm/snapvault/internal/export"
)

var (
	exportMediaFilter filterFlags
	exportMediaOutput string
)

var exportMediaCmd = &cobra.Command{
	Use:   "export-media <mydata.zip>",
	Short: "Export the media of matching messages to a zip with a hash manifest",
	Long: `Resolve the media of every message matching the filters and write the files
to a zip, together with manifest.csv listing each file's media id, message
index, archive path, size, SHA-256 and MD5.

  snapvault export-media mydata.zip -o reported.zip -q is:flagged
  snapvault export-media mydata.zip -o chat.zip --conversation <id>`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportMediaOutput == "" {
			return errors.New("--output is required")
		}
		scope, fs, err := exportMediaFilter.build(cmd)
		if err != nil {
			return err
		}
		sess, st, err := openSession(cmd, args[0])
		if err != nil {
			return err
		}
		defer sess.Close()

		items, missing, err := export.Collect(st, st.Query.Filter(scope, fs))
		if err != nil {
			return err
		}
		stats := export.MediaBundle(exportMediaOutput, items)
		stats.Missing = missing
		fmt.Fprintln(cmd.OutOrStdout(), export.FormatExportResult(stats))
		if stats.WriteError {
			return errors.New("export failed")
		}
		return nil
	},
}

func init() {
	exportMediaFilter.register(exportMediaCmd)
	exportMediaCmd.Flags().StringVarP(&exportMediaOutput, "output", "o", "", "zip file to write")
	rootCmd.AddCommand(exportMediaCmd)
}
