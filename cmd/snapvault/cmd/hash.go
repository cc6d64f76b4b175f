package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesm/snapvault/internal/fileutil"
)

var hashJSON bool

var hashCmd = &cobra.Command{
	Use:   "hash <file>...",
	Short: "Print SHA-256 and MD5 of files",
	Long: `Print the size, SHA-256 and MD5 of each file, for recording an archive or
an extracted media file in case notes.`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		type entry struct {
			Path string `json:"path"`
			fileutil.Hashes
		}
		var entries []entry
		for _, p := range args {
			h, err := fileutil.HashFile(p)
			if err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
			entries = append(entries, entry{Path: p, Hashes: h})
		}

		out := cmd.OutOrStdout()
		if hashJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		}
		for _, e := range entries {
			fmt.Fprintf(out, "%s  %s  %12d  %s\n", e.SHA256, e.MD5, e.Size, e.Path)
		}
		return nil
	},
}

func init() {
	hashCmd.Flags().BoolVar(&hashJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(hashCmd)
}
