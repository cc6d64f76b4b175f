package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/wesm/snapvault/internal/config"
)

var (
	cfgFile string
	homeDir string
	verbose bool
	cfg     *config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "snapvault",
	Short: "Offline Snapchat data download examiner",
	Long: `snapvault reads a Snapchat "Download My Data" ZIP, including any nested
export archives, and rebuilds its chats: deduplicated messages, reported
media, and the media files each message refers to.

Nothing is written back to the archive. Extracted media and thumbnails go to
a per-run scratch directory under the data directory, removed on exit; the
media command keeps copies in <data_dir>/media.`,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = newLogger(cmd.ErrOrStderr())

		// hash works on plain files and needs no config
		if cmd.Name() == "hash" {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile, homeDir)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cfg.EnsureHomeDir(); err != nil {
			return fmt.Errorf("create data directory %s: %w", cfg.Data.DataDir, err)
		}
		return nil
	},
}

func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Execute runs the root command with a background context.
// Prefer ExecuteContext for signal-aware execution.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with the given context,
// enabling graceful shutdown when the context is cancelled.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// PrintError writes err for the user. With --verbose the full wrap chain,
// including stack frames recorded by eris, is printed.
func PrintError(w io.Writer, err error) {
	if verbose {
		fmt.Fprintln(w, "Error:", eris.ToString(err, true))
		return
	}
	fmt.Fprintln(w, "Error:", err)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.snapvault/config.toml)")
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "home directory (overrides SNAPVAULT_HOME)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
