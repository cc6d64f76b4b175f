package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/wesm/snapvault/internal/fileutil"
	"github.com/wesm/snapvault/internal/media"
	"github.com/wesm/snapvault/internal/session"
	"github.com/wesm/snapvault/internal/thumbnail"
)

var (
	mediaMessage    int
	mediaFlagged    bool
	mediaThumbnails bool
	mediaJSON       bool
	mediaOutput     string
)

// mediaFileReport describes one resolved file. Path and Thumbnail point into
// the output directory, not the session scratch tree.
type mediaFileReport struct {
	ArchivePath string          `json:"archive_path"`
	Path        string          `json:"path,omitempty"`
	Hashes      fileutil.Hashes `json:"hashes"`
	Thumbnail   string          `json:"thumbnail,omitempty"`
	Error       string          `json:"error,omitempty"`
}

var mediaCmd = &cobra.Command{
	Use:   "media <mydata.zip> [media-id]",
	Short: "Resolve a media id to files in the archive",
	Long: `Resolve a media id, or the media of one message, to the files it names
anywhere in the archive tree. Each file is hashed and copied to the output
directory (default: <data_dir>/media) under a name prefixed with its SHA-256,
so repeated runs reuse earlier copies. A media id that matches nothing is
reported, not treated as an error.

  snapvault media mydata.zip b~EiASFzRraXd1bWVzc2FnZXM
  snapvault media mydata.zip --message 42 --thumbnails -o ./evidence`,
	Args:         cobra.RangeArgs(1, 2),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		byMessage := cmd.Flags().Changed("message")
		switch {
		case byMessage && len(args) == 2:
			return errors.New("give either a media id or --message, not both")
		case !byMessage && len(args) == 1:
			return errors.New("give a media id or --message")
		}

		outDir := mediaOutput
		if outDir == "" {
			outDir = cfg.MediaDir()
		}
		if err := fileutil.EnsureDir(outDir); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}

		sess, st, err := openSession(cmd, args[0])
		if err != nil {
			return err
		}
		defer sess.Close()

		var id string
		var res []media.Resolved
		if byMessage {
			m, err := st.Dataset.Message(mediaMessage)
			if err != nil {
				return fmt.Errorf("message %d: %w", mediaMessage, err)
			}
			id = m.MediaID
			if res, err = st.MessageMedia(mediaMessage); err != nil {
				return err
			}
		} else {
			id = args[1]
			res = st.Media.Media(id, mediaFlagged)
		}

		reports := make([]mediaFileReport, 0, len(res))
		for _, r := range res {
			reports = append(reports, saveMedia(cmd, st, r, outDir))
		}

		out := cmd.OutOrStdout()
		if mediaJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]interface{}{"media_id": id, "files": reports})
		}
		printMediaReports(out, id, reports)
		return nil
	},
}

// saveMedia hashes the extracted file and copies it, and its thumbnail when
// asked for, into outDir.
func saveMedia(cmd *cobra.Command, st *session.State, r media.Resolved, outDir string) mediaFileReport {
	rep := mediaFileReport{ArchivePath: r.Location.String()}
	h, err := fileutil.HashFile(r.Path)
	if err != nil {
		rep.Error = err.Error()
		return rep
	}
	rep.Hashes = h

	dest := filepath.Join(outDir, h.SHA256[:12]+"_"+fileutil.SanitizeFilename(r.Location.Base()))
	if err := copyFile(r.Path, dest); err != nil {
		rep.Error = err.Error()
		return rep
	}
	rep.Path = dest
	if !mediaThumbnails {
		return rep
	}

	thumb, err := st.Thumbs.Thumbnail(cmd.Context(), r.Path)
	switch {
	case err == nil:
		thumbDest := dest + ".thumb.jpg"
		if err := copyFile(thumb, thumbDest); err != nil {
			logger.Warn("copy thumbnail failed", "path", thumb, "error", err)
			break
		}
		rep.Thumbnail = thumbDest
	case errors.Is(err, thumbnail.ErrUnsupported), errors.Is(err, thumbnail.ErrTimeout):
		logger.Debug("no thumbnail", "path", r.Path, "error", err)
	default:
		logger.Warn("thumbnail failed", "path", r.Path, "error", err)
	}
	return rep
}

// copyFile copies src to dest unless dest already holds data.
func copyFile(src, dest string) error {
	if fileutil.NonEmpty(dest) {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	return fileutil.WriteAtomic(dest, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}

func printMediaReports(w io.Writer, id string, reports []mediaFileReport) {
	if id == "" {
		fmt.Fprintln(w, "Message has no media.")
		return
	}
	if len(reports) == 0 {
		fmt.Fprintf(w, "No files found for %s\n", id)
		return
	}
	fmt.Fprintf(w, "%s %s\n", headingStyle.Render("Media"), id)
	for _, r := range reports {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("Archive:  "), r.ArchivePath)
		if r.Error != "" {
			fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("Error:    "), r.Error)
			continue
		}
		fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("Saved to: "), r.Path)
		fmt.Fprintf(w, "  %s %d bytes\n", labelStyle.Render("Size:     "), r.Hashes.Size)
		fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("SHA-256:  "), r.Hashes.SHA256)
		fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("MD5:      "), r.Hashes.MD5)
		if r.Thumbnail != "" {
			fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("Thumbnail:"), r.Thumbnail)
		}
	}
}

func init() {
	mediaCmd.Flags().IntVar(&mediaMessage, "message", 0, "resolve the media of this message index")
	mediaCmd.Flags().BoolVar(&mediaFlagged, "flagged", false, "match the id as a raw substring, as for reported media")
	mediaCmd.Flags().BoolVar(&mediaThumbnails, "thumbnails", false, "also generate thumbnails")
	mediaCmd.Flags().BoolVar(&mediaJSON, "json", false, "output as JSON")
	mediaCmd.Flags().StringVarP(&mediaOutput, "output", "o", "", "directory for copies of resolved files (default: <data_dir>/media)")
	rootCmd.AddCommand(mediaCmd)
}
