package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/wesm/snapvault/internal/session"
)

// CLIProgress prints import progress. On a terminal it redraws one status
// line; otherwise it prints a line per phase.
type CLIProgress struct {
	w         io.Writer
	tty       bool
	startTime time.Time
	phase     session.Phase
	drawn     bool
}

func newCLIProgress(w io.Writer) *CLIProgress {
	return &CLIProgress{w: w, tty: isTerminal(w)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Report prints p.
func (p *CLIProgress) Report(pr session.Progress) {
	if p.startTime.IsZero() {
		p.startTime = time.Now()
	}
	changed := pr.Phase != p.phase
	p.phase = pr.Phase
	if !p.tty {
		if changed {
			fmt.Fprintf(p.w, "%s: %s\n", pr.Phase, pr.Message)
		}
		return
	}
	fmt.Fprintf(p.w, "\r  [%3d%%] %s | Elapsed: %s    ",
		pr.Percent, padRight(pr.Message, 48), formatDuration(time.Since(p.startTime)))
	p.drawn = true
}

// Done ends the status line.
func (p *CLIProgress) Done() {
	if p.drawn {
		fmt.Fprintln(p.w)
		p.drawn = false
	}
}

// formatDuration formats a duration as "Xm Ys" or "Xh Ym" for readability.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// openSession imports root into a new session, reporting progress on
// stderr. The caller closes the session, which removes its scratch files.
func openSession(cmd *cobra.Command, root string) (*session.Session, *session.State, error) {
	opts, err := session.OptionsFromConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	sess := session.New(opts, logger)

	prog := newCLIProgress(cmd.ErrOrStderr())
	job := sess.Start(cmd.Context(), root)
	for pr := range job.Progress() {
		prog.Report(pr)
	}
	prog.Done()

	st, err := job.Wait()
	if err != nil {
		_ = sess.Close()
		return nil, nil, err
	}
	if n := len(st.Errors()); n > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "%d problem(s) while reading the archive; run 'snapvault scan' for details\n", n)
	}
	return sess, st, nil
}
