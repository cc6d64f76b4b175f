package session

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/wesm/snapvault/internal/snapchat"
)

// Phase names a coarse stage of an import.
type Phase string

const (
	PhaseScan     Phase = "scan"
	PhaseParse    Phase = "parse"
	PhaseFinalize Phase = "finalize"
	PhaseDone     Phase = "done"
)

// Progress is one coarse progress report.
type Progress struct {
	Percent int    `json:"percent"`
	Phase   Phase  `json:"phase"`
	Message string `json:"message"`
}

// importProgress maps per-file importer callbacks onto the 10-90% band.
type importProgress struct {
	snapchat.NullProgress
	report func(Progress)
}

func (p importProgress) OnFileStart(source string, n, total int) {
	p.report(Progress{
		Percent: 10 + 80*n/max(total, 1),
		Phase:   PhaseParse,
		Message: fmt.Sprintf("Parsing %s (%d/%d)", source, n+1, total),
	})
}

const progressInterval = 100 * time.Millisecond

// Job is an import running in the background.
type Job struct {
	progress chan Progress
	done     chan struct{}
	cancel   context.CancelFunc

	state *State
	err   error
}

// Start runs Import in the background. Progress reports are throttled, but
// every phase change and the final report are delivered when the receiver
// keeps up; reports are dropped rather than blocking the import.
func (s *Session) Start(ctx context.Context, root string) *Job {
	ctx, cancel := context.WithCancel(ctx)
	j := &Job{
		progress: make(chan Progress, 32),
		done:     make(chan struct{}),
		cancel:   cancel,
	}
	updates := make(chan Progress, 32)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(updates)
		st, err := s.Import(gctx, root, func(p Progress) {
			select {
			case updates <- p:
			case <-gctx.Done():
			}
		})
		j.state = st
		return err
	})
	g.Go(func() error {
		defer close(j.progress)
		throttle := rate.Sometimes{Interval: progressInterval}
		var phase Phase
		for p := range updates {
			if p.Phase != phase || p.Percent >= 100 {
				phase = p.Phase
				j.send(p)
				continue
			}
			throttle.Do(func() { j.send(p) })
		}
		return nil
	})
	go func() {
		j.err = g.Wait()
		cancel()
		close(j.done)
	}()
	return j
}

func (j *Job) send(p Progress) {
	select {
	case j.progress <- p:
	default:
	}
}

// Progress returns the report channel. It is closed when the job ends.
func (j *Job) Progress() <-chan Progress { return j.progress }

// Done is closed when the job has finished.
func (j *Job) Done() <-chan struct{} { return j.done }

// Cancel asks the import to stop. Cancellation is observed between files.
func (j *Job) Cancel() { j.cancel() }

// Wait blocks until the job ends and returns its result.
func (j *Job) Wait() (*State, error) {
	<-j.done
	return j.state, j.err
}
