// Package playback types a string into the router as timed synthetic
// keystrokes.
package playback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"kinetype/internal/input"
	"kinetype/internal/logging"
)

const (
	DefaultCharDelay  = 250 * time.Millisecond
	DefaultSpaceDelay = 100 * time.Millisecond
)

// ErrBusy is returned by Play while another run is active.
var ErrBusy = errors.New("playback: a run is already active")

// Target receives synthetic keystrokes. *input.Router implements it.
type Target interface {
	BeginPlayback(m input.Mode) error
	Synthesize(ch rune) (input.Effect, error)
	EndPlayback()
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithCharDelay sets the pause after every character.
func WithCharDelay(d time.Duration) Option {
	return func(s *Scheduler) { s.charDelay = d }
}

// WithSpaceDelay sets the pause after every word separator.
func WithSpaceDelay(d time.Duration) Option {
	return func(s *Scheduler) { s.spaceDelay = d }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Scheduler) { s.log = l.WithComponent("playback") }
}

// Scheduler runs at most one playback at a time.
type Scheduler struct {
	target     Target
	charDelay  time.Duration
	spaceDelay time.Duration
	log        *logging.Logger

	mu     sync.Mutex
	active *Run
}

// New returns a scheduler feeding target.
func New(target Target, opts ...Option) *Scheduler {
	s := &Scheduler{
		target:     target,
		charDelay:  DefaultCharDelay,
		spaceDelay: DefaultSpaceDelay,
		log:        logging.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run is one playback in progress.
type Run struct {
	ID     string
	Mode   input.Mode
	Text   string
	cancel context.CancelFunc
	done   chan struct{}
	err    error
	typed  int
}

// Done is closed when the run has finished or been cancelled.
func (r *Run) Done() <-chan struct{} { return r.done }

// Err returns nil after a completed run, the context error after a
// cancelled one. It blocks until Done is closed.
func (r *Run) Err() error {
	<-r.done
	return r.err
}

// Cancel stops the run before its next keystroke.
func (r *Run) Cancel() { r.cancel() }

// Typed returns the number of keystrokes delivered. Valid after Done.
func (r *Run) Typed() int {
	<-r.done
	return r.typed
}

// Active reports whether a run is in progress.
func (s *Scheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

// Cancel stops the active run, if any, and waits for it to end.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	run := s.active
	s.mu.Unlock()
	if run != nil {
		run.Cancel()
		<-run.done
	}
}

// Play starts typing text in mode m, which must be a playback mode. Space
// separates words; runs of spaces produce runs of separators, which the tree
// collapses.
func (s *Scheduler) Play(ctx context.Context, m input.Mode, text string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		return nil, ErrBusy
	}
	if err := s.target.BeginPlayback(m); err != nil {
		return nil, fmt.Errorf("start playback: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	run := &Run{
		ID:     s.log.NewRunID(),
		Mode:   m,
		Text:   text,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.active = run

	go s.run(ctx, run)
	return run, nil
}

func (s *Scheduler) run(ctx context.Context, run *Run) {
	log := s.log.WithRun(run.ID)
	log.Debug("playback started", "mode", run.Mode.String(), "chars", len([]rune(run.Text)))

	run.err = s.typeText(ctx, run)
	s.target.EndPlayback()

	s.mu.Lock()
	s.active = nil
	s.mu.Unlock()

	if run.err != nil {
		log.Debug("playback cancelled", "typed", run.typed, "error", run.err)
	} else {
		log.Debug("playback finished", "typed", run.typed)
	}
	run.cancel()
	close(run.done)
}

func (s *Scheduler) typeText(ctx context.Context, run *Run) error {
	words := strings.Split(run.Text, " ")
	for i, word := range words {
		if i > 0 {
			if err := s.key(ctx, run, ' ', s.spaceDelay); err != nil {
				return err
			}
		}
		for _, ch := range word {
			if err := s.key(ctx, run, ch, s.charDelay); err != nil {
				return err
			}
		}
	}
	return nil
}

// key delivers ch and then pauses for d. Cancellation is checked before the
// keystroke so a cancelled run never types again.
func (s *Scheduler) key(ctx context.Context, run *Run, ch rune, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.target.Synthesize(ch); err != nil {
		return err
	}
	run.typed++
	return sleep(ctx, d)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
