// Package animation drives the word highlight loops.
package animation

import (
	"context"
	"sync"
	"time"

	"kinetype/internal/logging"
)

const (
	DefaultInterval  = time.Second
	SequentialFactor = 60.0
	NoiseFactor      = 20.0
)

// Style names a highlight loop.
type Style struct {
	Name   string
	Factor float64
}

var (
	Sequential = Style{Name: "sequential", Factor: SequentialFactor}
	Noise      = Style{Name: "noise", Factor: NoiseFactor}
)

// Target is the tree being animated. *layout.Tree implements it.
type Target interface {
	Len() int
	Highlight(index int, factor float64)
	ResetLiveFlex()
}

// Option configures a Highlighter.
type Option func(*Highlighter)

// WithInterval sets the time between steps.
func WithInterval(d time.Duration) Option {
	return func(h *Highlighter) { h.interval = d }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(h *Highlighter) { h.log = l.WithComponent("animation") }
}

// Highlighter scales one word at a time, advancing through the words on
// every step and wrapping at the end.
type Highlighter struct {
	target   Target
	style    Style
	interval time.Duration
	log      *logging.Logger

	mu     sync.Mutex
	index  int
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a stopped highlighter.
func New(target Target, style Style, opts ...Option) *Highlighter {
	h := &Highlighter{
		target:   target,
		style:    style,
		interval: DefaultInterval,
		log:      logging.Nop(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Style returns the highlight style.
func (h *Highlighter) Style() Style { return h.style }

// Active reports whether the loop is running.
func (h *Highlighter) Active() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancel != nil
}

// Start highlights the first word immediately and then advances every
// interval until Stop or ctx is done. Starting a running highlighter is a
// no-op.
func (h *Highlighter) Start(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.done = make(chan struct{})
	h.index = 0
	h.stepLocked()

	h.log.Debug("highlight started", "style", h.style.Name)
	go h.loop(ctx, h.done)
}

// Stop ends the loop and restores every word to its base flex.
func (h *Highlighter) Stop() {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	h.mu.Lock()
	h.index = 0
	h.mu.Unlock()
	h.target.ResetLiveFlex()
	h.log.Debug("highlight stopped", "style", h.style.Name)
}

// Toggle starts or stops the loop.
func (h *Highlighter) Toggle(ctx context.Context, on bool) {
	if on {
		h.Start(ctx)
	} else {
		h.Stop()
	}
}

// Step advances by one word. The loop calls it on every tick.
func (h *Highlighter) Step() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stepLocked()
}

func (h *Highlighter) stepLocked() {
	n := h.target.Len()
	if n == 0 {
		return
	}
	h.target.Highlight(h.index, h.style.Factor)
	h.index++
	if h.index >= n {
		h.index = 0
	}
}

func (h *Highlighter) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Step()
		}
	}
}
