package glyph

import (
	"context"
	"errors"
	"sync"
	"time"

	"kinetype/internal/domain"
	"kinetype/internal/layout"
	"kinetype/internal/logging"
)

// DefaultResolveTimeout bounds a single width lookup.
const DefaultResolveTimeout = 5 * time.Second

// PlaceholderWeight is applied when a lookup fails.
const PlaceholderWeight = layout.PlaceholderFlex

// WidthApplier receives resolved weights. *layout.Tree implements it.
type WidthApplier interface {
	ApplyWidth(ref layout.GlyphRef, weight float64) bool
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithResolveTimeout sets the per-lookup timeout.
func WithResolveTimeout(d time.Duration) TrackerOption {
	return func(t *Tracker) {
		t.timeout = d
	}
}

// WithTrackerLogger sets the logger.
func WithTrackerLogger(l *logging.Logger) TrackerOption {
	return func(t *Tracker) {
		t.log = l.WithComponent("glyph")
	}
}

type inflight struct {
	rev    uint32
	cancel context.CancelFunc
}

// Tracker resolves widths asynchronously, one goroutine per glyph revision.
// Tracking a new revision of a glyph cancels the lookup for the old one, and
// removing a glyph cancels its lookup. Results reach the tree through
// ApplyWidth, which drops anything stale.
//
// A failed lookup applies PlaceholderWeight so the glyph still takes a share of
// its word.
type Tracker struct {
	resolver Resolver
	tree     WidthApplier
	log      *logging.Logger
	timeout  time.Duration

	ctx    context.Context
	stop   context.CancelFunc
	mu     sync.Mutex
	active map[layout.GlyphID]inflight
	wg     sync.WaitGroup
}

// NewTracker returns a Tracker that writes into tree.
func NewTracker(r Resolver, tree WidthApplier, opts ...TrackerOption) *Tracker {
	ctx, stop := context.WithCancel(context.Background())
	t := &Tracker{
		resolver: r,
		tree:     tree,
		log:      logging.Nop(),
		timeout:  DefaultResolveTimeout,
		ctx:      ctx,
		stop:     stop,
		active:   make(map[layout.GlyphID]inflight),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Track starts resolving the width of ref.
func (t *Tracker) Track(ref layout.GlyphRef) {
	t.mu.Lock()
	if t.ctx.Err() != nil {
		t.mu.Unlock()
		return
	}
	if prev, ok := t.active[ref.ID]; ok {
		prev.cancel()
	}
	ctx, cancel := context.WithTimeout(t.ctx, t.timeout)
	t.active[ref.ID] = inflight{rev: ref.Rev, cancel: cancel}
	t.wg.Add(1)
	t.mu.Unlock()

	go t.resolve(ctx, cancel, ref)
}

func (t *Tracker) resolve(ctx context.Context, cancel context.CancelFunc, ref layout.GlyphRef) {
	defer t.wg.Done()
	defer cancel()
	defer t.finish(ref)

	width, err := t.resolver.ResolveWidth(ctx, ref.Code)
	if errors.Is(err, context.Canceled) || (err == nil && ctx.Err() == context.Canceled) {
		return
	}

	weight := PlaceholderWeight
	switch {
	case err == nil:
		weight = Weight(width)
	case errors.Is(err, domain.ErrAssetNotFound):
		t.log.Debug("glyph asset missing", "code", ref.Code, "error", err)
	default:
		t.log.Warn("glyph width failed", "code", ref.Code, "error", err)
	}

	if !t.tree.ApplyWidth(ref, weight) {
		t.log.Debug("stale width dropped", "code", ref.Code, "rev", ref.Rev)
	}
}

func (t *Tracker) finish(ref layout.GlyphRef) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.active[ref.ID]; ok && cur.rev == ref.Rev {
		delete(t.active, ref.ID)
	}
}

// GlyphRemoved cancels any lookup for id. It makes Tracker a layout.Observer.
func (t *Tracker) GlyphRemoved(id layout.GlyphID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.active[id]; ok {
		cur.cancel()
		delete(t.active, id)
	}
}

// TreeChanged implements layout.Observer.
func (t *Tracker) TreeChanged() {}

// Pending returns the number of glyphs with a lookup in flight.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// Wait blocks until every lookup started so far has finished.
func (t *Tracker) Wait() {
	t.wg.Wait()
}

// Close cancels all lookups and waits for them.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.stop()
	t.mu.Unlock()
	t.wg.Wait()
}
