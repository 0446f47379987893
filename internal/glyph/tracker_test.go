package glyph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kinetype/internal/domain"
	"kinetype/internal/layout"
)

// gatedResolver blocks each lookup until its code is released.
type gatedResolver struct {
	mu     sync.Mutex
	gates  map[string]chan struct{}
	widths map[string]float64
}

func newGatedResolver(widths map[string]float64) *gatedResolver {
	return &gatedResolver{gates: make(map[string]chan struct{}), widths: widths}
}

func (g *gatedResolver) gate(code string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.gates[code]
	if !ok {
		ch = make(chan struct{})
		g.gates[code] = ch
	}
	return ch
}

func (g *gatedResolver) release(code string) { close(g.gate(code)) }

func (g *gatedResolver) ResolveWidth(ctx context.Context, code string) (float64, error) {
	select {
	case <-g.gate(code):
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	w, ok := g.widths[code]
	if !ok {
		return 0, fmt.Errorf("%s: %w", code, domain.ErrAssetNotFound)
	}
	return w, nil
}

func TestTrackerAppliesWidths(t *testing.T) {
	tree := layout.New()
	widths := ResolverFunc(func(ctx context.Context, code string) (float64, error) {
		return map[string]float64{"A": 17.21, "B": 34.42}[code], nil
	})
	tr := NewTracker(widths, tree)
	defer tr.Close()

	w := tree.CreateWord()
	for _, code := range []string{"A", "B"} {
		ref, err := tree.AppendGlyph(w, code)
		require.NoError(t, err)
		tr.Track(ref)
	}
	tr.Wait()

	snap := tree.Snapshot()
	assert.InDelta(t, 3.0, snap[0].Flex, 1e-9)
	assert.Equal(t, 0, tr.Pending())
}

func TestTrackerFallsBackOnMiss(t *testing.T) {
	tree := layout.New()
	missing := ResolverFunc(func(ctx context.Context, code string) (float64, error) {
		return 0, domain.ErrAssetNotFound
	})
	broken := ResolverFunc(func(ctx context.Context, code string) (float64, error) {
		return 0, errors.New("disk on fire")
	})

	w := tree.CreateWord()
	for _, r := range []Resolver{missing, broken} {
		tr := NewTracker(r, tree)
		ref, err := tree.AppendGlyph(w, "Z")
		require.NoError(t, err)
		tr.Track(ref)
		tr.Wait()
		tr.Close()
	}

	snap := tree.Snapshot()
	require.Len(t, snap[0].Glyphs, 2)
	for _, g := range snap[0].Glyphs {
		assert.True(t, g.Resolved)
		assert.Equal(t, PlaceholderWeight, g.Flex)
	}
	assert.InDelta(t, 2.0, snap[0].Flex, 1e-9)
}

func TestTrackerDropsStaleRevision(t *testing.T) {
	tree := layout.New()
	gr := newGatedResolver(map[string]float64{"A": 10, "Â": 20})
	tr := NewTracker(gr, tree)
	defer tr.Close()

	w := tree.CreateWord()
	old, err := tree.AppendGlyph(w, "A")
	require.NoError(t, err)
	tr.Track(old)

	fresh, err := tree.ReplaceLastGlyph(w, "Â")
	require.NoError(t, err)
	tr.Track(fresh) // cancels the lookup for A

	gr.release("Â")
	tr.Wait()

	assert.InDelta(t, Weight(20), tree.Snapshot()[0].Flex, 1e-9)
}

func TestTrackerLateResultForOldRevisionIgnored(t *testing.T) {
	tree := layout.New()
	w := tree.CreateWord()
	old, err := tree.AppendGlyph(w, "A")
	require.NoError(t, err)
	fresh, err := tree.ReplaceLastGlyph(w, "Ă")
	require.NoError(t, err)

	var order []string
	var mu sync.Mutex
	r := ResolverFunc(func(ctx context.Context, code string) (float64, error) {
		mu.Lock()
		order = append(order, code)
		mu.Unlock()
		return 17.21 * 3, nil
	})

	// Two trackers so neither cancels the other: the old ref must still lose.
	trOld := NewTracker(r, tree)
	trNew := NewTracker(r, tree)
	trNew.Track(fresh)
	trNew.Wait()
	trOld.Track(old)
	trOld.Wait()

	snap := tree.Snapshot()
	assert.Equal(t, "Ă", snap[0].Glyphs[0].Code)
	assert.InDelta(t, 3.0, snap[0].Flex, 1e-9)
	assert.Len(t, order, 2)
}

func TestTrackerCancelsOnRemoval(t *testing.T) {
	tree := layout.New()
	gr := newGatedResolver(map[string]float64{"A": 10})
	tr := NewTracker(gr, tree)
	tree.Observe(tr)
	defer tr.Close()

	w := tree.CreateWord()
	ref, err := tree.AppendGlyph(w, "A")
	require.NoError(t, err)
	tr.Track(ref)
	assert.Equal(t, 1, tr.Pending())

	require.True(t, tree.RemoveLastGlyph(w))

	done := make(chan struct{})
	go func() {
		tr.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lookup was not cancelled on removal")
	}
	assert.Equal(t, 0, tr.Pending())
	assert.Equal(t, 0, tree.GlyphCount())
}

func TestTrackerTimeoutFallsBack(t *testing.T) {
	tree := layout.New()
	gr := newGatedResolver(nil)
	tr := NewTracker(gr, tree, WithResolveTimeout(10*time.Millisecond))
	defer tr.Close()

	w := tree.CreateWord()
	ref, err := tree.AppendGlyph(w, "A")
	require.NoError(t, err)
	tr.Track(ref)
	tr.Wait()

	g := tree.Snapshot()[0].Glyphs[0]
	assert.True(t, g.Resolved)
	assert.Equal(t, PlaceholderWeight, g.Flex)
}

func TestTrackerClosedIgnoresTrack(t *testing.T) {
	tree := layout.New()
	tr := NewTracker(ResolverFunc(func(context.Context, string) (float64, error) { return 1, nil }), tree)
	tr.Close()

	w := tree.CreateWord()
	ref, err := tree.AppendGlyph(w, "A")
	require.NoError(t, err)
	tr.Track(ref)
	tr.Wait()
	assert.False(t, tree.Snapshot()[0].Glyphs[0].Resolved)
}
