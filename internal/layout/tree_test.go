package layout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu      sync.Mutex
	removed []GlyphID
	changes int
}

func (r *recordingObserver) GlyphRemoved(id GlyphID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, id)
}

func (r *recordingObserver) TreeChanged() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes++
}

func typeWord(t *testing.T, tree *Tree, codes ...string) WordID {
	t.Helper()
	w := tree.CreateWord()
	for _, c := range codes {
		_, err := tree.AppendGlyph(w, c)
		require.NoError(t, err)
	}
	return w
}

func TestCreateWordReusesEmptyCurrent(t *testing.T) {
	tree := New()
	_, ok := tree.Current()
	assert.False(t, ok)

	w1 := tree.CreateWord()
	w2 := tree.CreateWord()
	assert.Equal(t, w1, w2, "empty current word must be reused")
	assert.Equal(t, 1, tree.Len())

	_, err := tree.AppendGlyph(w1, "A")
	require.NoError(t, err)
	w3 := tree.CreateWord()
	assert.NotEqual(t, w1, w3)
	assert.Equal(t, 2, tree.Len())

	cur, ok := tree.Current()
	require.True(t, ok)
	assert.Equal(t, w3, cur)
}

func TestRepeatedSpacesProduceOneEmptyWord(t *testing.T) {
	tree := New()
	typeWord(t, tree, "A")
	for i := 0; i < 5; i++ {
		tree.CreateWord()
	}
	assert.Equal(t, 2, tree.Len())
	assert.Equal(t, "A ", tree.Text())
}

func TestFlexSumsResolvedWeights(t *testing.T) {
	tree := New()
	w := tree.CreateWord()
	a, err := tree.AppendGlyph(w, "A")
	require.NoError(t, err)
	b, err := tree.AppendGlyph(w, "B")
	require.NoError(t, err)

	snap := tree.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, PlaceholderFlex, snap[0].Flex, "pending glyphs contribute nothing")
	assert.Equal(t, PlaceholderFlex, snap[0].Glyphs[0].Flex)

	require.True(t, tree.ApplyWidth(a, 1.25))
	require.True(t, tree.ApplyWidth(b, 0.5))

	snap = tree.Snapshot()
	assert.InDelta(t, 1.75, snap[0].Flex, 1e-9)
	assert.InDelta(t, 1.75, snap[0].BaseFlex, 1e-9)
	assert.True(t, snap[0].Glyphs[0].Resolved)
}

func TestApplyWidthZeroSumFallsBack(t *testing.T) {
	tree := New()
	w := tree.CreateWord()
	g, err := tree.AppendGlyph(w, " ")
	require.NoError(t, err)
	require.True(t, tree.ApplyWidth(g, 0))
	assert.Equal(t, PlaceholderFlex, tree.Snapshot()[0].Flex)
}

func TestApplyWidthIgnoresStaleRevision(t *testing.T) {
	tree := New()
	w := tree.CreateWord()
	old, err := tree.AppendGlyph(w, "A")
	require.NoError(t, err)
	require.True(t, tree.ApplyWidth(old, 1.1))

	fresh, err := tree.ReplaceLastGlyph(w, "Á")
	require.NoError(t, err)
	assert.Equal(t, old.ID, fresh.ID)
	assert.Equal(t, old.Rev+1, fresh.Rev)

	// Old weight kept until the new revision resolves.
	assert.InDelta(t, 1.1, tree.Snapshot()[0].Flex, 1e-9)

	assert.False(t, tree.ApplyWidth(old, 9))
	assert.InDelta(t, 1.1, tree.Snapshot()[0].Flex, 1e-9)

	assert.True(t, tree.ApplyWidth(fresh, 1.3))
	assert.InDelta(t, 1.3, tree.Snapshot()[0].Flex, 1e-9)
	assert.Equal(t, "Á", tree.Text())
}

func TestApplyWidthAfterRemovalIsNoop(t *testing.T) {
	tree := New()
	w := tree.CreateWord()
	g, err := tree.AppendGlyph(w, "A")
	require.NoError(t, err)
	require.True(t, tree.RemoveLastGlyph(w))
	assert.False(t, tree.ApplyWidth(g, 2))
	assert.False(t, tree.Alive(g))
}

func TestRemoveLastGlyphCascadesCursor(t *testing.T) {
	tree := New()
	first := typeWord(t, tree, "A", "B")
	second := typeWord(t, tree, "C")

	require.True(t, tree.RemoveLastGlyph(second))
	cur, ok := tree.Current()
	require.True(t, ok)
	assert.Equal(t, first, cur)
	assert.Equal(t, 1, tree.Len())

	require.True(t, tree.RemoveLastGlyph(first))
	require.True(t, tree.RemoveLastGlyph(first))
	_, ok = tree.Current()
	assert.False(t, ok)
	assert.Equal(t, 0, tree.Len())
	assert.False(t, tree.RemoveLastGlyph(first))
}

func TestRemoveLastGlyphOnEmptyWord(t *testing.T) {
	tree := New()
	w := tree.CreateWord()
	assert.False(t, tree.RemoveLastGlyph(w))
	assert.Equal(t, 1, tree.Len())
}

func TestDiscardEmpty(t *testing.T) {
	tree := New()
	first := typeWord(t, tree, "A")
	second := tree.CreateWord()

	assert.False(t, tree.DiscardEmpty(first), "non-empty word stays")
	require.True(t, tree.DiscardEmpty(second))
	cur, _ := tree.Current()
	assert.Equal(t, first, cur)

	tree.Clear()
	only := tree.CreateWord()
	assert.False(t, tree.DiscardEmpty(only), "the only word stays")
}

func TestAppendToUnknownWord(t *testing.T) {
	tree := New()
	_, err := tree.AppendGlyph(WordID(42), "A")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoSuchWord))

	w := tree.CreateWord()
	_, err = tree.ReplaceLastGlyph(w, "B")
	assert.ErrorIs(t, err, ErrEmptyWord)
}

func TestRemoveLastWord(t *testing.T) {
	tree := New()
	obs := &recordingObserver{}
	tree.Observe(obs)

	first := typeWord(t, tree, "A")
	typeWord(t, tree, "B", "C")

	require.True(t, tree.RemoveLastWord())
	assert.Equal(t, "A", tree.Text())
	cur, _ := tree.Current()
	assert.Equal(t, first, cur)
	assert.Len(t, obs.removed, 2)

	require.True(t, tree.RemoveLastWord())
	assert.False(t, tree.RemoveLastWord())
}

func TestLiveFlexOverrideAndReset(t *testing.T) {
	tree := New()
	w := tree.CreateWord()
	g, err := tree.AppendGlyph(w, "A")
	require.NoError(t, err)
	tree.ApplyWidth(g, 0.8)

	require.NoError(t, tree.SetLiveFlex(w, 48))
	snap := tree.Snapshot()
	assert.InDelta(t, 48, snap[0].Flex, 1e-9)
	assert.InDelta(t, 0.8, snap[0].BaseFlex, 1e-9)

	tree.ResetLiveFlex()
	assert.InDelta(t, 0.8, tree.Snapshot()[0].Flex, 1e-9)

	assert.ErrorIs(t, tree.SetLiveFlex(WordID(99), 1), ErrNoSuchWord)
}

func TestHighlightScalesOneWord(t *testing.T) {
	tree := New()
	for _, code := range []string{"A", "B"} {
		w := tree.CreateWord()
		g, err := tree.AppendGlyph(w, code)
		require.NoError(t, err)
		tree.ApplyWidth(g, 0.5)
	}

	tree.Highlight(0, 60)
	snap := tree.Snapshot()
	assert.InDelta(t, 30, snap[0].Flex, 1e-9)
	assert.InDelta(t, 0.5, snap[1].Flex, 1e-9)

	tree.Highlight(1, 20)
	snap = tree.Snapshot()
	assert.InDelta(t, 0.5, snap[0].Flex, 1e-9)
	assert.InDelta(t, 10, snap[1].Flex, 1e-9)

	tree.Highlight(5, 20)
	for _, w := range tree.Snapshot() {
		assert.InDelta(t, w.BaseFlex, w.Flex, 1e-9)
	}
}

func TestClearNotifiesRemovedGlyphs(t *testing.T) {
	tree := New()
	obs := &recordingObserver{}
	typeWord(t, tree, "A", "B")
	typeWord(t, tree, "C")
	tree.Observe(obs)

	tree.Clear()
	assert.Equal(t, 0, tree.Len())
	assert.Len(t, obs.removed, 3)
	assert.Equal(t, 1, obs.changes)
	_, ok := tree.Current()
	assert.False(t, ok)
}

func TestDeleteAllSequential(t *testing.T) {
	tree := New()
	typeWord(t, tree, "A", "B")
	typeWord(t, tree, "C")
	tree.CreateWord() // trailing separator

	var steps int
	var texts []string
	completed := 0
	err := tree.DeleteAllSequential(context.Background(), time.Millisecond, func() {
		steps++
		texts = append(texts, tree.Text())
	}, func() { completed++ })
	require.NoError(t, err)

	assert.Equal(t, 3, steps)
	assert.Equal(t, 1, completed)
	assert.Equal(t, []string{"AB", "A", ""}, texts)
	assert.Equal(t, 1, tree.Len())
	assert.Equal(t, 0, tree.GlyphCount())
	_, ok := tree.Current()
	assert.True(t, ok)
}

func TestDeleteAllSequentialEmptyTree(t *testing.T) {
	tree := New()
	completed := false
	require.NoError(t, tree.DeleteAllSequential(context.Background(), 0, nil, func() { completed = true }))
	assert.True(t, completed)
	assert.Equal(t, 1, tree.Len())
}

func TestDeleteAllSequentialCancel(t *testing.T) {
	tree := New()
	typeWord(t, tree, "A", "B", "C", "D")

	ctx, cancel := context.WithCancel(context.Background())
	steps := 0
	err := tree.DeleteAllSequential(ctx, time.Millisecond, func() {
		steps++
		if steps == 2 {
			cancel()
		}
	}, func() { t.Error("onComplete must not run after cancel") })

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "AB", tree.Text())
	cur, ok := tree.Current()
	require.True(t, ok)
	assert.Equal(t, tree.Snapshot()[0].ID, cur)
}

func TestConcurrentWidthWrites(t *testing.T) {
	tree := New()
	w := tree.CreateWord()
	var refs []GlyphRef
	for i := 0; i < 50; i++ {
		ref, err := tree.AppendGlyph(w, "A")
		require.NoError(t, err)
		refs = append(refs, ref)
	}

	var wg sync.WaitGroup
	for _, ref := range refs {
		wg.Add(1)
		go func(ref GlyphRef) {
			defer wg.Done()
			tree.ApplyWidth(ref, 0.1)
		}(ref)
	}
	wg.Wait()

	assert.InDelta(t, 5.0, tree.Snapshot()[0].Flex, 1e-9)
}
