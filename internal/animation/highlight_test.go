package animation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kinetype/internal/layout"
)

func threeWords(t *testing.T) *layout.Tree {
	t.Helper()
	tree := layout.New()
	for _, w := range []string{"A", "BC", "D"} {
		id := tree.CreateWord()
		for _, r := range w {
			_, err := tree.AppendGlyph(id, string(r))
			require.NoError(t, err)
		}
	}
	return tree
}

func liveFlex(tree *layout.Tree) []float64 {
	var out []float64
	for _, w := range tree.Snapshot() {
		out = append(out, w.Flex)
	}
	return out
}

func TestStepAdvancesAndWraps(t *testing.T) {
	tree := threeWords(t)
	h := New(tree, Sequential)

	h.Step()
	assert.Equal(t, []float64{60, 1, 1}, liveFlex(tree))
	h.Step()
	assert.Equal(t, []float64{1, 60, 1}, liveFlex(tree))
	h.Step()
	assert.Equal(t, []float64{1, 1, 60}, liveFlex(tree))
	h.Step()
	assert.Equal(t, []float64{60, 1, 1}, liveFlex(tree), "index wraps")

	for _, w := range tree.Snapshot() {
		assert.Equal(t, 1.0, w.BaseFlex, "base flex is untouched")
	}
}

func TestNoiseFactor(t *testing.T) {
	tree := threeWords(t)
	New(tree, Noise).Step()
	assert.Equal(t, []float64{20, 1, 1}, liveFlex(tree))
}

func TestStepOnEmptyTree(t *testing.T) {
	tree := layout.New()
	h := New(tree, Sequential)
	h.Step()
	assert.Equal(t, 0, tree.Len())
}

func TestStepAfterWordsShrink(t *testing.T) {
	tree := threeWords(t)
	h := New(tree, Sequential)
	h.Step()
	h.Step()
	h.Step() // next index is 0 again
	h.Step() // highlights word 0, next index 1
	h.Step() // highlights word 1, next index 2

	require.True(t, tree.RemoveLastWord())
	require.True(t, tree.RemoveLastWord())
	h.Step() // index 2 is out of range: restore only, then wrap
	assert.Equal(t, []float64{1}, liveFlex(tree))
	h.Step()
	assert.Equal(t, []float64{60}, liveFlex(tree))
}

func TestStartStop(t *testing.T) {
	tree := threeWords(t)
	h := New(tree, Sequential, WithInterval(5*time.Millisecond))

	h.Start(context.Background())
	assert.True(t, h.Active())
	assert.Equal(t, 60.0, liveFlex(tree)[0], "first word is highlighted immediately")

	require.Eventually(t, func() bool { return liveFlex(tree)[1] == 60 }, 5*time.Second, time.Millisecond)

	h.Start(context.Background()) // no-op while running
	h.Stop()
	assert.False(t, h.Active())
	assert.Equal(t, []float64{1, 1, 1}, liveFlex(tree))

	h.Stop() // no-op when stopped
}

func TestToggle(t *testing.T) {
	tree := threeWords(t)
	h := New(tree, Noise, WithInterval(time.Hour))
	h.Toggle(context.Background(), true)
	assert.True(t, h.Active())
	h.Toggle(context.Background(), false)
	assert.False(t, h.Active())
	assert.Equal(t, []float64{1, 1, 1}, liveFlex(tree))
}
