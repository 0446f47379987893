package playback

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kinetype/internal/domain"
	"kinetype/internal/ime"
	"kinetype/internal/input"
	"kinetype/internal/layout"
)

func fastScheduler(r *input.Router) *Scheduler {
	return New(r, WithCharDelay(time.Millisecond), WithSpaceDelay(time.Millisecond))
}

func waitRun(t *testing.T, run *Run) error {
	t.Helper()
	select {
	case <-run.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("playback did not finish")
	}
	return run.Err()
}

func TestPlayProducesWords(t *testing.T) {
	tree := layout.New()
	r := input.NewRouter(tree, nil)
	s := fastScheduler(r)

	run, err := s.Play(context.Background(), input.ModeAIPlayback, "AB C")
	require.NoError(t, err)
	require.NoError(t, waitRun(t, run))

	words := tree.Snapshot()
	require.Len(t, words, 2)
	assert.Len(t, words[0].Glyphs, 2)
	assert.Equal(t, "C", words[1].Glyphs[0].Code)
	assert.Equal(t, 4, run.Typed())
	assert.False(t, s.Active())
	assert.Equal(t, input.ModeIdle, r.Mode())
}

func TestPlayCollapsesRepeatedSpaces(t *testing.T) {
	tree := layout.New()
	s := fastScheduler(input.NewRouter(tree, nil))

	run, err := s.Play(context.Background(), input.ModeManualPlayback, "A   B")
	require.NoError(t, err)
	require.NoError(t, waitRun(t, run))
	assert.Equal(t, 2, tree.Len())
	assert.Equal(t, "A B", tree.Text())
}

func TestPlayRejectsOverlap(t *testing.T) {
	tree := layout.New()
	r := input.NewRouter(tree, nil)
	s := New(r, WithCharDelay(time.Hour))

	run, err := s.Play(context.Background(), input.ModeAIPlayback, "ABC")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return tree.GlyphCount() == 1 }, 5*time.Second, time.Millisecond)

	_, err = s.Play(context.Background(), input.ModeManualPlayback, "X")
	assert.ErrorIs(t, err, ErrBusy)

	// Keyboard input is refused while the run holds the cursor.
	assert.Equal(t, input.EffectRejected, r.HandleKey(ime.NewKey('z')))

	run.Cancel()
	assert.ErrorIs(t, waitRun(t, run), context.Canceled)
	assert.Equal(t, "A", tree.Text())
}

func TestPlayCancelLeavesValidCursor(t *testing.T) {
	tree := layout.New()
	r := input.NewRouter(tree, nil)
	s := New(r, WithCharDelay(20*time.Millisecond), WithSpaceDelay(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	run, err := s.Play(ctx, input.ModeManualPlayback, "HELLO WORLD")
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, waitRun(t, run), context.Canceled)

	typed := run.Typed()
	assert.Greater(t, typed, 0)
	assert.Less(t, typed, len("HELLO WORLD"))

	_, ok := tree.Current()
	assert.True(t, ok)
	assert.Equal(t, input.ModeIdle, r.Mode(), "cancellation ends playback mode")

	// The scheduler is reusable straight away.
	s2 := fastScheduler(r)
	run2, err := s2.Play(context.Background(), input.ModeManualPlayback, "!")
	require.NoError(t, err)
	require.NoError(t, waitRun(t, run2))
}

func TestSchedulerCancelWaits(t *testing.T) {
	s := New(input.NewRouter(layout.New(), nil), WithCharDelay(time.Hour))
	_, err := s.Play(context.Background(), input.ModeAIPlayback, "AB")
	require.NoError(t, err)
	s.Cancel()
	assert.False(t, s.Active())
	s.Cancel() // no-op without a run
}

func TestPlayComposesWhenVietnamese(t *testing.T) {
	tree := layout.New()
	r := input.NewRouter(tree, nil, input.WithVietnamese(true))
	s := fastScheduler(r)

	run, err := s.Play(context.Background(), input.ModeManualPlayback, "xin chafo")
	require.NoError(t, err)
	require.NoError(t, waitRun(t, run))
	assert.Equal(t, "XIN CHÀO", tree.Text())
	assert.Equal(t, input.ModeVietnamese, r.Mode(), "a preselected composer survives playback")
}

func TestPlayInvalidMode(t *testing.T) {
	s := fastScheduler(input.NewRouter(layout.New(), nil))
	_, err := s.Play(context.Background(), input.ModeRawKeyboard, "A")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.False(t, s.Active())
}

func TestPlayEmptyText(t *testing.T) {
	tree := layout.New()
	s := fastScheduler(input.NewRouter(tree, nil))
	run, err := s.Play(context.Background(), input.ModeManualPlayback, "")
	require.NoError(t, err)
	require.NoError(t, waitRun(t, run))
	assert.Equal(t, 0, tree.GlyphCount())
}
