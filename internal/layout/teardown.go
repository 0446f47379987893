package layout

import (
	"context"
	"time"
)

// DefaultTeardownTick is the interval between glyph removals in
// DeleteAllSequential.
const DefaultTeardownTick = 50 * time.Millisecond

// DeleteAllSequential removes one glyph per tick, always from the current
// word, cascading to the previous word as each word empties. The number of
// steps is the glyph count at the start. onStep runs after every removal and
// onComplete once, when no glyphs remain; either may be nil. On completion the
// tree holds a single empty current word.
//
// Cancelling ctx stops the teardown between steps and returns ctx.Err(); the
// tree is left valid with whatever glyphs remain.
func (t *Tree) DeleteAllSequential(ctx context.Context, tick time.Duration, onStep, onComplete func()) error {
	total := t.GlyphCount()

	var ticks <-chan time.Time
	if tick > 0 && total > 0 {
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		ticks = ticker.C
	}

	for step := 0; step < total; step++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if ticks != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticks:
			}
		}
		if !t.deleteStep() {
			break
		}
		if onStep != nil {
			onStep()
		}
	}

	t.finishTeardown()
	if onComplete != nil {
		onComplete()
	}
	return nil
}

// deleteStep removes the last glyph of the current word. Empty words in front
// of the cursor are dropped first so a trailing separator does not stall the
// teardown.
func (t *Tree) deleteStep() bool {
	t.mu.Lock()
	for t.current != nil && len(t.current.glyphs) == 0 && len(t.words) > 1 {
		t.removeWordLocked(t.current)
	}
	if t.current == nil || len(t.current.glyphs) == 0 {
		t.mu.Unlock()
		return false
	}
	removed := t.popLocked(t.current)
	t.mu.Unlock()
	t.notify([]GlyphID{removed})
	return true
}

// finishTeardown leaves exactly one empty current word.
func (t *Tree) finishTeardown() {
	t.mu.Lock()
	if len(t.glyphs) > 0 {
		// Glyphs arrived during the teardown; they stay.
		t.mu.Unlock()
		return
	}
	if len(t.words) == 0 {
		t.appendWordLocked()
	}
	t.words = t.words[:1]
	t.current = t.words[0]
	t.mu.Unlock()
	t.notify(nil)
}
