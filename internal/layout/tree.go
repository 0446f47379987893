// Package layout implements the word tree: the document model the renderers
// read. A tree is an ordered run of words, each an ordered run of glyphs with
// a flex weight, plus an explicit cursor naming the word being edited.
//
// All mutations go through Tree methods and take the tree lock, so width
// resolution goroutines, the teardown ticker and the input router can share
// one tree. Callers address words and glyphs by ID; nothing outside the
// package holds pointers into the tree.
package layout

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
)

// PlaceholderFlex is the flex of a pending glyph and of a word whose resolved
// weights sum to zero.
const PlaceholderFlex = 1.0

var (
	// ErrNoSuchWord is returned when a WordID is not a member of the tree.
	ErrNoSuchWord = errors.New("layout: no such word")
	// ErrEmptyWord is returned when an operation needs a glyph but the word
	// has none.
	ErrEmptyWord = errors.New("layout: word is empty")
)

// WordID identifies a word for the lifetime of the tree. IDs are never reused.
type WordID uint64

// GlyphID identifies a glyph for the lifetime of the tree. IDs are never reused.
type GlyphID uint64

// GlyphRef names one revision of a glyph. Width results carry the ref they
// were computed for so a result for an old code can be told apart.
type GlyphRef struct {
	ID   GlyphID
	Word WordID
	Rev  uint32
	Code string
}

// Observer is notified after a mutation, once the tree lock is released.
// Implementations may call back into the tree.
type Observer interface {
	// GlyphRemoved reports a glyph that left the tree.
	GlyphRemoved(id GlyphID)
	// TreeChanged reports that words, glyphs or flex values changed.
	TreeChanged()
}

type glyph struct {
	id       GlyphID
	code     string
	rev      uint32
	weight   float64
	resolved bool
	owner    *word
}

func (g *glyph) flex() float64 {
	if !g.resolved {
		return PlaceholderFlex
	}
	return g.weight
}

func (g *glyph) ref() GlyphRef {
	return GlyphRef{ID: g.id, Word: g.owner.id, Rev: g.rev, Code: g.code}
}

type word struct {
	id       WordID
	glyphs   []*glyph
	flex     float64
	baseFlex float64
}

// recompute sums resolved weights. Pending glyphs contribute nothing so a
// word does not jump while its widths arrive.
func (w *word) recompute() {
	var sum float64
	for _, g := range w.glyphs {
		if g.resolved {
			sum += g.weight
		}
	}
	if sum == 0 {
		sum = PlaceholderFlex
	}
	sum = round2(sum)
	w.flex = sum
	w.baseFlex = sum
}

// Tree is the ordered sequence of words plus the cursor.
type Tree struct {
	mu        sync.RWMutex
	words     []*word
	current   *word
	glyphs    map[GlyphID]*glyph
	nextWord  WordID
	nextGlyph GlyphID
	observers []Observer
}

// New returns an empty tree with no current word.
func New() *Tree {
	return &Tree{glyphs: make(map[GlyphID]*glyph)}
}

// Observe registers an observer. Observers are called in registration order.
func (t *Tree) Observe(o Observer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, o)
}

// Current returns the cursor. ok is false before the first word exists and
// after the last word was deleted.
func (t *Tree) Current() (id WordID, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.current == nil {
		return 0, false
	}
	return t.current.id, true
}

// CreateWord applies the word-boundary rule: if the current word has glyphs a
// new empty word is appended and becomes current; if it is empty it is
// reused; with no current word one is created.
func (t *Tree) CreateWord() WordID {
	t.mu.Lock()
	if t.current != nil && len(t.current.glyphs) == 0 {
		id := t.current.id
		t.mu.Unlock()
		return id
	}
	w := t.appendWordLocked()
	t.mu.Unlock()
	t.notify(nil)
	return w.id
}

// EnsureWord returns the current word, creating one only when there is none.
func (t *Tree) EnsureWord() WordID {
	t.mu.Lock()
	if t.current != nil {
		id := t.current.id
		t.mu.Unlock()
		return id
	}
	w := t.appendWordLocked()
	t.mu.Unlock()
	t.notify(nil)
	return w.id
}

func (t *Tree) appendWordLocked() *word {
	t.nextWord++
	w := &word{id: t.nextWord, flex: PlaceholderFlex, baseFlex: PlaceholderFlex}
	t.words = append(t.words, w)
	t.current = w
	return w
}

// AppendGlyph adds a pending glyph with the given canonical code to the end
// of word id.
func (t *Tree) AppendGlyph(id WordID, code string) (GlyphRef, error) {
	t.mu.Lock()
	w := t.findLocked(id)
	if w == nil {
		t.mu.Unlock()
		return GlyphRef{}, fmt.Errorf("append %q to word %d: %w", code, id, ErrNoSuchWord)
	}
	t.nextGlyph++
	g := &glyph{id: t.nextGlyph, code: code, owner: w}
	w.glyphs = append(w.glyphs, g)
	t.glyphs[g.id] = g
	w.recompute()
	ref := g.ref()
	t.mu.Unlock()
	t.notify(nil)
	return ref, nil
}

// LastGlyph returns the glyph at index len-1 of word id.
func (t *Tree) LastGlyph(id WordID) (GlyphRef, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	w := t.findLocked(id)
	if w == nil || len(w.glyphs) == 0 {
		return GlyphRef{}, false
	}
	return w.glyphs[len(w.glyphs)-1].ref(), true
}

// ReplaceLastGlyph changes the code of the last glyph of word id in place and
// bumps its revision. The glyph keeps its current weight until a width for
// the new revision is applied.
func (t *Tree) ReplaceLastGlyph(id WordID, code string) (GlyphRef, error) {
	t.mu.Lock()
	w := t.findLocked(id)
	if w == nil {
		t.mu.Unlock()
		return GlyphRef{}, fmt.Errorf("replace last glyph of word %d: %w", id, ErrNoSuchWord)
	}
	if len(w.glyphs) == 0 {
		t.mu.Unlock()
		return GlyphRef{}, fmt.Errorf("replace last glyph of word %d: %w", id, ErrEmptyWord)
	}
	g := w.glyphs[len(w.glyphs)-1]
	g.code = code
	g.rev++
	ref := g.ref()
	t.mu.Unlock()
	t.notify(nil)
	return ref, nil
}

// RemoveLastGlyph pops the last glyph of word id. It returns false if the
// word is not a member or was already empty. A word emptied by the pop is
// removed and the cursor moves to the new tail, or to none.
func (t *Tree) RemoveLastGlyph(id WordID) bool {
	t.mu.Lock()
	w := t.findLocked(id)
	if w == nil || len(w.glyphs) == 0 {
		t.mu.Unlock()
		return false
	}
	removed := t.popLocked(w)
	t.mu.Unlock()
	t.notify([]GlyphID{removed})
	return true
}

func (t *Tree) popLocked(w *word) GlyphID {
	g := w.glyphs[len(w.glyphs)-1]
	w.glyphs[len(w.glyphs)-1] = nil
	w.glyphs = w.glyphs[:len(w.glyphs)-1]
	delete(t.glyphs, g.id)
	w.recompute()
	if len(w.glyphs) == 0 {
		t.removeWordLocked(w)
	}
	return g.id
}

// DiscardEmpty removes word id when it is empty and is not the only word, and
// moves the cursor to the new tail. Backspace on an empty trailing word uses
// it to step back into the previous word.
func (t *Tree) DiscardEmpty(id WordID) bool {
	t.mu.Lock()
	w := t.findLocked(id)
	if w == nil || len(w.glyphs) > 0 || len(t.words) < 2 {
		t.mu.Unlock()
		return false
	}
	t.removeWordLocked(w)
	t.mu.Unlock()
	t.notify(nil)
	return true
}

// RemoveLastWord drops the tail word and all its glyphs.
func (t *Tree) RemoveLastWord() bool {
	t.mu.Lock()
	if len(t.words) == 0 {
		t.mu.Unlock()
		return false
	}
	w := t.words[len(t.words)-1]
	removed := make([]GlyphID, 0, len(w.glyphs))
	for _, g := range w.glyphs {
		delete(t.glyphs, g.id)
		removed = append(removed, g.id)
	}
	t.removeWordLocked(w)
	t.mu.Unlock()
	t.notify(removed)
	return true
}

func (t *Tree) removeWordLocked(w *word) {
	for i, cand := range t.words {
		if cand == w {
			t.words = append(t.words[:i], t.words[i+1:]...)
			break
		}
	}
	if t.current == w {
		t.current = nil
		if n := len(t.words); n > 0 {
			t.current = t.words[n-1]
		}
	}
}

// RecomputeFlex recomputes the live and base flex of word id from its glyphs.
func (t *Tree) RecomputeFlex(id WordID) error {
	t.mu.Lock()
	w := t.findLocked(id)
	if w == nil {
		t.mu.Unlock()
		return fmt.Errorf("recompute word %d: %w", id, ErrNoSuchWord)
	}
	w.recompute()
	t.mu.Unlock()
	t.notify(nil)
	return nil
}

// ApplyWidth stores a resolved flex weight for ref. It is a no-op returning
// false when the glyph has left the tree or was re-coded since ref was taken.
func (t *Tree) ApplyWidth(ref GlyphRef, weight float64) bool {
	t.mu.Lock()
	g, ok := t.glyphs[ref.ID]
	if !ok || g.rev != ref.Rev {
		t.mu.Unlock()
		return false
	}
	g.weight = round2(weight)
	g.resolved = true
	g.owner.recompute()
	t.mu.Unlock()
	t.notify(nil)
	return true
}

// Alive reports whether ref still names the current revision of a glyph in
// the tree.
func (t *Tree) Alive(ref GlyphRef) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	g, ok := t.glyphs[ref.ID]
	return ok && g.rev == ref.Rev
}

// SetLiveFlex overrides the layout flex of word id without touching its base
// flex. Animations use it; the next recompute or ResetLiveFlex undoes it.
func (t *Tree) SetLiveFlex(id WordID, flex float64) error {
	t.mu.Lock()
	w := t.findLocked(id)
	if w == nil {
		t.mu.Unlock()
		return fmt.Errorf("set flex of word %d: %w", id, ErrNoSuchWord)
	}
	w.flex = round2(flex)
	t.mu.Unlock()
	t.notify(nil)
	return nil
}

// ResetLiveFlex restores every word's live flex to its base flex.
func (t *Tree) ResetLiveFlex() {
	t.mu.Lock()
	for _, w := range t.words {
		w.flex = w.baseFlex
	}
	t.mu.Unlock()
	t.notify(nil)
}

// Highlight restores every word to its base flex and scales the live flex of
// the word at index by factor. An out of range index only restores.
func (t *Tree) Highlight(index int, factor float64) {
	t.mu.Lock()
	for i, w := range t.words {
		w.flex = w.baseFlex
		if i == index {
			w.flex = round2(w.baseFlex * factor)
		}
	}
	t.mu.Unlock()
	t.notify(nil)
}

// Clear empties the tree and unsets the cursor.
func (t *Tree) Clear() {
	t.mu.Lock()
	removed := make([]GlyphID, 0, len(t.glyphs))
	for _, w := range t.words {
		for _, g := range w.glyphs {
			removed = append(removed, g.id)
		}
	}
	t.words = nil
	t.current = nil
	t.glyphs = make(map[GlyphID]*glyph)
	t.mu.Unlock()
	t.notify(removed)
}

// Len returns the number of words.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.words)
}

// GlyphCount returns the number of glyphs across all words.
func (t *Tree) GlyphCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.glyphs)
}

// GlyphView is a read-only copy of one glyph.
type GlyphView struct {
	ID       GlyphID
	Code     string
	Flex     float64
	Resolved bool
}

// WordView is a read-only copy of one word.
type WordView struct {
	ID       WordID
	Flex     float64
	BaseFlex float64
	Current  bool
	Glyphs   []GlyphView
}

// Snapshot copies the tree for a renderer.
func (t *Tree) Snapshot() []WordView {
	t.mu.RLock()
	defer t.mu.RUnlock()
	views := make([]WordView, 0, len(t.words))
	for _, w := range t.words {
		v := WordView{
			ID:       w.id,
			Flex:     w.flex,
			BaseFlex: w.baseFlex,
			Current:  w == t.current,
			Glyphs:   make([]GlyphView, 0, len(w.glyphs)),
		}
		for _, g := range w.glyphs {
			v.Glyphs = append(v.Glyphs, GlyphView{ID: g.id, Code: g.code, Flex: g.flex(), Resolved: g.resolved})
		}
		views = append(views, v)
	}
	return views
}

// Text renders the glyph codes with one space between words.
func (t *Tree) Text() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	parts := make([]string, len(t.words))
	for i, w := range t.words {
		var b strings.Builder
		for _, g := range w.glyphs {
			b.WriteString(g.code)
		}
		parts[i] = b.String()
	}
	return strings.Join(parts, " ")
}

func (t *Tree) findLocked(id WordID) *word {
	for _, w := range t.words {
		if w.id == id {
			return w
		}
	}
	return nil
}

func (t *Tree) notify(removed []GlyphID) {
	t.mu.RLock()
	obs := make([]Observer, len(t.observers))
	copy(obs, t.observers)
	t.mu.RUnlock()

	for _, o := range obs {
		for _, id := range removed {
			o.GlyphRemoved(id)
		}
		o.TreeChanged()
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
