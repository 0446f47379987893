package ime

import (
	"sync"
	"unicode"
)

// Action tells the caller what to do with the tree after a keystroke.
type Action int

const (
	// ActionNone means nothing happened.
	ActionNone Action = iota
	// ActionEmit means append Char as a new glyph.
	ActionEmit
	// ActionReplace means re-code the last glyph of the current word to Char.
	ActionReplace
	// ActionDrop means the keystroke was consumed without output.
	ActionDrop
)

func (a Action) String() string {
	switch a {
	case ActionEmit:
		return "emit"
	case ActionReplace:
		return "replace"
	case ActionDrop:
		return "drop"
	default:
		return "none"
	}
}

// Result is the outcome of feeding one character to the Composer.
type Result struct {
	Action Action
	Char   rune
}

// Composer is the Telex state machine. It holds at most one pending base
// rune: the last emitted glyph, which a following modifier or tone key may
// still rewrite.
//
// Given a lowercase ch, in priority order:
//
//  1. pending + tone key: the toned vowel replaces the last glyph if the
//     table has one, otherwise the key is dropped. Pending clears either way.
//  2. pending a, e, o or d followed by the same letter: â, ê, ô or đ
//     replaces the last glyph and stays pending.
//  3. pending a, o or u followed by w: ă, ơ or ư replaces the last glyph and
//     stays pending.
//  4. otherwise ch is emitted, and becomes pending if it is a, e, i, o, u, y
//     or d.
type Composer struct {
	mu         sync.Mutex
	pending    rune
	hasPending bool
}

// NewComposer returns a Composer with no pending base.
func NewComposer() *Composer {
	return &Composer{}
}

// Feed processes one character. Letters are lowercased first.
func (c *Composer) Feed(ch rune) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !unicode.IsLetter(ch) {
		c.clearLocked()
		return Result{Action: ActionEmit, Char: ch}
	}
	ch = unicode.ToLower(ch)

	if c.hasPending {
		base := c.pending
		if IsToneKey(ch) {
			c.clearLocked()
			if toned, ok := ApplyTone(base, ch); ok {
				return Result{Action: ActionReplace, Char: toned}
			}
			return Result{Action: ActionDrop}
		}
		if ch == base {
			if r, ok := doubled[base]; ok {
				c.pending = r
				return Result{Action: ActionReplace, Char: r}
			}
		}
		if ch == 'w' {
			if r, ok := wModified[base]; ok {
				c.pending = r
				return Result{Action: ActionReplace, Char: r}
			}
		}
	}

	c.clearLocked()
	if pendingEligible(ch) {
		c.pending = ch
		c.hasPending = true
	}
	return Result{Action: ActionEmit, Char: ch}
}

// Commit ends the current composition; the last glyph becomes final.
func (c *Composer) Commit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

// Reset discards composition state on a mode transition.
func (c *Composer) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

// Pending returns the pending base rune, if any.
func (c *Composer) Pending() (rune, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending, c.hasPending
}

func (c *Composer) clearLocked() {
	c.pending = 0
	c.hasPending = false
}
