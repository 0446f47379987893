// Package input arbitrates between the producers that write into the word
// tree: the raw keyboard, the Telex composer and timed playback.
//
// Every keystroke runs to completion under the router lock, so a keystroke,
// its composition step and its tree mutation are never interleaved with
// another producer.
package input

import (
	"errors"
	"fmt"
	"sync"
	"unicode"

	"kinetype/internal/domain"
	"kinetype/internal/glyph"
	"kinetype/internal/ime"
	"kinetype/internal/layout"
	"kinetype/internal/logging"
)

// Mode is the current input mode.
type Mode int

const (
	ModeIdle Mode = iota
	ModeRawKeyboard
	ModeVietnamese
	ModeAIPlayback
	ModeManualPlayback
)

func (m Mode) String() string {
	switch m {
	case ModeRawKeyboard:
		return "raw"
	case ModeVietnamese:
		return "vietnamese"
	case ModeAIPlayback:
		return "ai-playback"
	case ModeManualPlayback:
		return "manual-playback"
	default:
		return "idle"
	}
}

// Playback reports whether m is driven by the playback scheduler.
func (m Mode) Playback() bool {
	return m == ModeAIPlayback || m == ModeManualPlayback
}

// Effect is what a key did.
type Effect int

const (
	EffectNone      Effect = iota // consumed with no tree change
	EffectGlyph                   // appended a glyph
	EffectReplace                 // re-coded the last glyph
	EffectSeparator               // word boundary
	EffectDelete                  // removed a glyph or an empty word
	EffectReset                   // enter: caller applies its reset policy
	EffectIgnored                 // key not handled in this mode
	EffectRejected                // a playback run holds the cursor
)

func (e Effect) String() string {
	return [...]string{"none", "glyph", "replace", "separator", "delete", "reset", "ignored", "rejected"}[e]
}

// ErrNotPlaying is returned by Synthesize outside a playback mode.
var ErrNotPlaying = errors.New("input: no playback active")

// WidthTracker starts width resolution for a new glyph revision.
// *glyph.Tracker implements it.
type WidthTracker interface {
	Track(ref layout.GlyphRef)
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Router) { r.log = l.WithComponent("input") }
}

// WithVietnamese starts the router with the composer preferred.
func WithVietnamese(on bool) Option {
	return func(r *Router) { r.vietnamese = on }
}

// Router routes keys into the tree.
type Router struct {
	mu              sync.Mutex
	tree            *layout.Tree
	composer        *ime.Composer
	widths          WidthTracker
	log             *logging.Logger
	mode            Mode
	resume          Mode
	vietnamese      bool
	keyboardEnabled bool
}

// NewRouter returns a router writing into tree. widths may be nil.
func NewRouter(tree *layout.Tree, widths WidthTracker, opts ...Option) *Router {
	r := &Router{
		tree:            tree,
		composer:        ime.NewComposer(),
		widths:          widths,
		log:             logging.Nop(),
		keyboardEnabled: true,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Mode returns the current mode.
func (r *Router) Mode() Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

// Vietnamese reports whether the composer is selected for keyboard input.
func (r *Router) Vietnamese() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.vietnamese
}

// KeyboardEnabled reports whether keyboard events are accepted.
func (r *Router) KeyboardEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.keyboardEnabled
}

// Pending returns the composer's pending base, if any.
func (r *Router) Pending() (rune, bool) {
	return r.composer.Pending()
}

func (r *Router) keyboardModeLocked() Mode {
	if r.vietnamese {
		return ModeVietnamese
	}
	return ModeRawKeyboard
}

// SetVietnamese selects the composer or raw keyboard. It always discards
// composition state. During playback the choice applies when the run ends.
func (r *Router) SetVietnamese(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.composer.Reset()
	r.vietnamese = on
	if r.mode.Playback() {
		r.resume = r.keyboardModeLocked()
		return
	}
	prev := r.mode
	r.mode = r.keyboardModeLocked()
	r.log.Debug("mode changed", "from", prev.String(), "to", r.mode.String())
}

// SetKeyboardEnabled gates keyboard events. Playback is unaffected.
func (r *Router) SetKeyboardEnabled(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keyboardEnabled = on
}

// Reset discards composition state. Surfaces call it when the tree is
// cleared underneath the router.
func (r *Router) Reset() {
	r.composer.Reset()
}

// BeginPlayback hands the cursor to a playback run.
func (r *Router) BeginPlayback(m Mode) error {
	if !m.Playback() {
		return fmt.Errorf("begin playback in mode %s: %w", m, domain.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.mode.Playback() {
		return fmt.Errorf("begin %s during %s: %w", m, r.mode, domain.ErrPlaybackActive)
	}
	r.composer.Reset()
	r.resume = r.mode
	r.mode = m
	r.log.Debug("playback started", "mode", m.String())
	return nil
}

// EndPlayback returns the cursor to the keyboard. It is a no-op outside
// playback.
func (r *Router) EndPlayback() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.mode.Playback() {
		return
	}
	r.composer.Reset()
	r.log.Debug("playback ended", "mode", r.mode.String())
	r.mode = r.resume
	if r.mode == ModeIdle && r.vietnamese {
		r.mode = r.keyboardModeLocked()
	}
	r.resume = ModeIdle
}

// HandleKey processes one keyboard event.
func (r *Router) HandleKey(k ime.Key) Effect {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.mode.Playback() {
		return EffectRejected
	}
	if !r.keyboardEnabled {
		return EffectIgnored
	}
	if r.mode == ModeIdle {
		r.mode = r.keyboardModeLocked()
	}

	switch {
	case k.Shortcut():
		return EffectIgnored
	case k.IsSpace():
		return r.separatorLocked()
	case k.IsBackspace():
		return r.backspaceLocked()
	case k.IsEnter():
		r.composer.Commit()
		return EffectReset
	case !k.Printable():
		return EffectIgnored
	}

	if r.mode == ModeVietnamese && isLetter(k.Char) {
		return r.composeLocked(k.Char)
	}

	// Raw keys, and non-letters in Vietnamese mode, must be in the key map.
	code := glyph.Canonical(k.Char)
	if !Renderable(code) {
		return EffectIgnored
	}
	r.composer.Commit()
	return r.emitLocked(code)
}

// Synthesize feeds one playback character. Space is the word separator;
// everything else is emitted, through the composer when Vietnamese is
// selected. The keyboard gate does not apply.
func (r *Router) Synthesize(ch rune) (Effect, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.mode.Playback() {
		return EffectNone, ErrNotPlaying
	}
	if ch == ' ' {
		return r.separatorLocked(), nil
	}
	if r.vietnamese && isLetter(ch) {
		return r.composeLocked(ch), nil
	}
	r.composer.Commit()
	return r.emitLocked(glyph.Canonical(ch)), nil
}

func (r *Router) separatorLocked() Effect {
	r.composer.Commit()
	r.tree.CreateWord()
	return EffectSeparator
}

func (r *Router) backspaceLocked() Effect {
	r.composer.Commit()
	cur, ok := r.tree.Current()
	if !ok {
		return EffectNone
	}
	if r.tree.RemoveLastGlyph(cur) || r.tree.DiscardEmpty(cur) {
		return EffectDelete
	}
	return EffectNone
}

func (r *Router) composeLocked(ch rune) Effect {
	res := r.composer.Feed(ch)
	switch res.Action {
	case ime.ActionEmit:
		return r.emitLocked(glyph.Canonical(res.Char))
	case ime.ActionReplace:
		return r.replaceLocked(glyph.Canonical(res.Char))
	default:
		return EffectNone
	}
}

func (r *Router) emitLocked(code string) Effect {
	cur := r.tree.EnsureWord()
	ref, err := r.tree.AppendGlyph(cur, code)
	if err != nil {
		r.log.Error("append glyph failed", "code", code, "error", err)
		return EffectNone
	}
	r.track(ref)
	return EffectGlyph
}

func (r *Router) replaceLocked(code string) Effect {
	cur, ok := r.tree.Current()
	if !ok {
		r.composer.Reset()
		return r.emitLocked(code)
	}
	ref, err := r.tree.ReplaceLastGlyph(cur, code)
	if err != nil {
		// The pending glyph went away underneath the composer.
		r.log.Debug("replace fell back to emit", "code", code, "error", err)
		r.composer.Reset()
		return r.emitLocked(code)
	}
	r.track(ref)
	return EffectReplace
}

func (r *Router) track(ref layout.GlyphRef) {
	if r.widths != nil {
		r.widths.Track(ref)
	}
}

func isLetter(ch rune) bool {
	return unicode.IsLetter(ch)
}
