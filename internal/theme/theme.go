// Package theme picks the surface colors.
package theme

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"

	"kinetype/internal/domain"
)

// Background and foreground choices, as #RRGGBB.
var (
	Backgrounds = []string{"#FF0000", "#FFFF00", "#0000FF"}
	Foregrounds = []string{"#000000", "#FFFFFF"}
)

// Palette is one color assignment.
type Palette struct {
	Background string
	Foreground string
}

// Option configures a Theme.
type Option func(*Theme)

// WithPicker replaces the random choice; pick returns an index below n.
func WithPicker(pick func(n int) int) Option {
	return func(t *Theme) { t.pick = pick }
}

// WithBackground locks the background to hex. An invalid color leaves the
// background unlocked.
func WithBackground(hex string) Option {
	return func(t *Theme) { _ = t.SetBackground(hex) }
}

// Theme holds the current palette. A user-chosen background survives
// re-rolls; the foreground is always re-rolled.
type Theme struct {
	mu      sync.Mutex
	pick    func(n int) int
	palette Palette
	locked  bool
}

// New returns a theme with a freshly rolled palette.
func New(opts ...Option) *Theme {
	t := &Theme{pick: rand.IntN}
	for _, o := range opts {
		o(t)
	}
	t.Roll()
	return t
}

// Palette returns the current palette.
func (t *Theme) Palette() Palette {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.palette
}

// Locked reports whether the background was chosen by the user.
func (t *Theme) Locked() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.locked
}

// Roll picks a new foreground, and a new background unless it is locked.
func (t *Theme) Roll() Palette {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.locked || t.palette.Background == "" {
		t.palette.Background = Backgrounds[t.pick(len(Backgrounds))]
	}
	t.palette.Foreground = Foregrounds[t.pick(len(Foregrounds))]
	return t.palette
}

// SetBackground locks the background to hex.
func (t *Theme) SetBackground(hex string) error {
	norm, err := normalize(hex)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.palette.Background = norm
	t.locked = true
	return nil
}

// Unlock lets the next Roll pick the background again.
func (t *Theme) Unlock() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.locked = false
}

// RGB parses #RRGGBB.
func RGB(hex string) (r, g, b uint8, err error) {
	norm, err := normalize(hex)
	if err != nil {
		return 0, 0, 0, err
	}
	v, _ := strconv.ParseUint(norm[1:], 16, 32)
	return uint8(v >> 16), uint8(v >> 8), uint8(v), nil
}

func normalize(hex string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(hex))
	if len(s) != 7 || s[0] != '#' {
		return "", fmt.Errorf("color %q: %w", hex, domain.ErrInvalidInput)
	}
	if _, err := strconv.ParseUint(s[1:], 16, 32); err != nil {
		return "", fmt.Errorf("color %q: %w", hex, domain.ErrInvalidInput)
	}
	return s, nil
}
