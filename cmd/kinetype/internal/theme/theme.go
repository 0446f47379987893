package theme

import (
	"image/color"
	"runtime"

	"gioui.org/unit"
	"gioui.org/widget/material"

	surfacetheme "kinetype/internal/theme"
)

// Palette is the surface palette converted for painting.
type Palette struct {
	Background color.NRGBA
	Foreground color.NRGBA
	Cursor     color.NRGBA
	Status     color.NRGBA
	Error      color.NRGBA
}

// Config defines the system metrics.
type Config struct {
	Padding    unit.Dp
	Cursor     unit.Dp
	GlyphScale float32 // glyph text height as a share of the row
	FontStatus unit.Sp
}

// Theme wraps the material theme with system-specific styling.
type Theme struct {
	*material.Theme
	Config Config
}

// NewTheme creates a new theme based on the current OS.
func NewTheme(mtheme *material.Theme) *Theme {
	t := &Theme{
		Theme: mtheme,
	}

	if runtime.GOOS == "darwin" {
		setupMacOSTheme(t)
	} else {
		setupDefaultTheme(t)
	}

	return t
}

// Colors converts p. Colors that fail to parse fall back to black on white.
func (t *Theme) Colors(p surfacetheme.Palette) Palette {
	bg := nrgba(p.Background, color.NRGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF})
	fg := nrgba(p.Foreground, color.NRGBA{A: 0xFF})
	status := fg
	status.A = 0xB0
	return Palette{
		Background: bg,
		Foreground: fg,
		Cursor:     fg,
		Status:     status,
		Error:      color.NRGBA{R: 0xE8, G: 0x11, B: 0x23, A: 0xFF},
	}
}

func nrgba(hex string, fallback color.NRGBA) color.NRGBA {
	r, g, b, err := surfacetheme.RGB(hex)
	if err != nil {
		return fallback
	}
	return color.NRGBA{R: r, G: g, B: b, A: 0xFF}
}

func setupDefaultTheme(t *Theme) {
	t.Config = Config{
		Padding:    unit.Dp(16),
		Cursor:     unit.Dp(4),
		GlyphScale: 0.6,
		FontStatus: unit.Sp(13),
	}
}

func setupMacOSTheme(t *Theme) {
	t.Config = Config{
		Padding:    unit.Dp(20),
		Cursor:     unit.Dp(3),
		GlyphScale: 0.6,
		FontStatus: unit.Sp(12), // macOS system font is slightly smaller
	}
}
