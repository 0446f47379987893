package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// ErrInvalidConfig is matched by every ValidationErrors.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError is one problem with one field. Warnings describe a
// degraded but usable setup: missing glyph art, no API key.
type ValidationError struct {
	Field   string
	Message string
	Warning bool
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// IsWarning reports whether e alone would not fail validation.
func (e *ValidationError) IsWarning() bool { return e.Warning }

// ValidationErrors is every problem found by Check.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i := range e {
		msgs[i] = e[i].Error()
	}
	return strings.Join(msgs, "; ")
}

func (e ValidationErrors) Unwrap() error { return ErrInvalidConfig }

// Warnings returns the warning-level entries.
func (e ValidationErrors) Warnings() ValidationErrors { return e.filter(true) }

// Errors returns the entries that fail validation.
func (e ValidationErrors) Errors() ValidationErrors { return e.filter(false) }

// HasErrors reports whether any entry fails validation.
func (e ValidationErrors) HasErrors() bool { return len(e.Errors()) > 0 }

func (e ValidationErrors) filter(warning bool) ValidationErrors {
	var out ValidationErrors
	for _, v := range e {
		if v.Warning == warning {
			out = append(out, v)
		}
	}
	return out
}

// ValidateConfig returns a ValidationErrors when c has any error-level
// problem. Warnings alone pass.
func ValidateConfig(c *Config) error {
	if errs := Check(c); errs.HasErrors() {
		return errs
	}
	return nil
}

// Check returns every problem with c, warnings included.
func Check(c *Config) ValidationErrors {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var k checker
	if c.Version < 1 || c.Version > Version {
		k.fail("version", "unsupported version %d (current: %d)", c.Version, Version)
	}
	k.typing(&c.Typing)
	k.glyphs(&c.Glyphs)
	k.vision(&c.Vision)
	k.animation(&c.Animation)
	k.theme(&c.Theme)
	k.logging(&c.Logging)
	return k.errs
}

type checker struct {
	errs ValidationErrors
}

func (k *checker) fail(field, format string, args ...any) {
	k.errs = append(k.errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (k *checker) warn(field, format string, args ...any) {
	k.errs = append(k.errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Warning: true})
}

func (k *checker) between(field string, v, lo, hi int) {
	if v < lo || v > hi {
		k.fail(field, "value %d must be between %d and %d", v, lo, hi)
	}
}

func (k *checker) positive(field string, v float64) {
	if v <= 0 {
		k.fail(field, "factor must be positive")
	}
}

func (k *checker) oneOf(field, v string, valid ...string) {
	if !slices.Contains(valid, v) {
		k.fail(field, "invalid value %q (valid: %s)", v, strings.Join(valid, ", "))
	}
}

func (k *checker) typing(t *TypingConfig) {
	k.between("typing.char_delay_ms", t.CharDelayMs, 1, 10000)
	k.between("typing.space_delay_ms", t.SpaceDelayMs, 0, 10000)
	k.between("typing.teardown_tick_ms", t.TeardownTickMs, 0, 5000)
	k.oneOf("typing.enter_policy", t.EnterPolicy, EnterSequential, EnterClear)
}

func (k *checker) glyphs(g *GlyphsConfig) {
	switch info, err := os.Stat(expandPath(g.AssetDir)); {
	case g.AssetDir == "":
		k.fail("glyphs.asset_dir", "required field is missing")
	case err != nil || !info.IsDir():
		// Every glyph falls back to flex 1 until the directory appears.
		k.warn("glyphs.asset_dir", "asset directory %s is not readable", g.AssetDir)
	}
	if g.CachePath != "" && filepath.Ext(g.CachePath) == "" {
		k.fail("glyphs.cache_path", "cache path should name a database file")
	}
	k.between("glyphs.resolve_timeout_ms", g.ResolveTimeoutMs, 1, 60000)
	if g.Watch {
		k.between("glyphs.settle_ms", g.SettleMs, 10, 10000)
	}
}

func (k *checker) vision(v *VisionConfig) {
	if u, err := url.Parse(v.BaseURL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		k.fail("vision.base_url", "invalid URL: %q", v.BaseURL)
	}
	if v.Model == "" {
		k.fail("vision.model", "required field is missing")
	}
	k.between("vision.max_tokens", v.MaxTokens, 1, 4096)
	k.between("vision.timeout_sec", v.TimeoutSec, 1, 600)
	if v.MaxImageBytes < 1 {
		k.fail("vision.max_image_bytes", "max image size must be positive")
	}
	if v.DemoDelayMs < 0 {
		k.fail("vision.demo_delay_ms", "demo delay cannot be negative")
	}
	if v.APIKey == "" {
		k.warn("vision.api_key", "no API key; captions come from the demo provider")
	}
}

func (k *checker) animation(a *AnimationConfig) {
	if a.IntervalMs < 10 {
		k.fail("animation.interval_ms", "interval must be at least 10ms")
	}
	k.positive("animation.sequential_factor", a.SequentialFactor)
	k.positive("animation.noise_factor", a.NoiseFactor)
}

func (k *checker) theme(t *ThemeConfig) {
	s := t.Background
	if s == "" {
		return
	}
	if len(s) != 7 || s[0] != '#' {
		k.fail("theme.background", "expected #RRGGBB, got %q", s)
		return
	}
	if _, err := strconv.ParseUint(s[1:], 16, 32); err != nil {
		k.fail("theme.background", "expected #RRGGBB, got %q", s)
	}
}

func (k *checker) logging(l *LoggingConfig) {
	k.oneOf("logging.level", l.Level, "debug", "info", "warn", "error")
	k.oneOf("logging.format", l.Format, "text", "json")
	k.oneOf("logging.output", l.Output, "stdout", "stderr", "file", "both", "discard")
	if (l.Output == "file" || l.Output == "both") && l.FilePath == "" {
		k.fail("logging.file_path", "file path is required when output is %q", l.Output)
	}
	if l.MaxSizeMB < 1 {
		k.fail("logging.max_size_mb", "max size must be at least 1 MB")
	}
	if l.MaxBackups < 0 {
		k.fail("logging.max_backups", "max backups cannot be negative")
	}
	if l.MaxAgeDays < 0 {
		k.fail("logging.max_age_days", "max age cannot be negative")
	}
}

func expandPath(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
