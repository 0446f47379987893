// Package config handles configuration loading, validation, and management for kinetype.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"kinetype/internal/logging"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete application configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Typing configuration for keyboard input and playback.
	Typing TypingConfig `toml:"typing" json:"typing" yaml:"typing"`

	// Glyphs configuration for assets and width resolution.
	Glyphs GlyphsConfig `toml:"glyphs" json:"glyphs" yaml:"glyphs"`

	// Vision configuration for image captioning.
	Vision VisionConfig `toml:"vision" json:"vision" yaml:"vision"`

	// Animation configuration for the highlight loops.
	Animation AnimationConfig `toml:"animation" json:"animation" yaml:"animation"`

	// Theme configuration for surface colors.
	Theme ThemeConfig `toml:"theme" json:"theme" yaml:"theme"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// mu protects concurrent access to the config.
	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// Enter policies.
const (
	EnterSequential = "sequential"
	EnterClear      = "clear"
)

// TypingConfig holds input and playback configuration.
type TypingConfig struct {
	// Vietnamese starts the keyboard in Telex composition mode.
	Vietnamese bool `toml:"vietnamese" json:"vietnamese" yaml:"vietnamese"`

	// CharDelayMs is the playback pause after each character.
	CharDelayMs int `toml:"char_delay_ms" json:"char_delay_ms" yaml:"char_delay_ms"`

	// SpaceDelayMs is the playback pause after each word separator.
	SpaceDelayMs int `toml:"space_delay_ms" json:"space_delay_ms" yaml:"space_delay_ms"`

	// TeardownTickMs is the interval between removals when Enter clears the surface.
	TeardownTickMs int `toml:"teardown_tick_ms" json:"teardown_tick_ms" yaml:"teardown_tick_ms"`

	// EnterPolicy is "sequential" (animated teardown) or "clear".
	EnterPolicy string `toml:"enter_policy" json:"enter_policy" yaml:"enter_policy"`
}

// GlyphsConfig holds glyph asset configuration.
type GlyphsConfig struct {
	// AssetDir is the directory holding one SVG per glyph.
	AssetDir string `toml:"asset_dir" json:"asset_dir" yaml:"asset_dir"`

	// CachePath is the SQLite width cache. Empty disables the persistent cache.
	CachePath string `toml:"cache_path" json:"cache_path" yaml:"cache_path"`

	// ResolveTimeoutMs bounds a single width lookup.
	ResolveTimeoutMs int `toml:"resolve_timeout_ms" json:"resolve_timeout_ms" yaml:"resolve_timeout_ms"`

	// Watch enables asset hot reload.
	Watch bool `toml:"watch" json:"watch" yaml:"watch"`

	// SettleMs is how long an asset must be quiet before it is reloaded.
	SettleMs int `toml:"settle_ms" json:"settle_ms" yaml:"settle_ms"`
}

// VisionConfig holds image captioning configuration.
type VisionConfig struct {
	// APIKey is the OpenAI key. Empty selects the demo provider.
	APIKey string `toml:"api_key" json:"api_key" yaml:"api_key"`

	// BaseURL is the API root.
	BaseURL string `toml:"base_url" json:"base_url" yaml:"base_url"`

	// Model is the chat model.
	Model string `toml:"model" json:"model" yaml:"model"`

	// MaxTokens bounds the caption length.
	MaxTokens int `toml:"max_tokens" json:"max_tokens" yaml:"max_tokens"`

	// TimeoutSec is the HTTP timeout.
	TimeoutSec int `toml:"timeout_sec" json:"timeout_sec" yaml:"timeout_sec"`

	// Preflight checks connectivity before uploading an image.
	Preflight bool `toml:"preflight" json:"preflight" yaml:"preflight"`

	// MaxImageBytes is the upload limit.
	MaxImageBytes int64 `toml:"max_image_bytes" json:"max_image_bytes" yaml:"max_image_bytes"`

	// DemoDelayMs is the simulated latency of the demo provider.
	DemoDelayMs int `toml:"demo_delay_ms" json:"demo_delay_ms" yaml:"demo_delay_ms"`
}

// AnimationConfig holds highlight loop configuration.
type AnimationConfig struct {
	// IntervalMs is the time between highlight steps.
	IntervalMs int `toml:"interval_ms" json:"interval_ms" yaml:"interval_ms"`

	// SequentialFactor scales the highlighted word in the sequential loop.
	SequentialFactor float64 `toml:"sequential_factor" json:"sequential_factor" yaml:"sequential_factor"`

	// NoiseFactor scales the highlighted word in the noise loop.
	NoiseFactor float64 `toml:"noise_factor" json:"noise_factor" yaml:"noise_factor"`
}

// ThemeConfig holds color configuration.
type ThemeConfig struct {
	// Background locks the background color (#RRGGBB). Empty rolls it.
	Background string `toml:"background" json:"background" yaml:"background"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: text or json.
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is stdout, stderr, file, both, or discard.
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the log file path (when output includes file).
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of old log files to retain.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// MaxAgeDays is the maximum age of log files to retain.
	MaxAgeDays int `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`

	// Compress determines whether to compress rotated logs.
	Compress bool `toml:"compress" json:"compress" yaml:"compress"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dir := KinetypeDir()
	return &Config{
		Version: Version,
		Typing: TypingConfig{
			Vietnamese:     false,
			CharDelayMs:    250,
			SpaceDelayMs:   100,
			TeardownTickMs: 50,
			EnterPolicy:    EnterSequential,
		},
		Glyphs: GlyphsConfig{
			AssetDir:         "chars",
			CachePath:        filepath.Join(dir, "glyphs.db"),
			ResolveTimeoutMs: 5000,
			Watch:            true,
			SettleMs:         200,
		},
		Vision: VisionConfig{
			BaseURL:       "https://api.openai.com/v1",
			Model:         "gpt-4o",
			MaxTokens:     20,
			TimeoutSec:    30,
			Preflight:     true,
			MaxImageBytes: 5 * 1024 * 1024,
			DemoDelayMs:   2000,
		},
		Animation: AnimationConfig{
			IntervalMs:       1000,
			SequentialFactor: 60,
			NoiseFactor:      20,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(dir, "kinetype.log"),
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(KinetypeDir(), "config.toml")
}

// Load reads configuration from the specified path.
// If the file doesn't exist, returns default configuration.
// Supports TOML, JSON, and YAML formats based on file extension.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}

	// Apply environment variable overrides
	cfg.ApplyEnvOverrides()

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories the configured files live in.
func (c *Config) EnsureDirectories() error {
	c.mu.RLock()
	dirs := []string{}
	if c.Glyphs.CachePath != "" {
		dirs = append(dirs, filepath.Dir(expandPath(c.Glyphs.CachePath)))
	}
	if c.Logging.FilePath != "" {
		dirs = append(dirs, filepath.Dir(expandPath(c.Logging.FilePath)))
	}
	c.mu.RUnlock()

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}

// KinetypeDir returns the base data directory.
// Uses platform-specific paths or the KINETYPE_DATA_DIR environment override.
func KinetypeDir() string {
	if envDir := os.Getenv("KINETYPE_DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with KINETYPE_ and use underscores. The
// API key additionally falls back to OPENAI_API_KEY.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Typing overrides
	if v := os.Getenv("KINETYPE_VIETNAMESE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Typing.Vietnamese = b
		}
	}
	if v := os.Getenv("KINETYPE_ENTER_POLICY"); v != "" {
		c.Typing.EnterPolicy = strings.ToLower(v)
	}

	// Glyph overrides
	if v := os.Getenv("KINETYPE_ASSET_DIR"); v != "" {
		c.Glyphs.AssetDir = v
	}
	if v := os.Getenv("KINETYPE_CACHE_PATH"); v != "" {
		c.Glyphs.CachePath = v
	}

	// Vision credentials from env (for security)
	if v := os.Getenv("KINETYPE_OPENAI_API_KEY"); v != "" {
		c.Vision.APIKey = v
	} else if c.Vision.APIKey == "" {
		c.Vision.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if v := os.Getenv("KINETYPE_VISION_BASE_URL"); v != "" {
		c.Vision.BaseURL = v
	}

	// Theme overrides
	if v := os.Getenv("KINETYPE_BACKGROUND"); v != "" {
		c.Theme.Background = v
	}

	// Logging overrides
	if v := os.Getenv("KINETYPE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("KINETYPE_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return &Config{
		Version:   c.Version,
		Typing:    c.Typing,
		Glyphs:    c.Glyphs,
		Vision:    c.Vision,
		Animation: c.Animation,
		Theme:     c.Theme,
		Logging:   c.Logging,
	}
}

// CharDelay returns the playback character pause.
func (t TypingConfig) CharDelay() time.Duration {
	return time.Duration(t.CharDelayMs) * time.Millisecond
}

// SpaceDelay returns the playback separator pause.
func (t TypingConfig) SpaceDelay() time.Duration {
	return time.Duration(t.SpaceDelayMs) * time.Millisecond
}

// TeardownTick returns the sequential delete interval.
func (t TypingConfig) TeardownTick() time.Duration {
	return time.Duration(t.TeardownTickMs) * time.Millisecond
}

// ResolveTimeout returns the width lookup bound.
func (g GlyphsConfig) ResolveTimeout() time.Duration {
	return time.Duration(g.ResolveTimeoutMs) * time.Millisecond
}

// Settle returns the asset debounce interval.
func (g GlyphsConfig) Settle() time.Duration {
	return time.Duration(g.SettleMs) * time.Millisecond
}

// AssetPath returns the asset directory with ~ expanded.
func (g GlyphsConfig) AssetPath() string {
	return expandPath(g.AssetDir)
}

// Timeout returns the HTTP timeout.
func (v VisionConfig) Timeout() time.Duration {
	return time.Duration(v.TimeoutSec) * time.Second
}

// DemoDelay returns the demo provider latency.
func (v VisionConfig) DemoDelay() time.Duration {
	return time.Duration(v.DemoDelayMs) * time.Millisecond
}

// Interval returns the highlight step interval.
func (a AnimationConfig) Interval() time.Duration {
	return time.Duration(a.IntervalMs) * time.Millisecond
}

// LoggerConfig converts the section to a logging configuration.
func (l LoggingConfig) LoggerConfig() (*logging.Config, error) {
	level, err := logging.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(l.Format)
	if err != nil {
		return nil, err
	}
	return &logging.Config{
		Level:      level,
		Format:     format,
		Output:     l.Output,
		FilePath:   expandPath(l.FilePath),
		MaxSize:    int64(l.MaxSizeMB),
		MaxAge:     l.MaxAgeDays,
		MaxBackups: l.MaxBackups,
		Compress:   l.Compress,
		Component:  "kinetype",
	}, nil
}
