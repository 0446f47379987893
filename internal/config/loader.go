package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// reloadDebounce collapses bursts of editor writes into one reload.
const reloadDebounce = 100 * time.Millisecond

// codec decodes into and encodes from a Config for one file format.
type codec struct {
	name   string
	decode func([]byte, *Config) error
	encode func(*Config) ([]byte, error)
}

var (
	tomlCodec = codec{
		name: "TOML",
		decode: func(b []byte, c *Config) error {
			_, err := toml.Decode(string(b), c)
			return err
		},
		encode: func(c *Config) ([]byte, error) {
			var buf bytes.Buffer
			err := toml.NewEncoder(&buf).Encode(c)
			return buf.Bytes(), err
		},
	}
	jsonCodec = codec{
		name:   "JSON",
		decode: func(b []byte, c *Config) error { return json.Unmarshal(b, c) },
		encode: func(c *Config) ([]byte, error) { return json.MarshalIndent(c, "", "  ") },
	}
	yamlCodec = codec{
		name:   "YAML",
		decode: func(b []byte, c *Config) error { return yaml.Unmarshal(b, c) },
		encode: func(c *Config) ([]byte, error) { return yaml.Marshal(c) },
	}
)

// codecFor picks the codec by extension. ok is false for unknown
// extensions, which load by trying every codec and save as TOML.
func codecFor(path string) (c codec, ok bool) {
	switch filepath.Ext(path) {
	case ".toml":
		return tomlCodec, true
	case ".json":
		return jsonCodec, true
	case ".yaml", ".yml":
		return yamlCodec, true
	}
	return tomlCodec, false
}

// loadConfigFromFile decodes path over the defaults. A missing file yields
// the defaults.
func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if c, ok := codecFor(path); ok {
		cfg := DefaultConfig()
		if err := c.decode(data, cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", c.name, err)
		}
		return cfg, nil
	}
	for _, c := range []codec{tomlCodec, jsonCodec, yamlCodec} {
		cfg := DefaultConfig()
		if c.decode(data, cfg) == nil {
			return cfg, nil
		}
	}
	return nil, fmt.Errorf("parse config %s: not TOML, JSON or YAML", path)
}

// SaveConfig writes cfg to path in the format its extension names. The API
// key is never written; it belongs in the environment.
func SaveConfig(cfg *Config, path string) error {
	out := cfg.Clone()
	out.Vision.APIKey = ""

	c, _ := codecFor(path)
	data, err := c.encode(out)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// LoadOrCreate loads path, first writing the defaults there if it does not
// exist. created reports whether the file was written.
func LoadOrCreate(path string) (cfg *Config, created bool, err error) {
	if path == "" {
		path = ConfigPath()
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg = DefaultConfig()
		if err := SaveConfig(cfg, path); err != nil {
			return nil, false, fmt.Errorf("create default config: %w", err)
		}
		cfg.ApplyEnvOverrides()
		return cfg, true, nil
	}
	cfg, err = NewLoader(path).Load()
	return cfg, false, err
}

// Loader owns one config file: it loads it, watches it and hands every
// valid revision to the OnChange callbacks. Invalid revisions are reported
// on Errors and never replace the current config.
type Loader struct {
	path string

	mu        sync.RWMutex
	current   *Config
	listeners []func(*Config)

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	errs    chan error
}

// NewLoader creates a loader for path, or ConfigPath when path is empty.
func NewLoader(path string) *Loader {
	if path == "" {
		path = ConfigPath()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Loader{path: path, ctx: ctx, cancel: cancel, errs: make(chan error, 1)}
}

// Path returns the file the loader reads.
func (l *Loader) Path() string { return l.path }

// read decodes, applies the environment and validates.
func (l *Loader) read() (*Config, error) {
	cfg, err := loadConfigFromFile(l.path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

// Load reads the file and makes it the current config.
func (l *Loader) Load() (*Config, error) {
	cfg, err := l.read()
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = cfg
	l.mu.Unlock()
	return cfg, nil
}

// Config returns the last valid config, or nil before the first Load.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers fn for every valid reload.
func (l *Loader) OnChange(fn func(*Config)) {
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

// Errors delivers reload failures. Failures are dropped while one is unread.
func (l *Loader) Errors() <-chan error { return l.errs }

// Watch reloads the file whenever it is written. The directory is watched
// so editors that save by rename are still seen.
func (l *Loader) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(l.path)); err != nil {
		w.Close()
		return fmt.Errorf("watch directory: %w", err)
	}
	l.watcher = w
	go l.watch(w)
	return nil
}

func (l *Loader) watch(w *fsnotify.Watcher) {
	name := filepath.Base(l.path)
	var pending *time.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()

	for {
		select {
		case <-l.ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(reloadDebounce, l.reload)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			l.report(err)
		}
	}
}

func (l *Loader) reload() {
	if l.ctx.Err() != nil {
		return
	}
	cfg, err := l.read()
	if err != nil {
		l.report(fmt.Errorf("reload %s: %w", l.path, err))
		return
	}

	l.mu.Lock()
	l.current = cfg
	listeners := append([]func(*Config){}, l.listeners...)
	l.mu.Unlock()

	for _, fn := range listeners {
		fn(cfg)
	}
}

func (l *Loader) report(err error) {
	select {
	case l.errs <- err:
	default:
	}
}

// Close stops watching.
func (l *Loader) Close() error {
	l.cancel()
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}

// Merge returns a copy of dst with every non-zero field of src applied.
// Booleans are not merged; zero cannot be told apart from unset.
func Merge(dst, src *Config) *Config {
	out := dst.Clone()

	setInt(&out.Version, src.Version)

	setInt(&out.Typing.CharDelayMs, src.Typing.CharDelayMs)
	setInt(&out.Typing.SpaceDelayMs, src.Typing.SpaceDelayMs)
	setInt(&out.Typing.TeardownTickMs, src.Typing.TeardownTickMs)
	setString(&out.Typing.EnterPolicy, src.Typing.EnterPolicy)

	setString(&out.Glyphs.AssetDir, src.Glyphs.AssetDir)
	setString(&out.Glyphs.CachePath, src.Glyphs.CachePath)
	setInt(&out.Glyphs.ResolveTimeoutMs, src.Glyphs.ResolveTimeoutMs)
	setInt(&out.Glyphs.SettleMs, src.Glyphs.SettleMs)

	setString(&out.Vision.APIKey, src.Vision.APIKey)
	setString(&out.Vision.BaseURL, src.Vision.BaseURL)
	setString(&out.Vision.Model, src.Vision.Model)
	setInt(&out.Vision.MaxTokens, src.Vision.MaxTokens)
	setInt(&out.Vision.TimeoutSec, src.Vision.TimeoutSec)
	setInt(&out.Vision.MaxImageBytes, src.Vision.MaxImageBytes)
	setInt(&out.Vision.DemoDelayMs, src.Vision.DemoDelayMs)

	setInt(&out.Animation.IntervalMs, src.Animation.IntervalMs)
	setFloat(&out.Animation.SequentialFactor, src.Animation.SequentialFactor)
	setFloat(&out.Animation.NoiseFactor, src.Animation.NoiseFactor)

	setString(&out.Theme.Background, src.Theme.Background)

	setString(&out.Logging.Level, src.Logging.Level)
	setString(&out.Logging.Format, src.Logging.Format)
	setString(&out.Logging.Output, src.Logging.Output)
	setString(&out.Logging.FilePath, src.Logging.FilePath)
	setInt(&out.Logging.MaxSizeMB, src.Logging.MaxSizeMB)
	setInt(&out.Logging.MaxBackups, src.Logging.MaxBackups)
	setInt(&out.Logging.MaxAgeDays, src.Logging.MaxAgeDays)

	return out
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if v > 0 {
		*dst = v
	}
}

func setInt[T ~int | ~int64](dst *T, v T) {
	if v > 0 {
		*dst = v
	}
}
