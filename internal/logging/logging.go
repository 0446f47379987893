// Package logging wraps log/slog for kinetype.
//
// Every record carries a component attribute. Playback runs and vision
// requests get a run attribute so one typed caption can be followed from
// the request through its last glyph. Secrets are scrubbed in the handler:
// keys that look sensitive, values that look like OpenAI keys, and inline
// image data URLs never reach the output.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level is a slog level.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Format selects the slog handler.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// Config holds the logging configuration.
type Config struct {
	Level  Level
	Format Format

	// Output is one of stdout, stderr, file, both (stderr and file) or
	// discard. The terminal UI forces file.
	Output string

	// Writer overrides Output when set.
	Writer io.Writer

	FilePath   string
	MaxSize    int64 // megabytes
	MaxAge     int   // days
	MaxBackups int
	Compress   bool

	AddSource bool

	// Component tags every record and prefixes run IDs.
	Component string
}

// DefaultConfig logs text at info level to stderr.
func DefaultConfig() *Config {
	return &Config{
		Level:      LevelInfo,
		Format:     FormatText,
		Output:     "stderr",
		FilePath:   defaultLogPath(),
		MaxSize:    10,
		MaxAge:     14,
		MaxBackups: 3,
		Compress:   true,
		Component:  "kinetype",
	}
}

func defaultLogPath() string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Logs", "kinetype", "kinetype.log")
	case "windows":
		dir := os.Getenv("LOCALAPPDATA")
		if dir == "" {
			dir = os.Getenv("APPDATA")
		}
		return filepath.Join(dir, "kinetype", "logs", "kinetype.log")
	}
	state := os.Getenv("XDG_STATE_HOME")
	if state == "" {
		state = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(state, "kinetype", "kinetype.log")
}

// sink is the output shared by a root logger and everything derived from it.
type sink struct {
	mu      sync.Mutex
	rotator *FileRotator
	prefix  string
	runs    atomic.Uint64
}

// Logger is a slog.Logger bound to a sink.
type Logger struct {
	*slog.Logger
	sink *sink
}

// SetDefault installs l as the slog default.
func SetDefault(l *Logger) {
	slog.SetDefault(l.Logger)
}

// Nop returns a logger that writes nowhere.
func Nop() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: LevelError})),
		sink:   &sink{prefix: "nop"},
	}
}

// New builds a logger from cfg. A nil cfg means DefaultConfig.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	s := &sink{prefix: cfg.Component}
	if s.prefix == "" {
		s.prefix = "kinetype"
	}

	w, err := s.open(cfg)
	if err != nil {
		return nil, fmt.Errorf("setup log output: %w", err)
	}

	opts := &slog.HandlerOptions{
		Level:       cfg.Level,
		AddSource:   cfg.AddSource,
		ReplaceAttr: scrub,
	}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if cfg.Format == FormatJSON {
		h = slog.NewJSONHandler(w, opts)
	}
	if cfg.Component != "" {
		h = h.WithAttrs([]slog.Attr{slog.String("component", cfg.Component)})
	}
	return &Logger{Logger: slog.New(h), sink: s}, nil
}

func (s *sink) open(cfg *Config) (io.Writer, error) {
	if cfg.Writer != nil {
		return cfg.Writer, nil
	}
	out := strings.ToLower(cfg.Output)
	switch out {
	case "stdout":
		return os.Stdout, nil
	case "discard":
		return io.Discard, nil
	case "file", "both":
		r, err := NewFileRotator(cfg)
		if err != nil {
			return nil, err
		}
		s.rotator = r
		if out == "both" {
			return io.MultiWriter(os.Stderr, r), nil
		}
		return r, nil
	}
	return os.Stderr, nil
}

var sensitiveKeys = []string{
	"password", "secret", "token", "api_key", "apikey",
	"credential", "private", "auth", "cookie", "bearer",
}

func shouldRedact(key string) bool {
	key = strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

// scrub is the handler's ReplaceAttr.
func scrub(_ []string, a slog.Attr) slog.Attr {
	if shouldRedact(a.Key) {
		return slog.String(a.Key, "[REDACTED]")
	}
	if a.Value.Kind() != slog.KindString {
		return a
	}
	v := a.Value.String()
	switch {
	case strings.HasPrefix(v, "sk-"):
		return slog.String(a.Key, "[REDACTED]")
	case strings.HasPrefix(v, "data:image/"):
		return slog.String(a.Key, fmt.Sprintf("[image data %d bytes]", len(v)))
	}
	return a
}

// WithComponent returns a logger whose component attribute is name.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("component", name)), sink: l.sink}
}

// WithRun tags records with a run ID from NewRunID.
func (l *Logger) WithRun(id string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("run", id)), sink: l.sink}
}

// NewRunID returns an ID unique across every logger sharing l's sink.
func (l *Logger) NewRunID() string {
	n := l.sink.runs.Add(1)
	return fmt.Sprintf("%s-%d-%d", l.sink.prefix, time.Now().UnixNano(), n)
}

// Sync flushes the log file, if any.
func (l *Logger) Sync() error {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	if l.sink.rotator == nil {
		return nil
	}
	return l.sink.rotator.Sync()
}

// Close closes the log file, if any. Derived loggers share it.
func (l *Logger) Close() error {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	if l.sink.rotator == nil {
		return nil
	}
	return l.sink.rotator.Close()
}

// ParseLevel accepts debug, info, warn (or warning) and error.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level: %q", s)
}

// LevelString is the inverse of ParseLevel. Unknown levels print as info.
func LevelString(level Level) string {
	switch level {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	}
	return "info"
}

// ParseFormat accepts text (the default when empty) and json.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	}
	return FormatText, fmt.Errorf("unknown log format: %q", s)
}
