package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("KINETYPE_DATA_DIR", dir)
	t.Setenv("KINETYPE_OPENAI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("KINETYPE_VIETNAMESE", "")
	t.Setenv("KINETYPE_ASSET_DIR", "")
	t.Setenv("KINETYPE_LOG_LEVEL", "")
	return dir
}

func TestDefaultConfig(t *testing.T) {
	dir := isolate(t)
	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}

	if cfg.Typing.CharDelay() != 250*time.Millisecond {
		t.Errorf("expected char delay 250ms, got %v", cfg.Typing.CharDelay())
	}
	if cfg.Typing.SpaceDelay() != 100*time.Millisecond {
		t.Errorf("expected space delay 100ms, got %v", cfg.Typing.SpaceDelay())
	}
	if cfg.Typing.TeardownTick() != 50*time.Millisecond {
		t.Errorf("expected teardown tick 50ms, got %v", cfg.Typing.TeardownTick())
	}
	if cfg.Typing.EnterPolicy != EnterSequential {
		t.Errorf("expected sequential enter policy, got %s", cfg.Typing.EnterPolicy)
	}
	if cfg.Vision.Model != "gpt-4o" || cfg.Vision.MaxTokens != 20 {
		t.Errorf("unexpected vision defaults: %+v", cfg.Vision)
	}
	if cfg.Vision.MaxImageBytes != 5*1024*1024 {
		t.Errorf("expected 5MiB image limit, got %d", cfg.Vision.MaxImageBytes)
	}
	if cfg.Animation.SequentialFactor != 60 || cfg.Animation.NoiseFactor != 20 {
		t.Errorf("unexpected animation factors: %+v", cfg.Animation)
	}
	if cfg.Animation.Interval() != time.Second {
		t.Errorf("expected 1s interval, got %v", cfg.Animation.Interval())
	}

	if !strings.HasPrefix(cfg.Glyphs.CachePath, dir) {
		t.Errorf("cache path should be under %s: %s", dir, cfg.Glyphs.CachePath)
	}
	if !strings.HasPrefix(cfg.Logging.FilePath, dir) {
		t.Errorf("log path should be under %s: %s", dir, cfg.Logging.FilePath)
	}
}

func TestConfigPath(t *testing.T) {
	dir := isolate(t)
	path := ConfigPath()
	if path != filepath.Join(dir, "config.toml") {
		t.Errorf("unexpected config path %s", path)
	}
}

func TestLoadNonexistent(t *testing.T) {
	isolate(t)
	cfg, err := Load("/nonexistent/path/config.toml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Typing.CharDelayMs != 250 {
		t.Errorf("expected default char delay, got %d", cfg.Typing.CharDelayMs)
	}
}

func TestLoadFormats(t *testing.T) {
	isolate(t)
	tmpDir := t.TempDir()

	files := map[string]string{
		"config.toml": `
[typing]
vietnamese = true
char_delay_ms = 120
enter_policy = "clear"

[glyphs]
asset_dir = "/srv/chars"

[logging]
level = "debug"
`,
		"config.json": `{"typing": {"vietnamese": true, "char_delay_ms": 120, "enter_policy": "clear"},
 "glyphs": {"asset_dir": "/srv/chars"}, "logging": {"level": "debug"}}`,
		"config.yaml": `
typing:
  vietnamese: true
  char_delay_ms: 120
  enter_policy: clear
glyphs:
  asset_dir: /srv/chars
logging:
  level: debug
`,
	}

	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(tmpDir, name)
			if err := os.WriteFile(path, []byte(content), 0600); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}
			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if !cfg.Typing.Vietnamese {
				t.Error("expected vietnamese = true")
			}
			if cfg.Typing.CharDelayMs != 120 {
				t.Errorf("expected char delay 120, got %d", cfg.Typing.CharDelayMs)
			}
			if cfg.Typing.SpaceDelayMs != 100 {
				t.Errorf("unset fields keep defaults, got space delay %d", cfg.Typing.SpaceDelayMs)
			}
			if cfg.Typing.EnterPolicy != EnterClear {
				t.Errorf("expected clear policy, got %s", cfg.Typing.EnterPolicy)
			}
			if cfg.Glyphs.AssetDir != "/srv/chars" {
				t.Errorf("expected asset dir /srv/chars, got %s", cfg.Glyphs.AssetDir)
			}
			if cfg.Logging.Level != "debug" {
				t.Errorf("expected debug level, got %s", cfg.Logging.Level)
			}
		})
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[typing\nchar_delay_ms = "), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected decode error")
	}
}

func TestEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("KINETYPE_VIETNAMESE", "true")
	t.Setenv("KINETYPE_ASSET_DIR", "/env/chars")
	t.Setenv("KINETYPE_LOG_LEVEL", "warn")
	t.Setenv("OPENAI_API_KEY", "sk-fallback")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()
	if !cfg.Typing.Vietnamese {
		t.Error("KINETYPE_VIETNAMESE not applied")
	}
	if cfg.Glyphs.AssetDir != "/env/chars" {
		t.Errorf("KINETYPE_ASSET_DIR not applied: %s", cfg.Glyphs.AssetDir)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("KINETYPE_LOG_LEVEL not applied: %s", cfg.Logging.Level)
	}
	if cfg.Vision.APIKey != "sk-fallback" {
		t.Errorf("expected OPENAI_API_KEY fallback, got %q", cfg.Vision.APIKey)
	}

	t.Setenv("KINETYPE_OPENAI_API_KEY", "sk-primary")
	cfg = DefaultConfig()
	cfg.ApplyEnvOverrides()
	if cfg.Vision.APIKey != "sk-primary" {
		t.Errorf("KINETYPE_OPENAI_API_KEY should win, got %q", cfg.Vision.APIKey)
	}
}

func TestValidateDefaults(t *testing.T) {
	isolate(t)
	cfg := DefaultConfig()
	cfg.Glyphs.AssetDir = t.TempDir()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	// A missing asset dir and API key are warnings only.
	cfg.Glyphs.AssetDir = "/nonexistent/chars"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("warnings should not fail validation: %v", err)
	}
	warnings := Check(cfg).Warnings()
	if len(warnings) != 2 {
		t.Errorf("expected 2 warnings, got %v", warnings)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	isolate(t)
	cfg := DefaultConfig()
	cfg.Glyphs.AssetDir = t.TempDir()
	cfg.Typing.EnterPolicy = "explode"
	cfg.Typing.CharDelayMs = 0
	cfg.Vision.BaseURL = "ftp://example.com"
	cfg.Animation.NoiseFactor = 0
	cfg.Theme.Background = "red"
	cfg.Logging.Output = "syslog"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}

	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	fields := map[string]bool{}
	for _, e := range verrs.Errors() {
		fields[e.Field] = true
	}
	for _, f := range []string{
		"typing.enter_policy", "typing.char_delay_ms", "vision.base_url",
		"animation.noise_factor", "theme.background", "logging.output",
	} {
		if !fields[f] {
			t.Errorf("expected error for %s, got %v", f, verrs)
		}
	}
}

func TestSaveAndReload(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	for _, name := range []string{"out.toml", "out.json", "out.yaml"} {
		cfg := DefaultConfig()
		cfg.Typing.CharDelayMs = 77
		cfg.Theme.Background = "#0000FF"
		cfg.Vision.APIKey = "sk-secret"

		path := filepath.Join(dir, name)
		if err := SaveConfig(cfg, path); err != nil {
			t.Fatalf("SaveConfig(%s) failed: %v", name, err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if strings.Contains(string(data), "sk-secret") {
			t.Errorf("%s: API key written to disk", name)
		}

		loaded, err := Load(path)
		if err != nil {
			t.Fatalf("Load(%s) failed: %v", name, err)
		}
		if loaded.Typing.CharDelayMs != 77 || loaded.Theme.Background != "#0000FF" {
			t.Errorf("%s: round trip lost values: %+v %+v", name, loaded.Typing, loaded.Theme)
		}
	}
}

func TestLoadOrCreate(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "sub", "config.toml")

	_, created, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}
	if !created {
		t.Error("expected config to be created")
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file missing: %v", err)
	}

	_, created, err = LoadOrCreate(path)
	if err != nil {
		t.Fatalf("second LoadOrCreate failed: %v", err)
	}
	if created {
		t.Error("expected existing config to be loaded")
	}
}

func TestMerge(t *testing.T) {
	isolate(t)
	base := DefaultConfig()
	override := &Config{}
	override.Typing.SpaceDelayMs = 5
	override.Logging.Level = "error"

	merged := Merge(base, override)
	if merged.Typing.SpaceDelayMs != 5 || merged.Logging.Level != "error" {
		t.Errorf("override not applied: %+v", merged)
	}
	if merged.Typing.CharDelayMs != 250 {
		t.Errorf("zero values should not override, got %d", merged.Typing.CharDelayMs)
	}
	if base.Typing.SpaceDelayMs != 100 {
		t.Error("Merge must not modify dst")
	}
}

func TestLoggerConfig(t *testing.T) {
	isolate(t)
	lc, err := DefaultConfig().Logging.LoggerConfig()
	if err != nil {
		t.Fatalf("LoggerConfig failed: %v", err)
	}
	if lc.Output != "stderr" || lc.MaxSize != 100 || lc.Component != "kinetype" {
		t.Errorf("unexpected logger config %+v", lc)
	}

	bad := LoggingConfig{Level: "loud"}
	if _, err := bad.LoggerConfig(); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestLoaderHotReload(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	write := func(delay int) {
		t.Helper()
		content := "[glyphs]\nasset_dir = \"" + filepath.ToSlash(dir) + "\"\n[typing]\nchar_delay_ms = " + strconv.Itoa(delay) + "\n"
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
	}
	write(200)

	loader := NewLoader(path)
	defer loader.Close()

	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Typing.CharDelayMs != 200 {
		t.Fatalf("expected 200, got %d", cfg.Typing.CharDelayMs)
	}

	changed := make(chan *Config, 4)
	loader.OnChange(func(c *Config) { changed <- c })
	if err := loader.Watch(); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	write(300)
	select {
	case c := <-changed:
		if c.Typing.CharDelayMs != 300 {
			t.Errorf("expected reloaded 300, got %d", c.Typing.CharDelayMs)
		}
	case err := <-loader.Errors():
		t.Fatalf("reload error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
	if loader.Config().Typing.CharDelayMs != 300 {
		t.Error("Config() not updated")
	}
}
