package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "kinetype"

// PlatformDataDir returns the platform-specific data directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/kinetype/
//   - Linux:   ~/.local/share/kinetype/
//   - Windows: %APPDATA%\kinetype\
//
// Falls back to ~/.kinetype if platform detection fails.
func PlatformDataDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Application Support", appName)
	case "linux":
		return xdgDir("XDG_DATA_HOME", ".local", "share")
	case "windows":
		return windowsDir("APPDATA", "Roaming")
	default:
		return fallbackDataDir()
	}
}

// PlatformConfigDir returns the platform-specific config directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/kinetype/
//   - Linux:   ~/.config/kinetype/
//   - Windows: %APPDATA%\kinetype\
func PlatformConfigDir() string {
	switch runtime.GOOS {
	case "linux":
		return xdgDir("XDG_CONFIG_HOME", ".config")
	default:
		return PlatformDataDir() // macOS and Windows use the same dir for config and data
	}
}

// PlatformCacheDir returns the platform-specific cache directory.
func PlatformCacheDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Caches", appName)
	case "linux":
		return xdgDir("XDG_CACHE_HOME", ".cache")
	case "windows":
		return filepath.Join(windowsDir("LOCALAPPDATA", "Local"), "cache")
	default:
		return filepath.Join(fallbackDataDir(), "cache")
	}
}

func homeDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return home
}

// xdgDir follows the XDG Base Directory Specification.
func xdgDir(env string, fallback ...string) string {
	if v := os.Getenv(env); v != "" {
		return filepath.Join(v, appName)
	}
	parts := append([]string{homeDir()}, fallback...)
	return filepath.Join(append(parts, appName)...)
}

func windowsDir(env, sub string) string {
	if v := os.Getenv(env); v != "" {
		return filepath.Join(v, appName)
	}
	return filepath.Join(homeDir(), "AppData", sub, appName)
}

func fallbackDataDir() string {
	return filepath.Join(homeDir(), "."+appName)
}

// DefaultPaths returns all default paths for a platform.
type DefaultPaths struct {
	DataDir   string
	ConfigDir string
	CacheDir  string

	ConfigFile string
	CacheFile  string
	LogFile    string
}

// GetDefaultPaths returns all default paths for the current platform.
func GetDefaultPaths() *DefaultPaths {
	dataDir := PlatformDataDir()
	configDir := PlatformConfigDir()

	return &DefaultPaths{
		DataDir:    dataDir,
		ConfigDir:  configDir,
		CacheDir:   PlatformCacheDir(),
		ConfigFile: filepath.Join(configDir, "config.toml"),
		CacheFile:  filepath.Join(dataDir, "glyphs.db"),
		LogFile:    filepath.Join(dataDir, "kinetype.log"),
	}
}

// SupportedConfigFormats returns the list of supported config file formats.
func SupportedConfigFormats() []string {
	return []string{
		"toml",
		"json",
		"yaml",
		"yml",
	}
}

// FindConfigFile searches for a config file in standard locations.
// Returns the path to the first found config file, or empty string if none found.
func FindConfigFile() string {
	paths := GetDefaultPaths()

	// Search order:
	// 1. Current directory
	// 2. Config directory
	// 3. Data directory
	searchDirs := []string{
		".",
		paths.ConfigDir,
		paths.DataDir,
	}
	if envDir := os.Getenv("KINETYPE_DATA_DIR"); envDir != "" {
		searchDirs = append([]string{envDir}, searchDirs...)
	}

	for _, dir := range searchDirs {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}

	return ""
}
