// Package config handles configuration loading, validation, and management for keysense.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete keysense configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Hooks selects which low-level hooks are installed.
	Hooks HooksConfig `toml:"hooks" json:"hooks" yaml:"hooks"`

	// Activity configures idle detection.
	Activity ActivityConfig `toml:"activity" json:"activity" yaml:"activity"`

	// Storage configures span persistence.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// mu protects concurrent access to the config.
	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// HooksConfig holds hook installation settings.
type HooksConfig struct {
	// Keyboard installs the low-level keyboard hook.
	Keyboard bool `toml:"keyboard" json:"keyboard" yaml:"keyboard"`

	// Mouse installs the low-level mouse hook.
	Mouse bool `toml:"mouse" json:"mouse" yaml:"mouse"`

	// TranslateChars subscribes to committed characters. Translation only
	// runs while someone listens, so disabling this skips it entirely.
	TranslateChars bool `toml:"translate_chars" json:"translate_chars" yaml:"translate_chars"`

	// SlowCallbackMs is the callback duration that triggers a warning.
	// Windows silently removes hooks that exceed LowLevelHooksTimeout.
	SlowCallbackMs int `toml:"slow_callback_ms" json:"slow_callback_ms" yaml:"slow_callback_ms"`

	// Layout is a hexadecimal HKL such as "00020409". Empty uses the
	// layout of the foreground window.
	Layout string `toml:"layout" json:"layout" yaml:"layout"`
}

// ActivityConfig holds idle detection settings.
type ActivityConfig struct {
	// Enabled turns on span tracking.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// IdleThresholdSec is the input gap after which the user is idle.
	IdleThresholdSec int `toml:"idle_threshold_sec" json:"idle_threshold_sec" yaml:"idle_threshold_sec"`

	// FlushIntervalSec is how often the idle check and span flush run.
	FlushIntervalSec int `toml:"flush_interval_sec" json:"flush_interval_sec" yaml:"flush_interval_sec"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	// Path is the SQLite activity database.
	Path string `toml:"path" json:"path" yaml:"path"`
}

// MetricsConfig holds metrics endpoint configuration.
type MetricsConfig struct {
	Enabled    bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	ListenAddr string `toml:"listen_addr" json:"listen_addr" yaml:"listen_addr"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log destination: "stdout", "stderr", "file" or "both".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the log file path (when output is "file" or "both").
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of rotated files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// MaxAgeDays is the maximum age of rotated files.
	MaxAgeDays int `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`

	// Compress enables gzip compression of rotated files.
	Compress bool `toml:"compress" json:"compress" yaml:"compress"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dir := KeysenseDir()

	return &Config{
		Version: Version,
		Hooks: HooksConfig{
			Keyboard:       true,
			Mouse:          true,
			TranslateChars: true,
			SlowCallbackMs: 50,
		},
		Activity: ActivityConfig{
			Enabled:          true,
			IdleThresholdSec: 20,
			FlushIntervalSec: 1,
		},
		Storage: StorageConfig{
			Path: filepath.Join(dir, "activity.db"),
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1:9187",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(dir, "keysense.log"),
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}
}

// ConfigPath returns the default config file path.
func ConfigPath() string {
	return filepath.Join(KeysenseDir(), "config.toml")
}

// KeysenseDir returns the base keysense directory.
// Uses platform-specific paths or the KEYSENSE_DATA_DIR environment override.
func KeysenseDir() string {
	if envDir := os.Getenv("KEYSENSE_DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
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

	cfg.ApplyEnvOverrides()

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories holding the database and log file.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Storage.Path),
	}
	if c.Logging.Output == "file" || c.Logging.Output == "both" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with KEYSENSE_ and use underscores.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v := os.Getenv("KEYSENSE_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}

	if v := os.Getenv("KEYSENSE_DB_PATH"); v != "" {
		c.Storage.Path = v
	}

	// Ignored unless it parses; Validate reports out-of-range values.
	if v := os.Getenv("KEYSENSE_IDLE_THRESHOLD_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Activity.IdleThresholdSec = n
		}
	}

	if v := os.Getenv("KEYSENSE_METRICS_ADDR"); v != "" {
		c.Metrics.ListenAddr = v
		c.Metrics.Enabled = true
	}
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// All sections are value types.
	return &Config{
		Version:  c.Version,
		Hooks:    c.Hooks,
		Activity: c.Activity,
		Storage:  c.Storage,
		Metrics:  c.Metrics,
		Logging:  c.Logging,
	}
}

// IdleThreshold returns the idle threshold as a duration.
func (c *Config) IdleThreshold() time.Duration {
	return time.Duration(c.Activity.IdleThresholdSec) * time.Second
}

// FlushInterval returns the tracker check interval as a duration.
func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.Activity.FlushIntervalSec) * time.Second
}

// SlowCallback returns the slow callback threshold as a duration.
func (c *Config) SlowCallback() time.Duration {
	return time.Duration(c.Hooks.SlowCallbackMs) * time.Millisecond
}

// LayoutHandle parses Hooks.Layout. An empty layout yields zero.
func (c *Config) LayoutHandle() (uintptr, error) {
	return parseLayout(c.Hooks.Layout)
}

func parseLayout(s string) (uintptr, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse layout %q: %w", s, err)
	}
	return uintptr(v), nil
}
