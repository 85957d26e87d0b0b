package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ValidationError is one problem with a configuration field. Warnings do
// not prevent the configuration from being used.
type ValidationError struct {
	Field   string
	Message string
	Warning bool
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Is lets errors.Is match ErrInvalidConfig.
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidConfig && e.HasErrors()
}

// collector accumulates problems found while validating one section.
type collector struct {
	errs ValidationErrors
}

func (c *collector) fail(field, format string, args ...any) {
	c.errs = append(c.errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (c *collector) warn(field, format string, args ...any) {
	c.errs = append(c.errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Warning: true})
}

func (c *collector) between(field string, v, lo, hi int) {
	if v < lo || v > hi {
		c.fail(field, "value must be between %d and %d", lo, hi)
	}
}

// ValidateConfig checks every section. The result may hold warnings only;
// use HasErrors or CheckErrors to decide whether the config is usable.
func ValidateConfig(cfg *Config) error {
	var c collector

	if cfg.Version < 1 || cfg.Version > Version {
		c.fail("version", "unsupported version %d (current: %d)", cfg.Version, Version)
	}

	validateHooks(&c, &cfg.Hooks)
	validateActivity(&c, &cfg.Activity, &cfg.Storage)
	validateMetrics(&c, &cfg.Metrics)
	validateLogging(&c, &cfg.Logging)

	if len(c.errs) > 0 {
		return c.errs
	}
	return nil
}

func validateHooks(c *collector, h *HooksConfig) {
	if !h.Keyboard && !h.Mouse {
		c.warn("hooks", "no hook enabled; nothing will be observed")
	}
	if h.TranslateChars && !h.Keyboard {
		c.warn("hooks.translate_chars", "ignored without the keyboard hook")
	}
	c.between("hooks.slow_callback_ms", h.SlowCallbackMs, 0, 5000)
	if _, err := parseLayout(h.Layout); err != nil {
		c.fail("hooks.layout", "invalid layout handle %q (expected hex such as 00020409)", h.Layout)
	}
}

func validateActivity(c *collector, a *ActivityConfig, s *StorageConfig) {
	if !a.Enabled {
		return
	}
	c.between("activity.idle_threshold_sec", a.IdleThresholdSec, 1, 86400)
	c.between("activity.flush_interval_sec", a.FlushIntervalSec, 1, 3600)
	if s.Path == "" {
		c.fail("storage.path", "required while activity tracking is enabled")
	}
}

func validateMetrics(c *collector, m *MetricsConfig) {
	if !m.Enabled {
		return
	}
	if _, _, err := net.SplitHostPort(m.ListenAddr); err != nil {
		c.fail("metrics.listen_addr", "invalid listen address %q: %v", m.ListenAddr, err)
	}
}

func validateLogging(c *collector, l *LoggingConfig) {
	if !logLevels[l.Level] {
		c.fail("logging.level", "invalid log level %q (valid: debug, info, warn, error)", l.Level)
	}
	if l.Format != "text" && l.Format != "json" {
		c.fail("logging.format", "invalid log format %q (valid: text, json)", l.Format)
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			c.fail("logging.file_path", "required when output is %q", l.Output)
		}
	default:
		c.fail("logging.output", "invalid log output %q (valid: stdout, stderr, file, both)", l.Output)
	}

	if l.MaxSizeMB < 1 {
		c.fail("logging.max_size_mb", "must be at least 1")
	}
	if l.MaxBackups < 0 {
		c.fail("logging.max_backups", "cannot be negative")
	}
	if l.MaxAgeDays < 0 {
		c.fail("logging.max_age_days", "cannot be negative")
	}
}

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Warnings returns only warning-level validation errors.
func (e ValidationErrors) Warnings() ValidationErrors {
	return e.filter(true)
}

// Errors returns only error-level validation errors.
func (e ValidationErrors) Errors() ValidationErrors {
	return e.filter(false)
}

func (e ValidationErrors) filter(warning bool) ValidationErrors {
	var out ValidationErrors
	for _, v := range e {
		if v.Warning == warning {
			out = append(out, v)
		}
	}
	return out
}

// HasErrors returns true if there are any non-warning errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e.Errors()) > 0
}

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")

// CheckErrors returns nil when err carries only warnings.
func CheckErrors(err error) error {
	var verrs ValidationErrors
	if errors.As(err, &verrs) {
		if !verrs.HasErrors() {
			return nil
		}
		return verrs.Errors()
	}
	return err
}
