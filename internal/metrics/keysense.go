package metrics

import (
	"time"
)

// KeysenseMetrics holds the keysense-specific metrics.
//
// A nil *KeysenseMetrics is valid and records nothing, so components can take
// one as an optional dependency.
type KeysenseMetrics struct {
	registry *Registry

	// Counters
	KeyboardEvents  *Counter
	MouseEvents     *Counter
	CharsCommitted  *Counter
	DeadKeys        *Counter
	Panics          *Counter
	SlowCallbacks   *Counter
	InstallFailures *Counter
	SpansRecorded   *Counter
	StoreErrors     *Counter

	// Gauges
	KeyboardHookInstalled *Gauge
	MouseHookInstalled    *Gauge
	Idle                  *Gauge
	LastInputTimestamp    *Gauge
	UptimeSeconds         *Gauge

	// Histograms
	KeyboardCallback *Histogram
	MouseCallback    *Histogram
	SpanLength       *Histogram
}

var startTime = time.Now()

// NewKeysenseMetrics creates and registers all keysense metrics.
func NewKeysenseMetrics(registry *Registry) *KeysenseMetrics {
	if registry == nil {
		registry = Default()
	}

	kb := Labels{"kind": "keyboard"}
	ms := Labels{"kind": "mouse"}

	return &KeysenseMetrics{
		registry: registry,

		KeyboardEvents:  registry.RegisterCounter("hook_events_total", "Hook events received", kb),
		MouseEvents:     registry.RegisterCounter("hook_events_total", "Hook events received", ms),
		CharsCommitted:  registry.RegisterCounter("chars_committed_total", "Characters delivered to subscribers", nil),
		DeadKeys:        registry.RegisterCounter("dead_keys_total", "Dead keys seen by the translator", nil),
		Panics:          registry.RegisterCounter("hook_panics_total", "Panics recovered on the hook path", nil),
		SlowCallbacks:   registry.RegisterCounter("hook_slow_callbacks_total", "Hook callbacks slower than the configured threshold", nil),
		InstallFailures: registry.RegisterCounter("hook_install_failures_total", "Hook installs refused by the system", nil),
		SpansRecorded:   registry.RegisterCounter("activity_spans_total", "Closed activity spans", nil),
		StoreErrors:     registry.RegisterCounter("store_errors_total", "Failed activity store writes", nil),

		KeyboardHookInstalled: registry.RegisterGauge("hook_installed", "Whether the hook is installed", kb),
		MouseHookInstalled:    registry.RegisterGauge("hook_installed", "Whether the hook is installed", ms),
		Idle:                  registry.RegisterGauge("idle", "1 while the user is idle", nil),
		LastInputTimestamp:    registry.RegisterGauge("last_input_timestamp", "Unix time of the last input event", nil),
		UptimeSeconds:         registry.RegisterGauge("uptime_seconds", "Seconds since start", nil),

		KeyboardCallback: registry.RegisterHistogram(
			"hook_callback_seconds",
			"Time spent inside the hook callback",
			kb,
			CallbackBuckets,
		),
		MouseCallback: registry.RegisterHistogram(
			"hook_callback_seconds",
			"Time spent inside the hook callback",
			ms,
			CallbackBuckets,
		),
		SpanLength: registry.RegisterHistogram(
			"activity_span_seconds",
			"Length of closed activity spans",
			nil,
			SpanBuckets,
		),
	}
}

// Registry returns the registry the metrics live in.
func (m *KeysenseMetrics) Registry() *Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordKeyboardCallback records one keyboard hook invocation.
func (m *KeysenseMetrics) RecordKeyboardCallback(d time.Duration) {
	if m == nil {
		return
	}
	m.KeyboardEvents.Inc()
	m.KeyboardCallback.ObserveDuration(d)
	m.LastInputTimestamp.Set(time.Now().Unix())
}

// RecordMouseCallback records one mouse hook invocation.
func (m *KeysenseMetrics) RecordMouseCallback(d time.Duration) {
	if m == nil {
		return
	}
	m.MouseEvents.Inc()
	m.MouseCallback.ObserveDuration(d)
	m.LastInputTimestamp.Set(time.Now().Unix())
}

// RecordChars records committed characters.
func (m *KeysenseMetrics) RecordChars(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CharsCommitted.Add(uint64(n))
}

// RecordDeadKey records a dead key.
func (m *KeysenseMetrics) RecordDeadKey() {
	if m == nil {
		return
	}
	m.DeadKeys.Inc()
}

// RecordPanic records a recovered panic.
func (m *KeysenseMetrics) RecordPanic() {
	if m == nil {
		return
	}
	m.Panics.Inc()
}

// RecordSlowCallback records a callback over the latency threshold.
func (m *KeysenseMetrics) RecordSlowCallback() {
	if m == nil {
		return
	}
	m.SlowCallbacks.Inc()
}

// RecordInstallFailure records a refused hook.
func (m *KeysenseMetrics) RecordInstallFailure() {
	if m == nil {
		return
	}
	m.InstallFailures.Inc()
}

// SetHookInstalled updates the installed gauge of the keyboard or mouse hook.
func (m *KeysenseMetrics) SetHookInstalled(keyboard, installed bool) {
	if m == nil {
		return
	}
	if keyboard {
		m.KeyboardHookInstalled.SetBool(installed)
	} else {
		m.MouseHookInstalled.SetBool(installed)
	}
}

// SetIdle updates the idle gauge.
func (m *KeysenseMetrics) SetIdle(idle bool) {
	if m == nil {
		return
	}
	m.Idle.SetBool(idle)
}

// RecordSpan records a closed activity span.
func (m *KeysenseMetrics) RecordSpan(length time.Duration) {
	if m == nil {
		return
	}
	m.SpansRecorded.Inc()
	m.SpanLength.ObserveDuration(length)
}

// RecordStoreError records a failed store write.
func (m *KeysenseMetrics) RecordStoreError() {
	if m == nil {
		return
	}
	m.StoreErrors.Inc()
}

// UpdateUptime updates the uptime gauge.
func (m *KeysenseMetrics) UpdateUptime() {
	if m == nil {
		return
	}
	m.UptimeSeconds.Set(int64(time.Since(startTime).Seconds()))
}

// Snapshot returns the headline values.
func (m *KeysenseMetrics) Snapshot() map[string]interface{} {
	if m == nil {
		return nil
	}
	m.UpdateUptime()
	return map[string]interface{}{
		"keyboard_events":         m.KeyboardEvents.Value(),
		"mouse_events":            m.MouseEvents.Value(),
		"chars_committed":         m.CharsCommitted.Value(),
		"dead_keys":               m.DeadKeys.Value(),
		"panics":                  m.Panics.Value(),
		"slow_callbacks":          m.SlowCallbacks.Value(),
		"install_failures":        m.InstallFailures.Value(),
		"spans":                   m.SpansRecorded.Value(),
		"idle":                    m.Idle.Value(),
		"uptime_seconds":          m.UptimeSeconds.Value(),
		"keyboard_callback_p99_s": m.KeyboardCallback.Quantile(99),
		"mouse_callback_p99_s":    m.MouseCallback.Quantile(99),
	}
}
