// Package activity derives active and idle periods from hook activity.
//
// A span opens with the first input after an idle period and closes once no
// input has arrived for the idle threshold. Spans carry event counts only:
// which keys were pressed or which characters were committed is never
// recorded.
package activity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"keysense/internal/hook"
	"keysense/internal/metrics"
)

// DefaultIdleThreshold is the input gap after which the user counts as idle.
const DefaultIdleThreshold = 20 * time.Second

// DefaultCheckInterval is how often Run looks for an expired span.
const DefaultCheckInterval = time.Second

// pendingSpans bounds closed spans waiting to be persisted.
const pendingSpans = 64

// ErrStopped is returned by Run when the tracker was already stopped.
var ErrStopped = errors.New("activity tracker stopped")

// State is the user's presence state.
type State int

const (
	StateIdle State = iota
	StateActive
)

func (s State) String() string {
	if s == StateActive {
		return "active"
	}
	return "idle"
}

// Span is one uninterrupted period of activity.
type Span struct {
	Start       time.Time
	End         time.Time // time of the last input
	KeyEvents   uint64
	MouseEvents uint64
	Chars       uint64
}

// Duration returns End - Start.
func (s Span) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Events returns the total number of input events in the span.
func (s Span) Events() uint64 {
	return s.KeyEvents + s.MouseEvents
}

// Transition is sent to listeners when the state changes. For StateIdle, Span
// is the span that just closed; for StateActive it is the span that opened.
type Transition struct {
	State State
	At    time.Time
	Span  Span
}

// Store persists closed spans.
type Store interface {
	SaveSpan(ctx context.Context, span Span) error
}

// Config configures a Tracker.
type Config struct {
	IdleThreshold time.Duration
	CheckInterval time.Duration
	Store         Store // optional
	Metrics       *metrics.KeysenseMetrics
	Clock         func() time.Time
}

// Tracker turns activity events into spans.
type Tracker struct {
	config  Config
	logger  *slog.Logger
	metrics *metrics.KeysenseMetrics

	mu        sync.Mutex
	threshold time.Duration
	state     State
	current   Span
	listeners []chan Transition
	stopped   bool

	pending chan Span
}

// New creates a Tracker in the idle state.
func New(config Config, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if config.IdleThreshold <= 0 {
		config.IdleThreshold = DefaultIdleThreshold
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultCheckInterval
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	config.Metrics.SetIdle(true)
	return &Tracker{
		config:    config,
		logger:    logger.With("component", "activity"),
		metrics:   config.Metrics,
		threshold: config.IdleThreshold,
		pending:   make(chan Span, pendingSpans),
	}
}

// Attach subscribes the tracker to d. Character counts are only collected
// when chars is set, since a Char subscriber turns on translation. The
// returned function detaches again.
func (t *Tracker) Attach(d *hook.Dispatcher, chars bool) func() {
	activity := d.Activity.Subscribe(t.Observe)
	var char hook.Token
	if chars {
		char = d.Keyboard.Char.Subscribe(t.ObserveChar)
	}
	return func() {
		d.Activity.Unsubscribe(activity)
		if char != 0 {
			d.Keyboard.Char.Unsubscribe(char)
		}
	}
}

// Observe records one input event. It runs on the hook thread and never
// blocks.
func (t *Tracker) Observe(ev hook.ActivityEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	if t.state == StateActive && ev.At.Sub(t.current.End) >= t.threshold {
		t.closeLocked()
	}
	if t.state == StateIdle {
		t.current = Span{Start: ev.At}
		t.state = StateActive
		t.metrics.SetIdle(false)
		t.notifyLocked(Transition{State: StateActive, At: ev.At, Span: t.current})
	}

	t.current.End = ev.At
	switch ev.Kind {
	case hook.KindKeyboard:
		t.current.KeyEvents++
	case hook.KindMouse:
		t.current.MouseEvents++
	}
}

// ObserveChar counts a committed character in the open span.
func (t *Tracker) ObserveChar(hook.CharEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateActive {
		t.current.Chars++
	}
}

// Check closes the open span if now is at least the idle threshold past its
// last input. It reports whether a span was closed.
func (t *Tracker) Check(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateActive || now.Sub(t.current.End) < t.threshold {
		return false
	}
	t.closeLocked()
	return true
}

func (t *Tracker) closeLocked() {
	span := t.current
	t.current = Span{}
	t.state = StateIdle

	t.metrics.SetIdle(true)
	t.metrics.RecordSpan(span.Duration())
	t.notifyLocked(Transition{State: StateIdle, At: span.End.Add(t.threshold), Span: span})

	select {
	case t.pending <- span:
	default:
		t.logger.Warn("dropping activity span, persistence is behind",
			"start", span.Start,
			"duration", span.Duration(),
		)
		t.metrics.RecordStoreError()
	}
}

func (t *Tracker) notifyLocked(tr Transition) {
	for _, ch := range t.listeners {
		select {
		case ch <- tr:
		default:
			// Listener not keeping up; transitions are advisory.
		}
	}
}

// Subscribe returns a channel receiving state transitions. It is closed by
// Stop.
func (t *Tracker) Subscribe() <-chan Transition {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch := make(chan Transition, 16)
	if t.stopped {
		close(ch)
		return ch
	}
	t.listeners = append(t.listeners, ch)
	return ch
}

// State returns the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Current returns the open span, if any.
func (t *Tracker) Current() (Span, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current, t.state == StateActive
}

// IdleFor returns how long no input has been seen, or 0 while no span has
// been observed yet.
func (t *Tracker) IdleFor(now time.Time) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateActive {
		return 0
	}
	return now.Sub(t.current.End)
}

// Threshold returns the idle threshold.
func (t *Tracker) Threshold() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.threshold
}

// SetIdleThreshold changes the idle threshold. Non-positive values restore
// the default. The open span is judged against the new value at the next
// check.
func (t *Tracker) SetIdleThreshold(d time.Duration) {
	if d <= 0 {
		d = DefaultIdleThreshold
	}
	t.mu.Lock()
	old := t.threshold
	t.threshold = d
	t.mu.Unlock()

	if old != d {
		t.logger.Info("idle threshold changed", "from", old, "to", d)
	}
}

// Flush closes the open span regardless of the threshold and persists every
// closed span that has not been stored yet.
func (t *Tracker) Flush(ctx context.Context) error {
	t.mu.Lock()
	if t.state == StateActive {
		t.closeLocked()
	}
	t.mu.Unlock()

	var errs []error
	for {
		select {
		case span := <-t.pending:
			if err := t.persist(ctx, span); err != nil {
				errs = append(errs, err)
			}
		default:
			return errors.Join(errs...)
		}
	}
}

func (t *Tracker) persist(ctx context.Context, span Span) error {
	if t.config.Store == nil {
		return nil
	}
	if err := t.config.Store.SaveSpan(ctx, span); err != nil {
		t.metrics.RecordStoreError()
		t.logger.Warn("failed to store activity span", "start", span.Start, "error", err)
		return fmt.Errorf("save span starting %s: %w", span.Start.Format(time.RFC3339), err)
	}
	t.logger.Debug("activity span stored",
		"start", span.Start,
		"duration", span.Duration(),
		"key_events", span.KeyEvents,
		"mouse_events", span.MouseEvents,
	)
	return nil
}

// Run checks for idleness and persists closed spans until ctx is done. On
// return the open span has been flushed and listener channels are closed.
func (t *Tracker) Run(ctx context.Context) error {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return ErrStopped
	}
	t.mu.Unlock()

	ticker := time.NewTicker(t.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := t.Flush(flushCtx)
			cancel()
			t.Stop()
			return err
		case <-ticker.C:
			t.Check(t.config.Clock())
			t.metrics.UpdateUptime()
		case span := <-t.pending:
			_ = t.persist(ctx, span)
		}
	}
}

// Stop ends observation and closes listener channels. Spans still pending are
// left for Flush.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	t.stopped = true
	for _, ch := range t.listeners {
		close(ch)
	}
	t.listeners = nil
}
