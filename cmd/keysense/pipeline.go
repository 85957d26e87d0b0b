package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"keysense/internal/activity"
	"keysense/internal/config"
	"keysense/internal/hook"
	"keysense/internal/keyboard"
	"keysense/internal/metrics"
	"keysense/internal/platform"
	"keysense/internal/store"
)

// pipeline wires a platform to the dispatcher, the idle tracker and the
// activity store.
type pipeline struct {
	platform   platform.Platform
	dispatcher *hook.Dispatcher
	tracker    *activity.Tracker
	store      *store.Store
	metrics    *metrics.KeysenseMetrics
	logger     *slog.Logger

	detach  func()
	printer *printer
}

type pipelineOptions struct {
	config  *config.Config
	metrics *metrics.KeysenseMetrics
	logger  *slog.Logger

	// dbPath overrides config.Storage.Path; "-" disables persistence.
	dbPath string
}

func newPipeline(p platform.Platform, opts pipelineOptions) (*pipeline, error) {
	cfg := opts.config
	if opts.logger == nil {
		opts.logger = slog.Default()
	}
	layout, err := cfg.LayoutHandle()
	if err != nil {
		return nil, err
	}

	hookCfg := hook.DefaultConfig()
	hookCfg.Layout = keyboard.Layout(layout)
	hookCfg.SlowCallback = cfg.SlowCallback()
	hookCfg.Metrics = opts.metrics

	pl := &pipeline{
		platform:   p,
		dispatcher: hook.New(p, p, hookCfg, opts.logger),
		metrics:    opts.metrics,
		logger:     opts.logger,
	}

	if !cfg.Activity.Enabled {
		return pl, nil
	}

	dbPath := cfg.Storage.Path
	if opts.dbPath != "" {
		dbPath = opts.dbPath
	}

	trackerCfg := activity.Config{
		IdleThreshold: cfg.IdleThreshold(),
		CheckInterval: cfg.FlushInterval(),
		Metrics:       opts.metrics,
	}
	if dbPath != "-" {
		st, err := store.Open(dbPath)
		if err != nil {
			return nil, fmt.Errorf("open activity store: %w", err)
		}
		pl.store = st
		trackerCfg.Store = st
	}

	pl.tracker = activity.New(trackerCfg, opts.logger)
	pl.detach = pl.tracker.Attach(pl.dispatcher, cfg.Hooks.Keyboard && cfg.Hooks.TranslateChars)
	return pl, nil
}

// install installs the hooks selected in cfg. A kind the system refuses is
// logged and the other one is kept; only a total failure is an error.
func (pl *pipeline) install(cfg *config.Config) error {
	var kinds hook.Kind
	if cfg.Hooks.Keyboard {
		kinds |= hook.KindKeyboard
	}
	if cfg.Hooks.Mouse {
		kinds |= hook.KindMouse
	}
	if kinds == 0 {
		return fmt.Errorf("no hook enabled in configuration")
	}

	err := pl.dispatcher.Install(kinds)
	if err == nil {
		return nil
	}
	if pl.dispatcher.Installed() != 0 {
		pl.logger.Warn("continuing with partial hook set", "installed", pl.dispatcher.Installed(), "error", err)
		return nil
	}
	return err
}

// close tears the pipeline down in dependency order and flushes the open span.
func (pl *pipeline) close(ctx context.Context) error {
	var errs []error

	if err := pl.dispatcher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
	}
	if pl.detach != nil {
		pl.detach()
	}
	if pl.tracker != nil {
		if err := pl.tracker.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
		pl.tracker.Stop()
	}
	if pl.printer != nil {
		if n := pl.printer.close(); n > 0 {
			pl.logger.Warn("event printer fell behind", "dropped_lines", n)
		}
	}
	if pl.store != nil {
		if err := pl.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close activity store: %w", err))
		}
	}
	if err := pl.platform.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close platform: %w", err))
	}
	return errors.Join(errs...)
}

// printOptions select what the event printer shows.
type printOptions struct {
	keys  bool
	mouse bool
	chars bool
}

// print subscribes a printer to the dispatcher. Lines are handed to a
// goroutine so the hook callback never waits on the terminal.
func (pl *pipeline) print(w io.Writer, opts printOptions) {
	pr := newPrinter(w)
	pl.printer = pr
	d := pl.dispatcher

	if opts.keys {
		d.Keyboard.Key.Subscribe(func(e hook.KeyEvent) {
			dir := "up"
			if e.Down {
				dir = "down"
			}
			pr.printf("key   %-4s %-12s scan=%#04x mods=%s", dir, e.Key, e.ScanCode, e.Modifiers)
		})
	}
	if opts.chars {
		d.Keyboard.Char.Subscribe(func(e hook.CharEvent) {
			pr.printf("char  %q", e.Char)
		})
	}
	if opts.mouse {
		d.Mouse.Any.Subscribe(func(e hook.MouseEvent) {
			if e.Action == hook.MouseWheel || e.Action == hook.MouseHWheel {
				pr.printf("mouse %-6s delta=%d at (%d,%d)", e.Action, e.WheelDelta, e.X, e.Y)
				return
			}
			if e.Action == hook.MouseMove {
				return
			}
			pr.printf("mouse %-6s %-6s at (%d,%d)", e.Action, e.Button, e.X, e.Y)
		})
	}
}

// printer serializes output lines from hook callbacks.
type printer struct {
	lines   chan string
	done    chan struct{}
	once    sync.Once
	dropped int
	mu      sync.Mutex
}

const printerBuffer = 1024

func newPrinter(w io.Writer) *printer {
	lines := make(chan string, printerBuffer)
	p := &printer{
		lines: lines,
		done:  make(chan struct{}),
	}
	// The goroutine owns its own reference; close clears p.lines.
	go func() {
		defer close(p.done)
		for line := range lines {
			fmt.Fprintln(w, line)
		}
	}()
	return p
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lines == nil {
		return
	}
	select {
	case p.lines <- fmt.Sprintf(format, args...):
	default:
		p.dropped++
	}
}

// close drains pending lines, stops the printer and returns the number of
// lines dropped because the buffer was full.
func (p *printer) close() int {
	p.once.Do(func() {
		p.mu.Lock()
		close(p.lines)
		p.lines = nil
		p.mu.Unlock()
		<-p.done
	})
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}
