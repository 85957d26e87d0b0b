package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"keysense/internal/activity"
	"keysense/internal/config"
	"keysense/internal/health"
	"keysense/internal/hook"
	"keysense/internal/logging"
	"keysense/internal/metrics"
	"keysense/internal/platform"
)

const (
	shutdownTimeout = 5 * time.Second
	crashRetention  = 30 * 24 * time.Hour
)

func cmdRun(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Configuration file (default: data dir config.toml)")
	keyboard := fs.Bool("keyboard", true, "Install the keyboard hook")
	mouse := fs.Bool("mouse", true, "Install the mouse hook")
	chars := fs.Bool("chars", false, "Print committed characters (stay in this terminal)")
	quiet := fs.Bool("quiet", false, "Only print activity transitions")
	fs.Parse(args)

	loader, cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	defer loader.Close()

	// Flags only win when given explicitly.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "keyboard":
			cfg.Hooks.Keyboard = *keyboard
		case "mouse":
			cfg.Hooks.Mouse = *mouse
		}
	})
	if *chars {
		cfg.Hooks.TranslateChars = true
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logger, err := setupLogging(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer logger.Close()
	logging.SetDefault(logger)

	crash := logging.NewCrashHandler(&logging.CrashHandlerConfig{
		CrashDir:  filepath.Join(config.KeysenseDir(), "crashes"),
		Version:   version,
		Component: "keysense",
		Logger:    logger.WithComponent("crash").Logger,
	})
	if err := crash.CleanupOldCrashReports(crashRetention); err != nil {
		logger.Debug("crash report cleanup failed", "error", err)
	}

	native, err := platform.New(logger.WithComponent("platform").Logger)
	if err != nil {
		if errors.Is(err, hook.ErrNotAvailable) {
			return fmt.Errorf("%w\nUse 'keysense simulate' to try the hooks on a simulated keyboard", err)
		}
		return err
	}

	km := metrics.NewKeysenseMetrics(metrics.NewRegistry("keysense", ""))

	pl, err := newPipeline(native, pipelineOptions{
		config:  cfg,
		metrics: km,
		logger:  logger.WithComponent("pipeline").Logger,
	})
	if err != nil {
		native.Close()
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checker := newHealthChecker(pl, cfg)

	var srv *http.Server
	if cfg.Metrics.Enabled {
		srv = serveHTTP(cfg.Metrics.ListenAddr, km.Registry(), checker, logger.Logger)
	}

	if !*quiet {
		pl.print(stdout, printOptions{
			keys:  cfg.Hooks.Keyboard,
			mouse: cfg.Hooks.Mouse,
			chars: *chars,
		})
	}

	trackerDone := make(chan error, 1)
	if pl.tracker != nil {
		transitions := pl.tracker.Subscribe()
		go printTransitions(stdout, transitions)

		go func() {
			var runErr error
			crash.Recover(map[string]string{"goroutine": "activity"}, func() {
				runErr = pl.tracker.Run(ctx)
			})
			trackerDone <- runErr
		}()
	} else {
		close(trackerDone)
	}

	loader.OnChange(func(c *config.Config) {
		if pl.tracker != nil {
			pl.tracker.SetIdleThreshold(c.IdleThreshold())
		}
		if level, err := logging.ParseLevel(c.Logging.Level); err == nil {
			logger.SetLevel(level)
		}
		logger.Info("configuration reloaded")
	})
	if err := loader.Watch(); err != nil {
		logger.Warn("config hot reload disabled", "error", err)
	} else {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case err := <-loader.Errors():
					logger.Warn("config reload rejected", "error", err)
				}
			}
		}()
	}

	if err := pl.install(cfg); err != nil {
		stop()
		<-trackerDone
		pl.close(context.Background())
		return err
	}

	checker.SetReady(true)

	fmt.Fprintf(stdout, "keysense %s tracking on %s (hooks: %s). Press Ctrl+C to stop.\n",
		version, native.Name(), pl.dispatcher.Installed())
	logger.Info("started",
		"platform", native.Name(),
		"hooks", pl.dispatcher.Installed().String(),
		"idle_threshold", cfg.IdleThreshold(),
		"storage", cfg.Storage.Path,
	)

	<-ctx.Done()
	checker.SetReady(false)
	fmt.Fprintln(stdout, "\nShutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := <-trackerDone; err != nil {
		logger.Warn("final flush failed", "error", err)
	}
	if srv != nil {
		srv.Shutdown(shutdownCtx)
	}
	if err := pl.close(shutdownCtx); err != nil {
		return err
	}
	logger.Info("stopped")
	return nil
}

// newHealthChecker registers the pipeline components. Only the hooks are
// critical; a failing store degrades the process but input still flows.
func newHealthChecker(pl *pipeline, cfg *config.Config) *health.Checker {
	var want hook.Kind
	if cfg.Hooks.Keyboard {
		want |= hook.KindKeyboard
	}
	if cfg.Hooks.Mouse {
		want |= hook.KindMouse
	}

	checker := health.NewChecker()
	checker.RegisterFunc("hooks", true, health.HookCheck(pl.dispatcher.Installed, want))
	if pl.store != nil {
		checker.RegisterFunc("store", false, health.StoreCheck(pl.store.Ping))
	}
	if pl.tracker != nil {
		checker.RegisterFunc("activity", false, health.ActivityCheck(pl.tracker))
	}
	return checker
}

// serveHTTP exposes metrics and health on addr until Shutdown.
func serveHTTP(addr string, registry *metrics.Registry, checker *health.Checker, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", registry.HTTPHandler())
	checker.Mount(mux)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("serving metrics and health", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}

func printTransitions(w io.Writer, transitions <-chan activity.Transition) {
	for tr := range transitions {
		switch tr.State {
		case activity.StateActive:
			fmt.Fprintf(w, "[%s] active\n", tr.At.Format("15:04:05"))
		default:
			fmt.Fprintf(w, "[%s] idle after %s (%d keys, %d mouse, %d chars)\n",
				tr.At.Format("15:04:05"),
				tr.Span.Duration().Round(time.Second),
				tr.Span.KeyEvents, tr.Span.MouseEvents, tr.Span.Chars)
		}
	}
}
