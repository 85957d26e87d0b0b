package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"keysense/internal/hook"
	"keysense/internal/platform"
)

const defaultSimulateText = "Hello, wörld! Ça va? naïve résumé ~ 'quoted'"

func cmdSimulate(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("simulate", flag.ExitOnError)
	configPath := fs.String("config", "", "Configuration file (default: data dir config.toml)")
	text := fs.String("text", defaultSimulateText, "Text to type on the simulated keyboard")
	dbPath := fs.String("db", "-", "Activity database to record the span in (- for none)")
	events := fs.Bool("events", false, "Print every key and mouse event")
	fs.Parse(args)

	_, cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	cfg.Hooks.Keyboard = true
	cfg.Hooks.Mouse = true
	cfg.Hooks.TranslateChars = true
	cfg.Hooks.Layout = ""
	cfg.Activity.Enabled = true

	logger, err := setupLogging(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer logger.Close()

	sim := platform.NewSimulated()
	pl, err := newPipeline(sim, pipelineOptions{
		config: cfg,
		logger: logger.Logger,
		dbPath: *dbPath,
	})
	if err != nil {
		return err
	}

	var committed strings.Builder
	pl.dispatcher.Keyboard.Char.Subscribe(func(e hook.CharEvent) {
		committed.WriteRune(e.Char)
	})
	if *events {
		pl.print(stdout, printOptions{keys: true, mouse: true, chars: true})
	}

	if err := pl.install(cfg); err != nil {
		pl.close(context.Background())
		return err
	}

	sim.Type(*text)
	sim.MouseMove(640, 360)
	sim.Click(hook.ButtonLeft)
	sim.Wheel(-120)

	span, _ := pl.tracker.Current()
	appText := sim.AppText()
	keyDelivered := sim.Delivered(hook.KindKeyboard)
	mouseDelivered := sim.Delivered(hook.KindMouse)

	if err := pl.close(context.Background()); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "typed:      %q\n", *text)
	fmt.Fprintf(stdout, "committed:  %q\n", committed.String())
	fmt.Fprintf(stdout, "app text:   %q\n", appText)
	fmt.Fprintf(stdout, "delivered:  %d keyboard, %d mouse\n", keyDelivered, mouseDelivered)
	fmt.Fprintf(stdout, "span:       %d key events, %d mouse events, %d chars\n",
		span.KeyEvents, span.MouseEvents, span.Chars)
	if *dbPath != "-" {
		fmt.Fprintf(stdout, "recorded in %s\n", *dbPath)
	}

	if committed.String() != appText {
		return fmt.Errorf("hook output diverged from application input")
	}
	return nil
}
