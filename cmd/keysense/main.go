// keysense - global keyboard and mouse hooks with idle tracking
//
// Commands:
//
//	run       Install the hooks and track activity until interrupted
//	simulate  Drive the hooks with a simulated keyboard and mouse
//	report    Summarize recorded activity spans
//	prune     Delete activity spans older than a cutoff
//	config    Create, show or validate the configuration file
//	version   Show version information
package main

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"keysense/internal/config"
	"keysense/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage(os.Stdout)
		os.Exit(1)
	}

	var err error
	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "run":
		err = cmdRun(args, os.Stdout)
	case "simulate":
		err = cmdSimulate(args, os.Stdout)
	case "report":
		err = cmdReport(args, os.Stdout)
	case "prune":
		err = cmdPrune(args, os.Stdout)
	case "config":
		err = cmdConfig(args, os.Stdout)
	case "version":
		cmdVersion(os.Stdout)
	case "help", "-h", "--help":
		usage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage(os.Stderr)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `keysense - global keyboard and mouse hooks with idle tracking

USAGE:
    keysense <command> [options]

COMMANDS:
    run [-config path] [-keyboard] [-mouse] [-chars] [-quiet]
                         Install the hooks and track activity until Ctrl+C
    simulate [-text s] [-db path] [-events]
                         Type text on a simulated US-International keyboard
    report [-db path] [-since 24h] [-json] [-detailed]
                         Summarize recorded activity
    prune [-db path] -older-than 720h
                         Delete spans that ended before the cutoff
    config init|show|validate [-config path] [-force]
                         Manage the configuration file
    version              Show version information

PRIVACY NOTE:
    keysense stores counts and timestamps only. Typed characters are
    delivered to in-process subscribers and never written to the activity
    database or the logs.

ENVIRONMENT:
    KEYSENSE_DATA_DIR             Data directory (config, database, logs)
    KEYSENSE_LOG_LEVEL            debug, info, warn or error
    KEYSENSE_DB_PATH              Activity database path
    KEYSENSE_IDLE_THRESHOLD_SEC   Idle threshold in seconds
    KEYSENSE_METRICS_ADDR         Serve /metrics on this address`)
}

func cmdVersion(w io.Writer) {
	fmt.Fprintf(w, "keysense %s\n", version)
	fmt.Fprintf(w, "  Go version: %s\n", runtime.Version())
	fmt.Fprintf(w, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(w, "  Data dir:   %s\n", config.KeysenseDir())
}

// setupLogging builds the process logger from the logging section.
func setupLogging(lc config.LoggingConfig) (*logging.Logger, error) {
	level, err := logging.ParseLevel(lc.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(lc.Format)
	if err != nil {
		return nil, err
	}

	cfg := logging.DefaultConfig()
	cfg.Level = level
	cfg.Format = format
	cfg.Output = lc.Output
	cfg.FilePath = lc.FilePath
	cfg.MaxSize = int64(lc.MaxSizeMB)
	cfg.MaxBackups = lc.MaxBackups
	cfg.MaxAge = lc.MaxAgeDays
	cfg.Compress = lc.Compress

	return logging.New(cfg)
}

// loadConfig loads path (or the default location) and fails on hard
// validation errors only.
func loadConfig(path string) (*config.Loader, *config.Config, error) {
	loader := config.NewLoader(path)
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config %s: %w", loader.Path(), err)
	}
	return loader, cfg, nil
}
