package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"keysense/internal/config"
)

func cmdConfig(args []string, stdout io.Writer) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: keysense config init|show|validate [-config path]")
	}

	sub := args[0]
	fs := flag.NewFlagSet("config "+sub, flag.ExitOnError)
	configPath := fs.String("config", "", "Configuration file (default: data dir config.toml)")
	force := fs.Bool("force", false, "Overwrite an existing file (init)")
	format := fs.String("format", "toml", "Output format for show: toml, json or yaml")
	fs.Parse(args[1:])

	path := *configPath
	if path == "" && sub != "init" {
		path = config.FindConfigFile()
	}
	if path == "" {
		path = config.ConfigPath()
	}

	switch sub {
	case "init":
		if _, err := os.Stat(path); err == nil && !*force {
			return fmt.Errorf("%s already exists (use -force to overwrite)", path)
		}
		if err := config.Save(config.DefaultConfig(), path); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Wrote default configuration to %s\n", path)
		return nil

	case "show":
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		data, err := config.Encode(cfg, "."+*format)
		if err != nil {
			return err
		}
		_, err = stdout.Write(data)
		return err

	case "validate":
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		verr := cfg.Validate()
		var verrs config.ValidationErrors
		if verr != nil && !errors.As(verr, &verrs) {
			return verr
		}
		for _, w := range verrs.Warnings() {
			fmt.Fprintf(stdout, "warning: %s: %s\n", w.Field, w.Message)
		}
		for _, e := range verrs.Errors() {
			fmt.Fprintf(stdout, "error:   %s: %s\n", e.Field, e.Message)
		}
		if verrs.HasErrors() {
			return fmt.Errorf("%s: %w", path, config.ErrInvalidConfig)
		}
		fmt.Fprintf(stdout, "%s is valid\n", path)
		return nil

	default:
		return fmt.Errorf("unknown config command: %s", sub)
	}
}
