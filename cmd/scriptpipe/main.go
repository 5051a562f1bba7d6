package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"scriptpipe/internal/config"
	"scriptpipe/internal/engine"
	"scriptpipe/internal/logging"
	"scriptpipe/source"
	"scriptpipe/source/kafka"
	"scriptpipe/source/stdin"
)

const defaultConfig = "scriptpipe.yml"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	logging.InitFromEnv()

	fs := flag.NewFlagSet("scriptpipe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := fs.String("config", defaultConfig, "config file (YAML, or TOML by .toml extension)")
	dump := fs.Bool("dump-config", false, "print the effective configuration and exit")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: scriptpipe [options] \"<prompt>\"\n\n")
		fmt.Fprintf(stderr, "Reads lines from the configured source, obtains a script for the prompt\n")
		fmt.Fprintf(stderr, "(generated once, then cached) and runs it over the input.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExample:\n")
		fmt.Fprintf(stderr, "  cat access.log | scriptpipe \"count requests per status code\"\n")
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	prompt := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if prompt == "" && !*dump {
		fs.Usage()
		return 2
	}

	explicit := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicit = true
		}
	})
	if explicit {
		if _, err := os.Stat(*cfgPath); err != nil {
			fmt.Fprintf(stderr, "scriptpipe: %v\n", err)
			return 1
		}
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(stderr, "scriptpipe: %v\n", err)
		return 1
	}
	if *dump {
		b, err := cfg.YAML()
		if err != nil {
			fmt.Fprintf(stderr, "scriptpipe: %v\n", err)
			return 1
		}
		_, _ = stdout.Write(b)
		return 0
	}

	// env wins over the file for log settings
	if os.Getenv("SCRIPTPIPE_LOG_LEVEL") == "" && os.Getenv("SCRIPTPIPE_LOG_JSON") == "" {
		logging.Configure(logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON})
	}

	source.Register("stdin", stdin.New)
	source.Register("kafka", kafka.New)

	e, err := engine.Bootstrap(ctx, cfg, engine.WithStdout(stdout), engine.WithStderr(stderr))
	if err != nil {
		fmt.Fprintf(stderr, "scriptpipe: bootstrap: %v\n", err)
		return 1
	}
	runErr := e.Run(ctx, prompt)
	if cerr := e.Close(); runErr == nil {
		runErr = cerr
	}
	if runErr != nil {
		fmt.Fprintf(stderr, "scriptpipe: %v\n", runErr)
		return 1
	}
	return 0
}
