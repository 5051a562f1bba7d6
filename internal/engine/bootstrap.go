package engine

import (
	"context"
	"fmt"
	"io"
	"os"

	"scriptpipe/internal/cache"
	"scriptpipe/internal/codegen"
	"scriptpipe/internal/config"
	"scriptpipe/internal/logging"
	"scriptpipe/internal/telemetry"
	"scriptpipe/sink"
	"scriptpipe/source"
)

type Option func(*Engine)

// WithSource replaces the configured line source.
func WithSource(src source.Adapter) Option { return func(e *Engine) { e.src = src } }

// WithSink replaces the configured output sink.
func WithSink(out sink.Adapter) Option { return func(e *Engine) { e.out = out } }

// WithGenerator replaces the configured code generator.
func WithGenerator(g cache.Generator) Option { return func(e *Engine) { e.gen = g } }

// WithStdout sets where the stdout sink writes (default os.Stdout).
func WithStdout(w io.Writer) Option { return func(e *Engine) { e.stdout = w } }

// WithStderr redirects the script's console.error output.
func WithStderr(w io.Writer) Option { return func(e *Engine) { e.stderr = w } }

func Bootstrap(ctx context.Context, cfg config.Config, opts ...Option) (*Engine, error) {
	e := &Engine{cfg: cfg, stdout: os.Stdout, stderr: os.Stderr}
	for _, o := range opts {
		o(e)
	}

	// 1. line source
	if e.src == nil {
		src, err := buildSource(cfg.Source)
		if err != nil {
			return nil, err
		}
		e.src = src
	}

	// 2. output sink
	if e.out == nil {
		out, err := buildSink(cfg.Sink, e.stdout)
		if err != nil {
			_ = e.src.Close()
			return nil, err
		}
		e.out = out
	}

	// 3. script cache; credentials are only read on a miss
	if e.gen == nil {
		gen, err := codegen.New(cfg.Generator)
		if err != nil {
			_ = e.Close()
			return nil, err
		}
		e.gen = gen
	}
	e.cache = cache.New(cfg.Cache.Dir, e.gen)

	// 4. metrics
	if err := telemetry.Expose(cfg.Metrics.Addr); err != nil {
		_ = e.Close()
		return nil, fmt.Errorf("metrics: %w", err)
	}

	logging.L().Debug("engine: ready",
		"source", cfg.Source.Kind, "sink", cfg.Sink.Kind,
		"provider", cfg.Generator.Provider, "cache", cfg.Cache.Dir)
	return e, nil
}
