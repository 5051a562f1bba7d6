package engine

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"scriptpipe/internal/cache"
	"scriptpipe/internal/config"
	"scriptpipe/internal/host"
	"scriptpipe/internal/logging"
	"scriptpipe/internal/pipeline"
	"scriptpipe/sink"
	"scriptpipe/source"
)

type Engine struct {
	cfg    config.Config
	src    source.Adapter
	out    sink.Adapter
	gen    cache.Generator
	cache  *cache.Cache
	stdout io.Writer
	stderr io.Writer
}

// Run executes one session: sample the input, resolve the script for prompt,
// then run it against the batch stream. It does not wait for the producer;
// a source still blocked on a read is abandoned.
func (e *Engine) Run(ctx context.Context, prompt string) error {
	session := uuid.NewString()
	log := logging.L().With("session", session)

	ch := pipeline.NewChannel(e.cfg.Pipeline.Capacity)
	defer ch.Close()

	prod := pipeline.NewProducer(e.src, ch, pipeline.Options{
		SampleSize: e.cfg.Pipeline.SampleSize,
		BatchSize:  e.cfg.Pipeline.BatchSize,
	})
	sample, err := prod.Start(ctx)
	if err != nil {
		return fmt.Errorf("sample input: %w", err)
	}
	log.Debug("engine: sample captured", "lines", len(sample))

	path, err := e.cache.Resolve(ctx, prompt, sample)
	if err != nil {
		return err
	}
	log.Info("engine: running script", "path", path)

	h := host.New(ch, e.out, host.WithLogger(log), host.WithStderr(e.stderr))
	if err := h.Load(path); err != nil {
		return err
	}
	runErr := h.Run(ctx)
	ch.Close()

	select {
	case <-prod.Done():
		if perr := prod.Err(); perr != nil {
			log.Warn("engine: input ended early", "err", perr)
		}
	default:
		log.Debug("engine: leaving producer behind")
	}
	log.Debug("engine: session finished", "state", h.State().String())
	return runErr
}

// Close flushes the sink and releases the source.
func (e *Engine) Close() error {
	var errs []error
	if e.out != nil {
		if err := e.out.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sink: %w", err))
		}
	}
	if e.src != nil {
		if err := e.src.Close(); err != nil {
			errs = append(errs, fmt.Errorf("source: %w", err))
		}
	}
	return errors.Join(errs...)
}
