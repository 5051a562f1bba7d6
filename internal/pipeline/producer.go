package pipeline

import (
	"context"
	"errors"

	"scriptpipe/internal/logging"
	"scriptpipe/source"
)

type Options struct {
	SampleSize int // lines captured for code generation
	BatchSize  int // lines per batch
}

// Producer drives a line source on its own goroutine, hands the first
// SampleSize lines to the caller and streams every line, sample included,
// into the channel in batches of BatchSize.
type Producer struct {
	src  source.Adapter
	ch   *Channel
	opts Options

	sample chan []string // rendezvous, buffered 1
	done   chan struct{}
	err    error
}

func NewProducer(src source.Adapter, ch *Channel, opts Options) *Producer {
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	if opts.SampleSize < 0 {
		opts.SampleSize = 0
	}
	return &Producer{
		src:    src,
		ch:     ch,
		opts:   opts,
		sample: make(chan []string, 1),
		done:   make(chan struct{}),
	}
}

// Start launches the producer and blocks until the sample is available:
// SampleSize lines were read, or input ended first.
func (p *Producer) Start(ctx context.Context) ([]string, error) {
	go p.run(ctx)
	select {
	case s := <-p.sample:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed once the producer has stopped and finished the channel.
func (p *Producer) Done() <-chan struct{} { return p.done }

// Err reports why input ended early; nil for EOF or a consumer stop.
// Valid after Done is closed.
func (p *Producer) Err() error { return p.err }

func (p *Producer) run(ctx context.Context) {
	defer close(p.done)
	defer p.ch.Finish()

	st := &runState{p: p, ctx: ctx, batch: make(Batch, 0, p.opts.BatchSize)}
	if p.opts.SampleSize == 0 {
		_ = st.deliverSample()
	}

	err := p.src.Run(ctx, st.push)
	switch {
	case errors.Is(err, ErrClosed):
		logging.L().Debug("producer: consumer closed, stopping", "lines", st.lines)
		st.deliverSampleQuiet()
		return
	case err != nil && ctx.Err() != nil:
		st.deliverSampleQuiet()
		return
	case err != nil:
		// input ended on a read error; what was read still goes downstream
		p.err = err
		logging.L().Warn("producer: source stopped", "err", err, "lines", st.lines)
	}

	if err := st.flush(); err != nil && !errors.Is(err, ErrClosed) && p.err == nil {
		p.err = err
	}
	logging.L().Debug("producer: input drained", "lines", st.lines)
}

// runState is owned by the producer goroutine.
type runState struct {
	p   *Producer
	ctx context.Context

	lines   int
	sample  []string
	sampled bool
	held    []Batch // full batches waiting for the sample to be handed over
	batch   Batch
}

func (s *runState) push(line string) error {
	s.lines++
	if !s.sampled {
		s.sample = append(s.sample, line)
	}
	s.batch = append(s.batch, line)

	if len(s.batch) == s.p.opts.BatchSize {
		b := s.batch
		s.batch = make(Batch, 0, s.p.opts.BatchSize)
		if err := s.send(b); err != nil {
			return err
		}
	}
	if !s.sampled && len(s.sample) >= s.p.opts.SampleSize {
		return s.deliverSample()
	}
	return nil
}

func (s *runState) send(b Batch) error {
	if !s.sampled {
		s.held = append(s.held, b)
		return nil
	}
	return s.p.ch.Send(s.ctx, b)
}

// deliverSample hands the sample to Start, then releases held batches.
func (s *runState) deliverSample() error {
	if s.sampled {
		return nil
	}
	s.sampled = true
	s.p.sample <- s.takeSample()

	held := s.held
	s.held = nil
	for _, b := range held {
		if err := s.p.ch.Send(s.ctx, b); err != nil {
			return err
		}
	}
	return nil
}

// deliverSampleQuiet unblocks Start on an early stop without sending data.
func (s *runState) deliverSampleQuiet() {
	if s.sampled {
		return
	}
	s.sampled = true
	s.held = nil
	s.p.sample <- s.takeSample()
}

func (s *runState) takeSample() []string {
	out := make([]string, len(s.sample))
	copy(out, s.sample)
	s.sample = nil
	return out
}

func (s *runState) flush() error {
	if err := s.deliverSample(); err != nil {
		return err
	}
	if len(s.batch) == 0 {
		return nil
	}
	b := s.batch
	s.batch = nil
	return s.p.ch.Send(s.ctx, b)
}
