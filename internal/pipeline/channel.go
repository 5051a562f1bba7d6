package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"scriptpipe/internal/telemetry"
)

// ErrClosed is returned by Send once the consumer has dropped its end.
// For the producer it is a stop signal, not a failure.
var ErrClosed = errors.New("pipeline: consumer closed the channel")

// Batch is an ordered, non-empty run of input lines moved as one unit.
type Batch []string

// Channel is the bounded single-producer/single-consumer handoff between
// the producer and the execution host. At most cap batches are buffered;
// Send blocks while it is full.
type Channel struct {
	ch   chan Batch
	done chan struct{} // closed by the consumer

	finishOnce sync.Once
	closeOnce  sync.Once
	eos        atomic.Bool
}

func NewChannel(capacity int) *Channel {
	if capacity < 1 {
		capacity = 1
	}
	return &Channel{
		ch:   make(chan Batch, capacity),
		done: make(chan struct{}),
	}
}

/*──────── producer side ───────*/

// Send enqueues b, blocking while the channel is full. It returns ErrClosed
// without enqueuing once the consumer is gone. Empty batches are dropped.
func (c *Channel) Send(ctx context.Context, b Batch) error {
	if len(b) == 0 {
		return nil
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.ch <- b:
		telemetry.BatchesSent.Inc()
		telemetry.InFlight.Set(float64(len(c.ch)))
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Finish marks the end of input. Buffered batches stay readable.
func (c *Channel) Finish() {
	c.finishOnce.Do(func() { close(c.ch) })
}

/*──────── consumer side ───────*/

// Next returns the next batch in send order. ok is false at end-of-stream:
// the producer finished and the buffer is drained, or Close was called.
// End-of-stream is terminal; every later call reports it again.
func (c *Channel) Next(ctx context.Context) (b Batch, ok bool, err error) {
	if c.eos.Load() {
		return nil, false, nil
	}
	select {
	case b, ok = <-c.ch:
		if !ok {
			c.eos.Store(true)
			return nil, false, nil
		}
		telemetry.InFlight.Set(float64(len(c.ch)))
		return b, true, nil
	case <-c.done:
		c.eos.Store(true)
		return nil, false, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Close drops the consumer end. Idempotent.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		c.eos.Store(true)
		close(c.done)
	})
}

func (c *Channel) Len() int { return len(c.ch) }
func (c *Channel) Cap() int { return cap(c.ch) }
