// scriptpipe/sink/stdout/driver.go
package stdout

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"scriptpipe/internal/telemetry"
	"scriptpipe/sink"
)

/* ────────── public config ────────── */
type Config struct {
	FlushMS    int       `koanf:"flush_ms"`    // 0 = flush only when the buffer fills and on Close
	BufferSize int       `koanf:"buffer_size"` // bytes; 0 = 64KiB
	Output     io.Writer `koanf:"-"`           // nil → os.Stdout
}

/* ────────── driver ────────── */
type driver struct {
	cfg Config

	mu     sync.Mutex // guards w+timer
	w      *bufio.Writer
	timer  *time.Timer // nil → no timer armed
	closed bool
}

/* ────────── sink.Adapter ────────── */
func (d *driver) Configure(raw any) error {
	c, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("stdout-sink: expected Config, got %T", raw)
	}
	if c.Output == nil {
		c.Output = os.Stdout
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 64 * 1024
	}
	d.cfg = c
	d.w = bufio.NewWriterSize(c.Output, c.BufferSize)
	return nil
}

func (d *driver) Push(line string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.w == nil {
		return fmt.Errorf("stdout-sink: not configured")
	}
	if d.closed {
		return fmt.Errorf("stdout-sink: closed")
	}

	if _, err := d.w.WriteString(line); err != nil {
		telemetry.SinkErrors.WithLabelValues("stdout").Inc()
		return err
	}
	if err := d.w.WriteByte('\n'); err != nil {
		telemetry.SinkErrors.WithLabelValues("stdout").Inc()
		return err
	}
	telemetry.SinkLines.WithLabelValues("stdout").Inc()

	/* arm the one-shot timer if needed */
	if d.cfg.FlushMS > 0 && d.timer == nil {
		d.timer = time.AfterFunc(
			time.Duration(d.cfg.FlushMS)*time.Millisecond,
			d.timerFlush,
		)
	}
	return nil
}

func (d *driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.w == nil {
		return nil
	}
	d.closed = true
	d.stopTimerLocked()
	return d.w.Flush()
}

/* ────────── internals ────────── */

// called by the background timer goroutine
func (d *driver) timerFlush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.timer = nil // re-arm on next Push
	if d.closed {
		return
	}
	if err := d.w.Flush(); err != nil {
		telemetry.SinkErrors.WithLabelValues("stdout").Inc()
	}
}

// must be called with d.mu *held*
func (d *driver) stopTimerLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

/* ────────── auto-register ────────── */
func init() {
	sink.Register("stdout", func() sink.Adapter { return &driver{} })
}
