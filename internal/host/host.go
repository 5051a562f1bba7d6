// Package host runs a generated script inside an embedded JavaScript engine.
//
// The script sees one input capability, readBatch(), which resolves with the
// next batch of lines or null at end of input. The engine is single
// threaded: blocking receives happen on helper goroutines and their results
// are applied on the goroutine that called Run.
package host

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dop251/goja"

	"scriptpipe/internal/logging"
	"scriptpipe/internal/pipeline"
	"scriptpipe/sink"
)

//go:embed prelude.js
var prelude string

// ErrInvalidState is returned when Load or Run is called out of order.
var ErrInvalidState = errors.New("host: invalid state")

// Fetcher is the receiving end of the batch channel.
type Fetcher interface {
	Next(ctx context.Context) (pipeline.Batch, bool, error)
}

type State int

const (
	Uninitialized State = iota
	ScriptLoaded
	Running
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case ScriptLoaded:
		return "script-loaded"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type Host struct {
	src    Fetcher
	out    sink.Adapter
	stderr io.Writer
	log    *slog.Logger

	state State
	vm    *goja.Runtime
	prog  *goja.Program
	loop  *loop

	runCtx    context.Context
	main      *goja.Promise
	unhandled map[*goja.Promise]struct{}

	// readBatch chaining; loop goroutine only
	tail chan struct{}
	eos  bool

	timers  map[int64]*timer
	timerID int64
}

type Option func(*Host)

// WithStderr redirects console.error and console.warn (default os.Stderr).
func WithStderr(w io.Writer) Option { return func(h *Host) { h.stderr = w } }

// WithLogger sets the logger used for host diagnostics.
func WithLogger(l *slog.Logger) Option { return func(h *Host) { h.log = l } }

// New binds the host to its input and output. The runtime itself is created
// by Load.
func New(src Fetcher, out sink.Adapter, opts ...Option) *Host {
	h := &Host{
		src:    src,
		out:    out,
		stderr: os.Stderr,
	}
	for _, o := range opts {
		o(h)
	}
	if h.log == nil {
		h.log = logging.L()
	}
	return h
}

func (h *Host) State() State { return h.state }

// Load creates the runtime, installs the host API and compiles the script
// at path. The script body becomes the body of an async function, so it may
// use top-level await.
func (h *Host) Load(path string) error {
	if h.state != Uninitialized {
		return fmt.Errorf("%w: load in state %s", ErrInvalidState, h.state)
	}
	if err := h.load(path); err != nil {
		h.state = Failed
		return err
	}
	h.state = ScriptLoaded
	return nil
}

func (h *Host) load(path string) error {
	h.vm = goja.New()
	h.loop = newLoop()
	h.unhandled = map[*goja.Promise]struct{}{}
	h.timers = map[int64]*timer{}
	closed := make(chan struct{})
	close(closed)
	h.tail = closed

	h.vm.SetPromiseRejectionTracker(func(p *goja.Promise, op goja.PromiseRejectionOperation) {
		switch op {
		case goja.PromiseRejectionReject:
			h.unhandled[p] = struct{}{}
		case goja.PromiseRejectionHandle:
			delete(h.unhandled, p)
		}
	})

	if err := h.vm.Set("readBatch", h.readBatch); err != nil {
		return err
	}
	if err := h.installConsole(); err != nil {
		return err
	}
	if err := h.installTimers(); err != nil {
		return err
	}
	if _, err := h.vm.RunScript("prelude.js", prelude); err != nil {
		return fmt.Errorf("host: prelude: %w", err)
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("host: read script: %w", err)
	}
	// same first line, so reported positions match the file
	wrapped := "(async () => {" + string(src) + "\n})()"
	prog, err := goja.Compile(path, wrapped, false)
	if err != nil {
		return fmt.Errorf("host: compile %s: %w", path, err)
	}
	h.prog = prog
	h.log.Debug("host: script loaded", "path", path, "bytes", len(src))
	return nil
}

// Run evaluates the script and drives the event loop until no async work
// remains. A throw, a rejected top-level promise, an unhandled rejection,
// a failing timer callback, a fetch error or ctx cancellation fails the run.
func (h *Host) Run(ctx context.Context) (err error) {
	if h.state != ScriptLoaded {
		return fmt.Errorf("%w: run in state %s", ErrInvalidState, h.state)
	}
	h.state = Running
	defer func() {
		if err != nil {
			h.state = Failed
			h.log.Debug("host: script failed", "err", err)
			return
		}
		h.state = Completed
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	h.runCtx = runCtx
	stop := context.AfterFunc(runCtx, func() { h.vm.Interrupt(runCtx.Err()) })
	defer stop()

	v, err := h.vm.RunProgram(h.prog)
	if err != nil {
		return h.fail(ctx, err)
	}
	main, ok := v.Export().(*goja.Promise)
	if !ok {
		return fmt.Errorf("host: script did not evaluate to a promise")
	}
	h.main = main

	if err := h.check(); err != nil {
		return err
	}
	if err := h.loop.run(runCtx, h.check); err != nil {
		return h.fail(ctx, err)
	}

	switch main.State() {
	case goja.PromiseStateRejected:
		return h.rejection("script failed", main.Result())
	case goja.PromiseStatePending:
		return errors.New("host: script stopped at an await that can never resolve")
	}
	return nil
}

// check runs after every loop job; microtasks have drained by then.
func (h *Host) check() error {
	if h.main != nil && h.main.State() == goja.PromiseStateRejected {
		return h.rejection("script failed", h.main.Result())
	}
	for p := range h.unhandled {
		if p == h.main {
			continue
		}
		return h.rejection("unhandled promise rejection", p.Result())
	}
	return nil
}

func (h *Host) rejection(what string, reason goja.Value) error {
	if reason == nil {
		return fmt.Errorf("host: %s", what)
	}
	return fmt.Errorf("host: %s: %s", what, reason.String())
}

func (h *Host) fail(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("host: %w", ctx.Err())
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return fmt.Errorf("host: script failed: %w", err)
	}
	return err
}
