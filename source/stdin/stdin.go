// Package stdin reads newline-delimited lines from standard input.
package stdin

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-isatty"

	"scriptpipe/internal/logging"
	"scriptpipe/internal/telemetry"
	"scriptpipe/source"
)

type Config struct {
	// Input overrides os.Stdin (tests, embedding).
	Input io.Reader
}

type Driver struct {
	in io.Reader
}

func New() source.Adapter { return &Driver{} }

func (d *Driver) Configure(raw any) error {
	switch c := raw.(type) {
	case nil:
	case Config:
		d.in = c.Input
	default:
		return fmt.Errorf("stdin-source: expected Config, got %T", raw)
	}
	if d.in == nil {
		d.in = os.Stdin
		if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) {
			logging.L().Warn("stdin-source: reading from a terminal; end input with Ctrl-D")
		}
	}
	return nil
}

// Run emits lines of arbitrary length. Lines that are not valid UTF-8 are
// dropped. A read error other than EOF ends input and is returned.
func (d *Driver) Run(ctx context.Context, emit source.EmitFunc) error {
	if d.in == nil {
		if err := d.Configure(nil); err != nil {
			return err
		}
	}
	r := bufio.NewReaderSize(d.in, 64*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := r.ReadString('\n')
		if len(line) > 0 {
			line = strings.TrimSuffix(line, "\n")
			line = strings.TrimSuffix(line, "\r")
			if !utf8.ValidString(line) {
				telemetry.LinesSkipped.Inc()
				logging.L().Debug("stdin-source: skipped undecodable line", "bytes", len(line))
			} else {
				telemetry.LinesRead.Inc()
				if emitErr := emit(line); emitErr != nil {
					return emitErr
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("stdin-source: read: %w", err)
		}
	}
}

func (d *Driver) Close() error { return nil }
