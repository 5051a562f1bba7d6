package engine

import (
	"fmt"
	"io"

	"scriptpipe/internal/config"
	"scriptpipe/sink"
	kafkasink "scriptpipe/sink/kafka"
	"scriptpipe/sink/stdout"
	"scriptpipe/source"
	"scriptpipe/source/kafka"
	"scriptpipe/source/stdin"
)

// buildSource resolves source.kind through the registry and hands the
// driver its config.
func buildSource(sc config.SourceConfig) (source.Adapter, error) {
	src, err := source.NewAdapter(sc.Kind)
	if err != nil {
		return nil, err
	}

	switch sc.Kind {
	case "stdin":
		err = src.Configure(stdin.Config{})
	case "kafka":
		var kc kafka.Config
		if kc, err = kafka.LoadConfig(sc.Config); err == nil {
			err = src.Configure(kc)
		}
	default:
		err = fmt.Errorf("no config block for source %q", sc.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", sc.Kind, err)
	}
	return src, nil
}

// buildSink does the same for sink.kind; the stdout driver writes to w.
func buildSink(sc config.SinkConfig, w io.Writer) (sink.Adapter, error) {
	out, err := sink.NewAdapter(sc.Kind)
	if err != nil {
		return nil, err
	}

	switch sc.Kind {
	case "stdout":
		err = out.Configure(stdout.Config{FlushMS: sc.FlushMS, Output: w})
	case "kafka":
		var kc kafkasink.Config
		if kc, err = kafkasink.LoadConfig(sc.Config); err == nil {
			err = out.Configure(kc)
		}
	default:
		err = fmt.Errorf("no config block for sink %q", sc.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("sink %s: %w", sc.Kind, err)
	}
	return out, nil
}
