package telemetry

import (
	"errors"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"scriptpipe/internal/logging"
)

// Registry holds every scriptpipe collector. It is separate from the
// global default registry so tests and embedders see only our series.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	LinesRead = factory.NewCounter(prometheus.CounterOpts{
		Name: "scriptpipe_lines_read_total",
		Help: "Input lines accepted by the line source.",
	})
	LinesSkipped = factory.NewCounter(prometheus.CounterOpts{
		Name: "scriptpipe_lines_skipped_total",
		Help: "Input lines dropped because they could not be decoded.",
	})
	BatchesSent = factory.NewCounter(prometheus.CounterOpts{
		Name: "scriptpipe_batches_sent_total",
		Help: "Batches handed to the channel by the producer.",
	})
	BatchesFetched = factory.NewCounter(prometheus.CounterOpts{
		Name: "scriptpipe_batches_fetched_total",
		Help: "Batches delivered to the script through readBatch.",
	})
	InFlight = factory.NewGauge(prometheus.GaugeOpts{
		Name: "scriptpipe_channel_batches_in_flight",
		Help: "Batches buffered in the channel.",
	})
	CacheLookups = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "scriptpipe_cache_lookups_total",
		Help: "Script cache lookups by result (hit|miss).",
	}, []string{"result"})
	GenerateSeconds = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scriptpipe_generate_duration_seconds",
		Help:    "Latency of code generation calls by provider.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
	}, []string{"provider"})
	SinkLines = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "scriptpipe_sink_lines_total",
		Help: "Lines pushed to an output sink.",
	}, []string{"sink"})
	SinkErrors = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "scriptpipe_sink_errors_total",
		Help: "Delivery failures reported by an output sink.",
	}, []string{"sink"})
)

// Expose serves /metrics on addr in the background. An empty addr is a no-op.
func Expose(addr string) error {
	if addr == "" {
		return nil
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))
	go func() {
		if err := http.Serve(lis, mux); err != nil && !errors.Is(err, net.ErrClosed) {
			logging.L().Warn("metrics endpoint stopped", "addr", addr, "err", err)
		}
	}()
	logging.L().Info("metrics endpoint listening", "addr", lis.Addr().String())
	return nil
}
