package kafka

import (
	"errors"
	"fmt"
	"sync"

	"github.com/IBM/sarama"

	"scriptpipe/internal/logging"
	"scriptpipe/internal/telemetry"
	"scriptpipe/sink"
)

// driver publishes each output line as one record value, no key.
type driver struct {
	cfg Config
	p   sarama.AsyncProducer

	mu     sync.Mutex // guards closed vs. Input()
	closed bool

	drained  chan struct{}
	firstErr error
}

func (d *driver) Configure(c any) error {
	cfg, ok := c.(Config)
	if !ok {
		return fmt.Errorf("kafka-sink: expected Config, got %T", c)
	}
	if cfg.Topic == "" {
		return fmt.Errorf("kafka-sink: no topic configured")
	}

	ver, err := sarama.ParseKafkaVersion(cfg.Version)
	if err != nil {
		return err
	}
	sc := sarama.NewConfig()
	sc.Version = ver
	sc.ClientID = cfg.ClientID
	sc.Producer.RequiredAcks = sarama.RequiredAcks(cfg.Acks)
	sc.Producer.Return.Errors = true

	p, err := sarama.NewAsyncProducer(cfg.Brokers, sc)
	if err != nil {
		return err
	}
	d.attach(cfg, p)
	return nil
}

// attach starts draining the producer's error channel.
func (d *driver) attach(cfg Config, p sarama.AsyncProducer) {
	d.cfg = cfg
	d.p = p
	d.drained = make(chan struct{})
	go func() {
		defer close(d.drained)
		for perr := range p.Errors() {
			telemetry.SinkErrors.WithLabelValues("kafka").Inc()
			logging.L().Warn("kafka-sink: delivery failed", "topic", d.cfg.Topic, "err", perr.Err)
			if d.firstErr == nil {
				d.firstErr = perr.Err
			}
		}
	}()
}

func (d *driver) Push(line string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.p == nil {
		return fmt.Errorf("kafka-sink: not configured")
	}
	if d.closed {
		return fmt.Errorf("kafka-sink: closed")
	}
	d.p.Input() <- &sarama.ProducerMessage{
		Topic: d.cfg.Topic,
		Value: sarama.StringEncoder(line),
	}
	telemetry.SinkLines.WithLabelValues("kafka").Inc()
	return nil
}

// Close flushes buffered records and reports the first delivery failure.
func (d *driver) Close() error {
	d.mu.Lock()
	if d.closed || d.p == nil {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.p.AsyncClose()
	<-d.drained
	if d.firstErr != nil {
		return errors.Join(errors.New("kafka-sink: some records were not delivered"), d.firstErr)
	}
	return nil
}

func init() { sink.Register("kafka", func() sink.Adapter { return &driver{} }) }
