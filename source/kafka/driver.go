package kafka

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"unicode/utf8"

	"github.com/IBM/sarama"

	"scriptpipe/internal/logging"
	"scriptpipe/internal/telemetry"
	"scriptpipe/source"
)

// offsetReader is the slice of sarama.Client the replay needs.
type offsetReader interface {
	GetOffset(topic string, partitionID int32, time int64) (int64, error)
}

// SaramaDriver replays topics as a bounded line stream: every partition is
// read from its start offset up to the high-water mark observed before
// consuming it, one message value per line. No consumer group, no commits.
type SaramaDriver struct {
	cfg      Config
	cl       sarama.Client
	consumer sarama.Consumer
	offsets  offsetReader
}

func New() source.Adapter { return &SaramaDriver{} }

func (d *SaramaDriver) Configure(raw any) error {
	config, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("kafka-source: expected Config, got %T", raw)
	}
	if len(config.Topics) == 0 {
		return fmt.Errorf("kafka-source: no topics configured")
	}
	d.cfg = config

	ver, err := sarama.ParseKafkaVersion(config.Version)
	if err != nil {
		return err
	}
	sc := sarama.NewConfig()
	sc.Version = ver
	sc.ClientID = config.ClientID
	sc.Consumer.Return.Errors = true
	if config.TLSEn {
		sc.Net.TLS.Enable = true
	}
	if config.SASLUser != "" {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.User, sc.Net.SASL.Password = config.SASLUser, config.SASLPass
	}

	if d.cl, err = sarama.NewClient(config.Brokers, sc); err != nil {
		return err
	}
	d.offsets = d.cl
	d.consumer, err = sarama.NewConsumerFromClient(d.cl)
	return err
}

func (d *SaramaDriver) Run(ctx context.Context, emit source.EmitFunc) error {
	for _, topic := range d.cfg.Topics {
		parts, err := d.consumer.Partitions(topic)
		if err != nil {
			return fmt.Errorf("kafka-source: partitions of %s: %w", topic, err)
		}
		sort.Slice(parts, func(i, j int) bool { return parts[i] < parts[j] })
		for _, p := range parts {
			if err := d.replay(ctx, topic, p, emit); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *SaramaDriver) replay(ctx context.Context, topic string, partition int32, emit source.EmitFunc) error {
	start, err := d.offsets.GetOffset(topic, partition, sarama.OffsetOldest)
	if err != nil {
		return fmt.Errorf("kafka-source: oldest offset %s[%d]: %w", topic, partition, err)
	}
	if n, err := strconv.ParseInt(d.cfg.StartFrom, 10, 64); err == nil && n > start {
		start = n
	}
	end, err := d.offsets.GetOffset(topic, partition, sarama.OffsetNewest)
	if err != nil {
		return fmt.Errorf("kafka-source: newest offset %s[%d]: %w", topic, partition, err)
	}
	if end <= start {
		return nil
	}

	pc, err := d.consumer.ConsumePartition(topic, partition, start)
	if err != nil {
		return fmt.Errorf("kafka-source: consume %s[%d]: %w", topic, partition, err)
	}
	defer pc.Close()

	logging.L().Debug("kafka-source: replaying partition", "topic", topic, "partition", partition, "from", start, "to", end)

	errs := pc.Errors()
	// compacted topics leave offset gaps, so stop on whichever comes first
	for seen := int64(0); seen < end-start; {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case cerr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			return fmt.Errorf("kafka-source: %s[%d]: %w", topic, partition, cerr.Err)

		case msg, ok := <-pc.Messages():
			if !ok {
				return nil
			}
			seen++
			if !utf8.Valid(msg.Value) {
				telemetry.LinesSkipped.Inc()
			} else {
				telemetry.LinesRead.Inc()
				if err := emit(string(msg.Value)); err != nil {
					return err
				}
			}
			if msg.Offset >= end-1 {
				return nil
			}
		}
	}
	return nil
}

func (d *SaramaDriver) Close() error {
	if d.consumer != nil {
		_ = d.consumer.Close()
	}
	if d.cl != nil {
		_ = d.cl.Close()
	}
	return nil
}
