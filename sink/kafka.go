package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/web3tea/binlog-sentinel/capturer"
)

type KafkaConfig struct {
	Brokers []string `json:"brokers" yaml:"brokers" toml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic" toml:"topic"`
	// Acks is "all" (default), "leader" or "none".
	Acks string `json:"acks" yaml:"acks" toml:"acks"`
	// Compression is "gzip", "snappy", "lz4", "zstd" or empty for none.
	Compression string `json:"compression" yaml:"compression" toml:"compression"`
}

// producer is the part of *kgo.Client the sink uses.
type producer interface {
	Ping(ctx context.Context) error
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Flush(ctx context.Context) error
	Close()
}

// KafkaSink publishes every event as one JSON record keyed by its qualified
// table name, so the events of a table stay ordered within a partition.
type KafkaSink struct {
	cfg    KafkaConfig
	client producer
}

func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	brokers := lo.Compact(lo.Map(cfg.Brokers, func(b string, _ int) string { return strings.TrimSpace(b) }))
	if len(brokers) == 0 {
		return nil, errors.New("kafka sink: no brokers configured")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka sink: no topic configured")
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(parseAcks(cfg.Acks)),
		kgo.ProducerBatchCompression(parseCompression(cfg.Compression)),
	}
	if parseAcks(cfg.Acks) != kgo.AllISRAcks() {
		// idempotent writes need acks from all in-sync replicas
		opts = append(opts, kgo.DisableIdempotentWrite())
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaSink{cfg: cfg, client: client}, nil
}

func (s *KafkaSink) Init(ctx context.Context) error {
	if err := s.client.Ping(ctx); err != nil {
		return fmt.Errorf("ping kafka brokers: %w", err)
	}
	return nil
}

func (s *KafkaSink) Write(ctx context.Context, events []*capturer.Event) error {
	if len(events) == 0 {
		return nil
	}

	records := make([]*kgo.Record, 0, len(events))
	for _, event := range events {
		value, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", event.ID, err)
		}
		records = append(records, &kgo.Record{
			Key:   []byte(event.QualifiedName()),
			Value: value,
			Headers: []kgo.RecordHeader{
				{Key: "operation", Value: []byte(event.Type)},
				{Key: "position", Value: []byte(event.Position.String())},
			},
		})
	}

	if err := s.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", s.cfg.Topic, err)
	}
	return nil
}

func (s *KafkaSink) Flush(ctx context.Context) error {
	return s.client.Flush(ctx)
}

func (s *KafkaSink) Close() error {
	s.client.Close()
	return nil
}

func (s *KafkaSink) Type() string {
	return "kafka"
}

func parseCompression(value string) kgo.CompressionCodec {
	switch strings.ToLower(value) {
	case "gzip":
		return kgo.GzipCompression()
	case "snappy":
		return kgo.SnappyCompression()
	case "lz4":
		return kgo.Lz4Compression()
	case "zstd":
		return kgo.ZstdCompression()
	default:
		return kgo.NoCompression()
	}
}

func parseAcks(value string) kgo.Acks {
	switch strings.ToLower(value) {
	case "none", "0":
		return kgo.NoAck()
	case "leader", "1":
		return kgo.LeaderAck()
	default:
		return kgo.AllISRAcks()
	}
}

var _ Sink = (*KafkaSink)(nil)
