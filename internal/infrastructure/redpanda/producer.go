// Package redpanda publishes transmission outcome events with franz-go.
package redpanda

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/go-iis/internal/domain/transmission"
)

// ProducerConfig holds configuration for the event producer
type ProducerConfig struct {
	Brokers []string
	// LingerMS is the time to wait before sending a batch
	LingerMS int64
	// RequiredAcks sets the required acks level (-1 for all, 1 for leader)
	RequiredAcks int16
	MaxRetries   int
	// ProduceTimeout bounds a single publish
	ProduceTimeout time.Duration
}

// DefaultProducerConfig returns defaults sized for batch-job event volumes
func DefaultProducerConfig(brokers []string) ProducerConfig {
	return ProducerConfig{
		Brokers:        brokers,
		LingerMS:       5,
		RequiredAcks:   -1,
		MaxRetries:     3,
		ProduceTimeout: 10 * time.Second,
	}
}

// Producer publishes outcome events and implements transmission.Publisher
type Producer struct {
	client *kgo.Client
	config ProducerConfig
	logger *zap.Logger
	tracer trace.Tracer

	sent, failed atomic.Int64
}

// NewProducer creates a producer
func NewProducer(cfg ProducerConfig, logger *zap.Logger) (*Producer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ProduceTimeout <= 0 {
		cfg.ProduceTimeout = 10 * time.Second
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ProducerLinger(time.Duration(cfg.LingerMS) * time.Millisecond),
		kgo.RecordRetries(cfg.MaxRetries),
		kgo.ProducerBatchCompression(kgo.Lz4Compression()),
	}

	switch cfg.RequiredAcks {
	case 0:
		opts = append(opts, kgo.RequiredAcks(kgo.NoAck()), kgo.DisableIdempotentWrite())
	case 1:
		opts = append(opts, kgo.RequiredAcks(kgo.LeaderAck()), kgo.DisableIdempotentWrite())
	default:
		opts = append(opts, kgo.RequiredAcks(kgo.AllISRAcks()))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("redpanda client: %w", err)
	}

	return &Producer{
		client: client,
		config: cfg,
		logger: logger,
		tracer: otel.Tracer("redpanda-producer"),
	}, nil
}

// TopicFor routes an event to its topic
func TopicFor(e *transmission.Event) string {
	if e.EventType == transmission.EventResultReconciled {
		return TopicResultsReconciled
	}
	return TopicTransmissionOutcomes
}

// NewRecord encodes an event as a Kafka record keyed by its dedup key
func NewRecord(ctx context.Context, e *transmission.Event) (*kgo.Record, error) {
	value, err := e.Payload()
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", e.ID, err)
	}
	record := &kgo.Record{
		Topic: TopicFor(e),
		Key:   []byte(e.PartitionKey()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(e.EventType)},
			{Key: "run_id", Value: []byte(e.RunID)},
		},
	}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{record})
	return record, nil
}

// Publish sends one event and waits for the broker acknowledgment
func (p *Producer) Publish(ctx context.Context, e *transmission.Event) error {
	record, err := NewRecord(ctx, e)
	if err != nil {
		return err
	}

	ctx, span := p.tracer.Start(ctx, "produce_event",
		trace.WithAttributes(
			attribute.String("topic", record.Topic),
			attribute.String("key", string(record.Key)),
		))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, p.config.ProduceTimeout)
	defer cancel()

	res := p.client.ProduceSync(ctx, record)
	if err := res.FirstErr(); err != nil {
		p.failed.Add(1)
		span.RecordError(err)
		return fmt.Errorf("produce %s to %s: %w", e.EventType, record.Topic, err)
	}

	p.sent.Add(1)

	r := res[0].Record
	p.logger.Debug("event produced",
		zap.String("topic", r.Topic),
		zap.Int32("partition", r.Partition),
		zap.Int64("offset", r.Offset))
	return nil
}

// Close waits up to 30s for buffered records and closes the client
func (p *Producer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := p.client.Flush(ctx); err != nil {
		p.logger.Warn("unflushed events dropped on close", zap.Error(err))
	}
	p.client.Close()
	p.logger.Debug("producer closed", zap.Int64("sent", p.sent.Load()), zap.Int64("failed", p.failed.Load()))
	return nil
}

// headerCarrier exposes record headers to otel propagators
type headerCarrier struct {
	r *kgo.Record
}

var _ propagation.TextMapCarrier = headerCarrier{}

func (c headerCarrier) Get(key string) string {
	for _, h := range c.r.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range c.r.Headers {
		if h.Key == key {
			c.r.Headers[i].Value = []byte(value)
			return
		}
	}
	c.r.Headers = append(c.r.Headers, kgo.RecordHeader{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, len(c.r.Headers))
	for i, h := range c.r.Headers {
		keys[i] = h.Key
	}
	return keys
}
