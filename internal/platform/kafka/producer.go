package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"relay/internal/jobs/transport"
	"relay/internal/platform/config"
)

// FailureCounter counts records the broker never acknowledged.
type FailureCounter interface {
	IncEmitFailures()
}

// Producer is a fire-and-forget transport.Emitter. Delivery failures are
// logged and counted from the produce callback.
type Producer struct {
	client       *kgo.Client
	logger       *slog.Logger
	failures     FailureCounter
	flushTimeout time.Duration
}

// ProducerOption configures a Producer.
type ProducerOption func(*Producer)

// WithFailureCounter counts failed deliveries.
func WithFailureCounter(c FailureCounter) ProducerOption {
	return func(p *Producer) {
		p.failures = c
	}
}

// NewProducer connects a producer to the configured brokers.
func NewProducer(cfg config.KafkaConfig, logger *slog.Logger, opts ...ProducerOption) (*Producer, error) {
	kopts, err := baseOptions(cfg)
	if err != nil {
		return nil, err
	}
	kopts = append(kopts,
		kgo.RecordRetries(cfg.ProduceRetries),
		kgo.AllowAutoTopicCreation(),
	)
	client, err := kgo.NewClient(kopts...)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	p := &Producer{client: client, logger: logger, flushTimeout: cfg.FlushTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// Emit buffers rec for delivery and returns immediately.
func (p *Producer) Emit(ctx context.Context, rec *transport.Record) {
	kr := &kgo.Record{Topic: rec.Topic, Key: rec.Key, Value: rec.Value}
	// The caller's context usually ends with its request; delivery must outlive it.
	p.client.Produce(context.WithoutCancel(ctx), kr, func(r *kgo.Record, err error) {
		if err == nil {
			return
		}
		if p.failures != nil {
			p.failures.IncEmitFailures()
		}
		p.logger.ErrorContext(ctx, "kafka delivery failed",
			"topic", r.Topic,
			"key", string(r.Key),
			"error", err,
		)
	})
}

// Health pings the brokers.
func (p *Producer) Health(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// Close flushes buffered records, bounded by the flush timeout, and closes
// the client.
func (p *Producer) Close(ctx context.Context) error {
	timeout := p.flushTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	flushCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := p.client.Flush(flushCtx)
	p.client.Close()
	if err != nil {
		return fmt.Errorf("flush producer: %w", err)
	}
	return nil
}
