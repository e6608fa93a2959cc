package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"relay/internal/jobs/transport"
	"relay/internal/platform/config"
)

const (
	handleAttempts = 3
	retryBackoff   = 200 * time.Millisecond
)

// Consumer polls a consumer group and hands every record to a handler.
// Offsets are committed after the handler returns, so delivery is
// at-least-once.
type Consumer struct {
	client  *kgo.Client
	handler transport.Handler
	logger  *slog.Logger
}

// NewConsumer joins cfg.ConsumerGroup on topics.
func NewConsumer(cfg config.KafkaConfig, handler transport.Handler, logger *slog.Logger, topics ...string) (*Consumer, error) {
	if len(topics) == 0 {
		return nil, errors.New("kafka consumer: no topics")
	}
	kopts, err := baseOptions(cfg)
	if err != nil {
		return nil, err
	}
	kopts = append(kopts,
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(topics...),
		kgo.DisableAutoCommit(),
	)
	client, err := kgo.NewClient(kopts...)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return &Consumer{client: client, handler: handler, logger: logger}, nil
}

// Run polls until ctx ends. It returns nil on cancellation.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}
		for _, fe := range fetches.Errors() {
			c.logger.WarnContext(ctx, "kafka fetch error",
				"topic", fe.Topic,
				"partition", fe.Partition,
				"error", fe.Err,
			)
		}

		var handled []*kgo.Record
		fetches.EachRecord(func(r *kgo.Record) {
			c.handle(ctx, r)
			handled = append(handled, r)
		})
		if len(handled) == 0 {
			continue
		}
		if err := c.client.CommitRecords(ctx, handled...); err != nil && ctx.Err() == nil {
			c.logger.ErrorContext(ctx, "kafka commit failed",
				"records", len(handled),
				"error", err,
			)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, r *kgo.Record) {
	rec := &transport.Record{Topic: r.Topic, Key: r.Key, Value: r.Value}
	var err error
	for attempt := 1; attempt <= handleAttempts; attempt++ {
		if err = c.handler.Handle(ctx, rec); err == nil {
			return
		}
		if attempt == handleAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(retryBackoff * time.Duration(attempt)):
		}
	}
	c.logger.ErrorContext(ctx, "giving up on kafka record",
		"topic", r.Topic,
		"partition", r.Partition,
		"offset", r.Offset,
		"attempts", handleAttempts,
		"error", err,
	)
}

// Close leaves the group and closes the client.
func (c *Consumer) Close() {
	c.client.Close()
}
