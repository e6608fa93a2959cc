//go:build integration

package kafka

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay/internal/jobs/transport"
	"relay/internal/platform/config"
	"relay/internal/platform/logger"
	"relay/pkg/testutil/containers"
)

func TestProducerConsumerRoundTrip(t *testing.T) {
	kc := containers.NewKafkaContainer(t)
	cfg := config.KafkaConfig{
		Brokers:           []string{kc.Broker},
		ClientID:          "relay-test",
		ConsumerGroup:     "relay-test-workers",
		ProduceRetries:    3,
		Partitions:        1,
		ReplicationFactor: 1,
		FlushTimeout:      5 * time.Second,
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	require.NoError(t, EnsureTopics(ctx, cfg, "controller.sms"))
	require.NoError(t, EnsureTopics(ctx, cfg, "controller.sms"), "existing topics are not an error")

	var mu sync.Mutex
	var got []*transport.Record
	received := make(chan struct{}, 3)
	consumer, err := NewConsumer(cfg, transport.HandlerFunc(func(_ context.Context, rec *transport.Record) error {
		mu.Lock()
		got = append(got, rec)
		mu.Unlock()
		received <- struct{}{}
		return nil
	}), logger.Discard(), "controller.sms")
	require.NoError(t, err)
	defer consumer.Close()

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- consumer.Run(runCtx) }()

	producer, err := NewProducer(cfg, logger.Discard())
	require.NoError(t, err)
	require.NoError(t, producer.Health(ctx))
	for _, key := range []string{"a", "b", "c"} {
		producer.Emit(ctx, &transport.Record{Topic: "controller.sms", Key: []byte(key), Value: []byte(`{"app":"main"}`)})
	}
	require.NoError(t, producer.Close(ctx))

	for range 3 {
		select {
		case <-received:
		case <-ctx.Done():
			t.Fatal("timed out waiting for records")
		}
	}
	stop()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	keys := make([]string, 0, len(got))
	for _, rec := range got {
		assert.Equal(t, "controller.sms", rec.Topic)
		keys = append(keys, string(rec.Key))
	}
	assert.ElementsMatch(t, []string{"a", "b", "c"}, keys)
}
