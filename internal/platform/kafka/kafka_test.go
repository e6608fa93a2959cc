package kafka

import (
	"testing"

	"github.com/stretchr/testify/require"

	"relay/internal/jobs/transport"
	"relay/internal/platform/config"
	"relay/internal/platform/logger"
)

func TestRequiresBrokers(t *testing.T) {
	_, err := NewProducer(config.KafkaConfig{}, logger.Discard())
	require.ErrorIs(t, err, ErrNoBrokers)

	_, err = NewConsumer(config.KafkaConfig{}, transport.NewRouter(logger.Discard()), logger.Discard(), "controller.sms")
	require.ErrorIs(t, err, ErrNoBrokers)

	_, err = NewConsumer(config.KafkaConfig{Brokers: []string{"localhost:9092"}}, transport.NewRouter(logger.Discard()), logger.Discard())
	require.Error(t, err)
}
