// Package kafka carries jobs between the web and worker tiers over Kafka
// using franz-go.
package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"relay/internal/platform/config"
)

// ErrNoBrokers is returned when the Kafka transport is requested without brokers.
var ErrNoBrokers = errors.New("kafka: no brokers configured")

func baseOptions(cfg config.KafkaConfig) ([]kgo.Opt, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	return []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
	}, nil
}

// EnsureTopics creates any missing topic. Existing topics are left untouched.
func EnsureTopics(ctx context.Context, cfg config.KafkaConfig, topics ...string) error {
	if len(topics) == 0 {
		return nil
	}
	opts, err := baseOptions(cfg)
	if err != nil {
		return err
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return fmt.Errorf("kafka admin client: %w", err)
	}
	defer client.Close()

	adm := kadm.NewClient(client)
	resps, err := adm.CreateTopics(ctx, cfg.Partitions, cfg.ReplicationFactor, nil, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	var errs []error
	for _, resp := range resps.Sorted() {
		if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
			errs = append(errs, fmt.Errorf("create topic %s: %w", resp.Topic, resp.Err))
		}
	}
	return errors.Join(errs...)
}
