package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// EnsureTopics creates any of topics that do not exist yet.
func EnsureTopics(ctx context.Context, brokers []string, partitions int32, replicationFactor int16, topics ...string) error {
	client, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return fmt.Errorf("kafka admin: create client: %w", err)
	}
	defer client.Close()

	admin := kadm.NewClient(client)
	resp, err := admin.CreateTopics(ctx, partitions, replicationFactor, nil, topics...)
	if err != nil {
		return fmt.Errorf("kafka admin: create topics: %w", err)
	}
	for _, r := range resp.Sorted() {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("kafka admin: create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}
