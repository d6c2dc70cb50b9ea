package producer

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer writes records synchronously so callers learn about failures.
type Producer struct {
	client *kgo.Client
}

// New creates a producer that requires acknowledgement from all in-sync
// replicas.
func New(brokers []string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka producer: no brokers configured")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: create client: %w", err)
	}
	return &Producer{client: client}, nil
}

// Produce writes value under key to topic and waits for the broker ack.
func (p *Producer) Produce(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	rec := &kgo.Record{Topic: topic, Key: key, Value: value}
	for k, v := range headers {
		rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", topic, err)
	}
	return nil
}

// Ping checks broker connectivity.
func (p *Producer) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// Close flushes pending records and releases the client.
func (p *Producer) Close() {
	p.client.Close()
}
