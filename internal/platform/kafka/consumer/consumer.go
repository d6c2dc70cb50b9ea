package consumer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Message is a single record handed to a Handler.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// Handler processes one message. A returned error is logged; the offset is
// still committed, so handlers own their retry policy.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg *Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg *Message) error { return f(ctx, msg) }

// Config configures a group consumer.
type Config struct {
	Brokers []string
	GroupID string
	Topics  []string
}

// Consumer polls a consumer group and commits offsets after each batch.
type Consumer struct {
	client *kgo.Client
	logger *slog.Logger
}

// New creates a group consumer with auto-commit disabled.
func New(cfg Config, logger *slog.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka consumer: no brokers configured")
	}
	if cfg.GroupID == "" {
		return nil, errors.New("kafka consumer: group id is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.Topics...),
		kgo.DisableAutoCommit(),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: create client: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Consumer{client: client, logger: logger}, nil
}

// Run polls until ctx is cancelled or the client is closed.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return ctx.Err()
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.ErrorContext(ctx, "kafka fetch error",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})
		fetches.EachRecord(func(rec *kgo.Record) {
			msg := fromRecord(rec)
			if err := handler.Handle(ctx, msg); err != nil {
				c.logger.ErrorContext(ctx, "message handler failed",
					"topic", msg.Topic,
					"partition", msg.Partition,
					"offset", msg.Offset,
					"key", string(msg.Key),
					"error", err,
				)
			}
		})
		if err := c.client.CommitUncommittedOffsets(ctx); err != nil && ctx.Err() == nil {
			c.logger.WarnContext(ctx, "kafka offset commit failed", "error", err)
		}
	}
}

// Close leaves the group and releases the client.
func (c *Consumer) Close() {
	c.client.Close()
}

func fromRecord(rec *kgo.Record) *Message {
	headers := make(map[string]string, len(rec.Headers))
	for _, h := range rec.Headers {
		headers[h.Key] = string(h.Value)
	}
	return &Message{
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Offset:    rec.Offset,
		Key:       rec.Key,
		Value:     rec.Value,
		Headers:   headers,
		Timestamp: rec.Timestamp,
	}
}
