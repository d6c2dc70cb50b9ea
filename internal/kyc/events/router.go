package events

import (
	"context"
	"io"
	"log/slog"

	"kycflow/internal/platform/kafka/consumer"
)

// TopicHandler handles messages from a specific topic.
type TopicHandler interface {
	Handle(ctx context.Context, msg *consumer.Message) error
}

// Router dispatches trigger messages to topic-specific handlers.
type Router struct {
	handlers map[string]TopicHandler
	logger   *slog.Logger
}

// NewRouter creates an empty topic router.
func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Router{
		handlers: make(map[string]TopicHandler),
		logger:   logger,
	}
}

// Register adds a handler for a specific topic.
func (r *Router) Register(topic string, handler TopicHandler) {
	r.handlers[topic] = handler
}

// Topics lists the registered topics.
func (r *Router) Topics() []string {
	topics := make([]string, 0, len(r.handlers))
	for topic := range r.handlers {
		topics = append(topics, topic)
	}
	return topics
}

// Handle routes the message to the appropriate topic handler.
func (r *Router) Handle(ctx context.Context, msg *consumer.Message) error {
	handler, ok := r.handlers[msg.Topic]
	if !ok {
		r.logger.WarnContext(ctx, "no handler for topic, skipping message",
			"topic", msg.Topic,
			"key", string(msg.Key),
		)
		return nil // Commit to avoid redelivery
	}
	return handler.Handle(ctx, msg)
}
