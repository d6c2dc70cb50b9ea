package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"kycflow/internal/kyc/models"
	"kycflow/internal/platform/kafka/consumer"
	"kycflow/pkg/requestcontext"
)

// Dispatcher delivers triggers to a Router in process, one goroutine per
// message. It stands in for the broker when Kafka is not configured and
// implements ports.ChangePublisher.
type Dispatcher struct {
	router          *Router
	documentTopic   string
	extractionTopic string
	logger          *slog.Logger

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
}

func NewDispatcher(router *Router, documentTopic, extractionTopic string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		router:          router,
		documentTopic:   documentTopic,
		extractionTopic: extractionTopic,
		logger:          logger,
		ctx:             ctx,
		cancel:          cancel,
	}
}

// ExtractionChanged emits the change trigger for id.
func (d *Dispatcher) ExtractionChanged(ctx context.Context, id models.SessionID) error {
	return d.publish(ctx, d.extractionTopic, string(id), models.ExtractionChangedEvent{SessionID: id})
}

// DocumentUploaded emits the storage trigger for an object.
func (d *Dispatcher) DocumentUploaded(ctx context.Context, event models.ObjectCreatedEvent) error {
	return d.publish(ctx, d.documentTopic, event.ObjectKey, event)
}

func (d *Dispatcher) publish(ctx context.Context, topic, key string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s trigger: %w", topic, err)
	}
	msg := &consumer.Message{
		Topic:     topic,
		Key:       []byte(key),
		Value:     value,
		Headers:   map[string]string{"request_id": requestcontext.RequestID(ctx)},
		Timestamp: time.Now(),
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("dispatcher closed")
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.router.Handle(d.ctx, msg); err != nil {
			d.logger.Error("trigger handler failed",
				"topic", msg.Topic,
				"key", key,
				"error", err,
			)
		}
	}()
	return nil
}

// Wait blocks until every dispatched message has been handled, including
// messages dispatched by handlers.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close stops accepting messages, cancels in-flight handlers and waits for
// them.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.cancel()
	d.wg.Wait()
}
