// Package kafkapub publishes change triggers and result notifications to
// Kafka topics.
package kafkapub

import (
	"context"
	"encoding/json"
	"fmt"

	"kycflow/internal/kyc/models"
	"kycflow/pkg/requestcontext"
)

// Producer is the subset of the Kafka producer used here.
type Producer interface {
	Produce(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// ChangePublisher emits change triggers keyed by session ID, so triggers of
// one session stay on one partition.
type ChangePublisher struct {
	producer Producer
	topic    string
}

func NewChangePublisher(producer Producer, topic string) *ChangePublisher {
	return &ChangePublisher{producer: producer, topic: topic}
}

func (p *ChangePublisher) ExtractionChanged(ctx context.Context, id models.SessionID) error {
	return publish(ctx, p.producer, p.topic, string(id), models.ExtractionChangedEvent{SessionID: id})
}

// Notifier publishes result notifications.
type Notifier struct {
	producer Producer
	topic    string
}

func NewNotifier(producer Producer, topic string) *Notifier {
	return &Notifier{producer: producer, topic: topic}
}

func (n *Notifier) Publish(ctx context.Context, notification models.Notification) error {
	return publish(ctx, n.producer, n.topic, string(notification.SessionID), notification.Message())
}

// DocumentPublisher emits storage triggers. Used when uploads are reported
// through the API rather than by bucket notifications.
type DocumentPublisher struct {
	producer Producer
	topic    string
}

func NewDocumentPublisher(producer Producer, topic string) *DocumentPublisher {
	return &DocumentPublisher{producer: producer, topic: topic}
}

func (p *DocumentPublisher) DocumentUploaded(ctx context.Context, event models.ObjectCreatedEvent) error {
	return publish(ctx, p.producer, p.topic, event.ObjectKey, event)
}

func publish(ctx context.Context, producer Producer, topic, key string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", topic, err)
	}
	var headers map[string]string
	if id := requestcontext.RequestID(ctx); id != "" {
		headers = map[string]string{"request_id": id}
	}
	return producer.Produce(ctx, topic, []byte(key), value, headers)
}
