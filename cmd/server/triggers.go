package main

import (
	"context"
	"log/slog"
	"time"

	"kycflow/internal/kyc/adapters/kafkapub"
	"kycflow/internal/kyc/events"
	"kycflow/internal/kyc/ingestion"
	"kycflow/internal/kyc/ports"
	"kycflow/internal/platform/config"
	"kycflow/internal/platform/kafka"
	"kycflow/internal/platform/kafka/consumer"
	"kycflow/internal/platform/kafka/producer"
)

const consumerStopTimeout = 10 * time.Second

// triggerSet is the transport between pipeline stages: Kafka when brokers
// are configured, otherwise an in-process dispatcher.
type triggerSet struct {
	router   *events.Router
	changes  ports.ChangePublisher
	uploads  ingestion.UploadNotifier
	notifier ports.Notifier // nil keeps the fallback notifier
	start    func(ctx context.Context)
	close    func()
}

func buildTriggers(ctx context.Context, cfg config.Config, log *slog.Logger) (*triggerSet, error) {
	router := events.NewRouter(log)

	if !cfg.Kafka.Enabled() {
		log.Warn("kafka not configured; triggers are delivered in process")
		dispatcher := events.NewDispatcher(router, cfg.Kafka.DocumentTopic, cfg.Kafka.ExtractionTopic, log)
		return &triggerSet{
			router:  router,
			changes: dispatcher,
			uploads: dispatcher,
			start:   func(context.Context) {},
			close:   dispatcher.Close,
		}, nil
	}

	k := cfg.Kafka
	if err := kafka.EnsureTopics(ctx, k.Brokers, k.Partitions, k.ReplicationFactor,
		k.DocumentTopic, k.ExtractionTopic, k.SelfieTopic, k.NotificationTopic); err != nil {
		return nil, err
	}
	prod, err := producer.New(k.Brokers)
	if err != nil {
		return nil, err
	}
	cons, err := consumer.New(consumer.Config{
		Brokers: k.Brokers,
		GroupID: k.ConsumerGroup,
		Topics:  []string{k.DocumentTopic, k.ExtractionTopic, k.SelfieTopic},
	}, log)
	if err != nil {
		prod.Close()
		return nil, err
	}

	var (
		cancel  context.CancelFunc = func() {}
		done                       = make(chan struct{})
		started bool
	)
	return &triggerSet{
		router:   router,
		changes:  kafkapub.NewChangePublisher(prod, k.ExtractionTopic),
		uploads:  kafkapub.NewDocumentPublisher(prod, k.DocumentTopic),
		notifier: kafkapub.NewNotifier(prod, k.NotificationTopic),
		start: func(ctx context.Context) {
			var runCtx context.Context
			runCtx, cancel = context.WithCancel(ctx)
			started = true
			go func() {
				defer close(done)
				log.Info("consuming triggers", "topics", router.Topics(), "group", k.ConsumerGroup)
				if err := cons.Run(runCtx, router); err != nil && runCtx.Err() == nil {
					log.Error("trigger consumer stopped", "error", err)
				}
			}()
		},
		close: func() {
			cancel()
			cons.Close()
			if started {
				select {
				case <-done:
				case <-time.After(consumerStopTimeout):
					log.Warn("trigger consumer did not stop in time")
				}
			}
			prod.Close()
		},
	}, nil
}
