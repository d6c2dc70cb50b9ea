package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"kycflow/internal/kyc/decision"
	"kycflow/internal/kyc/events"
	"kycflow/internal/kyc/extraction"
	"kycflow/internal/kyc/handler"
	"kycflow/internal/kyc/ingestion"
	"kycflow/internal/kyc/liveness"
	kycmetrics "kycflow/internal/kyc/metrics"
	"kycflow/internal/kyc/status"
	"kycflow/internal/platform/config"
	"kycflow/internal/platform/httpserver"
	"kycflow/internal/platform/logger"
	"kycflow/internal/platform/metrics"
	httptransport "kycflow/internal/transport/http"
)

const shutdownTimeout = 15 * time.Second

// main wires the pipeline stages to their stores, collaborators and
// trigger transport, then serves the API until interrupted.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Server.Environment, cfg.Server.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	transportMetrics := metrics.New(reg)
	pipelineMetrics := kycmetrics.New(reg)

	stores, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer stores.close()

	collab, err := buildCollaborators(ctx, cfg, log)
	if err != nil {
		return err
	}

	triggers, err := buildTriggers(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer triggers.close()

	notifier := triggers.notifier
	if notifier == nil {
		notifier = collab.fallbackNotifier
	}

	policy := events.RetryPolicy{
		MaxAttempts:    cfg.Extraction.MaxAttempts,
		InitialBackoff: cfg.Extraction.InitialBackoff,
		MaxBackoff:     cfg.Extraction.MaxBackoff,
		RedriveAfter:   cfg.Extraction.RedriveDelay,
	}

	worker := extraction.New(collab.text, collab.faces, stores.extractions, triggers.changes,
		extraction.WithLogger(log),
		extraction.WithMetrics(pipelineMetrics),
		extraction.WithConfig(extraction.Config{
			FaceDetectionEnabled: cfg.Extraction.FaceDetectionEnabled,
			MinFaceConfidence:    cfg.Extraction.MinFaceConfidence,
			MaxFields:            cfg.Extraction.MaxFields,
			Timeout:              cfg.Extraction.Timeout,
		}),
	)
	engine := decision.New(stores.sessions, stores.extractions, stores.results, collab.comparer, notifier,
		decision.WithLogger(log),
		decision.WithMetrics(pipelineMetrics),
		decision.WithConfig(decision.Config{
			SimilarityThreshold: cfg.Decision.SimilarityThreshold,
			LivenessGracePeriod: cfg.Decision.LivenessGracePeriod,
			Timeout:             cfg.Decision.EvaluateTimeout,
			LivenessBucket:      cfg.AWS.LivenessBucket,
			NotifyLease:         cfg.Decision.NotifyLease,
		}),
	)

	livenessOpts := []liveness.Option{
		liveness.WithLogger(log),
		liveness.WithChangePublisher(triggers.changes),
	}
	if collab.objects != nil {
		livenessOpts = append(livenessOpts, liveness.WithObjectStore(collab.objects, cfg.AWS.LivenessBucket, cfg.AWS.PresignTTL))
	}
	livenessSvc := liveness.New(stores.sessions, livenessOpts...)

	resched := events.NewRescheduler(stores.deadlines, triggers.changes, log,
		events.WithSweepInterval(cfg.Decision.RescheduleInterval),
	)
	triggers.router.Register(cfg.Kafka.DocumentTopic, events.NewDocumentHandler(worker, policy, log, transportMetrics))
	triggers.router.Register(cfg.Kafka.ExtractionTopic, events.NewDecisionHandler(engine, policy, resched, log, transportMetrics))
	triggers.router.Register(cfg.Kafka.SelfieTopic, events.NewSelfieHandler(livenessSvc, policy, log, transportMetrics))
	triggers.start(ctx)
	go resched.Run(ctx)

	ingestionOpts := []ingestion.Option{
		ingestion.WithLogger(log),
		ingestion.WithMetrics(pipelineMetrics),
		ingestion.WithUploadNotifier(triggers.uploads),
	}
	if collab.objects != nil {
		ingestionOpts = append(ingestionOpts, ingestion.WithObjectStore(collab.objects, cfg.AWS.DocumentBucket, cfg.AWS.PresignTTL))
	}

	kycHandler := handler.New(
		ingestion.New(stores.sessions, ingestionOpts...),
		livenessSvc,
		status.New(stores.extractions, stores.results),
		log,
	)
	router := httptransport.NewRouter(httptransport.Deps{
		Server:   cfg.Server,
		Logger:   log,
		Metrics:  transportMetrics,
		Gatherer: reg,
		Health:   stores.health,
	}, kycHandler)

	srv := httpserver.New(cfg.Server.Addr, router, cfg.Server.RequestTimeout)
	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting kyc api",
			"addr", cfg.Server.Addr,
			"store", cfg.Store.Backend,
			"kafka", cfg.Kafka.Enabled(),
			"aws", cfg.AWS.Enabled(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serveErr:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
