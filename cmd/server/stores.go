package main

import (
	"context"
	"fmt"
	"log/slog"

	"kycflow/internal/kyc/decision"
	"kycflow/internal/kyc/events"
	"kycflow/internal/kyc/models"
	deadlinestore "kycflow/internal/kyc/store/deadline"
	extractionstore "kycflow/internal/kyc/store/extraction"
	resultstore "kycflow/internal/kyc/store/result"
	sessionstore "kycflow/internal/kyc/store/session"
	"kycflow/internal/platform/config"
	"kycflow/internal/platform/postgres"
	"kycflow/internal/platform/redis"
	httptransport "kycflow/internal/transport/http"
)

type sessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	FindByID(ctx context.Context, id models.SessionID) (*models.Session, error)
	RecordLiveness(ctx context.Context, id models.SessionID, livenessSessionID, selfieRef string) (*models.Session, error)
	AdvanceStatus(ctx context.Context, id models.SessionID, status models.SessionStatus) (*models.Session, error)
}

type extractionStore interface {
	Upsert(ctx context.Context, record *models.ExtractionRecord) error
	InsertIfAbsent(ctx context.Context, record *models.ExtractionRecord) (bool, error)
	FindBySessionID(ctx context.Context, id models.SessionID) (*models.ExtractionRecord, error)
}

type storeSet struct {
	sessions    sessionStore
	extractions extractionStore
	results     decision.ResultStore
	deadlines   events.DeadlineStore
	health      httptransport.HealthCheck
	close       func()
}

func openStores(ctx context.Context, cfg config.Config, log *slog.Logger) (*storeSet, error) {
	switch cfg.Store.Backend {
	case config.StorePostgres:
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		log.Info("using postgres store")
		return &storeSet{
			sessions:    sessionstore.NewPostgres(db),
			extractions: extractionstore.NewPostgres(db),
			results:     resultstore.NewPostgres(db),
			deadlines:   deadlinestore.NewPostgres(db),
			health:      db.PingContext,
			close:       func() { _ = db.Close() },
		}, nil

	case config.StoreRedis:
		client, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		log.Info("using redis store")
		return &storeSet{
			sessions:    sessionstore.NewRedis(client.Client),
			extractions: extractionstore.NewRedis(client.Client),
			results:     resultstore.NewRedis(client.Client),
			deadlines:   deadlinestore.NewRedis(client.Client),
			health:      client.Health,
			close:       func() { _ = client.Close() },
		}, nil

	case config.StoreMemory:
		log.Warn("using in-memory store; data is lost on restart")
		return &storeSet{
			sessions:    sessionstore.NewInMemory(),
			extractions: extractionstore.NewInMemory(),
			results:     resultstore.NewInMemory(),
			deadlines:   deadlinestore.NewInMemory(),
			close:       func() {},
		}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}
