package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"kycflow/internal/kyc/models"
)

const extractionKeyPrefix = "kyc:extraction:"

// RedisStore keeps each extraction record as a JSON document.
type RedisStore struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed extraction store.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

type redisRecord struct {
	Fields          models.ExtractedFields `json:"fields"`
	FaceBoundingBox *models.BoundingBox    `json:"faceBoundingBox,omitempty"`
	Status          string                 `json:"status"`
	Bucket          string                 `json:"bucket"`
	ObjectKey       string                 `json:"objectKey"`
	UpdatedAtMs     int64                  `json:"updatedAt"`
}

func extractionKey(id models.SessionID) string {
	return extractionKeyPrefix + string(id)
}

func encode(record *models.ExtractionRecord) ([]byte, error) {
	if record == nil {
		return nil, fmt.Errorf("extraction record is required")
	}
	return json.Marshal(redisRecord{
		Fields:          record.Fields,
		FaceBoundingBox: record.FaceBoundingBox,
		Status:          string(record.Status),
		Bucket:          record.Document.Bucket,
		ObjectKey:       record.Document.Key,
		UpdatedAtMs:     record.UpdatedAt.UnixMilli(),
	})
}

func (s *RedisStore) Upsert(ctx context.Context, record *models.ExtractionRecord) error {
	payload, err := encode(record)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, extractionKey(record.SessionID), payload, 0).Err(); err != nil {
		return fmt.Errorf("upsert extraction: %w", err)
	}
	return nil
}

func (s *RedisStore) InsertIfAbsent(ctx context.Context, record *models.ExtractionRecord) (bool, error) {
	payload, err := encode(record)
	if err != nil {
		return false, err
	}
	ok, err := s.client.SetNX(ctx, extractionKey(record.SessionID), payload, 0).Result()
	if err != nil {
		return false, fmt.Errorf("insert extraction: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) FindBySessionID(ctx context.Context, id models.SessionID) (*models.ExtractionRecord, error) {
	payload, err := s.client.Get(ctx, extractionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find extraction: %w", err)
	}
	var stored redisRecord
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, fmt.Errorf("decode extraction: %w", err)
	}
	return &models.ExtractionRecord{
		SessionID:       id,
		Fields:          stored.Fields,
		FaceBoundingBox: stored.FaceBoundingBox,
		Status:          models.ExtractionStatus(stored.Status),
		Document:        models.ObjectRef{Bucket: stored.Bucket, Key: stored.ObjectKey},
		UpdatedAt:       time.UnixMilli(stored.UpdatedAtMs).UTC(),
	}, nil
}
