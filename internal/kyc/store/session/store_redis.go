package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"kycflow/internal/kyc/models"
)

const sessionKeyPrefix = "kyc:session:"

var createScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
redis.call("HSET", KEYS[1], unpack(ARGV))
return 1
`)

// recordLivenessScript sets the liveness fields only while unset and never
// lowers the status rank. Returns 0 when the session does not exist.
var recordLivenessScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
if redis.call("HEXISTS", KEYS[1], "liveness_selfie_ref") == 1 then
	return 1
end
redis.call("HSET", KEYS[1], "liveness_session_id", ARGV[1], "liveness_selfie_ref", ARGV[2])
local rank = tonumber(redis.call("HGET", KEYS[1], "status_rank") or "0")
if rank < tonumber(ARGV[4]) then
	redis.call("HSET", KEYS[1], "status", ARGV[3], "status_rank", ARGV[4])
end
return 1
`)

// advanceScript raises the status rank. Returns 0 when the session does
// not exist.
var advanceScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
local rank = tonumber(redis.call("HGET", KEYS[1], "status_rank") or "0")
if rank < tonumber(ARGV[2]) then
	redis.call("HSET", KEYS[1], "status", ARGV[1], "status_rank", ARGV[2])
end
return 1
`)

// RedisStore keeps each session in a hash.
type RedisStore struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed session store.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func sessionKey(id models.SessionID) string {
	return sessionKeyPrefix + string(id)
}

// Create writes the hash only if the key is absent.
func (s *RedisStore) Create(ctx context.Context, session *models.Session) error {
	if session == nil {
		return fmt.Errorf("session is required")
	}
	args := []any{
		"session_id", string(session.ID),
		"file_name", session.FileName,
		"document_type", session.DocumentType,
		"country_code", session.CountryCode,
		"status", string(session.Status),
		"status_rank", session.Status.Rank(),
		"created_at", session.CreatedAt.UnixMilli(),
	}
	if session.HasLiveness() {
		args = append(args,
			"liveness_session_id", session.LivenessSessionID,
			"liveness_selfie_ref", session.LivenessSelfieRef,
		)
	}
	created, err := createScript.Run(ctx, s.client, []string{sessionKey(session.ID)}, args...).Int()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if created == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (s *RedisStore) FindByID(ctx context.Context, id models.SessionID) (*models.Session, error) {
	values, err := s.client.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if len(values) == 0 || values["status"] == "" {
		return nil, ErrNotFound
	}
	createdMs, err := strconv.ParseInt(values["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode session created_at: %w", err)
	}
	return &models.Session{
		ID:                id,
		FileName:          values["file_name"],
		DocumentType:      values["document_type"],
		CountryCode:       values["country_code"],
		Status:            models.SessionStatus(values["status"]),
		LivenessSessionID: values["liveness_session_id"],
		LivenessSelfieRef: values["liveness_selfie_ref"],
		CreatedAt:         time.UnixMilli(createdMs).UTC(),
	}, nil
}

func (s *RedisStore) RecordLiveness(ctx context.Context, id models.SessionID, livenessSessionID, selfieRef string) (*models.Session, error) {
	next := models.SessionLivenessStarted
	found, err := recordLivenessScript.Run(ctx, s.client,
		[]string{sessionKey(id)},
		livenessSessionID, selfieRef, string(next), next.Rank(),
	).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("record liveness: %w", err)
	}
	if found == 0 {
		return nil, ErrNotFound
	}
	return s.FindByID(ctx, id)
}

func (s *RedisStore) AdvanceStatus(ctx context.Context, id models.SessionID, status models.SessionStatus) (*models.Session, error) {
	found, err := advanceScript.Run(ctx, s.client, []string{sessionKey(id)}, string(status), status.Rank()).Int()
	if err != nil {
		return nil, fmt.Errorf("advance session status: %w", err)
	}
	if found == 0 {
		return nil, ErrNotFound
	}
	return s.FindByID(ctx, id)
}
