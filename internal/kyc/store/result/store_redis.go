package result

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"kycflow/internal/kyc/models"
)

const (
	resultKeyPrefix = "kyc:result:"
	notifiedSuffix  = ":notified"
	claimSuffix     = ":claim"
)

// claimScript takes the publish lease in one round trip. Returns -1 when
// the result does not exist, 0 when it is notified or leased, 1 on success.
var claimScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return -1
end
if redis.call("EXISTS", KEYS[2]) == 1 then
	return 0
end
if redis.call("SET", KEYS[3], ARGV[1], "NX", "PX", ARGV[2]) then
	return 1
end
return 0
`)

// confirmScript records the first publish time and drops the lease.
var confirmScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return -1
end
redis.call("SET", KEYS[2], ARGV[1], "NX")
redis.call("DEL", KEYS[3])
return 1
`)

// RedisStore keeps the result document, its notified mark and its publish
// lease under separate keys. The lease expires on its own via PX.
type RedisStore struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed result store.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

type redisResult struct {
	FinalStatus string   `json:"finalStatus"`
	Reason      string   `json:"reason"`
	Similarity  *float64 `json:"similarity,omitempty"`
	DecidedAtMs int64    `json:"decidedAt"`
}

func resultKey(id models.SessionID) string   { return resultKeyPrefix + string(id) }
func notifiedKey(id models.SessionID) string { return resultKeyPrefix + string(id) + notifiedSuffix }
func claimKey(id models.SessionID) string    { return resultKeyPrefix + string(id) + claimSuffix }

func notificationKeys(id models.SessionID) []string {
	return []string{resultKey(id), notifiedKey(id), claimKey(id)}
}

func (s *RedisStore) CreateIfAbsent(ctx context.Context, result *models.Result) (*models.Result, bool, error) {
	if result == nil {
		return nil, false, fmt.Errorf("result is required")
	}
	payload, err := json.Marshal(redisResult{
		FinalStatus: string(result.FinalStatus),
		Reason:      result.Reason,
		Similarity:  result.Similarity,
		DecidedAtMs: result.DecidedAt.UnixMilli(),
	})
	if err != nil {
		return nil, false, fmt.Errorf("encode result: %w", err)
	}
	created, err := s.client.SetNX(ctx, resultKey(result.SessionID), payload, 0).Result()
	if err != nil {
		return nil, false, fmt.Errorf("create result: %w", err)
	}
	stored, err := s.FindBySessionID(ctx, result.SessionID)
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

func (s *RedisStore) FindBySessionID(ctx context.Context, id models.SessionID) (*models.Result, error) {
	pipe := s.client.Pipeline()
	doc := pipe.Get(ctx, resultKey(id))
	notified := pipe.Get(ctx, notifiedKey(id))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("find result: %w", err)
	}

	payload, err := doc.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find result: %w", err)
	}
	var stored redisResult
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	result := &models.Result{
		SessionID:   id,
		FinalStatus: models.FinalStatus(stored.FinalStatus),
		Reason:      stored.Reason,
		Similarity:  stored.Similarity,
		DecidedAt:   time.UnixMilli(stored.DecidedAtMs).UTC(),
	}
	if raw, err := notified.Result(); err == nil {
		if ms, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
			at := time.UnixMilli(ms).UTC()
			result.NotifiedAt = &at
		}
	}
	return result, nil
}

// ClaimNotification takes a lease lasting until-now. Expiry is enforced by
// the Redis clock.
func (s *RedisStore) ClaimNotification(ctx context.Context, id models.SessionID, now, until time.Time) (bool, error) {
	lease := until.Sub(now).Milliseconds()
	if lease < 1 {
		lease = 1
	}
	won, err := claimScript.Run(ctx, s.client, notificationKeys(id), until.UnixMilli(), lease).Int()
	if err != nil {
		return false, fmt.Errorf("claim notification: %w", err)
	}
	switch won {
	case -1:
		return false, ErrNotFound
	case 1:
		return true, nil
	default:
		return false, nil
	}
}

func (s *RedisStore) ConfirmNotification(ctx context.Context, id models.SessionID, at time.Time) error {
	found, err := confirmScript.Run(ctx, s.client, notificationKeys(id), at.UnixMilli()).Int()
	if err != nil {
		return fmt.Errorf("confirm notification: %w", err)
	}
	if found == -1 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) ReleaseNotification(ctx context.Context, id models.SessionID) error {
	if err := s.client.Del(ctx, claimKey(id)).Err(); err != nil {
		return fmt.Errorf("release notification: %w", err)
	}
	return nil
}
