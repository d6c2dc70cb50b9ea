package deadline

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"kycflow/internal/kyc/models"
)

const deadlinesKey = "kyc:decision-deadlines"

// removeScript drops a member only while its score is unchanged.
var removeScript = redis.NewScript(`
local score = redis.call("ZSCORE", KEYS[1], ARGV[1])
if score and tonumber(score) == tonumber(ARGV[2]) then
	return redis.call("ZREM", KEYS[1], ARGV[1])
end
return 0
`)

// RedisStore keeps deadlines in one sorted set scored by due time in
// Unix milliseconds.
type RedisStore struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed deadline store.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Put(ctx context.Context, id models.SessionID, at time.Time) error {
	err := s.client.ZAdd(ctx, deadlinesKey, redis.Z{
		Score:  float64(normalize(at).UnixMilli()),
		Member: string(id),
	}).Err()
	if err != nil {
		return fmt.Errorf("put deadline: %w", err)
	}
	return nil
}

func (s *RedisStore) Due(ctx context.Context, now time.Time, limit int) ([]models.Deadline, error) {
	entries, err := s.client.ZRangeByScoreWithScores(ctx, deadlinesKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list due deadlines: %w", err)
	}
	due := make([]models.Deadline, 0, len(entries))
	for _, z := range entries {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		due = append(due, models.Deadline{
			SessionID: models.SessionID(member),
			DueAt:     time.UnixMilli(int64(z.Score)).UTC(),
		})
	}
	return due, nil
}

func (s *RedisStore) Remove(ctx context.Context, id models.SessionID, at time.Time) error {
	if err := removeScript.Run(ctx, s.client, []string{deadlinesKey}, string(id), normalize(at).UnixMilli()).Err(); err != nil {
		return fmt.Errorf("remove deadline: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id models.SessionID) error {
	if err := s.client.ZRem(ctx, deadlinesKey, string(id)).Err(); err != nil {
		return fmt.Errorf("delete deadline: %w", err)
	}
	return nil
}
