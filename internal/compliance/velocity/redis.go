// Package velocity tracks per-actor activity occurrences in Redis sorted
// sets so velocity rules can count events inside a sliding window.
package velocity

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// retention bounds the sorted sets: occurrences older than this are trimmed
// on write and the whole key expires after it.
const retention = 24 * time.Hour

// RedisStore implements occurrence recording and window counting on Redis
// sorted sets keyed by actor and activity type, scored by unix nanos.
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisStore creates a velocity store backed by the given Redis client.
func NewRedisStore(client *redis.Client, logger *zap.Logger) *RedisStore {
	return &RedisStore{client: client, logger: logger}
}

// Record appends one occurrence for the actor. It writes both the
// per-activity-type set and the all-activity set so counts with and without
// an activity type filter stay consistent.
func (s *RedisStore) Record(ctx context.Context, actorID uuid.UUID, activityType string, at time.Time) error {
	member := redis.Z{
		Score:  float64(at.UnixNano()),
		Member: fmt.Sprintf("%d:%s", at.UnixNano(), uuid.New().String()),
	}
	cutoff := strconv.FormatInt(at.Add(-retention).UnixNano(), 10)

	pipe := s.client.Pipeline()
	for _, key := range s.keys(actorID, activityType) {
		pipe.ZAdd(ctx, key, member)
		pipe.ZRemRangeByScore(ctx, key, "-inf", cutoff)
		pipe.Expire(ctx, key, retention)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "failed to record velocity occurrence")
	}
	return nil
}

// Count returns how many occurrences the actor has since the given time.
// An empty activityType counts across all activity types.
func (s *RedisStore) Count(ctx context.Context, actorID uuid.UUID, activityType string, since time.Time) (int, error) {
	key := s.allKey(actorID)
	if activityType != "" {
		key = s.typeKey(actorID, activityType)
	}
	min := strconv.FormatInt(since.UnixNano(), 10)
	count, err := s.client.ZCount(ctx, key, min, "+inf").Result()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count velocity occurrences")
	}
	return int(count), nil
}

func (s *RedisStore) keys(actorID uuid.UUID, activityType string) []string {
	keys := []string{s.allKey(actorID)}
	if activityType != "" {
		keys = append(keys, s.typeKey(actorID, activityType))
	}
	return keys
}

func (s *RedisStore) allKey(actorID uuid.UUID) string {
	return fmt.Sprintf("velocity:%s:all", actorID)
}

func (s *RedisStore) typeKey(actorID uuid.UUID, activityType string) string {
	return fmt.Sprintf("velocity:%s:type:%s", actorID, activityType)
}
