// Package store provides the Redis-backed key-value and sorted-set store
// used for hotness ranking, the durable invalidation queue, and read-through
// caching. All network operations take a context and are expected to run
// with bounded timeouts supplied by the caller.
package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyTTL pairs a sorted-set key with the expiry that should be refreshed
// after mutating it. A zero TTL means the key never expires.
type KeyTTL struct {
	Key string
	TTL time.Duration
}

// RedisStore implements sorted-set, cache, and scripted operations on top of
// a go-redis client.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a store backed by the given Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Client returns the underlying Redis client, used for health checks.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// ZAddNX adds a member with the given score only if it is not already present.
// Returns true if the member was added.
func (s *RedisStore) ZAddNX(ctx context.Context, key, member string, score float64) (bool, error) {
	added, err := s.client.ZAddNX(ctx, key, redis.Z{Score: score, Member: member}).Result()
	if err != nil {
		return false, err
	}
	return added > 0, nil
}

// ZRem removes members from a sorted set. Removing an absent member is a no-op.
func (s *RedisStore) ZRem(ctx context.Context, key string, members ...string) (int64, error) {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return s.client.ZRem(ctx, key, args...).Result()
}

// ZRevRange returns members between start and stop ranks in descending score
// order. Returns an empty slice when the set does not exist.
func (s *RedisStore) ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return s.client.ZRevRange(ctx, key, start, stop).Result()
}

// ZCard returns the number of members in a sorted set.
func (s *RedisStore) ZCard(ctx context.Context, key string) (int64, error) {
	return s.client.ZCard(ctx, key).Result()
}

// ZScore looks up the score of a member. The second return value reports
// whether the member exists.
func (s *RedisStore) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	score, err := s.client.ZScore(ctx, key, member).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return score, true, nil
}

// ZRangeByScore returns members with scores in [min, max], ascending.
func (s *RedisStore) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	return s.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: formatScore(min),
		Max: formatScore(max),
	}).Result()
}

// ZAddAt adds a member with an explicit score, overwriting any existing score.
func (s *RedisStore) ZAddAt(ctx context.Context, key, member string, score float64) error {
	return s.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

// Del removes keys. Deleting an absent key is a no-op.
func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

// Expire refreshes the TTL on a key. A zero ttl leaves the key untouched.
func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return s.client.Expire(ctx, key, ttl).Err()
}

// Get reads a cache value. The second return value reports whether the key
// exists.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Set writes a cache value with an optional TTL.
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// Delete removes cache entries. Deleting an absent key is a no-op.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	return s.Del(ctx, keys...)
}
