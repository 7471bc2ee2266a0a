package store

import (
	"context"
	"math"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// incrByBoundedScript atomically applies the same delta to every sorted set
// passed in KEYS, clamps each resulting score at a floor, and refreshes each
// key's TTL. Running it as a single script means a crash mid-update cannot
// leave one period's set updated and another stale, and concurrent callers
// cannot lose updates.
//
// ARGV: member, delta, floor, then one TTL (seconds, 0 = no expiry) per key.
// Returns the new score of the member in the last key.
var incrByBoundedScript = redis.NewScript(`
local member = ARGV[1]
local delta = tonumber(ARGV[2])
local floor = tonumber(ARGV[3])
local result = 0
for i, key in ipairs(KEYS) do
    local score = tonumber(redis.call('ZINCRBY', key, delta, member))
    if score < floor then
        redis.call('ZADD', key, floor, member)
        score = floor
    end
    local ttl = tonumber(ARGV[3 + i])
    if ttl > 0 then
        redis.call('EXPIRE', key, ttl)
    end
    result = score
end
return tostring(result)
`)

// ZIncrByBoundedMulti applies delta to member across all given sorted sets in
// one atomic server-side call, clamping each resulting score at floor and
// refreshing per-key TTLs. Returns the new score in the last set.
func (s *RedisStore) ZIncrByBoundedMulti(ctx context.Context, sets []KeyTTL, member string, delta, floor float64) (float64, error) {
	keys := make([]string, len(sets))
	args := make([]interface{}, 0, len(sets)+3)
	args = append(args, member, formatScore(delta), formatScore(floor))
	for i, set := range sets {
		keys[i] = set.Key
		args = append(args, strconv.FormatInt(int64(set.TTL.Seconds()), 10))
	}

	raw, err := incrByBoundedScript.Run(ctx, s.client, keys, args...).Result()
	if err != nil {
		return 0, err
	}
	str, ok := raw.(string)
	if !ok {
		return 0, nil
	}
	score, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return 0, err
	}
	return score, nil
}

// formatScore renders a float for Redis arguments, mapping infinities to the
// -inf/+inf forms ZRANGEBYSCORE expects.
func formatScore(f float64) string {
	switch {
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsInf(f, 1):
		return "+inf"
	default:
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
}
