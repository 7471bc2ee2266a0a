package invalidation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/scribeworks/scribe/internal/jobs"
)

// CacheClient is the cache surface the pipeline executes against.
// Implemented by store.RedisStore and store.MemoryStore.
type CacheClient interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// DefaultCacheTTL is the retention applied to values written by update
// intents.
const DefaultCacheTTL = 7 * 24 * time.Hour

// Executor applies an intent's operation to the cache. All operations are
// idempotent: deleting an absent key is a no-op, and updates simply
// overwrite, so at-least-once delivery from the bus or the drainer is safe.
type Executor struct {
	cache    CacheClient
	cacheTTL time.Duration
	logger   *slog.Logger
	metrics  *jobs.Metrics
}

// NewExecutor creates an executor writing update values with the given TTL
// (DefaultCacheTTL if zero). metrics may be nil.
func NewExecutor(cache CacheClient, cacheTTL time.Duration, logger *slog.Logger, metrics *jobs.Metrics) *Executor {
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{cache: cache, cacheTTL: cacheTTL, logger: logger, metrics: metrics}
}

// Execute applies the intent's operation. The switch is exhaustive over the
// Operation values; an unknown operation (e.g., from a queue member written
// by a newer build) is an error so the caller can discard the member.
func (x *Executor) Execute(ctx context.Context, intent Intent) error {
	var err error
	switch intent.Op {
	case OpDelete:
		err = x.executeDelete(ctx, intent)
	case OpDoubleDelete:
		err = x.executeDoubleDelete(ctx, intent)
	case OpUpdate:
		err = x.executeUpdate(ctx, intent)
	default:
		err = fmt.Errorf("unknown cache operation %q", intent.Op)
	}

	if x.metrics != nil {
		outcome := jobs.StatusSuccess
		if err != nil {
			outcome = jobs.StatusFailure
		}
		x.metrics.IncInvalidations(string(intent.Op), outcome)
	}
	return err
}

func (x *Executor) executeDelete(ctx context.Context, intent Intent) error {
	if err := x.cache.Delete(ctx, intent.CacheKey); err != nil {
		return fmt.Errorf("cache delete failed for %s: %w", intent.CacheKey, err)
	}
	x.logger.Debug("cache entry deleted", "key", intent.CacheKey)
	return nil
}

func (x *Executor) executeDoubleDelete(ctx context.Context, intent Intent) error {
	if err := x.cache.Delete(ctx, intent.CacheKey); err != nil {
		return fmt.Errorf("delayed double delete failed for %s: %w", intent.CacheKey, err)
	}
	x.logger.Debug("delayed double delete executed", "key", intent.CacheKey)
	return nil
}

func (x *Executor) executeUpdate(ctx context.Context, intent Intent) error {
	if intent.Value == nil {
		// Cannot cache nothing; skip rather than fail so the intent is
		// consumed and discarded.
		x.logger.Warn("cache update skipped, no value", "key", intent.CacheKey)
		return nil
	}
	if err := x.cache.Set(ctx, intent.CacheKey, string(intent.Value), x.cacheTTL); err != nil {
		return fmt.Errorf("cache update failed for %s: %w", intent.CacheKey, err)
	}
	x.logger.Debug("cache entry updated", "key", intent.CacheKey)
	return nil
}
