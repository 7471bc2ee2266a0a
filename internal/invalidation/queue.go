package invalidation

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// QueueKey is the sorted set holding serialized delayed intents, scored by
// their due time in epoch milliseconds.
const QueueKey = "cache:invalidation:queue"

// DefaultQueueRetention is how long an undrained member survives before the
// daily cleanup sweep discards it. A member this old means the drainer was
// stuck; the entry self-heals through cache TTLs and the verifier instead.
const DefaultQueueRetention = 24 * time.Hour

// QueueStore is the sorted-set surface the queue needs from the store.
type QueueStore interface {
	ZAddAt(ctx context.Context, key, member string, score float64) error
	ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error)
	ZRem(ctx context.Context, key string, members ...string) (int64, error)
	ZCard(ctx context.Context, key string) (int64, error)
}

// QueuedIntent is one durable queue member. When the stored bytes cannot be
// decoded, DecodeErr is set and the drainer removes the member without
// executing it.
type QueuedIntent struct {
	Raw       string
	Intent    Intent
	DecodeErr error
}

// Queue persists delayed invalidation intents in the score store so they
// survive process restarts. Members are scored by due time, so selecting all
// due work is a single range-by-score call.
type Queue struct {
	store     QueueStore
	key       string
	retention time.Duration
	logger    *slog.Logger
}

// NewQueue creates a durable delay queue on the given store. A zero
// retention falls back to DefaultQueueRetention.
func NewQueue(store QueueStore, retention time.Duration, logger *slog.Logger) *Queue {
	if retention <= 0 {
		retention = DefaultQueueRetention
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{store: store, key: QueueKey, retention: retention, logger: logger}
}

// Add persists an intent, scored by its due time.
func (q *Queue) Add(ctx context.Context, intent Intent) error {
	data, err := intent.Encode()
	if err != nil {
		return err
	}
	if err := q.store.ZAddAt(ctx, q.key, string(data), float64(intent.DueAt)); err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", intent, err)
	}
	q.logger.Debug("intent queued", "intent", intent.String(),
		"delay_ms", intent.RemainingDelay(time.Now()).Milliseconds())
	return nil
}

// Due returns all members whose due time is at or before now, oldest first.
// Members that no longer decode are returned with DecodeErr set so the
// caller can discard them.
func (q *Queue) Due(ctx context.Context, now time.Time) ([]QueuedIntent, error) {
	members, err := q.store.ZRangeByScore(ctx, q.key, 0, float64(now.UnixMilli()))
	if err != nil {
		return nil, fmt.Errorf("failed to read due intents: %w", err)
	}

	out := make([]QueuedIntent, 0, len(members))
	for _, raw := range members {
		intent, err := DecodeIntent([]byte(raw))
		out = append(out, QueuedIntent{Raw: raw, Intent: intent, DecodeErr: err})
	}
	return out, nil
}

// Remove deletes a member from the queue. Removing an already-removed member
// is a no-op.
func (q *Queue) Remove(ctx context.Context, raw string) error {
	if _, err := q.store.ZRem(ctx, q.key, raw); err != nil {
		return fmt.Errorf("failed to remove queue member: %w", err)
	}
	return nil
}

// Size returns the number of pending members.
func (q *Queue) Size(ctx context.Context) (int64, error) {
	return q.store.ZCard(ctx, q.key)
}

// CleanupExpired removes members whose due time is older than the retention
// horizon and that were never drained. Returns the number removed.
func (q *Queue) CleanupExpired(ctx context.Context, now time.Time) (int, error) {
	horizon := float64(now.Add(-q.retention).UnixMilli())
	members, err := q.store.ZRangeByScore(ctx, q.key, 0, horizon)
	if err != nil {
		return 0, fmt.Errorf("failed to scan for expired queue members: %w", err)
	}
	if len(members) == 0 {
		return 0, nil
	}

	removed, err := q.store.ZRem(ctx, q.key, members...)
	if err != nil {
		return 0, fmt.Errorf("failed to remove expired queue members: %w", err)
	}
	q.logger.Info("expired invalidation intents discarded", "count", removed)
	return int(removed), nil
}
