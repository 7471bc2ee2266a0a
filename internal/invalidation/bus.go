package invalidation

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Worker pool defaults for inline intent execution.
const (
	DefaultWorkers    = 4
	DefaultTaskBuffer = 256

	// executeTimeout bounds each inline execution's store calls.
	executeTimeout = 5 * time.Second
)

// Bus accepts invalidation intents from write-path business logic and routes
// them: intents already due run asynchronously on a small fixed-size worker
// pool, intents with a future due time are persisted to the durable delay
// queue for the drainer.
//
// Publish must only be called after the owning transaction has committed;
// invalidating based on writes that can still roll back would poison the
// cache.
type Bus struct {
	queue   *Queue
	exec    *Executor
	logger  *slog.Logger
	enabled bool
	now     func() time.Time
	workers int

	tasks   chan Intent
	stopped chan struct{}
	stop    sync.Once
	wg      sync.WaitGroup
}

// NewBus creates a bus executing inline intents on `workers` goroutines.
// Zero workers or buffer fall back to the defaults. A disabled bus drops all
// intents, which is the rollback switch for the whole pipeline.
func NewBus(queue *Queue, exec *Executor, workers, buffer int, enabled bool, logger *slog.Logger) *Bus {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if buffer <= 0 {
		buffer = DefaultTaskBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		queue:   queue,
		exec:    exec,
		logger:  logger,
		enabled: enabled,
		now:     time.Now,
		workers: workers,
		tasks:   make(chan Intent, buffer),
		stopped: make(chan struct{}),
	}
}

// Start launches the worker pool.
func (b *Bus) Start() {
	b.wg.Add(b.workers)
	for i := 0; i < b.workers; i++ {
		go b.worker()
	}
}

// Stop shuts the worker pool down. Queued-but-unexecuted inline intents are
// dropped; the cache self-heals via TTLs and the verifier.
func (b *Bus) Stop() {
	b.stop.Do(func() { close(b.stopped) })
	b.wg.Wait()
}

// Publish routes an intent. Never blocks the caller and never returns an
// error: failures are logged and the pipeline's self-healing picks up the
// slack. Call only after the owning transaction commits.
func (b *Bus) Publish(intent Intent) {
	if !b.enabled {
		b.logger.Debug("invalidation pipeline disabled, intent dropped", "intent", intent.String())
		return
	}

	if !intent.Due(b.now()) {
		ctx, cancel := context.WithTimeout(context.Background(), executeTimeout)
		defer cancel()
		if err := b.queue.Add(ctx, intent); err != nil {
			b.logger.Error("failed to persist delayed intent", "intent", intent.String(), "error", err)
		}
		return
	}

	select {
	case b.tasks <- intent:
	default:
		// Saturated pool; spill to the durable queue so the drainer picks
		// the intent up on its next poll instead of blocking a request path.
		b.logger.Warn("invalidation worker pool saturated, intent spilled to queue", "intent", intent.String())
		ctx, cancel := context.WithTimeout(context.Background(), executeTimeout)
		defer cancel()
		if err := b.queue.Add(ctx, intent); err != nil {
			b.logger.Error("failed to persist spilled intent", "intent", intent.String(), "error", err)
		}
	}
}

// PublishDoubleDelete runs the delayed double-delete pattern for a key: an
// immediate delete now plus a second delete after delay, closing the window
// where a concurrent reader repopulates the cache with the pre-write value.
func (b *Bus) PublishDoubleDelete(cacheKey string, delay time.Duration) {
	b.Publish(Delete(cacheKey))
	b.Publish(DoubleDelete(cacheKey, delay))
}

func (b *Bus) worker() {
	defer b.wg.Done()
	for {
		select {
		case intent := <-b.tasks:
			ctx, cancel := context.WithTimeout(context.Background(), executeTimeout)
			if err := b.exec.Execute(ctx, intent); err != nil {
				b.logger.Error("inline invalidation failed", "intent", intent.String(), "error", err)
			}
			cancel()
		case <-b.stopped:
			return
		}
	}
}
