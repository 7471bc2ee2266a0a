package invalidation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/scribeworks/scribe/internal/jobs"
	"github.com/scribeworks/scribe/internal/tracing"
)

// Drain cadence and per-pass bounds.
const (
	// DefaultDrainInterval is how often the drainer polls the delay queue
	// for due members. Short enough that a 500ms double-delete lands close
	// to its due time.
	DefaultDrainInterval = 100 * time.Millisecond

	// drainTimeout bounds one full drain pass.
	drainTimeout = 10 * time.Second

	// cleanupHour is the local hour of the daily retention sweep.
	cleanupHour = 3
)

// Drainer polls the durable delay queue and executes members whose due time
// has arrived. Every selected member is removed from the queue after exactly
// one execution attempt, success or not: a member whose execution keeps
// failing would otherwise be retried every poll forever, and the cache
// self-heals through TTLs and the verifier anyway.
//
// It also runs the daily retention sweep that discards members older than
// the queue's retention horizon.
type Drainer struct {
	queue    *Queue
	exec     *Executor
	interval time.Duration
	logger   *slog.Logger
	metrics  *jobs.Metrics
	now      func() time.Time
}

// NewDrainer creates a drainer polling at the given interval
// (DefaultDrainInterval if zero). metrics may be nil.
func NewDrainer(queue *Queue, exec *Executor, interval time.Duration, logger *slog.Logger, metrics *jobs.Metrics) *Drainer {
	if interval <= 0 {
		interval = DefaultDrainInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Drainer{
		queue:    queue,
		exec:     exec,
		interval: interval,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Run blocks until stop is closed, draining due members every interval and
// sweeping expired ones once a day at the cleanup hour. Typically run in a
// goroutine:
//
//	stop := make(chan struct{})
//	go drainer.Run(stop)
//	// ... on shutdown
//	close(stop)
func (d *Drainer) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	cleanup := time.NewTimer(NextCleanup(d.now()).Sub(d.now()))
	defer cleanup.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			if _, err := d.DrainOnce(ctx); err != nil {
				d.logger.Error("queue drain failed", "error", err)
			}
			cancel()
		case <-cleanup.C:
			d.runCleanup()
			cleanup.Reset(NextCleanup(d.now()).Sub(d.now()))
		case <-stop:
			d.logger.Info("stopping invalidation drainer")
			return
		}
	}
}

// DrainOnce selects all due members, executes each decodable one exactly
// once, and removes every selected member from the queue. Members that no
// longer decode are removed without execution. Returns the number of members
// whose execution succeeded.
func (d *Drainer) DrainOnce(ctx context.Context) (int, error) {
	now := d.now()
	due, err := d.queue.Due(ctx, now)
	if err != nil {
		if d.metrics != nil {
			d.metrics.IncJobErrors(jobs.JobTypeCacheDrain, "queue_read")
		}
		return 0, err
	}
	if len(due) == 0 {
		d.observeDepth(ctx)
		return 0, nil
	}

	ctx, endSpan := tracing.StartSpan(ctx, "invalidation.drain")
	tracing.SetAttributes(ctx, attribute.Int("queue.due", len(due)))

	start := time.Now()
	executed := 0
	var errs []error
	for _, member := range due {
		if member.DecodeErr != nil {
			d.logger.Warn("discarding undecodable queue member", "error", member.DecodeErr)
			if d.metrics != nil {
				d.metrics.IncJobErrors(jobs.JobTypeCacheDrain, "decode_error")
			}
		} else if err := d.exec.Execute(ctx, member.Intent); err != nil {
			d.logger.Error("delayed intent failed",
				"intent", member.Intent.String(),
				"error", err,
			)
			if d.metrics != nil {
				d.metrics.IncJobErrors(jobs.JobTypeCacheDrain, "execute_failed")
			}
		} else {
			executed++
		}

		// Remove regardless of outcome so a poison member cannot wedge
		// the queue.
		if err := d.queue.Remove(ctx, member.Raw); err != nil {
			errs = append(errs, err)
		}
	}

	if d.metrics != nil {
		d.metrics.ObserveJobDuration(jobs.JobTypeCacheDrain, time.Since(start).Seconds())
		if len(errs) > 0 {
			d.metrics.IncJobsTotal(jobs.JobTypeCacheDrain, jobs.StatusFailure)
		} else {
			d.metrics.IncJobsTotal(jobs.JobTypeCacheDrain, jobs.StatusSuccess)
		}
	}
	d.observeDepth(ctx)

	d.logger.Debug("drained invalidation queue", "due", len(due), "executed", executed)
	err = errors.Join(errs...)
	endSpan(err)
	return executed, err
}

// runCleanup discards members past the retention horizon.
func (d *Drainer) runCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	start := time.Now()
	removed, err := d.queue.CleanupExpired(ctx, d.now())
	if d.metrics != nil {
		d.metrics.ObserveJobDuration(jobs.JobTypeQueueCleanup, time.Since(start).Seconds())
		if err != nil {
			d.metrics.IncJobsTotal(jobs.JobTypeQueueCleanup, jobs.StatusFailure)
			d.metrics.IncJobErrors(jobs.JobTypeQueueCleanup, "cleanup_failed")
		} else {
			d.metrics.IncJobsTotal(jobs.JobTypeQueueCleanup, jobs.StatusSuccess)
		}
	}
	if err != nil {
		d.logger.Error("queue cleanup failed", "error", err)
		return
	}
	if removed > 0 {
		d.logger.Info("queue cleanup removed expired members", "removed", removed)
	}
}

func (d *Drainer) observeDepth(ctx context.Context) {
	if d.metrics == nil {
		return
	}
	depth, err := d.queue.Size(ctx)
	if err != nil {
		return
	}
	d.metrics.SetQueueDepth(depth)
}

// NextCleanup returns the next occurrence of the cleanup hour after t, in
// t's location.
func NextCleanup(t time.Time) time.Time {
	year, month, day := t.Date()
	next := time.Date(year, month, day, cleanupHour, 0, 0, 0, t.Location())
	if !next.After(t) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
