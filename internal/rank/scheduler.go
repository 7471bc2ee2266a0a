package rank

import (
	"context"
	"log/slog"
	"time"

	"github.com/scribeworks/scribe/internal/jobs"
)

// resetTimeout bounds each reset's store calls so a slow store cannot stall
// the scheduler past the next rollover.
const resetTimeout = 30 * time.Second

// Scheduler drives the period rollover resets: the day set at local midnight
// and the week set at the start of each Monday. Each tick reads the wall
// clock and recomputes the active period key; there is no shared mutable
// scheduling state.
type Scheduler struct {
	engine  *Engine
	logger  *slog.Logger
	metrics *jobs.Metrics
	now     func() time.Time
}

// NewScheduler creates a scheduler for the given engine. metrics may be nil.
func NewScheduler(engine *Engine, logger *slog.Logger, metrics *jobs.Metrics) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{engine: engine, logger: logger, metrics: metrics, now: time.Now}
}

// Run blocks until stop is closed, firing a reset at every local midnight.
// Typically run in a goroutine:
//
//	stop := make(chan struct{})
//	go scheduler.Run(stop)
//	// ... on shutdown
//	close(stop)
func (s *Scheduler) Run(stop <-chan struct{}) {
	for {
		now := s.now()
		next := NextMidnight(now)
		timer := time.NewTimer(next.Sub(now))

		select {
		case <-timer.C:
			s.tick(next)
		case <-stop:
			timer.Stop()
			s.logger.Info("stopping rank scheduler")
			return
		}
	}
}

// tick runs the midnight resets for the day that just started.
func (s *Scheduler) tick(now time.Time) {
	s.reset(PeriodDay)
	if now.Weekday() == time.Monday {
		s.reset(PeriodWeek)
	}
}

func (s *Scheduler) reset(p Period) {
	ctx, cancel := context.WithTimeout(context.Background(), resetTimeout)
	defer cancel()

	start := time.Now()
	err := s.engine.ResetRank(ctx, p)
	if s.metrics != nil {
		s.metrics.ObserveJobDuration(jobs.JobTypeRankReset, time.Since(start).Seconds())
		if err != nil {
			s.metrics.IncJobsTotal(jobs.JobTypeRankReset, jobs.StatusFailure)
			s.metrics.IncJobErrors(jobs.JobTypeRankReset, "reset_failed")
		} else {
			s.metrics.IncJobsTotal(jobs.JobTypeRankReset, jobs.StatusSuccess)
		}
	}
	if err != nil {
		s.logger.Error("rank reset failed", "period", string(p), "error", err)
		return
	}
	s.logger.Info("rank reset complete", "period", string(p))
}

// NextMidnight returns the first instant of the day after t, in t's location.
func NextMidnight(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1)
}
