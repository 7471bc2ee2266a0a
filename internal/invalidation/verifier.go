package invalidation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/scribeworks/scribe/internal/article"
	"github.com/scribeworks/scribe/internal/jobs"
	"github.com/scribeworks/scribe/internal/tracing"
)

// Verifier sampling defaults.
const (
	// DefaultVerifyInterval is how often the verifier samples recent
	// relation rows against the cache.
	DefaultVerifyInterval = 5 * time.Minute

	// DefaultSampleSize is how many of the most recent rows each pass
	// checks per relation.
	DefaultSampleSize = 100

	// verifyTimeout bounds one full verification pass.
	verifyTimeout = 30 * time.Second
)

// Relation labels for logs and metrics.
const (
	relationLike     = "like"
	relationFavorite = "favorite"
)

// Report summarizes one verification pass over a single relation.
type Report struct {
	Sampled      int
	Inconsistent int
	Repaired     int
}

// Verifier periodically cross-checks cached like/favorite status entries
// against the database rows they project. A row in the database means the
// status is true; a cached entry saying otherwise is stale and gets deleted
// so the next read repopulates it from the source of truth.
//
// Absent cache entries are not inconsistencies: the cache is a lossy
// projection and a miss just falls through to the database.
type Verifier struct {
	relations article.RelationReader
	cache     CacheClient
	interval  time.Duration
	sample    int
	logger    *slog.Logger
	metrics   *jobs.Metrics
}

// NewVerifier creates a verifier sampling `sample` recent rows per relation
// every interval. Zero interval or sample fall back to the defaults.
// metrics may be nil.
func NewVerifier(relations article.RelationReader, cache CacheClient, interval time.Duration, sample int, logger *slog.Logger, metrics *jobs.Metrics) *Verifier {
	if interval <= 0 {
		interval = DefaultVerifyInterval
	}
	if sample <= 0 {
		sample = DefaultSampleSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{
		relations: relations,
		cache:     cache,
		interval:  interval,
		sample:    sample,
		logger:    logger,
		metrics:   metrics,
	}
}

// Run blocks until stop is closed, running a verification pass every
// interval. Typically run in a goroutine:
//
//	stop := make(chan struct{})
//	go verifier.Run(stop)
//	// ... on shutdown
//	close(stop)
func (v *Verifier) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			v.runPass()
		case <-stop:
			v.logger.Info("stopping consistency verifier")
			return
		}
	}
}

func (v *Verifier) runPass() {
	ctx, cancel := context.WithTimeout(context.Background(), verifyTimeout)
	defer cancel()

	ctx, endSpan := tracing.StartSpan(ctx, "invalidation.verify")

	start := time.Now()
	likes, likeErr := v.VerifyLikes(ctx)
	favorites, favErr := v.VerifyFavorites(ctx)
	err := errors.Join(likeErr, favErr)

	tracing.SetAttributes(ctx,
		attribute.Int("verify.sampled", likes.Sampled+favorites.Sampled),
		attribute.Int("verify.repaired", likes.Repaired+favorites.Repaired),
	)
	endSpan(err)

	if v.metrics != nil {
		v.metrics.ObserveJobDuration(jobs.JobTypeVerify, time.Since(start).Seconds())
		if err != nil {
			v.metrics.IncJobsTotal(jobs.JobTypeVerify, jobs.StatusFailure)
			v.metrics.IncJobErrors(jobs.JobTypeVerify, "pass_failed")
		} else {
			v.metrics.IncJobsTotal(jobs.JobTypeVerify, jobs.StatusSuccess)
		}
	}
	if err != nil {
		v.logger.Error("consistency verification failed", "error", err)
		return
	}
	if likes.Inconsistent > 0 || favorites.Inconsistent > 0 {
		v.logger.Warn("consistency verification repaired stale entries",
			"like_sampled", likes.Sampled,
			"like_repaired", likes.Repaired,
			"favorite_sampled", favorites.Sampled,
			"favorite_repaired", favorites.Repaired,
		)
		return
	}
	v.logger.Debug("consistency verification clean",
		"like_sampled", likes.Sampled,
		"favorite_sampled", favorites.Sampled,
	)
}

// VerifyLikes checks the most recent like rows against their cached status
// entries, deleting any cached entry that contradicts the row.
func (v *Verifier) VerifyLikes(ctx context.Context) (Report, error) {
	rows, err := v.relations.RecentLikes(ctx, v.sample)
	if err != nil {
		return Report{}, err
	}
	keys := make([]string, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, LikeStatusKey(row.ArticleID, row.UserID))
	}
	return v.verifyKeys(ctx, relationLike, keys)
}

// VerifyFavorites checks the most recent favorite rows against their cached
// status entries, deleting any cached entry that contradicts the row.
func (v *Verifier) VerifyFavorites(ctx context.Context) (Report, error) {
	rows, err := v.relations.RecentFavorites(ctx, v.sample)
	if err != nil {
		return Report{}, err
	}
	keys := make([]string, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, FavoriteStatusKey(row.ArticleID, row.UserID))
	}
	return v.verifyKeys(ctx, relationFavorite, keys)
}

// verifyKeys compares each key's cached value against the value implied by
// an existing relation row. Repairing is eviction, never overwriting: the
// next read rebuilds the entry from the database.
func (v *Verifier) verifyKeys(ctx context.Context, relation string, keys []string) (Report, error) {
	report := Report{Sampled: len(keys)}
	var errs []error
	for _, key := range keys {
		value, ok, err := v.cache.Get(ctx, key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok || value == CachedTrue {
			continue
		}

		report.Inconsistent++
		if err := v.cache.Delete(ctx, key); err != nil {
			errs = append(errs, err)
			continue
		}
		report.Repaired++
		if v.metrics != nil {
			v.metrics.IncVerifierRepairs(relation)
		}
		v.logger.Warn("evicted stale cache entry",
			"relation", relation,
			"key", key,
			"cached", value,
		)
	}
	return report, errors.Join(errs...)
}
