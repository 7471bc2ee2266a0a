package rank

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/scribeworks/scribe/internal/article"
	"github.com/scribeworks/scribe/internal/store"
)

// ScoreStore is the sorted-set surface the engine needs from the score store.
// Implemented by store.RedisStore and store.MemoryStore.
type ScoreStore interface {
	ZIncrByBoundedMulti(ctx context.Context, sets []store.KeyTTL, member string, delta, floor float64) (float64, error)
	ZAddNX(ctx context.Context, key, member string, score float64) (bool, error)
	ZAddAt(ctx context.Context, key, member string, score float64) error
	ZRem(ctx context.Context, key string, members ...string) (int64, error)
	ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ZCard(ctx context.Context, key string) (int64, error)
	ZScore(ctx context.Context, key, member string) (float64, bool, error)
	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// Weights holds the per-action score deltas applied to the hotness sets.
type Weights struct {
	View     float64 `json:"view"`     // default 1
	Like     float64 `json:"like"`     // default 5
	Comment  float64 `json:"comment"`  // default 10
	Favorite float64 `json:"favorite"` // default 8
}

// DefaultWeights returns the default action weights.
func DefaultWeights() Weights {
	return Weights{View: 1, Like: 5, Comment: 10, Favorite: 8}
}

// Options configures an Engine.
type Options struct {
	// Weights are the per-action score deltas.
	Weights Weights

	// ScoreFloor is the minimum score a member can hold after any update.
	// Keeps abuse-driven decrements from pushing scores arbitrarily negative.
	ScoreFloor float64

	// ClampMin and ClampMax bound the magnitude of a single update's delta.
	// Zero values disable the respective bound.
	ClampMin float64
	ClampMax float64

	// DayTTL and WeekTTL are the retention applied to the rotating day and
	// week keys. The all-time key never expires.
	DayTTL  time.Duration
	WeekTTL time.Duration

	// Now overrides the clock, for tests. Defaults to time.Now.
	Now func() time.Time
}

// Engine maintains per-period hotness scores for articles and serves ranked
// reads. The period sorted sets are owned exclusively by the engine; all
// cross-process coordination goes through the store's atomic primitives, so
// the engine itself holds no locks.
type Engine struct {
	store    ScoreStore
	articles article.Reader
	opts     Options
	logger   *slog.Logger
}

// RankedArticle is an article decorated with its hotness score for a period.
type RankedArticle struct {
	Article  article.Article `json:"article"`
	HotScore float64         `json:"hot_score"`
}

// Page is one page of ranked articles plus the total set cardinality.
type Page struct {
	Items []RankedArticle `json:"items"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Size  int             `json:"size"`
}

// NewEngine creates a ranking engine. Zero-valued options fall back to
// defaults (weights from DefaultWeights, 2-day day-key TTL, 14-day week-key
// TTL, floor 0, clamping disabled).
func NewEngine(s ScoreStore, articles article.Reader, opts Options, logger *slog.Logger) *Engine {
	if opts.Weights == (Weights{}) {
		opts.Weights = DefaultWeights()
	}
	if opts.DayTTL == 0 {
		opts.DayTTL = 48 * time.Hour
	}
	if opts.WeekTTL == 0 {
		opts.WeekTTL = 14 * 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: s, articles: articles, opts: opts, logger: logger}
}

// activeSets returns the three period sets and their TTLs for the current
// moment.
func (e *Engine) activeSets() []store.KeyTTL {
	now := e.opts.Now()
	return []store.KeyTTL{
		{Key: allTimeKey},
		{Key: DayKey(now), TTL: e.opts.DayTTL},
		{Key: WeekKey(now), TTL: e.opts.WeekTTL},
	}
}

// IncrementScore applies delta to the article's score in the all-time, day,
// and week sets in a single atomic scripted call. A zero articleID is a
// silent no-op. Failures are logged and swallowed; a missed score update is
// an acceptable loss for a ranking feature and must never fail the caller's
// request.
func (e *Engine) IncrementScore(ctx context.Context, articleID int64, delta float64) {
	if articleID == 0 {
		return
	}
	delta = e.clampDelta(delta)
	if delta == 0 {
		return
	}

	member := strconv.FormatInt(articleID, 10)
	newScore, err := e.store.ZIncrByBoundedMulti(ctx, e.activeSets(), member, delta, e.opts.ScoreFloor)
	if err != nil {
		e.logger.Warn("hotness score update failed",
			"article_id", articleID, "delta", delta, "error", err)
		return
	}
	e.logger.Debug("hotness score updated",
		"article_id", articleID, "delta", delta, "new_score", newScore)
}

// DecrementScore applies -delta across the period sets.
func (e *Engine) DecrementScore(ctx context.Context, articleID int64, delta float64) {
	e.IncrementScore(ctx, articleID, -delta)
}

// clampDelta bounds the magnitude of a single update, preserving sign.
func (e *Engine) clampDelta(delta float64) float64 {
	mag := math.Abs(delta)
	if e.opts.ClampMax > 0 && mag > e.opts.ClampMax {
		mag = e.opts.ClampMax
	}
	if e.opts.ClampMin > 0 && mag < e.opts.ClampMin {
		mag = e.opts.ClampMin
	}
	return math.Copysign(mag, delta)
}

// Per-action entry points. Each takes the acting user and the article's
// author and skips the update when they are the same user: an author
// viewing, liking, or commenting on their own article never changes its
// hotness.

// IncrementViewScore records a view by viewerID on an article by authorID.
func (e *Engine) IncrementViewScore(ctx context.Context, articleID, viewerID, authorID int64) {
	if viewerID == authorID {
		return
	}
	e.IncrementScore(ctx, articleID, e.opts.Weights.View)
}

// IncrementLikeScore records a like.
func (e *Engine) IncrementLikeScore(ctx context.Context, articleID, likerID, authorID int64) {
	if likerID == authorID {
		return
	}
	e.IncrementScore(ctx, articleID, e.opts.Weights.Like)
}

// DecrementLikeScore reverses a like.
func (e *Engine) DecrementLikeScore(ctx context.Context, articleID, likerID, authorID int64) {
	if likerID == authorID {
		return
	}
	e.DecrementScore(ctx, articleID, e.opts.Weights.Like)
}

// IncrementCommentScore records a comment.
func (e *Engine) IncrementCommentScore(ctx context.Context, articleID, commenterID, authorID int64) {
	if commenterID == authorID {
		return
	}
	e.IncrementScore(ctx, articleID, e.opts.Weights.Comment)
}

// DecrementCommentScore reverses a comment (deletion).
func (e *Engine) DecrementCommentScore(ctx context.Context, articleID, commenterID, authorID int64) {
	if commenterID == authorID {
		return
	}
	e.DecrementScore(ctx, articleID, e.opts.Weights.Comment)
}

// IncrementFavoriteScore records a favorite.
func (e *Engine) IncrementFavoriteScore(ctx context.Context, articleID, favoriterID, authorID int64) {
	if favoriterID == authorID {
		return
	}
	e.IncrementScore(ctx, articleID, e.opts.Weights.Favorite)
}

// DecrementFavoriteScore reverses a favorite.
func (e *Engine) DecrementFavoriteScore(ctx context.Context, articleID, favoriterID, authorID int64) {
	if favoriterID == authorID {
		return
	}
	e.DecrementScore(ctx, articleID, e.opts.Weights.Favorite)
}

// HotArticles returns the top limit articles for the period in descending
// score order, hydrated from the system of record. Ids tracked in the set but
// missing from the database are pruned from the set. An empty set yields an
// empty slice, not an error.
func (e *Engine) HotArticles(ctx context.Context, limit int, p Period) ([]RankedArticle, error) {
	if limit <= 0 {
		limit = 10
	}
	key := Key(p, e.opts.Now())

	// Over-fetch so stale ids pruned during hydration don't shrink the page.
	fetchLimit := limit*3/2 + 10
	members, err := e.store.ZRevRange(ctx, key, 0, int64(fetchLimit)-1)
	if err != nil {
		return nil, fmt.Errorf("failed to read ranking set %s: %w", key, err)
	}
	if len(members) == 0 {
		return []RankedArticle{}, nil
	}

	ranked, err := e.hydrate(ctx, key, members, limit)
	if err != nil {
		return nil, err
	}
	return ranked, nil
}

// HotArticlesPage returns one page of the ranked set plus the total count.
func (e *Engine) HotArticlesPage(ctx context.Context, page, size int, p Period) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 10
	}
	key := Key(p, e.opts.Now())

	total, err := e.store.ZCard(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to size ranking set %s: %w", key, err)
	}
	if total == 0 {
		return &Page{Items: []RankedArticle{}, Page: page, Size: size}, nil
	}

	start := int64((page - 1) * size)
	members, err := e.store.ZRevRange(ctx, key, start, start+int64(size)-1)
	if err != nil {
		return nil, fmt.Errorf("failed to read ranking set %s: %w", key, err)
	}
	if len(members) == 0 {
		return &Page{Items: []RankedArticle{}, Total: total, Page: page, Size: size}, nil
	}

	ranked, err := e.hydrate(ctx, key, members, size)
	if err != nil {
		return nil, err
	}
	return &Page{Items: ranked, Total: total, Page: page, Size: size}, nil
}

// hydrate resolves ranked members into articles, preserving the set's order,
// pruning members with no backing row, and attaching per-member scores. The
// batch fetch does not guarantee order, so the ranked member list drives the
// result.
func (e *Engine) hydrate(ctx context.Context, key string, members []string, limit int) ([]RankedArticle, error) {
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			e.logger.Warn("non-numeric member in ranking set", "key", key, "member", m)
			continue
		}
		ids = append(ids, id)
	}

	articles, err := e.articles.BatchByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to hydrate ranked articles: %w", err)
	}
	byID := make(map[int64]article.Article, len(articles))
	for _, a := range articles {
		byID[a.ID] = a
	}

	ranked := make([]RankedArticle, 0, limit)
	var stale []string
	for _, id := range ids {
		a, ok := byID[id]
		if !ok {
			stale = append(stale, strconv.FormatInt(id, 10))
			continue
		}
		score, _, err := e.store.ZScore(ctx, key, strconv.FormatInt(id, 10))
		if err != nil {
			e.logger.Warn("score lookup failed", "key", key, "article_id", id, "error", err)
		}
		ranked = append(ranked, RankedArticle{Article: a, HotScore: score})
		if len(ranked) >= limit {
			break
		}
	}

	if len(stale) > 0 {
		if _, err := e.store.ZRem(ctx, key, stale...); err != nil {
			e.logger.Warn("failed to prune stale ids from ranking set",
				"key", key, "count", len(stale), "error", err)
		} else {
			e.logger.Info("pruned stale ids from ranking set",
				"key", key, "count", len(stale))
		}
	}
	return ranked, nil
}

// InitializeArticle seeds a newly published article into the all-time set at
// score 0 if it is not already tracked. Idempotent; a zero id is a no-op.
func (e *Engine) InitializeArticle(ctx context.Context, articleID int64) {
	if articleID == 0 {
		return
	}
	added, err := e.store.ZAddNX(ctx, allTimeKey, strconv.FormatInt(articleID, 10), 0)
	if err != nil {
		e.logger.Warn("failed to seed article into ranking",
			"article_id", articleID, "error", err)
		return
	}
	if added {
		e.logger.Info("seeded article into ranking", "article_id", articleID)
	}
}

// InitializeAllArticles seeds every published article absent from the
// all-time set at score 0, leaving already-tracked articles untouched.
// Designed to run in a goroutine at process startup; it never blocks
// application readiness. Returns the number of newly seeded articles.
func (e *Engine) InitializeAllArticles(ctx context.Context) (int, error) {
	ids, err := e.articles.PublishedIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list published articles: %w", err)
	}
	if len(ids) == 0 {
		e.logger.Info("no published articles to seed")
		return 0, nil
	}

	seeded := 0
	for _, id := range ids {
		added, err := e.store.ZAddNX(ctx, allTimeKey, strconv.FormatInt(id, 10), 0)
		if err != nil {
			e.logger.Warn("bootstrap seed failed", "article_id", id, "error", err)
			continue
		}
		if added {
			seeded++
		}
	}
	e.logger.Info("ranking bootstrap complete", "published", len(ids), "seeded", seeded)
	return seeded, nil
}

// ResetRank clears the active set for the day or week period and re-seeds it
// with all published articles at score 0. Called at period rollover; the
// rotating key means a fresh period starts empty even without the reset, but
// the reset guarantees prompt cleanup and a fully seeded board.
func (e *Engine) ResetRank(ctx context.Context, p Period) error {
	var key string
	var ttl time.Duration
	now := e.opts.Now()
	switch p {
	case PeriodDay:
		key, ttl = DayKey(now), e.opts.DayTTL
	case PeriodWeek:
		key, ttl = WeekKey(now), e.opts.WeekTTL
	default:
		return fmt.Errorf("period %q cannot be reset", p)
	}

	if err := e.store.Del(ctx, key); err != nil {
		return fmt.Errorf("failed to clear ranking set %s: %w", key, err)
	}

	ids, err := e.articles.PublishedIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list published articles for reset: %w", err)
	}
	for _, id := range ids {
		if err := e.store.ZAddAt(ctx, key, strconv.FormatInt(id, 10), 0); err != nil {
			e.logger.Warn("reset seed failed", "key", key, "article_id", id, "error", err)
		}
	}
	if err := e.store.Expire(ctx, key, ttl); err != nil {
		e.logger.Warn("failed to set ranking set TTL", "key", key, "error", err)
	}

	e.logger.Info("ranking set reset", "period", string(p), "key", key, "seeded", len(ids))
	return nil
}

// RemoveFromRank removes an article from the all-time set and the currently
// active day and week sets. Best effort: historical day/week keys are left to
// their TTLs.
func (e *Engine) RemoveFromRank(ctx context.Context, articleID int64) {
	if articleID == 0 {
		return
	}
	member := strconv.FormatInt(articleID, 10)
	for _, set := range e.activeSets() {
		if _, err := e.store.ZRem(ctx, set.Key, member); err != nil {
			e.logger.Warn("failed to remove article from ranking set",
				"key", set.Key, "article_id", articleID, "error", err)
		}
	}
	e.logger.Info("removed article from ranking", "article_id", articleID)
}

// Scores returns the hotness score each of the given articles holds in the
// period's set. Articles absent from the set are omitted from the result.
func (e *Engine) Scores(ctx context.Context, articleIDs []int64, p Period) map[int64]float64 {
	scores := make(map[int64]float64, len(articleIDs))
	if len(articleIDs) == 0 {
		return scores
	}
	key := Key(p, e.opts.Now())
	for _, id := range articleIDs {
		score, ok, err := e.store.ZScore(ctx, key, strconv.FormatInt(id, 10))
		if err != nil {
			e.logger.Warn("score lookup failed", "key", key, "article_id", id, "error", err)
			continue
		}
		if ok {
			scores[id] = score
		}
	}
	return scores
}
