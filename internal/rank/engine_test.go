package rank

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/scribeworks/scribe/internal/article"
	"github.com/scribeworks/scribe/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func seedArticles(repo *article.InMemoryRepository, ids ...int64) {
	now := time.Now()
	for _, id := range ids {
		repo.Put(article.Article{
			ID:          id,
			AuthorID:    1000 + id,
			Title:       "article " + strconv.FormatInt(id, 10),
			Status:      article.StatusPublished,
			PublishedAt: &now,
			CreatedAt:   now,
		})
	}
}

func newTestEngine(t *testing.T, opts Options) (*Engine, *store.MemoryStore, *article.InMemoryRepository) {
	t.Helper()
	s := store.NewMemoryStore()
	repo := article.NewInMemoryRepository()
	if opts.Now == nil {
		opts.Now = fixedClock(time.Date(2026, time.January, 28, 12, 0, 0, 0, time.UTC))
	}
	return NewEngine(s, repo, opts, discardLogger()), s, repo
}

func TestIncrementScore_UpdatesAllPeriods(t *testing.T) {
	engine, _, repo := newTestEngine(t, Options{})
	seedArticles(repo, 1)
	ctx := context.Background()

	engine.IncrementScore(ctx, 1, 5)
	engine.IncrementScore(ctx, 1, 3)

	for _, p := range []Period{PeriodAllTime, PeriodDay, PeriodWeek} {
		scores := engine.Scores(ctx, []int64{1}, p)
		if scores[1] != 8 {
			t.Errorf("period %s: expected score 8, got %f", p, scores[1])
		}
	}
}

func TestIncrementScore_ZeroIDIsNoOp(t *testing.T) {
	engine, s, _ := newTestEngine(t, Options{})

	engine.IncrementScore(context.Background(), 0, 5)

	if n, _ := s.ZCard(context.Background(), "hot:articles:zset:all"); n != 0 {
		t.Errorf("expected empty all-time set, got %d members", n)
	}
}

func TestDecrementScore_FloorsAtZero(t *testing.T) {
	engine, _, repo := newTestEngine(t, Options{})
	seedArticles(repo, 1)
	ctx := context.Background()

	engine.IncrementScore(ctx, 1, 5)
	engine.DecrementScore(ctx, 1, 100)

	scores := engine.Scores(ctx, []int64{1}, PeriodAllTime)
	if scores[1] != 0 {
		t.Errorf("expected score floored at 0, got %f", scores[1])
	}
}

func TestClampDelta(t *testing.T) {
	engine, _, _ := newTestEngine(t, Options{ClampMin: 1, ClampMax: 10})

	tests := []struct {
		delta float64
		want  float64
	}{
		{5, 5},
		{50, 10},
		{0.2, 1},
		{-50, -10},
		{-0.2, -1},
	}

	for _, tt := range tests {
		if got := engine.clampDelta(tt.delta); got != tt.want {
			t.Errorf("clampDelta(%f) = %f, want %f", tt.delta, got, tt.want)
		}
	}
}

func TestClampDelta_DisabledByDefault(t *testing.T) {
	engine, _, _ := newTestEngine(t, Options{})

	if got := engine.clampDelta(1e6); got != 1e6 {
		t.Errorf("expected clamping disabled, got %f", got)
	}
}

func TestSelfActionsAreIgnored(t *testing.T) {
	engine, _, repo := newTestEngine(t, Options{})
	seedArticles(repo, 1) // author is 1001
	ctx := context.Background()

	engine.IncrementViewScore(ctx, 1, 1001, 1001)
	engine.IncrementLikeScore(ctx, 1, 1001, 1001)
	engine.IncrementCommentScore(ctx, 1, 1001, 1001)
	engine.IncrementFavoriteScore(ctx, 1, 1001, 1001)
	engine.DecrementLikeScore(ctx, 1, 1001, 1001)

	scores := engine.Scores(ctx, []int64{1}, PeriodAllTime)
	if _, ok := scores[1]; ok {
		t.Errorf("expected no score for self-actions, got %f", scores[1])
	}
}

func TestActionWeights(t *testing.T) {
	engine, _, repo := newTestEngine(t, Options{})
	seedArticles(repo, 1, 2, 3, 4)
	ctx := context.Background()

	engine.IncrementViewScore(ctx, 1, 7, 1001)
	engine.IncrementLikeScore(ctx, 2, 7, 1002)
	engine.IncrementCommentScore(ctx, 3, 7, 1003)
	engine.IncrementFavoriteScore(ctx, 4, 7, 1004)

	scores := engine.Scores(ctx, []int64{1, 2, 3, 4}, PeriodDay)
	want := map[int64]float64{1: 1, 2: 5, 3: 10, 4: 8}
	for id, expected := range want {
		if scores[id] != expected {
			t.Errorf("article %d: expected score %f, got %f", id, expected, scores[id])
		}
	}
}

func TestConcurrentIncrements(t *testing.T) {
	engine, _, repo := newTestEngine(t, Options{})
	seedArticles(repo, 1)
	ctx := context.Background()

	const goroutines = 8
	const perGoroutine = 50

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				engine.IncrementScore(ctx, 1, 1)
			}
		}()
	}
	wg.Wait()

	scores := engine.Scores(ctx, []int64{1}, PeriodAllTime)
	if scores[1] != goroutines*perGoroutine {
		t.Errorf("expected score %d, got %f", goroutines*perGoroutine, scores[1])
	}
}

func TestHotArticles_OrderAndHydration(t *testing.T) {
	engine, _, repo := newTestEngine(t, Options{})
	seedArticles(repo, 1, 2, 3)
	ctx := context.Background()

	engine.IncrementScore(ctx, 1, 3)
	engine.IncrementScore(ctx, 2, 9)
	engine.IncrementScore(ctx, 3, 6)

	ranked, err := engine.HotArticles(ctx, 10, PeriodDay)
	if err != nil {
		t.Fatalf("HotArticles failed: %v", err)
	}

	if len(ranked) != 3 {
		t.Fatalf("expected 3 articles, got %d", len(ranked))
	}
	wantOrder := []int64{2, 3, 1}
	wantScores := []float64{9, 6, 3}
	for i := range wantOrder {
		if ranked[i].Article.ID != wantOrder[i] {
			t.Errorf("position %d: expected article %d, got %d", i, wantOrder[i], ranked[i].Article.ID)
		}
		if ranked[i].HotScore != wantScores[i] {
			t.Errorf("position %d: expected score %f, got %f", i, wantScores[i], ranked[i].HotScore)
		}
	}
}

func TestHotArticles_EmptySet(t *testing.T) {
	engine, _, _ := newTestEngine(t, Options{})

	ranked, err := engine.HotArticles(context.Background(), 10, PeriodDay)
	if err != nil {
		t.Fatalf("HotArticles failed: %v", err)
	}
	if len(ranked) != 0 {
		t.Errorf("expected empty result, got %d", len(ranked))
	}
}

func TestHotArticles_PrunesStaleIDs(t *testing.T) {
	engine, s, repo := newTestEngine(t, Options{})
	seedArticles(repo, 1)
	ctx := context.Background()

	engine.IncrementScore(ctx, 1, 5)
	// Article 99 is in the set but has no backing row.
	engine.IncrementScore(ctx, 99, 8)

	ranked, err := engine.HotArticles(ctx, 10, PeriodDay)
	if err != nil {
		t.Fatalf("HotArticles failed: %v", err)
	}

	if len(ranked) != 1 || ranked[0].Article.ID != 1 {
		t.Fatalf("expected only article 1, got %v", ranked)
	}

	// The stale member must be removed from the queried set.
	key := DayKey(time.Date(2026, time.January, 28, 12, 0, 0, 0, time.UTC))
	if _, ok, _ := s.ZScore(ctx, key, "99"); ok {
		t.Error("expected stale member 99 to be pruned")
	}
}

func TestHotArticlesPage_TotalsAndBounds(t *testing.T) {
	engine, _, repo := newTestEngine(t, Options{})
	seedArticles(repo, 1, 2, 3, 4, 5)
	ctx := context.Background()

	for id := int64(1); id <= 5; id++ {
		engine.IncrementScore(ctx, id, float64(id))
	}

	page, err := engine.HotArticlesPage(ctx, 2, 2, PeriodDay)
	if err != nil {
		t.Fatalf("HotArticlesPage failed: %v", err)
	}

	if page.Total != 5 {
		t.Errorf("expected total 5, got %d", page.Total)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(page.Items))
	}
	// Descending scores 5,4 | 3,2 | 1 - page 2 holds articles 3 and 2.
	if page.Items[0].Article.ID != 3 || page.Items[1].Article.ID != 2 {
		t.Errorf("unexpected page contents: %d, %d", page.Items[0].Article.ID, page.Items[1].Article.ID)
	}
}

func TestHotArticlesPage_BeyondEnd(t *testing.T) {
	engine, _, repo := newTestEngine(t, Options{})
	seedArticles(repo, 1)
	ctx := context.Background()

	engine.IncrementScore(ctx, 1, 5)

	page, err := engine.HotArticlesPage(ctx, 10, 20, PeriodDay)
	if err != nil {
		t.Fatalf("HotArticlesPage failed: %v", err)
	}
	if len(page.Items) != 0 {
		t.Errorf("expected empty page, got %d items", len(page.Items))
	}
	if page.Total != 1 {
		t.Errorf("expected total 1, got %d", page.Total)
	}
}

func TestInitializeArticle_Idempotent(t *testing.T) {
	engine, _, repo := newTestEngine(t, Options{})
	seedArticles(repo, 1)
	ctx := context.Background()

	engine.IncrementScore(ctx, 1, 7)

	// Re-initializing must not clobber the existing score.
	engine.InitializeArticle(ctx, 1)

	scores := engine.Scores(ctx, []int64{1}, PeriodAllTime)
	if scores[1] != 7 {
		t.Errorf("expected score 7 preserved, got %f", scores[1])
	}
}

func TestInitializeAllArticles(t *testing.T) {
	engine, _, repo := newTestEngine(t, Options{})
	seedArticles(repo, 1, 2, 3)
	ctx := context.Background()

	// Article 2 already has a score; bootstrap must leave it alone.
	engine.IncrementScore(ctx, 2, 4)

	seeded, err := engine.InitializeAllArticles(ctx)
	if err != nil {
		t.Fatalf("InitializeAllArticles failed: %v", err)
	}
	if seeded != 2 {
		t.Errorf("expected 2 newly seeded articles, got %d", seeded)
	}

	scores := engine.Scores(ctx, []int64{1, 2, 3}, PeriodAllTime)
	if scores[1] != 0 || scores[3] != 0 {
		t.Errorf("expected articles 1 and 3 seeded at 0, got %v", scores)
	}
	if scores[2] != 4 {
		t.Errorf("expected article 2 score preserved at 4, got %f", scores[2])
	}

	// Second run is a no-op.
	seeded, err = engine.InitializeAllArticles(ctx)
	if err != nil {
		t.Fatalf("second InitializeAllArticles failed: %v", err)
	}
	if seeded != 0 {
		t.Errorf("expected 0 seeded on re-run, got %d", seeded)
	}
}

func TestResetRank_ClearsAndReseeds(t *testing.T) {
	now := time.Date(2026, time.January, 28, 12, 0, 0, 0, time.UTC)
	engine, s, repo := newTestEngine(t, Options{Now: fixedClock(now)})
	seedArticles(repo, 1, 2)
	ctx := context.Background()

	engine.IncrementScore(ctx, 1, 9)

	if err := engine.ResetRank(ctx, PeriodDay); err != nil {
		t.Fatalf("ResetRank failed: %v", err)
	}

	key := DayKey(now)
	for _, member := range []string{"1", "2"} {
		score, ok, _ := s.ZScore(ctx, key, member)
		if !ok {
			t.Errorf("expected member %s seeded after reset", member)
		}
		if score != 0 {
			t.Errorf("expected member %s at score 0, got %f", member, score)
		}
	}

	// The all-time set keeps its accumulated score.
	scores := engine.Scores(ctx, []int64{1}, PeriodAllTime)
	if scores[1] != 9 {
		t.Errorf("expected all-time score untouched, got %f", scores[1])
	}
}

func TestResetRank_RejectsAllTime(t *testing.T) {
	engine, _, _ := newTestEngine(t, Options{})

	if err := engine.ResetRank(context.Background(), PeriodAllTime); err == nil {
		t.Error("expected error resetting the all-time period")
	}
}

func TestRemoveFromRank(t *testing.T) {
	engine, _, repo := newTestEngine(t, Options{})
	seedArticles(repo, 1)
	ctx := context.Background()

	engine.IncrementScore(ctx, 1, 5)
	engine.RemoveFromRank(ctx, 1)

	for _, p := range []Period{PeriodAllTime, PeriodDay, PeriodWeek} {
		if scores := engine.Scores(ctx, []int64{1}, p); len(scores) != 0 {
			t.Errorf("period %s: expected article removed, got %v", p, scores)
		}
	}
}

func TestScores_OmitsUntracked(t *testing.T) {
	engine, _, repo := newTestEngine(t, Options{})
	seedArticles(repo, 1, 2)
	ctx := context.Background()

	engine.IncrementScore(ctx, 1, 3)

	scores := engine.Scores(ctx, []int64{1, 2}, PeriodDay)
	if len(scores) != 1 {
		t.Fatalf("expected 1 tracked score, got %d", len(scores))
	}
	if scores[1] != 3 {
		t.Errorf("expected score 3, got %f", scores[1])
	}
}

func TestScheduler_TickResetsDayAndMondayWeek(t *testing.T) {
	monday := time.Date(2026, time.January, 26, 0, 0, 0, 0, time.UTC)
	engine, s, repo := newTestEngine(t, Options{Now: fixedClock(monday)})
	seedArticles(repo, 1)
	ctx := context.Background()

	engine.IncrementScore(ctx, 1, 5)

	sched := NewScheduler(engine, discardLogger(), nil)
	sched.tick(monday)

	dayScore, ok, _ := s.ZScore(ctx, DayKey(monday), "1")
	if !ok || dayScore != 0 {
		t.Errorf("expected day score reset to 0, got %f (tracked=%t)", dayScore, ok)
	}
	weekScore, ok, _ := s.ZScore(ctx, WeekKey(monday), "1")
	if !ok || weekScore != 0 {
		t.Errorf("expected week score reset to 0, got %f (tracked=%t)", weekScore, ok)
	}
}

func TestScheduler_MidweekTickLeavesWeekSet(t *testing.T) {
	wednesday := time.Date(2026, time.January, 28, 0, 0, 0, 0, time.UTC)
	engine, s, repo := newTestEngine(t, Options{Now: fixedClock(wednesday)})
	seedArticles(repo, 1)
	ctx := context.Background()

	engine.IncrementScore(ctx, 1, 5)

	sched := NewScheduler(engine, discardLogger(), nil)
	sched.tick(wednesday)

	weekScore, ok, _ := s.ZScore(ctx, WeekKey(wednesday), "1")
	if !ok || weekScore != 5 {
		t.Errorf("expected week score untouched at 5, got %f (tracked=%t)", weekScore, ok)
	}
}

func TestScheduler_RunStops(t *testing.T) {
	engine, _, _ := newTestEngine(t, Options{})
	sched := NewScheduler(engine, discardLogger(), nil)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		sched.Run(stop)
		close(done)
	}()

	close(stop)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop in time")
	}
}
