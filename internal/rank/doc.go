// Package rank maintains real-time article hotness rankings in Redis sorted
// sets, one set per time window (all-time, current day, current week).
//
// Basic Usage:
//
//	engine := rank.NewEngine(redisStore, articleRepo, rank.Options{}, logger)
//
//	// Write path: record reader actions. Self-interaction (the author
//	// acting on their own article) is excluded automatically.
//	engine.IncrementViewScore(ctx, articleID, viewerID, authorID)
//	engine.IncrementLikeScore(ctx, articleID, likerID, authorID)
//
//	// Read path: ranked, hydrated results.
//	top, err := engine.HotArticles(ctx, 10, rank.PeriodDay)
//	page, err := engine.HotArticlesPage(ctx, 2, 20, rank.PeriodWeek)
//
// Key rotation:
//
// Day and week sets embed the local date or week number in their key, so the
// active set rotates by construction at each rollover. The Scheduler fires at
// local midnight (and Monday midnight for the week set) to promptly clear and
// re-seed the new period's set; abandoned keys from previous periods expire
// via their TTLs.
//
// Consistency model:
//
// A single action's effect on all three sets is applied by one server-side
// script, so concurrent updates to the same article never lose increments and
// a crash cannot leave the periods disagreeing about which updates happened.
// Reads are eventually consistent with respect to concurrent writes.
package rank
