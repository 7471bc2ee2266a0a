// Package article provides the system-of-record models and repositories the
// ranking and cache-consistency cores read from. Write-path business rules
// live elsewhere; this package only exposes the read surface those cores need.
package article

import (
	"errors"
	"time"
)

// Common errors for article lookups.
var ErrArticleNotFound = errors.New("article not found")

// Publication status values, mirroring the articles.status column.
const (
	StatusDraft     = 1
	StatusPublished = 2
	StatusArchived  = 3
)

// Article is the minimal projection of an article row the ranking core reads.
type Article struct {
	ID          int64      `json:"id"`
	AuthorID    int64      `json:"author_id"`
	Title       string     `json:"title"`
	Summary     string     `json:"summary,omitempty"`
	Status      int        `json:"status"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Published reports whether the article is visible to readers.
func (a *Article) Published() bool {
	return a.Status == StatusPublished
}

// LikeRecord is a row of the user_likes join relation, sampled by the
// consistency verifier.
type LikeRecord struct {
	ArticleID int64
	UserID    int64
	CreatedAt time.Time
}

// FavoriteRecord is a row of the user_favorites join relation.
type FavoriteRecord struct {
	ArticleID int64
	UserID    int64
	CreatedAt time.Time
}
