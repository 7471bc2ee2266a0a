package article

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/scribeworks/scribe/internal/tracing"
)

// PostgresRepository implements Repository on top of a PostgreSQL database.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repository backed by the given database.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID fetches a single article by id.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*Article, error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "articles", tracing.DBOperationQuery)
	var a Article
	err := r.db.QueryRowContext(ctx, `
		SELECT id, author_id, title, summary, status, published_at, created_at
		FROM articles
		WHERE id = $1`, id,
	).Scan(&a.ID, &a.AuthorID, &a.Title, &a.Summary, &a.Status, &a.PublishedAt, &a.CreatedAt)
	endSpan(err)
	if err == sql.ErrNoRows {
		return nil, ErrArticleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch article %d: %w", id, err)
	}
	return &a, nil
}

// BatchByIDs fetches the articles for the given ids. Missing ids are absent
// from the result.
func (r *PostgresRepository) BatchByIDs(ctx context.Context, ids []int64) ([]Article, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "articles", tracing.DBOperationQuery)
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, author_id, title, summary, status, published_at, created_at
		FROM articles
		WHERE id = ANY($1)`, pq.Array(ids))
	endSpan(err)
	if err != nil {
		return nil, fmt.Errorf("failed to batch-fetch articles: %w", err)
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		var a Article
		if err := rows.Scan(&a.ID, &a.AuthorID, &a.Title, &a.Summary, &a.Status, &a.PublishedAt, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan article row: %w", err)
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// PublishedIDs lists the ids of all published articles.
func (r *PostgresRepository) PublishedIDs(ctx context.Context) ([]int64, error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "articles", tracing.DBOperationQuery)
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM articles WHERE status = $1`, StatusPublished)
	endSpan(err)
	if err != nil {
		return nil, fmt.Errorf("failed to list published articles: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan article id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RecentLikes returns up to n like rows, newest first.
func (r *PostgresRepository) RecentLikes(ctx context.Context, n int) ([]LikeRecord, error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "user_likes", tracing.DBOperationQuery)
	rows, err := r.db.QueryContext(ctx, `
		SELECT article_id, user_id, created_at
		FROM user_likes
		ORDER BY created_at DESC
		LIMIT $1`, n)
	endSpan(err)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent likes: %w", err)
	}
	defer rows.Close()

	var likes []LikeRecord
	for rows.Next() {
		var l LikeRecord
		if err := rows.Scan(&l.ArticleID, &l.UserID, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan like row: %w", err)
		}
		likes = append(likes, l)
	}
	return likes, rows.Err()
}

// RecentFavorites returns up to n favorite rows, newest first.
func (r *PostgresRepository) RecentFavorites(ctx context.Context, n int) ([]FavoriteRecord, error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "user_favorites", tracing.DBOperationQuery)
	rows, err := r.db.QueryContext(ctx, `
		SELECT article_id, user_id, created_at
		FROM user_favorites
		ORDER BY created_at DESC
		LIMIT $1`, n)
	endSpan(err)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent favorites: %w", err)
	}
	defer rows.Close()

	var favorites []FavoriteRecord
	for rows.Next() {
		var f FavoriteRecord
		if err := rows.Scan(&f.ArticleID, &f.UserID, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan favorite row: %w", err)
		}
		favorites = append(favorites, f)
	}
	return favorites, rows.Err()
}
