package article

import "context"

// Reader is the read surface of the article system of record consumed by the
// ranking engine.
type Reader interface {
	// GetByID fetches a single article. Returns ErrArticleNotFound if the id
	// does not exist.
	GetByID(ctx context.Context, id int64) (*Article, error)

	// BatchByIDs fetches the articles for the given ids. Missing ids are
	// simply absent from the result; order is not guaranteed.
	BatchByIDs(ctx context.Context, ids []int64) ([]Article, error)

	// PublishedIDs lists the ids of all published articles, used by the rank
	// bootstrap and period reset.
	PublishedIDs(ctx context.Context) ([]int64, error)
}

// RelationReader reads the most recent rows of the like/favorite join
// relations for the consistency verifier.
type RelationReader interface {
	// RecentLikes returns up to n like rows, newest first.
	RecentLikes(ctx context.Context, n int) ([]LikeRecord, error)

	// RecentFavorites returns up to n favorite rows, newest first.
	RecentFavorites(ctx context.Context, n int) ([]FavoriteRecord, error)
}

// Repository is the full read surface backed by the database.
type Repository interface {
	Reader
	RelationReader
}
