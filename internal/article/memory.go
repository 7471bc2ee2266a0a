package article

import (
	"context"
	"sort"
	"sync"
)

// InMemoryRepository implements Repository with in-memory storage. It exists
// for unit tests and local development without a database.
type InMemoryRepository struct {
	mu        sync.RWMutex
	articles  map[int64]Article
	likes     []LikeRecord
	favorites []FavoriteRecord
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		articles: make(map[int64]Article),
	}
}

// Put stores or replaces an article.
func (r *InMemoryRepository) Put(a Article) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.articles[a.ID] = a
}

// Remove deletes an article.
func (r *InMemoryRepository) Remove(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.articles, id)
}

// AddLike appends a like row.
func (r *InMemoryRepository) AddLike(l LikeRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.likes = append(r.likes, l)
}

// AddFavorite appends a favorite row.
func (r *InMemoryRepository) AddFavorite(f FavoriteRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.favorites = append(r.favorites, f)
}

// GetByID fetches a single article by id.
func (r *InMemoryRepository) GetByID(_ context.Context, id int64) (*Article, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.articles[id]
	if !ok {
		return nil, ErrArticleNotFound
	}
	return &a, nil
}

// BatchByIDs fetches the articles for the given ids, skipping missing ones.
func (r *InMemoryRepository) BatchByIDs(_ context.Context, ids []int64) ([]Article, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Article
	for _, id := range ids {
		if a, ok := r.articles[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

// PublishedIDs lists the ids of all published articles in ascending order.
func (r *InMemoryRepository) PublishedIDs(_ context.Context) ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []int64
	for id, a := range r.articles {
		if a.Published() {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// RecentLikes returns up to n like rows, newest first.
func (r *InMemoryRepository) RecentLikes(_ context.Context, n int) ([]LikeRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	likes := make([]LikeRecord, len(r.likes))
	copy(likes, r.likes)
	sort.Slice(likes, func(i, j int) bool { return likes[i].CreatedAt.After(likes[j].CreatedAt) })
	if len(likes) > n {
		likes = likes[:n]
	}
	return likes, nil
}

// RecentFavorites returns up to n favorite rows, newest first.
func (r *InMemoryRepository) RecentFavorites(_ context.Context, n int) ([]FavoriteRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	favorites := make([]FavoriteRecord, len(r.favorites))
	copy(favorites, r.favorites)
	sort.Slice(favorites, func(i, j int) bool { return favorites[i].CreatedAt.After(favorites[j].CreatedAt) })
	if len(favorites) > n {
		favorites = favorites[:n]
	}
	return favorites, nil
}
