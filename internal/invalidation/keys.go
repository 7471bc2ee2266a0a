package invalidation

import "fmt"

// Cache key prefixes for the read-through projections this pipeline
// invalidates and the verifier checks.
const (
	likeStatusKeyPrefix     = "article:like:"
	favoriteStatusKeyPrefix = "article:favorite:"
)

// Serialized boolean projections stored under the status keys.
const (
	CachedTrue  = "true"
	CachedFalse = "false"
)

// LikeStatusKey returns the cache key for "does user X like article Y".
func LikeStatusKey(articleID, userID int64) string {
	return fmt.Sprintf("%s%d:%d", likeStatusKeyPrefix, articleID, userID)
}

// FavoriteStatusKey returns the cache key for "has user X favorited article Y".
func FavoriteStatusKey(articleID, userID int64) string {
	return fmt.Sprintf("%s%d:%d", favoriteStatusKeyPrefix, articleID, userID)
}
