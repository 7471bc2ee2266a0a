// Package health provides readiness checks for the service's external
// dependencies: the Postgres system of record and the Redis score store.
package health

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DBChecker reports whether the article database answers a round trip.
type DBChecker struct {
	db *sql.DB
}

// NewDBChecker wraps the given pool.
func NewDBChecker(db *sql.DB) *DBChecker {
	return &DBChecker{db: db}
}

// HealthCheck pings the database through the pool. The error is wrapped so
// readiness logs name the failing dependency.
func (c *DBChecker) HealthCheck(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	return nil
}

// RedisChecker reports whether the score store answers a PING.
type RedisChecker struct {
	client *redis.Client
}

// NewRedisChecker wraps the given client.
func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

// HealthCheck sends a PING on the shared client.
func (c *RedisChecker) HealthCheck(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
