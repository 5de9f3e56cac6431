// Package cache holds short-lived subscription access decisions so the
// permission layer does not hit the database on every request.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "fleet:access:"
	DefaultTTL = 30 * time.Second
)

// AccessCache stores per-company feature access decisions.
type AccessCache interface {
	Get(ctx context.Context, companyID uuid.UUID) (allowed bool, found bool, err error)
	Set(ctx context.Context, companyID uuid.UUID, allowed bool) error
	Invalidate(ctx context.Context, companyID uuid.UUID) error
}

// RedisAccessCache keeps decisions in Redis with a TTL. The TTL bounds how
// long a trial that expired by the clock is still honoured.
type RedisAccessCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisAccessCache(client redis.UniversalClient, ttl time.Duration) *RedisAccessCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisAccessCache{client: client, ttl: ttl}
}

// NewRedisClient connects to addr and checks the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func key(companyID uuid.UUID) string {
	return keyPrefix + companyID.String()
}

func (c *RedisAccessCache) Get(ctx context.Context, companyID uuid.UUID) (bool, bool, error) {
	val, err := c.client.Get(ctx, key(companyID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return val == "1", true, nil
}

func (c *RedisAccessCache) Set(ctx context.Context, companyID uuid.UUID, allowed bool) error {
	val := "0"
	if allowed {
		val = "1"
	}
	return c.client.Set(ctx, key(companyID), val, c.ttl).Err()
}

func (c *RedisAccessCache) Invalidate(ctx context.Context, companyID uuid.UUID) error {
	return c.client.Del(ctx, key(companyID)).Err()
}

// Noop never caches.
type Noop struct{}

func (Noop) Get(context.Context, uuid.UUID) (bool, bool, error) { return false, false, nil }
func (Noop) Set(context.Context, uuid.UUID, bool) error          { return nil }
func (Noop) Invalidate(context.Context, uuid.UUID) error         { return nil }
