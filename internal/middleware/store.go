package middleware

import (
	"context"
	"time"
)

// Store is the slice of Redis the middleware needs. *redis.Client from
// internal/pkg/redis satisfies it.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	DelPattern(ctx context.Context, pattern string) error
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}
