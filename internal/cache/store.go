// Package cache holds short-lived shared values such as the economic
// config snapshot.
package cache

import (
	"context"
	"time"

	"tpia/config"
)

type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// New returns a redis store when an address is configured, otherwise an
// in-process one.
func New(cfg config.RedisConfig) Store {
	if cfg.Addr == "" {
		return NewMemoryStore()
	}
	return NewRedisStore(cfg, "tpia:")
}
