// Package cache stores aggregate results between report runs. Values are
// JSON encoded, so every implementation round-trips the same Go shapes.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"jobmarket/internal/config"
)

var (
	ErrNotFound = errors.New("key not found in cache")
	ErrClosed   = errors.New("cache is closed")
)

// Cache is safe for concurrent use.
type Cache interface {
	// Set stores value under key. ttl 0 uses the cache default.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// Get decodes the value under key into value, a pointer. Missing and
	// expired keys return ErrNotFound.
	Get(ctx context.Context, key string, value any) error

	Delete(ctx context.Context, key string) error

	// Clear removes every key this cache owns.
	Clear(ctx context.Context) error

	Close() error
}

// Key joins parts with ':' after escaping any ':' inside a part.
func Key(parts ...string) string {
	esc := make([]string, len(parts))
	for i, p := range parts {
		esc[i] = strings.ReplaceAll(p, ":", "%3A")
	}
	return strings.Join(esc, ":")
}

// New builds the cache described by cfg. Kind "none" (or empty) returns a
// Noop cache.
func New(ctx context.Context, cfg config.Cache) (Cache, error) {
	switch cfg.Kind {
	case "", "none":
		return Noop{}, nil
	case "memory":
		return NewMemory(cfg.TTL()), nil
	case "redis":
		if cfg.Redis == nil {
			return nil, fmt.Errorf("cache.kind=redis requires cache.redis")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
		}
		prefix := cfg.Redis.Prefix
		if prefix == "" {
			prefix = "jobmarket"
		}
		return NewRedis(client, prefix, cfg.TTL()), nil
	default:
		return nil, fmt.Errorf("unsupported cache.kind=%s", cfg.Kind)
	}
}

// Noop never stores anything.
type Noop struct{}

func (Noop) Set(context.Context, string, any, time.Duration) error { return nil }
func (Noop) Get(context.Context, string, any) error                { return ErrNotFound }
func (Noop) Delete(context.Context, string) error                  { return nil }
func (Noop) Clear(context.Context) error                           { return nil }
func (Noop) Close() error                                          { return nil }
