package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Redis backs the Store interface with a shared Redis instance so
// multiple analysis processes reuse each other's consensus results.
type Redis struct {
	client *redis.Client
	log    zerolog.Logger
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, log zerolog.Logger) *Redis {
	return &Redis{
		client: client,
		log:    log.With().Str("component", "cache").Logger(),
	}
}

// Get fetches a key. Backend errors are treated as cache misses; the
// pipeline recomputes rather than failing.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("cache get failed")
		return nil, false
	}
	return val, true
}

// Set stores a value with a TTL. Errors are logged and ignored.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("cache set failed")
	}
}

// Evict removes a key.
func (r *Redis) Evict(ctx context.Context, key string) {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("cache evict failed")
	}
}
