package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis stores blobs as plain string values with a TTL.
type Redis struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed substrate.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Load implements Substrate.
func (r *Redis) Load(ctx context.Context, key string) ([]byte, bool, error) {
	if r == nil || r.client == nil {
		return nil, false, errors.New("cache: redis client not configured")
	}
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// Save implements Substrate.
func (r *Redis) Save(ctx context.Context, key string, blob []byte, ttl time.Duration) error {
	if r == nil || r.client == nil {
		return errors.New("cache: redis client not configured")
	}
	if ttl < 0 {
		ttl = 0
	}
	return r.client.Set(ctx, key, blob, ttl).Err()
}

// Delete implements Substrate.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if r == nil || r.client == nil {
		return errors.New("cache: redis client not configured")
	}
	return r.client.Del(ctx, key).Err()
}
