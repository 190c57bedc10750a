package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// New creates a new Redis client and verifies connectivity.
func New(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("platform/cache: ping: %w", err)
	}

	return client, nil
}

// MarkOnce sets key with ttl only when it is absent. It reports true when this call
// claimed the key.
func MarkOnce(ctx context.Context, client redis.Cmdable, key string, ttl time.Duration) (bool, error) {
	ok, err := client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("platform/cache: setnx %s: %w", key, err)
	}
	return ok, nil
}

// Forget deletes key, releasing a marker claimed by MarkOnce.
func Forget(ctx context.Context, client redis.Cmdable, key string) error {
	if err := client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("platform/cache: del %s: %w", key, err)
	}
	return nil
}
