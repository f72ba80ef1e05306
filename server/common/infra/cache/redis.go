package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

func Ping(ctx context.Context, c *redis.Client) error {
	return c.Ping(ctx).Err()
}

// WindowCounter counts hits per key in Redis; the key expires with its window.
type WindowCounter struct {
	client *redis.Client
}

func NewWindowCounter(client *redis.Client) *WindowCounter {
	return &WindowCounter{client: client}
}

func (w *WindowCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := w.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
