package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// New creates a Redis client. When required is false a failed ping is
// returned alongside a usable client so callers can degrade instead of exit.
func New(ctx context.Context, addr string, required bool) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		if required {
			_ = client.Close()
			return nil, fmt.Errorf("platform/cache: ping: %w", err)
		}
		return client, fmt.Errorf("platform/cache: ping: %w", err)
	}

	return client, nil
}
