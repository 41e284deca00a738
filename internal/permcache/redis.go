package permcache

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// ChangesChannel is the pub/sub channel carrying cache change notifications.
const ChangesChannel = "permissions:changes"

const scanBatch = 100

// RedisStore shares entries between instances through Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps a Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get loads the raw entry.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	payload, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

// Set writes the entry without a Redis expiry; staleness is judged from the entry itself.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return err
	}
	return s.publish(ctx, key)
}

// Delete removes one key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return err
	}
	return s.publish(ctx, key)
}

// DeletePrefix removes every key under prefix using SCAN.
func (s *RedisStore) DeletePrefix(ctx context.Context, prefix string) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, prefix+"*", scanBatch).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return s.publish(ctx, prefix+"*")
}

// Watch subscribes to change notifications published by any instance.
func (s *RedisStore) Watch(ctx context.Context, fn func(key string)) error {
	pubsub := s.client.Subscribe(ctx, ChangesChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				fn(msg.Payload)
			}
		}
	}()
	return nil
}

func (s *RedisStore) publish(ctx context.Context, key string) error {
	return s.client.Publish(ctx, ChangesChannel, key).Err()
}
