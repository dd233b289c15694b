package cursor

import (
	"context"
	"errors"
	"fmt"

	"github.com/Egham-7/substreams-bridge/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps cursors as plain string keys
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore uses client without taking ownership of it
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Load(ctx context.Context, key string) (models.Cursor, bool, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load cursor %s: %w", key, err)
	}
	return models.Cursor(val), true, nil
}

func (s *RedisStore) Persist(ctx context.Context, key string, cursor models.Cursor) error {
	if err := s.client.Set(ctx, s.prefix+key, cursor.String(), 0).Err(); err != nil {
		return fmt.Errorf("persist cursor %s: %w", key, err)
	}
	return nil
}

// Close leaves the client open; its owner closes it.
func (s *RedisStore) Close() error {
	return nil
}
