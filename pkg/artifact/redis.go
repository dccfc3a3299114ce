package artifact

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of *redis.Client used by RedisStore.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore keeps artifacts in Redis so several pipeline replicas can share
// one trained model.
type RedisStore struct {
	client RedisClient
	prefix string
}

// NewRedisStore returns a store writing keys under prefix.
func NewRedisStore(client RedisClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "cti:model:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(name string) string { return s.prefix + name }

func (s *RedisStore) Exists(ctx context.Context, name string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(name)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s: %w", name, err)
	}
	return n > 0, nil
}

func (s *RedisStore) Load(ctx context.Context, name string) ([]byte, error) {
	blob, err := s.client.Get(ctx, s.key(name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("redis get %s: %w", name, err)
	}
	return decode(blob)
}

// Save issues a single SET, which Redis applies atomically.
func (s *RedisStore) Save(ctx context.Context, name string, data []byte) error {
	if err := s.client.Set(ctx, s.key(name), encode(data), 0).Err(); err != nil {
		return &ConfigurationError{Location: "redis:" + s.key(name), Err: err}
	}
	return nil
}
