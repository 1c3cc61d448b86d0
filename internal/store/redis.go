package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisKey = "athena:persona"

// RedisPersonaStore keeps the persona description under a single key.
type RedisPersonaStore struct {
	client *redis.Client
	key    string
}

// OpenRedis connects to the server at url (redis://...) and pings it.
func OpenRedis(ctx context.Context, url, key string) (*RedisPersonaStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis store: parse url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis store: ping: %w", err)
	}
	return NewRedisPersonaStore(client, key), nil
}

func NewRedisPersonaStore(client *redis.Client, key string) *RedisPersonaStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisPersonaStore{client: client, key: key}
}

func (s *RedisPersonaStore) Load(ctx context.Context) (string, bool, error) {
	desc, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("persona load: %w", err)
	}
	return desc, true, nil
}

func (s *RedisPersonaStore) Save(ctx context.Context, description string) error {
	if err := s.client.Set(ctx, s.key, description, 0).Err(); err != nil {
		return fmt.Errorf("persona save: %w", err)
	}
	return nil
}

func (s *RedisPersonaStore) Close() error {
	return s.client.Close()
}
