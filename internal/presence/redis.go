package presence

import (
	"context"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the online set in a shared Redis set so several server
// instances agree on the count.
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

func NewRedisStore(client redis.UniversalClient, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

// Dial parses url, pings the server and returns a store on it.
func Dial(ctx context.Context, url, key string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisStore(client, key), nil
}

func (s *RedisStore) Add(ctx context.Context, identity string) error {
	if err := s.client.SAdd(ctx, s.key, identity).Err(); err != nil {
		return fmt.Errorf("presence add: %w", err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, identity string) error {
	if err := s.client.SRem(ctx, s.key, identity).Err(); err != nil {
		return fmt.Errorf("presence remove: %w", err)
	}
	return nil
}

func (s *RedisStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.SCard(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("presence count: %w", err)
	}
	return int(n), nil
}

func (s *RedisStore) Members(ctx context.Context) ([]string, error) {
	members, err := s.client.SMembers(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("presence members: %w", err)
	}
	sort.Strings(members)
	return members, nil
}

func (s *RedisStore) IsOnline(ctx context.Context, identity string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.key, identity).Result()
	if err != nil {
		return false, fmt.Errorf("presence lookup: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
