package blacklist

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-redis/redis/v8"

	"quotescraper/models"
)

// RedisStore keeps the blacklist in a Redis set; SADD makes Add idempotent
// and atomic across processes.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(addr, key string) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		key:    key,
	}
}

func (s *RedisStore) Symbols(ctx context.Context) ([]string, error) {
	members, err := s.client.SMembers(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read blacklist set %s: %w", s.key, err)
	}
	sort.Strings(members)
	return members, nil
}

func (s *RedisStore) Contains(ctx context.Context, symbol string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.key, models.CanonicalSymbol(symbol)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to query blacklist set %s: %w", s.key, err)
	}
	return ok, nil
}

func (s *RedisStore) Add(ctx context.Context, symbol string) (bool, error) {
	symbol = models.CanonicalSymbol(symbol)
	if symbol == "" {
		return false, fmt.Errorf("empty symbol")
	}
	n, err := s.client.SAdd(ctx, s.key, symbol).Result()
	if err != nil {
		return false, fmt.Errorf("failed to add %s to blacklist set %s: %w", symbol, s.key, err)
	}
	return n > 0, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
