package session

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-redis/redis/v8"
)

const keyPrefix = "kitchen:session:"

var _ Store = (*RedisStore)(nil)

// RedisStore keeps session IDs as expiring Redis keys.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore returns a RedisStore that uses client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Put(ctx context.Context, id string, userID int64, ttl time.Duration) error {
	if err := s.client.Set(ctx, keyPrefix+id, userID, ttl).Err(); err != nil {
		return fmt.Errorf("setting session %q: %w", id, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (int64, error) {
	v, err := s.client.Get(ctx, keyPrefix+id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrInvalid
		}
		return 0, fmt.Errorf("getting session %q: %w", id, err)
	}
	userID, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, ErrInvalid
	}
	return userID, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, keyPrefix+id).Err(); err != nil {
		return fmt.Errorf("deleting session %q: %w", id, err)
	}
	return nil
}
