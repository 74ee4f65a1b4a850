package consumed

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quorumgate/pkg/platform/sentinel"
)

const consumedKeyPrefix = "cts:hash:"

// RedisSet is the Redis-backed consumed-token set for deployments where
// several gateway instances share one token space. SETNX makes reserve
// atomic: exactly one caller wins a given hash.
type RedisSet struct {
	client *redis.Client
}

func NewRedisSet(client *redis.Client) *RedisSet {
	return &RedisSet{client: client}
}

func (s *RedisSet) Reserve(ctx context.Context, tokenHash string, ttl time.Duration) error {
	ok, err := s.client.SetNX(ctx, consumedKeyPrefix+tokenHash, "1", ttl).Result()
	if err != nil {
		return fmt.Errorf("reserve token: %w", err)
	}
	if !ok {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}
