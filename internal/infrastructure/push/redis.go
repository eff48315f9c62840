package push

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"aimon/internal/core/domain"
	"aimon/internal/core/ports"
)

// RedisTokenStore keeps each user's push tokens in a set, which gives the
// required array-union semantics for free.
type RedisTokenStore struct {
	client *redis.Client
	prefix string
}

func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{
		client: client,
		prefix: "aimon:push-tokens:",
	}
}

var _ ports.TokenStore = (*RedisTokenStore)(nil)

func (s *RedisTokenStore) key(userID domain.UserID) string {
	return s.prefix + string(userID)
}

func (s *RedisTokenStore) SaveToken(ctx context.Context, userID domain.UserID, token string) error {
	if err := s.client.SAdd(ctx, s.key(userID), token).Err(); err != nil {
		return fmt.Errorf("failed to save push token: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) Tokens(ctx context.Context, userID domain.UserID) ([]string, error) {
	tokens, err := s.client.SMembers(ctx, s.key(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list push tokens: %w", err)
	}
	return tokens, nil
}
