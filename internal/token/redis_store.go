package token

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/coeus-solutions/api-podcast/internal/model"
)

const (
	fieldTotal = "total_tokens"
	fieldUsed  = "used_tokens"
)

// RedisStore keeps token accounts in Redis hashes under account:{id}.
// Increments use HINCRBY so concurrent writers never lose updates.
type RedisStore struct {
	redis *redis.Client
}

func NewRedisStore(redisClient *redis.Client) *RedisStore {
	return &RedisStore{redis: redisClient}
}

func accountKey(id string) string {
	return fmt.Sprintf("account:%s", id)
}

func (s *RedisStore) Get(ctx context.Context, id string) (*model.TokenAccount, error) {
	fields, err := s.redis.HGetAll(ctx, accountKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, ErrAccountNotFound
	}

	acct := &model.TokenAccount{ID: id}
	if v, ok := fields[fieldTotal]; ok {
		if acct.TotalTokens, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("account %s: bad %s: %w", id, fieldTotal, err)
		}
	}
	if v, ok := fields[fieldUsed]; ok {
		if acct.UsedTokens, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("account %s: bad %s: %w", id, fieldUsed, err)
		}
	}
	return acct, nil
}

func (s *RedisStore) AddUsage(ctx context.Context, id string, amount int64) error {
	if err := s.redis.HIncrBy(ctx, accountKey(id), fieldUsed, amount).Err(); err != nil {
		return fmt.Errorf("debit account %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) Grant(ctx context.Context, id string, amount int64) error {
	if err := s.redis.HIncrBy(ctx, accountKey(id), fieldTotal, amount).Err(); err != nil {
		return fmt.Errorf("grant account %s: %w", id, err)
	}
	return nil
}
