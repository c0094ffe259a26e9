package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/nyp-fyp/chatbot-go/internal/apperrors"
	"github.com/nyp-fyp/chatbot-go/internal/config"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// TokenStore maps opaque login tokens to usernames with a TTL
type TokenStore interface {
	Put(ctx context.Context, token, username string) error
	Lookup(ctx context.Context, token string) (string, error)
	Delete(ctx context.Context, token string) error
}

// NewTokenStore creates the configured token store backend
func NewTokenStore(cfg *config.TokensConfig, ttl time.Duration, logger *logrus.Logger) (TokenStore, error) {
	switch cfg.Type {
	case "redis":
		return newRedisTokenStore(&cfg.Redis, ttl)
	case "memory":
		return &memoryTokenStore{tokens: cache.New(ttl, ttl*2)}, nil
	default:
		return nil, fmt.Errorf("unsupported token store type: %s", cfg.Type)
	}
}

// memoryTokenStore keeps tokens in-process; a restart logs everyone out
type memoryTokenStore struct {
	tokens *cache.Cache
}

func (m *memoryTokenStore) Put(ctx context.Context, token, username string) error {
	m.tokens.SetDefault(token, username)
	return nil
}

func (m *memoryTokenStore) Lookup(ctx context.Context, token string) (string, error) {
	if val, found := m.tokens.Get(token); found {
		return val.(string), nil
	}
	return "", apperrors.ErrNotFound
}

func (m *memoryTokenStore) Delete(ctx context.Context, token string) error {
	m.tokens.Delete(token)
	return nil
}

// redisTokenStore shares tokens across processes
type redisTokenStore struct {
	client *redis.Client
	ttl    time.Duration
}

func newRedisTokenStore(cfg *config.RedisConfig, ttl time.Duration) (*redisTokenStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &redisTokenStore{client: client, ttl: ttl}, nil
}

func (r *redisTokenStore) Put(ctx context.Context, token, username string) error {
	return r.client.Set(ctx, "token:"+token, username, r.ttl).Err()
}

func (r *redisTokenStore) Lookup(ctx context.Context, token string) (string, error) {
	val, err := r.client.Get(ctx, "token:"+token).Result()
	if err == redis.Nil {
		return "", apperrors.ErrNotFound
	}
	if err != nil {
		return "", apperrors.NewStorageError("token lookup", err)
	}
	return val, nil
}

func (r *redisTokenStore) Delete(ctx context.Context, token string) error {
	return r.client.Del(ctx, "token:"+token).Err()
}
