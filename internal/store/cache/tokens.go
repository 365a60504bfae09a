package cache

import (
	"context"
	"errors"
	"time"

	"stkpay/internal/config"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// TokenStore keeps Daraja access tokens in Redis so every relay replica
// reuses one token until it expires.
type TokenStore struct {
	rdb    *redis.Client
	prefix string
}

func NewTokenStore(rdb *redis.Client) *TokenStore {
	return &TokenStore{rdb: rdb, prefix: "stkpay:"}
}

// MustOpen connects to Redis and pings it, exiting on failure.
func MustOpen(ctx context.Context, cfg config.RedisCfg) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Str("addr", cfg.Addr).Msg("redis ping fail")
	}
	return rdb
}

func (s *TokenStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *TokenStore) Set(ctx context.Context, key, token string, ttl time.Duration) error {
	return s.rdb.Set(ctx, s.prefix+key, token, ttl).Err()
}
