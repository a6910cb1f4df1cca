package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/mmk-docpipe/internal/core"
)

var errEmptyCacheKey = errors.New("cache key is required")

// RedisCacheOptions configures a RedisCacheRepo.
type RedisCacheOptions struct {
	Client redis.UniversalClient
	// Prefix namespaces every key, e.g. "docpipe:".
	Prefix string
}

// RedisCacheRepo is the Redis-backed core.CacheRepository.
type RedisCacheRepo struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCacheRepo creates a RedisCacheRepo.
func NewRedisCacheRepo(opts RedisCacheOptions) *RedisCacheRepo {
	return &RedisCacheRepo{client: opts.Client, prefix: opts.Prefix}
}

func (r *RedisCacheRepo) key(k string) (string, error) {
	if k == "" {
		return "", errEmptyCacheKey
	}
	return r.prefix + k, nil
}

// Set stores value under key. A zero ttl keeps the key until deleted.
func (r *RedisCacheRepo) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	k, err := r.key(key)
	if err != nil {
		return err
	}
	if ttl < 0 {
		return fmt.Errorf("cache ttl must not be negative: %s", ttl)
	}
	if err := r.client.Set(ctx, k, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", k, err)
	}
	return nil
}

// SetNX stores value only when key is absent and reports whether it did.
func (r *RedisCacheRepo) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	k, err := r.key(key)
	if err != nil {
		return false, err
	}
	if ttl < 0 {
		return false, fmt.Errorf("cache ttl must not be negative: %s", ttl)
	}
	ok, err := r.client.SetNX(ctx, k, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", k, err)
	}
	return ok, nil
}

// Get returns nil, nil when key is absent.
func (r *RedisCacheRepo) Get(ctx context.Context, key string) ([]byte, error) {
	k, err := r.key(key)
	if err != nil {
		return nil, err
	}
	b, err := r.client.Get(ctx, k).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("redis get %s: %w", k, err)
	}
	return b, nil
}

// Delete reports whether key existed.
func (r *RedisCacheRepo) Delete(ctx context.Context, key string) (bool, error) {
	k, err := r.key(key)
	if err != nil {
		return false, err
	}
	n, err := r.client.Del(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("redis del %s: %w", k, err)
	}
	return n > 0, nil
}

// Health pings the server.
func (r *RedisCacheRepo) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

var _ core.CacheRepository = (*RedisCacheRepo)(nil)
