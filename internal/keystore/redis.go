package keystore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisHash = "maga:keystore"

// Redis reads secrets from a single hash: HGET <hash> <appkey>.
type Redis struct {
	client *redis.Client
	hash   string
}

func NewRedis(client *redis.Client, hash string) *Redis {
	if strings.TrimSpace(hash) == "" {
		hash = DefaultRedisHash
	}
	return &Redis{client: client, hash: hash}
}

// NewRedisFromURL parses a redis:// URL and builds a keystore on it.
func NewRedisFromURL(redisURL, hash string) (*Redis, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("keystore: parse redis url: %w", err)
	}
	return NewRedis(redis.NewClient(opt), hash), nil
}

func (r *Redis) Lookup(ctx context.Context, appKey string) (string, error) {
	if appKey == "" {
		return "", ErrNotFound
	}
	secret, err := r.client.HGet(ctx, r.hash, appKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("keystore: redis lookup: %w", err)
	}
	if secret == "" {
		return "", ErrNotFound
	}
	return secret, nil
}

// Put stores a secret; used by provisioning tools, never by the server.
func (r *Redis) Put(ctx context.Context, appKey, secret string) error {
	return r.client.HSet(ctx, r.hash, appKey, secret).Err()
}

// Ping checks that the server answers.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("keystore: redis ping: %w", err)
	}
	return nil
}

// Count returns the number of app keys stored in the hash.
func (r *Redis) Count(ctx context.Context) (int64, error) {
	n, err := r.client.HLen(ctx, r.hash).Result()
	if err != nil {
		return 0, fmt.Errorf("keystore: redis count: %w", err)
	}
	return n, nil
}

// Hash names the hash secrets are read from.
func (r *Redis) Hash() string { return r.hash }

func (r *Redis) Close() error {
	return r.client.Close()
}
