package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores documents as plain string values under a namespace
type RedisBackend struct {
	client    redis.UniversalClient
	namespace string
}

// NewRedisBackend connects to a single redis node
func NewRedisBackend(addr, password, namespace string) *RedisBackend {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	return NewRedisBackendFromClient(client, namespace)
}

// NewRedisBackendFromClient wraps an existing client
func NewRedisBackendFromClient(client redis.UniversalClient, namespace string) *RedisBackend {
	if namespace == "" {
		namespace = "console"
	}
	return &RedisBackend{client: client, namespace: namespace}
}

func (r *RedisBackend) key(key string) string {
	return r.namespace + ":" + key
}

func (r *RedisBackend) Load(ctx context.Context, key string) ([]byte, error) {
	v, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load %s: %w", key, err)
	}
	return v, nil
}

func (r *RedisBackend) Save(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (r *RedisBackend) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return r.client.Ping(ctx).Err()
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}

var _ Backend = (*RedisBackend)(nil)
