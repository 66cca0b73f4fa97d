package storage

import (
	"context"
	"fmt"
)

// Options selects and configures a backend
type Options struct {
	Kind          string // file, redis, postgres, memory
	Dir           string
	RedisAddr     string
	RedisPassword string
	Namespace     string
	DatabaseURL   string
}

// Open builds the backend named by opts.Kind
func Open(ctx context.Context, opts Options) (Backend, error) {
	switch opts.Kind {
	case "", "file":
		return NewFileBackend(opts.Dir)
	case "redis":
		rb := NewRedisBackend(opts.RedisAddr, opts.RedisPassword, opts.Namespace)
		if err := rb.Health(ctx); err != nil {
			rb.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return rb, nil
	case "postgres":
		return NewPostgresBackend(ctx, opts.DatabaseURL)
	case "memory":
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown session store %q", opts.Kind)
	}
}
