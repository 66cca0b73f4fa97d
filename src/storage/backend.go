package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Load when nothing is stored under the key
var ErrNotFound = errors.New("storage: key not found")

// Backend is durable key-value storage for console state. The console keeps
// exactly one document per key and always rewrites it whole.
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Health(ctx context.Context) error
	Close() error
}
