package storage

import "context"

// Storage is the key-value primitive the in-memory repositories are built on.
// List pages over the keys that start with prefix, in key order.
type Storage interface {
	Create(ctx context.Context, key string, value any) error
	Get(ctx context.Context, key string) (any, error)
	Update(ctx context.Context, key string, value any) error
	List(ctx context.Context, prefix string, offset, limit uint64) ([]any, uint64, error)
}
