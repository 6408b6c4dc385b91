package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key is not found
var ErrNotFound = errors.New("not found")

// KeyValueStore is the persistent string-keyed storage backing the
// response cache blob and the small auxiliary maps (last-visit times,
// favorite projects). Implementations: Redis and a local JSON file.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}
