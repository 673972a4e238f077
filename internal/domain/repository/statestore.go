package repository

import (
	"context"
	"time"
)

// StateStore is the C1 unified key-value + hash-map interface. It is
// implemented twice in infrastructure/statestore: a Redis-backed primary and
// an in-process memory fallback, composed by Adapter per the §9 design note
// ("Store = TryRemote(primary) else Memory(fallback)").
type StateStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error

	HGet(ctx context.Context, hash, field string) (string, bool, error)
	HSet(ctx context.Context, hash, field, value string) error
	HDel(ctx context.Context, hash, field string) error
	HGetAll(ctx context.Context, hash string) (map[string]string, error)

	Keys(ctx context.Context, pattern string) ([]string, error)
	Clear(ctx context.Context, pattern string) error
}
