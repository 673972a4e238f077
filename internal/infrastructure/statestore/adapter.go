package statestore

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// remoteBackend is the subset of Redis's surface Adapter depends on, plus a
// Ping health check. Kept as an interface for test doubles.
type remoteBackend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	HGet(ctx context.Context, hash, field string) (string, bool, error)
	HSet(ctx context.Context, hash, field, value string) error
	HDel(ctx context.Context, hash, field string) error
	HGetAll(ctx context.Context, hash string) (map[string]string, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
	Clear(ctx context.Context, pattern string) error
	Ping(ctx context.Context) error
}

// localBackend is the in-process fallback surface (Memory implements it).
type localBackend interface {
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

// Adapter composes a remote primary with an in-process fallback, implementing
// repository.StateStore. Writes try primary first and fall back to memory
// for that call only (no retroactive replication, §4.1); reads prefer
// primary and fall back silently on error.
type Adapter struct {
	primary  remoteBackend
	fallback localBackend
	logger   *slog.Logger

	available atomic.Bool
}

// NewAdapter builds an Adapter. If primary is nil, the adapter runs purely
// on fallback (e.g. REDIS_ENABLED=false).
func NewAdapter(primary remoteBackend, fallback localBackend, logger *slog.Logger) *Adapter {
	a := &Adapter{primary: primary, fallback: fallback, logger: logger}
	a.available.Store(primary != nil)
	return a
}

// RemoteAvailable reports whether the last known state of the primary
// backend was reachable.
func (a *Adapter) RemoteAvailable() bool {
	return a.available.Load()
}

// WatchAvailability runs a background ping loop against the primary,
// updating RemoteAvailable until ctx is cancelled. Grounded on the teacher's
// postgres.Client.Ping health-check pattern.
func (a *Adapter) WatchAvailability(ctx context.Context, interval time.Duration) {
	if a.primary == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := a.primary.Ping(ctx)
			wasAvailable := a.available.Swap(err == nil)
			if err != nil && wasAvailable {
				a.logger.Warn("state store primary unreachable, falling back to memory", "error", err)
			} else if err == nil && !wasAvailable {
				a.logger.Info("state store primary reachable again")
			}
		}
	}
}

func (a *Adapter) Get(ctx context.Context, key string) (string, bool, error) {
	if a.primary != nil {
		v, ok, err := a.primary.Get(ctx, key)
		if err == nil {
			a.available.Store(true)
			return v, ok, nil
		}
		a.noteRemoteError(err)
	}
	return a.fallback.Get(ctx, key)
}

func (a *Adapter) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if a.primary != nil {
		if err := a.primary.Set(ctx, key, value, ttl); err == nil {
			a.available.Store(true)
			return nil
		} else {
			a.noteRemoteError(err)
		}
	}
	return a.fallback.Set(ctx, key, value, ttl)
}

func (a *Adapter) Del(ctx context.Context, key string) error {
	if a.primary != nil {
		if err := a.primary.Del(ctx, key); err == nil {
			a.available.Store(true)
			return nil
		} else {
			a.noteRemoteError(err)
		}
	}
	return a.fallback.Del(ctx, key)
}

func (a *Adapter) HGet(ctx context.Context, hash, field string) (string, bool, error) {
	if a.primary != nil {
		v, ok, err := a.primary.HGet(ctx, hash, field)
		if err == nil {
			a.available.Store(true)
			return v, ok, nil
		}
		a.noteRemoteError(err)
	}
	return a.fallback.HGet(ctx, hash, field)
}

func (a *Adapter) HSet(ctx context.Context, hash, field, value string) error {
	if a.primary != nil {
		if err := a.primary.HSet(ctx, hash, field, value); err == nil {
			a.available.Store(true)
			return nil
		} else {
			a.noteRemoteError(err)
		}
	}
	return a.fallback.HSet(ctx, hash, field, value)
}

func (a *Adapter) HDel(ctx context.Context, hash, field string) error {
	if a.primary != nil {
		if err := a.primary.HDel(ctx, hash, field); err == nil {
			a.available.Store(true)
			return nil
		} else {
			a.noteRemoteError(err)
		}
	}
	return a.fallback.HDel(ctx, hash, field)
}

func (a *Adapter) HGetAll(ctx context.Context, hash string) (map[string]string, error) {
	if a.primary != nil {
		v, err := a.primary.HGetAll(ctx, hash)
		if err == nil {
			a.available.Store(true)
			return v, nil
		}
		a.noteRemoteError(err)
	}
	return a.fallback.HGetAll(ctx, hash)
}

func (a *Adapter) Keys(ctx context.Context, pattern string) ([]string, error) {
	if a.primary != nil {
		v, err := a.primary.Keys(ctx, pattern)
		if err == nil {
			a.available.Store(true)
			return v, nil
		}
		a.noteRemoteError(err)
	}
	return a.fallback.Keys(ctx, pattern)
}

func (a *Adapter) Clear(ctx context.Context, pattern string) error {
	if a.primary != nil {
		if err := a.primary.Clear(ctx, pattern); err == nil {
			a.available.Store(true)
			return nil
		} else {
			a.noteRemoteError(err)
		}
	}
	return a.fallback.Clear(ctx, pattern)
}

func (a *Adapter) noteRemoteError(err error) {
	a.available.Store(false)
	if a.logger != nil {
		a.logger.Warn("state store primary call failed, falling back to memory", "error", err)
	}
}
