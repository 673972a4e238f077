// Package cache implements the C2 scrape cache: a fingerprint-keyed result
// cache over the C1 state store with at-most-one-in-flight rendering per
// fingerprint, generalizing the teacher's usecase/cached_video_service.go
// cache-aside + singleflight pattern from "one video by ID" to "one render
// per request fingerprint".
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kestrelhq/scrapegate/internal/domain/repository"
	"github.com/kestrelhq/scrapegate/internal/infrastructure/metrics"
)

const entryKeyPrefix = "scrape-cache:"

// Entry is the value stored for a fingerprint.
type Entry struct {
	Body      string    `json:"body"`
	StoredAt  time.Time `json:"stored_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (e Entry) expired() bool {
	return time.Now().After(e.ExpiresAt)
}

// Stats summarizes cache activity (§4.2 stats).
type Stats struct {
	Hits   int64
	Misses int64
	Sets   int64
}

// ScrapeCache implements single-flighted, TTL-bounded scrape result caching.
type ScrapeCache struct {
	store repository.StateStore
	sf    singleflight.Group
	ttl   time.Duration

	hits, misses, sets int64
}

// New creates a ScrapeCache over store with the given default TTL.
func New(store repository.StateStore, ttl time.Duration) *ScrapeCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ScrapeCache{store: store, ttl: ttl}
}

// Get returns the cached body for key, if present and unexpired.
func (c *ScrapeCache) Get(ctx context.Context, key string) (string, bool, error) {
	raw, ok, err := c.store.Get(ctx, entryKeyPrefix+key)
	if err != nil {
		return "", false, err
	}
	if !ok {
		c.misses++
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusMiss, metrics.CacheTypeScrape).Inc()
		return "", false, nil
	}
	var e Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return "", false, fmt.Errorf("decode cache entry: %w", err)
	}
	if e.expired() {
		_ = c.store.Del(ctx, entryKeyPrefix+key)
		c.misses++
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusMiss, metrics.CacheTypeScrape).Inc()
		return "", false, nil
	}
	c.hits++
	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusHit, metrics.CacheTypeScrape).Inc()
	return e.Body, true, nil
}

// Set stores body for key with the given ttl (0 uses the default). Partial
// payloads are never stored — callers must have a complete body in hand.
func (c *ScrapeCache) Set(ctx context.Context, key, body string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	e := Entry{Body: body, StoredAt: time.Now(), ExpiresAt: time.Now().Add(ttl)}
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	c.sets++
	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.CacheStatusSuccess, metrics.CacheTypeScrape).Inc()
	return c.store.Set(ctx, entryKeyPrefix+key, string(raw), ttl)
}

// Delete removes the entry for key.
func (c *ScrapeCache) Delete(ctx context.Context, key string) error {
	return c.store.Del(ctx, entryKeyPrefix+key)
}

// Clear removes every entry whose key matches pattern.
func (c *ScrapeCache) Clear(ctx context.Context, pattern string) error {
	return c.store.Clear(ctx, entryKeyPrefix+pattern)
}

// Stats returns cumulative cache counters for this process.
func (c *ScrapeCache) Stats() Stats {
	return Stats{Hits: c.hits, Misses: c.misses, Sets: c.sets}
}

// GetOrRender enforces §4.2's at-most-one-in-flight-render contract: if the
// entry is cached it is returned immediately (cached=true); otherwise
// concurrent callers for the same key block on a single in-flight render
// (produce) and all observe the same bytes, or the same error if it fails.
// On failure, nothing is stored.
func (c *ScrapeCache) GetOrRender(ctx context.Context, key string, ttl time.Duration, produce func(ctx context.Context) (string, error)) (body string, cached bool, err error) {
	if body, ok, gerr := c.Get(ctx, key); gerr == nil && ok {
		return body, true, nil
	}

	v, err, shared := c.sf.Do(key, func() (any, error) {
		return produce(ctx)
	})
	if shared {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightShared).Inc()
	} else {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightInitiated).Inc()
	}
	if err != nil {
		return "", false, err
	}
	body = v.(string)

	if serr := c.Set(ctx, key, body, ttl); serr != nil {
		// Cache write failure must not fail the render that already succeeded.
		return body, false, nil
	}
	return body, false, nil
}

// sweepPattern matches every scrape-cache entry, for use by a periodic lazy
// eviction sweep (§4.2 "evictions are lazy (periodic sweep)").
var sweepPattern = regexp.MustCompile(`^` + regexp.QuoteMeta(entryKeyPrefix))

// RunSweep scans all entries and deletes expired ones. cmd/gateway calls it
// every 5 minutes; the admin cache sweep endpoint also calls it on demand.
func (c *ScrapeCache) RunSweep(ctx context.Context) (swept int, err error) {
	keys, err := entryKeysFn(ctx, c.store)
	if err != nil {
		return 0, err
	}
	for _, k := range keys {
		if !sweepPattern.MatchString(k) {
			continue
		}
		raw, ok, err := c.store.Get(ctx, k)
		if err != nil || !ok {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		if e.expired() {
			_ = c.store.Del(ctx, k)
			swept++
		}
	}
	return swept, nil
}

// entryKeysFn is overridable in tests.
var entryKeysFn = func(ctx context.Context, store repository.StateStore) ([]string, error) {
	return store.Keys(ctx, entryKeyPrefix+"*")
}
