package statestore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return client, cleanup
}

func TestRedis_GetSetDel(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	store := NewRedis(client, "scrapegate:")
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get on missing key = (_, %v, %v), want (_, false, nil)", ok, err)
	}

	if err := store.Set(ctx, "k1", "v1", time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	v, ok, err := store.Get(ctx, "k1")
	if err != nil || !ok || v != "v1" {
		t.Fatalf("Get(k1) = (%q, %v, %v), want (v1, true, nil)", v, ok, err)
	}

	if err := store.Del(ctx, "k1"); err != nil {
		t.Fatalf("Del failed: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "k1"); ok {
		t.Fatal("expected key to be gone after Del")
	}
}

func TestRedis_KeyPrefixIsolation(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	store := NewRedis(client, "scrapegate:")
	ctx := context.Background()

	if err := store.Set(ctx, "k1", "v1", 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if v := client.Get(ctx, "scrapegate:k1").Val(); v != "v1" {
		t.Errorf("raw redis key = %q, want v1 stored under prefixed key", v)
	}
	if client.Exists(ctx, "k1").Val() != 0 {
		t.Error("unprefixed key should not exist")
	}
}

func TestRedis_HashOperations(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	store := NewRedis(client, "scrapegate:")
	ctx := context.Background()

	if err := store.HSet(ctx, "videos", "id-1", `{"status":"pending"}`); err != nil {
		t.Fatalf("HSet failed: %v", err)
	}
	if err := store.HSet(ctx, "videos", "id-2", `{"status":"synced"}`); err != nil {
		t.Fatalf("HSet failed: %v", err)
	}

	v, ok, err := store.HGet(ctx, "videos", "id-1")
	if err != nil || !ok || v != `{"status":"pending"}` {
		t.Fatalf("HGet = (%q, %v, %v), want pending record", v, ok, err)
	}

	all, err := store.HGetAll(ctx, "videos")
	if err != nil {
		t.Fatalf("HGetAll failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("HGetAll len = %d, want 2", len(all))
	}

	if err := store.HDel(ctx, "videos", "id-1"); err != nil {
		t.Fatalf("HDel failed: %v", err)
	}
	if _, ok, _ := store.HGet(ctx, "videos", "id-1"); ok {
		t.Error("expected id-1 to be gone after HDel")
	}
}

func TestRedis_KeysAndClear(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	store := NewRedis(client, "scrapegate:")
	ctx := context.Background()

	for _, k := range []string{"scrape:a", "scrape:b", "other:c"} {
		if err := store.Set(ctx, k, "v", 0); err != nil {
			t.Fatalf("Set(%s) failed: %v", k, err)
		}
	}

	keys, err := store.Keys(ctx, "scrape:*")
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("Keys(scrape:*) returned %d keys, want 2: %v", len(keys), keys)
	}

	if err := store.Clear(ctx, "scrape:*"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "scrape:a"); ok {
		t.Error("expected scrape:a to be cleared")
	}
	if _, ok, _ := store.Get(ctx, "other:c"); !ok {
		t.Error("Clear with pattern should not remove non-matching keys")
	}
}

func TestRedis_Ping(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	store := NewRedis(client, "scrapegate:")
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}
