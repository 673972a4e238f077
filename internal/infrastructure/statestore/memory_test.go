package statestore

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemory_GetSetDel(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, ok, err := m.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get on missing key = (_, %v, %v), want (_, false, nil)", ok, err)
	}

	if err := m.Set(ctx, "k1", "v1", 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	v, ok, _ := m.Get(ctx, "k1")
	if !ok || v != "v1" {
		t.Fatalf("Get(k1) = (%q, %v), want (v1, true)", v, ok)
	}

	if err := m.Del(ctx, "k1"); err != nil {
		t.Fatalf("Del failed: %v", err)
	}
	if _, ok, _ := m.Get(ctx, "k1"); ok {
		t.Fatal("expected key to be gone after Del")
	}
}

func TestMemory_TTLExpiry(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.Set(ctx, "k1", "v1", time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, ok, _ := m.Get(ctx, "k1"); ok {
		t.Fatal("expected expired key to be absent")
	}
}

func TestMemory_ZeroTTLNeverExpires(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.Set(ctx, "k1", "v1", 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, ok, _ := m.Get(ctx, "k1"); !ok {
		t.Fatal("expected key with no TTL to remain")
	}
}

func TestMemory_HashOperations(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.HSet(ctx, "videos", "id-1", "a"); err != nil {
		t.Fatalf("HSet failed: %v", err)
	}
	if err := m.HSet(ctx, "videos", "id-2", "b"); err != nil {
		t.Fatalf("HSet failed: %v", err)
	}

	all, err := m.HGetAll(ctx, "videos")
	if err != nil {
		t.Fatalf("HGetAll failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("HGetAll len = %d, want 2", len(all))
	}

	if err := m.HDel(ctx, "videos", "id-1"); err != nil {
		t.Fatalf("HDel failed: %v", err)
	}
	if _, ok, _ := m.HGet(ctx, "videos", "id-1"); ok {
		t.Error("expected id-1 to be gone after HDel")
	}

	if _, ok, _ := m.HGet(ctx, "missing-hash", "f"); ok {
		t.Error("HGet on missing hash should report not found, not panic")
	}
}

func TestMemory_KeysAndClearGlobPattern(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for _, k := range []string{"scrape:a", "scrape:b", "other:c"} {
		_ = m.Set(ctx, k, "v", 0)
	}

	keys, err := m.Keys(ctx, "scrape:*")
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("Keys(scrape:*) returned %d keys, want 2: %v", len(keys), keys)
	}

	if err := m.Clear(ctx, "scrape:*"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, ok, _ := m.Get(ctx, "scrape:a"); ok {
		t.Error("expected scrape:a to be cleared")
	}
	if _, ok, _ := m.Get(ctx, "other:c"); !ok {
		t.Error("Clear with pattern should not remove non-matching keys")
	}
}

func TestMemory_ConcurrentAccess(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = m.Set(ctx, "shared", "v", 0)
			_, _, _ = m.Get(ctx, "shared")
		}(i)
	}
	wg.Wait()
}
