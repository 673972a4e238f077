package browser

import (
	"testing"
	"time"

	"github.com/kestrelhq/scrapegate/internal/config"
)

func TestPool_StatsReflectsSlotMembership(t *testing.T) {
	p := &Pool{cfg: config.BrowserConfig{MaxConcurrency: 3, MaxPagesPerBrowser: 30, TTL: 30 * time.Minute}}
	s1 := &browserSlot{id: 1, createdAt: time.Now()}
	s1.pageCount.Store(2)
	s2 := &browserSlot{id: 2, createdAt: time.Now()}
	s2.pageCount.Store(5)
	p.slots = []*browserSlot{s1, s2}

	stats := p.Stats()
	if stats.BrowserCount != 2 {
		t.Fatalf("expected 2 browsers, got %d", stats.BrowserCount)
	}
	if stats.PageCount != 7 {
		t.Fatalf("expected 7 pages total, got %d", stats.PageCount)
	}
}

func TestPool_PickOrSpawnSlotSkipsSlotsPastLifetimePageBudget(t *testing.T) {
	p := &Pool{cfg: config.BrowserConfig{MaxConcurrency: 1, MaxPagesPerBrowser: 5, TTL: 30 * time.Minute}}
	s := &browserSlot{id: 1, createdAt: time.Now()}
	s.pagesServed.Store(5) // hit the budget; pageCount may be 0 between leases
	p.slots = []*browserSlot{s}

	if _, err := p.pickOrSpawnSlot(nil); err != ErrPoolFull {
		t.Fatalf("expected ErrPoolFull once pagesServed reaches the budget and MaxConcurrency is exhausted, got %v", err)
	}
}

func TestPool_SweepOnceReapsIdleSlotPastPageBudgetEvenUnderTTL(t *testing.T) {
	p := &Pool{cfg: config.BrowserConfig{MaxPagesPerBrowser: 5, TTL: 30 * time.Minute}}
	s := &browserSlot{id: 1, createdAt: time.Now(), rootCancel: func() {}, allocCancel: func() {}}
	s.pagesServed.Store(5)
	p.slots = []*browserSlot{s}

	p.sweepOnce()

	if len(p.slots) != 0 {
		t.Fatalf("expected the page-budget-exhausted idle slot to be reaped, got %d slots", len(p.slots))
	}
}

func TestPool_EvictSlotRemovesOnlyMatchingID(t *testing.T) {
	p := &Pool{}
	s1 := &browserSlot{id: 1, rootCancel: func() {}, allocCancel: func() {}}
	s2 := &browserSlot{id: 2, rootCancel: func() {}, allocCancel: func() {}}
	p.slots = []*browserSlot{s1, s2}

	p.evictSlot(1, "test")

	if len(p.slots) != 1 {
		t.Fatalf("expected 1 remaining slot, got %d", len(p.slots))
	}
	if p.slots[0].id != 2 {
		t.Fatalf("expected slot 2 to remain, got id %d", p.slots[0].id)
	}
}

func TestPool_ProcessInfoReportsAgeAndPageCount(t *testing.T) {
	p := &Pool{}
	s := &browserSlot{id: 7, createdAt: time.Now().Add(-10 * time.Minute)}
	s.pageCount.Store(3)
	s.pid.Store(12345)
	p.slots = []*browserSlot{s}

	info := p.ProcessInfo()
	if len(info) != 1 {
		t.Fatalf("expected 1 process, got %d", len(info))
	}
	if info[0].PID != 12345 || info[0].PageCount != 3 {
		t.Fatalf("unexpected process info: %+v", info[0])
	}
	if info[0].Age < 9*time.Minute {
		t.Fatalf("expected age >= ~10m, got %v", info[0].Age)
	}
}
