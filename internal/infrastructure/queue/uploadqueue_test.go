package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kestrelhq/scrapegate/internal/domain/model"
)

func collectLaunches(mu *sync.Mutex, launched *[]string) Launcher {
	return func(ctx context.Context, item model.QueueItem) {
		mu.Lock()
		*launched = append(*launched, item.VideoID)
		mu.Unlock()
	}
}

// drain waits out admitDebounce so a just-scheduled admission pass has run.
func drain() { time.Sleep(10 * admitDebounce) }

func TestQueue_AdmitsUpToMaxConcurrent(t *testing.T) {
	var mu sync.Mutex
	var launched []string
	q := New(2, collectLaunches(&mu, &launched))

	q.AddMany(context.Background(), []string{"v1", "v2", "v3"}, 0)
	drain()

	mu.Lock()
	defer mu.Unlock()
	if len(launched) != 2 {
		t.Fatalf("expected exactly 2 launches under maxConcurrent=2, got %d (%v)", len(launched), launched)
	}
}

// TestQueue_HigherPriorityAdmittedFirst exercises the literal S8 sequence:
// three sequential Add calls, no pause/resume, under maxConcurrent=1.
// Priority order (high, mid, low) must win over arrival order.
func TestQueue_HigherPriorityAdmittedFirst(t *testing.T) {
	var mu sync.Mutex
	var launched []string
	q := New(1, collectLaunches(&mu, &launched))

	q.Add(context.Background(), "low", 0, nil)
	q.Add(context.Background(), "high", 10, nil)
	q.Add(context.Background(), "mid", 5, nil)
	drain()

	mu.Lock()
	defer mu.Unlock()
	if len(launched) != 1 || launched[0] != "high" {
		t.Fatalf("expected high-priority item admitted first, got %v", launched)
	}
}

func TestQueue_FIFOTieBreakOnEqualPriority(t *testing.T) {
	var mu sync.Mutex
	var launched []string
	q := New(1, collectLaunches(&mu, &launched))

	q.PauseAll()
	q.Add(context.Background(), "first", 5, nil)
	q.Add(context.Background(), "second", 5, nil)
	q.ResumeAll(context.Background())
	drain()

	mu.Lock()
	defer mu.Unlock()
	if len(launched) != 1 || launched[0] != "first" {
		t.Fatalf("expected first-added item to win the tie, got %v", launched)
	}
}

func TestQueue_AddDuplicatePromotesPriorityWithoutDuplicateEntry(t *testing.T) {
	q := New(5, nil)
	q.PauseAll()

	q.Add(context.Background(), "v1", 1, nil)
	q.Add(context.Background(), "v1", 9, nil)

	if got := len(q.items); got != 1 {
		t.Fatalf("expected a single tracked item, got %d", got)
	}
	if q.items["v1"].Priority != 9 {
		t.Fatalf("expected priority promoted to 9, got %d", q.items["v1"].Priority)
	}
}

func TestQueue_PauseAllBlocksAdmissionUntilResumeAll(t *testing.T) {
	var mu sync.Mutex
	var launched []string
	q := New(5, collectLaunches(&mu, &launched))

	q.PauseAll()
	q.Add(context.Background(), "v1", 0, nil)
	drain()

	mu.Lock()
	n := len(launched)
	mu.Unlock()
	if n != 0 {
		t.Fatalf("expected no admission while paused, got %v", launched)
	}

	q.ResumeAll(context.Background())
	drain()

	mu.Lock()
	defer mu.Unlock()
	if len(launched) != 1 || launched[0] != "v1" {
		t.Fatalf("expected admission after ResumeAll, got %v", launched)
	}
}

func TestQueue_CancelFromPending(t *testing.T) {
	q := New(5, nil)
	q.PauseAll()
	q.Add(context.Background(), "v1", 0, nil)

	if err := q.Cancel("v1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.items["v1"].State != model.QueueCancelled {
		t.Fatalf("expected cancelled state, got %v", q.items["v1"].State)
	}
	if q.indexOfPending("v1") != -1 {
		t.Fatal("expected item removed from the pending heap")
	}
}

func TestQueue_CancelFromActive(t *testing.T) {
	q := New(5, func(ctx context.Context, item model.QueueItem) {})
	q.Add(context.Background(), "v1", 0, nil)
	drain()

	if err := q.Cancel("v1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, stillActive := q.active["v1"]; stillActive {
		t.Fatal("expected item removed from active set")
	}
}

func TestQueue_CancelTerminalItemFails(t *testing.T) {
	q := New(5, nil)
	q.PauseAll()
	q.Add(context.Background(), "v1", 0, nil)
	_ = q.Cancel("v1")

	if err := q.Cancel("v1"); err != ErrNotCancellable {
		t.Fatalf("expected ErrNotCancellable, got %v", err)
	}
}

func TestQueue_UpdateProgressMovesTerminalItemToHistory(t *testing.T) {
	q := New(5, func(ctx context.Context, item model.QueueItem) {})
	q.Add(context.Background(), "v1", 0, nil)
	drain()

	if err := q.UpdateProgress(context.Background(), "v1", 100, 0, 0, model.QueueCompleted, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, stillActive := q.active["v1"]; stillActive {
		t.Fatal("expected item removed from active on completion")
	}
	if len(q.history) != 1 || q.history[0] != "v1" {
		t.Fatalf("expected item recorded in history, got %v", q.history)
	}
}

func TestQueue_HistoryEvictsOldestBeyondCap(t *testing.T) {
	q := New(1, nil)
	q.historyCap = 2

	for i := 0; i < 3; i++ {
		id := string(rune('a' + i))
		q.items[id] = &model.QueueItem{VideoID: id, State: model.QueueActive}
		q.active[id] = true
		q.pushHistory(id)
		delete(q.active, id)
	}

	if len(q.history) != 2 {
		t.Fatalf("expected history capped at 2, got %d (%v)", len(q.history), q.history)
	}
	if _, ok := q.items["a"]; ok {
		t.Fatal("expected oldest evicted item's full record purged from items")
	}
	if q.history[0] != "b" || q.history[1] != "c" {
		t.Fatalf("expected [b c], got %v", q.history)
	}
}

func TestQueue_GetStatusPaginatesCompleted(t *testing.T) {
	q := New(1, nil)
	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		q.items[id] = &model.QueueItem{VideoID: id, State: model.QueueCompleted}
		q.pushHistory(id)
	}

	page := q.GetStatus(1, 2)
	if len(page.Completed) != 2 {
		t.Fatalf("expected 2 completed items in page, got %d", len(page.Completed))
	}
	if page.Completed[0].VideoID != "b" || page.Completed[1].VideoID != "c" {
		t.Fatalf("unexpected page contents: %+v", page.Completed)
	}
}

func TestQueue_ResumeReturnsPausedItemToAdmission(t *testing.T) {
	var mu sync.Mutex
	var launched []string
	q := New(1, collectLaunches(&mu, &launched))

	// v1 fills the single active slot; v2 stays pending so it can be paused.
	q.Add(context.Background(), "v1", 0, nil)
	q.Add(context.Background(), "v2", 0, nil)
	drain()
	if err := q.Pause("v2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	launched = nil
	mu.Unlock()

	// Freeing the active slot does not admit v2: it is paused, not pending.
	if err := q.UpdateProgress(context.Background(), "v1", 100, 0, 0, model.QueueCompleted, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	drain()

	mu.Lock()
	launched = nil
	mu.Unlock()

	if err := q.Resume(context.Background(), "v2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	drain()

	mu.Lock()
	defer mu.Unlock()
	if len(launched) != 1 || launched[0] != "v2" {
		t.Fatalf("expected v2 admitted after resume, got %v", launched)
	}
}
