// Package queue implements the C7 upload queue: an in-process priority
// queue over videoId with bounded concurrency, pause/resume/cancel, and a
// bounded completed/failed/cancelled history. Membership shape (one mutex
// over the pending/active/paused/history structures, admission computed
// under the lock then launched outside it) is grounded on the teacher's
// browser-pool-adjacent locking discipline in other_examples' flaresolverr
// pool (lock ordering comment, admission outside slow I/O).
package queue

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kestrelhq/scrapegate/internal/domain/model"
	"github.com/kestrelhq/scrapegate/internal/infrastructure/metrics"
)

const defaultHistoryLimit = 50

// admitDebounce is how long Queue waits after the first scheduleAdmit call
// in a burst before actually running admission, so a tight sequence of Add
// calls (no pause/resume needed) is fully enqueued and evaluated by
// priority before any single item is launched (§4.7, seed scenario S8).
const admitDebounce = 2 * time.Millisecond

var (
	// ErrUnknownItem is returned by operations referencing a videoId the
	// queue has no record of.
	ErrUnknownItem = fmt.Errorf("upload queue: unknown item")
	// ErrNotCancellable is returned by Cancel on a terminal item.
	ErrNotCancellable = fmt.Errorf("upload queue: item not cancellable")
)

// Launcher runs one admitted item's pipeline out-of-line (in this gateway,
// by publishing an UploadTask onto the C7→C8 transport). The queue does
// not itself perform the download/upload work.
type Launcher func(ctx context.Context, item model.QueueItem)

// heapEntry is one pending item as tracked by container/heap; higher
// Priority wins, ties broken by lower sequence (FIFO, §4.7 step 5 analog).
type heapEntry struct {
	videoID  string
	priority int
	sequence uint64
}

type priorityHeap []*heapEntry

func (h priorityHeap) Len() int { return len(h) }
func (h priorityHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].sequence < h[j].sequence
}
func (h priorityHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *priorityHeap) Push(x any)   { *h = append(*h, x.(*heapEntry)) }
func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Queue implements §4.7. The zero value is not usable; use New.
type Queue struct {
	mu sync.Mutex

	pending priorityHeap
	items   map[string]*model.QueueItem // every non-purged item, any state
	active  map[string]bool

	history    []string // completed/failed/cancelled videoIds, oldest first
	historyCap int
	maxActive  int
	paused     bool
	nextSeq    uint64

	admitTimer *time.Timer // pending debounced admission pass, nil if none scheduled

	launch Launcher
}

// New creates a Queue admitting up to maxConcurrent items at a time.
func New(maxConcurrent int, launch Launcher) *Queue {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	return &Queue{
		items:      make(map[string]*model.QueueItem),
		active:     make(map[string]bool),
		historyCap: defaultHistoryLimit,
		maxActive:  maxConcurrent,
		launch:     launch,
	}
}

// Add enqueues videoID at priority, or promotes an existing pending item's
// priority if the new one is higher (§4.7 "adding a duplicate returns the
// existing position, promoting priority if the new one is higher").
// Admission is debounced (scheduleAdmit), not run inline, so a burst of
// sequential Add calls is ordered by priority rather than arrival.
func (q *Queue) Add(ctx context.Context, videoID string, priority int, display map[string]string) (model.QueueItem, error) {
	q.mu.Lock()
	if existing, ok := q.items[videoID]; ok && !existing.IsTerminal() {
		if existing.State == model.QueuePending && priority > existing.Priority {
			existing.Priority = priority
			heap.Fix(&q.pending, q.indexOfPending(videoID))
		}
		item := *existing
		q.mu.Unlock()
		return item, nil
	}

	q.nextSeq++
	item := &model.QueueItem{
		VideoID:       videoID,
		Priority:      priority,
		State:         model.QueuePending,
		AddedAt:       time.Now(),
		DisplayFields: display,
	}
	item.SetSequence(q.nextSeq)
	q.items[videoID] = item
	heap.Push(&q.pending, &heapEntry{videoID: videoID, priority: priority, sequence: q.nextSeq})
	snapshot := *item
	q.mu.Unlock()

	q.scheduleAdmit()
	return snapshot, nil
}

// AddMany enqueues several items. Each Add call's admission is debounced, so
// the whole batch is evaluated together rather than one at a time.
func (q *Queue) AddMany(ctx context.Context, videoIDs []string, priority int) []model.QueueItem {
	out := make([]model.QueueItem, 0, len(videoIDs))
	for _, id := range videoIDs {
		item, _ := q.Add(ctx, id, priority, nil)
		out = append(out, item)
	}
	return out
}

// indexOfPending finds videoID's position in the pending heap. Must be
// called with mu held. O(n), acceptable at this queue's scale (admin tool,
// not a high-throughput broker).
func (q *Queue) indexOfPending(videoID string) int {
	for i, e := range q.pending {
		if e.videoID == videoID {
			return i
		}
	}
	return -1
}

// Pause moves a pending item to paused, excluding it from admission until
// Resume.
func (q *Queue) Pause(videoID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.items[videoID]
	if !ok || item.State != model.QueuePending {
		return ErrUnknownItem
	}
	if idx := q.indexOfPending(videoID); idx >= 0 {
		heap.Remove(&q.pending, idx)
	}
	item.State = model.QueuePaused
	return nil
}

// Resume returns a paused item to pending, eligible for admission again.
func (q *Queue) Resume(ctx context.Context, videoID string) error {
	q.mu.Lock()
	item, ok := q.items[videoID]
	if !ok || item.State != model.QueuePaused {
		q.mu.Unlock()
		return ErrUnknownItem
	}
	item.State = model.QueuePending
	heap.Push(&q.pending, &heapEntry{videoID: videoID, priority: item.Priority, sequence: item.Sequence()})
	q.mu.Unlock()

	q.scheduleAdmit()
	return nil
}

// Cancel transitions a pending/paused/active item to cancelled. Active
// items are marked cancelled but the in-flight worker call is not
// interrupted; it is expected to notice on its next progress report.
func (q *Queue) Cancel(videoID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.items[videoID]
	if !ok || item.IsTerminal() {
		return ErrNotCancellable
	}
	if idx := q.indexOfPending(videoID); idx >= 0 {
		heap.Remove(&q.pending, idx)
	}
	delete(q.active, videoID)
	now := time.Now()
	item.State = model.QueueCancelled
	item.CompletedAt = &now
	q.pushHistory(videoID)
	return nil
}

// SetPriority updates a pending item's priority, re-heapifying.
func (q *Queue) SetPriority(videoID string, priority int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.items[videoID]
	if !ok || item.State != model.QueuePending {
		return ErrUnknownItem
	}
	item.Priority = priority
	if idx := q.indexOfPending(videoID); idx >= 0 {
		q.pending[idx].priority = priority
		heap.Fix(&q.pending, idx)
	}
	return nil
}

// PauseAll sets the global pause flag: admission stops, in-flight work
// continues.
func (q *Queue) PauseAll() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paused = true
}

// ResumeAll clears the global pause flag and schedules admission to refill
// active slots.
func (q *Queue) ResumeAll(ctx context.Context) {
	q.mu.Lock()
	q.paused = false
	q.mu.Unlock()
	q.scheduleAdmit()
}

// UpdateProgress records progress/speed/eta for an active item, and on
// terminal states (completed/failed) moves it out of active into history.
func (q *Queue) UpdateProgress(ctx context.Context, videoID string, progress, speed, eta float64, state model.QueueState, errMsg string) error {
	q.mu.Lock()
	item, ok := q.items[videoID]
	if !ok {
		q.mu.Unlock()
		return ErrUnknownItem
	}
	item.Progress = progress
	item.Speed = speed
	item.ETA = eta

	terminal := state == model.QueueCompleted || state == model.QueueFailed
	if terminal {
		now := time.Now()
		item.State = state
		item.Error = errMsg
		item.CompletedAt = &now
		delete(q.active, videoID)
		q.pushHistory(videoID)
	}
	q.mu.Unlock()

	if terminal {
		q.scheduleAdmit()
	}
	return nil
}

// pushHistory records a terminal videoId, evicting the oldest beyond cap.
// Must be called with mu held.
func (q *Queue) pushHistory(videoID string) {
	q.history = append(q.history, videoID)
	if len(q.history) > q.historyCap {
		evicted := q.history[0]
		q.history = q.history[1:]
		delete(q.items, evicted)
	}
}

// ClearHistory drops all terminal records, keeping pending/active/paused.
func (q *Queue) ClearHistory() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range q.history {
		delete(q.items, id)
	}
	q.history = nil
}

// ClearAll resets the queue entirely (pending, active projection, paused,
// and history). In-flight worker calls are not interrupted.
func (q *Queue) ClearAll() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = nil
	q.items = make(map[string]*model.QueueItem)
	q.active = make(map[string]bool)
	q.history = nil
}

// StatusPage is the paginated result of GetStatus.
type StatusPage struct {
	Pending   []model.QueueItem
	Active    []model.QueueItem
	Paused    []model.QueueItem
	Completed []model.QueueItem
	Total     int
}

// GetStatus returns a full snapshot, with completed/history paginated by
// offset/limit (§4.7 "getStatus({pending/completed pagination})").
func (q *Queue) GetStatus(offset, limit int) StatusPage {
	q.mu.Lock()
	defer q.mu.Unlock()

	page := StatusPage{Total: len(q.items)}
	for _, e := range q.pending {
		if item, ok := q.items[e.videoID]; ok {
			page.Pending = append(page.Pending, *item)
		}
	}
	for id := range q.active {
		if item, ok := q.items[id]; ok {
			page.Active = append(page.Active, *item)
		}
	}
	for _, item := range q.items {
		if item.State == model.QueuePaused {
			page.Paused = append(page.Paused, *item)
		}
	}

	end := len(q.history)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	if offset < len(q.history) {
		for _, id := range q.history[offset:end] {
			if item, ok := q.items[id]; ok {
				page.Completed = append(page.Completed, *item)
			}
		}
	}
	return page
}

// scheduleAdmit defers an admission pass by admitDebounce, coalescing any
// number of calls within that window into a single admit(). This decouples
// admission from each individual Add/Resume/UpdateProgress call, so a
// tight burst of them is fully reflected in the pending heap - and admitted
// in priority order - before any one item launches.
func (q *Queue) scheduleAdmit() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.admitTimer != nil {
		return
	}
	q.admitTimer = time.AfterFunc(admitDebounce, func() {
		q.mu.Lock()
		q.admitTimer = nil
		q.mu.Unlock()
		q.admit(context.Background())
	})
}

// admit launches as many pending items as maxActive - len(active) allows,
// honoring the global pause flag. Computed under the lock, launched
// outside it (§5 "admission ... runs under the mutex and launches workers
// outside it").
func (q *Queue) admit(ctx context.Context) {
	var toLaunch []model.QueueItem

	q.mu.Lock()
	if !q.paused {
		for len(q.active) < q.maxActive && q.pending.Len() > 0 {
			entry := heap.Pop(&q.pending).(*heapEntry)
			item, ok := q.items[entry.videoID]
			if !ok {
				continue
			}
			now := time.Now()
			item.State = model.QueueActive
			item.StartedAt = &now
			q.active[entry.videoID] = true
			toLaunch = append(toLaunch, *item)
		}
	}
	activeCount := len(q.active)
	q.mu.Unlock()

	metrics.UploadQueueItems.WithLabelValues("active").Set(float64(activeCount))
	for _, item := range toLaunch {
		if q.launch != nil {
			q.launch(ctx, item)
		}
	}
}
