// Package browser implements the C3 browser pool: a small set of reused
// chromedp-controlled Chrome processes, each hosting multiple tabs, with
// age/page-count rotation and disconnect eviction. Shape is grounded on
// other_examples' flaresolverr-go browser pool (pre-warmed slots, a single
// mutex guarding membership only, errgroup fan-out on shutdown); the CDP
// wiring and network-event capture are grounded on other_examples' jsbug
// chrome-renderer_v2 (chromedp.ListenTarget callbacks, context-per-tab).
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/chromedp"
	"golang.org/x/sync/errgroup"

	"github.com/kestrelhq/scrapegate/internal/config"
	"github.com/kestrelhq/scrapegate/internal/infrastructure/metrics"
)

var (
	// ErrPoolClosed is returned by AcquirePage once CloseAll ran.
	ErrPoolClosed = fmt.Errorf("browser pool: closed")
	// ErrPoolFull is returned when every slot is at BrowserMaxPagesPerBrowser
	// and the allocation policy (1..MaxConcurrency) has no room to grow.
	ErrPoolFull = fmt.Errorf("browser pool: at capacity")
)

// browserSlot tracks one live Chrome process and its tabs.
type browserSlot struct {
	id          int
	allocCtx    context.Context
	allocCancel context.CancelFunc
	rootCtx     context.Context // first tab's context, keeps the browser alive
	rootCancel  context.CancelFunc
	createdAt   time.Time
	pageCount   atomic.Int32 // tabs currently leased out, for Stats/ProcessInfo
	pagesServed atomic.Int64 // total tabs ever handed out, for rotation (§4.3 step 3)
	pid         atomic.Int64
}

func (s *browserSlot) age() time.Duration { return time.Since(s.createdAt) }

// Pool manages 1..cfg.MaxConcurrency Chrome processes, allocating tabs
// (pages) on demand and rotating browsers that exceed their TTL or page
// budget. Lock ordering: mu guards pool membership (the slots slice and
// closed flag) only; page-level RPCs and browser launch/close run outside
// the lock.
type Pool struct {
	mu     sync.Mutex
	slots  []*browserSlot
	nextID int
	closed atomic.Bool

	cfg    config.BrowserConfig
	logger *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates an empty pool. Browsers are spawned lazily by AcquirePage up
// to cfg.MaxConcurrency, rather than pre-warmed, since the gateway's load
// is bursty scrape-on-demand traffic rather than a steady request stream.
func New(cfg config.BrowserConfig, logger *slog.Logger) *Pool {
	p := &Pool{
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}
	p.wg.Add(1)
	go p.sweepLoop()
	return p
}

// Page is a leased tab. Callers must ReleasePage (normal return) or
// DestroyPage (the tab misbehaved) exactly once.
type Page struct {
	ctx       context.Context
	cancel    context.CancelFunc
	slot      *browserSlot
	collector *candidateCollector
}

// Context returns the chromedp-ready context for running tasks on this tab.
func (pg *Page) Context() context.Context { return pg.ctx }

// Candidates returns the media candidates observed on this tab so far.
func (pg *Page) Candidates() []candidateEntry { return pg.collector.snapshot() }

// AcquirePage leases a tab from an existing (non-expired, under-budget)
// browser, or spawns a new browser if under MaxConcurrency, or blocks-free
// returns ErrPoolFull if neither is possible. The allocation policy keeps
// 1..cfg.MaxConcurrency browsers alive, per spec.
func (p *Pool) AcquirePage(ctx context.Context) (*Page, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}

	slot, err := p.pickOrSpawnSlot(ctx)
	if err != nil {
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(slot.rootCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	slot.pageCount.Add(1)
	slot.pagesServed.Add(1)
	metrics.BrowserPoolPages.Inc()

	collector := newCandidateCollector()
	collector.attach(tabCtx)

	return &Page{ctx: tabCtx, cancel: tabCancel, slot: slot, collector: collector}, nil
}

// pickOrSpawnSlot selects an eligible existing browser or launches a new
// one, honoring rotation-due browsers by skipping them (the sweep loop
// retires those) and the MaxConcurrency ceiling.
func (p *Pool) pickOrSpawnSlot(ctx context.Context) (*browserSlot, error) {
	p.mu.Lock()
	for _, s := range p.slots {
		if s.age() >= p.cfg.TTL {
			continue
		}
		if s.pagesServed.Load() >= int64(p.cfg.MaxPagesPerBrowser) {
			continue
		}
		p.mu.Unlock()
		return s, nil
	}
	canSpawn := len(p.slots) < max(1, p.cfg.MaxConcurrency)
	p.mu.Unlock()

	if !canSpawn {
		return nil, ErrPoolFull
	}
	return p.spawnSlot(ctx)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// spawnSlot launches a new Chrome process and registers it in the pool.
func (p *Pool) spawnSlot(ctx context.Context) (*browserSlot, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.cfg.Headless),
		chromedp.WindowSize(p.cfg.ViewportWidth, p.cfg.ViewportHeight),
	)
	if p.cfg.ExecutablePath != "" {
		opts = append(opts, chromedp.ExecPath(p.cfg.ExecutablePath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	rootCtx, rootCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(rootCtx); err != nil {
		rootCancel()
		allocCancel()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	p.mu.Lock()
	p.nextID++
	slot := &browserSlot{
		id:          p.nextID,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		rootCtx:     rootCtx,
		rootCancel:  rootCancel,
		createdAt:   time.Now(),
	}
	if bc := chromedp.FromContext(rootCtx); bc != nil && bc.Browser != nil {
		slot.pid.Store(int64(bc.Browser.Process().Pid))
	}

	chromedp.ListenBrowser(rootCtx, func(ev any) {
		if _, ok := ev.(*inspector.EventDetached); ok {
			p.evictSlot(slot.id, metrics.RotationTriggerDisconnect)
		}
	})

	p.slots = append(p.slots, slot)
	metrics.BrowserPoolBrowsers.Set(float64(len(p.slots)))
	p.mu.Unlock()

	return slot, nil
}

// ReleasePage returns a tab's resources to the runtime. The underlying
// browser stays in the pool; only the tab is closed.
func (p *Pool) ReleasePage(pg *Page) {
	if pg == nil {
		return
	}
	_ = chromedp.Cancel(pg.ctx)
	pg.cancel()
	pg.slot.pageCount.Add(-1)
	metrics.BrowserPoolPages.Dec()
}

// DestroyPage forcibly tears down a misbehaving tab's browser entirely,
// since a tab that hung or crashed often leaves the whole process unhealthy.
func (p *Pool) DestroyPage(pg *Page) {
	if pg == nil {
		return
	}
	pg.cancel()
	pg.slot.pageCount.Add(-1)
	metrics.BrowserPoolPages.Dec()
	p.evictSlot(pg.slot.id, metrics.RotationTriggerMaxPages)
}

// Terminate closes and removes one browser by id. The sweep loop uses it
// for age/page-count rotation; the disconnect listener and DestroyPage call
// evictSlot directly.
func (p *Pool) Terminate(id int, trigger string) {
	p.evictSlot(id, trigger)
}

func (p *Pool) evictSlot(id int, trigger string) {
	p.mu.Lock()
	var removed *browserSlot
	out := p.slots[:0:0]
	for _, s := range p.slots {
		if s.id == id {
			removed = s
			continue
		}
		out = append(out, s)
	}
	p.slots = out
	metrics.BrowserPoolBrowsers.Set(float64(len(p.slots)))
	p.mu.Unlock()

	if removed == nil {
		return
	}
	metrics.BrowserRotationsTotal.WithLabelValues(trigger).Inc()
	removed.rootCancel()
	removed.allocCancel()
}

// sweepLoop retires browsers that exceeded their TTL or page budget every
// 5 minutes, independent of traffic.
func (p *Pool) sweepLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.sweepOnce()
		}
	}
}

func (p *Pool) sweepOnce() {
	p.mu.Lock()
	var stale []int
	for _, s := range p.slots {
		rotationDue := s.age() >= p.cfg.TTL || s.pagesServed.Load() >= int64(p.cfg.MaxPagesPerBrowser)
		if rotationDue && s.pageCount.Load() == 0 {
			stale = append(stale, s.id)
		}
	}
	p.mu.Unlock()

	for _, id := range stale {
		p.Terminate(id, metrics.RotationTriggerSweep)
	}
}

// CloseAll shuts down every browser in the pool concurrently via errgroup,
// matching the teacher's parallel-close-on-shutdown pattern.
func (p *Pool) CloseAll(ctx context.Context) error {
	if p.closed.Swap(true) {
		return nil
	}
	close(p.stopCh)
	p.wg.Wait()

	p.mu.Lock()
	slots := p.slots
	p.slots = nil
	p.mu.Unlock()

	eg, _ := errgroup.WithContext(ctx)
	eg.SetLimit(4)
	for _, s := range slots {
		s := s
		eg.Go(func() error {
			s.rootCancel()
			s.allocCancel()
			return nil
		})
	}
	metrics.BrowserPoolBrowsers.Set(0)
	return eg.Wait()
}

// Stats summarizes pool membership (§4.3 "Stats").
type Stats struct {
	BrowserCount int
	PageCount    int
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := Stats{BrowserCount: len(p.slots)}
	for _, s := range p.slots {
		st.PageCount += int(s.pageCount.Load())
	}
	return st
}

// ProcessInfo describes one live Chrome process (§4.3 "ProcessInfo").
type ProcessInfo struct {
	ID        int
	PID       int64
	Age       time.Duration
	PageCount int
}

func (p *Pool) ProcessInfo() []ProcessInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ProcessInfo, 0, len(p.slots))
	for _, s := range p.slots {
		out = append(out, ProcessInfo{
			ID:        s.id,
			PID:       s.pid.Load(),
			Age:       s.age(),
			PageCount: int(s.pageCount.Load()),
		})
	}
	return out
}
