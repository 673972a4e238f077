package handler

import (
	"net/http"

	"github.com/kestrelhq/scrapegate/internal/infrastructure/browser"
	"github.com/kestrelhq/scrapegate/internal/infrastructure/cache"
	"github.com/kestrelhq/scrapegate/internal/infrastructure/eventbus"
	"github.com/kestrelhq/scrapegate/internal/infrastructure/queue"
	"github.com/kestrelhq/scrapegate/internal/service/videotracker"
)

// DashboardHandler aggregates a summary view across every component for the
// admin landing page (§6.2 "dashboard").
type DashboardHandler struct {
	videos *videotracker.Tracker
	queue  *queue.Queue
	pool   *browser.Pool
	cache  *cache.ScrapeCache
	bus    *eventbus.Bus // may be nil
}

func NewDashboardHandler(videos *videotracker.Tracker, q *queue.Queue, pool *browser.Pool, c *cache.ScrapeCache, bus *eventbus.Bus) *DashboardHandler {
	return &DashboardHandler{videos: videos, queue: q, pool: pool, cache: c, bus: bus}
}

type dashboardResponse struct {
	Videos           videotracker.Stats `json:"videos"`
	QueueStatus      queue.StatusPage   `json:"queue"`
	BrowserPool      browser.Stats      `json:"browser_pool"`
	Cache            cache.Stats        `json:"cache"`
	EventSubscribers int                `json:"event_subscribers"`
}

// Summary handles GET /apis/admin/v1/dashboard.
func (h *DashboardHandler) Summary(w http.ResponseWriter, r *http.Request) {
	videoStats, err := h.videos.Stats(r.Context())
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error(), "stats_failed")
		return
	}

	resp := dashboardResponse{
		Videos:      videoStats,
		QueueStatus: h.queue.GetStatus(0, 20),
		BrowserPool: h.pool.Stats(),
		Cache:       h.cache.Stats(),
	}
	if h.bus != nil {
		resp.EventSubscribers = h.bus.SubscriberCount()
	}
	JSON(w, http.StatusOK, resp)
}

// Processes handles GET /apis/admin/v1/dashboard/processes.
func (h *DashboardHandler) Processes(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]any{"processes": h.pool.ProcessInfo()})
}
