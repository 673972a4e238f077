package handler

import (
	"net/http"

	"github.com/kestrelhq/scrapegate/internal/infrastructure/cache"
)

// CacheHandler exposes C2's scrape-cache stats and invalidation.
type CacheHandler struct {
	cache *cache.ScrapeCache
}

func NewCacheHandler(c *cache.ScrapeCache) *CacheHandler {
	return &CacheHandler{cache: c}
}

// Stats handles GET /apis/admin/v1/cache/stats.
func (h *CacheHandler) Stats(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.cache.Stats())
}

// Clear handles DELETE /apis/admin/v1/cache?pattern=*.
func (h *CacheHandler) Clear(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")
	if pattern == "" {
		pattern = "*"
	}
	if err := h.cache.Clear(r.Context(), pattern); err != nil {
		Error(w, http.StatusInternalServerError, err.Error(), "clear_failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Sweep handles POST /apis/admin/v1/cache/sweep.
func (h *CacheHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	swept, err := h.cache.RunSweep(r.Context())
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error(), "sweep_failed")
		return
	}
	JSON(w, http.StatusOK, map[string]int{"swept": swept})
}
