package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kestrelhq/scrapegate/internal/domain/model"
	"github.com/kestrelhq/scrapegate/internal/domain/repository"
	"github.com/kestrelhq/scrapegate/internal/service/urltracker"
)

// URLHandler exposes the admin CRUD/listing surface over C4 scrape requests.
type URLHandler struct {
	tracker *urltracker.Tracker
}

func NewURLHandler(tracker *urltracker.Tracker) *URLHandler {
	return &URLHandler{tracker: tracker}
}

type scrapeRequestResponse struct {
	ID        string              `json:"id"`
	URL       string              `json:"url"`
	Status    string              `json:"status"`
	Error     string              `json:"error,omitempty"`
	CreatedAt string              `json:"created_at"`
	Result    *model.ScrapeResult `json:"result,omitempty"`
}

func toScrapeRequestResponse(r *model.ScrapeRequest) scrapeRequestResponse {
	return scrapeRequestResponse{
		ID: r.ID, URL: r.URL, Status: string(r.Status), Error: r.Error,
		CreatedAt: r.CreatedAt.Format("2006-01-02T15:04:05Z07:00"), Result: r.Result,
	}
}

// List handles GET /apis/admin/v1/urls.
func (h *URLHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := urltracker.ListFilter{
		Status:   model.ScrapeStatus(q.Get("status")),
		Search:   q.Get("search"),
		SortDesc: q.Get("sort") != "asc",
	}
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))

	result, err := h.tracker.List(r.Context(), filter)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error(), "list_failed")
		return
	}
	out := make([]scrapeRequestResponse, len(result.Requests))
	for i, req := range result.Requests {
		out[i] = toScrapeRequestResponse(req)
	}
	JSON(w, http.StatusOK, map[string]any{"requests": out, "total": result.Total})
}

// Get handles GET /apis/admin/v1/urls/{id}.
func (h *URLHandler) Get(w http.ResponseWriter, r *http.Request) {
	req, err := h.tracker.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, err)
		return
	}
	JSON(w, http.StatusOK, toScrapeRequestResponse(req))
}

// Cancel handles POST /apis/admin/v1/urls/{id}/cancel.
func (h *URLHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	req, err := h.tracker.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, err)
		return
	}
	JSON(w, http.StatusOK, toScrapeRequestResponse(req))
}

// Rescrape handles POST /apis/admin/v1/urls/{id}/rescrape.
func (h *URLHandler) Rescrape(w http.ResponseWriter, r *http.Request) {
	req, err := h.tracker.Rescrape(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, err)
		return
	}
	JSON(w, http.StatusCreated, toScrapeRequestResponse(req))
}

// Delete handles DELETE /apis/admin/v1/urls/{id}.
func (h *URLHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.tracker.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *URLHandler) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		Error(w, http.StatusNotFound, "scrape request not found", "not_found")
	case errors.Is(err, model.ErrInvalidScrapeTransition), errors.Is(err, model.ErrScrapeNotCancellable):
		Error(w, http.StatusConflict, err.Error(), "invalid_transition")
	default:
		Error(w, http.StatusInternalServerError, err.Error(), "internal_error")
	}
}
