package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kestrelhq/scrapegate/internal/infrastructure/queue"
)

// UploadQueueHandler exposes C7's admission queue as §6.2's queue control
// panel (status, add, pause/resume, priority, cancel, clear).
type UploadQueueHandler struct {
	queue *queue.Queue
}

func NewUploadQueueHandler(q *queue.Queue) *UploadQueueHandler {
	return &UploadQueueHandler{queue: q}
}

// Status handles GET /apis/admin/v1/queue.
func (h *UploadQueueHandler) Status(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offset, _ := strconv.Atoi(q.Get("offset"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	JSON(w, http.StatusOK, h.queue.GetStatus(offset, limit))
}

type addQueueRequest struct {
	VideoID  string            `json:"video_id"`
	Priority int               `json:"priority"`
	Display  map[string]string `json:"display_fields"`
}

// Add handles POST /apis/admin/v1/queue.
func (h *UploadQueueHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req addQueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VideoID == "" {
		Error(w, http.StatusBadRequest, "video_id is required", "invalid_request")
		return
	}
	item, err := h.queue.Add(r.Context(), req.VideoID, req.Priority, req.Display)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error(), "add_failed")
		return
	}
	JSON(w, http.StatusCreated, item)
}

// Pause handles POST /apis/admin/v1/queue/{videoId}/pause.
func (h *UploadQueueHandler) Pause(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.Pause(chi.URLParam(r, "videoId")); err != nil {
		h.handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Resume handles POST /apis/admin/v1/queue/{videoId}/resume.
func (h *UploadQueueHandler) Resume(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.Resume(r.Context(), chi.URLParam(r, "videoId")); err != nil {
		h.handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Cancel handles POST /apis/admin/v1/queue/{videoId}/cancel.
func (h *UploadQueueHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.Cancel(chi.URLParam(r, "videoId")); err != nil {
		h.handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type priorityRequest struct {
	Priority int `json:"priority"`
}

// SetPriority handles PUT /apis/admin/v1/queue/{videoId}/priority.
func (h *UploadQueueHandler) SetPriority(w http.ResponseWriter, r *http.Request) {
	var req priorityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body", "invalid_request")
		return
	}
	if err := h.queue.SetPriority(chi.URLParam(r, "videoId"), req.Priority); err != nil {
		h.handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PauseAll handles POST /apis/admin/v1/queue/pause-all.
func (h *UploadQueueHandler) PauseAll(w http.ResponseWriter, r *http.Request) {
	h.queue.PauseAll()
	w.WriteHeader(http.StatusNoContent)
}

// ResumeAll handles POST /apis/admin/v1/queue/resume-all.
func (h *UploadQueueHandler) ResumeAll(w http.ResponseWriter, r *http.Request) {
	h.queue.ResumeAll(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// ClearHistory handles DELETE /apis/admin/v1/queue/history.
func (h *UploadQueueHandler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	h.queue.ClearHistory()
	w.WriteHeader(http.StatusNoContent)
}

// ClearAll handles DELETE /apis/admin/v1/queue.
func (h *UploadQueueHandler) ClearAll(w http.ResponseWriter, r *http.Request) {
	h.queue.ClearAll()
	w.WriteHeader(http.StatusNoContent)
}

func (h *UploadQueueHandler) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, queue.ErrUnknownItem):
		Error(w, http.StatusNotFound, err.Error(), "unknown_item")
	case errors.Is(err, queue.ErrNotCancellable):
		Error(w, http.StatusConflict, err.Error(), "not_cancellable")
	default:
		Error(w, http.StatusInternalServerError, err.Error(), "internal_error")
	}
}
