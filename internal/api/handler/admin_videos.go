package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kestrelhq/scrapegate/internal/domain/model"
	"github.com/kestrelhq/scrapegate/internal/domain/repository"
	"github.com/kestrelhq/scrapegate/internal/service/videotracker"
)

// VideoHandler exposes the admin CRUD/listing/retry surface over C5 video
// records.
type VideoHandler struct {
	tracker *videotracker.Tracker
}

func NewVideoHandler(tracker *videotracker.Tracker) *VideoHandler {
	return &VideoHandler{tracker: tracker}
}

type videoResponse struct {
	ID           string `json:"id"`
	SourceURL    string `json:"source_url"`
	VideoURL     string `json:"video_url"`
	Status       string `json:"status"`
	S3URL        string `json:"s3_url,omitempty"`
	Error        string `json:"error,omitempty"`
	IsProtected  bool   `json:"is_protected"`
	AutoImported bool   `json:"auto_imported"`
	RetryCount   int    `json:"retry_count"`
	CreatedAt    string `json:"created_at"`
}

func toVideoResponse(v *model.VideoRecord) videoResponse {
	return videoResponse{
		ID: v.ID, SourceURL: v.SourceURL, VideoURL: v.VideoURL, Status: string(v.Status),
		S3URL: v.S3URL, Error: v.Error, IsProtected: v.IsProtected, AutoImported: v.AutoImported,
		RetryCount: v.RetryCount, CreatedAt: v.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// List handles GET /apis/admin/v1/videos.
func (h *VideoHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := videotracker.ListFilter{
		Status:   model.VideoStatus(q.Get("status")),
		Search:   q.Get("search"),
		SortDesc: q.Get("sort") != "asc",
	}
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))

	result, err := h.tracker.GetAll(r.Context(), filter)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error(), "list_failed")
		return
	}
	out := make([]videoResponse, len(result.Videos))
	for i, v := range result.Videos {
		out[i] = toVideoResponse(v)
	}
	JSON(w, http.StatusOK, map[string]any{"videos": out, "total": result.Total})
}

// Stats handles GET /apis/admin/v1/videos/stats.
func (h *VideoHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.tracker.Stats(r.Context())
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error(), "stats_failed")
		return
	}
	JSON(w, http.StatusOK, stats)
}

// Get handles GET /apis/admin/v1/videos/{id}.
func (h *VideoHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.tracker.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, err)
		return
	}
	JSON(w, http.StatusOK, toVideoResponse(v))
}

type updateVideoRequest struct {
	SourceURL *string `json:"source_url"`
}

// Update handles PATCH /apis/admin/v1/videos/{id}.
func (h *VideoHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body", "invalid_request")
		return
	}
	v, err := h.tracker.UpdateVideo(r.Context(), chi.URLParam(r, "id"), func(rec *model.VideoRecord) error {
		if req.SourceURL != nil {
			rec.SourceURL = *req.SourceURL
		}
		return nil
	})
	if err != nil {
		h.handleError(w, err)
		return
	}
	JSON(w, http.StatusOK, toVideoResponse(v))
}

// Delete handles DELETE /apis/admin/v1/videos/{id}?delete_from_storage=true.
func (h *VideoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	deleteFromStorage := r.URL.Query().Get("delete_from_storage") == "true"
	if err := h.tracker.DeleteVideo(r.Context(), chi.URLParam(r, "id"), deleteFromStorage); err != nil {
		h.handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reuploadRequest struct {
	DeleteExisting bool `json:"delete_existing"`
	Force          bool `json:"force"`
}

// Reupload handles POST /apis/admin/v1/videos/{id}/reupload.
func (h *VideoHandler) Reupload(w http.ResponseWriter, r *http.Request) {
	var req reuploadRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	v, err := h.tracker.ReuploadVideo(r.Context(), chi.URLParam(r, "id"), req.DeleteExisting, req.Force)
	if err != nil {
		h.handleError(w, err)
		return
	}
	JSON(w, http.StatusOK, toVideoResponse(v))
}

// RetryAllFailed handles POST /apis/admin/v1/videos/retry-failed.
func (h *VideoHandler) RetryAllFailed(w http.ResponseWriter, r *http.Request) {
	skipProtected := r.URL.Query().Get("skip_protected") != "false"
	failures := h.tracker.RetryAllFailed(r.Context(), videotracker.RetryAllFailedOptions{SkipProtected: skipProtected})
	JSON(w, http.StatusOK, map[string]any{"failures": stringifyErrors(failures)})
}

// ResetStuck handles POST /apis/admin/v1/videos/reset-stuck.
func (h *VideoHandler) ResetStuck(w http.ResponseWriter, r *http.Request) {
	reset, err := h.tracker.ResetStuckUploads(r.Context(), 0)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error(), "reset_failed")
		return
	}
	JSON(w, http.StatusOK, map[string]int{"reset": reset})
}

func stringifyErrors(failures map[string]error) map[string]string {
	out := make(map[string]string, len(failures))
	for id, err := range failures {
		out[id] = err.Error()
	}
	return out
}

func (h *VideoHandler) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		Error(w, http.StatusNotFound, "video not found", "not_found")
	case errors.Is(err, model.ErrInvalidVideoTransition):
		Error(w, http.StatusConflict, err.Error(), "invalid_transition")
	default:
		Error(w, http.StatusInternalServerError, err.Error(), "internal_error")
	}
}
