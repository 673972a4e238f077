package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/kestrelhq/scrapegate/internal/domain/repository"
	"github.com/kestrelhq/scrapegate/internal/service/reconciler"
)

// StorageHandler exposes C10's reconciliation surface: scan, reconcile,
// orphan import/delete, and missing-in-S3 repair.
type StorageHandler struct {
	reconciler *reconciler.Reconciler
	store      repository.ObjectStorage
}

func NewStorageHandler(rec *reconciler.Reconciler, store repository.ObjectStorage) *StorageHandler {
	return &StorageHandler{reconciler: rec, store: store}
}

// Scan handles POST /apis/admin/v1/storage/scan.
func (h *StorageHandler) Scan(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	inventory, err := h.reconciler.ScanStorage(r.Context(), force)
	if err != nil {
		h.handleError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"object_count": len(inventory)})
}

// Reconcile handles POST /apis/admin/v1/storage/reconcile.
func (h *StorageHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	result, err := h.reconciler.Reconcile(r.Context(), force)
	if err != nil {
		h.handleError(w, err)
		return
	}
	JSON(w, http.StatusOK, result)
}

type orphanKeysRequest struct {
	Keys []string `json:"keys"`
}

// ImportOrphans handles POST /apis/admin/v1/storage/orphans/import.
func (h *StorageHandler) ImportOrphans(w http.ResponseWriter, r *http.Request) {
	var req orphanKeysRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Keys) == 0 {
		Error(w, http.StatusBadRequest, "keys is required", "invalid_request")
		return
	}
	failures := h.reconciler.ImportOrphans(r.Context(), req.Keys)
	JSON(w, http.StatusOK, map[string]any{"failures": stringifyErrors(failures)})
}

// DeleteOrphans handles POST /apis/admin/v1/storage/orphans/delete.
func (h *StorageHandler) DeleteOrphans(w http.ResponseWriter, r *http.Request) {
	var req orphanKeysRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Keys) == 0 {
		Error(w, http.StatusBadRequest, "keys is required", "invalid_request")
		return
	}
	failures := h.reconciler.DeleteOrphans(r.Context(), req.Keys)
	JSON(w, http.StatusOK, map[string]any{"failures": stringifyErrors(failures)})
}

type videoIDsRequest struct {
	VideoIDs []string `json:"video_ids"`
}

// FixMissing handles POST /apis/admin/v1/storage/missing/fix.
func (h *StorageHandler) FixMissing(w http.ResponseWriter, r *http.Request) {
	var req videoIDsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.VideoIDs) == 0 {
		Error(w, http.StatusBadRequest, "video_ids is required", "invalid_request")
		return
	}
	failures := h.reconciler.FixMissingInS3(r.Context(), req.VideoIDs)
	JSON(w, http.StatusOK, map[string]any{"failures": stringifyErrors(failures)})
}

// ListObjects handles GET /apis/admin/v1/storage/objects.
func (h *StorageHandler) ListObjects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	maxKeys, _ := strconv.Atoi(q.Get("max_keys"))
	if maxKeys <= 0 {
		maxKeys = 1000
	}
	page, err := h.store.ListObjects(r.Context(), q.Get("continuation_token"), q.Get("prefix"), maxKeys)
	if err != nil {
		h.handleError(w, err)
		return
	}
	JSON(w, http.StatusOK, page)
}

func (h *StorageHandler) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrScanInProgress):
		Error(w, http.StatusConflict, err.Error(), "scan_in_progress")
	case errors.Is(err, repository.ErrStorageNotConfigured):
		Error(w, http.StatusServiceUnavailable, err.Error(), "storage_not_configured")
	default:
		Error(w, http.StatusInternalServerError, err.Error(), "internal_error")
	}
}
