package videotracker

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kestrelhq/scrapegate/internal/domain/model"
	"github.com/kestrelhq/scrapegate/internal/domain/repository"
	"github.com/kestrelhq/scrapegate/internal/infrastructure/audit"
)

// protectedUserMessage is the fixed, non-leaky message shown for sources the
// error classifier determines are protected/obfuscated (§4.5 "Sync").
const protectedUserMessage = "this source could not be downloaded (protected or obfuscated content)"

var protectedMarkers = []string{"not a valid video", "obfuscated", "protected"}

// SyncVideo implements §4.5 "Sync": pre-flight HEAD dedup, download-or-reuse,
// multipart upload, and error classification.
func (t *Tracker) SyncVideo(ctx context.Context, id string) (*model.VideoRecord, error) {
	rec, err := t.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !rec.ForceReupload {
		key := t.objectStore.StorageKey(rec.VideoURL)
		exists, err := t.objectStore.CheckObjectExists(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("pre-flight head for video %s: %w", id, err)
		}
		if exists.Exists {
			rec.SkippedUpload = true
			if err := rec.MarkSynced(t.objectStore.GetPublicURL(key)); err != nil {
				return nil, err
			}
			if err := t.save(ctx, rec); err != nil {
				return nil, err
			}
			t.recordSync(ctx, rec, "")
			return rec, nil
		}
	}

	if err := rec.BeginUpload(); err != nil {
		return nil, err
	}
	if err := t.save(ctx, rec); err != nil {
		return nil, err
	}
	t.publish(repository.LifecycleEvent{Kind: "upload:start", Category: "upload", VideoID: id})

	path, cleanup, err := t.acquire(ctx, rec)
	if err != nil {
		return t.failSync(ctx, rec, err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	key := t.objectStore.StorageKey(rec.VideoURL)
	meta := repository.UploadMetadata{VideoURL: rec.VideoURL, SourceURL: rec.SourceURL}
	if err := t.objectStore.UploadFromFile(ctx, path, key, "video/mp4", meta); err != nil {
		return t.failSync(ctx, rec, fmt.Errorf("upload: %w", err))
	}

	if err := rec.MarkSynced(t.objectStore.GetPublicURL(key)); err != nil {
		return nil, err
	}
	rec.ForceReupload = false
	if err := t.save(ctx, rec); err != nil {
		return nil, err
	}
	t.publish(repository.LifecycleEvent{Kind: "upload:complete", Category: "upload", VideoID: id})
	t.recordSync(ctx, rec, "")
	return rec, nil
}

// acquire reuses rec.DownloadPath when it still exists on disk, otherwise
// invokes the downloader. The returned cleanup func releases the temp file
// only when this call owns it (a reused path is left for a later retry).
func (t *Tracker) acquire(ctx context.Context, rec *model.VideoRecord) (string, func(), error) {
	if rec.DownloadPath != "" {
		if _, err := os.Stat(rec.DownloadPath); err == nil {
			return rec.DownloadPath, nil, nil
		}
	}

	isHLS := false
	for _, src := range rec.VideoSources {
		if src.URL == rec.VideoURL {
			isHLS = src.IsHLS
			break
		}
	}

	result, err := t.downloader.Download(ctx, rec.VideoURL, "", isHLS, func(written, total int64, pct float64) {
		t.publish(repository.LifecycleEvent{
			Kind: "download:progress", Category: "download", VideoID: rec.ID, Progress: pct,
		})
	})
	if err != nil {
		return "", nil, err
	}
	return result.Path, func() { t.downloader.Cleanup(result.Path) }, nil
}

// failSync records a failed sync attempt, classifying the error per §4.5.
func (t *Tracker) failSync(ctx context.Context, rec *model.VideoRecord, cause error) (*model.VideoRecord, error) {
	protected, msg := classifyError(cause)
	if err := rec.MarkError(msg, protected); err != nil {
		return nil, err
	}
	rec.RecordFailedAttempt(0, rec.VideoURL, msg)
	if err := t.save(ctx, rec); err != nil {
		return nil, err
	}
	t.publish(repository.LifecycleEvent{Kind: "upload:error", Category: "upload", VideoID: rec.ID, Message: msg})
	t.recordSync(ctx, rec, msg)
	return rec, nil
}

// classifyError implements §4.5's error classification: messages containing
// a protected/obfuscated marker get a fixed user-facing message and
// isProtected=true; everything else is recorded verbatim.
func classifyError(err error) (protected bool, message string) {
	lower := strings.ToLower(err.Error())
	for _, marker := range protectedMarkers {
		if strings.Contains(lower, marker) {
			return true, protectedUserMessage
		}
	}
	return false, err.Error()
}

func (t *Tracker) recordSync(ctx context.Context, rec *model.VideoRecord, errMsg string) {
	if t.auditSink == nil {
		return
	}
	_ = t.auditSink.RecordVideoSync(ctx, audit.VideoSyncAudit{
		VideoID: rec.ID, SourceURL: rec.SourceURL, VideoURL: rec.VideoURL,
		Status: string(rec.Status), Error: errMsg, S3URL: rec.S3URL, Timestamp: time.Now(),
	})
}

// ReuploadVideo implements §4.5 "Reupload": valid only from synced, error,
// or stuck-uploading. Optionally deletes the existing object first, then
// resets to pending and re-runs Sync with force bypassing the HEAD dedup.
func (t *Tracker) ReuploadVideo(ctx context.Context, id string, deleteExisting, force bool) (*model.VideoRecord, error) {
	rec, err := t.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if deleteExisting && rec.S3URL != "" {
		if key, err := t.objectStore.ExtractKeyFromURL(rec.S3URL); err == nil {
			if err := t.objectStore.DeleteObject(ctx, key); err != nil {
				return nil, fmt.Errorf("delete existing object for video %s: %w", id, err)
			}
		}
	}
	if err := rec.ResetForReupload(force); err != nil {
		return nil, err
	}
	if err := t.save(ctx, rec); err != nil {
		return nil, err
	}
	return t.SyncVideo(ctx, id)
}

// ResetForReupload resets a synced/error/stuck record to pending without
// immediately re-syncing it (§4.5), for callers that batch via SyncMany.
func (t *Tracker) ResetForReupload(ctx context.Context, id string, force bool) (*model.VideoRecord, error) {
	rec, err := t.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := rec.ResetForReupload(force); err != nil {
		return nil, err
	}
	if err := t.save(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// SyncAllPending runs SyncVideo over every currently-pending record.
func (t *Tracker) SyncAllPending(ctx context.Context) map[string]error {
	all, err := t.all(ctx)
	if err != nil {
		return map[string]error{"*": err}
	}
	ids := make([]string, 0, len(all))
	for _, rec := range all {
		if rec.Status == model.VideoPending {
			ids = append(ids, rec.ID)
		}
	}
	return t.SyncMany(ctx, ids)
}

// SyncMany runs SyncVideo over ids, collecting per-id failures rather than
// stopping at the first one.
func (t *Tracker) SyncMany(ctx context.Context, ids []string) map[string]error {
	failures := make(map[string]error)
	for _, id := range ids {
		if _, err := t.SyncVideo(ctx, id); err != nil {
			failures[id] = err
		}
	}
	return failures
}

// ReuploadMany runs ReuploadVideo over ids.
func (t *Tracker) ReuploadMany(ctx context.Context, ids []string, deleteExisting, force bool) map[string]error {
	failures := make(map[string]error)
	for _, id := range ids {
		if _, err := t.ReuploadVideo(ctx, id, deleteExisting, force); err != nil {
			failures[id] = err
		}
	}
	return failures
}

// RetryAllFailedOptions controls §4.5's "Retry-all-failed" skip rules.
type RetryAllFailedOptions struct {
	SkipProtected bool
}

// RetryAllFailed iterates every record in error, skipping protected records
// when SkipProtected is set or records that have exhausted MaxRetries,
// otherwise clearing stale download pointers and re-invoking Sync.
func (t *Tracker) RetryAllFailed(ctx context.Context, opts RetryAllFailedOptions) map[string]error {
	all, err := t.all(ctx)
	if err != nil {
		return map[string]error{"*": err}
	}
	failures := make(map[string]error)
	for _, rec := range all {
		if rec.Status != model.VideoError {
			continue
		}
		if opts.SkipProtected && rec.IsProtected {
			continue
		}
		if rec.RetryCount >= t.cfg.MaxRetries {
			continue
		}
		// error -> pending is the only way out of error; the reset also
		// clears the stale download pointers.
		err := rec.ResetForReupload(false)
		if err == nil {
			err = t.save(ctx, rec)
		}
		var synced *model.VideoRecord
		if err == nil {
			synced, err = t.SyncVideo(ctx, rec.ID)
		}
		if err == nil && synced.Status == model.VideoError {
			err = fmt.Errorf("sync failed again: %s", synced.Error)
		}
		if err != nil {
			failures[rec.ID] = err
		}
	}
	return failures
}

// ResetStuckUploads implements §4.5 "Stuck reset": any record uploading
// longer than timeout is returned to pending with an explanatory error.
func (t *Tracker) ResetStuckUploads(ctx context.Context, timeout time.Duration) (int, error) {
	if timeout <= 0 {
		timeout = t.cfg.StuckThreshold
	}
	all, err := t.all(ctx)
	if err != nil {
		return 0, err
	}
	reset := 0
	for _, rec := range all {
		if !rec.IsStuck(timeout) {
			continue
		}
		if err := rec.ResetStuck("upload timed out and was reset"); err != nil {
			continue
		}
		if err := t.save(ctx, rec); err != nil {
			return reset, err
		}
		reset++
	}
	return reset, nil
}
