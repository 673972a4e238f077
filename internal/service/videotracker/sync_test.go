package videotracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kestrelhq/scrapegate/internal/domain/model"
	"github.com/kestrelhq/scrapegate/internal/domain/repository"
	"github.com/kestrelhq/scrapegate/internal/infrastructure/statestore"
)

func addPending(t *testing.T, tr *Tracker, sourceURL, videoURL string) *model.VideoRecord {
	t.Helper()
	rec, err := tr.AddVideo(context.Background(), sourceURL, videoURL)
	if err != nil {
		t.Fatalf("setup AddVideo failed: %v", err)
	}
	return rec
}

func TestTracker_SyncVideo_SkipsUploadWhenAlreadyInStorage(t *testing.T) {
	objStore := &mockObjectStorage{objects: map[string]repository.ExistsResult{}}
	tr := newTestTracker(objStore, nil)
	rec := addPending(t, tr, "https://example.com", "https://cdn.example.com/a.mp4")

	objStore.objects[objStore.StorageKey(rec.VideoURL)] = repository.ExistsResult{Exists: true}

	synced, err := tr.SyncVideo(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if synced.Status != model.VideoSynced || !synced.SkippedUpload {
		t.Fatalf("expected skipped-upload synced record, got %+v", synced)
	}
}

func TestTracker_SyncVideo_DownloadsAndUploadsWhenAbsent(t *testing.T) {
	var uploadedPath, uploadedKey string
	objStore := &mockObjectStorage{
		uploadFromFileFn: func(ctx context.Context, path, key, contentType string, meta repository.UploadMetadata) error {
			uploadedPath, uploadedKey = path, key
			return nil
		},
	}
	dl := &mockDownloader{
		downloadFn: func(ctx context.Context, videoURL, tempDir string, isHLS bool, onProgress func(int64, int64, float64)) (repository.DownloadResult, error) {
			return repository.DownloadResult{Path: "/tmp/fetched.mp4", Kind: "direct"}, nil
		},
	}
	events := &mockEventPublisher{}
	tr := New(statestore.NewMemory(), objStore, dl, events, nil, DefaultConfig())
	rec := addPending(t, tr, "https://example.com", "https://cdn.example.com/a.mp4")

	synced, err := tr.SyncVideo(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if synced.Status != model.VideoSynced {
		t.Fatalf("expected synced status, got %v", synced.Status)
	}
	if uploadedPath != "/tmp/fetched.mp4" {
		t.Fatalf("expected downloaded path to be uploaded, got %q", uploadedPath)
	}
	if uploadedKey == "" {
		t.Fatal("expected a storage key to be computed for upload")
	}
	if len(dl.cleaned) != 1 || dl.cleaned[0] != "/tmp/fetched.mp4" {
		t.Fatalf("expected downloaded temp file cleaned up, got %+v", dl.cleaned)
	}
	foundComplete := false
	for _, ev := range events.events {
		if ev.Kind == "upload:complete" {
			foundComplete = true
		}
	}
	if !foundComplete {
		t.Fatalf("expected an upload:complete event, got %+v", events.events)
	}
}

func TestTracker_SyncVideo_ClassifiesProtectedErrors(t *testing.T) {
	dl := &mockDownloader{
		downloadFn: func(ctx context.Context, videoURL, tempDir string, isHLS bool, onProgress func(int64, int64, float64)) (repository.DownloadResult, error) {
			return repository.DownloadResult{}, errors.New("downloader: not a valid video")
		},
	}
	tr := newTestTracker(nil, dl)
	rec := addPending(t, tr, "https://example.com", "https://cdn.example.com/a.mp4")

	failed, err := tr.SyncVideo(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if failed.Status != model.VideoError || !failed.IsProtected {
		t.Fatalf("expected protected error record, got %+v", failed)
	}
	if failed.Error != protectedUserMessage {
		t.Fatalf("expected fixed user-facing message, got %q", failed.Error)
	}
}

func TestTracker_SyncVideo_RecordsRawErrorWhenNotProtected(t *testing.T) {
	dl := &mockDownloader{
		downloadFn: func(ctx context.Context, videoURL, tempDir string, isHLS bool, onProgress func(int64, int64, float64)) (repository.DownloadResult, error) {
			return repository.DownloadResult{}, errors.New("connection reset by peer")
		},
	}
	tr := newTestTracker(nil, dl)
	rec := addPending(t, tr, "https://example.com", "https://cdn.example.com/a.mp4")

	failed, err := tr.SyncVideo(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if failed.IsProtected {
		t.Fatal("expected non-protected classification")
	}
	if failed.Error == "" || failed.Error == protectedUserMessage {
		t.Fatalf("expected the raw error recorded, got %q", failed.Error)
	}
}

func TestTracker_ReuploadVideo_OnlyFromSyncedErrorOrStuck(t *testing.T) {
	tr := newTestTracker(nil, nil)
	rec := addPending(t, tr, "https://example.com", "https://cdn.example.com/a.mp4")

	if _, err := tr.ReuploadVideo(context.Background(), rec.ID, false, true); err == nil {
		t.Fatal("expected reupload from pending to fail")
	}
}

func TestTracker_RetryAllFailed_SkipsProtectedAndExhaustedRetries(t *testing.T) {
	dl := &mockDownloader{
		downloadFn: func(ctx context.Context, videoURL, tempDir string, isHLS bool, onProgress func(int64, int64, float64)) (repository.DownloadResult, error) {
			return repository.DownloadResult{}, errors.New("boom")
		},
	}
	tr := newTestTracker(nil, dl)
	protected := addPending(t, tr, "https://example.com", "https://cdn.example.com/protected.mp4")
	tr.UpdateVideo(context.Background(), protected.ID, func(v *model.VideoRecord) error {
		v.Status = model.VideoError
		v.IsProtected = true
		return nil
	})
	exhausted := addPending(t, tr, "https://example.com", "https://cdn.example.com/exhausted.mp4")
	tr.UpdateVideo(context.Background(), exhausted.ID, func(v *model.VideoRecord) error {
		v.Status = model.VideoError
		v.RetryCount = 99
		return nil
	})
	retryable := addPending(t, tr, "https://example.com", "https://cdn.example.com/retryable.mp4")
	tr.UpdateVideo(context.Background(), retryable.ID, func(v *model.VideoRecord) error {
		v.Status = model.VideoError
		return nil
	})

	failures := tr.RetryAllFailed(context.Background(), RetryAllFailedOptions{SkipProtected: true})
	if _, ok := failures[protected.ID]; ok {
		t.Fatal("expected protected record to be skipped, not retried")
	}
	if _, ok := failures[exhausted.ID]; ok {
		t.Fatal("expected exhausted-retry record to be skipped, not retried")
	}
	if _, ok := failures[retryable.ID]; !ok {
		t.Fatalf("expected retryable record to be retried and fail again, got %+v", failures)
	}
}

func TestTracker_ResetStuckUploads_ResetsOldUploadingRecords(t *testing.T) {
	tr := newTestTracker(nil, nil)
	rec := addPending(t, tr, "https://example.com", "https://cdn.example.com/a.mp4")
	stuckAt := time.Now().Add(-time.Hour)
	tr.UpdateVideo(context.Background(), rec.ID, func(v *model.VideoRecord) error {
		v.Status = model.VideoUploading
		v.UploadingAt = &stuckAt
		return nil
	})

	reset, err := tr.ResetStuckUploads(context.Background(), 30*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reset != 1 {
		t.Fatalf("expected 1 record reset, got %d", reset)
	}
	got, _ := tr.GetByID(context.Background(), rec.ID)
	if got.Status != model.VideoPending {
		t.Fatalf("expected record reset to pending, got %v", got.Status)
	}
}
