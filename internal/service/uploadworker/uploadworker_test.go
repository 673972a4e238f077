package uploadworker

import (
	"context"
	"errors"
	"testing"

	"github.com/kestrelhq/scrapegate/internal/domain/model"
	"github.com/kestrelhq/scrapegate/internal/domain/repository"
)

type mockSyncer struct {
	syncVideoFn func(ctx context.Context, id string) (*model.VideoRecord, error)
	calls       int
}

func (m *mockSyncer) SyncVideo(ctx context.Context, id string) (*model.VideoRecord, error) {
	m.calls++
	if m.syncVideoFn != nil {
		return m.syncVideoFn(ctx, id)
	}
	return &model.VideoRecord{ID: id, Status: model.VideoSynced}, nil
}

func TestWorker_ProcessTask_SucceedsAndAcks(t *testing.T) {
	syncer := &mockSyncer{}
	w := New(syncer, Config{MaxRetries: 3}, nil)

	if err := w.ProcessTask(context.Background(), repository.UploadTask{VideoID: "v1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if syncer.calls != 1 {
		t.Fatalf("expected 1 sync call, got %d", syncer.calls)
	}
}

func TestWorker_ProcessTask_BusinessErrorIsAckedNotRetried(t *testing.T) {
	syncer := &mockSyncer{
		syncVideoFn: func(ctx context.Context, id string) (*model.VideoRecord, error) {
			return &model.VideoRecord{ID: id, Status: model.VideoError, Error: "boom"}, nil
		},
	}
	w := New(syncer, Config{MaxRetries: 3}, nil)

	if err := w.ProcessTask(context.Background(), repository.UploadTask{VideoID: "v1"}); err != nil {
		t.Fatalf("expected business failures to be acked (nil error), got %v", err)
	}
}

func TestWorker_ProcessTask_InfrastructureErrorPropagatesForRetry(t *testing.T) {
	syncer := &mockSyncer{
		syncVideoFn: func(ctx context.Context, id string) (*model.VideoRecord, error) {
			return nil, errors.New("state store unavailable")
		},
	}
	w := New(syncer, Config{MaxRetries: 3}, nil)

	if err := w.ProcessTask(context.Background(), repository.UploadTask{VideoID: "v1"}); err == nil {
		t.Fatal("expected infrastructure error to propagate")
	}
}

func TestWorker_ProcessTask_ExceededRetriesSkipsSyncEntirely(t *testing.T) {
	syncer := &mockSyncer{}
	w := New(syncer, Config{MaxRetries: 3}, nil)

	if err := w.ProcessTask(context.Background(), repository.UploadTask{VideoID: "v1", RetryCount: 3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if syncer.calls != 0 {
		t.Fatalf("expected no sync call once retries exhausted, got %d", syncer.calls)
	}
}
