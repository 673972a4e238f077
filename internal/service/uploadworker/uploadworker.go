// Package uploadworker implements C8's task-handling glue: it is the
// function cmd/worker hands to the RabbitMQ consumer loop, wrapping C5's
// SyncVideo with the queue-level max-retries gate described in §4.7/§4.8,
// mirroring the teacher's cmd/worker "process one transcode task" shape.
package uploadworker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kestrelhq/scrapegate/internal/domain/model"
	"github.com/kestrelhq/scrapegate/internal/domain/repository"
)

// VideoSyncer is the subset of videotracker.Tracker this worker depends on,
// kept narrow so tests don't need the full tracker wiring. *videotracker.Tracker
// satisfies this directly.
type VideoSyncer interface {
	SyncVideo(ctx context.Context, id string) (*model.VideoRecord, error)
}

// Config bundles the worker's tunables.
type Config struct {
	MaxRetries int
}

// Worker dispatches RabbitMQ-delivered UploadTasks to the video tracker.
type Worker struct {
	syncer VideoSyncer
	cfg    Config
	logger *slog.Logger
}

// New creates a Worker. logger may be nil.
func New(syncer VideoSyncer, cfg Config, logger *slog.Logger) *Worker {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Worker{syncer: syncer, cfg: cfg, logger: logger}
}

// ProcessTask handles one delivered repository.UploadTask: if the task has
// already exceeded the retry budget, it is logged and acked (returning nil)
// rather than retried again — SyncVideo already left the video record in
// `error` on the prior attempt, which is an acceptable terminal state here.
// Otherwise it invokes SyncVideo and, on failure, returns the error so the
// RabbitMQ transport's republish-with-incremented-retry-count logic kicks
// in (grounded on the teacher's transcodeService.ProcessTask retry gate).
func (w *Worker) ProcessTask(ctx context.Context, task repository.UploadTask) error {
	if task.RetryCount >= w.cfg.MaxRetries {
		w.logf(slog.LevelWarn, "upload task exceeded max retries, not retrying further",
			"video_id", task.VideoID, "retry_count", task.RetryCount, "max_retries", w.cfg.MaxRetries)
		return nil
	}

	w.logf(slog.LevelInfo, "processing upload task",
		"video_id", task.VideoID, "retry_count", task.RetryCount, "priority", task.Priority)

	rec, err := w.syncer.SyncVideo(ctx, task.VideoID)
	if err != nil {
		w.logf(slog.LevelError, "sync video failed",
			"video_id", task.VideoID, "retry_count", task.RetryCount, "error", err)
		return fmt.Errorf("sync video %s: %w", task.VideoID, err)
	}

	if rec.Status == model.VideoError {
		w.logf(slog.LevelWarn, "upload task finished with video in error state",
			"video_id", task.VideoID, "error", rec.Error, "protected", rec.IsProtected)
		return nil
	}

	w.logf(slog.LevelInfo, "upload task completed", "video_id", task.VideoID, "status", rec.Status)
	return nil
}

func (w *Worker) logf(level slog.Level, msg string, args ...any) {
	if w.logger == nil {
		return
	}
	w.logger.Log(context.Background(), level, msg, args...)
}
