package repository

import "context"

// UploadTask is the message handed from the gateway's C7 admission loop to
// one or more scaled-out C8 worker processes over RabbitMQ (adapted from the
// teacher's TranscodeTask transport).
type UploadTask struct {
	VideoID    string `json:"video_id"`
	Priority   int    `json:"priority"`
	RetryCount int    `json:"retry_count"`
}

// UploadTaskQueue abstracts the message-queue transport between the
// gateway's queue admission loop and the worker pool.
type UploadTaskQueue interface {
	PublishUploadTask(ctx context.Context, task UploadTask) error
	ConsumeUploadTasks(ctx context.Context, handler func(task UploadTask) error) error
	Close() error
}
