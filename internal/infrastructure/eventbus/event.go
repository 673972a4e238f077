// Package eventbus implements C11: an in-process ring-buffered pub/sub bus
// for SSE subscribers (§4.11), plus a Redis fan-out layer so that
// cmd/worker, a separate OS process, can publish download/upload lifecycle
// events the gateway's /logs/stream endpoint and upload-queue projection
// both observe.
package eventbus

import "time"

// Category distinguishes level-based logs from download/upload/queue
// progress events, so the ring buffer can special-case high-rate progress
// events per §4.11 ("ring buffer... minus high-rate progress events").
type Category string

const (
	CategoryLog       Category = "log"
	CategoryDownload  Category = "download"
	CategoryUpload    Category = "upload"
	CategoryQueue     Category = "queue"
	CategoryHeartbeat Category = "heartbeat"
)

// Event kinds, carried in Event.Kind. Matches §4.8's "download:{start,
// progress,complete,error}" / "upload:{queued,start,progress,complete,
// error,paused,resumed,cancelled}" lifecycle vocabulary exactly.
const (
	KindDownloadStart    = "download:start"
	KindDownloadProgress = "download:progress"
	KindDownloadComplete = "download:complete"
	KindDownloadError    = "download:error"

	KindUploadQueued    = "upload:queued"
	KindUploadStart     = "upload:start"
	KindUploadProgress  = "upload:progress"
	KindUploadComplete  = "upload:complete"
	KindUploadError     = "upload:error"
	KindUploadPaused    = "upload:paused"
	KindUploadResumed   = "upload:resumed"
	KindUploadCancelled = "upload:cancelled"
)

// Event is one published item. VideoID/Data carry kind-specific payload;
// handlers are expected to type-switch on Kind.
type Event struct {
	Kind      string         `json:"kind"`
	Category  Category       `json:"category"`
	VideoID   string         `json:"video_id,omitempty"`
	Message   string         `json:"message,omitempty"`
	Level     string         `json:"level,omitempty"`
	Progress  float64        `json:"progress,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// isProgress reports whether this event is a high-rate progress event,
// excluded from the replay ring buffer per §4.11.
func (e Event) isProgress() bool {
	return e.Kind == KindDownloadProgress || e.Kind == KindUploadProgress
}
