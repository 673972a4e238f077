package model

import "time"

// QueueState is the lifecycle state of a QueueItem (C7).
type QueueState string

const (
	QueuePending   QueueState = "pending"
	QueueActive    QueueState = "active"
	QueuePaused    QueueState = "paused"
	QueueCompleted QueueState = "completed"
	QueueFailed    QueueState = "failed"
	QueueCancelled QueueState = "cancelled"
)

// QueueItem is the transient projection the upload queue holds for a video
// (§3 QueueItem, ownership: C7 holds a projection keyed by videoId; C5
// remains authoritative for the video's own state).
type QueueItem struct {
	VideoID  string     `json:"video_id"`
	Priority int        `json:"priority"`
	State    QueueState `json:"state"`

	AddedAt     time.Time  `json:"added_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Progress float64 `json:"progress"`
	Speed    float64 `json:"speed,omitempty"`
	ETA      float64 `json:"eta,omitempty"`
	Error    string  `json:"error,omitempty"`

	DisplayFields map[string]string `json:"display_fields,omitempty"`

	// sequence breaks priority ties in favor of first-seen (FIFO).
	sequence uint64
}

func (q *QueueItem) Sequence() uint64     { return q.sequence }
func (q *QueueItem) SetSequence(n uint64) { q.sequence = n }

// IsTerminal reports whether the item has reached a final queue state.
func (q *QueueItem) IsTerminal() bool {
	switch q.State {
	case QueueCompleted, QueueFailed, QueueCancelled:
		return true
	default:
		return false
	}
}
