package model

import (
	"errors"
	"time"
)

// VideoStatus is the processing state of a VideoRecord (C5).
type VideoStatus string

const (
	VideoPending   VideoStatus = "pending"
	VideoUploading VideoStatus = "uploading"
	VideoSynced    VideoStatus = "synced"
	VideoError     VideoStatus = "error"
)

// Valid status transitions:
//
//	pending   -> uploading
//	uploading -> synced | error | pending (stuck reset)
//	synced    -> pending (reupload)
//	error     -> pending (retry)
var videoTransitions = map[VideoStatus][]VideoStatus{
	VideoPending:   {VideoUploading},
	VideoUploading: {VideoSynced, VideoError, VideoPending},
	VideoSynced:    {VideoPending},
	VideoError:     {VideoPending},
}

func (s VideoStatus) IsValid() bool {
	_, ok := videoTransitions[s]
	return ok
}

func (s VideoStatus) CanTransitionTo(next VideoStatus) bool {
	allowed, ok := videoTransitions[s]
	if !ok {
		return false
	}
	for _, st := range allowed {
		if st == next {
			return true
		}
	}
	return false
}

var (
	ErrInvalidVideoTransition = errors.New("invalid video status transition")
	ErrEmptyVideoURL          = errors.New("video URL cannot be empty")
)

// VideoSource describes one candidate media source discovered while
// scraping the page (§3 VideoRecord.videoSources).
type VideoSource struct {
	URL      string `json:"url"`
	IsHLS    bool   `json:"is_hls"`
	MimeType string `json:"mime_type,omitempty"`
}

// FailedAttempt records one failed download/upload attempt (§3 VideoRecord.failedAttempts).
type FailedAttempt struct {
	SourceIndex int       `json:"source_index"`
	Attempt     int       `json:"attempt"`
	URL         string    `json:"url"`
	Error       string    `json:"error"`
	Timestamp   time.Time `json:"timestamp"`
}

// VideoRecord is the persistent per-asset record tracked by C5.
type VideoRecord struct {
	ID              string        `json:"id"`
	SourceURL       string        `json:"source_url"`
	VideoURL        string        `json:"video_url"`
	VideoSources    []VideoSource `json:"video_sources,omitempty"`
	PrimaryVideoURL string        `json:"primary_video_url"`

	Status VideoStatus `json:"status"`

	S3URL string `json:"s3_url,omitempty"`

	DownloadPath        string     `json:"download_path,omitempty"`
	DownloadSize        int64      `json:"download_size,omitempty"`
	DownloadContentType string     `json:"download_content_type,omitempty"`
	DownloadedAt        *time.Time `json:"downloaded_at,omitempty"`

	SyncedAt      *time.Time `json:"synced_at,omitempty"`
	UploadingAt   *time.Time `json:"uploading_at,omitempty"`
	Error         string     `json:"error,omitempty"`
	IsProtected   bool       `json:"is_protected"`
	SkippedUpload bool       `json:"skipped_upload"`
	AutoImported  bool       `json:"auto_imported"`
	ForceReupload bool       `json:"force_reupload"`

	RetryCount            int             `json:"retry_count"`
	FailedAttempts        []FailedAttempt `json:"failed_attempts,omitempty"`
	DownloadedSourceIndex *int            `json:"downloaded_source_index,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewVideoRecord creates a pending record for sourceURL/videoURL.
func NewVideoRecord(id, sourceURL, videoURL string) (*VideoRecord, error) {
	if videoURL == "" {
		return nil, ErrEmptyVideoURL
	}
	return &VideoRecord{
		ID:              id,
		SourceURL:       sourceURL,
		VideoURL:        videoURL,
		PrimaryVideoURL: videoURL,
		Status:          VideoPending,
		CreatedAt:       time.Now(),
	}, nil
}

// TransitionTo attempts to change the video status, enforcing the state
// machine invariants of §3.
func (v *VideoRecord) TransitionTo(next VideoStatus) error {
	if !next.IsValid() {
		return ErrInvalidVideoTransition
	}
	if !v.Status.CanTransitionTo(next) {
		return ErrInvalidVideoTransition
	}
	v.Status = next
	return nil
}

// BeginUpload marks the record uploading, satisfying the invariant
// status=uploading ⇒ uploadingAt≠∅.
func (v *VideoRecord) BeginUpload() error {
	if err := v.TransitionTo(VideoUploading); err != nil {
		return err
	}
	now := time.Now()
	v.UploadingAt = &now
	return nil
}

// MarkSynced marks the record synced, satisfying the invariant
// status=synced ⇒ s3Url≠∅ ∧ syncedAt≠∅.
func (v *VideoRecord) MarkSynced(s3URL string) error {
	if err := v.TransitionTo(VideoSynced); err != nil {
		return err
	}
	now := time.Now()
	v.S3URL = s3URL
	v.SyncedAt = &now
	v.UploadingAt = nil
	v.Error = ""
	v.clearDownloadPointers()
	return nil
}

// MarkError transitions to error and clears any stale download pointers so
// that a retry always redownloads rather than trusting a possibly-deleted
// temp file (spec.md §9 open question, resolved: yes).
func (v *VideoRecord) MarkError(errMsg string, protected bool) error {
	if err := v.TransitionTo(VideoError); err != nil {
		return err
	}
	v.Error = errMsg
	v.IsProtected = protected
	v.UploadingAt = nil
	v.clearDownloadPointers()
	return nil
}

// ResetStuck resets an uploading record back to pending, e.g. after a
// worker crash (§4.5 "Stuck reset").
func (v *VideoRecord) ResetStuck(reason string) error {
	if err := v.TransitionTo(VideoPending); err != nil {
		return err
	}
	v.Error = reason
	v.UploadingAt = nil
	v.clearDownloadPointers()
	return nil
}

// ResetForReupload resets a synced/error/stuck record back to pending so
// that Sync can run again (§4.5 "Reupload").
func (v *VideoRecord) ResetForReupload(force bool) error {
	switch v.Status {
	case VideoSynced, VideoError, VideoUploading:
	default:
		return ErrInvalidVideoTransition
	}
	v.Status = VideoPending
	v.ForceReupload = force
	v.SkippedUpload = false
	v.Error = ""
	v.UploadingAt = nil
	v.clearDownloadPointers()
	return nil
}

func (v *VideoRecord) clearDownloadPointers() {
	v.DownloadPath = ""
	v.DownloadSize = 0
	v.DownloadContentType = ""
	v.DownloadedAt = nil
}

// RecordFailedAttempt appends an entry to failedAttempts and bumps
// retryCount.
func (v *VideoRecord) RecordFailedAttempt(sourceIndex int, url, errMsg string) {
	v.RetryCount++
	v.FailedAttempts = append(v.FailedAttempts, FailedAttempt{
		SourceIndex: sourceIndex,
		Attempt:     v.RetryCount,
		URL:         url,
		Error:       errMsg,
		Timestamp:   time.Now(),
	})
}

// IsStuck reports whether the record has been uploading longer than
// threshold.
func (v *VideoRecord) IsStuck(threshold time.Duration) bool {
	if v.Status != VideoUploading || v.UploadingAt == nil {
		return false
	}
	return time.Since(*v.UploadingAt) > threshold
}
