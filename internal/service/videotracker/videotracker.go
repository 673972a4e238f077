// Package videotracker implements C5: the persisted record of every media
// asset discovered while scraping, its sync lifecycle against the object
// store, and the admin-facing CRUD/listing surface. Records live in the C1
// state store's "videos" hash, following the same hash-of-JSON-blobs shape
// urltracker uses over repository.StateStore.
package videotracker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/kestrelhq/scrapegate/internal/domain/model"
	"github.com/kestrelhq/scrapegate/internal/domain/repository"
	"github.com/kestrelhq/scrapegate/internal/infrastructure/audit"
)

const hashName = "videos"

// Config bundles the tunables §4.5's algorithms depend on.
type Config struct {
	MaxRetries     int           // retryAllFailed skip threshold
	StuckThreshold time.Duration // resetStuckUploads(timeoutMinutes) default
}

// DefaultConfig matches the teacher-adjacent WORKER_MAX_RETRIES=3 /
// WORKER_STUCK_UPLOAD_MINUTES=30 environment defaults.
func DefaultConfig() Config {
	return Config{MaxRetries: 3, StuckThreshold: 30 * time.Minute}
}

// Tracker implements the C5 operation set over repository.StateStore, C9's
// ObjectStorage, and C8's MediaDownloader.
type Tracker struct {
	store       repository.StateStore
	objectStore repository.ObjectStorage
	downloader  repository.MediaDownloader
	events      repository.EventPublisher // may be nil
	auditSink   *audit.Store              // may be nil
	cfg         Config
	addSF       singleflight.Group // keyed on normalized video URL, for AddVideo's dedup
}

// New creates a Tracker. events and auditSink may be nil to disable
// lifecycle broadcast / attempt-history archival respectively.
func New(
	store repository.StateStore,
	objectStore repository.ObjectStorage,
	downloader repository.MediaDownloader,
	events repository.EventPublisher,
	auditSink *audit.Store,
	cfg Config,
) *Tracker {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.StuckThreshold <= 0 {
		cfg.StuckThreshold = 30 * time.Minute
	}
	return &Tracker{
		store:       store,
		objectStore: objectStore,
		downloader:  downloader,
		events:      events,
		auditSink:   auditSink,
		cfg:         cfg,
	}
}

// AddVideo implements §4.5 "Add with dedup": a record with the same
// normalized video URL is returned as-is; otherwise a HEAD against the
// object store either auto-imports an already-uploaded asset or creates a
// fresh pending record.
func (t *Tracker) AddVideo(ctx context.Context, sourceURL, videoURL string) (*model.VideoRecord, error) {
	// The scan-then-create below is not atomic against the state store, so
	// two concurrent callers for the same normalized URL must be serialized
	// here; otherwise both miss the not-yet-saved record and create two.
	v, err, _ := t.addSF.Do(normalizeURL(videoURL), func() (any, error) {
		if existing, ok, err := t.findByVideoURL(ctx, videoURL); err != nil {
			return nil, err
		} else if ok {
			return existing, nil
		}

		rec, err := model.NewVideoRecord(uuid.NewString(), sourceURL, videoURL)
		if err != nil {
			return nil, err
		}

		key := t.objectStore.StorageKey(videoURL)
		exists, err := t.objectStore.CheckObjectExists(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("check object exists for %s: %w", videoURL, err)
		}
		if exists.Exists {
			if err := rec.MarkSynced(t.objectStore.GetPublicURL(key)); err != nil {
				return nil, err
			}
			rec.AutoImported = true
			rec.DownloadSize = exists.Size
		}

		if err := t.save(ctx, rec); err != nil {
			return nil, err
		}
		return rec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.VideoRecord), nil
}

// ImportSynced creates a new record directly in the synced state, for the
// C10 reconciler's importOrphan(key): a storage object already exists with
// no tracker record pointing at it, so no HEAD/dedup round-trip is needed.
func (t *Tracker) ImportSynced(ctx context.Context, sourceURL, videoURL, s3URL string, size int64) (*model.VideoRecord, error) {
	rec, err := model.NewVideoRecord(uuid.NewString(), sourceURL, videoURL)
	if err != nil {
		return nil, err
	}
	if err := rec.MarkSynced(s3URL); err != nil {
		return nil, err
	}
	rec.AutoImported = true
	rec.DownloadSize = size
	if err := t.save(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// GetByID returns the record with id, or repository.ErrNotFound.
func (t *Tracker) GetByID(ctx context.Context, id string) (*model.VideoRecord, error) {
	raw, ok, err := t.store.HGet(ctx, hashName, id)
	if err != nil {
		return nil, fmt.Errorf("get video %s: %w", id, err)
	}
	if !ok {
		return nil, repository.ErrNotFound
	}
	var rec model.VideoRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal video %s: %w", id, err)
	}
	return &rec, nil
}

// GetByVideoURL returns the record whose videoUrl matches url once both
// sides are normalized (query string stripped), or repository.ErrNotFound.
func (t *Tracker) GetByVideoURL(ctx context.Context, videoURL string) (*model.VideoRecord, error) {
	rec, ok, err := t.findByVideoURL(ctx, videoURL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, repository.ErrNotFound
	}
	return rec, nil
}

// GetBySourceURL returns every record scraped from sourceURL.
func (t *Tracker) GetBySourceURL(ctx context.Context, sourceURL string) ([]*model.VideoRecord, error) {
	all, err := t.all(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*model.VideoRecord, 0)
	for _, rec := range all {
		if rec.SourceURL == sourceURL {
			out = append(out, rec)
		}
	}
	return out, nil
}

// ListFilter selects and orders GetAll results.
type ListFilter struct {
	Status   model.VideoStatus // zero value = any status
	Search   string            // substring match over sourceUrl/videoUrl
	SortDesc bool              // true = newest first (default)
	Offset   int
	Limit    int // 0 = unbounded
}

// ListResult is one page of GetAll, with the filtered total for pagination.
type ListResult struct {
	Videos []*model.VideoRecord
	Total  int
}

// GetAll returns records matching filter, sorted by CreatedAt and paginated.
func (t *Tracker) GetAll(ctx context.Context, filter ListFilter) (ListResult, error) {
	all, err := t.all(ctx)
	if err != nil {
		return ListResult{}, err
	}

	matched := make([]*model.VideoRecord, 0, len(all))
	for _, rec := range all {
		if matchesFilter(rec, filter) {
			matched = append(matched, rec)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if filter.SortDesc {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	total := len(matched)
	start := filter.Offset
	if start > total {
		start = total
	}
	end := total
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}
	return ListResult{Videos: matched[start:end], Total: total}, nil
}

func matchesFilter(rec *model.VideoRecord, filter ListFilter) bool {
	if filter.Status != "" && rec.Status != filter.Status {
		return false
	}
	if filter.Search != "" {
		needle := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(rec.SourceURL), needle) &&
			!strings.Contains(strings.ToLower(rec.VideoURL), needle) {
			return false
		}
	}
	return true
}

// UpdateVideo overwrites the mutable admin-editable fields of an existing
// record and persists it.
func (t *Tracker) UpdateVideo(ctx context.Context, id string, fn func(*model.VideoRecord) error) (*model.VideoRecord, error) {
	rec, err := t.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(rec); err != nil {
		return nil, err
	}
	if err := t.save(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// DeleteVideo removes id, optionally deleting the backing object first.
func (t *Tracker) DeleteVideo(ctx context.Context, id string, deleteFromStorage bool) error {
	rec, err := t.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if deleteFromStorage && rec.S3URL != "" {
		if key, err := t.objectStore.ExtractKeyFromURL(rec.S3URL); err == nil {
			if err := t.objectStore.DeleteObject(ctx, key); err != nil {
				return fmt.Errorf("delete object for video %s: %w", id, err)
			}
		}
	}
	if err := t.store.HDel(ctx, hashName, id); err != nil {
		return fmt.Errorf("delete video %s: %w", id, err)
	}
	return nil
}

// DeleteMany deletes every id in ids, collecting rather than stopping on the
// first failure, and returns the ids that failed along with their errors.
func (t *Tracker) DeleteMany(ctx context.Context, ids []string, deleteFromStorage bool) map[string]error {
	failures := make(map[string]error)
	for _, id := range ids {
		if err := t.DeleteVideo(ctx, id, deleteFromStorage); err != nil {
			failures[id] = err
		}
	}
	return failures
}

// DeleteBySourceURL deletes every record scraped from sourceURL.
func (t *Tracker) DeleteBySourceURL(ctx context.Context, sourceURL string, deleteFromStorage bool) (int, error) {
	recs, err := t.GetBySourceURL(ctx, sourceURL)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, rec := range recs {
		if err := t.DeleteVideo(ctx, rec.ID, deleteFromStorage); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

// Stats summarizes the video population by status, for the admin dashboard.
type Stats struct {
	Total     int
	Pending   int
	Uploading int
	Synced    int
	Error     int
	Protected int
}

// Stats computes the current §6.2 dashboard counts.
func (t *Tracker) Stats(ctx context.Context) (Stats, error) {
	all, err := t.all(ctx)
	if err != nil {
		return Stats{}, err
	}
	var s Stats
	s.Total = len(all)
	for _, rec := range all {
		switch rec.Status {
		case model.VideoPending:
			s.Pending++
		case model.VideoUploading:
			s.Uploading++
		case model.VideoSynced:
			s.Synced++
		case model.VideoError:
			s.Error++
		}
		if rec.IsProtected {
			s.Protected++
		}
	}
	return s, nil
}

func (t *Tracker) findByVideoURL(ctx context.Context, videoURL string) (*model.VideoRecord, bool, error) {
	all, err := t.all(ctx)
	if err != nil {
		return nil, false, err
	}
	normalized := normalizeURL(videoURL)
	for _, rec := range all {
		if normalizeURL(rec.VideoURL) == normalized {
			return rec, true, nil
		}
	}
	return nil, false, nil
}

func (t *Tracker) all(ctx context.Context) ([]*model.VideoRecord, error) {
	raw, err := t.store.HGetAll(ctx, hashName)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	out := make([]*model.VideoRecord, 0, len(raw))
	for id, body := range raw {
		var rec model.VideoRecord
		if err := json.Unmarshal([]byte(body), &rec); err != nil {
			continue // tolerate a corrupt record rather than failing the whole listing
		}
		rec.ID = id
		out = append(out, &rec)
	}
	return out, nil
}

func (t *Tracker) save(ctx context.Context, rec *model.VideoRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal video %s: %w", rec.ID, err)
	}
	if err := t.store.HSet(ctx, hashName, rec.ID, string(body)); err != nil {
		return fmt.Errorf("save video %s: %w", rec.ID, err)
	}
	return nil
}

func (t *Tracker) publish(ev repository.LifecycleEvent) {
	if t.events == nil {
		return
	}
	t.events.Publish(ev)
}

// normalizeURL strips the query string and fragment, the §4.5
// "query-stripped" equivalence contract for GetByVideoURL/dedup.
func normalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		if i := strings.IndexAny(raw, "?#"); i >= 0 {
			return raw[:i]
		}
		return raw
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
