// Package reconciler implements C10: periodic reconciliation between the
// object store's actual contents and the C5 video tracker's view of it,
// per §4.10. A single in-memory inventory is cached for 5 minutes and
// guarded by a busy flag so at most one scan runs at a time — there is no
// caller waiting on the in-flight scan's result, only exclusion, so a plain
// atomic flag is used rather than singleflight.Group.
package reconciler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelhq/scrapegate/internal/domain/model"
	"github.com/kestrelhq/scrapegate/internal/domain/repository"
	"github.com/kestrelhq/scrapegate/internal/infrastructure/audit"
	"github.com/kestrelhq/scrapegate/internal/infrastructure/metrics"
	"github.com/kestrelhq/scrapegate/internal/service/videotracker"
)

const (
	inventoryTTL     = 5 * time.Minute
	listPageMaxKeys  = 1000
	videoURLMetaKey  = "x-video-url"
	sourceURLMetaKey = "x-source-url"
)

// Reconciler holds the cached inventory and orchestrates scan/reconcile.
type Reconciler struct {
	store     repository.ObjectStorage
	tracker   *videotracker.Tracker
	auditSink *audit.Store // may be nil

	mu        sync.Mutex
	inventory map[string]repository.ObjectInfo // key -> object metadata
	scannedAt time.Time

	scanning atomic.Bool
}

// New creates a Reconciler.
func New(store repository.ObjectStorage, tracker *videotracker.Tracker, auditSink *audit.Store) *Reconciler {
	return &Reconciler{store: store, tracker: tracker, auditSink: auditSink}
}

// ScanStorage walks the bucket with continuation-token pagination, fetching
// per-object metadata, and caches the result for 5 minutes. forceRefresh
// bypasses the cache. Concurrent scans are refused with ErrScanInProgress.
func (r *Reconciler) ScanStorage(ctx context.Context, forceRefresh bool) (map[string]repository.ObjectInfo, error) {
	r.mu.Lock()
	if !forceRefresh && !r.scannedAt.IsZero() && time.Since(r.scannedAt) < inventoryTTL {
		inv := r.inventory
		r.mu.Unlock()
		return inv, nil
	}
	r.mu.Unlock()

	if !r.scanning.CompareAndSwap(false, true) {
		return nil, repository.ErrScanInProgress
	}
	defer r.scanning.Store(false)

	inventory := make(map[string]repository.ObjectInfo)
	token := ""
	for {
		page, err := r.store.ListObjects(ctx, token, "", listPageMaxKeys)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range page.Objects {
			meta, err := r.store.GetObjectMetadata(ctx, obj.Key)
			if err != nil {
				continue // tolerate a since-deleted object rather than failing the whole scan
			}
			inventory[obj.Key] = meta
		}
		if !page.IsTruncated {
			break
		}
		token = page.NextContinuation
	}

	r.mu.Lock()
	r.inventory = inventory
	r.scannedAt = time.Now()
	r.mu.Unlock()

	return inventory, nil
}

// Result is the five-way classification of §4.10's reconcile().
type Result struct {
	OrphanFiles []repository.ObjectInfo
	OutOfSync   []OutOfSyncEntry
	MissingInS3 []*model.VideoRecord
	Synced      []*model.VideoRecord
	Pending     []*model.VideoRecord
}

// OutOfSyncEntry pairs a tracker record with the storage object its
// x-video-url metadata matched, when their URLs disagree.
type OutOfSyncEntry struct {
	Video  *model.VideoRecord
	Object repository.ObjectInfo
}

// Reconcile classifies every storage object and tracker record per §4.10,
// writing one audit.ReconciliationRun row on completion.
func (r *Reconciler) Reconcile(ctx context.Context, forceRefresh bool) (Result, error) {
	startedAt := time.Now()

	inventory, err := r.ScanStorage(ctx, forceRefresh)
	if err != nil {
		return Result{}, err
	}
	listing, err := r.tracker.GetAll(ctx, videotracker.ListFilter{})
	if err != nil {
		return Result{}, fmt.Errorf("list videos: %w", err)
	}

	type matchedObject struct {
		key string
		obj repository.ObjectInfo
	}
	byVideoURL := make(map[string]matchedObject, len(inventory))
	for key, obj := range inventory {
		if url := obj.Metadata[videoURLMetaKey]; url != "" {
			byVideoURL[url] = matchedObject{key: key, obj: obj}
		}
	}

	var result Result
	matchedKeys := make(map[string]bool, len(inventory))
	for _, rec := range listing.Videos {
		switch rec.Status {
		case model.VideoPending:
			result.Pending = append(result.Pending, rec)
			continue
		case model.VideoSynced:
			match, ok := byVideoURL[rec.VideoURL]
			if !ok {
				key, err := r.store.ExtractKeyFromURL(rec.S3URL)
				if err != nil {
					result.MissingInS3 = append(result.MissingInS3, rec)
					continue
				}
				if _, present := inventory[key]; !present {
					result.MissingInS3 = append(result.MissingInS3, rec)
					continue
				}
				matchedKeys[key] = true
				result.Synced = append(result.Synced, rec)
				continue
			}
			matchedKeys[match.key] = true
			if r.store.GetPublicURL(match.key) != rec.S3URL {
				result.OutOfSync = append(result.OutOfSync, OutOfSyncEntry{Video: rec, Object: match.obj})
				continue
			}
			result.Synced = append(result.Synced, rec)
		}
	}

	for key, obj := range inventory {
		if matchedKeys[key] {
			continue
		}
		result.OrphanFiles = append(result.OrphanFiles, obj)
	}

	if r.auditSink != nil {
		_ = r.auditSink.RecordReconciliationRun(ctx, audit.ReconciliationRun{
			ID: uuid.NewString(), StartedAt: startedAt, CompletedAt: time.Now(),
			OrphanCount: len(result.OrphanFiles), OutOfSyncCount: len(result.OutOfSync),
			MissingCount: len(result.MissingInS3), SyncedCount: len(result.Synced),
			PendingCount: len(result.Pending), ForceRefresh: forceRefresh,
		})
	}
	metrics.ReconcileRunsTotal.Inc()

	return result, nil
}

// ImportOrphan creates a synced tracker record from an orphaned storage
// object's metadata and invalidates the cached inventory.
func (r *Reconciler) ImportOrphan(ctx context.Context, key string) (*model.VideoRecord, error) {
	meta, err := r.store.GetObjectMetadata(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get metadata for %s: %w", key, err)
	}
	videoURL := meta.Metadata[videoURLMetaKey]
	if videoURL == "" {
		videoURL = r.store.GetPublicURL(key)
	}
	sourceURL := meta.Metadata[sourceURLMetaKey]

	rec, err := r.tracker.ImportSynced(ctx, sourceURL, videoURL, r.store.GetPublicURL(key), meta.Size)
	if err != nil {
		return nil, err
	}
	r.invalidate()
	return rec, nil
}

// ImportOrphans bulk-imports keys, collecting per-key failures.
func (r *Reconciler) ImportOrphans(ctx context.Context, keys []string) map[string]error {
	failures := make(map[string]error)
	for _, key := range keys {
		if _, err := r.ImportOrphan(ctx, key); err != nil {
			failures[key] = err
		}
	}
	return failures
}

// DeleteOrphan removes an orphaned object from storage and invalidates the
// cached inventory.
func (r *Reconciler) DeleteOrphan(ctx context.Context, key string) error {
	if err := r.store.DeleteObject(ctx, key); err != nil {
		return fmt.Errorf("delete orphan %s: %w", key, err)
	}
	r.invalidate()
	return nil
}

// DeleteOrphans bulk-deletes keys, collecting per-key failures.
func (r *Reconciler) DeleteOrphans(ctx context.Context, keys []string) map[string]error {
	failures := make(map[string]error)
	for _, key := range keys {
		if err := r.DeleteOrphan(ctx, key); err != nil {
			failures[key] = err
		}
	}
	return failures
}

// FixMissingInS3 resets the given video ids back to pending so a future
// sync redownloads and re-uploads them, per §4.10.
func (r *Reconciler) FixMissingInS3(ctx context.Context, ids []string) map[string]error {
	failures := make(map[string]error)
	for _, id := range ids {
		if _, err := r.tracker.ResetForReupload(ctx, id, false); err != nil {
			failures[id] = err
		}
	}
	return failures
}

func (r *Reconciler) invalidate() {
	r.mu.Lock()
	r.scannedAt = time.Time{}
	r.mu.Unlock()
}
