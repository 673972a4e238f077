package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX abstracts pgxpool.Pool and pgx.Tx for testability, matching the
// teacher's postgres.DBTX seam.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store archives the three audit tables the gateway's ambient stack carries
// alongside the transient C1 projections: a record of every scrape request
// terminal outcome, every video sync transition, and every reconciliation
// run.
type Store struct {
	db DBTX
}

// NewStore wraps db (typically a Client's pool, or a pgxmock conn in tests).
func NewStore(db DBTX) *Store {
	return &Store{db: db}
}

// ScrapeRequestAudit is one archived terminal ScrapeRequest (C4).
type ScrapeRequestAudit struct {
	ID          string
	URL         string
	Status      string
	Error       string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// RecordScrapeRequest archives a terminal scrape request, called by the
// urltracker on delete/archive (§4.4's history-on-delete behavior).
func (s *Store) RecordScrapeRequest(ctx context.Context, rec ScrapeRequestAudit) error {
	const query = `
		INSERT INTO scrape_request_audit (id, url, status, error, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET status = $3, error = $4, completed_at = $6
	`
	_, err := s.db.Exec(ctx, query, rec.ID, rec.URL, rec.Status, nullString(rec.Error), rec.CreatedAt, rec.CompletedAt)
	if err != nil {
		return fmt.Errorf("record scrape request audit: %w", err)
	}
	return nil
}

// VideoSyncAudit is one archived sync/upload attempt (C5).
type VideoSyncAudit struct {
	VideoID   string
	SourceURL string
	VideoURL  string
	Status    string
	Error     string
	S3URL     string
	Timestamp time.Time
}

// RecordVideoSync archives a video's status transition, called by
// videotracker on every terminal SyncVideo/ReuploadVideo outcome.
func (s *Store) RecordVideoSync(ctx context.Context, rec VideoSyncAudit) error {
	const query = `
		INSERT INTO video_sync_audit (video_id, source_url, video_url, status, error, s3_url, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.Exec(ctx, query,
		rec.VideoID, nullString(rec.SourceURL), rec.VideoURL, rec.Status,
		nullString(rec.Error), nullString(rec.S3URL), rec.Timestamp)
	if err != nil {
		return fmt.Errorf("record video sync audit: %w", err)
	}
	return nil
}

// ListVideoSyncHistory returns the archived sync attempts for one video,
// most recent first, for the admin video-detail view.
func (s *Store) ListVideoSyncHistory(ctx context.Context, videoID string, limit int) ([]VideoSyncAudit, error) {
	const query = `
		SELECT video_id, source_url, video_url, status, error, s3_url, recorded_at
		FROM video_sync_audit
		WHERE video_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2
	`
	rows, err := s.db.Query(ctx, query, videoID, limit)
	if err != nil {
		return nil, fmt.Errorf("query video sync history: %w", err)
	}
	defer rows.Close()

	var out []VideoSyncAudit
	for rows.Next() {
		var rec VideoSyncAudit
		var sourceURL, errMsg, s3URL *string
		if err := rows.Scan(&rec.VideoID, &sourceURL, &rec.VideoURL, &rec.Status, &errMsg, &s3URL, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan video sync audit row: %w", err)
		}
		if sourceURL != nil {
			rec.SourceURL = *sourceURL
		}
		if errMsg != nil {
			rec.Error = *errMsg
		}
		if s3URL != nil {
			rec.S3URL = *s3URL
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate video sync audit rows: %w", err)
	}
	return out, nil
}

// ReconciliationRun is one archived C10 Reconcile() invocation.
type ReconciliationRun struct {
	ID             string
	StartedAt      time.Time
	CompletedAt    time.Time
	OrphanCount    int
	OutOfSyncCount int
	MissingCount   int
	SyncedCount    int
	PendingCount   int
	ForceRefresh   bool
}

// RecordReconciliationRun archives one C10 run, as required by §13's "every
// Reconcile call writes one reconciliation_runs row".
func (s *Store) RecordReconciliationRun(ctx context.Context, run ReconciliationRun) error {
	const query = `
		INSERT INTO reconciliation_runs
			(id, started_at, completed_at, orphan_count, out_of_sync_count, missing_count, synced_count, pending_count, force_refresh)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.Exec(ctx, query,
		run.ID, run.StartedAt, run.CompletedAt, run.OrphanCount, run.OutOfSyncCount,
		run.MissingCount, run.SyncedCount, run.PendingCount, run.ForceRefresh)
	if err != nil {
		return fmt.Errorf("record reconciliation run: %w", err)
	}
	return nil
}

// ListReconciliationRuns returns the most recent runs, newest first, for the
// admin storage dashboard.
func (s *Store) ListReconciliationRuns(ctx context.Context, limit int) ([]ReconciliationRun, error) {
	const query = `
		SELECT id, started_at, completed_at, orphan_count, out_of_sync_count, missing_count, synced_count, pending_count, force_refresh
		FROM reconciliation_runs
		ORDER BY started_at DESC
		LIMIT $1
	`
	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query reconciliation runs: %w", err)
	}
	defer rows.Close()

	var out []ReconciliationRun
	for rows.Next() {
		var run ReconciliationRun
		if err := rows.Scan(&run.ID, &run.StartedAt, &run.CompletedAt, &run.OrphanCount,
			&run.OutOfSyncCount, &run.MissingCount, &run.SyncedCount, &run.PendingCount, &run.ForceRefresh); err != nil {
			return nil, fmt.Errorf("scan reconciliation run row: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reconciliation run rows: %w", err)
	}
	return out, nil
}
