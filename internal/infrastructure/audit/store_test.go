package audit

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
)

func TestStore_RecordScrapeRequest(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer mock.Close()

	rec := ScrapeRequestAudit{
		ID:        "req-1",
		URL:       "https://example.com",
		Status:    "done",
		CreatedAt: time.Now(),
	}

	mock.ExpectExec("INSERT INTO scrape_request_audit").
		WithArgs(rec.ID, rec.URL, rec.Status, pgxmock.AnyArg(), rec.CreatedAt, rec.CompletedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	s := NewStore(mock)
	if err := s.RecordScrapeRequest(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStore_RecordVideoSync(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer mock.Close()

	rec := VideoSyncAudit{
		VideoID:   "v1",
		SourceURL: "https://example.com/page",
		VideoURL:  "https://example.com/video.mp4",
		Status:    "synced",
		S3URL:     "https://cdn.example.com/v1.mp4",
		Timestamp: time.Now(),
	}

	mock.ExpectExec("INSERT INTO video_sync_audit").
		WithArgs(rec.VideoID, rec.SourceURL, rec.VideoURL, rec.Status, pgxmock.AnyArg(), rec.S3URL, rec.Timestamp).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	s := NewStore(mock)
	if err := s.RecordVideoSync(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStore_ListVideoSyncHistory(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer mock.Close()

	now := time.Now()
	rows := pgxmock.NewRows([]string{"video_id", "source_url", "video_url", "status", "error", "s3_url", "recorded_at"}).
		AddRow("v1", "https://example.com", "https://example.com/v.mp4", "synced", nil, "https://cdn/v1.mp4", now).
		AddRow("v1", "https://example.com", "https://example.com/v.mp4", "error", "timeout", nil, now.Add(-time.Hour))

	mock.ExpectQuery("SELECT (.+) FROM video_sync_audit").
		WithArgs("v1", 10).
		WillReturnRows(rows)

	s := NewStore(mock)
	history, err := s.ListVideoSyncHistory(context.Background(), "v1", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 records, got %d", len(history))
	}
	if history[1].Error != "timeout" {
		t.Fatalf("expected error field populated, got %+v", history[1])
	}
}

func TestStore_RecordReconciliationRun(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer mock.Close()

	run := ReconciliationRun{
		ID:          "run-1",
		StartedAt:   time.Now().Add(-time.Minute),
		CompletedAt: time.Now(),
		OrphanCount: 3,
		SyncedCount: 50,
	}

	mock.ExpectExec("INSERT INTO reconciliation_runs").
		WithArgs(run.ID, run.StartedAt, run.CompletedAt, run.OrphanCount, run.OutOfSyncCount,
			run.MissingCount, run.SyncedCount, run.PendingCount, run.ForceRefresh).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	s := NewStore(mock)
	if err := s.RecordReconciliationRun(context.Background(), run); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
