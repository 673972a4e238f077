package urltracker

import (
	"context"
	"testing"
	"time"

	"github.com/kestrelhq/scrapegate/internal/domain/model"
	"github.com/kestrelhq/scrapegate/internal/domain/repository"
	"github.com/kestrelhq/scrapegate/internal/infrastructure/statestore"
)

func newTestTracker() *Tracker {
	return New(statestore.NewMemory(), nil)
}

func TestTracker_CreateAndGetByID(t *testing.T) {
	tr := newTestTracker()
	req, err := tr.Create(context.Background(), "https://example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Status != model.ScrapeWaiting {
		t.Fatalf("expected waiting status, got %v", req.Status)
	}

	got, err := tr.GetByID(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.URL != "https://example.com" {
		t.Fatalf("unexpected URL: %q", got.URL)
	}
}

func TestTracker_GetByID_NotFound(t *testing.T) {
	tr := newTestTracker()
	_, err := tr.GetByID(context.Background(), "missing")
	if err != repository.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTracker_LifecycleTransitions(t *testing.T) {
	tr := newTestTracker()
	req, _ := tr.Create(context.Background(), "https://example.com")

	if _, err := tr.Start(context.Background(), req.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	done, err := tr.Complete(context.Background(), req.ID, &model.ScrapeResult{Title: "Example"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if done.Status != model.ScrapeDone {
		t.Fatalf("expected done status, got %v", done.Status)
	}
}

func TestTracker_CancelOnlyFromWaitingOrProcessing(t *testing.T) {
	tr := newTestTracker()
	req, _ := tr.Create(context.Background(), "https://example.com")
	tr.Start(context.Background(), req.ID)
	tr.Complete(context.Background(), req.ID, &model.ScrapeResult{})

	if _, err := tr.Cancel(context.Background(), req.ID); err == nil {
		t.Fatal("expected cancel on a done request to fail")
	}
}

func TestTracker_DeleteRemovesRecord(t *testing.T) {
	tr := newTestTracker()
	req, _ := tr.Create(context.Background(), "https://example.com")

	if err := tr.Delete(context.Background(), req.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := tr.GetByID(context.Background(), req.ID); err != repository.ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestTracker_List_FiltersByStatusSearchAndDateRange(t *testing.T) {
	tr := newTestTracker()
	a, _ := tr.Create(context.Background(), "https://alpha.example.com")
	b, _ := tr.Create(context.Background(), "https://beta.example.com")
	tr.Start(context.Background(), b.ID)

	result, err := tr.List(context.Background(), ListFilter{Status: model.ScrapeWaiting})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Total != 1 || result.Requests[0].ID != a.ID {
		t.Fatalf("expected only %s to match waiting filter, got %+v", a.ID, result.Requests)
	}

	searchResult, err := tr.List(context.Background(), ListFilter{Search: "beta"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if searchResult.Total != 1 || searchResult.Requests[0].ID != b.ID {
		t.Fatalf("expected only %s to match beta search, got %+v", b.ID, searchResult.Requests)
	}

	futureResult, err := tr.List(context.Background(), ListFilter{From: time.Now().Add(time.Hour)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if futureResult.Total != 0 {
		t.Fatalf("expected no requests created after now+1h, got %d", futureResult.Total)
	}
}

func TestTracker_List_Pagination(t *testing.T) {
	tr := newTestTracker()
	for i := 0; i < 5; i++ {
		tr.Create(context.Background(), "https://example.com/page")
	}

	page, err := tr.List(context.Background(), ListFilter{Offset: 2, Limit: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 5 || len(page.Requests) != 2 {
		t.Fatalf("expected total=5 len=2, got total=%d len=%d", page.Total, len(page.Requests))
	}
}

func TestTracker_Rescrape_CreatesFreshWaitingRequest(t *testing.T) {
	tr := newTestTracker()
	orig, _ := tr.Create(context.Background(), "https://example.com")
	tr.Start(context.Background(), orig.ID)
	tr.Fail(context.Background(), orig.ID, "boom")

	fresh, err := tr.Rescrape(context.Background(), orig.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fresh.ID == orig.ID || fresh.Status != model.ScrapeWaiting || fresh.URL != orig.URL {
		t.Fatalf("unexpected rescrape result: %+v", fresh)
	}
}
