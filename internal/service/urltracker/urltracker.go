// Package urltracker implements C4: the persisted record of every scrape
// request, its lifecycle, and admin-facing listing/filtering. Records live
// in the C1 state store's "urls" hash, one JSON blob per id, following the
// same hash-of-JSON-blobs shape the teacher uses for its video repository
// but over repository.StateStore instead of Postgres.
package urltracker

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelhq/scrapegate/internal/domain/model"
	"github.com/kestrelhq/scrapegate/internal/domain/repository"
	"github.com/kestrelhq/scrapegate/internal/infrastructure/audit"
)

const hashName = "urls"

// Tracker implements the C4 operation set over repository.StateStore.
type Tracker struct {
	store     repository.StateStore
	auditSink *audit.Store // nil disables archive-on-delete
}

// New creates a Tracker. auditSink may be nil, in which case deleted
// records are simply dropped without being archived.
func New(store repository.StateStore, auditSink *audit.Store) *Tracker {
	return &Tracker{store: store, auditSink: auditSink}
}

// Create enqueues a new waiting ScrapeRequest for url.
func (t *Tracker) Create(ctx context.Context, url string) (*model.ScrapeRequest, error) {
	req := model.NewScrapeRequest(uuid.NewString(), url)
	if err := t.save(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// GetByID returns the request with id, or repository.ErrNotFound.
func (t *Tracker) GetByID(ctx context.Context, id string) (*model.ScrapeRequest, error) {
	raw, ok, err := t.store.HGet(ctx, hashName, id)
	if err != nil {
		return nil, fmt.Errorf("get scrape request %s: %w", id, err)
	}
	if !ok {
		return nil, repository.ErrNotFound
	}
	var req model.ScrapeRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return nil, fmt.Errorf("unmarshal scrape request %s: %w", id, err)
	}
	return &req, nil
}

// Start transitions id to processing.
func (t *Tracker) Start(ctx context.Context, id string) (*model.ScrapeRequest, error) {
	return t.mutate(ctx, id, func(r *model.ScrapeRequest) error { return r.Start() })
}

// Complete transitions id to done with result.
func (t *Tracker) Complete(ctx context.Context, id string, result *model.ScrapeResult) (*model.ScrapeRequest, error) {
	return t.mutate(ctx, id, func(r *model.ScrapeRequest) error { return r.Complete(result) })
}

// Fail transitions id to error with errMsg.
func (t *Tracker) Fail(ctx context.Context, id, errMsg string) (*model.ScrapeRequest, error) {
	return t.mutate(ctx, id, func(r *model.ScrapeRequest) error { return r.Fail(errMsg) })
}

// Cancel transitions id to cancelled; only valid from waiting/processing.
func (t *Tracker) Cancel(ctx context.Context, id string) (*model.ScrapeRequest, error) {
	return t.mutate(ctx, id, func(r *model.ScrapeRequest) error { return r.Cancel() })
}

func (t *Tracker) mutate(ctx context.Context, id string, fn func(*model.ScrapeRequest) error) (*model.ScrapeRequest, error) {
	req, err := t.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(req); err != nil {
		return nil, err
	}
	if err := t.save(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// Delete removes id from the live hash, archiving it to the audit store
// first if the record reached a terminal state and an audit sink is wired.
func (t *Tracker) Delete(ctx context.Context, id string) error {
	req, err := t.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if t.auditSink != nil && req.IsTerminal() {
		rec := audit.ScrapeRequestAudit{
			ID: req.ID, URL: req.URL, Status: string(req.Status),
			Error: req.Error, CreatedAt: req.CreatedAt, CompletedAt: req.CompletedAt,
		}
		if err := t.auditSink.RecordScrapeRequest(ctx, rec); err != nil {
			return fmt.Errorf("archive scrape request %s: %w", id, err)
		}
	}
	if err := t.store.HDel(ctx, hashName, id); err != nil {
		return fmt.Errorf("delete scrape request %s: %w", id, err)
	}
	return nil
}

// Rescrape re-enters a terminal request as a fresh waiting request for the
// same URL, without mutating the original record.
func (t *Tracker) Rescrape(ctx context.Context, id string) (*model.ScrapeRequest, error) {
	existing, err := t.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return t.Create(ctx, existing.URL)
}

func (t *Tracker) save(ctx context.Context, req *model.ScrapeRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal scrape request %s: %w", req.ID, err)
	}
	if err := t.store.HSet(ctx, hashName, req.ID, string(body)); err != nil {
		return fmt.Errorf("save scrape request %s: %w", req.ID, err)
	}
	return nil
}

// ListFilter selects and orders List results.
type ListFilter struct {
	Status   model.ScrapeStatus // zero value = any status
	Search   string             // substring match over URL, case-insensitive
	From, To time.Time          // zero value = unbounded
	SortDesc bool               // true = newest first (default)
	Offset   int
	Limit    int // 0 = unbounded
}

// ListResult is one page of List, with the filtered total for pagination.
type ListResult struct {
	Requests []*model.ScrapeRequest
	Total    int
}

// List returns requests matching filter, sorted by CreatedAt and paginated.
func (t *Tracker) List(ctx context.Context, filter ListFilter) (ListResult, error) {
	all, err := t.store.HGetAll(ctx, hashName)
	if err != nil {
		return ListResult{}, fmt.Errorf("list scrape requests: %w", err)
	}

	matched := make([]*model.ScrapeRequest, 0, len(all))
	for id, raw := range all {
		var req model.ScrapeRequest
		if err := json.Unmarshal([]byte(raw), &req); err != nil {
			continue // tolerate a corrupt record rather than failing the whole listing
		}
		req.ID = id
		if matchesFilter(&req, filter) {
			matched = append(matched, &req)
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

	return ListResult{Requests: matched[start:end], Total: total}, nil
}

func matchesFilter(req *model.ScrapeRequest, filter ListFilter) bool {
	if filter.Status != "" && req.Status != filter.Status {
		return false
	}
	if filter.Search != "" && !strings.Contains(strings.ToLower(req.URL), strings.ToLower(filter.Search)) {
		return false
	}
	if !filter.From.IsZero() && req.CreatedAt.Before(filter.From) {
		return false
	}
	if !filter.To.IsZero() && req.CreatedAt.After(filter.To) {
		return false
	}
	return true
}
