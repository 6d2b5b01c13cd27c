package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ingestcore/m3uingest/internal/cachestore"
	"github.com/ingestcore/m3uingest/internal/classify"
	"github.com/ingestcore/m3uingest/internal/orchestrator"
	"github.com/ingestcore/m3uingest/internal/progress"
	"github.com/ingestcore/m3uingest/internal/queue"
)

// fakeService is a hand-rolled stand-in for *orchestrator.Orchestrator
// so handler tests don't need a real queue/cache on disk.
type fakeService struct {
	metas map[string]cachestore.Meta
	items map[string][]cachestore.Item

	parseResp orchestrator.ParseResponse
	parseErr  error
}

func (f *fakeService) Parse(ctx context.Context, url string, opts queue.Options) (orchestrator.ParseResponse, error) {
	return f.parseResp, f.parseErr
}

func (f *fakeService) Lookup(hash string) (cachestore.Meta, bool) {
	m, ok := f.metas[hash]
	return m, ok
}

func (f *fakeService) Status(ctx context.Context, jobID string) (queue.Job, error) {
	if jobID == "missing" {
		return queue.Job{Status: queue.NotFound}, nil
	}
	return queue.Job{JobID: jobID, Status: queue.StatusActive, Attempt: 1}, nil
}

func (f *fakeService) Progress(hash string) (progress.Snapshot, bool) {
	return progress.Snapshot{}, false
}

func (f *fakeService) Preview(hash string, limit int) ([]cachestore.Item, error) {
	return f.items[hash], nil
}

func (f *fakeService) Items(hash string, offset, limit int, group string, mediaKind classify.MediaKind) ([]cachestore.Item, error) {
	items := f.items[hash]
	if offset >= len(items) {
		return nil, nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end], nil
}

func (f *fakeService) Groups(hash string) ([]cachestore.Group, error) { return nil, nil }
func (f *fakeService) Series(hash string) ([]cachestore.SeriesAggregate, error) {
	return nil, nil
}
func (f *fakeService) SeriesEpisodes(hash, seriesID string) ([]cachestore.Item, error) {
	return nil, nil
}
func (f *fakeService) Search(hash, substr string, limit int) ([]cachestore.Item, error) {
	return nil, nil
}

func newTestHandler(f *fakeService) http.Handler {
	return New(f).Router()
}

func TestHandleParse_QueuesOnCacheMiss(t *testing.T) {
	f := &fakeService{
		metas: map[string]cachestore.Meta{},
		parseResp: orchestrator.ParseResponse{
			Hash: "abc", Queued: true, JobID: "job-1", QueuePosition: 2,
		},
	}
	h := newTestHandler(f)

	body, _ := json.Marshal(map[string]any{"url": "http://example.com/playlist.m3u"})
	req := httptest.NewRequest(http.MethodPost, "/api/playlist/parse", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["jobId"] != "job-1" {
		t.Errorf("jobId = %v, want job-1", resp["jobId"])
	}
}

func TestHandleParse_RejectsMalformedURL(t *testing.T) {
	f := &fakeService{metas: map[string]cachestore.Meta{}}
	h := newTestHandler(f)

	body, _ := json.Marshal(map[string]any{"url": "not-a-url"})
	req := httptest.NewRequest(http.MethodPost, "/api/playlist/parse", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleValidate_InvalidOnUnknownHash(t *testing.T) {
	f := &fakeService{metas: map[string]cachestore.Meta{}}
	h := newTestHandler(f)

	req := httptest.NewRequest(http.MethodGet, "/api/playlist/deadbeef/validate", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["valid"] != false {
		t.Errorf("valid = %v, want false", resp["valid"])
	}
}

func TestHandleItems_410OnExpiredCache(t *testing.T) {
	hash := "expiredhash"
	f := &fakeService{metas: map[string]cachestore.Meta{
		hash: {Hash: hash, ParsingStatus: cachestore.StatusCompleted, ExpiresAt: time.Now().Add(-time.Hour)},
	}}
	h := newTestHandler(f)

	req := httptest.NewRequest(http.MethodGet, "/api/playlist/items/"+hash, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusGone {
		t.Fatalf("status = %d, want 410", rec.Code)
	}
}

func TestHandleItems_PaginatesWithHasMore(t *testing.T) {
	hash := "fullhash"
	items := []cachestore.Item{{ID: "1"}, {ID: "2"}, {ID: "3"}}
	f := &fakeService{
		metas: map[string]cachestore.Meta{
			hash: {Hash: hash, ParsingStatus: cachestore.StatusCompleted, Stats: cachestore.Stats{Total: 3}},
		},
		items: map[string][]cachestore.Item{hash: items},
	}
	h := newTestHandler(f)

	req := httptest.NewRequest(http.MethodGet, "/api/playlist/items/"+hash+"?limit=2&offset=0", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["hasMore"] != true {
		t.Errorf("hasMore = %v, want true", resp["hasMore"])
	}
}

func TestHandleJobStatus_404OnMissingJob(t *testing.T) {
	f := &fakeService{metas: map[string]cachestore.Meta{}}
	h := newTestHandler(f)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleHealthz(t *testing.T) {
	f := &fakeService{}
	h := newTestHandler(f)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
