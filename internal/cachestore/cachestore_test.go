package cachestore

import (
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestSession_WriteAndReadItemsRoundtrip(t *testing.T) {
	s := newTestStore(t)
	sess, err := s.NewSession("h1", "http://origin/playlist.m3u")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	items := []Item{
		{ID: "1", Title: "A", URL: "http://x/1"},
		{ID: "2", Title: "B", URL: "http://x/2"},
		{ID: "3", Title: "C", URL: "http://x/3"},
	}
	if err := sess.BulkUpsertItems(items); err != nil {
		t.Fatalf("BulkUpsertItems: %v", err)
	}
	if err := sess.Complete(nil); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	got, err := s.ReadItems("h1", 1, 2)
	if err != nil {
		t.Fatalf("ReadItems: %v", err)
	}
	if len(got) != 2 || got[0].ID != "2" || got[1].ID != "3" {
		t.Fatalf("got %+v", got)
	}
}

func TestSession_PreviewDuringInProgress(t *testing.T) {
	s := newTestStore(t)
	sess, err := s.NewSession("h1", "http://origin")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := sess.BulkUpsertItems([]Item{{ID: "1", Title: "A"}, {ID: "2", Title: "B"}}); err != nil {
		t.Fatalf("BulkUpsertItems: %v", err)
	}

	got, err := s.ReadPreview("h1", 10)
	if err != nil {
		t.Fatalf("ReadPreview: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d items, want 2", len(got))
	}
	sess.Close()
}

func TestStore_GetReturnsCompletedMeta(t *testing.T) {
	s := newTestStore(t)
	sess, _ := s.NewSession("h1", "http://origin")
	sess.Complete([]SeriesAggregate{{SeriesID: "s1", EpisodeCount: 2}})

	m, ok := s.Get("h1")
	if !ok {
		t.Fatal("expected meta to be found")
	}
	if m.ParsingStatus != StatusCompleted {
		t.Fatalf("status = %s, want completed", m.ParsingStatus)
	}
	if len(m.Series) != 1 {
		t.Fatalf("series = %+v, want 1 entry", m.Series)
	}
}

func TestStore_RecoverRemovesExpired(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewStore(dir, time.Hour)
	sess, _ := s.NewSession("fresh", "http://origin")
	sess.Complete(nil)

	expired, _ := NewStore(dir, time.Nanosecond)
	esess, _ := expired.NewSession("stale", "http://origin")
	time.Sleep(time.Millisecond)
	esess.Complete(nil)

	s2, _ := NewStore(dir, time.Hour)
	if err := s2.Recover(); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if _, ok := s2.Get("fresh"); !ok {
		t.Fatal("expected fresh entry to survive recovery")
	}
	if _, ok := s2.Get("stale"); ok {
		t.Fatal("expected stale (expired) entry to be purged")
	}
}

func TestSession_ApplySeriesReassignments(t *testing.T) {
	s := newTestStore(t)
	sess, err := s.NewSession("h1", "http://origin")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	items := []Item{
		{ID: "ep1", Title: "Show S01E01", SeriesID: "h1_orig-anchor"},
		{ID: "ep2", Title: "Show S01E02", SeriesID: "h1_orig-anchor"},
		{ID: "single", Title: "Show Special", SeriesID: "h1_orig-singleton"},
		{ID: "unrelated", Title: "Other Show", SeriesID: "h1_other"},
	}
	if err := sess.BulkUpsertItems(items); err != nil {
		t.Fatalf("BulkUpsertItems: %v", err)
	}

	if err := sess.ApplySeriesReassignments(map[string]string{"single": "h1_orig-anchor"}); err != nil {
		t.Fatalf("ApplySeriesReassignments: %v", err)
	}
	if err := sess.Complete([]SeriesAggregate{{SeriesID: "h1_orig-anchor", EpisodeCount: 3}}); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	got, err := s.ReadItems("h1", 0, 10)
	if err != nil {
		t.Fatalf("ReadItems: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("got %d items, want 4", len(got))
	}
	bySeriesID := map[string]string{}
	for _, it := range got {
		bySeriesID[it.ID] = it.SeriesID
	}
	if bySeriesID["single"] != "h1_orig-anchor" {
		t.Fatalf("singleton series_id = %q, want reassigned to anchor", bySeriesID["single"])
	}
	if bySeriesID["ep1"] != "h1_orig-anchor" || bySeriesID["ep2"] != "h1_orig-anchor" {
		t.Fatalf("anchor episodes' series_id changed unexpectedly: %+v", bySeriesID)
	}
	if bySeriesID["unrelated"] != "h1_other" {
		t.Fatalf("unrelated item's series_id changed unexpectedly: %q", bySeriesID["unrelated"])
	}
}

func TestScanItems_EarlyTermination(t *testing.T) {
	s := newTestStore(t)
	sess, _ := s.NewSession("h1", "http://origin")
	sess.BulkUpsertItems([]Item{
		{ID: "1", Group: "Sports"},
		{ID: "2", Group: "Movies"},
		{ID: "3", Group: "Sports"},
	})
	sess.Complete(nil)

	var matched []Item
	err := s.ScanItems("h1", func(it Item) bool {
		if it.Group == "Sports" {
			matched = append(matched, it)
		}
		return len(matched) < 1
	})
	if err != nil {
		t.Fatalf("ScanItems: %v", err)
	}
	if len(matched) != 1 {
		t.Fatalf("got %d matches, want exactly 1 (early termination)", len(matched))
	}
}
