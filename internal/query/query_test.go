package query

import (
	"testing"

	"github.com/ingestcore/m3uingest/internal/cachestore"
	"github.com/ingestcore/m3uingest/internal/classify"
)

type fakeStore struct {
	meta  cachestore.Meta
	items []cachestore.Item
}

func (f *fakeStore) Get(hash string) (cachestore.Meta, bool) { return f.meta, true }

func (f *fakeStore) ReadItems(hash string, offset, limit int) ([]cachestore.Item, error) {
	if offset >= len(f.items) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.items) {
		end = len(f.items)
	}
	return f.items[offset:end], nil
}

func (f *fakeStore) ScanItems(hash string, visit func(cachestore.Item) bool) error {
	for _, it := range f.items {
		if !visit(it) {
			return nil
		}
	}
	return nil
}

func TestItems_NoFilterUsesOffsetRead(t *testing.T) {
	fs := &fakeStore{items: []cachestore.Item{{ID: "1"}, {ID: "2"}, {ID: "3"}}}
	api := New(fs)
	got, err := api.Items("h1", 1, 1, "", "")
	if err != nil {
		t.Fatalf("Items: %v", err)
	}
	if len(got) != 1 || got[0].ID != "2" {
		t.Fatalf("got %+v", got)
	}
}

func TestItems_FilteredScanWithEarlyTermination(t *testing.T) {
	fs := &fakeStore{items: []cachestore.Item{
		{ID: "1", Group: "Sports", MediaKind: classify.Live},
		{ID: "2", Group: "Movies", MediaKind: classify.Movie},
		{ID: "3", Group: "Sports", MediaKind: classify.Live},
		{ID: "4", Group: "Sports", MediaKind: classify.Live},
	}}
	api := New(fs)
	got, err := api.Items("h1", 0, 1, "Sports", "")
	if err != nil {
		t.Fatalf("Items: %v", err)
	}
	if len(got) != 1 || got[0].ID != "1" {
		t.Fatalf("got %+v", got)
	}
}

func TestSeriesEpisodes_FiltersBySeriesID(t *testing.T) {
	fs := &fakeStore{items: []cachestore.Item{
		{ID: "1", SeriesID: "s1"},
		{ID: "2", SeriesID: "s2"},
		{ID: "3", SeriesID: "s1"},
	}}
	api := New(fs)
	got, err := api.SeriesEpisodes("h1", "s1")
	if err != nil {
		t.Fatalf("SeriesEpisodes: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d episodes, want 2", len(got))
	}
}

func TestSearch_CaseInsensitiveSubstring(t *testing.T) {
	fs := &fakeStore{items: []cachestore.Item{
		{ID: "1", TitleNormalized: classify.NormalizeSeriesName("Breaking Bad")},
		{ID: "2", TitleNormalized: classify.NormalizeSeriesName("The Wire")},
	}}
	api := New(fs)
	got, err := api.Search("h1", "BREAKING", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].ID != "1" {
		t.Fatalf("got %+v", got)
	}
}
