package clientingest

import (
	"testing"

	"github.com/ingestcore/m3uingest/internal/cachestore"
	"github.com/ingestcore/m3uingest/internal/classify"
	"github.com/ingestcore/m3uingest/internal/m3uparse"
)

func entry(title, group, url string) m3uparse.RawEntry {
	return m3uparse.RawEntry{
		Title: title,
		URL:   url,
		Attrs: map[string]string{m3uparse.AttrGroupTitle: group},
	}
}

func TestIngest_ClassifiesAndCountsByKind(t *testing.T) {
	store := NewMapStore()
	m := New(store)

	result := m.Ingest([]m3uparse.RawEntry{
		entry("ESPN", "Sports", "http://host/live/espn.m3u8"),
		entry("The Matrix (1999)", "Movies", "http://host/movie/matrix.mp4"),
	})

	if result.Stats.Total != 2 {
		t.Fatalf("Total = %d, want 2", result.Stats.Total)
	}
	if result.Stats.Live != 1 || result.Stats.Movie != 1 {
		t.Errorf("Live=%d Movie=%d, want 1/1", result.Stats.Live, result.Stats.Movie)
	}
}

func TestIngest_WritesItemsIntoStore(t *testing.T) {
	store := NewMapStore()
	m := New(store)

	m.Ingest([]m3uparse.RawEntry{
		entry("The Matrix (1999)", "Movies", "http://host/movie/matrix.mp4"),
	})

	v, ok := store.Get(itemKeyPrefix + "http://host/movie/matrix.mp4")
	if !ok {
		t.Fatal("item not found in store")
	}
	item := v.(cachestore.Item)
	if item.MediaKind != classify.Movie {
		t.Errorf("MediaKind = %v, want movie", item.MediaKind)
	}
}

func TestIngest_MergesMultiEpisodeSeriesAcrossEntries(t *testing.T) {
	store := NewMapStore()
	m := New(store)

	m.Ingest([]m3uparse.RawEntry{
		entry("Breaking Bad S01E01", "Series | Drama", "http://host/series/bb/s01e01.mp4"),
		entry("Breaking Bad S01E02", "Series | Drama", "http://host/series/bb/s01e02.mp4"),
	})

	var seriesCount int
	store.Range(func(key string, value any) bool {
		if _, ok := value.(cachestore.SeriesAggregate); ok {
			seriesCount++
		}
		return true
	})
	if seriesCount != 1 {
		t.Errorf("seriesCount = %d, want 1", seriesCount)
	}
}
