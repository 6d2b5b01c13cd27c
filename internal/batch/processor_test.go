package batch

import (
	"context"
	"errors"
	"testing"

	"github.com/ingestcore/m3uingest/internal/cachestore"
	"github.com/ingestcore/m3uingest/internal/classify"
	"github.com/ingestcore/m3uingest/internal/m3uparse"
)

type fakeSink struct {
	items        []cachestore.Item
	groups       []cachestore.Group
	failBulk     bool
	failPerItem  bool
}

func (f *fakeSink) BulkUpsertItems(items []cachestore.Item) error {
	if f.failBulk {
		return errors.New("bulk insert failed")
	}
	f.items = append(f.items, items...)
	return nil
}

func (f *fakeSink) UpsertItem(item cachestore.Item) error {
	if f.failPerItem {
		return errors.New("per-item insert failed")
	}
	f.items = append(f.items, item)
	return nil
}

func (f *fakeSink) BulkUpsertGroups(groups []cachestore.Group) error {
	f.groups = append(f.groups, groups...)
	return nil
}

func entriesChan(entries ...m3uparse.RawEntry) <-chan m3uparse.RawEntry {
	ch := make(chan m3uparse.RawEntry, len(entries))
	for _, e := range entries {
		ch <- e
	}
	close(ch)
	return ch
}

func TestProcessor_StatsAndGroupsAccumulate(t *testing.T) {
	sink := &fakeSink{}
	p := NewProcessor("h1", sink, classify.New(), nil, ResolveConfig(TierDesktop, false, TierSizes{}))

	entries := entriesChan(
		m3uparse.RawEntry{Title: "ESPN FHD", Attrs: map[string]string{"group-title": "Sports"}, URL: "http://x/espn.ts"},
		m3uparse.RawEntry{Title: "The Matrix (1999)", Attrs: map[string]string{"group-title": "Movies"}, URL: "http://x/matrix.ts"},
	)
	result, err := p.Process(context.Background(), entries)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Stats.Total != 2 || result.Stats.Live != 1 || result.Stats.Movie != 1 {
		t.Fatalf("stats = %+v", result.Stats)
	}
	if len(sink.items) != 2 {
		t.Fatalf("sink received %d items, want 2", len(sink.items))
	}
}

func TestProcessor_RejectsDisallowedURL(t *testing.T) {
	sink := &fakeSink{}
	p := NewProcessor("h1", sink, classify.New(), nil, ResolveConfig(TierDesktop, false, TierSizes{}))

	entries := entriesChan(
		m3uparse.RawEntry{Title: "Bad", Attrs: map[string]string{}, URL: "file:///etc/passwd"},
	)
	result, err := p.Process(context.Background(), entries)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Stats.Total != 0 || result.Stats.Lost != 1 {
		t.Fatalf("stats = %+v, want total=0 lost=1", result.Stats)
	}
}

func TestProcessor_FlushFallsBackToPerItemOnBulkFailure(t *testing.T) {
	sink := &fakeSink{failBulk: true}
	cfg := Config{BatchSize: 1, GCInterval: 100, SeriesChunkSize: 10}
	p := NewProcessor("h1", sink, classify.New(), nil, cfg)

	entries := entriesChan(
		m3uparse.RawEntry{Title: "ESPN FHD", Attrs: map[string]string{"group-title": "Sports"}, URL: "http://x/espn.ts"},
	)
	result, err := p.Process(context.Background(), entries)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Stats.Lost != 0 {
		t.Fatalf("per-item fallback should have recovered the item, lost=%d", result.Stats.Lost)
	}
	if len(sink.items) != 1 {
		t.Fatalf("sink received %d items via fallback, want 1", len(sink.items))
	}
}

func TestProcessor_TotalLossCountedWhenBothPathsFail(t *testing.T) {
	sink := &fakeSink{failBulk: true, failPerItem: true}
	cfg := Config{BatchSize: 1, GCInterval: 100, SeriesChunkSize: 10}
	p := NewProcessor("h1", sink, classify.New(), nil, cfg)

	entries := entriesChan(
		m3uparse.RawEntry{Title: "ESPN FHD", Attrs: map[string]string{"group-title": "Sports"}, URL: "http://x/espn.ts"},
	)
	result, _ := p.Process(context.Background(), entries)
	if result.Stats.Lost != 1 {
		t.Fatalf("lost = %d, want 1", result.Stats.Lost)
	}
}

func TestProcessor_SeriesRunLengthEncodesContiguousEpisodes(t *testing.T) {
	sink := &fakeSink{}
	p := NewProcessor("h1", sink, classify.New(), nil, ResolveConfig(TierDesktop, false, TierSizes{}))

	entries := entriesChan(
		m3uparse.RawEntry{Title: "Breaking Bad S01E01", Attrs: map[string]string{"group-title": "S • AMC"}, URL: "http://x/1.ts"},
		m3uparse.RawEntry{Title: "Breaking Bad S01E02", Attrs: map[string]string{"group-title": "S • AMC"}, URL: "http://x/2.ts"},
	)
	result, err := p.Process(context.Background(), entries)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.SeriesAggregates) != 1 {
		t.Fatalf("got %d series aggregates, want 1", len(result.SeriesAggregates))
	}
	for _, agg := range result.SeriesAggregates {
		if agg.EpisodeCount != 2 {
			t.Fatalf("episode count = %d, want 2", agg.EpisodeCount)
		}
	}
}

func TestDetectTier(t *testing.T) {
	cases := []struct {
		ua, hint string
		want     DeviceTier
	}{
		{hint: "tv", want: TierSmartTV},
		{ua: "Mozilla/5.0 (SMART-TV; Tizen 6.0)", want: TierSmartTV},
		{ua: "Mozilla/5.0 (Linux; Android 13)", want: TierMobile},
		{ua: "Mozilla/5.0 (Windows NT 10.0; Win64; x64)", want: TierDesktop},
	}
	for _, c := range cases {
		if got := DetectTier(c.ua, c.hint); got != c.want {
			t.Errorf("DetectTier(%q, %q) = %s, want %s", c.ua, c.hint, got, c.want)
		}
	}
}

func TestResolveConfig_NoMemStatsKeepsTierDefault(t *testing.T) {
	cfg := ResolveConfig(TierDesktop, false, TierSizes{})
	if cfg.BatchSize != 1000 {
		t.Fatalf("batch size = %d, want 1000 when memstats unavailable", cfg.BatchSize)
	}
}
