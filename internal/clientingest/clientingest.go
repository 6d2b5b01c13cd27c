// Package clientingest mirrors the classify/batch/series pipeline
// against an embedded, in-memory document store instead of the
// on-disk cache — for an embedding application that parses a playlist
// client-side (e.g. compiled to GOOS=js GOARCH=wasm) and needs the
// exact same classify/group/series rules as the server path, without
// round-tripping through it.
package clientingest

import (
	"github.com/ingestcore/m3uingest/internal/cachestore"
	"github.com/ingestcore/m3uingest/internal/classify"
	"github.com/ingestcore/m3uingest/internal/m3uparse"
	"github.com/ingestcore/m3uingest/internal/series"
)

// EmbeddedStore stands in for the embedding application's document
// store (IndexedDB, in the product this was distilled from). Kept to
// three verbs so a wasm bridge only needs to implement a thin shim.
type EmbeddedStore interface {
	Put(key string, value any)
	Get(key string) (any, bool)
	Range(visit func(key string, value any) bool)
}

// MapStore is an EmbeddedStore backed by a plain Go map, useful for
// tests and for any embedder that doesn't need real persistence.
type MapStore struct {
	data map[string]any
}

func NewMapStore() *MapStore { return &MapStore{data: make(map[string]any)} }

func (s *MapStore) Put(key string, value any) { s.data[key] = value }

func (s *MapStore) Get(key string) (any, bool) {
	v, ok := s.data[key]
	return v, ok
}

func (s *MapStore) Range(visit func(key string, value any) bool) {
	for k, v := range s.data {
		if !visit(k, v) {
			return
		}
	}
}

const (
	itemKeyPrefix   = "item:"
	groupKeyPrefix  = "group:"
	seriesKeyPrefix = "series:"
)

// Mirror runs the classify → group → series pipeline over an
// already-parsed entry list and writes the results into an
// EmbeddedStore, reusing internal/classify and internal/series
// directly so client and server share one rule set by construction.
type Mirror struct {
	store      EmbeddedStore
	classifier *classify.Classifier
}

func New(store EmbeddedStore) *Mirror {
	return &Mirror{store: store, classifier: classify.New()}
}

// Result mirrors batch.Result's shape for the entries this Mirror
// processed, minus SeriesAggregates (series are written to the store
// instead) and the on-disk-only ItemSeriesIDs bookkeeping.
type Result struct {
	Stats  cachestore.Stats
	Groups map[string]*cachestore.Group
}

// Ingest classifies and groups entries (already parsed client-side —
// this package does not do its own M3U text parsing), merges
// singleton series via Stage B, and writes items/groups/series into
// the store. It is single-pass: the embedding document store is
// expected to already live entirely in memory, so there is no
// flush/batch policy to apply.
func (m *Mirror) Ingest(entries []m3uparse.RawEntry) Result {
	stats := cachestore.Stats{}
	groups := make(map[string]*cachestore.Group)
	builder := series.NewBuilder("")

	for _, entry := range entries {
		group := entry.Attrs[m3uparse.AttrGroupTitle]
		kind, parsed := m.classifier.Classify(entry.Title, group, entry.URL)

		stats.Total++
		switch kind {
		case classify.Live:
			stats.Live++
		case classify.Movie:
			stats.Movie++
		case classify.Series:
			stats.Series++
		default:
			stats.Unknown++
		}

		groupID := classify.GroupID(group, kind)
		g, exists := groups[groupID]
		if !exists {
			g = &cachestore.Group{GroupID: groupID, Name: group, MediaKind: kind, Logo: entry.Attrs[m3uparse.AttrTVGLogo], ItemCount: 1}
			groups[groupID] = g
		} else {
			g.ItemCount++
			if g.Logo == "" && entry.Attrs[m3uparse.AttrTVGLogo] != "" {
				g.Logo = entry.Attrs[m3uparse.AttrTVGLogo]
			}
		}

		itemID := itemKeyPrefix + entry.URL
		if kind == classify.Series && parsed.HasEpisode() {
			builder.Observe(parsed.Title, group, groupID, parsed.Year, *parsed.Season, *parsed.Episode, itemID)
		} else {
			builder.Break()
		}

		item := cachestore.Item{
			ID:              itemID,
			MediaKind:       kind,
			Title:           entry.Title,
			TitleNormalized: classify.NormalizeSeriesName(entry.Title),
			Group:           group,
			GroupNormalized: classify.NormalizeSeriesName(group),
			GroupID:         groupID,
			URL:             entry.URL,
			Logo:            entry.Attrs[m3uparse.AttrTVGLogo],
			TVGID:           entry.Attrs[m3uparse.AttrTVGID],
			XUIID:           entry.Attrs[m3uparse.AttrXUIID],
			Duration:        entry.Duration,
			Year:            parsed.Year,
			Season:          parsed.Season,
			Episode:         parsed.Episode,
			Quality:         parsed.Quality,
			Language:        parsed.Language,
			IsDubbed:        parsed.IsDubbed,
			IsSubbed:        parsed.IsSubbed,
			IsMultiAudio:    parsed.IsMultiAudio,
		}
		m.store.Put(itemID, item)
	}
	builder.Break()

	for id, g := range groups {
		m.store.Put(groupKeyPrefix+id, *g)
	}

	merged := series.FuzzyMerge(builder.Aggregates())
	for seriesID, agg := range merged.Aggregates {
		m.store.Put(seriesKeyPrefix+seriesID, *agg)
	}

	seriesIDs := builder.ItemSeriesIDs()
	for itemID, seriesID := range merged.Reassigned {
		seriesIDs[itemID] = seriesID
	}
	for itemID, seriesID := range seriesIDs {
		if v, ok := m.store.Get(itemID); ok {
			item := v.(cachestore.Item)
			item.SeriesID = seriesID
			m.store.Put(itemID, item)
		}
	}

	return Result{Stats: stats, Groups: groups}
}
