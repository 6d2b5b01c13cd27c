// Package query implements the read-only query API: offset-paginated
// item reads, group/kind-filtered scans, series listing, and substring
// search, all tolerant of an in-progress (partially written) cache
// entry.
package query

import (
	"strings"

	"github.com/ingestcore/m3uingest/internal/cachestore"
	"github.com/ingestcore/m3uingest/internal/classify"
)

// Store is the subset of *cachestore.Store the query layer depends on.
type Store interface {
	Get(hash string) (cachestore.Meta, bool)
	ReadItems(hash string, offset, limit int) ([]cachestore.Item, error)
	ScanItems(hash string, visit func(cachestore.Item) bool) error
}

// API is the read-only query surface the orchestrator delegates to.
type API struct {
	store Store
}

func New(store Store) *API { return &API{store: store} }

// ErrNotFound mirrors cachestore.ErrNotFound for callers that only
// import internal/query.
var ErrNotFound = cachestore.ErrNotFound

// Items returns items for hash, honoring optional group/media-kind
// filters. Without filters this is a direct offset/limit read via
// the byte-offset index (O(limit) I/O); with a filter it falls back to
// a linear scan with early termination at limit.
func (a *API) Items(hash string, offset, limit int, group string, mediaKind classify.MediaKind) ([]cachestore.Item, error) {
	if group == "" && mediaKind == "" {
		return a.store.ReadItems(hash, offset, limit)
	}

	var out []cachestore.Item
	skipped := 0
	err := a.store.ScanItems(hash, func(it cachestore.Item) bool {
		if group != "" && it.Group != group {
			return true
		}
		if mediaKind != "" && it.MediaKind != mediaKind {
			return true
		}
		if skipped < offset {
			skipped++
			return true
		}
		out = append(out, it)
		return len(out) < limit
	})
	return out, err
}

// Groups returns hash's current group aggregates (safe mid-parse: the
// in-progress meta snapshot carries incremental group counts).
func (a *API) Groups(hash string) ([]cachestore.Group, error) {
	meta, ok := a.store.Get(hash)
	if !ok {
		return nil, ErrNotFound
	}
	return meta.Groups, nil
}

// Series returns the full series table, populated only once parsing
// has completed (Open Question 1, DESIGN.md).
func (a *API) Series(hash string) ([]cachestore.SeriesAggregate, error) {
	meta, ok := a.store.Get(hash)
	if !ok {
		return nil, ErrNotFound
	}
	return meta.Series, nil
}

// SeriesEpisodes returns every item belonging to seriesID, in stream
// order.
func (a *API) SeriesEpisodes(hash, seriesID string) ([]cachestore.Item, error) {
	var out []cachestore.Item
	err := a.store.ScanItems(hash, func(it cachestore.Item) bool {
		if it.SeriesID == seriesID {
			out = append(out, it)
		}
		return true
	})
	return out, err
}

// Search is a case-insensitive, limit-bounded substring match over
// title_normalized. A linear scan meets the bound at the scale this
// cache targets; a trigram index would be the next step past that.
func (a *API) Search(hash, substr string, limit int) ([]cachestore.Item, error) {
	if limit <= 0 {
		limit = 50
	}
	needle := classify.NormalizeSeriesName(substr)
	var out []cachestore.Item
	err := a.store.ScanItems(hash, func(it cachestore.Item) bool {
		if strings.Contains(it.TitleNormalized, needle) {
			out = append(out, it)
		}
		return len(out) < limit
	})
	return out, err
}
