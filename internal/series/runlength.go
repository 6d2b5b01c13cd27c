// Package series implements the series grouper: Stage A hash-RLE
// accumulation (driven per item by internal/batch, during streaming)
// and Stage B post-stream fuzzy merge of singleton series into
// confident multi-episode anchors.
package series

import (
	"github.com/ingestcore/m3uingest/internal/cachestore"
	"github.com/ingestcore/m3uingest/internal/classify"
)

// episodeRef is one member of an open or closed run.
type episodeRef struct {
	season  int
	episode int
	itemID  string
}

// run is the open run-length-encoding accumulator for one series_key.
type run struct {
	key      string
	name     string
	group    string
	groupID  string
	year     *int
	episodes []episodeRef
}

// Builder accumulates Stage A runs during streaming and maintains the
// store of closed (possibly later reopened) series aggregates. It is
// single-threaded per job, matching the batch processor's one-job-at-a-time
// concurrency model.
type Builder struct {
	playlistHash string
	open         *run
	byKey        map[string]*cachestore.SeriesAggregate
	byItem       map[string]string // itemID -> seriesID, for bulk series_id assignment
}

// NewBuilder returns an empty Stage A accumulator for playlistHash.
// playlistHash is prefixed onto every series_key to produce Series.id,
// so the same series_key in two different playlists never collides on
// one Series.id.
func NewBuilder(playlistHash string) *Builder {
	return &Builder{
		playlistHash: playlistHash,
		byKey:        make(map[string]*cachestore.SeriesAggregate),
		byItem:       make(map[string]string),
	}
}

// Observe feeds one series item into the run accumulator. itemID is the
// item's stable ID (used for the later bulk series_id update). It
// returns nothing: the item's series_id is assigned when the run it
// belongs to closes (see CloseOpenRun) and is then readable via
// ItemSeriesIDs.
func (b *Builder) Observe(name, group, groupID string, year *int, season, episode int, itemID string) {
	key := classify.SeriesKey(name, group, year)
	if b.open != nil && b.open.key == key {
		b.open.episodes = append(b.open.episodes, episodeRef{season: season, episode: episode, itemID: itemID})
		return
	}
	b.CloseOpenRun()
	b.open = &run{key: key, name: name, group: group, groupID: groupID, year: year,
		episodes: []episodeRef{{season: season, episode: episode, itemID: itemID}}}
}

// Break closes the open run without starting a new one; called for
// non-series items or items with a differing series_key.
func (b *Builder) Break() {
	b.CloseOpenRun()
}

// CloseOpenRun flushes the open run (if any) into the aggregate store:
// one store read and one write per run, not per episode.
func (b *Builder) CloseOpenRun() {
	r := b.open
	b.open = nil
	if r == nil || len(r.episodes) == 0 {
		return
	}
	seriesID := classify.SeriesID(b.playlistHash, r.key)
	agg, exists := b.byKey[r.key]
	if !exists {
		agg = &cachestore.SeriesAggregate{
			SeriesID: seriesID,
			Name:     r.name,
			GroupID:  r.groupID,
			Year:     r.year,
		}
		b.byKey[r.key] = agg
	}
	for _, ep := range r.episodes {
		mergeEpisode(agg, ep.season, ep.episode)
		agg.ItemIDs = append(agg.ItemIDs, ep.itemID)
		b.byItem[ep.itemID] = agg.SeriesID
	}
}

func mergeEpisode(agg *cachestore.SeriesAggregate, season, episode int) {
	if agg.EpisodeCount == 0 {
		agg.FirstSeason, agg.LastSeason = season, season
		agg.FirstEpisode, agg.LastEpisode = episode, episode
	} else {
		if season < agg.FirstSeason {
			agg.FirstSeason = season
		}
		if season > agg.LastSeason {
			agg.LastSeason = season
		}
		if episode < agg.FirstEpisode {
			agg.FirstEpisode = episode
		}
		if episode > agg.LastEpisode {
			agg.LastEpisode = episode
		}
	}
	agg.EpisodeCount++
	if !containsInt(agg.Seasons, season) {
		agg.Seasons = append(agg.Seasons, season)
	}
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// Aggregates returns the closed series aggregates built so far, keyed
// by series_key. Call CloseOpenRun first if a run may still be open.
func (b *Builder) Aggregates() map[string]*cachestore.SeriesAggregate {
	return b.byKey
}

// ItemSeriesIDs returns the itemID -> seriesID assignments accumulated
// by closed runs. internal/orchestrator applies them, overlaid by Stage
// B's reassignments, in one bulk series_id update after the stream ends.
func (b *Builder) ItemSeriesIDs() map[string]string {
	return b.byItem
}
