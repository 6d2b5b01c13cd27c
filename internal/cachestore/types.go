// Package cachestore implements the content-addressed cache index: an
// append-only ndjson item log paired with a byte-offset index and an
// atomically-written metadata file, per hash.
package cachestore

import (
	"time"

	"github.com/ingestcore/m3uingest/internal/classify"
)

// Item is one parsed playlist entry, as stored in H.ndjson.
type Item struct {
	ID              string             `json:"id"`
	PlaylistHash    string             `json:"playlistHash"`
	MediaKind       classify.MediaKind `json:"mediaKind"`
	Title           string             `json:"title"`
	TitleNormalized string             `json:"titleNormalized"`
	Group           string             `json:"group"`
	GroupNormalized string             `json:"groupNormalized"`
	GroupID         string             `json:"groupId"`
	URL             string             `json:"url"`
	URLHash         uint32             `json:"urlHash"`
	Logo            string             `json:"logo,omitempty"`
	TVGID           string             `json:"tvgId,omitempty"`
	XUIID           string             `json:"xuiId,omitempty"`
	Duration        float64            `json:"duration,omitempty"`
	Year            *int               `json:"year,omitempty"`
	Season          *int               `json:"season,omitempty"`
	Episode         *int               `json:"episode,omitempty"`
	Quality         string             `json:"quality,omitempty"`
	Language        string             `json:"language,omitempty"`
	IsDubbed        bool               `json:"isDubbed,omitempty"`
	IsSubbed        bool               `json:"isSubbed,omitempty"`
	IsMultiAudio    bool               `json:"isMultiAudio,omitempty"`
	SeriesID        string             `json:"seriesId,omitempty"`
	LineNumber      int                `json:"lineNumber"`
}

// Group is one (group, media_kind) bucket's running aggregate.
type Group struct {
	GroupID   string             `json:"groupId"`
	Name      string             `json:"name"`
	MediaKind classify.MediaKind `json:"mediaKind"`
	Logo      string             `json:"logo,omitempty"`
	ItemCount int                `json:"itemCount"`
}

// SeriesAggregate is one grouped series: stable ID, season/episode range,
// and member-episode count. Built incrementally by Stage A (run-length
// encoding) and refined by Stage B (fuzzy singleton merge).
type SeriesAggregate struct {
	SeriesID     string `json:"seriesId"`
	Name         string `json:"name"`
	GroupID      string `json:"groupId"`
	Year         *int   `json:"year,omitempty"`
	Seasons      []int  `json:"seasons"`
	FirstSeason  int    `json:"firstSeason"`
	LastSeason   int    `json:"lastSeason"`
	FirstEpisode int    `json:"firstEpisode"`
	LastEpisode  int    `json:"lastEpisode"`
	EpisodeCount int    `json:"episodeCount"`
	ItemIDs      []string `json:"itemIds"`
}

// Stats are the running per-kind counters maintained during ingest.
type Stats struct {
	Total   int `json:"total"`
	Live    int `json:"live"`
	Movie   int `json:"movie"`
	Series  int `json:"series"`
	Unknown int `json:"unknown"`
	Lost    int `json:"lost"`
}

// SeriesSummary is the counts-only view of series progress written into
// in-progress meta snapshots; the full Series table is written once, at
// completion (Open Question 1, DESIGN.md).
type SeriesSummary struct {
	SeriesCount  int `json:"seriesCount"`
	EpisodeCount int `json:"episodeCount"`
}

// ParsingStatus is the lifecycle phase recorded in Meta.
type ParsingStatus string

const (
	StatusInProgress ParsingStatus = "in_progress"
	StatusCompleted  ParsingStatus = "completed"
	StatusFailed     ParsingStatus = "failed"
)

// Meta is the metadata object persisted to H.meta.json.
type Meta struct {
	Hash          string          `json:"hash"`
	SourceURL     string          `json:"sourceUrl"`
	ParsingStatus ParsingStatus   `json:"parsingStatus"`
	Stats         Stats           `json:"stats"`
	Groups        []Group         `json:"groups"`
	SeriesSummary SeriesSummary   `json:"seriesSummary"`
	Series        []SeriesAggregate `json:"series,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	ExpiresAt     time.Time       `json:"expiresAt"`
	Error         string          `json:"error,omitempty"`
}

// Expired reports whether m's TTL has lapsed as of now.
func (m Meta) Expired(now time.Time) bool {
	return !m.ExpiresAt.IsZero() && now.After(m.ExpiresAt)
}
