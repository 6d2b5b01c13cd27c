package batch

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"hash/fnv"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/ingestcore/m3uingest/internal/cachestore"
	"github.com/ingestcore/m3uingest/internal/classify"
	"github.com/ingestcore/m3uingest/internal/logging"
	"github.com/ingestcore/m3uingest/internal/m3uparse"
	"github.com/ingestcore/m3uingest/internal/progress"
	"github.com/ingestcore/m3uingest/internal/safeurl"
	"github.com/ingestcore/m3uingest/internal/series"
)

// bannedExtensions are structurally disallowed stream URL suffixes.
var bannedExtensions = []string{".exe", ".bat", ".sh", ".php", ".scr", ".msi"}

// Result is what Process returns once the entry stream is exhausted.
type Result struct {
	Stats            cachestore.Stats
	Groups           map[string]*cachestore.Group
	SeriesAggregates map[string]*cachestore.SeriesAggregate
	ItemSeriesIDs    map[string]string
}

// Processor runs the per-item O(1) inner loop and flush policy for one
// ingest job. It is single-threaded per job: back-pressure comes from
// awaiting each flush before the next batch is pulled.
type Processor struct {
	hash       string
	sink       ItemSink
	classifier *classify.Classifier
	reporter   *progress.Reporter
	cfg        Config

	stats         cachestore.Stats
	groups        map[string]*cachestore.Group
	seriesBuilder *series.Builder

	buf          []cachestore.Item
	dirtyGroups  map[string]bool
	batchCount   int
	idOrdinal    map[string]int
}

// NewProcessor constructs a Processor for hash, using tier's adaptive
// batching profile (already resolved via ResolveConfig).
func NewProcessor(hash string, sink ItemSink, classifier *classify.Classifier, reporter *progress.Reporter, cfg Config) *Processor {
	return &Processor{
		hash:          hash,
		sink:          sink,
		classifier:    classifier,
		reporter:      reporter,
		cfg:           cfg,
		groups:        make(map[string]*cachestore.Group),
		seriesBuilder: series.NewBuilder(hash),
		dirtyGroups:   make(map[string]bool),
		idOrdinal:     make(map[string]int),
	}
}

// Process consumes entries in order until the channel closes or ctx is
// cancelled, applying the filter→derive→stats→groups→series→enqueue
// loop and the batch flush policy. The caller is responsible for
// racing entries/errc from m3uparse.StreamParse and passing errc's
// error (if any) back to the orchestrator — a mid-stream parse failure
// discards this job's attempt rather than persisting a partial result.
func (p *Processor) Process(ctx context.Context, entries <-chan m3uparse.RawEntry) (Result, error) {
	for entry := range entries {
		if err := ctx.Err(); err != nil {
			return p.result(), err
		}
		p.observe(entry)
		if len(p.buf) >= p.cfg.BatchSize {
			if err := p.flush(ctx); err != nil {
				return p.result(), err
			}
		}
	}
	if err := p.flush(ctx); err != nil {
		return p.result(), err
	}
	p.seriesBuilder.Break() // close any still-open run at stream end
	return p.result(), nil
}

func (p *Processor) observe(entry m3uparse.RawEntry) {
	if !isAllowedURL(entry.URL) {
		p.stats.Lost++
		return
	}

	group := entry.Attrs[m3uparse.AttrGroupTitle]
	kind, parsed := p.classifier.Classify(entry.Title, group, entry.URL)

	titleNormalized := classify.NormalizeSeriesName(entry.Title)
	groupNormalized := classify.NormalizeSeriesName(group)
	groupID := classify.GroupID(group, kind)
	urlHash := fnvHash(entry.URL)
	tvgID := entry.Attrs[m3uparse.AttrTVGID]
	xuiID := entry.Attrs[m3uparse.AttrXUIID]
	itemID := p.nextItemID(tvgID, xuiID, entry.URL)

	p.stats.Total++
	switch kind {
	case classify.Live:
		p.stats.Live++
	case classify.Movie:
		p.stats.Movie++
	case classify.Series:
		p.stats.Series++
	default:
		p.stats.Unknown++
	}

	g, exists := p.groups[groupID]
	if !exists {
		g = &cachestore.Group{GroupID: groupID, Name: group, MediaKind: kind, Logo: entry.Attrs[m3uparse.AttrTVGLogo], ItemCount: 1}
		p.groups[groupID] = g
	} else {
		g.ItemCount++
		if g.Logo == "" && entry.Attrs[m3uparse.AttrTVGLogo] != "" {
			g.Logo = entry.Attrs[m3uparse.AttrTVGLogo]
		}
	}
	p.dirtyGroups[groupID] = true

	if kind == classify.Series && parsed.HasEpisode() {
		p.seriesBuilder.Observe(parsed.Title, group, groupID, parsed.Year, *parsed.Season, *parsed.Episode, itemID)
	} else {
		p.seriesBuilder.Break()
	}

	item := cachestore.Item{
		ID:              itemID,
		PlaylistHash:    p.hash,
		MediaKind:       kind,
		Title:           entry.Title,
		TitleNormalized: titleNormalized,
		Group:           group,
		GroupNormalized: groupNormalized,
		GroupID:         groupID,
		URL:             entry.URL,
		URLHash:         urlHash,
		Logo:            entry.Attrs[m3uparse.AttrTVGLogo],
		TVGID:           tvgID,
		XUIID:           xuiID,
		Duration:        entry.Duration,
		Year:            parsed.Year,
		Season:          parsed.Season,
		Episode:         parsed.Episode,
		Quality:         parsed.Quality,
		Language:        parsed.Language,
		IsDubbed:        parsed.IsDubbed,
		IsSubbed:        parsed.IsSubbed,
		IsMultiAudio:    parsed.IsMultiAudio,
		LineNumber:      entry.LineNumber,
	}
	p.buf = append(p.buf, item)
}

// flush implements the bulk-upsert → per-item-fallback → loss-counter
// policy, then publishes incremental group snapshots and advances the
// batch/GC/progress bookkeeping.
func (p *Processor) flush(ctx context.Context) error {
	logger := logging.WithComponent("batch")

	if len(p.buf) > 0 {
		if err := p.sink.BulkUpsertItems(p.buf); err != nil {
			logger.Warn().Str("hash", p.hash).Err(err).Msg("bulk upsert failed, falling back to per-item")
			for _, item := range p.buf {
				if err := p.sink.UpsertItem(item); err != nil {
					p.stats.Lost++
					logger.Error().Str("hash", p.hash).Str("item_id", item.ID).Err(err).Msg("item lost")
				}
			}
		}
		p.buf = p.buf[:0]
	}

	if len(p.dirtyGroups) > 0 {
		snapshot := make([]cachestore.Group, 0, len(p.dirtyGroups))
		for id := range p.dirtyGroups {
			snapshot = append(snapshot, *p.groups[id])
		}
		if err := p.sink.BulkUpsertGroups(snapshot); err != nil {
			logger.Warn().Str("hash", p.hash).Err(err).Msg("group snapshot upsert failed")
		}
		p.dirtyGroups = make(map[string]bool)
	}

	p.batchCount++
	if p.cfg.GCInterval > 0 && p.batchCount%p.cfg.GCInterval == 0 {
		runtime.GC()
		debug.FreeOSMemory()
	}

	if p.reporter != nil {
		p.reporter.Update(p.hash, progress.PhaseIndexing, p.stats.Total, len(p.groups), len(p.seriesBuilder.Aggregates()), true)
	}
	return ctx.Err()
}

func (p *Processor) result() Result {
	return Result{
		Stats:            p.stats,
		Groups:           p.groups,
		SeriesAggregates: p.seriesBuilder.Aggregates(),
		ItemSeriesIDs:    p.seriesBuilder.ItemSeriesIDs(),
	}
}

func fnvHash(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

// nextItemID computes the stable, reproducible item ID
// hex12(sha1(tvg_id||xui_id||url)) + "_" + ordinal. ordinal
// disambiguates repeated (tvg_id, xui_id, url) triples within the same
// parse (duplicate entries), counted in stream order so re-parsing the
// same file yields byte-identical IDs.
func (p *Processor) nextItemID(tvgID, xuiID, url string) string {
	base := hex12(tvgID + xuiID + url)
	ordinal := p.idOrdinal[base]
	p.idOrdinal[base] = ordinal + 1
	return base + "_" + strconv.Itoa(ordinal)
}

// hex12 returns the first 12 hex characters of sha1(s).
func hex12(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

func isAllowedURL(rawURL string) bool {
	if !safeurl.IsHTTPOrHTTPS(rawURL) {
		return false
	}
	lower := strings.ToLower(rawURL)
	for _, ext := range bannedExtensions {
		if strings.HasSuffix(lower, ext) {
			return false
		}
	}
	return true
}
