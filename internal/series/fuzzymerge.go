package series

import (
	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/ingestcore/m3uingest/internal/cachestore"
	"github.com/ingestcore/m3uingest/internal/classify"
	"github.com/ingestcore/m3uingest/internal/logging"
)

// SimilarityThreshold is the minimum normalized Levenshtein similarity
// for a singleton to merge into a multi-episode anchor.
const SimilarityThreshold = 0.85

// MaxComparisonsPerSingleton bounds the per-singleton candidate scan.
const MaxComparisonsPerSingleton = 50

// MaxSingletons: above this count, Stage B is skipped entirely (the
// algorithmic budget is worth more than marginal grouping gains).
const MaxSingletons = 5000

// MergeResult is Stage B's output: the final aggregate set plus the
// item-to-series reassignments callers must bulk-apply to stored items.
type MergeResult struct {
	Aggregates  map[string]*cachestore.SeriesAggregate
	Reassigned  map[string]string // itemID -> new seriesID, for merged singletons only
	SingletonsSkipped bool
}

// MergeParams tunes Stage B's matching bounds. A zero value of any
// field falls back to that field's package-level default constant.
type MergeParams struct {
	SimilarityThreshold        float64
	MaxComparisonsPerSingleton int
	MaxSingletons              int
}

func (p MergeParams) withDefaults() MergeParams {
	if p.SimilarityThreshold <= 0 {
		p.SimilarityThreshold = SimilarityThreshold
	}
	if p.MaxComparisonsPerSingleton <= 0 {
		p.MaxComparisonsPerSingleton = MaxComparisonsPerSingleton
	}
	if p.MaxSingletons <= 0 {
		p.MaxSingletons = MaxSingletons
	}
	return p
}

// FuzzyMerge runs Stage B over the series_key -> aggregate map produced
// by Stage A, using the package-default matching bounds. It never
// crosses media_kind (aggregates here are already series-only) and
// never mutates any item field besides series_id.
func FuzzyMerge(aggregates map[string]*cachestore.SeriesAggregate) MergeResult {
	return FuzzyMergeWithParams(aggregates, MergeParams{})
}

// FuzzyMergeWithParams is FuzzyMerge with operator-configurable
// matching bounds (see MergeParams).
func FuzzyMergeWithParams(aggregates map[string]*cachestore.SeriesAggregate, params MergeParams) MergeResult {
	params = params.withDefaults()

	multi := make(map[string]*cachestore.SeriesAggregate)
	singletons := make(map[string]*cachestore.SeriesAggregate)
	for key, agg := range aggregates {
		if agg.EpisodeCount >= 2 {
			multi[key] = agg
		} else {
			singletons[key] = agg
		}
	}

	result := MergeResult{
		Aggregates: aggregates,
		Reassigned: make(map[string]string),
	}

	if len(singletons) > params.MaxSingletons {
		logging.WithComponent("series").Warn().
			Int("singletons", len(singletons)).Int("cap", params.MaxSingletons).
			Msg("singleton count exceeds cap, skipping fuzzy merge")
		result.SingletonsSkipped = true
		return result
	}

	index := buildFirstWordIndex(multi)

	for key, single := range singletons {
		normName := classify.NormalizeSeriesName(single.Name)
		candidates := index[classify.FirstWord(normName)]
		if len(candidates) > params.MaxComparisonsPerSingleton {
			candidates = candidates[:params.MaxComparisonsPerSingleton]
		}

		var bestKey string
		var bestSim float64
		for _, candKey := range candidates {
			anchor := multi[candKey]
			sim := normalizedSimilarity(normName, classify.NormalizeSeriesName(anchor.Name))
			if sim > bestSim {
				bestSim = sim
				bestKey = candKey
			}
		}

		if bestKey == "" || bestSim < params.SimilarityThreshold {
			continue
		}

		anchor := multi[bestKey]
		mergeAggregateInto(anchor, single)
		for _, itemID := range single.ItemIDs {
			result.Reassigned[itemID] = anchor.SeriesID
		}
		delete(aggregates, key)
	}

	return result
}

// mergeAggregateInto folds src (a singleton) into dst (a confident
// anchor): union seasons, extend first/last, sum episode count.
func mergeAggregateInto(dst, src *cachestore.SeriesAggregate) {
	if src.FirstSeason < dst.FirstSeason {
		dst.FirstSeason = src.FirstSeason
	}
	if src.LastSeason > dst.LastSeason {
		dst.LastSeason = src.LastSeason
	}
	if src.FirstEpisode < dst.FirstEpisode {
		dst.FirstEpisode = src.FirstEpisode
	}
	if src.LastEpisode > dst.LastEpisode {
		dst.LastEpisode = src.LastEpisode
	}
	dst.EpisodeCount += src.EpisodeCount
	for _, s := range src.Seasons {
		if !containsInt(dst.Seasons, s) {
			dst.Seasons = append(dst.Seasons, s)
		}
	}
	dst.ItemIDs = append(dst.ItemIDs, src.ItemIDs...)
}

// buildFirstWordIndex maps first_word(normalized_name) -> anchor keys,
// pruning the bulk of the O(N·M) comparison space down to same-first-word
// candidates.
func buildFirstWordIndex(multi map[string]*cachestore.SeriesAggregate) map[string][]string {
	index := make(map[string][]string)
	for key, agg := range multi {
		w := classify.FirstWord(classify.NormalizeSeriesName(agg.Name))
		index[w] = append(index[w], key)
	}
	return index
}

// normalizedSimilarity computes 1 - d(a,b)/max(|a|,|b|) using the
// 2-row-optimized edit-distance implementation from fuzzysearch.
func normalizedSimilarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	d := fuzzy.LevenshteinDistance(a, b)
	return 1 - float64(d)/float64(maxLen)
}
