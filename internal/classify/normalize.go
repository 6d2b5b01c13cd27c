package classify

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
)

// NormalizeSeriesName implements the grouping normalization:
// lowercase, strip language suffixes, strip bracketed tags and
// parenthesized year/quality, collapse non-alphanumerics to a single
// space, trim.
func NormalizeSeriesName(name string) string {
	s := strings.ToLower(name)
	s = bracketedTagRx.ReplaceAllString(s, " ")
	s = parenYearQualityRx.ReplaceAllString(s, " ")
	s = languageSuffixRx.ReplaceAllString(s, " ")
	s = nonAlnumRx.ReplaceAllString(s, " ")
	return strings.TrimSpace(collapseSpaceRx.ReplaceAllString(s, " "))
}

var (
	bracketedTagRx     = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)`)
	parenYearQualityRx = regexp.MustCompile(`(?i)(19|20)\d{2}|4k|1080p|720p|bluray`)
	languageSuffixRx   = regexp.MustCompile(`(?i)\b(pt-br|pt|br|eng|esp)\b`)
	nonAlnumRx         = regexp.MustCompile(`[^a-z0-9]+`)
)

// SeriesKey derives the stable series grouping key:
// normalize(series_name) | group | year?.
func SeriesKey(seriesName, group string, year *int) string {
	y := ""
	if year != nil {
		y = strconv.Itoa(*year)
	}
	return NormalizeSeriesName(seriesName) + "|" + NormalizeSeriesName(group) + "|" + y
}

// GroupID is deterministic from (name, media_kind).
func GroupID(name string, kind MediaKind) string {
	h := sha1.Sum([]byte(string(kind) + "|" + NormalizeSeriesName(name)))
	return hex.EncodeToString(h[:])[:16]
}

// SeriesID is {playlist_hash}_{series_key}: hash-prefixed so the same
// series name/group/year in two different playlists never collide on
// one Series.id.
func SeriesID(playlistHash, seriesKey string) string {
	return playlistHash + "_" + seriesKey
}

// FirstWord returns the first whitespace-delimited token of a
// normalized name, used by Stage B's anchor bucketing index.
func FirstWord(normalized string) string {
	if i := strings.IndexByte(normalized, ' '); i >= 0 {
		return normalized[:i]
	}
	return normalized
}
