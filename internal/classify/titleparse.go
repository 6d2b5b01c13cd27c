package classify

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/moistari/rls"
)

// ParseTitle extracts structured fields from a raw display title:
// season+episode, year, quality, audio flags, and a normalized title
// with matched tokens stripped.
//
// Season/episode extraction tries, in priority order, SxxEyy, NxNN,
// TxxEyy, and separate season/episode words — the custom regex cascade
// always wins. github.com/moistari/rls is consulted whenever the cascade
// leaves season, year or quality unset, and fills only the
// season/episode/year/quality fields still empty from its own
// release-name grammar; a cascade hit is never overridden.
func ParseTitle(name string) ParsedTitle {
	working := name
	var out ParsedTitle

	if season, episode, rest, ok := extractSeasonEpisode(working); ok {
		out.Season = &season
		out.Episode = &episode
		working = rest
	}

	if year, rest, ok := extractYear(working); ok {
		out.Year = &year
		working = rest
	}

	if q, rest := extractQuality(working); q != "" {
		out.Quality = q
		working = rest
	}

	out.IsDubbed = dubbedRx.MatchString(working)
	out.IsSubbed = subbedRx.MatchString(working)
	out.IsMultiAudio = multiAudioRx.MatchString(working)
	working = stripAudioFlags(working)

	if out.Season == nil || out.Year == nil || out.Quality == "" {
		fillFromRLS(name, &out)
	}

	if lang := languageTagRx.FindString(working); lang != "" {
		out.Language = strings.ToLower(strings.Trim(lang, "[]() "))
		working = languageTagRx.ReplaceAllString(working, " ")
	}

	out.Title = strings.TrimSpace(collapseSpaceRx.ReplaceAllString(working, " "))
	if out.Title == "" {
		out.Title = strings.TrimSpace(name)
	}
	out.TitleNormalized = strings.ToUpper(out.Title)
	return out
}

func fillFromRLS(name string, out *ParsedTitle) {
	r := rls.ParseString(name)
	if out.Season == nil && r.Series > 0 {
		s := r.Series
		out.Season = &s
	}
	if out.Episode == nil && r.Episode > 0 {
		e := r.Episode
		out.Episode = &e
	}
	if out.Year == nil && r.Year > 0 {
		y := r.Year
		out.Year = &y
	}
	if out.Quality == "" && r.Resolution != "" {
		out.Quality = r.Resolution
	}
}

var (
	sxxeyyRx = regexp.MustCompile(`(?i)\bS(\d{1,2})\s*[\.\-]?\s*E(\d{1,3})\b`)
	nxnnRx   = regexp.MustCompile(`\b(\d{1,2})X(\d{1,3})\b`)
	txxeyyRx = regexp.MustCompile(`(?i)\bT(\d{1,2})\s*[\.\-]?\s*E(\d{1,3})\b`)
	// "Temporada 1 Episodio 02" style, season and episode as separate words.
	wordSeasonEpisodeRx = regexp.MustCompile(`(?i)Temporada\s*(\d{1,2}).{0,20}?(?:Epis[óo]dio|Episodio|Cap[ií]tulo)\s*(\d{1,3})`)

	yearParensRx = regexp.MustCompile(`[\(\[](\d{4})[\)\]]`)
	yearBareRx   = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)

	qualityRx = regexp.MustCompile(`(?i)\b(4K|2160P|1080P|720P|480P|BLURAY|BLU-RAY|WEBRIP|WEB-DL|HDTV|DVDRIP)\b`)

	dubbedRx     = regexp.MustCompile(`(?i)\b(DUB|DUBLADO|DUAL)\b`)
	subbedRx     = regexp.MustCompile(`(?i)\b(LEG|LEGENDADO|SUB|SUBBED)\b`)
	multiAudioRx = regexp.MustCompile(`(?i)\b(MULTI|DUAL\s*AUDIO|MULTI[\s-]?AUDIO)\b`)
	audioFlagsRx = regexp.MustCompile(`(?i)\b(DUB|DUBLADO|DUAL|LEG|LEGENDADO|SUB|SUBBED|MULTI|NACIONAL)\b`)

	languageTagRx   = regexp.MustCompile(`(?i)[\[\(](PT-BR|PT|BR|EN|ESP|ES)[\]\)]`)
	collapseSpaceRx = regexp.MustCompile(`\s+`)
)

func extractSeasonEpisode(s string) (season, episode int, rest string, ok bool) {
	if m := sxxeyyRx.FindStringSubmatchIndex(s); m != nil {
		season, _ = strconv.Atoi(s[m[2]:m[3]])
		episode, _ = strconv.Atoi(s[m[4]:m[5]])
		return season, episode, cut(s, m[0], m[1]), true
	}
	if m := txxeyyRx.FindStringSubmatchIndex(s); m != nil {
		season, _ = strconv.Atoi(s[m[2]:m[3]])
		episode, _ = strconv.Atoi(s[m[4]:m[5]])
		return season, episode, cut(s, m[0], m[1]), true
	}
	if m := nxnnRx.FindStringSubmatchIndex(s); m != nil {
		season, _ = strconv.Atoi(s[m[2]:m[3]])
		episode, _ = strconv.Atoi(s[m[4]:m[5]])
		return season, episode, cut(s, m[0], m[1]), true
	}
	if m := wordSeasonEpisodeRx.FindStringSubmatchIndex(s); m != nil {
		season, _ = strconv.Atoi(s[m[2]:m[3]])
		episode, _ = strconv.Atoi(s[m[4]:m[5]])
		return season, episode, cut(s, m[0], m[1]), true
	}
	return 0, 0, s, false
}

func extractYear(s string) (year int, rest string, ok bool) {
	// "(YYYY)" preferred over bare YYYY.
	if m := yearParensRx.FindStringSubmatchIndex(s); m != nil {
		y, _ := strconv.Atoi(s[m[2]:m[3]])
		if validYear(y) {
			return y, cut(s, m[0], m[1]), true
		}
	}
	if m := yearBareRx.FindStringIndex(s); m != nil {
		y, _ := strconv.Atoi(s[m[0]:m[1]])
		if validYear(y) {
			return y, cut(s, m[0], m[1]), true
		}
	}
	return 0, s, false
}

func validYear(y int) bool {
	return y >= 1900 && y <= time.Now().Year()+1
}

func extractQuality(s string) (quality, rest string) {
	if m := qualityRx.FindStringIndex(s); m != nil {
		return strings.ToUpper(s[m[0]:m[1]]), cut(s, m[0], m[1])
	}
	return "", s
}

func stripAudioFlags(s string) string {
	return audioFlagsRx.ReplaceAllString(s, " ")
}

// cut replaces s[start:end] with a single space; ParseTitle collapses
// whitespace runs once all tokens are stripped.
func cut(s string, start, end int) string {
	return s[:start] + " " + s[end:]
}
