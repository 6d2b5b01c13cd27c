package classify

import "testing"

func TestClassify_GroupPrefixBeatsNamePattern(t *testing.T) {
	kind := Classify("The Matrix", "S • Netflix", "http://x/movie/42", "")
	if kind != Series {
		t.Fatalf("got %s, want series", kind)
	}
}

func TestClassify_ColetaneaException(t *testing.T) {
	kind := Classify("Harry Potter S01E01", "Harry Potter Coletanea", "http://x/y", "")
	if kind != Movie {
		t.Fatalf("got %s, want movie", kind)
	}
}

func TestClassify_StarSeries24H(t *testing.T) {
	kind := Classify("Any Channel", "⭐ SERIES 24H", "http://x/y", "")
	if kind != Live {
		t.Fatalf("got %s, want live", kind)
	}
}

func TestClassify_LiveSuffix(t *testing.T) {
	kind := Classify("ESPN FHD", "Sports", "http://x/y", "")
	if kind != Live {
		t.Fatalf("got %s, want live", kind)
	}
}

func TestClassify_URLIgnoredWithoutHint(t *testing.T) {
	// No group/name signal at all. Classify does not inspect the URL
	// itself: the path hint is computed by Classifier.Classify and passed
	// in, so with an empty hint the cascade ends at unknown.
	kind := Classify("Some Title", "Misc", "http://x/series/55", "")
	if kind != Unknown {
		t.Fatalf("got %s, want unknown (hint computed separately)", kind)
	}
}

func TestClassify_NeverPanics(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("Classify panicked: %v", r)
		}
	}()
	Classify("", "", "", "")
	Classify("\x00\xff", "\x00", "not a url", Unknown)
}

func TestClassifier_SeriesRLETitleFields(t *testing.T) {
	c := New()
	kind, title := c.Classify("Breaking Bad S01E01", "S • AMC", "http://x/1")
	if kind != Series {
		t.Fatalf("got %s, want series", kind)
	}
	if title.Season == nil || *title.Season != 1 {
		t.Fatalf("season = %v, want 1", title.Season)
	}
	if title.Episode == nil || *title.Episode != 1 {
		t.Fatalf("episode = %v, want 1", title.Episode)
	}
}

func TestParseTitle_SeasonEpisodeInvariant(t *testing.T) {
	p := ParseTitle("Brooklyn Nine-Nine S01E23")
	if !p.HasEpisode() {
		t.Fatal("expected season+episode both set")
	}
	if *p.Season != 1 || *p.Episode != 23 {
		t.Fatalf("got season=%v episode=%v", *p.Season, *p.Episode)
	}
}

func TestParseTitle_Year(t *testing.T) {
	p := ParseTitle("The Matrix (1999) 1080p BluRay")
	if p.Year == nil || *p.Year != 1999 {
		t.Fatalf("year = %v, want 1999", p.Year)
	}
	if p.Quality != "1080P" {
		t.Fatalf("quality = %q, want 1080P", p.Quality)
	}
}

func TestClassifier_Memoization(t *testing.T) {
	c := New()
	k1, t1 := c.Classify("Show S02E05", "S • Group", "http://x/a")
	k2, t2 := c.Classify("Show S02E05", "S • Group", "http://x/a")
	if k1 != k2 || t1.Title != t2.Title {
		t.Fatal("memoized replay should be identical")
	}
	if c.memo.Len() != 1 {
		t.Fatalf("memo len = %d, want 1", c.memo.Len())
	}
}

func TestNormalizeSeriesName(t *testing.T) {
	a := NormalizeSeriesName("Brooklyn Nine-Nine (2013) [1080p]")
	b := NormalizeSeriesName("Broklyn Nine Nine")
	if FirstWord(a) != FirstWord(b) {
		t.Fatalf("expected shared first word, got %q vs %q", FirstWord(a), FirstWord(b))
	}
}
