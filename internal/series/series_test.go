package series

import "testing"

func TestBuilder_RunLengthEncoding_ContiguousEpisodes(t *testing.T) {
	b := NewBuilder("h1")
	b.Observe("Breaking Bad", "AMC", "g1", nil, 1, 1, "item-1")
	b.Observe("Breaking Bad", "AMC", "g1", nil, 1, 2, "item-2")
	b.Observe("Breaking Bad", "AMC", "g1", nil, 1, 3, "item-3")
	b.CloseOpenRun()

	aggs := b.Aggregates()
	if len(aggs) != 1 {
		t.Fatalf("got %d aggregates, want 1", len(aggs))
	}
	for _, agg := range aggs {
		if agg.EpisodeCount != 3 {
			t.Fatalf("episode count = %d, want 3", agg.EpisodeCount)
		}
		if agg.FirstEpisode != 1 || agg.LastEpisode != 3 {
			t.Fatalf("episode range = [%d,%d], want [1,3]", agg.FirstEpisode, agg.LastEpisode)
		}
	}
}

func TestBuilder_InterleavedShowsOpenSeparateRuns(t *testing.T) {
	b := NewBuilder("h1")
	b.Observe("Show A", "G", "g1", nil, 1, 1, "a-1")
	b.Observe("Show B", "G", "g1", nil, 1, 1, "b-1")
	b.Observe("Show A", "G", "g1", nil, 1, 2, "a-2")
	b.CloseOpenRun()

	aggs := b.Aggregates()
	if len(aggs) != 2 {
		t.Fatalf("got %d aggregates, want 2 (Show A's two runs close separately and merge into one aggregate)", len(aggs))
	}
}

func TestBuilder_BreakClosesRunWithoutOpeningNew(t *testing.T) {
	b := NewBuilder("h1")
	b.Observe("Show A", "G", "g1", nil, 1, 1, "a-1")
	b.Break()
	b.Observe("Show A", "G", "g1", nil, 1, 2, "a-2")
	b.CloseOpenRun()

	aggs := b.Aggregates()
	if len(aggs) != 1 {
		t.Fatalf("got %d aggregates, want 1 (break forces separate runs, which merge under the same series_key)", len(aggs))
	}
}

func TestFuzzyMerge_SingletonMergesIntoAnchor(t *testing.T) {
	b := NewBuilder("h1")
	b.Observe("Brooklyn Nine-Nine", "G", "g1", nil, 1, 1, "anchor-1")
	b.Observe("Brooklyn Nine-Nine", "G", "g1", nil, 1, 2, "anchor-2")
	b.CloseOpenRun()
	b.Observe("Broklyn Nine Nine", "G", "g1", nil, 1, 3, "single-1")
	b.CloseOpenRun()

	aggs := b.Aggregates()
	result := FuzzyMerge(aggs)
	if len(result.Aggregates) != 1 {
		t.Fatalf("got %d aggregates after merge, want 1", len(result.Aggregates))
	}
	if len(result.Reassigned) != 1 {
		t.Fatalf("got %d reassignments, want 1", len(result.Reassigned))
	}
	for _, agg := range result.Aggregates {
		if agg.EpisodeCount != 3 {
			t.Fatalf("merged episode count = %d, want 3", agg.EpisodeCount)
		}
	}
}

func TestFuzzyMerge_DissimilarSingletonStaysSeparate(t *testing.T) {
	b := NewBuilder("h1")
	b.Observe("Brooklyn Nine-Nine", "G", "g1", nil, 1, 1, "anchor-1")
	b.Observe("Brooklyn Nine-Nine", "G", "g1", nil, 1, 2, "anchor-2")
	b.CloseOpenRun()
	b.Observe("Completely Different Title", "G", "g1", nil, 1, 1, "single-1")
	b.CloseOpenRun()

	result := FuzzyMerge(b.Aggregates())
	if len(result.Aggregates) != 2 {
		t.Fatalf("got %d aggregates, want 2 (dissimilar titles should not merge)", len(result.Aggregates))
	}
	if len(result.Reassigned) != 0 {
		t.Fatalf("got %d reassignments, want 0", len(result.Reassigned))
	}
}

func TestFuzzyMerge_CapSkipsWhenTooManySingletons(t *testing.T) {
	b := NewBuilder("h1")
	for i := 0; i < MaxSingletons+1; i++ {
		b.Observe(seriesName(i), "G", "g1", nil, 1, 1, seriesName(i))
		b.Break()
	}
	result := FuzzyMerge(b.Aggregates())
	if !result.SingletonsSkipped {
		t.Fatal("expected Stage B to be skipped above the singleton cap")
	}
}

func seriesName(i int) string {
	digits := [10]byte{'0', '1', '2', '3', '4', '5', '6', '7', '8', '9'}
	var b []byte
	n := i
	for n > 0 {
		b = append([]byte{digits[n%10]}, b...)
		n /= 10
	}
	if len(b) == 0 {
		b = []byte{'0'}
	}
	return "Unique Show " + string(b)
}
