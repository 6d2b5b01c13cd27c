package progress

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestReporter_CanNavigateFlipsAfterThresholdAndGroupsFlush(t *testing.T) {
	r := NewReporter(prometheus.NewRegistry())
	r.Start("h1")
	r.Update("h1", PhaseIndexing, 499, 2, 0, true)
	if snap, _ := r.Snapshot("h1"); snap.CanNavigate {
		t.Fatal("canNavigate should stay false below the item threshold")
	}
	r.Update("h1", PhaseIndexing, 500, 2, 0, false)
	snap, ok := r.Snapshot("h1")
	if !ok {
		t.Fatal("expected snapshot to exist")
	}
	if !snap.CanNavigate {
		t.Fatal("canNavigate should flip true once threshold reached and groups flushed at least once")
	}
}

func TestReporter_MonotonicPhaseGuard(t *testing.T) {
	r := NewReporter(prometheus.NewRegistry())
	r.Start("h1")
	r.Update("h1", PhaseIndexing, 10, 1, 0, false)
	r.Update("h1", PhaseParsing, 5, 1, 0, false) // stale/out-of-order event
	snap, _ := r.Snapshot("h1")
	if snap.Phase != PhaseIndexing {
		t.Fatalf("phase regressed to %s, want indexing to stick", snap.Phase)
	}
}

func TestReporter_FinishMarksTerminal(t *testing.T) {
	r := NewReporter(prometheus.NewRegistry())
	r.Start("h1")
	r.Finish("h1", false, "boom")
	snap, _ := r.Snapshot("h1")
	if snap.Phase != PhaseFailed || snap.Error != "boom" {
		t.Fatalf("got %+v", snap)
	}
}
