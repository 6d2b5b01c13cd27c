// Package progress implements the progress reporter: a per-hash,
// concurrently-readable snapshot updated by the fetcher, parser, and
// batch processor at batch and phase-transition boundaries, plus
// Prometheus export.
package progress

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Phase is one stage of the ingest lifecycle.
type Phase string

const (
	PhaseDownloading    Phase = "downloading"
	PhaseParsing        Phase = "parsing"
	PhaseIndexing       Phase = "indexing"
	PhaseBuildingGroups Phase = "building_groups"
	PhaseBuildingSeries Phase = "building_series"
	PhaseComplete       Phase = "complete"
	PhaseFailed         Phase = "failed"
)

// phaseRank gives phases a monotone ordering so progress events can be
// checked for monotonicity per hash in (phase rank, items parsed).
var phaseRank = map[Phase]int{
	PhaseDownloading:    0,
	PhaseParsing:        1,
	PhaseIndexing:       2,
	PhaseBuildingGroups: 3,
	PhaseBuildingSeries: 4,
	PhaseComplete:       5,
	PhaseFailed:         5,
}

// Snapshot is the read-only view external callers poll (expected
// cadence 1 Hz).
type Snapshot struct {
	Hash         string
	Phase        Phase
	ItemsParsed  int
	ItemsTotal   *int
	GroupsCount  int
	SeriesCount  int
	ElapsedMs     int64
	CanNavigate   bool
	Error         string
	startedAt     time.Time
	groupsFlushed bool
}

// navigateItemThreshold is the item count at or above which canNavigate may
// flip true, provided groups have been flushed at least once.
const navigateItemThreshold = 500

// Reporter holds the live snapshot set for all in-flight and recently
// finished hashes, plus the Prometheus counters/gauges mirroring them.
type Reporter struct {
	mu        sync.RWMutex
	snapshots map[string]*Snapshot

	jobsTotal     *prometheus.CounterVec
	itemsParsed   prometheus.Counter
	activeJobs    prometheus.Gauge
	phaseGauge    *prometheus.GaugeVec
}

// NewReporter constructs a Reporter and registers its metrics with reg.
// Pass prometheus.NewRegistry() (or nil for the default registerer).
func NewReporter(reg prometheus.Registerer) *Reporter {
	r := &Reporter{
		snapshots: make(map[string]*Snapshot),
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingestcore_jobs_total",
			Help: "Playlist ingest jobs by terminal outcome.",
		}, []string{"outcome"}),
		itemsParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingestcore_items_parsed_total",
			Help: "Total playlist items parsed across all jobs.",
		}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ingestcore_active_jobs",
			Help: "Number of ingest jobs currently in a non-terminal phase.",
		}),
		phaseGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ingestcore_jobs_in_phase",
			Help: "Number of jobs currently in each phase.",
		}, []string{"phase"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(r.jobsTotal, r.itemsParsed, r.activeJobs, r.phaseGauge)
	return r
}

// Start registers hash as a new in-flight job in the downloading phase.
func (r *Reporter) Start(hash string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[hash] = &Snapshot{Hash: hash, Phase: PhaseDownloading, startedAt: time.Now()}
	r.activeJobs.Inc()
	r.phaseGauge.WithLabelValues(string(PhaseDownloading)).Inc()
}

// Update advances hash's snapshot. It is a no-op if hash isn't tracked
// (defensive: a late event after Start raced with a cleanup sweep).
func (r *Reporter) Update(hash string, phase Phase, itemsParsed, groupsCount, seriesCount int, groupsFlushed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.snapshots[hash]
	if !ok {
		return
	}
	if phaseRank[phase] < phaseRank[s.Phase] {
		return // monotonicity guard
	}
	if phase != s.Phase {
		r.phaseGauge.WithLabelValues(string(s.Phase)).Dec()
		r.phaseGauge.WithLabelValues(string(phase)).Inc()
	}
	if itemsParsed > s.ItemsParsed {
		r.itemsParsed.Add(float64(itemsParsed - s.ItemsParsed))
	}
	s.Phase = phase
	s.ItemsParsed = itemsParsed
	s.GroupsCount = groupsCount
	s.SeriesCount = seriesCount
	if groupsFlushed {
		s.groupsFlushed = true
	}
	if !s.CanNavigate && s.ItemsParsed >= navigateItemThreshold && s.groupsFlushed {
		s.CanNavigate = true
	}
	s.ElapsedMs = time.Since(s.startedAt).Milliseconds()
}

// Finish marks hash terminal (complete or failed) and decrements the
// active-job gauge. errMsg is empty on success.
func (r *Reporter) Finish(hash string, ok bool, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, exists := r.snapshots[hash]
	if !exists {
		return
	}
	phase := PhaseComplete
	outcome := "completed"
	if !ok {
		phase = PhaseFailed
		outcome = "failed"
		s.Error = errMsg
	}
	if phase != s.Phase {
		r.phaseGauge.WithLabelValues(string(s.Phase)).Dec()
		r.phaseGauge.WithLabelValues(string(phase)).Inc()
	}
	s.Phase = phase
	s.ElapsedMs = time.Since(s.startedAt).Milliseconds()
	r.jobsTotal.WithLabelValues(outcome).Inc()
	r.activeJobs.Dec()
}

// Snapshot returns a copy of hash's current progress, or false if
// unknown.
func (r *Reporter) Snapshot(hash string) (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.snapshots[hash]
	if !ok {
		return Snapshot{}, false
	}
	return *s, true
}

// Forget drops hash's tracked snapshot (used by the retention sweep
// once a job has aged out of the status-query window).
func (r *Reporter) Forget(hash string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.snapshots, hash)
}
