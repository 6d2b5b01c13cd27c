// Package orchestrator is the ingest orchestrator: the public
// parse/status/progress/preview/items/groups/series entry points that
// wire the fetcher, parser, batch processor, series grouper, cache
// store, job queue, query API, and progress reporter together.
package orchestrator

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"

	"github.com/ingestcore/m3uingest/internal/batch"
	"github.com/ingestcore/m3uingest/internal/cachestore"
	"github.com/ingestcore/m3uingest/internal/classify"
	"github.com/ingestcore/m3uingest/internal/m3uparse"
	"github.com/ingestcore/m3uingest/internal/progress"
	"github.com/ingestcore/m3uingest/internal/query"
	"github.com/ingestcore/m3uingest/internal/queue"
	"github.com/ingestcore/m3uingest/internal/series"
)

// Orchestrator constructs components per job and exposes the parse,
// status, progress, and query operations external callers use. No
// hidden singletons: every dependency is passed in explicitly.
type Orchestrator struct {
	store       *cachestore.Store
	jobs        *queue.Queue
	classifier  *classify.Classifier
	reporter    *progress.Reporter
	query       *query.API
	fetchCfg    m3uparse.FetchConfig
	tierSizes   batch.TierSizes
	mergeParams series.MergeParams
}

func New(store *cachestore.Store, jobs *queue.Queue, classifier *classify.Classifier, reporter *progress.Reporter) *Orchestrator {
	return &Orchestrator{
		store:      store,
		jobs:       jobs,
		classifier: classifier,
		reporter:   reporter,
		query:      query.New(store),
		fetchCfg:   m3uparse.DefaultFetchConfig,
	}
}

// WithTierSizes overrides the per-device-tier batch sizes used by
// RunJob; callers typically populate this from operator configuration
// at startup.
func (o *Orchestrator) WithTierSizes(sizes batch.TierSizes) *Orchestrator {
	o.tierSizes = sizes
	return o
}

// WithFetchConfig overrides the fetch bounds (max size, timeout) used
// by RunJob; callers typically populate this from operator
// configuration at startup.
func (o *Orchestrator) WithFetchConfig(cfg m3uparse.FetchConfig) *Orchestrator {
	o.fetchCfg = cfg
	return o
}

// WithMergeParams overrides the Stage B fuzzy-merge matching bounds
// used by RunJob; callers typically populate this from operator
// configuration at startup.
func (o *Orchestrator) WithMergeParams(params series.MergeParams) *Orchestrator {
	o.mergeParams = params
	return o
}

// ParseResponse is returned by Parse.
type ParseResponse struct {
	Cached       bool
	Hash         string
	Meta         *cachestore.Meta
	Queued       bool
	JobID        string
	QueuePosition int
}

// HashURL computes the playlist hash (sha1 of the URL) used as the
// cache/lock/job identity throughout the system.
func HashURL(url string) string {
	sum := sha1.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

// Parse implements the parse(url, options) contract: cache-hit
// short-circuit, else submit to the queue (which coalesces concurrent
// identical submissions via its lock).
func (o *Orchestrator) Parse(ctx context.Context, url string, opts queue.Options) (ParseResponse, error) {
	hash := HashURL(url)

	if meta, ok := o.store.Get(hash); ok && meta.ParsingStatus == cachestore.StatusCompleted {
		m := meta
		return ParseResponse{Cached: true, Hash: hash, Meta: &m}, nil
	}

	res, err := o.jobs.Submit(ctx, hash, url, opts)
	if err != nil {
		return ParseResponse{}, fmt.Errorf("orchestrator: submit: %w", err)
	}
	return ParseResponse{Hash: hash, Queued: true, JobID: res.JobID, QueuePosition: res.QueuePosition}, nil
}

// Lookup returns hash's current cache metadata, if any, without
// triggering a parse. Used by the HTTP front door to fast-fail a parse
// request against a recently failed attempt instead of resubmitting it.
func (o *Orchestrator) Lookup(hash string) (cachestore.Meta, bool) {
	return o.store.Get(hash)
}

// Status implements the status(job_id) contract.
func (o *Orchestrator) Status(ctx context.Context, jobID string) (queue.Job, error) {
	return o.jobs.Status(ctx, jobID)
}

// Progress implements the progress(H) contract.
func (o *Orchestrator) Progress(hash string) (progress.Snapshot, bool) {
	return o.reporter.Snapshot(hash)
}

// Preview implements the preview(H, limit) contract.
func (o *Orchestrator) Preview(hash string, limit int) ([]cachestore.Item, error) {
	return o.store.ReadPreview(hash, limit)
}

// Items, Groups, Series, SeriesEpisodes delegate to the query API.
func (o *Orchestrator) Items(hash string, offset, limit int, group string, mediaKind classify.MediaKind) ([]cachestore.Item, error) {
	return o.query.Items(hash, offset, limit, group, mediaKind)
}

func (o *Orchestrator) Groups(hash string) ([]cachestore.Group, error) { return o.query.Groups(hash) }

func (o *Orchestrator) Series(hash string) ([]cachestore.SeriesAggregate, error) {
	return o.query.Series(hash)
}

func (o *Orchestrator) SeriesEpisodes(hash, seriesID string) ([]cachestore.Item, error) {
	return o.query.SeriesEpisodes(hash, seriesID)
}

func (o *Orchestrator) Search(hash, substr string, limit int) ([]cachestore.Item, error) {
	return o.query.Search(hash, substr, limit)
}

// RunJob is the Handler the worker pool (internal/queue) invokes for
// each claimed job: fetch → stream-parse → batch-process (which runs
// series Stage A inline) → series Stage B fuzzy merge → cache-store
// completion, updating the progress reporter at each phase boundary.
func (o *Orchestrator) RunJob(ctx context.Context, job queue.Job, deviceHint string) error {
	o.reporter.Start(job.PlaylistHash)

	body, err := m3uparse.Fetch(ctx, job.URL, o.fetchCfg)
	if err != nil {
		o.reporter.Finish(job.PlaylistHash, false, err.Error())
		return classifyFetchErr(err)
	}
	defer body.Close()

	o.reporter.Update(job.PlaylistHash, progress.PhaseParsing, 0, 0, 0, false)

	sess, err := o.store.NewSession(job.PlaylistHash, job.URL)
	if err != nil {
		o.reporter.Finish(job.PlaylistHash, false, err.Error())
		return err
	}

	entries, errc := m3uparse.StreamParse(ctx, body)
	tier := batch.DetectTier(deviceHint, deviceHint)
	cfg := batch.ResolveConfig(tier, true, o.tierSizes)
	proc := batch.NewProcessor(job.PlaylistHash, sess, o.classifier, o.reporter, cfg)

	result, procErr := proc.Process(ctx, entries)
	if procErr == nil {
		procErr = <-errc
	}
	if procErr != nil {
		sess.Fail(procErr.Error())
		o.reporter.Finish(job.PlaylistHash, false, procErr.Error())
		return classifyFetchErr(procErr)
	}

	o.reporter.Update(job.PlaylistHash, progress.PhaseBuildingSeries, result.Stats.Total, len(result.Groups), len(result.SeriesAggregates), true)
	merged := series.FuzzyMergeWithParams(result.SeriesAggregates, o.mergeParams)

	aggregates := make([]cachestore.SeriesAggregate, 0, len(merged.Aggregates))
	for _, agg := range merged.Aggregates {
		aggregates = append(aggregates, *agg)
	}

	seriesIDs := result.ItemSeriesIDs
	for itemID, seriesID := range merged.Reassigned {
		seriesIDs[itemID] = seriesID
	}
	if err := sess.ApplySeriesReassignments(seriesIDs); err != nil {
		o.reporter.Finish(job.PlaylistHash, false, err.Error())
		return err
	}

	if err := sess.Complete(aggregates); err != nil {
		o.reporter.Finish(job.PlaylistHash, false, err.Error())
		return err
	}

	o.reporter.Finish(job.PlaylistHash, true, "")
	return nil
}

func classifyFetchErr(err error) error {
	switch err.(type) {
	case *m3uparse.HTTPError:
		if httpErr, ok := err.(*m3uparse.HTTPError); ok && httpErr.Status >= 400 && httpErr.Status < 500 {
			return &queue.PermanentError{Err: err}
		}
		return err
	}
	if err == m3uparse.ErrSourceTooLarge || err == m3uparse.ErrMalformedStream {
		return &queue.PermanentError{Err: err}
	}
	return err
}
