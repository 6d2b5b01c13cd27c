package apihttp

import (
	"context"

	"github.com/ingestcore/m3uingest/internal/cachestore"
	"github.com/ingestcore/m3uingest/internal/classify"
	"github.com/ingestcore/m3uingest/internal/orchestrator"
	"github.com/ingestcore/m3uingest/internal/progress"
	"github.com/ingestcore/m3uingest/internal/queue"
)

// Service is the subset of *orchestrator.Orchestrator this package
// fronts. Kept as an interface (rather than depending on the concrete
// type directly) so handlers are testable against a fake.
type Service interface {
	Parse(ctx context.Context, url string, opts queue.Options) (orchestrator.ParseResponse, error)
	Lookup(hash string) (cachestore.Meta, bool)
	Status(ctx context.Context, jobID string) (queue.Job, error)
	Progress(hash string) (progress.Snapshot, bool)
	Preview(hash string, limit int) ([]cachestore.Item, error)
	Items(hash string, offset, limit int, group string, mediaKind classify.MediaKind) ([]cachestore.Item, error)
	Groups(hash string) ([]cachestore.Group, error)
	Series(hash string) ([]cachestore.SeriesAggregate, error)
	SeriesEpisodes(hash, seriesID string) ([]cachestore.Item, error)
	Search(hash, substr string, limit int) ([]cachestore.Item, error)
}

// compile-time assertion that *orchestrator.Orchestrator satisfies Service.
var _ Service = (*orchestrator.Orchestrator)(nil)
