// Command ingestcored runs the M3U ingest core: it loads a playlist
// URL on request, indexes it into the content-addressed cache, and
// serves the playlist/job HTTP API over that cache.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ingestcore/m3uingest/internal/apihttp"
	"github.com/ingestcore/m3uingest/internal/batch"
	"github.com/ingestcore/m3uingest/internal/cachestore"
	"github.com/ingestcore/m3uingest/internal/classify"
	"github.com/ingestcore/m3uingest/internal/config"
	"github.com/ingestcore/m3uingest/internal/logging"
	"github.com/ingestcore/m3uingest/internal/m3uparse"
	"github.com/ingestcore/m3uingest/internal/orchestrator"
	"github.com/ingestcore/m3uingest/internal/progress"
	"github.com/ingestcore/m3uingest/internal/queue"
	"github.com/ingestcore/m3uingest/internal/series"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	root := &cobra.Command{
		Use:   "ingestcored",
		Short: "M3U playlist ingest core daemon",
		RunE:  runServe,
	}
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	log := logging.WithComponent("main")

	store, err := cachestore.NewStore(cfg.CacheDir, cfg.CacheTTL())
	if err != nil {
		return err
	}
	if err := store.Recover(); err != nil {
		log.Warn().Err(err).Msg("cache recovery incomplete, continuing with what loaded")
	}

	jobs, err := queue.Open(cfg.QueueDBPath, cfg.WorkerConcurrency, cfg.RateLimitMax, cfg.RateLimitWindow(), cfg.LockTTL())
	if err != nil {
		return err
	}
	defer jobs.Close()

	reporter := progress.NewReporter(prometheus.NewRegistry())
	fetchCfg := m3uparse.DefaultFetchConfig
	fetchCfg.MaxBytes = int64(cfg.MaxPlaylistSizeMB) << 20
	fetchCfg.Timeout = cfg.FetchTimeout()
	orch := orchestrator.New(store, jobs, classify.New(), reporter).
		WithTierSizes(batch.TierSizes{
			TV:      cfg.BatchSizeTierTV,
			Mobile:  cfg.BatchSizeTierMobile,
			Desktop: cfg.BatchSizeTierDesktop,
		}).
		WithFetchConfig(fetchCfg).
		WithMergeParams(series.MergeParams{
			SimilarityThreshold:        cfg.FuzzySimilarityThreshold,
			MaxComparisonsPerSingleton: cfg.FuzzyMaxComparisonsPerSingleton,
			MaxSingletons:              cfg.FuzzyMaxSingletons,
		})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go jobs.Run(ctx, func(jobCtx context.Context, job queue.Job) error {
		var opts queue.Options
		if len(job.Options) > 0 {
			_ = json.Unmarshal(job.Options, &opts)
		}
		return orch.RunJob(jobCtx, job, opts.DeviceTierHint)
	})

	go sweepLoop(ctx, store, jobs)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: apihttp.New(orch).Router(),
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown did not complete cleanly")
	}
	return nil
}

// sweepLoop periodically evicts expired cache entries and retires old
// terminal jobs via the cache store's and queue's own Sweep methods.
func sweepLoop(ctx context.Context, store *cachestore.Store, jobs *queue.Queue) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()
	log := logging.WithComponent("sweep")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			store.Sweep()
			if err := jobs.Sweep(ctx); err != nil {
				log.Warn().Err(err).Msg("job sweep failed")
			}
		}
	}
}
