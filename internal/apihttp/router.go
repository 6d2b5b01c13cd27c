// Package apihttp implements the playlist/job REST front door on chi,
// the router this ecosystem's other services (cartographus, streammon)
// use for route-grouped JSON APIs.
package apihttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler groups the orchestrator operations this package fronts.
// Kept as a narrow interface (not *orchestrator.Orchestrator directly)
// so handlers stay testable against a fake.
type Handler struct {
	svc Service
}

func New(svc Service) *Handler {
	return &Handler{svc: svc}
}

// Router builds the chi mux: real-IP, recovery and timeout middleware
// (no request logging), then the spec's route table, plus /metrics and
// /healthz.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Route("/api/playlist", func(r chi.Router) {
		r.Post("/parse", h.handleParse)
		r.Get("/{hash}/status", h.handleStatus)
		r.Get("/{hash}/validate", h.handleValidate)
		r.Get("/{hash}/stats", h.handleStats)
		r.Get("/{hash}/groups", h.handleGroups)
		r.Get("/{hash}/series", h.handleSeries)
		r.Get("/{hash}/series/{seriesID}/episodes", h.handleSeriesEpisodes)
		r.Get("/{hash}/search", h.handleSearch)
		r.Get("/items/{hash}", h.handleItems)
		r.Get("/items/{hash}/preview", h.handlePreview)
		r.Get("/items/{hash}/partial", h.handlePartial)
	})
	r.Get("/api/jobs/{jobID}", h.handleJobStatus)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", h.handleHealthz)

	return r
}
