package apihttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ingestcore/m3uingest/internal/cachestore"
	"github.com/ingestcore/m3uingest/internal/classify"
	"github.com/ingestcore/m3uingest/internal/logging"
	"github.com/ingestcore/m3uingest/internal/m3uparse"
	"github.com/ingestcore/m3uingest/internal/orchestrator"
	"github.com/ingestcore/m3uingest/internal/queue"
)

const defaultPreviewLimit = 500

// parseRequest is POST /api/playlist/parse's body.
type parseRequest struct {
	URL     string `json:"url"`
	Options struct {
		DeviceTierHint string `json:"deviceTierHint"`
		DeadlineMs     int64  `json:"deadlineMs"`
	} `json:"options"`
}

func (h *Handler) handleParse(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if !validPlaylistURL(req.URL) {
		writeError(w, http.StatusBadRequest, "url must be an absolute http(s) URL")
		return
	}

	hash := orchestrator.HashURL(req.URL)
	if meta, ok := h.svc.Lookup(hash); ok && meta.ParsingStatus == cachestore.StatusFailed {
		if status, msg := classifyStoredError(meta.Error); status != 0 {
			writeError(w, status, msg)
			return
		}
	}

	opts := queue.Options{DeviceTierHint: req.Options.DeviceTierHint, DeadlineMs: req.Options.DeadlineMs}
	resp, err := h.svc.Parse(r.Context(), req.URL, opts)
	if err != nil {
		logging.WithComponent("apihttp").Error().Err(err).Str("hash", hash).Msg("parse submit failed")
		writeError(w, http.StatusBadGateway, "unable to submit playlist for parsing")
		return
	}

	if resp.Cached {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"cached":  true,
			"hash":    resp.Hash,
			"data":    resp.Meta,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"cached":        false,
		"queued":        true,
		"hash":          resp.Hash,
		"jobId":         resp.JobID,
		"queuePosition": resp.QueuePosition,
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	snap, ok := h.svc.Progress(hash)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown playlist hash")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"hash":        snap.Hash,
		"phase":       snap.Phase,
		"itemsParsed": snap.ItemsParsed,
		"itemsTotal":  snap.ItemsTotal,
		"groupsCount": snap.GroupsCount,
		"seriesCount": snap.SeriesCount,
		"elapsedMs":   snap.ElapsedMs,
		"canNavigate": snap.CanNavigate,
		"error":       snap.Error,
	})
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	meta, ok := h.svc.Lookup(hash)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false, "hash": hash})
		return
	}
	if meta.Expired(time.Now()) {
		writeError(w, http.StatusGone, "cache entry expired")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":     meta.ParsingStatus == cachestore.StatusCompleted,
		"hash":      hash,
		"sourceUrl": meta.SourceURL,
		"stats":     meta.Stats,
		"createdAt": meta.CreatedAt,
		"expiresAt": meta.ExpiresAt,
	})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	meta, err := h.metaOrNotFound(w, hash)
	if err != nil {
		return
	}
	writeJSON(w, http.StatusOK, meta.Stats)
}

func (h *Handler) handleGroups(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	if _, err := h.metaOrNotFound(w, hash); err != nil {
		return
	}
	groups, err := h.svc.Groups(hash)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

func (h *Handler) handleSeries(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	if _, err := h.metaOrNotFound(w, hash); err != nil {
		return
	}
	series, err := h.svc.Series(hash)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"series": series})
}

func (h *Handler) handleSeriesEpisodes(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	seriesID := chi.URLParam(r, "seriesID")
	if _, err := h.metaOrNotFound(w, hash); err != nil {
		return
	}
	offset, limit := pageParams(r, 100)
	episodes, err := h.svc.SeriesEpisodes(hash, seriesID)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paginate(episodes, offset, limit))
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	if _, err := h.metaOrNotFound(w, hash); err != nil {
		return
	}
	q := r.URL.Query().Get("q")
	limit := intParam(r, "limit", 50)
	items, err := h.svc.Search(hash, q, limit)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

func (h *Handler) handleItems(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	meta, err := h.metaOrNotFound(w, hash)
	if err != nil {
		return
	}
	offset, limit := pageParams(r, 100)
	group := r.URL.Query().Get("group")
	mediaKind := classify.MediaKind(r.URL.Query().Get("media_kind"))

	items, itemsErr := h.svc.Items(hash, offset, limit, group, mediaKind)
	if itemsErr != nil {
		writeStoreErr(w, itemsErr)
		return
	}
	hasMore := offset+len(items) < meta.Stats.Total
	writeJSON(w, http.StatusOK, map[string]any{
		"items":   items,
		"total":   meta.Stats.Total,
		"limit":   limit,
		"offset":  offset,
		"hasMore": hasMore,
	})
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	if _, err := h.metaOrNotFound(w, hash); err != nil {
		return
	}
	limit := intParam(r, "limit", defaultPreviewLimit)
	items, err := h.svc.Preview(hash, limit)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) handlePartial(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	if _, err := h.metaOrNotFound(w, hash); err != nil {
		return
	}
	snap, ok := h.svc.Progress(hash)
	if !ok || !snap.CanNavigate {
		writeJSON(w, http.StatusOK, map[string]any{"items": []cachestore.Item{}, "canNavigate": false})
		return
	}
	limit := intParam(r, "limit", snap.ItemsParsed)
	items, err := h.svc.Preview(hash, limit)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "canNavigate": true})
}

func (h *Handler) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, err := h.svc.Status(r.Context(), jobID)
	if err != nil {
		logging.WithComponent("apihttp").Error().Err(err).Str("job_id", jobID).Msg("job status lookup failed")
		writeError(w, http.StatusInternalServerError, "job lookup failed")
		return
	}
	if job.Status == queue.NotFound {
		writeError(w, http.StatusNotFound, "unknown job id")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       job.Status,
		"attemptsMade": job.Attempt,
		"maxAttempts":  queue.MaxAttempts,
		"error":        job.Error,
	})
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// metaOrNotFound looks up hash's metadata, writing a 404 (unknown hash)
// or 410 (expired cache) response and returning a non-nil error if the
// caller should stop handling the request.
func (h *Handler) metaOrNotFound(w http.ResponseWriter, hash string) (cachestore.Meta, error) {
	meta, ok := h.svc.Lookup(hash)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown playlist hash")
		return cachestore.Meta{}, errNotFound
	}
	if meta.Expired(time.Now()) {
		writeError(w, http.StatusGone, "cache entry expired")
		return cachestore.Meta{}, errNotFound
	}
	return meta, nil
}

var errNotFound = errors.New("apihttp: not found")

func writeStoreErr(w http.ResponseWriter, err error) {
	if errors.Is(err, cachestore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown playlist hash")
		return
	}
	logging.WithComponent("apihttp").Error().Err(err).Msg("query failed")
	writeError(w, http.StatusInternalServerError, "query failed")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func pageParams(r *http.Request, defaultLimit int) (offset, limit int) {
	return intParam(r, "offset", 0), intParam(r, "limit", defaultLimit)
}

func intParam(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func paginate(items []cachestore.Item, offset, limit int) map[string]any {
	total := len(items)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return map[string]any{
		"items":   items[offset:end],
		"total":   total,
		"limit":   limit,
		"offset":  offset,
		"hasMore": end < total,
	}
}

func validPlaylistURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// classifyStoredError maps a previously-recorded fetch failure message
// back to the HTTP status a resubmission should surface
// immediately, instead of re-running the whole queue/backoff cycle.
func classifyStoredError(stored string) (int, string) {
	switch {
	case strings.Contains(stored, m3uparse.ErrSourceTooLarge.Error()):
		return http.StatusRequestEntityTooLarge, stored
	case stored == "":
		return 0, ""
	default:
		return http.StatusBadGateway, stored
	}
}
