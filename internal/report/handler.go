package report

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	apperrors "github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/proto"
	"github.com/rs/zerolog"
)

const (
	defaultListLimit = 20
	maxListLimit     = 500
	maxScoreBody     = 4 << 20
)

// CacheInvalidator drops cached pair scores.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// Handler serves reports and ad-hoc scoring over HTTP.
type Handler struct {
	reports Reader
	scores  *ScoreService
	cache   CacheInvalidator
	logger  zerolog.Logger
}

// NewHandler creates a Handler. cache may be nil.
func NewHandler(reports Reader, scores *ScoreService, cache CacheInvalidator) *Handler {
	return &Handler{
		reports: reports,
		scores:  scores,
		cache:   cache,
		logger:  logger.WithComponent("report-handler"),
	}
}

// Register adds the API routes to mux:
//
//	GET  /api/v1/reports/latest
//	GET  /api/v1/reports?limit=N&run_id=R
//	POST /api/v1/score
//	POST /api/v1/cache/invalidate
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/reports/latest", h.Latest)
	mux.HandleFunc("GET /api/v1/reports", h.List)
	mux.HandleFunc("POST /api/v1/score", h.Score)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.InvalidateCache)
}

func (h *Handler) Latest(w http.ResponseWriter, r *http.Request) {
	rep, err := h.reports.Latest(r.Context())
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if runID := q.Get("run_id"); runID != "" {
		reports, err := h.reports.ForRun(r.Context(), runID)
		if err != nil {
			h.writeErr(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]any{"reports": nonNil(reports)})
		return
	}

	limit := defaultListLimit
	if s := q.Get("limit"); s != "" {
		parsed, err := strconv.Atoi(s)
		if err != nil || parsed < 1 {
			h.writeErr(w, r, apperrors.Invalidf("limit must be a positive integer"))
			return
		}
		limit = min(parsed, maxListLimit)
	}
	reports, err := h.reports.List(r.Context(), limit)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"reports": nonNil(reports)})
}

func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	var req proto.ScoreRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxScoreBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.writeErr(w, r, apperrors.Invalidf("malformed request body: %v", err))
		return
	}
	resp, err := h.scores.Score(r.Context(), req)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "score cache is disabled"})
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error().Err(err).Msg("failed to write response")
	}
}

// writeErr maps err to a status code. Server-side failures are logged and
// answered with a generic message.
func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		l := logger.FromContext(r.Context())
		l.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		var appErr *apperrors.AppError
		if !errors.As(err, &appErr) {
			msg = http.StatusText(status)
		}
	}
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
