// Package api exposes the HTTP interface for the imagemirror service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rbeech/imagemirror/internal/config"
	"github.com/rbeech/imagemirror/internal/pipeline"
	"github.com/rbeech/imagemirror/internal/search"
	"github.com/rbeech/imagemirror/internal/telemetry"
)

// The search handler may sit through the full retry/backoff budget plus the
// pipeline, so its timeout is generous compared to the rest of the routes.
const searchHandlerTimeout = 5 * time.Minute

// ImageSearcher produces candidates for a keyword.
type ImageSearcher interface {
	SearchImages(ctx context.Context, keyword string, count int) ([]search.Candidate, error)
}

// ImageProcessor runs the fetch-transform-store pipeline.
type ImageProcessor interface {
	Process(ctx context.Context, candidates []search.Candidate, keyword, watermarkText string) ([]pipeline.StoredImage, error)
}

// Server wires HTTP handlers to the search orchestrator and pipeline.
type Server struct {
	router   chi.Router
	searcher ImageSearcher
	pipe     ImageProcessor
	cfg      config.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes. staticDir, when
// non-empty, is served under /images/ so the local blob sink's public URLs
// resolve.
func NewServer(
	searcher ImageSearcher,
	pipe ImageProcessor,
	cfg config.Config,
	staticDir string,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		searcher: searcher,
		pipe:     pipe,
		cfg:      cfg,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(telemetry.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	if staticDir != "" {
		fileServer := http.FileServer(http.Dir(staticDir))
		r.Handle("/images/*", http.StripPrefix("/images/", fileServer))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(timeoutMiddleware(searchHandlerTimeout))
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/images/search", s.searchAndStore)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ready"})
}

type searchRequest struct {
	Keyword   string `json:"keyword"`
	Count     int    `json:"count"`
	Watermark string `json:"watermark"`
}

type searchResponse struct {
	Keyword   string                 `json:"keyword"`
	Requested int                    `json:"requested"`
	Found     int                    `json:"found"`
	Stored    int                    `json:"stored"`
	Images    []pipeline.StoredImage `json:"images"`
	Timings   timings                `json:"timings"`
}

type timings struct {
	SearchMs   int64 `json:"search_ms"`
	PipelineMs int64 `json:"pipeline_ms"`
	TotalMs    int64 `json:"total_ms"`
}

func (s *Server) searchAndStore(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid JSON", "invalid_input")
		return
	}
	req.Keyword = strings.TrimSpace(req.Keyword)
	if req.Keyword == "" {
		s.fail(w, http.StatusBadRequest, "keyword is required", "invalid_input")
		return
	}
	if req.Count < 1 || req.Count > 10 {
		s.fail(w, http.StatusBadRequest, "count must be between 1 and 10", "invalid_input")
		return
	}
	watermark := req.Watermark
	if watermark == "" {
		watermark = s.cfg.Pipeline.WatermarkText
	}

	start := time.Now()
	candidates, err := s.searcher.SearchImages(r.Context(), req.Keyword, req.Count)
	searchDur := time.Since(start)
	if err != nil {
		var exhausted *search.ExhaustedRetriesError
		if errors.As(err, &exhausted) {
			s.logger.Warn("search exhausted",
				zap.String("keyword", req.Keyword),
				zap.Int("attempts", exhausted.Attempts),
				zap.Error(exhausted.LastCause),
			)
			s.fail(w, http.StatusNotFound, "no candidates found", "no_candidates")
			return
		}
		s.logger.Error("search failed", zap.String("keyword", req.Keyword), zap.Error(err))
		s.fail(w, http.StatusInternalServerError, "search failed", "search_error")
		return
	}

	pipeStart := time.Now()
	stored, err := s.pipe.Process(r.Context(), candidates, req.Keyword, watermark)
	pipeDur := time.Since(pipeStart)
	if err != nil {
		if errors.Is(err, pipeline.ErrNoneStored) {
			s.fail(w, http.StatusBadGateway, "all storage attempts failed", "storage_failed")
			return
		}
		s.logger.Error("pipeline failed", zap.String("keyword", req.Keyword), zap.Error(err))
		s.fail(w, http.StatusInternalServerError, "pipeline failed", "pipeline_error")
		return
	}

	telemetry.ObserveSearch("success")
	writeJSON(s.logger, w, http.StatusOK, searchResponse{
		Keyword:   req.Keyword,
		Requested: req.Count,
		Found:     len(candidates),
		Stored:    len(stored),
		Images:    stored,
		Timings: timings{
			SearchMs:   searchDur.Milliseconds(),
			PipelineMs: pipeDur.Milliseconds(),
			TotalMs:    time.Since(start).Milliseconds(),
		},
	})
}

func (s *Server) fail(w http.ResponseWriter, status int, msg, cause string) {
	telemetry.ObserveSearch(cause)
	writeJSON(s.logger, w, status, map[string]string{"error": msg, "cause": cause})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("panic", rec))
					writeJSON(logger, w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeJSON(zap.NewNop(), w, http.StatusForbidden, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}
