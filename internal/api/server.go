package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/frontier-crawler/internal/config"
	"github.com/JakeFAU/frontier-crawler/internal/control"
	"github.com/JakeFAU/frontier-crawler/internal/crawler"
	"github.com/JakeFAU/frontier-crawler/internal/metrics"
)

// Controller is the subset of control.Controller the API drives.
type Controller interface {
	EnqueueSeed(ctx context.Context, req control.SeedRequest) (control.SeedResult, error)
	Pause()
	Resume(ctx context.Context) error
	Status(ctx context.Context) (control.Status, error)
	Reset(ctx context.Context) error
}

// Server wires HTTP handlers to the run controller and the frontier store.
type Server struct {
	router chi.Router
	ctrl   Controller
	items  *ItemHandler
	cfg    config.Config
	logger *zap.Logger
}

const readinessTimeout = 2 * time.Second

// NewServer constructs a Server with middleware and routes.
func NewServer(ctrl Controller, items ItemReader, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		ctrl:   ctrl,
		items:  NewItemHandler(items, logger),
		cfg:    cfg,
		logger: logger.Named("api"),
	}
	timeout := cfg.Server.RequestTimeout()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/admin", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/crawl", s.startCrawl)
		r.Post("/pause", s.pause)
		r.Post("/resume", s.resume)
		r.Post("/reset", s.reset)
		r.Get("/stats", s.stats)
		r.Get("/items", s.items.ListItems)
		r.Get("/items/lookup", s.items.LookupItem)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyz reports ready once the frontier store answers a count query.
func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()
	if _, err := s.ctrl.Status(ctx); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "frontier store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type crawlRequest struct {
	StartURL string `json:"start_url"`
	MaxDepth *int   `json:"max_depth"`
	Reset    bool   `json:"reset"`
}

// startCrawl accepts either a JSON body or form fields (start_url, max_depth,
// reset). It answers 202 with the seed result, 400 for invalid input and 409
// when a reset is requested while a crawl is running.
func (s *Server) startCrawl(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseCrawlRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	maxDepth := s.cfg.Crawler.DefaultMaxDepth
	if req.MaxDepth != nil {
		maxDepth = *req.MaxDepth
	}

	res, err := s.ctrl.EnqueueSeed(r.Context(), control.SeedRequest{
		URL:      req.StartURL,
		MaxDepth: maxDepth,
		Reset:    req.Reset,
	})
	if err != nil {
		s.writeControlError(w, "enqueue seed", err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

func (s *Server) parseCrawlRequest(r *http.Request) (crawlRequest, error) {
	var req crawlRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return crawlRequest{}, errors.New("invalid JSON")
		}
		return req, nil
	}

	if err := r.ParseForm(); err != nil {
		return crawlRequest{}, errors.New("invalid form body")
	}
	req.StartURL = r.PostForm.Get("start_url")
	if raw := strings.TrimSpace(r.PostForm.Get("max_depth")); raw != "" {
		depth, err := strconv.Atoi(raw)
		if err != nil {
			return crawlRequest{}, fmt.Errorf("max_depth must be an integer")
		}
		req.MaxDepth = &depth
	}
	if raw := r.PostForm.Get("reset"); raw != "" {
		reset, err := strconv.ParseBool(raw)
		if err != nil {
			return crawlRequest{}, fmt.Errorf("reset must be a boolean")
		}
		req.Reset = reset
	}
	return req, nil
}

func (s *Server) pause(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Pause()
	s.stats(w, r)
}

func (s *Server) resume(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Resume(r.Context()); err != nil {
		s.writeControlError(w, "resume", err)
		return
	}
	s.stats(w, r)
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Reset(r.Context()); err != nil {
		s.writeControlError(w, "reset", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	status, err := s.ctrl.Status(r.Context())
	if err != nil {
		s.writeControlError(w, "status", err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) writeControlError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, control.ErrInvalidSeed):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, control.ErrRunning):
		writeError(w, http.StatusConflict, "crawl is running; pause and let it drain first")
	case errors.Is(err, control.ErrShutdown):
		writeError(w, http.StatusServiceUnavailable, "shutting down")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusRequestTimeout, "request timed out")
	default:
		s.logger.Error(op+" failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, op+" failed")
	}
}

// statusFromQuery parses the optional status filter; empty matches all.
func statusFromQuery(raw string) (crawler.Status, error) {
	status := crawler.Status(strings.ToLower(strings.TrimSpace(raw)))
	if status == "" || status.Valid() {
		return status, nil
	}
	return "", errors.New("invalid status")
}
