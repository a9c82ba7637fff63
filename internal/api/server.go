package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/paper-feeds/internal/apiclient"
	"github.com/JakeFAU/paper-feeds/internal/feeds"
	"github.com/JakeFAU/paper-feeds/internal/metrics"
)

const (
	defaultRequestTimeout = 60 * time.Second
	enqueueTimeout        = 5 * time.Second
	readyTimeout          = 2 * time.Second
)

// JournalService is the subset of *pipeline.Service the handlers drive.
type JournalService interface {
	SearchJournals(ctx context.Context, query string) ([]feeds.Journal, error)
	EnableFeed(ctx context.Context, issn string) (feeds.Journal, string, error)
	RequestRefresh(ctx context.Context, issn, reason string) (string, error)
}

// FeedRenderer is satisfied by *rss.Builder.
type FeedRenderer interface {
	Render(ctx context.Context, journal feeds.Journal) (string, error)
	FeedURL(issn string) string
}

// Deps bundles the Server collaborators.
type Deps struct {
	Service JournalService
	Store   feeds.Store
	Feeds   FeedRenderer
	Logger  *zap.Logger
}

// Options tunes the HTTP layer.
type Options struct {
	RequestTimeout time.Duration
}

// Server wires HTTP handlers to the journal service and stores.
type Server struct {
	router  chi.Router
	service JournalService
	store   feeds.Store
	feeds   FeedRenderer
	fetches *FetchHandler
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, opts Options) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	s := &Server{
		service: deps.Service,
		store:   deps.Store,
		feeds:   deps.Feeds,
		fetches: NewFetchHandler(deps.Store, logger),
		logger:  logger.Named("http"),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(opts.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Handle("/static/*", staticHandler())

	r.Get("/", s.index)
	r.Post("/search", s.searchHTML)
	r.Route("/journals/{issn}", func(r chi.Router) {
		r.Get("/", s.journalHTML)
		r.Post("/feed", s.makeFeed)
		r.Get("/rss", s.journalRSS)
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/journals", func(r chi.Router) {
			r.Get("/", s.listFeedJournals)
			r.Get("/search", s.searchJournals)
			r.Route("/{issn}", func(r chi.Router) {
				r.Get("/", s.getJournal)
				r.Get("/papers", s.listPapers)
				r.Post("/refresh", s.refreshJournal)
			})
		})
		r.Get("/fetches", s.fetches.ListFetches)
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

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// statusFor maps service errors onto HTTP statuses.
func statusFor(err error) int {
	var statusErr *apiclient.StatusError
	switch {
	case errors.Is(err, feeds.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, feeds.ErrQueueFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &statusErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorMessage(status int, fallback string) string {
	switch status {
	case http.StatusNotFound:
		return "journal not found"
	case http.StatusServiceUnavailable:
		return "fetch queue is full, try again later"
	case http.StatusGatewayTimeout:
		return "upstream request timed out"
	case http.StatusBadGateway:
		return "upstream request failed"
	default:
		return fallback
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg,
			zap.String("request_id", requestID(r.Context())),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	writeError(w, status, errorMessage(status, msg))
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.Info("request completed",
				zap.String("request_id", requestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("panic recovered",
						zap.String("request_id", requestID(r.Context())),
						zap.Any("panic", rec),
						zap.Stack("stack"),
					)
					writeError(w, http.StatusInternalServerError, "internal server error")
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

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
