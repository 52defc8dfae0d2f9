// Package server exposes the enrichment service as a small JSON API for the
// admin picker: location suggestions, thumbnail candidates and image checks.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/referencias-work/curator-cli/internal/enrich"
	"github.com/referencias-work/curator-cli/internal/linkcheck"
	"github.com/referencias-work/curator-cli/internal/model"
)

// Enricher is the subset of enrich.Service the API calls.
type Enricher interface {
	SuggestLocation(ctx context.Context, siteURL string) (model.LocationResult, error)
	FindThumbnail(ctx context.Context, siteURL string, strategy enrich.Strategy) (model.ThumbnailResult, error)
	Candidates(ctx context.Context, siteURL string) ([]string, error)
}

// LinkChecker checks image URLs.
type LinkChecker interface {
	CheckAll(ctx context.Context, items []linkcheck.Item) []linkcheck.Result
}

// RequestObserver counts responses, typically into Prometheus.
type RequestObserver interface {
	ObserveRequest(route string, status int)
}

// Options configure the server.
type Options struct {
	CORSOrigins []string
	// Gatherer serves /metrics. Nil disables the route.
	Gatherer prometheus.Gatherer
	Observer RequestObserver
}

// Server holds the API dependencies.
type Server struct {
	enricher Enricher
	checker  LinkChecker
	opts     Options
}

// New creates a Server.
func New(e Enricher, c LinkChecker, opts Options) *Server {
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	return &Server{enricher: e, checker: c, opts: opts}
}

// Routes returns the chi router with middleware mounted.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api/admin", func(r chi.Router) {
		r.Get("/location", s.handleLocation)
		r.Get("/thumbs", s.handleThumbs)
		r.Get("/thumbnail", s.handleThumbnail)
		r.Post("/check-images", s.handleCheckImages)
	})
	if s.opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// logRequests logs one line per request and feeds the observer.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		if s.opts.Observer != nil {
			s.opts.Observer.ObserveRequest(route, status)
		}
		zap.L().Info("server: request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
