// Package api serves the Collection Log as a read-only JSON query service.
//
// Every request reads the persisted log from disk; the server holds no state
// of its own beyond request metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/pfrederiksen/fomc-docs/internal/logger"
)

const (
	DefaultAddr     = ":8000"
	shutdownTimeout = 10 * time.Second
)

// Options configures a Server
type Options struct {
	Logger *logger.Logger
	Now    func() time.Time
}

// Server answers queries against one data directory
type Server struct {
	root    string
	log     *logger.Logger
	now     func() time.Time
	metrics *httpMetrics
	router  chi.Router
}

// New creates a Server reading the log under root
func New(root string, opts Options) *Server {
	s := &Server{
		root:    root,
		log:     opts.Logger,
		now:     opts.Now,
		metrics: newHTTPMetrics(),
	}
	if s.log == nil {
		s.log = logger.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Get("/years", s.handleYears)
	r.Get("/statements", s.handleStatements)
	r.Get("/statements/{year}", s.handleStatementsByYear)
	r.Get("/calendar.ics", s.handleCalendar)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, fmt.Errorf("no route for %s", r.URL.Path))
	})
	return r
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("query service listening", logger.Fields{"addr": addr, "data_dir": s.root})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving %s: %w", addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.log.Info("shutting down query service", nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// observe logs each request and records it in the request metrics
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		s.metrics.observe(route, status, elapsed)

		s.log.Debug("request served", logger.Fields{
			"method":     r.Method,
			"route":      route,
			"status":     status,
			"duration":   elapsed.String(),
			"request_id": middleware.GetReqID(r.Context()),
		})
	})
}

// httpMetrics holds the service's Prometheus collectors on a private registry
type httpMetrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newHTTPMetrics() *httpMetrics {
	reg := prometheus.NewRegistry()
	m := &httpMetrics{
		registry: reg,
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fomc_docs",
				Name:      "http_requests_total",
				Help:      "Query service requests by route and status",
			},
			[]string{"route", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "fomc_docs",
				Name:      "http_request_duration_seconds",
				Help:      "Query service request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}
	reg.MustRegister(m.requests, m.duration)
	return m
}

func (m *httpMetrics) observe(route string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(route, fmt.Sprintf("%d", status)).Inc()
	m.duration.WithLabelValues(route).Observe(elapsed.Seconds())
}
