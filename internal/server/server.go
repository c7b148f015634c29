// Package server is the gateway's composition root: it wires logging, rate
// limiting, tracking, the auth gate, and route dispatch into one pipeline
// with a fixed stage order and a terminal error handler.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/clearledger/gateway/internal/cache"
	"github.com/clearledger/gateway/internal/proxy"
	"github.com/clearledger/gateway/internal/ratelimit"
	"github.com/clearledger/gateway/internal/reqlog"
	"github.com/clearledger/gateway/internal/track"
)

// Options carries the injected collaborators. Everything is explicit; there
// are no package-level singletons, so tests can build isolated instances.
type Options struct {
	Port        int
	Debug       bool
	CORSOrigins []string
	MaxBodySize int64

	Cache     cache.Cache
	RateLimit *ratelimit.Service
	Logs      *reqlog.Service
	Tracker   *track.Tracker
	Proxy     *proxy.Router
	Logger    *slog.Logger

	// PromRegistry, when set, is served at /metrics/prometheus.
	PromRegistry *prometheus.Registry

	// Tracing wraps the router with otelhttp instrumentation.
	Tracing bool
}

// Server owns the HTTP pipeline.
type Server struct {
	Router *chi.Mux

	opts    Options
	logger  *slog.Logger
	debug   bool
	started time.Time
	httpSrv *http.Server
}

// New assembles the pipeline. Stage order is load-bearing: logging begins
// before the rate limiter so rejected requests are still logged, tracking
// wraps everything the limiter admits, and the recoverer sits between
// tracking and the auth gate so error envelopes are counted and logged as
// ordinary responses.
func New(opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = 1 << 20
	}
	if opts.Tracker == nil {
		opts.Tracker = track.New()
	}
	if opts.Logs == nil {
		opts.Logs = reqlog.New(opts.Cache, opts.Logger)
	}
	if opts.Proxy == nil {
		var err error
		opts.Proxy, err = proxy.New(nil, opts.Logger)
		if err != nil {
			return nil, err
		}
	}

	s := &Server{
		opts:    opts,
		logger:  opts.Logger,
		debug:   opts.Debug,
		started: time.Now(),
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(securityHeaders)
	r.Use(corsMiddleware(opts.CORSOrigins))
	r.Use(bodyLimit(opts.MaxBodySize))
	r.Use(opts.Logs.Middleware)

	if opts.Tracing {
		r.Use(func(next http.Handler) http.Handler {
			return otelhttp.NewHandler(next, "clearledger-gateway")
		})
	}

	// Unauthenticated operational surface.
	r.Group(func(r chi.Router) {
		r.Use(opts.Tracker.Middleware)
		r.Use(s.recoverer)
		r.Get("/health", s.handle(s.handleHealth))
		r.Get("/metrics", s.handle(s.handleMetrics))
		if opts.PromRegistry != nil {
			r.Method(http.MethodGet, "/metrics/prometheus",
				promhttp.HandlerFor(opts.PromRegistry, promhttp.HandlerOpts{}))
		}
	})

	// Authenticated admin surface for the buffered request logs.
	r.Route("/admin/logs", func(r chi.Router) {
		r.Use(opts.Tracker.Middleware)
		r.Use(s.recoverer)
		r.Use(s.authGate)
		r.Get("/", s.handle(s.handleLogQuery))
		r.Get("/stats", s.handle(s.handleLogStats))
		r.Get("/export", s.handle(s.handleLogExport))
	})

	// Proxied business traffic.
	r.Route("/api", func(r chi.Router) {
		if opts.RateLimit != nil {
			r.Use(opts.RateLimit.Middleware)
		}
		r.Use(opts.Tracker.Middleware)
		r.Use(s.recoverer)
		r.Use(s.authGate)
		r.Handle("/*", opts.Proxy)
	})

	// Terminal handlers still count toward gateway stats: chi runs router-
	// level middleware before NotFound/MethodNotAllowed, but the tracker is
	// installed per group, so it has to be applied here explicitly.
	r.NotFound(opts.Tracker.Middleware(http.HandlerFunc(proxy.NotFoundHandler)).ServeHTTP)
	r.MethodNotAllowed(opts.Tracker.Middleware(http.HandlerFunc(proxy.MethodNotAllowedHandler)).ServeHTTP)

	s.Router = r
	return s, nil
}

// Start runs the server until the context is canceled.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.opts.Port),
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", slog.Int("port", s.opts.Port))
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.opts.Logs.Flush()
		return nil
	}
}
