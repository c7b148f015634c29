package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/clearledger/gateway/internal/cache"
	"github.com/clearledger/gateway/internal/config"
	"github.com/clearledger/gateway/internal/proxy"
	"github.com/clearledger/gateway/internal/ratelimit"
	"github.com/clearledger/gateway/internal/reqlog"
	logsqlite "github.com/clearledger/gateway/internal/reqlog/sqlite"
	"github.com/clearledger/gateway/internal/server"
	"github.com/clearledger/gateway/internal/telemetry"
	"github.com/clearledger/gateway/internal/track"
)

func main() {
	configPath := flag.String("config", "gateway.yaml", "path to the config file")
	flag.Parse()

	// Load .env if present, then config with env overrides.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	level := slog.LevelInfo
	if cfg.Server.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if cfg.Server.Tracing {
		shutdown, err := telemetry.Init("clearledger-gateway", logger)
		if err != nil {
			log.Fatalf("init tracing: %v", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("tracer shutdown failed", slog.String("error", err.Error()))
			}
		}()
	}

	store := buildCache(cfg, logger)
	defer store.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	tracker := track.New(track.WithMetrics(registry))
	logs := buildLogs(cfg, store, logger)
	limiter := ratelimit.New(store, buildPolicy(cfg), logger)
	router := buildProxy(cfg, logger)

	srv, err := server.New(server.Options{
		Port:         cfg.Server.Port,
		Debug:        cfg.Server.Debug,
		CORSOrigins:  cfg.Server.CORSOrigins,
		MaxBodySize:  cfg.Server.MaxBodySize,
		Cache:        store,
		RateLimit:    limiter,
		Logs:         logs,
		Tracker:      tracker,
		Proxy:        router,
		Logger:       logger,
		PromRegistry: registry,
		Tracing:      cfg.Server.Tracing,
	})
	if err != nil {
		log.Fatalf("build server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		log.Fatalf("server: %v", err)
	}
	logger.Info("gateway stopped")
}

func buildCache(cfg *config.Config, logger *slog.Logger) cache.Cache {
	if !cfg.Redis.Enabled {
		logger.Info("using in-memory cache; rate limits are per-instance only")
		return cache.NewMemory()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	logger.Info("using redis cache", slog.String("addr", cfg.Redis.Addr))
	return cache.NewRedis(rdb)
}

func buildLogs(cfg *config.Config, store cache.Cache, logger *slog.Logger) *reqlog.Service {
	opts := []reqlog.Option{
		reqlog.WithCapacity(cfg.Logging.Capacity),
		reqlog.WithBodyCap(cfg.Logging.BodyCap),
	}
	if cfg.Logging.SQLitePath != "" {
		sink, err := logsqlite.New(cfg.Logging.SQLitePath)
		if err != nil {
			log.Fatalf("open log archive: %v", err)
		}
		opts = append(opts, reqlog.WithSink(sink))
		logger.Info("request log archive enabled", slog.String("path", cfg.Logging.SQLitePath))
	}
	return reqlog.New(store, logger, opts...)
}

func buildPolicy(cfg *config.Config) ratelimit.Config {
	var policy ratelimit.Config
	switch cfg.RateLimit.Policy {
	case "strict":
		policy = ratelimit.Strict()
	case "relaxed":
		policy = ratelimit.Relaxed()
	case "per-minute":
		policy = ratelimit.PerMinute()
	case "per-hour":
		policy = ratelimit.PerHour()
	default:
		policy = ratelimit.Standard()
	}
	if cfg.RateLimit.Window > 0 {
		policy.Window = cfg.RateLimit.Window
	}
	if cfg.RateLimit.MaxRequests > 0 {
		policy.MaxRequests = cfg.RateLimit.MaxRequests
	}
	switch cfg.RateLimit.Scope {
	case "tenant":
		policy.KeyFunc = ratelimit.TenantKeyFunc
	case "user":
		policy.KeyFunc = ratelimit.UserKeyFunc
	}
	return policy
}

func buildProxy(cfg *config.Config, logger *slog.Logger) *proxy.Router {
	routes := make([]proxy.Route, 0, len(cfg.Routes))
	for _, r := range cfg.Routes {
		target, err := url.Parse(r.Target)
		if err != nil {
			log.Fatalf("route %s: bad target %q: %v", r.Service, r.Target, err)
		}
		routes = append(routes, proxy.Route{Prefix: r.Prefix, Service: r.Service, Target: target})
	}
	router, err := proxy.New(routes, logger)
	if err != nil {
		log.Fatalf("build routes: %v", err)
	}
	return router
}
