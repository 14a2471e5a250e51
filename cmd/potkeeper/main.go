// Command potkeeper runs the potkeeper API server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/platinummonkey/potkeeper/pkg/access"
	"github.com/platinummonkey/potkeeper/pkg/accounts"
	"github.com/platinummonkey/potkeeper/pkg/admin"
	"github.com/platinummonkey/potkeeper/pkg/api"
	"github.com/platinummonkey/potkeeper/pkg/async"
	"github.com/platinummonkey/potkeeper/pkg/auth"
	"github.com/platinummonkey/potkeeper/pkg/catalog"
	"github.com/platinummonkey/potkeeper/pkg/config"
	"github.com/platinummonkey/potkeeper/pkg/lifecycle"
	"github.com/platinummonkey/potkeeper/pkg/media"
	"github.com/platinummonkey/potkeeper/pkg/middleware"
	"github.com/platinummonkey/potkeeper/pkg/observability"
	"github.com/platinummonkey/potkeeper/pkg/storage"
	"github.com/platinummonkey/potkeeper/pkg/storage/objectstore"
	"github.com/platinummonkey/potkeeper/pkg/storage/postgres"
	"github.com/platinummonkey/potkeeper/pkg/storage/postgres/migrations"
	"github.com/platinummonkey/potkeeper/pkg/storage/redisstore"
)

var version = "dev"

const dbStatsInterval = 15 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file (defaults to $POTKEEPER_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "potkeeper: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout).
		WithField("service", "potkeeper").
		WithField("version", version)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("potkeeper exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	providers, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	conns, err := postgres.NewConnectionManager(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	db := conns.Primary()

	if cfg.Storage.AutoMigrate {
		if err := migrations.Up(ctx, db); err != nil {
			conns.Close()
			return err
		}
		logger.Info("database migrations applied")
	}

	var cache *redisstore.Client
	if cfg.Storage.RedisURL != "" {
		cache, err = redisstore.New(ctx, cfg.Storage)
		if err != nil {
			conns.Close()
			return fmt.Errorf("connect redis: %w", err)
		}
	}

	blobs, pinger, err := openBlobStore(ctx, cfg, logger)
	if err != nil {
		conns.Close()
		return err
	}

	runner := async.NewRunner(logger, metrics, cfg.Server.BackgroundTaskTimeout)
	codec := auth.NewTokenCodec([]byte(cfg.Auth.JWTSecret))
	gate := access.NewGate(db, cfg.Auth.AdminEmails, cfg.Quotas, logger, metrics)
	keys := media.NewKeys(cfg.Storage.PublicBaseURL, cfg.Storage.DefaultImages)
	cleaner := media.NewCleaner(blobs, keys, logger, metrics)
	cat := catalog.New(conns.Replica(), metrics)

	accountsSvc := accounts.NewService(db, codec, auth.NewPasswordHasher(), gate,
		accounts.NewLogMailer(logger), runner, logger, cfg.Server.PublicURL)
	lifecycleSvc := lifecycle.NewService(db, gate, blobs, cleaner, runner, logger)
	adminSvc := admin.NewService(db, cat, cleaner, logger, metrics)

	server := api.NewServer(api.Dependencies{
		Accounts:         accountsSvc,
		Lifecycle:        lifecycleSvc,
		Admin:            adminSvc,
		Catalog:          cat,
		Identity:         middleware.NewIdentityMiddleware(codec, logger),
		Admins:           gate,
		IdentifyThrottle: identifyThrottle(ctx, cfg, cache, logger),
		Logger:           logger,
		Metrics:          metrics,
		CORSOrigins:      cfg.Server.CORSOrigins,
		MaxBodyBytes:     cfg.Server.MaxBodyBytes,
	})

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	var redisClient *redis.Client
	if cache != nil {
		redisClient = cache.Redis()
	}
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient, pinger).WithVersion(version))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:        net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:     healthMux,
		ReadTimeout: 5 * time.Second,
	}

	if metrics != nil {
		async.SafeGoNoError(ctx, logger, 0, "db_stats", func(ctx context.Context) {
			recordDBStats(ctx, db, metrics)
		})
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, apiServer, healthServer)
	shutdown.RegisterShutdownFunc("background_tasks", runner.Drain)
	if cache != nil {
		shutdown.RegisterShutdownFunc("redis", func(context.Context) error { return cache.Close() })
	}
	shutdown.RegisterShutdownFunc("postgres", func(context.Context) error { return conns.Close() })
	shutdown.RegisterShutdownFunc("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})

	serveErr := make(chan error, 2)
	for _, srv := range []*http.Server{apiServer, healthServer} {
		srv := srv
		go func() {
			logger.WithField("addr", srv.Addr).Info("listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- fmt.Errorf("serve %s: %w", srv.Addr, err)
			}
		}()
	}

	go func() {
		if err := <-serveErr; err != nil {
			logger.WithError(err).Error("server failed")
			cancel()
		}
	}()

	return shutdown.WaitForShutdown(ctx)
}

// openBlobStore returns the S3 store when a bucket is configured and the
// no-op store otherwise.
func openBlobStore(ctx context.Context, cfg *config.Config, logger *observability.Logger) (storage.BlobStore, observability.Pinger, error) {
	if cfg.Storage.S3Bucket == "" {
		logger.Warn("no S3 bucket configured, uploaded images will not be persisted")
		nop := storage.NopBlobStore{}
		return nop, nop, nil
	}
	store, err := objectstore.NewS3BlobStore(ctx, cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("open blob store: %w", err)
	}
	return store, store, nil
}

// identifyThrottle shares limits across replicas through Redis when it is
// available and falls back to a per-process limiter.
func identifyThrottle(ctx context.Context, cfg *config.Config, cache *redisstore.Client, logger *observability.Logger) *middleware.RateLimitMiddleware {
	limits := &middleware.RateLimitConfig{
		RequestsPerWindow: cfg.RateLimit.IdentifyRequests,
		WindowDuration:    cfg.RateLimit.IdentifyWindow,
		BurstSize:         cfg.RateLimit.IdentifyBurst,
	}

	var limiter middleware.Limiter
	if cache != nil {
		limiter = middleware.NewDistributedRateLimiter(cache, limits, "potkeeper:ratelimit")
	} else {
		local := middleware.NewRateLimiter(limits)
		local.StartCleanup(ctx, logger)
		limiter = local
	}
	return middleware.NewRateLimitMiddleware(limiter, limits, "identify", logger)
}

func recordDBStats(ctx context.Context, db *sql.DB, metrics *observability.Metrics) {
	ticker := time.NewTicker(dbStatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.RecordDBStats(db.Stats())
		}
	}
}
