package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	odhttp "github.com/opsdesk/opsdesk/internal/adapter/http"
	odnats "github.com/opsdesk/opsdesk/internal/adapter/nats"
	"github.com/opsdesk/opsdesk/internal/adapter/natskv"
	"github.com/opsdesk/opsdesk/internal/adapter/otel"
	"github.com/opsdesk/opsdesk/internal/adapter/postgres"
	"github.com/opsdesk/opsdesk/internal/adapter/ristretto"
	"github.com/opsdesk/opsdesk/internal/adapter/tiered"
	"github.com/opsdesk/opsdesk/internal/audit"
	"github.com/opsdesk/opsdesk/internal/authz"
	"github.com/opsdesk/opsdesk/internal/config"
	"github.com/opsdesk/opsdesk/internal/logger"
	"github.com/opsdesk/opsdesk/internal/middleware"
	"github.com/opsdesk/opsdesk/internal/port/cache"
	"github.com/opsdesk/opsdesk/internal/resilience"
	"github.com/opsdesk/opsdesk/internal/service"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLogger := logger.New(cfg.Logging)
	defer closeLogger.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"audit_workers", cfg.Audit.Workers,
	)

	ctx := context.Background()

	// --- Infrastructure ---

	// PostgreSQL
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	// NATS JetStream
	queue, err := odnats.Connect(ctx, cfg.NATS.URL,
		odnats.WithMaxDeliver(cfg.Audit.MaxDeliver),
		odnats.WithRetryDelay(cfg.Audit.RetryDelay),
	)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()
	slog.Info("nats connected", "url", cfg.NATS.URL)

	// Membership snapshot cache. With shared caching on, a NATS KV bucket
	// sits behind the in-process level so invalidations reach every
	// instance.
	local, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer local.Close()

	snapshots := cache.Cache(local)
	if cfg.Cache.Shared {
		kv, err := queue.KeyValue(ctx, "authz-snapshots", cfg.Authz.SnapshotTTL)
		if err != nil {
			return fmt.Errorf("shared cache: %w", err)
		}
		snapshots = tiered.New(local, natskv.New(kv), cfg.Authz.SnapshotTTL)
		slog.Info("shared snapshot cache enabled")
	}

	// Telemetry. Providers must be installed before any instrument is
	// created, or the instruments bind to the no-op globals.
	shutdownTelemetry, err := otel.Init(ctx, cfg.Otel.Enabled, cfg.Otel.Endpoint, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(shutdownCtx)
	}()
	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Authorization & audit core ---

	store := postgres.NewStore(pool)
	auditStore := postgres.NewAuditStore(pool)

	resolver := authz.NewResolver(store,
		authz.WithCache(snapshots, cfg.Authz.SnapshotTTL),
		authz.WithStoreTimeout(cfg.Authz.StoreTimeout),
	)
	gate := authz.NewGate(store)
	recorder := audit.NewRecorder(queue)

	engine := audit.NewEngine(queue, auditStore,
		audit.WithWorkers(cfg.Audit.Workers),
		audit.WithWriteTimeout(cfg.Audit.WriteTimeout),
		audit.WithBreaker(resilience.NewBreaker(cfg.Audit.BreakerMaxFailures, cfg.Audit.BreakerTimeout)),
		audit.WithInstruments(metrics),
	)
	stopEngine, err := engine.Start(ctx)
	if err != nil {
		return fmt.Errorf("audit engine: %w", err)
	}
	defer stopEngine()
	slog.Info("audit engine started", "workers", cfg.Audit.Workers)

	// --- Services ---

	authSvc := service.NewAuthService(store, recorder, &cfg.Auth)
	orgSvc := service.NewOrgService(store, resolver, gate, recorder)
	memberSvc := service.NewMemberService(store, resolver, gate, recorder)
	activitySvc := service.NewActivityService(auditStore)

	// --- HTTP ---

	handlers := odhttp.NewHandlers(authSvc, orgSvc, memberSvc, activitySvc, metrics, pool, queue)

	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopCleanup := limiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	defer stopCleanup()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestMeta)
	r.Use(odhttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(odhttp.SecurityHeaders)
	r.Use(odhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(limiter.Handler)
	if cfg.Otel.Enabled {
		r.Use(otel.HTTPMiddleware(cfg.Logging.Service))
	}
	r.Use(middleware.Auth(authSvc, cfg.Auth.Enabled))

	odhttp.MountRoutes(r, handlers, resolver)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	// Let in-flight audit events drain before workers stop.
	if err := queue.Drain(); err != nil {
		slog.Warn("nats drain", "error", err)
	}
	return nil
}
