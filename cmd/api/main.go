package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/docsmith-platform/docsmith/internal/api"
	"github.com/docsmith-platform/docsmith/internal/batch"
	"github.com/docsmith-platform/docsmith/internal/config"
	"github.com/docsmith-platform/docsmith/internal/database"
	"github.com/docsmith-platform/docsmith/internal/events"
	"github.com/docsmith-platform/docsmith/internal/generation"
	"github.com/docsmith-platform/docsmith/internal/identity"
	"github.com/docsmith-platform/docsmith/internal/middleware"
	"github.com/docsmith-platform/docsmith/internal/quota"
	iredis "github.com/docsmith-platform/docsmith/internal/redis"
	"github.com/docsmith-platform/docsmith/internal/server"
	"github.com/docsmith-platform/docsmith/internal/source"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	ctx := context.Background()

	// PostgreSQL
	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("connecting to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if path := os.Getenv("MIGRATIONS_PATH"); path != "" {
		if err := database.RunMigrations(cfg.DB.DSN(), path); err != nil {
			slog.Error("running migrations", "error", err)
			os.Exit(1)
		}
	}

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// NATS is optional: without it events are dropped, the ledger stays
	// authoritative.
	var eventsClient *events.Client
	if cfg.NATS.Enabled {
		eventsClient, err = events.NewClient(ctx, cfg.NATS)
		if err != nil {
			slog.Error("connecting to nats", "error", err)
			os.Exit(1)
		}
		defer eventsClient.Close()
	}
	publisher := events.NewPublisher(eventsClient)

	// Usage ledger
	ledger := quota.NewLedger(quota.NewStore(pool), cfg.Tiers)
	quotaHandler := quota.NewHandler(ledger, publisher)

	// Generation
	generator := generation.NewClient(cfg.Generator)
	generateHandler := generation.NewHandler(generator, ledger, publisher)

	// Batch runs
	sessions := batch.NewSessionStore(redisClient, cfg.Batch.SessionTTL)
	orchestrator := batch.NewOrchestrator(
		generator,
		source.NewFetcher(cfg.Source),
		ledger,
		sessions,
		publisher,
		cfg.Batch.InterJobDelay,
		cfg.Batch.MaxFiles,
	)
	batchHandler := batch.NewHandler(orchestrator, ledger)

	// Identity
	resolver := identity.NewResolver(
		identity.NewTokenValidator(cfg.JWT.AccessSecret, cfg.JWT.Issuer),
		cfg.Tiers,
	)

	// Single-file generation is the hot path; cap bursts per IP on top of
	// the quota ledger.
	generateLimiter := middleware.NewRateLimiter(redisClient, 30, 60)

	router := api.NewRouter(pool, eventsClient, api.RouterConfig{
		CORSAllowedOrigins:  cfg.CORS.AllowedOrigins,
		GenerateRateLimiter: generateLimiter.Middleware,
	}, api.HandlerSet{
		Generate: generateHandler.Generate,

		BatchStart:    batchHandler.Start,
		BatchProgress: batchHandler.Progress,
		BatchCancel:   batchHandler.Cancel,
		BatchResult:   batchHandler.Result,
		BatchReset:    batchHandler.Reset,

		GetUsage:     quotaHandler.GetUsage,
		MigrateUsage: quotaHandler.MigrateUsage,

		IdentityMiddleware: resolver.Middleware,
		RequireUser:        identity.RequireUser,
	})

	srv := server.New(cfg.Server, router)
	if err := srv.Start(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
