package main

import (
	"context"
	"fmt"
	"os"

	"github.com/lumenlabs/lumen/pkg/cache"
	"github.com/lumenlabs/lumen/pkg/config"
	"github.com/lumenlabs/lumen/pkg/database"
	"github.com/lumenlabs/lumen/pkg/httputil"
	"github.com/lumenlabs/lumen/pkg/telemetry"
	"github.com/lumenlabs/lumen/services/experiment"
	"github.com/lumenlabs/lumen/services/runtime"
)

const serviceName = "lumen-experiments"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.Load(serviceName)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	tp, err := telemetry.Setup(ctx, telemetry.FromBase(cfg))
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer tp.Shutdown(ctx)

	logger := tp.Logger()

	storeOpts := experiment.StoreOptions{Backend: cfg.StorageBackend}
	if cfg.UsePostgresStorage() {
		db, err := database.ConnectDSN(ctx, cfg.DatabaseDSN())
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		migrator := database.NewMigrator(db, "experiment").WithLogger(logger)
		if err := migrator.LoadMigrations(experiment.Migrations, experiment.MigrationsDir); err != nil {
			return fmt.Errorf("failed to load migrations: %w", err)
		}
		if err := migrator.Up(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		storeOpts.DB = db.DB
	}

	store, err := experiment.NewStore(storeOpts)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}

	registry := runtime.NewRegistry()
	registry.Register(runtime.NewOpenAIProvider(cfg.OpenAIAPIKey))
	registry.Register(runtime.NewOllamaProvider(cfg.OllamaBaseURL))

	executor := experiment.NewExecutor(store, cfg.RunTimeout, logger)
	orchestrator := experiment.NewOrchestrator(store, executor, registry, cfg.MaxConcurrency, logger)
	svc := experiment.NewService(store, orchestrator, logger)
	handler := experiment.NewHandler(svc, logger)

	if cfg.CacheEnabled {
		redisCfg := cache.DefaultConfig()
		redisCfg.Addr = cfg.RedisAddr
		redisCfg.Password = cfg.RedisPassword
		redisCfg.DB = cfg.RedisDB

		redis, err := cache.Connect(ctx, redisCfg)
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer redis.Close()
		redis.WithLogger(logger).WithKeyPrefix("lumen")

		svc.WithCache(redis, cfg.CacheTTL)
		if cfg.SubmitRateLimit > 0 {
			limiter := cache.NewRateLimiter(redis, "ratelimit:submit",
				cfg.SubmitRateLimit, int(cfg.SubmitRateWindow.Seconds()))
			handler.WithRateLimiter(limiter)
		}
	}

	reconciler := experiment.NewReconciler(store, cfg.StaleRunThreshold, cfg.ReconcileInterval, logger)
	reconcileCtx, stopReconciler := context.WithCancel(ctx)
	defer stopReconciler()
	go reconciler.Run(reconcileCtx)

	router := httputil.NewRouter(logger)
	handler.Register(router)

	serverCfg := httputil.DefaultServerConfig(cfg.HTTPPort, serviceName)
	server := httputil.NewServer(serverCfg, router, logger)

	logger.Info("starting experiment service",
		"port", cfg.HTTPPort, "env", cfg.Environment, "storage", cfg.StorageBackend)

	return server.Run(ctx)
}
