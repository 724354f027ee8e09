package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/terra-clan/ruleset-engine/internal/api"
	"github.com/terra-clan/ruleset-engine/internal/cache"
	"github.com/terra-clan/ruleset-engine/internal/cleanup"
	"github.com/terra-clan/ruleset-engine/internal/config"
	"github.com/terra-clan/ruleset-engine/internal/grading"
	"github.com/terra-clan/ruleset-engine/internal/health"
	"github.com/terra-clan/ruleset-engine/internal/placement"
	"github.com/terra-clan/ruleset-engine/internal/registry"
	"github.com/terra-clan/ruleset-engine/internal/rewards"
	"github.com/terra-clan/ruleset-engine/internal/scoring"
	"github.com/terra-clan/ruleset-engine/internal/seed"
	"github.com/terra-clan/ruleset-engine/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("starting ruleset-engine",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"storage", cfg.Database.Driver,
		"redis", cfg.Redis.Enabled(),
		"strict_overlap", cfg.Rules.StrictOverlap,
	)

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	checks := health.NewRegistry()

	// Initialize rule set storage
	var repo storage.Repository
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		slog.Info("running database migrations", "dir", cfg.Database.MigrationsDir)
		if err := storage.MigrateFromDSN(initCtx, cfg.Database.DSN, cfg.Database.MigrationsDir); err != nil {
			slog.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}

		pg, err := storage.NewPostgresRepository(initCtx, storage.PostgresConfig{
			DSN:          cfg.Database.DSN,
			MaxOpenConns: cfg.Database.MaxConns,
			MaxIdleConns: cfg.Database.MinConns,
			MaxLifetime:  cfg.Database.MaxLifetime,
		})
		if err != nil {
			slog.Error("failed to create database repository", "error", err)
			os.Exit(1)
		}
		slog.Info("database connected successfully")
		repo = pg
	default:
		slog.Warn("using in-memory storage; rule sets are lost on restart")
		repo = storage.NewMemoryRepository()
	}
	defer repo.Close()
	checks.Register("storage", health.CheckerFunc(repo.Ping))

	// Redis backs the snapshot cache and placement sessions when configured
	var (
		redisClient *redis.Client
		snapshots   cache.Snapshots = cache.Noop{}
		sessions    placement.Store
		purger      cleanup.SessionPurger
	)
	if cfg.Redis.Enabled() {
		redisClient, err = cache.NewRedisClient(initCtx, cache.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()

		redisSnapshots := cache.NewRedisSnapshots(redisClient, cfg.Redis.KeyPrefix, cfg.Rules.CacheTTL)
		snapshots = redisSnapshots
		checks.Register("redis", redisSnapshots)

		sessions = placement.NewRedisStore(redisClient, cfg.Redis.KeyPrefix, cfg.Placement.SessionTTL)
		slog.Info("redis connected successfully", "address", cfg.Redis.Address)
	} else {
		memorySessions := placement.NewMemoryStore()
		sessions = memorySessions
		purger = memorySessions
	}

	reg := registry.New(repo, registry.Options{
		Strict: cfg.Rules.StrictOverlap,
		Cache:  snapshots,
	})

	// Apply seed rule sets
	if cfg.Seeds.Dir != "" {
		loader := seed.NewLoader()
		if err := loader.LoadFromDir(cfg.Seeds.Dir); err != nil {
			slog.Warn("failed to load seeds from dir", "dir", cfg.Seeds.Dir, "error", err)
		} else if _, err := seed.Apply(initCtx, reg, loader.List()); err != nil {
			slog.Error("failed to apply seeds", "error", err)
			os.Exit(1)
		}
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start cleanup worker
	cleaner := cleanup.NewCleaner(purger, reg, cfg.Cleanup.Interval)
	cleaner.Start(ctx)

	// Setup HTTP server
	server := api.NewServer(cfg.Server, api.Dependencies{
		Registry:  reg,
		Scoring:   scoring.NewResolver(reg),
		Rewards:   rewards.NewResolver(reg),
		Grader:    grading.NewGrader(reg),
		Placement: placement.NewService(reg, placement.NewEngine(cfg.Placement.SessionTTL), sessions),
		Health:    checks,
	})
	httpServer := &http.Server{
		Addr:        cfg.Server.Addr(),
		Handler:     server.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully...")

	// Cancel context to stop background workers
	cancel()
	<-cleaner.Done()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("ruleset-engine stopped")
}
