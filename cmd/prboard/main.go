// Package main provides the entry point for the pull request dashboard service.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/devrev/prboard/internal/config"
	"github.com/devrev/prboard/internal/enrich"
	"github.com/devrev/prboard/internal/gateway"
	"github.com/devrev/prboard/internal/github"
	"github.com/devrev/prboard/internal/metrics"
	"github.com/devrev/prboard/internal/notify"
	"github.com/devrev/prboard/internal/scheduler"
	"github.com/devrev/prboard/internal/server"
	"github.com/devrev/prboard/internal/service"
	"github.com/devrev/prboard/internal/store"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Bootstrap logger for config loading; replaced once config is read
	logger, _ := zap.NewProduction()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	// Initialize the configured logger
	logger = initLogger(cfg.Logging)
	defer logger.Sync()

	logger.Info("starting pull request dashboard service")

	logger.Info("configuration loaded",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("github_org", cfg.GitHub.Org),
		zap.String("cache_backend", cfg.Cache.Backend),
	)

	// Initialize the key-value store backing the cache blob
	var kv store.KeyValueStore
	switch cfg.Cache.Backend {
	case "redis":
		kv, err = store.NewRedisKeyValueStore(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
	default:
		kv, err = store.NewFileKeyValueStore(cfg.Cache.FilePath, cfg.Cache.FileMaxBytes, logger)
		if err != nil {
			logger.Fatal("failed to open cache file", zap.Error(err))
		}
	}
	defer kv.Close()

	// Initialize metrics
	m := metrics.NewMetrics()

	// Start metrics server if enabled
	var metricsServer *metrics.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, logger)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.Error("metrics server error", zap.Error(err))
			}
		}()
		logger.Info("metrics server started",
			zap.Int("port", cfg.Metrics.Port),
			zap.String("path", cfg.Metrics.Path),
		)
	}

	// Notifications flow to the log and to a ring buffer the UI can poll
	notifications := notify.NewRingNotifier(100, notify.NewLogNotifier(logger))

	// TTL policy per response category
	policy := store.NewTTLPolicy(map[store.Category]time.Duration{
		store.CategoryDefault:      cfg.Cache.DefaultTTL,
		store.CategoryRepoMetadata: cfg.Cache.RepoMetadataTTL,
		store.CategoryCommitList:   cfg.Cache.CommitListTTL,
		store.CategoryBranchList:   cfg.Cache.BranchListTTL,
	})

	// Response cache with debounced persistence
	cache := store.NewResponseCache(kv, policy, scheduler.NewTimerScheduler(), notifications, logger, store.CacheOptions{
		BlobKey:       cfg.Cache.BlobKey,
		Debounce:      cfg.Cache.Debounce,
		EvictFraction: cfg.Cache.EvictFraction,
		Compression:   cfg.Cache.Compression,
		Metrics:       m,
	})

	// Upstream gateway and API client
	gw := gateway.New(nil, cache, notifications, logger, m, gateway.Options{
		Token:                cfg.GitHub.Token,
		RateWarnThreshold:    cfg.GitHub.RateWarnThreshold,
		MaxRequestsPerSecond: cfg.GitHub.RequestsPerSecond,
	})
	client := github.NewClient(gw, cfg.GitHub.BaseURL, cfg.GitHub.Org)

	// Enrichment engine and services
	engine := enrich.NewEngine(client, logger, m, cfg.Enrichment.Concurrency)
	pulls := service.NewPullService(client, engine, cache, cfg.GitHub.Username, logger)
	visits := service.NewVisitService(kv, logger)

	// Initialize HTTP server
	httpServer := server.NewServer(cfg, pulls, visits, notifications, kv, m, logger)
	httpServer.SetupRoutes()

	// Start HTTP server in goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			errChan <- err
		}
	}()

	logger.Info("HTTP server started", zap.Int("port", cfg.Server.Port))

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errChan:
		logger.Error("server error", zap.Error(err))
	}

	// Graceful shutdown
	logger.Info("initiating graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Shutdown HTTP server
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown HTTP server", zap.Error(err))
	}

	// Shutdown metrics server
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown metrics server", zap.Error(err))
		}
	}

	// Flush any cache writes still waiting on the debounce timer
	cache.Flush()

	logger.Info("shutdown complete")
}

// initLogger builds the zap logger from the logging configuration.
func initLogger(cfg config.LoggingConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	output := cfg.Output
	if output == "" {
		output = "stdout"
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.OutputPaths = []string{output}
	zapCfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := zapCfg.Build()
	if err != nil {
		// Fallback to basic logger
		logger, _ = zap.NewProduction()
	}

	return logger
}
