// Package main provides the API server entry point for the portfolio tracker.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/defi-portfolio-tracker/internal/aggregator"
	"github.com/defi-portfolio-tracker/internal/api"
	"github.com/defi-portfolio-tracker/internal/config"
	"github.com/defi-portfolio-tracker/internal/logging"
	"github.com/defi-portfolio-tracker/internal/service"
	"github.com/defi-portfolio-tracker/internal/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to ClickHouse")
	}
	defer clickhouse.Close()

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	if err := clickhouse.EnsureSchema(startupCtx); err != nil {
		cancelStartup()
		logger.WithError(err).Fatal("Failed to ensure ClickHouse schema")
	}
	cancelStartup()

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	logger.Info("Database connections established")

	// Repositories
	snapshotRepo := storage.NewSnapshotRepository(postgres.Pool())
	historyRepo := storage.NewPositionHistoryRepository(clickhouse)
	navRepo := storage.NewNavSettingsRepository(postgres.Pool())
	cacheService := storage.NewCacheService(redis, cfg.Cache.TTL)

	// Upstream clients
	aggClient := aggregator.NewDeBankClient(cfg.Aggregator.BaseURL, cfg.Aggregator.APIKey, cfg.Aggregator.Timeout)
	priceClient := aggregator.NewCoinGeckoClient(cfg.Aggregator.PriceBaseURL, cfg.Aggregator.APIKey, cfg.Aggregator.Timeout)

	// Services
	logger.Info("Initializing services...")
	refreshService := service.NewRefreshService(
		aggClient,
		priceClient,
		snapshotRepo,
		historyRepo,
		cacheService,
		cfg.Snapshot.Location(),
	)
	snapshotService := service.NewSnapshotService(snapshotRepo, cacheService)
	apyService := service.NewApyService(historyRepo, cacheService)
	navService := service.NewNavService(navRepo, snapshotRepo)
	logger.Info("Services initialized")

	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		RateLimitRPS:    cfg.RateLimit.RequestsPerSecond,
		RateLimitBurst:  cfg.RateLimit.Burst,
	}

	server := api.NewServer(serverConfig, refreshService, snapshotService, apyService, navService)

	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
