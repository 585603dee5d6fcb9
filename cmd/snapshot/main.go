// Package main provides a CLI for refreshing a wallet's daily snapshot,
// intended to be invoked from cron for scheduled end-of-day captures.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/defi-portfolio-tracker/internal/aggregator"
	"github.com/defi-portfolio-tracker/internal/config"
	"github.com/defi-portfolio-tracker/internal/logging"
	"github.com/defi-portfolio-tracker/internal/service"
	"github.com/defi-portfolio-tracker/internal/storage"
)

func main() {
	var (
		userID  = flag.String("user", "", "User the wallet belongs to (required)")
		wallet  = flag.String("wallet", "", "Wallet address to refresh (required)")
		timeout = flag.Duration("timeout", 2*time.Minute, "Overall refresh timeout")
	)
	flag.Parse()

	if *userID == "" || *wallet == "" {
		log.Fatal("Both -user and -wallet are required")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger()

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

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	snapshotRepo := storage.NewSnapshotRepository(postgres.Pool())
	historyRepo := storage.NewPositionHistoryRepository(clickhouse)
	cacheService := storage.NewCacheService(redis, cfg.Cache.TTL)

	aggClient := aggregator.NewDeBankClient(cfg.Aggregator.BaseURL, cfg.Aggregator.APIKey, cfg.Aggregator.Timeout)
	priceClient := aggregator.NewCoinGeckoClient(cfg.Aggregator.PriceBaseURL, cfg.Aggregator.APIKey, cfg.Aggregator.Timeout)

	refreshService := service.NewRefreshService(
		aggClient,
		priceClient,
		snapshotRepo,
		historyRepo,
		cacheService,
		cfg.Snapshot.Location(),
	)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	result, err := refreshService.Refresh(ctx, *userID, *wallet)
	if err != nil {
		logger.WithError(err).Fatal("Refresh failed")
	}

	fields := map[string]interface{}{
		"wallet":      *wallet,
		"totalNavUsd": result.Snapshot.TotalNavUSD,
		"date":        result.Snapshot.SnapshotDate.Format("2006-01-02"),
	}
	if result.Stale {
		logger.WithFields(fields).Warn("Upstream unavailable; existing snapshot left in place")
		return
	}
	logger.WithFields(fields).Info("Snapshot refreshed")
}
