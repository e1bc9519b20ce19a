// Package main provides the daily tracking worker entry point.
// The worker runs the full pipeline once per day at 00:00 UTC; it can also
// run once for a given date with "daily run [YYYY-MM-DD]".
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/migration-tracker/internal/analytics"
	"github.com/migration-tracker/internal/config"
	"github.com/migration-tracker/internal/detector"
	"github.com/migration-tracker/internal/logging"
	"github.com/migration-tracker/internal/marketdata"
	"github.com/migration-tracker/internal/models"
	"github.com/migration-tracker/internal/monitor"
	"github.com/migration-tracker/internal/pipeline"
	"github.com/migration-tracker/internal/storage"
)

func main() {
	fmt.Println("Migration Tracker Daily Worker")
	log.Println("Worker starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)
	logger := logging.GetGlobalLogger()

	// Connect to databases
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

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	logger.Info("Database connections established")

	ctx := logging.WithLogger(context.Background(), logger)

	pipe, err := buildPipeline(ctx, cfg, postgres, clickhouse, redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build pipeline")
	}

	// Check for one-time run mode
	if len(os.Args) > 1 && os.Args[1] == "run" {
		date := models.DateOnly(time.Now().UTC())
		if len(os.Args) > 2 {
			date, err = models.ParseDate(os.Args[2])
			if err != nil {
				logger.WithError(err).Fatal("Invalid date, expected YYYY-MM-DD")
			}
		}
		logger.WithField("date", models.FormatDate(date)).Info("Running pipeline once")
		result, err := pipe.Run(ctx, date)
		if err != nil {
			logger.WithError(err).Fatal("Pipeline run failed")
		}
		logResult(logger, result)
		return
	}

	// Start scheduler
	logger.Info("Starting daily scheduler...")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go runScheduler(ctx, pipe, logger)

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down daily worker...")
	cancel()
	time.Sleep(time.Second) // Give time for cleanup
	logger.Info("Worker stopped")
}

// buildPipeline wires the stores, provider clients, and pipeline stages.
func buildPipeline(
	ctx context.Context,
	cfg *config.Config,
	postgres *storage.PostgresDB,
	clickhouse *storage.ClickHouseDB,
	redis *storage.RedisCache,
) (*pipeline.Pipeline, error) {
	pool := postgres.Pool()
	collectionRepo := storage.NewCollectionRepository(pool)
	snapshotRepo := storage.NewSnapshotRepository(pool)
	holderRepo := storage.NewHolderRepository(pool)
	migrationRepo := storage.NewMigrationRepository(pool)
	analyticsRepo := storage.NewAnalyticsRepository(pool)
	alertRepo := storage.NewAlertRepository(pool)
	settlementPriceRepo := storage.NewSettlementPriceRepository(pool)
	apiLogRepo := storage.NewAPICallLogRepository(clickhouse.Conn())

	source, err := collectionRepo.EnsureCollection(ctx,
		cfg.Collections.Source.Slug, cfg.Collections.Source.Name, cfg.Collections.Source.Contract)
	if err != nil {
		return nil, err
	}
	dest, err := collectionRepo.EnsureCollection(ctx,
		cfg.Collections.Destination.Slug, cfg.Collections.Destination.Name, cfg.Collections.Destination.Contract)
	if err != nil {
		return nil, err
	}

	provider := marketdata.NewOpenSeaClient(&cfg.Provider, apiLogRepo)
	priceCache := storage.NewPriceCache(redis, cfg.Pricing.CacheTTL)
	priceClient := marketdata.NewCoinGeckoClient(&cfg.Pricing, apiLogRepo)
	priceService := marketdata.NewSettlementPriceService(priceClient, priceCache, settlementPriceRepo, &cfg.Pricing)

	det := detector.New(holderRepo, migrationRepo, source, dest)
	agg := analytics.NewAggregator(snapshotRepo, migrationRepo, analyticsRepo, priceService, source, dest, cfg.Analytics)
	mon := monitor.NewMonitor(alertRepo, analyticsRepo, snapshotRepo, apiLogRepo, source, dest, cfg.Monitoring)

	return pipeline.New(provider, snapshotRepo, holderRepo, priceService, det, agg, mon, source, dest), nil
}

// runScheduler runs the pipeline at 00:00 UTC daily.
func runScheduler(ctx context.Context, pipe *pipeline.Pipeline, logger *logging.Logger) {
	for {
		// Calculate time until next 00:00 UTC
		now := time.Now().UTC()
		next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
		duration := next.Sub(now)

		logger.WithFields(map[string]interface{}{
			"next_run": next.Format(time.RFC3339),
			"wait":     duration.String(),
		}).Info("Waiting for next run time")

		select {
		case <-ctx.Done():
			return
		case <-time.After(duration):
			date := models.DateOnly(time.Now().UTC())
			logger.WithField("date", models.FormatDate(date)).Info("Running daily pipeline")

			result, err := pipe.Run(ctx, date)
			if err != nil {
				logger.WithError(err).Error("Daily pipeline run failed")
				continue
			}
			logResult(logger, result)
		}
	}
}

func logResult(logger *logging.Logger, result *pipeline.RunResult) {
	if result.Skipped {
		logger.WithField("reason", result.SkipReason).Warn("Pipeline run skipped")
		return
	}
	logger.WithFields(map[string]interface{}{
		"date":       models.FormatDate(result.Date),
		"newEvents":  result.NewEvents,
		"candidates": result.ReviewCandidates,
		"alerts":     len(result.Alerts),
		"stale":      result.StaleCollections,
	}).Info("Daily pipeline complete")
}
