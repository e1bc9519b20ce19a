// Package main provides the backfill tool: it re-runs the tracking
// pipeline for a range of past dates. Snapshots for past dates can only be
// recomputed from stored data, so backfill is most useful after fixing bad
// analytics or replaying detection over corrected holder snapshots.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

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
	var (
		fromStr = flag.String("from", "", "First date to run (YYYY-MM-DD)")
		toStr   = flag.String("to", "", "Last date to run (YYYY-MM-DD)")
	)
	flag.Parse()

	fmt.Println("Migration Tracker Backfill")

	if *fromStr == "" || *toStr == "" {
		log.Fatal("Both -from and -to are required")
	}
	from, err := models.ParseDate(*fromStr)
	if err != nil {
		log.Fatalf("Invalid -from date: %v", err)
	}
	to, err := models.ParseDate(*toStr)
	if err != nil {
		log.Fatalf("Invalid -to date: %v", err)
	}
	if from.After(to) {
		log.Fatal("-from must not be after -to")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
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

	ctx := logging.WithLogger(context.Background(), logger)

	pipe, err := buildPipeline(ctx, cfg, postgres, clickhouse, redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build pipeline")
	}

	var failed int
	for date := from; !date.After(to); date = date.AddDate(0, 0, 1) {
		result, err := pipe.Run(ctx, date)
		if err != nil {
			failed++
			logger.WithError(err).WithField("date", models.FormatDate(date)).Error("Backfill run failed")
			continue
		}
		if result.Skipped {
			logger.WithFields(map[string]interface{}{
				"date":   models.FormatDate(date),
				"reason": result.SkipReason,
			}).Warn("Backfill run skipped")
			continue
		}
		logger.WithFields(map[string]interface{}{
			"date":      models.FormatDate(date),
			"newEvents": result.NewEvents,
			"alerts":    len(result.Alerts),
		}).Info("Backfill run complete")
	}

	if failed > 0 {
		logger.WithField("failed", failed).Warn("Backfill finished with failures")
		return
	}
	logger.Info("Backfill finished")
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
