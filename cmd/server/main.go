// Package main provides the API server entry point for the migration
// tracker service.
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
	"github.com/migration-tracker/internal/api"
	"github.com/migration-tracker/internal/config"
	"github.com/migration-tracker/internal/detector"
	"github.com/migration-tracker/internal/logging"
	"github.com/migration-tracker/internal/marketdata"
	"github.com/migration-tracker/internal/monitor"
	"github.com/migration-tracker/internal/pipeline"
	"github.com/migration-tracker/internal/storage"
)

func main() {
	fmt.Println("Migration Tracker API Server")
	log.Println("Server starting...")

	// Load configuration
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

	// Initialize database connections
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

	// Initialize repositories
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
		logger.WithError(err).Fatal("Failed to register source collection")
	}
	dest, err := collectionRepo.EnsureCollection(ctx,
		cfg.Collections.Destination.Slug, cfg.Collections.Destination.Name, cfg.Collections.Destination.Contract)
	if err != nil {
		logger.WithError(err).Fatal("Failed to register destination collection")
	}

	// Initialize pipeline for the manual run endpoint
	provider := marketdata.NewOpenSeaClient(&cfg.Provider, apiLogRepo)
	priceCache := storage.NewPriceCache(redis, cfg.Pricing.CacheTTL)
	priceClient := marketdata.NewCoinGeckoClient(&cfg.Pricing, apiLogRepo)
	priceService := marketdata.NewSettlementPriceService(priceClient, priceCache, settlementPriceRepo, &cfg.Pricing)

	det := detector.New(holderRepo, migrationRepo, source, dest)
	agg := analytics.NewAggregator(snapshotRepo, migrationRepo, analyticsRepo, priceService, source, dest, cfg.Analytics)
	mon := monitor.NewMonitor(alertRepo, analyticsRepo, snapshotRepo, apiLogRepo, source, dest, cfg.Monitoring)
	pipe := pipeline.New(provider, snapshotRepo, holderRepo, priceService, det, agg, mon, source, dest)

	// Create server configuration
	serverConfig := &api.ServerConfig{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		RequestsPerSecond: 10,
	}

	server := api.NewServer(serverConfig, analyticsRepo, snapshotRepo, migrationRepo, alertRepo, collectionRepo, pipe, source, dest)

	// Start server in a goroutine
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

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	// Attempt graceful shutdown
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
