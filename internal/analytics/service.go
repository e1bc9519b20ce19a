package analytics

import (
	"context"
	"time"

	"github.com/migration-tracker/internal/config"
	apperrors "github.com/migration-tracker/internal/errors"
	"github.com/migration-tracker/internal/logging"
	"github.com/migration-tracker/internal/models"
)

// SnapshotStore provides daily snapshot reads.
type SnapshotStore interface {
	GetByDate(ctx context.Context, collectionID int64, date time.Time) (*models.DailySnapshot, error)
	GetLatestBefore(ctx context.Context, collectionID int64, date time.Time) (*models.DailySnapshot, error)
	GetRange(ctx context.Context, collectionID int64, from, to time.Time) ([]*models.DailySnapshot, error)
}

// MigrationStore provides migration event reads.
type MigrationStore interface {
	CountThroughDate(ctx context.Context, fromID, toID int64, date time.Time) (int64, error)
	CountByDate(ctx context.Context, fromID, toID int64, date time.Time) (int64, error)
	DailyCounts(ctx context.Context, fromID, toID int64, from, to time.Time) (map[time.Time]int64, error)
}

// AnalyticsStore persists and reads the derived daily records.
type AnalyticsStore interface {
	Upsert(ctx context.Context, analytics *models.DailyAnalytics) error
	GetByDate(ctx context.Context, date time.Time) (*models.DailyAnalytics, error)
}

// PriceSource supplies the settlement-currency price recorded for a day.
// The aggregator's implementation already folds in caching and fallback, and
// a previously recorded day always resolves to the same value.
type PriceSource interface {
	PriceForDate(ctx context.Context, date time.Time) (float64, error)
}

// Aggregator computes the daily analytics record. Everything is derived
// from persisted snapshots and events, so a historical date can be
// recomputed without network access to the market data provider.
type Aggregator struct {
	snapshots  SnapshotStore
	migrations MigrationStore
	analytics  AnalyticsStore
	price      PriceSource
	source     *models.Collection
	dest       *models.Collection
	cfg        config.AnalyticsConfig
}

// NewAggregator creates a daily analytics aggregator.
func NewAggregator(
	snapshots SnapshotStore,
	migrations MigrationStore,
	analytics AnalyticsStore,
	price PriceSource,
	source, dest *models.Collection,
	cfg config.AnalyticsConfig,
) *Aggregator {
	return &Aggregator{
		snapshots:  snapshots,
		migrations: migrations,
		analytics:  analytics,
		price:      price,
		source:     source,
		dest:       dest,
		cfg:        cfg,
	}
}

// Aggregate computes, persists, and returns the analytics record for a day.
// Re-running for the same day overwrites with identical values.
func (a *Aggregator) Aggregate(ctx context.Context, date time.Time) (*models.DailyAnalytics, error) {
	logger := logging.FromContext(ctx).ForComponent("aggregator")
	day := models.DateOnly(date)

	srcSnap, err := a.snapshots.GetByDate(ctx, a.source.ID, day)
	if err != nil {
		return nil, apperrors.NewDatabaseError("snapshot read", err)
	}
	dstSnap, err := a.snapshots.GetByDate(ctx, a.dest.ID, day)
	if err != nil {
		return nil, apperrors.NewDatabaseError("snapshot read", err)
	}
	if srcSnap == nil {
		return nil, apperrors.NewMissingHistoryError(a.source.Slug, models.FormatDate(day))
	}
	if dstSnap == nil {
		return nil, apperrors.NewMissingHistoryError(a.dest.Slug, models.FormatDate(day))
	}
	if srcSnap.TotalSupply < 0 || dstSnap.TotalSupply < 0 {
		return nil, apperrors.NewIntegrityError("negative supply in snapshot", map[string]interface{}{
			"date":         models.FormatDate(day),
			"sourceSupply": srcSnap.TotalSupply,
			"destSupply":   dstSnap.TotalSupply,
		})
	}

	srcPrev, err := a.snapshots.GetLatestBefore(ctx, a.source.ID, day)
	if err != nil {
		return nil, apperrors.NewDatabaseError("snapshot read", err)
	}
	dstPrev, err := a.snapshots.GetLatestBefore(ctx, a.dest.ID, day)
	if err != nil {
		return nil, apperrors.NewDatabaseError("snapshot read", err)
	}

	settlementPrice, err := a.price.PriceForDate(ctx, day)
	if err != nil {
		return nil, err
	}

	eventCount, err := a.migrations.CountThroughDate(ctx, a.source.ID, a.dest.ID, day)
	if err != nil {
		return nil, apperrors.NewDatabaseError("migration count", err)
	}
	detectedToday, err := a.migrations.CountByDate(ctx, a.source.ID, a.dest.ID, day)
	if err != nil {
		return nil, apperrors.NewDatabaseError("migration count", err)
	}

	var dailyNew int64
	if dstPrev != nil {
		delta := SupplyDelta(dstSnap.TotalSupply, dstPrev.TotalSupply, true)
		if delta > 0 {
			dailyNew = delta
		}
	}

	totalMigrations := eventCount + int64(a.cfg.MigratedBeforeTracking)

	record := &models.DailyAnalytics{
		AnalyticsDate:      day,
		SettlementPriceUSD: settlementPrice,

		SourceFloorPrice:   srcSnap.FloorPrice,
		SourceSupply:       srcSnap.TotalSupply,
		SourceMarketCapUSD: MarketCap(srcSnap.FloorPrice, srcSnap.TotalSupply, settlementPrice),
		SourceVolume24h:    srcSnap.Volume24h,

		DestFloorPrice:   dstSnap.FloorPrice,
		DestSupply:       dstSnap.TotalSupply,
		DestMarketCapUSD: MarketCap(dstSnap.FloorPrice, dstSnap.TotalSupply, settlementPrice),
		DestVolume24h:    dstSnap.Volume24h,

		TotalMigrations:    totalMigrations,
		DailyNewMigrations: dailyNew,
		DetectedMigrations: detectedToday,

		MigrationPercent: MigrationPercent(totalMigrations, int64(a.cfg.SourceBaselineSupply)),
		PriceRatio:       PriceRatio(dstSnap.FloorPrice, srcSnap.FloorPrice, a.cfg.DefaultPriceRatio),
	}

	record.CombinedMarketCapUSD = record.SourceMarketCapUSD + record.DestMarketCapUSD

	if srcPrev != nil {
		record.SourceFloorChangePct = PctChange(srcSnap.FloorPrice, srcPrev.FloorPrice)
	}
	if dstPrev != nil {
		record.DestFloorChangePct = PctChange(dstSnap.FloorPrice, dstPrev.FloorPrice)
	}

	record.VelocityTrend, err = a.classifyVelocity(ctx, day)
	if err != nil {
		return nil, err
	}

	if err := a.analytics.Upsert(ctx, record); err != nil {
		return nil, apperrors.NewDatabaseError("analytics upsert", err)
	}

	logger.WithFields(map[string]interface{}{
		"date":             models.FormatDate(day),
		"totalMigrations":  record.TotalMigrations,
		"dailyNew":         record.DailyNewMigrations,
		"migrationPercent": record.MigrationPercent,
		"velocityTrend":    record.VelocityTrend,
	}).Info("Daily analytics aggregated")

	return record, nil
}

// classifyVelocity compares the mean daily migration count of the most
// recent window against the preceding window. History shorter than two full
// windows yields insufficient_data.
func (a *Aggregator) classifyVelocity(ctx context.Context, day time.Time) (models.VelocityTrend, error) {
	windowDays := a.cfg.VelocityWindowDays
	historyStart := day.AddDate(0, 0, -(2*windowDays - 1))

	// Use the destination snapshot series to measure how much history exists.
	history, err := a.snapshots.GetRange(ctx, a.dest.ID, historyStart, day)
	if err != nil {
		return "", apperrors.NewDatabaseError("snapshot history read", err)
	}
	if len(history) < 2*windowDays {
		return models.TrendInsufficientData, nil
	}

	counts, err := a.migrations.DailyCounts(ctx, a.source.ID, a.dest.ID, historyStart, day)
	if err != nil {
		return "", apperrors.NewDatabaseError("migration history read", err)
	}

	recentStart := day.AddDate(0, 0, -(windowDays - 1))
	recent := make([]int64, 0, windowDays)
	prior := make([]int64, 0, windowDays)
	for d := historyStart; !d.After(day); d = d.AddDate(0, 0, 1) {
		count := counts[models.DateOnly(d)]
		if d.Before(recentStart) {
			prior = append(prior, count)
		} else {
			recent = append(recent, count)
		}
	}

	return ClassifyVelocity(Mean(recent), Mean(prior), a.cfg.VelocityTrendPercent), nil
}
