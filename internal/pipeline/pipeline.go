// Package pipeline runs the daily tracking cycle: ingest market data and
// holder sets, detect migrations, aggregate analytics, then check anomaly
// rules. Stages run strictly in that order because each consumes the
// previous stage's persisted output.
package pipeline

import (
	"context"
	"time"

	"github.com/migration-tracker/internal/analytics"
	"github.com/migration-tracker/internal/detector"
	apperrors "github.com/migration-tracker/internal/errors"
	"github.com/migration-tracker/internal/logging"
	"github.com/migration-tracker/internal/marketdata"
	"github.com/migration-tracker/internal/models"
	"github.com/migration-tracker/internal/monitor"
)

// SnapshotStore persists and reads daily market snapshots.
type SnapshotStore interface {
	Upsert(ctx context.Context, snapshot *models.DailySnapshot) error
	GetLatestBefore(ctx context.Context, collectionID int64, date time.Time) (*models.DailySnapshot, error)
}

// HolderStore persists and reads per-day holder sets.
type HolderStore interface {
	ReplaceForDate(ctx context.Context, collectionID int64, date time.Time, holders map[string]string) error
	GetHolderMap(ctx context.Context, collectionID int64, date time.Time) (map[string]string, error)
}

// PriceSource records and returns the settlement price for a day. Resolving
// the price during ingest pins the value the aggregator will see, so
// re-running a historical day never picks up a newer price.
type PriceSource interface {
	PriceForDate(ctx context.Context, date time.Time) (float64, error)
}

// RunResult summarizes one pipeline run.
type RunResult struct {
	Date    time.Time `json:"date"`
	Skipped bool      `json:"skipped"`
	// SkipReason is set when no run was possible, for example when the
	// provider is down and no prior snapshot exists to reuse.
	SkipReason       string                 `json:"skipReason,omitempty"`
	StaleCollections []string               `json:"staleCollections,omitempty"`
	NewEvents        int                    `json:"newEvents"`
	ReviewCandidates int                    `json:"reviewCandidates"`
	Analytics        *models.DailyAnalytics `json:"analytics,omitempty"`
	Alerts           []*models.Alert        `json:"alerts,omitempty"`
	Duration         time.Duration          `json:"duration"`
}

// Pipeline executes the tracking cycle for one collection pair. Runs are
// idempotent: snapshots and analytics upsert, events insert-if-absent, so
// re-running a day converges to the same state.
type Pipeline struct {
	provider   marketdata.Provider
	snapshots  SnapshotStore
	holders    HolderStore
	prices     PriceSource
	detector   *detector.Detector
	aggregator *analytics.Aggregator
	monitor    *monitor.Monitor
	source     *models.Collection
	dest       *models.Collection
}

// New assembles a pipeline from its stages.
func New(
	provider marketdata.Provider,
	snapshots SnapshotStore,
	holders HolderStore,
	prices PriceSource,
	det *detector.Detector,
	agg *analytics.Aggregator,
	mon *monitor.Monitor,
	source, dest *models.Collection,
) *Pipeline {
	return &Pipeline{
		provider:   provider,
		snapshots:  snapshots,
		holders:    holders,
		prices:     prices,
		detector:   det,
		aggregator: agg,
		monitor:    mon,
		source:     source,
		dest:       dest,
	}
}

// Run executes the full cycle for one day.
func (p *Pipeline) Run(ctx context.Context, date time.Time) (*RunResult, error) {
	logger := logging.FromContext(ctx).ForComponent("pipeline")
	day := models.DateOnly(date)
	start := time.Now()
	result := &RunResult{Date: day}

	logger.WithField("date", models.FormatDate(day)).Info("Pipeline run starting")

	// Pin the settlement price for the day before anything else touches it.
	settlementPrice, err := p.prices.PriceForDate(ctx, day)
	if err != nil {
		return nil, err
	}

	for _, collection := range []*models.Collection{p.source, p.dest} {
		stale, err := p.ingest(ctx, collection, day, settlementPrice)
		if err != nil {
			if apperrors.IsProviderFailure(err) {
				// Provider down and nothing to fall back on: record
				// the gap and end the run without partial state.
				if alertErr := p.monitor.RaiseDataFreshness(ctx, day, collection.Slug, false); alertErr != nil {
					logger.WithError(alertErr).Error("Failed to record data freshness alert")
				}
				result.Skipped = true
				result.SkipReason = "provider unavailable with no prior snapshot for " + collection.Slug
				result.Duration = time.Since(start)
				logger.WithField("collection", collection.Slug).Warn("Pipeline run skipped: no data and no fallback")
				return result, nil
			}
			return nil, err
		}
		if stale {
			result.StaleCollections = append(result.StaleCollections, collection.Slug)
			if alertErr := p.monitor.RaiseDataFreshness(ctx, day, collection.Slug, true); alertErr != nil {
				logger.WithError(alertErr).Error("Failed to record data freshness alert")
			}
		}
	}

	detection, err := p.detector.Detect(ctx, day)
	if err != nil {
		if apperrors.IsMissingHistory(err) {
			// The day's holder data never landed; diffing against a hole
			// would fabricate migrations, so the day ends here.
			collection := missingCollection(err, p.source.Slug)
			if alertErr := p.monitor.RaiseDataFreshness(ctx, day, collection, false); alertErr != nil {
				logger.WithError(alertErr).Error("Failed to record data freshness alert")
			}
			result.Skipped = true
			result.SkipReason = "holder data incomplete for " + collection
			result.Duration = time.Since(start)
			logger.WithField("collection", collection).Warn("Pipeline run aborted: holder data incomplete")
			return result, nil
		}
		return nil, err
	}
	result.NewEvents = detection.NewEvents
	result.ReviewCandidates = len(detection.CandidatesForReview)
	if err := p.monitor.RaiseReviewCandidates(ctx, day, detection.CandidatesForReview); err != nil {
		logger.WithError(err).Error("Failed to record review candidates alert")
	}

	record, err := p.aggregator.Aggregate(ctx, day)
	if err != nil {
		if apperrors.IsIntegrity(err) {
			if alertErr := p.monitor.RaiseIntegrity(ctx, day, err.Error(), nil); alertErr != nil {
				logger.WithError(alertErr).Error("Failed to record integrity alert")
			}
		}
		return nil, err
	}
	result.Analytics = record

	alerts, err := p.monitor.Check(ctx, record)
	if err != nil {
		return nil, err
	}
	result.Alerts = alerts
	result.Duration = time.Since(start)

	logger.WithFields(map[string]interface{}{
		"date":       models.FormatDate(day),
		"newEvents":  result.NewEvents,
		"candidates": result.ReviewCandidates,
		"alerts":     len(alerts),
		"durationMs": result.Duration.Milliseconds(),
	}).Info("Pipeline run complete")

	return result, nil
}

// ingest fetches a collection's metrics and holder map and persists the
// day's snapshot rows. Returns true when any provider data could not be
// fetched and the previous day's data was reused instead.
func (p *Pipeline) ingest(ctx context.Context, collection *models.Collection, day time.Time, settlementPrice float64) (bool, error) {
	logger := logging.FromContext(ctx).ForComponent("pipeline").WithField("collection", collection.Slug)

	metrics, err := p.provider.GetCollectionMetrics(ctx, collection.Slug)
	if err != nil {
		if !apperrors.IsProviderFailure(err) {
			return false, err
		}
		return true, p.reusePrevious(ctx, collection, day, err)
	}

	snapshot := snapshotFromMetrics(collection.ID, day, metrics, settlementPrice)
	if err := p.snapshots.Upsert(ctx, snapshot); err != nil {
		return false, apperrors.NewDatabaseError("snapshot upsert", err)
	}

	carried := false
	holderMap, err := p.provider.GetHolderMap(ctx, collection.ContractAddress)
	if err != nil {
		// Metrics landed but the holder enumeration failed. Carrying the
		// previous day's holder set forward keeps the detector's diff
		// empty instead of fabricating a mass exodus.
		logger.WithError(err).Warn("Holder fetch failed, carrying previous holder set forward")
		prevMap, prevErr := p.holders.GetHolderMap(ctx, collection.ID, day.AddDate(0, 0, -1))
		if prevErr != nil {
			return false, apperrors.NewDatabaseError("holder read", prevErr)
		}
		if len(prevMap) == 0 {
			return false, err
		}
		holderMap = prevMap
		carried = true
	}

	if err := p.holders.ReplaceForDate(ctx, collection.ID, day, holderMap); err != nil {
		return false, apperrors.NewDatabaseError("holder replace", err)
	}
	return carried, nil
}

// reusePrevious copies the latest prior snapshot and holder set into the
// given day, marked stale. Returns the original provider error when there
// is nothing to reuse.
func (p *Pipeline) reusePrevious(ctx context.Context, collection *models.Collection, day time.Time, cause error) error {
	prev, err := p.snapshots.GetLatestBefore(ctx, collection.ID, day)
	if err != nil {
		return apperrors.NewDatabaseError("snapshot read", err)
	}
	if prev == nil {
		return cause
	}

	stale := *prev
	stale.ID = 0
	stale.SnapshotDate = day
	stale.Stale = true
	if err := p.snapshots.Upsert(ctx, &stale); err != nil {
		return apperrors.NewDatabaseError("snapshot upsert", err)
	}

	prevMap, err := p.holders.GetHolderMap(ctx, collection.ID, models.DateOnly(prev.SnapshotDate))
	if err != nil {
		return apperrors.NewDatabaseError("holder read", err)
	}
	if len(prevMap) > 0 {
		if err := p.holders.ReplaceForDate(ctx, collection.ID, day, prevMap); err != nil {
			return apperrors.NewDatabaseError("holder replace", err)
		}
	}
	return nil
}

func snapshotFromMetrics(collectionID int64, day time.Time, m *marketdata.CollectionMetrics, settlementPrice float64) *models.DailySnapshot {
	var listedPct float64
	if m.TotalSupply > 0 {
		listedPct = float64(m.ListedCount) / float64(m.TotalSupply) * 100
	}
	return &models.DailySnapshot{
		CollectionID:     collectionID,
		SnapshotDate:     day,
		TotalSupply:      m.TotalSupply,
		HoldersCount:     m.HoldersCount,
		FloorPrice:       m.FloorPrice,
		FloorPriceFiat:   m.FloorPrice * settlementPrice,
		Volume24h:        m.Volume24h,
		Volume7d:         m.Volume7d,
		MarketCap:        m.MarketCap,
		ListedCount:      m.ListedCount,
		ListedPercentage: listedPct,
		AveragePrice:     m.AveragePrice,
	}
}

// missingCollection pulls the collection slug out of a missing-history
// error, defaulting when the error carries none.
func missingCollection(err error, fallback string) string {
	if catErr := apperrors.Categorize(err); catErr != nil {
		if slug, ok := catErr.Details["collection"].(string); ok && slug != "" {
			return slug
		}
	}
	return fallback
}
