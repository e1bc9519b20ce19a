package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/migration-tracker/internal/config"
	apperrors "github.com/migration-tracker/internal/errors"
	"github.com/migration-tracker/internal/models"
)

type snapshotKey struct {
	collectionID int64
	date         time.Time
}

type fakeSnapshotStore struct {
	snapshots map[snapshotKey]*models.DailySnapshot
}

func newFakeSnapshotStore() *fakeSnapshotStore {
	return &fakeSnapshotStore{snapshots: make(map[snapshotKey]*models.DailySnapshot)}
}

func (s *fakeSnapshotStore) put(snapshot *models.DailySnapshot) {
	s.snapshots[snapshotKey{snapshot.CollectionID, models.DateOnly(snapshot.SnapshotDate)}] = snapshot
}

func (s *fakeSnapshotStore) GetByDate(ctx context.Context, collectionID int64, date time.Time) (*models.DailySnapshot, error) {
	return s.snapshots[snapshotKey{collectionID, models.DateOnly(date)}], nil
}

func (s *fakeSnapshotStore) GetLatestBefore(ctx context.Context, collectionID int64, date time.Time) (*models.DailySnapshot, error) {
	var latest *models.DailySnapshot
	for key, snap := range s.snapshots {
		if key.collectionID != collectionID || !key.date.Before(models.DateOnly(date)) {
			continue
		}
		if latest == nil || key.date.After(models.DateOnly(latest.SnapshotDate)) {
			latest = snap
		}
	}
	return latest, nil
}

func (s *fakeSnapshotStore) GetRange(ctx context.Context, collectionID int64, from, to time.Time) ([]*models.DailySnapshot, error) {
	var result []*models.DailySnapshot
	for d := models.DateOnly(from); !d.After(models.DateOnly(to)); d = d.AddDate(0, 0, 1) {
		if snap, ok := s.snapshots[snapshotKey{collectionID, d}]; ok {
			result = append(result, snap)
		}
	}
	return result, nil
}

type fakeMigrationStore struct {
	counts map[time.Time]int64
}

func newFakeMigrationStore() *fakeMigrationStore {
	return &fakeMigrationStore{counts: make(map[time.Time]int64)}
}

func (s *fakeMigrationStore) CountThroughDate(ctx context.Context, fromID, toID int64, date time.Time) (int64, error) {
	var total int64
	for d, n := range s.counts {
		if !d.After(models.DateOnly(date)) {
			total += n
		}
	}
	return total, nil
}

func (s *fakeMigrationStore) CountByDate(ctx context.Context, fromID, toID int64, date time.Time) (int64, error) {
	return s.counts[models.DateOnly(date)], nil
}

func (s *fakeMigrationStore) DailyCounts(ctx context.Context, fromID, toID int64, from, to time.Time) (map[time.Time]int64, error) {
	result := make(map[time.Time]int64)
	for d, n := range s.counts {
		if !d.Before(models.DateOnly(from)) && !d.After(models.DateOnly(to)) {
			result[d] = n
		}
	}
	return result, nil
}

type fakeAnalyticsStore struct {
	records map[time.Time]*models.DailyAnalytics
}

func newFakeAnalyticsStore() *fakeAnalyticsStore {
	return &fakeAnalyticsStore{records: make(map[time.Time]*models.DailyAnalytics)}
}

func (s *fakeAnalyticsStore) Upsert(ctx context.Context, analytics *models.DailyAnalytics) error {
	s.records[models.DateOnly(analytics.AnalyticsDate)] = analytics
	return nil
}

func (s *fakeAnalyticsStore) GetByDate(ctx context.Context, date time.Time) (*models.DailyAnalytics, error) {
	return s.records[models.DateOnly(date)], nil
}

type fixedPrice float64

func (p fixedPrice) PriceForDate(ctx context.Context, date time.Time) (float64, error) {
	return float64(p), nil
}

var aggDay = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

func testAnalyticsConfig() config.AnalyticsConfig {
	return config.AnalyticsConfig{
		SourceBaselineSupply:   9993,
		MigratedBeforeTracking: 26,
		VelocityWindowDays:     7,
		VelocityTrendPercent:   10,
		DefaultPriceRatio:      1.0,
	}
}

func setupAggregator(t *testing.T) (*Aggregator, *fakeSnapshotStore, *fakeMigrationStore, *fakeAnalyticsStore) {
	t.Helper()
	snapshots := newFakeSnapshotStore()
	migrations := newFakeMigrationStore()
	records := newFakeAnalyticsStore()
	agg := NewAggregator(snapshots, migrations, records, fixedPrice(2000), testSource, testDest, testAnalyticsConfig())
	return agg, snapshots, migrations, records
}

var (
	testSource = &models.Collection{ID: 1, Slug: "origin-cards"}
	testDest   = &models.Collection{ID: 2, Slug: "reborn-cards"}
)

func TestAggregateComputesDailyRecord(t *testing.T) {
	agg, snapshots, migrations, records := setupAggregator(t)
	prevDay := aggDay.AddDate(0, 0, -1)

	snapshots.put(&models.DailySnapshot{CollectionID: 1, SnapshotDate: prevDay, TotalSupply: 9993, FloorPrice: 0.10})
	snapshots.put(&models.DailySnapshot{CollectionID: 1, SnapshotDate: aggDay, TotalSupply: 9990, FloorPrice: 0.10, Volume24h: 5})
	snapshots.put(&models.DailySnapshot{CollectionID: 2, SnapshotDate: prevDay, TotalSupply: 5000, FloorPrice: 0.10})
	snapshots.put(&models.DailySnapshot{CollectionID: 2, SnapshotDate: aggDay, TotalSupply: 5003, FloorPrice: 0.20, Volume24h: 8})
	migrations.counts[models.DateOnly(aggDay)] = 3
	migrations.counts[models.DateOnly(prevDay)] = 71

	record, err := agg.Aggregate(context.Background(), aggDay)
	require.NoError(t, err)

	assert.Equal(t, int64(74+26), record.TotalMigrations)
	assert.Equal(t, int64(3), record.DailyNewMigrations)
	assert.Equal(t, int64(3), record.DetectedMigrations)
	assert.InDelta(t, float64(100)/9993*100, record.MigrationPercent, 1e-9)
	assert.InDelta(t, 2.0, record.PriceRatio, 1e-9)
	assert.InDelta(t, 2000.0, record.SettlementPriceUSD, 1e-9)
	assert.InDelta(t, 0.10*9990*2000, record.SourceMarketCapUSD, 1e-6)
	assert.InDelta(t, 0.20*5003*2000, record.DestMarketCapUSD, 1e-6)
	assert.InDelta(t, record.SourceMarketCapUSD+record.DestMarketCapUSD, record.CombinedMarketCapUSD, 1e-6)
	assert.InDelta(t, 100.0, record.DestFloorChangePct, 1e-9)
	assert.Equal(t, models.TrendInsufficientData, record.VelocityTrend)

	// Record was persisted.
	stored, err := records.GetByDate(context.Background(), aggDay)
	require.NoError(t, err)
	assert.Equal(t, record, stored)
}

func TestAggregateIsIdempotent(t *testing.T) {
	agg, snapshots, migrations, _ := setupAggregator(t)
	prevDay := aggDay.AddDate(0, 0, -1)

	snapshots.put(&models.DailySnapshot{CollectionID: 1, SnapshotDate: prevDay, TotalSupply: 9993, FloorPrice: 0.10})
	snapshots.put(&models.DailySnapshot{CollectionID: 1, SnapshotDate: aggDay, TotalSupply: 9990, FloorPrice: 0.10})
	snapshots.put(&models.DailySnapshot{CollectionID: 2, SnapshotDate: prevDay, TotalSupply: 5000, FloorPrice: 0.10})
	snapshots.put(&models.DailySnapshot{CollectionID: 2, SnapshotDate: aggDay, TotalSupply: 5003, FloorPrice: 0.20})
	migrations.counts[models.DateOnly(aggDay)] = 3

	first, err := agg.Aggregate(context.Background(), aggDay)
	require.NoError(t, err)
	second, err := agg.Aggregate(context.Background(), aggDay)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAggregateMissingSnapshotFails(t *testing.T) {
	agg, snapshots, _, _ := setupAggregator(t)

	// Only the source has a snapshot for the day.
	snapshots.put(&models.DailySnapshot{CollectionID: 1, SnapshotDate: aggDay, TotalSupply: 9990})

	_, err := agg.Aggregate(context.Background(), aggDay)
	require.Error(t, err)
	assert.True(t, apperrors.IsMissingHistory(err))
}

func TestAggregateNegativeSupplyIsIntegrityError(t *testing.T) {
	agg, snapshots, _, _ := setupAggregator(t)

	snapshots.put(&models.DailySnapshot{CollectionID: 1, SnapshotDate: aggDay, TotalSupply: -1})
	snapshots.put(&models.DailySnapshot{CollectionID: 2, SnapshotDate: aggDay, TotalSupply: 5000})

	_, err := agg.Aggregate(context.Background(), aggDay)
	require.Error(t, err)
	assert.True(t, apperrors.IsIntegrity(err))
}

func TestAggregateVelocityWithFullHistory(t *testing.T) {
	agg, snapshots, migrations, _ := setupAggregator(t)

	// 14 days of destination snapshots plus the matching source rows.
	for offset := 13; offset >= 0; offset-- {
		day := aggDay.AddDate(0, 0, -offset)
		snapshots.put(&models.DailySnapshot{CollectionID: 1, SnapshotDate: day, TotalSupply: 9990, FloorPrice: 0.10})
		snapshots.put(&models.DailySnapshot{CollectionID: 2, SnapshotDate: day, TotalSupply: 5003, FloorPrice: 0.20})
		// Prior window averages 10 per day, recent window 12.
		if offset >= 7 {
			migrations.counts[models.DateOnly(day)] = 10
		} else {
			migrations.counts[models.DateOnly(day)] = 12
		}
	}

	record, err := agg.Aggregate(context.Background(), aggDay)
	require.NoError(t, err)
	assert.Equal(t, models.TrendAccelerating, record.VelocityTrend)
}
