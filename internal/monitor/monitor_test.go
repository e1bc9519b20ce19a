package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/migration-tracker/internal/config"
	"github.com/migration-tracker/internal/models"
	"github.com/migration-tracker/internal/storage"
)

type fakeAlertStore struct {
	created []*models.Alert
}

func (s *fakeAlertStore) Create(ctx context.Context, alert *models.Alert) error {
	s.created = append(s.created, alert)
	return nil
}

type fakeAnalyticsReader struct {
	records map[time.Time]*models.DailyAnalytics
}

func (r *fakeAnalyticsReader) GetByDate(ctx context.Context, date time.Time) (*models.DailyAnalytics, error) {
	return r.records[models.DateOnly(date)], nil
}

type fakeSnapshotReader struct {
	snapshots map[int64]*models.DailySnapshot
}

func (r *fakeSnapshotReader) GetByDate(ctx context.Context, collectionID int64, date time.Time) (*models.DailySnapshot, error) {
	return r.snapshots[collectionID], nil
}

type fakeAPIHealthReader struct {
	stats storage.APICallStats
}

func (r *fakeAPIHealthReader) StatsSince(ctx context.Context, since time.Time) (*storage.APICallStats, error) {
	return &r.stats, nil
}

var (
	monSource = &models.Collection{ID: 1, Slug: "origin-cards"}
	monDest   = &models.Collection{ID: 2, Slug: "reborn-cards"}
	monDay    = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
)

func testMonitoringConfig() config.MonitoringConfig {
	return config.MonitoringConfig{
		MigrationSpikeThreshold: 2.0,
		VolumeAnomalyMultiplier: 2.0,
		FloorCrashPercent:       -50,
		APIFailureRateThreshold: 0.3,
		APIHealthWindow:         24 * time.Hour,
	}
}

type monitorFixture struct {
	monitor   *Monitor
	alerts    *fakeAlertStore
	analytics *fakeAnalyticsReader
	snapshots *fakeSnapshotReader
	apiHealth *fakeAPIHealthReader
}

func setupMonitor(t *testing.T) *monitorFixture {
	t.Helper()
	f := &monitorFixture{
		alerts:    &fakeAlertStore{},
		analytics: &fakeAnalyticsReader{records: make(map[time.Time]*models.DailyAnalytics)},
		snapshots: &fakeSnapshotReader{snapshots: make(map[int64]*models.DailySnapshot)},
		apiHealth: &fakeAPIHealthReader{},
	}
	f.monitor = NewMonitor(f.alerts, f.analytics, f.snapshots, f.apiHealth, monSource, monDest, testMonitoringConfig())
	return f
}

func quietDay() *models.DailyAnalytics {
	return &models.DailyAnalytics{
		AnalyticsDate:      monDay,
		DailyNewMigrations: 5,
	}
}

func TestCheckQuietDayRaisesNothing(t *testing.T) {
	f := setupMonitor(t)

	alerts, err := f.monitor.Check(context.Background(), quietDay())
	require.NoError(t, err)
	assert.Empty(t, alerts)
	assert.Empty(t, f.alerts.created)
}

func TestCheckMigrationSpike(t *testing.T) {
	t.Run("fires when ratio exceeds threshold", func(t *testing.T) {
		f := setupMonitor(t)
		f.analytics.records[monDay.AddDate(0, 0, -1)] = &models.DailyAnalytics{DailyNewMigrations: 2}

		record := quietDay()
		record.DailyNewMigrations = 5

		alerts, err := f.monitor.Check(context.Background(), record)
		require.NoError(t, err)
		require.Len(t, alerts, 1)
		assert.Equal(t, models.AlertMigrationSpike, alerts[0].Type)
		assert.Equal(t, models.SeverityWarning, alerts[0].Severity)
	})

	t.Run("undefined ratio passes", func(t *testing.T) {
		f := setupMonitor(t)
		f.analytics.records[monDay.AddDate(0, 0, -1)] = &models.DailyAnalytics{DailyNewMigrations: 0}

		record := quietDay()
		record.DailyNewMigrations = 500

		alerts, err := f.monitor.Check(context.Background(), record)
		require.NoError(t, err)
		assert.Empty(t, alerts)
	})
}

func TestCheckVolumeAnomaly(t *testing.T) {
	f := setupMonitor(t)
	f.snapshots.snapshots[monDest.ID] = &models.DailySnapshot{Volume7d: 70}

	record := quietDay()
	record.DestVolume24h = 25 // 7-day average is 10, threshold is 20

	alerts, err := f.monitor.Check(context.Background(), record)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertVolumeAnomaly, alerts[0].Type)
}

func TestCheckFloorCrashIsCritical(t *testing.T) {
	f := setupMonitor(t)

	record := quietDay()
	record.SourceFloorChangePct = -60

	alerts, err := f.monitor.Check(context.Background(), record)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertFloorCrash, alerts[0].Type)
	assert.Equal(t, models.SeverityCritical, alerts[0].Severity)
}

func TestCheckFloorCrashAlertsEachCollection(t *testing.T) {
	f := setupMonitor(t)

	record := quietDay()
	record.SourceFloorChangePct = -60
	record.DestFloorChangePct = -70

	alerts, err := f.monitor.Check(context.Background(), record)
	require.NoError(t, err)
	require.Len(t, alerts, 2)

	collections := make([]string, 0, 2)
	for _, alert := range alerts {
		assert.Equal(t, models.AlertFloorCrash, alert.Type)
		assert.Equal(t, models.SeverityCritical, alert.Severity)
		collections = append(collections, alert.Data["collection"].(string))
	}
	assert.ElementsMatch(t, []string{"origin-cards", "reborn-cards"}, collections)
}

func TestCheckAPIHealth(t *testing.T) {
	f := setupMonitor(t)
	f.apiHealth.stats = storage.APICallStats{
		TotalCalls:  100,
		FailedCalls: 40,
		FailureRate: 0.4,
	}

	alerts, err := f.monitor.Check(context.Background(), quietDay())
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertAPIHealth, alerts[0].Type)
}

func TestCheckSimultaneousBreachesEscalate(t *testing.T) {
	f := setupMonitor(t)
	f.analytics.records[monDay.AddDate(0, 0, -1)] = &models.DailyAnalytics{DailyNewMigrations: 2}
	f.apiHealth.stats = storage.APICallStats{TotalCalls: 10, FailedCalls: 5, FailureRate: 0.5}

	record := quietDay()
	record.DailyNewMigrations = 10

	alerts, err := f.monitor.Check(context.Background(), record)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	for _, alert := range alerts {
		assert.Equal(t, models.SeverityCritical, alert.Severity)
	}
}

func TestRaiseReviewCandidates(t *testing.T) {
	f := setupMonitor(t)

	require.NoError(t, f.monitor.RaiseReviewCandidates(context.Background(), monDay, nil))
	assert.Empty(t, f.alerts.created)

	require.NoError(t, f.monitor.RaiseReviewCandidates(context.Background(), monDay, []string{"42", "43"}))
	require.Len(t, f.alerts.created, 1)
	assert.Equal(t, models.AlertReviewCandidate, f.alerts.created[0].Type)
	assert.Equal(t, models.SeverityInfo, f.alerts.created[0].Severity)
}

func TestRaiseDataFreshness(t *testing.T) {
	f := setupMonitor(t)

	require.NoError(t, f.monitor.RaiseDataFreshness(context.Background(), monDay, "origin-cards", true))
	require.NoError(t, f.monitor.RaiseDataFreshness(context.Background(), monDay, "origin-cards", false))
	require.Len(t, f.alerts.created, 2)
	assert.Equal(t, models.SeverityWarning, f.alerts.created[0].Severity)
	assert.Equal(t, models.SeverityCritical, f.alerts.created[1].Severity)
}
