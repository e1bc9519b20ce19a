package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/migration-tracker/internal/config"
	apperrors "github.com/migration-tracker/internal/errors"
	"github.com/migration-tracker/internal/logging"
	"github.com/migration-tracker/internal/models"
	"github.com/migration-tracker/internal/storage"
)

// AlertStore persists raised alerts.
type AlertStore interface {
	Create(ctx context.Context, alert *models.Alert) error
}

// AnalyticsReader provides prior analytics records for day-over-day rules.
type AnalyticsReader interface {
	GetByDate(ctx context.Context, date time.Time) (*models.DailyAnalytics, error)
}

// SnapshotReader provides snapshot rows for volume baselines.
type SnapshotReader interface {
	GetByDate(ctx context.Context, collectionID int64, date time.Time) (*models.DailySnapshot, error)
}

// APIHealthReader reports provider call statistics over a trailing window.
type APIHealthReader interface {
	StatsSince(ctx context.Context, since time.Time) (*storage.APICallStats, error)
}

type breach struct {
	alertType models.AlertType
	message   string
	data      map[string]interface{}
	critical  bool
}

// Monitor evaluates anomaly rules against the day's analytics and raises
// alerts. Rules are independent: one failing rule never suppresses another.
type Monitor struct {
	alerts    AlertStore
	analytics AnalyticsReader
	snapshots SnapshotReader
	apiHealth APIHealthReader
	source    *models.Collection
	dest      *models.Collection
	cfg       config.MonitoringConfig
	now       func() time.Time
}

// NewMonitor creates an anomaly monitor.
func NewMonitor(
	alerts AlertStore,
	analytics AnalyticsReader,
	snapshots SnapshotReader,
	apiHealth APIHealthReader,
	source, dest *models.Collection,
	cfg config.MonitoringConfig,
) *Monitor {
	return &Monitor{
		alerts:    alerts,
		analytics: analytics,
		snapshots: snapshots,
		apiHealth: apiHealth,
		source:    source,
		dest:      dest,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Check runs every anomaly rule against the day's analytics record and
// persists one alert per breached rule. A floor crash is always critical;
// otherwise two or more simultaneous breaches escalate all of them.
func (m *Monitor) Check(ctx context.Context, current *models.DailyAnalytics) ([]*models.Alert, error) {
	logger := logging.FromContext(ctx).ForComponent("monitor")
	day := models.DateOnly(current.AnalyticsDate)

	var breaches []breach

	if b, err := m.checkMigrationSpike(ctx, current, day); err != nil {
		logger.WithError(err).Warn("Migration spike rule skipped")
	} else if b != nil {
		breaches = append(breaches, *b)
	}

	volumeBreaches, err := m.checkVolumeAnomalies(ctx, current, day)
	if err != nil {
		logger.WithError(err).Warn("Volume anomaly rule skipped")
	}
	breaches = append(breaches, volumeBreaches...)

	breaches = append(breaches, m.checkFloorCrash(current)...)

	if b, err := m.checkAPIHealth(ctx); err != nil {
		logger.WithError(err).Warn("API health rule skipped")
	} else if b != nil {
		breaches = append(breaches, *b)
	}

	escalate := len(breaches) >= 2
	alerts := make([]*models.Alert, 0, len(breaches))
	for _, b := range breaches {
		severity := models.SeverityWarning
		if b.critical || escalate {
			severity = models.SeverityCritical
		}
		alert := &models.Alert{
			Type:     b.alertType,
			Severity: severity,
			Message:  b.message,
			Data:     b.data,
		}
		if err := m.alerts.Create(ctx, alert); err != nil {
			return alerts, apperrors.NewDatabaseError("alert create", err)
		}
		logger.WithFields(map[string]interface{}{
			"alertType": string(alert.Type),
			"severity":  string(alert.Severity),
			"date":      models.FormatDate(day),
		}).Warn(alert.Message)
		alerts = append(alerts, alert)
	}

	return alerts, nil
}

// checkMigrationSpike flags a day where new migrations exceed the prior
// day's by more than the configured ratio. A zero or absent prior-day count
// means the ratio is undefined and the rule passes.
func (m *Monitor) checkMigrationSpike(ctx context.Context, current *models.DailyAnalytics, day time.Time) (*breach, error) {
	prev, err := m.analytics.GetByDate(ctx, day.AddDate(0, 0, -1))
	if err != nil {
		return nil, apperrors.NewDatabaseError("analytics read", err)
	}
	if prev == nil || prev.DailyNewMigrations <= 0 {
		return nil, nil
	}

	ratio := float64(current.DailyNewMigrations) / float64(prev.DailyNewMigrations)
	if ratio <= m.cfg.MigrationSpikeThreshold {
		return nil, nil
	}

	return &breach{
		alertType: models.AlertMigrationSpike,
		message: fmt.Sprintf("Migration spike: %d new migrations vs %d the previous day (%.1fx)",
			current.DailyNewMigrations, prev.DailyNewMigrations, ratio),
		data: map[string]interface{}{
			"date":      models.FormatDate(day),
			"daily_new": current.DailyNewMigrations,
			"prev_new":  prev.DailyNewMigrations,
			"ratio":     ratio,
			"threshold": m.cfg.MigrationSpikeThreshold,
		},
	}, nil
}

// checkVolumeAnomalies compares each collection's 24h volume against its
// trailing 7-day average from the day's snapshot.
func (m *Monitor) checkVolumeAnomalies(ctx context.Context, current *models.DailyAnalytics, day time.Time) ([]breach, error) {
	var breaches []breach
	for _, c := range []struct {
		collection *models.Collection
		volume24h  float64
	}{
		{m.source, current.SourceVolume24h},
		{m.dest, current.DestVolume24h},
	} {
		snap, err := m.snapshots.GetByDate(ctx, c.collection.ID, day)
		if err != nil {
			return breaches, apperrors.NewDatabaseError("snapshot read", err)
		}
		if snap == nil || snap.Volume7d <= 0 {
			continue
		}
		avg := snap.Volume7d / 7
		if c.volume24h <= m.cfg.VolumeAnomalyMultiplier*avg {
			continue
		}
		breaches = append(breaches, breach{
			alertType: models.AlertVolumeAnomaly,
			message: fmt.Sprintf("Volume anomaly for %s: 24h volume %.4f vs 7-day average %.4f",
				c.collection.Slug, c.volume24h, avg),
			data: map[string]interface{}{
				"date":       models.FormatDate(day),
				"collection": c.collection.Slug,
				"volume_24h": c.volume24h,
				"avg_7d":     avg,
				"multiplier": m.cfg.VolumeAnomalyMultiplier,
			},
		})
	}
	return breaches, nil
}

// checkFloorCrash flags each collection whose floor dropped past the
// configured percent. Crashes are always critical.
func (m *Monitor) checkFloorCrash(current *models.DailyAnalytics) []breach {
	var breaches []breach
	for _, c := range []struct {
		slug      string
		changePct float64
	}{
		{m.source.Slug, current.SourceFloorChangePct},
		{m.dest.Slug, current.DestFloorChangePct},
	} {
		if c.changePct >= m.cfg.FloorCrashPercent {
			continue
		}
		breaches = append(breaches, breach{
			alertType: models.AlertFloorCrash,
			message:   fmt.Sprintf("Floor crash for %s: %.1f%% day over day", c.slug, c.changePct),
			data: map[string]interface{}{
				"date":       models.FormatDate(models.DateOnly(current.AnalyticsDate)),
				"collection": c.slug,
				"change_pct": c.changePct,
				"threshold":  m.cfg.FloorCrashPercent,
			},
			critical: true,
		})
	}
	return breaches
}

// checkAPIHealth flags a provider failure rate above the threshold over the
// trailing health window. A window with no calls passes.
func (m *Monitor) checkAPIHealth(ctx context.Context) (*breach, error) {
	stats, err := m.apiHealth.StatsSince(ctx, m.now().Add(-m.cfg.APIHealthWindow))
	if err != nil {
		return nil, apperrors.NewDatabaseError("api call stats", err)
	}
	if stats.TotalCalls == 0 || stats.FailureRate <= m.cfg.APIFailureRateThreshold {
		return nil, nil
	}
	return &breach{
		alertType: models.AlertAPIHealth,
		message: fmt.Sprintf("Provider failure rate %.0f%% over the last %s (%d of %d calls failed)",
			stats.FailureRate*100, m.cfg.APIHealthWindow, stats.FailedCalls, stats.TotalCalls),
		data: map[string]interface{}{
			"total_calls":  stats.TotalCalls,
			"failed_calls": stats.FailedCalls,
			"failure_rate": stats.FailureRate,
			"threshold":    m.cfg.APIFailureRateThreshold,
		},
	}, nil
}

// RaiseDataFreshness records that a day ran on reused provider data, or
// could not run at all when there was nothing to fall back on.
func (m *Monitor) RaiseDataFreshness(ctx context.Context, date time.Time, collection string, reused bool) error {
	message := fmt.Sprintf("No usable provider data for %s on %s and nothing to fall back on",
		collection, models.FormatDate(date))
	severity := models.SeverityCritical
	if reused {
		message = fmt.Sprintf("Provider data unavailable for %s on %s, reusing the previous day's data",
			collection, models.FormatDate(date))
		severity = models.SeverityWarning
	}
	return m.alerts.Create(ctx, &models.Alert{
		Type:     models.AlertDataFreshness,
		Severity: severity,
		Message:  message,
		Data: map[string]interface{}{
			"date":       models.FormatDate(date),
			"collection": collection,
			"reused":     reused,
		},
	})
}

// RaiseReviewCandidates records destination tokens that appeared without a
// matching departure from the source collection. Informational only.
func (m *Monitor) RaiseReviewCandidates(ctx context.Context, date time.Time, tokenIDs []string) error {
	if len(tokenIDs) == 0 {
		return nil
	}
	return m.alerts.Create(ctx, &models.Alert{
		Type:     models.AlertReviewCandidate,
		Severity: models.SeverityInfo,
		Message: fmt.Sprintf("%d destination tokens on %s have no matching source departure",
			len(tokenIDs), models.FormatDate(date)),
		Data: map[string]interface{}{
			"date":      models.FormatDate(date),
			"token_ids": tokenIDs,
			"count":     len(tokenIDs),
		},
	})
}

// RaiseIntegrity records a data integrity failure detected during the run.
func (m *Monitor) RaiseIntegrity(ctx context.Context, date time.Time, message string, data map[string]interface{}) error {
	if data == nil {
		data = map[string]interface{}{}
	}
	data["date"] = models.FormatDate(date)
	return m.alerts.Create(ctx, &models.Alert{
		Type:     models.AlertDataIntegrity,
		Severity: models.SeverityCritical,
		Message:  message,
		Data:     data,
	})
}
