package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/migration-tracker/internal/models"
)

// AnalyticsRepository handles daily analytics storage
type AnalyticsRepository struct {
	pool *pgxpool.Pool
}

// NewAnalyticsRepository creates a new analytics repository
func NewAnalyticsRepository(pool *pgxpool.Pool) *AnalyticsRepository {
	return &AnalyticsRepository{
		pool: pool,
	}
}

// Upsert stores a daily analytics record keyed by analytics_date. The record
// is a pure function of stored snapshots and migrations, so overwriting is
// always safe.
func (r *AnalyticsRepository) Upsert(ctx context.Context, analytics *models.DailyAnalytics) error {
	query := `
		INSERT INTO daily_analytics (
			analytics_date,
			settlement_price_usd,
			source_floor_price,
			source_supply,
			source_market_cap_usd,
			source_floor_change_pct,
			source_volume_24h,
			dest_floor_price,
			dest_supply,
			dest_market_cap_usd,
			dest_floor_change_pct,
			dest_volume_24h,
			total_migrations,
			daily_new_migrations,
			detected_migrations,
			migration_percent,
			price_ratio,
			combined_market_cap_usd,
			velocity_trend,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (analytics_date)
		DO UPDATE SET
			settlement_price_usd = EXCLUDED.settlement_price_usd,
			source_floor_price = EXCLUDED.source_floor_price,
			source_supply = EXCLUDED.source_supply,
			source_market_cap_usd = EXCLUDED.source_market_cap_usd,
			source_floor_change_pct = EXCLUDED.source_floor_change_pct,
			source_volume_24h = EXCLUDED.source_volume_24h,
			dest_floor_price = EXCLUDED.dest_floor_price,
			dest_supply = EXCLUDED.dest_supply,
			dest_market_cap_usd = EXCLUDED.dest_market_cap_usd,
			dest_floor_change_pct = EXCLUDED.dest_floor_change_pct,
			dest_volume_24h = EXCLUDED.dest_volume_24h,
			total_migrations = EXCLUDED.total_migrations,
			daily_new_migrations = EXCLUDED.daily_new_migrations,
			detected_migrations = EXCLUDED.detected_migrations,
			migration_percent = EXCLUDED.migration_percent,
			price_ratio = EXCLUDED.price_ratio,
			combined_market_cap_usd = EXCLUDED.combined_market_cap_usd,
			velocity_trend = EXCLUDED.velocity_trend,
			created_at = EXCLUDED.created_at
	`

	_, err := r.pool.Exec(
		ctx,
		query,
		models.DateOnly(analytics.AnalyticsDate),
		analytics.SettlementPriceUSD,
		analytics.SourceFloorPrice,
		analytics.SourceSupply,
		analytics.SourceMarketCapUSD,
		analytics.SourceFloorChangePct,
		analytics.SourceVolume24h,
		analytics.DestFloorPrice,
		analytics.DestSupply,
		analytics.DestMarketCapUSD,
		analytics.DestFloorChangePct,
		analytics.DestVolume24h,
		analytics.TotalMigrations,
		analytics.DailyNewMigrations,
		analytics.DetectedMigrations,
		analytics.MigrationPercent,
		analytics.PriceRatio,
		analytics.CombinedMarketCapUSD,
		string(analytics.VelocityTrend),
		time.Now().UTC(),
	)

	if err != nil {
		return fmt.Errorf("failed to upsert analytics: %w", err)
	}

	return nil
}

// GetByDate retrieves the analytics record for a day. Returns nil without
// error when no record exists.
func (r *AnalyticsRepository) GetByDate(ctx context.Context, date time.Time) (*models.DailyAnalytics, error) {
	query := analyticsSelect + ` WHERE analytics_date = $1`

	analytics, err := scanAnalyticsRow(r.pool.QueryRow(ctx, query, models.DateOnly(date)))
	if err == pgx.ErrNoRows {
		return nil, nil // No analytics found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query analytics: %w", err)
	}

	return analytics, nil
}

// GetLatest retrieves the most recent analytics record.
func (r *AnalyticsRepository) GetLatest(ctx context.Context) (*models.DailyAnalytics, error) {
	query := analyticsSelect + ` ORDER BY analytics_date DESC LIMIT 1`

	analytics, err := scanAnalyticsRow(r.pool.QueryRow(ctx, query))
	if err == pgx.ErrNoRows {
		return nil, nil // No analytics yet
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest analytics: %w", err)
	}

	return analytics, nil
}

// GetRange retrieves analytics records within a date range in chronological order.
func (r *AnalyticsRepository) GetRange(ctx context.Context, from, to time.Time) ([]*models.DailyAnalytics, error) {
	query := analyticsSelect + `
		WHERE analytics_date >= $1 AND analytics_date <= $2
		ORDER BY analytics_date ASC
	`

	rows, err := r.pool.Query(ctx, query, models.DateOnly(from), models.DateOnly(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query analytics range: %w", err)
	}
	defer rows.Close()

	var records []*models.DailyAnalytics

	for rows.Next() {
		record, err := scanAnalyticsRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analytics row: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating analytics rows: %w", err)
	}

	return records, nil
}

const analyticsSelect = `
	SELECT
		id,
		analytics_date,
		settlement_price_usd,
		source_floor_price,
		source_supply,
		source_market_cap_usd,
		source_floor_change_pct,
		source_volume_24h,
		dest_floor_price,
		dest_supply,
		dest_market_cap_usd,
		dest_floor_change_pct,
		dest_volume_24h,
		total_migrations,
		daily_new_migrations,
		detected_migrations,
		migration_percent,
		price_ratio,
		combined_market_cap_usd,
		velocity_trend,
		created_at
	FROM daily_analytics`

func scanAnalyticsRow(row rowScanner) (*models.DailyAnalytics, error) {
	var analytics models.DailyAnalytics
	var trend string
	err := row.Scan(
		&analytics.ID,
		&analytics.AnalyticsDate,
		&analytics.SettlementPriceUSD,
		&analytics.SourceFloorPrice,
		&analytics.SourceSupply,
		&analytics.SourceMarketCapUSD,
		&analytics.SourceFloorChangePct,
		&analytics.SourceVolume24h,
		&analytics.DestFloorPrice,
		&analytics.DestSupply,
		&analytics.DestMarketCapUSD,
		&analytics.DestFloorChangePct,
		&analytics.DestVolume24h,
		&analytics.TotalMigrations,
		&analytics.DailyNewMigrations,
		&analytics.DetectedMigrations,
		&analytics.MigrationPercent,
		&analytics.PriceRatio,
		&analytics.CombinedMarketCapUSD,
		&trend,
		&analytics.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	analytics.VelocityTrend = models.VelocityTrend(trend)
	return &analytics, nil
}
