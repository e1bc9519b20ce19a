package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/migration-tracker/internal/models"
)

// SnapshotRepository handles daily collection snapshot storage
type SnapshotRepository struct {
	pool *pgxpool.Pool
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(pool *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{
		pool: pool,
	}
}

// Upsert stores a daily snapshot. A re-run for the same (collection, date)
// overwrites the existing row, never duplicates it.
func (r *SnapshotRepository) Upsert(ctx context.Context, snapshot *models.DailySnapshot) error {
	query := `
		INSERT INTO daily_snapshots (
			collection_id,
			snapshot_date,
			total_supply,
			holders_count,
			floor_price,
			floor_price_fiat,
			volume_24h,
			volume_7d,
			market_cap,
			listed_count,
			listed_percentage,
			average_price,
			stale,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (collection_id, snapshot_date)
		DO UPDATE SET
			total_supply = EXCLUDED.total_supply,
			holders_count = EXCLUDED.holders_count,
			floor_price = EXCLUDED.floor_price,
			floor_price_fiat = EXCLUDED.floor_price_fiat,
			volume_24h = EXCLUDED.volume_24h,
			volume_7d = EXCLUDED.volume_7d,
			market_cap = EXCLUDED.market_cap,
			listed_count = EXCLUDED.listed_count,
			listed_percentage = EXCLUDED.listed_percentage,
			average_price = EXCLUDED.average_price,
			stale = EXCLUDED.stale,
			created_at = EXCLUDED.created_at
	`

	_, err := r.pool.Exec(
		ctx,
		query,
		snapshot.CollectionID,
		models.DateOnly(snapshot.SnapshotDate),
		snapshot.TotalSupply,
		snapshot.HoldersCount,
		snapshot.FloorPrice,
		snapshot.FloorPriceFiat,
		snapshot.Volume24h,
		snapshot.Volume7d,
		snapshot.MarketCap,
		snapshot.ListedCount,
		snapshot.ListedPercentage,
		snapshot.AveragePrice,
		snapshot.Stale,
		time.Now().UTC(),
	)

	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}

	return nil
}

// GetByDate retrieves the snapshot for a collection on a given day.
// Returns nil without error when no snapshot exists.
func (r *SnapshotRepository) GetByDate(ctx context.Context, collectionID int64, date time.Time) (*models.DailySnapshot, error) {
	query := `
		SELECT
			id,
			collection_id,
			snapshot_date,
			total_supply,
			holders_count,
			floor_price,
			floor_price_fiat,
			volume_24h,
			volume_7d,
			market_cap,
			listed_count,
			listed_percentage,
			average_price,
			stale,
			created_at
		FROM daily_snapshots
		WHERE collection_id = $1 AND snapshot_date = $2
	`

	snapshot, err := scanSnapshotRow(r.pool.QueryRow(ctx, query, collectionID, models.DateOnly(date)))
	if err == pgx.ErrNoRows {
		return nil, nil // No snapshot found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}

	return snapshot, nil
}

// GetLatestBefore retrieves the most recent snapshot strictly before a date.
func (r *SnapshotRepository) GetLatestBefore(ctx context.Context, collectionID int64, date time.Time) (*models.DailySnapshot, error) {
	query := `
		SELECT
			id,
			collection_id,
			snapshot_date,
			total_supply,
			holders_count,
			floor_price,
			floor_price_fiat,
			volume_24h,
			volume_7d,
			market_cap,
			listed_count,
			listed_percentage,
			average_price,
			stale,
			created_at
		FROM daily_snapshots
		WHERE collection_id = $1 AND snapshot_date < $2
		ORDER BY snapshot_date DESC
		LIMIT 1
	`

	snapshot, err := scanSnapshotRow(r.pool.QueryRow(ctx, query, collectionID, models.DateOnly(date)))
	if err == pgx.ErrNoRows {
		return nil, nil // No prior snapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest snapshot before date: %w", err)
	}

	return snapshot, nil
}

// GetRange retrieves snapshots for a collection within a date range, in
// chronological order.
func (r *SnapshotRepository) GetRange(ctx context.Context, collectionID int64, from, to time.Time) ([]*models.DailySnapshot, error) {
	query := `
		SELECT
			id,
			collection_id,
			snapshot_date,
			total_supply,
			holders_count,
			floor_price,
			floor_price_fiat,
			volume_24h,
			volume_7d,
			market_cap,
			listed_count,
			listed_percentage,
			average_price,
			stale,
			created_at
		FROM daily_snapshots
		WHERE collection_id = $1
			AND snapshot_date >= $2
			AND snapshot_date <= $3
		ORDER BY snapshot_date ASC
	`

	rows, err := r.pool.Query(ctx, query, collectionID, models.DateOnly(from), models.DateOnly(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*models.DailySnapshot

	for rows.Next() {
		snapshot, err := scanSnapshotRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		snapshots = append(snapshots, snapshot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot rows: %w", err)
	}

	return snapshots, nil
}

// DeleteOlderThan deletes snapshots older than the retention period.
// Negative retention means unlimited.
func (r *SnapshotRepository) DeleteOlderThan(ctx context.Context, collectionID int64, retentionDays int) (int64, error) {
	if retentionDays < 0 {
		return 0, nil
	}

	cutoffDate := models.DateOnly(time.Now().UTC().AddDate(0, 0, -retentionDays))

	query := `
		DELETE FROM daily_snapshots
		WHERE collection_id = $1
			AND snapshot_date < $2
	`

	result, err := r.pool.Exec(ctx, query, collectionID, cutoffDate)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old snapshots: %w", err)
	}

	return result.RowsAffected(), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshotRow(row rowScanner) (*models.DailySnapshot, error) {
	var snapshot models.DailySnapshot
	err := row.Scan(
		&snapshot.ID,
		&snapshot.CollectionID,
		&snapshot.SnapshotDate,
		&snapshot.TotalSupply,
		&snapshot.HoldersCount,
		&snapshot.FloorPrice,
		&snapshot.FloorPriceFiat,
		&snapshot.Volume24h,
		&snapshot.Volume7d,
		&snapshot.MarketCap,
		&snapshot.ListedCount,
		&snapshot.ListedPercentage,
		&snapshot.AveragePrice,
		&snapshot.Stale,
		&snapshot.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}
