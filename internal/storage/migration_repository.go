package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/migration-tracker/internal/models"
)

// MigrationRepository handles migration event storage
type MigrationRepository struct {
	pool *pgxpool.Pool
}

// NewMigrationRepository creates a new migration repository
func NewMigrationRepository(pool *pgxpool.Pool) *MigrationRepository {
	return &MigrationRepository{
		pool: pool,
	}
}

// InsertIfAbsent records a migration event unless one already exists for the
// same (token, from, to) triple. Returns true when a new row was written, so
// reprocessing the same day converges to identical state.
func (r *MigrationRepository) InsertIfAbsent(ctx context.Context, event *models.MigrationEvent) (bool, error) {
	query := `
		INSERT INTO migration_events (
			token_id,
			from_collection_id,
			to_collection_id,
			migration_date,
			from_holder,
			to_holder,
			tx_reference,
			block_reference,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (token_id, from_collection_id, to_collection_id) DO NOTHING
	`

	result, err := r.pool.Exec(
		ctx,
		query,
		event.TokenID,
		event.FromCollectionID,
		event.ToCollectionID,
		models.DateOnly(event.MigrationDate),
		event.FromHolder,
		event.ToHolder,
		event.TxReference,
		event.BlockReference,
		time.Now().UTC(),
	)

	if err != nil {
		return false, fmt.Errorf("failed to insert migration event: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// CountThroughDate counts migration events between a collection pair dated
// at or before a day.
func (r *MigrationRepository) CountThroughDate(ctx context.Context, fromID, toID int64, date time.Time) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM migration_events
		WHERE from_collection_id = $1
			AND to_collection_id = $2
			AND migration_date <= $3
	`

	var count int64
	err := r.pool.QueryRow(ctx, query, fromID, toID, models.DateOnly(date)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count migration events: %w", err)
	}

	return count, nil
}

// CountByDate counts migration events between a collection pair on a single day.
func (r *MigrationRepository) CountByDate(ctx context.Context, fromID, toID int64, date time.Time) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM migration_events
		WHERE from_collection_id = $1
			AND to_collection_id = $2
			AND migration_date = $3
	`

	var count int64
	err := r.pool.QueryRow(ctx, query, fromID, toID, models.DateOnly(date)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count migration events by date: %w", err)
	}

	return count, nil
}

// DailyCounts returns per-day migration counts for a collection pair within
// a date range, in chronological order. Days with no events are absent.
func (r *MigrationRepository) DailyCounts(ctx context.Context, fromID, toID int64, from, to time.Time) (map[time.Time]int64, error) {
	query := `
		SELECT migration_date, COUNT(*)
		FROM migration_events
		WHERE from_collection_id = $1
			AND to_collection_id = $2
			AND migration_date >= $3
			AND migration_date <= $4
		GROUP BY migration_date
		ORDER BY migration_date ASC
	`

	rows, err := r.pool.Query(ctx, query, fromID, toID, models.DateOnly(from), models.DateOnly(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query daily migration counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[time.Time]int64)

	for rows.Next() {
		var day time.Time
		var count int64
		if err := rows.Scan(&day, &count); err != nil {
			return nil, fmt.Errorf("failed to scan daily count row: %w", err)
		}
		counts[models.DateOnly(day)] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily count rows: %w", err)
	}

	return counts, nil
}

// GetByDateRange retrieves migration events within a date range, most recent
// first, capped at limit.
func (r *MigrationRepository) GetByDateRange(ctx context.Context, fromID, toID int64, from, to time.Time, limit int) ([]*models.MigrationEvent, error) {
	query := `
		SELECT
			id,
			token_id,
			from_collection_id,
			to_collection_id,
			migration_date,
			from_holder,
			to_holder,
			tx_reference,
			block_reference,
			created_at
		FROM migration_events
		WHERE from_collection_id = $1
			AND to_collection_id = $2
			AND migration_date >= $3
			AND migration_date <= $4
		ORDER BY migration_date DESC, token_id ASC
		LIMIT $5
	`

	rows, err := r.pool.Query(ctx, query, fromID, toID, models.DateOnly(from), models.DateOnly(to), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query migration events: %w", err)
	}
	defer rows.Close()

	var events []*models.MigrationEvent

	for rows.Next() {
		var event models.MigrationEvent
		err := rows.Scan(
			&event.ID,
			&event.TokenID,
			&event.FromCollectionID,
			&event.ToCollectionID,
			&event.MigrationDate,
			&event.FromHolder,
			&event.ToHolder,
			&event.TxReference,
			&event.BlockReference,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan migration event row: %w", err)
		}
		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating migration event rows: %w", err)
	}

	return events, nil
}

// GetStats summarizes the event series for a collection pair.
func (r *MigrationRepository) GetStats(ctx context.Context, fromID, toID int64) (*models.MigrationStats, error) {
	query := `
		SELECT COUNT(*), MIN(migration_date), MAX(migration_date)
		FROM migration_events
		WHERE from_collection_id = $1 AND to_collection_id = $2
	`

	var stats models.MigrationStats
	err := r.pool.QueryRow(ctx, query, fromID, toID).Scan(
		&stats.TotalEvents,
		&stats.FirstEventDate,
		&stats.LastEventDate,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query migration stats: %w", err)
	}

	if stats.TotalEvents == 0 {
		return &stats, nil
	}

	busiestQuery := `
		SELECT migration_date, COUNT(*) AS n
		FROM migration_events
		WHERE from_collection_id = $1 AND to_collection_id = $2
		GROUP BY migration_date
		ORDER BY n DESC, migration_date ASC
		LIMIT 1
	`

	var busiest time.Time
	err = r.pool.QueryRow(ctx, busiestQuery, fromID, toID).Scan(&busiest, &stats.BusiestDayN)
	if err != nil && err != pgx.ErrNoRows {
		return nil, fmt.Errorf("failed to query busiest migration day: %w", err)
	}
	if err == nil {
		busiest = models.DateOnly(busiest)
		stats.BusiestDay = &busiest
	}

	return &stats, nil
}
