package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/migration-tracker/internal/models"
)

// HolderRepository handles per-token holder snapshot storage
type HolderRepository struct {
	pool *pgxpool.Pool
}

// NewHolderRepository creates a new holder repository
func NewHolderRepository(pool *pgxpool.Pool) *HolderRepository {
	return &HolderRepository{
		pool: pool,
	}
}

// ReplaceForDate replaces the full holder set of a collection for one day.
// The delete and insert run in a single transaction so a re-run can never
// leave a partially written holder set behind.
func (r *HolderRepository) ReplaceForDate(ctx context.Context, collectionID int64, date time.Time, holders map[string]string) error {
	day := models.DateOnly(date)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	deleteQuery := `
		DELETE FROM holder_snapshots
		WHERE collection_id = $1 AND snapshot_date = $2
	`
	if _, err := tx.Exec(ctx, deleteQuery, collectionID, day); err != nil {
		return fmt.Errorf("failed to clear holder snapshot: %w", err)
	}

	if len(holders) > 0 {
		rows := make([][]interface{}, 0, len(holders))
		for tokenID, holderAddress := range holders {
			rows = append(rows, []interface{}{collectionID, tokenID, holderAddress, day})
		}

		_, err = tx.CopyFrom(
			ctx,
			pgx.Identifier{"holder_snapshots"},
			[]string{"collection_id", "token_id", "holder_address", "snapshot_date"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("failed to insert holder snapshot: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit holder snapshot: %w", err)
	}

	return nil
}

// GetHolderMap retrieves the token-id to holder-address mapping of a
// collection on a given day. Returns nil when no holder snapshot exists
// for that day.
func (r *HolderRepository) GetHolderMap(ctx context.Context, collectionID int64, date time.Time) (map[string]string, error) {
	query := `
		SELECT token_id, holder_address
		FROM holder_snapshots
		WHERE collection_id = $1 AND snapshot_date = $2
	`

	rows, err := r.pool.Query(ctx, query, collectionID, models.DateOnly(date))
	if err != nil {
		return nil, fmt.Errorf("failed to query holder snapshot: %w", err)
	}
	defer rows.Close()

	var holders map[string]string

	for rows.Next() {
		var tokenID, holderAddress string
		if err := rows.Scan(&tokenID, &holderAddress); err != nil {
			return nil, fmt.Errorf("failed to scan holder row: %w", err)
		}
		if holders == nil {
			holders = make(map[string]string)
		}
		holders[tokenID] = holderAddress
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holder rows: %w", err)
	}

	return holders, nil
}

// HasSnapshotForDate reports whether any holder rows exist for the day.
func (r *HolderRepository) HasSnapshotForDate(ctx context.Context, collectionID int64, date time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM holder_snapshots
			WHERE collection_id = $1 AND snapshot_date = $2
		)
	`

	var exists bool
	err := r.pool.QueryRow(ctx, query, collectionID, models.DateOnly(date)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check holder snapshot existence: %w", err)
	}

	return exists, nil
}

// CountForDate returns the number of holder rows for a collection-day.
func (r *HolderRepository) CountForDate(ctx context.Context, collectionID int64, date time.Time) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM holder_snapshots
		WHERE collection_id = $1 AND snapshot_date = $2
	`

	var count int64
	err := r.pool.QueryRow(ctx, query, collectionID, models.DateOnly(date)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count holder rows: %w", err)
	}

	return count, nil
}
