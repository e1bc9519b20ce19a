package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/migration-tracker/internal/models"
)

// SettlementPriceRepository handles per-day settlement price storage
type SettlementPriceRepository struct {
	pool *pgxpool.Pool
}

// NewSettlementPriceRepository creates a new settlement price repository
func NewSettlementPriceRepository(pool *pgxpool.Pool) *SettlementPriceRepository {
	return &SettlementPriceRepository{
		pool: pool,
	}
}

// Record stores the price for a day if none has been recorded yet. A day's
// price is immutable once written; re-runs keep the original value.
func (r *SettlementPriceRepository) Record(ctx context.Context, price *models.SettlementPrice) error {
	query := `
		INSERT INTO settlement_prices (price_date, price_usd, source, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (price_date) DO NOTHING
	`

	_, err := r.pool.Exec(
		ctx,
		query,
		models.DateOnly(price.PriceDate),
		price.PriceUSD,
		price.Source,
		time.Now().UTC(),
	)

	if err != nil {
		return fmt.Errorf("failed to record settlement price: %w", err)
	}

	return nil
}

// GetByDate retrieves the recorded price for a day. Returns nil without
// error when no price has been recorded.
func (r *SettlementPriceRepository) GetByDate(ctx context.Context, date time.Time) (*models.SettlementPrice, error) {
	query := `
		SELECT price_date, price_usd, source, created_at
		FROM settlement_prices
		WHERE price_date = $1
	`

	price, err := scanSettlementPriceRow(r.pool.QueryRow(ctx, query, models.DateOnly(date)))
	if err == pgx.ErrNoRows {
		return nil, nil // No price recorded
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query settlement price: %w", err)
	}

	return price, nil
}

// GetLatestBefore retrieves the most recent recorded price strictly before
// a date.
func (r *SettlementPriceRepository) GetLatestBefore(ctx context.Context, date time.Time) (*models.SettlementPrice, error) {
	query := `
		SELECT price_date, price_usd, source, created_at
		FROM settlement_prices
		WHERE price_date < $1
		ORDER BY price_date DESC
		LIMIT 1
	`

	price, err := scanSettlementPriceRow(r.pool.QueryRow(ctx, query, models.DateOnly(date)))
	if err == pgx.ErrNoRows {
		return nil, nil // No prior price
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest settlement price before date: %w", err)
	}

	return price, nil
}

func scanSettlementPriceRow(row pgx.Row) (*models.SettlementPrice, error) {
	var price models.SettlementPrice
	err := row.Scan(&price.PriceDate, &price.PriceUSD, &price.Source, &price.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &price, nil
}
