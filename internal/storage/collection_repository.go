package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/migration-tracker/internal/models"
)

// CollectionRepository handles collection identity storage
type CollectionRepository struct {
	pool *pgxpool.Pool
}

// NewCollectionRepository creates a new collection repository
func NewCollectionRepository(pool *pgxpool.Pool) *CollectionRepository {
	return &CollectionRepository{
		pool: pool,
	}
}

// EnsureCollection inserts a collection identity if it does not already exist
// and returns the stored record. Identity fields are never mutated once
// created; a conflicting insert only touches display metadata.
func (r *CollectionRepository) EnsureCollection(ctx context.Context, slug, displayName, contractAddress string) (*models.Collection, error) {
	normalized, err := models.NormalizeContractAddress(contractAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize contract address: %w", err)
	}

	query := `
		INSERT INTO collections (slug, display_name, contract_address, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (slug)
		DO UPDATE SET
			display_name = EXCLUDED.display_name
		RETURNING id, slug, display_name, contract_address, created_at
	`

	var collection models.Collection
	err = r.pool.QueryRow(ctx, query, slug, displayName, normalized, time.Now().UTC()).Scan(
		&collection.ID,
		&collection.Slug,
		&collection.DisplayName,
		&collection.ContractAddress,
		&collection.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure collection: %w", err)
	}

	return &collection, nil
}

// GetBySlug retrieves a collection by its slug
func (r *CollectionRepository) GetBySlug(ctx context.Context, slug string) (*models.Collection, error) {
	query := `
		SELECT id, slug, display_name, contract_address, created_at
		FROM collections
		WHERE slug = $1
	`

	var collection models.Collection
	err := r.pool.QueryRow(ctx, query, slug).Scan(
		&collection.ID,
		&collection.Slug,
		&collection.DisplayName,
		&collection.ContractAddress,
		&collection.CreatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil // No collection found
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}

	return &collection, nil
}
