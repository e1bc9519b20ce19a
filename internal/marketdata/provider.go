// Package marketdata talks to external market APIs and normalizes their
// responses. The rest of the tracker only ever consumes the normalized
// metrics produced here, never raw provider payloads.
package marketdata

import (
	"context"
	"time"

	"github.com/migration-tracker/internal/models"
)

// CollectionMetrics is the normalized market state of one collection as
// reported by the provider at fetch time.
type CollectionMetrics struct {
	Slug         string    `json:"slug"`
	FloorPrice   float64   `json:"floorPrice"`
	TotalSupply  int64     `json:"totalSupply"`
	HoldersCount int64     `json:"holdersCount"`
	Volume24h    float64   `json:"volume24h"`
	Volume7d     float64   `json:"volume7d"`
	MarketCap    float64   `json:"marketCap"`
	ListedCount  int64     `json:"listedCount"`
	AveragePrice float64   `json:"averagePrice"`
	FetchedAt    time.Time `json:"fetchedAt"`
}

// Provider supplies per-collection market metrics and holder mappings.
// Implementations return a categorized provider error when no usable data
// can be served; they never fabricate values.
type Provider interface {
	// GetCollectionMetrics fetches and normalizes current market metrics
	// for a collection.
	GetCollectionMetrics(ctx context.Context, slug string) (*CollectionMetrics, error)

	// GetHolderMap fetches the full token-id to holder-address mapping of
	// a collection's contract.
	GetHolderMap(ctx context.Context, contractAddress string) (map[string]string, error)
}

// PriceSource supplies the current fiat price of the settlement currency.
type PriceSource interface {
	CurrentPrice(ctx context.Context) (float64, error)
}

// CallLogger records outbound API calls for health monitoring. Implemented
// by the ClickHouse API call log repository.
type CallLogger interface {
	Record(ctx context.Context, log *models.APICallLog) error
}
