package models

import "time"

// VelocityTrend classifies the migration pace over rolling windows.
type VelocityTrend string

const (
	TrendAccelerating     VelocityTrend = "accelerating"
	TrendDecelerating     VelocityTrend = "decelerating"
	TrendStable           VelocityTrend = "stable"
	TrendNewActivity      VelocityTrend = "new_activity"
	TrendInsufficientData VelocityTrend = "insufficient_data"
)

// DailyAnalytics is the derived per-day aggregate. Keyed by analytics_date
// and fully recomputed on every run; it is a pure function of the stored
// snapshots, the migration events, and the settlement price for the day.
type DailyAnalytics struct {
	ID                 int64     `json:"id" db:"id"`
	AnalyticsDate      time.Time `json:"analyticsDate" db:"analytics_date"`
	SettlementPriceUSD float64   `json:"settlementPriceUsd" db:"settlement_price_usd"`

	SourceFloorPrice     float64 `json:"sourceFloorPrice" db:"source_floor_price"`
	SourceSupply         int64   `json:"sourceSupply" db:"source_supply"`
	SourceMarketCapUSD   float64 `json:"sourceMarketCapUsd" db:"source_market_cap_usd"`
	SourceFloorChangePct float64 `json:"sourceFloorChangePct" db:"source_floor_change_pct"`
	SourceVolume24h      float64 `json:"sourceVolume24h" db:"source_volume_24h"`

	DestFloorPrice     float64 `json:"destFloorPrice" db:"dest_floor_price"`
	DestSupply         int64   `json:"destSupply" db:"dest_supply"`
	DestMarketCapUSD   float64 `json:"destMarketCapUsd" db:"dest_market_cap_usd"`
	DestFloorChangePct float64 `json:"destFloorChangePct" db:"dest_floor_change_pct"`
	DestVolume24h      float64 `json:"destVolume24h" db:"dest_volume_24h"`

	// DailyNewMigrations is the destination supply-growth proxy, while
	// DetectedMigrations is the token-level detector count for the same day.
	// The two signals can diverge and both are retained.
	TotalMigrations    int64 `json:"totalMigrations" db:"total_migrations"`
	DailyNewMigrations int64 `json:"dailyNewMigrations" db:"daily_new_migrations"`
	DetectedMigrations int64 `json:"detectedMigrations" db:"detected_migrations"`

	MigrationPercent     float64       `json:"migrationPercent" db:"migration_percent"`
	PriceRatio           float64       `json:"priceRatio" db:"price_ratio"`
	CombinedMarketCapUSD float64       `json:"combinedMarketCapUsd" db:"combined_market_cap_usd"`
	VelocityTrend        VelocityTrend `json:"velocityTrend" db:"velocity_trend"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
