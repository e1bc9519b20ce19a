package models

import "time"

// DateFormat is the canonical calendar-day format used across the tracker.
const DateFormat = "2006-01-02"

// DailySnapshot represents one collection's market state on a calendar day.
// Keyed by (collection_id, snapshot_date), upserted once per day.
type DailySnapshot struct {
	ID               int64     `json:"id" db:"id"`
	CollectionID     int64     `json:"collectionId" db:"collection_id"`
	SnapshotDate     time.Time `json:"snapshotDate" db:"snapshot_date"`
	TotalSupply      int64     `json:"totalSupply" db:"total_supply"`
	HoldersCount     int64     `json:"holdersCount" db:"holders_count"`
	FloorPrice       float64   `json:"floorPrice" db:"floor_price"`
	FloorPriceFiat   float64   `json:"floorPriceFiat" db:"floor_price_fiat"`
	Volume24h        float64   `json:"volume24h" db:"volume_24h"`
	Volume7d         float64   `json:"volume7d" db:"volume_7d"`
	MarketCap        float64   `json:"marketCap" db:"market_cap"`
	ListedCount      int64     `json:"listedCount" db:"listed_count"`
	ListedPercentage float64   `json:"listedPercentage" db:"listed_percentage"`
	AveragePrice     float64   `json:"averagePrice" db:"average_price"`
	Stale            bool      `json:"stale" db:"stale"`
	CreatedAt        time.Time `json:"createdAt" db:"created_at"`
}

// HolderSnapshot maps one token to its holder address on a calendar day.
// The full set for a (collection, date) is replaced wholesale on re-run.
type HolderSnapshot struct {
	CollectionID  int64     `json:"collectionId" db:"collection_id"`
	TokenID       string    `json:"tokenId" db:"token_id"`
	HolderAddress string    `json:"holderAddress" db:"holder_address"`
	SnapshotDate  time.Time `json:"snapshotDate" db:"snapshot_date"`
}

// DateOnly truncates a timestamp to its UTC calendar day.
func DateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FormatDate renders a timestamp as a YYYY-MM-DD day string.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateFormat)
}

// ParseDate parses a YYYY-MM-DD day string into a UTC midnight timestamp.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateFormat, s, time.UTC)
}
