package models

import "time"

// Settlement price provenance values.
const (
	PriceSourceProvider       = "provider"
	PriceSourceCarriedForward = "carried_forward"
	PriceSourceFallback       = "fallback"
)

// SettlementPrice is the fiat price of the settlement currency recorded for
// one calendar day. A day's price is written once and never overwritten, so
// analytics recomputed for a historical date always see the same value.
type SettlementPrice struct {
	PriceDate time.Time `json:"priceDate" db:"price_date"`
	PriceUSD  float64   `json:"priceUsd" db:"price_usd"`
	Source    string    `json:"source" db:"source"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
