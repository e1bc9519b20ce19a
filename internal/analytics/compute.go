// Package analytics derives the per-day aggregate record from stored
// snapshots and migration events.
package analytics

import "github.com/migration-tracker/internal/models"

// PctChange returns the percent change from previous to current. A zero or
// negative baseline yields an explicit 0, never an error or NaN.
func PctChange(current, previous float64) float64 {
	if previous <= 0 {
		return 0
	}
	return ((current - previous) / previous) * 100
}

// MarketCap computes a collection's market capitalization in the settlement
// fiat currency: floor price times supply times settlement price.
func MarketCap(floorPrice float64, totalSupply int64, settlementPrice float64) float64 {
	return floorPrice * float64(totalSupply) * settlementPrice
}

// SupplyDelta returns the supply change between two days, or 0 when there is
// no prior snapshot.
func SupplyDelta(current int64, previous int64, hasPrevious bool) int64 {
	if !hasPrevious {
		return 0
	}
	return current - previous
}

// MigrationPercent returns migrated supply as a percentage of the source
// baseline, guarded against a zero denominator.
func MigrationPercent(totalMigrations int64, baselineSupply int64) float64 {
	if baselineSupply <= 0 {
		return 0
	}
	return (float64(totalMigrations) / float64(baselineSupply)) * 100
}

// PriceRatio returns destination floor over source floor, or the configured
// default when the source floor is zero.
func PriceRatio(destFloor, sourceFloor, defaultRatio float64) float64 {
	if sourceFloor <= 0 {
		return defaultRatio
	}
	return destFloor / sourceFloor
}

// Mean returns the arithmetic mean of the values, or 0 for an empty slice.
func Mean(values []int64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum int64
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}

// ClassifyVelocity compares the recent window's mean daily migrations to the
// prior window's. A relative change strictly beyond the threshold percent
// selects accelerating or decelerating; the boundary itself is stable. A
// zero prior mean with recent activity is new_activity rather than a
// division result.
func ClassifyVelocity(recentMean, priorMean, thresholdPct float64) models.VelocityTrend {
	if priorMean == 0 {
		if recentMean > 0 {
			return models.TrendNewActivity
		}
		return models.TrendStable
	}

	relChange := ((recentMean - priorMean) / priorMean) * 100
	switch {
	case relChange > thresholdPct:
		return models.TrendAccelerating
	case relChange < -thresholdPct:
		return models.TrendDecelerating
	default:
		return models.TrendStable
	}
}
