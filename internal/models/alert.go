package models

import "time"

// AlertType identifies which monitoring rule fired.
type AlertType string

const (
	AlertMigrationSpike  AlertType = "migration_spike"
	AlertVolumeAnomaly   AlertType = "volume_anomaly"
	AlertFloorCrash      AlertType = "floor_crash"
	AlertAPIHealth       AlertType = "api_health"
	AlertDataFreshness   AlertType = "data_freshness"
	AlertDataIntegrity   AlertType = "data_integrity"
	AlertReviewCandidate AlertType = "review_candidate"
)

// AlertSeverity grades an alert.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "INFO"
	SeverityWarning  AlertSeverity = "WARNING"
	SeverityCritical AlertSeverity = "CRITICAL"
)

// Alert is an append-only monitoring record. Only the resolved flag is
// mutated, by an operator, after creation.
type Alert struct {
	ID         string                 `json:"id" db:"id"`
	Type       AlertType              `json:"type" db:"alert_type"`
	Severity   AlertSeverity          `json:"severity" db:"severity"`
	Message    string                 `json:"message" db:"message"`
	Data       map[string]interface{} `json:"data,omitempty" db:"data"`
	Resolved   bool                   `json:"resolved" db:"resolved"`
	ResolvedAt *time.Time             `json:"resolvedAt,omitempty" db:"resolved_at"`
	CreatedAt  time.Time              `json:"createdAt" db:"created_at"`
}
