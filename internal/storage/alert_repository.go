package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/migration-tracker/internal/models"
)

// AlertRepository handles alert storage. Alerts are append-only; only the
// resolved flag is mutated after creation.
type AlertRepository struct {
	pool *pgxpool.Pool
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(pool *pgxpool.Pool) *AlertRepository {
	return &AlertRepository{
		pool: pool,
	}
}

// Create stores a new alert and fills in its generated ID and timestamp.
func (r *AlertRepository) Create(ctx context.Context, alert *models.Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}

	var dataJSON []byte
	if alert.Data != nil {
		var err error
		dataJSON, err = json.Marshal(alert.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal alert data: %w", err)
		}
	}

	query := `
		INSERT INTO alerts (
			id,
			alert_type,
			severity,
			message,
			data,
			resolved,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(
		ctx,
		query,
		alert.ID,
		string(alert.Type),
		string(alert.Severity),
		alert.Message,
		dataJSON,
		alert.Resolved,
		alert.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}

	return nil
}

// Resolve flips an alert's resolved flag. Returns false when the alert does
// not exist or is already resolved.
func (r *AlertRepository) Resolve(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE alerts
		SET resolved = TRUE, resolved_at = $2
		WHERE id = $1 AND resolved = FALSE
	`

	result, err := r.pool.Exec(ctx, query, id, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to resolve alert: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// GetByID retrieves one alert. Returns nil without error when not found.
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	query := `
		SELECT id, alert_type, severity, message, data, resolved, resolved_at, created_at
		FROM alerts
		WHERE id = $1
	`

	alert, err := scanAlertRow(r.pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil // No alert found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query alert: %w", err)
	}

	return alert, nil
}

// List retrieves alerts, most recent first. When unresolvedOnly is set,
// resolved alerts are filtered out.
func (r *AlertRepository) List(ctx context.Context, unresolvedOnly bool, limit int) ([]*models.Alert, error) {
	query := `
		SELECT id, alert_type, severity, message, data, resolved, resolved_at, created_at
		FROM alerts
		WHERE ($1 = FALSE OR resolved = FALSE)
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, unresolvedOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.Alert

	for rows.Next() {
		alert, err := scanAlertRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert row: %w", err)
		}
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alert rows: %w", err)
	}

	return alerts, nil
}

func scanAlertRow(row rowScanner) (*models.Alert, error) {
	var alert models.Alert
	var alertType, severity string
	var dataJSON []byte

	err := row.Scan(
		&alert.ID,
		&alertType,
		&severity,
		&alert.Message,
		&dataJSON,
		&alert.Resolved,
		&alert.ResolvedAt,
		&alert.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	alert.Type = models.AlertType(alertType)
	alert.Severity = models.AlertSeverity(severity)

	if len(dataJSON) > 0 {
		if err := json.Unmarshal(dataJSON, &alert.Data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal alert data: %w", err)
		}
	}

	return &alert, nil
}
