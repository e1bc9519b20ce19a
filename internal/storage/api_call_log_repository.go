package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/migration-tracker/internal/models"
)

// APICallStats aggregates the API call log over a window.
type APICallStats struct {
	TotalCalls    uint64  `json:"totalCalls"`
	FailedCalls   uint64  `json:"failedCalls"`
	FailureRate   float64 `json:"failureRate"`
	AvgDurationMs float64 `json:"avgDurationMs"`
}

// APICallLogRepository writes outbound API call records to ClickHouse and
// aggregates them for the API health check.
type APICallLogRepository struct {
	conn driver.Conn
}

// NewAPICallLogRepository creates a new API call log repository
func NewAPICallLogRepository(conn driver.Conn) *APICallLogRepository {
	return &APICallLogRepository{
		conn: conn,
	}
}

// Record appends one API call log row.
func (r *APICallLogRepository) Record(ctx context.Context, log *models.APICallLog) error {
	query := `
		INSERT INTO api_call_logs (
			timestamp, provider, endpoint, method, status_code, success, duration_ms, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := r.conn.Exec(
		ctx,
		query,
		log.Timestamp,
		log.Provider,
		log.Endpoint,
		log.Method,
		log.StatusCode,
		log.Success,
		log.DurationMs,
		log.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to insert api call log: %w", err)
	}

	return nil
}

// RecordBatch appends a batch of API call log rows.
func (r *APICallLogRepository) RecordBatch(ctx context.Context, logs []*models.APICallLog) error {
	if len(logs) == 0 {
		return nil
	}

	batch, err := r.conn.PrepareBatch(ctx, `
		INSERT INTO api_call_logs (
			timestamp, provider, endpoint, method, status_code, success, duration_ms, error
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare api call log batch: %w", err)
	}

	for _, log := range logs {
		err := batch.Append(
			log.Timestamp,
			log.Provider,
			log.Endpoint,
			log.Method,
			log.StatusCode,
			log.Success,
			log.DurationMs,
			log.Error,
		)
		if err != nil {
			return fmt.Errorf("failed to append api call log: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send api call log batch: %w", err)
	}

	return nil
}

// StatsSince aggregates call counts and failure rate over a trailing window.
func (r *APICallLogRepository) StatsSince(ctx context.Context, since time.Time) (*APICallStats, error) {
	query := `
		SELECT
			count() AS total_calls,
			countIf(success = false) AS failed_calls,
			if(count() > 0, countIf(success = false) / count(), 0) AS failure_rate,
			if(count() > 0, avg(duration_ms), 0) AS avg_duration_ms
		FROM api_call_logs
		WHERE timestamp >= ?
	`

	var stats APICallStats
	row := r.conn.QueryRow(ctx, query, since)
	if err := row.Scan(&stats.TotalCalls, &stats.FailedCalls, &stats.FailureRate, &stats.AvgDurationMs); err != nil {
		return nil, fmt.Errorf("failed to query api call stats: %w", err)
	}

	return &stats, nil
}
