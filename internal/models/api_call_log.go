package models

import "time"

// APICallLog records one outbound call to an external API. The log is
// append-only and feeds the API health monitoring rule.
type APICallLog struct {
	Timestamp  time.Time `json:"timestamp"`
	Provider   string    `json:"provider"`
	Endpoint   string    `json:"endpoint"`
	Method     string    `json:"method"`
	StatusCode int32     `json:"statusCode"`
	Success    bool      `json:"success"`
	DurationMs int64     `json:"durationMs"`
	Error      string    `json:"error,omitempty"`
}
