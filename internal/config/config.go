// Package config provides configuration management for the migration tracker.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Collections CollectionsConfig
	Provider    ProviderConfig
	Pricing     PricingConfig
	Monitoring  MonitoringConfig
	Analytics   AnalyticsConfig
	Logging     LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// CollectionConfig identifies a tracked collection on the marketplace
type CollectionConfig struct {
	Slug     string
	Name     string
	Contract string
}

// CollectionsConfig holds the source and destination collections of the migration
type CollectionsConfig struct {
	Source      CollectionConfig
	Destination CollectionConfig
}

// ProviderConfig holds market data provider configuration
type ProviderConfig struct {
	BaseURL           string
	APIKey            string
	RequestsPerSecond float64
	Timeout           time.Duration
	MaxRetries        int
}

// PricingConfig holds settlement price configuration
type PricingConfig struct {
	PriceAPIBaseURL   string
	SettlementAssetID string
	CacheTTL          time.Duration
	FallbackPriceUSD  float64
}

// MonitoringConfig holds anomaly detection thresholds
type MonitoringConfig struct {
	MigrationSpikeThreshold float64 // day-over-day ratio of new migrations that flags a spike
	VolumeAnomalyMultiplier float64 // multiple of trailing 7-day average volume
	FloorCrashPercent       float64 // negative percent change that flags a crash
	APIFailureRateThreshold float64 // failure fraction over the API health window
	APIHealthWindow         time.Duration
}

// AnalyticsConfig holds analytics constants
type AnalyticsConfig struct {
	SourceBaselineSupply   int // original source collection supply used as the migration denominator
	MigratedBeforeTracking int // tokens burned into the destination before tracking began
	VelocityWindowDays     int
	VelocityTrendPercent   float64
	DefaultPriceRatio      float64
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "migration_tracker"),
				User:           getEnv("POSTGRES_USER", "tracker"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "migration_tracker"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Collections: CollectionsConfig{
			Source: CollectionConfig{
				Slug:     getEnv("SOURCE_COLLECTION_SLUG", "gods-unchained"),
				Name:     getEnv("SOURCE_COLLECTION_NAME", "Gods Unchained Origins"),
				Contract: getEnv("SOURCE_COLLECTION_CONTRACT", ""),
			},
			Destination: CollectionConfig{
				Slug:     getEnv("DEST_COLLECTION_SLUG", "gu-migration"),
				Name:     getEnv("DEST_COLLECTION_NAME", "GU Migration"),
				Contract: getEnv("DEST_COLLECTION_CONTRACT", ""),
			},
		},
		Provider: ProviderConfig{
			BaseURL:           getEnv("PROVIDER_BASE_URL", "https://api.opensea.io/api/v2"),
			APIKey:            getEnv("PROVIDER_API_KEY", ""),
			RequestsPerSecond: getEnvAsFloat("PROVIDER_REQUESTS_PER_SECOND", 4.0),
			Timeout:           getEnvAsDuration("PROVIDER_TIMEOUT", 30*time.Second),
			MaxRetries:        getEnvAsInt("PROVIDER_MAX_RETRIES", 3),
		},
		Pricing: PricingConfig{
			PriceAPIBaseURL:   getEnv("PRICE_API_BASE_URL", "https://api.coingecko.com/api/v3"),
			SettlementAssetID: getEnv("SETTLEMENT_ASSET_ID", "ethereum"),
			CacheTTL:          getEnvAsDuration("PRICE_CACHE_TTL", 5*time.Minute),
			FallbackPriceUSD:  getEnvAsFloat("FALLBACK_PRICE_USD", 2000.0),
		},
		Monitoring: MonitoringConfig{
			MigrationSpikeThreshold: getEnvAsFloat("MIGRATION_SPIKE_THRESHOLD", 2.0),
			VolumeAnomalyMultiplier: getEnvAsFloat("VOLUME_ANOMALY_MULTIPLIER", 2.0),
			FloorCrashPercent:       getEnvAsFloat("FLOOR_CRASH_PERCENT", -50.0),
			APIFailureRateThreshold: getEnvAsFloat("API_FAILURE_RATE_THRESHOLD", 0.3),
			APIHealthWindow:         getEnvAsDuration("API_HEALTH_WINDOW", 24*time.Hour),
		},
		Analytics: AnalyticsConfig{
			SourceBaselineSupply:   getEnvAsInt("SOURCE_BASELINE_SUPPLY", 9993),
			MigratedBeforeTracking: getEnvAsInt("MIGRATED_BEFORE_TRACKING", 26),
			VelocityWindowDays:     getEnvAsInt("VELOCITY_WINDOW_DAYS", 7),
			VelocityTrendPercent:   getEnvAsFloat("VELOCITY_TREND_PERCENT", 10.0),
			DefaultPriceRatio:      getEnvAsFloat("DEFAULT_PRICE_RATIO", 1.0),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime failures deep in the pipeline.
func (c *Config) Validate() error {
	if c.Collections.Source.Slug == c.Collections.Destination.Slug {
		return fmt.Errorf("source and destination collections must differ, both are %q", c.Collections.Source.Slug)
	}
	if c.Provider.RequestsPerSecond <= 0 {
		return fmt.Errorf("provider requests per second must be positive, got %v", c.Provider.RequestsPerSecond)
	}
	if c.Analytics.SourceBaselineSupply <= 0 {
		return fmt.Errorf("source baseline supply must be positive, got %d", c.Analytics.SourceBaselineSupply)
	}
	if c.Analytics.VelocityWindowDays <= 0 {
		return fmt.Errorf("velocity window days must be positive, got %d", c.Analytics.VelocityWindowDays)
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
