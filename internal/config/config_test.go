package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	// Set some test environment variables
	if err := os.Setenv("SERVER_PORT", "9090"); err != nil {
		t.Fatalf("Failed to set SERVER_PORT: %v", err)
	}
	if err := os.Setenv("POSTGRES_HOST", "testhost"); err != nil {
		t.Fatalf("Failed to set POSTGRES_HOST: %v", err)
	}
	if err := os.Setenv("PRICE_CACHE_TTL", "10m"); err != nil {
		t.Fatalf("Failed to set PRICE_CACHE_TTL: %v", err)
	}
	if err := os.Setenv("MIGRATION_SPIKE_THRESHOLD", "0.25"); err != nil {
		t.Fatalf("Failed to set MIGRATION_SPIKE_THRESHOLD: %v", err)
	}
	defer func() {
		_ = os.Unsetenv("SERVER_PORT")
		_ = os.Unsetenv("POSTGRES_HOST")
		_ = os.Unsetenv("PRICE_CACHE_TTL")
		_ = os.Unsetenv("MIGRATION_SPIKE_THRESHOLD")
	}()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %v, want %v", cfg.Server.Port, "9090")
	}

	if cfg.Database.Postgres.Host != "testhost" {
		t.Errorf("Database.Postgres.Host = %v, want %v", cfg.Database.Postgres.Host, "testhost")
	}

	if cfg.Pricing.CacheTTL != 10*time.Minute {
		t.Errorf("Pricing.CacheTTL = %v, want %v", cfg.Pricing.CacheTTL, 10*time.Minute)
	}

	if cfg.Monitoring.MigrationSpikeThreshold != 0.25 {
		t.Errorf("Monitoring.MigrationSpikeThreshold = %v, want %v", cfg.Monitoring.MigrationSpikeThreshold, 0.25)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Analytics.SourceBaselineSupply != 9993 {
		t.Errorf("Analytics.SourceBaselineSupply = %v, want 9993", cfg.Analytics.SourceBaselineSupply)
	}
	if cfg.Analytics.MigratedBeforeTracking != 26 {
		t.Errorf("Analytics.MigratedBeforeTracking = %v, want 26", cfg.Analytics.MigratedBeforeTracking)
	}
	if cfg.Provider.RequestsPerSecond != 4.0 {
		t.Errorf("Provider.RequestsPerSecond = %v, want 4.0", cfg.Provider.RequestsPerSecond)
	}
	if cfg.Pricing.FallbackPriceUSD != 2000.0 {
		t.Errorf("Pricing.FallbackPriceUSD = %v, want 2000.0", cfg.Pricing.FallbackPriceUSD)
	}
	if cfg.Monitoring.FloorCrashPercent != -50.0 {
		t.Errorf("Monitoring.FloorCrashPercent = %v, want -50.0", cfg.Monitoring.FloorCrashPercent)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config passes",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "same source and destination slug",
			mutate: func(c *Config) {
				c.Collections.Destination.Slug = c.Collections.Source.Slug
			},
			wantErr: true,
		},
		{
			name: "non-positive rate limit",
			mutate: func(c *Config) {
				c.Provider.RequestsPerSecond = 0
			},
			wantErr: true,
		},
		{
			name: "non-positive baseline supply",
			mutate: func(c *Config) {
				c.Analytics.SourceBaselineSupply = 0
			},
			wantErr: true,
		},
		{
			name: "non-positive velocity window",
			mutate: func(c *Config) {
				c.Analytics.VelocityWindowDays = -1
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig()
			if err != nil {
				t.Fatalf("LoadConfig() error = %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns environment variable when set",
			key:          "TEST_KEY",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when environment variable not set",
			key:          "NONEXISTENT_KEY",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				if err := os.Setenv(tt.key, tt.envValue); err != nil {
					t.Fatalf("Failed to set env var: %v", err)
				}
				defer func() {
					_ = os.Unsetenv(tt.key)
				}()
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsInt(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue int
		envValue     string
		want         int
	}{
		{
			name:         "returns integer when valid",
			key:          "TEST_INT",
			defaultValue: 100,
			envValue:     "200",
			want:         200,
		},
		{
			name:         "returns default when invalid",
			key:          "TEST_INT_INVALID",
			defaultValue: 100,
			envValue:     "invalid",
			want:         100,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_INT_NOTSET",
			defaultValue: 100,
			envValue:     "",
			want:         100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				if err := os.Setenv(tt.key, tt.envValue); err != nil {
					t.Fatalf("Failed to set env var: %v", err)
				}
				defer func() {
					_ = os.Unsetenv(tt.key)
				}()
			}

			got := getEnvAsInt(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvAsInt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsFloat(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue float64
		envValue     string
		want         float64
	}{
		{
			name:         "returns float when valid",
			key:          "TEST_FLOAT",
			defaultValue: 1.5,
			envValue:     "2.5",
			want:         2.5,
		},
		{
			name:         "returns default when invalid",
			key:          "TEST_FLOAT_INVALID",
			defaultValue: 1.5,
			envValue:     "invalid",
			want:         1.5,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_FLOAT_NOTSET",
			defaultValue: 1.5,
			envValue:     "",
			want:         1.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				if err := os.Setenv(tt.key, tt.envValue); err != nil {
					t.Fatalf("Failed to set env var: %v", err)
				}
				defer func() {
					_ = os.Unsetenv(tt.key)
				}()
			}

			got := getEnvAsFloat(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvAsFloat() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue time.Duration
		envValue     string
		want         time.Duration
	}{
		{
			name:         "returns duration when valid",
			key:          "TEST_DURATION",
			defaultValue: 10 * time.Second,
			envValue:     "30s",
			want:         30 * time.Second,
		},
		{
			name:         "returns default when invalid",
			key:          "TEST_DURATION_INVALID",
			defaultValue: 10 * time.Second,
			envValue:     "invalid",
			want:         10 * time.Second,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_DURATION_NOTSET",
			defaultValue: 10 * time.Second,
			envValue:     "",
			want:         10 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				if err := os.Setenv(tt.key, tt.envValue); err != nil {
					t.Fatalf("Failed to set env var: %v", err)
				}
				defer func() {
					_ = os.Unsetenv(tt.key)
				}()
			}

			got := getEnvAsDuration(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvAsDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}
