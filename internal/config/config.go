// Package config loads application configuration from the environment,
// using a godotenv + getEnv/getEnvAsInt/getEnvAsBool
// convention.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every setting the composition root needs to wire the
// store, broker, scheduler and HTTP surface.
type Config struct {
	// Server
	Port    int
	DevMode bool

	// Database
	DatabaseURL string

	// Broker
	BrokerEnvironment string // "sandbox" or "live"

	// Vault
	VaultEncryptionKey string

	// Scheduler
	LivePricePollSchedule string
	PreSessionSchedule    string
	PostSessionSchedule   string
	OrphanGuardSchedule   string
	EODReconcileSchedule  string
	HealthCheckSchedule   string
	JobTimeout            time.Duration

	// Logging
	LogLevel string
}

// Load reads configuration from the environment, loading a .env file
// first if one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                  getEnvAsInt("PORT", 8080),
		DevMode:               getEnvAsBool("DEV_MODE", false),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		BrokerEnvironment:     getEnv("BROKER_ENVIRONMENT", "sandbox"),
		VaultEncryptionKey:    getEnv("VAULT_ENCRYPTION_KEY", ""),
		LivePricePollSchedule: getEnv("SCHEDULE_LIVE_PRICE_POLL", "*/5 9-16 * * 1-5"),
		PreSessionSchedule:    getEnv("SCHEDULE_PRE_SESSION", "25 9 * * 1-5"),
		PostSessionSchedule:   getEnv("SCHEDULE_POST_SESSION", "5 16 * * 1-5"),
		OrphanGuardSchedule:   getEnv("SCHEDULE_ORPHAN_GUARD", "*/15 * * * *"),
		EODReconcileSchedule:  getEnv("SCHEDULE_EOD_RECONCILIATION", "30 16 * * 1-5"),
		HealthCheckSchedule:   getEnv("SCHEDULE_HEALTH_CHECK", "*/10 * * * *"),
		JobTimeout:            getEnvAsDuration("JOB_TIMEOUT", 2*time.Minute),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required configuration is present.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.BrokerEnvironment != "sandbox" && c.BrokerEnvironment != "live" {
		return fmt.Errorf("BROKER_ENVIRONMENT must be \"sandbox\" or \"live\", got %q", c.BrokerEnvironment)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
